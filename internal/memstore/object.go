// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package memstore

import (
	"context"
	"reflect"
	"sort"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/juju/docsync/core/store"
)

type opKind int

const (
	opAddUnique opKind = iota
	opRemove
)

// arrayOp is an array mutation applied on the server when the object is
// saved, so that concurrent writers do not overwrite each other.
type arrayOp struct {
	kind   opKind
	values []any
}

// object is the client side of a document. It is not safe for concurrent
// use.
type object struct {
	store *Store
	class string
	id    string

	attrs     map[string]any
	dirty     set.Strings
	unset     set.Strings
	ops       map[string][]arrayOp
	acl       *store.ACL
	aclDirty  bool
	available bool

	createdAt time.Time
	updatedAt time.Time
}

var _ store.Object = (*object)(nil)

func newObject(s *Store, class, id string, available bool) *object {
	return &object{
		store:     s,
		class:     class,
		id:        id,
		attrs:     make(map[string]any),
		dirty:     set.NewStrings(),
		unset:     set.NewStrings(),
		ops:       make(map[string][]arrayOp),
		available: available,
	}
}

// ClassName is part of the store.Object interface.
func (o *object) ClassName() string { return o.class }

// ID is part of the store.Object interface.
func (o *object) ID() string { return o.id }

// CreatedAt returns when the document was first saved.
func (o *object) CreatedAt() time.Time { return o.createdAt }

// UpdatedAt returns when the document was last saved.
func (o *object) UpdatedAt() time.Time { return o.updatedAt }

// Has is part of the store.Object interface.
func (o *object) Has(key string) bool {
	_, ok := o.attrs[key]
	return ok
}

// Get is part of the store.Object interface.
func (o *object) Get(key string) any {
	return o.attrs[key]
}

// Set is part of the store.Object interface.
func (o *object) Set(key string, value any) {
	o.attrs[key] = value
	o.dirty.Add(key)
	o.unset.Remove(key)
	delete(o.ops, key)
}

// Unset is part of the store.Object interface.
func (o *object) Unset(key string) {
	delete(o.attrs, key)
	o.unset.Add(key)
	o.dirty.Remove(key)
	delete(o.ops, key)
}

// Keys is part of the store.Object interface.
func (o *object) Keys() []string {
	keys := make([]string, 0, len(o.attrs))
	for k := range o.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AddUnique is part of the store.Object interface.
func (o *object) AddUnique(key string, value any) error {
	return o.AddAllUnique(key, []any{value})
}

// AddAllUnique is part of the store.Object interface.
func (o *object) AddAllUnique(key string, values []any) error {
	if err := o.store.takeFailure(OpAddUnique); err != nil {
		return errors.Trace(err)
	}
	items := o.array(key)
	for _, v := range values {
		if !containsValue(items, v) {
			items = append(items, v)
		}
	}
	o.attrs[key] = items
	o.unset.Remove(key)
	o.queue(key, arrayOp{kind: opAddUnique, values: values})
	return nil
}

// Remove is part of the store.Object interface.
func (o *object) Remove(key string, value any) error {
	if err := o.store.takeFailure(OpRemove); err != nil {
		return errors.Trace(err)
	}
	items := o.array(key)
	kept := items[:0:0]
	for _, item := range items {
		if !sameValue(item, value) {
			kept = append(kept, item)
		}
	}
	o.attrs[key] = kept
	o.queue(key, arrayOp{kind: opRemove, values: []any{value}})
	return nil
}

func (o *object) queue(key string, op arrayOp) {
	// A pending Set already carries the whole array.
	if o.dirty.Contains(key) {
		return
	}
	o.ops[key] = append(o.ops[key], op)
}

func (o *object) array(key string) []any {
	switch v := o.attrs[key].(type) {
	case []any:
		return append([]any(nil), v...)
	case nil:
		return nil
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice {
			return []any{v}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
}

func (o *object) pending() bool {
	return o.id == "" || len(o.dirty) > 0 || len(o.unset) > 0 || len(o.ops) > 0 || o.aclDirty
}

// Save is part of the store.Object interface.
func (o *object) Save(ctx context.Context) error {
	return o.store.save(o)
}

// Destroy is part of the store.Object interface.
func (o *object) Destroy(ctx context.Context) error {
	return o.store.destroy(o)
}

// Exists is part of the store.Object interface.
func (o *object) Exists(ctx context.Context) (bool, error) {
	if o.id == "" {
		return false, nil
	}
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	_, ok := o.store.records[o.class][o.id]
	return ok, nil
}

// Fetch is part of the store.Object interface.
func (o *object) Fetch(ctx context.Context) error {
	if o.id == "" {
		return errors.NotValidf("fetching unsaved %s", o.class)
	}
	return errors.Trace(o.store.fetchAll([]store.Object{o}, false, nil))
}

// IsDataAvailable is part of the store.Object interface.
func (o *object) IsDataAvailable() bool { return o.available }

// ACL is part of the store.Object interface.
func (o *object) ACL() *store.ACL { return o.acl }

// SetACL is part of the store.Object interface.
func (o *object) SetACL(acl *store.ACL) {
	o.acl = acl
	o.aclDirty = true
}

// Clone is part of the store.Object interface.
func (o *object) Clone() store.Object {
	c := newObject(o.store, o.class, "", true)
	for k, v := range o.attrs {
		if items, ok := v.([]any); ok {
			v = append([]any(nil), items...)
		}
		c.Set(k, v)
	}
	if o.acl != nil {
		c.SetACL(o.acl.Copy())
	}
	return c
}

// load replaces the client state with a freshly loaded record.
func (o *object) load(l loaded) {
	o.attrs = l.attrs
	o.acl = l.acl
	o.createdAt = l.createdAt
	o.updatedAt = l.updatedAt
	o.available = true
	o.clean()
}

func (o *object) clean() {
	o.dirty = set.NewStrings()
	o.unset = set.NewStrings()
	o.ops = make(map[string][]arrayOp)
	o.aclDirty = false
}

// references returns the memstore objects held in the attributes.
func (o *object) references() []*object {
	var refs []*object
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case *object:
			refs = append(refs, t)
		case *userObject:
			refs = append(refs, t.object)
		case []any:
			for _, item := range t {
				walk(item)
			}
		}
	}
	for _, v := range o.attrs {
		walk(v)
	}
	return refs
}

// sameValue compares client values. Documents compare by identifier, or
// by identity while unsaved.
func sameValue(a, b any) bool {
	ao, aok := a.(store.Object)
	bo, bok := b.(store.Object)
	if aok && bok {
		if ao.ID() == "" || bo.ID() == "" {
			return ao == bo
		}
		return ao.ClassName() == bo.ClassName() && ao.ID() == bo.ID()
	}
	return reflect.DeepEqual(encode(a), encode(b))
}

func containsValue(items []any, v any) bool {
	for _, item := range items {
		if sameValue(item, v) {
			return true
		}
	}
	return false
}

// userObject is a user document bound to a session.
type userObject struct {
	*object
	token string
}

var _ store.User = (*userObject)(nil)

// Username is part of the store.User interface.
func (u *userObject) Username() string {
	name, _ := u.Get("username").(string)
	return name
}

// SessionToken is part of the store.User interface.
func (u *userObject) SessionToken() string {
	return u.token
}
