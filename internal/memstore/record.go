// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package memstore

import (
	"reflect"
	"strings"
	"time"

	"github.com/juju/docsync/core/store"
)

// pointer is the stored form of a reference to another document.
type pointer struct {
	class string
	id    string
}

func (p pointer) key() string {
	return p.class + "/" + p.id
}

// record is the server side state of one document. Attribute values are
// stored as scalars, pointers, files or []any of those.
type record struct {
	class     string
	id        string
	attrs     map[string]any
	acl       *store.ACL
	createdAt time.Time
	updatedAt time.Time
}

func (r *record) key() string {
	return r.class + "/" + r.id
}

func (r *record) copy() *record {
	c := *r
	c.attrs = make(map[string]any, len(r.attrs))
	for k, v := range r.attrs {
		if items, ok := v.([]any); ok {
			v = append([]any(nil), items...)
		}
		c.attrs[k] = v
	}
	c.acl = r.acl.Copy()
	return &c
}

// loaded is a record decoded into client form.
type loaded struct {
	attrs     map[string]any
	acl       *store.ACL
	createdAt time.Time
	updatedAt time.Time
}

type file struct {
	name string
	url  string
	data []byte
}

// Name is part of the store.File interface.
func (f *file) Name() string { return f.name }

// URL is part of the store.File interface.
func (f *file) URL() string { return f.url }

// Data returns the file content.
func (f *file) Data() []byte { return f.data }

// encode returns the stored form of a client value.
func encode(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case store.Object:
		return pointer{class: t.ClassName(), id: t.ID()}
	case store.File:
		return t
	case []byte:
		return append([]byte(nil), t...)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = encode(item)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = encode(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func containsStored(items []any, v any) bool {
	for _, item := range items {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}

func removeStored(items []any, v any) []any {
	out := items[:0:0]
	for _, item := range items {
		if !reflect.DeepEqual(item, v) {
			out = append(out, item)
		}
	}
	return out
}

// includes is a tree of keys whose pointers are resolved on load.
type includes struct {
	all  bool
	keys map[string]*includes
}

func newIncludes(paths []string, all bool) *includes {
	root := &includes{all: all}
	for _, path := range paths {
		node := root
		for _, part := range strings.Split(path, ".") {
			if node.keys == nil {
				node.keys = make(map[string]*includes)
			}
			next, ok := node.keys[part]
			if !ok {
				next = &includes{}
				node.keys[part] = next
			}
			node = next
		}
	}
	return root
}

func (inc *includes) sub(key string) (*includes, bool) {
	if inc == nil {
		return nil, false
	}
	if next, ok := inc.keys[key]; ok {
		return next, true
	}
	if inc.all {
		return &includes{}, true
	}
	return nil, false
}

// loadRecord decodes a record, resolving included pointers. The caller
// holds s.mu.
func (s *Store) loadRecord(rec *record, inc *includes, visiting map[string]bool) loaded {
	if visiting == nil {
		visiting = make(map[string]bool)
	}
	visiting[rec.key()] = true
	defer delete(visiting, rec.key())

	attrs := make(map[string]any, len(rec.attrs))
	for key, v := range rec.attrs {
		sub, included := inc.sub(key)
		attrs[key] = s.decode(v, sub, included, visiting)
	}
	return loaded{
		attrs:     attrs,
		acl:       rec.acl.Copy(),
		createdAt: rec.createdAt,
		updatedAt: rec.updatedAt,
	}
}

func (s *Store) decode(v any, inc *includes, included bool, visiting map[string]bool) any {
	switch t := v.(type) {
	case pointer:
		obj := newObject(s, t.class, t.id, false)
		if !included || visiting[t.key()] {
			return obj
		}
		if rec, ok := s.records[t.class][t.id]; ok {
			obj.load(s.loadRecord(rec, inc, visiting))
		}
		return obj
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = s.decode(item, inc, included, visiting)
		}
		return out
	}
	return v
}
