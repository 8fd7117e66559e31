// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package livebuffer

import (
	"reflect"

	"github.com/juju/errors"

	"github.com/juju/docsync/core/entity"
	"github.com/juju/docsync/core/store"
)

// RelationConfig binds a field of the nodes cached by one buffer to the
// changes of another buffer.
type RelationConfig struct {
	// Name identifies the relation in published changes.
	Name string
	// Field is the document key of the owner field to patch.
	Field string
	// Many is set when the field holds a slice of nodes.
	Many bool
	// Foreign is the buffer whose changes are followed.
	Foreign *Buffer
	// Lookup returns the id of the cached owner of a foreign change.
	Lookup func(Change) (ownerID string, ok bool)
}

// Validate returns an error if the relation cannot be bound.
func (config RelationConfig) Validate() error {
	if config.Field == "" {
		return errors.NotValidf("empty Field")
	}
	if config.Foreign == nil {
		return errors.NotValidf("nil Foreign")
	}
	if config.Lookup == nil {
		return errors.NotValidf("nil Lookup")
	}
	return nil
}

// BindRelation follows the foreign buffer's changes. For each change the
// owner is looked up in this buffer's cache and a patched copy replaces it:
// a single field is replaced or cleared, a many field has the foreign node
// upserted or removed by identifier. Nodes already returned by the buffer
// are never modified. A RelationChange carrying the copy is then published
// to WatchRelations. The returned func ends the binding.
func (b *Buffer) BindRelation(config RelationConfig) (func(), error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Name == "" {
		config.Name = config.Foreign.ClassName() + "." + config.Field
	}
	return config.Foreign.Watch(func(change Change) {
		b.patch(config, change)
	}), nil
}

// WatchRelations calls handler for every patch made by a bound relation.
func (b *Buffer) WatchRelations(handler func(RelationChange)) func() {
	return b.hub.Subscribe(relationTopic, func(topic string, data interface{}) {
		change, ok := data.(RelationChange)
		if !ok {
			logger.Criticalf("programming error: topic data expected RelationChange, got %T", data)
			return
		}
		handler(change)
	})
}

func (b *Buffer) patch(config RelationConfig, change Change) {
	ownerID, ok := config.Lookup(change)
	if !ok {
		return
	}

	b.mu.Lock()
	owner, cached := b.nodes[ownerID]
	if !cached {
		b.mu.Unlock()
		logger.Tracef("relation %s: owner %q not cached", config.Name, ownerID)
		return
	}
	patched, err := patchedCopy(owner, config, change)
	if err == nil {
		b.nodes[ownerID] = patched
	}
	b.mu.Unlock()
	if err != nil {
		logger.Warningf("relation %s: patching %q: %v", config.Name, ownerID, err)
		return
	}

	_ = b.hub.Publish(relationTopic, RelationChange{
		Relation: config.Name,
		Op:       store.OpUpdate,
		OwnerID:  ownerID,
		Owner:    patched,
		Foreign:  change,
	})
}

// patchedCopy returns a shallow copy of owner with the relation field
// patched.
func patchedCopy(owner entity.Node, config RelationConfig, change Change) (entity.Node, error) {
	sv := entity.StructValue(owner)
	if !sv.IsValid() {
		return nil, errors.NotValidf("nil owner")
	}
	cp := reflect.New(sv.Type())
	cp.Elem().Set(sv)
	node, ok := cp.Interface().(entity.Node)
	if !ok {
		return nil, errors.NotValidf("copy of %T", owner)
	}
	if err := patchField(node, config, change); err != nil {
		return nil, errors.Trace(err)
	}
	return node, nil
}

func patchField(owner entity.Node, config RelationConfig, change Change) error {
	sv := entity.StructValue(owner)
	if !sv.IsValid() {
		return errors.NotValidf("nil owner")
	}
	field, ok := entity.FieldByKey(sv.Type(), config.Field)
	if !ok {
		return errors.NotFoundf("field %q on %v", config.Field, sv.Type())
	}
	dst := sv.FieldByIndex(field.Index)
	removing := change.Op == store.OpLeave || change.Op == store.OpDelete

	if !config.Many {
		if removing {
			if entity.IDOf(nodeIn(dst)) == change.ID {
				dst.Set(reflect.Zero(dst.Type()))
			}
			return nil
		}
		return setNode(dst, change.Node)
	}

	if dst.Kind() != reflect.Slice {
		return errors.NotValidf("many relation on %v field", dst.Type())
	}
	// The backing array may be shared with a previous copy of the owner.
	cloned := reflect.MakeSlice(dst.Type(), dst.Len(), dst.Len())
	reflect.Copy(cloned, dst)
	dst.Set(cloned)
	index := -1
	for i := 0; i < dst.Len(); i++ {
		if n, ok := dst.Index(i).Interface().(entity.Node); ok && entity.IDOf(n) == change.ID {
			index = i
			break
		}
	}
	switch {
	case removing && index >= 0:
		kept := reflect.MakeSlice(dst.Type(), 0, dst.Len()-1)
		kept = reflect.AppendSlice(kept, dst.Slice(0, index))
		kept = reflect.AppendSlice(kept, dst.Slice(index+1, dst.Len()))
		dst.Set(kept)
	case removing:
	case index >= 0:
		return setNode(dst.Index(index), change.Node)
	default:
		elem := reflect.New(dst.Type().Elem()).Elem()
		if err := setNode(elem, change.Node); err != nil {
			return errors.Trace(err)
		}
		dst.Set(reflect.Append(dst, elem))
	}
	return nil
}

func nodeIn(v reflect.Value) entity.Node {
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	n, _ := v.Interface().(entity.Node)
	if entity.IsNil(n) {
		return nil
	}
	return n
}

func setNode(dst reflect.Value, node entity.Node) error {
	if entity.IsNil(node) {
		return errors.NotValidf("nil node")
	}
	rv := reflect.ValueOf(node)
	if !rv.Type().AssignableTo(dst.Type()) {
		return errors.NotValidf("%T into %v", node, dst.Type())
	}
	dst.Set(rv)
	return nil
}
