// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package transcode

import (
	"reflect"

	"github.com/juju/errors"

	"github.com/juju/docsync/core/entity"
	"github.com/juju/docsync/core/store"
)

// Flattened is the result of flattening a domain object.
type Flattened struct {
	// Object is the document ready to persist.
	Object store.Object

	created []binding
}

type binding struct {
	node   entity.Node
	object store.Object
}

// Bind attaches the documents created while flattening to the nodes they
// were created for. Call it once the documents are persisted.
func (f *Flattened) Bind() {
	for _, b := range f.created {
		b.node.SetHandle(b.object)
	}
}

// Created returns the number of new documents the flatten produced,
// including the root when it had no handle.
func (f *Flattened) Created() int {
	return len(f.created)
}

// Flatten writes the node's fields into its document, or into a new
// document of its registered class when it has no handle. Nested objects
// without a handle are flattened into new documents too. The node graph
// itself is not modified; see Flattened.Bind.
//
// A reference array is written with add and remove operations against
// the document's current array rather than replaced. If one of those
// operations is rejected the error satisfies MutationRejected and the
// document may be left partially modified.
func (t *Transcoder) Flatten(node entity.Node) (*Flattened, error) {
	if entity.IsNil(node) {
		return nil, errors.NotValidf("nil node")
	}
	f := &flattener{
		transcoder: t,
		visited:    make(map[entity.Node]store.Object),
	}
	obj, err := f.flatten(node)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Flattened{
		Object:  obj,
		created: f.created,
	}, nil
}

// FlattenAll flattens the nodes in order. A new object referenced by more
// than one node is flattened into a single document.
func (t *Transcoder) FlattenAll(nodes []entity.Node) ([]*Flattened, error) {
	f := &flattener{
		transcoder: t,
		visited:    make(map[entity.Node]store.Object),
	}
	out := make([]*Flattened, len(nodes))
	for i, node := range nodes {
		if entity.IsNil(node) {
			return nil, errors.NotValidf("nil node %d", i)
		}
		f.created = nil
		obj, err := f.flatten(node)
		if err != nil {
			return nil, errors.Annotatef(err, "node %d", i)
		}
		out[i] = &Flattened{
			Object:  obj,
			created: f.created,
		}
	}
	return out, nil
}

type flattener struct {
	transcoder *Transcoder
	visited    map[entity.Node]store.Object
	created    []binding
}

func (f *flattener) flatten(node entity.Node) (store.Object, error) {
	if obj, ok := f.visited[node]; ok {
		return obj, nil
	}
	class, err := f.transcoder.registry.ClassOf(node)
	if err != nil {
		return nil, errors.Trace(err)
	}

	obj := node.Handle()
	if obj == nil {
		obj = f.transcoder.store.NewObject(class)
		f.created = append(f.created, binding{node: node, object: obj})
	}
	// Record the document before descending so that cycles resolve to it.
	f.visited[node] = obj

	sv := entity.StructValue(node)
	for _, field := range entity.Fields(sv.Type()) {
		value := sv.FieldByIndex(field.Index).Interface()
		if err := f.setField(obj, field.Key, value); err != nil {
			return nil, errors.Annotatef(err, "flattening %s.%s", class, field.Key)
		}
	}
	return obj, nil
}

func (f *flattener) setField(obj store.Object, key string, value any) error {
	switch entity.Classify(value) {
	case entity.KindUndefined:
		obj.Unset(key)
	case entity.KindScalar:
		obj.Set(key, value)
	case entity.KindReferenceArray:
		resolved, err := f.resolveSlice(value)
		if err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(ApplyReferenceArray(obj, key, resolved))
	case entity.KindArray:
		resolved, err := f.resolveSlice(value)
		if err != nil {
			return errors.Trace(err)
		}
		obj.Set(key, resolved)
	default:
		resolved, err := f.resolve(value)
		if err != nil {
			return errors.Trace(err)
		}
		obj.Set(key, resolved)
	}
	return nil
}

// resolve returns the store form of a single value.
func (f *flattener) resolve(value any) (any, error) {
	switch entity.Classify(value) {
	case entity.KindUndefined:
		return nil, nil
	case entity.KindReference, entity.KindUser:
		node := value.(entity.Node)
		if h := node.Handle(); h != nil {
			return h, nil
		}
		return f.flatten(node)
	case entity.KindFile:
		file := value.(*entity.File)
		if file.Remote() == nil {
			return nil, errors.NotValidf("file %q without remote resource", file.Name)
		}
		return file.Remote(), nil
	case entity.KindReferenceArray, entity.KindArray:
		return f.resolveSlice(value)
	}
	return value, nil
}

func (f *flattener) resolveSlice(value any) ([]any, error) {
	rv := reflect.ValueOf(value)
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		resolved, err := f.resolve(rv.Index(i).Interface())
		if err != nil {
			return nil, errors.Annotatef(err, "element %d", i)
		}
		out = append(out, resolved)
	}
	return out, nil
}
