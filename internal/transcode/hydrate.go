// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package transcode

import (
	"reflect"
	"time"

	"github.com/juju/errors"
	"github.com/mitchellh/mapstructure"

	"github.com/juju/docsync/core/entity"
	"github.com/juju/docsync/core/registry"
	"github.com/juju/docsync/core/store"
)

var (
	objectType = reflect.TypeOf((*store.Object)(nil)).Elem()
	fileType   = reflect.TypeOf((*store.File)(nil)).Elem()
)

// Hydrate builds the domain object registered for the document's class.
//
// Fields are only filled while depth < maxDepth; nested documents are
// hydrated at depth+1. A node at maxDepth carries its handle and nothing
// else, so references beyond the limit remain reachable as raw documents
// through the handle. Arrays are treated as arrays of documents only when
// their first element is a document.
//
// An unknown class is logged and returns an error satisfying
// ClassNotRegistered; an unknown class nested inside the document leaves
// the field empty without failing the whole node.
func (t *Transcoder) Hydrate(obj store.Object, depth, maxDepth int) (entity.Node, error) {
	h := newHydrator(t)
	node, err := h.hydrate(obj, depth, maxDepth)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return node, nil
}

// HydrateAll hydrates each document, skipping the ones that fail. Nodes
// referenced several times across the batch are hydrated once.
func (t *Transcoder) HydrateAll(objs []store.Object, depth, maxDepth int) []entity.Node {
	h := newHydrator(t)
	nodes := make([]entity.Node, 0, len(objs))
	for _, obj := range objs {
		node, err := h.hydrate(obj, depth, maxDepth)
		if err != nil {
			logger.Warningf("skipping %s %q: %v", obj.ClassName(), obj.ID(), err)
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes
}

// HydrateUser applies the user rule: users never recurse.
func HydrateUser(obj store.Object) *entity.User {
	u := &entity.User{
		Username: stringAttr(obj, "username"),
		Email:    stringAttr(obj, "email"),
		Role:     stringAttr(obj, "role"),
	}
	u.SetHandle(obj)
	return u
}

type seenNode struct {
	node  entity.Node
	depth int
}

type hydrator struct {
	transcoder *Transcoder
	seen       map[string]seenNode
}

func newHydrator(t *Transcoder) *hydrator {
	return &hydrator{
		transcoder: t,
		seen:       make(map[string]seenNode),
	}
}

func (h *hydrator) hydrate(obj store.Object, depth, maxDepth int) (entity.Node, error) {
	if obj == nil {
		return nil, errors.NotValidf("nil document")
	}
	class := obj.ClassName()
	def, err := h.transcoder.registry.Lookup(class)
	if err != nil {
		logger.Warningf("cannot hydrate %s %q: %v", class, obj.ID(), err)
		return nil, errors.Trace(err)
	}

	// A document already hydrated at this depth or shallower is at least
	// as complete as what we would build now.
	key := class + "/" + obj.ID()
	if obj.ID() != "" {
		if seen, ok := h.seen[key]; ok && seen.depth <= depth {
			return seen.node, nil
		}
	}

	switch def.Builtin {
	case registry.BuiltinUser:
		u := HydrateUser(obj)
		h.remember(key, obj, u, depth)
		return u, nil
	case registry.BuiltinFile:
		return nil, errors.NotValidf("file class %q as a document", class)
	}

	node := def.New()
	node.SetHandle(obj)
	h.remember(key, obj, node, depth)
	if depth >= maxDepth {
		return node, nil
	}

	sv := entity.StructValue(node)
	for _, field := range entity.Fields(sv.Type()) {
		if !obj.Has(field.Key) {
			continue
		}
		raw := obj.Get(field.Key)
		var value any
		if field.Type == objectType || field.Type == fileType {
			value = raw
		} else {
			value = h.value(raw, depth, maxDepth)
		}
		if err := assign(sv.FieldByIndex(field.Index), value); err != nil {
			logger.Warningf("cannot set %s.%s from %T: %v", class, field.Key, raw, err)
		}
	}
	return node, nil
}

func (h *hydrator) remember(key string, obj store.Object, node entity.Node, depth int) {
	if obj.ID() == "" {
		return
	}
	h.seen[key] = seenNode{node: node, depth: depth}
}

// value converts one attribute value. Failures to hydrate nested
// documents are logged and produce nil.
func (h *hydrator) value(raw any, depth, maxDepth int) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case store.Object:
		node, err := h.hydrate(v, depth+1, maxDepth)
		if err != nil {
			return nil
		}
		return node
	case store.File:
		return entity.NewFile(v)
	case []any:
		if len(v) == 0 {
			return v
		}
		switch v[0].(type) {
		case store.Object:
			return h.array(v, depth+1, maxDepth)
		case store.File:
			return files(v)
		}
		return v
	}
	return raw
}

func (h *hydrator) array(items []any, depth, maxDepth int) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(store.Object)
		if !ok {
			out = append(out, item)
			continue
		}
		node, err := h.hydrate(obj, depth, maxDepth)
		if err != nil {
			continue
		}
		out = append(out, node)
	}
	return out
}

func files(items []any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		if f, ok := item.(store.File); ok {
			out = append(out, entity.NewFile(f))
			continue
		}
		out = append(out, item)
	}
	return out
}

// assign stores a converted value into a struct field. Values of the
// field's own type are set directly, []any is converted element-wise and
// anything else is coerced by mapstructure.
func assign(dst reflect.Value, value any) error {
	if entity.IsNil(value) {
		return nil
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}
	if items, ok := value.([]any); ok && dst.Kind() == reflect.Slice {
		out := reflect.MakeSlice(dst.Type(), 0, len(items))
		for i, item := range items {
			if entity.IsNil(item) {
				continue
			}
			elem := reflect.New(dst.Type().Elem()).Elem()
			if err := assign(elem, item); err != nil {
				return errors.Annotatef(err, "element %d", i)
			}
			out = reflect.Append(out, elem)
		}
		dst.Set(out)
		return nil
	}
	switch value.(type) {
	case entity.Node, *entity.File, store.Object, store.File:
		return errors.NotValidf("%T into %v", value, dst.Type())
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst.Addr().Interface(),
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(decoder.Decode(value))
}

func stringAttr(obj store.Object, key string) string {
	s, _ := obj.Get(key).(string)
	return s
}
