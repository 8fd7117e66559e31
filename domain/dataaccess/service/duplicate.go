// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"context"
	"fmt"
	"reflect"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/mohae/deepcopy"

	"github.com/juju/docsync/core/entity"
	coreerrors "github.com/juju/docsync/core/errors"
	"github.com/juju/docsync/core/store"
)

// DuplicateOptions controls Duplicate.
type DuplicateOptions struct {
	// Deep clones the documents of nested references as well and saves
	// the copy.
	Deep bool
	// Keep names fields, by Go name or document key, copied verbatim by a
	// deep duplicate.
	Keep []string
}

// Duplicate returns a copy of the object. The source is never modified.
//
// A shallow copy shares every field value, unmapped fields included, and
// has no handle, so the next Save creates a new document. A deep copy
// clones the document of every nested reference outside Keep, deep copies
// the remaining mapped values and saves the result, which therefore has a
// new identifier. Unmapped fields are shared. Users and files are shared,
// not cloned.
func (s *Service[T, P]) Duplicate(ctx context.Context, obj P, opts DuplicateOptions) (P, error) {
	if obj == nil {
		return nil, errors.NotValidf("duplicating nil %s", s.class)
	}
	dup := P(new(T))
	src := entity.StructValue(obj)
	dst := entity.StructValue(dup)
	dst.Set(src)
	dup.SetHandle(nil)
	if !opts.Deep {
		return dup, nil
	}

	keep := set.NewStrings(opts.Keep...)
	d := &duplicator{
		transcoder: s.transcoder,
		ctx:        ctx,
		clones:     make(map[string]entity.Node),
	}
	for _, field := range entity.Fields(src.Type()) {
		from := src.FieldByIndex(field.Index)
		to := dst.FieldByIndex(field.Index)
		if keep.Contains(field.Name) || keep.Contains(field.Key) {
			to.Set(from)
			continue
		}
		if err := d.copyValue(to, from); err != nil {
			return nil, errors.Annotatef(err, "duplicating %s.%s", s.class, field.Key)
		}
	}

	flat, err := s.transcoder.Flatten(dup)
	if err != nil {
		return nil, errors.Annotatef(err, "transcoding %s duplicate", s.class)
	}
	if err := flat.Object.Save(ctx); err != nil {
		return nil, fmt.Errorf("saving %s duplicate: %w: %w", s.class, coreerrors.MutationRejected, err)
	}
	flat.Bind()
	logger.Debugf("duplicated %s %q as %q", s.class, entity.IDOf(obj), entity.IDOf(dup))
	return dup, nil
}

// hydrator is the part of the transcoder the duplicator needs.
type hydrator interface {
	Hydrate(obj store.Object, depth, maxDepth int) (entity.Node, error)
}

type duplicator struct {
	transcoder hydrator
	ctx        context.Context
	// clones maps source document ids to their clone, so a reference held
	// twice is cloned once.
	clones map[string]entity.Node
}

func (d *duplicator) copyValue(to, from reflect.Value) error {
	if !from.CanInterface() {
		return nil
	}
	value := from.Interface()
	switch entity.Classify(value) {
	case entity.KindUndefined:
		return nil
	case entity.KindUser, entity.KindFile:
		to.Set(from)
		return nil
	case entity.KindReference:
		clone, err := d.cloneNode(value.(entity.Node))
		if err != nil {
			return errors.Trace(err)
		}
		return setValue(to, clone)
	case entity.KindRemote:
		obj, ok := value.(store.Object)
		if !ok {
			to.Set(from)
			return nil
		}
		clone := obj.Clone()
		if err := clone.Save(d.ctx); err != nil {
			return fmt.Errorf("cloning %s %q: %w: %w", obj.ClassName(), obj.ID(), coreerrors.MutationRejected, err)
		}
		return setValue(to, clone)
	case entity.KindReferenceArray, entity.KindArray:
		if from.Kind() != reflect.Slice {
			break
		}
		out := reflect.MakeSlice(from.Type(), from.Len(), from.Len())
		for i := 0; i < from.Len(); i++ {
			if err := d.copyValue(out.Index(i), from.Index(i)); err != nil {
				return errors.Annotatef(err, "element %d", i)
			}
		}
		to.Set(out)
		return nil
	}
	to.Set(reflect.ValueOf(deepcopy.Copy(value)))
	return nil
}

// cloneNode clones a nested object. A persisted object has its document
// cloned and saved; an unsaved one is deep copied and created when the
// duplicate is saved.
func (d *duplicator) cloneNode(node entity.Node) (entity.Node, error) {
	handle := node.Handle()
	if handle == nil || handle.ID() == "" {
		copied, ok := deepcopy.Copy(node).(entity.Node)
		if !ok {
			return nil, errors.NotValidf("copying %T", node)
		}
		return copied, nil
	}
	if clone, ok := d.clones[handle.ID()]; ok {
		return clone, nil
	}
	doc := handle.Clone()
	if err := doc.Save(d.ctx); err != nil {
		return nil, fmt.Errorf("cloning %s %q: %w: %w", handle.ClassName(), handle.ID(), coreerrors.MutationRejected, err)
	}
	clone, err := d.transcoder.Hydrate(doc, 0, 1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	d.clones[handle.ID()] = clone
	return clone, nil
}

func setValue(dst reflect.Value, value any) error {
	rv := reflect.ValueOf(value)
	if !rv.Type().AssignableTo(dst.Type()) {
		return errors.NotValidf("%T into %v", value, dst.Type())
	}
	dst.Set(rv)
	return nil
}
