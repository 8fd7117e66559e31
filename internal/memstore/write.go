// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package memstore

import (
	"time"

	"github.com/juju/errors"
)

// change is published on the class topic for every write. before is nil
// for a creation and after is nil for a deletion.
type change struct {
	class  string
	before *record
	after  *record
}

// save persists the object together with every new or dirty document it
// references. Referenced documents are written first.
func (s *Store) save(root *object) error {
	if err := s.takeFailure(OpSave); err != nil {
		return errors.Trace(err)
	}
	if root.store != s {
		return errors.NotSupportedf("object from another store")
	}

	var (
		order   []*object
		visited = make(map[*object]bool)
		visit   func(o *object)
	)
	visit = func(o *object) {
		if visited[o] {
			return
		}
		visited[o] = true
		for _, ref := range o.references() {
			visit(ref)
		}
		if o == root || o.pending() {
			order = append(order, o)
		}
	}
	visit(root)

	s.mu.Lock()
	for _, o := range order {
		if o.id == "" {
			continue
		}
		if _, ok := s.records[o.class][o.id]; !ok {
			s.mu.Unlock()
			return errors.NotFoundf("%s %q", o.class, o.id)
		}
	}
	for _, o := range order {
		if o.id == "" {
			o.id = newID()
		}
	}

	now := s.now()
	changes := make([]change, 0, len(order))
	for _, o := range order {
		changes = append(changes, s.writeLocked(o, now))
	}
	s.mu.Unlock()

	for _, ch := range changes {
		logger.Tracef("saved %s %q", ch.class, ch.after.id)
		_ = s.hub.Publish(ch.class, ch)
	}
	return nil
}

// writeLocked applies the pending state of o to its record. The caller
// holds s.mu and o has an identifier.
func (s *Store) writeLocked(o *object, now time.Time) change {
	byID, ok := s.records[o.class]
	if !ok {
		byID = make(map[string]*record)
		s.records[o.class] = byID
	}
	rec, exists := byID[o.id]
	var before *record
	if exists {
		before = rec.copy()
	} else {
		rec = &record{
			class:     o.class,
			id:        o.id,
			attrs:     make(map[string]any),
			createdAt: now,
		}
		byID[o.id] = rec
		// Everything held by a new document is written as is.
		for key := range o.attrs {
			o.dirty.Add(key)
		}
		o.ops = make(map[string][]arrayOp)
	}

	for _, key := range o.dirty.Values() {
		rec.attrs[key] = encode(o.attrs[key])
	}
	for _, key := range o.unset.Values() {
		delete(rec.attrs, key)
	}
	for key, ops := range o.ops {
		items, _ := rec.attrs[key].([]any)
		for _, op := range ops {
			for _, v := range op.values {
				stored := encode(v)
				switch op.kind {
				case opAddUnique:
					if !containsStored(items, stored) {
						items = append(items, stored)
					}
				case opRemove:
					items = removeStored(items, stored)
				}
			}
		}
		rec.attrs[key] = items
	}
	if o.aclDirty {
		rec.acl = o.acl.Copy()
	}
	rec.updatedAt = now

	o.createdAt = rec.createdAt
	o.updatedAt = rec.updatedAt
	o.available = true
	o.clean()

	return change{class: o.class, before: before, after: rec.copy()}
}

func (s *Store) destroy(o *object) error {
	if err := s.takeFailure(OpDestroy); err != nil {
		return errors.Trace(err)
	}
	if o.id == "" {
		return errors.NotValidf("destroying unsaved %s", o.class)
	}
	s.mu.Lock()
	rec, ok := s.records[o.class][o.id]
	if !ok {
		s.mu.Unlock()
		return errors.NotFoundf("%s %q", o.class, o.id)
	}
	delete(s.records[o.class], o.id)
	s.mu.Unlock()

	logger.Tracef("destroyed %s %q", o.class, o.id)
	_ = s.hub.Publish(o.class, change{class: o.class, before: rec})
	return nil
}
