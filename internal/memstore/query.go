// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package memstore

import (
	"context"
	"reflect"
	"sort"

	"github.com/juju/errors"

	"github.com/juju/docsync/core/store"
)

type constraint struct {
	key   string
	value any
}

// query builders mutate and return the receiver.
type query struct {
	store       *Store
	class       string
	constraints []constraint
	include     []string
	includeAll  bool
	limit       int
}

var _ store.Query = (*query)(nil)

// ClassName is part of the store.Query interface.
func (q *query) ClassName() string { return q.class }

// EqualTo is part of the store.Query interface. A constraint on an array
// key matches when the array contains the value.
func (q *query) EqualTo(key string, value any) store.Query {
	q.constraints = append(q.constraints, constraint{key: key, value: encode(value)})
	return q
}

// Include is part of the store.Query interface.
func (q *query) Include(keys ...string) store.Query {
	q.include = append(q.include, keys...)
	return q
}

// IncludeAll is part of the store.Query interface.
func (q *query) IncludeAll() store.Query {
	q.includeAll = true
	return q
}

// Limit is part of the store.Query interface.
func (q *query) Limit(n int) store.Query {
	q.limit = n
	return q
}

// Count is part of the store.Query interface.
func (q *query) Count(ctx context.Context) (int, error) {
	if err := q.store.takeFailure(OpCount); err != nil {
		return 0, errors.Trace(err)
	}
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	return len(q.matchingLocked()), nil
}

// Find is part of the store.Query interface. Results are ordered by
// creation time.
func (q *query) Find(ctx context.Context) ([]store.Object, error) {
	if err := q.store.takeFailure(OpFind); err != nil {
		return nil, errors.Trace(err)
	}
	s := q.store
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := q.matchingLocked()
	limit := q.limit
	if limit < 0 {
		limit = s.queryLimit
	}
	if len(recs) > limit {
		logger.Debugf("query on %s truncated to %d of %d results", q.class, limit, len(recs))
		recs = recs[:limit]
	}
	inc := q.includes()
	objs := make([]store.Object, len(recs))
	for i, rec := range recs {
		objs[i] = s.objectLocked(rec, inc)
	}
	return objs, nil
}

// Get is part of the store.Query interface.
func (q *query) Get(ctx context.Context, id string) (store.Object, error) {
	if err := q.store.takeFailure(OpGet); err != nil {
		return nil, errors.Trace(err)
	}
	s := q.store
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[q.class][id]
	if !ok || !q.matches(rec) {
		return nil, errors.NotFoundf("%s %q", q.class, id)
	}
	return s.objectLocked(rec, q.includes()), nil
}

func (q *query) matchingLocked() []*record {
	var recs []*record
	for _, rec := range q.store.records[q.class] {
		if q.matches(rec) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].createdAt.Equal(recs[j].createdAt) {
			return recs[i].createdAt.Before(recs[j].createdAt)
		}
		return recs[i].id < recs[j].id
	})
	return recs
}

func (q *query) matches(rec *record) bool {
	if rec == nil || rec.class != q.class {
		return false
	}
	for _, c := range q.constraints {
		stored, ok := rec.attrs[c.key]
		if !ok {
			return false
		}
		if items, isArray := stored.([]any); isArray {
			if containsStored(items, c.value) || reflect.DeepEqual(items, c.value) {
				continue
			}
			return false
		}
		if !reflect.DeepEqual(stored, c.value) {
			return false
		}
	}
	return true
}

func (q *query) includes() *includes {
	return newIncludes(q.include, q.includeAll)
}

func (q *query) clone() *query {
	c := *q
	c.constraints = append([]constraint(nil), q.constraints...)
	c.include = append([]string(nil), q.include...)
	return &c
}

// objectLocked returns a loaded client object for the record. The caller
// holds s.mu.
func (s *Store) objectLocked(rec *record, inc *includes) store.Object {
	obj := newObject(s, rec.class, rec.id, true)
	obj.load(s.loadRecord(rec, inc, nil))
	return obj
}
