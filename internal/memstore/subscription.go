// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package memstore

import (
	"sync"

	"github.com/juju/docsync/core/store"
)

const eventBuffer = 64

// subscription turns store changes on one class into live query events.
type subscription struct {
	store *Store
	query *query

	events chan store.Event
	done   chan struct{}
	unsub  func()

	// mu guards closed and sends on events.
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func newSubscription(s *Store, q *query) *subscription {
	sub := &subscription{
		store:  s,
		query:  q,
		events: make(chan store.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	sub.events <- store.Event{Op: store.OpOpen}
	sub.unsub = s.hub.Subscribe(q.class, sub.onChange)
	return sub
}

// Events is part of the store.Subscription interface.
func (sub *subscription) Events() <-chan store.Event {
	return sub.events
}

// Close is part of the store.Subscription interface.
func (sub *subscription) Close() error {
	sub.closeOnce.Do(func() {
		close(sub.done)
		sub.unsub()

		sub.mu.Lock()
		defer sub.mu.Unlock()
		sub.closed = true
		close(sub.events)
	})
	return nil
}

func (sub *subscription) onChange(topic string, data interface{}) {
	ch, ok := data.(change)
	if !ok {
		logger.Errorf("unexpected change type %T on %q", data, topic)
		return
	}
	matchedBefore := ch.before != nil && sub.query.matches(ch.before)
	matchedAfter := ch.after != nil && sub.query.matches(ch.after)

	var (
		op  store.Op
		rec *record
	)
	switch {
	case ch.before == nil && matchedAfter:
		op, rec = store.OpCreate, ch.after
	case ch.after == nil && matchedBefore:
		op, rec = store.OpDelete, ch.before
	case matchedBefore && matchedAfter:
		op, rec = store.OpUpdate, ch.after
	case !matchedBefore && matchedAfter:
		op, rec = store.OpEnter, ch.after
	case matchedBefore && !matchedAfter:
		op, rec = store.OpLeave, ch.after
	default:
		return
	}

	s := sub.store
	s.mu.Lock()
	obj := s.objectLocked(rec, sub.query.includes())
	s.mu.Unlock()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	select {
	case sub.events <- store.Event{Op: op, Object: obj}:
	case <-sub.done:
	}
}
