// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package entity holds the structural contract of mapped domain objects.
//
// A domain object is a struct embedding Base, so that a pointer to it
// satisfies Node:
//
//	type Task struct {
//		entity.Base
//		Title    string       `doc:"title"`
//		Assignee *entity.User `doc:"assignee"`
//	}
//
// The embedded Base holds the handle to the remote document backing the
// object. It is nil until the object is first saved.
package entity

import "github.com/juju/docsync/core/store"

// Node is implemented by every mapped domain object.
type Node interface {
	// Handle returns the remote document backing the object, or nil if the
	// object was never persisted.
	Handle() store.Object

	// SetHandle replaces the remote document backing the object.
	SetHandle(store.Object)
}

// Base is embedded by domain structs to satisfy Node.
type Base struct {
	handle store.Object
}

// Handle is part of the Node interface.
func (b *Base) Handle() store.Object {
	return b.handle
}

// SetHandle is part of the Node interface.
func (b *Base) SetHandle(h store.Object) {
	b.handle = h
}

// ID returns the remote identifier, empty when there is no handle or the
// handle was never saved.
func (b *Base) ID() string {
	if b.handle == nil {
		return ""
	}
	return b.handle.ID()
}

// IsNew reports whether the object has no persisted document.
func (b *Base) IsNew() bool {
	return b.ID() == ""
}

// IDOf returns the remote identifier of the node, empty when it has none.
func IDOf(n Node) string {
	if IsNil(n) {
		return ""
	}
	h := n.Handle()
	if h == nil {
		return ""
	}
	return h.ID()
}
