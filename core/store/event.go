// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package store

// Op names a subscription event.
type Op string

const (
	// OpOpen is sent once the subscription handshake completes.
	OpOpen Op = "open"
	// OpCreate is sent when a matching document is created.
	OpCreate Op = "create"
	// OpUpdate is sent when a matching document changes and still matches.
	OpUpdate Op = "update"
	// OpEnter is sent when a changed document starts matching.
	OpEnter Op = "enter"
	// OpLeave is sent when a changed document stops matching.
	OpLeave Op = "leave"
	// OpDelete is sent when a matching document is deleted.
	OpDelete Op = "delete"
)

// Event is a single change delivered by a Subscription. Object is nil for
// OpOpen.
type Event struct {
	Op     Op
	Object Object
}

// Subscription delivers events in the order the server emitted them.
type Subscription interface {
	// Events returns the event channel. It is closed when the
	// subscription ends.
	Events() <-chan Event

	// Close ends the subscription.
	Close() error
}
