// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package errors

import "github.com/juju/errors"

const (
	// NotFound is raised when no document exists at the requested
	// identifier. It is the juju/errors sentinel, so errors created with
	// errors.NotFoundf satisfy it as well.
	NotFound = errors.NotFound

	// ClassNotRegistered is raised when a document of an unknown class is
	// hydrated.
	ClassNotRegistered = errors.ConstError("class not registered")

	// MutationRejected is raised when the store refuses a save, destroy or
	// array mutation.
	MutationRejected = errors.ConstError("mutation rejected")

	// SubscriptionInitFailure is raised when a live buffer could not load
	// its initial rows or open its subscription.
	SubscriptionInitFailure = errors.ConstError("subscription init failure")

	// MissingHandle is raised when an operation needs a persisted document
	// but the domain object was never saved.
	MissingHandle = errors.ConstError("missing document handle")
)
