// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package store describes the capabilities docsync needs from a remote
// document store. Nothing here knows about the wire protocol of a
// particular backend; implementations adapt a vendor client to these
// interfaces and are injected wherever a store is needed.
package store

import "context"

const (
	// UserClass is the class name the backend uses for user documents.
	UserClass = "_User"

	// FileClass is the registry name reserved for file attachments.
	// Files are not documents, but hydration dispatches on it.
	FileClass = "File"
)

// Store is the set of operations a remote document store offers.
type Store interface {
	Sessions

	// Query returns a new query builder for the class.
	Query(className string) Query

	// NewObject returns a fresh, unsaved document of the class.
	NewObject(className string) Object

	// CreateWithoutData returns a pointer document for an existing
	// identifier. Its attributes are unavailable until it is fetched.
	CreateWithoutData(className, id string) Object

	// SaveAll persists the documents in batches of at most batchSize.
	SaveAll(ctx context.Context, objects []Object, batchSize int) error

	// FetchAllWithInclude refreshes every document, resolving the
	// pointers held in the named keys.
	FetchAllWithInclude(ctx context.Context, objects []Object, keys ...string) error

	// FetchAllIfNeededWithInclude behaves like FetchAllWithInclude but
	// skips documents whose data is already available.
	FetchAllIfNeededWithInclude(ctx context.Context, objects []Object, keys ...string) error

	// Subscribe opens a live subscription for documents matching the
	// query, authenticated with the session token.
	Subscribe(ctx context.Context, query Query, sessionToken string) (Subscription, error)
}

// Sessions exposes the process wide user session.
type Sessions interface {
	// CurrentUser returns the logged in user, or an error satisfying
	// errors.NotFound when the session is anonymous.
	CurrentUser(ctx context.Context) (User, error)

	// LogIn starts a session for the user.
	LogIn(ctx context.Context, username, password string) (User, error)

	// LogOut ends the current session.
	LogOut(ctx context.Context) error
}

// Query builds and runs a query against one class.
type Query interface {
	// ClassName returns the queried class.
	ClassName() string

	// EqualTo constrains key to the value. Document values compare by
	// identifier.
	EqualTo(key string, value any) Query

	// Include resolves the pointers held in the keys. Dotted keys
	// resolve nested pointers.
	Include(keys ...string) Query

	// IncludeAll resolves every pointer held by the results.
	IncludeAll() Query

	// Limit caps the number of results.
	Limit(n int) Query

	// Count returns the number of matching documents.
	Count(ctx context.Context) (int, error)

	// Find returns the matching documents.
	Find(ctx context.Context) ([]Object, error)

	// Get returns the matching document with the identifier, or an error
	// satisfying errors.NotFound.
	Get(ctx context.Context, id string) (Object, error)
}

// Object is a remote document: a class name, a server assigned
// identifier and a mutable attribute bag.
type Object interface {
	// ClassName returns the document class.
	ClassName() string

	// ID returns the server assigned identifier, empty until saved.
	ID() string

	// Has reports whether the key holds a value.
	Has(key string) bool

	// Get returns the value held in key. Values are scalars, Objects,
	// Files, or slices of those.
	Get(key string) any

	// Set replaces the value held in key.
	Set(key string, value any)

	// Unset removes key.
	Unset(key string)

	// Keys returns the keys holding values.
	Keys() []string

	// AddUnique appends the value to the array in key unless present.
	AddUnique(key string, value any) error

	// AddAllUnique appends each value not already present.
	AddAllUnique(key string, values []any) error

	// Remove removes every occurrence of the value from the array in key.
	Remove(key string, value any) error

	// Save persists the document and any new documents it references.
	Save(ctx context.Context) error

	// Destroy deletes the document.
	Destroy(ctx context.Context) error

	// Exists reports whether the document is persisted.
	Exists(ctx context.Context) (bool, error)

	// Fetch refreshes the attributes from the store.
	Fetch(ctx context.Context) error

	// IsDataAvailable reports whether attributes were loaded.
	IsDataAvailable() bool

	// ACL returns the access control list, nil when unset.
	ACL() *ACL

	// SetACL replaces the access control list.
	SetACL(acl *ACL)

	// Clone returns an unsaved document of the same class holding the
	// same attributes.
	Clone() Object
}

// File is a file stored by the backend.
type File interface {
	Name() string
	URL() string
}

// User is a user document.
type User interface {
	Object

	// Username returns the login name.
	Username() string

	// SessionToken returns the credential of a logged in user.
	SessionToken() string
}
