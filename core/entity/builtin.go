// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package entity

import "github.com/juju/docsync/core/store"

// File is a file attachment. It has no identifier of its own and is only
// created by hydrating a document holding a store.File.
type File struct {
	Name string
	URL  string

	remote store.File
}

// NewFile wraps the store file.
func NewFile(f store.File) *File {
	return &File{
		Name:   f.Name(),
		URL:    f.URL(),
		remote: f,
	}
}

// Remote returns the underlying store file.
func (f *File) Remote() store.File {
	return f.remote
}

// User is the domain form of a user document.
type User struct {
	Base

	Username string `doc:"username"`
	Email    string `doc:"email"`
	Role     string `doc:"role"`
}
