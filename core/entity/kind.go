// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package entity

import (
	"reflect"

	"github.com/juju/docsync/core/store"
)

// Kind classifies a field value for transcoding.
type Kind int

const (
	// KindUndefined is a nil pointer, slice, map or interface. It is
	// written as an unset, never as an absent key.
	KindUndefined Kind = iota
	// KindScalar is any value stored verbatim.
	KindScalar
	// KindReference is another domain object.
	KindReference
	// KindUser is a *User.
	KindUser
	// KindFile is a *File.
	KindFile
	// KindRemote is a value already in store form: a store.Object or a
	// store.File.
	KindRemote
	// KindReferenceArray is a slice whose first element is a reference,
	// a user or a store.Object.
	KindReferenceArray
	// KindArray is any other slice, including empty ones.
	KindArray
)

var kindNames = [...]string{
	KindUndefined:      "undefined",
	KindScalar:         "scalar",
	KindReference:      "reference",
	KindUser:           "user",
	KindFile:           "file",
	KindRemote:         "remote",
	KindReferenceArray: "reference-array",
	KindArray:          "array",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Classify decides the kind of a value. Slices are classified by their
// first element only: a mixed slice led by a scalar, or an empty slice, is
// a plain KindArray.
func Classify(v any) Kind {
	if IsNil(v) {
		return KindUndefined
	}
	switch v.(type) {
	case *User:
		return KindUser
	case *File:
		return KindFile
	case Node:
		return KindReference
	case store.Object, store.File:
		return KindRemote
	case []byte:
		return KindScalar
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return KindScalar
	}
	if rv.Len() == 0 {
		return KindArray
	}
	first := rv.Index(0).Interface()
	switch Classify(first) {
	case KindReference, KindUser:
		return KindReferenceArray
	case KindRemote:
		if _, ok := first.(store.Object); ok {
			return KindReferenceArray
		}
	}
	return KindArray
}

// IsNil reports whether v is nil or a nil pointer, slice, map, channel,
// func or interface.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
