// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package entity

import (
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// TagName is the struct tag naming the document key of a field.
const TagName = "doc"

var baseType = reflect.TypeOf(Base{})

// Field describes a struct field mapped to a document key.
type Field struct {
	// Name is the Go field name.
	Name string
	// Key is the document key.
	Key string
	// Index is the field index path for reflect.Value.FieldByIndex.
	Index []int
	// Type is the field type.
	Type reflect.Type
}

var fieldCache sync.Map // map[reflect.Type][]Field

// Fields returns the mapped fields of a struct type, or of the struct a
// pointer type points to. Unexported fields, the embedded Base and fields
// tagged `doc:"-"` are not mapped. Other embedded structs contribute their
// fields.
func Fields(t reflect.Type) []Field {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]Field)
	}
	fields := collectFields(t, nil)
	cached, _ := fieldCache.LoadOrStore(t, fields)
	return cached.([]Field)
}

// FieldByKey returns the field of the struct type mapped to key.
func FieldByKey(t reflect.Type, key string) (Field, bool) {
	for _, f := range Fields(t) {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// StructValue returns the addressable struct behind a node.
func StructValue(n Node) reflect.Value {
	rv := reflect.ValueOf(n)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}

func collectFields(t reflect.Type, parent []int) []Field {
	var fields []Field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), parent...), i)
		if sf.Anonymous {
			if sf.Type == baseType {
				continue
			}
			if sf.Type.Kind() == reflect.Struct && sf.IsExported() {
				fields = append(fields, collectFields(sf.Type, index)...)
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		key := sf.Tag.Get(TagName)
		if key == "-" {
			continue
		}
		if idx := strings.IndexByte(key, ','); idx >= 0 {
			key = key[:idx]
		}
		if key == "" {
			key = lowerFirst(sf.Name)
		}
		fields = append(fields, Field{
			Name:  sf.Name,
			Key:   key,
			Index: index,
			Type:  sf.Type,
		})
	}
	return fields
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
