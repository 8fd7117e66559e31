// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package registry maps document class names to the domain types they
// hydrate into.
package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/juju/docsync/core/entity"
	coreerrors "github.com/juju/docsync/core/errors"
	"github.com/juju/docsync/core/store"
)

// Builtin marks classes with their own hydration rule.
type Builtin int

const (
	// BuiltinNone is an ordinary domain class.
	BuiltinNone Builtin = iota
	// BuiltinFile hydrates with the file rule.
	BuiltinFile
	// BuiltinUser hydrates with the user rule.
	BuiltinUser
)

// Definition pairs a class name with its domain type.
type Definition struct {
	// Name is the document class name.
	Name string
	// Type is the domain struct type. It is nil for BuiltinFile.
	Type reflect.Type
	// Builtin selects a builtin hydration rule.
	Builtin Builtin
}

// New returns a new, empty domain object of the definition's type.
func (d Definition) New() entity.Node {
	if d.Type == nil {
		return nil
	}
	return reflect.New(d.Type).Interface().(entity.Node)
}

// Registry holds the class definitions. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Definition
	byType map[reflect.Type]string
}

// New returns a registry holding the builtin file and user classes.
func New() *Registry {
	r := &Registry{
		byName: make(map[string]Definition),
		byType: make(map[reflect.Type]string),
	}
	r.byName[store.FileClass] = Definition{Name: store.FileClass, Builtin: BuiltinFile}
	userType := reflect.TypeOf(entity.User{})
	r.byName[store.UserClass] = Definition{Name: store.UserClass, Type: userType, Builtin: BuiltinUser}
	r.byType[userType] = store.UserClass
	return r
}

// Register adds the class name for domain type T. *T must implement
// entity.Node.
func Register[T any, P interface {
	*T
	entity.Node
}](r *Registry, name string) error {
	return r.add(Definition{
		Name: name,
		Type: reflect.TypeOf((*T)(nil)).Elem(),
	})
}

// RegisterType adds the class name for the struct type of the prototype,
// which must be a pointer implementing entity.Node.
func (r *Registry) RegisterType(name string, prototype entity.Node) error {
	t := reflect.TypeOf(prototype)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return errors.NotValidf("prototype %T for class %q", prototype, name)
	}
	return r.add(Definition{Name: name, Type: t.Elem()})
}

func (r *Registry) add(def Definition) error {
	if def.Name == "" {
		return errors.NotValidf("empty class name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[def.Name]; ok {
		return errors.AlreadyExistsf("class %q", def.Name)
	}
	if existing, ok := r.byType[def.Type]; ok {
		return errors.AlreadyExistsf("type %v as class %q", def.Type, existing)
	}
	r.byName[def.Name] = def
	r.byType[def.Type] = def.Name
	return nil
}

// Lookup returns the definition of the class. An unknown class returns
// an error satisfying ClassNotRegistered.
func (r *Registry) Lookup(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	if !ok {
		return Definition{}, fmt.Errorf("class %q %w", name, coreerrors.ClassNotRegistered)
	}
	return def, nil
}

// ClassOf returns the class name registered for the node's type.
func (r *Registry) ClassOf(n entity.Node) (string, error) {
	t := reflect.TypeOf(n)
	if t == nil {
		return "", errors.NotValidf("nil node")
	}
	return r.ClassOfType(t)
}

// ClassOfType returns the class name registered for the struct type, or
// the struct a pointer type points to.
func (r *Registry) ClassOfType(t reflect.Type) (string, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[t]
	if !ok {
		return "", fmt.Errorf("type %v %w", t, coreerrors.ClassNotRegistered)
	}
	return name, nil
}

// Classes returns the registered class names, sorted.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := set.NewStrings()
	for name := range r.byName {
		names.Add(name)
	}
	return names.SortedValues()
}
