// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package transcode

import (
	"fmt"

	"github.com/juju/collections/set"

	coreerrors "github.com/juju/docsync/core/errors"
	"github.com/juju/docsync/core/store"
)

// Delta is the minimal change turning one reference array into another.
type Delta struct {
	ToAdd    []store.Object
	ToRemove []store.Object
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// Diff compares references by identifier, never by value: two distinct
// documents sharing an identifier are the same reference. Desired
// documents that were never saved have no identifier and are always
// added.
func Diff(current, desired []store.Object) Delta {
	currentIDs := set.NewStrings()
	for _, obj := range current {
		if id := obj.ID(); id != "" {
			currentIDs.Add(id)
		}
	}

	var delta Delta
	desiredIDs := set.NewStrings()
	for _, obj := range desired {
		id := obj.ID()
		if id == "" {
			delta.ToAdd = append(delta.ToAdd, obj)
			continue
		}
		if desiredIDs.Contains(id) {
			continue
		}
		desiredIDs.Add(id)
		if !currentIDs.Contains(id) {
			delta.ToAdd = append(delta.ToAdd, obj)
		}
	}

	removed := set.NewStrings()
	for _, obj := range current {
		id := obj.ID()
		if id == "" || desiredIDs.Contains(id) || removed.Contains(id) {
			continue
		}
		removed.Add(id)
		delta.ToRemove = append(delta.ToRemove, obj)
	}
	return delta
}

// ApplyReferenceArray brings the reference array held in key to the
// desired references using add-unique and remove operations. When the key
// holds nothing yet every reference is added with one add-all-unique.
func ApplyReferenceArray(obj store.Object, key string, desired []any) error {
	if !obj.Has(key) || obj.Get(key) == nil {
		if err := obj.AddAllUnique(key, desired); err != nil {
			return fmt.Errorf("adding %d references to %q: %w: %w", len(desired), key, coreerrors.MutationRejected, err)
		}
		return nil
	}

	delta := Diff(References(obj.Get(key)), References(desired))
	if delta.Empty() {
		return nil
	}
	logger.Tracef("%s %q: adding %d, removing %d references", obj.ClassName(), key, len(delta.ToAdd), len(delta.ToRemove))
	for _, ref := range delta.ToAdd {
		if err := obj.AddUnique(key, ref); err != nil {
			return fmt.Errorf("adding reference %q to %q: %w: %w", ref.ID(), key, coreerrors.MutationRejected, err)
		}
	}
	for _, ref := range delta.ToRemove {
		if err := obj.Remove(key, ref); err != nil {
			return fmt.Errorf("removing reference %q from %q: %w: %w", ref.ID(), key, coreerrors.MutationRejected, err)
		}
	}
	return nil
}

// References returns the documents held in an attribute value. Other
// elements are ignored.
func References(value any) []store.Object {
	var refs []store.Object
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if obj, ok := item.(store.Object); ok {
				refs = append(refs, obj)
			}
		}
	case []store.Object:
		refs = append(refs, v...)
	}
	return refs
}
