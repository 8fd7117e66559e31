// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package livebuffer

import (
	"encoding/json"

	"github.com/juju/docsync/core/entity"
	"github.com/juju/docsync/core/store"
)

const (
	changeTopic   = "change"
	relationTopic = "relation"
)

// Change is a normalized event published by a buffer once the cache has
// been updated. For leave and delete, Node is the value the cache held
// before removal.
type Change struct {
	Class string
	Op    store.Op
	ID    string
	Node  entity.Node
}

// MarshalJSON implements json.Marshaler. A change is encoded as
// ["class", "op", "id", node].
func (c Change) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{c.Class, c.Op, c.ID, c.Node})
}

// RelationChange is published on the relation stream when a field of a
// cached node was patched from a foreign buffer.
type RelationChange struct {
	// Relation names the binding.
	Relation string
	// Op is always update: the owner changed.
	Op      store.Op
	OwnerID string
	Owner   entity.Node
	// Foreign is the event that caused the patch.
	Foreign Change
}
