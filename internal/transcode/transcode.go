// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package transcode converts between domain object graphs and remote
// document graphs.
//
// Flattening walks a domain object and writes its fields into the backing
// document, creating documents for objects that were never saved.
// Hydration walks a document and builds the registered domain type for
// it, recursing into nested documents until a depth limit is reached.
// Neither direction performs network calls.
package transcode

import (
	"github.com/juju/loggo/v2"

	"github.com/juju/docsync/core/registry"
	"github.com/juju/docsync/core/store"
)

var logger = loggo.GetLogger("docsync.transcode")

const (
	// DefaultMaxDepth is the hydration depth for single object fetches.
	DefaultMaxDepth = 3

	// DefaultBulkMaxDepth is the hydration depth for bulk fetches.
	DefaultBulkMaxDepth = 2
)

// Transcoder flattens and hydrates objects of registered classes.
type Transcoder struct {
	registry *registry.Registry
	store    store.Store
}

// New returns a Transcoder resolving classes through the registry and
// creating new documents through the store.
func New(reg *registry.Registry, st store.Store) *Transcoder {
	return &Transcoder{
		registry: reg,
		store:    st,
	}
}

// Registry returns the class registry used by the transcoder.
func (t *Transcoder) Registry() *registry.Registry {
	return t.registry
}
