// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package livebuffer keeps a keyed in-memory cache of one document class in
// step with the store's live query events.
//
// A Buffer starts Uninitialized. Populate runs the bulk query, rebuilds the
// cache and opens the subscription; from then on the buffer is Live and a
// single goroutine applies events in the order the store emitted them.
// Consumers observe normalized changes through Watch. Unsubscribe (or Kill)
// ends the subscription; the cache stays readable as a stale snapshot.
package livebuffer

import (
	"context"
	"fmt"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"
	"gopkg.in/tomb.v2"

	"github.com/juju/docsync/core/entity"
	coreerrors "github.com/juju/docsync/core/errors"
	"github.com/juju/docsync/core/store"
)

var logger = loggo.GetLogger("docsync.livebuffer")

const (
	// DefaultLimit bounds the bulk query run by Populate.
	DefaultLimit = 100000

	// DefaultMaxDepth is the hydration depth of cached nodes.
	DefaultMaxDepth = 2
)

// State is the lifecycle state of a Buffer.
type State int

const (
	Uninitialized State = iota
	Populating
	Live
	Unsubscribed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Populating:
		return "populating"
	case Live:
		return "live"
	case Unsubscribed:
		return "unsubscribed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Hydrator converts documents into domain nodes.
type Hydrator interface {
	Hydrate(obj store.Object, depth, maxDepth int) (entity.Node, error)
}

// Config holds the dependencies and settings of a Buffer.
type Config struct {
	ClassName string
	Store     store.Store
	Hydrator  Hydrator

	// Limit bounds the bulk query. Zero means DefaultLimit.
	Limit int
	// IncludeAll resolves every nested reference of the cached documents.
	IncludeAll bool
	// MaxDepth is the hydration depth of cached nodes. Zero means
	// DefaultMaxDepth.
	MaxDepth int

	// Metrics is optional.
	Metrics *Metrics
}

// Validate returns an error if the config cannot be used to start a
// Buffer.
func (config Config) Validate() error {
	if config.ClassName == "" {
		return errors.NotValidf("empty ClassName")
	}
	if config.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if config.Hydrator == nil {
		return errors.NotValidf("nil Hydrator")
	}
	if config.Limit < 0 {
		return errors.NotValidf("negative Limit %d", config.Limit)
	}
	if config.MaxDepth < 0 {
		return errors.NotValidf("negative MaxDepth %d", config.MaxDepth)
	}
	return nil
}

// Buffer is the live cache of one class. It implements worker.Worker.
type Buffer struct {
	tomb   tomb.Tomb
	config Config
	hub    *pubsub.SimpleHub

	// subscribed hands the opened subscription to the loop.
	subscribed chan store.Subscription

	mu    sync.Mutex
	state State
	err   error
	ids   []string
	nodes map[string]entity.Node
}

// New returns an Uninitialized Buffer.
func New(config Config) (*Buffer, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Limit == 0 {
		config.Limit = DefaultLimit
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = DefaultMaxDepth
	}
	b := &Buffer{
		config: config,
		hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: loggo.GetLogger("docsync.livebuffer.hub"),
		}),
		subscribed: make(chan store.Subscription),
		nodes:      make(map[string]entity.Node),
	}
	b.tomb.Go(b.loop)
	return b, nil
}

// ClassName returns the cached class.
func (b *Buffer) ClassName() string {
	return b.config.ClassName
}

// Populate fills the cache with the bulk query and opens the live
// subscription. The cache is readable as soon as Populate returns; the
// subscription handshake completes in the background.
//
// On failure the cache is emptied, the buffer becomes Unsubscribed and the
// returned error satisfies SubscriptionInitFailure. Watchers stay valid and
// simply receive nothing. No retry is attempted.
func (b *Buffer) Populate(ctx context.Context) error {
	b.mu.Lock()
	if b.state != Uninitialized {
		state := b.state
		b.mu.Unlock()
		return errors.NotValidf("populating %s buffer in state %s", b.config.ClassName, state)
	}
	b.state = Populating
	b.mu.Unlock()

	class := b.config.ClassName
	logger.Debugf("populating %s (limit %d)", class, b.config.Limit)

	query := b.config.Store.Query(class).Limit(b.config.Limit)
	if b.config.IncludeAll {
		query = query.IncludeAll()
	}
	objs, err := query.Find(ctx)
	if err != nil {
		return b.fail(errors.Annotatef(err, "querying %s", class))
	}

	ids := make([]string, 0, len(objs))
	nodes := make(map[string]entity.Node, len(objs))
	for _, obj := range objs {
		node, err := b.config.Hydrator.Hydrate(obj, 0, b.config.MaxDepth)
		if err != nil {
			logger.Warningf("skipping %s %q: %v", class, obj.ID(), err)
			continue
		}
		if _, ok := nodes[obj.ID()]; !ok {
			ids = append(ids, obj.ID())
		}
		nodes[obj.ID()] = node
	}

	b.mu.Lock()
	if b.state != Populating {
		b.mu.Unlock()
		return errors.Errorf("%s buffer stopped while populating", class)
	}
	b.ids = ids
	b.nodes = nodes
	b.state = Live
	b.mu.Unlock()
	b.config.Metrics.setSize(class, len(ids))
	logger.Debugf("populated %s with %d objects", class, len(ids))

	var token string
	user, err := b.config.Store.CurrentUser(ctx)
	switch {
	case errors.Is(err, errors.NotFound):
	case err != nil:
		return b.fail(errors.Annotate(err, "reading session"))
	default:
		token = user.SessionToken()
	}

	sub, err := b.config.Store.Subscribe(ctx, query, token)
	if err != nil {
		return b.fail(errors.Annotatef(err, "subscribing to %s", class))
	}
	select {
	case b.subscribed <- sub:
	case <-b.tomb.Dying():
		_ = sub.Close()
		return errors.Errorf("%s buffer stopped while subscribing", class)
	}
	return nil
}

// fail resets the cache after a failed initialization.
func (b *Buffer) fail(err error) error {
	b.mu.Lock()
	b.ids = nil
	b.nodes = make(map[string]entity.Node)
	b.state = Unsubscribed
	b.err = err
	b.mu.Unlock()
	b.config.Metrics.setSize(b.config.ClassName, 0)

	logger.Errorf("initializing %s buffer: %v", b.config.ClassName, err)
	b.tomb.Kill(nil)
	return fmt.Errorf("%s buffer: %w: %w", b.config.ClassName, coreerrors.SubscriptionInitFailure, err)
}

func (b *Buffer) loop() error {
	var (
		sub    store.Subscription
		events <-chan store.Event
	)
	defer func() {
		if sub != nil {
			if err := sub.Close(); err != nil {
				logger.Warningf("closing %s subscription: %v", b.config.ClassName, err)
			}
		}
		b.mu.Lock()
		b.state = Unsubscribed
		b.mu.Unlock()
		logger.Debugf("%s buffer unsubscribed", b.config.ClassName)
	}()

	for {
		select {
		case <-b.tomb.Dying():
			return tomb.ErrDying
		case sub = <-b.subscribed:
			events = sub.Events()
		case ev, ok := <-events:
			if !ok {
				logger.Debugf("%s subscription closed by the store", b.config.ClassName)
				return nil
			}
			b.apply(ev)
		}
	}
}

// apply updates the cache for one event and publishes the normalized
// change.
func (b *Buffer) apply(ev store.Event) {
	class := b.config.ClassName
	b.config.Metrics.observe(class, ev.Op)

	switch ev.Op {
	case store.OpOpen:
		logger.Debugf("%s subscription open", class)
		return
	case store.OpCreate, store.OpEnter, store.OpUpdate:
		if ev.Object == nil {
			logger.Warningf("%s %s event without object", class, ev.Op)
			return
		}
		id := ev.Object.ID()
		node, err := b.config.Hydrator.Hydrate(ev.Object, 0, b.config.MaxDepth)
		if err != nil {
			logger.Warningf("dropping %s event for %s %q: %v", ev.Op, class, id, err)
			return
		}
		b.mu.Lock()
		if _, ok := b.nodes[id]; !ok {
			// An update for an unknown id is inserted, like enter.
			b.ids = append(b.ids, id)
		}
		b.nodes[id] = node
		size := len(b.ids)
		b.mu.Unlock()
		b.config.Metrics.setSize(class, size)

		logger.Tracef("%s %s %q", class, ev.Op, id)
		b.publish(Change{Class: class, Op: ev.Op, ID: id, Node: node})

	case store.OpLeave, store.OpDelete:
		if ev.Object == nil {
			logger.Warningf("%s %s event without object", class, ev.Op)
			return
		}
		id := ev.Object.ID()
		b.mu.Lock()
		prior, ok := b.nodes[id]
		b.mu.Unlock()
		if !ok {
			logger.Debugf("ignoring %s for uncached %s %q", ev.Op, class, id)
			return
		}

		logger.Tracef("%s %s %q", class, ev.Op, id)
		b.publish(Change{Class: class, Op: ev.Op, ID: id, Node: prior})

		b.mu.Lock()
		delete(b.nodes, id)
		b.ids = removeID(b.ids, id)
		size := len(b.ids)
		b.mu.Unlock()
		b.config.Metrics.setSize(class, size)

	default:
		logger.Warningf("unknown %s event %q", class, ev.Op)
	}
}

func (b *Buffer) publish(change Change) {
	_ = b.hub.Publish(changeTopic, change)
}

func removeID(ids []string, id string) []string {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// Watch calls handler for every change applied to the cache, in order.
// The returned func stops the calls.
func (b *Buffer) Watch(handler func(Change)) func() {
	return b.hub.Subscribe(changeTopic, func(topic string, data interface{}) {
		change, ok := data.(Change)
		if !ok {
			logger.Criticalf("programming error: topic data expected Change, got %T", data)
			return
		}
		handler(change)
	})
}

// Get returns the cached node for the id.
func (b *Buffer) Get(id string) (entity.Node, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	node, ok := b.nodes[id]
	return node, ok
}

// Snapshot returns the cached nodes in insertion order.
func (b *Buffer) Snapshot() []entity.Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	nodes := make([]entity.Node, len(b.ids))
	for i, id := range b.ids {
		nodes[i] = b.nodes[id]
	}
	return nodes
}

// Len returns the number of cached nodes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ids)
}

// State returns the lifecycle state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the initialization failure, if any.
func (b *Buffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Report returns information about the buffer for introspection.
func (b *Buffer) Report() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	report := map[string]interface{}{
		"class": b.config.ClassName,
		"state": b.state.String(),
		"size":  len(b.ids),
	}
	if b.err != nil {
		report["error"] = b.err.Error()
	}
	return report
}

// Unsubscribe ends the live subscription. The cache keeps its last
// contents.
func (b *Buffer) Unsubscribe() error {
	b.Kill()
	return b.Wait()
}

// Kill is part of the worker.Worker interface.
func (b *Buffer) Kill() {
	b.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (b *Buffer) Wait() error {
	return b.tomb.Wait()
}
