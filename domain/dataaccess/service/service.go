// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"golang.org/x/sync/singleflight"

	"github.com/juju/docsync/core/entity"
	coreerrors "github.com/juju/docsync/core/errors"
	"github.com/juju/docsync/core/registry"
	"github.com/juju/docsync/core/store"
	"github.com/juju/docsync/internal/config"
	"github.com/juju/docsync/internal/livebuffer"
	"github.com/juju/docsync/internal/transcode"
)

var logger = loggo.GetLogger("docsync.dataaccess")

// Config holds the dependencies of a Service.
type Config struct {
	Store    store.Store
	Registry *registry.Registry
	// Settings defaults to config.Default() when zero.
	Settings config.Config
	// Metrics is optional.
	Metrics *livebuffer.Metrics
}

// Validate returns an error if the config cannot be used to build a
// Service.
func (c Config) Validate() error {
	if c.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if c.Registry == nil {
		return errors.NotValidf("nil Registry")
	}
	return errors.Trace(c.Settings.Validate())
}

// Service provides data access for the domain objects of one registered
// class T. Objects are handled through *T, which must implement
// entity.Node, usually by embedding entity.Base.
type Service[T any, P interface {
	*T
	entity.Node
}] struct {
	store      store.Store
	transcoder *transcode.Transcoder
	settings   config.Config
	metrics    *livebuffer.Metrics
	class      string

	init   singleflight.Group
	mu     sync.Mutex
	buffer *livebuffer.Buffer
}

// NewService returns a Service for T. T must be registered.
func NewService[T any, P interface {
	*T
	entity.Node
}](cfg Config) (*Service[T, P], error) {
	if cfg.Settings == (config.Config{}) {
		cfg.Settings = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	class, err := cfg.Registry.ClassOfType(reflect.TypeOf((*T)(nil)))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Service[T, P]{
		store:      cfg.Store,
		transcoder: transcode.New(cfg.Registry, cfg.Store),
		settings:   cfg.Settings,
		metrics:    cfg.Metrics,
		class:      class,
	}, nil
}

// ClassName returns the class served.
func (s *Service[T, P]) ClassName() string {
	return s.class
}

// Count returns the number of stored objects.
func (s *Service[T, P]) Count(ctx context.Context) (int, error) {
	n, err := s.store.Query(s.class).Count(ctx)
	if err != nil {
		return 0, errors.Annotatef(err, "counting %s", s.class)
	}
	return n, nil
}

// GetAll returns every stored object.
func (s *Service[T, P]) GetAll(ctx context.Context) ([]P, error) {
	return s.findAll(ctx, s.store.Query(s.class))
}

// GetAllWithSubclasses returns every stored object with all nested
// references resolved.
func (s *Service[T, P]) GetAllWithSubclasses(ctx context.Context) ([]P, error) {
	return s.findAll(ctx, s.store.Query(s.class).IncludeAll())
}

// GetAllWithIncludes returns every stored object with the references held
// in the keys resolved.
func (s *Service[T, P]) GetAllWithIncludes(ctx context.Context, keys ...string) ([]P, error) {
	return s.findAll(ctx, s.store.Query(s.class).Include(keys...))
}

// findAll counts first so the fetch is not cut short by the store's page
// size. When counting fails the configured query limit is used.
func (s *Service[T, P]) findAll(ctx context.Context, q store.Query) ([]P, error) {
	limit, err := s.Count(ctx)
	if err != nil {
		logger.Warningf("%v; fetching up to %d", err, s.settings.QueryLimit)
		limit = s.settings.QueryLimit
	}
	if limit == 0 {
		return nil, nil
	}
	objs, err := q.Limit(limit).Find(ctx)
	if err != nil {
		return nil, errors.Annotatef(err, "fetching %s", s.class)
	}
	return s.nodes(s.transcoder.HydrateAll(objs, 0, s.settings.BulkDepth)), nil
}

// GetByID returns the object with the id, or an error satisfying
// errors.NotFound.
func (s *Service[T, P]) GetByID(ctx context.Context, id string) (P, error) {
	return s.get(ctx, s.store.Query(s.class), id)
}

// GetFullObjectByID returns the object with the id with all nested
// references resolved.
func (s *Service[T, P]) GetFullObjectByID(ctx context.Context, id string) (P, error) {
	return s.get(ctx, s.store.Query(s.class).IncludeAll(), id)
}

// GetFullObjectByIDWithIncludes returns the object with the id with the
// references held in the keys resolved.
func (s *Service[T, P]) GetFullObjectByIDWithIncludes(ctx context.Context, id string, keys ...string) (P, error) {
	return s.get(ctx, s.store.Query(s.class).Include(keys...), id)
}

func (s *Service[T, P]) get(ctx context.Context, q store.Query, id string) (P, error) {
	obj, err := q.Get(ctx, id)
	if err != nil {
		return nil, errors.Annotatef(err, "getting %s %q", s.class, id)
	}
	return s.hydrate(obj, s.settings.FetchDepth)
}

// FetchByID fetches the object with the id without a query.
func (s *Service[T, P]) FetchByID(ctx context.Context, id string) (P, error) {
	obj := s.store.CreateWithoutData(s.class, id)
	if err := obj.Fetch(ctx); err != nil {
		return nil, errors.Annotatef(err, "fetching %s %q", s.class, id)
	}
	return s.hydrate(obj, s.settings.FetchDepth)
}

// FetchIfNeeded returns the cached object when the live buffer holds it,
// without contacting the store. Otherwise the full object is fetched; a
// missing object returns nil and no error.
func (s *Service[T, P]) FetchIfNeeded(ctx context.Context, id string) (P, error) {
	if cached := s.FetchLocally(id); cached != nil {
		return cached, nil
	}
	obj, err := s.GetFullObjectByID(ctx, id)
	if errors.Is(err, errors.NotFound) {
		logger.Debugf("%s %q not found", s.class, id)
		return nil, nil
	}
	return obj, errors.Trace(err)
}

// FetchLocally returns the cached object, or nil.
func (s *Service[T, P]) FetchLocally(id string) P {
	s.mu.Lock()
	b := s.buffer
	s.mu.Unlock()
	if b == nil {
		return nil
	}
	node, ok := b.Get(id)
	if !ok {
		return nil
	}
	p, _ := node.(P)
	return p
}

// Save persists the object and the new objects it references. Transcoding
// errors are returned. A failure to persist is logged and the object is
// returned as it was, with no error.
func (s *Service[T, P]) Save(ctx context.Context, obj P) (P, error) {
	flat, err := s.transcoder.Flatten(obj)
	if err != nil {
		return nil, errors.Annotatef(err, "transcoding %s", s.class)
	}
	if err := flat.Object.Save(ctx); err != nil {
		logger.Errorf("saving %s %q: %v", s.class, flat.Object.ID(), err)
		return obj, nil
	}
	flat.Bind()
	return obj, nil
}

// SaveMany persists the objects in batches and returns them hydrated
// from the saved documents.
func (s *Service[T, P]) SaveMany(ctx context.Context, objs []P) ([]P, error) {
	nodes := make([]entity.Node, len(objs))
	for i, obj := range objs {
		nodes[i] = obj
	}
	flats, err := s.transcoder.FlattenAll(nodes)
	if err != nil {
		return nil, errors.Annotatef(err, "transcoding %s", s.class)
	}
	docs := make([]store.Object, len(flats))
	for i, flat := range flats {
		docs[i] = flat.Object
	}
	if err := s.store.SaveAll(ctx, docs, s.settings.SaveBatchSize); err != nil {
		return nil, fmt.Errorf("saving %d %s: %w: %w", len(docs), s.class, coreerrors.MutationRejected, err)
	}
	for _, flat := range flats {
		flat.Bind()
	}
	return s.nodes(s.transcoder.HydrateAll(docs, 0, s.settings.SaveReturnDepth)), nil
}

// Destroy deletes the object. An object that was never saved returns an
// error satisfying MissingHandle; a store failure satisfies
// MutationRejected.
func (s *Service[T, P]) Destroy(ctx context.Context, obj P) error {
	if obj == nil || obj.Handle() == nil {
		return fmt.Errorf("destroying %s: %w", s.class, coreerrors.MissingHandle)
	}
	handle := obj.Handle()
	if err := handle.Destroy(ctx); err != nil {
		logger.Errorf("destroying %s %q: %v", s.class, handle.ID(), err)
		return fmt.Errorf("destroying %s %q: %w: %w", s.class, handle.ID(), coreerrors.MutationRejected, err)
	}
	return nil
}

// CheckExistence reports whether the object is persisted.
func (s *Service[T, P]) CheckExistence(ctx context.Context, obj P) (bool, error) {
	if obj == nil || obj.Handle() == nil {
		return false, nil
	}
	exists, err := obj.Handle().Exists(ctx)
	return exists, errors.Annotatef(err, "checking %s %q", s.class, obj.Handle().ID())
}

// SetACLByActiveUser grants the logged in user read and write access to
// the object and persists it.
func (s *Service[T, P]) SetACLByActiveUser(ctx context.Context, obj P) (P, error) {
	user, err := s.store.CurrentUser(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "reading active user")
	}
	flat, err := s.transcoder.Flatten(obj)
	if err != nil {
		return nil, errors.Annotatef(err, "transcoding %s", s.class)
	}
	flat.Object.SetACL(store.NewUserACL(user))
	if err := flat.Object.Save(ctx); err != nil {
		return nil, fmt.Errorf("saving %s ACL: %w: %w", s.class, coreerrors.MutationRejected, err)
	}
	flat.Bind()
	logger.Debugf("%s %q restricted to user %q", s.class, flat.Object.ID(), user.ID())
	return obj, nil
}

func (s *Service[T, P]) hydrate(obj store.Object, maxDepth int) (P, error) {
	node, err := s.transcoder.Hydrate(obj, 0, maxDepth)
	if err != nil {
		return nil, errors.Trace(err)
	}
	p, ok := node.(P)
	if !ok {
		return nil, errors.NotValidf("%T as %s", node, s.class)
	}
	return p, nil
}

func (s *Service[T, P]) nodes(nodes []entity.Node) []P {
	out := make([]P, 0, len(nodes))
	for _, node := range nodes {
		p, ok := node.(P)
		if !ok {
			logger.Warningf("skipping %T in %s results", node, s.class)
			continue
		}
		out = append(out, p)
	}
	return out
}
