// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package memstore is an in-memory document store implementing the
// store capability interfaces. It behaves like a small backend: it assigns
// identifiers, resolves pointers on include, applies array operations on
// the server side, keeps sessions and pushes live query events, including
// enter and leave transitions for constrained queries.
//
// It is used to exercise docsync in tests and in the demonstration
// command; it keeps nothing on disk.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/mgo/v3/bson"
	"github.com/juju/pubsub/v2"

	"github.com/juju/docsync/core/store"
)

var logger = loggo.GetLogger("docsync.memstore")

const (
	// DefaultQueryLimit is the page size of queries without a limit.
	DefaultQueryLimit = 100

	// DefaultBatchSize is used by SaveAll when no batch size is given.
	DefaultBatchSize = 20
)

// Operation names a store operation for failure injection.
type Operation string

const (
	OpSave      Operation = "save"
	OpDestroy   Operation = "destroy"
	OpFetch     Operation = "fetch"
	OpFind      Operation = "find"
	OpCount     Operation = "count"
	OpGet       Operation = "get"
	OpSubscribe Operation = "subscribe"
	OpAddUnique Operation = "add-unique"
	OpRemove    Operation = "remove"
)

// Config holds the optional settings of a Store.
type Config struct {
	// Clock stamps created and updated times. Defaults to the wall clock.
	Clock clock.Clock
	// FileBaseURL prefixes the URL of stored files.
	FileBaseURL string
	// QueryLimit is the page size of queries without a limit.
	QueryLimit int
}

// Store is an in-memory document store.
type Store struct {
	clock      clock.Clock
	hub        *pubsub.SimpleHub
	fileURL    string
	queryLimit int

	mu       sync.Mutex
	records  map[string]map[string]*record
	accounts map[string]account
	sessions map[string]string
	current  string
	failures map[Operation][]error
}

type account struct {
	userID   string
	password string
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New(config Config) *Store {
	if config.Clock == nil {
		config.Clock = clock.WallClock
	}
	if config.FileBaseURL == "" {
		config.FileBaseURL = "memstore://files"
	}
	if config.QueryLimit <= 0 {
		config.QueryLimit = DefaultQueryLimit
	}
	return &Store{
		clock:      config.Clock,
		fileURL:    config.FileBaseURL,
		queryLimit: config.QueryLimit,
		hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: loggo.GetLogger("docsync.memstore.hub"),
		}),
		records:  make(map[string]map[string]*record),
		accounts: make(map[string]account),
		sessions: make(map[string]string),
		failures: make(map[Operation][]error),
	}
}

// FailNext makes the next call of the operation fail with err.
func (s *Store) FailNext(op Operation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

func (s *Store) takeFailure(op Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queued := s.failures[op]
	if len(queued) == 0 {
		return nil
	}
	s.failures[op] = queued[1:]
	return queued[0]
}

// Len returns the number of stored documents of the class.
func (s *Store) Len(className string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[className])
}

// Query is part of the store.Store interface.
func (s *Store) Query(className string) store.Query {
	return &query{
		store: s,
		class: className,
		limit: -1,
	}
}

// NewObject is part of the store.Store interface.
func (s *Store) NewObject(className string) store.Object {
	return newObject(s, className, "", true)
}

// CreateWithoutData is part of the store.Store interface.
func (s *Store) CreateWithoutData(className, id string) store.Object {
	return newObject(s, className, id, false)
}

// NewFile stores the data as a file and returns it.
func (s *Store) NewFile(name string, data []byte) store.File {
	id := bson.NewObjectId().Hex()
	return &file{
		name: name,
		url:  s.fileURL + "/" + id + "_" + name,
		data: append([]byte(nil), data...),
	}
}

// SaveAll is part of the store.Store interface.
func (s *Store) SaveAll(ctx context.Context, objects []store.Object, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	for start := 0; start < len(objects); start += batchSize {
		end := start + batchSize
		if end > len(objects) {
			end = len(objects)
		}
		logger.Tracef("saving batch of %d objects", end-start)
		for _, obj := range objects[start:end] {
			if err := obj.Save(ctx); err != nil {
				return errors.Annotatef(err, "saving batch at %d", start)
			}
		}
	}
	return nil
}

// FetchAllWithInclude is part of the store.Store interface.
func (s *Store) FetchAllWithInclude(ctx context.Context, objects []store.Object, keys ...string) error {
	return s.fetchAll(objects, false, keys)
}

// FetchAllIfNeededWithInclude is part of the store.Store interface.
func (s *Store) FetchAllIfNeededWithInclude(ctx context.Context, objects []store.Object, keys ...string) error {
	return s.fetchAll(objects, true, keys)
}

func (s *Store) fetchAll(objects []store.Object, ifNeeded bool, keys []string) error {
	if err := s.takeFailure(OpFetch); err != nil {
		return errors.Trace(err)
	}
	includes := newIncludes(keys, false)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range objects {
		o, err := s.own(obj)
		if err != nil {
			return errors.Trace(err)
		}
		if ifNeeded && o.available {
			continue
		}
		rec, ok := s.records[o.class][o.id]
		if !ok {
			return errors.NotFoundf("%s %q", o.class, o.id)
		}
		o.load(s.loadRecord(rec, includes, nil))
	}
	return nil
}

// Subscribe is part of the store.Store interface.
func (s *Store) Subscribe(ctx context.Context, q store.Query, sessionToken string) (store.Subscription, error) {
	if err := s.takeFailure(OpSubscribe); err != nil {
		return nil, errors.Trace(err)
	}
	mq, ok := q.(*query)
	if !ok || mq.store != s {
		return nil, errors.NotSupportedf("query %T from another store", q)
	}
	if sessionToken != "" {
		s.mu.Lock()
		_, known := s.sessions[sessionToken]
		s.mu.Unlock()
		if !known {
			return nil, errors.Unauthorizedf("invalid session token")
		}
	}
	return newSubscription(s, mq.clone()), nil
}

// SignUp creates a user account and logs it in.
func (s *Store) SignUp(ctx context.Context, username, password, email, role string) (store.User, error) {
	s.mu.Lock()
	if _, ok := s.accounts[username]; ok {
		s.mu.Unlock()
		return nil, errors.AlreadyExistsf("user %q", username)
	}
	s.mu.Unlock()

	obj := newObject(s, store.UserClass, "", true)
	obj.Set("username", username)
	obj.Set("email", email)
	obj.Set("role", role)
	if err := obj.Save(ctx); err != nil {
		return nil, errors.Annotatef(err, "signing up %q", username)
	}

	s.mu.Lock()
	s.accounts[username] = account{userID: obj.id, password: password}
	s.mu.Unlock()
	return s.LogIn(ctx, username, password)
}

// LogIn is part of the store.Sessions interface.
func (s *Store) LogIn(ctx context.Context, username, password string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[username]
	if !ok || acct.password != password {
		return nil, errors.Unauthorizedf("invalid username or password")
	}
	token := "r:" + uuid.NewString()
	s.sessions[token] = acct.userID
	s.current = token
	return s.userLocked(token)
}

// LogOut is part of the store.Sessions interface.
func (s *Store) LogOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, s.current)
	s.current = ""
	return nil
}

// CurrentUser is part of the store.Sessions interface.
func (s *Store) CurrentUser(ctx context.Context) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return nil, errors.NotFoundf("current user")
	}
	return s.userLocked(s.current)
}

func (s *Store) userLocked(token string) (store.User, error) {
	id := s.sessions[token]
	rec, ok := s.records[store.UserClass][id]
	if !ok {
		return nil, errors.NotFoundf("user %q", id)
	}
	obj := newObject(s, store.UserClass, id, true)
	obj.load(s.loadRecord(rec, nil, nil))
	return &userObject{object: obj, token: token}, nil
}

// own returns the memstore object behind a store.Object.
func (s *Store) own(obj store.Object) (*object, error) {
	switch o := obj.(type) {
	case *object:
		if o.store == s {
			return o, nil
		}
	case *userObject:
		if o.store == s {
			return o.object, nil
		}
	}
	return nil, errors.NotSupportedf("object %T from another store", obj)
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

func newID() string {
	return bson.NewObjectId().Hex()
}
