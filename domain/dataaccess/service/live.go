// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"context"

	"github.com/juju/errors"

	"github.com/juju/docsync/internal/livebuffer"
)

// Live returns the live buffer of the class, populating it on first use.
// Concurrent first callers share one population. If population fails the
// error is returned together with the buffer, which stays usable: it is
// empty and its watchers never fire.
func (s *Service[T, P]) Live(ctx context.Context) (*livebuffer.Buffer, error) {
	s.mu.Lock()
	b := s.buffer
	s.mu.Unlock()
	if b != nil && b.State() != livebuffer.Uninitialized && b.State() != livebuffer.Populating {
		return b, nil
	}

	v, err, _ := s.init.Do(s.class, func() (interface{}, error) {
		b, err := s.liveBuffer()
		if err != nil {
			return nil, errors.Trace(err)
		}
		if b.State() != livebuffer.Uninitialized {
			return b, nil
		}
		return b, b.Populate(ctx)
	})
	b, _ = v.(*livebuffer.Buffer)
	if b == nil {
		return nil, errors.Trace(err)
	}
	return b, err
}

func (s *Service[T, P]) liveBuffer() (*livebuffer.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffer != nil {
		return s.buffer, nil
	}
	b, err := livebuffer.New(livebuffer.Config{
		ClassName:  s.class,
		Store:      s.store,
		Hydrator:   s.transcoder,
		Limit:      s.settings.QueryLimit,
		IncludeAll: s.settings.IncludeAll,
		MaxDepth:   s.settings.BulkDepth,
		Metrics:    s.metrics,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "creating %s live buffer", s.class)
	}
	s.buffer = b
	return b, nil
}

// Snapshot returns the objects held by the live buffer. A buffer that
// failed to initialize yields no objects and no error; the failure was
// logged and is available from the buffer's Err.
func (s *Service[T, P]) Snapshot(ctx context.Context) ([]P, error) {
	b, err := s.Live(ctx)
	if b == nil {
		return nil, errors.Trace(err)
	}
	return s.nodes(b.Snapshot()), nil
}

// Watch calls handler for every change applied to the live buffer. The
// returned func stops the calls.
func (s *Service[T, P]) Watch(ctx context.Context, handler func(livebuffer.Change)) (func(), error) {
	b, err := s.Live(ctx)
	if b == nil {
		return nil, errors.Trace(err)
	}
	return b.Watch(handler), nil
}

// Unsubscribe ends the live subscription. Cached objects stay readable.
func (s *Service[T, P]) Unsubscribe() error {
	s.mu.Lock()
	b := s.buffer
	s.mu.Unlock()
	if b == nil {
		return nil
	}
	return errors.Trace(b.Unsubscribe())
}
