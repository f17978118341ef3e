// Package memory provides an in-memory storage.RequestLog. Records are lost
// when the process restarts. A size limit turns the log into a ring that
// evicts the oldest record first.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/rhuss/rabbithole/pkg/storage"
)

// Store is an in-memory RequestLog.
type Store struct {
	mu      sync.RWMutex
	ids     map[string]*list.Element
	order   *list.List // front = newest
	maxSize int        // 0 = unlimited
	closed  bool
}

var _ storage.RequestLog = (*Store)(nil)

// New creates an in-memory request log. If maxSize is 0 the log grows
// without limit.
func New(maxSize int) *Store {
	return &Store{
		ids:     make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Save stores a copy of rec.
func (s *Store) Save(_ context.Context, rec *storage.RequestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if _, exists := s.ids[rec.ID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && s.order.Len() >= s.maxSize {
		s.evictOldest()
	}

	cp := *rec
	s.ids[rec.ID] = s.order.PushFront(&cp)
	return nil
}

// List returns up to limit records, newest first, scoped to the caller's
// tenant when one is set.
func (s *Store) List(ctx context.Context, limit int) ([]*storage.RequestRecord, error) {
	limit = storage.ClampLimit(limit)
	tenant := storage.CallerFromContext(ctx).Tenant

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	out := make([]*storage.RequestRecord, 0, min(limit, s.order.Len()))
	for e := s.order.Front(); e != nil && len(out) < limit; e = e.Next() {
		rec := e.Value.(*storage.RequestRecord)
		if tenant != "" && rec.Tenant != tenant {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

// HealthCheck always succeeds for an open store.
func (s *Store) HealthCheck(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

// Close drops all records.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.ids = make(map[string]*list.Element)
	s.order.Init()
	return nil
}

// evictOldest removes the oldest record. Caller must hold the write lock.
func (s *Store) evictOldest() {
	back := s.order.Back()
	if back == nil {
		return
	}
	rec := s.order.Remove(back).(*storage.RequestRecord)
	delete(s.ids, rec.ID)
}
