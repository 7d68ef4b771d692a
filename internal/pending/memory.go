package pending

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultTTL bounds how long an unconfirmed claim is reported as pending.
const DefaultTTL = 30 * time.Minute

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]Entry
	ttl     time.Duration
	now     func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces the store's time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an in-memory store. Entries older than ttl are
// treated as absent; ttl <= 0 selects DefaultTTL.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		entries: make(map[Key]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements Store.
func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	s.entries[e.Key()] = e
	return nil
}

// Has implements Store.
func (s *MemoryStore) Has(ctx context.Context, auctionID uint64, account common.Address) (bool, error) {
	_, err := s.Get(ctx, auctionID, account)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, auctionID uint64, account common.Address) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[Key{AuctionID: auctionID, Account: account}]
	if !ok || s.expired(e) {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, auctionID uint64, account common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, Key{AuctionID: auctionID, Account: account})
	return nil
}

// ClearTx implements Store.
func (s *MemoryStore) ClearTx(_ context.Context, e Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[e.Key()]
	if !ok || cur.TxHash != e.TxHash {
		return false, nil
	}
	delete(s.entries, e.Key())
	return true, nil
}

// List implements Store. Entries are ordered by recording time.
func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !s.expired(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out, nil
}

func (s *MemoryStore) expired(e Entry) bool {
	return s.now().Sub(e.RecordedAt) > s.ttl
}

func (s *MemoryStore) pruneLocked() {
	for k, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, k)
		}
	}
}
