package memory

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/frahmantamala/backoffice/internal/kvstore"
)

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Store keeps entries in a bounded expirable LRU. The LRU's own TTL is only an
// upper bound used for background cleanup; per-key expiry is checked on read.
type Store struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

var _ kvstore.Store = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the time source used for per-key expiry.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New creates a store holding at most maxEntries keys (0 means unbounded).
// maxTTL bounds how long any entry may live regardless of its own ttl.
func New(maxEntries int, maxTTL time.Duration, opts ...Option) *Store {
	if maxEntries < 0 {
		maxEntries = 0
	}
	s := &Store{
		lru: expirable.NewLRU[string, entry](maxEntries, nil, maxTTL),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e, ok := s.lru.Get(key)
	if !ok {
		return "", kvstore.ErrNotFound
	}
	if e.expired(s.now()) {
		s.lru.Remove(key)
		return "", kvstore.ErrNotFound
	}
	return e.value, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.lru.Add(key, e)
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, k := range keys {
		s.lru.Remove(k)
	}
	return nil
}

func (s *Store) KeysMatching(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	var keys []string
	for _, k := range s.lru.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		e, ok := s.lru.Peek(k)
		if !ok || e.expired(now) {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Len reports the number of entries currently held, expired or not.
func (s *Store) Len() int {
	return s.lru.Len()
}

func (s *Store) Close() error {
	s.lru.Purge()
	return nil
}
