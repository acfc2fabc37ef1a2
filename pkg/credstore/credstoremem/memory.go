package credstoremem

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/credstore"
)

type item struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// Store is an in-process credstore.Store for tests and single-node development.
type Store struct {
	mu   sync.Mutex
	m    map[string]item
	nowF func() time.Time
}

// New creates an empty store using the wall clock.
func New() *Store {
	return &Store{m: make(map[string]item), nowF: time.Now}
}

// NewWithClock creates a store whose expiry decisions use now.
func NewWithClock(now func() time.Time) *Store {
	return &Store{m: make(map[string]item), nowF: now}
}

var _ credstore.Store = (*Store)(nil)

// lookup returns the live item for key; caller holds mu.
func (s *Store) lookup(key string) (item, bool) {
	it, ok := s.m[key]
	if !ok {
		return item{}, false
	}
	if !it.expiresAt.IsZero() && !s.nowF().Before(it.expiresAt) {
		delete(s.m, key)
		return item{}, false
	}
	return it, true
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.nowF().Add(ttl)
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return credstore.ErrUnavailable("set", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = item{value: value, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, credstore.ErrUnavailable("get", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.lookup(key)
	return it.value, ok, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return credstore.ErrUnavailable("delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *Store) IncrementAndExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, credstore.ErrUnavailable("incr", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if it, ok := s.lookup(key); ok {
		parsed, err := strconv.ParseInt(it.value, 10, 64)
		if err != nil {
			return 0, credstore.ErrCorrupted(key, err)
		}
		n = parsed
	}
	n++
	s.m[key] = item{value: strconv.FormatInt(n, 10), expiresAt: s.expiry(ttl)}
	return n, nil
}

func (s *Store) Pop(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, credstore.ErrUnavailable("pop", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.lookup(key)
	if ok {
		delete(s.m, key)
	}
	return it.value, ok, nil
}

// Len returns the number of live keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.m {
		if _, ok := s.lookup(k); ok {
			n++
		}
	}
	return n
}
