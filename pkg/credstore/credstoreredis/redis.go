package credstoreredis

import (
	"context"
	"errors"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/credstore"
	"github.com/redis/go-redis/v9"
)

const defaultCallTimeout = 2 * time.Second

// Store implements credstore.Store on Redis.
type Store struct {
	rdb     redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout bounds every Redis round trip.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithPrefix namespaces every key, e.g. "gatekeeper:".
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a Redis-backed credential store.
func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, timeout: defaultCallTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ credstore.Store = (*Store)(nil)

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return credstore.ErrUnavailable("set", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.rdb.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, credstore.ErrUnavailable("get", err)
	}
	return val, true, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.rdb.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, credstore.ErrUnavailable("exists", err)
	}
	return n > 0, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return credstore.ErrUnavailable("delete", err)
	}
	return nil
}

// IncrementAndExpire runs INCR and EXPIRE in one transaction so a counter is
// never left without a ttl.
func (s *Store) IncrementAndExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	k := s.key(key)
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, credstore.ErrUnavailable("incr", err).WithDetail("key", key)
	}
	return incr.Val(), nil
}

func (s *Store) Pop(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.rdb.GetDel(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, credstore.ErrUnavailable("pop", err)
	}
	return val, true, nil
}
