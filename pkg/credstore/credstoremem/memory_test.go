package credstoremem_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/credstore/credstoremem"
	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestStore_SetGetExpires(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := credstoremem.NewWithClock(clock.Now)

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(time.Minute)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "key must be gone once ttl has elapsed")
}

func TestStore_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := credstoremem.NewWithClock(clock.Now)

	require.NoError(t, s.Set(ctx, "secret", "ABC", 0))
	clock.Advance(10 * 365 * 24 * time.Hour)

	ok, err := s.Exists(ctx, "secret")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_IncrementAndExpire(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := credstoremem.NewWithClock(clock.Now)

	for want := int64(1); want <= 3; want++ {
		n, err := s.IncrementAndExpire(ctx, "ctr", 61*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	clock.Advance(61 * time.Second)
	n, err := s.IncrementAndExpire(ctx, "ctr", 61*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "counter restarts after expiry")
}

func TestStore_IncrementNonNumeric(t *testing.T) {
	ctx := context.Background()
	s := credstoremem.New()
	require.NoError(t, s.Set(ctx, "ctr", "abc", 0))

	_, err := s.IncrementAndExpire(ctx, "ctr", time.Second)
	assert.True(t, errx.IsType(err, errx.TypeInternal))
}

func TestStore_PopRemoves(t *testing.T) {
	ctx := context.Background()
	s := credstoremem.New()
	require.NoError(t, s.Set(ctx, "captcha:1.2.3.4", "42", time.Minute))

	v, ok, err := s.Pop(ctx, "captcha:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", v)

	_, ok, err = s.Pop(ctx, "captcha:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestStore_CancelledContextIsUnavailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := credstoremem.New()
	_, _, err := s.Get(ctx, "k")
	assert.True(t, errx.IsType(err, errx.TypeUnavailable))
}
