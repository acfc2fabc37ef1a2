package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/credstore/credstoremem"
	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/captcha"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixed struct{}

func (fixed) Generate() (string, string) { return "10+10", "20" }

func TestLimiter_RejectsNPlusOneThenRecoversNextMinute(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	clock := func() time.Time { return now }

	store := credstoremem.NewWithClock(clock)
	captchas := captcha.NewService(fixed{}, store, 1, time.Minute)
	l := ratelimit.NewLimiter(store, captchas, 3, ratelimit.WithClock(clock))

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "user-1", "10.0.0.1"), "call %d", i+1)
	}

	err := l.Allow(ctx, "user-1", "10.0.0.1")
	require.Error(t, err)
	assert.True(t, errx.HasCode(err, ratelimit.CodeTooManyRequests))
	assert.True(t, errx.IsType(err, errx.TypeTooManyRequests))

	var e *errx.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "10+10", e.Details["captcha"])
	assert.Equal(t, 55, e.Details["retry_after_seconds"])

	blocked, err := captchas.IsBlocked(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, blocked)

	// Other identities have their own bucket.
	assert.NoError(t, l.Allow(ctx, "user-2", "10.0.0.2"))

	now = time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	assert.NoError(t, l.Allow(ctx, "user-1", "10.0.0.1"))
}

func TestLimiter_SolvedCaptchaDoesNotResetWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := credstoremem.NewWithClock(clock)
	captchas := captcha.NewService(fixed{}, store, 1, time.Minute)
	l := ratelimit.NewLimiter(store, captchas, 1, ratelimit.WithClock(clock))

	require.NoError(t, l.Allow(ctx, "u", "ip"))
	require.Error(t, l.Allow(ctx, "u", "ip"))

	require.NoError(t, captchas.Solve(ctx, "ip", "20"))

	assert.Error(t, l.Allow(ctx, "u", "ip"), "window stays over threshold")
}

func TestLimiter_WithoutCaptcha(t *testing.T) {
	ctx := context.Background()
	l := ratelimit.NewLimiter(credstoremem.New(), nil, 0)

	err := l.Allow(ctx, "u", "ip")
	var e *errx.Error
	require.ErrorAs(t, err, &e)
	assert.NotContains(t, e.Details, "captcha")
}
