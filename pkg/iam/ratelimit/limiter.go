// Package ratelimit counts calls per caller in one-minute buckets and escalates
// to a captcha challenge once a caller exceeds the per-minute threshold.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/credstore"
	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/captcha"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
)

const (
	window = time.Minute
	// bucketTTL outlives the window slightly so stale buckets clean themselves up.
	bucketTTL = window + time.Second
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("RATELIMIT")

var CodeTooManyRequests = ErrRegistry.Register("TOO_MANY_REQUESTS", errx.TypeTooManyRequests, "Too many requests")

func ErrTooManyRequests() *errx.Error {
	return ErrRegistry.New(CodeTooManyRequests)
}

// ============================================================================
// Limiter
// ============================================================================

// Limiter is a fixed-window counter keyed by caller identity and minute.
type Limiter struct {
	store    credstore.Store
	captchas *captcha.Service
	limit    int
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock used to pick the bucket.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter admitting limit calls per identity per minute.
// captchas may be nil, in which case no challenge is issued.
func NewLimiter(store credstore.Store, captchas *captcha.Service, limit int, opts ...Option) *Limiter {
	l := &Limiter{store: store, captchas: captchas, limit: limit, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func bucketKey(identity string, minute int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", identity, minute)
}

// Allow counts one call for identity and returns nil while the caller is
// within the threshold. Over the threshold it returns a TOO_MANY_REQUESTS
// error and issues a captcha for ip, whose problem text is attached as the
// "captcha" detail. The rejected call still counts.
func (l *Limiter) Allow(ctx context.Context, identity, ip string) error {
	now := l.now()
	minute := now.Unix() / int64(window/time.Second)

	count, err := l.store.IncrementAndExpire(ctx, bucketKey(identity, minute), bucketTTL)
	if err != nil {
		return err
	}
	if count <= int64(l.limit) {
		return nil
	}

	retryAfter := time.Unix((minute+1)*int64(window/time.Second), 0).Sub(now)
	tooMany := ErrTooManyRequests().
		WithDetail("limit", l.limit).
		WithDetail("retry_after_seconds", int(retryAfter.Round(time.Second)/time.Second))

	logx.WithContext(ctx).WithFields(logx.Fields{
		"identity": identity,
		"ip":       ip,
		"count":    count,
	}).Warn("rate limit exceeded")

	if l.captchas != nil && ip != "" {
		problem, err := l.captchas.GenerateProblem(ctx, ip)
		if err != nil {
			logx.WithContext(ctx).WithError(err).Error("failed to issue captcha for throttled caller")
		} else {
			tooMany.WithDetail("captcha", problem)
		}
	}
	return tooMany
}
