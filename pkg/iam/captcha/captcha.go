// Package captcha issues arithmetic challenges to throttled callers and
// checks their answers.
package captcha

import (
	"context"
	"strings"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/credstore"
	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("CAPTCHA")

var CodeNotValid = ErrRegistry.Register("NOT_VALID", errx.TypeLogic, "Captcha answer is not valid")

func ErrNotValid() *errx.Error {
	return ErrRegistry.New(CodeNotValid)
}

// ============================================================================
// Service
// ============================================================================

// Service stores one expected answer per key (usually a client IP).
type Service struct {
	generator    Generator
	store        credstore.Store
	maxCount     int
	blockingTime time.Duration
}

// NewService creates a captcha service. maxCount is the number of wrong
// answers tolerated before the problem is replaced. Answers live for
// blockingTime.
func NewService(generator Generator, store credstore.Store, maxCount int, blockingTime time.Duration) *Service {
	if maxCount < 1 {
		maxCount = 1
	}
	return &Service{
		generator:    generator,
		store:        store,
		maxCount:     maxCount,
		blockingTime: blockingTime,
	}
}

func answerKey(key string) string   { return "captcha:" + key }
func attemptsKey(key string) string { return "captcha_attempts:" + key }

// GenerateProblem creates a new challenge for key, replacing any outstanding one.
func (s *Service) GenerateProblem(ctx context.Context, key string) (string, error) {
	problem, answer := s.generator.Generate()
	if err := s.store.Set(ctx, answerKey(key), answer, s.blockingTime); err != nil {
		return "", err
	}
	if err := s.store.Delete(ctx, attemptsKey(key)); err != nil {
		return "", err
	}
	return problem, nil
}

// CheckValue compares answer with the stored expectation for key.
//
// When nothing is stored for key the check passes. This keeps callers that
// were never challenged unaffected, but also lets an expired challenge pass;
// hardening would require the key to be present.
func (s *Service) CheckValue(ctx context.Context, key, answer string) (bool, error) {
	expected, ok, err := s.store.Get(ctx, answerKey(key))
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return strings.TrimSpace(answer) == expected, nil
}

// Unblock removes the challenge for key and returns the answer it held.
func (s *Service) Unblock(ctx context.Context, key string) (string, bool, error) {
	if err := s.store.Delete(ctx, attemptsKey(key)); err != nil {
		return "", false, err
	}
	return s.store.Pop(ctx, answerKey(key))
}

// IsBlocked reports whether key has an outstanding challenge.
func (s *Service) IsBlocked(ctx context.Context, key string) (bool, error) {
	return s.store.Exists(ctx, answerKey(key))
}

// Solve checks answer and unblocks key on success. A wrong answer yields a
// NOT_VALID error; after maxCount wrong answers a fresh problem replaces the
// old one and is returned in the error's "captcha" detail.
func (s *Service) Solve(ctx context.Context, key, answer string) error {
	ok, err := s.CheckValue(ctx, key, answer)
	if err != nil {
		return err
	}
	if ok {
		_, _, err := s.Unblock(ctx, key)
		return err
	}

	failures, err := s.store.IncrementAndExpire(ctx, attemptsKey(key), s.blockingTime)
	if err != nil {
		return err
	}
	notValid := ErrNotValid().WithDetail("attempts", failures)
	if failures >= int64(s.maxCount) {
		problem, err := s.GenerateProblem(ctx, key)
		if err != nil {
			return err
		}
		logx.WithContext(ctx).WithField("captcha_key", key).Info("captcha attempts exhausted, issued new problem")
		notValid.WithDetail("captcha", problem)
	}
	return notValid
}
