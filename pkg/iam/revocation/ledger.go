// Package revocation keeps a denylist of session and refresh tokens that were
// withdrawn before their natural expiry.
package revocation

import (
	"context"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/credstore"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
)

const keyPrefix = "revoked:"

// Ledger records revoked tokens in the credential store. An entry lives as long
// as the longest-lived token it can refer to, after which the token's own
// expiry rejects it.
type Ledger struct {
	store credstore.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewLedger creates a ledger whose entries live for ttl, which should be the
// refresh token lifetime.
func NewLedger(store credstore.Store, ttl time.Duration) *Ledger {
	return &Ledger{store: store, ttl: ttl, now: time.Now}
}

func entryKey(token string) string { return keyPrefix + token }

// Revoke adds token to the ledger. Revoking twice refreshes the entry.
func (l *Ledger) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	revokedAt := l.now().UTC().Format(time.RFC3339)
	if err := l.store.Set(ctx, entryKey(token), revokedAt, l.ttl); err != nil {
		logx.WithContext(ctx).WithError(err).Error("failed to record token revocation")
		return err
	}
	return nil
}

// RevokeAll revokes every non-empty token, stopping at the first failure.
func (l *Ledger) RevokeAll(ctx context.Context, tokens ...string) error {
	for _, t := range tokens {
		if err := l.Revoke(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// IsRevoked reports whether token is in the ledger. A store failure yields a
// retryable error; callers must treat it as a denial.
func (l *Ledger) IsRevoked(ctx context.Context, token string) (bool, error) {
	ok, err := l.store.Exists(ctx, entryKey(token))
	if err != nil {
		return false, iam.ErrRevocationUnchecked(err)
	}
	return ok, nil
}
