package otp

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// SecretRepository holds each user's base32 TOTP secret. A secret is staged on
// enrollment and kept until overwritten or discarded.
type SecretRepository interface {
	Save(ctx context.Context, userID kernel.UserID, secret string) error
	Get(ctx context.Context, userID kernel.UserID) (secret string, found bool, err error)
	Delete(ctx context.Context, userID kernel.UserID) error
}
