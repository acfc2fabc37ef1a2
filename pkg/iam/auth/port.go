package auth

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// AuditService records security-relevant authentication events
type AuditService interface {
	LogLoginAttempt(ctx context.Context, userID kernel.UserID, method string, success bool, ip string, userAgent string)
	LogLogout(ctx context.Context, userID kernel.UserID, ip string)
	LogTokenRefresh(ctx context.Context, userID kernel.UserID, ip string)
	LogTwoFactorVerification(ctx context.Context, userID kernel.UserID, success bool, ip string)
	LogAccountCreated(ctx context.Context, userID kernel.UserID, method string, ip string)
	LogAccountLinked(ctx context.Context, userID kernel.UserID, provider string, ip string)
	LogAccessDenied(ctx context.Context, userID kernel.UserID, reason string, ip string)
}
