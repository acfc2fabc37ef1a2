package authinfra

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
)

// LogxAuditService implements auth.AuditService using structured logx logging.
type LogxAuditService struct {
	logger *logx.Logger
}

// NewLogxAuditService writes audit events to logger, or to the package
// default logger when logger is nil.
func NewLogxAuditService(logger *logx.Logger) *LogxAuditService {
	return &LogxAuditService{logger: logger}
}

func (s *LogxAuditService) entry(ctx context.Context, event string, fields logx.Fields) *logx.Entry {
	l := s.logger
	if l == nil {
		l = logx.GetDefaultLogger()
	}
	fields["audit_event"] = event
	return l.WithContext(ctx).WithFields(fields)
}

func (s *LogxAuditService) LogLoginAttempt(ctx context.Context, userID kernel.UserID, method string, success bool, ip string, userAgent string) {
	e := s.entry(ctx, "login_attempt", logx.Fields{
		"user_id":    userID,
		"method":     method,
		"success":    success,
		"ip":         ip,
		"user_agent": userAgent,
	})
	if success {
		e.Info("Audit: login attempt")
		return
	}
	e.Warn("Audit: login attempt")
}

func (s *LogxAuditService) LogLogout(ctx context.Context, userID kernel.UserID, ip string) {
	s.entry(ctx, "logout", logx.Fields{
		"user_id": userID,
		"ip":      ip,
	}).Info("Audit: logout")
}

func (s *LogxAuditService) LogTokenRefresh(ctx context.Context, userID kernel.UserID, ip string) {
	s.entry(ctx, "token_refresh", logx.Fields{
		"user_id": userID,
		"ip":      ip,
	}).Info("Audit: token refresh")
}

func (s *LogxAuditService) LogTwoFactorVerification(ctx context.Context, userID kernel.UserID, success bool, ip string) {
	s.entry(ctx, "two_factor_verification", logx.Fields{
		"user_id": userID,
		"success": success,
		"ip":      ip,
	}).Info("Audit: two-factor verification")
}

func (s *LogxAuditService) LogAccountCreated(ctx context.Context, userID kernel.UserID, method string, ip string) {
	s.entry(ctx, "account_created", logx.Fields{
		"user_id": userID,
		"method":  method,
		"ip":      ip,
	}).Info("Audit: account created")
}

func (s *LogxAuditService) LogAccountLinked(ctx context.Context, userID kernel.UserID, provider string, ip string) {
	s.entry(ctx, "account_linked", logx.Fields{
		"user_id":  userID,
		"provider": provider,
		"ip":       ip,
	}).Info("Audit: account linked")
}

func (s *LogxAuditService) LogAccessDenied(ctx context.Context, userID kernel.UserID, reason string, ip string) {
	s.entry(ctx, "access_denied", logx.Fields{
		"user_id": userID,
		"reason":  reason,
		"ip":      ip,
	}).Warn("Audit: access denied")
}
