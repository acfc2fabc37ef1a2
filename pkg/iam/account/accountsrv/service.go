package accountsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/account"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/captcha"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/federation"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/otp"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/otp/otpsrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/revocation"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/token"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
)

// Deps are the collaborators of the account service. Roles defaults to
// Users when the directory also stores roles. Captchas, Jobs and Alerts are
// optional. Without Captchas registration is never challenged.
// Without Jobs login history and alerts are written inline. Without Alerts
// no security email is sent.
type Deps struct {
	Users      user.Directory
	Roles      user.RoleRepository
	Hasher     user.PasswordHasher
	History    user.LoginHistoryRepository
	Codec      *token.Codec
	Ledger     *revocation.Ledger
	Gate       *auth.Gate
	TwoFactor  *otpsrv.TwoFactorService
	Federation *federation.Client
	Captchas   *captcha.Service
	Jobs       jobx.Enqueuer
	Alerts     *AlertMailer
	Audit      auth.AuditService
}

// Service runs the account flows on top of the authentication core.
type Service struct {
	users      user.Directory
	roles      user.RoleRepository
	hasher     user.PasswordHasher
	history    user.LoginHistoryRepository
	codec      *token.Codec
	ledger     *revocation.Ledger
	gate       *auth.Gate
	twoFactor  *otpsrv.TwoFactorService
	federation *federation.Client
	captchas   *captcha.Service
	jobs       jobx.Enqueuer
	alerts     *AlertMailer
	audit      auth.AuditService
	now        func() time.Time
}

type Option func(*Service)

// WithClock replaces the wall clock used for entity timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(deps Deps, opts ...Option) *Service {
	roles := deps.Roles
	if roles == nil {
		roles, _ = deps.Users.(user.RoleRepository)
	}
	s := &Service{
		users:      deps.Users,
		roles:      roles,
		hasher:     deps.Hasher,
		history:    deps.History,
		codec:      deps.Codec,
		ledger:     deps.Ledger,
		gate:       deps.Gate,
		twoFactor:  deps.TwoFactor,
		federation: deps.Federation,
		captchas:   deps.Captchas,
		jobs:       deps.Jobs,
		alerts:     deps.Alerts,
		audit:      deps.Audit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
// Registration & sign-in
// ============================================================================

// Register creates a password account with the user role.
func (s *Service) Register(ctx context.Context, req account.RegisterRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.CheckCaptcha(ctx, req.IP, req.Captcha); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByLoginOrEmail(ctx, req.Login, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, user.ErrAlreadyExists()
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	u := user.NewUser(req.Login, req.Email, hash, iam.RoleUserID, s.now().UTC())
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	s.audit.LogAccountCreated(ctx, u.ID, user.MethodPassword, req.IP)
	return u, nil
}

// Login checks the password and, when enabled, the TOTP code, then issues a
// fresh token pair.
func (s *Service) Login(ctx context.Context, req account.LoginRequest) (*account.LoginResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	u, err := s.users.FindByLoginOrEmail(ctx, req.Login)
	if err != nil {
		if errx.HasCode(err, user.CodeNotFound) {
			return nil, user.ErrInvalidCredentials()
		}
		return nil, err
	}

	if !s.hasher.Verify(req.Password, u.PasswordHash) {
		s.audit.LogLoginAttempt(ctx, u.ID, user.MethodPassword, false, req.IP, req.UserAgent)
		return nil, user.ErrInvalidCredentials()
	}
	if u.IsBlocked() {
		return nil, user.ErrAccountBlocked()
	}

	if err := s.twoFactor.VerifyLogin(ctx, identityOf(u), req.Code); err != nil {
		if req.Code != "" {
			s.audit.LogTwoFactorVerification(ctx, u.ID, false, req.IP)
		}
		return nil, err
	}

	result, err := s.issue(u, "")
	if err != nil {
		return nil, err
	}

	s.recordLogin(ctx, user.NewLoginRecord(u.ID, user.MethodPassword, req.IP, req.UserAgent, s.now().UTC()))
	s.audit.LogLoginAttempt(ctx, u.ID, user.MethodPassword, true, req.IP, req.UserAgent)
	return result, nil
}

// Logout revokes the bearer's session token and, when given, the refresh
// token that belongs to the same user.
func (s *Service) Logout(ctx context.Context, bearer, refresh, ip string) error {
	claims, err := s.gate.Authenticate(ctx, bearer)
	if err != nil {
		return err
	}

	if refresh != "" {
		rc, err := s.codec.ParseRefresh(refresh)
		if err != nil {
			return err
		}
		if rc.UserID != claims.UserID {
			return iam.ErrAccessDenied().WithDetail("reason", "refresh token belongs to another user")
		}
	}

	if err := s.ledger.RevokeAll(ctx, bearer, refresh); err != nil {
		return err
	}

	s.audit.LogLogout(ctx, claims.UserID, ip)
	return nil
}

// Refresh issues a new session token for a live refresh token. The refresh
// token itself is reused until it expires or is revoked.
func (s *Service) Refresh(ctx context.Context, refresh, ip string) (*account.LoginResult, error) {
	if refresh == "" {
		return nil, errx.Validation("refresh token is required")
	}

	rc, err := s.codec.ValidateRefresh(refresh)
	if err != nil {
		return nil, err
	}

	revoked, err := s.ledger.IsRevoked(ctx, refresh)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, iam.ErrTokenExpired().WithDetail("reason", "revoked")
	}

	u, err := s.users.FindByID(ctx, rc.UserID)
	if err != nil {
		if errx.HasCode(err, user.CodeNotFound) {
			return nil, iam.ErrUnauthenticated()
		}
		return nil, err
	}
	if u.IsBlocked() {
		return nil, user.ErrAccountBlocked()
	}

	result, err := s.issue(u, refresh)
	if err != nil {
		return nil, err
	}

	s.audit.LogTokenRefresh(ctx, u.ID, ip)
	return result, nil
}

// ValidateToken reports the claims of a live, unrevoked session token.
func (s *Service) ValidateToken(ctx context.Context, raw string) (*token.Claims, error) {
	return s.gate.Authenticate(ctx, raw)
}

// CheckCaptcha verifies answer against the challenge outstanding for key and
// clears it when correct. Wrong answers count toward the replacement of the
// problem. Callers without a challenge pass.
func (s *Service) CheckCaptcha(ctx context.Context, key, answer string) error {
	if s.captchas == nil || key == "" {
		return nil
	}
	return s.captchas.Solve(ctx, key, answer)
}

// ChangePassword sets a new password for the caller. Accounts provisioned
// through a provider have no password yet and may set one directly.
func (s *Service) ChangePassword(ctx context.Context, userID kernel.UserID, req account.ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.HasPassword() && !s.hasher.Verify(req.CurrentPassword, u.PasswordHash) {
		return user.ErrWrongPassword()
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return err
	}
	u.SetPasswordHash(hash, s.now().UTC())
	if err := s.users.Update(ctx, u); err != nil {
		return err
	}

	logx.WithContext(ctx).WithField("user_id", u.ID).Info("password changed")
	s.notify(ctx, u, account.AlertPasswordChanged, req.IP)
	return nil
}

// ============================================================================
// Federation
// ============================================================================

// BeginFederatedLogin returns the provider URL the browser is sent to.
func (s *Service) BeginFederatedLogin(ctx context.Context, provider string) (string, error) {
	redirect, _, err := s.federation.AuthCodeURL(ctx, provider, "")
	return redirect, err
}

// FederatedLogin completes a provider callback. A known provider identity
// signs in its linked user. An unknown one provisions a new user unless its
// login or email is already taken, which is reported as a conflict and never
// merged into the existing account.
func (s *Service) FederatedLogin(ctx context.Context, req account.FederatedLoginRequest) (*account.LoginResult, error) {
	identity, err := s.federation.Exchange(ctx, req.Provider, req.Code, req.State)
	if err != nil {
		return nil, err
	}

	u, err := s.resolveFederated(ctx, identity, req.IP)
	if err != nil {
		return nil, err
	}
	if u.IsBlocked() {
		return nil, user.ErrAccountBlocked()
	}

	result, err := s.issue(u, "")
	if err != nil {
		return nil, err
	}

	method := user.MethodOAuth + ":" + identity.Provider
	s.recordLogin(ctx, user.NewLoginRecord(u.ID, method, req.IP, req.UserAgent, s.now().UTC()))
	s.audit.LogLoginAttempt(ctx, u.ID, method, true, req.IP, req.UserAgent)
	return result, nil
}

func (s *Service) resolveFederated(ctx context.Context, identity *federation.Identity, ip string) (*user.User, error) {
	linked, err := s.users.FindSocialAccount(ctx, identity.Provider, identity.ProviderUserID)
	if err == nil {
		return s.users.FindByID(ctx, linked.UserID)
	}
	if !errx.HasCode(err, user.CodeNotFound) {
		return nil, err
	}

	login := identity.Login
	if login == "" {
		login = identity.Provider + "_" + identity.ProviderUserID
	}

	exists, err := s.users.ExistsByLoginOrEmail(ctx, login, identity.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, user.ErrFederatedLoginConflict(identity.Provider, login)
	}

	now := s.now().UTC()
	u := user.NewUser(login, identity.Email, "", iam.RoleUserID, now)
	link := user.NewSocialAccount(u.ID, identity.Provider, identity.ProviderUserID, now)
	if err := s.users.CreateWithSocialAccount(ctx, u, link); err != nil {
		return nil, err
	}

	s.audit.LogAccountCreated(ctx, u.ID, user.MethodOAuth+":"+identity.Provider, ip)
	s.audit.LogAccountLinked(ctx, u.ID, identity.Provider, ip)
	return u, nil
}

// ============================================================================
// Two-factor
// ============================================================================

// BeginTwoFactor stages a TOTP secret for the user.
func (s *Service) BeginTwoFactor(ctx context.Context, userID kernel.UserID) (*otp.Enrollment, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.twoFactor.BeginEnrollment(ctx, identityOf(u))
}

// ConfirmTwoFactor checks the first code from the authenticator and turns
// two-factor on.
func (s *Service) ConfirmTwoFactor(ctx context.Context, userID kernel.UserID, code, ip string) (*user.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.twoFactor.VerifyEnrollment(ctx, identityOf(u), code); err != nil {
		s.audit.LogTwoFactorVerification(ctx, u.ID, false, ip)
		return nil, err
	}
	s.audit.LogTwoFactorVerification(ctx, u.ID, true, ip)

	if u.TwoFactorEnabled {
		return u, nil
	}
	u.EnableTwoFactor(s.now().UTC())
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}

	s.notify(ctx, u, account.AlertTwoFactorEnabled, ip)
	return u, nil
}

// DisableTwoFactor turns two-factor off. The current code is required so a
// stolen session alone cannot remove the second factor.
func (s *Service) DisableTwoFactor(ctx context.Context, userID kernel.UserID, code, ip string) (*user.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.TwoFactorEnabled {
		return nil, otp.ErrNotEnrolled()
	}

	if err := s.twoFactor.VerifyLogin(ctx, identityOf(u), code); err != nil {
		s.audit.LogTwoFactorVerification(ctx, u.ID, false, ip)
		return nil, err
	}
	s.audit.LogTwoFactorVerification(ctx, u.ID, true, ip)

	u.DisableTwoFactor(s.now().UTC())
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	// The flag is authoritative; a leftover secret is overwritten by the next
	// enrollment.
	if err := s.twoFactor.Disable(ctx, identityOf(u)); err != nil {
		logx.WithContext(ctx).WithError(err).WithField("user_id", u.ID).Warn("failed to discard two-factor secret")
	}

	s.notify(ctx, u, account.AlertTwoFactorDisabled, ip)
	return u, nil
}

func identityOf(u *user.User) otp.Identity {
	return otp.Identity{UserID: u.ID, AccountName: u.Login, Enabled: u.TwoFactorEnabled}
}

// ============================================================================
// Administration
// ============================================================================

func (s *Service) GetUser(ctx context.Context, userID kernel.UserID) (*user.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *Service) ListUsers(ctx context.Context, opts kernel.PaginationOptions) (kernel.Paginated[*user.User], error) {
	return s.users.List(ctx, opts)
}

// CreateUser provisions an account with any role but root.
func (s *Service) CreateUser(ctx context.Context, req account.CreateUserRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	role, err := s.roles.FindRoleByID(ctx, req.RoleID)
	if err != nil {
		return nil, err
	}
	if role.IsRoot() {
		return nil, user.ErrRootProtected()
	}

	exists, err := s.users.ExistsByLoginOrEmail(ctx, req.Login, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, user.ErrAlreadyExists()
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	u := user.NewUser(req.Login, req.Email, hash, role.ID, s.now().UTC())
	u.RoleName = role.Name
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	s.audit.LogAccountCreated(ctx, u.ID, user.MethodAdmin, "")
	return u, nil
}

// UpdateUser replaces the profile of an account. A login or email held by
// another user fails with USER_ALREADY_EXISTS. The root account is changed
// only through its own password.
func (s *Service) UpdateUser(ctx context.Context, userID kernel.UserID, req account.UpdateUserRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.IsRoot() {
		return nil, user.ErrRootProtected()
	}

	now := s.now().UTC()
	u.UpdateProfile(req.Login, req.Email, now)

	if req.Password != "" {
		hash, err := s.hasher.Hash(req.Password)
		if err != nil {
			return nil, err
		}
		u.SetPasswordHash(hash, now)
	}
	if !req.RoleID.IsEmpty() && req.RoleID != u.RoleID {
		role, err := s.roles.FindRoleByID(ctx, req.RoleID)
		if err != nil {
			return nil, err
		}
		if err := u.SetRole(role, now); err != nil {
			return nil, err
		}
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}

	logx.WithContext(ctx).WithField("user_id", u.ID).Info("user updated")
	return u, nil
}

// SetRole assigns a role. The root role can be neither granted nor taken
// away.
func (s *Service) SetRole(ctx context.Context, userID kernel.UserID, roleID kernel.RoleID) (*user.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	role, err := s.roles.FindRoleByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if err := u.SetRole(role, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}

	logx.WithContext(ctx).WithFields(logx.Fields{
		"user_id": u.ID,
		"role_id": roleID,
	}).Info("user role changed")
	return u, nil
}

// Block deactivates the account. Tokens already issued stay valid until they
// expire; refresh and sign-in are refused from now on.
func (s *Service) Block(ctx context.Context, userID kernel.UserID) (*user.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := u.Block(s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}

	logx.WithContext(ctx).WithField("user_id", u.ID).Info("user blocked")
	s.notify(ctx, u, account.AlertAccountBlocked, "")
	return u, nil
}

func (s *Service) LoginHistory(ctx context.Context, userID kernel.UserID, opts kernel.PaginationOptions) (kernel.Paginated[user.LoginRecord], error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return kernel.Paginated[user.LoginRecord]{}, err
	}
	return s.history.ListByUser(ctx, userID, opts)
}

// ============================================================================
// Roles
// ============================================================================

func (s *Service) ListRoles(ctx context.Context, opts kernel.PaginationOptions) (kernel.Paginated[*user.Role], error) {
	return s.roles.ListRoles(ctx, opts)
}

func (s *Service) GetRole(ctx context.Context, roleID kernel.RoleID) (*user.Role, error) {
	return s.roles.FindRoleByID(ctx, roleID)
}

// CreateRole adds a role. Names are unique among live roles, ignoring case.
func (s *Service) CreateRole(ctx context.Context, req account.RoleRequest) (*user.Role, error) {
	role, err := user.NewRole(req.Name, req.Description, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.ensureRoleNameFree(ctx, role.Name, ""); err != nil {
		return nil, err
	}
	if err := s.roles.CreateRole(ctx, role); err != nil {
		return nil, err
	}

	logx.WithContext(ctx).WithFields(logx.Fields{"role_id": role.ID, "name": role.Name}).Info("role created")
	return role, nil
}

// UpdateRole renames a role. Tokens already issued keep the old name; the
// gate also matches role ids, so they stay valid.
func (s *Service) UpdateRole(ctx context.Context, roleID kernel.RoleID, req account.RoleRequest) (*user.Role, error) {
	role, err := s.roles.FindRoleByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if err := role.Rename(req.Name, req.Description, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.ensureRoleNameFree(ctx, role.Name, role.ID); err != nil {
		return nil, err
	}
	if err := s.roles.UpdateRole(ctx, role); err != nil {
		return nil, err
	}

	logx.WithContext(ctx).WithFields(logx.Fields{"role_id": role.ID, "name": role.Name}).Info("role updated")
	return role, nil
}

// DeleteRole retires a role nobody active holds. Built-in roles stay.
func (s *Service) DeleteRole(ctx context.Context, roleID kernel.RoleID) (*user.Role, error) {
	role, err := s.roles.FindRoleByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if err := role.Delete(s.now().UTC()); err != nil {
		return nil, err
	}

	holders, err := s.roles.CountActiveUsers(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	if holders > 0 {
		return nil, user.ErrRoleInUse(role.ID).WithDetail("users", holders)
	}

	if err := s.roles.UpdateRole(ctx, role); err != nil {
		return nil, err
	}

	logx.WithContext(ctx).WithField("role_id", role.ID).Info("role deleted")
	return role, nil
}

func (s *Service) ensureRoleNameFree(ctx context.Context, name string, except kernel.RoleID) error {
	taken, err := s.roles.ExistsRoleByName(ctx, name, except)
	if err != nil {
		return err
	}
	if taken {
		return user.ErrRoleAlreadyExists(name)
	}
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func (s *Service) issue(u *user.User, existingRefresh string) (*account.LoginResult, error) {
	pair, err := s.codec.Issue(token.Subject{
		UserID:   u.ID,
		RoleID:   u.RoleID,
		RoleName: u.RoleName,
	}, existingRefresh)
	if err != nil {
		return nil, err
	}
	return &account.LoginResult{
		Token:        pair.SessionToken,
		RefreshToken: pair.RefreshToken,
		User:         u,
	}, nil
}

// recordLogin queues the history entry. A lost entry is tolerated, so
// failures are only logged.
func (s *Service) recordLogin(ctx context.Context, record user.LoginRecord) {
	log := logx.WithContext(ctx).WithFields(logx.Fields{
		"user_id": record.UserID,
		"method":  record.Method,
	})

	if s.jobs != nil {
		if _, err := s.jobs.Enqueue(ctx, account.JobRecordLogin, record); err != nil {
			log.WithError(err).Warn("failed to enqueue login history")
		}
		return
	}
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, record); err != nil {
		log.WithError(err).Warn("failed to record login history")
	}
}

// notify queues a security alert for users with an email address. Failures
// are only logged, as for the login history.
func (s *Service) notify(ctx context.Context, u *user.User, kind, ip string) {
	if s.alerts == nil || u.Email == "" {
		return
	}

	alert := account.SecurityAlert{
		UserID: u.ID,
		Login:  u.Login,
		Email:  u.Email,
		Kind:   kind,
		IP:     ip,
		At:     s.now().UTC(),
	}
	log := logx.WithContext(ctx).WithFields(logx.Fields{"user_id": u.ID, "alert": kind})

	if s.jobs != nil {
		if _, err := s.jobs.Enqueue(ctx, account.JobSecurityAlert, alert); err != nil {
			log.WithError(err).Warn("failed to enqueue security alert")
		}
		return
	}
	if err := s.alerts.Send(ctx, alert); err != nil {
		log.WithError(err).Warn("failed to send security alert")
	}
}

// RecordLoginHandler is the worker side of account.JobRecordLogin.
func RecordLoginHandler(history user.LoginHistoryRepository) jobx.HandlerFunc {
	return func(ctx context.Context, job *jobx.JobInfo) error {
		var record user.LoginRecord
		if err := job.Decode(&record); err != nil {
			return err
		}
		return history.Record(ctx, record)
	}
}
