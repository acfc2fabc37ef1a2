package iamcontainer

import (
	"github.com/Abraxas-365/gatekeeper/pkg/config"
	"github.com/Abraxas-365/gatekeeper/pkg/credstore"
	"github.com/Abraxas-365/gatekeeper/pkg/credstore/credstoremem"
	"github.com/Abraxas-365/gatekeeper/pkg/credstore/credstoreredis"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/account"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/account/accountapi"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/account/accountsrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/captcha"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/federation"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/otp/otpinfra"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/otp/otpsrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/ratelimit"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/revocation"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/token"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/usermem"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// captchaMembers is the number of operands in a generated problem.
const captchaMembers = 3

// ---------------------------------------------------------------------------
// Deps: explicit external dependencies this bounded context requires.
// ---------------------------------------------------------------------------

type Deps struct {
	// DB backs the user directory and login history. Nil keeps users in
	// process memory.
	DB *sqlx.DB
	// Redis backs the credential store. Nil keeps credentials in process
	// memory, which only works for a single instance.
	Redis redis.UniversalClient
	Cfg   *config.Config

	// Jobs records login history and sends alerts in the background. Nil
	// does both inline.
	Jobs jobx.Enqueuer

	// Mailer delivers security alerts. Nil disables them.
	Mailer notifx.EmailSender
}

// ---------------------------------------------------------------------------
// Container: the public surface of the IAM module.
// ---------------------------------------------------------------------------

type Container struct {
	// Core
	Store   credstore.Store
	Codec   *token.Codec
	Ledger  *revocation.Ledger
	Gate    *auth.Gate
	Limiter *ratelimit.Limiter

	// Services
	AccountService   *accountsrv.Service
	TwoFactorService *otpsrv.TwoFactorService
	CaptchaService   *captcha.Service
	Federation       *federation.Client

	// API handlers, needed by cmd/ to register routes
	AccountHandlers *accountapi.AccountHandlers

	// Middleware, needed by cmd/ to protect route groups
	AuthMiddleware *auth.TokenMiddleware

	history user.LoginHistoryRepository
	alerts  *accountsrv.AlertMailer
}

// ---------------------------------------------------------------------------
// New: constructs the entire IAM dependency graph.
// Order matters: infra → repos → services → handlers → middleware.
// ---------------------------------------------------------------------------

func New(deps Deps) *Container {
	logx.Info("🔧 Initializing IAM container...")

	cfg := deps.Cfg
	c := &Container{}

	// ── Infrastructure ───────────────────────────────────────────────────

	if deps.Redis != nil {
		c.Store = credstoreredis.New(deps.Redis, credstoreredis.WithTimeout(cfg.Redis.CallTimeout))
		logx.Info("  ✅ Using Redis credential store")
	} else {
		c.Store = credstoremem.New()
		logx.Warn("  ⚠️  Using in-memory credential store (single instance only)")
	}

	// ── Repositories ─────────────────────────────────────────────────────

	var (
		users user.Directory
		roles user.RoleRepository
	)
	if deps.DB != nil {
		users = userinfra.NewPostgresDirectory(deps.DB)
		roles = userinfra.NewPostgresRoleRepository(deps.DB)
		c.history = userinfra.NewPostgresLoginHistory(deps.DB)
	} else {
		dir := usermem.NewDirectory()
		users, roles = dir, dir
		c.history = usermem.NewLoginHistory()
		logx.Warn("  ⚠️  Using in-memory user directory (data is lost on restart)")
	}

	secrets := otpinfra.NewCredstoreSecretRepository(c.Store)

	// ── Core services ────────────────────────────────────────────────────

	c.Codec = token.NewCodec(cfg.Token.Secret, cfg.Token.SessionTTL(), cfg.Token.RefreshTTL())
	c.Ledger = revocation.NewLedger(c.Store, cfg.Token.RefreshTTL())
	c.Gate = auth.NewGate(c.Codec, c.Ledger)

	c.CaptchaService = captcha.NewService(
		captcha.NewMathCaptcha(captchaMembers, nil),
		c.Store,
		cfg.Captcha.MaxCount,
		cfg.Captcha.BlockingTime,
	)
	c.Limiter = ratelimit.NewLimiter(c.Store, c.CaptchaService, cfg.Limiter.RateLimitPerMinute)
	c.TwoFactorService = otpsrv.NewTwoFactorService(secrets, cfg.TwoFactor.Issuer)

	// ── OAuth providers ──────────────────────────────────────────────────

	c.Federation = federation.NewClient(c.Store, federation.WithStateTTL(cfg.OAuth.StateTTL))

	if cfg.OAuth.Yandex.Enabled() {
		c.Federation.Register(federation.Yandex(credentials(cfg.OAuth.Yandex)))
		logx.Info("  ✅ Yandex OAuth enabled")
	}
	if cfg.OAuth.Mail.Enabled() {
		c.Federation.Register(federation.Mail(credentials(cfg.OAuth.Mail), cfg.Server.Address))
		logx.Info("  ✅ Mail.ru OAuth enabled")
	}
	if cfg.OAuth.VK.Enabled() {
		c.Federation.Register(federation.VK(credentials(cfg.OAuth.VK), cfg.Server.Address))
		logx.Info("  ✅ VK OAuth enabled")
	}

	// ── Security alerts ──────────────────────────────────────────────────

	if deps.Mailer != nil {
		alerts, err := accountsrv.NewAlertMailer(notifx.NewClient(deps.Mailer, cfg.Notify.From))
		if err != nil {
			logx.Fatalf("Failed to load security alert templates: %v", err)
		}
		c.alerts = alerts
		logx.Infof("  ✅ Security alerts enabled (%s)", cfg.Notify.Provider)
	}

	// ── Account service ──────────────────────────────────────────────────

	audit := authinfra.NewLogxAuditService(nil)

	c.AccountService = accountsrv.NewService(accountsrv.Deps{
		Users:      users,
		Roles:      roles,
		Hasher:     userinfra.NewBcryptHasher(cfg.Password.BcryptCost),
		History:    c.history,
		Codec:      c.Codec,
		Ledger:     c.Ledger,
		Gate:       c.Gate,
		TwoFactor:  c.TwoFactorService,
		Federation: c.Federation,
		Captchas:   c.CaptchaService,
		Jobs:       deps.Jobs,
		Alerts:     c.alerts,
		Audit:      audit,
	})

	// ── Handlers & middleware ────────────────────────────────────────────

	c.AccountHandlers = accountapi.NewAccountHandlers(c.AccountService, c.CaptchaService, c.Federation.Providers)
	c.AuthMiddleware = auth.NewAuthMiddleware(c.Gate, c.Limiter, auth.WithAudit(audit))

	logx.Info("✅ IAM container initialized")
	return c
}

// RegisterJobs installs the IAM job handlers on the worker.
func (c *Container) RegisterJobs(worker *jobx.Client) {
	worker.Register(account.JobRecordLogin, accountsrv.RecordLoginHandler(c.history))
	if c.alerts != nil {
		worker.Register(account.JobSecurityAlert, accountsrv.SecurityAlertHandler(c.alerts))
	}
}

func credentials(o config.OAuthClient) federation.Credentials {
	return federation.Credentials{ClientID: o.ClientID, ClientSecret: o.ClientSecret}
}
