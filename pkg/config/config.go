// Package config loads and validates gatekeeper configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config is the root configuration. Each concern lives in its own file.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Token     TokenConfig
	Limiter   LimiterConfig
	Captcha   CaptchaConfig
	TwoFactor TwoFactorConfig
	Password  PasswordConfig
	OAuth     OAuthConfig
	Jobx      JobxConfig
	Notify    NotifyConfig
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()

	setServerDefaults(v)
	setTokenDefaults(v)
	setLimiterDefaults(v)
	setTwoFactorDefaults(v)
	setOAuthDefaults(v)
	setJobxDefaults(v)
	setNotifyDefaults(v)

	cfg := &Config{
		Server:    loadServerConfig(v),
		Database:  loadDatabaseConfig(v),
		Redis:     loadRedisConfig(v),
		Token:     loadTokenConfig(v),
		Limiter:   loadLimiterConfig(v),
		Captcha:   loadCaptchaConfig(v),
		TwoFactor: loadTwoFactorConfig(v),
		Password:  loadPasswordConfig(v),
		OAuth:     loadOAuthConfig(v),
		Jobx:      loadJobxConfig(v),
		Notify:    loadNotifyConfig(v),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the services rely on at startup.
func (c *Config) Validate() error {
	if c.Token.Secret == "" {
		return errors.New("config: TOKEN_SECRET must be set")
	}
	if c.Server.Env == "production" && len(c.Token.Secret) < 32 {
		return errors.New("config: TOKEN_SECRET must be at least 32 bytes in production")
	}
	if c.Token.AliveHours <= 0 || c.Token.RefreshAliveHours <= 0 {
		return errors.New("config: TOKEN_ALIVE_HOURS and TOKEN_REFRESH_ALIVE_HOURS must be positive")
	}
	if c.Token.RefreshAliveHours < c.Token.AliveHours {
		return errors.New("config: refresh lifetime must not be shorter than session lifetime")
	}
	if c.Limiter.RateLimitPerMinute <= 0 {
		return errors.New("config: LIMITER_RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.Captcha.MaxCount <= 0 {
		return fmt.Errorf("config: CAPTCHA_MAX_COUNT must be positive, got %d", c.Captcha.MaxCount)
	}
	if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
		return errors.New("config: PASSWORD_BCRYPT_COST must be between 4 and 31")
	}
	if c.OAuth.StateTTL <= 0 {
		return errors.New("config: OAUTH_STATE_TTL_MINUTES must be positive")
	}
	if c.Server.InMemory && c.Server.Env == "production" {
		return errors.New("config: APP_IN_MEMORY cannot be used in production")
	}
	switch c.Notify.Provider {
	case "", "none", "console", "ses":
	default:
		return fmt.Errorf("config: unknown NOTIFY_PROVIDER %q (use console, ses or none)", c.Notify.Provider)
	}
	if c.Server.Port == "" {
		return errors.New("config: APP_PORT must be set")
	}
	return nil
}
