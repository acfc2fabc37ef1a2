package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TOKEN_SECRET", "test-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token.SessionTTL() != 4*time.Hour {
		t.Errorf("SessionTTL = %v, want 4h", cfg.Token.SessionTTL())
	}
	if cfg.Token.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL = %v, want 168h", cfg.Token.RefreshTTL())
	}
	if cfg.Limiter.RateLimitPerMinute != 20 {
		t.Errorf("RateLimitPerMinute = %d, want 20", cfg.Limiter.RateLimitPerMinute)
	}
	if cfg.Captcha.MaxCount != 1 {
		t.Errorf("Captcha.MaxCount = %d, want 1", cfg.Captcha.MaxCount)
	}
	if cfg.Captcha.BlockingTime != 60*time.Second {
		t.Errorf("Captcha.BlockingTime = %v, want 60s", cfg.Captcha.BlockingTime)
	}
	if cfg.Password.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.Password.BcryptCost)
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr())
	}
	if cfg.OAuth.VK.Enabled() {
		t.Error("VK should be disabled without credentials")
	}
	if cfg.OAuth.StateTTL != 10*time.Minute {
		t.Errorf("OAuth.StateTTL = %v, want 10m", cfg.OAuth.StateTTL)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	setRequired(t)
	t.Setenv("TOKEN_ALIVE_HOURS", "1")
	t.Setenv("LIMITER_RATE_LIMIT_PER_MINUTE", "5")
	t.Setenv("OAUTH_YANDEX_CLIENT_ID", "ya-id")
	t.Setenv("OAUTH_YANDEX_CLIENT_SECRET", "ya-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token.SessionTTL() != time.Hour {
		t.Errorf("SessionTTL = %v, want 1h", cfg.Token.SessionTTL())
	}
	if cfg.Limiter.RateLimitPerMinute != 5 {
		t.Errorf("RateLimitPerMinute = %d, want 5", cfg.Limiter.RateLimitPerMinute)
	}
	if !cfg.OAuth.Yandex.Enabled() {
		t.Error("Yandex should be enabled")
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for empty TOKEN_SECRET")
	}
}

func TestLoad_RefreshShorterThanSession(t *testing.T) {
	setRequired(t)
	t.Setenv("TOKEN_ALIVE_HOURS", "10")
	t.Setenv("TOKEN_REFRESH_ALIVE_HOURS", "2")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when refresh lifetime < session lifetime")
	}
}

func TestLoad_ShortSecretInProduction(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for short secret in production")
	}
}

func TestLoad_Notify(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Notify.Enabled() || cfg.Notify.Provider != "console" {
		t.Errorf("Notify.Provider = %q, want console", cfg.Notify.Provider)
	}

	t.Setenv("NOTIFY_PROVIDER", "none")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notify.Enabled() {
		t.Error("alerts should be disabled")
	}

	t.Setenv("NOTIFY_PROVIDER", "pigeon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestLoad_OAuthStateTTL(t *testing.T) {
	setRequired(t)
	t.Setenv("OAUTH_STATE_TTL_MINUTES", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OAuth.StateTTL != 3*time.Minute {
		t.Errorf("OAuth.StateTTL = %v, want 3m", cfg.OAuth.StateTTL)
	}

	t.Setenv("OAUTH_STATE_TTL_MINUTES", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a zero state lifetime")
	}
}
