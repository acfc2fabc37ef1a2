package config

import (
	"time"

	"github.com/spf13/viper"
)

// LimiterConfig configures the per-identity request window.
type LimiterConfig struct {
	RateLimitPerMinute int
}

// CaptchaConfig configures the human-verification challenge issued to
// throttled callers.
type CaptchaConfig struct {
	MaxCount     int
	BlockingTime time.Duration
}

func setLimiterDefaults(v *viper.Viper) {
	v.SetDefault("LIMITER_RATE_LIMIT_PER_MINUTE", 20)
	v.SetDefault("CAPTCHA_MAX_COUNT", 1)
	v.SetDefault("CAPTCHA_BLOCKING_TIME", "60s")
}

func loadLimiterConfig(v *viper.Viper) LimiterConfig {
	return LimiterConfig{RateLimitPerMinute: v.GetInt("LIMITER_RATE_LIMIT_PER_MINUTE")}
}

func loadCaptchaConfig(v *viper.Viper) CaptchaConfig {
	return CaptchaConfig{
		MaxCount:     v.GetInt("CAPTCHA_MAX_COUNT"),
		BlockingTime: v.GetDuration("CAPTCHA_BLOCKING_TIME"),
	}
}
