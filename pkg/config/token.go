package config

import (
	"time"

	"github.com/spf13/viper"
)

// TokenConfig configures session and refresh token lifetimes.
type TokenConfig struct {
	Secret            string
	AliveHours        int
	RefreshAliveHours int
}

// SessionTTL is the session token lifetime
func (t TokenConfig) SessionTTL() time.Duration {
	return time.Duration(t.AliveHours) * time.Hour
}

// RefreshTTL is the refresh token lifetime. Revocation entries live this long.
func (t TokenConfig) RefreshTTL() time.Duration {
	return time.Duration(t.RefreshAliveHours) * time.Hour
}

// TwoFactorConfig configures TOTP provisioning.
type TwoFactorConfig struct {
	Issuer string
}

// PasswordConfig configures the password hasher.
type PasswordConfig struct {
	BcryptCost int
}

func setTokenDefaults(v *viper.Viper) {
	v.SetDefault("PASSWORD_BCRYPT_COST", 12)
	v.SetDefault("TOKEN_SECRET", "")
	v.SetDefault("TOKEN_ALIVE_HOURS", 4)
	v.SetDefault("TOKEN_REFRESH_ALIVE_HOURS", 168)
}

func loadTokenConfig(v *viper.Viper) TokenConfig {
	return TokenConfig{
		Secret:            v.GetString("TOKEN_SECRET"),
		AliveHours:        v.GetInt("TOKEN_ALIVE_HOURS"),
		RefreshAliveHours: v.GetInt("TOKEN_REFRESH_ALIVE_HOURS"),
	}
}

func setTwoFactorDefaults(v *viper.Viper) {
	v.SetDefault("TWO_FACTOR_ISSUER", "gatekeeper")
}

func loadTwoFactorConfig(v *viper.Viper) TwoFactorConfig {
	return TwoFactorConfig{Issuer: v.GetString("TWO_FACTOR_ISSUER")}
}

func loadPasswordConfig(v *viper.Viper) PasswordConfig {
	return PasswordConfig{BcryptCost: v.GetInt("PASSWORD_BCRYPT_COST")}
}
