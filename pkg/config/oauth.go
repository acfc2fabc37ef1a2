package config

import (
	"time"

	"github.com/spf13/viper"
)

// OAuthClient holds one identity provider's registered client.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

// Enabled reports whether the provider has credentials configured
func (o OAuthClient) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// OAuthConfig configures the federated identity providers.
type OAuthConfig struct {
	Yandex OAuthClient
	Mail   OAuthClient
	VK     OAuthClient
	// StateTTL bounds the time between the redirect to a provider and its
	// callback.
	StateTTL time.Duration
}

func setOAuthDefaults(v *viper.Viper) {
	for _, p := range []string{"YANDEX", "MAIL", "VK"} {
		v.SetDefault("OAUTH_"+p+"_CLIENT_ID", "")
		v.SetDefault("OAUTH_"+p+"_CLIENT_SECRET", "")
	}
	v.SetDefault("OAUTH_STATE_TTL_MINUTES", 10)
}

func loadOAuthConfig(v *viper.Viper) OAuthConfig {
	client := func(p string) OAuthClient {
		return OAuthClient{
			ClientID:     v.GetString("OAUTH_" + p + "_CLIENT_ID"),
			ClientSecret: v.GetString("OAUTH_" + p + "_CLIENT_SECRET"),
		}
	}
	return OAuthConfig{
		Yandex:   client("YANDEX"),
		Mail:     client("MAIL"),
		VK:       client("VK"),
		StateTTL: time.Duration(v.GetInt("OAUTH_STATE_TTL_MINUTES")) * time.Minute,
	}
}
