package config

import "github.com/spf13/viper"

// NotifyConfig configures the security alert emails.
type NotifyConfig struct {
	// Provider is "console", "ses" or "none".
	Provider  string
	From      string
	AWSRegion string
}

// Enabled reports whether alerts are sent at all.
func (n NotifyConfig) Enabled() bool {
	return n.Provider != "" && n.Provider != "none"
}

func setNotifyDefaults(v *viper.Viper) {
	v.SetDefault("NOTIFY_PROVIDER", "console")
	v.SetDefault("NOTIFY_FROM", "no-reply@gatekeeper.local")
	v.SetDefault("AWS_REGION", "us-east-1")
}

func loadNotifyConfig(v *viper.Viper) NotifyConfig {
	return NotifyConfig{
		Provider:  v.GetString("NOTIFY_PROVIDER"),
		From:      v.GetString("NOTIFY_FROM"),
		AWSRegion: v.GetString("AWS_REGION"),
	}
}
