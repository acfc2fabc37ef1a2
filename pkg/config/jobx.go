package config

import (
	"time"

	"github.com/spf13/viper"
)

// JobxConfig configures the background job queue.
type JobxConfig struct {
	Concurrency       int
	Queues            []string
	ShutdownTimeout   time.Duration
	DequeueTimeout    time.Duration
	DefaultRetryDelay time.Duration
}

func setJobxDefaults(v *viper.Viper) {
	v.SetDefault("JOBX_CONCURRENCY", 4)
	v.SetDefault("JOBX_QUEUES", []string{"default"})
	v.SetDefault("JOBX_SHUTDOWN_TIMEOUT", "30s")
	v.SetDefault("JOBX_DEQUEUE_TIMEOUT", "5s")
	v.SetDefault("JOBX_DEFAULT_RETRY_DELAY", "30s")
}

func loadJobxConfig(v *viper.Viper) JobxConfig {
	return JobxConfig{
		Concurrency:       v.GetInt("JOBX_CONCURRENCY"),
		Queues:            v.GetStringSlice("JOBX_QUEUES"),
		ShutdownTimeout:   v.GetDuration("JOBX_SHUTDOWN_TIMEOUT"),
		DequeueTimeout:    v.GetDuration("JOBX_DEQUEUE_TIMEOUT"),
		DefaultRetryDelay: v.GetDuration("JOBX_DEFAULT_RETRY_DELAY"),
	}
}
