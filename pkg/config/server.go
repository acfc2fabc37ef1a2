package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Name            string
	Env             string
	Host            string
	Port            string
	Address         string // public base URL used to build OAuth callback URLs
	AllowedOrigins  string
	ShutdownTimeout time.Duration
	// InMemory runs without Postgres and Redis. Development only.
	InMemory bool
}

// DatabaseConfig configures the Postgres user directory.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int
}

// DSN returns a lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig configures the credential store and the job queue.
type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	CallTimeout time.Duration
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "gatekeeper")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_HOST", "0.0.0.0")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_ADDRESS", "http://localhost:8080")
	v.SetDefault("APP_ALLOWED_ORIGINS", "*")
	v.SetDefault("APP_SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("APP_IN_MEMORY", false)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "gatekeeper")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 10)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CALL_TIMEOUT", "2s")
}

func loadServerConfig(v *viper.Viper) ServerConfig {
	return ServerConfig{
		Name:            v.GetString("APP_NAME"),
		Env:             v.GetString("APP_ENV"),
		Host:            v.GetString("APP_HOST"),
		Port:            v.GetString("APP_PORT"),
		Address:         v.GetString("APP_ADDRESS"),
		AllowedOrigins:  v.GetString("APP_ALLOWED_ORIGINS"),
		ShutdownTimeout: v.GetDuration("APP_SHUTDOWN_TIMEOUT"),
		InMemory:        v.GetBool("APP_IN_MEMORY"),
	}
}

func loadDatabaseConfig(v *viper.Viper) DatabaseConfig {
	return DatabaseConfig{
		Host:     v.GetString("DB_HOST"),
		Port:     v.GetInt("DB_PORT"),
		User:     v.GetString("DB_USER"),
		Password: v.GetString("DB_PASSWORD"),
		Name:     v.GetString("DB_NAME"),
		SSLMode:  v.GetString("DB_SSLMODE"),
		MaxConns: v.GetInt("DB_MAX_CONNS"),
	}
}

func loadRedisConfig(v *viper.Viper) RedisConfig {
	return RedisConfig{
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		CallTimeout: v.GetDuration("REDIS_CALL_TIMEOUT"),
	}
}
