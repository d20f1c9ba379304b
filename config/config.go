package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	AES        AESConfig        `mapstructure:"aes"`
	Operator   OperatorConfig   `mapstructure:"operator"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	RateLimit       int64         `mapstructure:"rate_limit"` // ingress requests per window per client, 0 disables
	RateWindow      time.Duration `mapstructure:"rate_window"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

// OperatorConfig is the single admin API client. SecretHash is an argon2id
// encoded hash of the client secret.
type OperatorConfig struct {
	ClientID   string `mapstructure:"client_id"`
	SecretHash string `mapstructure:"secret_hash"`
}

type DispatcherConfig struct {
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	MaxConcurrency     int           `mapstructure:"max_concurrency"`
	AsyncWorkers       int           `mapstructure:"async_workers"`
	AsyncQueueSize     int           `mapstructure:"async_queue_size"`
	NotificationBuffer int           `mapstructure:"notification_buffer"`
	UserAgent          string        `mapstructure:"user_agent"`
	SharedRateLimit    bool          `mapstructure:"shared_rate_limit"` // use Redis windows instead of in-process
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
}

type RetentionConfig struct {
	DeliveryLogs time.Duration `mapstructure:"delivery_logs"`
	Schedule     string        `mapstructure:"schedule"` // cron expression
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: EVD_ (Event Dispatcher).
// Nested keys use underscore: EVD_DATABASE_HOST, EVD_DISPATCHER_MAX_CONCURRENCY, etc.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("EVD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.rate_limit", 300)
	v.SetDefault("server.rate_window", "1m")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "event_dispatcher")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "evd")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "1h")
	v.SetDefault("jwt.issuer", "event-dispatcher")
	v.SetDefault("aes.key", "")
	v.SetDefault("operator.client_id", "")
	v.SetDefault("operator.secret_hash", "")

	v.SetDefault("dispatcher.request_timeout", "30s")
	v.SetDefault("dispatcher.max_concurrency", 16)
	v.SetDefault("dispatcher.async_workers", 4)
	v.SetDefault("dispatcher.async_queue_size", 256)
	v.SetDefault("dispatcher.notification_buffer", 128)
	v.SetDefault("dispatcher.user_agent", "event-dispatcher/1.0")
	v.SetDefault("dispatcher.shared_rate_limit", false)
	v.SetDefault("dispatcher.idempotency_ttl", "24h")

	v.SetDefault("retention.delivery_logs", "720h")
	v.SetDefault("retention.schedule", "@hourly")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate rejects settings the dispatcher cannot run with.
func (c *Config) Validate() error {
	d := c.Dispatcher
	switch {
	case d.RequestTimeout <= 0:
		return errors.New("dispatcher.request_timeout must be positive")
	case d.MaxConcurrency <= 0:
		return errors.New("dispatcher.max_concurrency must be positive")
	case d.AsyncWorkers <= 0:
		return errors.New("dispatcher.async_workers must be positive")
	case d.AsyncQueueSize <= 0:
		return errors.New("dispatcher.async_queue_size must be positive")
	case d.NotificationBuffer <= 0:
		return errors.New("dispatcher.notification_buffer must be positive")
	}
	if d.SharedRateLimit && !c.Redis.Enabled {
		return errors.New("dispatcher.shared_rate_limit requires redis.enabled")
	}
	if c.Operator.ClientID != "" && c.JWT.Secret == "" {
		return errors.New("jwt.secret is required when operator.client_id is set")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		return errors.New("server.rate_window must be positive when server.rate_limit is set")
	}
	return nil
}
