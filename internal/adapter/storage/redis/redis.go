package redis

import (
	"context"
	"fmt"
	"strings"

	"event-dispatcher/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Str("prefix", cfg.Prefix).
		Msg("Redis connection established")

	return client, nil
}

// Keyspace namespaces keys so several deployments can share one Redis.
type Keyspace string

// Key joins parts under the keyspace: Keyspace("evd").Key("window", "x") is
// "evd:window:x".
func (k Keyspace) Key(parts ...string) string {
	if k == "" {
		return strings.Join(parts, ":")
	}
	return string(k) + ":" + strings.Join(parts, ":")
}
