package redis

import (
	"context"
	"fmt"
	"time"

	"event-dispatcher/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

// hitScript is the fixed-window check: open a window on the first hit after
// the previous one elapsed, count only admitted hits. The key expires once
// its window is over.
//
// KEYS[1] window hash; ARGV max, window ms, now ms.
// Returns {allowed, count, start ms}.
var hitScript = goredis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local size = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local start = tonumber(redis.call('HGET', key, 'start'))
local count = tonumber(redis.call('HGET', key, 'count')) or 0
if start == nil or now - start >= size then
  start = now
  count = 0
end

local allowed = 0
if count < max then
  count = count + 1
  allowed = 1
end

redis.call('HSET', key, 'start', start, 'count', count)
redis.call('PEXPIRE', key, start + size - now + 1000)
return {allowed, count, start}
`)

// WindowStore implements ports.WindowStore in Redis so every instance shares
// the same windows. Time comes from the caller, not the Redis server.
type WindowStore struct {
	client *goredis.Client
	keys   Keyspace
}

func NewWindowStore(client *goredis.Client, keys Keyspace) *WindowStore {
	return &WindowStore{client: client, keys: keys}
}

func (s *WindowStore) Hit(ctx context.Context, key string, max int64, window time.Duration, now time.Time) (*ports.WindowDecision, error) {
	// Windows are tracked in milliseconds; anything shorter rounds up.
	windowMs := window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}
	res, err := hitScript.Run(ctx, s.client,
		[]string{s.keys.Key("window", key)},
		max, windowMs, now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis window hit: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("redis window hit: unexpected reply %v", res)
	}

	return &ports.WindowDecision{
		Allowed:   res[0] == 1,
		Limit:     max,
		Remaining: max - res[1],
		ResetAt:   time.UnixMilli(res[2]).Add(window),
	}, nil
}

func (s *WindowStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keys.Key("window", key)).Err(); err != nil {
		return fmt.Errorf("redis window reset: %w", err)
	}
	return nil
}
