package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript starts a window on the first hit and leaves the expiry of
// an open window untouched.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIREAT", KEYS[1], ARGV[1])
end
return count
`)

// RedisStore shares windows between instances. Keys expire with their
// window.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (int, time.Time, bool, error) {
	pipe := s.client.Pipeline()
	countCmd := pipe.Get(ctx, s.key(key))
	ttlCmd := pipe.PTTL(ctx, s.key(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, time.Time{}, false, err
	}

	count, err := countCmd.Int()
	if errors.Is(err, redis.Nil) {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, err
	}

	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return 0, time.Time{}, false, nil
	}
	return count, time.Now().Add(ttl), true, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, resetTime time.Time) (int, error) {
	count, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, resetTime.UnixMilli()).Int()
	if err != nil {
		return 0, err
	}
	return count, nil
}

