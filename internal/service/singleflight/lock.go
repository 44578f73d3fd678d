package singleflight

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Lock serializes named sweep passes across scheduler replicas using a
// Redis token lock. Only the holder that set the token can release it,
// so a pass that overruns its TTL cannot free a successor's lock.
type Lock struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewLock constructs a sweep lock.
func NewLock(client *redis.Client, prefix string, ttl time.Duration) *Lock {
	if prefix == "" {
		prefix = "pax:sweep"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Lock{client: client, prefix: prefix, ttl: ttl}
}

// Acquire attempts to take the named lock. On success it returns a
// release func; acquired is false when another holder has it.
func (l *Lock) Acquire(ctx context.Context, name string) (release func(), acquired bool, err error) {
	key := l.key(name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("singleflight acquire: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		script := redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]
if redis.call('GET', key) == token then
  return redis.call('DEL', key)
end
return 0
`)
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = script.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

func (l *Lock) key(name string) string {
	return fmt.Sprintf("%s:%s:lock", l.prefix, name)
}
