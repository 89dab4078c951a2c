package ticketid

import (
	"context"

	"github.com/redis/go-redis/v9"
)

var raiseScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if floor > current then
  redis.call('SET', KEYS[1], floor)
  return floor
end
return current
`)

// RedisCounter is a Counter backed by a single Redis integer key.
type RedisCounter struct {
	client redis.UniversalClient
	key    string
}

// NewRedisCounter stores the sequence under key.
func NewRedisCounter(client redis.UniversalClient, key string) *RedisCounter {
	return &RedisCounter{client: client, key: key}
}

func (c *RedisCounter) Next(ctx context.Context) (int64, error) {
	return c.client.Incr(ctx, c.key).Result()
}

func (c *RedisCounter) RaiseTo(ctx context.Context, floor int64) (int64, error) {
	return raiseScript.Run(ctx, c.client, []string{c.key}, floor).Int64()
}
