package updatechecker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache memoizes remote HEAD lookups in Redis, keyed by remote URL and
// branch, so resources that share a remote don't each pay for their own
// ls-remote round trip within the same pass. Entirely optional: a Checker
// with a nil Cache just resolves every remote HEAD directly.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCache wraps an existing Redis client. keyPrefix namespaces cache
// keys when the client is shared with other subsystems.
func NewRedisCache(client *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{client: client, keyPrefix: keyPrefix}
}

func (c *RedisCache) key(remoteURL, branch string) string {
	return c.keyPrefix + "remote-head:" + remoteURL + ":" + branch
}

func (c *RedisCache) Get(ctx context.Context, remoteURL, branch string) (string, bool) {
	sha, err := c.client.Get(ctx, c.key(remoteURL, branch)).Result()
	if err != nil {
		return "", false
	}
	return sha, true
}

func (c *RedisCache) Set(ctx context.Context, remoteURL, branch, sha string, ttl time.Duration) {
	_ = c.client.Set(ctx, c.key(remoteURL, branch), sha, ttl).Err()
}
