package app

import (
	"strings"
	"time"

	"github.com/charlesng35/authcore/internal/cache"
)

const defaultRedisTimeout = 5 * time.Second

// RedisClientConfig maps cache.redis onto the store options. Blank credentials are
// dropped so ACL-less servers do not receive an empty AUTH.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	redis := c.Redis
	out := cache.RedisConfig{
		Address:   strings.TrimSpace(redis.Address),
		DB:        redis.DB,
		TLS:       redis.TLS,
		Timeout:   redis.Timeout,
		KeyPrefix: strings.TrimSpace(redis.Prefix),
	}
	if user := strings.TrimSpace(redis.Username); user != "" {
		out.Username = user
	}
	if strings.TrimSpace(redis.Password) != "" {
		out.Password = redis.Password
	}
	if out.Timeout <= 0 {
		out.Timeout = defaultRedisTimeout
	}
	if out.DB < 0 {
		out.DB = 0
	}
	return out
}
