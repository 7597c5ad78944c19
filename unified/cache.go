package unified

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/unified_backend/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const profileCachePrefix = "unified:profile:"

// ProfileCache stores profile bundles in redis. A nil *ProfileCache is a valid, disabled cache.
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProfileCache returns nil when caching is off (no client or a zero ttl).
func NewProfileCache(client *redis.Client, ttl time.Duration) *ProfileCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &ProfileCache{client: client, ttl: ttl}
}

func profileKey(email string) string {
	return profileCachePrefix + strings.ToLower(strings.TrimSpace(email))
}

func (c *ProfileCache) Get(ctx context.Context, email string) (*ProfileBundle, bool) {
	if c == nil {
		return nil, false
	}
	val, err := c.client.Get(ctx, profileKey(email)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("Get", email, err)
		}
		return nil, false
	}
	var bundle ProfileBundle
	if err := json.Unmarshal(val, &bundle); err != nil {
		c.warn("Get", email, err)
		return nil, false
	}
	return &bundle, true
}

func (c *ProfileCache) Set(ctx context.Context, email string, bundle *ProfileBundle) {
	if c == nil || bundle == nil {
		return
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		c.warn("Set", email, err)
		return
	}
	if err := c.client.Set(ctx, profileKey(email), data, c.ttl).Err(); err != nil {
		c.warn("Set", email, err)
	}
}

// Invalidate drops the cached bundles of emails, e.g. after a sync stored fresh data.
func (c *ProfileCache) Invalidate(ctx context.Context, emails ...string) error {
	if c == nil || len(emails) == 0 {
		return nil
	}
	keys := make([]string, 0, len(emails))
	for _, e := range emails {
		keys = append(keys, profileKey(e))
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *ProfileCache) warn(funcName, email string, err error) {
	logger := config.GetLogger()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	config.LogWarn(logger, "unified.cache", funcName, email, err)
}
