package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/identityhub/internal/domain/user"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "identityhub:profile:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// RedisProfiles shares the profile cache between API replicas. Redis failures
// degrade to a cache miss; the store stays the source of truth.
type RedisProfiles struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func NewRedisProfiles(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *RedisProfiles {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	if log == nil {
		log = slog.Default()
	}

	return &RedisProfiles{rdb: rdb, ttl: ttl, log: log}
}

func (c *RedisProfiles) Get(ctx context.Context, key string) (user.PublicProfile, bool) {
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()

	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WarnContext(ctx, "profile cache get failed", "err", err)
		}
		return user.PublicProfile{}, false
	}

	var p user.PublicProfile

	if err := json.Unmarshal(raw, &p); err != nil {
		c.log.WarnContext(ctx, "profile cache entry unreadable", "err", err)
		return user.PublicProfile{}, false
	}

	return p, true
}

func (c *RedisProfiles) Set(ctx context.Context, key string, p user.PublicProfile) {
	raw, err := json.Marshal(p)

	if err != nil {
		return
	}

	if err := c.rdb.Set(ctx, redisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		c.log.WarnContext(ctx, "profile cache set failed", "err", err)
	}
}

func (c *RedisProfiles) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
