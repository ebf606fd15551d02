package walletstate

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/collection"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

const defaultSessionTTL = 24 * time.Hour

// SessionStore keeps the user's wallet choices (disconnects, selection) for
// the lifetime of a session.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
}

// MemorySession is an in-process SessionStore whose entries expire after ttl.
type MemorySession struct {
	cache *collection.Cache
}

func NewMemorySession(ttl time.Duration) (*MemorySession, error) {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	cache, err := collection.NewCache(ttl)
	if err != nil {
		return nil, err
	}
	return &MemorySession{cache: cache}, nil
}

func (s *MemorySession) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	str, ok := v.(string)
	return str, ok, nil
}

func (s *MemorySession) Set(_ context.Context, key, value string) error {
	s.cache.Set(key, value)
	return nil
}

func (s *MemorySession) Del(_ context.Context, key string) error {
	s.cache.Del(key)
	return nil
}

// RedisSession stores session entries in Redis with a TTL so they survive a
// service restart.
type RedisSession struct {
	rds    *redis.Redis
	prefix string
	ttl    int
}

func NewRedisSession(rds *redis.Redis, prefix string, ttl time.Duration) *RedisSession {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisSession{rds: rds, prefix: prefix, ttl: int(ttl / time.Second)}
}

func (s *RedisSession) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rds.GetCtx(ctx, s.prefix+key)
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (s *RedisSession) Set(ctx context.Context, key, value string) error {
	return s.rds.SetexCtx(ctx, s.prefix+key, value, s.ttl)
}

func (s *RedisSession) Del(ctx context.Context, key string) error {
	_, err := s.rds.DelCtx(ctx, s.prefix+key)
	return err
}
