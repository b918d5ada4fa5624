package infra

import (
	"context"
	"time"

	"edge-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore implementa domain.CounterStore com INCR e EXPIRE do Redis.
//
// Os dois comandos são enviados separadamente (sem MULTI): quem arma o TTL é
// quem recebeu count == 1.
type RedisCounterStore struct {
	rdb redis.Cmdable
}

var _ domain.CounterStore = (*RedisCounterStore)(nil)

// NewRedisCounterStore aceita *redis.Client, *redis.Ring ou *redis.ClusterClient.
func NewRedisCounterStore(rdb redis.Cmdable) *RedisCounterStore {
	return &RedisCounterStore{rdb: rdb}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key domain.Key) (int64, error) {
	return s.rdb.Incr(ctx, string(key)).Result()
}

func (s *RedisCounterStore) Expire(ctx context.Context, key domain.Key, ttl time.Duration) (bool, error) {
	return s.rdb.Expire(ctx, string(key), ttl).Result()
}

// Ping é usado pelo readiness do admin.
func (s *RedisCounterStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
