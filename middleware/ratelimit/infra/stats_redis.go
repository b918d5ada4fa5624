package infra

import (
	"context"
	"strings"
	"time"

	"edge-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

const (
	bucketMinute = "minute"
	minuteLayout = "200601021504"
)

// RedisStatsStore grava contagens de decisões em hashes do Redis:
//
//	<prefix>:total                 allowed|denied|failopen
//	<prefix>:minute:<yyyymmddhhmm>  idem, com TTL
//	<prefix>:route                 "<METHOD> <path>:<outcome>"
//	<prefix>:key:<key>             idem a total, com TTL (se trackKeys)
//
// O total é cumulativo. O TTL vale só para buckets e chaves por identidade.
type RedisStatsStore struct {
	rdb       redis.Cmdable
	prefix    string
	ttl       time.Duration
	bucket    string
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket: "minute" liga a série por minuto, qualquer outro valor desliga.
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{rdb: rdb, prefix: "gateway:stats", ttl: 24 * time.Hour, bucket: bucketMinute}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

// Record envia todos os HINCRBY num único pipeline.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil || ev.Outcome == "" {
		return nil
	}
	outcome := string(ev.Outcome)

	when := ev.At
	if when.IsZero() {
		when = time.Now()
	}

	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, s.key("total"), outcome, 1)

		if s.bucket == bucketMinute {
			s.expiring(ctx, p, s.key("minute", when.UTC().Format(minuteLayout)), outcome)
		}

		if route := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path)); route != "" {
			p.HIncrBy(ctx, s.key("route"), route+":"+outcome, 1)
		}

		if id := strings.TrimSpace(string(ev.Key)); s.trackKeys && id != "" {
			s.expiring(ctx, p, s.key("key", id), outcome)
		}
		return nil
	})
	return err
}

func (s *RedisStatsStore) expiring(ctx context.Context, p redis.Pipeliner, hash, field string) {
	p.HIncrBy(ctx, hash, field, 1)
	if s.ttl > 0 {
		p.Expire(ctx, hash, s.ttl)
	}
}
