package infra

import (
	"context"
	"testing"
	"time"

	"edge-gateway/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_CountsByOutcome(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Key: "a", Outcome: domain.OutcomeAllowed, Method: "GET", Path: "/x"})
	_ = s.Record(ctx, domain.StatsEvent{Key: "a", Outcome: domain.OutcomeDenied, Method: "GET", Path: "/x"})
	_ = s.Record(ctx, domain.StatsEvent{Key: "b", Outcome: domain.OutcomeFailOpen, Method: "POST", Path: "/y"})

	assert.Equal(t, Counters{Allowed: 1, Denied: 1, FailOpen: 1}, s.Total())
	assert.Equal(t, Counters{Allowed: 1, Denied: 1}, s.ByRoute()["GET /x"])
	assert.Equal(t, Counters{FailOpen: 1}, s.ByKey()["b"])
}

func TestRedisStatsStore_WritesTotalsBucketsAndKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewRedisStatsStore(rdb,
		WithStatsPrefix("stats:"),
		WithStatsTTL(time.Hour),
		WithStatsBucket("minute"),
		WithStatsTrackKeys(true),
	)

	at := time.Date(2026, 10, 17, 12, 30, 0, 0, time.UTC)
	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{
		Key: "gateway:rate:1.2.3.4", Outcome: domain.OutcomeDenied, Method: "GET", Path: "/api/auth/login", At: at,
	}))

	assert.Equal(t, "1", mr.HGet("stats:total", "denied"))
	assert.Equal(t, "1", mr.HGet("stats:minute:202610171230", "denied"))
	assert.Equal(t, time.Hour, mr.TTL("stats:minute:202610171230"))
	assert.Equal(t, "1", mr.HGet("stats:route", "GET /api/auth/login:denied"))
	assert.Equal(t, "1", mr.HGet("stats:key:gateway:rate:1.2.3.4", "denied"))
}
