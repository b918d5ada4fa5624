package infra

import (
	"context"
	"maps"
	"sync"

	"edge-gateway/middleware/ratelimit/domain"
)

// Counters soma as decisões por resultado. Serializado em /stats.
type Counters struct {
	Allowed  int64 `json:"allowed"`
	Denied   int64 `json:"denied"`
	FailOpen int64 `json:"failopen"`
}

func (c Counters) plus(o domain.Outcome) Counters {
	switch o {
	case domain.OutcomeAllowed:
		c.Allowed++
	case domain.OutcomeDenied:
		c.Denied++
	case domain.OutcomeFailOpen:
		c.FailOpen++
	}
	return c
}

// MemoryStatsStore guarda as contagens no processo. Usado quando não há Redis
// (store "memory") e lido pela rota /stats da porta admin. Sem expiração.
type MemoryStatsStore struct {
	mu        sync.Mutex
	total     Counters
	routes    map[string]Counters
	keys      map[string]Counters
	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{routes: map[string]Counters{}, keys: map[string]Counters{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total = s.total.plus(ev.Outcome)

	route := ev.Method + " " + ev.Path
	s.routes[route] = s.routes[route].plus(ev.Outcome)

	if s.trackKeys {
		id := string(ev.Key)
		s.keys[id] = s.keys[id].plus(ev.Outcome)
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ByRoute devolve uma cópia, indexada por "<METHOD> <path>".
func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.routes)
}

// ByKey só tem conteúdo com WithTrackKeys(true).
func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.keys)
}
