package infra

import (
	"context"
	"sync"
	"time"

	"edge-gateway/middleware/ratelimit/domain"
)

// MemoryCounterStore é um CounterStore em memória com a mesma semântica do
// Redis (INCR cria com 1, EXPIRE arma TTL, chave expirada recomeça do zero).
//
// Útil para testes e para rodar um único gateway sem Redis. Não é compartilhado
// entre processos.
type MemoryCounterStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*counterEntry
	now          func() time.Time
	cleanupEvery time.Duration
}

type counterEntry struct {
	count    int64
	expireAt time.Time // zero = sem TTL
}

type MemoryCounterOption func(*MemoryCounterStore)

// WithClock troca o relógio (testes simulam a virada da janela sem dormir).
func WithClock(now func() time.Time) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func WithCleanupEvery(d time.Duration) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

func NewMemoryCounterStore(opts ...MemoryCounterOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries:      make(map[domain.Key]*counterEntry),
		now:          time.Now,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.CounterStore = (*MemoryCounterStore)(nil)

func (s *MemoryCounterStore) Incr(_ context.Context, key domain.Key) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || ent.expired(now) {
		ent = &counterEntry{}
		s.entries[key] = ent
	}
	ent.count++
	return ent.count, nil
}

func (s *MemoryCounterStore) Expire(_ context.Context, key domain.Key, ttl time.Duration) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || ent.expired(now) {
		return false, nil
	}
	ent.expireAt = now.Add(ttl)
	return true, nil
}

// Count devolve o valor atual (0 se ausente/expirado). Só para inspeção.
func (s *MemoryCounterStore) Count(key domain.Key) int64 {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || ent.expired(now) {
		return 0
	}
	return ent.count
}

func (s *MemoryCounterStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.expired(now) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que remove contadores expirados periodicamente.
// Pare cancelando o contexto.
func (s *MemoryCounterStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

func (e *counterEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}
