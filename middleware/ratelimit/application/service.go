package application

import (
	"context"
	"fmt"
	"time"

	"edge-gateway/middleware/ratelimit/domain"
)

const defaultStoreTimeout = 100 * time.Millisecond

// Service concentra a regra de aplicação do rate limit (fixed window).
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store  domain.CounterStore
	Window domain.Window
	// StoreTimeout limita o round-trip (Incr + Expire) ao CounterStore.
	StoreTimeout time.Duration
}

// Decide incrementa o contador da chave e compara com o limite da janela.
//
// Quando o Incr retorna exatamente 1, esta requisição abriu uma janela nova e
// arma o TTL. Incr e Expire são duas operações separadas: na virada da janela
// um registro pode viver um pouco mais que Window.Length. É uma aproximação
// aceita de janela deslizante.
//
// Em erro do store a Decision retornada é Allowed (fail-open) e o erro vem
// embrulhado em domain.ErrStoreUnavailable para quem quiser logar.
func (s Service) Decide(ctx context.Context, key domain.Key) (domain.Decision, error) {
	if s.Store == nil || s.Window.Limit <= 0 {
		return domain.Decision{Allowed: true}, nil
	}
	timeout := s.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	count, err := s.Store.Incr(ctx, key)
	if err != nil {
		return domain.Decision{Allowed: true}, fmt.Errorf("%w: incr %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	if count == 1 {
		if _, err := s.Store.Expire(ctx, key, s.Window.Length); err != nil {
			return domain.Decision{Allowed: true}, fmt.Errorf("%w: expire %s: %w", domain.ErrStoreUnavailable, key, err)
		}
	}

	if count > s.Window.Limit {
		return domain.Decision{
			Allowed:    false,
			Count:      count,
			Remaining:  0,
			RetryAfter: s.Window.Length,
		}, nil
	}
	return domain.Decision{
		Allowed:   true,
		Count:     count,
		Remaining: max(0, s.Window.Limit-count),
	}, nil
}
