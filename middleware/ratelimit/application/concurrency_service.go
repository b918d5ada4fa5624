package application

import (
	"context"
	"time"

	"edge-gateway/middleware/ratelimit/domain"
)

var noopRelease = func() {}

// ConcurrencyService aplica o tempo máximo de espera por uma vaga do pool.
// Pool nil significa sem limite.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire devolve o release da vaga obtida. Sem vaga, o erro diz quem desistiu:
// ctx.Err() quando foi o chamador, domain.ErrNoSlot quando o AcquireTimeout
// venceu com o pool cheio. AcquireTimeout <= 0 espera só pelo ctx.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return noopRelease, nil
	}

	wait, stop := ctx, context.CancelFunc(func() {})
	if s.AcquireTimeout > 0 {
		wait, stop = context.WithTimeout(ctx, s.AcquireTimeout)
	}
	defer stop()

	if release, ok := s.Pool.Acquire(wait); ok {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, domain.ErrNoSlot
}
