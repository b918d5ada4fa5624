package infra

import (
	"context"

	"edge-gateway/middleware/ratelimit/domain"
)

// chanPool é um semáforo: cada vaga ocupada é um valor no buffer.
type chanPool chan struct{}

// NewChanPool limita a `max` chamadas simultâneas ao upstream.
// Com max <= 0 não há limite e o retorno é nil.
func NewChanPool(max int) domain.SlotPool {
	if max <= 0 {
		return nil
	}
	return make(chanPool, max)
}

func (p chanPool) Acquire(ctx context.Context) (func(), bool) {
	// vaga livre tem prioridade sobre ctx já encerrado
	select {
	case p <- struct{}{}:
		return p.release, true
	default:
	}
	select {
	case p <- struct{}{}:
		return p.release, true
	case <-ctx.Done():
		return nil, false
	}
}

func (p chanPool) release() { <-p }
