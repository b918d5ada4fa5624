package domain

import (
	"context"
	"errors"
)

// SlotPool limita quantas requisições estão no upstream ao mesmo tempo.
//
// Acquire espera por uma vaga enquanto ctx estiver ativo. O release devolvido
// precisa ser chamado uma única vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

// ErrNoSlot: o tempo de espera acabou e o pool seguia cheio.
var ErrNoSlot = errors.New("no slot available")
