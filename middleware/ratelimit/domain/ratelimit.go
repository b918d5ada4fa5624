package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"time"
)

type Key string

// ErrStoreUnavailable indica falha de transporte/timeout no CounterStore.
// Quem decide o que fazer com ela é a camada HTTP (fail-open).
var ErrStoreUnavailable = errors.New("counter store unavailable")

// CounterStore é o contrato mínimo com um key-value externo com incremento
// atômico e TTL (ex: Redis INCR/EXPIRE).
//
// Cada operação é atômica individualmente; não existe transação entre as duas.
// Nenhum componente deste sistema apaga um contador: a janela só "vira" quando
// o TTL expira e o próximo Incr recomeça em 1.
type CounterStore interface {
	Incr(ctx context.Context, key Key) (int64, error)
	Expire(ctx context.Context, key Key, ttl time.Duration) (bool, error)
}

// Window descreve a política fixed-window aplicada a uma chave.
type Window struct {
	Length time.Duration
	Limit  int64
}

type Decision struct {
	Allowed bool
	// Count é o valor retornado pelo Incr nesta requisição.
	Count int64
	// Remaining = max(0, limit - count).
	Remaining int64
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
