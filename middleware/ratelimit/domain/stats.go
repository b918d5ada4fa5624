package domain

import (
	"context"
	"time"
)

// Outcome classifica a decisão para fins de estatística.
type Outcome string

const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeDenied   Outcome = "denied"
	OutcomeFailOpen Outcome = "failopen"
)

// StatsEvent descreve uma decisão tomada pelo limitador.
//
// Key e Path vêm do tráfego: com track_keys ligado a cardinalidade no Redis
// cresce com o número de clientes.
type StatsEvent struct {
	Key     Key
	Outcome Outcome
	// Count é o valor do contador da janela depois do INCR (0 em fail-open).
	Count  int64
	Method string
	Path   string
	At     time.Time
}

// StatsStore persiste eventos. Falhas aqui nunca mudam a resposta ao cliente.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
