// Package ratelimit liga o limitador fixed-window ao pipeline do gateway.
//
// Pacotes:
//
//   - domain: portas (CounterStore, StatsStore, SlotPool) e tipos, sem net/http
//   - application: Service (INCR, EXPIRE na primeira batida, decisão) e
//     ConcurrencyService (espera por vaga com timeout)
//   - infra: Redis e memória para contadores e estatísticas, semáforo em channel
//   - ratelimit: o Stage, a resolução de identidade e os headers de resposta
//
// Por requisição o Stage resolve a identidade, incrementa prefix:identidade e
// responde 429 quando a janela estoura. Erro no store não bloqueia ninguém: a
// requisição segue e o log registra um aviso.
package ratelimit
