// Package infra implementa as portas de domain.
//
//   - RedisCounterStore e MemoryCounterStore: contador da janela com TTL
//   - RedisStatsStore e MemoryStatsStore: contagem das decisões
//   - NewChanPool: vagas para chamadas ao upstream
package infra
