// Package application decide se uma chave ainda cabe na janela atual.
//
// Service.Decide(ctx, key) faz INCR, aplica o TTL quando a contagem é 1 e
// devolve allowed, remaining e retry-after. Só depende de domain.
package application
