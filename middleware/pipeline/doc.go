// Package pipeline compõe os stages do gateway (auth, rate limit, roteamento)
// em uma cadeia ordenada aplicada a cada requisição.
//
// Fluxo:
//
//  1. Monta um RequestContext (snapshot da requisição + anotações mutáveis)
//  2. Marca o path como público se casar com algum prefixo configurado
//  3. Executa os stages em ordem; stages Protected são pulados em paths públicos
//  4. O primeiro Outcome diferente de Continue encerra a cadeia (short-circuit):
//     Reject vira a resposta JSON, Forward é entregue ao Upstream
//  5. Todo erro/panic de stage ou de upstream vira o envelope 503 do gateway
//  6. Os Observers (access log, métricas) rodam uma única vez por requisição,
//     em qualquer caminho de saída
package pipeline
