// Package routing resolve o upstream de cada requisição e executa o proxy.
//
//   - Table: rotas estáticas, casamento pelo prefixo literal mais longo, strip de
//     N segmentos e junção com a URI base do upstream
//   - Stage: último stage do pipeline; rota ausente vira o envelope 503
//   - Proxy: pipeline.Upstream sobre httputil.ReverseProxy, com timeout e limite
//     de chamadas simultâneas (ConcurrencyService do pacote ratelimit)
package routing
