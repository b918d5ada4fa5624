package pipeline

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

type Kind int

const (
	KindContinue Kind = iota
	KindReject
	KindForward
)

func (k Kind) String() string {
	switch k {
	case KindContinue:
		return "continue"
	case KindReject:
		return "reject"
	case KindForward:
		return "forward"
	}
	return "unknown"
}

// Target é o destino resolvido de um Forward: URL final (base do upstream +
// path reescrito + query original).
type Target struct {
	RouteID string
	URL     *url.URL
}

// Outcome é o que um Stage devolve: seguir para o próximo, encerrar com uma
// resposta (Reject) ou despachar para o upstream (Forward).
type Outcome struct {
	Kind   Kind
	Status int
	Body   any
	Header http.Header
	Target Target
}

func Continue() Outcome {
	return Outcome{Kind: KindContinue}
}

func Reject(status int, body any) Outcome {
	return Outcome{Kind: KindReject, Status: status, Body: body, Header: make(http.Header)}
}

func Forward(t Target) Outcome {
	return Outcome{Kind: KindForward, Target: t}
}

// WithHeader devolve uma cópia do Outcome com o header setado.
func (o Outcome) WithHeader(name, value string) Outcome {
	h := o.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set(name, value)
	o.Header = h
	return o
}

// Unavailable é o envelope genérico de fallback (rota ausente, upstream fora).
func Unavailable(now time.Time) Outcome {
	return Reject(http.StatusServiceUnavailable, FallbackBody{
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Message:   FallbackMessage,
	})
}

// Stage é uma etapa da cadeia. Um erro não nulo é tratado como falha do stage
// e vira o envelope 503; rejeições esperadas (401, 429...) vêm como Outcome.
type Stage interface {
	Name() string
	Handle(ctx context.Context, rc *RequestContext) (Outcome, error)
}

// Protected é implementado por stages que não rodam em paths públicos (ex: auth).
type Protected interface {
	Protected() bool
}

// Upstream executa o Forward escrevendo a resposta em w. Erros antes de
// qualquer byte escrito viram o envelope do gateway.
type Upstream interface {
	Forward(w http.ResponseWriter, r *http.Request, rc *RequestContext, t Target) error
}

// UpstreamError permite ao Upstream sugerir o status da resposta de fallback
// (ex: 504 em timeout). Sem ele, o pipeline usa 503.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

// Entry é o que um Observer recebe ao fim de cada requisição.
type Entry struct {
	RequestID   string
	Method      string
	Path        string
	ClientAddr  string
	Status      int
	Duration    time.Duration
	Annotations map[string]string
	Err         error
}

// Observer não pode bloquear: roda no caminho da resposta.
type Observer interface {
	Observe(Entry)
}

type ObserverFunc func(Entry)

func (f ObserverFunc) Observe(e Entry) { f(e) }
