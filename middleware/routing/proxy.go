package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"time"

	"edge-gateway/middleware/pipeline"
	"edge-gateway/middleware/ratelimit/application"
	"edge-gateway/middleware/ratelimit/domain"
	"edge-gateway/middleware/ratelimit/infra"

	"github.com/sirupsen/logrus"
)

var (
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamSaturated   = errors.New("upstream saturated")
)

type ProxyOptions struct {
	// Transport padrão: http.DefaultTransport.
	Transport http.RoundTripper
	// Timeout cobre a chamada inteira ao upstream (0 = sem limite próprio).
	Timeout time.Duration
	// MaxConcurrent limita chamadas simultâneas (0 = sem limite).
	MaxConcurrent int
	// AcquireTimeout é a espera máxima por uma vaga (0 = até o cliente desistir).
	AcquireTimeout time.Duration
	// FlushInterval repassado ao ReverseProxy (-1 = flush a cada write).
	FlushInterval time.Duration

	Log logrus.FieldLogger
}

// Proxy é o pipeline.Upstream do gateway.
type Proxy struct {
	transport     http.RoundTripper
	timeout       time.Duration
	flushInterval time.Duration
	slots         application.ConcurrencyService
	log           logrus.FieldLogger
}

var _ pipeline.Upstream = (*Proxy)(nil)

func NewProxy(opts ProxyOptions) *Proxy {
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Proxy{
		transport:     opts.Transport,
		timeout:       opts.Timeout,
		flushInterval: opts.FlushInterval,
		slots: application.ConcurrencyService{
			Pool:           infra.NewChanPool(opts.MaxConcurrent),
			AcquireTimeout: opts.AcquireTimeout,
		},
		log: opts.Log.WithField("component", "routing"),
	}
}

// Forward envia r para t.URL. Erros voltam como *pipeline.UpstreamError com o
// status sugerido (504 timeout, 503 conexão/saturação); o pipeline escreve o
// envelope. Cancelamento do cliente volta como o erro do contexto.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request, rc *pipeline.RequestContext, t pipeline.Target) error {
	release, err := p.slots.Acquire(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNoSlot) {
			return &pipeline.UpstreamError{
				Status: http.StatusServiceUnavailable,
				Err:    fmt.Errorf("%w: %s: %w", ErrUpstreamSaturated, t.RouteID, err),
			}
		}
		return err
	}
	defer release()

	ctx := r.Context()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var proxyErr error
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			target := *t.URL
			pr.Out.URL = &target
			pr.Out.Host = ""

			// mantém a cadeia recebida e acrescenta o cliente atual
			if prior, ok := pr.In.Header["X-Forwarded-For"]; ok {
				pr.Out.Header["X-Forwarded-For"] = append([]string(nil), prior...)
			}
			pr.SetXForwarded()

			rc.ApplyDerivedHeaders(pr.Out.Header)
			pr.Out.Header.Set(pipeline.HeaderRequestID, rc.ID)
		},
		Transport:     p.transport,
		FlushInterval: p.flushInterval,
		ModifyResponse: func(resp *http.Response) error {
			for name, values := range rc.ResponseHeader() {
				resp.Header[name] = append([]string(nil), values...)
			}
			return nil
		},
		ErrorHandler: func(_ http.ResponseWriter, _ *http.Request, err error) {
			proxyErr = err
		},
	}
	rp.ServeHTTP(w, r.WithContext(ctx))

	if proxyErr == nil {
		return nil
	}
	if r.Context().Err() != nil {
		return fmt.Errorf("%s: %w", t.RouteID, r.Context().Err())
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &pipeline.UpstreamError{
			Status: http.StatusGatewayTimeout,
			Err:    fmt.Errorf("%w: %s after %s: %w", ErrUpstreamTimeout, t.RouteID, p.timeout, proxyErr),
		}
	}
	return &pipeline.UpstreamError{
		Status: http.StatusServiceUnavailable,
		Err:    fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, t.RouteID, proxyErr),
	}
}
