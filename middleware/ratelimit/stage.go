package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"edge-gateway/middleware/pipeline"
	"edge-gateway/middleware/ratelimit/application"
	"edge-gateway/middleware/ratelimit/domain"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderRetryAfter = "Retry-After"

	ExceededMessage = "Rate limit exceeded"
)

// DecisionRecorder recebe cada decisão (ex: contador Prometheus).
type DecisionRecorder interface {
	RateLimitDecision(outcome domain.Outcome)
}

type Options struct {
	Store domain.CounterStore
	// Stats é opcional e best-effort.
	Stats domain.StatsStore
	KeyFn KeyFunc

	KeyPrefix                string
	IdentityHeader           string
	UseAuthenticatedIdentity bool

	Window       time.Duration
	Limit        int64
	StoreTimeout time.Duration

	Log      logrus.FieldLogger
	Recorder DecisionRecorder
}

// Stage aplica o rate limit fixed-window. Falha aberto: problema no store
// nunca vira erro para o cliente.
type Stage struct {
	svc      application.Service
	stats    domain.StatsStore
	keyFn    KeyFunc
	prefix   string
	timeout  time.Duration
	log      logrus.FieldLogger
	recorder DecisionRecorder

	// store fora do ar gera um warning por request; amostramos
	warn rate.Sometimes
}

var _ pipeline.Stage = (*Stage)(nil)

func NewStage(opts Options) *Stage {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "gateway:rate"
	}
	if opts.Window <= 0 {
		opts.Window = 60 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.IdentityHeader, opts.UseAuthenticatedIdentity)
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	return &Stage{
		svc: application.Service{
			Store:        opts.Store,
			Window:       domain.Window{Length: opts.Window, Limit: opts.Limit},
			StoreTimeout: opts.StoreTimeout,
		},
		stats:    opts.Stats,
		keyFn:    opts.KeyFn,
		prefix:   strings.TrimSuffix(opts.KeyPrefix, ":"),
		timeout:  opts.StoreTimeout,
		log:      opts.Log.WithField("component", "ratelimit"),
		recorder: opts.Recorder,
		warn:     rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
}

func (s *Stage) Name() string { return "ratelimit" }

// Key monta a chave do contador para esta requisição.
func (s *Stage) Key(rc *pipeline.RequestContext) domain.Key {
	return domain.Key(s.prefix + ":" + s.keyFn(rc))
}

func (s *Stage) Handle(ctx context.Context, rc *pipeline.RequestContext) (pipeline.Outcome, error) {
	key := s.Key(rc)

	dec, err := s.svc.Decide(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// cliente desistiu; o upstream vai falhar do mesmo jeito
			rc.Annotate(pipeline.AnnotationRateLimit, "cancelled")
			return pipeline.Continue(), nil
		}
		s.warn.Do(func() {
			s.log.WithError(err).WithField("key", string(key)).Warn("rate limiting failed, allowing request")
		})
		rc.Annotate(pipeline.AnnotationRateLimit, "fail-open")
		s.record(ctx, rc, key, domain.OutcomeFailOpen, 0)
		return pipeline.Continue(), nil
	}

	if !dec.Allowed {
		s.log.WithField("key", string(key)).WithField("count", dec.Count).Debug("rate limit exceeded")
		rc.Annotate(pipeline.AnnotationRateLimit, "exceeded")
		s.record(ctx, rc, key, domain.OutcomeDenied, dec.Count)

		retry := seconds(dec.RetryAfter)
		return pipeline.Reject(http.StatusTooManyRequests, pipeline.ErrorBody{
			Error:      ExceededMessage,
			RetryAfter: &retry,
		}).
			WithHeader(HeaderRetryAfter, formatSeconds(dec.RetryAfter)).
			WithHeader(HeaderRemaining, "0"), nil
	}

	rc.Annotate(pipeline.AnnotationRateLimit, "ok")
	rc.ResponseHeader().Set(HeaderRemaining, formatInt64(dec.Remaining))
	s.record(ctx, rc, key, domain.OutcomeAllowed, dec.Count)
	return pipeline.Continue(), nil
}

func (s *Stage) record(ctx context.Context, rc *pipeline.RequestContext, key domain.Key, outcome domain.Outcome, count int64) {
	if s.recorder != nil {
		s.recorder.RateLimitDecision(outcome)
	}
	if s.stats == nil {
		return
	}

	ev := domain.StatsEvent{
		Key:     key,
		Outcome: outcome,
		Count:   count,
		Method:  rc.Method,
		Path:    rc.Path,
		At:      time.Now(),
	}
	timeout := s.timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	// fora do caminho da resposta; sobrevive ao fim da requisição
	go func() {
		statsCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := s.stats.Record(statsCtx, ev); err != nil {
			s.log.WithError(err).Debug("rate limit stats not recorded")
		}
	}()
}
