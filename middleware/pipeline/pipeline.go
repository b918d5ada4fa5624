package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "edge-gateway/middleware/pipeline"

// Pipeline aplica os stages em ordem fixa e produz exatamente uma resposta
// por requisição.
type Pipeline struct {
	stages         []Stage
	upstream       Upstream
	observers      []Observer
	publicPrefixes []string
	log            logrus.FieldLogger
	tracer         trace.Tracer
	newID          func() string
	now            func() time.Time
}

type Option func(*Pipeline)

// WithPublicPaths marca prefixos cujo tráfego pula os stages Protected.
func WithPublicPaths(prefixes ...string) Option {
	return func(p *Pipeline) {
		for _, prefix := range prefixes {
			if prefix = strings.TrimSpace(prefix); prefix != "" {
				p.publicPrefixes = append(p.publicPrefixes, prefix)
			}
		}
	}
}

func WithObservers(obs ...Observer) Option {
	return func(p *Pipeline) {
		for _, o := range obs {
			if o != nil {
				p.observers = append(p.observers, o)
			}
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = log }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// WithIDFunc troca o gerador de request ID (padrão: UUID v4).
func WithIDFunc(f func() string) Option {
	return func(p *Pipeline) { p.newID = f }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(upstream Upstream, stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:   stages,
		upstream: upstream,
		log:      logrus.StandardLogger(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	p.log = p.log.WithField("component", "pipeline")
	return p
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := NewRequestContext(r, p.newID())
	rc.Received = p.now()
	rc.Public = p.isPublic(rc.Path)

	sw := &statusWriter{ResponseWriter: w}
	sw.Header().Set(HeaderRequestID, rc.ID)

	var failure error
	defer func() {
		rec := recover()
		if rec != nil {
			failure = fmt.Errorf("panic: %v", rec)
			if rec != http.ErrAbortHandler {
				p.log.WithField("request_id", rc.ID).WithError(failure).Error("stage panicked")
				if !sw.wroteHeader {
					p.writeOutcome(sw, rc, Unavailable(p.now()))
				}
			}
		}

		status := sw.status
		if !sw.wroteHeader {
			status = http.StatusOK
			if r.Context().Err() != nil {
				status = StatusClientClosedRequest
			}
		}
		p.observe(Entry{
			RequestID:   rc.ID,
			Method:      rc.Method,
			Path:        rc.Path,
			ClientAddr:  rc.ClientAddr,
			Status:      status,
			Duration:    p.now().Sub(rc.Received),
			Annotations: rc.Annotations(),
			Err:         failure,
		})

		if rec == http.ErrAbortHandler {
			panic(rec)
		}
	}()

	out, err := p.run(r.Context(), rc)
	if err != nil {
		failure = err
		p.log.WithField("request_id", rc.ID).WithError(err).Error("stage failed")
		p.writeOutcome(sw, rc, Unavailable(p.now()))
		return
	}

	switch out.Kind {
	case KindForward:
		failure = p.forward(sw, r, rc, out.Target)
	default:
		p.writeOutcome(sw, rc, out)
	}
}

// run percorre os stages até o primeiro Outcome terminal.
func (p *Pipeline) run(ctx context.Context, rc *RequestContext) (Outcome, error) {
	for _, st := range p.stages {
		if rc.Public && isProtected(st) {
			continue
		}

		stageCtx, span := p.tracer.Start(ctx, "stage."+st.Name(),
			trace.WithAttributes(attribute.String("request.id", rc.ID)))
		out, err := st.Handle(stageCtx, rc)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return Outcome{}, fmt.Errorf("stage %s: %w", st.Name(), err)
		}
		span.SetAttributes(attribute.String("stage.outcome", out.Kind.String()))
		span.End()

		if out.Kind != KindContinue {
			return out, nil
		}
	}
	// nenhum stage decidiu: não há para onde despachar
	return Unavailable(p.now()), nil
}

func (p *Pipeline) forward(w *statusWriter, r *http.Request, rc *RequestContext, t Target) error {
	if p.upstream == nil {
		p.writeOutcome(w, rc, Unavailable(p.now()))
		return errors.New("no upstream configured")
	}

	err := p.upstream.Forward(w, r, rc, t)
	if err == nil {
		return nil
	}

	entry := p.log.WithField("request_id", rc.ID).WithField("route", t.RouteID).WithError(err)
	if r.Context().Err() != nil {
		// cliente foi embora: não há a quem responder
		entry.Debug("client cancelled during upstream call")
		return err
	}
	entry.Error("upstream call failed")

	if w.wroteHeader {
		return err
	}
	out := Unavailable(p.now())
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Status != 0 {
		out.Status = ue.Status
	}
	p.writeOutcome(w, rc, out)
	return err
}

func (p *Pipeline) writeOutcome(w http.ResponseWriter, rc *RequestContext, out Outcome) {
	h := rc.ResponseHeader().Clone()
	for name, values := range out.Header {
		h[name] = values
	}
	status := out.Status
	if status == 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h, out.Body)
}

func (p *Pipeline) observe(e Entry) {
	for _, o := range p.observers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					p.log.WithField("request_id", e.RequestID).Warnf("observer panicked: %v", rec)
				}
			}()
			o.Observe(e)
		}()
	}
}

func (p *Pipeline) isPublic(path string) bool {
	for _, prefix := range p.publicPrefixes {
		if MatchPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// MatchPrefix casa prefixos por segmento: "/api/auth" casa "/api/auth" e
// "/api/auth/login", mas não "/api/authz".
func MatchPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

func isProtected(st Stage) bool {
	pr, ok := st.(Protected)
	return ok && pr.Protected()
}
