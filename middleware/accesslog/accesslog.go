// Package accesslog escreve uma linha de access log por requisição sem bloquear
// o caminho da resposta: as entradas passam por um channel limitado e são
// escritas por uma goroutine própria. Com o buffer cheio a entrada é descartada
// e contada.
package accesslog

import (
	"sync"
	"sync/atomic"

	"edge-gateway/middleware/pipeline"

	"github.com/sirupsen/logrus"
)

const defaultBuffer = 1024

// DropCounter é avisado a cada entrada descartada (ex: métrica Prometheus).
type DropCounter interface {
	AccessLogDropped()
}

type Options struct {
	Log     logrus.FieldLogger
	Buffer  int
	Dropped DropCounter
}

// Logger implementa pipeline.Observer.
type Logger struct {
	log     logrus.FieldLogger
	entries chan pipeline.Entry
	counter DropCounter
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ pipeline.Observer = (*Logger)(nil)

func New(opts Options) *Logger {
	l := newLogger(opts)
	go l.run()
	return l
}

func newLogger(opts Options) *Logger {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Logger{
		log:     opts.Log,
		entries: make(chan pipeline.Entry, opts.Buffer),
		counter: opts.Dropped,
		done:    make(chan struct{}),
	}
}

// Observe nunca bloqueia.
func (l *Logger) Observe(e pipeline.Entry) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.entries <- e:
	default:
		l.dropped.Add(1)
		if l.counter != nil {
			l.counter.AccessLogDropped()
		}
	}
}

// Dropped devolve quantas entradas foram descartadas desde o início.
func (l *Logger) Dropped() int64 { return l.dropped.Load() }

// Close para de aceitar entradas e espera o que está no buffer ser escrito.
func (l *Logger) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.entries)
	}
	l.mu.Unlock()
	<-l.done
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.entries {
		l.write(e)
	}
}

func (l *Logger) write(e pipeline.Entry) {
	fields := logrus.Fields{
		"method":      e.Method,
		"path":        e.Path,
		"status":      e.Status,
		"duration_ms": e.Duration.Milliseconds(),
		"client":      orDash(e.ClientAddr),
		"request_id":  e.RequestID,
	}
	if v := e.Annotations[pipeline.AnnotationRoute]; v != "" {
		fields["route"] = v
	}
	if v := e.Annotations[pipeline.AnnotationSubject]; v != "" {
		fields["subject"] = v
	}
	if v := e.Annotations[pipeline.AnnotationRateLimit]; v != "" {
		fields["ratelimit"] = v
	}

	entry := l.log.WithFields(fields)
	if e.Err != nil {
		entry = entry.WithError(e.Err)
	}
	entry.Info("request")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
