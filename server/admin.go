// Package server monta os http.Server do gateway e o router da porta admin
// (/healthz, /readyz, /metrics).
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"edge-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger é o counter store visto pela readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsReporter expõe as contagens de decisões do rate limit (store em memória).
type StatsReporter interface {
	Total() infra.Counters
	ByRoute() map[string]infra.Counters
	ByKey() map[string]infra.Counters
}

type AdminOptions struct {
	Store       Pinger
	Metrics     http.Handler
	Stats       StatsReporter
	PingTimeout time.Duration
}

type statsBody struct {
	Total  infra.Counters            `json:"total"`
	Routes map[string]infra.Counters `json:"routes"`
	Keys   map[string]infra.Counters `json:"keys,omitempty"`
}

type readiness struct {
	Status       string `json:"status"`
	CounterStore string `json:"counter_store"`
}

func NewAdminRouter(opts AdminOptions) *chi.Mux {
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	// o limiter falha aberto: store fora do ar degrada, mas não tira o gateway
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		body := readiness{Status: "ok", CounterStore: "disabled"}
		if opts.Store != nil {
			ctx, cancel := context.WithTimeout(req.Context(), opts.PingTimeout)
			defer cancel()
			if err := opts.Store.Ping(ctx); err != nil {
				body = readiness{Status: "degraded", CounterStore: "down"}
			} else {
				body.CounterStore = "up"
			}
		}
		writeJSON(w, body)
	})

	if opts.Stats != nil {
		r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, statsBody{
				Total:  opts.Stats.Total(),
				Routes: opts.Stats.ByRoute(),
				Keys:   opts.Stats.ByKey(),
			})
		})
	}

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	return r
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}
