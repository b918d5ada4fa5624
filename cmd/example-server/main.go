package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edge-gateway/middleware/pipeline"
	"edge-gateway/server"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type echo struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	Query     string `json:"query,omitempty"`
	UserID    string `json:"userId,omitempty"`
	UserRole  string `json:"userRole,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Forwarded string `json:"forwardedFor,omitempty"`
}

// Upstream de exemplo: devolve o que o gateway encaminhou, incluindo a
// identidade derivada (X-User-Id / X-User-Role).
func main() {
	log := logrus.New()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.HandleFunc("/*", func(w http.ResponseWriter, req *http.Request) {
		body := echo{
			Method:    req.Method,
			Path:      req.URL.Path,
			Query:     req.URL.RawQuery,
			UserID:    req.Header.Get(pipeline.HeaderUserID),
			UserRole:  req.Header.Get(pipeline.HeaderUserRole),
			RequestID: req.Header.Get(pipeline.HeaderRequestID),
			Forwarded: req.Header.Get("X-Forwarded-For"),
		}
		log.WithFields(logrus.Fields{"method": body.Method, "path": body.Path, "user": body.UserID}).Info("echo")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})

	addr := ":8082"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	srv := server.New(addr, r, 10*time.Second)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("example upstream listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server error")
	}
}
