package server

import (
	"net/http"
	"time"
)

// New devolve um http.Server com os timeouts de leitura/idle do gateway.
// WriteTimeout fica a cargo do timeout de upstream.
func New(addr string, h http.Handler, readHeaderTimeout time.Duration) *http.Server {
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 10 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}
