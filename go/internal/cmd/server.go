package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/staffdraft/go/internal/draft/gateway"
)

func setupServer(cfg Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Websocket, state and admin routes
	services.Gateway.RegisterRoutes(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /health/outbox", services.Outbox)
	setupHealthCheck(mux)

	handler := gateway.CORSMiddleware(cfg.AllowedOrigins, mux)

	// h2c lets Connect clients speak HTTP/2 without TLS
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
