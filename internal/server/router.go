package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AGO523/node-news-notification/internal/handlers"
	"github.com/AGO523/node-news-notification/internal/middleware"
)

// NewRouter constructs a ServeMux with the ingestion API routes registered.
func NewRouter(h *handlers.PublishHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/publish", h.HandlePublish)

	// Health endpoints
	mux.HandleFunc("/", h.Root)
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
