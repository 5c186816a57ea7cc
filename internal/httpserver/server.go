// Package httpserver exposes the broker's health and metrics surface
// on a net/http ServeMux wrapped by middleware.RequestID, scoped down
// to the two endpoints this service needs: liveness/readiness and
// Prometheus scraping.
package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rp-notify/broker/internal/middleware"
)

// StateFunc reports the processor's current lifecycle stage for
// /healthz to surface.
type StateFunc func() string

// healthResponse is the JSON body /healthz returns.
type healthResponse struct {
	Status string `json:"status"`
}

// New builds the broker's HTTP surface: /healthz and /metrics.
func New(state StateFunc) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if state != nil {
			status = state()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{Status: status})
	})

	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
