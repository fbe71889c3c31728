package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/radlink-systems/pacsgate/internal/handlers"
	"github.com/radlink-systems/pacsgate/internal/middleware"
)

// NewRouter constructs a ServeMux with the gateway routes registered. The
// operator endpoints are wrapped with admin auth; the rotation webhook
// carries its own HMAC and stays open at the router level.
func NewRouter(wh *handlers.WebhookHandler, sh *handlers.SecretsHandler, admin *middleware.AdminAuth) http.Handler {
	mux := http.NewServeMux()

	// Archive notification intake
	mux.HandleFunc("/webhook/new-instance", wh.HandleNewInstance)

	// Secret rotation surface
	mux.HandleFunc("/secrets/rotation-webhook", sh.HandleRotationWebhook)
	mux.HandleFunc("/secrets/refresh", admin.RequireAdmin(sh.HandleRefresh))
	mux.HandleFunc("/secrets/status", admin.RequireAdmin(sh.HandleStatus))

	// Health endpoints
	mux.HandleFunc("/healthz", wh.Health)
	mux.HandleFunc("/readyz", wh.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.CorrelationID(mux)
}
