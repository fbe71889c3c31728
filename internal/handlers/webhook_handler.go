package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/radlink-systems/pacsgate/internal/httputil"
	"github.com/radlink-systems/pacsgate/internal/models"
	"github.com/radlink-systems/pacsgate/internal/service"
)

// Webhook authentication headers (spec'd with the archive vendor).
const (
	HeaderSignature = "Signature"
	HeaderTimestamp = "Timestamp"
	HeaderNonce     = "Nonce"
)

// WebhookHandler terminates the new-instance notification endpoint.
type WebhookHandler struct {
	gateway     *service.Gateway
	maxBodySize int64
}

// NewWebhookHandler creates the handler. maxBodySize bounds how much of a
// request body is read before rejection.
func NewWebhookHandler(gateway *service.Gateway, maxBodySize int64) *WebhookHandler {
	return &WebhookHandler{
		gateway:     gateway,
		maxBodySize: maxBodySize,
	}
}

// HandleNewInstance processes POST /webhook/new-instance. Any panic below
// this point is converted into an audited processing_error and a generic 500;
// no internal failure escapes without a correlating audit record.
func (h *WebhookHandler) HandleNewInstance(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome := h.gateway.InternalError(r.Context(), "handler", fmt.Errorf("panic: %v", rec))
			httputil.WriteJSON(w, outcome.Status, outcome.Body)
		}
	}()

	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	defer r.Body.Close()

	req := &models.WebhookRequest{
		SourceIP:   getClientIP(r),
		Body:       body,
		Signature:  r.Header.Get(HeaderSignature),
		Timestamp:  r.Header.Get(HeaderTimestamp),
		Nonce:      r.Header.Get(HeaderNonce),
		ReceivedAt: time.Now(),
	}

	outcome := h.gateway.ProcessNewInstance(r.Context(), req)
	if outcome.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(outcome.RetryAfter))
	}
	httputil.WriteJSON(w, outcome.Status, outcome.Body)
}

// Health reports liveness.
func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready reports readiness with dispatch queue occupancy.
func (h *WebhookHandler) Ready(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ready",
		"dispatch": h.gateway.DispatchStats(),
	})
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}
