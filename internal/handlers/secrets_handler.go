package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/radlink-systems/pacsgate/internal/audit"
	"github.com/radlink-systems/pacsgate/internal/httputil"
	"github.com/radlink-systems/pacsgate/internal/logging"
	"github.com/radlink-systems/pacsgate/internal/middleware"
	"github.com/radlink-systems/pacsgate/internal/models"
	"github.com/radlink-systems/pacsgate/internal/rotation"
	"github.com/radlink-systems/pacsgate/internal/secrets"
	"github.com/radlink-systems/pacsgate/internal/signature"
)

// HeaderRotationSignature authenticates the rotation webhook with its own
// shared secret, independent of the archive webhook key.
const HeaderRotationSignature = "Rotation-Signature"

// SecretsHandler terminates the rotation webhook and the operator cache
// endpoints.
type SecretsHandler struct {
	secrets     *secrets.Client
	coordinator *rotation.Coordinator
	verifier    *signature.Verifier // nil disables rotation webhook auth
	emitter     *audit.Emitter
	logger      *logging.Logger
}

// NewSecretsHandler creates the handler. verifier may be nil when no rotation
// webhook key is configured, in which case the endpoint accepts unsigned
// notifications (development only).
func NewSecretsHandler(sc *secrets.Client, coordinator *rotation.Coordinator, verifier *signature.Verifier, emitter *audit.Emitter, logger *logging.Logger) *SecretsHandler {
	return &SecretsHandler{
		secrets:     sc,
		coordinator: coordinator,
		verifier:    verifier,
		emitter:     emitter,
		logger:      logger,
	}
}

// HandleRotationWebhook processes POST /secrets/rotation-webhook. Rotation
// handling itself runs on its own goroutine: a restart-class rotation can
// take seconds and must not occupy a request-serving slot.
func (h *SecretsHandler) HandleRotationWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	corrID := middleware.GetCorrelationID(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	defer r.Body.Close()

	if h.verifier != nil {
		result, err := h.verifier.Verify(r.Context(), body,
			r.Header.Get(HeaderRotationSignature),
			r.Header.Get(HeaderTimestamp),
			r.Header.Get(HeaderNonce),
			getClientIP(r))
		if err != nil {
			h.logger.ErrorContext(r.Context(), "rotation webhook verification error", logging.Error(err))
			httputil.WriteJSON(w, http.StatusInternalServerError,
				models.ErrorResponse{Success: false, Reason: "internal_error", CorrelationID: corrID})
			return
		}
		if !result.Valid {
			h.emitter.Emit(r.Context(), audit.EventInvalidSignature, map[string]interface{}{
				"endpoint":  "rotation-webhook",
				"source_ip": getClientIP(r),
				"reason":    result.Reason,
			})
			httputil.WriteJSON(w, http.StatusUnauthorized,
				models.ErrorResponse{Success: false, Reason: result.Reason, CorrelationID: corrID})
			return
		}
	}

	var event models.RotationEvent
	if err := json.Unmarshal(body, &event); err != nil || event.SecretPath == "" || !event.ValidAction() {
		httputil.WriteJSON(w, http.StatusBadRequest,
			models.ErrorResponse{Success: false, Reason: "invalid_rotation_event", CorrelationID: corrID})
		return
	}

	// Detach from the request lifecycle but keep the correlation ID so the
	// rotation audit trail links back to this notification.
	bgCtx := context.WithoutCancel(r.Context())
	go func() {
		ctx, cancel := context.WithTimeout(bgCtx, 2*time.Minute)
		defer cancel()
		if err := h.coordinator.HandleRotationEvent(ctx, event); err != nil {
			h.logger.ErrorContext(ctx, "rotation handling failed",
				logging.SecretPath(event.SecretPath), logging.Error(err))
		}
	}()

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"status":        "accepted",
		"correlationId": corrID,
	})
}

// HandleRefresh processes POST /secrets/refresh: manual cache-clear plus
// re-fetch of every configured bundle.
func (h *SecretsHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := h.coordinator.Refresh(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "secret refresh failed", logging.Error(err))
		httputil.WriteJSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Success:       false,
			Reason:        "refresh_failed",
			CorrelationID: middleware.GetCorrelationID(r.Context()),
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"cache":   h.secrets.CacheStats(),
	})
}

// HandleStatus processes GET /secrets/status. Provider name, cache size, and
// TTL only; secret values are never reported.
func (h *SecretsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.secrets.CacheStats())
}
