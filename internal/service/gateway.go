// Package service implements the per-request decision chain of the webhook
// gateway: rate limit, signature and freshness verification, payload
// validation, then asynchronous handoff to the processing backend.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/radlink-systems/pacsgate/internal/audit"
	"github.com/radlink-systems/pacsgate/internal/dispatch"
	"github.com/radlink-systems/pacsgate/internal/logging"
	"github.com/radlink-systems/pacsgate/internal/metrics"
	"github.com/radlink-systems/pacsgate/internal/models"
	"github.com/radlink-systems/pacsgate/internal/ratelimit"
	"github.com/radlink-systems/pacsgate/internal/replay"
	"github.com/radlink-systems/pacsgate/internal/signature"
)

// Outcome is the HTTP-mappable result of one gateway decision chain.
type Outcome struct {
	Status     int
	Body       interface{}
	RetryAfter int // seconds; set for 429 and 503
}

// Gateway orchestrates the security components for each inbound call.
type Gateway struct {
	limiter    ratelimit.Limiter
	verifier   *signature.Verifier
	dispatcher *dispatch.Dispatcher
	emitter    *audit.Emitter
	logger     *logging.Logger
}

// NewGateway wires the gateway decision chain.
func NewGateway(limiter ratelimit.Limiter, verifier *signature.Verifier, dispatcher *dispatch.Dispatcher, emitter *audit.Emitter, logger *logging.Logger) *Gateway {
	return &Gateway{
		limiter:    limiter,
		verifier:   verifier,
		dispatcher: dispatcher,
		emitter:    emitter,
		logger:     logger,
	}
}

// ProcessNewInstance runs the full decision chain for a new-instance
// notification. Each rejection emits exactly one audit event; the handoff to
// the job queue is fire-and-forget so the response does not wait on
// downstream processing.
func (g *Gateway) ProcessNewInstance(ctx context.Context, req *models.WebhookRequest) Outcome {
	corrID := g.emitter.Emit(ctx, audit.EventRequestReceived, map[string]interface{}{
		"source_ip":  req.SourceIP,
		"body_bytes": len(req.Body),
		"signature":  req.Signature,
		"nonce":      req.Nonce,
	})

	// 1. Admission control, independent of authentication outcome.
	decision, err := g.limiter.Allow(ctx, req.SourceIP)
	if err != nil {
		// A broken limiter backend must not take down the intake path;
		// admit and let signature verification carry the load.
		g.logger.WarnContext(ctx, "rate limiter unavailable, admitting request", logging.Error(err))
		decision = ratelimit.Decision{Allowed: true}
	}
	if !decision.Allowed {
		retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		g.emitter.Emit(ctx, audit.EventRateLimitViolation, map[string]interface{}{
			"source_ip":     req.SourceIP,
			"current_count": decision.CurrentCount,
			"retry_after":   retryAfter,
		})
		metrics.RateLimitHits.Inc()
		metrics.WebhookRequestsTotal.WithLabelValues("new-instance", "rate_limited").Inc()
		return Outcome{
			Status:     http.StatusTooManyRequests,
			Body:       models.RateLimitResponse{Success: false, RetryAfter: retryAfter, CorrelationID: corrID},
			RetryAfter: retryAfter,
		}
	}

	// 2. Authentication, including freshness and replay.
	result, err := g.verifier.Verify(ctx, req.Body, req.Signature, req.Timestamp, req.Nonce, req.SourceIP)
	if err != nil {
		return g.internalError(ctx, corrID, "verify", err)
	}
	if !result.Valid {
		metrics.AuthFailuresTotal.WithLabelValues(result.Reason).Inc()
		metrics.WebhookRequestsTotal.WithLabelValues("new-instance", "unauthorized").Inc()
		g.emitter.Emit(ctx, eventForReason(result.Reason), map[string]interface{}{
			"source_ip": req.SourceIP,
			"reason":    result.Reason,
		})
		return Outcome{
			Status: http.StatusUnauthorized,
			Body:   models.ErrorResponse{Success: false, Reason: result.Reason, CorrelationID: corrID},
		}
	}

	// 3. Payload field validation. Malformed payloads are terminal; the
	// request_received event above is the only audit trace they leave.
	var payload models.NewInstancePayload
	if err := json.Unmarshal(req.Body, &payload); err != nil || !payloadComplete(payload) {
		metrics.WebhookRequestsTotal.WithLabelValues("new-instance", "bad_request").Inc()
		return Outcome{
			Status: http.StatusBadRequest,
			Body:   models.ErrorResponse{Success: false, Reason: "invalid_payload", CorrelationID: corrID},
		}
	}

	// 4. Fire-and-forget handoff.
	jobID, err := g.dispatcher.Enqueue(ctx, corrID, req.Body)
	if err != nil {
		if errors.Is(err, dispatch.ErrQueueFull) {
			g.emitter.Emit(ctx, audit.EventProcessingError, map[string]interface{}{
				"source_ip": req.SourceIP,
				"stage":     "dispatch",
				"error":     "queue saturated",
			})
			metrics.WebhookRequestsTotal.WithLabelValues("new-instance", "backpressure").Inc()
			return Outcome{
				Status:     http.StatusServiceUnavailable,
				Body:       models.ErrorResponse{Success: false, Reason: "queue_saturated", CorrelationID: corrID},
				RetryAfter: 1,
			}
		}
		return g.internalError(ctx, corrID, "dispatch", err)
	}

	g.emitter.Emit(ctx, audit.EventValidationSuccess, map[string]interface{}{
		"source_ip":          req.SourceIP,
		"instance_id":        payload.InstanceID,
		"study_instance_uid": payload.StudyInstanceUID,
		"job_id":             jobID,
	})
	metrics.WebhookRequestsTotal.WithLabelValues("new-instance", "accepted").Inc()

	return Outcome{
		Status: http.StatusOK,
		Body: models.SuccessResponse{
			Success: true,
			Data: models.SuccessData{
				JobID:         jobID,
				CorrelationID: corrID,
				QueuedAt:      time.Now().UTC().Format(time.RFC3339),
			},
		},
	}
}

// InternalError emits a processing_error audit event and returns the generic
// 500 outcome. Exported for the handler's panic boundary so an escaped
// failure is always audited before the response is written.
func (g *Gateway) InternalError(ctx context.Context, stage string, err error) Outcome {
	return g.internalError(ctx, "", stage, err)
}

func (g *Gateway) internalError(ctx context.Context, corrID, stage string, err error) Outcome {
	id := g.emitter.Emit(ctx, audit.EventProcessingError, map[string]interface{}{
		"stage": stage,
		"error": err.Error(),
	})
	if corrID == "" {
		corrID = id
	}
	g.logger.ErrorContext(ctx, "webhook processing error", logging.Error(err))
	metrics.WebhookRequestsTotal.WithLabelValues("new-instance", "error").Inc()
	return Outcome{
		Status: http.StatusInternalServerError,
		Body:   models.ErrorResponse{Success: false, Reason: "internal_error", CorrelationID: corrID},
	}
}

// DispatchStats exposes queue occupancy for readiness reporting.
func (g *Gateway) DispatchStats() dispatch.Stats {
	return g.dispatcher.Stats()
}

func payloadComplete(p models.NewInstancePayload) bool {
	return p.InstanceID != "" && p.StudyInstanceUID != "" && p.SOPInstanceUID != ""
}

func eventForReason(reason string) audit.EventType {
	switch reason {
	case signature.ReasonMissingSignature, replay.ReasonMissingNonce:
		return audit.EventMissingSignature
	case signature.ReasonInvalidSignature:
		return audit.EventInvalidSignature
	case replay.ReasonReplayAttack:
		return audit.EventReplayAttack
	case replay.ReasonTimestampExpired:
		return audit.EventTimestampExpired
	default:
		return audit.EventProcessingError
	}
}
