// Package audit converts security decisions into structured, non-sensitive
// events and hands them to a configurable sink off the request path.
package audit

import "time"

// EventType identifies a security decision. The taxonomy is closed: handlers
// must not invent ad-hoc types, so downstream alerting can match on an
// exhaustive set.
type EventType string

const (
	EventRequestReceived         EventType = "request_received"
	EventInvalidSignature        EventType = "invalid_signature"
	EventMissingSignature        EventType = "missing_signature"
	EventReplayAttack            EventType = "replay_attack"
	EventTimestampExpired        EventType = "timestamp_expired"
	EventRateLimitViolation      EventType = "rate_limit_violation"
	EventValidationSuccess       EventType = "validation_success"
	EventProcessingError         EventType = "processing_error"
	EventSecretRotationProcessed EventType = "secret_rotation_processed"
	EventSecretRotationFailed    EventType = "secret_rotation_failed"
)

// Event is one append-only audit record. Details holds the per-event-type
// payload after redaction; the emitter never mutates an event once written
// to the sink.
type Event struct {
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	EventType     EventType              `json:"event_type"`
	Service       string                 `json:"service"`
	Environment   string                 `json:"environment"`
	Details       map[string]interface{} `json:"details,omitempty"`
}
