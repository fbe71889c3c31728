package models

import "time"

// WebhookRequest is the immutable view of one inbound notification call.
// It is assembled once by the HTTP handler and passed through the gateway
// decision chain unchanged.
type WebhookRequest struct {
	SourceIP   string
	Body       []byte
	Signature  string
	Timestamp  string
	Nonce      string
	ReceivedAt time.Time
}

// NewInstancePayload is the body of a new-instance notification from the
// imaging archive. Only the identifiers are validated here; the image itself
// is fetched downstream by the processing backend.
type NewInstancePayload struct {
	InstanceID       string `json:"instanceId"`
	StudyInstanceUID string `json:"studyInstanceUID"`
	SOPInstanceUID   string `json:"sopInstanceUID"`
	SeriesUID        string `json:"seriesInstanceUID,omitempty"`
	Modality         string `json:"modality,omitempty"`
}

// SuccessResponse is returned when a validated payload has been handed off.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    SuccessData `json:"data"`
}

type SuccessData struct {
	JobID         string `json:"jobId"`
	CorrelationID string `json:"correlationId"`
	QueuedAt      string `json:"queuedAt"`
}

// ErrorResponse covers 400/401/500 outcomes. Reason carries the generic
// decision code only, never internal error detail.
type ErrorResponse struct {
	Success       bool   `json:"success"`
	Reason        string `json:"reason,omitempty"`
	CorrelationID string `json:"correlationId"`
}

// RateLimitResponse is the 429 body. RetryAfter is seconds until the oldest
// request leaves the sliding window.
type RateLimitResponse struct {
	Success       bool   `json:"success"`
	RetryAfter    int    `json:"retryAfter"`
	CorrelationID string `json:"correlationId"`
}
