package audit

import (
	"context"
	"log/slog"

	"github.com/radlink-systems/pacsgate/internal/logging"
)

// SlogSink writes audit events to the structured application log. Default
// sink for deployments without a dedicated audit store.
type SlogSink struct {
	logger *logging.Logger
}

func NewSlogSink(logger *logging.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Write(ctx context.Context, event Event) error {
	s.logger.Info("audit",
		slog.String("event_type", string(event.EventType)),
		slog.String(logging.FieldCorrelationID, event.CorrelationID),
		slog.String("environment", event.Environment),
		slog.Time("event_time", event.Timestamp),
		slog.Any("details", event.Details),
	)
	return nil
}

func (s *SlogSink) Close() error {
	return nil
}
