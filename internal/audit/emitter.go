package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radlink-systems/pacsgate/internal/logging"
	"github.com/radlink-systems/pacsgate/internal/metrics"
	"github.com/radlink-systems/pacsgate/internal/middleware"
)

// Sink receives fully formed audit events. Implementations own delivery to
// the external log store; the emitter performs no retries.
type Sink interface {
	Write(ctx context.Context, event Event) error
	Close() error
}

// Emitter produces audit events and forwards them to the sink on a
// background goroutine. Emission never blocks the request path: if the
// buffer is full the event is dropped and counted, not propagated as a
// request failure.
type Emitter struct {
	sink        Sink
	redactor    *Redactor
	service     string
	environment string
	logger      *logging.Logger

	events chan Event
	done   chan struct{}

	closeMu sync.RWMutex
	closed  bool

	now func() time.Time
}

// NewEmitter creates an emitter and starts its sink writer. bufferSize
// bounds how many events may be in flight before drops begin.
func NewEmitter(sink Sink, redactor *Redactor, service, environment string, bufferSize int, logger *logging.Logger) *Emitter {
	e := &Emitter{
		sink:        sink,
		redactor:    redactor,
		service:     service,
		environment: environment,
		logger:      logger,
		events:      make(chan Event, bufferSize),
		done:        make(chan struct{}),
		now:         time.Now,
	}
	go e.run()
	return e
}

// Emit records one security decision and returns the correlation ID assigned
// to it. If the context already carries a correlation ID for an in-flight
// request, that ID is reused; otherwise a fresh one is generated.
func (e *Emitter) Emit(ctx context.Context, eventType EventType, details map[string]interface{}) string {
	corrID := middleware.GetCorrelationID(ctx)
	if corrID == "" {
		corrID = uuid.New().String()
	}

	event := Event{
		Timestamp:     e.now().UTC(),
		CorrelationID: corrID,
		EventType:     eventType,
		Service:       e.service,
		Environment:   e.environment,
		Details:       e.redactor.Redact(details),
	}

	metrics.AuditEventsTotal.WithLabelValues(string(eventType)).Inc()

	// Detached rotation work may outlive shutdown; an emit after Close is
	// dropped, never a panic.
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		metrics.AuditEmitFailures.Inc()
		return corrID
	}

	select {
	case e.events <- event:
	default:
		// Sink backlog; the request must not wait for it.
		metrics.AuditEmitFailures.Inc()
		e.logger.Warn("audit buffer full, event dropped",
			logging.EventType(string(eventType)), logging.CorrelationID(corrID))
	}

	return corrID
}

// Close stops the writer after draining buffered events and closes the sink.
// Subsequent Emit calls drop their events; a second Close is a no-op.
func (e *Emitter) Close() error {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return nil
	}
	e.closed = true
	e.closeMu.Unlock()

	close(e.events)
	<-e.done
	return e.sink.Close()
}

func (e *Emitter) run() {
	defer close(e.done)

	for event := range e.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.sink.Write(ctx, event); err != nil {
			metrics.AuditEmitFailures.Inc()
			e.logger.Warn("audit sink write failed",
				logging.EventType(string(event.EventType)), logging.Error(err))
		}
		cancel()
	}
}
