// Package dispatch hands validated webhook payloads to the processing
// backend through a bounded queue. The webhook response never waits for the
// downstream publish; saturation surfaces as an explicit backpressure error
// so the gateway can answer 503 instead of queueing without bound.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radlink-systems/pacsgate/internal/logging"
	"github.com/radlink-systems/pacsgate/internal/metrics"
)

// ErrQueueFull signals that the dispatch queue is saturated. The gateway
// maps it to 503.
var ErrQueueFull = errors.New("dispatch queue full")

// Publisher delivers a serialized job to the job-enqueue collaborator.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// Job is one enqueued handoff.
type Job struct {
	ID            string          `json:"jobId"`
	CorrelationID string          `json:"correlationId"`
	Payload       json.RawMessage `json:"payload"`
	EnqueuedAt    time.Time       `json:"enqueuedAt"`
}

// Stats reports queue occupancy for the readiness endpoint.
type Stats struct {
	QueueDepth    int `json:"queueDepth"`
	QueueCapacity int `json:"queueCapacity"`
}

// Dispatcher runs a fixed pool of workers draining the queue into the
// publisher.
type Dispatcher struct {
	publisher Publisher
	subject   string
	timeout   time.Duration
	logger    *logging.Logger

	queue chan Job
	wg    sync.WaitGroup
}

// New creates a dispatcher with the given queue capacity and worker count
// and starts the workers.
func New(publisher Publisher, subject string, queueSize, workers int, publishTimeout time.Duration, logger *logging.Logger) *Dispatcher {
	d := &Dispatcher{
		publisher: publisher,
		subject:   subject,
		timeout:   publishTimeout,
		logger:    logger,
		queue:     make(chan Job, queueSize),
	}

	metrics.DispatchQueueCapacity.Set(float64(queueSize))

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Enqueue accepts a validated payload for asynchronous handoff and returns
// the job ID immediately. ErrQueueFull is returned when the queue is
// saturated; nothing is partially enqueued in that case.
func (d *Dispatcher) Enqueue(ctx context.Context, correlationID string, payload []byte) (string, error) {
	job := Job{
		ID:            uuid.New().String(),
		CorrelationID: correlationID,
		Payload:       json.RawMessage(payload),
		EnqueuedAt:    time.Now().UTC(),
	}

	select {
	case d.queue <- job:
		metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
		return job.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Stats returns current queue occupancy.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		QueueDepth:    len(d.queue),
		QueueCapacity: cap(d.queue),
	}
}

// Close stops accepting jobs, drains the queue, and closes the publisher.
func (d *Dispatcher) Close() error {
	close(d.queue)
	d.wg.Wait()
	return d.publisher.Close()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for job := range d.queue {
		metrics.DispatchQueueDepth.Set(float64(len(d.queue)))

		data, err := json.Marshal(job)
		if err != nil {
			metrics.DispatchErrors.Inc()
			d.logger.Error("failed to marshal job", logging.JobID(job.ID), logging.Error(err))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err = d.publisher.Publish(ctx, d.subject, data)
		cancel()

		if err != nil {
			metrics.DispatchErrors.Inc()
			d.logger.Error("failed to publish job",
				logging.JobID(job.ID),
				logging.CorrelationID(job.CorrelationID),
				logging.Error(err))
			continue
		}

		d.logger.Debug("job published", logging.JobID(job.ID), logging.CorrelationID(job.CorrelationID))
	}
}

// NATSPublisher publishes jobs to a NATS subject.
type NATSPublisher struct {
	conn natsConn
}

type natsConn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NewNATSPublisher wraps a NATS connection.
func NewNATSPublisher(conn natsConn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
