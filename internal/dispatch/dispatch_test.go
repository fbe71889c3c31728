package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radlink-systems/pacsgate/internal/logging"
)

type capturePublisher struct {
	mu        sync.Mutex
	published []Job
	block     chan struct{} // if set, Publish waits until closed
	failFirst int           // number of leading calls that error
}

func (p *capturePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failFirst > 0 {
		p.failFirst--
		return errors.New("broker down")
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return err
	}
	p.published = append(p.published, job)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) jobs() []Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Job, len(p.published))
	copy(out, p.published)
	return out
}

func testLogger() *logging.Logger {
	return logging.New(logging.ParseLevel("error"), "text")
}

func TestDispatcher_EnqueuePublishes(t *testing.T) {
	pub := &capturePublisher{}
	d := New(pub, "pacs.instance.new", 16, 2, time.Second, testLogger())

	payload := []byte(`{"instanceId":"1.2.840.113619.2.5.1"}`)
	jobID, err := d.Enqueue(context.Background(), "corr-1", payload)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	require.NoError(t, d.Close())

	jobs := pub.jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, jobID, jobs[0].ID)
	assert.Equal(t, "corr-1", jobs[0].CorrelationID)
	assert.JSONEq(t, string(payload), string(jobs[0].Payload))
	assert.False(t, jobs[0].EnqueuedAt.IsZero())
}

func TestDispatcher_QueueFull(t *testing.T) {
	pub := &capturePublisher{block: make(chan struct{})}
	// Single worker stuck in Publish; capacity 2 fills after the worker
	// takes one job off the queue.
	d := New(pub, "pacs.instance.new", 2, 1, time.Minute, testLogger())

	var sawFull bool
	for i := 0; i < 10; i++ {
		_, err := d.Enqueue(context.Background(), "corr", []byte(`{}`))
		if err != nil {
			require.True(t, errors.Is(err, ErrQueueFull))
			sawFull = true
			break
		}
	}
	assert.True(t, sawFull, "a bounded queue must eventually reject")

	close(pub.block)
	require.NoError(t, d.Close())
}

func TestDispatcher_CloseDrains(t *testing.T) {
	pub := &capturePublisher{}
	d := New(pub, "pacs.instance.new", 64, 4, time.Second, testLogger())

	const jobs = 20
	for i := 0; i < jobs; i++ {
		_, err := d.Enqueue(context.Background(), "corr", []byte(`{}`))
		require.NoError(t, err)
	}
	require.NoError(t, d.Close())

	assert.Len(t, pub.jobs(), jobs)
}

func TestDispatcher_PublishErrorDoesNotStopWorkers(t *testing.T) {
	pub := &capturePublisher{failFirst: 1}
	d := New(pub, "pacs.instance.new", 16, 1, time.Second, testLogger())

	// The first publish fails; the failure is logged and dropped, and
	// subsequent jobs still flow.
	_, err := d.Enqueue(context.Background(), "corr", []byte(`{}`))
	require.NoError(t, err)
	_, err = d.Enqueue(context.Background(), "corr", []byte(`{"ok":true}`))
	require.NoError(t, err)

	require.NoError(t, d.Close())

	assert.Len(t, pub.jobs(), 1)
}

func TestDispatcher_Stats(t *testing.T) {
	pub := &capturePublisher{block: make(chan struct{})}
	d := New(pub, "pacs.instance.new", 8, 1, time.Minute, testLogger())

	stats := d.Stats()
	assert.Equal(t, 8, stats.QueueCapacity)

	close(pub.block)
	require.NoError(t, d.Close())
}
