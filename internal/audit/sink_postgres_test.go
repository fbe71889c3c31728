package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresSink starts a PostgreSQL testcontainer and returns a sink
// connected to it with migrations applied.
func setupPostgresSink(t *testing.T) *PostgresSink {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("pacsgate_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := NewPostgresSink(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink
}

func TestPostgresSink_Write(t *testing.T) {
	sink := setupPostgresSink(t)
	ctx := context.Background()

	event := Event{
		Timestamp:     time.Now().UTC().Truncate(time.Microsecond),
		CorrelationID: "corr-pg-1",
		EventType:     EventValidationSuccess,
		Service:       "pacsgate",
		Environment:   "test",
		Details: map[string]interface{}{
			"source_ip": "10.0.0.5",
			"job_id":    "job-123",
		},
	}
	require.NoError(t, sink.Write(ctx, event))

	var (
		eventType   string
		service     string
		environment string
		rawDetails  []byte
	)
	row := sink.pool.QueryRow(ctx,
		"SELECT event_type, service, environment, details FROM audit_events WHERE correlation_id = $1",
		"corr-pg-1")
	require.NoError(t, row.Scan(&eventType, &service, &environment, &rawDetails))

	assert.Equal(t, string(EventValidationSuccess), eventType)
	assert.Equal(t, "pacsgate", service)
	assert.Equal(t, "test", environment)

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(rawDetails, &details))
	assert.Equal(t, "10.0.0.5", details["source_ip"])
}

func TestPostgresSink_MigrationsIdempotent(t *testing.T) {
	sink := setupPostgresSink(t)

	// A second sink against the same database must not fail on the already
	// applied schema.
	ctx := context.Background()
	connStr := sink.pool.Config().ConnString()

	again, err := NewPostgresSink(ctx, connStr)
	require.NoError(t, err)
	again.Close()
}
