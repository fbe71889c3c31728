package audit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSearchSink_Write(t *testing.T) {
	var (
		mu       sync.Mutex
		lastPath string
		lastBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		lastPath = r.URL.Path
		lastBody = body
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	sink, err := NewOpenSearchSink(OpenSearchConfig{
		URL:         srv.URL,
		IndexPrefix: "pacsgate",
	})
	require.NoError(t, err)
	defer sink.Close()

	event := Event{
		Timestamp:     time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		CorrelationID: "corr-os-1",
		EventType:     EventReplayAttack,
		Service:       "pacsgate",
		Environment:   "test",
		Details:       map[string]interface{}{"source_ip": "10.0.0.5"},
	}
	require.NoError(t, sink.Write(context.Background(), event))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/pacsgate-audit-2026.03.14/_doc", lastPath)

	var doc Event
	require.NoError(t, json.Unmarshal(lastBody, &doc))
	assert.Equal(t, EventReplayAttack, doc.EventType)
	assert.Equal(t, "corr-os-1", doc.CorrelationID)
}

func TestOpenSearchSink_WriteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"cluster unavailable"}`))
	}))
	defer srv.Close()

	sink, err := NewOpenSearchSink(OpenSearchConfig{URL: srv.URL, IndexPrefix: "pacsgate"})
	require.NoError(t, err)

	err = sink.Write(context.Background(), Event{
		Timestamp: time.Now().UTC(),
		EventType: EventRequestReceived,
	})
	assert.Error(t, err)
}
