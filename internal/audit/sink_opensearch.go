package audit

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// OpenSearchConfig holds connection settings for the OpenSearch audit sink.
type OpenSearchConfig struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
}

// OpenSearchSink indexes audit events into daily indices
// (<prefix>-audit-YYYY.MM.DD) so they land next to the rest of the security
// telemetry.
type OpenSearchSink struct {
	client      *opensearch.Client
	indexPrefix string
}

// NewOpenSearchSink creates the sink.
func NewOpenSearchSink(cfg OpenSearchConfig) (*OpenSearchSink, error) {
	httpTransport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpTransport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &OpenSearchSink{client: client, indexPrefix: cfg.IndexPrefix}, nil
}

func (s *OpenSearchSink) Write(ctx context.Context, event Event) error {
	doc, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	index := fmt.Sprintf("%s-audit-%s", s.indexPrefix, event.Timestamp.Format("2006.01.02"))

	req := opensearchapi.IndexRequest{
		Index: index,
		Body:  bytes.NewReader(doc),
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index audit event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index audit event: %s: %s", res.Status(), string(body))
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

func (s *OpenSearchSink) Close() error {
	return nil
}
