package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook request metrics
	WebhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacsgate_webhook_requests_total",
			Help: "Total number of webhook requests received",
		},
		[]string{"endpoint", "outcome"},
	)

	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacsgate_auth_failures_total",
			Help: "Total number of authentication failures by reason",
		},
		[]string{"reason"},
	)

	// Rate limiting metrics. No per-source label: source identity comes from
	// client-supplied headers, which would make the cardinality unbounded.
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pacsgate_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
	)

	// Dispatch queue metrics
	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacsgate_dispatch_queue_depth",
			Help: "Current depth of the job dispatch queue",
		},
	)

	DispatchQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacsgate_dispatch_queue_capacity",
			Help: "Maximum capacity of the job dispatch queue",
		},
	)

	DispatchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pacsgate_dispatch_errors_total",
			Help: "Total number of job publish failures",
		},
	)

	// Audit metrics
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacsgate_audit_events_total",
			Help: "Total number of audit events emitted",
		},
		[]string{"event_type"},
	)

	AuditEmitFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pacsgate_audit_emit_failures_total",
			Help: "Total number of audit events dropped or rejected by the sink",
		},
	)

	// Secret cache metrics
	SecretCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pacsgate_secret_cache_hits_total",
			Help: "Total number of secret bundle requests served from cache",
		},
	)

	SecretCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pacsgate_secret_cache_misses_total",
			Help: "Total number of secret bundle requests that hit the provider",
		},
	)

	SecretFetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pacsgate_secret_fetch_errors_total",
			Help: "Total number of secret provider fetch failures",
		},
	)

	// Rotation metrics
	RotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacsgate_rotations_total",
			Help: "Total number of rotation events handled by outcome",
		},
		[]string{"outcome"},
	)
)
