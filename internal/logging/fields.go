package logging

import "log/slog"

// Common field names for consistent logging across the gateway.
const (
	FieldService       = "service"
	FieldCorrelationID = "correlation_id"
	FieldSourceIP      = "source_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatus        = "status"
	FieldReason        = "reason"
	FieldError         = "error"
	FieldSecretPath    = "secret_path"
	FieldBundle        = "bundle"
	FieldJobID         = "job_id"
	FieldEventType     = "event_type"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// CorrelationID returns a slog attribute for the correlation ID.
func CorrelationID(id string) slog.Attr {
	return slog.String(FieldCorrelationID, id)
}

// SourceIP returns a slog attribute for the sender's network address.
func SourceIP(ip string) slog.Attr {
	return slog.String(FieldSourceIP, ip)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Reason returns a slog attribute for a security decision reason code.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// SecretPath returns a slog attribute for a secret store path.
// Only the path is ever logged, never the value behind it.
func SecretPath(path string) slog.Attr {
	return slog.String(FieldSecretPath, path)
}

// Bundle returns a slog attribute for a secret bundle name.
func Bundle(name string) slog.Attr {
	return slog.String(FieldBundle, name)
}

// JobID returns a slog attribute for a dispatched job ID.
func JobID(id string) slog.Attr {
	return slog.String(FieldJobID, id)
}

// EventType returns a slog attribute for an audit event type.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}
