package audit

import "strings"

// RedactedValue replaces values of fields in the sensitive set.
const RedactedValue = "[REDACTED]"

// Redactor scrubs event details before they leave the process. Fields whose
// name is in the sensitive set are replaced with RedactedValue; any field
// whose name contains "signature" is reduced to a boolean presence
// indicator so a log sink can never leak a verifiable digest.
type Redactor struct {
	sensitive map[string]struct{}
}

// NewRedactor creates a redactor over the configured sensitive field names.
// Matching is case-insensitive.
func NewRedactor(sensitiveFields []string) *Redactor {
	set := make(map[string]struct{}, len(sensitiveFields))
	for _, f := range sensitiveFields {
		set[strings.ToLower(f)] = struct{}{}
	}
	return &Redactor{sensitive: set}
}

// Redact returns a scrubbed copy of details. The input map is not modified.
func (r *Redactor) Redact(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return nil
	}

	out := make(map[string]interface{}, len(details))
	for name, value := range details {
		lower := strings.ToLower(name)

		if strings.Contains(lower, "signature") {
			out[name] = present(value)
			continue
		}
		if _, ok := r.sensitive[lower]; ok {
			out[name] = RedactedValue
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			out[name] = r.Redact(nested)
			continue
		}
		out[name] = value
	}
	return out
}

func present(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	default:
		return true
	}
}
