// Package secrets caches application credential bundles fetched from one
// external secret provider. Bundles are replaced wholesale: a reader always
// observes a complete, internally consistent credential set.
package secrets

import (
	"context"
	"errors"
	"fmt"
)

// ErrSecretUnavailable is returned when a bundle cannot be fetched and no
// cached copy exists. Callers decide whether to fall back to static
// configuration; this package does not.
var ErrSecretUnavailable = errors.New("secret unavailable")

// Provider is the capability interface over the remote secret store. Which
// backend sits behind it is a configuration concern.
//
// Implementations must be safe for concurrent use and must honor context
// cancellation; every fetch is expected to carry a deadline.
type Provider interface {
	// Name returns the provider's stable identifier, e.g. "aws.secretsmanager".
	Name() string

	// Fetch retrieves the raw key/value map stored at path.
	Fetch(ctx context.Context, path string) (map[string]string, error)
}

// NotFoundError indicates the provider has no secret at the requested path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secret not found: %s", e.Path)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
