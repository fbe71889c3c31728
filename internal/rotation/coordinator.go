// Package rotation reacts to secret rotation notifications: it invalidates
// cached bundles, reloads dependent configuration, and coordinates restart of
// the archive bridge when a connection-class credential changes.
package rotation

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/radlink-systems/pacsgate/internal/audit"
	"github.com/radlink-systems/pacsgate/internal/logging"
	"github.com/radlink-systems/pacsgate/internal/metrics"
	"github.com/radlink-systems/pacsgate/internal/models"
	"github.com/radlink-systems/pacsgate/internal/secrets"
)

// Outcomes recorded in audit details and metrics.
const (
	outcomeReconfigured      = "reconfigured"
	outcomeRestarted         = "restarted"
	outcomeFallbackValidated = "fallback_validated"
	outcomeFailed            = "failed"
)

// Coordinator applies rotation events. It runs off the webhook request path:
// its internal mutex serializes rotation handling only and is never taken by
// request processing.
type Coordinator struct {
	secrets    *secrets.Client
	policy     *Policy
	controller ArchiveController
	emitter    *audit.Emitter
	logger     *logging.Logger

	mu           sync.Mutex
	handled      map[string]time.Time
	dedupeWindow time.Duration

	now func() time.Time
}

// NewCoordinator creates a rotation coordinator. dedupeWindow bounds how long
// a processed "rotated" event suppresses identical duplicates.
func NewCoordinator(sc *secrets.Client, policy *Policy, controller ArchiveController, emitter *audit.Emitter, dedupeWindow time.Duration, logger *logging.Logger) *Coordinator {
	return &Coordinator{
		secrets:      sc,
		policy:       policy,
		controller:   controller,
		emitter:      emitter,
		logger:       logger,
		handled:      make(map[string]time.Time),
		dedupeWindow: dedupeWindow,
		now:          time.Now,
	}
}

// HandleRotationEvent processes one rotation notification. Safe to call with
// duplicate "rotated" events for the same path: a duplicate inside the dedupe
// window is a no-op, so the end state matches a single delivery and the
// bridge is not restarted twice.
func (c *Coordinator) HandleRotationEvent(ctx context.Context, ev models.RotationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Action {
	case models.RotationActionScheduled:
		// Extension point for pre-rotation preparation; nothing to change yet.
		c.logger.InfoContext(ctx, "rotation scheduled", logging.SecretPath(ev.SecretPath))
		return nil
	case models.RotationActionFailed:
		// Extension point for alerting on provider-side rotation failures.
		c.logger.WarnContext(ctx, "rotation failed at provider", logging.SecretPath(ev.SecretPath))
		return nil
	case models.RotationActionRotated:
		return c.handleRotated(ctx, ev)
	default:
		return fmt.Errorf("unknown rotation action: %s", ev.Action)
	}
}

func (c *Coordinator) handleRotated(ctx context.Context, ev models.RotationEvent) error {
	key := ev.SecretPath + "\x00" + strconv.FormatInt(ev.Timestamp.Unix(), 10)
	if at, ok := c.handled[key]; ok && c.now().Sub(at) < c.dedupeWindow {
		c.logger.InfoContext(ctx, "duplicate rotation event ignored", logging.SecretPath(ev.SecretPath))
		return nil
	}
	c.pruneHandled()

	// Invalidate wholesale first so no consumer keeps reading stale
	// credentials while we work.
	c.secrets.ClearCache()

	class := c.policy.Classify(ev.SecretPath)
	details := map[string]interface{}{
		"secret_path": ev.SecretPath,
		"class":       string(class),
	}

	bundleName, known := c.secrets.BundleForPath(ev.SecretPath)
	if !known {
		// A path we hold no bundle for still invalidates the cache; there is
		// nothing further to reload.
		details["outcome"] = outcomeReconfigured
		c.emitter.Emit(ctx, audit.EventSecretRotationProcessed, details)
		metrics.RotationsTotal.WithLabelValues(outcomeReconfigured).Inc()
		c.handled[key] = c.now()
		return nil
	}
	details["bundle"] = bundleName

	bundle, err := c.secrets.GetSecrets(ctx, bundleName)
	if err != nil {
		details["outcome"] = outcomeFailed
		c.emitter.Emit(ctx, audit.EventSecretRotationFailed, details)
		metrics.RotationsTotal.WithLabelValues(outcomeFailed).Inc()
		return fmt.Errorf("re-fetch bundle %s: %w", bundleName, err)
	}

	outcome := outcomeReconfigured
	if class == ClassRestart {
		outcome, err = c.applyRestart(ctx, bundle)
		if err != nil {
			details["outcome"] = outcomeFailed
			c.emitter.Emit(ctx, audit.EventSecretRotationFailed, details)
			metrics.RotationsTotal.WithLabelValues(outcomeFailed).Inc()
			return err
		}
	}

	details["outcome"] = outcome
	c.emitter.Emit(ctx, audit.EventSecretRotationProcessed, details)
	metrics.RotationsTotal.WithLabelValues(outcome).Inc()
	c.handled[key] = c.now()

	c.logger.InfoContext(ctx, "rotation processed",
		logging.SecretPath(ev.SecretPath), logging.Bundle(bundleName),
		logging.Reason(outcome))
	return nil
}

// pruneHandled drops dedupe records past the window. Called with c.mu held;
// keeps the map proportional to rotation traffic inside one window.
func (c *Coordinator) pruneHandled() {
	cutoff := c.now().Add(-c.dedupeWindow)
	for key, at := range c.handled {
		if at.Before(cutoff) {
			delete(c.handled, key)
		}
	}
}

// applyRestart regenerates the bridge configuration and relaunches the
// bridge. If the relaunch fails, it falls back to validating that the
// existing connection authenticates with the new credentials, which covers
// archives that hot-swap credentials without a reconnect.
func (c *Coordinator) applyRestart(ctx context.Context, bundle *secrets.Bundle) (string, error) {
	if err := c.controller.RegenerateConfig(ctx, bundle); err != nil {
		return "", fmt.Errorf("regenerate bridge config: %w", err)
	}

	restartErr := c.controller.Restart(ctx)
	if restartErr == nil {
		return outcomeRestarted, nil
	}

	c.logger.Warn("bridge restart failed, validating existing connection", logging.Error(restartErr))

	if err := c.controller.ValidateConnection(ctx, bundle); err != nil {
		return "", fmt.Errorf("bridge restart failed (%v) and connection validation failed: %w", restartErr, err)
	}
	return outcomeFallbackValidated, nil
}

// Refresh implements the manual cache-clear endpoint: drop every cached
// bundle and re-fetch them all.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.secrets.ClearCache()

	for _, name := range c.secrets.BundleNames() {
		if _, err := c.secrets.GetSecrets(ctx, name); err != nil {
			return fmt.Errorf("refresh bundle %s: %w", name, err)
		}
	}
	return nil
}
