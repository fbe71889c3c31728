// Package replay tracks recently seen (source, nonce) pairs so a captured
// request cannot be resubmitted within the freshness window.
package replay

import (
	"context"
	"fmt"
	"time"
)

// Rejection reasons surfaced unchanged through the signature verifier.
const (
	ReasonTimestampExpired = "timestamp_expired"
	ReasonReplayAttack     = "replay_attack"
	ReasonMissingNonce     = "missing_nonce"
)

// Result is the outcome of a freshness check.
type Result struct {
	OK     bool
	Reason string
}

// Store persists replay records. CheckAndRegister must be atomic: of two
// concurrent calls with the same (sourceID, nonce), exactly one may succeed.
type Store interface {
	// CheckAndRegister inserts the pair with the given retention and reports
	// whether the insert won (false means the nonce was already registered).
	CheckAndRegister(ctx context.Context, sourceID, nonce string, retention time.Duration) (bool, error)
	Close() error
}

// Guard validates timestamps against the allowed window and delegates nonce
// bookkeeping to a Store.
type Guard struct {
	store     Store
	maxAge    time.Duration
	clockSkew time.Duration
	now       func() time.Time
}

// NewGuard creates a replay guard. maxAge bounds how old a timestamp may be;
// clockSkew is the allowance for senders slightly ahead of us. Retention of
// stored nonces is maxAge+clockSkew, which keeps every nonce for at least as
// long as a timestamp bearing it could still pass the window check.
func NewGuard(store Store, maxAge, clockSkew time.Duration) *Guard {
	return &Guard{
		store:     store,
		maxAge:    maxAge,
		clockSkew: clockSkew,
		now:       time.Now,
	}
}

// CheckAndRegister validates that ts lies within [now-maxAge, now+clockSkew]
// and, if so, atomically registers the nonce for the source. A nonce that was
// already registered within the retention window fails with replay_attack.
// Nothing is registered for requests that fail the timestamp check, and an
// empty nonce is rejected outright so it never occupies the nonce space.
func (g *Guard) CheckAndRegister(ctx context.Context, sourceID, nonce string, ts time.Time) (Result, error) {
	if nonce == "" {
		return Result{OK: false, Reason: ReasonMissingNonce}, nil
	}

	now := g.now()
	if ts.Before(now.Add(-g.maxAge)) || ts.After(now.Add(g.clockSkew)) {
		return Result{OK: false, Reason: ReasonTimestampExpired}, nil
	}

	inserted, err := g.store.CheckAndRegister(ctx, sourceID, nonce, g.maxAge+g.clockSkew)
	if err != nil {
		return Result{}, fmt.Errorf("replay store: %w", err)
	}
	if !inserted {
		return Result{OK: false, Reason: ReasonReplayAttack}, nil
	}

	return Result{OK: true}, nil
}
