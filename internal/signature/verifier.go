// Package signature authenticates inbound webhook calls with HMAC-SHA256
// over the exact raw payload bytes.
package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/radlink-systems/pacsgate/internal/replay"
)

// Rejection reasons. Replay guard reasons (timestamp_expired, replay_attack,
// missing_nonce) are surfaced unchanged alongside these.
const (
	ReasonMissingSignature = "missing_signature"
	ReasonInvalidSignature = "invalid_signature"
)

// Result is the outcome of one verification.
type Result struct {
	Valid  bool
	Reason string
}

// KeySource supplies the current shared secret. Resolved per verification so
// rotated keys take effect without restarting the gateway.
type KeySource interface {
	Key(ctx context.Context) ([]byte, error)
}

// KeyFunc adapts a function to the KeySource interface.
type KeyFunc func(ctx context.Context) ([]byte, error)

func (f KeyFunc) Key(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// StaticKey is a KeySource over a fixed secret, for tests and the
// independently keyed rotation webhook.
type StaticKey []byte

func (k StaticKey) Key(ctx context.Context) ([]byte, error) {
	return []byte(k), nil
}

// Verifier validates webhook signatures and, through the replay guard,
// request freshness. A nil guard skips replay checking (used for the rotation
// webhook, which is idempotent by contract).
type Verifier struct {
	keys  KeySource
	guard *replay.Guard
}

// NewVerifier creates a verifier bound to a key source and replay guard.
func NewVerifier(keys KeySource, guard *replay.Guard) *Verifier {
	return &Verifier{keys: keys, guard: guard}
}

// Verify checks the supplied signature against HMAC-SHA256(key, body) and
// delegates timestamp/nonce freshness to the replay guard. The nonce is only
// registered after the signature itself proved valid, so an abandoned or
// forged request never poisons the nonce space; the guard's check-and-insert
// is atomic, so two concurrent requests with the same nonce cannot both pass.
func (v *Verifier) Verify(ctx context.Context, body []byte, sigHeader, tsHeader, nonceHeader, sourceID string) (Result, error) {
	if sigHeader == "" {
		return Result{Valid: false, Reason: ReasonMissingSignature}, nil
	}

	ts, ok := parseTimestamp(tsHeader)
	if !ok {
		// A missing or malformed timestamp can never satisfy the freshness
		// window, so it is reported as expired rather than as a server error.
		return Result{Valid: false, Reason: replay.ReasonTimestampExpired}, nil
	}

	key, err := v.keys.Key(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolve webhook key: %w", err)
	}

	supplied, err := parseSignature(sigHeader)
	if err != nil {
		return Result{Valid: false, Reason: ReasonInvalidSignature}, nil
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	expected := mac.Sum(nil)

	// Constant-time comparison to prevent timing side-channels.
	if subtle.ConstantTimeCompare(expected, supplied) != 1 {
		return Result{Valid: false, Reason: ReasonInvalidSignature}, nil
	}

	if v.guard != nil {
		res, err := v.guard.CheckAndRegister(ctx, sourceID, nonceHeader, ts)
		if err != nil {
			return Result{}, err
		}
		if !res.OK {
			return Result{Valid: false, Reason: res.Reason}, nil
		}
	}

	return Result{Valid: true}, nil
}

// Compute returns the hex HMAC-SHA256 of body under key. Senders and tests
// use it to produce valid signatures.
func Compute(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// parseSignature decodes the signature header. Both the plain hex form and
// the "sha256=<hex>" prefix form are accepted.
func parseSignature(signature string) ([]byte, error) {
	if strings.HasPrefix(signature, "sha256=") {
		return hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	}
	return hex.DecodeString(signature)
}

// parseTimestamp parses a unix-seconds header value.
func parseTimestamp(header string) (time.Time, bool) {
	if header == "" {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}
