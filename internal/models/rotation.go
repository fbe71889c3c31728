package models

import "time"

// Rotation actions delivered by the secret store's notification webhook.
const (
	RotationActionRotated   = "rotated"
	RotationActionScheduled = "rotation_scheduled"
	RotationActionFailed    = "rotation_failed"
)

// RotationEvent is a notification that a secret's value changed (or is about
// to). Transient; it drives one state transition in the rotation coordinator
// and is not persisted beyond audit logging.
type RotationEvent struct {
	SecretPath string    `json:"secretPath"`
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
}

// ValidAction reports whether the event carries a known rotation action.
func (e RotationEvent) ValidAction() bool {
	switch e.Action {
	case RotationActionRotated, RotationActionScheduled, RotationActionFailed:
		return true
	}
	return false
}
