// Package queue defines message payloads exchanged over the message broker
// and the background consumer that turns them into an audit trail.
package queue

// Event types published on the auth.events queue.
const (
	EventUserRegistered = "user.registered"
	EventUserDeleted    = "user.deleted"
)

// AuthEvent is published when an account is created or deleted. It carries
// enough information for downstream consumers to log or trigger analytics
// without querying the primary database.
type AuthEvent struct {
	Type       string `json:"type"`
	UserID     uint64 `json:"user_id"`
	Email      string `json:"email"`
	Provider   string `json:"provider,omitempty"` // "password" or "google"
	OccurredAt string `json:"occurred_at"`
}
