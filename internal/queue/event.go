// Package queue defines the domain events exchanged over RabbitMQ, the
// publisher used by the API and the consumer that writes the audit log.
package queue

import "time"

// Event types.
const (
	UserRegistered   = "user.registered"
	SessionSignedIn  = "session.signed_in"
	SessionRefreshed = "session.refreshed"
	SessionLoggedOut = "session.logged_out"
	UserRoleChanged  = "user.role_changed"
	UserDeactivated  = "user.deactivated"
)

// Event is the single envelope for every domain event. Fields that do not
// apply to a type are left empty. No token material is ever included.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	Role       string    `json:"role,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
