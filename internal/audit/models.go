package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names a session lifecycle step worth recording.
type Action string

const (
	ActionLogin              Action = "session_login"
	ActionLogout             Action = "session_logout"
	ActionVerified           Action = "session_verified"
	ActionVerificationFailed Action = "session_verification_failed"
	ActionRemoteLogoutFailed Action = "session_remote_logout_failed"
	ActionExternalChange     Action = "session_external_change"
	ActionAccountDeleted     Action = "account_deleted"
)

// Event is emitted by the session manager and its consumers. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	// Subject is the user id read from the access token, when known.
	Subject string `json:"subject,omitempty"`
	// Origin is "local" or "external".
	Origin string `json:"origin,omitempty"`
	Reason string `json:"reason,omitempty"`
	// RequestID correlates the event with the API calls of the same invocation.
	RequestID string `json:"request_id,omitempty"`
}
