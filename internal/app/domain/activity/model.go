package activity

import "time"

// Type tags the kind of event recorded in the activity feed.
type Type string

const (
	TypeSessionStarted      Type = "session_started"
	TypeBoostVerified       Type = "boost_verified"
	TypeWithdrawalRequested Type = "withdrawal_requested"
	TypeWithdrawalCompleted Type = "withdrawal_completed"
)

// MaxRetained caps the persisted activity feed at the most recent entries.
const MaxRetained = 1000

// Activity is one entry in the bounded, append-only activity feed used by the
// stats dashboard.
type Activity struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	SessionID string    `json:"sessionId"`
	Amount    float64   `json:"amount,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
