package boost

import "time"

const (
	// MinAmount and MaxAmount bound the granted rate increment; amounts are
	// drawn from [MinAmount, MaxAmount).
	MinAmount = 10
	MaxAmount = 25
)

// Boost is a rate-increment grant tied to an offer-wall task. It is created
// unverified and transitions to verified exactly once.
type Boost struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	Amount     int       `json:"amount"`
	TaskType   string    `json:"taskType,omitempty"`
	Verified   bool      `json:"verified"`
	CreatedAt  time.Time `json:"createdAt"`
	VerifiedAt time.Time `json:"verifiedAt,omitempty"`
}

// DedupKey is the completed-task marker stored on the owning session that
// guards against applying the same boost's rate effect twice.
func DedupKey(boostID string) string {
	return "boost-" + boostID
}
