package withdrawal

import "time"

// Status is the withdrawal lifecycle state. There is no failed state; a
// withdrawal stays pending until external verification completes it.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

const (
	// MinAmount is the smallest withdrawable balance.
	MinAmount = 0.001

	// DefaultNetwork is used when the request does not name a target network.
	DefaultNetwork = "bsc"
)

// Withdrawal is a request to pay out accrued balance to an external wallet.
// The amount is debited from the session at creation time (pessimistic hold);
// completion moves no balance.
type Withdrawal struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Wallet      string    `json:"wallet"`
	Amount      float64   `json:"amount"`
	Network     string    `json:"network"`
	Status      Status    `json:"status"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"createdAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}
