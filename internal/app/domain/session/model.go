package session

import "time"

const (
	// DefaultMiningSpeed is the accrual rate granted to new sessions,
	// in tokens per mining interval.
	DefaultMiningSpeed = 20

	// DailyLimit is the advertised per-day mining allowance.
	DailyLimit = 20

	// ResetDateLayout is the calendar-date format used for the lazy
	// daily-counter reset.
	ResetDateLayout = "2006-01-02"
)

// Session is a mining session owned by an anonymous client. Balances and the
// daily counter are mutated only through the ledger services.
type Session struct {
	ID              string    `json:"id"`
	UserAgent       string    `json:"userAgent,omitempty"`
	StartedAt       time.Time `json:"startedAt"`
	LastActive      time.Time `json:"lastActive"`
	MinedTokens     float64   `json:"minedTokens"`
	MiningSpeed     float64   `json:"miningSpeed"`
	DailyMined      float64   `json:"dailyMined"`
	LastResetDate   string    `json:"lastResetDate"`
	TotalMiningTime float64   `json:"totalMiningTime"`
	CompletedTasks  []string  `json:"completedTasks"`
	Boosts          []string  `json:"boosts"`
	Withdrawals     []string  `json:"withdrawals"`
}

// HasTask reports whether the idempotency marker is already present.
func (s *Session) HasTask(key string) bool {
	for _, t := range s.CompletedTasks {
		if t == key {
			return true
		}
	}
	return false
}

// MarkTask records an idempotency marker. Adding an existing marker is a
// no-op.
func (s *Session) MarkTask(key string) {
	if !s.HasTask(key) {
		s.CompletedTasks = append(s.CompletedTasks, key)
	}
}

// ExpiryReference returns the timestamp retention decisions are based on:
// LastActive when set, otherwise StartedAt.
func (s *Session) ExpiryReference() time.Time {
	if !s.LastActive.IsZero() {
		return s.LastActive
	}
	return s.StartedAt
}
