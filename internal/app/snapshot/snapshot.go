// Package snapshot defines the whole-store aggregate persisted as a single
// atomic unit, the schema backfill applied on load, and the derived stats
// recomputed before every save.
package snapshot

import (
	"encoding/json"

	"github.com/minedeck/minedeck-server/internal/app/domain/activity"
	"github.com/minedeck/minedeck-server/internal/app/domain/boost"
	"github.com/minedeck/minedeck-server/internal/app/domain/session"
	"github.com/minedeck/minedeck-server/internal/app/domain/withdrawal"
)

// Snapshot is the entire persisted state. Field names match the on-disk JSON
// layout; files written by older versions are reshaped on load rather than
// migrated.
type Snapshot struct {
	// Users is carried opaquely for compatibility with files that predate
	// session-only accounting. Nothing in the ledger writes to it.
	Users       map[string]json.RawMessage       `json:"users"`
	Sessions    map[string]session.Session       `json:"sessions"`
	Withdrawals map[string]withdrawal.Withdrawal `json:"withdrawals"`
	Boosts      []boost.Boost                    `json:"boosts"`
	Activities  []activity.Activity              `json:"activities"`
	Stats       Stats                            `json:"stats"`
}

// Stats is the derived aggregate stored alongside the ledgers. It is always a
// pure function of the other snapshot fields and never a write target.
type Stats struct {
	TotalUsers           int     `json:"totalUsers"`
	TotalMined           float64 `json:"totalMined"`
	TotalWithdrawals     float64 `json:"totalWithdrawals"`
	ActiveSessions       int     `json:"activeSessions"`
	TotalBoostCount      int     `json:"totalBoostCount"`
	TotalWithdrawalCount int     `json:"totalWithdrawalCount"`
}

// New returns an empty, fully-shaped snapshot.
func New() Snapshot {
	s := Snapshot{}
	Reshape(&s)
	return s
}

// FindBoost returns a pointer into the boost list, or nil when the id is
// unknown.
func (s *Snapshot) FindBoost(id string) *boost.Boost {
	for i := range s.Boosts {
		if s.Boosts[i].ID == id {
			return &s.Boosts[i]
		}
	}
	return nil
}

// AppendActivity records a feed entry, trimming the feed to the most recent
// entries.
func (s *Snapshot) AppendActivity(a activity.Activity) {
	s.Activities = append(s.Activities, a)
	if excess := len(s.Activities) - activity.MaxRetained; excess > 0 {
		s.Activities = append([]activity.Activity(nil), s.Activities[excess:]...)
	}
}

// Clone deep-copies the snapshot so callers can hand it out without exposing
// internal state to mutation.
func (s Snapshot) Clone() Snapshot {
	out := s

	out.Users = make(map[string]json.RawMessage, len(s.Users))
	for k, v := range s.Users {
		out.Users[k] = append(json.RawMessage(nil), v...)
	}

	out.Sessions = make(map[string]session.Session, len(s.Sessions))
	for k, v := range s.Sessions {
		out.Sessions[k] = cloneSession(v)
	}

	out.Withdrawals = make(map[string]withdrawal.Withdrawal, len(s.Withdrawals))
	for k, v := range s.Withdrawals {
		out.Withdrawals[k] = v
	}

	out.Boosts = append([]boost.Boost(nil), s.Boosts...)
	out.Activities = append([]activity.Activity(nil), s.Activities...)
	return out
}

func cloneSession(in session.Session) session.Session {
	out := in
	out.CompletedTasks = append([]string(nil), in.CompletedTasks...)
	out.Boosts = append([]string(nil), in.Boosts...)
	out.Withdrawals = append([]string(nil), in.Withdrawals...)
	return out
}
