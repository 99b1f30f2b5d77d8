package snapshot

import (
	"encoding/json"

	"github.com/minedeck/minedeck-server/internal/app/domain/activity"
	"github.com/minedeck/minedeck-server/internal/app/domain/boost"
	"github.com/minedeck/minedeck-server/internal/app/domain/session"
	"github.com/minedeck/minedeck-server/internal/app/domain/withdrawal"
)

// Reshape backfills every field a complete snapshot requires, without
// discarding data that is already present. Fields absent from an older file
// unmarshal to zero values; Reshape normalizes those to their declared
// defaults so the rest of the store never sees a nil container or a
// non-positive mining speed.
//
// Reshape is idempotent: applying it to an already-complete snapshot leaves
// the snapshot equal to its input.
func Reshape(s *Snapshot) {
	if s.Users == nil {
		s.Users = make(map[string]json.RawMessage)
	}
	if s.Sessions == nil {
		s.Sessions = make(map[string]session.Session)
	}
	if s.Withdrawals == nil {
		s.Withdrawals = make(map[string]withdrawal.Withdrawal)
	}
	if s.Boosts == nil {
		s.Boosts = []boost.Boost{}
	}
	if s.Activities == nil {
		s.Activities = []activity.Activity{}
	}
	if excess := len(s.Activities) - activity.MaxRetained; excess > 0 {
		s.Activities = append([]activity.Activity(nil), s.Activities[excess:]...)
	}

	for id, sess := range s.Sessions {
		s.Sessions[id] = reshapeSession(sess)
	}
	for id, wd := range s.Withdrawals {
		if wd.Status == "" {
			wd.Status = withdrawal.StatusPending
		}
		if wd.Network == "" {
			wd.Network = withdrawal.DefaultNetwork
		}
		s.Withdrawals[id] = wd
	}

	// Stats sub-fields are value types whose zero value is the declared
	// default; they are recomputed from the ledgers before every save.
}

func reshapeSession(sess session.Session) session.Session {
	if sess.CompletedTasks == nil {
		sess.CompletedTasks = []string{}
	}
	if sess.Boosts == nil {
		sess.Boosts = []string{}
	}
	if sess.Withdrawals == nil {
		sess.Withdrawals = []string{}
	}
	if sess.MiningSpeed <= 0 {
		sess.MiningSpeed = session.DefaultMiningSpeed
	}
	return sess
}
