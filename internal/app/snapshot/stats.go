package snapshot

import (
	"sort"

	"github.com/minedeck/minedeck-server/internal/app/domain/activity"
	"github.com/minedeck/minedeck-server/internal/app/domain/withdrawal"
)

// Recompute derives Stats from the ledgers and stores the result on the
// snapshot. It is called before every save; the stored stats are never
// authoritative on their own.
func Recompute(s *Snapshot) {
	st := Stats{
		TotalUsers:           len(s.Users),
		ActiveSessions:       len(s.Sessions),
		TotalBoostCount:      len(s.Boosts),
		TotalWithdrawalCount: len(s.Withdrawals),
	}
	for _, sess := range s.Sessions {
		st.TotalMined += sess.MinedTokens
	}
	for _, wd := range s.Withdrawals {
		if wd.Status == withdrawal.StatusCompleted {
			st.TotalWithdrawals += wd.Amount
		}
	}
	s.Stats = st
}

// Overview is the dashboard view served by the stats endpoint. It extends the
// persisted aggregate with withdrawal partitions and recent-activity slices
// computed at read time.
type Overview struct {
	Stats
	PendingWithdrawals   int                     `json:"pendingWithdrawals"`
	CompletedWithdrawals int                     `json:"completedWithdrawals"`
	RecentActivities     []activity.Activity     `json:"recentActivities"`
	RecentWithdrawals    []withdrawal.Withdrawal `json:"recentWithdrawals"`
}

// BuildOverview computes the dashboard view from a snapshot.
func BuildOverview(s *Snapshot, recentLimit int) Overview {
	if recentLimit <= 0 {
		recentLimit = 10
	}

	ov := Overview{Stats: s.Stats}
	for _, wd := range s.Withdrawals {
		switch wd.Status {
		case withdrawal.StatusCompleted:
			ov.CompletedWithdrawals++
		default:
			ov.PendingWithdrawals++
		}
	}

	ov.RecentActivities = recentActivities(s.Activities, recentLimit)
	ov.RecentWithdrawals = recentWithdrawals(s.Withdrawals, recentLimit)
	return ov
}

func recentActivities(feed []activity.Activity, limit int) []activity.Activity {
	if len(feed) > limit {
		feed = feed[len(feed)-limit:]
	}
	// Newest first for dashboard consumption.
	out := make([]activity.Activity, 0, len(feed))
	for i := len(feed) - 1; i >= 0; i-- {
		out = append(out, feed[i])
	}
	return out
}

func recentWithdrawals(all map[string]withdrawal.Withdrawal, limit int) []withdrawal.Withdrawal {
	out := make([]withdrawal.Withdrawal, 0, len(all))
	for _, wd := range all {
		out = append(out, wd)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
