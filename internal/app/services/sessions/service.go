// Package sessions manages mining session lifecycle and mutable mining state.
package sessions

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/minedeck/minedeck-server/internal/app/domain/activity"
	"github.com/minedeck/minedeck-server/internal/app/domain/session"
	"github.com/minedeck/minedeck-server/internal/app/ledger"
	"github.com/minedeck/minedeck-server/internal/app/snapshot"
	"github.com/minedeck/minedeck-server/pkg/logger"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Service implements session creation, state reads with the lazy daily
// reset, and partial state updates.
type Service struct {
	ledger *ledger.Ledger
	log    *logger.Logger
	now    func() time.Time
}

// New constructs a session service.
func New(l *ledger.Ledger, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("sessions")
	}
	return &Service{ledger: l, log: log, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Created is the response to a session-start request.
type Created struct {
	SessionID   string  `json:"sessionId"`
	MiningSpeed float64 `json:"miningSpeed"`
	DailyLimit  float64 `json:"dailyLimit"`
}

// State is the session view returned by GetState.
type State struct {
	MinedTokens     float64  `json:"minedTokens"`
	DailyMined      float64  `json:"dailyMined"`
	MiningSpeed     float64  `json:"miningSpeed"`
	CompletedTasks  []string `json:"completedTasks"`
	TotalMiningTime float64  `json:"totalMiningTime"`
	DailyLimit      float64  `json:"dailyLimit"`
}

// SetResult is the response to a state update.
type SetResult struct {
	Success    bool    `json:"success"`
	DailyMined float64 `json:"dailyMined"`
	DailyLimit float64 `json:"dailyLimit"`
}

// Create allocates a new session with default mining state.
func (s *Service) Create(ctx context.Context, userAgent string, startedAt time.Time) (Created, error) {
	now := s.now().UTC()
	if startedAt.IsZero() {
		startedAt = now
	}

	sess := session.Session{
		ID:             uuid.NewString(),
		UserAgent:      userAgent,
		StartedAt:      startedAt.UTC(),
		LastActive:     now,
		MiningSpeed:    session.DefaultMiningSpeed,
		LastResetDate:  now.Format(session.ResetDateLayout),
		CompletedTasks: []string{},
		Boosts:         []string{},
		Withdrawals:    []string{},
	}

	err := s.ledger.Update(ctx, func(snap *snapshot.Snapshot) error {
		snap.Sessions[sess.ID] = sess
		snap.AppendActivity(activity.Activity{
			ID:        uuid.NewString(),
			Type:      activity.TypeSessionStarted,
			SessionID: sess.ID,
			CreatedAt: now,
		})
		return nil
	})
	if err != nil {
		return Created{}, err
	}

	s.log.WithField("session_id", sess.ID).Info("session started")
	return Created{
		SessionID:   sess.ID,
		MiningSpeed: sess.MiningSpeed,
		DailyLimit:  session.DailyLimit,
	}, nil
}

// GetState returns the session's mining state. Reading is itself a mutation:
// the daily counter is reset when the stored reset date no longer matches the
// current date, and LastActive is bumped.
func (s *Service) GetState(ctx context.Context, id string) (State, error) {
	now := s.now().UTC()
	today := now.Format(session.ResetDateLayout)

	var view State
	err := s.ledger.Update(ctx, func(snap *snapshot.Snapshot) error {
		sess, ok := snap.Sessions[id]
		if !ok {
			return ErrNotFound
		}

		if sess.LastResetDate != today {
			sess.DailyMined = 0
			sess.LastResetDate = today
		}
		sess.LastActive = now
		snap.Sessions[id] = sess

		view = State{
			MinedTokens:     sess.MinedTokens,
			DailyMined:      sess.DailyMined,
			MiningSpeed:     sess.MiningSpeed,
			CompletedTasks:  append([]string(nil), sess.CompletedTasks...),
			TotalMiningTime: sess.TotalMiningTime,
			DailyLimit:      session.DailyLimit,
		}
		return nil
	})
	if err != nil {
		return State{}, err
	}
	return view, nil
}

// SetState applies the fields present in the raw JSON body. Absent fields
// keep their stored values; numeric fields that do not parse to a finite
// number also keep their stored values instead of collapsing to zero.
func (s *Service) SetState(ctx context.Context, id string, raw []byte) (SetResult, error) {
	now := s.now().UTC()

	var result SetResult
	err := s.ledger.Update(ctx, func(snap *snapshot.Snapshot) error {
		sess, ok := snap.Sessions[id]
		if !ok {
			return ErrNotFound
		}

		sess.MinedTokens = numericField(raw, "minedTokens", sess.MinedTokens)
		sess.DailyMined = numericField(raw, "dailyMined", sess.DailyMined)
		sess.MiningSpeed = numericField(raw, "miningSpeed", sess.MiningSpeed)
		sess.TotalMiningTime = numericField(raw, "totalMiningTime", sess.TotalMiningTime)
		if tasks := gjson.GetBytes(raw, "completedTasks"); tasks.IsArray() {
			for _, t := range tasks.Array() {
				if key := t.String(); key != "" {
					sess.MarkTask(key)
				}
			}
		}
		sess.LastActive = now
		snap.Sessions[id] = sess

		result = SetResult{
			Success:    true,
			DailyMined: sess.DailyMined,
			DailyLimit: session.DailyLimit,
		}
		return nil
	})
	if err != nil {
		return SetResult{}, err
	}
	return result, nil
}

// numericField extracts a numeric JSON field, falling back to prev when the
// field is absent or not a valid finite number.
func numericField(raw []byte, path string, prev float64) float64 {
	field := gjson.GetBytes(raw, path)
	if !field.Exists() {
		return prev
	}
	switch field.Type {
	case gjson.Number:
		v := field.Float()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return prev
		}
		return v
	case gjson.String:
		// Clients sometimes send numbers as strings. gjson coerces bad
		// strings to 0, which must not clobber the stored value, so parse
		// strictly here.
		v, err := strconv.ParseFloat(strings.TrimSpace(field.Str), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return prev
		}
		return v
	default:
		return prev
	}
}
