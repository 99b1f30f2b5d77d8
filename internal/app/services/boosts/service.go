// Package boosts manages boost grants and their exactly-once application to a
// session's mining speed.
package boosts

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/minedeck/minedeck-server/internal/app/domain/activity"
	"github.com/minedeck/minedeck-server/internal/app/domain/boost"
	"github.com/minedeck/minedeck-server/internal/app/ledger"
	"github.com/minedeck/minedeck-server/internal/app/snapshot"
	"github.com/minedeck/minedeck-server/pkg/logger"
)

// Errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrBoostNotFound   = errors.New("boost not found")
	ErrNotOwner        = errors.New("boost not owned by session")
)

// Service creates and verifies boosts.
type Service struct {
	ledger *ledger.Ledger
	log    *logger.Logger
	rand   *rand.Rand
	now    func() time.Time
}

// New constructs a boost service.
func New(l *ledger.Ledger, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("boosts")
	}
	return &Service{
		ledger: l,
		log:    log,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Created is the response to a boost grant.
type Created struct {
	BoostID     string `json:"boostId"`
	BoostAmount int    `json:"boostAmount"`
}

// Verified is the response to a successful verification.
type Verified struct {
	BoostAmount int     `json:"boostAmount"`
	NewSpeed    float64 `json:"newSpeed"`
}

// Create grants an unverified boost with a pseudo-random amount and records
// it against the owning session.
func (s *Service) Create(ctx context.Context, sessionID, taskType string) (Created, error) {
	now := s.now().UTC()
	grant := boost.Boost{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Amount:    boost.MinAmount + s.rand.Intn(boost.MaxAmount-boost.MinAmount),
		TaskType:  taskType,
		CreatedAt: now,
	}

	err := s.ledger.Update(ctx, func(snap *snapshot.Snapshot) error {
		sess, ok := snap.Sessions[sessionID]
		if !ok {
			return ErrSessionNotFound
		}
		snap.Boosts = append(snap.Boosts, grant)
		sess.Boosts = append(sess.Boosts, grant.ID)
		snap.Sessions[sessionID] = sess
		return nil
	})
	if err != nil {
		return Created{}, err
	}

	s.log.WithField("boost_id", grant.ID).
		WithField("session_id", sessionID).
		WithField("amount", grant.Amount).
		Info("boost created")
	return Created{BoostID: grant.ID, BoostAmount: grant.Amount}, nil
}

// Verify marks the boost verified and applies its amount to the owning
// session's mining speed. The speed increment is guarded by the session's
// completed-task marker, so verifying the same boost again returns the
// current speed without a second increment.
func (s *Service) Verify(ctx context.Context, boostID, sessionID string) (Verified, error) {
	now := s.now().UTC()

	var result Verified
	err := s.ledger.Update(ctx, func(snap *snapshot.Snapshot) error {
		b := snap.FindBoost(boostID)
		if b == nil {
			return ErrBoostNotFound
		}
		if b.SessionID != sessionID {
			return ErrNotOwner
		}
		sess, ok := snap.Sessions[sessionID]
		if !ok {
			return ErrSessionNotFound
		}

		if !b.Verified {
			b.Verified = true
			b.VerifiedAt = now
		}

		key := boost.DedupKey(boostID)
		if !sess.HasTask(key) {
			sess.MiningSpeed += float64(b.Amount)
			sess.MarkTask(key)
			snap.AppendActivity(activity.Activity{
				ID:        uuid.NewString(),
				Type:      activity.TypeBoostVerified,
				SessionID: sessionID,
				Amount:    float64(b.Amount),
				CreatedAt: now,
			})
		}
		snap.Sessions[sessionID] = sess

		result = Verified{BoostAmount: b.Amount, NewSpeed: sess.MiningSpeed}
		return nil
	})
	if err != nil {
		return Verified{}, err
	}

	s.log.WithField("boost_id", boostID).
		WithField("session_id", sessionID).
		WithField("new_speed", result.NewSpeed).
		Info("boost verified")
	return result, nil
}
