// Package withdrawals manages withdrawal requests with an immediate balance
// hold and exactly-once completion.
package withdrawals

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/minedeck/minedeck-server/internal/app/domain/activity"
	"github.com/minedeck/minedeck-server/internal/app/domain/withdrawal"
	"github.com/minedeck/minedeck-server/internal/app/ledger"
	"github.com/minedeck/minedeck-server/internal/app/snapshot"
	"github.com/minedeck/minedeck-server/pkg/logger"
)

// Errors
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrWithdrawalNotFound  = errors.New("withdrawal not found")
	ErrNotOwner            = errors.New("withdrawal not owned by session")
	ErrInvalidAmount       = errors.New("invalid withdrawal amount")
	ErrMissingWallet       = errors.New("wallet address is required")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyCompleted    = errors.New("withdrawal already completed")
)

// Service creates and completes withdrawals.
type Service struct {
	ledger *ledger.Ledger
	log    *logger.Logger
	now    func() time.Time
}

// New constructs a withdrawal service.
func New(l *ledger.Ledger, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("withdrawals")
	}
	return &Service{ledger: l, log: log, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Created is the response to a withdrawal request.
type Created struct {
	WithdrawalID string  `json:"withdrawalId"`
	NewBalance   float64 `json:"newBalance"`
}

// Create validates the request and debits the session balance immediately.
// The hold is not refunded if verification never completes.
func (s *Service) Create(ctx context.Context, sessionID, wallet string, amount float64, network string) (Created, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return Created{}, ErrMissingWallet
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < withdrawal.MinAmount {
		return Created{}, ErrInvalidAmount
	}
	network = strings.TrimSpace(network)
	if network == "" {
		network = withdrawal.DefaultNetwork
	}

	now := s.now().UTC()
	wd := withdrawal.Withdrawal{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Wallet:    wallet,
		Amount:    amount,
		Network:   network,
		Status:    withdrawal.StatusPending,
		CreatedAt: now,
	}

	var result Created
	err := s.ledger.Update(ctx, func(snap *snapshot.Snapshot) error {
		sess, ok := snap.Sessions[sessionID]
		if !ok {
			return ErrSessionNotFound
		}
		if sess.MinedTokens < amount {
			return ErrInsufficientBalance
		}

		sess.MinedTokens -= amount
		sess.Withdrawals = append(sess.Withdrawals, wd.ID)
		snap.Sessions[sessionID] = sess
		snap.Withdrawals[wd.ID] = wd
		snap.AppendActivity(activity.Activity{
			ID:        uuid.NewString(),
			Type:      activity.TypeWithdrawalRequested,
			SessionID: sessionID,
			Amount:    amount,
			CreatedAt: now,
		})

		result = Created{WithdrawalID: wd.ID, NewBalance: sess.MinedTokens}
		return nil
	})
	if err != nil {
		return Created{}, err
	}

	s.log.WithField("withdrawal_id", wd.ID).
		WithField("session_id", sessionID).
		WithField("amount", amount).
		WithField("network", network).
		Info("withdrawal requested")
	return result, nil
}

// Complete finalizes a pending withdrawal exactly once. Completing an already
// completed withdrawal is an error and leaves its timestamps untouched. No
// balance moves here; the debit happened at creation.
func (s *Service) Complete(ctx context.Context, withdrawalID, sessionID string) (withdrawal.Withdrawal, error) {
	now := s.now().UTC()

	var completed withdrawal.Withdrawal
	err := s.ledger.Update(ctx, func(snap *snapshot.Snapshot) error {
		wd, ok := snap.Withdrawals[withdrawalID]
		if !ok {
			return ErrWithdrawalNotFound
		}
		if wd.SessionID != sessionID {
			return ErrNotOwner
		}
		if wd.Status == withdrawal.StatusCompleted {
			return ErrAlreadyCompleted
		}

		wd.Status = withdrawal.StatusCompleted
		wd.Verified = true
		wd.CompletedAt = now
		snap.Withdrawals[withdrawalID] = wd
		snap.AppendActivity(activity.Activity{
			ID:        uuid.NewString(),
			Type:      activity.TypeWithdrawalCompleted,
			SessionID: sessionID,
			Amount:    wd.Amount,
			CreatedAt: now,
		})

		completed = wd
		return nil
	})
	if err != nil {
		return withdrawal.Withdrawal{}, err
	}

	s.log.WithField("withdrawal_id", withdrawalID).
		WithField("session_id", sessionID).
		Info("withdrawal completed")
	return completed, nil
}
