// Package ledgerstore is the only writer of point transactions. Balance
// is always derived from the latest appended row, never stored.
package ledgerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civium/rewards-core/internal/model/ledger"
	"github.com/civium/rewards-core/internal/serviceerrs"
)

type ledgerRepo interface {
	Append(ctx context.Context, memberID string, amount int64, source ledger.Source) (ledger.Transaction, error)
	Balance(ctx context.Context, memberID string) (int64, error)
	ListByMember(ctx context.Context, memberID string) ([]ledger.Transaction, error)
	CreditedSince(ctx context.Context, memberID string, since time.Time) (int64, error)
}

type suspensionGate interface {
	IsSuspended(ctx context.Context, memberID string) (bool, error)
}

type Store struct {
	repo ledgerRepo
	gate suspensionGate
}

func New(repo ledgerRepo, gate suspensionGate) *Store {
	return &Store{
		repo: repo,
		gate: gate,
	}
}

func (s *Store) Append(ctx context.Context,
	memberID string, amount int64, source ledger.Source,
) (ledger.Transaction, error) {
	return s.repo.Append(ctx, memberID, amount, source) //nolint: wrapcheck // error from wrapped function
}

func (s *Store) Balance(ctx context.Context, memberID string) (int64, error) {
	return s.repo.Balance(ctx, memberID) //nolint: wrapcheck // error from wrapped function
}

func (s *Store) History(ctx context.Context, memberID string,
) ([]ledger.Transaction, error) {
	return s.repo.ListByMember(ctx, memberID) //nolint: wrapcheck // error from wrapped function
}

func (s *Store) CreditedSince(ctx context.Context,
	memberID string, since time.Time,
) (int64, error) {
	return s.repo.CreditedSince(ctx, memberID, since) //nolint: wrapcheck // error from wrapped function
}

// Adjust records a manual operator correction. Corrections are new
// offsetting transactions; prior rows are never touched.
func (s *Store) Adjust(ctx context.Context,
	memberID string, amount int64,
) (ledger.Transaction, error) {
	if amount == 0 {
		return ledger.Transaction{}, errors.New("adjustment amount must be non-zero")
	}
	return s.repo.Append(ctx, memberID, amount, ledger.SourceAdjustment) //nolint: wrapcheck // error from wrapped function
}

// CreditFromVerifiedPurchase credits a point top-up whose payment was
// already verified by the caller. The store performs no verification of
// its own; the webhook handler owns that boundary.
func (s *Store) CreditFromVerifiedPurchase(ctx context.Context,
	memberID string, pointsAmount int64, purchaseReference string,
) (ledger.Transaction, error) {
	if pointsAmount <= 0 {
		return ledger.Transaction{}, errors.New("purchase credit must be positive")
	}
	if purchaseReference == "" {
		return ledger.Transaction{}, errors.New("purchase reference is required")
	}

	if err := s.checkGate(ctx, memberID); err != nil {
		return ledger.Transaction{}, err
	}

	return s.repo.Append(ctx, memberID, pointsAmount, ledger.SourcePurchase) //nolint: wrapcheck // error from wrapped function
}

func (s *Store) checkGate(ctx context.Context, memberID string) error {
	suspended, err := s.gate.IsSuspended(ctx, memberID)
	if err != nil {
		return fmt.Errorf("failed to check suspension: %w", err)
	}
	if suspended {
		return serviceerrs.ErrAccountSuspended
	}
	return nil
}
