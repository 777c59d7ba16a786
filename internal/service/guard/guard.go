// Package guard enforces at-most-one credit per (member, action, type).
package guard

import (
	"context"
	"fmt"

	"github.com/civium/rewards-core/internal/model/action"
	"github.com/civium/rewards-core/internal/model/ledger"
)

type completionRepo interface {
	Exists(ctx context.Context, memberID, actionID string, actionType action.Type) (bool, error)
	ProofUsed(ctx context.Context, proofURL string) (bool, error)
	ReserveAndCredit(ctx context.Context, c *action.Completion, amount int64, source ledger.Source) (ledger.Transaction, error)
}

type Guard struct {
	completions completionRepo
}

func New(completions completionRepo) *Guard {
	return &Guard{completions: completions}
}

type Decision struct {
	Reason  string
	Allowed bool
}

// CheckAndReserve is the advisory pre-check. The storage-level unique
// constraints remain the authority during ReserveAndCredit: two
// concurrent requests can both pass here and only one will credit.
func (g *Guard) CheckAndReserve(ctx context.Context,
	memberID, actionID string, actionType action.Type, proofURL string,
) (Decision, error) {
	done, err := g.completions.Exists(ctx, memberID, actionID, actionType)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check completion: %w", err)
	}
	if done {
		return Decision{Allowed: false, Reason: "already completed"}, nil
	}

	if proofURL != "" {
		used, err := g.completions.ProofUsed(ctx, proofURL)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to check proof: %w", err)
		}
		if used {
			return Decision{Allowed: false, Reason: "proof already used"}, nil
		}
	}

	return Decision{Allowed: true}, nil
}

// ReserveAndCredit writes the completion record and the credit
// atomically, mapping constraint races to the duplicate-action errors.
func (g *Guard) ReserveAndCredit(ctx context.Context,
	c *action.Completion, amount int64, source ledger.Source,
) (ledger.Transaction, error) {
	return g.completions.ReserveAndCredit(ctx, c, amount, source) //nolint: wrapcheck // error from wrapped function
}
