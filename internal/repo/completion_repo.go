package repo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/civium/rewards-core/internal/model/action"
	"github.com/civium/rewards-core/internal/model/ledger"
	"github.com/civium/rewards-core/internal/serviceerrs"
)

type CompletionRepository struct {
	DB
}

func NewCompletionRepository(pool connectionPool, log *slog.Logger) *CompletionRepository {
	return &CompletionRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

// ReserveAndCredit inserts the completion record and appends the point
// credit in one transaction. The unique constraints on the completions
// table are the authority: a concurrent duplicate loses the insert and
// no credit is written.
func (r *CompletionRepository) ReserveAndCredit(ctx context.Context,
	c *action.Completion, amount int64, source ledger.Source,
) (ledger.Transaction, error) {
	creditLogic := func(ctx context.Context, tx connectionPool) (any, error) {
		if err := lockMember(ctx, tx, c.MemberID); err != nil {
			return ledger.Transaction{}, err
		}
		if err := insertCompletionTX(ctx, tx, c); err != nil {
			return ledger.Transaction{}, err
		}
		return appendTX(ctx, tx, c.MemberID, amount, source)
	}

	creditWithTX := func() (ledger.Transaction, error) {
		return WithTX[ledger.Transaction](ctx, r.pool, r.log, creditLogic)
	}

	t, err := WithRetry[ledger.Transaction](creditWithTX, 0)
	if err != nil {
		switch {
		case isUniqueViolation(err) && constraintName(err) == "uq_completion_proof":
			return ledger.Transaction{}, serviceerrs.ErrProofAlreadyUsed
		case isUniqueViolation(err):
			return ledger.Transaction{}, serviceerrs.ErrDuplicateAction
		}
		return ledger.Transaction{}, err //nolint: wrapcheck // error from wrapped function
	}
	return t, nil
}

func insertCompletionTX(ctx context.Context, tx connectionPool,
	c *action.Completion,
) error {
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()

	const query = `
		INSERT INTO action_completions
			(id, member_id, action_id, action_type, proof_url, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`
	if _, err := tx.Exec(ctx, query,
		c.ID, c.MemberID, c.ActionID, string(c.Type), c.ProofURL, c.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert completion: %w", err)
	}
	return nil
}

func (r *CompletionRepository) Exists(ctx context.Context,
	memberID, actionID string, actionType action.Type,
) (bool, error) {
	existsLogic := func() (bool, error) {
		const query = `
			SELECT EXISTS (
				SELECT 1 FROM action_completions
				WHERE member_id = $1 AND action_id = $2 AND action_type = $3
			)`

		var exists bool
		if err := r.pool.QueryRow(ctx, query,
			memberID, actionID, string(actionType)).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check completion: %w", err)
		}
		return exists, nil
	}

	return WithRetry[bool](existsLogic, 0) //nolint: wrapcheck // error from wrapped function
}

// ProofUsed reports whether any member has already submitted this proof
// artifact for any action. Proofs are globally unique.
func (r *CompletionRepository) ProofUsed(ctx context.Context, proofURL string,
) (bool, error) {
	usedLogic := func() (bool, error) {
		const query = `
			SELECT EXISTS (
				SELECT 1 FROM action_completions WHERE proof_url = $1
			)`

		var used bool
		if err := r.pool.QueryRow(ctx, query, proofURL).Scan(&used); err != nil {
			return false, fmt.Errorf("failed to check proof: %w", err)
		}
		return used, nil
	}

	return WithRetry[bool](usedLogic, 0) //nolint: wrapcheck // error from wrapped function
}
