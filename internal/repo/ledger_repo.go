package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/civium/rewards-core/internal/model/ledger"
	"github.com/civium/rewards-core/internal/serviceerrs"
)

type LedgerRepository struct {
	DB
}

func NewLedgerRepository(pool connectionPool, log *slog.Logger) *LedgerRepository {
	return &LedgerRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

// lockMember serializes all ledger writes for one member within the
// surrounding transaction. Writes for different members do not contend.
func lockMember(ctx context.Context, tx connectionPool, memberID string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`
	if _, err := tx.Exec(ctx, query, memberID); err != nil {
		return fmt.Errorf("failed to take member lock: %w", err)
	}
	return nil
}

// appendTX writes one immutable transaction row computing balance_after
// from the latest row. The caller must hold the member lock.
func appendTX(ctx context.Context, tx connectionPool,
	memberID string, amount int64, source ledger.Source,
) (ledger.Transaction, error) {
	prior, err := latestBalanceTX(ctx, tx, memberID)
	if err != nil {
		return ledger.Transaction{}, err
	}

	balanceAfter := prior + amount
	if balanceAfter < 0 {
		return ledger.Transaction{}, serviceerrs.ErrInsufficientBalance
	}

	t := ledger.Transaction{
		CreatedAt:    time.Now().UTC(),
		ID:           uuid.NewString(),
		MemberID:     memberID,
		Type:         ledger.TypeFor(amount),
		Source:       source,
		Amount:       amount,
		BalanceAfter: balanceAfter,
	}

	const query = `
		INSERT INTO point_transactions
			(id, member_id, amount, tx_type, source, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.Exec(ctx, query,
		t.ID, t.MemberID, t.Amount, string(t.Type), string(t.Source),
		t.BalanceAfter, t.CreatedAt,
	); err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to append transaction: %w", err)
	}

	return t, nil
}

func latestBalanceTX(ctx context.Context, tx connectionPool, memberID string,
) (int64, error) {
	const query = `
		SELECT balance_after FROM point_transactions
		WHERE member_id = $1
		ORDER BY seq DESC
		LIMIT 1`

	var balance int64
	err := tx.QueryRow(ctx, query, memberID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read latest balance: %w", err)
	}
	return balance, nil
}

func (r *LedgerRepository) Append(ctx context.Context,
	memberID string, amount int64, source ledger.Source,
) (ledger.Transaction, error) {
	appendLogic := func(ctx context.Context, tx connectionPool) (any, error) {
		if err := lockMember(ctx, tx, memberID); err != nil {
			return ledger.Transaction{}, err
		}
		return appendTX(ctx, tx, memberID, amount, source)
	}

	appendWithTX := func() (ledger.Transaction, error) {
		return WithTX[ledger.Transaction](ctx, r.pool, r.log, appendLogic)
	}

	t, err := WithRetry[ledger.Transaction](appendWithTX, 0)
	if err != nil {
		if errors.Is(err, serviceerrs.ErrInsufficientBalance) {
			return ledger.Transaction{}, serviceerrs.ErrInsufficientBalance
		}
		return ledger.Transaction{}, err //nolint: wrapcheck // error from wrapped function
	}
	return t, nil
}

func (r *LedgerRepository) Balance(ctx context.Context, memberID string,
) (int64, error) {
	balanceLogic := func() (int64, error) {
		return latestBalanceTX(ctx, r.pool, memberID)
	}

	return WithRetry[int64](balanceLogic, 0) //nolint: wrapcheck // error from wrapped function
}

// ListByMember returns the member's transactions in creation order.
func (r *LedgerRepository) ListByMember(ctx context.Context, memberID string,
) ([]ledger.Transaction, error) {
	listLogic := func() ([]ledger.Transaction, error) {
		const query = `
			SELECT id, member_id, amount, tx_type, source, balance_after, created_at
			FROM point_transactions
			WHERE member_id = $1
			ORDER BY seq`

		rows, err := r.pool.Query(ctx, query, memberID)
		if err != nil {
			return nil, fmt.Errorf("failed to list transactions: %w", err)
		}
		defer rows.Close()

		var ts []ledger.Transaction
		for rows.Next() {
			var t ledger.Transaction
			if err = rows.Scan(&t.ID, &t.MemberID, &t.Amount, &t.Type,
				&t.Source, &t.BalanceAfter, &t.CreatedAt); err != nil {
				return nil, fmt.Errorf("failed to scan transaction: %w", err)
			}
			ts = append(ts, t)
		}
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate transactions: %w", err)
		}
		return ts, nil
	}

	return WithRetry[[]ledger.Transaction](listLogic, 0) //nolint: wrapcheck // error from wrapped function
}

// CreditedSince sums credits for the member in the trailing window.
// Used by the velocity heuristic; runs without locks.
func (r *LedgerRepository) CreditedSince(ctx context.Context,
	memberID string, since time.Time,
) (int64, error) {
	sumLogic := func() (int64, error) {
		const query = `
			SELECT COALESCE(SUM(amount), 0) FROM point_transactions
			WHERE member_id = $1 AND amount > 0 AND created_at >= $2`

		var sum int64
		if err := r.pool.QueryRow(ctx, query, memberID, since).Scan(&sum); err != nil {
			return 0, fmt.Errorf("failed to sum credited points: %w", err)
		}
		return sum, nil
	}

	return WithRetry[int64](sumLogic, 0) //nolint: wrapcheck // error from wrapped function
}
