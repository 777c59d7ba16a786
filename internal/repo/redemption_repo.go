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
	"github.com/civium/rewards-core/internal/model/redemption"
	"github.com/civium/rewards-core/internal/serviceerrs"
)

type RedemptionRepository struct {
	DB
}

func NewRedemptionRepository(pool connectionPool, log *slog.Logger) *RedemptionRepository {
	return &RedemptionRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

const redemptionColumns = `
	id, member_id, product_type, points_debited, external_value, status,
	idempotency_key, destination, provider_ref, error_message, refunded,
	created_at, updated_at`

func scanRedemption(row pgx.Row) (redemption.Redemption, error) {
	var rd redemption.Redemption
	err := row.Scan(&rd.ID, &rd.MemberID, &rd.ProductType, &rd.PointsDebited,
		&rd.ExternalValue, &rd.Status, &rd.IdempotencyKey, &rd.Destination,
		&rd.ProviderRef, &rd.ErrorMessage, &rd.Refunded,
		&rd.CreatedAt, &rd.UpdatedAt)
	if err != nil {
		return redemption.Redemption{}, fmt.Errorf("failed to scan redemption: %w", err)
	}
	return rd, nil
}

// FindByKey returns the redemption for the idempotency key, or false.
func (r *RedemptionRepository) FindByKey(ctx context.Context, key string,
) (redemption.Redemption, bool, error) {
	type result struct {
		rd    redemption.Redemption
		found bool
	}

	findLogic := func() (result, error) {
		query := `SELECT ` + redemptionColumns + ` FROM redemptions WHERE idempotency_key = $1`
		rd, err := scanRedemption(r.pool.QueryRow(ctx, query, key))
		if errors.Is(err, pgx.ErrNoRows) {
			return result{}, nil
		}
		if err != nil {
			return result{}, err
		}
		return result{rd: rd, found: true}, nil
	}

	res, err := WithRetry[result](findLogic, 0)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return redemption.Redemption{}, false, err //nolint: wrapcheck // error from wrapped function
	}
	return res.rd, res.found, nil
}

func (r *RedemptionRepository) FindByID(ctx context.Context, id string,
) (redemption.Redemption, error) {
	findLogic := func() (redemption.Redemption, error) {
		query := `SELECT ` + redemptionColumns + ` FROM redemptions WHERE id = $1`
		rd, err := scanRedemption(r.pool.QueryRow(ctx, query, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return redemption.Redemption{}, serviceerrs.ErrRedemptionNotFound
		}
		return rd, err
	}

	rd, err := WithRetry[redemption.Redemption](findLogic, 0)
	if err != nil {
		if errors.Is(err, serviceerrs.ErrRedemptionNotFound) {
			return redemption.Redemption{}, serviceerrs.ErrRedemptionNotFound
		}
		return redemption.Redemption{}, err //nolint: wrapcheck // error from wrapped function
	}
	return rd, nil
}

// CreatePendingWithDebit inserts the pending redemption and the ledger
// debit in one transaction. When a concurrent request with the same
// idempotency key wins the insert, the existing row is returned and no
// second debit is written.
func (r *RedemptionRepository) CreatePendingWithDebit(ctx context.Context,
	rd *redemption.Redemption,
) (redemption.Redemption, bool, error) {
	createLogic := func(ctx context.Context, tx connectionPool) (any, error) {
		if err := lockMember(ctx, tx, rd.MemberID); err != nil {
			return redemption.Redemption{}, err
		}

		if _, err := appendTX(ctx, tx,
			rd.MemberID, -rd.PointsDebited, ledger.SourceRedemption); err != nil {
			return redemption.Redemption{}, err
		}

		rd.ID = uuid.NewString()
		rd.Status = redemption.StatusPending
		rd.CreatedAt = time.Now().UTC()
		rd.UpdatedAt = rd.CreatedAt

		const query = `
			INSERT INTO redemptions
				(id, member_id, product_type, points_debited, external_value,
				 status, idempotency_key, destination, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		if _, err := tx.Exec(ctx, query,
			rd.ID, rd.MemberID, string(rd.ProductType), rd.PointsDebited,
			rd.ExternalValue, string(rd.Status), rd.IdempotencyKey,
			rd.Destination, rd.CreatedAt, rd.UpdatedAt,
		); err != nil {
			return redemption.Redemption{}, fmt.Errorf("failed to insert redemption: %w", err)
		}
		return *rd, nil
	}

	createWithTX := func() (redemption.Redemption, error) {
		return WithTX[redemption.Redemption](ctx, r.pool, r.log, createLogic)
	}

	created, err := WithRetry[redemption.Redemption](createWithTX, 0)
	if err != nil {
		if isUniqueViolation(err) {
			existing, found, findErr := r.FindByKey(ctx, rd.IdempotencyKey)
			if findErr != nil {
				return redemption.Redemption{}, false, findErr
			}
			if found {
				return existing, false, nil
			}
		}
		if errors.Is(err, serviceerrs.ErrInsufficientBalance) {
			return redemption.Redemption{}, false, serviceerrs.ErrInsufficientBalance
		}
		return redemption.Redemption{}, false, err //nolint: wrapcheck // error from wrapped function
	}
	return created, true, nil
}

func (r *RedemptionRepository) MarkCompleted(ctx context.Context,
	id, providerRef string,
) error {
	return r.setStatus(ctx, id, redemption.StatusCompleted, providerRef, "")
}

func (r *RedemptionRepository) MarkFailed(ctx context.Context,
	id, errorMessage string,
) error {
	return r.setStatus(ctx, id, redemption.StatusFailed, "", errorMessage)
}

func (r *RedemptionRepository) setStatus(ctx context.Context,
	id string, status redemption.Status, providerRef, errorMessage string,
) error {
	setLogic := func() (struct{}, error) {
		const query = `
			UPDATE redemptions
			SET status = $1, provider_ref = $2, error_message = $3, updated_at = $4
			WHERE id = $5`
		res, err := r.pool.Exec(ctx, query,
			string(status), providerRef, errorMessage, time.Now().UTC(), id)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to update redemption status: %w", err)
		}
		if res.RowsAffected() == 0 {
			return struct{}{}, serviceerrs.ErrRedemptionNotFound
		}
		return struct{}{}, nil
	}

	_, err := WithRetry[struct{}](setLogic, 0)
	return err //nolint: wrapcheck // error from wrapped function
}

// RefundFailed issues the compensating credit for a failed redemption
// and marks the row refunded, atomically. A second refund attempt finds
// refunded already set and is rejected.
func (r *RedemptionRepository) RefundFailed(ctx context.Context, id string,
) (ledger.Transaction, error) {
	refundLogic := func(ctx context.Context, tx connectionPool) (any, error) {
		const selectQuery = `
			SELECT member_id, points_debited, status, refunded
			FROM redemptions WHERE id = $1
			FOR UPDATE`

		var memberID string
		var points int64
		var status string
		var refunded bool
		err := tx.QueryRow(ctx, selectQuery, id).Scan(&memberID, &points, &status, &refunded)
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Transaction{}, serviceerrs.ErrRedemptionNotFound
		}
		if err != nil {
			return ledger.Transaction{}, fmt.Errorf("failed to load redemption: %w", err)
		}
		if status != string(redemption.StatusFailed) || refunded {
			return ledger.Transaction{}, serviceerrs.ErrRedemptionNotFailed
		}

		if err = lockMember(ctx, tx, memberID); err != nil {
			return ledger.Transaction{}, err
		}
		t, err := appendTX(ctx, tx, memberID, points, ledger.SourceAdjustment)
		if err != nil {
			return ledger.Transaction{}, err
		}

		const updateQuery = `
			UPDATE redemptions SET refunded = TRUE, updated_at = $1 WHERE id = $2`
		if _, err = tx.Exec(ctx, updateQuery, time.Now().UTC(), id); err != nil {
			return ledger.Transaction{}, fmt.Errorf("failed to mark refund: %w", err)
		}

		return t, nil
	}

	refundWithTX := func() (ledger.Transaction, error) {
		return WithTX[ledger.Transaction](ctx, r.pool, r.log, refundLogic)
	}

	t, err := WithRetry[ledger.Transaction](refundWithTX, 0)
	if err != nil {
		for _, sentinel := range []error{
			serviceerrs.ErrRedemptionNotFound,
			serviceerrs.ErrRedemptionNotFailed,
		} {
			if errors.Is(err, sentinel) {
				return ledger.Transaction{}, sentinel
			}
		}
		return ledger.Transaction{}, err //nolint: wrapcheck // error from wrapped function
	}
	return t, nil
}

// ListPendingOlderThan returns pending redemptions that have sat beyond
// the grace period, for the reconciliation sweep.
func (r *RedemptionRepository) ListPendingOlderThan(ctx context.Context,
	age time.Duration,
) ([]redemption.Redemption, error) {
	listLogic := func() ([]redemption.Redemption, error) {
		query := `SELECT ` + redemptionColumns + `
			FROM redemptions
			WHERE status = $1 AND updated_at < $2
			ORDER BY created_at`

		rows, err := r.pool.Query(ctx, query,
			string(redemption.StatusPending), time.Now().UTC().Add(-age))
		if err != nil {
			return nil, fmt.Errorf("failed to list pending redemptions: %w", err)
		}
		defer rows.Close()

		var rds []redemption.Redemption
		for rows.Next() {
			rd, err := scanRedemption(rows)
			if err != nil {
				return nil, err
			}
			rds = append(rds, rd)
		}
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate redemptions: %w", err)
		}
		return rds, nil
	}

	return WithRetry[[]redemption.Redemption](listLogic, 0) //nolint: wrapcheck // error from wrapped function
}

func (r *RedemptionRepository) ListByMember(ctx context.Context, memberID string,
) ([]redemption.Redemption, error) {
	listLogic := func() ([]redemption.Redemption, error) {
		query := `SELECT ` + redemptionColumns + `
			FROM redemptions
			WHERE member_id = $1
			ORDER BY created_at DESC`

		rows, err := r.pool.Query(ctx, query, memberID)
		if err != nil {
			return nil, fmt.Errorf("failed to list redemptions: %w", err)
		}
		defer rows.Close()

		var rds []redemption.Redemption
		for rows.Next() {
			rd, err := scanRedemption(rows)
			if err != nil {
				return nil, err
			}
			rds = append(rds, rd)
		}
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate redemptions: %w", err)
		}
		return rds, nil
	}

	return WithRetry[[]redemption.Redemption](listLogic, 0) //nolint: wrapcheck // error from wrapped function
}
