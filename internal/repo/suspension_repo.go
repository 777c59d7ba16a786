package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/civium/rewards-core/internal/model/suspension"
)

type SuspensionRepository struct {
	DB
}

func NewSuspensionRepository(pool connectionPool, log *slog.Logger) *SuspensionRepository {
	return &SuspensionRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

func (r *SuspensionRepository) Create(ctx context.Context, s *suspension.Suspension) error {
	s.ID = uuid.NewString()
	s.CreatedAt = time.Now().UTC()
	s.IsActive = true

	createLogic := func() (struct{}, error) {
		const query = `
			INSERT INTO account_suspensions
				(id, member_id, reason, suspended_by, expires_at, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := r.pool.Exec(ctx, query,
			s.ID, s.MemberID, s.Reason, s.SuspendedBy, s.ExpiresAt, s.IsActive, s.CreatedAt,
		); err != nil {
			return struct{}{}, fmt.Errorf("failed to create suspension: %w", err)
		}
		return struct{}{}, nil
	}

	_, err := WithRetry[struct{}](createLogic, 0)
	return err //nolint: wrapcheck // error from wrapped function
}

// FindActive returns the member's active suspension, or false when none
// exists. Expired rows are not filtered here; lazy expiry belongs to the
// suspension manager.
func (r *SuspensionRepository) FindActive(ctx context.Context, memberID string,
) (suspension.Suspension, bool, error) {
	type result struct {
		s     suspension.Suspension
		found bool
	}

	findLogic := func() (result, error) {
		const query = `
			SELECT id, member_id, reason, suspended_by, expires_at, is_active, created_at
			FROM account_suspensions
			WHERE member_id = $1 AND is_active
			ORDER BY created_at DESC
			LIMIT 1`

		var s suspension.Suspension
		err := r.pool.QueryRow(ctx, query, memberID).Scan(
			&s.ID, &s.MemberID, &s.Reason, &s.SuspendedBy,
			&s.ExpiresAt, &s.IsActive, &s.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return result{}, nil
		}
		if err != nil {
			return result{}, fmt.Errorf("failed to find active suspension: %w", err)
		}
		return result{s: s, found: true}, nil
	}

	res, err := WithRetry[result](findLogic, 0)
	if err != nil {
		return suspension.Suspension{}, false, err //nolint: wrapcheck // error from wrapped function
	}
	return res.s, res.found, nil
}

// Deactivate flips is_active off. The row itself stays as audit trail.
func (r *SuspensionRepository) Deactivate(ctx context.Context, id string) error {
	deactivateLogic := func() (struct{}, error) {
		const query = `UPDATE account_suspensions SET is_active = FALSE WHERE id = $1`
		if _, err := r.pool.Exec(ctx, query, id); err != nil {
			return struct{}{}, fmt.Errorf("failed to deactivate suspension: %w", err)
		}
		return struct{}{}, nil
	}

	_, err := WithRetry[struct{}](deactivateLogic, 0)
	return err //nolint: wrapcheck // error from wrapped function
}

func (r *SuspensionRepository) ListByMember(ctx context.Context, memberID string,
) ([]suspension.Suspension, error) {
	listLogic := func() ([]suspension.Suspension, error) {
		const query = `
			SELECT id, member_id, reason, suspended_by, expires_at, is_active, created_at
			FROM account_suspensions
			WHERE member_id = $1
			ORDER BY created_at DESC`

		rows, err := r.pool.Query(ctx, query, memberID)
		if err != nil {
			return nil, fmt.Errorf("failed to list suspensions: %w", err)
		}
		defer rows.Close()

		var ss []suspension.Suspension
		for rows.Next() {
			var s suspension.Suspension
			if err = rows.Scan(&s.ID, &s.MemberID, &s.Reason, &s.SuspendedBy,
				&s.ExpiresAt, &s.IsActive, &s.CreatedAt); err != nil {
				return nil, fmt.Errorf("failed to scan suspension: %w", err)
			}
			ss = append(ss, s)
		}
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate suspensions: %w", err)
		}
		return ss, nil
	}

	return WithRetry[[]suspension.Suspension](listLogic, 0) //nolint: wrapcheck // error from wrapped function
}
