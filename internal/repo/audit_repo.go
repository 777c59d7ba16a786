package repo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/civium/rewards-core/internal/model/audit"
)

type AuditRepository struct {
	DB
}

func NewAuditRepository(pool connectionPool, log *slog.Logger) *AuditRepository {
	return &AuditRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

func (r *AuditRepository) Record(ctx context.Context, e *audit.Entry) error {
	recordLogic := func() (struct{}, error) {
		const query = `
			INSERT INTO audit_log (member_id, ip_address, action, created_at)
			VALUES ($1, $2, $3, $4)`
		if _, err := r.pool.Exec(ctx, query,
			e.MemberID, e.IPAddress, e.Action, e.CreatedAt,
		); err != nil {
			return struct{}{}, fmt.Errorf("failed to record audit entry: %w", err)
		}
		return struct{}{}, nil
	}

	_, err := WithRetry[struct{}](recordLogic, 0)
	return err //nolint: wrapcheck // error from wrapped function
}

func (r *AuditRepository) CountByIPSince(ctx context.Context,
	ip string, since time.Time,
) (int, error) {
	countLogic := func() (int, error) {
		const query = `
			SELECT COUNT(*) FROM audit_log
			WHERE ip_address = $1 AND created_at >= $2`

		var n int
		if err := r.pool.QueryRow(ctx, query, ip, since).Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to count audit entries by IP: %w", err)
		}
		return n, nil
	}

	return WithRetry[int](countLogic, 0) //nolint: wrapcheck // error from wrapped function
}

// LastByMember returns the member's most recent entries, newest first.
func (r *AuditRepository) LastByMember(ctx context.Context,
	memberID string, limit int,
) ([]audit.Entry, error) {
	lastLogic := func() ([]audit.Entry, error) {
		const query = `
			SELECT member_id, ip_address, action, created_at
			FROM audit_log
			WHERE member_id = $1
			ORDER BY created_at DESC
			LIMIT $2`

		rows, err := r.pool.Query(ctx, query, memberID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list audit entries: %w", err)
		}
		defer rows.Close()

		var entries []audit.Entry
		for rows.Next() {
			var e audit.Entry
			if err = rows.Scan(&e.MemberID, &e.IPAddress, &e.Action, &e.CreatedAt); err != nil {
				return nil, fmt.Errorf("failed to scan audit entry: %w", err)
			}
			entries = append(entries, e)
		}
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
		}
		return entries, nil
	}

	return WithRetry[[]audit.Entry](lastLogic, 0) //nolint: wrapcheck // error from wrapped function
}
