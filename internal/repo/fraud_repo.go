package repo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/civium/rewards-core/internal/model/fraud"
)

type FraudRepository struct {
	DB
}

func NewFraudRepository(pool connectionPool, log *slog.Logger) *FraudRepository {
	return &FraudRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

func (r *FraudRepository) Create(ctx context.Context, l *fraud.DetectionLog) error {
	l.ID = uuid.NewString()
	l.CreatedAt = time.Now().UTC()

	evidence, err := fraud.MarshalEvidence(l.Evidence)
	if err != nil {
		return fmt.Errorf("failed to serialize evidence: %w", err)
	}

	createLogic := func() (struct{}, error) {
		const query = `
			INSERT INTO fraud_detection_logs
				(id, member_id, action_type, reason, severity, blocked,
				 evidence, fingerprint, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
		if _, err := r.pool.Exec(ctx, query,
			l.ID, l.MemberID, l.ActionType, l.Reason, string(l.Severity),
			l.Blocked, evidence, l.Fingerprint, l.CreatedAt,
		); err != nil {
			return struct{}{}, fmt.Errorf("failed to create fraud log: %w", err)
		}
		return struct{}{}, nil
	}

	_, err = WithRetry[struct{}](createLogic, 0)
	return err //nolint: wrapcheck // error from wrapped function
}

// ExistsSince reports whether any detection log was written for the
// member in the trailing window. Feeds the recidivism heuristic.
func (r *FraudRepository) ExistsSince(ctx context.Context,
	memberID string, since time.Time,
) (bool, error) {
	existsLogic := func() (bool, error) {
		const query = `
			SELECT EXISTS (
				SELECT 1 FROM fraud_detection_logs
				WHERE member_id = $1 AND created_at >= $2
			)`

		var exists bool
		if err := r.pool.QueryRow(ctx, query, memberID, since).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check fraud logs: %w", err)
		}
		return exists, nil
	}

	return WithRetry[bool](existsLogic, 0) //nolint: wrapcheck // error from wrapped function
}

func (r *FraudRepository) ListByMember(ctx context.Context, memberID string,
) ([]fraud.DetectionLog, error) {
	listLogic := func() ([]fraud.DetectionLog, error) {
		const query = `
			SELECT id, member_id, action_type, reason, severity, blocked,
				evidence, fingerprint, created_at
			FROM fraud_detection_logs
			WHERE member_id = $1
			ORDER BY created_at DESC`

		rows, err := r.pool.Query(ctx, query, memberID)
		if err != nil {
			return nil, fmt.Errorf("failed to list fraud logs: %w", err)
		}
		defer rows.Close()

		var logs []fraud.DetectionLog
		for rows.Next() {
			var l fraud.DetectionLog
			var evidence []byte
			if err = rows.Scan(&l.ID, &l.MemberID, &l.ActionType, &l.Reason,
				&l.Severity, &l.Blocked, &evidence, &l.Fingerprint, &l.CreatedAt,
			); err != nil {
				return nil, fmt.Errorf("failed to scan fraud log: %w", err)
			}
			if l.Evidence, err = fraud.UnmarshalEvidence(evidence); err != nil {
				return nil, fmt.Errorf("failed to decode evidence: %w", err)
			}
			logs = append(logs, l)
		}
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate fraud logs: %w", err)
		}
		return logs, nil
	}

	return WithRetry[[]fraud.DetectionLog](listLogic, 0) //nolint: wrapcheck // error from wrapped function
}
