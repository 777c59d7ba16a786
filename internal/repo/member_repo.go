package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/civium/rewards-core/internal/model"
	"github.com/civium/rewards-core/internal/model/member"
	"github.com/civium/rewards-core/internal/serviceerrs"
)

type MemberRepository struct {
	DB
}

func NewMemberRepository(pool connectionPool, log *slog.Logger) *MemberRepository {
	return &MemberRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

func (r *MemberRepository) Create(ctx context.Context, m *member.Member) error {
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	m.Status = member.StatusActive

	createLogic := func() (struct{}, error) {
		const query = `
			INSERT INTO members (id, login_hash, password_hash, verified, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := r.pool.Exec(ctx, query,
			m.ID, m.LoginHash, m.PasswordHash, m.Verified, string(m.Status), m.CreatedAt,
		); err != nil {
			return struct{}{}, fmt.Errorf("failed to create member: %w", err)
		}
		return struct{}{}, nil
	}

	_, err := WithRetry[struct{}](createLogic, 0)
	return err //nolint: wrapcheck // error from wrapped function
}

func (r *MemberRepository) Exists(ctx context.Context, loginHash string) bool {
	existsLogic := func() (bool, error) {
		const query = `SELECT EXISTS (SELECT 1 FROM members WHERE login_hash = $1)`

		var exists bool
		if err := r.pool.QueryRow(ctx, query, loginHash).Scan(&exists); err != nil {
			r.log.LogAttrs(ctx,
				slog.LevelError,
				"failed to check if loginHash exists in DB",
				slog.Any(model.KeyLoggerError, err),
			)
			return false, nil
		}
		return exists, nil
	}

	exists, _ := WithRetry[bool](existsLogic, 0)
	return exists
}

func (r *MemberRepository) FindByLogin(ctx context.Context, loginHash string,
) (member.Member, error) {
	const query = `
		SELECT id, login_hash, password_hash, verified, status, created_at
		FROM members WHERE login_hash = $1`
	return r.findOne(ctx, query, loginHash)
}

func (r *MemberRepository) FindByID(ctx context.Context, id string,
) (member.Member, error) {
	const query = `
		SELECT id, login_hash, password_hash, verified, status, created_at
		FROM members WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *MemberRepository) findOne(ctx context.Context, query, key string,
) (member.Member, error) {
	findLogic := func() (member.Member, error) {
		var m member.Member
		err := r.pool.QueryRow(ctx, query, key).Scan(
			&m.ID, &m.LoginHash, &m.PasswordHash, &m.Verified, &m.Status, &m.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return member.Member{}, serviceerrs.ErrMemberNotFound
		}
		if err != nil {
			return member.Member{}, fmt.Errorf("failed to find member: %w", err)
		}
		return m, nil
	}

	m, err := WithRetry[member.Member](findLogic, 0)
	if err != nil {
		if errors.Is(err, serviceerrs.ErrMemberNotFound) {
			return member.Member{}, serviceerrs.ErrMemberNotFound
		}
		return member.Member{}, err //nolint: wrapcheck // error from wrapped function
	}
	return m, nil
}

func (r *MemberRepository) SetStatus(ctx context.Context,
	id string, status member.Status,
) error {
	setLogic := func() (struct{}, error) {
		const query = `UPDATE members SET status = $1 WHERE id = $2`
		res, err := r.pool.Exec(ctx, query, string(status), id)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to set member status: %w", err)
		}
		if res.RowsAffected() == 0 {
			return struct{}{}, serviceerrs.ErrMemberNotFound
		}
		return struct{}{}, nil
	}

	_, err := WithRetry[struct{}](setLogic, 0)
	return err //nolint: wrapcheck // error from wrapped function
}
