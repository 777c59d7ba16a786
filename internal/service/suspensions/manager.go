// Package suspensions owns the account-lockout state machine. Nothing
// else transitions suspension rows.
package suspensions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/civium/rewards-core/internal/model"
	"github.com/civium/rewards-core/internal/model/member"
	"github.com/civium/rewards-core/internal/model/suspension"
)

type suspensionRepo interface {
	Create(ctx context.Context, s *suspension.Suspension) error
	FindActive(ctx context.Context, memberID string) (suspension.Suspension, bool, error)
	Deactivate(ctx context.Context, id string) error
	ListByMember(ctx context.Context, memberID string) ([]suspension.Suspension, error)
}

type memberRepo interface {
	SetStatus(ctx context.Context, id string, status member.Status) error
}

type Manager struct {
	suspensions suspensionRepo
	members     memberRepo
	log         *slog.Logger
	now         func() time.Time
}

func New(suspensions suspensionRepo, members memberRepo, log *slog.Logger) *Manager {
	return &Manager{
		suspensions: suspensions,
		members:     members,
		log:         log,
		now:         time.Now,
	}
}

// IsSuspended reports whether the member is locked out. A temporary
// suspension whose expiry has passed is deactivated here as a side
// effect (lazy expiry) and no longer counts.
func (m *Manager) IsSuspended(ctx context.Context, memberID string) (bool, error) {
	s, found, err := m.suspensions.FindActive(ctx, memberID)
	if err != nil {
		return false, fmt.Errorf("failed to find active suspension: %w", err)
	}
	if !found {
		return false, nil
	}

	if s.Expired(m.now().UTC()) {
		if err = m.suspensions.Deactivate(ctx, s.ID); err != nil {
			return false, fmt.Errorf("failed to expire suspension: %w", err)
		}
		if err = m.members.SetStatus(ctx, memberID, member.StatusActive); err != nil {
			m.log.LogAttrs(ctx,
				slog.LevelError,
				"failed to reset member status on expiry",
				slog.Any(model.KeyLoggerError, err),
			)
		}
		return false, nil
	}

	return true, nil
}

// Suspend creates a new suspension row. Prior, already inactive rows are
// never touched; the history stays intact. durationDays == 0 means a
// permanent suspension that only explicit restoration can lift.
func (m *Manager) Suspend(ctx context.Context,
	memberID, reason, suspendedBy string, durationDays int,
) (suspension.Suspension, error) {
	s := suspension.Suspension{
		MemberID:    memberID,
		Reason:      reason,
		SuspendedBy: suspendedBy,
	}
	if durationDays > 0 {
		expires := m.now().UTC().Add(time.Duration(durationDays) * 24 * time.Hour)
		s.ExpiresAt = &expires
	}

	if err := m.suspensions.Create(ctx, &s); err != nil {
		return suspension.Suspension{}, fmt.Errorf("failed to create suspension: %w", err)
	}
	if err := m.members.SetStatus(ctx, memberID, member.StatusSuspended); err != nil {
		m.log.LogAttrs(ctx,
			slog.LevelError,
			"failed to set member status to suspended",
			slog.Any(model.KeyLoggerError, err),
		)
	}

	return s, nil
}

// Restore lifts the member's active suspension explicitly.
func (m *Manager) Restore(ctx context.Context, memberID string) error {
	s, found, err := m.suspensions.FindActive(ctx, memberID)
	if err != nil {
		return fmt.Errorf("failed to find active suspension: %w", err)
	}
	if !found {
		return nil
	}

	if err = m.suspensions.Deactivate(ctx, s.ID); err != nil {
		return fmt.Errorf("failed to deactivate suspension: %w", err)
	}
	if err = m.members.SetStatus(ctx, memberID, member.StatusActive); err != nil {
		return fmt.Errorf("failed to reset member status: %w", err)
	}
	return nil
}

func (m *Manager) History(ctx context.Context, memberID string,
) ([]suspension.Suspension, error) {
	return m.suspensions.ListByMember(ctx, memberID) //nolint: wrapcheck // error from wrapped function
}
