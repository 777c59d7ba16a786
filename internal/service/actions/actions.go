// Package actions orchestrates the credit flow for member actions:
// suspension gate, uniqueness reserve, validators, ledger append, and
// the follow-up fraud scoring.
package actions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/civium/rewards-core/internal/config"
	"github.com/civium/rewards-core/internal/model"
	"github.com/civium/rewards-core/internal/model/action"
	"github.com/civium/rewards-core/internal/model/fraud"
	"github.com/civium/rewards-core/internal/model/ledger"
	"github.com/civium/rewards-core/internal/model/suspension"
	"github.com/civium/rewards-core/internal/service/checkin"
	"github.com/civium/rewards-core/internal/service/frauddetect"
	"github.com/civium/rewards-core/internal/serviceerrs"
	"github.com/civium/rewards-core/internal/utils/logger"
)

const autoSuspendDays = 7
const scoreTimeout = 10 * time.Second

type suspensionManager interface {
	IsSuspended(ctx context.Context, memberID string) (bool, error)
	Suspend(ctx context.Context, memberID, reason, suspendedBy string, durationDays int) (suspension.Suspension, error)
}

type uniquenessGuard interface {
	ReserveAndCredit(ctx context.Context, c *action.Completion, amount int64, source ledger.Source) (ledger.Transaction, error)
}

type fraudDetector interface {
	Score(ctx context.Context, memberID, ipAddress string) (frauddetect.Report, error)
	ValidateQuizTiming(completion time.Duration) error
	Record(ctx context.Context, l *fraud.DetectionLog) error
}

type Service struct {
	gate     suspensionManager
	guard    uniquenessGuard
	detector fraudDetector
	cfg      *config.Config
	log      *slog.Logger
	now      func() time.Time
	// tests replace this to run the follow-up scoring inline
	spawn func(func())
}

func New(gate suspensionManager, guard uniquenessGuard,
	detector fraudDetector, cfg *config.Config, log *slog.Logger,
) *Service {
	return &Service{
		gate:     gate,
		guard:    guard,
		detector: detector,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		spawn:    func(f func()) { go f() },
	}
}

// CompleteQuiz credits a finished quiz. A completion faster than the
// configured minimum is rejected outright and leaves a blocked fraud
// log behind.
func (s *Service) CompleteQuiz(ctx context.Context,
	memberID, quizID string, completionTime time.Duration,
	points int64, ipAddress string,
) (ledger.Transaction, error) {
	if err := s.checkGate(ctx, memberID); err != nil {
		return ledger.Transaction{}, err
	}

	if err := s.detector.ValidateQuizTiming(completionTime); err != nil {
		s.recordBlocked(ctx, memberID, action.TypeQuiz,
			"quiz completed below minimum time",
			fraud.QuizTimingEvidence{
				Completion: completionTime,
				Minimum:    s.cfg.QuizMinDuration,
			},
			ipAddress)
		return ledger.Transaction{}, err //nolint: wrapcheck // typed policy rejection
	}

	return s.credit(ctx, &action.Completion{
		MemberID: memberID,
		ActionID: quizID,
		Type:     action.TypeQuiz,
	}, points, ledger.SourceQuiz, ipAddress)
}

// CompleteTask credits a finished task. The proof artifact, when
// supplied, must never have been used before, by anyone.
func (s *Service) CompleteTask(ctx context.Context,
	memberID, taskID, proofURL string, points int64, ipAddress string,
) (ledger.Transaction, error) {
	if err := s.checkGate(ctx, memberID); err != nil {
		return ledger.Transaction{}, err
	}

	return s.credit(ctx, &action.Completion{
		MemberID: memberID,
		ActionID: taskID,
		Type:     action.TypeTask,
		ProofURL: proofURL,
	}, points, ledger.SourceTask, ipAddress)
}

// CastVote credits a campaign vote.
func (s *Service) CastVote(ctx context.Context,
	memberID, campaignID string, points int64, ipAddress string,
) (ledger.Transaction, error) {
	if err := s.checkGate(ctx, memberID); err != nil {
		return ledger.Transaction{}, err
	}

	return s.credit(ctx, &action.Completion{
		MemberID: memberID,
		ActionID: campaignID,
		Type:     action.TypeVote,
	}, points, ledger.SourceVote, ipAddress)
}

// CheckInEvent credits an event check-in after the attendance window
// and geofence checks pass.
func (s *Service) CheckInEvent(ctx context.Context,
	memberID, eventID string, eventTime time.Time,
	eventCoords, memberCoords *checkin.Coordinates,
	points int64, ipAddress string,
) (ledger.Transaction, error) {
	if err := s.checkGate(ctx, memberID); err != nil {
		return ledger.Transaction{}, err
	}

	window := checkin.Window{
		OpenBefore: s.cfg.CheckInOpenBefore,
		CloseAfter: s.cfg.CheckInCloseAfter,
	}
	if err := checkin.ValidateWindow(s.now().UTC(), eventTime, window); err != nil {
		return ledger.Transaction{}, err //nolint: wrapcheck // typed policy rejection
	}
	if err := checkin.ValidateLocation(eventCoords, memberCoords,
		s.cfg.GeofenceRadiusMeters); err != nil {
		return ledger.Transaction{}, err //nolint: wrapcheck // typed policy rejection
	}

	return s.credit(ctx, &action.Completion{
		MemberID: memberID,
		ActionID: eventID,
		Type:     action.TypeEvent,
	}, points, ledger.SourceEvent, ipAddress)
}

func (s *Service) checkGate(ctx context.Context, memberID string) error {
	suspended, err := s.gate.IsSuspended(ctx, memberID)
	if err != nil {
		return fmt.Errorf("failed to check suspension: %w", err)
	}
	if suspended {
		return serviceerrs.ErrAccountSuspended
	}
	return nil
}

func (s *Service) credit(ctx context.Context, c *action.Completion,
	points int64, source ledger.Source, ipAddress string,
) (ledger.Transaction, error) {
	t, err := s.guard.ReserveAndCredit(ctx, c, points, source)
	if err != nil {
		return ledger.Transaction{}, err //nolint: wrapcheck // error from wrapped function
	}

	s.scoreAsync(ctx, c.MemberID, c.Type, ipAddress)
	return t, nil
}

// scoreAsync runs the fraud scoring after the credit, off the request
// path. A member crossing the threshold is suspended automatically.
func (s *Service) scoreAsync(ctx context.Context,
	memberID string, actionType action.Type, ipAddress string,
) {
	log := logger.FromContext(ctx)
	s.spawn(func() {
		scoreCtx, cancel := context.WithTimeout(
			context.WithoutCancel(ctx), scoreTimeout)
		defer cancel()

		s.scoreAndReact(scoreCtx, log, memberID, actionType, ipAddress)
	})
}

func (s *Service) scoreAndReact(ctx context.Context, log *slog.Logger,
	memberID string, actionType action.Type, ipAddress string,
) {
	report, err := s.detector.Score(ctx, memberID, ipAddress)
	if err != nil {
		log.LogAttrs(ctx,
			slog.LevelError,
			"fraud scoring failed",
			slog.String("member", memberID),
			slog.Any(model.KeyLoggerError, err),
		)
		return
	}
	if len(report.Reasons) == 0 {
		return
	}

	severity := frauddetect.SeverityFor(report.Score, s.cfg.ScoreThreshold)
	for i, reason := range report.Reasons {
		entry := fraud.DetectionLog{
			MemberID:    memberID,
			ActionType:  string(actionType),
			Reason:      reason,
			Severity:    severity,
			Fingerprint: fingerprint(memberID, ipAddress, reason),
			Evidence:    report.Evidence[i],
		}
		if err = s.detector.Record(ctx, &entry); err != nil {
			log.LogAttrs(ctx,
				slog.LevelError,
				"failed to persist fraud evidence",
				slog.String("member", memberID),
				slog.Any(model.KeyLoggerError, err),
			)
		}
	}

	if !report.Suspicious {
		return
	}

	if _, err = s.gate.Suspend(ctx, memberID,
		"automatic: suspicious activity score exceeded threshold",
		"system", autoSuspendDays); err != nil {
		log.LogAttrs(ctx,
			slog.LevelError,
			"failed to auto-suspend member",
			slog.String("member", memberID),
			slog.Any(model.KeyLoggerError, err),
		)
		return
	}
	log.LogAttrs(ctx,
		slog.LevelWarn,
		"member auto-suspended",
		slog.String("member", memberID),
		slog.Int("score", report.Score),
	)
}

func (s *Service) recordBlocked(ctx context.Context,
	memberID string, actionType action.Type, reason string,
	evidence fraud.Evidence, ipAddress string,
) {
	entry := fraud.DetectionLog{
		MemberID:    memberID,
		ActionType:  string(actionType),
		Reason:      reason,
		Severity:    fraud.SeverityHigh,
		Blocked:     true,
		Fingerprint: fingerprint(memberID, ipAddress, reason),
		Evidence:    evidence,
	}
	if err := s.detector.Record(ctx, &entry); err != nil {
		s.log.LogAttrs(ctx,
			slog.LevelError,
			"failed to persist blocked-action evidence",
			slog.String("member", memberID),
			slog.Any(model.KeyLoggerError, err),
		)
	}
}

func fingerprint(memberID, ipAddress, reason string) string {
	sum := sha256.Sum256([]byte(memberID + "|" + ipAddress + "|" + reason))
	return hex.EncodeToString(sum[:8])
}
