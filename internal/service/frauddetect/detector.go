// Package frauddetect scores recent member activity. The score is an
// advisory signal; the detector never blocks an action by itself.
package frauddetect

import (
	"context"
	"fmt"
	"time"

	"github.com/civium/rewards-core/internal/config"
	"github.com/civium/rewards-core/internal/model/audit"
	"github.com/civium/rewards-core/internal/model/fraud"
	"github.com/civium/rewards-core/internal/serviceerrs"
)

const window = time.Hour
const timingSampleSize = 10

const (
	weightVelocity        = 30
	weightIPConcentration = 25
	weightTiming          = 20
	weightRecidivism      = 15
)

const (
	ReasonVelocity   = "excessive points earned"
	ReasonIP         = "too many actions from same IP"
	ReasonTiming     = "actions completed too quickly"
	ReasonRecidivism = "previous suspicious activity detected"
)

type creditReader interface {
	CreditedSince(ctx context.Context, memberID string, since time.Time) (int64, error)
}

type auditReader interface {
	CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error)
	LastByMember(ctx context.Context, memberID string, limit int) ([]audit.Entry, error)
}

type fraudRepo interface {
	Create(ctx context.Context, l *fraud.DetectionLog) error
	ExistsSince(ctx context.Context, memberID string, since time.Time) (bool, error)
}

type Report struct {
	Reasons    []string
	Evidence   []fraud.Evidence
	Score      int
	Suspicious bool
}

type Detector struct {
	credits creditReader
	audits  auditReader
	logs    fraudRepo
	cfg     *config.Config
	now     func() time.Time
}

func New(credits creditReader, audits auditReader, logs fraudRepo,
	cfg *config.Config,
) *Detector {
	return &Detector{
		credits: credits,
		audits:  audits,
		logs:    logs,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Score runs all heuristics over the trailing window and sums the
// triggered weights. It reads without locks; slightly stale data is
// acceptable here.
func (d *Detector) Score(ctx context.Context, memberID, ipAddress string,
) (Report, error) {
	var report Report
	since := d.now().UTC().Add(-window)

	add := func(weight int, reason string, e fraud.Evidence) {
		report.Score += weight
		report.Reasons = append(report.Reasons, reason)
		report.Evidence = append(report.Evidence, e)
	}

	earned, err := d.credits.CreditedSince(ctx, memberID, since)
	if err != nil {
		return Report{}, fmt.Errorf("velocity check failed: %w", err)
	}
	if earned > d.cfg.VelocityCeiling {
		add(weightVelocity, ReasonVelocity, fraud.VelocityEvidence{
			PointsLastHour: earned,
			Ceiling:        d.cfg.VelocityCeiling,
		})
	}

	if ipAddress != "" {
		fromIP, err := d.audits.CountByIPSince(ctx, ipAddress, since)
		if err != nil {
			return Report{}, fmt.Errorf("IP concentration check failed: %w", err)
		}
		if fromIP > d.cfg.IPCeiling {
			add(weightIPConcentration, ReasonIP, fraud.IPConcentrationEvidence{
				IPAddress: ipAddress,
				Requests:  fromIP,
				Ceiling:   d.cfg.IPCeiling,
			})
		}
	}

	recent, err := d.audits.LastByMember(ctx, memberID, timingSampleSize)
	if err != nil {
		return Report{}, fmt.Errorf("timing check failed: %w", err)
	}
	for i := 0; i+1 < len(recent); i++ {
		gap := recent[i].CreatedAt.Sub(recent[i+1].CreatedAt)
		if gap < d.cfg.MinActionGap {
			add(weightTiming, ReasonTiming, fraud.TimingEvidence{
				Gap:    gap,
				MinGap: d.cfg.MinActionGap,
			})
			break
		}
	}

	prior, err := d.logs.ExistsSince(ctx, memberID, since)
	if err != nil {
		return Report{}, fmt.Errorf("recidivism check failed: %w", err)
	}
	if prior {
		add(weightRecidivism, ReasonRecidivism, fraud.RecidivismEvidence{PriorLogs: 1})
	}

	report.Suspicious = report.Score >= d.cfg.ScoreThreshold
	return report, nil
}

// ValidateQuizTiming rejects a quiz finished below the minimum
// completion time outright, independent of the aggregate score.
func (d *Detector) ValidateQuizTiming(completion time.Duration) error {
	if completion < d.cfg.QuizMinDuration {
		return serviceerrs.ErrTooFast
	}
	return nil
}

// Record persists the evidence for a fired heuristic.
func (d *Detector) Record(ctx context.Context, l *fraud.DetectionLog) error {
	return d.logs.Create(ctx, l) //nolint: wrapcheck // error from wrapped function
}

// SeverityFor maps a cumulative score onto the severity scale.
func SeverityFor(score, threshold int) fraud.Severity {
	switch {
	case score >= 2*threshold:
		return fraud.SeverityCritical
	case score >= threshold:
		return fraud.SeverityHigh
	case score >= threshold/2:
		return fraud.SeverityMedium
	}
	return fraud.SeverityLow
}
