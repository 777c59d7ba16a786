package frauddetect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civium/rewards-core/internal/config"
	"github.com/civium/rewards-core/internal/model/audit"
	"github.com/civium/rewards-core/internal/model/fraud"
	"github.com/civium/rewards-core/internal/serviceerrs"
)

type fakeCredits struct {
	earned int64
	err    error
}

func (f *fakeCredits) CreditedSince(_ context.Context, _ string, _ time.Time) (int64, error) {
	return f.earned, f.err
}

type fakeAudits struct {
	fromIP  int
	entries []audit.Entry
}

func (f *fakeAudits) CountByIPSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.fromIP, nil
}

func (f *fakeAudits) LastByMember(_ context.Context, _ string, limit int) ([]audit.Entry, error) {
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

type fakeFraudLogs struct {
	prior   bool
	created []*fraud.DetectionLog
}

func (f *fakeFraudLogs) Create(_ context.Context, l *fraud.DetectionLog) error {
	f.created = append(f.created, l)
	return nil
}

func (f *fakeFraudLogs) ExistsSince(_ context.Context, _ string, _ time.Time) (bool, error) {
	return f.prior, nil
}

func testConfig() *config.Config {
	return &config.Config{
		VelocityCeiling: 100,
		IPCeiling:       20,
		MinActionGap:    2 * time.Second,
		ScoreThreshold:  50,
		QuizMinDuration: 5 * time.Second,
	}
}

// spacedEntries builds an audit trail, newest first, with the given gap
// between consecutive actions.
func spacedEntries(n int, gap time.Duration) []audit.Entry {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	entries := make([]audit.Entry, 0, n)
	for i := range n {
		entries = append(entries, audit.Entry{
			CreatedAt: base.Add(-time.Duration(i) * gap),
			MemberID:  "m1",
		})
	}
	return entries
}

func newTestDetector(credits *fakeCredits, audits *fakeAudits, logs *fakeFraudLogs) *Detector {
	d := New(credits, audits, logs, testConfig())
	d.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return d
}

func TestDetector_Score_clean(t *testing.T) {
	d := newTestDetector(
		&fakeCredits{earned: 40},
		&fakeAudits{fromIP: 3, entries: spacedEntries(5, time.Minute)},
		&fakeFraudLogs{},
	)

	report, err := d.Score(context.Background(), "m1", "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Score)
	assert.Empty(t, report.Reasons)
	assert.False(t, report.Suspicious)
}

func TestDetector_Score_singleHeuristics(t *testing.T) {
	tests := []struct {
		name       string
		credits    *fakeCredits
		audits     *fakeAudits
		logs       *fakeFraudLogs
		wantScore  int
		wantReason string
	}{
		{
			"velocity over ceiling",
			&fakeCredits{earned: 150},
			&fakeAudits{entries: spacedEntries(3, time.Minute)},
			&fakeFraudLogs{},
			30,
			ReasonVelocity,
		},
		{
			"too many requests from one IP",
			&fakeCredits{earned: 10},
			&fakeAudits{fromIP: 25, entries: spacedEntries(3, time.Minute)},
			&fakeFraudLogs{},
			25,
			ReasonIP,
		},
		{
			"actions too close together",
			&fakeCredits{earned: 10},
			&fakeAudits{entries: spacedEntries(5, 500*time.Millisecond)},
			&fakeFraudLogs{},
			20,
			ReasonTiming,
		},
		{
			"prior suspicious activity",
			&fakeCredits{earned: 10},
			&fakeAudits{entries: spacedEntries(3, time.Minute)},
			&fakeFraudLogs{prior: true},
			15,
			ReasonRecidivism,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDetector(tt.credits, tt.audits, tt.logs)
			report, err := d.Score(context.Background(), "m1", "203.0.113.7")
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, report.Score)
			require.Len(t, report.Reasons, 1)
			assert.Equal(t, tt.wantReason, report.Reasons[0])
			require.Len(t, report.Evidence, 1)
			assert.False(t, report.Suspicious)
		})
	}
}

func TestDetector_Score_additive(t *testing.T) {
	// velocity + IP concentration = 55, past the threshold of 50
	d := newTestDetector(
		&fakeCredits{earned: 500},
		&fakeAudits{fromIP: 40, entries: spacedEntries(3, time.Minute)},
		&fakeFraudLogs{},
	)

	report, err := d.Score(context.Background(), "m1", "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, 55, report.Score)
	assert.Equal(t, []string{ReasonVelocity, ReasonIP}, report.Reasons)
	assert.True(t, report.Suspicious)
}

func TestDetector_Score_allHeuristics(t *testing.T) {
	d := newTestDetector(
		&fakeCredits{earned: 500},
		&fakeAudits{fromIP: 40, entries: spacedEntries(10, time.Second)},
		&fakeFraudLogs{prior: true},
	)

	report, err := d.Score(context.Background(), "m1", "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, 90, report.Score)
	assert.Len(t, report.Reasons, 4)
	assert.Len(t, report.Evidence, len(report.Reasons))
	assert.True(t, report.Suspicious)
}

func TestDetector_Score_timingFiresOnce(t *testing.T) {
	// many sub-gap pairs still add the timing weight a single time
	d := newTestDetector(
		&fakeCredits{earned: 10},
		&fakeAudits{entries: spacedEntries(10, 100*time.Millisecond)},
		&fakeFraudLogs{},
	)

	report, err := d.Score(context.Background(), "m1", "")
	require.NoError(t, err)
	assert.Equal(t, 20, report.Score)
}

func TestDetector_Score_emptyIPSkipsConcentration(t *testing.T) {
	d := newTestDetector(
		&fakeCredits{earned: 10},
		&fakeAudits{fromIP: 1000, entries: spacedEntries(3, time.Minute)},
		&fakeFraudLogs{},
	)

	report, err := d.Score(context.Background(), "m1", "")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Score)
}

func TestDetector_Score_boundaryNotOver(t *testing.T) {
	// exactly at the ceiling is still allowed
	d := newTestDetector(
		&fakeCredits{earned: 100},
		&fakeAudits{fromIP: 20, entries: spacedEntries(3, 2*time.Second)},
		&fakeFraudLogs{},
	)

	report, err := d.Score(context.Background(), "m1", "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Score)
}

func TestDetector_Score_repoError(t *testing.T) {
	d := newTestDetector(
		&fakeCredits{err: errors.New("connection reset")},
		&fakeAudits{},
		&fakeFraudLogs{},
	)

	_, err := d.Score(context.Background(), "m1", "203.0.113.7")
	require.Error(t, err)
}

func TestDetector_ValidateQuizTiming(t *testing.T) {
	d := newTestDetector(&fakeCredits{}, &fakeAudits{}, &fakeFraudLogs{})

	assert.ErrorIs(t,
		d.ValidateQuizTiming(time.Second), serviceerrs.ErrTooFast)
	assert.ErrorIs(t,
		d.ValidateQuizTiming(4999*time.Millisecond), serviceerrs.ErrTooFast)
	assert.NoError(t, d.ValidateQuizTiming(5*time.Second))
	assert.NoError(t, d.ValidateQuizTiming(time.Minute))
}

func TestSeverityFor(t *testing.T) {
	const threshold = 50
	tests := []struct {
		score int
		want  fraud.Severity
	}{
		{0, fraud.SeverityLow},
		{15, fraud.SeverityLow},
		{24, fraud.SeverityLow},
		{25, fraud.SeverityMedium},
		{45, fraud.SeverityMedium},
		{50, fraud.SeverityHigh},
		{90, fraud.SeverityHigh},
		{100, fraud.SeverityCritical},
		{130, fraud.SeverityCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityFor(tt.score, threshold),
			"score %d", tt.score)
	}
}
