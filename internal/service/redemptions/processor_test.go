package redemptions

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civium/rewards-core/internal/config"
	"github.com/civium/rewards-core/internal/model/ledger"
	"github.com/civium/rewards-core/internal/model/redemption"
	"github.com/civium/rewards-core/internal/serviceerrs"
)

type fakeRedemptionRepo struct {
	byKey     map[string]redemption.Redemption
	completed map[string]string
	failed    map[string]string
	refunded  []string
	balance   int64
	nextID    int
}

func newFakeRedemptionRepo(balance int64) *fakeRedemptionRepo {
	return &fakeRedemptionRepo{
		byKey:     make(map[string]redemption.Redemption),
		completed: make(map[string]string),
		failed:    make(map[string]string),
		balance:   balance,
	}
}

func (f *fakeRedemptionRepo) FindByKey(_ context.Context, key string) (redemption.Redemption, bool, error) {
	rd, ok := f.byKey[key]
	return rd, ok, nil
}

func (f *fakeRedemptionRepo) CreatePendingWithDebit(_ context.Context, rd *redemption.Redemption) (redemption.Redemption, bool, error) {
	if existing, ok := f.byKey[rd.IdempotencyKey]; ok {
		return existing, false, nil
	}
	if f.balance < rd.PointsDebited {
		return redemption.Redemption{}, false, serviceerrs.ErrInsufficientBalance
	}
	f.balance -= rd.PointsDebited
	f.nextID++
	rd.ID = string(rune('0' + f.nextID))
	rd.Status = redemption.StatusPending
	f.byKey[rd.IdempotencyKey] = *rd
	return *rd, true, nil
}

func (f *fakeRedemptionRepo) MarkCompleted(_ context.Context, id, providerRef string) error {
	f.completed[id] = providerRef
	f.setStatus(id, redemption.StatusCompleted)
	return nil
}

func (f *fakeRedemptionRepo) MarkFailed(_ context.Context, id, errorMessage string) error {
	f.failed[id] = errorMessage
	f.setStatus(id, redemption.StatusFailed)
	return nil
}

func (f *fakeRedemptionRepo) setStatus(id string, status redemption.Status) {
	for key, rd := range f.byKey {
		if rd.ID == id {
			rd.Status = status
			f.byKey[key] = rd
		}
	}
}

func (f *fakeRedemptionRepo) RefundFailed(_ context.Context, id string) (ledger.Transaction, error) {
	for key, rd := range f.byKey {
		if rd.ID != id {
			continue
		}
		if rd.Status != redemption.StatusFailed {
			return ledger.Transaction{}, serviceerrs.ErrRedemptionNotFailed
		}
		if rd.Refunded {
			return ledger.Transaction{}, serviceerrs.ErrRedemptionNotFailed
		}
		rd.Refunded = true
		f.byKey[key] = rd
		f.refunded = append(f.refunded, id)
		f.balance += rd.PointsDebited
		return ledger.Transaction{
			MemberID:     rd.MemberID,
			Type:         ledger.TypeCredit,
			Source:       ledger.SourceAdjustment,
			Amount:       rd.PointsDebited,
			BalanceAfter: f.balance,
		}, nil
	}
	return ledger.Transaction{}, serviceerrs.ErrRedemptionNotFound
}

func (f *fakeRedemptionRepo) ListByMember(_ context.Context, memberID string) ([]redemption.Redemption, error) {
	var out []redemption.Redemption
	for _, rd := range f.byKey {
		if rd.MemberID == memberID {
			out = append(out, rd)
		}
	}
	return out, nil
}

type fakeGate struct {
	suspended bool
}

func (f *fakeGate) IsSuspended(_ context.Context, _ string) (bool, error) {
	return f.suspended, nil
}

type fakeProvider struct {
	submitResp DisburseResponse
	submitErr  error
	submits    []DisburseRequest
}

func (f *fakeProvider) Submit(_ context.Context, req DisburseRequest) (DisburseResponse, error) {
	f.submits = append(f.submits, req)
	return f.submitResp, f.submitErr
}

func (f *fakeProvider) Status(_ context.Context, _ string) (DisburseResponse, error) {
	return f.submitResp, f.submitErr
}

func testConfig() *config.Config {
	return &config.Config{
		AirtimeMinPoints: 50,
		AirtimeMaxPoints: 1000,
		DataMinPoints:    100,
		DataMaxPoints:    2000,
		CashMinPoints:    500,
		CashMaxPoints:    10000,
	}
}

func newTestProcessor(repo *fakeRedemptionRepo, gate *fakeGate, provider *fakeProvider) *Processor {
	return New(repo, gate, provider, testConfig(), slog.Default())
}

func TestProcessor_Redeem_completed(t *testing.T) {
	repo := newFakeRedemptionRepo(5000)
	provider := &fakeProvider{submitResp: DisburseResponse{
		Status:    ProviderStatusCompleted,
		Reference: "prov-123",
	}}
	p := newTestProcessor(repo, &fakeGate{}, provider)

	rd, err := p.Redeem(context.Background(),
		"m1", redemption.ProductAirtime, 100, "key-1", "+79990001122")
	require.NoError(t, err)

	assert.Equal(t, redemption.StatusCompleted, rd.Status)
	assert.Equal(t, "prov-123", rd.ProviderRef)
	assert.Equal(t, int64(100), rd.PointsDebited)
	assert.Equal(t, int64(1000), rd.ExternalValue)
	assert.Equal(t, int64(4900), repo.balance)
	require.Len(t, provider.submits, 1)
	assert.Equal(t, "key-1", provider.submits[0].IdempotencyKey)
}

func TestProcessor_Redeem_idempotentRetry(t *testing.T) {
	repo := newFakeRedemptionRepo(5000)
	provider := &fakeProvider{submitResp: DisburseResponse{
		Status:    ProviderStatusCompleted,
		Reference: "prov-123",
	}}
	p := newTestProcessor(repo, &fakeGate{}, provider)

	first, err := p.Redeem(context.Background(),
		"m1", redemption.ProductAirtime, 100, "key-1", "+79990001122")
	require.NoError(t, err)

	// same key again: no second debit, no second provider call
	second, err := p.Redeem(context.Background(),
		"m1", redemption.ProductAirtime, 100, "key-1", "+79990001122")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(4900), repo.balance)
	assert.Len(t, provider.submits, 1)
}

func TestProcessor_Redeem_missingKey(t *testing.T) {
	p := newTestProcessor(newFakeRedemptionRepo(5000), &fakeGate{}, &fakeProvider{})

	_, err := p.Redeem(context.Background(),
		"m1", redemption.ProductAirtime, 100, "", "+79990001122")
	require.Error(t, err)
}

func TestProcessor_Redeem_suspended(t *testing.T) {
	repo := newFakeRedemptionRepo(5000)
	p := newTestProcessor(repo, &fakeGate{suspended: true}, &fakeProvider{})

	_, err := p.Redeem(context.Background(),
		"m1", redemption.ProductAirtime, 100, "key-1", "+79990001122")
	assert.ErrorIs(t, err, serviceerrs.ErrAccountSuspended)
	assert.Equal(t, int64(5000), repo.balance)
}

func TestProcessor_Redeem_bandLimits(t *testing.T) {
	tests := []struct {
		name    string
		product redemption.ProductType
		points  int64
		dest    string
		wantErr bool
	}{
		{"airtime at minimum", redemption.ProductAirtime, 50, "+79990001122", false},
		{"airtime at maximum", redemption.ProductAirtime, 1000, "+79990001122", false},
		{"airtime below minimum", redemption.ProductAirtime, 49, "+79990001122", true},
		{"airtime above maximum", redemption.ProductAirtime, 1001, "+79990001122", true},
		{"data in band", redemption.ProductData, 500, "+79990001122", false},
		{"data below minimum", redemption.ProductData, 99, "+79990001122", true},
		{"cash in band", redemption.ProductCash, 1000, "4561261212345467", false},
		{"cash below minimum", redemption.ProductCash, 499, "4561261212345467", true},
		{"unknown product", redemption.ProductType("gift_card"), 100, "+79990001122", true},
		{"zero points", redemption.ProductAirtime, 0, "+79990001122", true},
		{"negative points", redemption.ProductAirtime, -100, "+79990001122", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRedemptionRepo(100000)
			provider := &fakeProvider{submitResp: DisburseResponse{
				Status: ProviderStatusCompleted,
			}}
			p := newTestProcessor(repo, &fakeGate{}, provider)

			_, err := p.Redeem(context.Background(),
				"m1", tt.product, tt.points, "key-1", tt.dest)
			if tt.wantErr {
				assert.ErrorIs(t, err, serviceerrs.ErrRedemptionAmountInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProcessor_Redeem_cashDestinationLuhn(t *testing.T) {
	tests := []struct {
		name    string
		dest    string
		wantErr bool
	}{
		{"valid card number", "4561261212345467", false},
		{"invalid checksum", "4561261212345464", true},
		{"not a number", "not-a-card", true},
		{"empty destination", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRedemptionRepo(100000)
			provider := &fakeProvider{submitResp: DisburseResponse{
				Status: ProviderStatusCompleted,
			}}
			p := newTestProcessor(repo, &fakeGate{}, provider)

			_, err := p.Redeem(context.Background(),
				"m1", redemption.ProductCash, 1000, "key-1", tt.dest)
			if tt.wantErr {
				assert.ErrorIs(t, err, serviceerrs.ErrInvalidDestination)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProcessor_Redeem_insufficientBalance(t *testing.T) {
	repo := newFakeRedemptionRepo(10)
	p := newTestProcessor(repo, &fakeGate{}, &fakeProvider{})

	_, err := p.Redeem(context.Background(),
		"m1", redemption.ProductAirtime, 100, "key-1", "+79990001122")
	assert.ErrorIs(t, err, serviceerrs.ErrInsufficientBalance)
}

func TestProcessor_Redeem_providerRejectionKeepsDebit(t *testing.T) {
	repo := newFakeRedemptionRepo(5000)
	provider := &fakeProvider{submitErr: &serviceerrs.ProviderRejectedError{
		Message: "destination blacklisted",
	}}
	p := newTestProcessor(repo, &fakeGate{}, provider)

	rd, err := p.Redeem(context.Background(),
		"m1", redemption.ProductAirtime, 100, "key-1", "+79990001122")
	require.NoError(t, err)

	// the debit stands; only an explicit refund returns the points
	assert.Equal(t, redemption.StatusFailed, rd.Status)
	assert.Equal(t, int64(4900), repo.balance)
	assert.Equal(t, "destination blacklisted", repo.failed[rd.ID])
}

func TestProcessor_Redeem_indeterminateErrorStaysPending(t *testing.T) {
	tests := []struct {
		name      string
		submitErr error
	}{
		{"context deadline", context.DeadlineExceeded},
		{"transport error", errors.New("connection refused")},
		{"provider throttle", &serviceerrs.TooManyRequestsError{
			RetryAfter: 30 * time.Second,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRedemptionRepo(5000)
			provider := &fakeProvider{submitErr: tt.submitErr}
			p := newTestProcessor(repo, &fakeGate{}, provider)

			rd, err := p.Redeem(context.Background(),
				"m1", redemption.ProductAirtime, 100, "key-1", "+79990001122")
			require.NoError(t, err)

			// the outcome is unknown: the reconciler settles it, a
			// premature failed status would open a refund + disburse race
			assert.Equal(t, redemption.StatusPending, rd.Status)
			assert.Empty(t, repo.failed)
			assert.Empty(t, repo.completed)
			assert.Equal(t, int64(4900), repo.balance)
		})
	}
}

func TestProcessor_Redeem_providerReportsFailed(t *testing.T) {
	repo := newFakeRedemptionRepo(5000)
	provider := &fakeProvider{submitResp: DisburseResponse{
		Status:  ProviderStatusFailed,
		Message: "destination not reachable",
	}}
	p := newTestProcessor(repo, &fakeGate{}, provider)

	rd, err := p.Redeem(context.Background(),
		"m1", redemption.ProductAirtime, 100, "key-1", "+79990001122")
	require.NoError(t, err)

	assert.Equal(t, redemption.StatusFailed, rd.Status)
	assert.Equal(t, "destination not reachable", rd.ErrorMessage)
	assert.Equal(t, int64(4900), repo.balance)
}

func TestProcessor_Redeem_providerPending(t *testing.T) {
	repo := newFakeRedemptionRepo(5000)
	provider := &fakeProvider{submitResp: DisburseResponse{
		Status: ProviderStatusPending,
	}}
	p := newTestProcessor(repo, &fakeGate{}, provider)

	rd, err := p.Redeem(context.Background(),
		"m1", redemption.ProductAirtime, 100, "key-1", "+79990001122")
	require.NoError(t, err)

	assert.Equal(t, redemption.StatusPending, rd.Status)
	assert.Empty(t, repo.completed)
	assert.Empty(t, repo.failed)
}

func TestProcessor_Refund(t *testing.T) {
	repo := newFakeRedemptionRepo(5000)
	provider := &fakeProvider{submitErr: &serviceerrs.ProviderRejectedError{
		Message: "destination blacklisted",
	}}
	p := newTestProcessor(repo, &fakeGate{}, provider)

	rd, err := p.Redeem(context.Background(),
		"m1", redemption.ProductAirtime, 100, "key-1", "+79990001122")
	require.NoError(t, err)
	require.Equal(t, redemption.StatusFailed, rd.Status)

	tr, err := p.Refund(context.Background(), rd.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TypeCredit, tr.Type)
	assert.Equal(t, ledger.SourceAdjustment, tr.Source)
	assert.Equal(t, int64(100), tr.Amount)
	assert.Equal(t, int64(5000), repo.balance)

	// the second refund is rejected
	_, err = p.Refund(context.Background(), rd.ID)
	assert.ErrorIs(t, err, serviceerrs.ErrRedemptionNotFailed)
}

func TestProcessor_Refund_notFailed(t *testing.T) {
	repo := newFakeRedemptionRepo(5000)
	provider := &fakeProvider{submitResp: DisburseResponse{
		Status:    ProviderStatusCompleted,
		Reference: "prov-123",
	}}
	p := newTestProcessor(repo, &fakeGate{}, provider)

	rd, err := p.Redeem(context.Background(),
		"m1", redemption.ProductAirtime, 100, "key-1", "+79990001122")
	require.NoError(t, err)

	_, err = p.Refund(context.Background(), rd.ID)
	assert.ErrorIs(t, err, serviceerrs.ErrRedemptionNotFailed)
}

func TestProcessor_Refund_unknownRedemption(t *testing.T) {
	p := newTestProcessor(newFakeRedemptionRepo(5000), &fakeGate{}, &fakeProvider{})

	_, err := p.Refund(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, serviceerrs.ErrRedemptionNotFound)
}
