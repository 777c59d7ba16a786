package dto

import (
	"errors"
	"time"

	passwordvalidator "github.com/wagslane/go-password-validator"

	"github.com/civium/rewards-core/internal/model/ledger"
	"github.com/civium/rewards-core/internal/model/redemption"
)

type MemberRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (r *MemberRequest) IsValid() error {
	var invalidLoginErr error
	if r.Login == "" {
		invalidLoginErr = errors.New("login is empty")
	}

	const minEntropyBits = 50
	invalidPasswordErr := passwordvalidator.Validate(r.Password, minEntropyBits)
	return errors.Join(invalidLoginErr, invalidPasswordErr)
}

type QuizRequest struct {
	QuizID            string `json:"quiz_id"`
	CompletionSeconds int64  `json:"completion_seconds"`
}

func (r *QuizRequest) IsValid() error {
	if r.QuizID == "" {
		return errors.New("quiz_id is empty")
	}
	if r.CompletionSeconds < 0 {
		return errors.New("completion_seconds must not be negative")
	}
	return nil
}

type TaskRequest struct {
	TaskID   string `json:"task_id"`
	ProofURL string `json:"proof_url,omitempty"`
}

func (r *TaskRequest) IsValid() error {
	if r.TaskID == "" {
		return errors.New("task_id is empty")
	}
	return nil
}

type VoteRequest struct {
	CampaignID string `json:"campaign_id"`
}

func (r *VoteRequest) IsValid() error {
	if r.CampaignID == "" {
		return errors.New("campaign_id is empty")
	}
	return nil
}

type CheckInRequest struct {
	EventID   string    `json:"event_id"`
	EventTime time.Time `json:"event_time"`
	EventLat  *float64  `json:"event_lat,omitempty"`
	EventLon  *float64  `json:"event_lon,omitempty"`
	Lat       *float64  `json:"lat,omitempty"`
	Lon       *float64  `json:"lon,omitempty"`
}

func (r *CheckInRequest) IsValid() error {
	if r.EventID == "" {
		return errors.New("event_id is empty")
	}
	if r.EventTime.IsZero() {
		return errors.New("event_time is empty")
	}
	return nil
}

type RedeemRequest struct {
	ProductType    string `json:"product_type"`
	IdempotencyKey string `json:"idempotency_key"`
	Destination    string `json:"destination"`
	Points         int64  `json:"points"`
}

func (r *RedeemRequest) IsValid() error {
	switch redemption.ProductType(r.ProductType) {
	case redemption.ProductAirtime, redemption.ProductData, redemption.ProductCash:
	default:
		return errors.New("unknown product_type")
	}
	if r.IdempotencyKey == "" {
		return errors.New("idempotency_key is empty")
	}
	if r.Points <= 0 {
		return errors.New("points must be positive")
	}
	return nil
}

type PurchaseWebhookRequest struct {
	MemberID          string `json:"member_id"`
	PurchaseReference string `json:"purchase_reference"`
	Points            int64  `json:"points"`
}

func (r *PurchaseWebhookRequest) IsValid() error {
	if r.MemberID == "" {
		return errors.New("member_id is empty")
	}
	if r.PurchaseReference == "" {
		return errors.New("purchase_reference is empty")
	}
	if r.Points <= 0 {
		return errors.New("points must be positive")
	}
	return nil
}

type SuspendRequest struct {
	MemberID     string `json:"member_id"`
	Reason       string `json:"reason"`
	DurationDays int    `json:"duration_days,omitempty"`
}

func (r *SuspendRequest) IsValid() error {
	if r.MemberID == "" {
		return errors.New("member_id is empty")
	}
	if r.Reason == "" {
		return errors.New("reason is empty")
	}
	if r.DurationDays < 0 {
		return errors.New("duration_days must not be negative")
	}
	return nil
}

type AdjustRequest struct {
	MemberID string `json:"member_id"`
	Amount   int64  `json:"amount"`
}

func (r *AdjustRequest) IsValid() error {
	if r.MemberID == "" {
		return errors.New("member_id is empty")
	}
	if r.Amount == 0 {
		return errors.New("amount must be non-zero")
	}
	return nil
}

type TransactionResponse struct {
	CreatedAt    time.Time `json:"created_at"`
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Source       string    `json:"source"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
}

func NewTransactionResponse(t ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		CreatedAt:    t.CreatedAt,
		ID:           t.ID,
		Type:         string(t.Type),
		Source:       string(t.Source),
		Amount:       t.Amount,
		BalanceAfter: t.BalanceAfter,
	}
}

type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

type RedemptionResponse struct {
	CreatedAt     time.Time `json:"created_at"`
	ID            string    `json:"id"`
	ProductType   string    `json:"product_type"`
	Status        string    `json:"status"`
	ProviderRef   string    `json:"provider_ref,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	PointsDebited int64     `json:"points_debited"`
	ExternalValue int64     `json:"external_value"`
}

func NewRedemptionResponse(rd redemption.Redemption) RedemptionResponse {
	return RedemptionResponse{
		CreatedAt:     rd.CreatedAt,
		ID:            rd.ID,
		ProductType:   string(rd.ProductType),
		Status:        string(rd.Status),
		ProviderRef:   rd.ProviderRef,
		ErrorMessage:  rd.ErrorMessage,
		PointsDebited: rd.PointsDebited,
		ExternalValue: rd.ExternalValue,
	}
}
