package redemption

import "time"

type ProductType string

const (
	ProductAirtime ProductType = "airtime"
	ProductData    ProductType = "data"
	ProductCash    ProductType = "cash"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Redemption struct {
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	ID             string      `json:"id"`
	MemberID       string      `json:"member_id"`
	ProductType    ProductType `json:"product_type"`
	Status         Status      `json:"status"`
	IdempotencyKey string      `json:"idempotency_key"`
	Destination    string      `json:"destination"`
	ProviderRef    string      `json:"provider_ref,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	PointsDebited  int64       `json:"points_debited"`
	ExternalValue  int64       `json:"external_value"`
	Refunded       bool        `json:"refunded"`
}
