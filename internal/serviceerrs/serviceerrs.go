package serviceerrs

import (
	"errors"
	"time"
)

// Policy rejections. These are expected, typed outcomes returned to the
// caller, not system failures.
var (
	ErrDuplicateAction         = errors.New("action already completed")
	ErrProofAlreadyUsed        = errors.New("proof artifact already used")
	ErrAccountSuspended        = errors.New("account is suspended")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrTooFast                 = errors.New("action completed too fast")
	ErrCheckInWindowClosed     = errors.New("check-in window not yet open")
	ErrCheckInWindowExpired    = errors.New("check-in window expired")
	ErrLocationMismatch        = errors.New("location does not match event")
	ErrRedemptionAmountInvalid = errors.New("redemption amount out of allowed band")
	ErrInvalidDestination      = errors.New("invalid disbursement destination")
	ErrRedemptionNotFound      = errors.New("redemption not found")
	ErrRedemptionNotFailed     = errors.New("redemption is not in failed state")
	ErrMemberNotFound          = errors.New("member not found")
	ErrTokenExpired            = errors.New("token expired")
)

// TooManyRequestsError is returned by the disbursement client when the
// provider throttles us and names its rate limit.
type TooManyRequestsError struct {
	RetryAfter time.Duration
	RPM        uint64
}

func (e *TooManyRequestsError) Error() string {
	return "too many requests"
}

func (e *TooManyRequestsError) Is(target error) bool {
	_, ok := target.(*TooManyRequestsError)
	return ok
}

// ProviderRejectedError is a definitive refusal from the disbursement
// provider: the request was received and will never be disbursed.
// Timeouts and transport errors are not rejections; the outcome there
// is unknown until the status endpoint answers.
type ProviderRejectedError struct {
	Message string
}

func (e *ProviderRejectedError) Error() string {
	return "provider rejected disbursement: " + e.Message
}

func (e *ProviderRejectedError) Is(target error) bool {
	_, ok := target.(*ProviderRejectedError)
	return ok
}
