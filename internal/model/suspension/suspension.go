package suspension

import "time"

// Suspension rows are never deleted. Lifting a suspension flips IsActive
// to false and leaves the row behind as audit trail.
type Suspension struct {
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ID          string     `json:"id"`
	MemberID    string     `json:"member_id"`
	Reason      string     `json:"reason"`
	SuspendedBy string     `json:"suspended_by"`
	IsActive    bool       `json:"is_active"`
}

// Permanent reports whether the suspension has no expiry and can only be
// lifted by explicit restoration.
func (s *Suspension) Permanent() bool {
	return s.ExpiresAt == nil
}

func (s *Suspension) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}
