package audit

import "time"

// Entry is the tuple every authenticated request handler produces.
// The fraud detector only ever reads MemberID, IPAddress and CreatedAt.
type Entry struct {
	CreatedAt time.Time `json:"created_at"`
	MemberID  string    `json:"member_id"`
	IPAddress string    `json:"ip_address"`
	Action    string    `json:"action"`
}
