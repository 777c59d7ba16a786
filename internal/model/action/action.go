package action

import "time"

type Type string

const (
	TypeQuiz  Type = "quiz"
	TypeTask  Type = "task"
	TypeVote  Type = "vote"
	TypeEvent Type = "event"
)

// Completion marks a credited action. The (MemberID, ActionID, Type)
// triple is unique; a row exists iff the credit was granted.
type Completion struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	MemberID  string    `json:"member_id"`
	ActionID  string    `json:"action_id"`
	Type      Type      `json:"type"`
	ProofURL  string    `json:"proof_url,omitempty"`
}
