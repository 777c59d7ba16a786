package ledger

import "time"

type TransactionType string

const (
	TypeCredit TransactionType = "credit"
	TypeDebit  TransactionType = "debit"
)

type Source string

const (
	SourceQuiz       Source = "quiz"
	SourceTask       Source = "task"
	SourceVote       Source = "vote"
	SourceEvent      Source = "event"
	SourcePurchase   Source = "purchase"
	SourceRedemption Source = "redemption"
	SourceAdjustment Source = "adjustment"
)

// Transaction is an immutable fact. Rows are appended, never updated:
// corrections are modeled as new offsetting transactions.
type Transaction struct {
	CreatedAt    time.Time       `json:"created_at"`
	ID           string          `json:"id"`
	MemberID     string          `json:"member_id"`
	Type         TransactionType `json:"type"`
	Source       Source          `json:"source"`
	Amount       int64           `json:"amount"`
	BalanceAfter int64           `json:"balance_after"`
}

func TypeFor(amount int64) TransactionType {
	if amount < 0 {
		return TypeDebit
	}
	return TypeCredit
}
