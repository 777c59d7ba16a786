package member

import (
	"context"
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

type Member struct {
	CreatedAt    time.Time `json:"created_at"`
	ID           string    `json:"id"`
	LoginHash    string    `json:"login_hash"`
	PasswordHash string    `json:"password_hash"`
	Status       Status    `json:"status"`
	Verified     bool      `json:"verified"`
}

type Repository interface {
	Create(ctx context.Context, m *Member) error
	FindByID(ctx context.Context, id string) (Member, error)
	FindByLogin(ctx context.Context, loginHash string) (Member, error)
	Exists(ctx context.Context, loginHash string) bool
}
