// internal/domain/balance.go
package domain

import (
	"math"
	"time"
)

// Balance is a user's point account, guarded by optimistic concurrency.
// Version increases by one on every committed mutation.
type Balance struct {
	UserID    string    `json:"userId"`
	Points    int64     `json:"points"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewBalance returns an unsaved zero balance.
func NewBalance(userID string) *Balance {
	return &Balance{UserID: userID}
}

// Charge adds amount points. A charge that would overflow the balance is refused.
func (b *Balance) Charge(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > math.MaxInt64-b.Points {
		return ErrBalanceOverflow
	}
	b.Points += amount
	return nil
}

// Use deducts amount points, refusing to go negative.
func (b *Balance) Use(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if b.Points < amount {
		return ErrInsufficientPoints
	}
	b.Points -= amount
	return nil
}
