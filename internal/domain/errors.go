// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// ErrBusinessRule marks a terminal decline. It is never retried.
var ErrBusinessRule = errors.New("business rule violation")

var (
	ErrInvalidAmount       = businessRule("amount must be positive")
	ErrInsufficientPoints  = businessRule("insufficient points")
	ErrBalanceOverflow     = businessRule("balance would exceed maximum")
	ErrAccountNotFound     = businessRule("points account not found")
	ErrCouponExhausted     = businessRule("coupon exhausted")
	ErrCouponAlreadyIssued = businessRule("coupon already issued to user")
	ErrCouponNotFound      = businessRule("coupon not found")
	ErrCouponExists        = businessRule("coupon already exists")
	ErrInvalidCoupon       = businessRule("invalid coupon definition")
)

func businessRule(reason string) error {
	return fmt.Errorf("%w: %s", ErrBusinessRule, reason)
}

// IsBusinessRule reports whether err is a terminal decline.
func IsBusinessRule(err error) bool {
	return errors.Is(err, ErrBusinessRule)
}
