// internal/domain/coupon.go
package domain

import (
	"strings"
	"time"
)

// Coupon is a finite inventory of redeemable codes.
type Coupon struct {
	Code      string    `json:"code"`
	Total     int64     `json:"total"`
	Issued    int64     `json:"issued"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CouponIssue records one coupon handed to one user.
type CouponIssue struct {
	Code     string    `json:"code"`
	UserID   string    `json:"userId"`
	IssuedAt time.Time `json:"issuedAt"`
}

// NewCoupon validates and returns an unsaved coupon.
func NewCoupon(code string, total int64) (*Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" || total <= 0 {
		return nil, ErrInvalidCoupon
	}
	return &Coupon{Code: code, Total: total}, nil
}

// Remaining returns how many coupons can still be issued.
func (c *Coupon) Remaining() int64 {
	return c.Total - c.Issued
}

// Issue takes one unit of inventory.
func (c *Coupon) Issue() error {
	if c.Remaining() <= 0 {
		return ErrCouponExhausted
	}
	c.Issued++
	return nil
}
