package domain

import (
	"strings"
	"time"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is a promotional code definition. Limits of zero mean unlimited,
// a nil StartsAt/ExpiresAt means no time bound, and empty applicability
// sets mean the coupon applies to every package / every user.
type Coupon struct {
	ID                 int64        `json:"id"`
	Code               string       `json:"code"`
	Name               string       `json:"name"`
	Description        string       `json:"description,omitempty"`
	Type               DiscountType `json:"type"`
	Value              int64        `json:"value"`
	MinimumAmount      int64        `json:"minimum_amount,omitempty"`
	MaximumDiscount    int64        `json:"maximum_discount,omitempty"`
	UsageLimit         int          `json:"usage_limit,omitempty"`
	UserLimit          int          `json:"user_limit,omitempty"`
	StartsAt           *time.Time   `json:"starts_at,omitempty"`
	ExpiresAt          *time.Time   `json:"expires_at,omitempty"`
	IsActive           bool         `json:"is_active"`
	ApplicablePackages []int64      `json:"applicable_packages,omitempty"`
	ApplicableUsers    []int64      `json:"applicable_users,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// CouponUsage records one successful redemption. Rows are written exactly
// once and never updated or deleted; usage counts are derived by counting
// them rather than from a cached counter on the coupon.
type CouponUsage struct {
	ID             int64     `json:"id"`
	CouponID       int64     `json:"coupon_id"`
	UserID         int64     `json:"user_id"`
	OrderID        int64     `json:"order_id"`
	DiscountAmount int64     `json:"discount_amount"`
	OrderAmount    int64     `json:"order_amount"`
	UsedAt         time.Time `json:"used_at"`
}

// RedeemContext describes the order a coupon is being checked against.
// OrderID is only required when applying, not when validating.
type RedeemContext struct {
	UserID      int64 `json:"user_id"`
	OrderID     int64 `json:"order_id,omitempty"`
	OrderAmount int64 `json:"order_amount"`
	PackageID   int64 `json:"package_id"`
}

// Quote is the result of a successful validation.
type Quote struct {
	Coupon         *Coupon `json:"coupon"`
	DiscountAmount int64   `json:"discount_amount"`
	FinalAmount    int64   `json:"final_amount"`
}

// CouponDetails is the admin read model: the coupon plus derived usage stats.
type CouponDetails struct {
	Coupon     *Coupon       `json:"coupon"`
	TimesUsed  int           `json:"times_used"`
	RecentUses []CouponUsage `json:"recent_uses,omitempty"`
}

// NormalizeCode upper-cases and trims a coupon code so lookups are
// case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c *Coupon) AppliesToPackage(packageID int64) bool {
	if len(c.ApplicablePackages) == 0 {
		return true
	}
	for _, id := range c.ApplicablePackages {
		if id == packageID {
			return true
		}
	}
	return false
}

func (c *Coupon) AppliesToUser(userID int64) bool {
	if len(c.ApplicableUsers) == 0 {
		return true
	}
	for _, id := range c.ApplicableUsers {
		if id == userID {
			return true
		}
	}
	return false
}
