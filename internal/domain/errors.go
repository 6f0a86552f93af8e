package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest       = errors.New("invalid redeem request")
	ErrDuplicateCoupon      = errors.New("coupon code already exists")
	ErrOrderAlreadyRedeemed = errors.New("order has already redeemed this coupon")
)

// RejectionCode tags an expected business-rule refusal.
type RejectionCode string

const (
	CodeNotFound           RejectionCode = "NOT_FOUND"
	CodeInactive           RejectionCode = "INACTIVE"
	CodeNotYetStarted      RejectionCode = "NOT_YET_STARTED"
	CodeExpired            RejectionCode = "EXPIRED"
	CodeBelowMinimum       RejectionCode = "BELOW_MINIMUM"
	CodePackageNotEligible RejectionCode = "PACKAGE_NOT_ELIGIBLE"
	CodeUserNotEligible    RejectionCode = "USER_NOT_ELIGIBLE"
	CodeGlobalLimitReached RejectionCode = "GLOBAL_LIMIT_REACHED"
	CodeUserLimitReached   RejectionCode = "USER_LIMIT_REACHED"
)

// Rejection is a business-rule refusal of a coupon. It is returned as an
// error so callers can short-circuit, but it is expected data, not a fault:
// use AsRejection to tell it apart from infrastructure errors.
type Rejection struct {
	Code    RejectionCode `json:"code"`
	Message string        `json:"message"`

	// Shortfall is how far the order is below the coupon minimum.
	// Set for CodeBelowMinimum only.
	Shortfall int64 `json:"shortfall,omitempty"`

	// Limit is the usage cap that was hit. Set for CodeGlobalLimitReached
	// and CodeUserLimitReached only.
	Limit int `json:"limit,omitempty"`
}

func (r *Rejection) Error() string {
	return r.Message
}

func NewRejection(code RejectionCode, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRejection reports whether err is (or wraps) a business-rule rejection.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
