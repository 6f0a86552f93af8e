package kafka

import (
	"errors"
	"fmt"

	"github.com/undangke/coupon-service/internal/domain"
)

const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// Wire error codes that do not correspond to a business-rule rejection.
// Rejections travel under their own domain.RejectionCode values.
const (
	ErrCodeDuplicateCoupon      = "DUPLICATE_COUPON"
	ErrCodeOrderAlreadyRedeemed = "ORDER_ALREADY_REDEEMED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

type RequestPayload struct {
	SchemaVersion int    `json:"schema_version"`
	CorrelationID string `json:"correlation_id"`
	ReplyTo       string `json:"reply_to"`

	Code    string                `json:"code,omitempty"`
	Coupon  *domain.Coupon        `json:"coupon,omitempty"`
	Context *domain.RedeemContext `json:"context,omitempty"`
}

type ResponsePayload struct {
	SchemaVersion int    `json:"schema_version"`
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	ErrorCode     string `json:"error_code,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	Shortfall     int64  `json:"shortfall,omitempty"`
	Limit         int    `json:"limit,omitempty"`

	Coupon  *domain.Coupon        `json:"coupon,omitempty"`
	Quote   *domain.Quote         `json:"quote,omitempty"`
	Usage   *domain.CouponUsage   `json:"usage,omitempty"`
	Details *domain.CouponDetails `json:"details,omitempty"`
}

func successResponse(correlationID string) *ResponsePayload {
	return &ResponsePayload{
		SchemaVersion: 1,
		CorrelationID: correlationID,
		Status:        StatusSuccess,
	}
}

func errorResponseFor(correlationID string, err error) *ResponsePayload {
	resp := &ResponsePayload{
		SchemaVersion: 1,
		CorrelationID: correlationID,
		Status:        StatusError,
	}
	if rej, ok := domain.AsRejection(err); ok {
		resp.ErrorCode = string(rej.Code)
		resp.ErrorMessage = rej.Message
		resp.Shortfall = rej.Shortfall
		resp.Limit = rej.Limit
		return resp
	}

	resp.ErrorMessage = err.Error()
	switch {
	case errors.Is(err, domain.ErrDuplicateCoupon):
		resp.ErrorCode = ErrCodeDuplicateCoupon
	case errors.Is(err, domain.ErrOrderAlreadyRedeemed):
		resp.ErrorCode = ErrCodeOrderAlreadyRedeemed
	case errors.Is(err, domain.ErrInvalidRequest):
		resp.ErrorCode = ErrCodeInvalidRequest
	default:
		resp.ErrorCode = ErrCodeInternalError
	}
	return resp
}

// errorFromResponse reverses errorResponseFor on the gateway side so callers
// see the same error types whether the engine ran in-process or behind Kafka.
func errorFromResponse(resp *ResponsePayload) error {
	switch resp.ErrorCode {
	case ErrCodeDuplicateCoupon:
		return domain.ErrDuplicateCoupon
	case ErrCodeOrderAlreadyRedeemed:
		return domain.ErrOrderAlreadyRedeemed
	case ErrCodeInvalidRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, resp.ErrorMessage)
	case ErrCodeInternalError, "":
		return errors.New(resp.ErrorMessage)
	}
	return &domain.Rejection{
		Code:      domain.RejectionCode(resp.ErrorCode),
		Message:   resp.ErrorMessage,
		Shortfall: resp.Shortfall,
		Limit:     resp.Limit,
	}
}
