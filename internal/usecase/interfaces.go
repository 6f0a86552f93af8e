package usecase

import (
	"context"

	"github.com/undangke/coupon-service/internal/domain"
)

// CouponGateway is the redemption-path surface exposed to delivery layers.
// It is implemented both by the Kafka request/reply gateway and by the
// direct in-process gateway.
type CouponGateway interface {
	CreateCoupon(ctx context.Context, c *domain.Coupon) (*domain.Coupon, error)
	ValidateCoupon(ctx context.Context, code string, rc domain.RedeemContext) (*domain.Quote, error)
	ApplyCoupon(ctx context.Context, code string, rc domain.RedeemContext) (*domain.CouponUsage, error)
	GetCouponDetails(ctx context.Context, code string) (*domain.CouponDetails, error)
}

// CouponAdmin covers the backoffice operations that always run in-process.
type CouponAdmin interface {
	ListCoupons(ctx context.Context) ([]domain.Coupon, error)
	SetCouponActive(ctx context.Context, code string, active bool) (*domain.Coupon, error)
}
