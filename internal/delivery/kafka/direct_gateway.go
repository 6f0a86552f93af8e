package kafka

import (
	"context"

	"github.com/undangke/coupon-service/internal/domain"
	"github.com/undangke/coupon-service/internal/usecase"
)

// DirectGateway calls the engine in-process, used when event-driven mode is
// disabled.
type DirectGateway struct {
	engine *usecase.CouponEngine
}

func NewDirectGateway(engine *usecase.CouponEngine) usecase.CouponGateway {
	return &DirectGateway{engine: engine}
}

func (g *DirectGateway) CreateCoupon(ctx context.Context, c *domain.Coupon) (*domain.Coupon, error) {
	return g.engine.CreateCoupon(ctx, c)
}

func (g *DirectGateway) ValidateCoupon(ctx context.Context, code string, rc domain.RedeemContext) (*domain.Quote, error) {
	return g.engine.ValidateCoupon(ctx, code, rc)
}

func (g *DirectGateway) ApplyCoupon(ctx context.Context, code string, rc domain.RedeemContext) (*domain.CouponUsage, error) {
	return g.engine.ApplyCoupon(ctx, code, rc)
}

func (g *DirectGateway) GetCouponDetails(ctx context.Context, code string) (*domain.CouponDetails, error) {
	return g.engine.GetCouponDetails(ctx, code)
}
