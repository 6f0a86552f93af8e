package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/undangke/coupon-service/internal/domain"
	"github.com/undangke/coupon-service/internal/repository"
)

const recentUsagesLimit = 20

// Cache is an optional read cache for coupon definitions. Usage counts are
// never cached; they must always come from the store.
type Cache interface {
	Get(ctx context.Context, code string) (*domain.Coupon, bool)
	Set(ctx context.Context, coupon *domain.Coupon)
	Invalidate(ctx context.Context, code string)
}

// usageCounter is the slice of the store evaluate needs. Satisfied by both
// repository.Store (validate, outside any tx) and repository.Querier
// (apply, inside the redemption tx).
type usageCounter interface {
	CountUsages(ctx context.Context, couponID int64) (int, error)
	CountUsagesForUser(ctx context.Context, couponID, userID int64) (int, error)
}

type CouponEngine struct {
	store  repository.Store
	cache  Cache
	logger *zap.Logger
	now    func() time.Time
}

func NewCouponEngine(store repository.Store, cache Cache, logger *zap.Logger) *CouponEngine {
	return &CouponEngine{
		store:  store,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

func (s *CouponEngine) CreateCoupon(ctx context.Context, c *domain.Coupon) (*domain.Coupon, error) {
	c.Code = domain.NormalizeCode(c.Code)
	if err := validateDefinition(c); err != nil {
		return nil, err
	}

	created, err := s.store.CreateCoupon(ctx, c)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, created.Code)
	}
	s.logger.Info("coupon created",
		zap.String("code", created.Code),
		zap.String("type", string(created.Type)),
		zap.Int64("value", created.Value))
	return created, nil
}

// ValidateCoupon checks whether a coupon is redeemable for the given context
// and computes the discount. It is read-only and recomputes everything from
// current store state; there is no materialized "redeemable" status.
func (s *CouponEngine) ValidateCoupon(ctx context.Context, code string, rc domain.RedeemContext) (*domain.Quote, error) {
	code = domain.NormalizeCode(code)
	if err := validateContext(code, rc, false); err != nil {
		return nil, err
	}

	coupon, err := s.lookupCoupon(ctx, code)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, domain.NewRejection(domain.CodeNotFound, "coupon %s not found", code)
	}

	if err := s.evaluate(ctx, coupon, rc, s.store); err != nil {
		return nil, err
	}

	discount := domain.ComputeDiscount(coupon, rc.OrderAmount)
	return &domain.Quote{
		Coupon:         coupon,
		DiscountAmount: discount,
		FinalAmount:    rc.OrderAmount - discount,
	}, nil
}

// ApplyCoupon redeems a coupon against an order. The entire check-then-insert
// runs in one transaction with the coupon row locked, so concurrent applies
// cannot jointly exceed usage_limit or user_limit, and a failed apply never
// leaves a partial usage row behind.
func (s *CouponEngine) ApplyCoupon(ctx context.Context, code string, rc domain.RedeemContext) (*domain.CouponUsage, error) {
	code = domain.NormalizeCode(code)
	if err := validateContext(code, rc, true); err != nil {
		return nil, err
	}

	var usage *domain.CouponUsage
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		coupon, err := q.FindCouponByCodeForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if coupon == nil {
			return domain.NewRejection(domain.CodeNotFound, "coupon %s not found", code)
		}

		if err := s.evaluate(ctx, coupon, rc, q); err != nil {
			return err
		}

		usage, err = q.InsertUsage(ctx, &domain.CouponUsage{
			CouponID:       coupon.ID,
			UserID:         rc.UserID,
			OrderID:        rc.OrderID,
			DiscountAmount: domain.ComputeDiscount(coupon, rc.OrderAmount),
			OrderAmount:    rc.OrderAmount,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("coupon applied",
		zap.String("code", code),
		zap.Int64("user_id", rc.UserID),
		zap.Int64("order_id", rc.OrderID),
		zap.Int64("discount", usage.DiscountAmount))
	return usage, nil
}

func (s *CouponEngine) GetCouponDetails(ctx context.Context, code string) (*domain.CouponDetails, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty coupon code", domain.ErrInvalidRequest)
	}

	coupon, err := s.store.FindCouponByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, domain.NewRejection(domain.CodeNotFound, "coupon %s not found", code)
	}

	timesUsed, err := s.store.CountUsages(ctx, coupon.ID)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.ListUsagesByCoupon(ctx, coupon.ID, recentUsagesLimit)
	if err != nil {
		return nil, err
	}

	return &domain.CouponDetails{
		Coupon:     coupon,
		TimesUsed:  timesUsed,
		RecentUses: recent,
	}, nil
}

func (s *CouponEngine) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	return s.store.ListCoupons(ctx)
}

// SetCouponActive flips the kill switch independent of the validity window.
func (s *CouponEngine) SetCouponActive(ctx context.Context, code string, active bool) (*domain.Coupon, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty coupon code", domain.ErrInvalidRequest)
	}

	coupon, err := s.store.SetCouponActive(ctx, code, active)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, domain.NewRejection(domain.CodeNotFound, "coupon %s not found", code)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, code)
	}
	s.logger.Info("coupon active flag changed", zap.String("code", code), zap.Bool("active", active))
	return coupon, nil
}

func (s *CouponEngine) lookupCoupon(ctx context.Context, code string) (*domain.Coupon, error) {
	if s.cache != nil {
		if coupon, ok := s.cache.Get(ctx, code); ok {
			return coupon, nil
		}
	}

	coupon, err := s.store.FindCouponByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if coupon != nil && s.cache != nil {
		s.cache.Set(ctx, coupon)
	}
	return coupon, nil
}

// evaluate runs the redeemability checks in order, short-circuiting on the
// first failure. The validity window is inclusive of starts_at and exclusive
// of expires_at.
func (s *CouponEngine) evaluate(ctx context.Context, c *domain.Coupon, rc domain.RedeemContext, counts usageCounter) error {
	now := s.now().UTC()

	if !c.IsActive {
		return domain.NewRejection(domain.CodeInactive, "coupon %s is not active", c.Code)
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return domain.NewRejection(domain.CodeNotYetStarted, "coupon %s is not valid before %s", c.Code, c.StartsAt.Format(time.RFC3339))
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return domain.NewRejection(domain.CodeExpired, "coupon %s expired at %s", c.Code, c.ExpiresAt.Format(time.RFC3339))
	}
	if c.MinimumAmount > 0 && rc.OrderAmount < c.MinimumAmount {
		rej := domain.NewRejection(domain.CodeBelowMinimum,
			"order amount %d is below the %d minimum for coupon %s", rc.OrderAmount, c.MinimumAmount, c.Code)
		rej.Shortfall = c.MinimumAmount - rc.OrderAmount
		return rej
	}
	if !c.AppliesToPackage(rc.PackageID) {
		return domain.NewRejection(domain.CodePackageNotEligible, "coupon %s does not apply to package %d", c.Code, rc.PackageID)
	}
	if !c.AppliesToUser(rc.UserID) {
		return domain.NewRejection(domain.CodeUserNotEligible, "coupon %s is not available to user %d", c.Code, rc.UserID)
	}

	if c.UsageLimit > 0 {
		total, err := counts.CountUsages(ctx, c.ID)
		if err != nil {
			return err
		}
		if total >= c.UsageLimit {
			rej := domain.NewRejection(domain.CodeGlobalLimitReached, "coupon %s has reached its redemption limit", c.Code)
			rej.Limit = c.UsageLimit
			return rej
		}
	}
	if c.UserLimit > 0 {
		used, err := counts.CountUsagesForUser(ctx, c.ID, rc.UserID)
		if err != nil {
			return err
		}
		if used >= c.UserLimit {
			rej := domain.NewRejection(domain.CodeUserLimitReached, "user %d has reached the redemption limit for coupon %s", rc.UserID, c.Code)
			rej.Limit = c.UserLimit
			return rej
		}
	}

	return nil
}

func validateContext(code string, rc domain.RedeemContext, needOrder bool) error {
	switch {
	case code == "":
		return fmt.Errorf("%w: empty coupon code", domain.ErrInvalidRequest)
	case rc.UserID <= 0:
		return fmt.Errorf("%w: missing user id", domain.ErrInvalidRequest)
	case rc.OrderAmount <= 0:
		return fmt.Errorf("%w: order amount must be positive", domain.ErrInvalidRequest)
	case needOrder && rc.OrderID <= 0:
		return fmt.Errorf("%w: missing order id", domain.ErrInvalidRequest)
	}
	return nil
}

func validateDefinition(c *domain.Coupon) error {
	switch {
	case c.Code == "":
		return fmt.Errorf("%w: empty coupon code", domain.ErrInvalidRequest)
	case c.Type != domain.DiscountPercentage && c.Type != domain.DiscountFixed:
		return fmt.Errorf("%w: unknown discount type %q", domain.ErrInvalidRequest, c.Type)
	case c.Type == domain.DiscountPercentage && (c.Value < 0 || c.Value > 100):
		return fmt.Errorf("%w: percentage value must be within [0,100]", domain.ErrInvalidRequest)
	case c.Type == domain.DiscountFixed && c.Value <= 0:
		return fmt.Errorf("%w: fixed value must be positive", domain.ErrInvalidRequest)
	case c.MinimumAmount < 0 || c.MaximumDiscount < 0:
		return fmt.Errorf("%w: amounts must not be negative", domain.ErrInvalidRequest)
	case c.UsageLimit < 0 || c.UserLimit < 0:
		return fmt.Errorf("%w: limits must not be negative", domain.ErrInvalidRequest)
	case c.StartsAt != nil && c.ExpiresAt != nil && !c.StartsAt.Before(*c.ExpiresAt):
		return fmt.Errorf("%w: starts_at must be before expires_at", domain.ErrInvalidRequest)
	}
	return nil
}
