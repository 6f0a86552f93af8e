package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/undangke/coupon-service/internal/domain"
)

const keyPrefix = "coupon:"

// CouponCache is a Redis-backed read cache for coupon definitions, keyed by
// normalized code. It only ever holds the definition; usage counts are never
// cached. Cache failures degrade to misses, they never fail a request.
type CouponCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func New(client *redis.Client, ttl time.Duration, logger *zap.Logger) *CouponCache {
	return &CouponCache{client: client, ttl: ttl, logger: logger}
}

func (c *CouponCache) Get(ctx context.Context, code string) (*domain.Coupon, bool) {
	payload, err := c.client.Get(ctx, keyPrefix+code).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("coupon cache read failed", zap.String("code", code), zap.Error(err))
		}
		return nil, false
	}

	var coupon domain.Coupon
	if err := json.Unmarshal(payload, &coupon); err != nil {
		c.logger.Warn("coupon cache entry corrupt", zap.String("code", code), zap.Error(err))
		return nil, false
	}
	return &coupon, true
}

func (c *CouponCache) Set(ctx context.Context, coupon *domain.Coupon) {
	payload, err := json.Marshal(coupon)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+coupon.Code, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("coupon cache write failed", zap.String("code", coupon.Code), zap.Error(err))
	}
}

func (c *CouponCache) Invalidate(ctx context.Context, code string) {
	if err := c.client.Del(ctx, keyPrefix+code).Err(); err != nil {
		c.logger.Warn("coupon cache invalidate failed", zap.String("code", code), zap.Error(err))
	}
}
