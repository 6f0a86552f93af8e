package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/undangke/coupon-service/internal/domain"
)

// queries holds the statements shared between the pool-backed store and
// transaction-scoped queriers.
type queries struct {
	db dbtx
}

const selectCoupon = `
	SELECT id, code, name, description, discount_type, discount_value,
	       minimum_amount, maximum_discount, usage_limit, user_limit,
	       starts_at, expires_at, is_active, created_at, updated_at
	FROM coupons`

func (q queries) FindCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return q.findCoupon(ctx, selectCoupon+` WHERE code = $1`, code)
}

func (q queries) FindCouponByCodeForUpdate(ctx context.Context, code string) (*domain.Coupon, error) {
	return q.findCoupon(ctx, selectCoupon+` WHERE code = $1 FOR UPDATE`, code)
}

func (q queries) findCoupon(ctx context.Context, query, code string) (*domain.Coupon, error) {
	c, err := scanCoupon(q.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := q.loadApplicability(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (q queries) loadApplicability(ctx context.Context, c *domain.Coupon) error {
	var err error
	c.ApplicablePackages, err = q.listIDs(ctx,
		`SELECT package_id FROM coupon_applicable_packages WHERE coupon_id = $1`, c.ID)
	if err != nil {
		return fmt.Errorf("load applicable packages: %w", err)
	}
	c.ApplicableUsers, err = q.listIDs(ctx,
		`SELECT user_id FROM coupon_applicable_users WHERE coupon_id = $1`, c.ID)
	if err != nil {
		return fmt.Errorf("load applicable users: %w", err)
	}
	return nil
}

func (q queries) listIDs(ctx context.Context, query string, couponID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, query, couponID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q queries) CountUsages(ctx context.Context, couponID int64) (int, error) {
	var count int
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1`, couponID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count usages: %w", err)
	}
	return count, nil
}

func (q queries) CountUsagesForUser(ctx context.Context, couponID, userID int64) (int, error) {
	var count int
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`,
		couponID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count usages for user: %w", err)
	}
	return count, nil
}

func (q queries) InsertUsage(ctx context.Context, u *domain.CouponUsage) (*domain.CouponUsage, error) {
	const query = `
		INSERT INTO coupon_usages (coupon_id, user_id, order_id, discount_amount, order_amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, used_at`

	inserted := *u
	err := q.db.QueryRow(ctx, query,
		u.CouponID, u.UserID, u.OrderID, u.DiscountAmount, u.OrderAmount,
	).Scan(&inserted.ID, &inserted.UsedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			return nil, domain.ErrOrderAlreadyRedeemed
		}
		return nil, fmt.Errorf("insert usage: %w", err)
	}
	return &inserted, nil
}

func scanCoupon(row pgx.Row) (*domain.Coupon, error) {
	var c domain.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description, &c.Type, &c.Value,
		&c.MinimumAmount, &c.MaximumDiscount, &c.UsageLimit, &c.UserLimit,
		&c.StartsAt, &c.ExpiresAt, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan coupon: %w", err)
	}
	return &c, nil
}
