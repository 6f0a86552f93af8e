package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/undangke/coupon-service/internal/domain"
)

const pgUniqueViolationCode = "23505"

// Store is the persistence port the coupon engine depends on. Lookups by
// code return (nil, nil) when no coupon exists; usage counts are always
// derived by counting usage rows.
type Store interface {
	ExecTx(ctx context.Context, fn func(Querier) error) error
	CreateCoupon(ctx context.Context, c *domain.Coupon) (*domain.Coupon, error)
	FindCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	ListCoupons(ctx context.Context) ([]domain.Coupon, error)
	SetCouponActive(ctx context.Context, code string, active bool) (*domain.Coupon, error)
	CountUsages(ctx context.Context, couponID int64) (int, error)
	CountUsagesForUser(ctx context.Context, couponID, userID int64) (int, error)
	ListUsagesByCoupon(ctx context.Context, couponID int64, limit int) ([]domain.CouponUsage, error)
}

// Querier is the transaction-scoped slice of the store used by apply.
// FindCouponByCodeForUpdate locks the coupon row, so concurrent applies of
// the same coupon serialize and the counts read afterwards cannot miss a
// concurrently inserted usage row.
type Querier interface {
	FindCouponByCodeForUpdate(ctx context.Context, code string) (*domain.Coupon, error)
	CountUsages(ctx context.Context, couponID int64) (int, error)
	CountUsagesForUser(ctx context.Context, couponID, userID int64) (int, error)
	InsertUsage(ctx context.Context, u *domain.CouponUsage) (*domain.CouponUsage, error)
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type store struct {
	pool *pgxpool.Pool
	queries
}

func New(pool *pgxpool.Pool) Store {
	return &store{
		pool:    pool,
		queries: queries{db: pool},
	}
}

func (s *store) ExecTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	q := queries{db: tx}
	if err := fn(q); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %v, rollback err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *store) CreateCoupon(ctx context.Context, c *domain.Coupon) (*domain.Coupon, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertCoupon = `
		INSERT INTO coupons
			(code, name, description, discount_type, discount_value, minimum_amount,
			 maximum_discount, usage_limit, user_limit, starts_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	created := *c
	err = tx.QueryRow(ctx, insertCoupon,
		c.Code, c.Name, c.Description, c.Type, c.Value, c.MinimumAmount,
		c.MaximumDiscount, c.UsageLimit, c.UserLimit, c.StartsAt, c.ExpiresAt, c.IsActive,
	).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			return nil, domain.ErrDuplicateCoupon
		}
		return nil, fmt.Errorf("insert coupon: %w", err)
	}

	for _, packageID := range c.ApplicablePackages {
		if _, err := tx.Exec(ctx,
			`INSERT INTO coupon_applicable_packages (coupon_id, package_id) VALUES ($1, $2)`,
			created.ID, packageID,
		); err != nil {
			return nil, fmt.Errorf("insert applicable package: %w", err)
		}
	}
	for _, userID := range c.ApplicableUsers {
		if _, err := tx.Exec(ctx,
			`INSERT INTO coupon_applicable_users (coupon_id, user_id) VALUES ($1, $2)`,
			created.ID, userID,
		); err != nil {
			return nil, fmt.Errorf("insert applicable user: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &created, nil
}

func (s *store) SetCouponActive(ctx context.Context, code string, active bool) (*domain.Coupon, error) {
	const query = `
		UPDATE coupons SET is_active = $2, updated_at = NOW()
		WHERE code = $1`

	tag, err := s.pool.Exec(ctx, query, code, active)
	if err != nil {
		return nil, fmt.Errorf("update coupon active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return s.FindCouponByCode(ctx, code)
}

func (s *store) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	rows, err := s.pool.Query(ctx, selectCoupon+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []domain.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}

	for i := range coupons {
		if err := s.queries.loadApplicability(ctx, &coupons[i]); err != nil {
			return nil, err
		}
	}
	return coupons, nil
}

func (s *store) ListUsagesByCoupon(ctx context.Context, couponID int64, limit int) ([]domain.CouponUsage, error) {
	const query = `
		SELECT id, coupon_id, user_id, order_id, discount_amount, order_amount, used_at
		FROM coupon_usages
		WHERE coupon_id = $1
		ORDER BY used_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, couponID, limit)
	if err != nil {
		return nil, fmt.Errorf("list usages: %w", err)
	}
	defer rows.Close()

	var usages []domain.CouponUsage
	for rows.Next() {
		var u domain.CouponUsage
		if err := rows.Scan(&u.ID, &u.CouponID, &u.UserID, &u.OrderID, &u.DiscountAmount, &u.OrderAmount, &u.UsedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		usages = append(usages, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list usages: %w", err)
	}
	return usages, nil
}
