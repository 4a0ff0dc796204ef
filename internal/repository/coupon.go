package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabianovilela/buymore/internal/domain/coupon"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

const (
	couponColumns = `c.id, c.code, c.discount, c.type, c.valid_from, c.valid_until,
		c.quantity, c.recursive, c.created_at, c.updated_at,
		COALESCE((SELECT array_agg(cp.product_id ORDER BY cp.product_id)
			FROM coupon_products cp WHERE cp.coupon_id = c.id), '{}') AS product_ids,
		COALESCE((SELECT array_agg(cu.user_id ORDER BY cu.user_id)
			FROM coupon_users cu WHERE cu.coupon_id = c.id), '{}') AS customer_ids`

	getCouponSQL = `SELECT ` + couponColumns + ` FROM coupons c WHERE c.id = $1`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons c WHERE UPPER(c.code) = UPPER($1)`

	countCouponsSQL = `SELECT COUNT(*) FROM coupons c WHERE ($1 = '' OR c.code ILIKE $1)`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons c
		WHERE ($1 = '' OR c.code ILIKE $1)
		ORDER BY c.id LIMIT $2 OFFSET $3`

	insertCouponSQL = `INSERT INTO coupons (code, discount, type, valid_from, valid_until, quantity, recursive)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	updateCouponSQL = `UPDATE coupons SET code = $2, discount = $3, type = $4, valid_from = $5,
		valid_until = $6, quantity = COALESCE($7, quantity), recursive = $8, updated_at = now()
		WHERE id = $1
		RETURNING quantity, updated_at`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	deleteCouponProductsSQL = `DELETE FROM coupon_products WHERE coupon_id = $1`
	insertCouponProductsSQL = `INSERT INTO coupon_products (coupon_id, product_id)
		SELECT $1, unnest($2::bigint[])`

	deleteCouponUsersSQL = `DELETE FROM coupon_users WHERE coupon_id = $1`
	insertCouponUsersSQL = `INSERT INTO coupon_users (coupon_id, user_id)
		SELECT $1, unnest($2::bigint[])`

	decrementCouponQuantitySQL = `UPDATE coupons SET quantity = quantity - 1, updated_at = now()
		WHERE id = $1 AND quantity > 0`

	incrementCouponQuantitySQL = `UPDATE coupons SET quantity = quantity + 1, updated_at = now()
		WHERE id = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// Get returns the coupon with the given id and its restriction sets.
func (r *CouponRepository) Get(ctx context.Context, id int64) (*coupon.Coupon, error) {
	return getCoupon(ctx, r.pool, getCouponSQL, id)
}

// FindByCode looks up a coupon by its code (case-insensitive).
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return getCoupon(ctx, r.pool, getCouponByCodeSQL, code)
}

// List returns a page of coupons ordered by id.
func (r *CouponRepository) List(ctx context.Context, f coupon.Filter, p pagination.Request) (pagination.Page[coupon.Coupon], error) {
	page, err := listPage(ctx, r.pool, countCouponsSQL, listCouponsSQL, p, scanCoupon, containsPattern(f.Code))
	if err != nil {
		return page, fmt.Errorf("listing coupons: %w", err)
	}
	return page, nil
}

// Create inserts the coupon and attaches its restriction sets in one
// transaction.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertCouponSQL,
			c.Code, c.Discount, string(c.Type), c.ValidFrom, c.ValidUntil, c.Quantity, c.Recursive,
		).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return err
		}
		return attachRestrictions(ctx, tx, c)
	})
	if err != nil {
		return mapCouponError(err, "creating coupon %q", c.Code)
	}
	return nil
}

// Update rewrites the coupon and replaces its restriction sets in one
// transaction. Without setQuantity the stored quantity is kept and read back.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon, setQuantity bool) error {
	var quantity *int
	if setQuantity {
		quantity = &c.Quantity
	}
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, updateCouponSQL,
			c.ID, c.Code, c.Discount, string(c.Type), c.ValidFrom, c.ValidUntil, quantity, c.Recursive,
		).Scan(&c.Quantity, &c.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return coupon.ErrNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, deleteCouponProductsSQL, c.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deleteCouponUsersSQL, c.ID); err != nil {
			return err
		}
		return attachRestrictions(ctx, tx, c)
	})
	if err != nil {
		return mapCouponError(err, "updating coupon %d", c.ID)
	}
	return nil
}

// Delete removes the coupon. Restriction sets and discounts cascade.
func (r *CouponRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func attachRestrictions(ctx context.Context, q querier, c *coupon.Coupon) error {
	if len(c.ProductIDs) > 0 {
		if _, err := q.Exec(ctx, insertCouponProductsSQL, c.ID, c.ProductIDs); err != nil {
			return err
		}
	}
	if len(c.CustomerIDs) > 0 {
		if _, err := q.Exec(ctx, insertCouponUsersSQL, c.ID, c.CustomerIDs); err != nil {
			return err
		}
	}
	return nil
}

func mapCouponError(err error, format string, args ...any) error {
	if errors.Is(err, coupon.ErrNotFound) {
		return err
	}
	if isUniqueViolation(err) {
		return coupon.ErrCodeTaken
	}
	if pgErr, ok := pgError(err, codeForeignKeyViolation); ok {
		field := "product_ids"
		if pgErr.TableName == "coupon_users" {
			field = "customer_ids"
		}
		return &coupon.InvalidError{Field: field, Reason: "references an unknown record"}
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func getCoupon(ctx context.Context, q querier, sql string, arg any) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %v: %w", arg, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %v: %w", arg, err)
	}
	return &c, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		typ string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Discount, &typ, &c.ValidFrom, &c.ValidUntil,
		&c.Quantity, &c.Recursive, &c.CreatedAt, &c.UpdatedAt,
		&c.ProductIDs, &c.CustomerIDs,
	)
	c.Type = coupon.Type(typ)
	return c, err
}
