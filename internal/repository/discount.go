package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabianovilela/buymore/internal/domain/coupon"
	"github.com/fabianovilela/buymore/internal/domain/order"
)

const (
	insertDiscountSQL = `INSERT INTO discounts (order_id, coupon_id, amount) VALUES ($1, $2, $3)
		RETURNING id, created_at`

	deleteDiscountSQL = `DELETE FROM discounts WHERE order_id = $1 AND coupon_id = $2`
)

var (
	_ order.TxRunner   = (*DiscountStore)(nil)
	_ order.DiscountTx = (*discountTx)(nil)
)

// DiscountStore runs the discount pipeline inside PostgreSQL transactions.
type DiscountStore struct {
	pool *pgxpool.Pool
}

// NewDiscountStore returns a DiscountStore that uses the given pool.
func NewDiscountStore(pool *pgxpool.Pool) *DiscountStore {
	return &DiscountStore{pool: pool}
}

// InTx runs fn in one transaction, committing only when fn returns nil.
func (s *DiscountStore) InTx(ctx context.Context, fn func(tx order.DiscountTx) error) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&discountTx{tx: tx})
	})
}

type discountTx struct {
	tx pgx.Tx
}

func (t *discountTx) OrderForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, t.tx, getOrderForUpdateSQL, id)
}

func (t *discountTx) CouponByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return getCoupon(ctx, t.tx, getCouponByCodeSQL, code)
}

func (t *discountTx) InsertDiscount(ctx context.Context, d *order.Discount) error {
	err := t.tx.QueryRow(ctx, insertDiscountSQL, d.OrderID, d.CouponID, d.Amount).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateDiscount
		}
		return fmt.Errorf("inserting discount: %w", err)
	}
	return nil
}

func (t *discountTx) DeleteDiscount(ctx context.Context, orderID string, couponID int64) error {
	tag, err := t.tx.Exec(ctx, deleteDiscountSQL, orderID, couponID)
	if err != nil {
		return fmt.Errorf("deleting discount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrDiscountNotFound
	}
	return nil
}

// DecrementCouponQuantity is a conditional update: it never takes the
// quantity below zero, and concurrent callers racing for the last use see
// exactly one success.
func (t *discountTx) DecrementCouponQuantity(ctx context.Context, couponID int64) error {
	tag, err := t.tx.Exec(ctx, decrementCouponQuantitySQL, couponID)
	if err != nil {
		return fmt.Errorf("decrementing coupon %d: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrExhausted
	}
	return nil
}

func (t *discountTx) IncrementCouponQuantity(ctx context.Context, couponID int64) error {
	if _, err := t.tx.Exec(ctx, incrementCouponQuantitySQL, couponID); err != nil {
		return fmt.Errorf("incrementing coupon %d: %w", couponID, err)
	}
	return nil
}
