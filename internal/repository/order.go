package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/fabianovilela/buymore/internal/domain/order"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

const (
	orderColumns = `id, user_id, status, created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	countOrdersSQL = `SELECT COUNT(*) FROM orders
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR id::text ILIKE $2)`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR id::text ILIKE $2)
		ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`

	listOrderItemsSQL = `SELECT id, order_id, product_id, quantity, price
		FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY id`

	listOrderDiscountsSQL = `SELECT d.id, d.order_id, d.coupon_id, c.code, c.recursive, d.amount, d.created_at
		FROM discounts d JOIN coupons c ON c.id = d.coupon_id
		WHERE d.order_id = ANY($1::uuid[]) ORDER BY d.id`

	insertOrderSQL = `INSERT INTO orders (id, user_id, status) VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	updateOrderSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
		RETURNING updated_at`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4) RETURNING id`

	deleteOrderItemsSQL = `DELETE FROM order_items WHERE order_id = $1`

	restoreOrderCouponsSQL = `UPDATE coupons SET quantity = quantity + 1, updated_at = now()
		WHERE id IN (SELECT coupon_id FROM discounts WHERE order_id = $1)`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Get returns the order with its items and discounts.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, r.pool, getOrderSQL, id)
}

// List returns a page of orders, newest first, with items and discounts.
func (r *OrderRepository) List(ctx context.Context, f order.Filter, p pagination.Request) (pagination.Page[order.Order], error) {
	page, err := listPage(ctx, r.pool, countOrdersSQL, listOrdersSQL, p, scanOrder,
		string(f.Status), containsPattern(f.ID),
	)
	if err != nil {
		return page, fmt.Errorf("listing orders: %w", err)
	}

	ptrs := make([]*order.Order, len(page.Data))
	for i := range page.Data {
		ptrs[i] = &page.Data[i]
	}
	if err := loadOrderRelations(ctx, r.pool, ptrs...); err != nil {
		return page, err
	}
	return page, nil
}

// Create inserts the order and its items in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertOrderSQL, o.ID, o.UserID, string(o.Status)).
			Scan(&o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return err
		}
		return insertOrderItems(ctx, tx, o)
	})
	if err != nil {
		return mapOrderError(err, "creating order %q", o.ID)
	}
	return nil
}

// Update rewrites the status and replaces the items in one transaction.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, updateOrderSQL, o.ID, string(o.Status)).Scan(&o.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, deleteOrderItemsSQL, o.ID); err != nil {
			return err
		}
		return insertOrderItems(ctx, tx, o)
	})
	if err != nil {
		return mapOrderError(err, "updating order %q", o.ID)
	}
	return nil
}

// Delete removes the order with its items and discounts and gives every
// coupon that discounted it one use back.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return order.ErrNotFound
	}
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := getOrder(ctx, tx, getOrderForUpdateSQL, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, restoreOrderCouponsSQL, id); err != nil {
			return fmt.Errorf("restoring coupon quantities: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteOrderSQL, id); err != nil {
			return fmt.Errorf("deleting order: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return err
		}
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	return nil
}

func insertOrderItems(ctx context.Context, q querier, o *order.Order) error {
	for i := range o.Items {
		it := &o.Items[i]
		err := q.QueryRow(ctx, insertOrderItemSQL, o.ID, it.ProductID, it.Quantity, it.Price).Scan(&it.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func mapOrderError(err error, format string, args ...any) error {
	if errors.Is(err, order.ErrNotFound) {
		return err
	}
	if pgErr, ok := pgError(err, codeForeignKeyViolation); ok {
		if pgErr.TableName == "order_items" {
			return errors.Wrap(err, "order item references an unknown product")
		}
		return order.ErrInvalidUser
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// getOrder loads a single order with sql, which selects orderColumns by id.
func getOrder(ctx context.Context, q querier, sql, id string) (*order.Order, error) {
	if uuid.Validate(id) != nil {
		return nil, order.ErrNotFound
	}
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	if err := loadOrderRelations(ctx, q, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// loadOrderRelations fills Items and Discounts of orders with two queries.
func loadOrderRelations(ctx context.Context, q querier, orders ...*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := lo.KeyBy(orders, func(o *order.Order) string { return o.ID })
	ids := lo.Keys(byID)
	for _, o := range orders {
		o.Items = []order.Item{}
		o.Discounts = []order.Discount{}
	}

	rows, err := q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	var orderID string
	var item order.Item
	_, err = pgx.ForEachRow(rows, []any{&item.ID, &orderID, &item.ProductID, &item.Quantity, &item.Price}, func() error {
		o := byID[orderID]
		o.Items = append(o.Items, item)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning order items: %w", err)
	}

	rows, err = q.Query(ctx, listOrderDiscountsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order discounts: %w", err)
	}
	discounts, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return fmt.Errorf("scanning order discounts: %w", err)
	}
	for _, d := range discounts {
		o := byID[d.OrderID]
		o.Discounts = append(o.Discounts, d)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &status, &o.CreatedAt, &o.UpdatedAt)
	o.Status = order.Status(status)
	return o, err
}

func scanDiscount(row pgx.CollectableRow) (order.Discount, error) {
	var d order.Discount
	err := row.Scan(&d.ID, &d.OrderID, &d.CouponID, &d.CouponCode, &d.Recursive, &d.Amount, &d.CreatedAt)
	return d, err
}
