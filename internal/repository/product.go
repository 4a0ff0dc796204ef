package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabianovilela/buymore/internal/domain/product"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

const (
	productColumns = `id, name, description, price, image_id, created_at, updated_at`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	countProductsSQL = `SELECT COUNT(*) FROM products WHERE ($1 = '' OR name ILIKE $1)`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE ($1 = '' OR name ILIKE $1)
		ORDER BY id LIMIT $2 OFFSET $3`

	insertProductSQL = `INSERT INTO products (name, description, price, image_id) VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	updateProductSQL = `UPDATE products SET name = $2, description = $3, price = $4, image_id = $5, updated_at = now()
		WHERE id = $1 RETURNING updated_at`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Get returns a single product by its identifier.
func (r *ProductRepository) Get(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// List returns a page of products ordered by id.
func (r *ProductRepository) List(ctx context.Context, f product.Filter, p pagination.Request) (pagination.Page[product.Product], error) {
	page, err := listPage(ctx, r.pool, countProductsSQL, listProductsSQL, p, scanProduct, containsPattern(f.Name))
	if err != nil {
		return page, fmt.Errorf("listing products: %w", err)
	}
	return page, nil
}

// Create inserts a product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, insertProductSQL, p.Name, p.Description, p.Price, p.ImageID).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.Wrap(product.ErrInvalid, "unknown image")
		}
		return fmt.Errorf("creating product %q: %w", p.Name, err)
	}
	return nil
}

// Update rewrites a product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, updateProductSQL, p.ID, p.Name, p.Description, p.Price, p.ImageID).
		Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return errors.Wrap(product.ErrInvalid, "unknown image")
		}
		return fmt.Errorf("updating product %d: %w", p.ID, err)
	}
	return nil
}

// Delete removes a product that no order references.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return product.ErrInUse
		}
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
