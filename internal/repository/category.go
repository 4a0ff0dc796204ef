package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabianovilela/buymore/internal/domain/category"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

const (
	categoryColumns = `id, title, description, image_id, created_at, updated_at`

	getCategoryByIDSQL = `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`

	countCategoriesSQL = `SELECT COUNT(*) FROM categories WHERE ($1 = '' OR title ILIKE $1)`

	listCategoriesSQL = `SELECT ` + categoryColumns + ` FROM categories
		WHERE ($1 = '' OR title ILIKE $1)
		ORDER BY id LIMIT $2 OFFSET $3`

	insertCategorySQL = `INSERT INTO categories (title, description, image_id) VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	updateCategorySQL = `UPDATE categories SET title = $2, description = $3, image_id = $4, updated_at = now()
		WHERE id = $1 RETURNING updated_at`

	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`
)

var _ category.Repository = (*CategoryRepository)(nil)

// CategoryRepository implements category.Repository backed by PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

func (r *CategoryRepository) Get(ctx context.Context, id int64) (*category.Category, error) {
	rows, err := r.pool.Query(ctx, getCategoryByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting category %d: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, category.ErrNotFound
		}
		return nil, fmt.Errorf("getting category %d: %w", id, err)
	}
	return &c, nil
}

// List returns a page of categories ordered by id.
func (r *CategoryRepository) List(ctx context.Context, f category.Filter, p pagination.Request) (pagination.Page[category.Category], error) {
	page, err := listPage(ctx, r.pool, countCategoriesSQL, listCategoriesSQL, p, scanCategory, containsPattern(f.Title))
	if err != nil {
		return page, fmt.Errorf("listing categories: %w", err)
	}
	return page, nil
}

func (r *CategoryRepository) Create(ctx context.Context, c *category.Category) error {
	err := r.pool.QueryRow(ctx, insertCategorySQL, c.Title, c.Description, c.ImageID).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.Wrap(category.ErrInvalid, "unknown image")
		}
		return fmt.Errorf("creating category %q: %w", c.Title, err)
	}
	return nil
}

func (r *CategoryRepository) Update(ctx context.Context, c *category.Category) error {
	err := r.pool.QueryRow(ctx, updateCategorySQL, c.ID, c.Title, c.Description, c.ImageID).
		Scan(&c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return category.ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return errors.Wrap(category.ErrInvalid, "unknown image")
		}
		return fmt.Errorf("updating category %d: %w", c.ID, err)
	}
	return nil
}

func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteCategorySQL, id)
	if err != nil {
		return fmt.Errorf("deleting category %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}

func scanCategory(row pgx.CollectableRow) (category.Category, error) {
	var c category.Category
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.ImageID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
