package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabianovilela/buymore/internal/domain/image"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

const (
	imageColumns = `id, path, size, original_name, extension, created_at, updated_at`

	getImageSQL = `SELECT ` + imageColumns + ` FROM images WHERE id = $1`

	countImagesSQL = `SELECT COUNT(*) FROM images`

	listImagesSQL = `SELECT ` + imageColumns + ` FROM images
		ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	insertImageSQL = `INSERT INTO images (path, size, original_name, extension) VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	updateImageSQL = `UPDATE images SET path = $2, size = $3, original_name = $4, extension = $5, updated_at = now()
		WHERE id = $1 RETURNING updated_at`

	deleteImageSQL = `DELETE FROM images WHERE id = $1`
)

var _ image.Repository = (*ImageRepository)(nil)

// ImageRepository implements image.Repository backed by PostgreSQL.
type ImageRepository struct {
	pool *pgxpool.Pool
}

// NewImageRepository returns an ImageRepository that uses the given pool.
func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

// Get returns image metadata by id.
func (r *ImageRepository) Get(ctx context.Context, id int64) (*image.Image, error) {
	rows, err := r.pool.Query(ctx, getImageSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting image %d: %w", id, err)
	}
	img, err := pgx.CollectExactlyOneRow(rows, scanImage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, image.ErrNotFound
		}
		return nil, fmt.Errorf("getting image %d: %w", id, err)
	}
	return &img, nil
}

// List returns a page of images, newest first.
func (r *ImageRepository) List(ctx context.Context, p pagination.Request) (pagination.Page[image.Image], error) {
	page, err := listPage(ctx, r.pool, countImagesSQL, listImagesSQL, p, scanImage)
	if err != nil {
		return page, fmt.Errorf("listing images: %w", err)
	}
	return page, nil
}

// Create inserts image metadata.
func (r *ImageRepository) Create(ctx context.Context, img *image.Image) error {
	err := r.pool.QueryRow(ctx, insertImageSQL, img.Path, img.Size, img.OriginalName, img.Extension).
		Scan(&img.ID, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating image %q: %w", img.Path, err)
	}
	return nil
}

// Update rewrites image metadata.
func (r *ImageRepository) Update(ctx context.Context, img *image.Image) error {
	err := r.pool.QueryRow(ctx, updateImageSQL, img.ID, img.Path, img.Size, img.OriginalName, img.Extension).
		Scan(&img.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return image.ErrNotFound
		}
		return fmt.Errorf("updating image %d: %w", img.ID, err)
	}
	return nil
}

// Delete removes image metadata. Products and users referencing it lose
// their image.
func (r *ImageRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteImageSQL, id)
	if err != nil {
		return fmt.Errorf("deleting image %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return image.ErrNotFound
	}
	return nil
}

func scanImage(row pgx.CollectableRow) (image.Image, error) {
	var img image.Image
	err := row.Scan(&img.ID, &img.Path, &img.Size, &img.OriginalName, &img.Extension, &img.CreatedAt, &img.UpdatedAt)
	return img, err
}
