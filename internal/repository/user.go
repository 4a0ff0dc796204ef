package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabianovilela/buymore/internal/domain/user"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

const (
	userColumns = `id, name, surname, email, password_hash, image_id, created_at, updated_at`

	getUserSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	userFilter = `($1 = '' OR name ILIKE $1 OR surname ILIKE $1 OR email ILIKE $1)`

	countUsersSQL = `SELECT COUNT(*) FROM users WHERE ` + userFilter

	listUsersSQL = `SELECT ` + userColumns + ` FROM users WHERE ` + userFilter + `
		ORDER BY id LIMIT $2 OFFSET $3`

	insertUserSQL = `INSERT INTO users (name, surname, email, password_hash, image_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`

	updateUserSQL = `UPDATE users SET name = $2, surname = $3, email = $4, password_hash = $5,
		image_id = $6, updated_at = now()
		WHERE id = $1 RETURNING updated_at`

	deleteUserSQL = `DELETE FROM users WHERE id = $1`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Get returns a user by id.
func (r *UserRepository) Get(ctx context.Context, id int64) (*user.User, error) {
	rows, err := r.pool.Query(ctx, getUserSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	return &u, nil
}

// List returns a page of users ordered by id.
func (r *UserRepository) List(ctx context.Context, f user.Filter, p pagination.Request) (pagination.Page[user.User], error) {
	page, err := listPage(ctx, r.pool, countUsersSQL, listUsersSQL, p, scanUser, containsPattern(f.Name))
	if err != nil {
		return page, fmt.Errorf("listing users: %w", err)
	}
	return page, nil
}

// Create inserts a user.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	err := r.pool.QueryRow(ctx, insertUserSQL, u.Name, u.Surname, u.Email, u.PasswordHash, u.ImageID).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return mapUserError(err, "creating user %q", u.Email)
	}
	return nil
}

// Update rewrites a user.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	err := r.pool.QueryRow(ctx, updateUserSQL, u.ID, u.Name, u.Surname, u.Email, u.PasswordHash, u.ImageID).
		Scan(&u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.ErrNotFound
		}
		return mapUserError(err, "updating user %d", u.ID)
	}
	return nil
}

// Delete removes a user without orders.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteUserSQL, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return user.ErrInUse
		}
		return fmt.Errorf("deleting user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func mapUserError(err error, format string, args ...any) error {
	switch {
	case isUniqueViolation(err):
		return user.ErrEmailTaken
	case isForeignKeyViolation(err):
		return errors.Wrap(user.ErrInvalid, "unknown image")
	default:
		return fmt.Errorf(format+": %w", append(args, err)...)
	}
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &u.PasswordHash, &u.ImageID, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
