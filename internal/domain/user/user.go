package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/fabianovilela/buymore/pkg/pagination"
)

var (
	// ErrNotFound is returned when a user id or email does not resolve.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when another user already registered the email.
	ErrEmailTaken = errors.New("email already in use")
	// ErrInvalid is returned when user data fails validation.
	ErrInvalid = errors.New("invalid user")
	// ErrInUse is returned when deleting a user that still owns orders.
	ErrInUse = errors.New("user has orders")
)

const minPasswordLength = 8

// User is an admin or customer account.
type User struct {
	ID           int64
	Name         string
	Surname      string
	Email        string
	PasswordHash string
	ImageID      *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName returns name and surname joined by a space.
func (u *User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.Surname)
}

// CheckPassword reports whether password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Filter narrows user listings.
type Filter struct {
	// Name matches name, surname or email, case-insensitively.
	Name string
}

// Repository defines persistence operations for users. Create and Update
// return ErrEmailTaken on an email collision.
type Repository interface {
	Get(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context, f Filter, p pagination.Request) (pagination.Page[User], error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id int64) error
}

// CreateRequest holds the input for registering a user.
type CreateRequest struct {
	Name     string
	Surname  string
	Email    string
	Password string
	ImageID  *int64
}

// Patch carries a partial user update. Nil fields are left untouched; a
// non-nil Password is re-hashed.
type Patch struct {
	Name     *string
	Surname  *string
	Email    *string
	Password *string
	ImageID  *int64
	SetImage bool
}

// Service implements user administration.
type Service struct {
	repo Repository
	cost int
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides the bcrypt work factor.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService creates a user Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of users matching f.
func (s *Service) List(ctx context.Context, f Filter, p pagination.Request) (pagination.Page[User], error) {
	return s.repo.List(ctx, f, p)
}

// Create validates the request, hashes the password and stores the user.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*User, error) {
	u := &User{
		Name:    req.Name,
		Surname: req.Surname,
		Email:   req.Email,
		ImageID: req.ImageID,
	}
	if err := validate(u); err != nil {
		return nil, err
	}
	if err := s.setPassword(u, req.Password); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	return u, nil
}

// Update applies patch to the user with the given id.
func (s *Service) Update(ctx context.Context, id int64, patch Patch) (*User, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Surname != nil {
		u.Surname = *patch.Surname
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.SetImage {
		u.ImageID = patch.ImageID
	}
	if err := validate(u); err != nil {
		return nil, err
	}
	if patch.Password != nil {
		if err := s.setPassword(u, *patch.Password); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, errors.Wrap(err, "update user")
	}
	return u, nil
}

// Delete removes the user.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) setPassword(u *User, password string) error {
	if len(password) < minPasswordLength {
		return errors.Wrapf(ErrInvalid, "password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	u.PasswordHash = string(hash)
	return nil
}

func validate(u *User) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Surname = strings.TrimSpace(u.Surname)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	if u.Name == "" {
		return errors.Wrap(ErrInvalid, "name is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return errors.Wrap(ErrInvalid, "email is malformed")
	}
	return nil
}
