package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fabianovilela/buymore/pkg/pagination"
)

type mockRepo struct {
	byID  map[int64]*User
	saved *User
	taken string
}

func (m *mockRepo) Get(_ context.Context, id int64) (*User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, _ Filter, p pagination.Request) (pagination.Page[User], error) {
	return pagination.NewPage[User](nil, 0, p), nil
}

func (m *mockRepo) Create(_ context.Context, u *User) error {
	if u.Email == m.taken {
		return ErrEmailTaken
	}
	u.ID = 1
	m.saved = u
	return nil
}

func (m *mockRepo) Update(_ context.Context, u *User) error {
	if u.Email == m.taken {
		return ErrEmailTaken
	}
	m.saved = u
	return nil
}

func (m *mockRepo) Delete(_ context.Context, _ int64) error {
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, WithBcryptCost(bcrypt.MinCost))
}

func TestService_Create(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo)

	u, err := svc.Create(context.Background(), CreateRequest{
		Name:     " John ",
		Surname:  "Doe",
		Email:    " Jhon@BuyMore.com ",
		Password: "secret-password",
	})
	require.NoError(t, err)

	assert.Equal(t, "John", u.Name)
	assert.Equal(t, "jhon@buymore.com", u.Email)
	assert.Equal(t, "John Doe", u.FullName())
	assert.NotEqual(t, "secret-password", u.PasswordHash)
	assert.True(t, u.CheckPassword("secret-password"))
	assert.False(t, u.CheckPassword("wrong-password"))
	assert.Same(t, u, repo.saved)
}

func TestService_Create_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{name: "missing name", req: CreateRequest{Email: "a@b.co", Password: "longenough"}},
		{name: "bad email", req: CreateRequest{Name: "A", Email: "not-an-email", Password: "longenough"}},
		{name: "short password", req: CreateRequest{Name: "A", Email: "a@b.co", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{}
			_, err := newTestService(repo).Create(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrInvalid)
			assert.Nil(t, repo.saved)
		})
	}
}

func TestService_Create_EmailTaken(t *testing.T) {
	svc := newTestService(&mockRepo{taken: "a@b.co"})

	_, err := svc.Create(context.Background(), CreateRequest{Name: "A", Email: "A@b.co", Password: "longenough"})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestService_Update(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &mockRepo{byID: map[int64]*User{
		2: {ID: 2, Name: "Ann", Email: "ann@example.com", PasswordHash: string(hash)},
	}}
	svc := newTestService(repo)

	surname := "Smith"
	password := "new-password"
	u, err := svc.Update(context.Background(), 2, Patch{Surname: &surname, Password: &password})
	require.NoError(t, err)

	assert.Equal(t, "Ann Smith", u.FullName())
	assert.True(t, u.CheckPassword("new-password"))
	assert.False(t, u.CheckPassword("old-password"))
}

func TestService_Update_KeepsPassword(t *testing.T) {
	repo := &mockRepo{byID: map[int64]*User{
		2: {ID: 2, Name: "Ann", Email: "ann@example.com", PasswordHash: "stored"},
	}}

	name := "Anna"
	u, err := newTestService(repo).Update(context.Background(), 2, Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "stored", u.PasswordHash)
}
