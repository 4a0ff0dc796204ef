package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	byHash map[string]*APIKeyInfo
	err    error
}

func (m *mockRepo) FindByHash(_ context.Context, hash string) (*APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return info, nil
}

func (m *mockRepo) Create(_ context.Context, info *APIKeyInfo) error {
	m.byHash[info.KeyHash] = info
	return nil
}

func TestHashKey(t *testing.T) {
	a := HashKey([]byte("pepper"), "key")
	b := HashKey([]byte("pepper"), "key")
	c := HashKey([]byte("other"), "key")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestAuthenticator(t *testing.T) {
	pepper := []byte("pepper")
	repo := &mockRepo{byHash: map[string]*APIKeyInfo{}}
	require.NoError(t, repo.Create(context.Background(), &APIKeyInfo{
		ID: 1, Name: "admin", KeyHash: HashKey(pepper, "admin-key"), Scopes: []string{ScopeAdmin},
	}))
	require.NoError(t, repo.Create(context.Background(), &APIKeyInfo{
		ID: 2, Name: "reader", KeyHash: HashKey(pepper, "reader-key"), Scopes: []string{"read"},
	}))
	a := NewAuthenticator(repo, pepper)

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "valid admin key", key: "admin-key"},
		{name: "empty key", key: "", wantErr: ErrUnauthorized},
		{name: "unknown key", key: "nope", wantErr: ErrUnauthorized},
		{name: "missing scope", key: "reader-key", wantErr: ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := a.Authenticate(context.Background(), tt.key, ScopeAdmin)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1), info.ID)
		})
	}
}

func TestAuthenticator_RepositoryError(t *testing.T) {
	a := NewAuthenticator(&mockRepo{err: errors.New("db down")}, []byte("p"))

	_, err := a.Authenticate(context.Background(), "key", ScopeAdmin)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
