package auth

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveexchange/auction-backend/internal/domain/errors"
	"github.com/liveexchange/auction-backend/internal/domain/user"
	"github.com/liveexchange/auction-backend/internal/infrastructure/repository"
)

type memUserStore struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*user.User
	emails map[string]uuid.UUID
	tokens map[string]*repository.RefreshToken
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		users:  make(map[uuid.UUID]*user.User),
		emails: make(map[string]uuid.UUID),
		tokens: make(map[string]*repository.RefreshToken),
	}
}

func (m *memUserStore) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.emails[u.Email]; exists {
		return repository.ErrDuplicate
	}
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	return nil
}

func (m *memUserStore) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (m *memUserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.emails[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m.users[id], nil
}

func (m *memUserStore) InsertRefreshToken(_ context.Context, t *repository.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *t
	m.tokens[t.TokenHash] = &copied
	return nil
}

func (m *memUserStore) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*repository.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (m *memUserStore) RevokeRefreshToken(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, t := range m.tokens {
		if t.ID == id && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (m *memUserStore) RevokeFamily(_ context.Context, familyID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, t := range m.tokens {
		if t.FamilyID == familyID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (m *memUserStore) outstanding(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			n++
		}
	}
	return n
}

func newTestAuth(store UserStore) *Service {
	return NewService(store, Config{
		Secret:             []byte("0123456789abcdef0123456789abcdef"),
		Issuer:             "auction-backend",
		Audience:           "auction-clients",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	}, slog.Default())
}

func register(t *testing.T, svc *Service) *user.User {
	t.Helper()
	u, err := svc.Register(context.Background(), uuid.New().String()+"@example.com", "Test User", "s3cretpass")
	require.NoError(t, err)
	return u
}

func TestRegister(t *testing.T) {
	svc := newTestAuth(newMemUserStore())
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice@example.com", "Alice", "s3cretpass")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, u.ID)

	_, err = svc.Register(ctx, "alice@example.com", "Alice Again", "s3cretpass")
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, "EMAIL_TAKEN", appErr.Code)

	_, err = svc.Register(ctx, "not-an-email", "Bob", "s3cretpass")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = svc.Register(ctx, "bob@example.com", "Bob", "short")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestLoginAndValidate(t *testing.T) {
	store := newMemUserStore()
	svc := newTestAuth(store)
	ctx := context.Background()
	u := register(t, svc)

	t.Run("valid credentials", func(t *testing.T) {
		got, pair, err := svc.Login(ctx, u.Email, "s3cretpass")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.Equal(t, int64(900), pair.ExpiresIn)

		claims, err := svc.ValidateAccess(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, u.ID, claims.UserID)
		assert.Equal(t, u.Email, claims.Email)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, u.Email, "wrongpass")
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnauthorized))
	})

	t.Run("unknown email", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "nobody@example.com", "s3cretpass")
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnauthorized))
	})

	t.Run("garbage access token", func(t *testing.T) {
		_, err := svc.ValidateAccess("not.a.jwt")
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnauthorized))
	})
}

func TestRefreshRotation(t *testing.T) {
	store := newMemUserStore()
	svc := newTestAuth(store)
	ctx := context.Background()
	u := register(t, svc)

	_, pair, err := svc.Login(ctx, u.Email, "s3cretpass")
	require.NoError(t, err)

	// First redemption succeeds and yields a different token.
	pair2, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, pair2.RefreshToken)

	claims, err := svc.ValidateAccess(pair2.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	// Second redemption of the same token fails...
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnauthorized))

	// ...and burns every outstanding token of the owner's family.
	assert.Zero(t, store.outstanding(u.ID))
	_, err = svc.Refresh(ctx, pair2.RefreshToken)
	assert.Error(t, err, "successor token must be dead after reuse detection")
}

func TestRefresh_UnknownToken(t *testing.T) {
	svc := newTestAuth(newMemUserStore())
	_, err := svc.Refresh(context.Background(), "completely-unknown")
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnauthorized))
}

func TestLogout(t *testing.T) {
	store := newMemUserStore()
	svc := newTestAuth(store)
	ctx := context.Background()
	u := register(t, svc)

	_, pair, err := svc.Login(ctx, u.Email, "s3cretpass")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	assert.Zero(t, store.outstanding(u.ID))

	// Logged-out token cannot be redeemed.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.Error(t, err)

	// Logout is idempotent, unknown tokens included.
	assert.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	assert.NoError(t, svc.Logout(ctx, "unknown"))
}
