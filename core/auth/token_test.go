package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"TaskHub/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[string]int64
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]int64)}
}

func (m *memStore) Put(ctx context.Context, jti string, userID int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[jti] = userID
	return nil
}

func (m *memStore) Get(ctx context.Context, jti string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.sessions[jti]
	return id, ok, nil
}

func (m *memStore) Delete(ctx context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, jti)
	return nil
}

func testUser() *model.User {
	return &model.User{ID: 42, Username: "alice"}
}

func TestIssuePairAndParse(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour, newMemStore())

	pair, err := issuer.IssuePair(context.Background(), testUser())
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := issuer.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestParseRejectsRefreshToken(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour, newMemStore())

	pair, err := issuer.IssuePair(context.Background(), testUser())
	require.NoError(t, err)

	// refresh token 不能当访问令牌用
	_, err = issuer.Parse(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour, newMemStore())
	other := NewIssuer("another", time.Hour, 24*time.Hour, newMemStore())

	pair, err := issuer.IssuePair(context.Background(), testUser())
	require.NoError(t, err)

	_, err = other.Parse(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpired(t *testing.T) {
	base := time.Now()
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour, newMemStore())
	issuer.WithClock(func() time.Time { return base })

	pair, err := issuer.IssuePair(context.Background(), testUser())
	require.NoError(t, err)

	issuer.WithClock(func() time.Time { return base.Add(2 * time.Hour) })
	_, err = issuer.Parse(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshRotatesSession(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour, newMemStore())
	user := testUser()

	pair, err := issuer.IssuePair(context.Background(), user)
	require.NoError(t, err)

	id, err := issuer.RefreshUserID(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	next, err := issuer.Refresh(context.Background(), pair.RefreshToken, user)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// 同一个 refresh token 不能使用两次
	_, err = issuer.Refresh(context.Background(), pair.RefreshToken, user)
	assert.ErrorIs(t, err, ErrSessionRevoked)

	// 轮换出的新 refresh token 可用
	_, err = issuer.Refresh(context.Background(), next.RefreshToken, user)
	assert.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour, newMemStore())

	pair, err := issuer.IssuePair(context.Background(), testUser())
	require.NoError(t, err)

	_, err = issuer.Refresh(context.Background(), pair.AccessToken, testUser())
	assert.ErrorIs(t, err, ErrInvalidToken)
}
