package accounts

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store, NewTokens("test-secret", time.Hour), NewLoader(store, time.Millisecond)).
		WithHashCost(bcrypt.MinCost)
	return svc, store
}

func TestService_SignUpAndSignIn(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.SignUp(ctx, "  Anna@Salon.KR ", "long-password")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "anna@salon.kr", created.Email)

	user, token, err := svc.SignIn(ctx, "anna@salon.kr", "long-password")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
	assert.NotEmpty(t, token)
}

func TestService_SignUp_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "not-an-email", "long-password")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.SignUp(ctx, "a@b.kr", "short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = svc.SignUp(ctx, "a@b.kr", "long-password")
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, "A@B.kr", "long-password")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestService_SignIn_BadCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.SignUp(ctx, "anna@salon.kr", "long-password")
	require.NoError(t, err)

	_, _, err = svc.SignIn(ctx, "anna@salon.kr", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.SignIn(ctx, "nobody@salon.kr", "long-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.SignIn(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Restore(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.SignUp(ctx, "anna@salon.kr", "long-password")
	require.NoError(t, err)
	_, token, err := svc.SignIn(ctx, "anna@salon.kr", "long-password")
	require.NoError(t, err)

	user, err := svc.Restore(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	_, err = svc.Restore(ctx, token+"x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokens_Expired(t *testing.T) {
	tokens := NewTokens("secret", time.Minute)
	issuedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issuedAt }

	tok, err := tokens.Issue(User{ID: "u-1", Email: "a@b.kr"})
	require.NoError(t, err)

	_, err = tokens.Parse(tok)
	require.NoError(t, err)

	tokens.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = tokens.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokens_WrongSecret(t *testing.T) {
	tok, err := NewTokens("one", time.Minute).Issue(User{ID: "u-1"})
	require.NoError(t, err)
	_, err = NewTokens("two", time.Minute).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// countingStore считает пакетные запросы лоадера
type countingStore struct {
	*MemoryStore
	batches atomic.Int32
}

func (c *countingStore) GetUsersByIDs(ctx context.Context, ids []string) (map[string]User, error) {
	c.batches.Add(1)
	return c.MemoryStore.GetUsersByIDs(ctx, ids)
}

func TestLoader_BatchesConcurrentLoads(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	ctx := context.Background()
	ids := []string{"u-1", "u-2", "u-3"}
	for _, id := range ids {
		require.NoError(t, store.CreateUser(ctx, User{ID: id, Email: id + "@salon.kr"}))
	}
	loader := NewLoader(store, 20*time.Millisecond)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			u, err := loader.Load(ctx, id)
			assert.NoError(t, err)
			assert.Equal(t, id, u.ID)
		}(id)
	}
	wg.Wait()
	assert.Equal(t, int32(1), store.batches.Load())
}

func TestLoader_MissingUser(t *testing.T) {
	loader := NewLoader(NewMemoryStore(), time.Millisecond)
	_, err := loader.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
