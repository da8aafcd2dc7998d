package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/UkralStul/salon-qa-board/internal/accounts"
	"github.com/UkralStul/salon-qa-board/internal/domain"
)

func newTestAuth(t *testing.T) *accounts.Service {
	t.Helper()
	store := accounts.NewMemoryStore()
	svc := accounts.NewService(store, accounts.NewTokens("secret", time.Hour), accounts.NewLoader(store, time.Millisecond)).
		WithHashCost(bcrypt.MinCost)
	_, err := svc.SignUp(context.Background(), "owner@salon.kr", "long-password")
	require.NoError(t, err)
	return svc
}

// watch подписывается и возвращает канал уведомлений о статусе
func watch(t *testing.T, p Provider) <-chan *User {
	t.Helper()
	ch := make(chan *User, 16)
	unsubscribe := p.OnStatusChange(func(u *User) { ch <- u })
	t.Cleanup(unsubscribe)
	return ch
}

func next(t *testing.T, ch <-chan *User) *User {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no status notification")
		return nil
	}
}

func TestSession_InitialStatusIsAnonymous(t *testing.T) {
	s := NewSession(context.Background(), newTestAuth(t), "", nil)
	defer s.Close()

	assert.Nil(t, next(t, watch(t, s)))
	assert.Empty(t, s.Token())
}

func TestSession_SignInNotifiesAsynchronously(t *testing.T) {
	s := NewSession(context.Background(), newTestAuth(t), "", nil)
	defer s.Close()
	ch := watch(t, s)
	require.Nil(t, next(t, ch))

	require.NoError(t, s.SignIn(context.Background(), "owner@salon.kr", "long-password"))
	u := next(t, ch)
	require.NotNil(t, u)
	assert.Equal(t, "owner@salon.kr", u.Email)
	assert.NotEmpty(t, s.Token())

	require.NoError(t, s.SignOut(context.Background()))
	assert.Nil(t, next(t, ch))
	assert.Empty(t, s.Token())
}

func TestSession_BadCredentialsIsAuthError(t *testing.T) {
	s := NewSession(context.Background(), newTestAuth(t), "", nil)
	defer s.Close()
	ch := watch(t, s)
	require.Nil(t, next(t, ch))

	err := s.SignIn(context.Background(), "owner@salon.kr", "wrong-password")
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)

	select {
	case u := <-ch:
		t.Fatalf("unexpected status change: %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_RestoresFromToken(t *testing.T) {
	auth := newTestAuth(t)
	_, token, err := auth.SignIn(context.Background(), "owner@salon.kr", "long-password")
	require.NoError(t, err)

	s := NewSession(context.Background(), auth, token, nil)
	defer s.Close()

	u := next(t, watch(t, s))
	require.NotNil(t, u)
	assert.Equal(t, "owner@salon.kr", u.Email)
	assert.Equal(t, token, s.Token())
}

func TestSession_InvalidTokenResolvesAnonymous(t *testing.T) {
	s := NewSession(context.Background(), newTestAuth(t), "garbage", nil)
	defer s.Close()

	assert.Nil(t, next(t, watch(t, s)))
	assert.Empty(t, s.Token())
}

func TestSession_UnsubscribeStopsDelivery(t *testing.T) {
	s := NewSession(context.Background(), newTestAuth(t), "", nil)
	defer s.Close()

	ch := make(chan *User, 4)
	unsubscribe := s.OnStatusChange(func(u *User) { ch <- u })
	require.Nil(t, next(t, ch))
	unsubscribe()

	require.NoError(t, s.SignIn(context.Background(), "owner@salon.kr", "long-password"))
	select {
	case u := <-ch:
		t.Fatalf("delivered after unsubscribe: %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

// slowRestore держит Restore, пока тест не отпустит release.
type slowRestore struct {
	*accounts.Service
	release  chan struct{}
	restored chan struct{}
}

func (a *slowRestore) Restore(ctx context.Context, token string) (accounts.User, error) {
	<-a.release
	defer close(a.restored)
	return a.Service.Restore(ctx, token)
}

func newSlowRestore(t *testing.T) *slowRestore {
	return &slowRestore{Service: newTestAuth(t), release: make(chan struct{}), restored: make(chan struct{})}
}

func TestSession_LateRestoreDoesNotOverrideSignIn(t *testing.T) {
	auth := newSlowRestore(t)
	s := NewSession(context.Background(), auth, "stale-token", nil)
	defer s.Close()
	ch := watch(t, s)

	require.NoError(t, s.SignIn(context.Background(), "owner@salon.kr", "long-password"))
	u := next(t, ch)
	require.NotNil(t, u)
	token := s.Token()
	require.NotEmpty(t, token)

	close(auth.release)
	<-auth.restored

	assert.Never(t, func() bool { return s.Token() != token }, 100*time.Millisecond, 5*time.Millisecond)
	select {
	case u := <-ch:
		t.Fatalf("unexpected status after restore: %v", u)
	default:
	}
}

func TestSession_LateRestoreDoesNotOverrideSignOut(t *testing.T) {
	auth := newSlowRestore(t)
	_, token, err := auth.Service.SignIn(context.Background(), "owner@salon.kr", "long-password")
	require.NoError(t, err)

	s := NewSession(context.Background(), auth, token, nil)
	defer s.Close()
	ch := watch(t, s)

	require.NoError(t, s.SignOut(context.Background()))
	assert.Nil(t, next(t, ch))

	close(auth.release)
	<-auth.restored

	assert.Never(t, func() bool { return s.Token() != "" }, 100*time.Millisecond, 5*time.Millisecond)
	select {
	case u := <-ch:
		t.Fatalf("unexpected status after restore: %v", u)
	default:
	}
}
