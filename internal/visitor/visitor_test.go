package visitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/salon-qa-board/internal/board"
	"github.com/UkralStul/salon-qa-board/internal/domain"
	"github.com/UkralStul/salon-qa-board/internal/identity"
	"github.com/UkralStul/salon-qa-board/internal/session"
	"github.com/UkralStul/salon-qa-board/internal/storage"
	"github.com/UkralStul/salon-qa-board/internal/storage/inmemory"
)

// fakeProvider сообщает статус только по emit
type fakeProvider struct {
	mu        sync.Mutex
	listener  func(*identity.User)
	signInErr error
}

func (f *fakeProvider) SignIn(ctx context.Context, email, password string) error {
	return f.signInErr
}

func (f *fakeProvider) SignOut(ctx context.Context) error { return nil }

func (f *fakeProvider) OnStatusChange(fn func(*identity.User)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = fn
	return func() {}
}

func (f *fakeProvider) emit(u *identity.User) {
	f.mu.Lock()
	fn := f.listener
	f.mu.Unlock()
	fn(u)
}

// failingStore отклоняет все записи
type failingStore struct {
	*inmemory.Store
}

func (failingStore) Create(ctx context.Context, collection string, doc storage.Fields) (string, error) {
	return "", errors.New("permission denied")
}

func newTestVisitor(t *testing.T, store storage.Storage) (*Visitor, *fakeProvider) {
	t.Helper()
	p := &fakeProvider{}
	b := board.New(store)
	v := New(session.New(p), b, WithLocation(time.UTC))
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(v.Close)
	return v, p
}

func eventually(t *testing.T, v *Visitor, cond func(View) bool) View {
	t.Helper()
	var last View
	require.Eventually(t, func() bool {
		last = v.View()
		return cond(last)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func TestVisitor_LoadingUntilIdentityResolves(t *testing.T) {
	v, p := newTestVisitor(t, inmemory.New())

	view := v.View()
	assert.True(t, view.Loading)
	assert.Equal(t, "unresolved", view.Identity)
	assert.False(t, view.ShowDisplayName)

	p.emit(nil)
	view = eventually(t, v, func(view View) bool { return !view.Loading })
	assert.True(t, view.ShowDisplayName)
	assert.NotNil(t, view.Questions)
}

func TestVisitor_AnonymousThenSignedIn(t *testing.T) {
	v, p := newTestVisitor(t, inmemory.New())
	ctx := context.Background()
	p.emit(nil)
	eventually(t, v, func(view View) bool { return !view.Loading })

	err := v.SubmitQuestion(ctx, "  ", "Есть ли парковка?")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	view := v.View()
	assert.Equal(t, "Please enter your name.", view.Prompts[PromptQuestion])
	assert.Equal(t, "Есть ли парковка?", view.Inputs.Question)
	assert.Empty(t, view.Questions)

	p.emit(&identity.User{ID: "u-1", Email: "owner@salon.kr"})
	view = v.View()
	assert.False(t, view.ShowDisplayName)
	assert.Equal(t, "owner@salon.kr", view.SignedInAs)

	require.NoError(t, v.SubmitQuestion(ctx, "", "Есть ли парковка?"))
	view = eventually(t, v, func(view View) bool { return len(view.Questions) == 1 })
	assert.Equal(t, "owner@salon.kr", view.Questions[0].AuthorLabel)
	assert.False(t, view.Questions[0].IsAnonymous)
	assert.Empty(t, view.Inputs.Question)
	assert.Empty(t, view.Prompts)
}

func TestVisitor_SignOutWaitsForProvider(t *testing.T) {
	v, p := newTestVisitor(t, inmemory.New())
	ctx := context.Background()
	p.emit(nil)
	require.NoError(t, v.SubmitQuestion(ctx, "Mina", "Вопрос"))
	p.emit(&identity.User{ID: "u-1", Email: "owner@salon.kr"})

	require.NoError(t, v.SignOut(ctx))
	view := v.View()
	assert.False(t, view.ShowDisplayName)
	assert.Equal(t, "owner@salon.kr", view.SignedInAs)

	p.emit(nil)
	view = v.View()
	assert.True(t, view.ShowDisplayName)
	assert.Empty(t, view.SignedInAs)
	assert.Empty(t, view.Inputs.DisplayName)
}

func TestVisitor_AnswerFlow(t *testing.T) {
	v, p := newTestVisitor(t, inmemory.New())
	ctx := context.Background()
	p.emit(nil)

	require.NoError(t, v.SubmitQuestion(ctx, "Mina", "Вопрос"))
	view := eventually(t, v, func(view View) bool { return len(view.Questions) == 1 })
	assert.Equal(t, "Mina", view.Inputs.DisplayName)
	qid := view.Questions[0].ID

	err := v.SubmitAnswer(ctx, qid, "Mina", " ")
	require.Error(t, err)
	assert.Contains(t, v.View().Prompts, AnswerPrompt(qid))

	require.NoError(t, v.SubmitAnswer(ctx, qid, "Sora", "Да, во дворе"))
	view = eventually(t, v, func(view View) bool { return len(view.Questions[0].Answers) == 1 })
	a := view.Questions[0].Answers[0]
	assert.Equal(t, "Sora", a.AuthorLabel)
	assert.True(t, a.IsAnonymous)
	assert.NotEmpty(t, a.CreatedAt)
	assert.NotContains(t, view.Prompts, AnswerPrompt(qid))
	assert.NotContains(t, view.Inputs.Answers, qid)
}

func TestVisitor_WriteErrorShowsNoticeAndKeepsInput(t *testing.T) {
	v, p := newTestVisitor(t, failingStore{inmemory.New()})
	p.emit(nil)

	err := v.SubmitQuestion(context.Background(), "Mina", "Сколько стоит?")
	var wErr *domain.WriteError
	require.ErrorAs(t, err, &wErr)

	view := v.View()
	assert.NotEmpty(t, view.Notice)
	assert.Equal(t, "Сколько стоит?", view.Inputs.Question)
	assert.Equal(t, "Mina", view.Inputs.DisplayName)

	v.DismissNotice()
	assert.Empty(t, v.View().Notice)
}

func TestVisitor_SignInAuthErrorIsInline(t *testing.T) {
	v, p := newTestVisitor(t, inmemory.New())
	p.signInErr = &domain.AuthError{Err: errors.New("bad")}
	p.emit(nil)

	err := v.SignIn(context.Background(), "owner@salon.kr", "wrong")
	require.Error(t, err)
	view := v.View()
	assert.Equal(t, "Invalid email or password.", view.Prompts[PromptSignIn])
	assert.Equal(t, "owner@salon.kr", view.Inputs.Email)
	assert.Empty(t, view.Notice)
}

func TestVisitor_UpdatesSignal(t *testing.T) {
	v, p := newTestVisitor(t, inmemory.New())
	p.emit(nil)

	select {
	case <-v.Updates():
	case <-time.After(time.Second):
		t.Fatal("no update signal")
	}
}
