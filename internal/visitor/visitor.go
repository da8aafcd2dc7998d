// Package visitor собирает состояние сессии и доски в модель представления
// одного посетителя и обрабатывает его действия.
package visitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/UkralStul/salon-qa-board/internal/board"
	"github.com/UkralStul/salon-qa-board/internal/domain"
	"github.com/UkralStul/salon-qa-board/internal/session"
)

// Ключи подсказок в View.Prompts.
const (
	PromptQuestion = "question"
	PromptSignIn   = "signIn"
	answerPrefix   = "answer:"
)

// AnswerPrompt - ключ подсказки формы ответа на вопрос.
func AnswerPrompt(questionID string) string { return answerPrefix + questionID }

const dateLayout = "2006-01-02 15:04"

// TokenSource отдаёт токен текущего входа для переподключения.
type TokenSource interface {
	Token() string
}

// Visitor - представление доски для одного подключения.
type Visitor struct {
	session *session.State
	board   *board.Board
	tokens  TokenSource
	loc     *time.Location
	log     *zap.Logger

	mu       sync.Mutex
	lastKind session.Kind
	prompts  map[string]string
	notice   string
	inputs   Inputs

	updates chan struct{}
}

// Option настраивает Visitor.
type Option func(*Visitor)

// WithTokens подключает источник токена сессии.
func WithTokens(ts TokenSource) Option {
	return func(v *Visitor) { v.tokens = ts }
}

// WithLocation задаёт часовой пояс для дат в представлении.
func WithLocation(loc *time.Location) Option {
	return func(v *Visitor) { v.loc = loc }
}

func WithLogger(log *zap.Logger) Option {
	return func(v *Visitor) { v.log = log }
}

// New связывает сессию и доску. Доску нужно запустить отдельно.
func New(sess *session.State, b *board.Board, opts ...Option) *Visitor {
	v := &Visitor{
		session: sess,
		board:   b,
		loc:     time.Local,
		log:     zap.NewNop(),
		prompts: make(map[string]string),
		inputs:  Inputs{Answers: make(map[string]string)},
		updates: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.lastKind = sess.Identity().Kind
	sess.OnChange(v.identityChanged)
	b.OnChange(v.changed)
	return v
}

// Updates сигналит, что представление изменилось. Несколько изменений
// подряд сливаются в один сигнал.
func (v *Visitor) Updates() <-chan struct{} {
	return v.updates
}

func (v *Visitor) changed() {
	select {
	case v.updates <- struct{}{}:
	default:
	}
}

// identityChanged забывает введённое имя при выходе из учётной записи.
func (v *Visitor) identityChanged() {
	kind := v.session.Identity().Kind
	v.mu.Lock()
	if v.lastKind == session.Authenticated && kind != session.Authenticated {
		v.inputs.DisplayName = ""
	}
	v.lastKind = kind
	v.mu.Unlock()
	v.changed()
}

// View собирает текущее представление.
func (v *Visitor) View() View {
	id := v.session.Identity()
	view := View{
		Loading:         id.Kind == session.Unresolved || v.board.State() != board.Synced,
		Identity:        id.Kind.String(),
		ShowDisplayName: id.Kind == session.Anonymous,
		SignedInAs:      id.Email,
		Questions:       v.questionViews(),
	}
	if v.tokens != nil {
		view.Token = v.tokens.Token()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	view.Notice = v.notice
	if len(v.prompts) > 0 {
		view.Prompts = make(map[string]string, len(v.prompts))
		for k, p := range v.prompts {
			view.Prompts[k] = p
		}
	}
	view.Inputs = v.inputs.clone()
	if view.Inputs.DisplayName == "" && view.ShowDisplayName {
		view.Inputs.DisplayName = v.session.DisplayName()
	}
	return view
}

func (v *Visitor) questionViews() []QuestionView {
	questions := v.board.Questions()
	out := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		qv := QuestionView{
			ID:          q.ID,
			Text:        q.Text,
			AuthorLabel: q.AuthorLabel,
			IsAnonymous: q.IsAnonymous,
			CreatedAt:   v.formatTime(q.CreatedAt),
			Answers:     make([]AnswerView, 0, len(q.Answers)),
		}
		for _, a := range q.Answers {
			qv.Answers = append(qv.Answers, AnswerView{
				ID:          a.ID,
				Text:        a.Text,
				AuthorLabel: a.AuthorLabel,
				IsAnonymous: a.IsAnonymous,
				CreatedAt:   v.formatTime(a.CreatedAt),
			})
		}
		out = append(out, qv)
	}
	return out
}

func (v *Visitor) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(v.loc).Format(dateLayout)
}

// SubmitQuestion отправляет вопрос из формы.
func (v *Visitor) SubmitQuestion(ctx context.Context, displayName, text string) error {
	v.mu.Lock()
	v.inputs.DisplayName = displayName
	v.inputs.Question = text
	delete(v.prompts, PromptQuestion)
	v.mu.Unlock()

	author, err := v.session.Author(displayName)
	if err == nil {
		_, err = v.board.SubmitQuestion(ctx, text, author)
	}
	v.settle(PromptQuestion, err, func(in *Inputs) { in.Question = "" }, displayName)
	return err
}

// SubmitAnswer отправляет ответ из формы под вопросом.
func (v *Visitor) SubmitAnswer(ctx context.Context, questionID, displayName, text string) error {
	key := AnswerPrompt(questionID)
	v.mu.Lock()
	v.inputs.DisplayName = displayName
	v.inputs.Answers[questionID] = text
	delete(v.prompts, key)
	v.mu.Unlock()

	author, err := v.session.Author(displayName)
	if err == nil {
		_, err = v.board.SubmitAnswer(ctx, questionID, text, author)
	}
	v.settle(key, err, func(in *Inputs) { delete(in.Answers, questionID) }, displayName)
	return err
}

// settle раскладывает результат записи по подсказкам и уведомлению.
// При ошибке ввод остаётся в форме.
func (v *Visitor) settle(prompt string, err error, clear func(*Inputs), displayName string) {
	var vErr *domain.ValidationError
	var wErr *domain.WriteError

	v.mu.Lock()
	switch {
	case err == nil:
		clear(&v.inputs)
	case errors.As(err, &vErr):
		v.prompts[prompt] = validationPrompt(vErr)
	case errors.As(err, &wErr):
		v.notice = "Could not save your post. Please try again."
		v.log.Warn("write rejected", zap.String("op", wErr.Op), zap.Error(wErr.Err))
	default:
		v.notice = "Something went wrong. Please try again."
		v.log.Error("submit failed", zap.Error(err))
	}
	v.mu.Unlock()

	if err == nil {
		v.session.RememberDisplayName(displayName)
	}
	v.changed()
}

func validationPrompt(err *domain.ValidationError) string {
	switch err.Field {
	case "displayName":
		return "Please enter your name."
	case "author":
		return "Please wait while we check your sign-in status."
	case "questionId":
		return "This question is no longer available."
	default:
		return "Please check your " + err.Field + ": " + err.Reason + "."
	}
}

// SignIn входит по email и паролю. Неверные данные - подсказка у формы входа.
func (v *Visitor) SignIn(ctx context.Context, email, password string) error {
	v.mu.Lock()
	v.inputs.Email = email
	delete(v.prompts, PromptSignIn)
	v.mu.Unlock()

	err := v.session.SignIn(ctx, email, password)

	var authErr *domain.AuthError
	v.mu.Lock()
	switch {
	case err == nil:
		v.inputs.Email = ""
	case errors.As(err, &authErr):
		v.prompts[PromptSignIn] = "Invalid email or password."
	default:
		v.notice = "Sign in is unavailable right now. Please try again."
		v.log.Error("sign in failed", zap.Error(err))
	}
	v.mu.Unlock()
	v.changed()
	return err
}

// SignOut просит провайдера завершить сессию. Форма имени вернётся, когда
// провайдер сообщит о выходе.
func (v *Visitor) SignOut(ctx context.Context) error {
	err := v.session.SignOut(ctx)
	if err != nil {
		v.mu.Lock()
		v.notice = "Sign out failed. Please try again."
		v.mu.Unlock()
		v.changed()
	}
	return err
}

// DismissNotice закрывает блокирующее уведомление.
func (v *Visitor) DismissNotice() {
	v.mu.Lock()
	v.notice = ""
	v.mu.Unlock()
	v.changed()
}

// Close снимает обе подписки.
func (v *Visitor) Close() {
	v.board.Close()
	v.session.Close()
}
