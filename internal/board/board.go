// Package board держит живую копию списка вопросов и отправляет новые
// вопросы и ответы в документное хранилище.
//
// Board никогда не показывает собственную запись сразу: вопрос или ответ
// появляется в списке только после того, как его вернёт подписка.
package board

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/UkralStul/salon-qa-board/internal/domain"
	"github.com/UkralStul/salon-qa-board/internal/storage"
	"github.com/UkralStul/salon-qa-board/internal/textutil"
)

// SyncState - состояние синхронизации доски.
type SyncState int

const (
	Idle SyncState = iota
	Loading
	Synced
)

func (s SyncState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Synced:
		return "synced"
	default:
		return "idle"
	}
}

var ErrAlreadyStarted = errors.New("board already started")

// Board - компонент синхронизации доски для одного посетителя.
type Board struct {
	store    storage.Storage
	log      *zap.Logger
	clock    func() time.Time
	answerID func(time.Time) string
	maxLen   int

	mu          sync.Mutex
	state       SyncState
	questions   []domain.Question
	known       map[string]struct{}
	onChange    func()
	unsubscribe storage.Unsubscribe
	closed      bool
}

// Option настраивает Board.
type Option func(*Board)

// WithClock подменяет часы клиента, которыми помечаются ответы.
func WithClock(clock func() time.Time) Option {
	return func(b *Board) { b.clock = clock }
}

func WithLogger(log *zap.Logger) Option {
	return func(b *Board) { b.log = log }
}

// WithMaxTextLen ограничивает длину текста. 0 - без ограничения.
func WithMaxTextLen(n int) Option {
	return func(b *Board) { b.maxLen = n }
}

// WithAnswerID подменяет генератор идентификаторов ответов.
func WithAnswerID(gen func(time.Time) string) Option {
	return func(b *Board) { b.answerID = gen }
}

// TimeAnswerID - идентификатор ответа из миллисекунд Unix. Два ответа к
// одному вопросу в одну миллисекунду получат одинаковый ID.
func TimeAnswerID(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// New создаёт доску в состоянии Idle.
func New(store storage.Storage, opts ...Option) *Board {
	b := &Board{
		store:    store,
		log:      zap.NewNop(),
		clock:    time.Now,
		answerID: TimeAnswerID,
		maxLen:   textutil.DefaultMaxLen,
		known:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnChange задаёт функцию, которую вызывают после каждого нового снимка.
func (b *Board) OnChange(fn func()) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Start открывает подписку на вопросы, новые сверху.
func (b *Board) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.state != Idle || b.closed {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.state = Loading
	b.mu.Unlock()

	unsubscribe, err := b.store.SubscribeOrdered(ctx, domain.QuestionsCollection, domain.FieldCreatedAt, storage.Descending, b.onSnapshot)
	if err != nil {
		b.mu.Lock()
		b.state = Idle
		b.mu.Unlock()
		return fmt.Errorf("subscribe questions: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		unsubscribe()
		return nil
	}
	b.unsubscribe = unsubscribe
	b.mu.Unlock()
	return nil
}

// onSnapshot заменяет весь список. Порядок задаёт запрос хранилища.
func (b *Board) onSnapshot(docs []storage.Document) {
	questions := make([]domain.Question, 0, len(docs))
	known := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		q, err := decodeQuestion(doc)
		if err != nil {
			b.log.Warn("skip malformed question", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		questions = append(questions, q)
		known[q.ID] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.state == Synced && reflect.DeepEqual(b.questions, questions) {
		b.mu.Unlock()
		return
	}
	b.state = Synced
	b.questions = questions
	b.known = known
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// State возвращает состояние синхронизации.
func (b *Board) State() SyncState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Questions возвращает последний снимок. Срез не меняется после выдачи.
func (b *Board) Questions() []domain.Question {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Question, len(b.questions))
	copy(out, b.questions)
	return out
}

// SubmitQuestion отправляет новый вопрос и возвращает его ID.
// Локальный список не меняется: вопрос придёт со следующим снимком.
func (b *Board) SubmitQuestion(ctx context.Context, text string, author domain.Author) (string, error) {
	text, fields, err := b.prepare(text, author)
	if err != nil {
		return "", err
	}

	id, err := b.store.Create(ctx, domain.QuestionsCollection, questionFields(text, fields))
	if err != nil {
		b.log.Error("create question failed", zap.Error(err))
		return "", &domain.WriteError{Op: "create question", Err: err}
	}
	b.log.Debug("question created", zap.String("id", id), zap.Bool("anonymous", fields.IsAnonymous))
	return id, nil
}

// SubmitAnswer атомарно дописывает ответ в конец массива answers вопроса.
func (b *Board) SubmitAnswer(ctx context.Context, questionID, text string, author domain.Author) (string, error) {
	text, fields, err := b.prepare(text, author)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	_, ok := b.known[questionID]
	b.mu.Unlock()
	if !ok {
		return "", &domain.ValidationError{Field: "questionId", Reason: "unknown question"}
	}

	now := b.clock()
	id := b.answerID(now)
	err = b.store.AppendToArray(ctx, domain.QuestionsCollection, questionID, domain.FieldAnswers, answerValue(id, text, now, fields))
	if err != nil {
		b.log.Error("append answer failed", zap.String("question", questionID), zap.Error(err))
		return "", &domain.WriteError{Op: "append answer", Err: err}
	}
	return id, nil
}

// prepare чистит текст и проверяет автора до любого обращения к хранилищу.
func (b *Board) prepare(text string, author domain.Author) (string, domain.AuthorFields, error) {
	text = textutil.Clean(text)
	if textutil.IsBlank(text) {
		return "", domain.AuthorFields{}, &domain.ValidationError{Field: "text", Reason: "text cannot be empty"}
	}
	if textutil.TooLong(text, b.maxLen) {
		return "", domain.AuthorFields{}, &domain.ValidationError{
			Field:  "text",
			Reason: fmt.Sprintf("text exceeds maximum length of %d characters", b.maxLen),
		}
	}

	if a, ok := author.(domain.Anonymous); ok {
		author = domain.Anonymous{DisplayName: textutil.Clean(a.DisplayName)}
	}
	if err := domain.ValidateAuthor(author); err != nil {
		return "", domain.AuthorFields{}, err
	}
	return text, domain.Project(author), nil
}

// Close закрывает подписку. Снимки после Close игнорируются.
func (b *Board) Close() {
	b.mu.Lock()
	b.closed = true
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.onChange = nil
	b.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}
