package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/UkralStul/salon-qa-board/internal/changefeed"
	"github.com/UkralStul/salon-qa-board/internal/storage"
)

// Store реализует интерфейс Storage в памяти.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]storage.Fields // map[collection]map[docID]fields
	order       map[string][]string                   // map[collection][]docID в порядке вставки

	feed  *changefeed.Observer
	clock func() time.Time
	log   *zap.Logger
}

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет часы "сервера" для ServerTimestamp.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithLogger задаёт логгер.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New создает новый экземпляр in-memory хранилища.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]storage.Fields),
		order:       make(map[string][]string),
		feed:        changefeed.NewObserver(),
		clock:       func() time.Time { return time.Now().UTC() },
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.Storage = (*Store)(nil)

func (s *Store) Create(ctx context.Context, collection string, doc storage.Fields) (string, error) {
	if collection == "" {
		return "", fmt.Errorf("%w: empty collection name", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	id := uuid.NewString()
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]storage.Fields)
	}
	s.collections[collection][id] = storage.ResolveServerTimestamps(doc, s.clock())
	s.order[collection] = append(s.order[collection], id)
	s.mu.Unlock()

	_ = s.feed.Publish(ctx, collection)
	return id, nil
}

func (s *Store) AppendToArray(ctx context.Context, collection, id, field string, value any) error {
	s.mu.Lock()
	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}

	var arr []any
	switch cur := doc[field].(type) {
	case nil:
	case []any:
		arr = cur
	default:
		s.mu.Unlock()
		return fmt.Errorf("%s/%s.%s: %w", collection, id, field, storage.ErrNotAnArray)
	}

	item := storage.ResolveValue(value, s.clock())

	// Новый срез, чтобы ранее выданные снимки не видели изменения
	next := make([]any, len(arr), len(arr)+1)
	copy(next, arr)
	doc[field] = append(next, item)
	s.mu.Unlock()

	_ = s.feed.Publish(ctx, collection)
	return nil
}

func (s *Store) SubscribeOrdered(ctx context.Context, collection, sortKey string, dir storage.Direction, fn storage.SnapshotFunc) (storage.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	signals, err := s.feed.Subscribe(ctx, collection)
	if err != nil {
		cancel()
		return nil, err
	}

	query := func(ctx context.Context) ([]storage.Document, error) {
		return s.snapshot(collection, sortKey, dir), nil
	}
	s.log.Debug("subscription opened", zap.String("collection", collection), zap.String("sort", sortKey), zap.Stringer("dir", dir))
	return storage.Follow(ctx, cancel, signals, query, fn, s.log), nil
}

// snapshot копирует коллекцию целиком под блокировкой чтения.
func (s *Store) snapshot(collection, sortKey string, dir storage.Direction) []storage.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Порядок вставки делает сортировку детерминированной при равных ключах
	docs := make([]storage.Document, 0, len(s.order[collection]))
	for _, id := range s.order[collection] {
		fields := s.collections[collection][id]
		cp, _ := storage.CloneValue(map[string]any(fields)).(map[string]any)
		docs = append(docs, storage.Document{ID: id, Fields: storage.Fields(cp)})
	}
	storage.SortDocuments(docs, sortKey, dir)
	return docs
}

// Get возвращает копию документа.
func (s *Store) Get(ctx context.Context, collection, id string) (storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	cp, _ := storage.CloneValue(map[string]any(doc)).(map[string]any)
	return storage.Document{ID: id, Fields: storage.Fields(cp)}, nil
}

func (s *Store) Close(ctx context.Context) error { return nil }
