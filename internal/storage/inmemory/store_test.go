// internal/storage/inmemory/store_test.go

package inmemory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/UkralStul/salon-qa-board/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// snapshots собирает снимки подписки для проверок
type snapshots struct {
	mu   sync.Mutex
	list [][]storage.Document
}

func (s *snapshots) add(docs []storage.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, docs)
}

func (s *snapshots) last() []storage.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.list) == 0 {
		return nil
	}
	return s.list[len(s.list)-1]
}

func (s *snapshots) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

// newTestStore создает хранилище с управляемыми часами
func newTestStore(t *testing.T) *Store {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	store := New(WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}))
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestStore_CreateResolvesServerTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "questions", storage.Fields{
		"text":      "How long does a perm last?",
		"createdAt": storage.ServerTimestamp,
		"answers":   []any{},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	doc, err := store.Get(ctx, "questions", id)
	require.NoError(t, err)
	assert.IsType(t, time.Time{}, doc.Fields["createdAt"])
	assert.Equal(t, "How long does a perm last?", doc.Fields["text"])
}

func TestStore_AppendToArray(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "questions", storage.Fields{"text": "Q", "answers": []any{}})
	require.NoError(t, err)

	require.NoError(t, store.AppendToArray(ctx, "questions", id, "answers", storage.Fields{"text": "first"}))
	require.NoError(t, store.AppendToArray(ctx, "questions", id, "answers", map[string]any{"text": "second"}))

	doc, err := store.Get(ctx, "questions", id)
	require.NoError(t, err)
	answers := doc.Fields["answers"].([]any)
	require.Len(t, answers, 2)
	assert.Equal(t, "first", answers[0].(map[string]any)["text"])
	assert.Equal(t, "second", answers[1].(map[string]any)["text"])
}

func TestStore_AppendToArray_MissingFieldCreatesArray(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "questions", storage.Fields{"text": "Q"})
	require.NoError(t, err)
	require.NoError(t, store.AppendToArray(ctx, "questions", id, "answers", "x"))

	doc, err := store.Get(ctx, "questions", id)
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, doc.Fields["answers"])
}

func TestStore_AppendToArray_Errors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.AppendToArray(ctx, "questions", "non-existent-id", "answers", "x")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	id, err := store.Create(ctx, "questions", storage.Fields{"text": "Q"})
	require.NoError(t, err)
	err = store.AppendToArray(ctx, "questions", id, "text", "x")
	assert.ErrorIs(t, err, storage.ErrNotAnArray)
}

func TestStore_Create_EmptyCollection(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Create(context.Background(), "", storage.Fields{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestStore_SubscribeOrdered_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got := &snapshots{}
	unsub, err := store.SubscribeOrdered(ctx, "questions", "createdAt", storage.Descending, got.add)
	require.NoError(t, err)
	defer unsub()

	// Первый снимок - пустая коллекция
	require.Eventually(t, func() bool { return got.count() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, got.last())

	first, err := store.Create(ctx, "questions", storage.Fields{"text": "first", "createdAt": storage.ServerTimestamp})
	require.NoError(t, err)
	second, err := store.Create(ctx, "questions", storage.Fields{"text": "second", "createdAt": storage.ServerTimestamp})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(got.last()) == 2 }, time.Second, 5*time.Millisecond)
	last := got.last()
	assert.Equal(t, second, last[0].ID)
	assert.Equal(t, first, last[1].ID)
}

func TestStore_SubscribeOrdered_SeesAppends(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "questions", storage.Fields{"text": "Q", "answers": []any{}})
	require.NoError(t, err)

	got := &snapshots{}
	unsub, err := store.SubscribeOrdered(ctx, "questions", "createdAt", storage.Descending, got.add)
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, store.AppendToArray(ctx, "questions", id, "answers", map[string]any{"text": "A"}))
	require.Eventually(t, func() bool {
		last := got.last()
		return len(last) == 1 && len(last[0].Fields["answers"].([]any)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStore_Unsubscribe_StopsDelivery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got := &snapshots{}
	unsub, err := store.SubscribeOrdered(ctx, "questions", "createdAt", storage.Descending, got.add)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return got.count() == 1 }, time.Second, 5*time.Millisecond)

	unsub()
	require.Eventually(t, func() bool { return store.feed.Subscribers("questions") == 0 }, time.Second, 5*time.Millisecond)

	_, err = store.Create(ctx, "questions", storage.Fields{"text": "late"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, got.count())
}

func TestStore_SnapshotIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "questions", storage.Fields{"text": "Q", "answers": []any{}})
	require.NoError(t, err)

	before, err := store.Get(ctx, "questions", id)
	require.NoError(t, err)
	require.NoError(t, store.AppendToArray(ctx, "questions", id, "answers", "A"))

	// Выданная ранее копия не меняется
	assert.Empty(t, before.Fields["answers"])
}
