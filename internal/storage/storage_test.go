package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolveServerTimestamps(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	in := Fields{
		"text":      "Can I dye bleached hair?",
		"createdAt": ServerTimestamp,
		"answers":   []any{map[string]any{"id": "1", "createdAt": ServerTimestamp}},
	}

	out := ResolveServerTimestamps(in, now)
	assert.Equal(t, now, out["createdAt"])
	answers := out["answers"].([]any)
	assert.Equal(t, now, answers[0].(map[string]any)["createdAt"])

	// Исходный документ не меняется
	assert.True(t, IsServerTimestamp(in["createdAt"]))
}

func TestCloneValue_IsDeep(t *testing.T) {
	orig := map[string]any{"answers": []any{map[string]any{"text": "a"}}}
	cp := CloneValue(orig).(map[string]any)
	cp["answers"].([]any)[0].(map[string]any)["text"] = "changed"
	assert.Equal(t, "a", orig["answers"].([]any)[0].(map[string]any)["text"])
}

func TestSortDocuments_Descending(t *testing.T) {
	t10 := time.Unix(10, 0)
	t20 := time.Unix(20, 0)
	docs := []Document{
		{ID: "q1", Fields: Fields{"createdAt": t10}},
		{ID: "q2", Fields: Fields{"createdAt": t20}},
		{ID: "q0", Fields: Fields{}},
	}
	SortDocuments(docs, "createdAt", Descending)
	assert.Equal(t, []string{"q2", "q1", "q0"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})

	SortDocuments(docs, "createdAt", Ascending)
	assert.Equal(t, []string{"q0", "q1", "q2"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})
}

func TestCompareValues_Mixed(t *testing.T) {
	assert.Equal(t, -1, CompareValues(int64(1), 2.5))
	assert.Equal(t, 1, CompareValues("b", "a"))
	assert.Equal(t, 0, CompareValues(nil, nil))
}

func TestFollow_DeliversInitialAndOnSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan struct{}, 1)

	var calls atomic.Int32
	query := func(ctx context.Context) ([]Document, error) {
		n := calls.Add(1)
		return []Document{{ID: "q", Fields: Fields{"n": n}}}, nil
	}

	var mu sync.Mutex
	var got []int32
	unsub := Follow(ctx, cancel, signals, query, func(docs []Document) {
		mu.Lock()
		got = append(got, docs[0].Fields["n"].(int32))
		mu.Unlock()
	}, zap.NewNop())
	defer unsub()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	signals <- struct{}{}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2 && got[1] == 2
	}, time.Second, 5*time.Millisecond)
}

func TestFollow_StopsAfterUnsubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan struct{}, 1)

	var delivered atomic.Int32
	unsub := Follow(ctx, cancel, signals, func(ctx context.Context) ([]Document, error) {
		return nil, nil
	}, func([]Document) { delivered.Add(1) }, nil)

	require.Eventually(t, func() bool { return delivered.Load() == 1 }, time.Second, 5*time.Millisecond)
	unsub()
	unsub()

	select {
	case signals <- struct{}{}:
	default:
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), delivered.Load())
}

func TestFollow_QueryErrorSkipsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan struct{})

	var delivered atomic.Int32
	var queried atomic.Int32
	Follow(ctx, cancel, signals, func(ctx context.Context) ([]Document, error) {
		queried.Add(1)
		return nil, errors.New("boom")
	}, func([]Document) { delivered.Add(1) }, zap.NewNop())

	require.Eventually(t, func() bool { return queried.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), delivered.Load())
}
