package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.True(t, ok, "channel closed before signal")
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal received")
	}
}

func TestObserver_PublishWakesSubscribers(t *testing.T) {
	o := NewObserver()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := o.Subscribe(ctx, "questions")
	require.NoError(t, err)
	b, err := o.Subscribe(ctx, "questions")
	require.NoError(t, err)

	require.NoError(t, o.Publish(ctx, "questions"))
	waitSignal(t, a)
	waitSignal(t, b)
}

func TestObserver_CoalescesPendingSignals(t *testing.T) {
	o := NewObserver()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := o.Subscribe(ctx, "questions")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, o.Publish(ctx, "questions"))
	}
	waitSignal(t, ch)
	select {
	case <-ch:
		t.Fatal("expected a single pending signal")
	default:
	}
}

func TestObserver_UnsubscribeOnCancel(t *testing.T) {
	o := NewObserver()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := o.Subscribe(ctx, "questions")
	require.NoError(t, err)
	assert.Equal(t, 1, o.Subscribers("questions"))

	cancel()
	require.Eventually(t, func() bool { return o.Subscribers("questions") == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestRedis_PublishSubscribe(t *testing.T) {
	s := miniredis.RunT(t)
	feed, err := NewRedis("redis://"+s.Addr(), zap.NewNop())
	require.NoError(t, err)
	defer feed.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Subscribe(ctx, "questions")
	require.NoError(t, err)

	require.NoError(t, feed.Publish(ctx, "questions"))
	waitSignal(t, ch)
}

func TestRedis_OtherTopicIgnored(t *testing.T) {
	s := miniredis.RunT(t)
	feed, err := NewRedis("redis://"+s.Addr(), zap.NewNop())
	require.NoError(t, err)
	defer feed.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Subscribe(ctx, "questions")
	require.NoError(t, err)

	require.NoError(t, feed.Publish(ctx, "accounts"))
	select {
	case <-ch:
		t.Fatal("unexpected signal for another topic")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis("not-a-url", zap.NewNop())
	assert.Error(t, err)
}
