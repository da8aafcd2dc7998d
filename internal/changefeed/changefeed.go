// Package changefeed доставляет сигналы "коллекция изменилась" подписчикам хранилища.
package changefeed

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Feed - публикация и подписка на сигналы изменения по топику (имени коллекции).
// Сигнал не несёт данных: подписчик сам перечитывает снимок, поэтому
// пропущенные промежуточные сигналы не теряют изменений.
type Feed interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, error)
}

// Observer хранит каналы подписчиков внутри процесса.
type Observer struct {
	mu sync.RWMutex
	//          map[topic] map[subscriberID] channel
	subs map[string]map[string]chan struct{}
}

// NewObserver - конструктор наблюдателя.
func NewObserver() *Observer {
	return &Observer{
		subs: make(map[string]map[string]chan struct{}),
	}
}

// Publish будит всех подписчиков топика. Если у подписчика уже лежит
// непрочитанный сигнал, новый не нужен.
func (o *Observer) Publish(ctx context.Context, topic string) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, ch := range o.subs[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribe регистрирует подписчика до отмены ctx. Канал закрывается после отписки.
func (o *Observer) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	subID := uuid.NewString()

	o.mu.Lock()
	if o.subs[topic] == nil {
		o.subs[topic] = make(map[string]chan struct{})
	}
	o.subs[topic][subID] = ch
	o.mu.Unlock()

	// Очистка при отмене подписки
	go func() {
		<-ctx.Done()
		o.mu.Lock()
		if topicSubs, ok := o.subs[topic]; ok {
			delete(topicSubs, subID)
			if len(topicSubs) == 0 {
				delete(o.subs, topic)
			}
		}
		o.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Subscribers возвращает число активных подписчиков топика.
func (o *Observer) Subscribers(topic string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs[topic])
}
