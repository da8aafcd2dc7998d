package changefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis рассылает сигналы через Redis pub/sub, чтобы подписчики
// на других экземплярах сервера видели записи этого экземпляра.
type Redis struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

// NewRedis подключается к Redis по URL и проверяет соединение.
func NewRedis(redisURL string, log *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisWithClient(client, log), nil
}

// NewRedisWithClient создаёт ленту поверх готового клиента.
func NewRedisWithClient(client *redis.Client, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{client: client, prefix: "qaboard:changes:", log: log}
}

func (r *Redis) channel(topic string) string {
	return r.prefix + topic
}

// Publish отправляет сигнал в канал топика.
func (r *Redis) Publish(ctx context.Context, topic string) error {
	if err := r.client.Publish(ctx, r.channel(topic), "changed").Err(); err != nil {
		return fmt.Errorf("publish change for %s: %w", topic, err)
	}
	return nil
}

// Subscribe подписывается на канал топика до отмены ctx.
// Подписка подтверждается до возврата, чтобы не пропустить первую публикацию.
func (r *Redis) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	pubsub := r.client.Subscribe(ctx, r.channel(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					r.log.Warn("redis change channel closed", zap.String("topic", topic))
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

// Close закрывает клиента Redis.
func (r *Redis) Close() error {
	return r.client.Close()
}
