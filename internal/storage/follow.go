package storage

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// QueryFunc читает полный упорядоченный снимок коллекции.
type QueryFunc func(ctx context.Context) ([]Document, error)

// Follow выполняет query сразу и после каждого сигнала из signals, отдавая
// снимки в fn. Сигналы, пришедшие во время чтения, сливаются в одно
// перечитывание, поэтому fn всегда видит последний полный снимок.
// Горутина завершается при отмене ctx или закрытии signals; cancel должен
// отменять ctx, на котором получены signals.
func Follow(ctx context.Context, cancel context.CancelFunc, signals <-chan struct{}, query QueryFunc, fn SnapshotFunc, log *zap.Logger) Unsubscribe {
	if log == nil {
		log = zap.NewNop()
	}

	go func() {
		defer cancel()

		deliver := func() {
			docs, err := query(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("snapshot query failed", zap.Error(err))
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
			fn(docs)
		}

		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }
}
