package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader"
)

// Loader собирает поиски пользователей по ID из параллельных подключений
// в один запрос к хранилищу.
type Loader struct {
	loader *dataloader.Loader
}

// NewLoader создаёт лоадер без кэша: данные пользователя читаются заново при каждом восстановлении.
func NewLoader(store UserStore, wait time.Duration) *Loader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := keys.Keys()

		users, err := store.GetUsersByIDs(ctx, ids)
		if err != nil {
			// В случае ошибки возвращаем ее для всех ключей
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Результаты в том же порядке, что и ключи
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			u, ok := users[id]
			if !ok {
				results[i] = &dataloader.Result{Error: fmt.Errorf("%s: %w", id, ErrUserNotFound)}
				continue
			}
			results[i] = &dataloader.Result{Data: u}
		}
		return results
	}

	return &Loader{
		loader: dataloader.NewBatchedLoader(batchFn,
			dataloader.WithWait(wait),
			dataloader.WithCache(&dataloader.NoCache{}),
		),
	}
}

// Load возвращает пользователя по ID.
func (l *Loader) Load(ctx context.Context, id string) (User, error) {
	v, err := l.loader.Load(ctx, dataloader.StringKey(id))()
	if err != nil {
		return User{}, err
	}
	return v.(User), nil
}
