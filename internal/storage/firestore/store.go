// Package firestore реализует документное хранилище поверх Cloud Firestore.
// Живые снимки, ArrayUnion и ServerTimestamp берутся из самого Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/UkralStul/salon-qa-board/internal/storage"
)

// Store реализует интерфейс Storage с использованием Firestore.
type Store struct {
	client *firestore.Client
	log    *zap.Logger
}

// New создаёт клиента проекта. При заданном FIRESTORE_EMULATOR_HOST
// клиент сам подключается к эмулятору.
func New(ctx context.Context, projectID, credentialsFile string, log *zap.Logger) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return NewWithClient(client, log), nil
}

// NewWithClient оборачивает готового клиента.
func NewWithClient(client *firestore.Client, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{client: client, log: log}
}

var _ storage.Storage = (*Store)(nil)

func (s *Store) Create(ctx context.Context, collection string, doc storage.Fields) (string, error) {
	if collection == "" {
		return "", fmt.Errorf("%w: empty collection name", storage.ErrInvalidInput)
	}
	ref, _, err := s.client.Collection(collection).Add(ctx, toFirestore(doc))
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// AppendToArray использует ArrayUnion. Firestore не добавляет элемент,
// полностью совпадающий с уже лежащим в массиве.
func (s *Store) AppendToArray(ctx context.Context, collection, id, field string, value any) error {
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, []firestore.Update{
		{Path: field, Value: firestore.ArrayUnion(toFirestoreValue(value))},
	})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	return err
}

func (s *Store) SubscribeOrdered(ctx context.Context, collection, sortKey string, dir storage.Direction, fn storage.SnapshotFunc) (storage.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)

	direction := firestore.Asc
	if dir == storage.Descending {
		direction = firestore.Desc
	}
	it := s.client.Collection(collection).OrderBy(sortKey, direction).Snapshots(ctx)

	go func() {
		defer cancel()
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					s.log.Warn("snapshot listener stopped", zap.String("collection", collection), zap.Error(err))
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				s.log.Warn("read snapshot documents", zap.String("collection", collection), zap.Error(err))
				continue
			}
			out := make([]storage.Document, 0, len(docs))
			for _, d := range docs {
				out = append(out, storage.Document{ID: d.Ref.ID, Fields: storage.Fields(fromFirestore(d.Data()))})
			}
			if ctx.Err() != nil {
				return
			}
			fn(out)
		}
	}()

	return func() { cancel() }, nil
}

func (s *Store) Close(ctx context.Context) error {
	err := s.client.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// toFirestore заменяет маркер storage.ServerTimestamp на firestore.ServerTimestamp.
func toFirestore(doc storage.Fields) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = toFirestoreValue(v)
	}
	return out
}

func toFirestoreValue(v any) interface{} {
	switch val := v.(type) {
	case storage.Fields:
		return toFirestore(val)
	case map[string]any:
		return toFirestore(storage.Fields(val))
	case []any:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = toFirestoreValue(item)
		}
		return out
	case *string:
		if val == nil {
			return nil
		}
		return *val
	default:
		if storage.IsServerTimestamp(v) {
			return firestore.ServerTimestamp
		}
		return v
	}
}

// fromFirestore копирует данные снимка, нормализуя вложенные массивы.
func fromFirestore(data map[string]interface{}) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = fromFirestoreValue(v)
	}
	return out
}

func fromFirestoreValue(v interface{}) any {
	switch val := v.(type) {
	case map[string]interface{}:
		return fromFirestore(val)
	case []interface{}:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromFirestoreValue(item)
		}
		return out
	default:
		return v
	}
}
