// Package mongo реализует документное хранилище поверх MongoDB.
// Подписки построены на change streams, поэтому нужен replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/UkralStul/salon-qa-board/internal/storage"
)

// Store реализует интерфейс Storage с использованием MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

// Connect подключается к MongoDB и проверяет соединение.
func Connect(ctx context.Context, uri, database string, log *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := New(client.Database(database), log)
	s.client = client
	return s, nil
}

// New создаёт хранилище поверх готовой базы.
func New(db *mongo.Database, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

var _ storage.Storage = (*Store)(nil)

// Create вставляет документ через upsert, чтобы $currentDate проставил
// время сервера базы в поля с ServerTimestamp.
func (s *Store) Create(ctx context.Context, collection string, doc storage.Fields) (string, error) {
	if collection == "" {
		return "", fmt.Errorf("%w: empty collection name", storage.ErrInvalidInput)
	}

	set := bson.M{}
	currentDate := bson.M{}
	for k, v := range doc {
		if storage.IsServerTimestamp(v) {
			currentDate[k] = true
			continue
		}
		set[k] = storage.CloneValue(v)
	}

	id := primitive.NewObjectID()
	update := bson.M{"$setOnInsert": set}
	if len(currentDate) > 0 {
		update["$currentDate"] = currentDate
	}
	_, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return "", err
	}
	return id.Hex(), nil
}

// AppendToArray дописывает элемент оператором $push.
func (s *Store) AppendToArray(ctx context.Context, collection, id, field string, value any) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	coll := s.db.Collection(collection)
	item := storage.ResolveValue(value, time.Now().UTC())

	for attempt := 0; attempt < 2; attempt++ {
		res, err := coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$push": bson.M{field: item}})
		if err == nil {
			if res.MatchedCount == 0 {
				return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
			}
			return nil
		}
		if !isBadValue(err) {
			return err
		}

		// null считается пустым массивом
		res, err = coll.UpdateOne(ctx,
			bson.M{"_id": oid, field: nil},
			bson.M{"$set": bson.M{field: bson.A{item}}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 1 {
			return nil
		}
		// поле уже заполнил параллельный append, повторяем $push
	}
	return fmt.Errorf("%s/%s.%s: %w", collection, id, field, storage.ErrNotAnArray)
}

// isBadValue - код 2: $push в поле, которое не массив.
func isBadValue(err error) bool {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return false
	}
	for _, e := range we.WriteErrors {
		if e.Code == 2 {
			return true
		}
	}
	return false
}

// SubscribeOrdered слушает change stream коллекции и на каждое событие
// перечитывает её целиком.
func (s *Store) SubscribeOrdered(ctx context.Context, collection, sortKey string, dir storage.Direction, fn storage.SnapshotFunc) (storage.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	coll := s.db.Collection(collection)

	stream, err := coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", collection, err)
	}

	signals := make(chan struct{}, 1)
	go func() {
		defer close(signals)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			select {
			case signals <- struct{}{}:
			default:
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			s.log.Warn("change stream stopped", zap.String("collection", collection), zap.Error(err))
		}
	}()

	order := 1
	if dir == storage.Descending {
		order = -1
	}
	query := func(ctx context.Context) ([]storage.Document, error) {
		opts := options.Find().SetSort(bson.D{{Key: sortKey, Value: order}, {Key: "_id", Value: order}})
		cur, err := coll.Find(ctx, bson.M{}, opts)
		if err != nil {
			return nil, err
		}
		defer cur.Close(ctx)

		var raw []bson.M
		if err := cur.All(ctx, &raw); err != nil {
			return nil, err
		}
		docs := make([]storage.Document, 0, len(raw))
		for _, m := range raw {
			docs = append(docs, toDocument(m))
		}
		return docs, nil
	}
	return storage.Follow(ctx, cancel, signals, query, fn, s.log), nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func toDocument(m bson.M) storage.Document {
	var id string
	switch v := m["_id"].(type) {
	case primitive.ObjectID:
		id = v.Hex()
	default:
		id = fmt.Sprint(v)
	}
	delete(m, "_id")
	fields, _ := normalize(m).(map[string]any)
	return storage.Document{ID: id, Fields: storage.Fields(fields)}
}

// normalize приводит BSON-типы драйвера к простым типам Go.
func normalize(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.ObjectID:
		return val.Hex()
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	default:
		return v
	}
}
