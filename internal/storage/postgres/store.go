package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/UkralStul/salon-qa-board/internal/changefeed"
	"github.com/UkralStul/salon-qa-board/internal/storage"
)

// TimeLayout - формат времени внутри jsonb. Фиксированная ширина даёт
// правильный порядок при сортировке по строке.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// documentRow - строка таблицы документов. Содержимое хранится в jsonb.
type documentRow struct {
	Collection string    `gorm:"primaryKey;type:varchar(128)"`
	ID         string    `gorm:"primaryKey;type:uuid"`
	Data       []byte    `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time `gorm:"not null;default:now()"`
}

func (documentRow) TableName() string { return "documents" }

// Store реализует интерфейс Storage с использованием PostgreSQL.
// Подписчики узнают об изменениях через changefeed.Feed.
type Store struct {
	db   *gorm.DB
	feed changefeed.Feed
	log  *zap.Logger
}

// New создает новый экземпляр хранилища PostgreSQL.
func New(dsn string, feed changefeed.Feed, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewWithDB(db, feed, log)
}

// NewWithDB создаёт хранилище поверх готового соединения и выполняет миграцию.
func NewWithDB(db *gorm.DB, feed changefeed.Feed, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if feed == nil {
		feed = changefeed.NewObserver()
	}
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db, feed: feed, log: log}, nil
}

var _ storage.Storage = (*Store)(nil)

func (s *Store) Create(ctx context.Context, collection string, doc storage.Fields) (string, error) {
	if collection == "" {
		return "", fmt.Errorf("%w: empty collection name", storage.ErrInvalidInput)
	}

	// Поля верхнего уровня с ServerTimestamp заполняет сама база в момент записи
	plain := make(storage.Fields, len(doc))
	var stamped []string
	for k, v := range doc {
		if storage.IsServerTimestamp(v) {
			stamped = append(stamped, k)
			continue
		}
		plain[k] = v
	}
	sort.Strings(stamped)

	data, err := json.Marshal(EncodeValue(storage.ResolveServerTimestamps(plain, time.Now().UTC())))
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	id := uuid.NewString()
	sql, args := insertSQL(collection, id, data, stamped)
	if err := s.db.WithContext(ctx).Exec(sql, args...).Error; err != nil {
		return "", err
	}
	s.notify(ctx, collection)
	return id, nil
}

// dbNow - время сервера базы в формате TimeLayout.
const dbNow = `to_jsonb(to_char(clock_timestamp() AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"000Z"'))`

// insertSQL строит INSERT, в котором поля stamped получают время базы.
func insertSQL(collection, id string, data []byte, stamped []string) (string, []interface{}) {
	expr := "?::jsonb"
	args := []interface{}{collection, id, string(data)}
	for _, key := range stamped {
		expr += " || jsonb_build_object(?::text, " + dbNow + ")"
		args = append(args, key)
	}
	sql := "INSERT INTO documents (collection, id, data, created_at) VALUES (?, ?, " + expr + ", clock_timestamp())"
	return sql, args
}

func (s *Store) AppendToArray(ctx context.Context, collection, id, field string, value any) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	item, err := json.Marshal(EncodeValue(storage.ResolveValue(value, time.Now().UTC())))
	if err != nil {
		return fmt.Errorf("encode array item: %w", err)
	}

	// Одна команда UPDATE: дописывание атомарно без чтения-изменения-записи
	res := s.db.WithContext(ctx).Exec(`
		UPDATE documents
		SET data = jsonb_set(data, ARRAY[?]::text[], COALESCE(NULLIF(data->?, 'null'::jsonb), '[]'::jsonb) || jsonb_build_array(?::jsonb), true)
		WHERE collection = ? AND id = ? AND jsonb_typeof(COALESCE(NULLIF(data->?, 'null'::jsonb), '[]'::jsonb)) = 'array'`,
		field, field, string(item), collection, id, field)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&documentRow{}).
			Where("collection = ? AND id = ?", collection, id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
		}
		return fmt.Errorf("%s/%s.%s: %w", collection, id, field, storage.ErrNotAnArray)
	}
	s.notify(ctx, collection)
	return nil
}

func (s *Store) SubscribeOrdered(ctx context.Context, collection, sortKey string, dir storage.Direction, fn storage.SnapshotFunc) (storage.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	signals, err := s.feed.Subscribe(ctx, collection)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}
	query := func(ctx context.Context) ([]storage.Document, error) {
		return s.query(ctx, collection, sortKey, dir)
	}
	return storage.Follow(ctx, cancel, signals, query, fn, s.log), nil
}

func (s *Store) query(ctx context.Context, collection, sortKey string, dir storage.Direction) ([]storage.Document, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:  orderSQL(dir),
			Vars: []interface{}{sortKey},
		}}).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	docs := make([]storage.Document, 0, len(rows))
	for _, r := range rows {
		var fields map[string]any
		if err := json.Unmarshal(r.Data, &fields); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", r.ID, err)
		}
		docs = append(docs, storage.Document{ID: r.ID, Fields: storage.Fields(fields)})
	}
	return docs, nil
}

// orderSQL сортирует по ключу документа. Отсутствующий ключ меньше любого
// значения, как в storage.CompareValues.
func orderSQL(dir storage.Direction) string {
	if dir == storage.Descending {
		return "data->>? DESC NULLS LAST, created_at DESC"
	}
	return "data->>? ASC NULLS FIRST, created_at ASC"
}

// notify сообщает подписчикам об изменении. Ошибка ленты не отменяет запись.
func (s *Store) notify(ctx context.Context, collection string) {
	if err := s.feed.Publish(ctx, collection); err != nil {
		s.log.Warn("publish change failed", zap.String("collection", collection), zap.Error(err))
	}
}

func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EncodeValue приводит значение документа к виду для jsonb: время
// записывается строкой TimeLayout в UTC.
func EncodeValue(v any) any {
	switch val := v.(type) {
	case storage.Fields:
		return EncodeValue(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = EncodeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = EncodeValue(item)
		}
		return out
	case time.Time:
		return val.UTC().Format(TimeLayout)
	default:
		return v
	}
}
