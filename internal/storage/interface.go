package storage

import (
	"context"
	"errors"
)

// Direction - направление сортировки подписки.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Fields - содержимое документа. Значения: string, bool, nil, числа,
// time.Time, []any и map[string]any (вложенные документы).
type Fields map[string]any

// Document - документ коллекции вместе с идентификатором, назначенным хранилищем.
type Document struct {
	ID     string
	Fields Fields
}

// SnapshotFunc получает полный упорядоченный набор документов при каждом изменении.
type SnapshotFunc func(docs []Document)

// Unsubscribe останавливает подписку. Повторный вызов безопасен.
type Unsubscribe func()

type serverTimestamp struct{}

// ServerTimestamp - маркер поля, которое хранилище заполнит своим временем при записи.
var ServerTimestamp = serverTimestamp{}

// IsServerTimestamp сообщает, является ли значение маркером ServerTimestamp.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

var (
	ErrNotFound     = errors.New("document not found")
	ErrNotAnArray   = errors.New("field is not an array")
	ErrInvalidInput = errors.New("invalid document")
)

// Storage определяет контракт документного хранилища.
type Storage interface {
	// SubscribeOrdered доставляет текущий снимок коллекции, отсортированный по sortKey,
	// и новый полный снимок после каждого изменения. Подписка живёт до вызова
	// Unsubscribe или отмены ctx.
	SubscribeOrdered(ctx context.Context, collection, sortKey string, dir Direction, fn SnapshotFunc) (Unsubscribe, error)

	// Create добавляет документ и возвращает назначенный хранилищем идентификатор.
	Create(ctx context.Context, collection string, doc Fields) (string, error)

	// AppendToArray атомарно дописывает value в конец массива field.
	AppendToArray(ctx context.Context, collection, id, field string, value any) error

	Close(ctx context.Context) error
}
