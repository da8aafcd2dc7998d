package board

import (
	"fmt"
	"time"

	"github.com/UkralStul/salon-qa-board/internal/domain"
	"github.com/UkralStul/salon-qa-board/internal/storage"
)

// questionFields собирает документ нового вопроса.
func questionFields(text string, author domain.AuthorFields) storage.Fields {
	return storage.Fields{
		domain.FieldText:        text,
		domain.FieldAnswers:     []any{},
		domain.FieldCreatedAt:   storage.ServerTimestamp,
		domain.FieldAuthorID:    authorIDValue(author.AuthorID),
		domain.FieldAuthorLabel: author.AuthorLabel,
		domain.FieldIsAnonymous: author.IsAnonymous,
	}
}

// answerValue собирает элемент массива answers. Время берётся с часов клиента.
func answerValue(id, text string, createdAt time.Time, author domain.AuthorFields) map[string]any {
	return map[string]any{
		domain.FieldID:          id,
		domain.FieldText:        text,
		domain.FieldCreatedAt:   createdAt,
		domain.FieldAuthorID:    authorIDValue(author.AuthorID),
		domain.FieldAuthorLabel: author.AuthorLabel,
		domain.FieldIsAnonymous: author.IsAnonymous,
	}
}

func authorIDValue(id *string) any {
	if id == nil {
		return nil
	}
	return *id
}

func decodeQuestion(doc storage.Document) (domain.Question, error) {
	f := doc.Fields
	q := domain.Question{ID: doc.ID}

	var err error
	if q.Text, err = stringField(f, domain.FieldText); err != nil {
		return q, err
	}
	if q.AuthorLabel, err = stringField(f, domain.FieldAuthorLabel); err != nil {
		return q, err
	}
	if q.CreatedAt, err = timeField(f, domain.FieldCreatedAt); err != nil {
		return q, err
	}
	if q.AuthorID, err = optionalString(f, domain.FieldAuthorID); err != nil {
		return q, err
	}
	q.IsAnonymous = isAnonymous(q.AuthorID)

	q.Answers = []domain.Answer{}
	switch raw := f[domain.FieldAnswers].(type) {
	case nil:
	case []any:
		for i, item := range raw {
			m, ok := asMap(item)
			if !ok {
				return q, fmt.Errorf("answers[%d]: unexpected type %T", i, item)
			}
			a, err := decodeAnswer(m)
			if err != nil {
				return q, fmt.Errorf("answers[%d]: %w", i, err)
			}
			q.Answers = append(q.Answers, a)
		}
	default:
		return q, fmt.Errorf("answers: unexpected type %T", raw)
	}
	return q, nil
}

func decodeAnswer(f map[string]any) (domain.Answer, error) {
	var a domain.Answer
	var err error
	if a.ID, err = stringField(f, domain.FieldID); err != nil {
		return a, err
	}
	if a.Text, err = stringField(f, domain.FieldText); err != nil {
		return a, err
	}
	if a.AuthorLabel, err = stringField(f, domain.FieldAuthorLabel); err != nil {
		return a, err
	}
	if a.CreatedAt, err = timeField(f, domain.FieldCreatedAt); err != nil {
		return a, err
	}
	if a.AuthorID, err = optionalString(f, domain.FieldAuthorID); err != nil {
		return a, err
	}
	a.IsAnonymous = isAnonymous(a.AuthorID)
	return a, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case storage.Fields:
		return m, true
	}
	return nil, false
}

func stringField(f map[string]any, key string) (string, error) {
	switch v := f[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("%s: unexpected type %T", key, v)
	}
}

func optionalString(f map[string]any, key string) (*string, error) {
	switch v := f[key].(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	default:
		return nil, fmt.Errorf("%s: unexpected type %T", key, v)
	}
}

// timeField принимает time.Time и строки RFC 3339 (так время лежит в jsonb).
// Отсутствующее значение - нулевое время.
func timeField(f map[string]any, key string) (time.Time, error) {
	switch v := f[key].(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", key, err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("%s: unexpected type %T", key, v)
	}
}

// isAnonymous выводит флаг только из authorId. Сохранённое поле isAnonymous
// не читается: без автора запись анонимна при любом его значении.
func isAnonymous(authorID *string) bool {
	return authorID == nil
}
