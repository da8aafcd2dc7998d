package domain

import "strings"

// Author - контекст автора записи: либо вошедший пользователь, либо аноним с именем.
type Author interface {
	isAuthor()
}

// Authenticated - автор, подтверждённый провайдером идентификации.
type Authenticated struct {
	ID    string
	Email string
}

// Anonymous - автор без учётной записи, назвавшийся при отправке.
type Anonymous struct {
	DisplayName string
}

func (Authenticated) isAuthor() {}
func (Anonymous) isAuthor()     {}

// AuthorFields - поля автора, одинаковые для вопроса и ответа.
type AuthorFields struct {
	AuthorID    *string
	AuthorLabel string
	IsAnonymous bool
}

// Project превращает контекст автора в поля документа.
// IsAnonymous истинно тогда и только тогда, когда AuthorID == nil.
func Project(a Author) AuthorFields {
	switch v := a.(type) {
	case Authenticated:
		id := v.ID
		return AuthorFields{AuthorID: &id, AuthorLabel: v.Email}
	case *Authenticated:
		return Project(*v)
	case Anonymous:
		return AuthorFields{AuthorLabel: strings.TrimSpace(v.DisplayName), IsAnonymous: true}
	case *Anonymous:
		return Project(*v)
	default:
		return AuthorFields{IsAnonymous: true}
	}
}

// ValidateAuthor проверяет, что от имени автора можно писать.
func ValidateAuthor(a Author) error {
	switch v := a.(type) {
	case Authenticated:
		if v.ID == "" {
			return &ValidationError{Field: "author", Reason: "missing user id"}
		}
		return nil
	case *Authenticated:
		if v == nil {
			break
		}
		return ValidateAuthor(*v)
	case Anonymous:
		if strings.TrimSpace(v.DisplayName) == "" {
			return &ValidationError{Field: "displayName", Reason: "display name cannot be empty"}
		}
		return nil
	case *Anonymous:
		if v == nil {
			break
		}
		return ValidateAuthor(*v)
	}
	return &ValidationError{Field: "author", Reason: "identity is not resolved"}
}
