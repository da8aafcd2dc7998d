package domain

import "time"

// Question представляет вопрос на доске.
// Text и AuthorLabel не меняются после создания, растёт только Answers.
type Question struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Answers     []Answer  `json:"answers"`
	CreatedAt   time.Time `json:"createdAt"`
	AuthorID    *string   `json:"authorId,omitempty"`
	AuthorLabel string    `json:"authorLabel"`
	IsAnonymous bool      `json:"isAnonymous"`
}

// Answer представляет ответ, встроенный в документ вопроса.
// ID уникален только в пределах вопроса, CreatedAt берётся с часов клиента.
type Answer struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
	AuthorID    *string   `json:"authorId,omitempty"`
	AuthorLabel string    `json:"authorLabel"`
	IsAnonymous bool      `json:"isAnonymous"`
}

// Имена полей документа вопроса в хранилище.
const (
	QuestionsCollection = "questions"

	FieldID          = "id"
	FieldText        = "text"
	FieldAnswers     = "answers"
	FieldCreatedAt   = "createdAt"
	FieldAuthorID    = "authorId"
	FieldAuthorLabel = "authorLabel"
	FieldIsAnonymous = "isAnonymous"
)
