// graph/resolver.go

package graph

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/UkralStul/salon-qa-board/internal/visitor"
)

// Visitor - то, чем управляет одно подключение.
type Visitor interface {
	View() visitor.View
	Updates() <-chan struct{}
	SubmitQuestion(ctx context.Context, displayName, text string) error
	SubmitAnswer(ctx context.Context, questionID, displayName, text string) error
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	DismissNotice()
	Close()
}

// Factory создаёт посетителя для нового подключения. token - сохранённый
// браузером токен сессии, может быть пустым.
type Factory func(ctx context.Context, token string) (Visitor, error)

// ErrNoVisitor - запрос пришёл не через websocket-подключение посетителя.
var ErrNoVisitor = errors.New("no visitor for this connection, connect over websocket")

// Resolver - это корневая структура резолвера.
// Посетителя резолверы берут из контекста запроса, его кладёт Middleware.
type Resolver struct {
	Log *zap.Logger
}

func (r *Resolver) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
