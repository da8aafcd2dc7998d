// Package server собирает HTTP-роутер доски.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/UkralStul/salon-qa-board/graph"
	"github.com/UkralStul/salon-qa-board/internal/board"
	"github.com/UkralStul/salon-qa-board/internal/identity"
	"github.com/UkralStul/salon-qa-board/internal/logging"
	"github.com/UkralStul/salon-qa-board/internal/session"
	"github.com/UkralStul/salon-qa-board/internal/storage"
	"github.com/UkralStul/salon-qa-board/internal/visitor"
)

//go:embed index.html
var indexHTML []byte

// Deps - общие для всех посетителей зависимости, созданные один раз при старте.
type Deps struct {
	Store        storage.Storage
	Auth         identity.Authenticator
	Log          *zap.Logger
	MaxTextLen   int
	Location     *time.Location
	PingInterval time.Duration
}

// NewRouter возвращает роутер: страница, GraphQL и проверка здоровья.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = time.Local
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(logging.RequestLogger(d.Log))
	router.Use(middleware.Recoverer)

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	})
	router.Handle("/query", NewGraphQLHandler(d))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return router
}

// NewGraphQLHandler обслуживает /query. Подписка и мутации идут по одному
// websocket (graphql-transport-ws), посетитель живёт столько же, сколько соединение.
func NewGraphQLHandler(d Deps) http.Handler {
	schema := graph.NewExecutableSchema(graph.Config{Resolvers: &graph.Resolver{Log: d.Log}})

	srv := handler.New(schema)
	srv.AddTransport(transport.POST{})
	srv.AddTransport(&transport.Websocket{
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		KeepAlivePingInterval: d.PingInterval,
	})
	srv.SetRecoverFunc(func(ctx context.Context, err interface{}) error {
		d.Log.Error("graphql resolver panic", zap.Any("panic", err), zap.Stack("stack"))
		return errors.New("internal system error")
	})

	return graph.Middleware(NewVisitorFactory(d), d.Log, srv)
}

// NewVisitorFactory собирает для каждого подключения провайдера, сессию и доску.
func NewVisitorFactory(d Deps) graph.Factory {
	return func(ctx context.Context, token string) (graph.Visitor, error) {
		provider := identity.NewSession(ctx, d.Auth, token, d.Log)
		b := board.New(d.Store,
			board.WithLogger(d.Log),
			board.WithMaxTextLen(d.MaxTextLen),
		)
		v := visitor.New(session.New(provider), b,
			visitor.WithTokens(provider),
			visitor.WithLocation(d.Location),
			visitor.WithLogger(d.Log),
		)
		if err := b.Start(ctx); err != nil {
			v.Close()
			provider.Close()
			return nil, err
		}
		return &conn{Visitor: v, provider: provider}, nil
	}
}

// conn закрывает провайдера вместе с посетителем.
type conn struct {
	*visitor.Visitor
	provider *identity.Session
}

func (c *conn) Close() {
	c.Visitor.Close()
	c.provider.Close()
}
