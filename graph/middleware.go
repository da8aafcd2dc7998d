package graph

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type contextKey string

const visitorKey = contextKey("visitor")

// Middleware создаёт посетителя на время websocket-подключения и кладёт
// его в контекст запроса. Остальные запросы проходят без посетителя.
func Middleware(newVisitor Factory, log *zap.Logger, next http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		v, err := newVisitor(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			log.Error("create visitor failed", zap.Error(err))
			http.Error(w, "board is unavailable", http.StatusServiceUnavailable)
			return
		}
		defer v.Close()

		connLog := log.With(zap.String("remote", r.RemoteAddr))
		connLog.Info("visitor connected")
		defer connLog.Info("visitor disconnected")

		// Обработчик websocket не возвращается, пока соединение открыто
		next.ServeHTTP(w, r.WithContext(WithVisitor(r.Context(), v)))
	})
}

// WithVisitor кладёт посетителя в контекст.
func WithVisitor(ctx context.Context, v Visitor) context.Context {
	return context.WithValue(ctx, visitorKey, v)
}

// ForContext достаёт посетителя текущего подключения.
func ForContext(ctx context.Context) (Visitor, error) {
	v, ok := ctx.Value(visitorKey).(Visitor)
	if !ok {
		return nil, ErrNoVisitor
	}
	return v, nil
}
