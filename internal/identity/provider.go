// Package identity - адаптер провайдера идентификации для одного посетителя.
package identity

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/UkralStul/salon-qa-board/internal/accounts"
	"github.com/UkralStul/salon-qa-board/internal/domain"
)

// User - вошедший пользователь, как его видит посетитель.
type User struct {
	ID    string
	Email string
}

// Provider - контракт провайдера идентификации.
// Результат SignIn/SignOut наблюдается только через OnStatusChange.
type Provider interface {
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	// OnStatusChange вызывает fn асинхронно: сразу после определения статуса
	// и после каждой его смены. nil означает "никто не вошёл".
	OnStatusChange(fn func(*User)) (unsubscribe func())
}

// Authenticator проверяет учётные данные и токены сессии.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (accounts.User, string, error)
	Restore(ctx context.Context, token string) (accounts.User, error)
}

// Session реализует Provider для одного подключения. Уведомления
// доставляются по очереди из отдельной горутины в порядке смены статуса.
type Session struct {
	auth Authenticator
	log  *zap.Logger

	mu        sync.Mutex
	resolved  bool
	user      *User
	token     string
	listeners map[int]func(*User)
	nextID    int

	qmu   sync.Mutex
	queue []func()
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

var _ Provider = (*Session)(nil)

// NewSession создаёт провайдера и определяет статус в фоне: по token
// восстанавливает вход, при пустом или негодном токене статус - nil.
func NewSession(ctx context.Context, auth Authenticator, token string, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		auth:      auth,
		log:       log,
		listeners: make(map[int]func(*User)),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go s.run()
	go s.resolve(ctx, token)
	return s
}

func (s *Session) resolve(ctx context.Context, token string) {
	var user *User
	if token != "" {
		u, err := s.auth.Restore(ctx, token)
		if err != nil {
			s.log.Info("session restore rejected", zap.Error(err))
			token = ""
		} else {
			user = &User{ID: u.ID, Email: u.Email}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// SignIn или SignOut успели раньше восстановления, их состояние новее
	if s.resolved {
		return
	}
	s.resolved = true
	s.user = user
	s.token = token
	s.broadcastLocked()
}

// SignIn проверяет пароль. Неверные данные - *domain.AuthError.
func (s *Session) SignIn(ctx context.Context, email, password string) error {
	u, token, err := s.auth.SignIn(ctx, email, password)
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		return &domain.AuthError{Err: err}
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.resolved = true
	s.user = &User{ID: u.ID, Email: u.Email}
	s.token = token
	s.broadcastLocked()
	s.mu.Unlock()
	return nil
}

// SignOut забывает пользователя и токен.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.resolved = true
	s.user = nil
	s.token = ""
	s.broadcastLocked()
	s.mu.Unlock()
	return nil
}

func (s *Session) OnStatusChange(fn func(*User)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	if s.resolved {
		user := copyUser(s.user)
		s.enqueue(func() { s.deliver(id, user) })
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Token возвращает токен текущего входа или пустую строку.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Close останавливает доставку уведомлений.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Session) broadcastLocked() {
	user := copyUser(s.user)
	for id := range s.listeners {
		id := id
		s.enqueue(func() { s.deliver(id, user) })
	}
}

// deliver вызывает слушателя, если он ещё подписан.
func (s *Session) deliver(id int, user *User) {
	s.mu.Lock()
	fn, ok := s.listeners[id]
	s.mu.Unlock()
	if ok {
		fn(user)
	}
}

func (s *Session) enqueue(f func()) {
	s.qmu.Lock()
	s.queue = append(s.queue, f)
	s.qmu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.qmu.Lock()
			if len(s.queue) == 0 {
				s.qmu.Unlock()
				break
			}
			f := s.queue[0]
			s.queue = s.queue[1:]
			s.qmu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			f()
		}
	}
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
