// Package session отслеживает, кто сейчас пишет на доске: вошедший
// пользователь, аноним или пока неизвестно.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/UkralStul/salon-qa-board/internal/domain"
	"github.com/UkralStul/salon-qa-board/internal/identity"
)

// Kind - состояние идентификации посетителя.
type Kind int

const (
	Unresolved Kind = iota
	Authenticated
	Anonymous
)

func (k Kind) String() string {
	switch k {
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unresolved"
	}
}

// Identity - снимок состояния сессии.
type Identity struct {
	Kind   Kind
	UserID string
	Email  string
}

// State - компонент состояния сессии. Локальное состояние меняется
// только из уведомлений провайдера.
type State struct {
	provider identity.Provider

	mu          sync.Mutex
	identity    Identity
	displayName string
	onChange    func()
	unsubscribe func()
}

// New создаёт состояние в Unresolved и подписывается на провайдера.
func New(provider identity.Provider) *State {
	s := &State{provider: provider}
	s.unsubscribe = provider.OnStatusChange(s.onIdentityChange)
	return s
}

// OnChange задаёт функцию, которую вызывают после каждой смены идентичности.
func (s *State) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *State) onIdentityChange(user *identity.User) {
	s.mu.Lock()
	prev := s.identity.Kind
	if user != nil {
		s.identity = Identity{Kind: Authenticated, UserID: user.ID, Email: user.Email}
	} else {
		s.identity = Identity{Kind: Anonymous}
		if prev == Authenticated {
			s.displayName = ""
		}
	}
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Identity возвращает текущий снимок.
func (s *State) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Loading истинно, пока провайдер не прислал первый статус.
func (s *State) Loading() bool {
	return s.Identity().Kind == Unresolved
}

// NeedsDisplayName - нужно ли показывать поле имени.
func (s *State) NeedsDisplayName() bool {
	return s.Identity().Kind == Anonymous
}

// DisplayName - последнее имя, под которым аноним успешно писал.
func (s *State) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

// RememberDisplayName запоминает имя анонима для следующих форм.
func (s *State) RememberDisplayName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity.Kind == Anonymous {
		s.displayName = strings.TrimSpace(name)
	}
}

// CanSubmit истинно, если посетитель вошёл или ввёл непустое имя.
func (s *State) CanSubmit(displayName string) bool {
	switch s.Identity().Kind {
	case Authenticated:
		return true
	case Anonymous:
		return strings.TrimSpace(displayName) != ""
	default:
		return false
	}
}

// Author проецирует сессию в контекст автора записи.
func (s *State) Author(displayName string) (domain.Author, error) {
	id := s.Identity()
	switch id.Kind {
	case Authenticated:
		return domain.Authenticated{ID: id.UserID, Email: id.Email}, nil
	case Anonymous:
		a := domain.Anonymous{DisplayName: strings.TrimSpace(displayName)}
		if err := domain.ValidateAuthor(a); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, &domain.ValidationError{Field: "author", Reason: "identity is not resolved"}
	}
}

// SignIn передаёт вход провайдеру.
func (s *State) SignIn(ctx context.Context, email, password string) error {
	return s.provider.SignIn(ctx, email, password)
}

// SignOut передаёт выход провайдеру. Состояние сменится, когда
// провайдер сообщит nil.
func (s *State) SignOut(ctx context.Context) error {
	return s.provider.SignOut(ctx)
}

// Close отписывается от провайдера.
func (s *State) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.onChange = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}
