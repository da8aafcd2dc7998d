package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
)

// MinPasswordLen - минимальная длина пароля при регистрации.
const MinPasswordLen = 8

// Service проверяет учётные данные и выпускает токены сессии.
type Service struct {
	store  UserStore
	tokens *Tokens
	loader *Loader
	cost   int
}

// NewService создает сервис учётных записей.
func NewService(store UserStore, tokens *Tokens, loader *Loader) *Service {
	return &Service{store: store, tokens: tokens, loader: loader, cost: bcrypt.DefaultCost}
}

// WithHashCost меняет стоимость bcrypt (в тестах - bcrypt.MinCost).
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// SignUp создаёт учётную запись.
func (s *Service) SignUp(ctx context.Context, email, password string) (User, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || strings.ContainsAny(email, " <>") {
		return User{}, ErrInvalidEmail
	}
	if len(password) < MinPasswordLen {
		return User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.CreateUser(ctx, User{Email: email, PasswordHash: string(hash)}); err != nil {
		return User{}, err
	}
	return s.store.GetUserByEmail(ctx, email)
}

// SignIn проверяет пароль и возвращает пользователя вместе с токеном сессии.
func (s *Service) SignIn(ctx context.Context, email, password string) (User, string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return User{}, "", ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return User{}, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}

// Restore проверяет токен и перечитывает пользователя через лоадер.
func (s *Service) Restore(ctx context.Context, token string) (User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return User{}, err
	}
	user, err := s.loader.Load(ctx, claims.UID)
	if err != nil {
		return User{}, fmt.Errorf("restore session: %w", err)
	}
	return user, nil
}
