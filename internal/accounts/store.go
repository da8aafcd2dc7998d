// Package accounts хранит учётные записи и проверяет email/пароль.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// User - учётная запись посетителя.
type User struct {
	ID           string    `json:"id" gorm:"type:uuid;primary_key"`
	Email        string    `json:"email" gorm:"type:varchar(320);not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// UserStore определяет контракт хранилища учётных записей.
type UserStore interface {
	CreateUser(ctx context.Context, user User) error
	GetUserByEmail(ctx context.Context, email string) (User, error)
	// GetUsersByIDs возвращает найденных пользователей; отсутствующих в карте нет.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]User, error)
}

// NormalizeEmail приводит адрес к виду для поиска.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryStore реализует UserStore в памяти.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

// NewMemoryStore создает пустое хранилище учётных записей.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := NormalizeEmail(user.Email)
	if _, ok := s.byEmail[email]; ok {
		return ErrEmailTaken
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = email
	s.byID[user.ID] = user
	s.byEmail[email] = user.ID
	return nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) GetUsersByIDs(ctx context.Context, ids []string) (map[string]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]User, len(ids))
	for _, id := range ids {
		if u, ok := s.byID[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// GormStore реализует UserStore с использованием PostgreSQL.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore подключается к PostgreSQL и мигрирует таблицу users.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewGormStoreWithDB(db)
}

// NewGormStoreWithDB использует готовое соединение.
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("failed to migrate users: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateUser(ctx context.Context, user User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = NormalizeEmail(user.Email)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrEmailTaken
		}
		return tx.Create(&user).Error
	})
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, "email = ?", NormalizeEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	return user, err
}

func (s *GormStore) GetUsersByIDs(ctx context.Context, ids []string) (map[string]User, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	out := make(map[string]User, len(valid))
	if len(valid) == 0 {
		return out, nil
	}

	var users []User
	if err := s.db.WithContext(ctx).Where("id IN ?", valid).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}
