package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/api/option"

	"github.com/UkralStul/salon-qa-board/internal/config"
)

// Виды хранилища учётных записей.
const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendMongo     = "mongo"
	BackendFirestore = "firestore"
)

// Backend выбирает хранилище учётных записей рядом с документами доски.
// Для постоянных хранилищ учётные записи тоже постоянны: useradd
// и сервер с одинаковыми настройками видят одних и тех же пользователей.
func Backend(cfg config.Config, storageType string) (string, error) {
	switch storageType {
	case config.StorageInMemory:
		return BackendMemory, nil
	case config.StoragePostgres:
		if cfg.DatabaseURL == "" {
			return "", errors.New("DATABASE_URL must be set for postgres storage")
		}
		return BackendPostgres, nil
	case config.StorageMongo:
		if cfg.MongoURI == "" {
			return "", errors.New("MONGO_URI must be set for mongo storage")
		}
		return BackendMongo, nil
	case config.StorageFirestore:
		if cfg.FirestoreProjectID == "" {
			return "", errors.New("FIRESTORE_PROJECT_ID must be set for firestore storage")
		}
		return BackendFirestore, nil
	default:
		return "", errors.New("unknown storage type: " + storageType)
	}
}

// Open открывает хранилище, выбранное Backend. Второе значение закрывает соединение.
func Open(ctx context.Context, cfg config.Config, storageType string) (UserStore, func(), error) {
	noop := func() {}
	backend, err := Backend(cfg, storageType)
	if err != nil {
		return nil, noop, err
	}

	switch backend {
	case BackendPostgres:
		s, err := NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return s, func() {
			if db, err := s.db.DB(); err == nil {
				_ = db.Close()
			}
		}, nil

	case BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, noop, fmt.Errorf("connect to mongo: %w", err)
		}
		closeClient := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(closeCtx)
		}
		s, err := NewMongoStore(ctx, client.Database(cfg.MongoDatabase))
		if err != nil {
			closeClient()
			return nil, noop, err
		}
		return s, closeClient, nil

	case BackendFirestore:
		var opts []option.ClientOption
		if cfg.FirestoreCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FirestoreCredentialsFile))
		}
		client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID, opts...)
		if err != nil {
			return nil, noop, fmt.Errorf("create firestore client: %w", err)
		}
		return NewFirestoreStore(client), func() { _ = client.Close() }, nil

	default:
		return NewMemoryStore(), noop, nil
	}
}
