package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/UkralStul/salon-qa-board/internal/accounts"
	"github.com/UkralStul/salon-qa-board/internal/board"
	"github.com/UkralStul/salon-qa-board/internal/changefeed"
	"github.com/UkralStul/salon-qa-board/internal/config"
	"github.com/UkralStul/salon-qa-board/internal/domain"
	"github.com/UkralStul/salon-qa-board/internal/logging"
	"github.com/UkralStul/salon-qa-board/internal/server"
	"github.com/UkralStul/salon-qa-board/internal/storage"
	"github.com/UkralStul/salon-qa-board/internal/storage/firestore"
	"github.com/UkralStul/salon-qa-board/internal/storage/inmemory"
	"github.com/UkralStul/salon-qa-board/internal/storage/mongo"
	"github.com/UkralStul/salon-qa-board/internal/storage/postgres"
)

func main() {
	cfg := config.Load()

	storageType := flag.String("storage", cfg.Storage, "Storage type (in-memory, postgres, mongo or firestore)")
	feedType := flag.String("feed", cfg.Feed, "Change feed for postgres storage (local or redis)")
	flag.Parse()

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting server", zap.String("storage", *storageType), zap.String("feed", *feedType))

	store, closeFeed, err := openStorage(ctx, cfg, *storageType, *feedType, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("close storage", zap.Error(err))
		}
		closeFeed()
	}()

	users, closeUsers, err := accounts.Open(ctx, cfg, *storageType)
	if err != nil {
		log.Fatal("failed to open user store", zap.Error(err))
	}
	defer closeUsers()
	auth := accounts.NewService(users,
		accounts.NewTokens(cfg.TokenSecret, cfg.TokenTTL),
		accounts.NewLoader(users, 2*time.Millisecond),
	)

	if *storageType == config.StorageInMemory {
		// Заполним данными для тестов
		fillWithMockData(ctx, store, auth, log)
	}

	router := server.NewRouter(server.Deps{
		Store:        store,
		Auth:         auth,
		Log:          log,
		MaxTextLen:   cfg.MaxTextLen,
		Location:     cfg.Location(),
		PingInterval: cfg.PingInterval,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", zap.String("url", "http://localhost:"+cfg.Port+"/"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed to start", zap.Error(err))
	}
}

// openStorage выбирает документное хранилище. Вторым значением возвращается
// закрытие ленты изменений, если она была открыта отдельно.
func openStorage(ctx context.Context, cfg config.Config, storageType, feedType string, log *zap.Logger) (storage.Storage, func(), error) {
	noop := func() {}
	switch storageType {
	case config.StorageInMemory:
		return inmemory.New(inmemory.WithLogger(log)), noop, nil

	case config.StoragePostgres:
		if cfg.DatabaseURL == "" {
			return nil, noop, errors.New("DATABASE_URL must be set for postgres storage")
		}
		var feed changefeed.Feed = changefeed.NewObserver()
		closeFeed := noop
		if feedType == config.FeedRedis {
			r, err := changefeed.NewRedis(cfg.RedisURL, log)
			if err != nil {
				return nil, noop, err
			}
			feed = r
			closeFeed = func() { _ = r.Close() }
		}
		store, err := postgres.New(cfg.DatabaseURL, feed, log)
		if err != nil {
			closeFeed()
			return nil, noop, err
		}
		return store, closeFeed, nil

	case config.StorageMongo:
		store, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
		return store, noop, err

	case config.StorageFirestore:
		if cfg.FirestoreProjectID == "" {
			return nil, noop, errors.New("FIRESTORE_PROJECT_ID must be set for firestore storage")
		}
		store, err := firestore.New(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile, log)
		return store, noop, err

	default:
		return nil, noop, errors.New("unknown storage type: " + storageType)
	}
}

func fillWithMockData(ctx context.Context, s storage.Storage, auth *accounts.Service, log *zap.Logger) {
	// 1. Учётная запись салона для входа.
	owner, err := auth.SignUp(ctx, "owner@salon.kr", "salon-demo")
	if err != nil {
		log.Fatal("fillWithMockData: failed to create owner", zap.Error(err))
	}

	b := board.New(s, board.WithLogger(log))
	guest := domain.Anonymous{DisplayName: "Mina"}
	member := domain.Authenticated{ID: owner.ID, Email: owner.Email}

	// 2. Вопрос от гостя.
	q1, err := b.SubmitQuestion(ctx, "Сколько стоит окрашивание в один тон?", guest)
	if err != nil {
		log.Fatal("fillWithMockData: failed to create question 1", zap.Error(err))
	}

	// 3. Ответ салона. Доска ещё не подписана, поэтому пишем в хранилище напрямую.
	answer := map[string]any{
		domain.FieldID:          board.TimeAnswerID(time.Now()),
		domain.FieldText:        "От 80 000 вон, зависит от длины волос.",
		domain.FieldCreatedAt:   time.Now(),
		domain.FieldAuthorID:    member.ID,
		domain.FieldAuthorLabel: member.Email,
		domain.FieldIsAnonymous: false,
	}
	if err := s.AppendToArray(ctx, domain.QuestionsCollection, q1, domain.FieldAnswers, answer); err != nil {
		log.Fatal("fillWithMockData: failed to append answer", zap.Error(err))
	}

	// 4. Вопрос без ответов.
	q2, err := b.SubmitQuestion(ctx, "Можно ли записаться на воскресенье?", domain.Anonymous{DisplayName: "Sora"})
	if err != nil {
		log.Fatal("fillWithMockData: failed to create question 2", zap.Error(err))
	}

	log.Info("mock data filled",
		zap.String("owner", owner.Email),
		zap.String("question_1", q1),
		zap.String("question_2", q2),
	)
}
