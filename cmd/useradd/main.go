// useradd создаёт учётную запись для входа на доску.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/UkralStul/salon-qa-board/internal/accounts"
	"github.com/UkralStul/salon-qa-board/internal/config"
	"github.com/UkralStul/salon-qa-board/internal/logging"
)

func main() {
	cfg := config.Load()

	storageType := flag.String("storage", cfg.Storage, "Storage the server runs with (postgres, mongo or firestore)")
	email := flag.String("email", "", "Email of the new account")
	password := flag.String("password", os.Getenv("QA_PASSWORD"), "Password (defaults to $QA_PASSWORD)")
	flag.Parse()

	log, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *storageType == config.StorageInMemory {
		log.Fatal("in-memory accounts live only inside the server process, pick postgres, mongo or firestore")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users, closeUsers, err := accounts.Open(ctx, cfg, *storageType)
	if err != nil {
		log.Fatal("failed to open user store", zap.String("storage", *storageType), zap.Error(err))
	}
	defer closeUsers()
	svc := accounts.NewService(users, accounts.NewTokens(cfg.TokenSecret, cfg.TokenTTL), accounts.NewLoader(users, time.Millisecond))

	user, err := svc.SignUp(ctx, *email, *password)
	if err != nil {
		log.Fatal("failed to create user", zap.String("email", *email), zap.Error(err))
	}
	log.Info("user created", zap.String("id", user.ID), zap.String("email", user.Email))
}
