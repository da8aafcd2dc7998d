package config

import (
	"os"
	"strconv"
	"time"
)

const (
	StorageInMemory  = "in-memory"
	StoragePostgres  = "postgres"
	StorageMongo     = "mongo"
	StorageFirestore = "firestore"

	FeedLocal = "local"
	FeedRedis = "redis"
)

type Config struct {
	Port    string
	Storage string
	Feed    string

	DatabaseURL string
	// Mongo: change streams работают только на replica set
	MongoURI      string
	MongoDatabase string
	// Firestore
	FirestoreProjectID       string
	FirestoreCredentialsFile string
	// Redis - сигналы об изменениях между экземплярами
	RedisURL string

	TokenSecret string
	TokenTTL    time.Duration

	LogLevel  string
	LogFormat string

	MaxTextLen   int
	PingInterval time.Duration
	TimeZone     string
}

func Load() Config {
	return Config{
		Port:                     getenv("PORT", "8080"),
		Storage:                  getenv("QA_STORAGE", StorageInMemory),
		Feed:                     getenv("QA_FEED", FeedLocal),
		DatabaseURL:              getenv("DATABASE_URL", ""),
		MongoURI:                 getenv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		MongoDatabase:            getenv("MONGO_DATABASE", "salon_qa"),
		FirestoreProjectID:       getenv("FIRESTORE_PROJECT_ID", ""),
		FirestoreCredentialsFile: getenv("FIRESTORE_CREDENTIALS_FILE", ""),
		RedisURL:                 getenv("REDIS_URL", "redis://localhost:6379/0"),
		TokenSecret:              getenv("QA_TOKEN_SECRET", "salon-qa-dev-secret"),
		TokenTTL:                 time.Duration(getenvInt("QA_TOKEN_TTL", 7*24*3600)) * time.Second,
		LogLevel:                 getenv("LOG_LEVEL", "info"),
		LogFormat:                getenv("LOG_FORMAT", "json"),
		MaxTextLen:               getenvInt("QA_MAX_TEXT_LEN", 2000),
		PingInterval:             time.Duration(getenvInt("QA_PING_INTERVAL", 10)) * time.Second,
		TimeZone:                 getenv("QA_TIMEZONE", "Local"),
	}
}

// Location возвращает часовой пояс для дат на странице.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
