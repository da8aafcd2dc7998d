package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// mongoUser - документ коллекции users.
type mongoUser struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

func (u mongoUser) user() User {
	return User{ID: u.ID, Email: u.Email, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt}
}

// MongoStore реализует UserStore с использованием MongoDB.
type MongoStore struct {
	c *mongo.Collection
}

// NewMongoStore создаёт хранилище и уникальный индекс по email.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{c: db.Collection(usersCollection)}
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create user indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("idx_users_email").SetUnique(true),
	})
	return err
}

func (s *MongoStore) CreateUser(ctx context.Context, user User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, mongoUser{
		ID:           user.ID,
		Email:        NormalizeEmail(user.Email),
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailTaken
	}
	return err
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var doc mongoUser
	err := s.c.FindOne(ctx, bson.M{"email": NormalizeEmail(email)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return doc.user(), nil
}

func (s *MongoStore) GetUsersByIDs(ctx context.Context, ids []string) (map[string]User, error) {
	out := make(map[string]User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc mongoUser
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out[doc.ID] = doc.user()
	}
	return out, cur.Err()
}
