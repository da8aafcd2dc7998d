package accounts

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// userEmailsCollection держит по документу на адрес: его Create
// не пройдёт для уже занятого email.
const userEmailsCollection = "user_emails"

type firestoreUser struct {
	Email        string    `firestore:"email"`
	PasswordHash string    `firestore:"passwordHash"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

// FirestoreStore реализует UserStore с использованием Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) CreateUser(ctx context.Context, user User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	email := NormalizeEmail(user.Email)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(s.client.Collection(userEmailsCollection).Doc(url.PathEscape(email)), map[string]any{"userId": user.ID}); err != nil {
			return err
		}
		return tx.Create(s.client.Collection(usersCollection).Doc(user.ID), firestoreUser{
			Email:        email,
			PasswordHash: user.PasswordHash,
			CreatedAt:    user.CreatedAt,
		})
	})
	if status.Code(err) == codes.AlreadyExists {
		return ErrEmailTaken
	}
	return err
}

func (s *FirestoreStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	it := s.client.Collection(usersCollection).
		Where("email", "==", NormalizeEmail(email)).
		Limit(1).
		Documents(ctx)
	defer it.Stop()

	snap, err := it.Next()
	if err == iterator.Done {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return decodeFirestoreUser(snap)
}

func (s *FirestoreStore) GetUsersByIDs(ctx context.Context, ids []string) (map[string]User, error) {
	out := make(map[string]User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, s.client.Collection(usersCollection).Doc(id))
	}
	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		u, err := decodeFirestoreUser(snap)
		if err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, nil
}

func decodeFirestoreUser(snap *firestore.DocumentSnapshot) (User, error) {
	var doc firestoreUser
	if err := snap.DataTo(&doc); err != nil {
		return User{}, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
	}
	return User{ID: snap.Ref.ID, Email: doc.Email, PasswordHash: doc.PasswordHash, CreatedAt: doc.CreatedAt}, nil
}
