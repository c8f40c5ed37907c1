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

const mongoCollection = "accounts"

type mongoAccount struct {
	UID          string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash []byte    `bson:"password_hash"`
	Name         string    `bson:"name"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"created_at"`
}

func (m mongoAccount) account() *Account {
	return &Account{
		UID:       m.UID,
		Email:     m.Email,
		Profile:   Profile{Name: m.Name, Role: m.Role},
		CreatedAt: m.CreatedAt,
	}
}

// Mongo stores accounts in the "accounts" collection.
type Mongo struct {
	coll *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{coll: db.Collection(mongoCollection)}
}

// EnsureIndexes creates the unique email index. Safe to call repeatedly.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("accounts_email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create accounts index: %w", err)
	}
	return nil
}

func (m *Mongo) CreateUserAccount(ctx context.Context, email, password string, profile Profile) (*Account, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	rec := mongoAccount{
		UID:          uuid.New().String(),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		Name:         profile.Name,
		Role:         profile.Role,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := m.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return rec.account(), nil
}

func (m *Mongo) DeleteAccount(ctx context.Context, uid string) error {
	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": uid})
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	var rec mongoAccount
	err := m.coll.FindOne(ctx, bson.M{"email": normalizeEmail(email)}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if err := checkPassword(rec.PasswordHash, password); err != nil {
		return nil, err
	}
	return rec.account(), nil
}
