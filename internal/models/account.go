package models

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/opendata-gateway/go/internal/db"
)

// Account roles stored in the free-form meta document. The three system
// singletons are provisioned once at startup; user accounts carry no role.
const (
	RoleGlobalSource = "globalSource"
	RoleGlobalDrain  = "globalDrain"
	RoleConsumption  = "consumption"
)

// Account is a named balance holder. Balance always equals the signed sum of
// all Transactions referencing the account.
type Account struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID               string             `bson:"userId,omitempty" json:"userId,omitempty"`
	Balance              int64              `bson:"balance" json:"balance"`
	AcceptsInput         bool               `bson:"acceptsInput" json:"acceptsInput"`
	AcceptsOutput        bool               `bson:"acceptsOutput" json:"acceptsOutput"`
	AllowNegativeBalance bool               `bson:"allowNegativeBalance" json:"allowNegativeBalance"`
	Meta                 map[string]string  `bson:"meta,omitempty" json:"meta,omitempty"`
	CreatedAt            time.Time          `bson:"createdAt" json:"createdAt"`
}

// Role returns the system role marker, or "" for user accounts.
func (a *Account) Role() string {
	if a.Meta == nil {
		return ""
	}
	return a.Meta["role"]
}

// AccountResponse is the API shape for an account
type AccountResponse struct {
	ID      string `json:"id"`
	UserID  string `json:"userId,omitempty"`
	Balance int64  `json:"balance"`
}

// ToResponse converts Account to AccountResponse
func (a *Account) ToResponse() AccountResponse {
	return AccountResponse{
		ID:      a.ID.Hex(),
		UserID:  a.UserID,
		Balance: a.Balance,
	}
}

// AccountRepository provides access to the accounts collection
type AccountRepository struct {
	mongo *db.Mongo
}

func NewAccountRepository(m *db.Mongo) *AccountRepository {
	return &AccountRepository{mongo: m}
}

func (r *AccountRepository) Collection() *mongo.Collection {
	return r.mongo.Collection("accounts")
}

// EnsureIndexes creates necessary indexes for the accounts collection.
// The unique partial index on meta.role makes singleton bootstrap idempotent:
// concurrent creators race on the insert and the losers read back the winner.
func (r *AccountRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "meta.role", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"meta.role": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"userId": bson.M{"$exists": true, "$gt": ""}}),
		},
	}

	_, err := r.Collection().Indexes().CreateMany(ctx, indexes)
	return err
}

// Create inserts a new account
func (r *AccountRepository) Create(ctx context.Context, acc *Account) (*Account, error) {
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now()
	}

	result, err := r.Collection().InsertOne(ctx, acc)
	if err != nil {
		return nil, err
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, errors.New("failed to get inserted ID")
	}
	acc.ID = oid

	return acc, nil
}

// FindByID finds an account by its id
func (r *AccountRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*Account, error) {
	var acc Account
	err := r.Collection().FindOne(ctx, bson.M{"_id": id}).Decode(&acc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &acc, nil
}

// FindByRole finds a system singleton account by its role marker
func (r *AccountRepository) FindByRole(ctx context.Context, role string) (*Account, error) {
	var acc Account
	err := r.Collection().FindOne(ctx, bson.M{"meta.role": role}).Decode(&acc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &acc, nil
}

// FindByUser finds the account owned by the given user
func (r *AccountRepository) FindByUser(ctx context.Context, userID string) (*Account, error) {
	var acc Account
	err := r.Collection().FindOne(ctx, bson.M{"userId": userID}).Decode(&acc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &acc, nil
}

// EnsureByRole creates the singleton account for the role if absent and
// returns it. A duplicate-key failure means another creator won the race;
// the existing document is returned instead.
func (r *AccountRepository) EnsureByRole(ctx context.Context, acc *Account) (*Account, error) {
	created, err := r.Create(ctx, acc)
	if err == nil {
		return created, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, err
	}
	return r.FindByRole(ctx, acc.Role())
}

// EnsureForUser creates the user's account if absent and returns it.
func (r *AccountRepository) EnsureForUser(ctx context.Context, userID string) (*Account, error) {
	created, err := r.Create(ctx, &Account{
		UserID:        userID,
		Balance:       0,
		AcceptsInput:  true,
		AcceptsOutput: true,
	})
	if err == nil {
		return created, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, err
	}
	return r.FindByUser(ctx, userID)
}

// ApplyDelta adjusts an account balance. When enforceFloor is set the update
// only matches if the resulting balance stays non-negative; the caller must
// treat a false return as insufficient funds. Run inside a session context
// so the update commits atomically with its transaction rows.
func (r *AccountRepository) ApplyDelta(ctx context.Context, id primitive.ObjectID, delta int64, enforceFloor bool) (bool, error) {
	filter := bson.M{"_id": id}
	if enforceFloor && delta < 0 {
		filter["balance"] = bson.M{"$gte": -delta}
	}

	result, err := r.Collection().UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"balance": delta}})
	if err != nil {
		return false, err
	}
	return result.MatchedCount == 1, nil
}
