package models

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/opendata-gateway/go/internal/db"
)

// Transaction is a single signed ledger entry against one account.
// Immutable once created; created only by the ledger's Transfer operation.
type Transaction struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	AccountID   primitive.ObjectID `bson:"accountId" json:"accountId"`
	TransferID  primitive.ObjectID `bson:"transferId" json:"transferId"`
	Amount      int64              `bson:"amount" json:"amount"`
	Description string             `bson:"description" json:"description"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}

// Transfer is a paired movement of funds between two accounts. It references
// the debit and credit Transactions it produced; either both exist or neither.
type Transfer struct {
	ID                primitive.ObjectID `bson:"_id" json:"id"`
	FromAccountID     primitive.ObjectID `bson:"fromAccountId" json:"fromAccountId"`
	ToAccountID       primitive.ObjectID `bson:"toAccountId" json:"toAccountId"`
	Amount            int64              `bson:"amount" json:"amount"`
	Description       string             `bson:"description" json:"description"`
	FromTransactionID primitive.ObjectID `bson:"fromTransactionId" json:"fromTransactionId"`
	ToTransactionID   primitive.ObjectID `bson:"toTransactionId" json:"toTransactionId"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
}

// TransactionRepository provides access to the transactions collection
type TransactionRepository struct {
	mongo *db.Mongo
}

func NewTransactionRepository(m *db.Mongo) *TransactionRepository {
	return &TransactionRepository{mongo: m}
}

func (r *TransactionRepository) Collection() *mongo.Collection {
	return r.mongo.Collection("transactions")
}

func (r *TransactionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "accountId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return err
}

// InsertPair inserts the debit and credit legs of a transfer
func (r *TransactionRepository) InsertPair(ctx context.Context, debit, credit *Transaction) error {
	_, err := r.Collection().InsertMany(ctx, []any{debit, credit})
	return err
}

// SumForAccount returns the signed sum of all transactions for an account.
// Used by reconciliation and tests to check the balance invariant.
func (r *TransactionRepository) SumForAccount(ctx context.Context, accountID primitive.ObjectID) (int64, error) {
	cursor, err := r.Collection().Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"accountId": accountID}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amount"}}}},
	})
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

// CountForAccount returns the number of transactions recorded for an account
func (r *TransactionRepository) CountForAccount(ctx context.Context, accountID primitive.ObjectID) (int64, error) {
	return r.Collection().CountDocuments(ctx, bson.M{"accountId": accountID})
}

// TransferRepository provides access to the transfers collection
type TransferRepository struct {
	mongo *db.Mongo
}

func NewTransferRepository(m *db.Mongo) *TransferRepository {
	return &TransferRepository{mongo: m}
}

func (r *TransferRepository) Collection() *mongo.Collection {
	return r.mongo.Collection("transfers")
}

func (r *TransferRepository) Insert(ctx context.Context, t *Transfer) error {
	_, err := r.Collection().InsertOne(ctx, t)
	return err
}

func (r *TransferRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*Transfer, error) {
	var t Transfer
	err := r.Collection().FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
