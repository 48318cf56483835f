package models

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/opendata-gateway/go/internal/db"
)

// UsageLogEntry is one append-only record per attempted gateway call.
// The rate limiter and metering engine compute their windows from these rows.
type UsageLogEntry struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	PermitID        primitive.ObjectID  `bson:"permitId" json:"permitId"`
	At              time.Time           `bson:"at" json:"at"`
	WindowStart     time.Time           `bson:"windowStart,omitempty" json:"windowStart,omitempty"`
	WindowEnd       time.Time           `bson:"windowEnd,omitempty" json:"windowEnd,omitempty"`
	Success         bool                `bson:"success" json:"success"`
	LatencyMs       int64               `bson:"latencyMs" json:"latencyMs"`
	CallerIP        string              `bson:"callerIp,omitempty" json:"callerIp,omitempty"`
	RequestSummary  string              `bson:"requestSummary,omitempty" json:"requestSummary,omitempty"`
	ResponseSummary string              `bson:"responseSummary,omitempty" json:"responseSummary,omitempty"`
	Cost            int64               `bson:"cost" json:"cost"`
	TransactionID   *primitive.ObjectID `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	ErrorCode       string              `bson:"errorCode,omitempty" json:"errorCode,omitempty"`
}

// UsageLogRepository provides append and window-count access to the usage log
type UsageLogRepository struct {
	mongo *db.Mongo
}

func NewUsageLogRepository(m *db.Mongo) *UsageLogRepository {
	return &UsageLogRepository{mongo: m}
}

func (r *UsageLogRepository) Collection() *mongo.Collection {
	return r.mongo.Collection("usage_log")
}

func (r *UsageLogRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "permitId", Value: 1}, {Key: "at", Value: 1}},
	})
	return err
}

// Append inserts a usage log entry. Entries are never updated or deleted.
func (r *UsageLogRepository) Append(ctx context.Context, entry *UsageLogEntry) error {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	_, err := r.Collection().InsertOne(ctx, entry)
	return err
}

// CountSince counts entries for a permit with at >= since
func (r *UsageLogRepository) CountSince(ctx context.Context, permitID primitive.ObjectID, since time.Time) (int64, error) {
	return r.Collection().CountDocuments(ctx, bson.M{
		"permitId": permitID,
		"at":       bson.M{"$gte": since},
	})
}

// CountBetween counts entries for a permit with from <= at <= to
func (r *UsageLogRepository) CountBetween(ctx context.Context, permitID primitive.ObjectID, from, to time.Time) (int64, error) {
	return r.Collection().CountDocuments(ctx, bson.M{
		"permitId": permitID,
		"at":       bson.M{"$gte": from, "$lte": to},
	})
}

// OldestSince returns the timestamp of the oldest entry in the window, used
// to compute when a full rate-limit window opens up again. The bool reports
// whether any entry exists.
func (r *UsageLogRepository) OldestSince(ctx context.Context, permitID primitive.ObjectID, since time.Time) (time.Time, bool, error) {
	var entry UsageLogEntry
	opts := options.FindOne().SetSort(bson.D{{Key: "at", Value: 1}})
	err := r.Collection().FindOne(ctx, bson.M{
		"permitId": permitID,
		"at":       bson.M{"$gte": since},
	}, opts).Decode(&entry)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return entry.At, true, nil
}
