package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/opendata-gateway/go/internal/db"
)

// DurationUnit names a fixed-length time unit used by rate-limit windows and
// free sessions.
type DurationUnit string

const (
	UnitSecond DurationUnit = "second"
	UnitMinute DurationUnit = "minute"
	UnitHour   DurationUnit = "hour"
	UnitDay    DurationUnit = "day"
	UnitWeek   DurationUnit = "week"
	UnitMonth  DurationUnit = "month"
	UnitYear   DurationUnit = "year"
)

var unitMillis = map[DurationUnit]int64{
	UnitSecond: 1000,
	UnitMinute: 60 * 1000,
	UnitHour:   60 * 60 * 1000,
	UnitDay:    24 * 60 * 60 * 1000,
	UnitWeek:   7 * 24 * 60 * 60 * 1000,
	UnitMonth:  30 * 24 * 60 * 60 * 1000,
	UnitYear:   365 * 24 * 60 * 60 * 1000,
}

// Millis returns the unit length in milliseconds. An unrecognized unit is a
// configuration error, not a per-request failure.
func (u DurationUnit) Millis() (int64, error) {
	ms, ok := unitMillis[u]
	if !ok {
		return 0, fmt.Errorf("unknown duration unit %q", u)
	}
	return ms, nil
}

// Duration returns unit length times the multiplier as a time.Duration
func (u DurationUnit) Duration(multiplier int) (time.Duration, error) {
	ms, err := u.Millis()
	if err != nil {
		return 0, err
	}
	return time.Duration(ms*int64(multiplier)) * time.Millisecond, nil
}

// FreeSessionType selects how a policy's free quota window is anchored
type FreeSessionType string

const (
	FreeSessionNone     FreeSessionType = "none"
	FreeSessionOneTime  FreeSessionType = "oneTime"
	FreeSessionInterval FreeSessionType = "interval"
)

// RateLimitConfig is the sliding-window admission budget of a policy
type RateLimitConfig struct {
	Unit       DurationUnit `bson:"unit" json:"unit" validate:"required"`
	Multiplier int          `bson:"multiplier" json:"multiplier" validate:"required,gt=0"`
	Points     int64        `bson:"points" json:"points" validate:"required,gt=0"`
}

// PaymentConfig is the pay-per-call pricing scheme of a policy
type PaymentConfig struct {
	FreeSessionType     FreeSessionType `bson:"freeSessionType" json:"freeSessionType" validate:"required,oneof=none oneTime interval"`
	FreeSessionUnit     DurationUnit    `bson:"freeSessionUnit,omitempty" json:"freeSessionUnit,omitempty"`
	FreeSessionCount    int             `bson:"freeSessionCount,omitempty" json:"freeSessionCount,omitempty"`
	FreeSessionRequests int64           `bson:"freeSessionRequests,omitempty" json:"freeSessionRequests,omitempty"`
	RequestCost         int64           `bson:"requestCost" json:"requestCost" validate:"gte=0"`
}

// Policy bundles the enforcement rules attached to one or more permits
type Policy struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name             string             `bson:"name" json:"name"`
	HasRateLimit     bool               `bson:"hasRateLimit" json:"hasRateLimit"`
	RateLimit        *RateLimitConfig   `bson:"rateLimit,omitempty" json:"rateLimit,omitempty"`
	HasPaymentConfig bool               `bson:"hasPaymentConfig" json:"hasPaymentConfig"`
	Payment          *PaymentConfig     `bson:"payment,omitempty" json:"payment,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
}

// Permit is a consumer's credential to call one API endpoint under one policy
type Permit struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      string             `bson:"userId" json:"userId"`
	EndpointID  primitive.ObjectID `bson:"endpointId" json:"endpointId"`
	PolicyID    primitive.ObjectID `bson:"policyId" json:"policyId"`
	Key         string             `bson:"key" json:"key"`
	Enabled     bool               `bson:"enabled" json:"enabled"`
	Blocked     bool               `bson:"blocked" json:"blocked"`
	BlockReason string             `bson:"blockReason,omitempty" json:"blockReason,omitempty"`
	ValidFrom   *time.Time         `bson:"validFrom,omitempty" json:"validFrom,omitempty"`
	ValidUntil  *time.Time         `bson:"validUntil,omitempty" json:"validUntil,omitempty"`
	IsTest      bool               `bson:"isTest" json:"isTest"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}

// PermitRepository provides read access to permits. Permits are created by
// administrative workflows and are read-only to the gateway core.
type PermitRepository struct {
	mongo *db.Mongo
}

func NewPermitRepository(m *db.Mongo) *PermitRepository {
	return &PermitRepository{mongo: m}
}

func (r *PermitRepository) Collection() *mongo.Collection {
	return r.mongo.Collection("permits")
}

func (r *PermitRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// FindByKey finds a permit by its API key identifier
func (r *PermitRepository) FindByKey(ctx context.Context, key string) (*Permit, error) {
	var p Permit
	err := r.Collection().FindOne(ctx, bson.M{"key": key}).Decode(&p)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a permit. Used by provisioning workflows and tests.
func (r *PermitRepository) Create(ctx context.Context, p *Permit) (*Permit, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	result, err := r.Collection().InsertOne(ctx, p)
	if err != nil {
		return nil, err
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, errors.New("failed to get inserted ID")
	}
	p.ID = oid

	return p, nil
}

// PolicyRepository provides read access to policies
type PolicyRepository struct {
	mongo *db.Mongo
}

func NewPolicyRepository(m *db.Mongo) *PolicyRepository {
	return &PolicyRepository{mongo: m}
}

func (r *PolicyRepository) Collection() *mongo.Collection {
	return r.mongo.Collection("policies")
}

func (r *PolicyRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*Policy, error) {
	var p Policy
	err := r.Collection().FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a policy. Used by provisioning workflows and tests.
func (r *PolicyRepository) Create(ctx context.Context, p *Policy) (*Policy, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	result, err := r.Collection().InsertOne(ctx, p)
	if err != nil {
		return nil, err
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, errors.New("failed to get inserted ID")
	}
	p.ID = oid

	return p, nil
}
