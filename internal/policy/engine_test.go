package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/opendata-gateway/go/internal/constants"
	"github.com/opendata-gateway/go/internal/ledger"
	"github.com/opendata-gateway/go/internal/metering"
	"github.com/opendata-gateway/go/internal/models"
	"github.com/opendata-gateway/go/internal/ratelimit"
)

type fakeUsage struct {
	count int64
}

func (f *fakeUsage) CountSince(_ context.Context, _ primitive.ObjectID, _ time.Time) (int64, error) {
	return f.count, nil
}

func (f *fakeUsage) OldestSince(_ context.Context, _ primitive.ObjectID, _ time.Time) (time.Time, bool, error) {
	return time.Now().Add(-time.Second), true, nil
}

func (f *fakeUsage) CountBetween(_ context.Context, _ primitive.ObjectID, _, _ time.Time) (int64, error) {
	return f.count, nil
}

type fakeSettler struct {
	called bool
	err    error
}

func (f *fakeSettler) ChargeConsumption(_ context.Context, _ string, amount int64, _ string) (*models.Transfer, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return &models.Transfer{FromTransactionID: primitive.NewObjectID(), Amount: amount}, nil
}

func newEngine(usage *fakeUsage, settler *fakeSettler) *Engine {
	return NewEngine(ratelimit.NewLimiter(usage), metering.NewEngine(usage, settler))
}

func fullPolicy() *models.Policy {
	return &models.Policy{
		HasRateLimit:     true,
		RateLimit:        &models.RateLimitConfig{Unit: models.UnitMinute, Multiplier: 1, Points: 3},
		HasPaymentConfig: true,
		Payment: &models.PaymentConfig{
			FreeSessionType: models.FreeSessionNone,
			RequestCost:     10,
		},
	}
}

func testPermit() *models.Permit {
	return &models.Permit{ID: primitive.NewObjectID(), UserID: "u1", Key: "k1", CreatedAt: time.Now()}
}

func TestEvaluatePassesAndCharges(t *testing.T) {
	settler := &fakeSettler{}
	engine := newEngine(&fakeUsage{count: 0}, settler)

	verdict, err := engine.Evaluate(context.Background(), testPermit(), fullPolicy())
	require.NoError(t, err)

	assert.True(t, verdict.Passed)
	assert.Nil(t, verdict.Err)
	assert.Equal(t, int64(10), verdict.Cost)
	require.NotNil(t, verdict.TransactionID)
	assert.True(t, settler.called)

	// Both stages contribute headers to the same verdict.
	assert.Contains(t, verdict.Headers, "X-RateLimit-Remaining")
	assert.Contains(t, verdict.Headers, "x-opendata-cost")
}

func TestEvaluateRateLimitShortCircuits(t *testing.T) {
	settler := &fakeSettler{}
	engine := newEngine(&fakeUsage{count: 3}, settler)

	verdict, err := engine.Evaluate(context.Background(), testPermit(), fullPolicy())
	require.NoError(t, err)

	assert.False(t, verdict.Passed)
	require.NotNil(t, verdict.Err)
	assert.Equal(t, constants.CodeTooManyRequests, verdict.Err.Code)

	// Metering never ran: a throttled call must not move money.
	assert.False(t, settler.called)
	assert.Equal(t, int64(0), verdict.Cost)
	assert.Contains(t, verdict.Headers, "Retry-After")
}

func TestEvaluateInsufficientFunds(t *testing.T) {
	engine := newEngine(&fakeUsage{count: 0}, &fakeSettler{err: ledger.ErrInsufficientFunds})

	verdict, err := engine.Evaluate(context.Background(), testPermit(), fullPolicy())
	require.NoError(t, err)

	assert.False(t, verdict.Passed)
	require.NotNil(t, verdict.Err)
	assert.Equal(t, constants.CodeInsufficientFunds, verdict.Err.Code)
}

func TestEvaluateUnrestrictedPolicy(t *testing.T) {
	settler := &fakeSettler{}
	engine := newEngine(&fakeUsage{count: 1000}, settler)

	verdict, err := engine.Evaluate(context.Background(), testPermit(), &models.Policy{})
	require.NoError(t, err)

	assert.True(t, verdict.Passed)
	assert.Equal(t, int64(0), verdict.Cost)
	assert.False(t, settler.called)
	assert.Empty(t, verdict.Headers)
}
