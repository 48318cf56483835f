package metering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/opendata-gateway/go/internal/ledger"
	"github.com/opendata-gateway/go/internal/models"
)

type fakeCounter struct {
	count int64
	from  time.Time
	to    time.Time
}

func (f *fakeCounter) CountBetween(_ context.Context, _ primitive.ObjectID, from, to time.Time) (int64, error) {
	f.from = from
	f.to = to
	return f.count, nil
}

type fakeSettler struct {
	charged     int64
	chargedUser string
	err         error
	transfer    *models.Transfer
}

func (f *fakeSettler) ChargeConsumption(_ context.Context, userID string, amount int64, _ string) (*models.Transfer, error) {
	f.charged = amount
	f.chargedUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.transfer, nil
}

func permitCreatedAt(at time.Time) *models.Permit {
	return &models.Permit{
		ID:        primitive.NewObjectID(),
		UserID:    "user-1",
		Key:       "key-1",
		CreatedAt: at,
	}
}

func TestFreeQuotaConsumedInOrder(t *testing.T) {
	// Quota of 2 free requests: prior counts 0 and 1 ride free, the call
	// that finds 2 prior entries pays.
	cfg := &models.PaymentConfig{
		FreeSessionType:     models.FreeSessionOneTime,
		FreeSessionUnit:     models.UnitDay,
		FreeSessionCount:    1,
		FreeSessionRequests: 2,
		RequestCost:         50,
	}
	permit := permitCreatedAt(time.Now().Add(-time.Hour))

	for prior, wantFree := range map[int64]bool{0: true, 1: true} {
		settler := &fakeSettler{}
		engine := NewEngine(&fakeCounter{count: prior}, settler)

		result, err := engine.Check(context.Background(), permit, cfg)
		require.NoError(t, err)
		assert.Equal(t, wantFree, result.Free)
		assert.Equal(t, int64(0), result.Cost)
		assert.Equal(t, "0", result.Headers["x-opendata-cost"])
		assert.Zero(t, settler.charged)
	}

	txID := primitive.NewObjectID()
	settler := &fakeSettler{transfer: &models.Transfer{FromTransactionID: txID}}
	engine := NewEngine(&fakeCounter{count: 2}, settler)

	result, err := engine.Check(context.Background(), permit, cfg)
	require.NoError(t, err)
	assert.False(t, result.Free)
	assert.Equal(t, int64(50), result.Cost)
	assert.Equal(t, int64(50), settler.charged)
	assert.Equal(t, "user-1", settler.chargedUser)
	require.NotNil(t, result.TransactionID)
	assert.Equal(t, txID, *result.TransactionID)
	assert.Equal(t, "50", result.Headers["x-opendata-cost"])
}

func TestFreeRemainingHeader(t *testing.T) {
	cfg := &models.PaymentConfig{
		FreeSessionType:     models.FreeSessionOneTime,
		FreeSessionUnit:     models.UnitDay,
		FreeSessionCount:    1,
		FreeSessionRequests: 5,
		RequestCost:         10,
	}
	engine := NewEngine(&fakeCounter{count: 1}, &fakeSettler{})

	result, err := engine.Check(context.Background(), permitCreatedAt(time.Now()), cfg)
	require.NoError(t, err)
	assert.True(t, result.Free)
	assert.Equal(t, "3", result.Headers["x-opendata-free-remaining"])
	assert.Contains(t, result.Headers, "x-opendata-free-until")
}

func TestOneTimeWindowExpiryCharges(t *testing.T) {
	cfg := &models.PaymentConfig{
		FreeSessionType:     models.FreeSessionOneTime,
		FreeSessionUnit:     models.UnitHour,
		FreeSessionCount:    1,
		FreeSessionRequests: 100,
		RequestCost:         25,
	}
	// Permit created two hours ago, one hour window: quota is gone even
	// though no request was ever made.
	permit := permitCreatedAt(time.Now().Add(-2 * time.Hour))
	settler := &fakeSettler{transfer: &models.Transfer{FromTransactionID: primitive.NewObjectID()}}
	engine := NewEngine(&fakeCounter{count: 0}, settler)

	result, err := engine.Check(context.Background(), permit, cfg)
	require.NoError(t, err)
	assert.False(t, result.Free)
	assert.Equal(t, int64(25), result.Cost)
	assert.Equal(t, int64(25), settler.charged)
}

func TestIntervalWindowSlides(t *testing.T) {
	cfg := &models.PaymentConfig{
		FreeSessionType:     models.FreeSessionInterval,
		FreeSessionUnit:     models.UnitMinute,
		FreeSessionCount:    10,
		FreeSessionRequests: 3,
		RequestCost:         5,
	}
	counter := &fakeCounter{count: 0}
	engine := NewEngine(counter, &fakeSettler{})

	result, err := engine.Check(context.Background(), permitCreatedAt(time.Now().Add(-24*time.Hour)), cfg)
	require.NoError(t, err)
	assert.True(t, result.Free)
	assert.Contains(t, result.Headers, "x-opendata-free-reset")

	// The count window trails the current moment, not the permit creation.
	assert.WithinDuration(t, time.Now().Add(-10*time.Minute), counter.from, 2*time.Second)
	assert.WithinDuration(t, time.Now(), counter.to, 2*time.Second)
}

func TestInsufficientFundsBlocks(t *testing.T) {
	cfg := &models.PaymentConfig{
		FreeSessionType: models.FreeSessionNone,
		RequestCost:     100,
	}
	engine := NewEngine(&fakeCounter{}, &fakeSettler{err: ledger.ErrInsufficientFunds})

	_, err := engine.Check(context.Background(), permitCreatedAt(time.Now()), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds))
}

func TestZeroCostSkipsLedger(t *testing.T) {
	cfg := &models.PaymentConfig{
		FreeSessionType: models.FreeSessionNone,
		RequestCost:     0,
	}
	settler := &fakeSettler{}
	engine := NewEngine(&fakeCounter{}, settler)

	result, err := engine.Check(context.Background(), permitCreatedAt(time.Now()), cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Cost)
	assert.Nil(t, result.TransactionID)
	assert.Zero(t, settler.charged)
}
