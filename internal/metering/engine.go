package metering

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/opendata-gateway/go/internal/models"
)

// UsageCounter is the slice of the usage log store the engine reads for
// free-session windows. Implemented by models.UsageLogRepository.
type UsageCounter interface {
	CountBetween(ctx context.Context, permitID primitive.ObjectID, from, to time.Time) (int64, error)
}

// Settler moves the call fee from the consumer to the consumption sink.
// Implemented by ledger.Service.
type Settler interface {
	ChargeConsumption(ctx context.Context, userID string, amount int64, description string) (*models.Transfer, error)
}

// Result is the settled cost of one admitted call
type Result struct {
	Free          bool
	Cost          int64
	TransactionID *primitive.ObjectID
	Headers       map[string]string
	LogFields     map[string]any
}

// Engine performs free-quota bookkeeping and pay-per-call settlement.
// Charging happens before the backend call is made: charge-then-serve.
type Engine struct {
	usage  UsageCounter
	ledger Settler
}

func NewEngine(usage UsageCounter, ledger Settler) *Engine {
	return &Engine{usage: usage, ledger: ledger}
}

// Check settles the cost of the current call. A call inside an unexhausted
// free session costs nothing and touches no ledger state; otherwise the
// policy's request cost is transferred from the consumer's account. A failed
// transfer (typically insufficient funds) is returned as-is and must block
// the call.
func (e *Engine) Check(ctx context.Context, permit *models.Permit, cfg *models.PaymentConfig) (*Result, error) {
	if cfg.FreeSessionType != models.FreeSessionNone {
		result, err := e.checkFreeSession(ctx, permit, cfg)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}

	return e.charge(ctx, permit, cfg)
}

// checkFreeSession returns a zero-cost result when the call falls inside an
// unexhausted free window, nil when the call must be charged.
//
// The window count deliberately includes failed calls: every usage log entry
// in the window consumes quota. Known quirk, kept.
func (e *Engine) checkFreeSession(ctx context.Context, permit *models.Permit, cfg *models.PaymentConfig) (*Result, error) {
	interval, err := cfg.FreeSessionUnit.Duration(cfg.FreeSessionCount)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var from, to time.Time
	headers := map[string]string{"x-opendata-cost": "0"}

	switch cfg.FreeSessionType {
	case models.FreeSessionOneTime:
		from = permit.CreatedAt
		to = permit.CreatedAt.Add(interval)
		if !now.Before(to) {
			return nil, nil
		}
		headers["x-opendata-free-until"] = strconv.FormatInt(to.Unix(), 10)
	case models.FreeSessionInterval:
		from = now.Add(-interval)
		to = now
		headers["x-opendata-free-reset"] = strconv.FormatInt(now.Add(interval).Unix(), 10)
	default:
		return nil, fmt.Errorf("unknown free session type %q", cfg.FreeSessionType)
	}

	count, err := e.usage.CountBetween(ctx, permit.ID, from, to)
	if err != nil {
		return nil, err
	}
	if count >= cfg.FreeSessionRequests {
		return nil, nil
	}

	remaining := cfg.FreeSessionRequests - count - 1
	headers["x-opendata-free-remaining"] = strconv.FormatInt(remaining, 10)

	return &Result{
		Free:    true,
		Cost:    0,
		Headers: headers,
		LogFields: map[string]any{
			"cost":        int64(0),
			"freeSession": true,
		},
	}, nil
}

func (e *Engine) charge(ctx context.Context, permit *models.Permit, cfg *models.PaymentConfig) (*Result, error) {
	if cfg.RequestCost == 0 {
		return &Result{
			Cost:    0,
			Headers: map[string]string{"x-opendata-cost": "0"},
			LogFields: map[string]any{
				"cost": int64(0),
			},
		}, nil
	}

	transfer, err := e.ledger.ChargeConsumption(ctx, permit.UserID, cfg.RequestCost,
		"metered call, permit "+permit.Key)
	if err != nil {
		return nil, err
	}

	// The debit leg against the consumer account is the transaction the
	// usage log references.
	txID := transfer.FromTransactionID

	return &Result{
		Cost:          cfg.RequestCost,
		TransactionID: &txID,
		Headers: map[string]string{
			"x-opendata-cost": strconv.FormatInt(cfg.RequestCost, 10),
		},
		LogFields: map[string]any{
			"cost":          cfg.RequestCost,
			"transactionId": txID.Hex(),
		},
	}, nil
}
