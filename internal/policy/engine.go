package policy

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/opendata-gateway/go/internal/constants"
	"github.com/opendata-gateway/go/internal/ledger"
	"github.com/opendata-gateway/go/internal/metering"
	"github.com/opendata-gateway/go/internal/metrics"
	"github.com/opendata-gateway/go/internal/models"
	"github.com/opendata-gateway/go/internal/ratelimit"
)

// Verdict is the combined outcome of every enforcement stage that ran for
// one call. Headers and LogFields are merged pass-through from the stages;
// no stage overwrites another's keys by construction.
type Verdict struct {
	Passed        bool
	Err           *constants.APIError
	Headers       map[string]string
	LogFields     map[string]any
	Cost          int64
	TransactionID *primitive.ObjectID
}

// Engine orchestrates admission control and metering for one permit/policy
// pair. The rate limiter runs first so exhaustion is detected before any
// money moves.
type Engine struct {
	limiter  *ratelimit.Limiter
	metering *metering.Engine
}

func NewEngine(limiter *ratelimit.Limiter, meteringEngine *metering.Engine) *Engine {
	return &Engine{limiter: limiter, metering: meteringEngine}
}

// Evaluate runs the enabled stages in order, short-circuiting on the first
// rejection. A non-nil error means an infrastructure or configuration
// failure, not a policy rejection.
func (e *Engine) Evaluate(ctx context.Context, permit *models.Permit, pol *models.Policy) (*Verdict, error) {
	verdict := &Verdict{
		Passed:    true,
		Headers:   map[string]string{},
		LogFields: map[string]any{},
	}

	if pol.HasRateLimit && pol.RateLimit != nil {
		result, err := e.limiter.Check(ctx, permit, pol.RateLimit)
		if err != nil {
			return nil, err
		}

		merge(verdict, result.Headers, result.LogFields)

		if !result.Allowed {
			metrics.RateLimitRejections.Inc()
			verdict.Passed = false
			rejected := constants.ErrTooManyRequests
			verdict.Err = &rejected
			return verdict, nil
		}
	}

	if pol.HasPaymentConfig && pol.Payment != nil {
		result, err := e.metering.Check(ctx, permit, pol.Payment)
		if err != nil {
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				verdict.Passed = false
				rejected := constants.ErrInsufficientFunds
				verdict.Err = &rejected
				return verdict, nil
			}
			return nil, err
		}

		merge(verdict, result.Headers, result.LogFields)
		verdict.Cost = result.Cost
		verdict.TransactionID = result.TransactionID
	}

	return verdict, nil
}

func merge(v *Verdict, headers map[string]string, fields map[string]any) {
	for k, val := range headers {
		v.Headers[k] = val
	}
	for k, val := range fields {
		v.LogFields[k] = val
	}
}
