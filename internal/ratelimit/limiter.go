package ratelimit

import (
	"context"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/opendata-gateway/go/internal/models"
)

// UsageCounter is the slice of the usage log store the limiter reads.
// Implemented by models.UsageLogRepository.
type UsageCounter interface {
	CountSince(ctx context.Context, permitID primitive.ObjectID, since time.Time) (int64, error)
	OldestSince(ctx context.Context, permitID primitive.ObjectID, since time.Time) (time.Time, bool, error)
}

// Result is the admission verdict for one call under one policy window
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Reset     int64 // unix timestamp when a full window opens up
	Retry     int64 // seconds until retry, set on rejection
	Headers   map[string]string
	LogFields map[string]any
}

// Limiter implements sliding-window admission control over the usage log.
// Counts are read at call time without reservation, so two concurrent calls
// can both observe a count just under the limit and both pass. That is
// accepted best-effort admission, not hard real-time control.
type Limiter struct {
	usage UsageCounter
}

func NewLimiter(usage UsageCounter) *Limiter {
	return &Limiter{usage: usage}
}

// Check counts the permit's usage inside the policy window and admits the
// call iff the count is below the policy's point budget.
func (l *Limiter) Check(ctx context.Context, permit *models.Permit, cfg *models.RateLimitConfig) (*Result, error) {
	window, err := cfg.Unit.Duration(cfg.Multiplier)
	if err != nil {
		// Unknown unit is a policy configuration error, not a caller fault.
		return nil, err
	}

	now := time.Now()
	windowStart := now.Add(-window)

	count, err := l.usage.CountSince(ctx, permit.ID, windowStart)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Allowed: count < cfg.Points,
		Limit:   cfg.Points,
	}

	if result.Allowed {
		result.Remaining = cfg.Points - count
		result.Reset = now.Add(window).Unix()
	} else {
		result.Remaining = 0
		// The window opens once the oldest counted call falls out of it.
		oldest, found, err := l.usage.OldestSince(ctx, permit.ID, windowStart)
		if err != nil {
			return nil, err
		}
		reset := now.Add(window)
		if found {
			reset = oldest.Add(window)
		}
		result.Reset = reset.Unix()
		retry := int64(time.Until(reset).Seconds() + 1)
		if retry < 1 {
			retry = 1
		}
		result.Retry = retry
	}

	result.Headers = map[string]string{
		"X-RateLimit-Limit":     strconv.FormatInt(result.Limit, 10),
		"X-RateLimit-Remaining": strconv.FormatInt(result.Remaining, 10),
		"X-RateLimit-Reset":     strconv.FormatInt(result.Reset, 10),
	}
	if !result.Allowed {
		result.Headers["Retry-After"] = strconv.FormatInt(result.Retry, 10)
	}

	result.LogFields = map[string]any{
		"rateLimitCount":     count,
		"rateLimitPoints":    cfg.Points,
		"rateLimitRemaining": result.Remaining,
	}

	return result, nil
}
