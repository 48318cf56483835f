package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/opendata-gateway/go/internal/logger"
)

const idempotencyHeader = "Idempotency-Key"

// storedResponse is the replayable snapshot of a completed request.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// responseRecorder buffers the response so it can be stored for replay.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// IdempotencyMiddleware deduplicates money-moving requests. A client retry
// carrying the same Idempotency-Key within the TTL gets the original
// response back instead of a second ledger transfer.
func IdempotencyMiddleware(rdb *redis.Client, ttl time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			redisKey := fmt.Sprintf("idem:%s:%s:%s", r.Method, r.URL.Path, key)
			ctx := r.Context()

			if raw, err := rdb.Get(ctx, redisKey).Bytes(); err == nil {
				var stored storedResponse
				if json.Unmarshal(raw, &stored) == nil && stored.Status != 0 {
					w.Header().Set("Content-Type", stored.ContentType)
					w.Header().Set("X-Idempotent-Replay", "true")
					w.WriteHeader(stored.Status)
					_, _ = w.Write(stored.Body)
					return
				}
			} else if err != redis.Nil {
				logger.Warn("idempotency lookup failed", zap.Error(err))
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Only settled outcomes are replayable; a 5xx retry should run
			// the handler again.
			if rec.status >= http.StatusInternalServerError {
				return
			}

			raw, err := json.Marshal(storedResponse{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				return
			}
			if err := rdb.Set(ctx, redisKey, raw, ttl).Err(); err != nil {
				logger.Warn("idempotency store failed", zap.Error(err))
			}
		})
	}
}
