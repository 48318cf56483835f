package health

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/opendata-gateway/go/internal/db"
	"github.com/opendata-gateway/go/internal/httputil"
)

// Handler reports readiness of the gateway's backing stores.
type Handler struct {
	mongo *db.Mongo
	redis *redis.Client
}

func NewHandler(mongo *db.Mongo, rdb *redis.Client) *Handler {
	return &Handler{mongo: mongo, redis: rdb}
}

// Check handles the readiness probe
//
//	@Summary	Health check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]string	"All stores reachable"
//	@Failure	503	{object}	map[string]string	"A backing store is down"
//	@Router		/health [get]
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"mongo": "up", "redis": "up"}
	healthy := true

	if err := h.mongo.Client.Ping(ctx, readpref.Primary()); err != nil {
		status["mongo"] = "down"
		healthy = false
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		status["redis"] = "down"
		healthy = false
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, status)
}
