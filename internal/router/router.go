package router

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opendata-gateway/go/internal/middleware"
	accountsmod "github.com/opendata-gateway/go/internal/modules/accounts"
	gatewaymod "github.com/opendata-gateway/go/internal/modules/gateway"
	healthmod "github.com/opendata-gateway/go/internal/modules/health"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Gateway        *gatewaymod.Handler
	Accounts       *accountsmod.Handler
	Health         *healthmod.Handler
	Redis          *redis.Client
	AdminJWTSecret string
	IdempotencyTTL time.Duration
}

// New assembles the HTTP routing tree. The wildcard gateway route coexists
// with the accounts surface because the mux prefers more specific patterns.
func New(deps Deps) http.Handler {
	mux := http.NewServeMux()

	auth := middleware.AuthMiddleware(deps.AdminJWTSecret)
	idem := middleware.IdempotencyMiddleware(deps.Redis, deps.IdempotencyTTL)

	mux.HandleFunc("GET /health", deps.Health.Check)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /accounts/{id}", deps.Accounts.GetAccount)
	mux.Handle("POST /accounts/{id}/deposit",
		middleware.Chain(http.HandlerFunc(deps.Accounts.Deposit), auth, idem))
	mux.Handle("POST /accounts/{id}/withdraw",
		middleware.Chain(http.HandlerFunc(deps.Accounts.Withdraw), auth, idem))

	mux.HandleFunc("POST /{identifier}/{apiVersion}", deps.Gateway.Call)

	routeOf := func(r *http.Request) string {
		_, pattern := mux.Handler(r)
		return pattern
	}

	handler := middleware.Chain(mux,
		middleware.MetricsMiddleware(routeOf),
		middleware.LoggingMiddleware,
		middleware.CORSMiddleware,
	)

	return otelhttp.NewHandler(handler, "opendata-gateway",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			if _, pattern := mux.Handler(r); pattern != "" {
				return pattern
			}
			return r.Method + " " + r.URL.Path
		}),
	)
}
