package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/opendata-gateway/go/internal/config"
	"github.com/opendata-gateway/go/internal/db"
	"github.com/opendata-gateway/go/internal/gateway"
	"github.com/opendata-gateway/go/internal/invoker"
	"github.com/opendata-gateway/go/internal/ledger"
	"github.com/opendata-gateway/go/internal/logger"
	"github.com/opendata-gateway/go/internal/metering"
	"github.com/opendata-gateway/go/internal/models"
	"github.com/opendata-gateway/go/internal/modules/accounts"
	gatewaymod "github.com/opendata-gateway/go/internal/modules/gateway"
	"github.com/opendata-gateway/go/internal/modules/health"
	"github.com/opendata-gateway/go/internal/policy"
	"github.com/opendata-gateway/go/internal/ratelimit"
	"github.com/opendata-gateway/go/internal/router"
	"github.com/opendata-gateway/go/internal/server"
	"github.com/opendata-gateway/go/internal/telemetry"
)

func main() {
	config.Load()

	shutdownTelemetry := setupTelemetry()
	defer logger.Sync()

	mongo, rdb := setupDatabases()
	defer func() {
		if err := mongo.Disconnect(); err != nil {
			logger.Error("mongo disconnect failed", zap.Error(err))
		}
		if err := rdb.Disconnect(); err != nil {
			logger.Error("redis close failed", zap.Error(err))
		}
	}()

	handler := setupApp(mongo, rdb)

	srv := server.New(strconv.Itoa(config.Env.Port), handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
	}
	shutdownTelemetry(ctx)
}

func setupTelemetry() func(context.Context) {
	shutdownTracer, tracerErr := telemetry.InitTracer(config.Env.OTELExporterEndpoint)
	shutdownLogs, logsErr := telemetry.InitLoggerProvider(config.Env.OTELExporterEndpoint)

	if err := logger.Init(config.Env.Environment, telemetry.LoggerProvider); err != nil {
		panic(err)
	}

	if tracerErr != nil {
		logger.Warn("tracer init failed, continuing without traces", zap.Error(tracerErr))
	}
	if logsErr != nil {
		logger.Warn("otel log exporter init failed, continuing with stdout only", zap.Error(logsErr))
	}

	return func(ctx context.Context) {
		if shutdownTracer != nil {
			if err := shutdownTracer(ctx); err != nil {
				logger.Error("tracer shutdown failed", zap.Error(err))
			}
		}
		if shutdownLogs != nil {
			if err := shutdownLogs(ctx); err != nil {
				logger.Error("log exporter shutdown failed", zap.Error(err))
			}
		}
	}
}

func setupDatabases() (*db.Mongo, *db.Redis) {
	mongo, err := db.ConnectMongo(config.Env.MongoDBURI)
	if err != nil {
		logger.Fatal("mongo connection failed", zap.Error(err))
	}

	rdb, err := db.ConnectRedis(config.Env.RedisURI)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}

	return mongo, rdb
}

func setupApp(mongo *db.Mongo, rdb *db.Redis) http.Handler {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	accountRepo := models.NewAccountRepository(mongo)
	transactionRepo := models.NewTransactionRepository(mongo)
	transferRepo := models.NewTransferRepository(mongo)
	permitRepo := models.NewPermitRepository(mongo)
	policyRepo := models.NewPolicyRepository(mongo)
	endpointRepo := models.NewEndpointRepository(mongo)
	usageLogRepo := models.NewUsageLogRepository(mongo)

	for name, ensure := range map[string]func(context.Context) error{
		"accounts":     accountRepo.EnsureIndexes,
		"transactions": transactionRepo.EnsureIndexes,
		"permits":      permitRepo.EnsureIndexes,
		"usage_log":    usageLogRepo.EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			logger.Fatal("index creation failed", zap.String("collection", name), zap.Error(err))
		}
	}

	ledgerService := ledger.New(mongo, accountRepo, transferRepo, transactionRepo)
	if err := ledgerService.EnsureSystemAccounts(ctx); err != nil {
		logger.Fatal("system account bootstrap failed", zap.Error(err))
	}

	limiter := ratelimit.NewLimiter(usageLogRepo)
	meteringEngine := metering.NewEngine(usageLogRepo, ledgerService)
	policyEngine := policy.NewEngine(limiter, meteringEngine)
	backend := invoker.New(time.Duration(config.Env.BackendTimeoutSeconds) * time.Second)

	dispatcher := gateway.NewDispatcher(
		permitRepo, policyRepo, endpointRepo, usageLogRepo, policyEngine, backend)

	return router.New(router.Deps{
		Gateway:        gatewaymod.NewHandler(dispatcher),
		Accounts:       accounts.NewHandler(ledgerService, accountRepo),
		Health:         health.NewHandler(mongo, rdb.Client),
		Redis:          rdb.Client,
		AdminJWTSecret: config.Env.AdminJWTSecret,
		IdempotencyTTL: time.Duration(config.Env.IdempotencyTTLSeconds) * time.Second,
	})
}
