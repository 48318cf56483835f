package config

import (
	"log"
	"os"
	"strconv"
)

type Config struct {
	Port                  int
	Environment           string
	MongoDBURI            string
	RedisURI              string
	AdminJWTSecret        string
	OTELExporterEndpoint  string
	BackendTimeoutSeconds int
	IdempotencyTTLSeconds int
}

var Env *Config

func Load() {
	port, _ := strconv.Atoi(getEnvOrDefault("PORT", "3000"))
	backendTimeout, _ := strconv.Atoi(getEnvOrDefault("BACKEND_TIMEOUT_SECONDS", "30"))
	idempotencyTTL, _ := strconv.Atoi(getEnvOrDefault("IDEMPOTENCY_TTL_SECONDS", "86400"))

	adminSecret := os.Getenv("ADMIN_JWT_SECRET")
	if adminSecret == "" {
		log.Fatal("ADMIN_JWT_SECRET environment variable is required")
	}

	Env = &Config{
		Port:                  port,
		Environment:           getEnvOrDefault("GO_ENV", "development"),
		MongoDBURI:            getEnvOrDefault("MONGODB_URI", "mongodb://localhost:27017/opendata"),
		RedisURI:              getEnvOrDefault("REDIS_URI", "redis://localhost:6379"),
		AdminJWTSecret:        adminSecret,
		OTELExporterEndpoint:  getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318/v1/traces"),
		BackendTimeoutSeconds: backendTimeout,
		IdempotencyTTLSeconds: idempotencyTTL,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
