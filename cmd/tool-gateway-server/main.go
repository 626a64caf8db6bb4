package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Gokhanagingil/grc-sub011/internal/audit"
	"github.com/Gokhanagingil/grc-sub011/internal/connector"
	"github.com/Gokhanagingil/grc-sub011/internal/gateway"
	"github.com/Gokhanagingil/grc-sub011/internal/policy"
	"github.com/Gokhanagingil/grc-sub011/internal/provider"
	"github.com/Gokhanagingil/grc-sub011/internal/ratelimit"
	"github.com/Gokhanagingil/grc-sub011/internal/server"
	"github.com/Gokhanagingil/grc-sub011/internal/ssrf"
	"github.com/Gokhanagingil/grc-sub011/internal/vault"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("TOOL_GATEWAY_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	port := envOrDefault("TOOL_GATEWAY_PORT", "8084")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	vaultKey := os.Getenv("TOOL_GATEWAY_VAULT_KEY")
	ssrfTimeoutMs := envOrDefaultInt("TOOL_GATEWAY_SSRF_TIMEOUT_MS", 3000)
	connectorTimeoutMs := envOrDefaultInt("TOOL_GATEWAY_CONNECTOR_TIMEOUT_MS", 15000)

	logger.Info("starting tool gateway server",
		zap.String("port", port),
		zap.Int("ssrf_timeout_ms", ssrfTimeoutMs),
		zap.Int("connector_timeout_ms", connectorTimeoutMs),
	)

	// Vault — key material is injected configuration, required to start.
	if vaultKey == "" {
		logger.Fatal("TOOL_GATEWAY_VAULT_KEY is required (hex-encoded 32 bytes)")
	}
	v, err := vault.NewFromHex(vaultKey)
	if err != nil {
		logger.Fatal("invalid vault key", zap.Error(err))
	}

	// SSRF guard
	guard := ssrf.NewGuard(time.Duration(ssrfTimeoutMs)*time.Millisecond, logger)

	// Stores — Postgres if DSN provided, otherwise in-memory for local dev.
	var providerStore provider.Store
	var policyStore policy.Store
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		providerStore = provider.NewPostgresStore(db)
		policyStore = policy.NewPostgresStore(db)
		logger.Info("postgres stores connected")
	} else {
		providerStore = provider.NewMemoryStore()
		policyStore = policy.NewMemoryStore()
		logger.Info("no POSTGRES_DSN set, using in-memory stores")
	}

	// Audit — ClickHouse or log fallback
	var appender audit.Appender
	if clickhouseDSN != "" {
		chAppender, err := audit.NewClickHouseAppender(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log appender",
				zap.Error(err),
			)
			appender = audit.NewLogAppender(logger)
		} else {
			appender = chAppender
			logger.Info("clickhouse audit appender connected")
		}
	} else {
		appender = audit.NewLogAppender(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log audit appender")
	}
	defer appender.Close()

	// Connectors — outbound calls go through the guard's pinned dialer.
	connectorTimeout := time.Duration(connectorTimeoutMs) * time.Millisecond
	connectors := connector.NewRegistry(
		connector.NewITSMConnector(guard.HTTPClient(connectorTimeout), logger),
	)

	// Services
	providerRegistry := provider.NewRegistry(providerStore, guard, v, logger)
	policyService := policy.NewService(policyStore, providerStore, logger)
	dispatcher := gateway.NewDispatcher(gateway.Config{
		Policies:         policyStore,
		Providers:        providerStore,
		Guard:            guard,
		Vault:            v,
		Limiter:          ratelimit.NewMemoryLimiter(),
		Connectors:       connectors,
		Audit:            appender,
		Logger:           logger,
		ConnectorTimeout: connectorTimeout,
	})

	srv := server.New(providerRegistry, policyService, dispatcher, logger)
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown did not complete cleanly", zap.Error(err))
		}
	}()

	logger.Info("tool gateway server listening", zap.String("addr", httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
