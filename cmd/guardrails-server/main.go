package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Saiprana/ai-guardrails-system/internal/api"
	"github.com/Saiprana/ai-guardrails-system/internal/auth"
	"github.com/Saiprana/ai-guardrails-system/internal/config"
	"github.com/Saiprana/ai-guardrails-system/internal/engine"
	"github.com/Saiprana/ai-guardrails-system/internal/engine/detectors"
	"github.com/Saiprana/ai-guardrails-system/internal/memstore"
	"github.com/Saiprana/ai-guardrails-system/internal/metrics"
	"github.com/Saiprana/ai-guardrails-system/internal/pipeline"
	"github.com/Saiprana/ai-guardrails-system/internal/rules"
	"github.com/Saiprana/ai-guardrails-system/internal/storage"
	"github.com/Saiprana/ai-guardrails-system/internal/store"
	"github.com/Saiprana/ai-guardrails-system/internal/tools"
)

const serviceName = "guardrails-server"

// backend is everything the server reads from and writes to. Both the
// Postgres store and the in-memory fixture store satisfy it.
type backend interface {
	engine.Directory
	engine.RuleStore
	tools.EmployeeSource
	pipeline.AuditSink
	api.AdminStore
}

func main() {
	configFile := flag.String("config", "", "path to guardrails.yaml")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Logger
	logger := mustBuildLogger(cfg.Server.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Salaries go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	logger.Info("starting guardrails server",
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.Bool("fail_closed", cfg.Guard.FailClosed),
		zap.Bool("fixture", cfg.UsesFixture()),
	)

	// Backend: Postgres, or the fixture when no DSN is set
	var data backend
	if cfg.UsesFixture() {
		fixture := memstore.DemoFixture()
		if cfg.Guard.Fixture != "" {
			if fixture, err = memstore.LoadFixtureFile(cfg.Guard.Fixture); err != nil {
				logger.Fatal("failed to load fixture", zap.String("path", cfg.Guard.Fixture), zap.Error(err))
			}
		}
		data = memstore.New(fixture)
		logger.Info("no postgres.dsn set, serving from fixture",
			zap.String("fixture", cfg.Guard.Fixture),
			zap.Int("employees", len(fixture.Employees)),
			zap.Int("rules", len(fixture.Rules)),
		)
	} else {
		db, err := store.Open(context.Background(), cfg.Postgres.DSN, store.PoolConfig{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		pgStore := store.NewStore(db)
		if cfg.Postgres.Migrate {
			if err := pgStore.Migrate(context.Background()); err != nil {
				logger.Fatal("failed to migrate postgres", zap.Error(err))
			}
			logger.Info("postgres schema up to date")
		}
		data = pgStore
		logger.Info("postgres connected")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Rules: in-process cache, optionally over a shared Redis cache
	validator := rules.MustNewValidator()
	var source engine.RuleStore = data
	if cfg.Redis.Addr != "" {
		client, err := rules.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("failed to create redis client", zap.Error(err))
		}
		defer func() { _ = client.Close() }()
		source = rules.NewRedisCache(client, data, cfg.Rules.CacheTTL, logger)
		logger.Info("redis rule cache enabled", zap.String("addr", cfg.Redis.Addr))
	}
	ruleStore := rules.NewCachedStore(rules.CachedStoreConfig{
		Source:    source,
		CacheTTL:  cfg.Rules.CacheTTL,
		Validator: validator,
		Logger:    logger,
	})

	// Decision events: ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if cfg.ClickHouse.DSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouse.DSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no clickhouse.dsn set, using log writer")
	}
	defer writer.Close()

	p := pipeline.New(pipeline.Config{
		Directory:  data,
		Rules:      ruleStore,
		Leakage:    detectors.NewInternalDataDetector(data),
		Tools:      []pipeline.Tool{tools.NewDatabaseQuery(data), tools.WebSearch{}},
		Audit:      data,
		Events:     writer,
		Metrics:    m,
		FailClosed: cfg.Guard.FailClosed,
		Logger:     logger,
	})

	// Admin key
	var admin *auth.AdminAuthenticator
	if cfg.Admin.APIKeyHash != "" {
		if admin, err = auth.NewAdminAuthenticator(cfg.Admin.APIKeyHash, cfg.Admin.CacheTTL, logger); err != nil {
			logger.Fatal("invalid admin key hash", zap.Error(err))
		}
	} else {
		logger.Warn("no admin.api_key_hash set, rule management is unauthenticated")
	}

	deps := &api.Dependencies{
		Pipeline:    p,
		Store:       data,
		Invalidator: ruleStore,
		Validator:   validator,
		Auth:        admin,
		Metrics:     m,
		Gatherer:    reg,
		Service:     serviceName,
		Logger:      logger,
	}
	httpServer := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("guardrails server stopped")
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
