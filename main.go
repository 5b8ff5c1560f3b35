package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/agents"
	"github.com/talentcomp/comprec/internal/auth"
	"github.com/talentcomp/comprec/internal/compdata"
	"github.com/talentcomp/comprec/internal/config"
	"github.com/talentcomp/comprec/internal/contextstore"
	"github.com/talentcomp/comprec/internal/httpapi"
	"github.com/talentcomp/comprec/internal/llm"
	"github.com/talentcomp/comprec/internal/messages"
	"github.com/talentcomp/comprec/internal/session"
	"github.com/talentcomp/comprec/internal/streaming"
	"github.com/talentcomp/comprec/internal/tracing"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}

	// Postgres: candidate contexts, audit trail, transcripts.
	db, err := sqlx.Connect("postgres", cfg.Postgres.DSN())
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	contextStore := contextstore.New(db, logger)
	if err := contextStore.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to ensure context schema", zap.Error(err))
	}
	messageStore := messages.New(db, logger)
	if err := messageStore.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to ensure message schema", zap.Error(err))
	}

	// Redis: per-user session pointers.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	sessionStore := session.NewStore(redisClient, logger)

	// CSV data files, reloaded on change.
	dataStore, err := compdata.NewStore(cfg.Data.CompRangesPath, cfg.Data.EmployeeRosterPath, logger)
	if err != nil {
		logger.Fatal("failed to load data files", zap.Error(err))
	}
	if cfg.Data.Watch {
		go func() {
			if err := dataStore.Watch(ctx); err != nil {
				logger.Warn("data watcher stopped", zap.Error(err))
			}
		}()
	}

	users, err := auth.LoadDirectory(cfg.Auth.UsersFile)
	if err != nil {
		logger.Fatal("failed to load user directory", zap.Error(err))
	}
	secret := cfg.Auth.Secret()
	if secret == "" {
		logger.Fatal("JWT secret not configured",
			zap.String("env", cfg.Auth.JWTSecretEnv))
	}
	jwtManager := auth.NewJWTManager(secret, cfg.Auth.TokenTTL)

	streams := streaming.NewManager(256)

	workflow := agents.NewWorkflow(
		contextStore,
		sessionStore,
		messageStore,
		dataStore,
		llm.New(cfg.LLM, "coordinator", cfg.LLM.Coordinator, logger),
		llm.New(cfg.LLM, "research", cfg.LLM.Research, logger),
		llm.New(cfg.LLM, "judge", cfg.LLM.Judge, logger),
		streams,
		agents.Config{
			EnableJudge:  cfg.Agents.EnableJudge,
			HistoryLimit: cfg.Agents.HistoryLimit,
		},
		logger,
	)

	api := httpapi.NewServer(
		workflow,
		contextStore,
		sessionStore,
		messageStore,
		dataStore,
		users,
		jwtManager,
		streams,
		httpapi.Config{
			Version:         version,
			RateLimitPerMin: cfg.Agents.RateLimitPerMin,
		},
		logger,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: metricsMux(),
	}
	go func() {
		logger.Info("metrics server listening", zap.Int("port", cfg.Server.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown incomplete", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown incomplete", zap.Error(err))
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = level
	return zc.Build()
}
