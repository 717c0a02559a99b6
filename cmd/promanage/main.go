package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/promanage/promanage/internal/app"
	"github.com/promanage/promanage/internal/auth"
	"github.com/promanage/promanage/internal/gate"
	"github.com/promanage/promanage/internal/modules"
	"github.com/promanage/promanage/internal/observability"
	"github.com/promanage/promanage/internal/permstore"
	"github.com/promanage/promanage/internal/platform/cache"
	"github.com/promanage/promanage/internal/platform/db"
	"github.com/promanage/promanage/internal/session"
	"github.com/promanage/promanage/internal/token"
	"github.com/promanage/promanage/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	codec := token.NewCodec(cfg.JWTSecret, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL(), cfg.ClockSkew())
	denylist := token.NewRedisDenylist(redisClient, logger)

	store, err := permstore.NewRepository(ctx, dbpool)
	if err != nil {
		logger.Error("inspect permission schema", slog.Any("error", err))
		os.Exit(1)
	}

	var activation modules.ActivationCache
	if cfg.ModuleCacheShared {
		activation = modules.NewRedisCache(redisClient, store, cfg.ModuleCacheTTL(), logger)
	} else {
		activation = modules.NewCache(store, cfg.ModuleCacheTTL(), logger)
	}

	resolver := session.NewResolver(store, logger)

	metrics := observability.NewMetrics()

	requestGate := gate.New(gate.Options{
		Config: gate.Config{
			Production:    cfg.IsProduction(),
			IdleTimeout:   cfg.IdleTimeout(),
			SecureCookies: cfg.IsProduction(),
		},
		Codec:    codec,
		Resolver: resolver,
		Cache:    activation,
		Limiter:  gate.NewMemoryRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow()),
		Denylist: denylist,
		Logger:   logger,
		Verdicts: metrics.RecordVerdict,
	})

	mailClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, cfg.AppBaseURL)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, store, codec, denylist, mailClient, logger)
	authHandler := auth.NewHandler(logger, authService, codec, cfg.IsProduction())

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		Gate:        requestGate,
		AuthHandler: authHandler,
		Codec:       codec,
		Pool:        dbpool,
		Metrics:     metrics,
		JobHandler:  jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
