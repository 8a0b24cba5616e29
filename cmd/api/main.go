package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"unitrack/api/internal/cache"
	"unitrack/api/internal/config"
	"unitrack/api/internal/database"
	"unitrack/api/internal/handlers"
	"unitrack/api/internal/jobs"
	"unitrack/api/internal/log"
	"unitrack/api/internal/mail"
	"unitrack/api/internal/notify"
	"unitrack/api/internal/repository"
	"unitrack/api/internal/security"
	"unitrack/api/internal/server"
	"unitrack/api/internal/service"
	"unitrack/api/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	tokens, err := security.NewTokenService(
		cfg.Security.JWTAccessSecret,
		cfg.Security.JWTRefreshSecret,
		cfg.Security.JWTAccessTTL,
		cfg.Security.JWTRefreshTTL,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init token service")
	}

	userRepo := repository.NewUserRepository(dbPool)
	taskRepo := repository.NewTaskRepository(dbPool)
	mailer := mail.NewMailer(cfg.Mail, logger)
	texter := notify.NewSMSSender(cfg.SMS, logger)

	authService := service.NewAuthService(userRepo, tokens, mailer, cfg.Security.ResetTokenTTL, logger)
	taskService := service.NewTaskService(taskRepo, objectStore, logger)

	handlerSet := handlers.NewHandlerSet(logger, cfg, authService, taskService, userRepo, tokens, dbPool, redisClient)
	httpServer := server.NewHTTPServer(cfg, logger, redisClient, handlerSet)

	scheduler := jobs.NewScheduler(redisClient, taskRepo, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	dispatcherCtx, stopDispatcher := context.WithCancel(ctx)
	dispatcher := jobs.NewDispatcher(redisClient, mailer, texter, logger)
	go func() {
		if err := dispatcher.Start(dispatcherCtx); err != nil && dispatcherCtx.Err() == nil {
			logger.Error().Err(err).Msg("reminder dispatcher stopped")
		}
	}()

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, stopDispatcher, dbPool, redisClient)
}

func waitForShutdown(
	logger zerolog.Logger,
	srv *server.HTTPServer,
	scheduler *jobs.Scheduler,
	stopDispatcher context.CancelFunc,
	db *pgxpool.Pool,
	redisClient *redis.Client,
) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	scheduler.Stop()
	stopDispatcher()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
