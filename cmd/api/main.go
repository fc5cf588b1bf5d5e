// Package main - точка входа HTTP API сервиса согласования проектов.
//
// API принимает команды профессоров, руководителей программ и студентов,
// уведомления уходят после коммита через шину событий.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/palms-core/config"
	"github.com/alem-hub/palms-core/internal/app"
	"github.com/alem-hub/palms-core/internal/infrastructure/auth"
	httpserver "github.com/alem-hub/palms-core/internal/interface/http"
	"github.com/alem-hub/palms-core/internal/interface/http/handlers"
	"github.com/alem-hub/palms-core/pkg/logger"
	"github.com/alem-hub/palms-core/pkg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := app.NewLogger(cfg).With(logger.Component("api"))
	defer func() { _ = log.Sync() }()

	log.Info("starting palms api",
		logger.String("version", cfg.App.Version),
		logger.String("driver", cfg.Database.Driver),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ТРАССИРОВКА
	// ─────────────────────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: cfg.App.Name,
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
		Endpoint:    cfg.Observability.TracingEndpoint,
		Insecure:    cfg.Observability.TracingInsecure,
		Headers:     telemetry.ParseHeaders(cfg.Observability.TracingHeaders),
		SampleRatio: cfg.Observability.TracingSampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ИНФРАСТРУКТУРА
	// ─────────────────────────────────────────────────────────────────────────
	infra, err := app.NewInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	events, err := app.NewEvents(cfg.Notification, infra, log)
	if err != nil {
		return err
	}

	provider, err := auth.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("auth provider: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	infra.HealthChecks(health)

	clock := func() time.Time { return time.Now().UTC() }
	server := httpserver.NewServer(httpserver.Config{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		MaxHeaderBytes: httpserver.DefaultConfig().MaxHeaderBytes,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		MaxConcurrent:  cfg.HTTP.MaxConcurrent,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, httpserver.Dependencies{
		Commands:      httpserver.NewCommands(app.CommandDeps(infra, events, log), infra.DocumentStore()),
		Queries:       httpserver.NewQueries(infra.Reader, clock),
		Auth:          provider,
		HealthChecker: health,
		Logger:        log,
		Version:       cfg.App.Version,
		Clock:         clock,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		var firstErr error
		if err := server.Shutdown(shutdownCtx); err != nil {
			firstErr = fmt.Errorf("http shutdown: %w", err)
		}
		// Шина закрывается после сервера: последние события ещё доставляются.
		if err := events.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("event bus: %w", err)
		}
		if n := events.DeadLetters.Size(); n > 0 {
			log.Warn("undelivered events left in dead letter queue", logger.Int("count", n))
		}
		if err := shutdownTracing(shutdownCtx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("tracing: %w", err)
		}
		return firstErr
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}
