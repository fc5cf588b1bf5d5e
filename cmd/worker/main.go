// Package main - точка входа фоновых процессов (Worker).
//
// Worker раз в рабочий день напоминает профессорам о заявках студентов,
// которые ждут ответа: срочные (ответ нужен сегодня) и просроченные.
// Несколько экземпляров worker безопасны: запуск задачи защищён блокировкой
// в Redis.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alem-hub/palms-core/config"
	"github.com/alem-hub/palms-core/internal/app"
	"github.com/alem-hub/palms-core/internal/application/query"
	"github.com/alem-hub/palms-core/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/palms-core/internal/infrastructure/scheduler"
	"github.com/alem-hub/palms-core/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/palms-core/pkg/logger"
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

	log := app.NewLogger(cfg).With(logger.Component("worker"))
	defer func() { _ = log.Sync() }()

	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, nothing to do")
		return nil
	}

	schedule, err := scheduler.ParseSchedule(cfg.Scheduler.ReminderSchedule)
	if err != nil {
		return fmt.Errorf("reminder schedule: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ИНФРАСТРУКТУРА
	// ─────────────────────────────────────────────────────────────────────────
	infra, err := app.NewInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	schedCfg.Timezone = cfg.App.Location
	schedCfg.LockTTL = cfg.Scheduler.LockTTL
	schedCfg.TickInterval = cfg.Scheduler.TickInterval
	if infra.Redis != nil {
		schedCfg.Locker = redis.NewLocker(infra.Redis)
	} else {
		log.Warn("no redis: run a single worker instance to avoid duplicate reminders")
	}
	sched := scheduler.NewScheduler(schedCfg)

	clock := func() time.Time { return time.Now().UTC() }
	jobCfg := jobs.DefaultOverdueApplicationsConfig()
	jobCfg.SendMail = cfg.Notification.SendMail
	jobCfg.Timeout = cfg.Scheduler.JobTimeout
	reminders := jobs.NewOverdueApplicationsJob(
		query.NewOverdueApplicationsHandler(infra.Reader, clock),
		infra.Gateway,
		infra.Mailer(),
		jobCfg,
		log,
	)
	if err := sched.Register(reminders, schedule); err != nil {
		return fmt.Errorf("register %s: %w", reminders.Name(), err)
	}

	sched.OnJobComplete(func(result scheduler.JobResult) {
		if result.Skipped {
			return
		}
		if stats := reminders.LastRunStats(); stats != nil && result.JobName == reminders.Name() {
			log.Info("reminders sent",
				logger.Int("professors", stats.Professors),
				logger.Int("delivered", stats.Delivered),
				logger.Int("failed", stats.Failed),
			)
		}
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	log.Info("worker is running",
		logger.String("schedule", cfg.Scheduler.ReminderSchedule),
		logger.String("timezone", cfg.App.Timezone),
	)

	<-ctx.Done()
	log.Info("shutting down...")

	done := make(chan error, 1)
	go func() { done <- sched.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("stop scheduler: %w", err)
		}
	case <-time.After(cfg.App.ShutdownTimeout):
		return fmt.Errorf("scheduler did not stop within %s", cfg.App.ShutdownTimeout)
	}

	log.Info("shutdown completed successfully")
	return nil
}
