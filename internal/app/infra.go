// Package app wires configuration into the stores, clients and handlers
// shared by the api and worker binaries.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/alem-hub/palms-core/config"
	"github.com/alem-hub/palms-core/internal/application/query"
	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/document"
	"github.com/alem-hub/palms-core/internal/domain/notification"
	"github.com/alem-hub/palms-core/internal/domain/tasking"
	"github.com/alem-hub/palms-core/internal/infrastructure/messaging"
	"github.com/alem-hub/palms-core/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/palms-core/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/palms-core/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/palms-core/internal/infrastructure/service"
	"github.com/alem-hub/palms-core/internal/infrastructure/storage"
	"github.com/alem-hub/palms-core/internal/interface/http/handlers"
	"github.com/alem-hub/palms-core/pkg/logger"
)

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Output = os.Stdout
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// Infra holds the connections of one process. Optional clients stay nil
// when they are not configured.
type Infra struct {
	UoW      uow.UnitOfWork
	Reader   query.Reader
	Channels notification.ChannelStore

	Postgres  *postgres.Connection
	Redis     *redis.Cache
	Broker    *messaging.Publisher
	Documents *storage.DocumentStore

	Gateway *service.NotificationGateway

	log     *logger.Logger
	closers []func()
}

// NewInfra opens every configured connection. Postgres is mandatory for the
// postgres driver; Redis, the broker and MinIO degrade to disabled features.
func NewInfra(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Infra, error) {
	in := &Infra{log: log}

	if err := in.openStore(ctx, cfg.Database); err != nil {
		in.Close()
		return nil, err
	}
	in.openRedis(cfg.Redis)
	in.openBroker(cfg.Broker)
	if err := in.openStorage(cfg.Storage); err != nil {
		in.Close()
		return nil, err
	}

	var cache notification.ChannelCache
	var toasts service.ToastPublisher
	if in.Redis != nil {
		cache = redis.NewChannelCache(in.Redis)
		toasts = redis.NewToastPublisher(in.Redis)
	}
	in.Gateway = service.NewNotificationGateway(in.Channels, cache, toasts, log)

	return in, nil
}

func (in *Infra) openStore(ctx context.Context, cfg config.DatabaseConfig) error {
	switch cfg.Driver {
	case config.DriverMemory:
		store := memory.NewStore()
		in.UoW, in.Reader = store, store
		in.Channels = memory.NewChannelStore()
		in.log.Warn("using in-memory storage, data is lost on restart")
		return nil

	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig(cfg.URL)
		pgCfg.MaxConns = int32(cfg.MaxConns)
		pgCfg.MinConns = int32(cfg.MinConns)
		pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

		in.log.Info("connecting to database...")
		conn, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		in.Postgres = conn
		in.closers = append(in.closers, conn.Close)

		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, conn, in.log); err != nil {
				return err
			}
		}

		store := postgres.NewUnitOfWork(conn)
		in.UoW, in.Reader = store, store
		in.Channels = postgres.NewChannelStore(conn)
		in.log.Info("database connection established")
		return nil
	}
	return fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

func (in *Infra) openRedis(cfg config.RedisConfig) {
	if cfg.Disabled {
		in.log.Info("redis disabled: channel cache, toasts and job locks are off")
		return
	}

	rc := redis.DefaultConfig()
	rc.Host = cfg.Host
	rc.Port = cfg.Port
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	rc.PoolSize = cfg.PoolSize
	rc.MinIdleConns = cfg.MinIdleConns
	rc.DialTimeout = cfg.DialTimeout
	rc.ReadTimeout = cfg.ReadTimeout
	rc.WriteTimeout = cfg.WriteTimeout

	cache, err := redis.NewCache(rc)
	if err != nil {
		// Redis не обязателен
		in.log.Warn("failed to connect to redis, continuing without it", logger.Err(err))
		return
	}
	in.Redis = cache
	in.closers = append(in.closers, func() { _ = cache.Close() })
}

func (in *Infra) openBroker(cfg config.BrokerConfig) {
	if cfg.URL == "" {
		in.log.Warn("AMQP_URL is empty: mails and task projects are not requested")
		return
	}

	bc := messaging.DefaultAMQPConfig(cfg.URL)
	bc.Exchange = cfg.Exchange
	bc.MailQueue = cfg.MailQueue
	bc.TaskQueue = cfg.TaskQueue
	bc.CalendarQueue = cfg.CalendarQueue
	bc.PublishTimeout = cfg.PublishTimeout

	pub, err := messaging.DialPublisher(bc, in.log)
	if err != nil {
		in.log.Warn("failed to connect to broker, continuing without it", logger.Err(err))
		return
	}
	in.Broker = pub
	in.closers = append(in.closers, func() { _ = pub.Close() })
}

func (in *Infra) openStorage(cfg config.StorageConfig) error {
	if cfg.Endpoint == "" {
		in.log.Warn("MINIO_ENDPOINT is empty: outcome files cannot be attached")
		return nil
	}
	store, err := storage.NewDocumentStore(storage.Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		UseSSL:    cfg.UseSSL,
	}, in.log)
	if err != nil {
		return fmt.Errorf("document store: %w", err)
	}
	in.Documents = store
	return nil
}

// Mailer returns the broker as a mailer, or nil without a broker.
func (in *Infra) Mailer() notification.Mailer {
	if in.Broker == nil {
		return nil
	}
	return in.Broker
}

// TaskEmitter returns the broker as a task emitter, or nil without a broker.
func (in *Infra) TaskEmitter() tasking.Emitter {
	if in.Broker == nil {
		return nil
	}
	return in.Broker
}

// DocumentStore returns the document store, or nil without MinIO.
func (in *Infra) DocumentStore() document.Store {
	if in.Documents == nil {
		return nil
	}
	return in.Documents
}

// HealthChecks registers a check per open connection.
func (in *Infra) HealthChecks(h handlers.HealthChecker) {
	if in.Postgres != nil {
		h.AddCheck("postgres", in.Postgres.Ready)
	}
	if in.Redis != nil {
		h.AddCheck("redis", handlers.PingCheck(in.Redis))
	}
}

// Close releases connections in reverse order of opening.
func (in *Infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
	in.closers = nil
}
