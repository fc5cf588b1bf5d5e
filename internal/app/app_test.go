package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/palms-core/config"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/palms-core/internal/interface/http/handlers"
	"github.com/alem-hub/palms-core/pkg/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Name: "palms-core", Environment: config.EnvDevelopment},
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
		Redis:    config.RedisConfig{Disabled: true},
		Notification: config.NotificationConfig{
			SendMail:       true,
			HandlerTimeout: time.Second,
			WorkerPoolSize: 1,
			MaxRetries:     1,
			DeadLetterSize: 10,
		},
	}
}

func TestNewInfra_MemoryDriver(t *testing.T) {
	in, err := NewInfra(context.Background(), memoryConfig(), logger.Nop())
	require.NoError(t, err)
	defer in.Close()

	assert.NotNil(t, in.UoW)
	assert.NotNil(t, in.Reader)
	assert.NotNil(t, in.Gateway)
	assert.Nil(t, in.Postgres)
	assert.Nil(t, in.Redis)

	// Отключённые клиенты возвращаются как nil-интерфейсы.
	assert.Nil(t, in.Mailer())
	assert.Nil(t, in.TaskEmitter())
	assert.Nil(t, in.DocumentStore())

	health := handlers.NewCompositeHealthChecker("test")
	in.HealthChecks(health)
	status := health.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Empty(t, status.Checks)
}

func TestNewInfra_UnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Database.Driver = "sqlite"

	_, err := NewInfra(context.Background(), cfg, logger.Nop())
	assert.ErrorContains(t, err, "sqlite")
}

func TestNewEvents_DeliversNotifications(t *testing.T) {
	in, err := NewInfra(context.Background(), memoryConfig(), logger.Nop())
	require.NoError(t, err)
	defer in.Close()

	events, err := NewEvents(memoryConfig().Notification, in, logger.Nop())
	require.NoError(t, err)

	event := shared.NewProjectSubmittedEvent("p1", "Graph search",
		shared.Actor{UserID: "u-prof", Name: "Ada"}, []string{"sup-A"}, []string{"sup@example.com"})
	require.NoError(t, events.Bus.Publish(event))
	require.NoError(t, events.Close())

	channels, ok := in.Channels.(*memory.ChannelStore)
	require.True(t, ok)
	posted := channels.Messages()
	require.Len(t, posted, 1)
	assert.Equal(t, "Project submitted", posted[0].Title)
	assert.Zero(t, events.DeadLetters.Size())

	deps := CommandDeps(in, events, logger.Nop())
	assert.Same(t, events.Bus, deps.Events)
	assert.Equal(t, in.UoW, deps.UoW)
}
