package app

import (
	"fmt"

	"github.com/alem-hub/palms-core/config"
	"github.com/alem-hub/palms-core/internal/application/command"
	"github.com/alem-hub/palms-core/internal/application/eventhandler"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/internal/infrastructure/messaging"
	"github.com/alem-hub/palms-core/pkg/logger"
	"github.com/alem-hub/palms-core/pkg/retry"
)

// Events is the in-process event bus with its dead letter queue.
type Events struct {
	Bus         *messaging.InMemoryEventBus
	DeadLetters *messaging.DeadLetterQueue
}

// NewEvents builds the bus and subscribes every post-commit handler:
// notifications, tracker and calendar requests, attachment publication.
func NewEvents(cfg config.NotificationConfig, in *Infra, log *logger.Logger) (*Events, error) {
	dlq := messaging.NewDeadLetterQueue(cfg.DeadLetterSize)

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	busCfg.AsyncMode = cfg.AsyncDelivery
	busCfg.WorkerPoolSize = cfg.WorkerPoolSize
	busCfg.Middlewares = []messaging.Middleware{
		messaging.RecoveryMiddleware(log),
		messaging.LoggingMiddleware(log),
		messaging.DeadLetterMiddleware(dlq),
		messaging.RetryMiddleware(retry.HandlerRetrier(cfg.MaxRetries)),
		messaging.TimeoutMiddleware(cfg.HandlerTimeout),
	}
	bus := messaging.NewInMemoryEventBus(busCfg)

	if err := subscribe(bus, cfg, in, log); err != nil {
		_ = bus.Close()
		return nil, err
	}
	return &Events{Bus: bus, DeadLetters: dlq}, nil
}

// typedHandler handles a single event type.
type typedHandler interface {
	Handle(shared.Event) error
	EventType() shared.EventType
}

func subscribe(bus *messaging.InMemoryEventBus, cfg config.NotificationConfig, in *Infra, log *logger.Logger) error {
	notifierCfg := eventhandler.DefaultNotifierConfig()
	notifierCfg.Timeout = cfg.HandlerTimeout
	notifierCfg.SendMail = cfg.SendMail
	notifier := eventhandler.NewNotifier(in.Gateway, in.Mailer(), log, notifierCfg)
	if err := notifier.Register(bus); err != nil {
		return fmt.Errorf("register notifier: %w", err)
	}

	handlers := make([]typedHandler, 0, 5)
	if emitter := in.TaskEmitter(); emitter != nil {
		handlers = append(handlers,
			eventhandler.NewOnProjectAssignedHandler(emitter, log),
			eventhandler.NewOnMilestoneAnnouncedHandler(emitter, log),
			eventhandler.NewOnCommissionLockedHandler(emitter, log),
			eventhandler.NewOnCommissionUnlockedHandler(emitter),
		)
	}
	if documents := in.DocumentStore(); documents != nil {
		handlers = append(handlers, eventhandler.NewOnAttachmentsSharedHandler(documents, log))
	}
	for _, h := range handlers {
		if err := bus.Subscribe(h.EventType(), h.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", h.EventType(), err)
		}
	}
	return nil
}

// Close drains the bus.
func (e *Events) Close() error {
	return e.Bus.Close()
}

// CommandDeps binds the command handlers to the store and the bus.
func CommandDeps(in *Infra, events *Events, log *logger.Logger) command.Deps {
	return command.Deps{
		UoW:    in.UoW,
		Events: events.Bus,
		Logger: log,
	}
}
