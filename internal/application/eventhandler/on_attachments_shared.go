package eventhandler

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/palms-core/internal/domain/document"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/pkg/logger"
)

// OnAttachmentsSharedHandler makes the attachments of a project, proposal
// or application readable by everyone who can see the record.
type OnAttachmentsSharedHandler struct {
	store   document.Store
	log     *logger.Logger
	timeout time.Duration
}

// NewOnAttachmentsSharedHandler создаёт новый обработчик.
func NewOnAttachmentsSharedHandler(store document.Store, log *logger.Logger) *OnAttachmentsSharedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnAttachmentsSharedHandler{
		store:   store,
		log:     log.With(logger.Component("attachments")),
		timeout: 30 * time.Second,
	}
}

// Handle реализует shared.EventHandler. Missing objects are skipped; any
// other failure is returned after every key was tried.
func (h *OnAttachmentsSharedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.AttachmentsSharedEvent)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var errs []error
	for _, key := range e.Keys {
		err := h.store.SetPublic(ctx, key, true)
		switch {
		case err == nil:
		case shared.IsNotFound(err):
			h.log.Warn("attachment not found", logger.ObjectKey(key), logger.String("owner_id", e.AggregateID()))
		default:
			errs = append(errs, err)
			h.log.Error("failed to share attachment", logger.ObjectKey(key), logger.Err(err))
		}
	}
	return errors.Join(errs...)
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnAttachmentsSharedHandler) EventType() shared.EventType {
	return shared.EventAttachmentsShared
}
