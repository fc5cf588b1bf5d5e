package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/internal/domain/tasking"
	"github.com/alem-hub/palms-core/pkg/logger"
)

// OnCommissionLockedHandler books the commission meeting in the calendar.
type OnCommissionLockedHandler struct {
	emitter tasking.Emitter
	log     *logger.Logger
	clock   func() time.Time
	timeout time.Duration
}

// NewOnCommissionLockedHandler создаёт новый обработчик.
func NewOnCommissionLockedHandler(emitter tasking.Emitter, log *logger.Logger) *OnCommissionLockedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnCommissionLockedHandler{
		emitter: emitter,
		log:     log.With(logger.Component("commissions")),
		clock:   func() time.Time { return time.Now().UTC() },
		timeout: 10 * time.Second,
	}
}

// Handle реализует shared.EventHandler.
func (h *OnCommissionLockedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.CommissionEvent)
	if !ok || e.EventType() != shared.EventCommissionLocked {
		return nil
	}

	req, err := tasking.NewCommissionEvent(e.AggregateID(), e.Name, e.MeetingDate, e.Attendees(), e.Manager.UserID, h.clock())
	if err != nil {
		h.log.Warn("commission event skipped", logger.String("commission_id", e.AggregateID()), logger.Err(err))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.emitter.RequestCalendarEvent(ctx, req); err != nil {
		return fmt.Errorf("request commission event: %w", err)
	}
	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnCommissionLockedHandler) EventType() shared.EventType {
	return shared.EventCommissionLocked
}

// OnCommissionUnlockedHandler removes the meeting booked on lock.
type OnCommissionUnlockedHandler struct {
	emitter tasking.Emitter
	clock   func() time.Time
	timeout time.Duration
}

// NewOnCommissionUnlockedHandler создаёт новый обработчик.
func NewOnCommissionUnlockedHandler(emitter tasking.Emitter) *OnCommissionUnlockedHandler {
	return &OnCommissionUnlockedHandler{
		emitter: emitter,
		clock:   func() time.Time { return time.Now().UTC() },
		timeout: 10 * time.Second,
	}
}

// Handle реализует shared.EventHandler.
func (h *OnCommissionUnlockedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.CommissionEvent)
	if !ok || e.EventType() != shared.EventCommissionUnlocked {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	err := h.emitter.CancelCalendarEvent(ctx, tasking.CalendarEventCancel{
		Kind:        tasking.EventCommission,
		RelatedID:   e.AggregateID(),
		RequestedAt: h.clock(),
	})
	if err != nil {
		return fmt.Errorf("cancel commission event: %w", err)
	}
	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnCommissionUnlockedHandler) EventType() shared.EventType {
	return shared.EventCommissionUnlocked
}
