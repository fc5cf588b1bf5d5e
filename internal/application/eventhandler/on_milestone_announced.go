package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/internal/domain/tasking"
	"github.com/alem-hub/palms-core/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON MILESTONE ANNOUNCED HANDLER
// Задача на доске каждого проекта и событие дедлайна в календаре.
// ═══════════════════════════════════════════════════════════════════════════

// OnMilestoneAnnouncedHandler turns a milestone into tracker tasks and a
// deadline event.
type OnMilestoneAnnouncedHandler struct {
	emitter tasking.Emitter
	log     *logger.Logger
	clock   func() time.Time
	timeout time.Duration
}

// NewOnMilestoneAnnouncedHandler создаёт новый обработчик.
func NewOnMilestoneAnnouncedHandler(emitter tasking.Emitter, log *logger.Logger) *OnMilestoneAnnouncedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnMilestoneAnnouncedHandler{
		emitter: emitter,
		log:     log.With(logger.Component("milestones")),
		clock:   func() time.Time { return time.Now().UTC() },
		timeout: 30 * time.Second,
	}
}

// Handle реализует shared.EventHandler. Every task is tried; failures are
// joined. The tracker dedupes tasks on (milestone_id, project_id).
func (h *OnMilestoneAnnouncedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.MilestoneAnnouncedEvent)
	if !ok {
		return nil
	}
	now := h.clock()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var errs []error
	for _, t := range e.Tasks {
		req, err := tasking.NewMilestoneTask(e.AggregateID(), t.ProjectID, e.Name, e.Description, e.Deadline,
			t.StudentUserID, t.ProfessorUserID, e.Author.UserID, e.AttachmentKeys, now)
		if err != nil {
			h.log.Warn("milestone task skipped", logger.ProjectID(t.ProjectID), logger.Err(err))
			continue
		}
		if err := h.emitter.RequestTask(ctx, req); err != nil {
			h.log.Error("failed to request task", logger.ProjectID(t.ProjectID), logger.Err(err))
			errs = append(errs, fmt.Errorf("request task for %s: %w", t.ProjectID, err))
		}
	}

	cal, err := tasking.NewMilestoneDeadlineEvent(e.AggregateID(), e.Name, e.Deadline, e.AttendeeUserIDs, e.Author.UserID, now)
	switch {
	case err != nil:
		h.log.Warn("deadline event skipped", logger.String("milestone_id", e.AggregateID()), logger.Err(err))
	default:
		if err := h.emitter.RequestCalendarEvent(ctx, cal); err != nil {
			errs = append(errs, fmt.Errorf("request calendar event: %w", err))
		}
	}

	h.log.Info("milestone dispatched",
		logger.String("milestone_id", e.AggregateID()),
		logger.Int("tasks", len(e.Tasks)),
		logger.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnMilestoneAnnouncedHandler) EventType() shared.EventType {
	return shared.EventMilestoneAnnounced
}
