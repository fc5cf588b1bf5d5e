package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/internal/domain/tasking"
	"github.com/alem-hub/palms-core/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROJECT ASSIGNED HANDLER
// Запрашивает доску задач для назначенного проекта: стадии по умолчанию,
// подписчики - студент и профессор.
// ═══════════════════════════════════════════════════════════════════════════

// OnProjectAssignedHandler emits a task project request for every assignment.
type OnProjectAssignedHandler struct {
	emitter tasking.Emitter
	log     *logger.Logger
	clock   func() time.Time
	timeout time.Duration
}

// NewOnProjectAssignedHandler создаёт новый обработчик.
func NewOnProjectAssignedHandler(emitter tasking.Emitter, log *logger.Logger) *OnProjectAssignedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnProjectAssignedHandler{
		emitter: emitter,
		log:     log.With(logger.Component("task_board")),
		clock:   func() time.Time { return time.Now().UTC() },
		timeout: 10 * time.Second,
	}
}

// Handle реализует shared.EventHandler.
func (h *OnProjectAssignedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.ProjectAssignedEvent)
	if !ok {
		h.log.Warn("received non-ProjectAssignedEvent", logger.EventType(string(event.EventType())))
		return nil
	}

	req, err := tasking.NewTaskProjectRequest(e.AggregateID(), e.ProjectName, "", e.StudentUserID, e.ProfessorUserID, h.clock())
	if err != nil {
		h.log.Warn("task project skipped", logger.ProjectID(e.AggregateID()), logger.Err(err))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.emitter.RequestTaskProject(ctx, req); err != nil {
		h.log.Error("failed to request task project", logger.ProjectID(e.AggregateID()), logger.Err(err))
		return fmt.Errorf("request task project: %w", err)
	}

	h.log.Info("task project requested",
		logger.ProjectID(e.AggregateID()),
		logger.Bool("via_proposal", e.ViaProposal),
	)
	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnProjectAssignedHandler) EventType() shared.EventType {
	return shared.EventProjectAssigned
}
