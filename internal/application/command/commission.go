package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMISSION COMMANDS
// Комиссия хранится вне ядра; здесь только фиксация даты защиты
// в журналах проектов и календарные события.
// ══════════════════════════════════════════════════════════════════════════════

// CommissionCommand locks or unlocks a defense commission.
type CommissionCommand struct {
	Actor              identity.User
	CommissionID       string
	Name               string
	MeetingDate        time.Time
	MemberProfessorIDs []string
	ProjectIDs         []string
}

// Validate validates the command.
func (c CommissionCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.CommissionID == "" {
		return errors.New("commission: commission_id is required")
	}
	if c.Name == "" {
		return errors.New("commission: name is required")
	}
	if c.MeetingDate.IsZero() {
		return errors.New("commission: meeting_date is required")
	}
	if shared.NewIDSet(c.ProjectIDs...).Len() == 0 {
		return errors.New("commission: project_ids are required")
	}
	return nil
}

// CommissionHandler handles Lock and Unlock.
type CommissionHandler struct {
	deps Deps
}

// NewCommissionHandler creates a new CommissionHandler.
func NewCommissionHandler(deps Deps) *CommissionHandler {
	return &CommissionHandler{deps: deps.withDefaults()}
}

// Lock fixes the commission: every project must be completed.
func (h *CommissionHandler) Lock(ctx context.Context, cmd CommissionCommand) (*shared.CommissionEvent, error) {
	return h.handle(ctx, "lock_commission", shared.EventCommissionLocked, cmd)
}

// Unlock reverts Lock and cancels the calendar event.
func (h *CommissionHandler) Unlock(ctx context.Context, cmd CommissionCommand) (*shared.CommissionEvent, error) {
	return h.handle(ctx, "unlock_commission", shared.EventCommissionUnlocked, cmd)
}

func (h *CommissionHandler) handle(ctx context.Context, op string, eventType shared.EventType, cmd CommissionCommand) (*shared.CommissionEvent, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand(op, err)
	}
	if !cmd.Actor.IsManager() && !cmd.Actor.IsAdmin() {
		return nil, shared.Denied("commission", op, "Only program managers can set commissions.")
	}

	var out shared.CommissionEvent
	_, err := h.deps.execute(ctx, op, cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		now := h.deps.Clock()

		var members []string
		for _, id := range shared.NewIDSet(cmd.MemberProfessorIDs...).Slice() {
			prof, err := tx.Academic().GetProfessor(ctx, id)
			if err != nil {
				return nil, err
			}
			members = append(members, prof.UserID)
		}

		body := fmt.Sprintf("Commission %s is set for %s.", cmd.Name, cmd.MeetingDate.Format(time.DateOnly))
		if eventType == shared.EventCommissionUnlocked {
			body = fmt.Sprintf("Commission %s is unset.", cmd.Name)
		}

		var students, projects []string
		for _, id := range shared.NewIDSet(cmd.ProjectIDs...).Slice() {
			p, err := tx.Projects().GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if p.PublicationState != project.PublicationCompleted {
				return nil, shared.BadTransition("commission", op,
					fmt.Sprintf("Project %q is not completed yet.", p.Name))
			}
			if p.ElectedStudentUserID != "" {
				students = append(students, p.ElectedStudentUserID)
			}
			projects = append(projects, p.ID)
			if err := logActivity(ctx, tx, activity.EntityProject, p.ID, actorOf(cmd.Actor), activity.SubtypeNote, body, now); err != nil {
				return nil, err
			}
		}

		out = shared.NewCommissionEvent(eventType, cmd.CommissionID, cmd.Name, cmd.MeetingDate,
			actorOf(cmd.Actor), members, students, projects)
		return []shared.Event{out}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
