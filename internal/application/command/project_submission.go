package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT PROJECT COMMAND
// Отправляет проект во все выбранные программы.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitProjectCommand sends a draft project to every program it targets.
type SubmitProjectCommand struct {
	Actor     identity.User
	ProjectID string
}

// Validate validates the command.
func (c SubmitProjectCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.ProjectID == "" {
		return errors.New("submit_project: project_id is required")
	}
	return nil
}

// SubmitProjectResult contains the submitted project.
type SubmitProjectResult struct {
	Project *project.Project
	Events  []shared.Event
}

// SubmitProjectHandler handles SubmitProjectCommand.
type SubmitProjectHandler struct {
	deps Deps
}

// NewSubmitProjectHandler creates a new SubmitProjectHandler.
func NewSubmitProjectHandler(deps Deps) *SubmitProjectHandler {
	return &SubmitProjectHandler{deps: deps.withDefaults()}
}

// Handle executes the submit command.
func (h *SubmitProjectHandler) Handle(ctx context.Context, cmd SubmitProjectCommand) (*SubmitProjectResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("submit_project", err)
	}

	result := &SubmitProjectResult{}
	events, err := h.deps.execute(ctx, "submit_project", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		now := h.deps.Clock()

		p, err := tx.Projects().GetForUpdate(ctx, cmd.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := p.CheckProfessorIdentity(cmd.Actor); err != nil {
			return nil, err
		}

		availabilities, err := tx.Availabilities().ListByProject(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("submit_project: list availabilities: %w", err)
		}
		if err := p.Submit(availabilities, now); err != nil {
			return nil, err
		}

		if err := saveProjectTree(ctx, tx, p, availabilities); err != nil {
			return nil, err
		}

		programs, err := tx.Academic().GetPrograms(ctx, p.TargetPrograms.Slice())
		if err != nil {
			return nil, fmt.Errorf("submit_project: load programs: %w", err)
		}
		supervisorIDs := make([]string, 0, len(programs))
		emails := make([]string, 0, len(programs))
		for _, prog := range programs {
			if prog.SupervisorUserID != "" {
				supervisorIDs = append(supervisorIDs, prog.SupervisorUserID)
			}
			if prog.SupervisorEmail != "" {
				emails = append(emails, prog.SupervisorEmail)
			}
		}

		body := fmt.Sprintf("The project is submitted for evaluation to %d program(s).", len(programs))
		if err := logActivity(ctx, tx, activity.EntityProject, p.ID, actorOf(cmd.Actor), activity.SubtypeNote, body, now); err != nil {
			return nil, err
		}

		result.Project = p
		professor := shared.Actor{UserID: p.ProfessorUserID}
		if prof, err := tx.Academic().GetProfessor(ctx, p.ProfessorID); err == nil {
			professor.Name = prof.Name
		}
		return []shared.Event{
			shared.NewProjectSubmittedEvent(p.ID, p.Name, professor, supervisorIDs, emails),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	result.Events = events
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CANCEL SUBMISSION COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CancelSubmissionCommand reverts a submitted project to draft while no
// supervisor has decided on it.
type CancelSubmissionCommand struct {
	Actor     identity.User
	ProjectID string
}

// Validate validates the command.
func (c CancelSubmissionCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.ProjectID == "" {
		return errors.New("cancel_submission: project_id is required")
	}
	return nil
}

// CancelSubmissionHandler handles CancelSubmissionCommand.
type CancelSubmissionHandler struct {
	deps Deps
}

// NewCancelSubmissionHandler creates a new CancelSubmissionHandler.
func NewCancelSubmissionHandler(deps Deps) *CancelSubmissionHandler {
	return &CancelSubmissionHandler{deps: deps.withDefaults()}
}

// Handle executes the cancel command.
func (h *CancelSubmissionHandler) Handle(ctx context.Context, cmd CancelSubmissionCommand) (*project.Project, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("cancel_submission", err)
	}

	var out *project.Project
	_, err := h.deps.execute(ctx, "cancel_submission", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		now := h.deps.Clock()

		p, err := tx.Projects().GetForUpdate(ctx, cmd.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := p.CheckProfessorIdentity(cmd.Actor); err != nil {
			return nil, err
		}
		availabilities, err := tx.Availabilities().ListByProject(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("cancel_submission: list availabilities: %w", err)
		}
		if err := p.CancelSubmission(availabilities, now); err != nil {
			return nil, err
		}
		if err := saveProjectTree(ctx, tx, p, availabilities); err != nil {
			return nil, err
		}
		if err := logActivity(ctx, tx, activity.EntityProject, p.ID, actorOf(cmd.Actor), activity.SubtypeNote,
			"The submission is cancelled, the project is back in 'Draft' status.", now); err != nil {
			return nil, err
		}

		out = p
		return []shared.Event{
			shared.NewProjectSubmissionCanceledEvent(p.ID, p.Name, p.ProfessorUserID, false),
		}, nil
	})
	return out, err
}

// saveProjectTree persists a project together with its availabilities.
func saveProjectTree(ctx context.Context, tx uow.Tx, p *project.Project, availabilities []*project.Availability) error {
	if err := tx.Projects().Update(ctx, p); err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	for _, a := range availabilities {
		if err := tx.Availabilities().Update(ctx, a); err != nil {
			return fmt.Errorf("save availability %s: %w", a.ID, err)
		}
	}
	return nil
}
