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
// PROGRAM TARGETS
// Управление программами, в которые будет отправлен проект.
// ══════════════════════════════════════════════════════════════════════════════

// AddTargetCommand adds a program to a draft project.
type AddTargetCommand struct {
	Actor     identity.User
	ProjectID string
	ProgramID string
	Type      project.WorkType
	DegreeIDs []string
}

// Validate validates the command.
func (c AddTargetCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.ProjectID == "" || c.ProgramID == "" {
		return errors.New("add_target: project_id and program_id are required")
	}
	return nil
}

// AddTargetHandler handles AddTargetCommand.
type AddTargetHandler struct {
	deps Deps
}

// NewAddTargetHandler creates a new AddTargetHandler.
func NewAddTargetHandler(deps Deps) *AddTargetHandler {
	return &AddTargetHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *AddTargetHandler) Handle(ctx context.Context, cmd AddTargetCommand) (*project.Availability, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("add_target", err)
	}

	var out *project.Availability
	_, err := h.deps.execute(ctx, "add_target", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		now := h.deps.Clock()

		p, err := tx.Projects().GetForUpdate(ctx, cmd.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := p.CheckProfessorIdentity(cmd.Actor); err != nil {
			return nil, err
		}
		if p.EvaluationState != project.EvaluationDraft {
			return nil, shared.BadTransition("availability", "AddTarget", "This project is already submitted, cancel the submission to modify this section.")
		}

		program, err := tx.Academic().GetProgram(ctx, cmd.ProgramID)
		if err != nil {
			return nil, err
		}
		a, err := project.NewAvailability(h.deps.NewID(), p, program.ID, program.SupervisorUserID, cmd.Type, cmd.DegreeIDs, now)
		if err != nil {
			return nil, err
		}
		if err := tx.Availabilities().Create(ctx, a); err != nil {
			if shared.IsAlreadyExists(err) {
				return nil, shared.WrapError("availability", "AddTarget", shared.ErrAlreadyExists,
					"You have specified duplicate target programs.", err)
			}
			return nil, fmt.Errorf("add_target: save availability: %w", err)
		}

		out = a
		if len(a.Snapshot.AdditionalFiles) == 0 {
			return nil, nil
		}
		return []shared.Event{shared.NewAttachmentsSharedEvent(p.ID, a.Snapshot.AdditionalFiles)}, nil
	})
	return out, err
}

// RemoveTargetCommand removes a program that the project was not submitted to yet.
type RemoveTargetCommand struct {
	Actor          identity.User
	AvailabilityID string
}

// Validate validates the command.
func (c RemoveTargetCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.AvailabilityID == "" {
		return errors.New("remove_target: availability_id is required")
	}
	return nil
}

// RemoveTargetHandler handles RemoveTargetCommand.
type RemoveTargetHandler struct {
	deps Deps
}

// NewRemoveTargetHandler creates a new RemoveTargetHandler.
func NewRemoveTargetHandler(deps Deps) *RemoveTargetHandler {
	return &RemoveTargetHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *RemoveTargetHandler) Handle(ctx context.Context, cmd RemoveTargetCommand) error {
	if err := cmd.Validate(); err != nil {
		return invalidCommand("remove_target", err)
	}

	_, err := h.deps.execute(ctx, "remove_target", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		unlocked, err := tx.Availabilities().GetByID(ctx, cmd.AvailabilityID)
		if err != nil {
			return nil, err
		}
		p, err := tx.Projects().GetForUpdate(ctx, unlocked.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := p.CheckProfessorIdentity(cmd.Actor); err != nil {
			return nil, err
		}
		a, err := tx.Availabilities().GetByID(ctx, cmd.AvailabilityID)
		if err != nil {
			return nil, err
		}
		if a.State != project.AvailabilityWaiting {
			return nil, shared.BadTransition("availability", "RemoveTarget", "This project is already submitted, cancel the submission to modify this section.")
		}
		return nil, tx.Availabilities().Delete(ctx, a.ID)
	})
	return err
}

// UpdateTargetsCommand changes the work type and degrees of one submission.
type UpdateTargetsCommand struct {
	Actor          identity.User
	AvailabilityID string
	Type           project.WorkType
	DegreeIDs      []string
}

// Validate validates the command.
func (c UpdateTargetsCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.AvailabilityID == "" {
		return errors.New("update_targets: availability_id is required")
	}
	return nil
}

// UpdateTargetsHandler handles UpdateTargetsCommand.
type UpdateTargetsHandler struct {
	deps Deps
}

// NewUpdateTargetsHandler creates a new UpdateTargetsHandler.
func NewUpdateTargetsHandler(deps Deps) *UpdateTargetsHandler {
	return &UpdateTargetsHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *UpdateTargetsHandler) Handle(ctx context.Context, cmd UpdateTargetsCommand) (*project.Availability, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("update_targets", err)
	}

	var out *project.Availability
	_, err := h.deps.execute(ctx, "update_targets", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		unlocked, err := tx.Availabilities().GetByID(ctx, cmd.AvailabilityID)
		if err != nil {
			return nil, err
		}
		p, err := tx.Projects().GetForUpdate(ctx, unlocked.ProjectID)
		if err != nil {
			return nil, err
		}
		a, err := tx.Availabilities().GetByID(ctx, cmd.AvailabilityID)
		if err != nil {
			return nil, err
		}
		if err := a.UpdateTargets(cmd.Actor, p.ProfessorUserID, cmd.Type, cmd.DegreeIDs, h.deps.Clock()); err != nil {
			return nil, err
		}
		out = a
		return nil, tx.Availabilities().Update(ctx, a)
	})
	return out, err
}

// ══════════════════════════════════════════════════════════════════════════════
// BRANCH PROJECT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// BranchProjectCommand copies a project into a new draft targeting the
// program of one of its submissions.
type BranchProjectCommand struct {
	Actor          identity.User
	AvailabilityID string
}

// Validate validates the command.
func (c BranchProjectCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.AvailabilityID == "" {
		return errors.New("branch_project: availability_id is required")
	}
	return nil
}

// BranchProjectResult contains the branch.
type BranchProjectResult struct {
	Project      *project.Project
	Availability *project.Availability
}

// BranchProjectHandler handles BranchProjectCommand.
type BranchProjectHandler struct {
	deps Deps
}

// NewBranchProjectHandler creates a new BranchProjectHandler.
func NewBranchProjectHandler(deps Deps) *BranchProjectHandler {
	return &BranchProjectHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *BranchProjectHandler) Handle(ctx context.Context, cmd BranchProjectCommand) (*BranchProjectResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("branch_project", err)
	}

	result := &BranchProjectResult{}
	_, err := h.deps.execute(ctx, "branch_project", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		now := h.deps.Clock()

		a, err := tx.Availabilities().GetByID(ctx, cmd.AvailabilityID)
		if err != nil {
			return nil, err
		}
		p, err := tx.Projects().GetByID(ctx, a.ProjectID)
		if err != nil {
			return nil, err
		}
		if cmd.Actor.ID != p.ProfessorUserID {
			return nil, shared.Denied("project", "Branch", "Only the professor who submitted this project can create a new branch.")
		}
		program, err := tx.Academic().GetProgram(ctx, a.ProgramID)
		if err != nil {
			return nil, err
		}

		branch := p.Branch(h.deps.NewID(), program.Name, now)
		if err := tx.Projects().Create(ctx, branch); err != nil {
			return nil, fmt.Errorf("branch_project: save project: %w", err)
		}
		copied := a.BranchCopy(h.deps.NewID(), branch, now)
		if err := tx.Availabilities().Create(ctx, copied); err != nil {
			return nil, fmt.Errorf("branch_project: save availability: %w", err)
		}
		body := fmt.Sprintf("Branched from %q for %s.", p.Name, program.Name)
		if err := logActivity(ctx, tx, activity.EntityProject, branch.ID, actorOf(cmd.Actor), activity.SubtypeNote, body, now); err != nil {
			return nil, err
		}

		result.Project = branch
		result.Availability = copied
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
