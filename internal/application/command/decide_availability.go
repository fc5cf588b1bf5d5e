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
// DECIDE AVAILABILITY COMMAND
// Решение супервайзера программы по отправленному проекту.
// ══════════════════════════════════════════════════════════════════════════════

// Decision is a supervisor's verdict on one submission.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionReturn  Decision = "return"
)

// IsValid reports whether d is a known decision.
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject || d == DecisionReturn
}

// AutoCancelNote is logged on the project when every program returned it.
const AutoCancelNote = "The project is returned from all submitted programs, so it is automatically reverted to 'Draft' status."

// DecideAvailabilityCommand records a program supervisor's decision.
type DecideAvailabilityCommand struct {
	Actor          identity.User
	AvailabilityID string
	Decision       Decision
	// Reason is required for reject and return.
	Reason string
}

// Validate validates the command.
func (c DecideAvailabilityCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.AvailabilityID == "" {
		return errors.New("decide_availability: availability_id is required")
	}
	if !c.Decision.IsValid() {
		return fmt.Errorf("decide_availability: invalid decision: %s", c.Decision)
	}
	return nil
}

// DecideAvailabilityResult contains the outcome of a decision.
type DecideAvailabilityResult struct {
	Project      *project.Project
	Availability *project.Availability
	Approvals    []*project.Approval

	// AutoCanceled is true when the decision returned the project from its
	// last program and the submission was reverted to draft.
	AutoCanceled bool

	Events []shared.Event
}

// DecideAvailabilityHandler handles DecideAvailabilityCommand.
type DecideAvailabilityHandler struct {
	deps Deps
}

// NewDecideAvailabilityHandler creates a new DecideAvailabilityHandler.
func NewDecideAvailabilityHandler(deps Deps) *DecideAvailabilityHandler {
	return &DecideAvailabilityHandler{deps: deps.withDefaults()}
}

// Handle executes the decision.
func (h *DecideAvailabilityHandler) Handle(ctx context.Context, cmd DecideAvailabilityCommand) (*DecideAvailabilityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("decide_availability", err)
	}

	op := "decide_availability." + string(cmd.Decision)
	var result *DecideAvailabilityResult
	events, err := h.deps.execute(ctx, op, cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		result = &DecideAvailabilityResult{}

		// The project row is the lock; the availability is read again after it.
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
		result.Project = p
		result.Availability = a

		switch cmd.Decision {
		case DecisionApprove:
			return h.approve(ctx, tx, cmd, p, a, result)
		case DecisionReject:
			return h.reject(ctx, tx, cmd, p, a)
		default:
			return h.giveBack(ctx, tx, cmd, p, a, result)
		}
	})
	if err != nil {
		return nil, err
	}
	result.Events = events
	return result, nil
}

func (h *DecideAvailabilityHandler) approve(
	ctx context.Context,
	tx uow.Tx,
	cmd DecideAvailabilityCommand,
	p *project.Project,
	a *project.Availability,
	result *DecideAvailabilityResult,
) ([]shared.Event, error) {
	now := h.deps.Clock()

	if err := a.Approve(cmd.Actor, now); err != nil {
		return nil, err
	}
	outcome, err := p.Approve(a.ProgramID, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Availabilities().Update(ctx, a); err != nil {
		return nil, fmt.Errorf("decide_availability: save availability: %w", err)
	}
	if err := tx.Projects().Update(ctx, p); err != nil {
		return nil, fmt.Errorf("decide_availability: save project: %w", err)
	}

	program, err := tx.Academic().GetProgram(ctx, a.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("decide_availability: load program: %w", err)
	}
	degreeNames := make(map[string]string, a.DegreeIDs.Len())
	for _, id := range a.DegreeIDs.Slice() {
		degree, err := tx.Academic().GetDegree(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("decide_availability: load degree %s: %w", id, err)
		}
		degreeNames[id] = degree.Name()
	}
	result.Approvals = project.NewApprovals(a, program.Name, degreeNames, h.deps.NewID, now)
	for _, approval := range result.Approvals {
		if err := tx.Approvals().Create(ctx, approval); err != nil {
			return nil, fmt.Errorf("decide_availability: save approval: %w", err)
		}
	}
	if err := tx.Academic().LinkProjectToProgram(ctx, program.ID, p.ID); err != nil {
		return nil, fmt.Errorf("decide_availability: link program: %w", err)
	}

	body := fmt.Sprintf("Approved for %s.", program.Name)
	if err := logActivity(ctx, tx, activity.EntityProject, p.ID, actorOf(cmd.Actor), activity.SubtypeProfessorSupervisor, body, now); err != nil {
		return nil, err
	}

	events := []shared.Event{
		shared.NewProjectDecisionEvent(shared.EventProjectApproved, p.ID, p.Name, program.ID, p.ProfessorUserID, actorOf(cmd.Actor), "", string(p.EvaluationState)),
	}
	if outcome.Assigned {
		if err := assignElected(ctx, tx, p); err != nil {
			return nil, err
		}
		events = append(events, shared.NewProjectAssignedEvent(p.ID, p.Name, p.ElectedStudentUserID, p.ProfessorUserID, true))
	}
	return events, nil
}

func (h *DecideAvailabilityHandler) reject(
	ctx context.Context,
	tx uow.Tx,
	cmd DecideAvailabilityCommand,
	p *project.Project,
	a *project.Availability,
) ([]shared.Event, error) {
	now := h.deps.Clock()

	if err := a.Reject(cmd.Actor, cmd.Reason, now); err != nil {
		return nil, err
	}
	if err := p.Reject(a.ProgramID, now); err != nil {
		return nil, err
	}
	if err := tx.Availabilities().Update(ctx, a); err != nil {
		return nil, fmt.Errorf("decide_availability: save availability: %w", err)
	}
	if err := tx.Projects().Update(ctx, p); err != nil {
		return nil, fmt.Errorf("decide_availability: save project: %w", err)
	}
	if err := logActivity(ctx, tx, activity.EntityProject, p.ID, actorOf(cmd.Actor), activity.SubtypeProfessorSupervisor,
		"Rejected: "+cmd.Reason, now); err != nil {
		return nil, err
	}

	return []shared.Event{
		shared.NewProjectDecisionEvent(shared.EventProjectRejected, p.ID, p.Name, a.ProgramID, p.ProfessorUserID, actorOf(cmd.Actor), cmd.Reason, string(p.EvaluationState)),
	}, nil
}

// giveBack handles the return decision.
func (h *DecideAvailabilityHandler) giveBack(
	ctx context.Context,
	tx uow.Tx,
	cmd DecideAvailabilityCommand,
	p *project.Project,
	a *project.Availability,
	result *DecideAvailabilityResult,
) ([]shared.Event, error) {
	now := h.deps.Clock()

	if err := a.Return(cmd.Actor, cmd.Reason, now); err != nil {
		return nil, err
	}
	if err := tx.Availabilities().Update(ctx, a); err != nil {
		return nil, fmt.Errorf("decide_availability: save availability: %w", err)
	}

	siblings, err := tx.Availabilities().ListByProject(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("decide_availability: list availabilities: %w", err)
	}
	autoCanceled, err := p.Return(a.ProgramID, siblings, now)
	if err != nil {
		return nil, err
	}
	if err := saveProjectTree(ctx, tx, p, siblings); err != nil {
		return nil, err
	}
	if err := logActivity(ctx, tx, activity.EntityProject, p.ID, actorOf(cmd.Actor), activity.SubtypeProfessorSupervisor,
		"Returned for revision: "+cmd.Reason, now); err != nil {
		return nil, err
	}

	events := []shared.Event{
		shared.NewProjectDecisionEvent(shared.EventProjectReturned, p.ID, p.Name, a.ProgramID, p.ProfessorUserID, actorOf(cmd.Actor), cmd.Reason, string(p.EvaluationState)),
	}
	if !autoCanceled {
		return events, nil
	}

	result.AutoCanceled = true
	for _, s := range siblings {
		if s.ID == a.ID {
			result.Availability = s
		}
	}
	if err := logActivity(ctx, tx, activity.EntityProject, p.ID, shared.SystemActor, activity.SubtypeNote, AutoCancelNote, now); err != nil {
		return nil, err
	}
	return append(events, shared.NewProjectSubmissionCanceledEvent(p.ID, p.Name, p.ProfessorUserID, true)), nil
}

// assignElected gives the elected student of p access to the project.
func assignElected(ctx context.Context, tx uow.Tx, p *project.Project) error {
	if err := tx.Groups().AddMember(ctx, identity.GroupElectedStudent, p.ElectedStudentUserID); err != nil {
		return fmt.Errorf("add elected student to group: %w", err)
	}
	if err := tx.Academic().SetCurrentProject(ctx, p.ElectedStudentID, p.ID); err != nil {
		return fmt.Errorf("set current project: %w", err)
	}
	return nil
}
