package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/proposal"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROPOSAL COMMANDS
// Студент предлагает тему, профессор принимает или отклоняет.
// ══════════════════════════════════════════════════════════════════════════════

// CreateProposalCommand drafts a proposal from the acting student.
type CreateProposalCommand struct {
	Actor       identity.User
	ProfessorID string
	// Fields carries the descriptive fields; identity and state fields are ignored.
	Fields proposal.Proposal
}

// Validate validates the command.
func (c CreateProposalCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.ProfessorID == "" {
		return errors.New("create_proposal: professor_id is required")
	}
	return nil
}

// CreateProposalHandler handles CreateProposalCommand.
type CreateProposalHandler struct {
	deps Deps
}

// NewCreateProposalHandler creates a new CreateProposalHandler.
func NewCreateProposalHandler(deps Deps) *CreateProposalHandler {
	return &CreateProposalHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *CreateProposalHandler) Handle(ctx context.Context, cmd CreateProposalCommand) (*proposal.Proposal, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("create_proposal", err)
	}

	var out *proposal.Proposal
	_, err := h.deps.execute(ctx, "create_proposal", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		now := h.deps.Clock()

		fields := cmd.Fields
		student, err := tx.Academic().GetStudentByUser(ctx, cmd.Actor.ID)
		switch {
		case err == nil:
			fields.ProponentID = student.ID
			fields.ProponentUserID = student.UserID
		case !shared.IsNotFound(err):
			return nil, err
		}
		prof, err := tx.Academic().GetProfessor(ctx, cmd.ProfessorID)
		if err != nil {
			return nil, err
		}
		fields.ProfessorID = prof.ID
		fields.ProfessorUserID = prof.UserID

		p, err := proposal.New(h.deps.NewID(), fields, now)
		if err != nil {
			return nil, err
		}
		if err := tx.Proposals().Create(ctx, p); err != nil {
			return nil, fmt.Errorf("create_proposal: save: %w", err)
		}
		out = p
		return attachmentsShared(p.ID, p.AdditionalFiles), nil
	})
	return out, err
}

// ProposalActionCommand targets one proposal. Feedback is used by reject only.
type ProposalActionCommand struct {
	Actor      identity.User
	ProposalID string
	Feedback   string
}

// Validate validates the command.
func (c ProposalActionCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.ProposalID == "" {
		return errors.New("proposal: proposal_id is required")
	}
	return nil
}

// ProposalHandler handles the send, cancel, accept, reject and delete
// transitions of a proposal.
type ProposalHandler struct {
	deps Deps
}

// NewProposalHandler creates a new ProposalHandler.
func NewProposalHandler(deps Deps) *ProposalHandler {
	return &ProposalHandler{deps: deps.withDefaults()}
}

// Send submits the proposal to the professor.
func (h *ProposalHandler) Send(ctx context.Context, cmd ProposalActionCommand) (*proposal.Proposal, error) {
	return h.transition(ctx, "send_proposal", cmd, func(ctx context.Context, tx uow.Tx, p *proposal.Proposal) ([]shared.Event, error) {
		now := h.deps.Clock()
		if err := p.Send(cmd.Actor, now); err != nil {
			return nil, err
		}
		if err := logActivity(ctx, tx, activity.EntityProposal, p.ID, actorOf(cmd.Actor), activity.SubtypeNote, "The proposal is sent to the professor.", now); err != nil {
			return nil, err
		}
		proponent, professor := h.actors(ctx, tx, p)
		return []shared.Event{
			shared.NewProposalEvent(shared.EventProposalSent, p.ID, p.Name, proponent, professor, ""),
		}, nil
	})
}

// Cancel withdraws a sent proposal.
func (h *ProposalHandler) Cancel(ctx context.Context, cmd ProposalActionCommand) (*proposal.Proposal, error) {
	return h.transition(ctx, "cancel_proposal", cmd, func(ctx context.Context, tx uow.Tx, p *proposal.Proposal) ([]shared.Event, error) {
		now := h.deps.Clock()
		if err := p.Cancel(cmd.Actor, now); err != nil {
			return nil, err
		}
		return nil, logActivity(ctx, tx, activity.EntityProposal, p.ID, actorOf(cmd.Actor), activity.SubtypeNote, "The proposal is withdrawn.", now)
	})
}

// Accept converts the proposal into a project assigned to the proponent,
// with one waiting submission to the proponent's program and degree.
func (h *ProposalHandler) Accept(ctx context.Context, cmd ProposalActionCommand) (*proposal.Proposal, error) {
	return h.transition(ctx, "accept_proposal", cmd, func(ctx context.Context, tx uow.Tx, p *proposal.Proposal) ([]shared.Event, error) {
		now := h.deps.Clock()
		if err := p.CheckAcceptable(cmd.Actor); err != nil {
			return nil, err
		}

		student, err := tx.Academic().GetStudent(ctx, p.ProponentID)
		if err != nil {
			return nil, err
		}
		program, err := tx.Academic().GetProgram(ctx, student.ProgramID)
		if err != nil {
			return nil, err
		}

		prj, err := project.NewFromProposal(h.deps.NewID(), p.ID, p.ProjectDetails(), p.ProfessorID, p.ProfessorUserID, student.ID, student.UserID, now)
		if err != nil {
			return nil, err
		}
		if err := tx.Projects().Create(ctx, prj); err != nil {
			return nil, fmt.Errorf("accept_proposal: save project: %w", err)
		}
		a, err := project.NewAvailability(h.deps.NewID(), prj, program.ID, program.SupervisorUserID, p.Type, []string{student.DegreeID}, now)
		if err != nil {
			return nil, err
		}
		if err := tx.Availabilities().Create(ctx, a); err != nil {
			return nil, fmt.Errorf("accept_proposal: save availability: %w", err)
		}

		if err := p.Accept(cmd.Actor, prj.ID, now); err != nil {
			return nil, err
		}
		if err := logActivity(ctx, tx, activity.EntityProposal, p.ID, actorOf(cmd.Actor), activity.SubtypeNote, "The proposal is accepted.", now); err != nil {
			return nil, err
		}
		if err := logActivity(ctx, tx, activity.EntityProject, prj.ID, actorOf(cmd.Actor), activity.SubtypeNote,
			fmt.Sprintf("Created from the proposal %q.", p.Name), now); err != nil {
			return nil, err
		}

		proponent, professor := h.actors(ctx, tx, p)
		return []shared.Event{
			shared.NewProposalEvent(shared.EventProposalAccepted, p.ID, p.Name, proponent, professor, prj.ID),
		}, nil
	})
}

// Reject declines the proposal with feedback.
func (h *ProposalHandler) Reject(ctx context.Context, cmd ProposalActionCommand) (*proposal.Proposal, error) {
	return h.transition(ctx, "reject_proposal", cmd, func(ctx context.Context, tx uow.Tx, p *proposal.Proposal) ([]shared.Event, error) {
		now := h.deps.Clock()
		if err := p.Reject(cmd.Actor, cmd.Feedback, now); err != nil {
			return nil, err
		}
		if err := logActivity(ctx, tx, activity.EntityProposal, p.ID, actorOf(cmd.Actor), activity.SubtypeNote, "Rejected: "+cmd.Feedback, now); err != nil {
			return nil, err
		}
		proponent, professor := h.actors(ctx, tx, p)
		return []shared.Event{
			shared.NewProposalEvent(shared.EventProposalRejected, p.ID, p.Name, proponent, professor, ""),
		}, nil
	})
}

// Delete removes a proposal.
func (h *ProposalHandler) Delete(ctx context.Context, cmd ProposalActionCommand) error {
	if err := cmd.Validate(); err != nil {
		return invalidCommand("delete_proposal", err)
	}
	_, err := h.deps.execute(ctx, "delete_proposal", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		p, err := tx.Proposals().GetForUpdate(ctx, cmd.ProposalID)
		if err != nil {
			return nil, err
		}
		if err := p.CheckDelete(cmd.Actor); err != nil {
			return nil, err
		}
		return nil, tx.Proposals().Delete(ctx, p.ID)
	})
	return err
}

type proposalStep func(ctx context.Context, tx uow.Tx, p *proposal.Proposal) ([]shared.Event, error)

// transition locks the proposal, applies step and saves it.
func (h *ProposalHandler) transition(ctx context.Context, op string, cmd ProposalActionCommand, step proposalStep) (*proposal.Proposal, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand(op, err)
	}

	var out *proposal.Proposal
	_, err := h.deps.execute(ctx, op, cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		p, err := tx.Proposals().GetForUpdate(ctx, cmd.ProposalID)
		if err != nil {
			return nil, err
		}
		events, err := step(ctx, tx, p)
		if err != nil {
			return nil, err
		}
		if err := tx.Proposals().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("%s: save: %w", op, err)
		}
		out = p
		return events, nil
	})
	return out, err
}

// actors resolves display names for notifications. Missing records leave
// the name empty.
func (h *ProposalHandler) actors(ctx context.Context, tx uow.Tx, p *proposal.Proposal) (proponent, professor shared.Actor) {
	proponent = shared.Actor{UserID: p.ProponentUserID}
	professor = shared.Actor{UserID: p.ProfessorUserID}
	if s, err := tx.Academic().GetStudent(ctx, p.ProponentID); err == nil {
		proponent.Name = s.Name
	}
	if prof, err := tx.Academic().GetProfessor(ctx, p.ProfessorID); err == nil {
		professor.Name = prof.Name
	}
	return proponent, professor
}
