package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/academic"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/application"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION COMMANDS
// Заявки студентов на опубликованные проекты.
// ══════════════════════════════════════════════════════════════════════════════

// CreateApplicationCommand drafts an application of the acting student.
type CreateApplicationCommand struct {
	Actor           identity.User
	ProjectID       string
	Message         string
	AdditionalFiles []string
	AdditionalEmail string
	AdditionalPhone string
	Telegram        string
}

// Validate validates the command.
func (c CreateApplicationCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.ProjectID == "" {
		return errors.New("create_application: project_id is required")
	}
	return nil
}

// CreateApplicationHandler handles CreateApplicationCommand.
type CreateApplicationHandler struct {
	deps Deps
}

// NewCreateApplicationHandler creates a new CreateApplicationHandler.
func NewCreateApplicationHandler(deps Deps) *CreateApplicationHandler {
	return &CreateApplicationHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *CreateApplicationHandler) Handle(ctx context.Context, cmd CreateApplicationCommand) (*application.Application, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("create_application", err)
	}

	var out *application.Application
	_, err := h.deps.execute(ctx, "create_application", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		now := h.deps.Clock()

		p, err := tx.Projects().GetByID(ctx, cmd.ProjectID)
		if err != nil {
			return nil, err
		}
		var student *academic.Student
		student, err = tx.Academic().GetStudentByUser(ctx, cmd.Actor.ID)
		if err != nil && !shared.IsNotFound(err) {
			return nil, err
		}
		availabilities, err := tx.Availabilities().ListByProject(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("create_application: list availabilities: %w", err)
		}
		if err := p.CheckApplyEligibility(student, availabilities); err != nil {
			return nil, err
		}

		a, err := application.New(h.deps.NewID(), p.ID, student.ID, cmd.Actor.ID, p.ProfessorUserID, cmd.Message, now)
		if err != nil {
			return nil, err
		}
		a.AdditionalFiles = cmd.AdditionalFiles
		a.AdditionalEmail = cmd.AdditionalEmail
		a.AdditionalPhone = cmd.AdditionalPhone
		a.Telegram = cmd.Telegram

		if err := tx.Applications().Create(ctx, a); err != nil {
			if shared.IsAlreadyExists(err) {
				return nil, shared.WrapError("application", "Create", shared.ErrAlreadyExists, "You have already applied to this project.", err)
			}
			return nil, fmt.Errorf("create_application: save: %w", err)
		}
		out = a
		return attachmentsShared(a.ID, a.AdditionalFiles), nil
	})
	return out, err
}

// ApplicationActionCommand targets one application. Feedback is used by
// reject only.
type ApplicationActionCommand struct {
	Actor         identity.User
	ApplicationID string
	Feedback      string
}

// Validate validates the command.
func (c ApplicationActionCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.ApplicationID == "" {
		return errors.New("application: application_id is required")
	}
	return nil
}

// ApplicationResult contains the application and the project it targets.
type ApplicationResult struct {
	Application *application.Application
	Project     *project.Project
	// AutoRejected lists sibling applications rejected by an accept.
	AutoRejected []*application.Application
	Events       []shared.Event
}

// ApplicationHandler handles the send, cancel, accept and reject
// transitions of an application.
type ApplicationHandler struct {
	deps Deps
}

// NewApplicationHandler creates a new ApplicationHandler.
func NewApplicationHandler(deps Deps) *ApplicationHandler {
	return &ApplicationHandler{deps: deps.withDefaults()}
}

// Send submits the application. The first application on a published
// project moves it to applied in the same transaction.
func (h *ApplicationHandler) Send(ctx context.Context, cmd ApplicationActionCommand) (*ApplicationResult, error) {
	return h.transition(ctx, "send_application", cmd, func(ctx context.Context, tx uow.Tx, a *application.Application, p *project.Project, res *ApplicationResult) ([]shared.Event, error) {
		now := h.deps.Clock()

		sent, err := tx.Applications().ListByApplicant(ctx, a.ApplicantID, application.StateSent)
		if err != nil {
			return nil, fmt.Errorf("list sent applications: %w", err)
		}
		hasOther := false
		for _, other := range sent {
			if other.ID != a.ID {
				hasOther = true
				break
			}
		}

		checks := application.SendChecks{
			ProjectOpen:     p.PublicationState.AcceptsApplications(),
			HasOtherSent:    hasOther,
			ProfessorUserID: p.ProfessorUserID,
		}
		if err := a.Send(cmd.Actor, checks, now); err != nil {
			return nil, err
		}

		// ApplicationReceived
		if p.OnApplicationReceived(now) {
			if err := tx.Projects().Update(ctx, p); err != nil {
				return nil, fmt.Errorf("save project: %w", err)
			}
		}

		if err := logActivity(ctx, tx, activity.EntityApplication, a.ID, actorOf(cmd.Actor), activity.SubtypeNote, "The application is sent.", now); err != nil {
			return nil, err
		}
		if err := logActivity(ctx, tx, activity.EntityProject, p.ID, actorOf(cmd.Actor), activity.SubtypeNote, "New application received.", now); err != nil {
			return nil, err
		}
		return []shared.Event{
			shared.NewApplicationEvent(shared.EventApplicationReceived, a.ID, p.ID, p.Name, h.applicant(ctx, tx, a), p.ProfessorUserID, false),
		}, nil
	})
}

// Cancel withdraws a sent application.
func (h *ApplicationHandler) Cancel(ctx context.Context, cmd ApplicationActionCommand) (*ApplicationResult, error) {
	return h.transition(ctx, "cancel_application", cmd, func(ctx context.Context, tx uow.Tx, a *application.Application, p *project.Project, res *ApplicationResult) ([]shared.Event, error) {
		now := h.deps.Clock()
		if err := a.Cancel(cmd.Actor, now); err != nil {
			return nil, err
		}
		return nil, logActivity(ctx, tx, activity.EntityApplication, a.ID, actorOf(cmd.Actor), activity.SubtypeNote, "The application is withdrawn.", now)
	})
}

// Accept assigns the applicant to the project and rejects every other sent
// application to it.
func (h *ApplicationHandler) Accept(ctx context.Context, cmd ApplicationActionCommand) (*ApplicationResult, error) {
	return h.transition(ctx, "accept_application", cmd, func(ctx context.Context, tx uow.Tx, a *application.Application, p *project.Project, res *ApplicationResult) ([]shared.Event, error) {
		now := h.deps.Clock()

		if err := a.Accept(cmd.Actor, p.ProfessorUserID, now); err != nil {
			return nil, err
		}
		if err := p.Assign(a.ApplicantID, a.ApplicantUserID, now); err != nil {
			return nil, err
		}
		if err := tx.Projects().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("save project: %w", err)
		}
		if err := assignElected(ctx, tx, p); err != nil {
			return nil, err
		}
		if err := logActivity(ctx, tx, activity.EntityApplication, a.ID, actorOf(cmd.Actor), activity.SubtypeNote, "The application is accepted.", now); err != nil {
			return nil, err
		}

		events := []shared.Event{
			shared.NewApplicationEvent(shared.EventApplicationAccepted, a.ID, p.ID, p.Name, h.applicant(ctx, tx, a), p.ProfessorUserID, false),
			shared.NewProjectAssignedEvent(p.ID, p.Name, p.ElectedStudentUserID, p.ProfessorUserID, false),
		}

		siblings, err := tx.Applications().ListByProject(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("list applications: %w", err)
		}
		for _, s := range siblings {
			if s.ID == a.ID || !s.AutoReject(now) {
				continue
			}
			if err := tx.Applications().Update(ctx, s); err != nil {
				return nil, fmt.Errorf("auto-reject %s: %w", s.ID, err)
			}
			if err := logActivity(ctx, tx, activity.EntityApplication, s.ID, shared.SystemActor, activity.SubtypeNote,
				"The project is assigned to another student, the application is rejected automatically.", now); err != nil {
				return nil, err
			}
			res.AutoRejected = append(res.AutoRejected, s)
			events = append(events, shared.NewApplicationEvent(shared.EventApplicationRejected, s.ID, p.ID, p.Name,
				shared.Actor{UserID: s.ApplicantUserID}, p.ProfessorUserID, true))
		}
		return events, nil
	})
}

// Reject declines the application with feedback.
func (h *ApplicationHandler) Reject(ctx context.Context, cmd ApplicationActionCommand) (*ApplicationResult, error) {
	return h.transition(ctx, "reject_application", cmd, func(ctx context.Context, tx uow.Tx, a *application.Application, p *project.Project, res *ApplicationResult) ([]shared.Event, error) {
		now := h.deps.Clock()
		if err := a.Reject(cmd.Actor, p.ProfessorUserID, cmd.Feedback, now); err != nil {
			return nil, err
		}
		if err := logActivity(ctx, tx, activity.EntityApplication, a.ID, actorOf(cmd.Actor), activity.SubtypeNote, "Rejected: "+cmd.Feedback, now); err != nil {
			return nil, err
		}
		return []shared.Event{
			shared.NewApplicationEvent(shared.EventApplicationRejected, a.ID, p.ID, p.Name, h.applicant(ctx, tx, a), p.ProfessorUserID, false),
		}, nil
	})
}

type applicationStep func(ctx context.Context, tx uow.Tx, a *application.Application, p *project.Project, res *ApplicationResult) ([]shared.Event, error)

// transition locks the parent project, re-reads the application and
// applies step.
func (h *ApplicationHandler) transition(ctx context.Context, op string, cmd ApplicationActionCommand, step applicationStep) (*ApplicationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand(op, err)
	}

	var res *ApplicationResult
	events, err := h.deps.execute(ctx, op, cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		res = &ApplicationResult{}

		unlocked, err := tx.Applications().GetByID(ctx, cmd.ApplicationID)
		if err != nil {
			return nil, err
		}
		p, err := tx.Projects().GetForUpdate(ctx, unlocked.ProjectID)
		if err != nil {
			return nil, err
		}
		a, err := tx.Applications().GetByID(ctx, cmd.ApplicationID)
		if err != nil {
			return nil, err
		}

		events, err := step(ctx, tx, a, p, res)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := tx.Applications().Update(ctx, a); err != nil {
			return nil, fmt.Errorf("%s: save: %w", op, err)
		}
		res.Application = a
		res.Project = p
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	res.Events = events
	return res, nil
}

func (h *ApplicationHandler) applicant(ctx context.Context, tx uow.Tx, a *application.Application) shared.Actor {
	actor := shared.Actor{UserID: a.ApplicantUserID}
	if s, err := tx.Academic().GetStudent(ctx, a.ApplicantID); err == nil {
		actor.Name = s.Name
	}
	return actor
}
