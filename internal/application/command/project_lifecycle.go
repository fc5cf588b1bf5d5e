package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/document"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE PROJECT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CreateProjectCommand creates a draft project owned by the acting professor.
type CreateProjectCommand struct {
	Actor   identity.User
	Details project.Details
}

// Validate validates the command.
func (c CreateProjectCommand) Validate() error {
	return validateActor(c.Actor)
}

// CreateProjectHandler handles CreateProjectCommand.
type CreateProjectHandler struct {
	deps Deps
}

// NewCreateProjectHandler creates a new CreateProjectHandler.
func NewCreateProjectHandler(deps Deps) *CreateProjectHandler {
	return &CreateProjectHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *CreateProjectHandler) Handle(ctx context.Context, cmd CreateProjectCommand) (*project.Project, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("create_project", err)
	}

	var out *project.Project
	_, err := h.deps.execute(ctx, "create_project", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		now := h.deps.Clock()

		// project.New rejects an empty professor id with the user-facing message.
		var professorID string
		prof, err := tx.Academic().GetProfessorByUser(ctx, cmd.Actor.ID)
		switch {
		case err == nil:
			professorID = prof.ID
		case !shared.IsNotFound(err):
			return nil, err
		}

		p, err := project.New(h.deps.NewID(), cmd.Details, professorID, cmd.Actor.ID, now)
		if err != nil {
			return nil, err
		}
		if err := tx.Projects().Create(ctx, p); err != nil {
			return nil, fmt.Errorf("create_project: save: %w", err)
		}
		if err := logActivity(ctx, tx, activity.EntityProject, p.ID, actorOf(cmd.Actor), activity.SubtypeNote, "Project created.", now); err != nil {
			return nil, err
		}

		out = p
		return attachmentsShared(p.ID, p.AdditionalFiles), nil
	})
	return out, err
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PROJECT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// UpdateProjectCommand replaces the descriptive fields of a project and
// refreshes the snapshots shown to supervisors.
type UpdateProjectCommand struct {
	Actor     identity.User
	ProjectID string
	Details   project.Details
}

// Validate validates the command.
func (c UpdateProjectCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.ProjectID == "" {
		return errors.New("update_project: project_id is required")
	}
	return nil
}

// UpdateProjectHandler handles UpdateProjectCommand.
type UpdateProjectHandler struct {
	deps Deps
}

// NewUpdateProjectHandler creates a new UpdateProjectHandler.
func NewUpdateProjectHandler(deps Deps) *UpdateProjectHandler {
	return &UpdateProjectHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *UpdateProjectHandler) Handle(ctx context.Context, cmd UpdateProjectCommand) (*project.Project, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("update_project", err)
	}

	var out *project.Project
	_, err := h.deps.execute(ctx, "update_project", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		now := h.deps.Clock()

		p, err := tx.Projects().GetForUpdate(ctx, cmd.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := p.CheckFieldsEditor(cmd.Actor); err != nil {
			return nil, err
		}
		if err := p.UpdateDetails(cmd.Details, now); err != nil {
			return nil, err
		}
		if err := tx.Projects().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("update_project: save: %w", err)
		}
		if err := onProjectFieldsChanged(ctx, tx, p, now); err != nil {
			return nil, err
		}

		out = p
		return attachmentsShared(p.ID, p.AdditionalFiles), nil
	})
	return out, err
}

// onProjectFieldsChanged copies the new snapshot into every availability.
func onProjectFieldsChanged(ctx context.Context, tx uow.Tx, p *project.Project, now time.Time) error {
	availabilities, err := tx.Availabilities().ListByProject(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list availabilities: %w", err)
	}
	snapshot := p.Snapshot()
	for _, a := range availabilities {
		a.Refresh(snapshot, now)
		if err := tx.Availabilities().Update(ctx, a); err != nil {
			return fmt.Errorf("refresh availability %s: %w", a.ID, err)
		}
	}
	return nil
}

func attachmentsShared(ownerID string, keys []string) []shared.Event {
	if len(keys) == 0 {
		return nil
	}
	return []shared.Event{shared.NewAttachmentsSharedEvent(ownerID, keys)}
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTCOME COMMANDS
// Отчёт, проверка на плагиат, рецензия, итоговая оценка.
// ══════════════════════════════════════════════════════════════════════════════

// AttachOutcomeCommand stores document-store keys of the outcome files.
// Empty keys leave the current value.
type AttachOutcomeCommand struct {
	Actor               identity.User
	ProjectID           string
	ReportFile          string
	PlagiarismCheckFile string
	ProfessorReviewFile string
}

// Validate validates the command.
func (c AttachOutcomeCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.ProjectID == "" {
		return errors.New("attach_outcome: project_id is required")
	}
	return nil
}

func (c AttachOutcomeCommand) keys() []string {
	out := make([]string, 0, 3)
	for _, k := range []string{c.ReportFile, c.PlagiarismCheckFile, c.ProfessorReviewFile} {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// AttachOutcomeHandler handles AttachOutcomeCommand.
type AttachOutcomeHandler struct {
	deps      Deps
	documents document.Store
}

// NewAttachOutcomeHandler creates a new AttachOutcomeHandler.
func NewAttachOutcomeHandler(deps Deps, documents document.Store) *AttachOutcomeHandler {
	return &AttachOutcomeHandler{deps: deps.withDefaults(), documents: documents}
}

// Handle executes the command.
func (h *AttachOutcomeHandler) Handle(ctx context.Context, cmd AttachOutcomeCommand) (*project.Project, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("attach_outcome", err)
	}

	// Files are checked before the transaction; the store is remote.
	keys := cmd.keys()
	if len(keys) > 0 && h.documents == nil {
		return nil, shared.NewDomainError("document", "Exists", shared.ErrExternalService, "File uploads are not configured.")
	}
	for _, key := range keys {
		ok, err := h.documents.Exists(ctx, key)
		if err != nil {
			return nil, shared.WrapError("document", "Exists", shared.ErrExternalService, "The document store is unavailable, please try again later.", err)
		}
		if !ok {
			return nil, shared.Invalid("document", "Exists", fmt.Sprintf("The file %q was not uploaded.", key))
		}
	}

	var out *project.Project
	_, err := h.deps.execute(ctx, "attach_outcome", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		p, err := tx.Projects().GetForUpdate(ctx, cmd.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := p.CheckOutcomeEditor(cmd.Actor); err != nil {
			return nil, err
		}
		p.AttachOutcome(cmd.ReportFile, cmd.PlagiarismCheckFile, cmd.ProfessorReviewFile, h.deps.Clock())
		if err := tx.Projects().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("attach_outcome: save: %w", err)
		}
		out = p
		return nil, nil
	})
	return out, err
}

// CompleteProjectCommand closes a project once its outcome files are attached.
type CompleteProjectCommand struct {
	Actor     identity.User
	ProjectID string
}

// Validate validates the command.
func (c CompleteProjectCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.ProjectID == "" {
		return errors.New("complete_project: project_id is required")
	}
	return nil
}

// CompleteProjectHandler handles CompleteProjectCommand.
type CompleteProjectHandler struct {
	deps Deps
}

// NewCompleteProjectHandler creates a new CompleteProjectHandler.
func NewCompleteProjectHandler(deps Deps) *CompleteProjectHandler {
	return &CompleteProjectHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *CompleteProjectHandler) Handle(ctx context.Context, cmd CompleteProjectCommand) (*project.Project, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("complete_project", err)
	}

	var out *project.Project
	_, err := h.deps.execute(ctx, "complete_project", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		now := h.deps.Clock()

		p, err := tx.Projects().GetForUpdate(ctx, cmd.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := p.CheckProfessorIdentity(cmd.Actor); err != nil {
			return nil, err
		}
		if err := p.Complete(now); err != nil {
			return nil, err
		}
		if err := tx.Projects().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("complete_project: save: %w", err)
		}
		if err := logActivity(ctx, tx, activity.EntityProject, p.ID, actorOf(cmd.Actor), activity.SubtypeNote, "The project is completed.", now); err != nil {
			return nil, err
		}

		out = p
		return []shared.Event{
			shared.NewProjectCompletedEvent(p.ID, p.Name, p.ElectedStudentUserID, p.ProfessorUserID),
		}, nil
	})
	return out, err
}

// GradeProjectCommand records the final grade. An empty grade clears it.
type GradeProjectCommand struct {
	Actor     identity.User
	ProjectID string
	Grade     string
}

// Validate validates the command.
func (c GradeProjectCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.ProjectID == "" {
		return errors.New("grade_project: project_id is required")
	}
	return nil
}

// GradeProjectHandler handles GradeProjectCommand.
type GradeProjectHandler struct {
	deps Deps
}

// NewGradeProjectHandler creates a new GradeProjectHandler.
func NewGradeProjectHandler(deps Deps) *GradeProjectHandler {
	return &GradeProjectHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *GradeProjectHandler) Handle(ctx context.Context, cmd GradeProjectCommand) (*project.Project, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("grade_project", err)
	}

	var out *project.Project
	_, err := h.deps.execute(ctx, "grade_project", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		p, err := tx.Projects().GetForUpdate(ctx, cmd.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := p.CheckProfessorIdentity(cmd.Actor); err != nil {
			return nil, err
		}
		if err := p.SetGrade(cmd.Grade, h.deps.Clock()); err != nil {
			return nil, err
		}
		out = p
		return nil, tx.Projects().Update(ctx, p)
	})
	return out, err
}

// ══════════════════════════════════════════════════════════════════════════════
// RESET / UNLINK
// ══════════════════════════════════════════════════════════════════════════════

// ResetProjectCommand force-clears a project back to draft. Administrators only.
type ResetProjectCommand struct {
	Actor     identity.User
	ProjectID string
}

// Validate validates the command.
func (c ResetProjectCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.ProjectID == "" {
		return errors.New("reset_project: project_id is required")
	}
	return nil
}

// ResetProjectHandler handles ResetProjectCommand.
type ResetProjectHandler struct {
	deps Deps
}

// NewResetProjectHandler creates a new ResetProjectHandler.
func NewResetProjectHandler(deps Deps) *ResetProjectHandler {
	return &ResetProjectHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *ResetProjectHandler) Handle(ctx context.Context, cmd ResetProjectCommand) (*project.Project, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("reset_project", err)
	}
	if !cmd.Actor.IsAdmin() {
		return nil, shared.Denied("project", "Reset", "Only administrators can reset projects.")
	}

	var out *project.Project
	_, err := h.deps.execute(ctx, "reset_project", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		now := h.deps.Clock()

		p, err := tx.Projects().GetForUpdate(ctx, cmd.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := releaseElected(ctx, tx, p); err != nil {
			return nil, err
		}
		p.Reset(now)
		if err := deleteChildren(ctx, tx, p.ID); err != nil {
			return nil, err
		}
		if err := tx.Projects().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("reset_project: save: %w", err)
		}
		if err := logActivity(ctx, tx, activity.EntityProject, p.ID, actorOf(cmd.Actor), activity.SubtypeNote, "The project is reset to 'Draft'.", now); err != nil {
			return nil, err
		}
		out = p
		return nil, nil
	})
	return out, err
}

// UnlinkProjectCommand deletes a project with all of its children.
type UnlinkProjectCommand struct {
	Actor     identity.User
	ProjectID string
}

// Validate validates the command.
func (c UnlinkProjectCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.ProjectID == "" {
		return errors.New("unlink_project: project_id is required")
	}
	return nil
}

// UnlinkProjectHandler handles UnlinkProjectCommand.
type UnlinkProjectHandler struct {
	deps Deps
}

// NewUnlinkProjectHandler creates a new UnlinkProjectHandler.
func NewUnlinkProjectHandler(deps Deps) *UnlinkProjectHandler {
	return &UnlinkProjectHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *UnlinkProjectHandler) Handle(ctx context.Context, cmd UnlinkProjectCommand) error {
	if err := cmd.Validate(); err != nil {
		return invalidCommand("unlink_project", err)
	}

	_, err := h.deps.execute(ctx, "unlink_project", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		p, err := tx.Projects().GetForUpdate(ctx, cmd.ProjectID)
		if err != nil {
			return nil, err
		}

		availabilities, err := tx.Availabilities().ListByProject(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("unlink_project: list availabilities: %w", err)
		}
		supervisors := make([]string, 0, len(availabilities))
		for _, a := range availabilities {
			supervisors = append(supervisors, a.SupervisorUserID)
		}
		if err := p.CheckUnlink(cmd.Actor, supervisors); err != nil {
			return nil, err
		}

		if err := releaseElected(ctx, tx, p); err != nil {
			return nil, err
		}
		if err := deleteChildren(ctx, tx, p.ID); err != nil {
			return nil, err
		}
		return nil, tx.Projects().Delete(ctx, p.ID)
	})
	return err
}

// releaseElected revokes the elected student's access to p.
func releaseElected(ctx context.Context, tx uow.Tx, p *project.Project) error {
	if !p.HasElectedStudent() {
		return nil
	}
	if err := tx.Groups().RemoveMember(ctx, identity.GroupElectedStudent, p.ElectedStudentUserID); err != nil {
		return fmt.Errorf("remove elected student from group: %w", err)
	}
	if err := tx.Academic().SetCurrentProject(ctx, p.ElectedStudentID, ""); err != nil {
		return fmt.Errorf("clear current project: %w", err)
	}
	return nil
}

func deleteChildren(ctx context.Context, tx uow.Tx, projectID string) error {
	if err := tx.Applications().DeleteByProject(ctx, projectID); err != nil {
		return fmt.Errorf("delete applications: %w", err)
	}
	if err := tx.Approvals().DeleteByProject(ctx, projectID); err != nil {
		return fmt.Errorf("delete approvals: %w", err)
	}
	if err := tx.Availabilities().DeleteByProject(ctx, projectID); err != nil {
		return fmt.Errorf("delete availabilities: %w", err)
	}
	return nil
}
