package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROJECT QUERY
// Проект вместе с подачами в программы и записями об утверждении.
// ══════════════════════════════════════════════════════════════════════════════

// GetProjectQuery содержит параметры запроса.
type GetProjectQuery struct {
	ProjectID string
}

// Validate проверяет корректность параметров запроса.
func (q GetProjectQuery) Validate() error {
	if q.ProjectID == "" {
		return errors.New("project_id is required")
	}
	return nil
}

// ProjectDetailsDTO - проект со всеми дочерними записями.
type ProjectDetailsDTO struct {
	Project        ProjectDTO        `json:"project"`
	Availabilities []AvailabilityDTO `json:"availabilities"`
	Approvals      []ApprovalDTO     `json:"approvals"`
}

// GetProjectHandler обрабатывает GetProjectQuery.
type GetProjectHandler struct {
	reader Reader
}

// NewGetProjectHandler создаёт новый GetProjectHandler.
func NewGetProjectHandler(reader Reader) *GetProjectHandler {
	return &GetProjectHandler{reader: reader}
}

// Handle выполняет запрос.
func (h *GetProjectHandler) Handle(ctx context.Context, q GetProjectQuery) (*ProjectDetailsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_project: %w", err)
	}

	var out *ProjectDetailsDTO
	err := h.reader.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		p, err := tx.Projects().GetByID(ctx, q.ProjectID)
		if err != nil {
			return err
		}
		avails, err := tx.Availabilities().ListByProject(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("get_project: list availabilities: %w", err)
		}
		approvals, err := tx.Approvals().ListByProject(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("get_project: list approvals: %w", err)
		}

		out = &ProjectDetailsDTO{
			Project:        ProjectFromDomain(p),
			Availabilities: make([]AvailabilityDTO, 0, len(avails)),
			Approvals:      make([]ApprovalDTO, 0, len(approvals)),
		}
		for _, a := range avails {
			out.Availabilities = append(out.Availabilities, AvailabilityFromDomain(a))
		}
		for _, a := range approvals {
			out.Approvals = append(out.Approvals, approvalFromDomain(a))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func approvalFromDomain(a *project.Approval) ApprovalDTO {
	return ApprovalDTO{
		ID:        a.ID,
		Name:      a.Name,
		Type:      string(a.Type),
		ProgramID: a.ProgramID,
		DegreeID:  a.DegreeID,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST PROJECTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListProjectsQuery фильтрует каталог проектов.
type ListProjectsQuery struct {
	ProfessorID      string
	ProgramID        string
	State            string
	PublicationState string
	Page             int
	PageSize         int
}

// Validate проверяет корректность параметров запроса.
func (q ListProjectsQuery) Validate() error {
	if q.State != "" && !project.State(q.State).IsValid() {
		return fmt.Errorf("unknown project state %q", q.State)
	}
	if q.PublicationState != "" && !project.PublicationState(q.PublicationState).IsValid() {
		return fmt.Errorf("unknown publication state %q", q.PublicationState)
	}
	if q.Page < 0 || q.PageSize < 0 {
		return errors.New("page and page_size cannot be negative")
	}
	return nil
}

// ListProjectsHandler обрабатывает ListProjectsQuery.
type ListProjectsHandler struct {
	reader Reader
}

// NewListProjectsHandler создаёт новый ListProjectsHandler.
func NewListProjectsHandler(reader Reader) *ListProjectsHandler {
	return &ListProjectsHandler{reader: reader}
}

// Handle выполняет запрос.
func (h *ListProjectsHandler) Handle(ctx context.Context, q ListProjectsQuery) ([]ProjectDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("project", "List", shared.ErrValidation, err.Error(), err)
	}

	filter := project.ListFilter{
		ProfessorID:      q.ProfessorID,
		ProgramID:        q.ProgramID,
		State:            project.State(q.State),
		PublicationState: project.PublicationState(q.PublicationState),
		Pagination:       shared.NewPagination(q.Page, q.PageSize),
	}

	var out []ProjectDTO
	err := h.reader.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		projects, err := tx.Projects().List(ctx, filter)
		if err != nil {
			return fmt.Errorf("list_projects: %w", err)
		}
		out = make([]ProjectDTO, 0, len(projects))
		for _, p := range projects {
			out = append(out, ProjectFromDomain(p))
		}
		return nil
	})
	return out, err
}
