package project

import (
	"context"

	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт хранилища проекта и его дочерних записей.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// ListFilter narrows project listings. Empty fields match everything.
type ListFilter struct {
	ProfessorID      string
	ProgramID        string
	State            State
	PublicationState PublicationState
	Pagination       shared.Pagination
}

// Repository persists projects.
type Repository interface {
	// Create сохраняет новый проект.
	Create(ctx context.Context, p *Project) error

	// GetByID возвращает проект без блокировки.
	// Возвращает shared.ErrNotFound, если проект не найден.
	GetByID(ctx context.Context, id string) (*Project, error)

	// GetForUpdate returns the project and locks its row until the enclosing
	// transaction ends. Every availability decision goes through it.
	GetForUpdate(ctx context.Context, id string) (*Project, error)

	// Update writes p if its Version still matches the stored one and bumps
	// it. A mismatch returns shared.ErrConcurrentModification.
	Update(ctx context.Context, p *Project) error

	// Delete removes the project. Children are removed by the caller.
	Delete(ctx context.Context, id string) error

	// List возвращает проекты по фильтру.
	List(ctx context.Context, filter ListFilter) ([]*Project, error)
}

// AvailabilityRepository persists per-program submissions.
type AvailabilityRepository interface {
	// Create returns shared.ErrAlreadyExists when the project already targets
	// the program.
	Create(ctx context.Context, a *Availability) error
	GetByID(ctx context.Context, id string) (*Availability, error)
	Update(ctx context.Context, a *Availability) error
	Delete(ctx context.Context, id string) error

	// ListByProject returns every submission of a project ordered by creation.
	ListByProject(ctx context.Context, projectID string) ([]*Availability, error)
	DeleteByProject(ctx context.Context, projectID string) error
}

// ApprovalRepository persists approval records.
type ApprovalRepository interface {
	Create(ctx context.Context, a *Approval) error
	ListByProject(ctx context.Context, projectID string) ([]*Approval, error)
	DeleteByProject(ctx context.Context, projectID string) error
}
