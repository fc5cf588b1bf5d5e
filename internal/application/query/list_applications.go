package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/application"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST APPLICATIONS QUERY
// Заявки по проекту или по студенту; срочность считается в момент чтения.
// ══════════════════════════════════════════════════════════════════════════════

// ListApplicationsQuery selects applications of one project or of one
// applicant. Exactly one of the fields must be set.
type ListApplicationsQuery struct {
	ProjectID   string
	ApplicantID string
}

// Validate проверяет корректность параметров запроса.
func (q ListApplicationsQuery) Validate() error {
	if (q.ProjectID == "") == (q.ApplicantID == "") {
		return errors.New("exactly one of project_id or applicant_id must be provided")
	}
	return nil
}

// ListApplicationsHandler обрабатывает ListApplicationsQuery.
type ListApplicationsHandler struct {
	reader Reader
	clock  func() time.Time
}

// NewListApplicationsHandler создаёт новый ListApplicationsHandler.
// A nil clock uses the current time.
func NewListApplicationsHandler(reader Reader, clock func() time.Time) *ListApplicationsHandler {
	if clock == nil {
		clock = time.Now
	}
	return &ListApplicationsHandler{reader: reader, clock: clock}
}

// Handle выполняет запрос.
func (h *ListApplicationsHandler) Handle(ctx context.Context, q ListApplicationsQuery) ([]ApplicationDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("application", "List", shared.ErrValidation, err.Error(), err)
	}

	var apps []*application.Application
	err := h.reader.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		if q.ProjectID != "" {
			apps, err = tx.Applications().ListByProject(ctx, q.ProjectID)
		} else {
			apps, err = tx.Applications().ListByApplicant(ctx, q.ApplicantID, "")
		}
		if err != nil {
			return fmt.Errorf("list_applications: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := h.clock()
	out := make([]ApplicationDTO, 0, len(apps))
	for _, a := range apps {
		out = append(out, ApplicationFromDomain(a, now))
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OVERDUE APPLICATIONS QUERY
// Используется ежедневным напоминанием профессорам.
// ══════════════════════════════════════════════════════════════════════════════

// ProfessorBacklog groups the unanswered applications of one professor.
type ProfessorBacklog struct {
	ProfessorUserID string
	Urgent          []ApplicationDTO
	Missed          []ApplicationDTO
}

// Total returns the number of applications in the backlog.
func (b ProfessorBacklog) Total() int {
	return len(b.Urgent) + len(b.Missed)
}

// OverdueApplicationsHandler lists sent applications that are urgent or
// missed, grouped by professor.
type OverdueApplicationsHandler struct {
	reader Reader
	clock  func() time.Time
}

// NewOverdueApplicationsHandler создаёт новый OverdueApplicationsHandler.
func NewOverdueApplicationsHandler(reader Reader, clock func() time.Time) *OverdueApplicationsHandler {
	if clock == nil {
		clock = time.Now
	}
	return &OverdueApplicationsHandler{reader: reader, clock: clock}
}

// Handle returns backlogs ordered by professor user id. Professors with
// nothing urgent or missed are omitted.
func (h *OverdueApplicationsHandler) Handle(ctx context.Context) ([]ProfessorBacklog, error) {
	var sent []*application.Application
	names := make(map[string]string)
	err := h.reader.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		sent, err = tx.Applications().ListSent(ctx)
		if err != nil {
			return fmt.Errorf("overdue_applications: %w", err)
		}
		for _, a := range sent {
			if _, ok := names[a.ProjectID]; ok {
				continue
			}
			p, err := tx.Projects().GetByID(ctx, a.ProjectID)
			switch {
			case err == nil:
				names[a.ProjectID] = p.Details.Name
			case shared.IsNotFound(err):
				names[a.ProjectID] = ""
			default:
				return fmt.Errorf("overdue_applications: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := h.clock()
	byProfessor := make(map[string]*ProfessorBacklog)
	for _, a := range sent {
		urgency := a.UrgencyAt(now)
		if urgency != application.UrgencyUrgent && urgency != application.UrgencyMissed {
			continue
		}
		b, ok := byProfessor[a.ProfessorUserID]
		if !ok {
			b = &ProfessorBacklog{ProfessorUserID: a.ProfessorUserID}
			byProfessor[a.ProfessorUserID] = b
		}
		dto := ApplicationFromDomain(a, now)
		dto.ProjectName = names[a.ProjectID]
		if urgency == application.UrgencyUrgent {
			b.Urgent = append(b.Urgent, dto)
		} else {
			b.Missed = append(b.Missed, dto)
		}
	}

	out := make([]ProfessorBacklog, 0, len(byProfessor))
	for _, b := range byProfessor {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProfessorUserID < out[j].ProfessorUserID })
	return out, nil
}
