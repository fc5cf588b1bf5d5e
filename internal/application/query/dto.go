// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/application"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/proposal"
	"github.com/alem-hub/palms-core/pkg/timeutil"
)

// Reader runs a read-only unit of work. Every query sees one consistent
// snapshot of the aggregate it loads.
type Reader interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx uow.Tx) error) error
}

// ══════════════════════════════════════════════════════════════════════════════
// DTO
// ══════════════════════════════════════════════════════════════════════════════

// ProjectDTO - проект для API.
type ProjectDTO struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	NameRu          string   `json:"name_ru,omitempty"`
	Format          string   `json:"format,omitempty"`
	Type            string   `json:"type,omitempty"`
	Language        string   `json:"language,omitempty"`
	Description     string   `json:"description,omitempty"`
	Requirements    string   `json:"requirements,omitempty"`
	Results         string   `json:"results,omitempty"`
	IsGroupProject  bool     `json:"is_group_project"`
	Tags            []string `json:"tags,omitempty"`
	AdditionalFiles []string `json:"additional_files,omitempty"`

	ProfessorID          string `json:"professor_id"`
	ProfessorUserID      string `json:"professor_user_id"`
	ProposalID           string `json:"proposal_id,omitempty"`
	ElectedStudentID     string `json:"elected_student_id,omitempty"`
	ElectedStudentUserID string `json:"elected_student_user_id,omitempty"`

	EvaluationState  string `json:"evaluation_state"`
	PublicationState string `json:"publication_state"`
	State            string `json:"state"`

	TargetPrograms   []string `json:"target_programs"`
	PendingPrograms  []string `json:"pending_programs"`
	ApprovedPrograms []string `json:"approved_programs"`
	ReturnedPrograms []string `json:"returned_programs"`
	RejectedPrograms []string `json:"rejected_programs"`

	Reason              string `json:"reason,omitempty"`
	ReportFile          string `json:"project_report_file,omitempty"`
	PlagiarismCheckFile string `json:"plagiarism_check_file,omitempty"`
	ProfessorReviewFile string `json:"professor_review_file,omitempty"`
	Grade               string `json:"grade,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectFromDomain converts the aggregate into its API shape.
func ProjectFromDomain(p *project.Project) ProjectDTO {
	return ProjectDTO{
		ID:                   p.ID,
		Name:                 p.Name,
		NameRu:               p.NameRu,
		Format:               string(p.Format),
		Type:                 string(p.Type),
		Language:             string(p.Language),
		Description:          p.Description,
		Requirements:         p.Requirements,
		Results:              p.Results,
		IsGroupProject:       p.IsGroupProject,
		Tags:                 p.Tags,
		AdditionalFiles:      p.AdditionalFiles,
		ProfessorID:          p.ProfessorID,
		ProfessorUserID:      p.ProfessorUserID,
		ProposalID:           p.ProposalID,
		ElectedStudentID:     p.ElectedStudentID,
		ElectedStudentUserID: p.ElectedStudentUserID,
		EvaluationState:      string(p.EvaluationState),
		PublicationState:     string(p.PublicationState),
		State:                string(p.State),
		TargetPrograms:       p.TargetPrograms.Slice(),
		PendingPrograms:      p.PendingPrograms.Slice(),
		ApprovedPrograms:     p.ApprovedPrograms.Slice(),
		ReturnedPrograms:     p.ReturnedPrograms.Slice(),
		RejectedPrograms:     p.RejectedPrograms.Slice(),
		Reason:               p.Reason,
		ReportFile:           p.ReportFile,
		PlagiarismCheckFile:  p.PlagiarismCheckFile,
		ProfessorReviewFile:  p.ProfessorReviewFile,
		Grade:                p.Grade,
		Version:              p.Version,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

// AvailabilityDTO - подача проекта в одну программу.
type AvailabilityDTO struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	ProgramID        string    `json:"program_id"`
	Type             string    `json:"type"`
	DegreeIDs        []string  `json:"degree_ids"`
	State            string    `json:"state"`
	Reason           string    `json:"reason,omitempty"`
	SupervisorUserID string    `json:"supervisor_user_id,omitempty"`
	SnapshotName     string    `json:"snapshot_name"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AvailabilityFromDomain converts an availability.
func AvailabilityFromDomain(a *project.Availability) AvailabilityDTO {
	return AvailabilityDTO{
		ID:               a.ID,
		ProjectID:        a.ProjectID,
		ProgramID:        a.ProgramID,
		Type:             string(a.Type),
		DegreeIDs:        a.DegreeIDs.Slice(),
		State:            string(a.State),
		Reason:           a.Reason,
		SupervisorUserID: a.SupervisorUserID,
		SnapshotName:     a.Snapshot.Name,
		UpdatedAt:        a.UpdatedAt,
	}
}

// ApprovalDTO - запись об утверждении.
type ApprovalDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	ProgramID string `json:"program_id"`
	DegreeID  string `json:"degree_id"`
}

// ApplicationDTO - заявка студента с вычисленной срочностью.
type ApplicationDTO struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	ProjectName     string    `json:"project_name,omitempty"`
	ApplicantID     string    `json:"applicant_id"`
	ApplicantUserID string    `json:"applicant_user_id"`
	ProfessorUserID string    `json:"professor_user_id,omitempty"`
	Message         string    `json:"message"`
	Feedback        string    `json:"feedback,omitempty"`
	State           string    `json:"state"`
	Urgency         string    `json:"urgency_category"`
	SentDate        string    `json:"sent_date,omitempty"`
	DaysWaiting     int       `json:"days_waiting,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ApplicationFromDomain converts an application, computing urgency on the
// day of now.
func ApplicationFromDomain(a *application.Application, now time.Time) ApplicationDTO {
	dto := ApplicationDTO{
		ID:              a.ID,
		ProjectID:       a.ProjectID,
		ApplicantID:     a.ApplicantID,
		ApplicantUserID: a.ApplicantUserID,
		ProfessorUserID: a.ProfessorUserID,
		Message:         a.Message,
		Feedback:        a.Feedback,
		State:           string(a.State),
		Urgency:         string(a.UrgencyAt(now)),
		SentDate:        timeutil.FormatDateStr(a.SentDate),
		CreatedAt:       a.CreatedAt,
	}
	if !a.State.IsHandled() {
		dto.DaysWaiting = a.DaysWaiting(now)
	}
	return dto
}

// ProposalDTO - предложение темы студентом.
type ProposalDTO struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Description     string    `json:"description"`
	ProponentID     string    `json:"proponent_id"`
	ProponentUserID string    `json:"proponent_user_id"`
	ProfessorID     string    `json:"professor_id"`
	State           string    `json:"state"`
	Feedback        string    `json:"feedback,omitempty"`
	ProjectID       string    `json:"project_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ProposalFromDomain converts a proposal.
func ProposalFromDomain(p *proposal.Proposal) ProposalDTO {
	return ProposalDTO{
		ID:              p.ID,
		Name:            p.Name,
		Type:            string(p.Type),
		Description:     p.Description,
		ProponentID:     p.ProponentID,
		ProponentUserID: p.ProponentUserID,
		ProfessorID:     p.ProfessorID,
		State:           string(p.State),
		Feedback:        p.Feedback,
		ProjectID:       p.ProjectID,
		CreatedAt:       p.CreatedAt,
	}
}

// EntryDTO - строка истории.
type EntryDTO struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id,omitempty"`
	AuthorName string    `json:"author_name,omitempty"`
	System     bool      `json:"system"`
	Subtype    string    `json:"subtype"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

func entryFromDomain(e *activity.Entry) EntryDTO {
	return EntryDTO{
		ID:         e.ID,
		AuthorID:   e.Author.UserID,
		AuthorName: e.Author.Name,
		System:     e.IsSystem(),
		Subtype:    string(e.Subtype),
		Body:       e.Body,
		CreatedAt:  e.CreatedAt,
	}
}
