// Package proposal models student-initiated project ideas. An accepted
// proposal becomes a project with the proponent already elected.
package proposal

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/pkg/timeutil"
)

const domainName = "proposal"

// State of a proposal.
type State string

const (
	StateDraft    State = "draft"
	StateSent     State = "sent"
	StateAccepted State = "accepted"
	// StateConfirmed exists in stored data but no transition leads to it.
	StateConfirmed State = "confirmed"
	StateRejected  State = "rejected"
)

// IsValid reports whether s is a known proposal state.
func (s State) IsValid() bool {
	switch s {
	case StateDraft, StateSent, StateAccepted, StateConfirmed, StateRejected:
		return true
	default:
		return false
	}
}

// Contact holds optional contact details the proponent adds.
type Contact struct {
	AdditionalEmail string
	AdditionalPhone string
	Telegram        string
}

// Proposal is a project idea a student sends to one professor.
type Proposal struct {
	ID     string
	Name   string
	NameRu string

	ProponentID     string
	ProponentUserID string
	ProfessorID     string
	ProfessorUserID string

	// Type is cw or fqw; proposals never target both.
	Type            project.WorkType
	Format          project.Format
	Language        project.Language
	IsGroupProject  bool
	Description     string
	Results         string
	AdditionalFiles []string
	Tags            []string
	Contact

	Feedback string
	State    State
	SentDate time.Time

	// ProjectID is the project the proposal was converted to.
	ProjectID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a draft proposal.
func New(id string, p Proposal, now time.Time) (*Proposal, error) {
	if p.ProponentID == "" || p.ProponentUserID == "" {
		return nil, shared.Invalid(domainName, "New", "Student account could not be found. Please contact the supervisor.")
	}
	if p.ProfessorID == "" {
		return nil, shared.Invalid(domainName, "New", "Professor is required.")
	}
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Description) == "" {
		return nil, shared.Invalid(domainName, "New", "Proposal name and description are required.")
	}
	if p.Type != project.WorkCourse && p.Type != project.WorkFinal {
		return nil, shared.Invalid(domainName, "New", "Proposal project type must be course work or final qualifying work.")
	}
	if p.Language == "" {
		p.Language = project.LanguageEnglish
	}
	p.ID = id
	p.State = StateDraft
	p.Feedback = ""
	p.ProjectID = ""
	p.SentDate = time.Time{}
	p.CreatedAt = now
	p.UpdatedAt = now
	return &p, nil
}

// CheckProponent allows the proponent and supervisors.
func (p *Proposal) CheckProponent(u identity.User) error {
	if u.IsSupervisor() || u.ID == p.ProponentUserID {
		return nil
	}
	return shared.Denied(domainName, "CheckProponent", "You can only modify proposals that you created. If you require assistance, contact the supervisor.")
}

// CheckProfessor allows the addressed professor and supervisors.
func (p *Proposal) CheckProfessor(u identity.User) error {
	if u.IsSupervisor() || u.ID == p.ProfessorUserID {
		return nil
	}
	return shared.Denied(domainName, "CheckProfessor", "You can only respond to the proposals sent to you.")
}

// CheckDelete allows the proponent and administrators.
func (p *Proposal) CheckDelete(u identity.User) error {
	if u.IsAdmin() || u.ID == p.ProponentUserID {
		return nil
	}
	return shared.Denied(domainName, "Delete", "Only the proposing student can delete the proposal!")
}

// Send submits the proposal to the professor.
func (p *Proposal) Send(u identity.User, now time.Time) error {
	if err := p.CheckProponent(u); err != nil {
		return err
	}
	if p.State != StateDraft {
		return shared.BadTransition(domainName, "Send", "The proposal is already sent!")
	}
	p.State = StateSent
	p.SentDate = timeutil.StartOfDay(now)
	p.UpdatedAt = now
	return nil
}

// Cancel withdraws a sent proposal back to draft.
func (p *Proposal) Cancel(u identity.User, now time.Time) error {
	if err := p.CheckProponent(u); err != nil {
		return err
	}
	if p.State != StateSent {
		return shared.BadTransition(domainName, "Cancel", "The proposal is already processed!")
	}
	p.State = StateDraft
	p.UpdatedAt = now
	return nil
}

// CheckAcceptable runs the accept guards without changing state, so the
// caller can build the project before committing the transition.
func (p *Proposal) CheckAcceptable(u identity.User) error {
	if err := p.CheckProfessor(u); err != nil {
		return err
	}
	if p.State != StateSent {
		return shared.BadTransition(domainName, "Accept", "The proposal is already processed or still a draft!")
	}
	return nil
}

// Accept records the conversion into projectID.
func (p *Proposal) Accept(u identity.User, projectID string, now time.Time) error {
	if err := p.CheckAcceptable(u); err != nil {
		return err
	}
	p.State = StateAccepted
	p.ProjectID = projectID
	p.UpdatedAt = now
	return nil
}

// Reject declines the proposal with written feedback.
func (p *Proposal) Reject(u identity.User, feedback string, now time.Time) error {
	if err := p.CheckProfessor(u); err != nil {
		return err
	}
	if p.State != StateSent {
		return shared.BadTransition(domainName, "Reject", "The proposal is already processed or still a draft!")
	}
	if err := CheckFeedback(feedback); err != nil {
		return err
	}
	p.State = StateRejected
	p.Feedback = feedback
	p.UpdatedAt = now
	return nil
}

// CheckFeedback validates rejection feedback. Applications share the rule.
func CheckFeedback(feedback string) error {
	switch shared.CheckExplanation(feedback) {
	case shared.ExplanationMissing:
		return shared.Invalid(domainName, "Reject", "You have to provide a reason for rejection.")
	case shared.ExplanationTooShort:
		return shared.Invalid(domainName, "Reject", "Please provide a more detailed feedback (at least 20 characters).")
	}
	return nil
}

// ProjectDetails returns the descriptive fields of the project the
// proposal converts to.
func (p *Proposal) ProjectDetails() project.Details {
	return project.Details{
		Name:            p.Name,
		NameRu:          p.NameRu,
		Format:          p.Format,
		Type:            p.Type,
		Language:        p.Language,
		Description:     p.Description,
		Requirements:    project.RequirementsNotApplicable,
		Results:         p.Results,
		IsGroupProject:  p.IsGroupProject,
		Tags:            append([]string(nil), p.Tags...),
		AdditionalFiles: append([]string(nil), p.AdditionalFiles...),
	}
}

// Repository persists proposals.
type Repository interface {
	Create(ctx context.Context, p *Proposal) error
	GetByID(ctx context.Context, id string) (*Proposal, error)
	// GetForUpdate locks the row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Proposal, error)
	Update(ctx context.Context, p *Proposal) error
	Delete(ctx context.Context, id string) error
	ListByProfessor(ctx context.Context, professorID string, page shared.Pagination) ([]*Proposal, error)
}
