// Package application models a student's bid to be assigned to a published
// project.
package application

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/proposal"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/pkg/timeutil"
)

const domainName = "application"

// State of an application.
type State string

const (
	StateDraft    State = "draft"
	StateSent     State = "sent"
	StateAccepted State = "accepted"
	StateRejected State = "rejected"
)

// IsValid reports whether s is a known application state.
func (s State) IsValid() bool {
	switch s {
	case StateDraft, StateSent, StateAccepted, StateRejected:
		return true
	default:
		return false
	}
}

// IsHandled reports whether the professor has responded.
func (s State) IsHandled() bool {
	return s == StateAccepted || s == StateRejected
}

// Application is one student's request to work on one project.
type Application struct {
	ID              string
	ProjectID       string
	ApplicantID     string
	ApplicantUserID string
	// ProfessorUserID is the project owner, copied when the application is sent.
	ProfessorUserID string

	Message         string
	Feedback        string
	AdditionalFiles []string
	AdditionalEmail string
	AdditionalPhone string
	Telegram        string

	State     State
	SentDate  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a draft application.
func New(id, projectID, applicantID, applicantUserID, professorUserID, message string, now time.Time) (*Application, error) {
	if applicantID == "" {
		return nil, shared.Invalid(domainName, "New", "Student account could not be found. Please contact the supervisor.")
	}
	if strings.TrimSpace(message) == "" {
		return nil, shared.Invalid(domainName, "New", "Application message is required.")
	}
	return &Application{
		ID:              id,
		ProjectID:       projectID,
		ApplicantID:     applicantID,
		ApplicantUserID: applicantUserID,
		ProfessorUserID: professorUserID,
		Message:         message,
		State:           StateDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// CheckApplicant allows the applicant and supervisors.
func (a *Application) CheckApplicant(u identity.User) error {
	if u.IsSupervisor() || u.ID == a.ApplicantUserID {
		return nil
	}
	return shared.Denied(domainName, "CheckApplicant", "You can only modify applications that you created. If you require assistance, contact the supervisor.")
}

// CheckProfessor allows the owner of the project and supervisors.
func (a *Application) CheckProfessor(u identity.User, projectProfessorUserID string) error {
	if u.IsSupervisor() || u.ID == projectProfessorUserID {
		return nil
	}
	return shared.Denied(domainName, "CheckProfessor", "You can only respond to the applications sent to your projects.")
}

// ErrOtherSent is returned by Send while another application of the same
// applicant waits for an answer.
func ErrOtherSent() error {
	return shared.BadTransition(domainName, "Send", "You have already sent an application for a project. Please wait up to 3 days to receive a response or cancel the application.")
}

// SendChecks carries facts about other records that Send depends on.
type SendChecks struct {
	// ProjectOpen is true when the project accepts applications.
	ProjectOpen bool
	// HasOtherSent is true when the applicant already has a sent application.
	HasOtherSent bool
	// ProfessorUserID is the current owner of the project.
	ProfessorUserID string
}

// Send submits the application to the project's professor.
func (a *Application) Send(u identity.User, checks SendChecks, now time.Time) error {
	if err := a.CheckApplicant(u); err != nil {
		return err
	}
	switch {
	case a.State != StateDraft:
		return shared.BadTransition(domainName, "Send", "The application is already sent!")
	case !checks.ProjectOpen:
		return shared.BadTransition(domainName, "Send", "The chosen project is not available for applications, please try another one.")
	case checks.HasOtherSent:
		return ErrOtherSent()
	}
	a.State = StateSent
	a.ProfessorUserID = checks.ProfessorUserID
	a.SentDate = timeutil.StartOfDay(now)
	a.UpdatedAt = now
	return nil
}

// Cancel withdraws a sent application.
func (a *Application) Cancel(u identity.User, now time.Time) error {
	if err := a.CheckApplicant(u); err != nil {
		return err
	}
	if a.State != StateSent {
		return shared.BadTransition(domainName, "Cancel", "The application is already processed!")
	}
	a.State = StateDraft
	a.UpdatedAt = now
	return nil
}

// Accept marks the application accepted. The caller assigns the project
// and auto-rejects the siblings.
func (a *Application) Accept(u identity.User, projectProfessorUserID string, now time.Time) error {
	if err := a.CheckProfessor(u, projectProfessorUserID); err != nil {
		return err
	}
	if a.State != StateSent {
		return shared.BadTransition(domainName, "Accept", "The application is already processed or still a draft!")
	}
	a.State = StateAccepted
	a.UpdatedAt = now
	return nil
}

// Reject declines the application with written feedback.
func (a *Application) Reject(u identity.User, projectProfessorUserID, feedback string, now time.Time) error {
	if err := a.CheckProfessor(u, projectProfessorUserID); err != nil {
		return err
	}
	if a.State != StateSent {
		return shared.BadTransition(domainName, "Reject", "The application is already processed or still a draft!")
	}
	if err := proposal.CheckFeedback(feedback); err != nil {
		return err
	}
	a.State = StateRejected
	a.Feedback = feedback
	a.UpdatedAt = now
	return nil
}

// AutoReject rejects a sent sibling after another application was
// accepted. It reports whether the state changed.
func (a *Application) AutoReject(now time.Time) bool {
	if a.State != StateSent {
		return false
	}
	a.State = StateRejected
	a.UpdatedAt = now
	return true
}

// Repository persists applications.
type Repository interface {
	// Create returns shared.ErrAlreadyExists when the applicant already
	// applied to the project.
	Create(ctx context.Context, a *Application) error
	GetByID(ctx context.Context, id string) (*Application, error)
	Update(ctx context.Context, a *Application) error
	ListByProject(ctx context.Context, projectID string) ([]*Application, error)
	// ListByApplicant returns applications of a student in the given state;
	// an empty state matches all.
	ListByApplicant(ctx context.Context, applicantID string, state State) ([]*Application, error)
	// ListSentByProfessor returns sent applications awaiting a professor.
	ListSentByProfessor(ctx context.Context, professorUserID string) ([]*Application, error)
	// ListSent returns every sent application.
	ListSent(ctx context.Context) ([]*Application, error)
	DeleteByProject(ctx context.Context, projectID string) error
}
