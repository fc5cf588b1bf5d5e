package project

import (
	"time"

	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

const availabilityDomain = "availability"

// Snapshot is the copy of project fields an availability shows to the
// program supervisor.
type Snapshot struct {
	Name            string
	NameRu          string
	Format          Format
	IsGroupProject  bool
	Language        Language
	Description     string
	Requirements    string
	Results         string
	AdditionalFiles []string
	Tags            []string
	ProfessorID     string
}

// Availability is one submission of a project to one program.
type Availability struct {
	ID        string
	ProjectID string
	ProgramID string
	Type      WorkType
	DegreeIDs shared.IDSet
	State     AvailabilityState
	Reason    string

	// SupervisorUserID is the program supervisor account at creation time.
	SupervisorUserID string

	Snapshot  Snapshot
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAvailability creates a waiting submission of p to a program.
func NewAvailability(id string, p *Project, programID, supervisorUserID string, workType WorkType, degreeIDs []string, now time.Time) (*Availability, error) {
	if programID == "" {
		return nil, shared.Invalid(availabilityDomain, "New", "Program is required.")
	}
	if !workType.IsValid() {
		return nil, shared.Invalid(availabilityDomain, "New", "Type is required.")
	}
	degrees := shared.NewIDSet(degreeIDs...)
	if degrees.Len() == 0 {
		return nil, shared.Invalid(availabilityDomain, "New", "Degree is required.")
	}
	return &Availability{
		ID:               id,
		ProjectID:        p.ID,
		ProgramID:        programID,
		Type:             workType,
		DegreeIDs:        degrees,
		State:            AvailabilityWaiting,
		SupervisorUserID: supervisorUserID,
		Snapshot:         p.Snapshot(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// IsSupervisedBy reports whether u may decide on the submission.
func (a *Availability) IsSupervisedBy(u identity.User) bool {
	return u.IsAdmin() || (a.SupervisorUserID != "" && u.ID == a.SupervisorUserID)
}

// Approve marks the submission approved. The caller records the Approval
// rows and forwards the decision to the project.
func (a *Availability) Approve(u identity.User, now time.Time) error {
	if a.State != AvailabilityPending {
		return shared.BadTransition(availabilityDomain, "Approve", "You can only approve project submissions in 'Pending' status.")
	}
	if err := a.checkSupervisor(u, "Approve"); err != nil {
		return err
	}
	a.State = AvailabilityApproved
	a.UpdatedAt = now
	return nil
}

// Reject marks the submission rejected with a reason of at least
// MinExplanationLength characters.
func (a *Availability) Reject(u identity.User, reason string, now time.Time) error {
	if a.State != AvailabilityPending {
		return shared.BadTransition(availabilityDomain, "Reject", "You can only reject project submissions in 'Pending' status.")
	}
	if err := a.checkSupervisor(u, "Reject"); err != nil {
		return err
	}
	if err := checkReason("Reject", reason); err != nil {
		return err
	}
	a.State = AvailabilityRejected
	a.Reason = reason
	a.UpdatedAt = now
	return nil
}

// Return sends the submission back to the professor for revision.
func (a *Availability) Return(u identity.User, reason string, now time.Time) error {
	if a.State != AvailabilityPending {
		return shared.BadTransition(availabilityDomain, "Return", "You can only return project submissions in 'Pending' status.")
	}
	if err := a.checkSupervisor(u, "Return"); err != nil {
		return err
	}
	if err := checkReason("Return", reason); err != nil {
		return err
	}
	a.State = AvailabilityReturned
	a.Reason = reason
	a.UpdatedAt = now
	return nil
}

func (a *Availability) checkSupervisor(u identity.User, op string) error {
	if !a.IsSupervisedBy(u) {
		return shared.Denied(availabilityDomain, op, "You can only react to projects sent to the program that you are supervising.")
	}
	return nil
}

func checkReason(op, reason string) error {
	switch shared.CheckExplanation(reason) {
	case shared.ExplanationMissing:
		return shared.Invalid(availabilityDomain, op, "You need to provide a reason for rejection/return.")
	case shared.ExplanationTooShort:
		return shared.Invalid(availabilityDomain, op, "Please provide a more detailed reason (at least 20 characters).")
	}
	return nil
}

// UpdateTargets changes the work type and degrees.
//
// professorUserID is the owner of the project. Professors may only edit
// their own projects and only while not submitted; supervisors may only edit
// submissions to their program.
func (a *Availability) UpdateTargets(u identity.User, professorUserID string, workType WorkType, degreeIDs []string, now time.Time) error {
	switch {
	case u.IsAdmin():
	case u.HasRole(identity.RoleProfessor):
		if u.ID != professorUserID {
			return shared.Denied(availabilityDomain, "UpdateTargets", "You cannot modify the details of projects of other professors!")
		}
		if a.State == AvailabilityPending {
			return shared.BadTransition(availabilityDomain, "UpdateTargets", "This project is already submitted, cancel the submission to modify this section.")
		}
	case u.IsSupervisor():
		if u.ID != a.SupervisorUserID {
			return shared.Denied(availabilityDomain, "UpdateTargets", "This project is not sent to a program you are supervising.")
		}
	default:
		return shared.Denied(availabilityDomain, "UpdateTargets", "You cannot modify the details of projects of other professors!")
	}

	if !workType.IsValid() {
		return shared.Invalid(availabilityDomain, "UpdateTargets", "Type is required.")
	}
	degrees := shared.NewIDSet(degreeIDs...)
	if degrees.Len() == 0 {
		return shared.Invalid(availabilityDomain, "UpdateTargets", "Degree is required.")
	}
	a.Type = workType
	a.DegreeIDs = degrees
	a.UpdatedAt = now
	return nil
}

// Refresh replaces the project snapshot.
func (a *Availability) Refresh(s Snapshot, now time.Time) {
	a.Snapshot = s
	a.UpdatedAt = now
}

// BranchCopy returns a waiting copy of the submission bound to another project.
func (a *Availability) BranchCopy(id string, p *Project, now time.Time) *Availability {
	return &Availability{
		ID:               id,
		ProjectID:        p.ID,
		ProgramID:        a.ProgramID,
		Type:             a.Type,
		DegreeIDs:        a.DegreeIDs.Clone(),
		State:            AvailabilityWaiting,
		SupervisorUserID: a.SupervisorUserID,
		Snapshot:         p.Snapshot(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (a *Availability) markPending(now time.Time) {
	a.State = AvailabilityPending
	a.UpdatedAt = now
}

func (a *Availability) resetToWaiting(now time.Time) {
	a.State = AvailabilityWaiting
	a.UpdatedAt = now
}
