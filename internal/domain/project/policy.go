package project

import (
	"slices"

	"github.com/alem-hub/palms-core/internal/domain/academic"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// Access rules
// ═══════════════════════════════════════════════════════════════════════════

// CheckProfessorIdentity allows the owning professor, administrators and
// supervisors to run lifecycle actions on the project.
func (p *Project) CheckProfessorIdentity(u identity.User) error {
	if u.IsStaffOverride() || u.ID == p.ProfessorUserID {
		return nil
	}
	return shared.Denied(domainName, "CheckProfessorIdentity", "You can only modify your projects.")
}

// CheckFieldsEditor guards edits of the descriptive fields.
func (p *Project) CheckFieldsEditor(u identity.User) error {
	if u.IsStaffOverride() || u.ID == p.ProfessorUserID {
		return nil
	}
	return shared.Denied(domainName, "UpdateDetails", "You cannot modify projects of other professors.")
}

// CheckOutcomeEditor guards the student-owned outcome files of an assigned project.
func (p *Project) CheckOutcomeEditor(u identity.User) error {
	if u.IsAdmin() || p.PublicationState != PublicationAssigned {
		return nil
	}
	if u.ID != p.ElectedStudentUserID && u.ID != p.ProfessorUserID {
		return shared.Denied(domainName, "AttachOutcome", "These fields can be modified by the assigned student.")
	}
	return nil
}

// CheckUnlink decides whether u may delete the project. supervisorUserIDs
// are the supervisors of the project's target programs.
func (p *Project) CheckUnlink(u identity.User, supervisorUserIDs []string) error {
	if u.IsAdmin() {
		return nil
	}
	if p.PublicationState == PublicationAssigned {
		return shared.Denied(domainName, "Unlink", "Only administrators can delete assigned projects!")
	}
	if u.ID != p.ProfessorUserID && !slices.Contains(supervisorUserIDs, u.ID) {
		return shared.Denied(domainName, "Unlink", "Only its professor or related supervisors can delete this project!")
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Application eligibility
// ═══════════════════════════════════════════════════════════════════════════

// CheckApplyEligibility verifies that a student may apply to the project.
// A nil student means the user has no student record. availabilities are the
// project's submissions; only approved ones count.
func (p *Project) CheckApplyEligibility(student *academic.Student, availabilities []*Availability) error {
	if student == nil {
		return shared.Invalid(domainName, "Apply", "You are not registered as a student in the system, please contact your academic supervisor.")
	}
	if !p.ApprovedPrograms.Has(student.ProgramID) {
		return shared.Invalid(domainName, "Apply", "This project is not applicable for your program, please use filters to find another one.")
	}
	for _, a := range availabilities {
		if a.ProgramID == student.ProgramID && a.State == AvailabilityApproved && a.DegreeIDs.Has(student.DegreeID) {
			return nil
		}
	}
	return shared.Invalid(domainName, "Apply", "This project is not applicable for your level of education, please use filters to find another one.")
}
