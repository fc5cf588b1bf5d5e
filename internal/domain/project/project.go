// Package project contains the project aggregate: the project itself, its
// per-program submissions (availabilities) and the approval records produced
// by supervisors. All transitions are pure state changes; persistence,
// access to other aggregates and notifications belong to the command layer.
package project

import (
	"strings"
	"time"

	"github.com/alem-hub/palms-core/internal/domain/shared"
)

const domainName = "project"

// RequirementsNotApplicable replaces application requirements on projects
// spawned from a student proposal.
const RequirementsNotApplicable = "Not applicable for proposed projects..."

// Details are the descriptive fields a professor edits. Availabilities keep
// a snapshot of them.
type Details struct {
	Name            string
	NameRu          string
	Format          Format
	Type            WorkType
	Language        Language
	Description     string
	Requirements    string
	Results         string
	IsGroupProject  bool
	Tags            []string
	AdditionalFiles []string
}

// Validate checks the descriptive fields.
func (d Details) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return shared.Invalid(domainName, "Validate", "Project name is required.")
	}
	if d.Format != "" && !d.Format.IsValid() {
		return shared.Invalid(domainName, "Validate", "Unknown project format.")
	}
	if d.Type != "" && !d.Type.IsValid() {
		return shared.Invalid(domainName, "Validate", "Unknown project type.")
	}
	if d.Language != "" && !d.Language.IsValid() {
		return shared.Invalid(domainName, "Validate", "Unknown project language.")
	}
	return nil
}

// Outcome holds the document-store keys and the grade recorded at the end
// of the project.
type Outcome struct {
	ReportFile          string
	PlagiarismCheckFile string
	ProfessorReviewFile string
	Grade               string
}

// Project is the root aggregate of the approval and lifecycle workflow.
type Project struct {
	ID string
	Details

	// ProfessorID/ProfessorUserID identify the owner; set at creation, never changed.
	ProfessorID     string
	ProfessorUserID string

	// ProposalID is set when the project was spawned from a student proposal.
	ProposalID string

	ElectedStudentID     string
	ElectedStudentUserID string

	EvaluationState  EvaluationState
	PublicationState PublicationState
	State            State

	// Program sets. While evaluation is in progress the last four partition
	// TargetPrograms.
	TargetPrograms   shared.IDSet
	PendingPrograms  shared.IDSet
	ApprovedPrograms shared.IDSet
	ReturnedPrograms shared.IDSet
	RejectedPrograms shared.IDSet

	Reason string
	Outcome

	// Version is bumped on every persisted write and used for optimistic locking.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a draft project owned by a professor.
func New(id string, details Details, professorID, professorUserID string, now time.Time) (*Project, error) {
	if err := details.Validate(); err != nil {
		return nil, err
	}
	if professorID == "" || professorUserID == "" {
		return nil, shared.Invalid(domainName, "New", "The user is not registered as a professor. Contact the administrator for the fix.")
	}
	return &Project{
		ID:               id,
		Details:          details,
		ProfessorID:      professorID,
		ProfessorUserID:  professorUserID,
		EvaluationState:  EvaluationDraft,
		PublicationState: PublicationIneligible,
		State:            StateDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// NewFromProposal creates the project a professor accepts from a student
// proposal. The proponent is pre-elected.
func NewFromProposal(id, proposalID string, details Details, professorID, professorUserID, studentID, studentUserID string, now time.Time) (*Project, error) {
	details.Requirements = RequirementsNotApplicable
	p, err := New(id, details, professorID, professorUserID, now)
	if err != nil {
		return nil, err
	}
	p.ProposalID = proposalID
	p.ElectedStudentID = studentID
	p.ElectedStudentUserID = studentUserID
	return p, nil
}

// IsFromProposal reports whether the project was spawned from a proposal.
// Such projects bypass per-program voting.
func (p *Project) IsFromProposal() bool {
	return p.ProposalID != ""
}

// HasElectedStudent reports whether a student is assigned.
func (p *Project) HasElectedStudent() bool {
	return p.ElectedStudentID != ""
}

// ═══════════════════════════════════════════════════════════════════════════
// Submission
// ═══════════════════════════════════════════════════════════════════════════

// Submit sends the project to every program it has an availability for.
// Availabilities move to pending; the target set is frozen from them.
func (p *Project) Submit(availabilities []*Availability, now time.Time) error {
	if len(availabilities) == 0 {
		return shared.Invalid(domainName, "Submit", "You need to choose programs to submit first!")
	}
	if p.EvaluationState != EvaluationDraft {
		return shared.BadTransition(domainName, "Submit", "Projects in this state cannot be submitted!")
	}

	programs := make([]string, 0, len(availabilities))
	for _, a := range availabilities {
		if a.ProjectID != p.ID {
			return shared.Inconsistent(domainName, "Submit", "availability belongs to another project")
		}
		programs = append(programs, a.ProgramID)
	}

	p.EvaluationState = EvaluationProgress
	p.State = StatePending
	p.TargetPrograms = shared.NewIDSet(programs...)
	p.PendingPrograms = p.TargetPrograms.Clone()
	p.ApprovedPrograms = nil
	p.ReturnedPrograms = nil
	p.RejectedPrograms = nil
	p.touch(now)

	for _, a := range availabilities {
		a.markPending(now)
	}
	return nil
}

// CancelSubmission is the professor-initiated revert to draft. It is only
// possible while no supervisor has acted.
func (p *Project) CancelSubmission(availabilities []*Availability, now time.Time) error {
	if p.EvaluationState != EvaluationProgress {
		return shared.BadTransition(domainName, "Cancel", "Only projects pending evaluation can be cancelled.")
	}
	for _, a := range availabilities {
		if !a.State.IsUndecided() {
			return shared.BadTransition(domainName, "Cancel", "It is not possible cancel processed projects! Contact system administrator for changes.")
		}
	}
	p.revertToDraft(availabilities, now)
	return nil
}

// AutoCancel reverts the submission after every program returned it.
// Calling it while any availability is not returned is a caller defect.
func (p *Project) AutoCancel(availabilities []*Availability, now time.Time) error {
	for _, a := range availabilities {
		if a.State != AvailabilityReturned {
			return shared.Inconsistent(domainName, "AutoCancel", "Not all supervisors returned the project. Automatic cancellation is invalid, please contact the system administrator.")
		}
	}
	p.revertToDraft(availabilities, now)
	return nil
}

func (p *Project) revertToDraft(availabilities []*Availability, now time.Time) {
	p.EvaluationState = EvaluationDraft
	p.State = StateDraft
	p.PendingPrograms = nil
	p.ApprovedPrograms = nil
	p.ReturnedPrograms = nil
	p.RejectedPrograms = nil
	p.touch(now)
	for _, a := range availabilities {
		a.resetToWaiting(now)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Program decisions
// ═══════════════════════════════════════════════════════════════════════════

// ApproveResult describes what an approval did to the project.
type ApproveResult struct {
	// Assigned is true on the proposal path, where approval assigns the
	// pre-elected student directly.
	Assigned bool
	// FirstPublication is true when this approval made the project visible
	// to students.
	FirstPublication bool
}

// Approve records a program approval.
//
// On the proposal path the project is approved and assigned at once. On the
// multi-program path the program moves to the approved set and the project
// becomes published as soon as any program approves, even while others
// remain pending.
func (p *Project) Approve(programID string, now time.Time) (ApproveResult, error) {
	if err := p.checkDecidable("Approve", programID, "You can only approve project submissions in 'Pending' status."); err != nil {
		return ApproveResult{}, err
	}

	p.PendingPrograms = p.PendingPrograms.Remove(programID)
	p.ApprovedPrograms = p.ApprovedPrograms.Add(programID)
	p.touch(now)

	if p.IsFromProposal() {
		p.EvaluationState = EvaluationApproved
		p.PublicationState = PublicationAssigned
		p.State = StateAssigned
		return ApproveResult{Assigned: true}, nil
	}

	p.EvaluationState = p.CheckDecisions()
	result := ApproveResult{}
	if p.PublicationState == PublicationIneligible {
		p.PublicationState = PublicationPublished
		result.FirstPublication = true
	}
	// A later approval never moves an applied project back to published.
	if p.PublicationState == PublicationPublished {
		p.State = StatePublished
	}
	return result, nil
}

// Reject records a program rejection.
func (p *Project) Reject(programID string, now time.Time) error {
	if err := p.checkDecidable("Reject", programID, "This project cannot be processed. Please contact the administrator."); err != nil {
		return err
	}

	p.PendingPrograms = p.PendingPrograms.Remove(programID)
	p.RejectedPrograms = p.RejectedPrograms.Add(programID)
	p.EvaluationState = p.CheckDecisions()
	// Once published the displayed state follows the publication workflow.
	if p.PublicationState == PublicationIneligible {
		if p.EvaluationState == EvaluationProgress {
			p.State = StatePending
		} else {
			p.State = State(p.EvaluationState)
		}
	}
	p.touch(now)
	return nil
}

// Return records a program return. When every program has returned the
// project the submission is cancelled automatically and Return reports
// autoCanceled; otherwise only the evaluation state is recomputed.
func (p *Project) Return(programID string, availabilities []*Availability, now time.Time) (autoCanceled bool, err error) {
	if err := p.checkDecidable("Return", programID, "This project cannot be processed. Please contact the administrator."); err != nil {
		return false, err
	}

	p.PendingPrograms = p.PendingPrograms.Remove(programID)
	p.ReturnedPrograms = p.ReturnedPrograms.Add(programID)
	p.touch(now)

	if p.CheckDecisions() == EvaluationDraft {
		if err := p.AutoCancel(availabilities, now); err != nil {
			return false, err
		}
		return true, nil
	}
	p.EvaluationState = p.CheckDecisions()
	return false, nil
}

func (p *Project) checkDecidable(op, programID, message string) error {
	if p.EvaluationState != EvaluationProgress {
		return shared.BadTransition(domainName, op, message)
	}
	if !p.PendingPrograms.Has(programID) {
		return shared.BadTransition(domainName, op, "This program has already decided on the project.")
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Applications and assignment
// ═══════════════════════════════════════════════════════════════════════════

// OnApplicationReceived handles the ApplicationReceived event: the first
// application on a published project advances it to applied. It reports
// whether the state changed.
func (p *Project) OnApplicationReceived(now time.Time) bool {
	if p.PublicationState != PublicationPublished {
		return false
	}
	p.PublicationState = PublicationApplied
	p.State = StateApplied
	p.touch(now)
	return true
}

// Assign elects the student of an accepted application.
func (p *Project) Assign(studentID, studentUserID string, now time.Time) error {
	if p.HasElectedStudent() || p.PublicationState == PublicationAssigned {
		return shared.BadTransition(domainName, "Assign", "This project already has an assigned student.")
	}
	if !p.PublicationState.AcceptsApplications() {
		return shared.BadTransition(domainName, "Assign", "The chosen project is not available for applications, please try another one.")
	}
	p.ElectedStudentID = studentID
	p.ElectedStudentUserID = studentUserID
	p.PublicationState = PublicationAssigned
	p.State = StateAssigned
	p.touch(now)
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Completion
// ═══════════════════════════════════════════════════════════════════════════

// Complete closes the project once every outcome document is attached.
// There is no way back.
func (p *Project) Complete(now time.Time) error {
	if p.ReportFile == "" || p.PlagiarismCheckFile == "" || p.ProfessorReviewFile == "" {
		return shared.Invalid(domainName, "Complete", "Project report, plagiarism check and professor's review file are required to complete the project.")
	}
	p.PublicationState = PublicationCompleted
	p.State = StateCompleted
	p.touch(now)
	return nil
}

// SetGrade records the final grade. An empty grade reverts to completed.
func (p *Project) SetGrade(grade string, now time.Time) error {
	if p.PublicationState != PublicationCompleted {
		return shared.BadTransition(domainName, "Grade", "Only completed projects can be graded.")
	}
	p.Grade = strings.TrimSpace(grade)
	if p.Grade != "" {
		p.State = StateGraded
	} else {
		p.State = StateCompleted
	}
	p.touch(now)
	return nil
}

// AttachOutcome stores outcome document keys. Empty arguments keep the
// current value.
func (p *Project) AttachOutcome(report, plagiarism, review string, now time.Time) {
	if report != "" {
		p.ReportFile = report
	}
	if plagiarism != "" {
		p.PlagiarismCheckFile = plagiarism
	}
	if review != "" {
		p.ProfessorReviewFile = review
	}
	p.touch(now)
}

// ═══════════════════════════════════════════════════════════════════════════
// Maintenance
// ═══════════════════════════════════════════════════════════════════════════

// Reset force-clears the project back to draft. The caller deletes the
// availability and application children. Not meant for production data.
func (p *Project) Reset(now time.Time) {
	p.EvaluationState = EvaluationDraft
	p.PublicationState = PublicationIneligible
	p.State = StateDraft
	p.ElectedStudentID = ""
	p.ElectedStudentUserID = ""
	p.Reason = ""
	p.TargetPrograms = nil
	p.PendingPrograms = nil
	p.ApprovedPrograms = nil
	p.ReturnedPrograms = nil
	p.RejectedPrograms = nil
	p.touch(now)
}

// UpdateDetails replaces the descriptive fields. The caller refreshes the
// availability snapshots afterwards.
func (p *Project) UpdateDetails(d Details, now time.Time) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if p.IsFromProposal() {
		d.Requirements = RequirementsNotApplicable
	}
	p.Details = d
	p.touch(now)
	return nil
}

// Snapshot returns the descriptive fields copied into availabilities.
func (p *Project) Snapshot() Snapshot {
	return Snapshot{
		Name:            p.Name,
		NameRu:          p.NameRu,
		Format:          p.Format,
		IsGroupProject:  p.IsGroupProject,
		Language:        p.Language,
		Description:     p.Description,
		Requirements:    p.Requirements,
		Results:         p.Results,
		AdditionalFiles: append([]string(nil), p.AdditionalFiles...),
		Tags:            append([]string(nil), p.Tags...),
		ProfessorID:     p.ProfessorID,
	}
}

// Branch copies the project into a fresh draft for a single program.
func (p *Project) Branch(id, programName string, now time.Time) *Project {
	clone := *p
	clone.ID = id
	clone.Name = p.Name + " ⎇ " + programName
	clone.Tags = append([]string(nil), p.Tags...)
	clone.AdditionalFiles = append([]string(nil), p.AdditionalFiles...)
	clone.ProposalID = ""
	clone.ElectedStudentID = ""
	clone.ElectedStudentUserID = ""
	clone.EvaluationState = EvaluationDraft
	clone.PublicationState = PublicationIneligible
	clone.State = StateDraft
	clone.TargetPrograms = nil
	clone.PendingPrograms = nil
	clone.ApprovedPrograms = nil
	clone.ReturnedPrograms = nil
	clone.RejectedPrograms = nil
	clone.Reason = ""
	clone.Outcome = Outcome{}
	clone.Version = 0
	clone.CreatedAt = now
	clone.UpdatedAt = now
	return &clone
}

func (p *Project) touch(now time.Time) {
	p.UpdatedAt = now
}
