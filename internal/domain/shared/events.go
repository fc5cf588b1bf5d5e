// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Events are collected while a command runs and are
// published only after its transaction commits.
const (
	// Project lifecycle events
	EventProjectSubmitted          EventType = "project.submitted"
	EventProjectSubmissionCanceled EventType = "project.submission_canceled"
	EventProjectApproved           EventType = "project.approved"
	EventProjectRejected           EventType = "project.rejected"
	EventProjectReturned           EventType = "project.returned"
	EventProjectAssigned           EventType = "project.assigned"
	EventProjectCompleted          EventType = "project.completed"

	// Document events
	EventAttachmentsShared EventType = "document.attachments_shared"

	// Proposal events
	EventProposalSent     EventType = "proposal.sent"
	EventProposalAccepted EventType = "proposal.accepted"
	EventProposalRejected EventType = "proposal.rejected"

	// Application events
	EventApplicationReceived EventType = "application.received"
	EventApplicationAccepted EventType = "application.accepted"
	EventApplicationRejected EventType = "application.rejected"

	// Milestone and commission events
	EventMilestoneAnnounced EventType = "milestone.announced"
	EventCommissionLocked   EventType = "commission.locked"
	EventCommissionUnlocked EventType = "commission.unlocked"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// Actor identifies who caused an event. An empty UserID means the system.
type Actor struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// IsSystem reports whether the event was authored by the system itself.
func (a Actor) IsSystem() bool { return a.UserID == "" }

// SystemActor is the author of automatic transitions.
var SystemActor = Actor{Name: "System"}

// ═══════════════════════════════════════════════════════════════════════════
// Project Events
// ═══════════════════════════════════════════════════════════════════════════

// ProjectSubmittedEvent is emitted when a professor submits a project to
// its target programs.
type ProjectSubmittedEvent struct {
	BaseEvent
	ProjectName       string   `json:"project_name"`
	Professor         Actor    `json:"professor"`
	SupervisorUserIDs []string `json:"supervisor_user_ids"`
	SupervisorEmails  []string `json:"supervisor_emails"`
}

// Payload implements Event interface.
func (e ProjectSubmittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"project_name":        e.ProjectName,
		"professor_user_id":   e.Professor.UserID,
		"supervisor_user_ids": e.SupervisorUserIDs,
		"supervisor_emails":   e.SupervisorEmails,
	}
}

// NewProjectSubmittedEvent creates a new ProjectSubmittedEvent.
func NewProjectSubmittedEvent(projectID, name string, professor Actor, supervisorIDs, supervisorEmails []string) ProjectSubmittedEvent {
	return ProjectSubmittedEvent{
		BaseEvent:         NewBaseEvent(EventProjectSubmitted, projectID),
		ProjectName:       name,
		Professor:         professor,
		SupervisorUserIDs: supervisorIDs,
		SupervisorEmails:  supervisorEmails,
	}
}

// ProjectSubmissionCanceledEvent is emitted when a submission reverts to draft,
// either by the professor or automatically after every program returned it.
type ProjectSubmissionCanceledEvent struct {
	BaseEvent
	ProjectName     string `json:"project_name"`
	ProfessorUserID string `json:"professor_user_id"`
	Automatic       bool   `json:"automatic"`
}

// Payload implements Event interface.
func (e ProjectSubmissionCanceledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"project_name":      e.ProjectName,
		"professor_user_id": e.ProfessorUserID,
		"automatic":         e.Automatic,
	}
}

// NewProjectSubmissionCanceledEvent creates a new ProjectSubmissionCanceledEvent.
func NewProjectSubmissionCanceledEvent(projectID, name, professorUserID string, automatic bool) ProjectSubmissionCanceledEvent {
	return ProjectSubmissionCanceledEvent{
		BaseEvent:       NewBaseEvent(EventProjectSubmissionCanceled, projectID),
		ProjectName:     name,
		ProfessorUserID: professorUserID,
		Automatic:       automatic,
	}
}

// ProjectDecisionEvent is emitted when a program supervisor approves, rejects
// or returns a submission. Type distinguishes the three outcomes.
type ProjectDecisionEvent struct {
	BaseEvent
	ProjectName     string `json:"project_name"`
	ProgramID       string `json:"program_id"`
	ProfessorUserID string `json:"professor_user_id"`
	Decider         Actor  `json:"decider"`
	Reason          string `json:"reason,omitempty"`
	EvaluationState string `json:"evaluation_state"`
}

// Payload implements Event interface.
func (e ProjectDecisionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"project_name":      e.ProjectName,
		"program_id":        e.ProgramID,
		"professor_user_id": e.ProfessorUserID,
		"decider_user_id":   e.Decider.UserID,
		"decider_name":      e.Decider.Name,
		"reason":            e.Reason,
		"evaluation_state":  e.EvaluationState,
	}
}

// NewProjectDecisionEvent creates a decision event of the given type.
func NewProjectDecisionEvent(eventType EventType, projectID, name, programID, professorUserID string, decider Actor, reason, evaluationState string) ProjectDecisionEvent {
	return ProjectDecisionEvent{
		BaseEvent:       NewBaseEvent(eventType, projectID),
		ProjectName:     name,
		ProgramID:       programID,
		ProfessorUserID: professorUserID,
		Decider:         decider,
		Reason:          reason,
		EvaluationState: evaluationState,
	}
}

// ProjectAssignedEvent is emitted when a student becomes the elected student
// of a project. Downstream it triggers creation of the task-tracking project.
type ProjectAssignedEvent struct {
	BaseEvent
	ProjectName     string `json:"project_name"`
	StudentUserID   string `json:"student_user_id"`
	ProfessorUserID string `json:"professor_user_id"`
	ViaProposal     bool   `json:"via_proposal"`
}

// Payload implements Event interface.
func (e ProjectAssignedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"project_name":      e.ProjectName,
		"student_user_id":   e.StudentUserID,
		"professor_user_id": e.ProfessorUserID,
		"via_proposal":      e.ViaProposal,
	}
}

// NewProjectAssignedEvent creates a new ProjectAssignedEvent.
func NewProjectAssignedEvent(projectID, name, studentUserID, professorUserID string, viaProposal bool) ProjectAssignedEvent {
	return ProjectAssignedEvent{
		BaseEvent:       NewBaseEvent(EventProjectAssigned, projectID),
		ProjectName:     name,
		StudentUserID:   studentUserID,
		ProfessorUserID: professorUserID,
		ViaProposal:     viaProposal,
	}
}

// ProjectCompletedEvent is emitted when all outcome files are in place and
// the project is marked completed.
type ProjectCompletedEvent struct {
	BaseEvent
	ProjectName     string `json:"project_name"`
	StudentUserID   string `json:"student_user_id"`
	ProfessorUserID string `json:"professor_user_id"`
}

// Payload implements Event interface.
func (e ProjectCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"project_name":      e.ProjectName,
		"student_user_id":   e.StudentUserID,
		"professor_user_id": e.ProfessorUserID,
	}
}

// NewProjectCompletedEvent creates a new ProjectCompletedEvent.
func NewProjectCompletedEvent(projectID, name, studentUserID, professorUserID string) ProjectCompletedEvent {
	return ProjectCompletedEvent{
		BaseEvent:       NewBaseEvent(EventProjectCompleted, projectID),
		ProjectName:     name,
		StudentUserID:   studentUserID,
		ProfessorUserID: professorUserID,
	}
}

// AttachmentsSharedEvent asks the document store to make attachments public.
type AttachmentsSharedEvent struct {
	BaseEvent
	Keys []string `json:"keys"`
}

// Payload implements Event interface.
func (e AttachmentsSharedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"keys": e.Keys}
}

// NewAttachmentsSharedEvent creates a new AttachmentsSharedEvent.
func NewAttachmentsSharedEvent(ownerID string, keys []string) AttachmentsSharedEvent {
	return AttachmentsSharedEvent{
		BaseEvent: NewBaseEvent(EventAttachmentsShared, ownerID),
		Keys:      keys,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Proposal Events
// ═══════════════════════════════════════════════════════════════════════════

// ProposalEvent covers the sent, accepted and rejected proposal outcomes.
type ProposalEvent struct {
	BaseEvent
	ProposalName    string `json:"proposal_name"`
	ProponentUserID string `json:"proponent_user_id"`
	ProponentName   string `json:"proponent_name"`
	ProfessorUserID string `json:"professor_user_id"`
	ProfessorName   string `json:"professor_name"`
	ProjectID       string `json:"project_id,omitempty"`
}

// Payload implements Event interface.
func (e ProposalEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"proposal_name":     e.ProposalName,
		"proponent_user_id": e.ProponentUserID,
		"professor_user_id": e.ProfessorUserID,
		"project_id":        e.ProjectID,
	}
}

// NewProposalEvent creates a proposal event of the given type.
func NewProposalEvent(eventType EventType, proposalID, name string, proponent, professor Actor, projectID string) ProposalEvent {
	return ProposalEvent{
		BaseEvent:       NewBaseEvent(eventType, proposalID),
		ProposalName:    name,
		ProponentUserID: proponent.UserID,
		ProponentName:   proponent.Name,
		ProfessorUserID: professor.UserID,
		ProfessorName:   professor.Name,
		ProjectID:       projectID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Application Events
// ═══════════════════════════════════════════════════════════════════════════

// ApplicationEvent covers received, accepted and rejected applications.
// Automatic marks rejections caused by another application being accepted.
type ApplicationEvent struct {
	BaseEvent
	ProjectID       string `json:"project_id"`
	ProjectName     string `json:"project_name"`
	ApplicantUserID string `json:"applicant_user_id"`
	ApplicantName   string `json:"applicant_name"`
	ProfessorUserID string `json:"professor_user_id"`
	Automatic       bool   `json:"automatic"`
}

// Payload implements Event interface.
func (e ApplicationEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"project_id":        e.ProjectID,
		"project_name":      e.ProjectName,
		"applicant_user_id": e.ApplicantUserID,
		"professor_user_id": e.ProfessorUserID,
		"automatic":         e.Automatic,
	}
}

// NewApplicationEvent creates an application event of the given type.
func NewApplicationEvent(eventType EventType, applicationID, projectID, projectName string, applicant Actor, professorUserID string, automatic bool) ApplicationEvent {
	return ApplicationEvent{
		BaseEvent:       NewBaseEvent(eventType, applicationID),
		ProjectID:       projectID,
		ProjectName:     projectName,
		ApplicantUserID: applicant.UserID,
		ApplicantName:   applicant.Name,
		ProfessorUserID: professorUserID,
		Automatic:       automatic,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Milestone and Commission Events
// ═══════════════════════════════════════════════════════════════════════════

// MilestoneTask is one assigned project a milestone lands on.
type MilestoneTask struct {
	ProjectID       string `json:"project_id"`
	ProjectName     string `json:"project_name"`
	StudentUserID   string `json:"student_user_id"`
	ProfessorUserID string `json:"professor_user_id"`
}

// MilestoneAnnouncedEvent is emitted when a milestone is announced to its
// programs. Downstream it becomes one task per project and a deadline event.
type MilestoneAnnouncedEvent struct {
	BaseEvent
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Deadline        time.Time       `json:"deadline"`
	Author          Actor           `json:"author"`
	AttachmentKeys  []string        `json:"attachment_keys,omitempty"`
	Tasks           []MilestoneTask `json:"tasks"`
	AttendeeUserIDs []string        `json:"attendee_user_ids"`
}

// Payload implements Event interface.
func (e MilestoneAnnouncedEvent) Payload() map[string]interface{} {
	projects := make([]string, 0, len(e.Tasks))
	for _, t := range e.Tasks {
		projects = append(projects, t.ProjectID)
	}
	return map[string]interface{}{
		"name":              e.Name,
		"deadline":          e.Deadline,
		"author_user_id":    e.Author.UserID,
		"project_ids":       projects,
		"attendee_user_ids": e.AttendeeUserIDs,
	}
}

// NewMilestoneAnnouncedEvent creates a new MilestoneAnnouncedEvent.
func NewMilestoneAnnouncedEvent(milestoneID, name, description string, deadline time.Time, author Actor, attachments []string, tasks []MilestoneTask, attendees []string) MilestoneAnnouncedEvent {
	return MilestoneAnnouncedEvent{
		BaseEvent:       NewBaseEvent(EventMilestoneAnnounced, milestoneID),
		Name:            name,
		Description:     description,
		Deadline:        deadline,
		Author:          author,
		AttachmentKeys:  attachments,
		Tasks:           tasks,
		AttendeeUserIDs: attendees,
	}
}

// CommissionEvent covers locking and unlocking a defense commission.
type CommissionEvent struct {
	BaseEvent
	Name           string    `json:"name"`
	MeetingDate    time.Time `json:"meeting_date"`
	Manager        Actor     `json:"manager"`
	MemberUserIDs  []string  `json:"member_user_ids"`
	StudentUserIDs []string  `json:"student_user_ids"`
	ProjectIDs     []string  `json:"project_ids"`
}

// Payload implements Event interface.
func (e CommissionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"name":             e.Name,
		"meeting_date":     e.MeetingDate,
		"member_user_ids":  e.MemberUserIDs,
		"student_user_ids": e.StudentUserIDs,
		"project_ids":      e.ProjectIDs,
	}
}

// Attendees returns members first, then students.
func (e CommissionEvent) Attendees() []string {
	out := make([]string, 0, len(e.MemberUserIDs)+len(e.StudentUserIDs))
	out = append(out, e.MemberUserIDs...)
	return append(out, e.StudentUserIDs...)
}

// NewCommissionEvent creates a commission event of the given type.
func NewCommissionEvent(eventType EventType, commissionID, name string, meeting time.Time, manager Actor, members, students, projects []string) CommissionEvent {
	return CommissionEvent{
		BaseEvent:      NewBaseEvent(eventType, commissionID),
		Name:           name,
		MeetingDate:    meeting,
		Manager:        manager,
		MemberUserIDs:  members,
		StudentUserIDs: students,
		ProjectIDs:     projects,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
