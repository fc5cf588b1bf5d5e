// Package tasking describes requests the workflow issues to the external
// task tracker and calendar. They own the created records; this side only
// emits.
package tasking

import (
	"context"
	"errors"
	"slices"
	"time"
)

// Stage is a column of the task board.
type Stage struct {
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
	Folded   bool   `json:"folded"`
}

// DefaultStages are created on every assigned project's board.
func DefaultStages() []Stage {
	return []Stage{
		{Name: "Backlog", Sequence: 10},
		{Name: "In Progress", Sequence: 20},
		{Name: "Complete", Sequence: 30},
		{Name: "Approved", Sequence: 40},
		{Name: "Canceled", Sequence: 50, Folded: true},
	}
}

// VisibilityFollowers limits the board to its followers.
const VisibilityFollowers = "followers"

// ErrNoFollowers is returned for a task project without followers.
var ErrNoFollowers = errors.New("tasking: task project needs followers")

// TaskProjectRequest asks the tracker to open a board for an assigned project.
type TaskProjectRequest struct {
	ProjectID       string    `json:"project_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Visibility      string    `json:"visibility"`
	Stages          []Stage   `json:"stages"`
	FollowerUserIDs []string  `json:"follower_user_ids"`
	RequestedAt     time.Time `json:"requested_at"`
}

// NewTaskProjectRequest builds the request for an assigned project with the
// student and the professor as followers.
func NewTaskProjectRequest(projectID, title, description, studentUserID, professorUserID string, now time.Time) (TaskProjectRequest, error) {
	followers := nonEmpty(studentUserID, professorUserID)
	if len(followers) == 0 {
		return TaskProjectRequest{}, ErrNoFollowers
	}
	return TaskProjectRequest{
		ProjectID:       projectID,
		Title:           title,
		Description:     description,
		Visibility:      VisibilityFollowers,
		Stages:          DefaultStages(),
		FollowerUserIDs: followers,
		RequestedAt:     now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TASKS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNoAssignees is returned for a task nobody works on.
	ErrNoAssignees = errors.New("tasking: task needs assignees")
	// ErrNoTitle is returned for requests without a title.
	ErrNoTitle = errors.New("tasking: title is required")
	// ErrNoAttendees is returned for a calendar event nobody attends.
	ErrNoAttendees = errors.New("tasking: calendar event needs attendees")
)

// TaskRequest asks the tracker to put a task on the board of a project.
// Milestones create one task per assigned project.
type TaskRequest struct {
	ProjectID       string    `json:"project_id"`
	MilestoneID     string    `json:"milestone_id,omitempty"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Deadline        time.Time `json:"deadline"`
	AssigneeUserIDs []string  `json:"assignee_user_ids"`
	AuthorUserID    string    `json:"author_user_id,omitempty"`
	AttachmentKeys  []string  `json:"attachment_keys,omitempty"`
	RequestedAt     time.Time `json:"requested_at"`
}

// NewMilestoneTask builds the task of a milestone on one project board.
// Assignees are the elected student and the professor.
func NewMilestoneTask(milestoneID, projectID, title, description string, deadline time.Time, studentUserID, professorUserID, authorUserID string, attachments []string, now time.Time) (TaskRequest, error) {
	if title == "" {
		return TaskRequest{}, ErrNoTitle
	}
	assignees := nonEmpty(studentUserID, professorUserID)
	if len(assignees) == 0 {
		return TaskRequest{}, ErrNoAssignees
	}
	return TaskRequest{
		ProjectID:       projectID,
		MilestoneID:     milestoneID,
		Title:           title,
		Description:     description,
		Deadline:        deadline,
		AssigneeUserIDs: assignees,
		AuthorUserID:    authorUserID,
		AttachmentKeys:  attachments,
		RequestedAt:     now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR
// ══════════════════════════════════════════════════════════════════════════════

// EventKind is the kind of a calendar event.
type EventKind string

const (
	EventMilestoneDeadline EventKind = "milestone_deadline"
	EventCommission        EventKind = "commission"
)

// CalendarEventRequest asks the calendar to create an event. RelatedID is
// the milestone or commission the event belongs to; together with Kind it
// identifies the event for a later cancel.
type CalendarEventRequest struct {
	Kind            EventKind `json:"kind"`
	RelatedID       string    `json:"related_id"`
	Title           string    `json:"title"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	AttendeeUserIDs []string  `json:"attendee_user_ids"`
	CreatorUserID   string    `json:"creator_user_id,omitempty"`
	RequestedAt     time.Time `json:"requested_at"`
}

// CalendarEventCancel removes the event of Kind created for RelatedID.
type CalendarEventCancel struct {
	Kind        EventKind `json:"kind"`
	RelatedID   string    `json:"related_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewMilestoneDeadlineEvent builds the deadline event of a milestone. The
// event starts and ends at the deadline.
func NewMilestoneDeadlineEvent(milestoneID, name string, deadline time.Time, attendees []string, creatorUserID string, now time.Time) (CalendarEventRequest, error) {
	return newCalendarEvent(EventMilestoneDeadline, milestoneID, "Milestone deadline: "+name, name, deadline, attendees, creatorUserID, now)
}

// NewCommissionEvent builds the meeting event of a locked commission.
func NewCommissionEvent(commissionID, name string, meeting time.Time, attendees []string, creatorUserID string, now time.Time) (CalendarEventRequest, error) {
	return newCalendarEvent(EventCommission, commissionID, "Commission: "+name, name, meeting, attendees, creatorUserID, now)
}

func newCalendarEvent(kind EventKind, relatedID, title, name string, at time.Time, attendees []string, creatorUserID string, now time.Time) (CalendarEventRequest, error) {
	if name == "" {
		return CalendarEventRequest{}, ErrNoTitle
	}
	attendees = nonEmpty(attendees...)
	if len(attendees) == 0 {
		return CalendarEventRequest{}, ErrNoAttendees
	}
	return CalendarEventRequest{
		Kind:            kind,
		RelatedID:       relatedID,
		Title:           title,
		Start:           at,
		End:             at,
		AttendeeUserIDs: attendees,
		CreatorUserID:   creatorUserID,
		RequestedAt:     now,
	}, nil
}

// nonEmpty drops empty and repeated ids, keeping the first occurrence.
func nonEmpty(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// Emitter sends requests to the tracker and the calendar.
type Emitter interface {
	RequestTaskProject(ctx context.Context, req TaskProjectRequest) error
	RequestTask(ctx context.Context, req TaskRequest) error
	RequestCalendarEvent(ctx context.Context, req CalendarEventRequest) error
	CancelCalendarEvent(ctx context.Context, req CalendarEventCancel) error
}
