package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

var manager = identity.User{ID: "u-man", Name: "Dana", Roles: []identity.Role{identity.RoleManager}}

// assigned returns a project of program A assigned to student s1.
func (f *fixture) assigned(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	id := f.published(t)
	a := f.apply(t, f.s1, id)
	handler := NewApplicationHandler(f.deps)
	_, err := handler.Send(ctx, ApplicationActionCommand{Actor: f.s1, ApplicationID: a.ID})
	require.NoError(t, err)
	_, err = handler.Accept(ctx, ApplicationActionCommand{Actor: f.prof, ApplicationID: a.ID})
	require.NoError(t, err)
	return id
}

// completed returns an assigned project with every outcome document attached.
func (f *fixture) completed(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	id := f.assigned(t)
	docs := fakeDocuments{"report.pdf": true, "plagiarism.pdf": true, "review.pdf": true}
	_, err := NewAttachOutcomeHandler(f.deps, docs).Handle(ctx, AttachOutcomeCommand{
		Actor: f.prof, ProjectID: id,
		ReportFile: "report.pdf", PlagiarismCheckFile: "plagiarism.pdf", ProfessorReviewFile: "review.pdf",
	})
	require.NoError(t, err)
	_, err = NewCompleteProjectHandler(f.deps).Handle(ctx, CompleteProjectCommand{Actor: f.prof, ProjectID: id})
	require.NoError(t, err)
	return id
}

func (f *fixture) lastNote(t *testing.T, projectID string) string {
	t.Helper()
	var entries []*activity.Entry
	require.NoError(t, f.store.Do(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		var err error
		entries, err = tx.Activity().List(ctx, activity.EntityProject, projectID, shared.Pagination{})
		return err
	}))
	require.NotEmpty(t, entries)
	return entries[len(entries)-1].Body
}

func TestAnnounceMilestone(t *testing.T) {
	f := newFixture(t)
	assignedID := f.assigned(t)
	openID := f.published(t)
	f.events.reset()

	deadline := testNow.AddDate(0, 0, 14)
	res, err := NewAnnounceMilestoneHandler(f.deps).Handle(context.Background(), AnnounceMilestoneCommand{
		Actor:          manager,
		Name:           "Literature review",
		Deadline:       deadline,
		ProgramIDs:     []string{"A", "A", ""},
		AttachmentKeys: []string{"brief.pdf"},
	})
	require.NoError(t, err)

	// только проект с выбранным студентом
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, shared.MilestoneTask{
		ProjectID:       assignedID,
		ProjectName:     "Graph search",
		StudentUserID:   "u-s1",
		ProfessorUserID: "u-prof",
	}, res.Tasks[0])
	assert.Equal(t, []string{"u-s1", "u-prof", "sup-A"}, res.AttendeeUserIDs)

	assert.Equal(t, []shared.EventType{shared.EventMilestoneAnnounced, shared.EventAttachmentsShared}, f.events.types())
	announced := res.Events[0].(shared.MilestoneAnnouncedEvent)
	assert.Equal(t, res.MilestoneID, announced.AggregateID())
	assert.Equal(t, deadline, announced.Deadline)
	assert.Equal(t, "u-man", announced.Author.UserID)

	assert.Equal(t, `Milestone "Literature review" is due on 24 March 2025.`, f.lastNote(t, assignedID))
	assert.NotContains(t, f.lastNote(t, openID), "Milestone")
}

func TestAnnounceMilestoneRules(t *testing.T) {
	f := newFixture(t)
	handler := NewAnnounceMilestoneHandler(f.deps)
	ctx := context.Background()
	cmd := AnnounceMilestoneCommand{
		Actor:      manager,
		Name:       "Literature review",
		Deadline:   testNow.AddDate(0, 0, 14),
		ProgramIDs: []string{"A"},
	}

	bad := cmd
	bad.Actor = f.prof
	_, err := handler.Handle(ctx, bad)
	assert.True(t, shared.IsPermissionDenied(err))

	bad = cmd
	bad.Deadline = testNow.AddDate(0, 0, -1)
	_, err = handler.Handle(ctx, bad)
	assert.Equal(t, "The milestone deadline is already in the past.", shared.UserMessage(err, ""))

	bad = cmd
	bad.ProgramIDs = []string{" "}
	_, err = handler.Handle(ctx, bad)
	assert.True(t, shared.IsValidation(err))

	bad = cmd
	bad.ProgramIDs = []string{"missing"}
	_, err = handler.Handle(ctx, bad)
	assert.True(t, shared.IsNotFound(err))
	assert.Empty(t, f.events.types())

	// supervisors may announce too
	cmd.Actor = f.supA
	res, err := handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Empty(t, res.Tasks)
	assert.Equal(t, []string{"sup-A"}, res.AttendeeUserIDs)
	assert.Equal(t, []shared.EventType{shared.EventMilestoneAnnounced}, f.events.types())
}

func TestCommissionLockAndUnlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.completed(t)
	f.events.reset()

	meeting := testNow.AddDate(0, 1, 0)
	cmd := CommissionCommand{
		Actor:              manager,
		CommissionID:       "c1",
		Name:               "CS-1",
		MeetingDate:        meeting,
		MemberProfessorIDs: []string{"prof-1", "prof-2", "prof-1"},
		ProjectIDs:         []string{id},
	}
	handler := NewCommissionHandler(f.deps)

	ev, err := handler.Lock(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, shared.EventCommissionLocked, ev.EventType())
	assert.Equal(t, "c1", ev.AggregateID())
	assert.Equal(t, []string{"u-prof", "u-prof2"}, ev.MemberUserIDs)
	assert.Equal(t, []string{"u-s1"}, ev.StudentUserIDs)
	assert.Equal(t, []string{"u-prof", "u-prof2", "u-s1"}, ev.Attendees())
	assert.Equal(t, "Commission CS-1 is set for 2025-04-10.", f.lastNote(t, id))

	ev, err = handler.Unlock(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, shared.EventCommissionUnlocked, ev.EventType())
	assert.Equal(t, "Commission CS-1 is unset.", f.lastNote(t, id))

	assert.Equal(t, []shared.EventType{shared.EventCommissionLocked, shared.EventCommissionUnlocked}, f.events.types())
}

func TestCommissionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	completedID := f.completed(t)
	openID := f.published(t)
	f.events.reset()

	cmd := CommissionCommand{
		Actor:              manager,
		CommissionID:       "c1",
		Name:               "CS-1",
		MeetingDate:        testNow.AddDate(0, 1, 0),
		MemberProfessorIDs: []string{"prof-1"},
		ProjectIDs:         []string{completedID, openID},
	}
	handler := NewCommissionHandler(f.deps)

	_, err := handler.Lock(ctx, cmd)
	assert.True(t, shared.IsInvalidState(err))
	assert.Equal(t, `Project "Graph search" is not completed yet.`, shared.UserMessage(err, ""))
	// откат: заметка о комиссии не осталась
	assert.NotContains(t, f.lastNote(t, completedID), "Commission")

	bad := cmd
	bad.Actor = f.supA
	_, err = handler.Lock(ctx, bad)
	assert.True(t, shared.IsPermissionDenied(err))

	bad = cmd
	bad.ProjectIDs = []string{completedID}
	bad.MemberProfessorIDs = []string{"nobody"}
	_, err = handler.Lock(ctx, bad)
	assert.True(t, shared.IsNotFound(err))

	bad.ProjectIDs = nil
	_, err = handler.Unlock(ctx, bad)
	assert.True(t, shared.IsValidation(err))

	assert.Empty(t, f.events.types())
	assert.Equal(t, project.PublicationCompleted, f.project(t, completedID).PublicationState)
}
