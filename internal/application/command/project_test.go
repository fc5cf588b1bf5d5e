package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

func TestSubmitProject(t *testing.T) {
	f := newFixture(t)
	id, _ := f.newProject(t, "A", "B")
	f.events.reset()

	res, err := NewSubmitProjectHandler(f.deps).Handle(context.Background(), SubmitProjectCommand{Actor: f.prof, ProjectID: id})
	require.NoError(t, err)

	assert.Equal(t, project.EvaluationProgress, res.Project.EvaluationState)
	assert.Equal(t, project.StatePending, res.Project.State)
	for _, a := range f.availabilities(t, id) {
		assert.Equal(t, project.AvailabilityPending, a.State)
	}

	require.Len(t, res.Events, 1)
	ev, ok := res.Events[0].(shared.ProjectSubmittedEvent)
	require.True(t, ok)
	assert.Equal(t, []string{"sup-A", "sup-B"}, ev.SupervisorUserIDs)
	assert.Equal(t, []string{"ds@uni.test", "rb@uni.test"}, ev.SupervisorEmails)
	assert.Equal(t, "Ada Lovelace", ev.Professor.Name)
	assert.Equal(t, []shared.EventType{shared.EventProjectSubmitted}, f.events.types())
}

func TestSubmitProjectWithoutPrograms(t *testing.T) {
	f := newFixture(t)
	id, _ := f.newProject(t)

	_, err := NewSubmitProjectHandler(f.deps).Handle(context.Background(), SubmitProjectCommand{Actor: f.prof, ProjectID: id})
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "You need to choose programs to submit first!", shared.UserMessage(err, ""))
}

func TestSubmitProjectOfAnotherProfessor(t *testing.T) {
	f := newFixture(t)
	id, _ := f.newProject(t, "A")

	_, err := NewSubmitProjectHandler(f.deps).Handle(context.Background(), SubmitProjectCommand{Actor: f.otherProf, ProjectID: id})
	assert.True(t, shared.IsPermissionDenied(err))
	assert.Equal(t, project.EvaluationDraft, f.project(t, id).EvaluationState)
}

func TestApproveFirstOfTwoPrograms(t *testing.T) {
	f := newFixture(t)
	id, avails := f.newProject(t, "A", "B")
	f.submit(t, id)

	res, err := f.decide(f.supA, avails["A"], DecisionApprove, "")
	require.NoError(t, err)

	assert.Equal(t, project.EvaluationProgress, res.Project.EvaluationState)
	assert.Equal(t, project.PublicationPublished, res.Project.PublicationState)
	assert.Equal(t, project.StatePublished, res.Project.State)
	assert.Equal(t, project.AvailabilityApproved, res.Availability.State)

	require.Len(t, res.Approvals, 1)
	assert.Equal(t, "КР/ВКР • Data Science • Bachelor's - 1st Year", res.Approvals[0].Name)
	assert.Equal(t, []string{id}, f.store.ProgramProjects("A"))

	require.Len(t, res.Events, 1)
	assert.Equal(t, shared.EventProjectApproved, res.Events[0].EventType())
}

func TestRejectAfterApprovalIsMixed(t *testing.T) {
	f := newFixture(t)
	id, avails := f.newProject(t, "A", "B")
	f.submit(t, id)
	_, err := f.decide(f.supA, avails["A"], DecisionApprove, "")
	require.NoError(t, err)

	res, err := f.decide(f.supB, avails["B"], DecisionReject, longReason)
	require.NoError(t, err)
	assert.Equal(t, project.EvaluationMixed, res.Project.EvaluationState)
	assert.Equal(t, project.PublicationPublished, res.Project.PublicationState)
	assert.Equal(t, project.StatePublished, res.Project.State)
	assert.True(t, res.Project.RejectedPrograms.Has("B"))
}

func TestDecisionFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	id, avails := f.newProject(t, "A", "B")
	f.submit(t, id)
	before := f.project(t, id)

	_, err := f.decide(f.supB, avails["B"], DecisionReject, "too short")
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "Please provide a more detailed reason (at least 20 characters).", shared.UserMessage(err, ""))

	_, err = f.decide(f.supB, avails["A"], DecisionApprove, "")
	assert.True(t, shared.IsPermissionDenied(err))

	after := f.project(t, id)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, shared.NewIDSet("A", "B"), after.PendingPrograms)
	for _, a := range f.availabilities(t, id) {
		assert.Equal(t, project.AvailabilityPending, a.State)
	}
}

func TestReturnFromEveryProgramAutoCancels(t *testing.T) {
	f := newFixture(t)
	id, avails := f.newProject(t, "A", "B")
	f.submit(t, id)

	res, err := f.decide(f.supA, avails["A"], DecisionReturn, longReason)
	require.NoError(t, err)
	assert.False(t, res.AutoCanceled)
	assert.Equal(t, project.EvaluationProgress, res.Project.EvaluationState)

	f.events.reset()
	res, err = f.decide(f.supB, avails["B"], DecisionReturn, longReason)
	require.NoError(t, err)
	assert.True(t, res.AutoCanceled)
	assert.Equal(t, project.EvaluationDraft, res.Project.EvaluationState)
	assert.Equal(t, project.StateDraft, res.Project.State)
	assert.Equal(t, project.AvailabilityWaiting, res.Availability.State)

	for _, a := range f.availabilities(t, id) {
		assert.Equal(t, project.AvailabilityWaiting, a.State)
	}

	entries := f.store.Entries(activity.EntityProject, id)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, AutoCancelNote, last.Body)
	assert.True(t, last.IsSystem())

	assert.Equal(t, []shared.EventType{shared.EventProjectReturned, shared.EventProjectSubmissionCanceled}, f.events.types())
	canceled := res.Events[1].(shared.ProjectSubmissionCanceledEvent)
	assert.True(t, canceled.Automatic)

	// Resubmission is possible after the automatic revert.
	f.submit(t, id)
}

func TestCancelSubmission(t *testing.T) {
	f := newFixture(t)
	id, avails := f.newProject(t, "A", "B")
	f.submit(t, id)

	p, err := NewCancelSubmissionHandler(f.deps).Handle(context.Background(), CancelSubmissionCommand{Actor: f.prof, ProjectID: id})
	require.NoError(t, err)
	assert.Equal(t, project.EvaluationDraft, p.EvaluationState)

	f.submit(t, id)
	_, err = f.decide(f.supA, avails["A"], DecisionApprove, "")
	require.NoError(t, err)

	_, err = NewCancelSubmissionHandler(f.deps).Handle(context.Background(), CancelSubmissionCommand{Actor: f.prof, ProjectID: id})
	assert.True(t, shared.IsInvalidState(err))
	assert.Equal(t, "It is not possible cancel processed projects! Contact system administrator for changes.", shared.UserMessage(err, ""))
}

func TestAddTargetRules(t *testing.T) {
	f := newFixture(t)
	id, avails := f.newProject(t, "A")
	ctx := context.Background()

	_, err := NewAddTargetHandler(f.deps).Handle(ctx, AddTargetCommand{
		Actor: f.prof, ProjectID: id, ProgramID: "A", Type: project.WorkCourse, DegreeIDs: []string{"d1"},
	})
	assert.True(t, shared.IsAlreadyExists(err))
	assert.Equal(t, "You have specified duplicate target programs.", shared.UserMessage(err, ""))

	_, err = NewAddTargetHandler(f.deps).Handle(ctx, AddTargetCommand{
		Actor: f.otherProf, ProjectID: id, ProgramID: "B", Type: project.WorkCourse, DegreeIDs: []string{"d1"},
	})
	assert.True(t, shared.IsPermissionDenied(err))

	f.submit(t, id)
	err = NewRemoveTargetHandler(f.deps).Handle(ctx, RemoveTargetCommand{Actor: f.prof, AvailabilityID: avails["A"]})
	assert.True(t, shared.IsInvalidState(err))

	_, err = NewUpdateTargetsHandler(f.deps).Handle(ctx, UpdateTargetsCommand{
		Actor: f.prof, AvailabilityID: avails["A"], Type: project.WorkFinal, DegreeIDs: []string{"d2"},
	})
	assert.Equal(t, "This project is already submitted, cancel the submission to modify this section.", shared.UserMessage(err, ""))

	a, err := NewUpdateTargetsHandler(f.deps).Handle(ctx, UpdateTargetsCommand{
		Actor: f.supA, AvailabilityID: avails["A"], Type: project.WorkFinal, DegreeIDs: []string{"d2"},
	})
	require.NoError(t, err)
	assert.Equal(t, shared.NewIDSet("d2"), a.DegreeIDs)
}

func TestRemoveWaitingTarget(t *testing.T) {
	f := newFixture(t)
	id, avails := f.newProject(t, "A", "B")

	require.NoError(t, NewRemoveTargetHandler(f.deps).Handle(context.Background(), RemoveTargetCommand{Actor: f.prof, AvailabilityID: avails["B"]}))
	remaining := f.availabilities(t, id)
	require.Len(t, remaining, 1)
	assert.Equal(t, "A", remaining[0].ProgramID)
}

func TestUpdateProjectRefreshesSnapshots(t *testing.T) {
	f := newFixture(t)
	id, _ := f.newProject(t, "A", "B")
	f.events.reset()

	p, err := NewUpdateProjectHandler(f.deps).Handle(context.Background(), UpdateProjectCommand{
		Actor:     f.prof,
		ProjectID: id,
		Details: project.Details{
			Name:            "Graph search at scale",
			Type:            project.WorkBoth,
			AdditionalFiles: []string{"projects/brief.pdf"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Graph search at scale", p.Name)

	for _, a := range f.availabilities(t, id) {
		assert.Equal(t, "Graph search at scale", a.Snapshot.Name)
		assert.Equal(t, []string{"projects/brief.pdf"}, a.Snapshot.AdditionalFiles)
	}
	assert.Equal(t, []shared.EventType{shared.EventAttachmentsShared}, f.events.types())

	_, err = NewUpdateProjectHandler(f.deps).Handle(context.Background(), UpdateProjectCommand{
		Actor: f.otherProf, ProjectID: id, Details: project.Details{Name: "x"},
	})
	assert.Equal(t, "You cannot modify projects of other professors.", shared.UserMessage(err, ""))
}

func TestBranchProject(t *testing.T) {
	f := newFixture(t)
	id, avails := f.newProject(t, "A")
	f.submit(t, id)

	_, err := NewBranchProjectHandler(f.deps).Handle(context.Background(), BranchProjectCommand{Actor: f.supA, AvailabilityID: avails["A"]})
	assert.Equal(t, "Only the professor who submitted this project can create a new branch.", shared.UserMessage(err, ""))

	res, err := NewBranchProjectHandler(f.deps).Handle(context.Background(), BranchProjectCommand{Actor: f.prof, AvailabilityID: avails["A"]})
	require.NoError(t, err)
	assert.NotEqual(t, id, res.Project.ID)
	assert.Equal(t, "Graph search ⎇ Data Science", res.Project.Name)
	assert.Equal(t, project.EvaluationDraft, res.Project.EvaluationState)
	assert.Equal(t, project.AvailabilityWaiting, res.Availability.State)
	assert.Equal(t, res.Project.ID, res.Availability.ProjectID)

	// The original is untouched.
	assert.Equal(t, project.EvaluationProgress, f.project(t, id).EvaluationState)
}

type fakeDocuments map[string]bool

func (d fakeDocuments) SetPublic(_ context.Context, key string, _ bool) error { return nil }

func (d fakeDocuments) Exists(_ context.Context, key string) (bool, error) { return d[key], nil }

func TestCompleteAndGrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.published(t)
	docs := fakeDocuments{"report.pdf": true, "plagiarism.pdf": true, "review.pdf": true}
	attach := NewAttachOutcomeHandler(f.deps, docs)

	_, err := attach.Handle(ctx, AttachOutcomeCommand{Actor: f.prof, ProjectID: id, ReportFile: "missing.pdf"})
	assert.True(t, shared.IsValidation(err))

	_, err = attach.Handle(ctx, AttachOutcomeCommand{Actor: f.prof, ProjectID: id, ReportFile: "report.pdf"})
	require.NoError(t, err)

	_, err = NewCompleteProjectHandler(f.deps).Handle(ctx, CompleteProjectCommand{Actor: f.prof, ProjectID: id})
	assert.Equal(t, "Project report, plagiarism check and professor's review file are required to complete the project.", shared.UserMessage(err, ""))

	_, err = attach.Handle(ctx, AttachOutcomeCommand{Actor: f.prof, ProjectID: id, PlagiarismCheckFile: "plagiarism.pdf", ProfessorReviewFile: "review.pdf"})
	require.NoError(t, err)

	p, err := NewCompleteProjectHandler(f.deps).Handle(ctx, CompleteProjectCommand{Actor: f.prof, ProjectID: id})
	require.NoError(t, err)
	assert.Equal(t, project.StateCompleted, p.State)
	assert.Equal(t, "report.pdf", p.ReportFile)

	p, err = NewGradeProjectHandler(f.deps).Handle(ctx, GradeProjectCommand{Actor: f.prof, ProjectID: id, Grade: "A"})
	require.NoError(t, err)
	assert.Equal(t, project.StateGraded, p.State)
}

func TestResetProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.published(t)
	f.apply(t, f.s1, id)

	_, err := NewResetProjectHandler(f.deps).Handle(ctx, ResetProjectCommand{Actor: f.prof, ProjectID: id})
	assert.True(t, shared.IsPermissionDenied(err))

	p, err := NewResetProjectHandler(f.deps).Handle(ctx, ResetProjectCommand{Actor: f.admin, ProjectID: id})
	require.NoError(t, err)
	assert.Equal(t, project.EvaluationDraft, p.EvaluationState)
	assert.Equal(t, project.PublicationIneligible, p.PublicationState)
	assert.Equal(t, project.StateDraft, p.State)
	assert.Empty(t, f.availabilities(t, id))
	assert.Empty(t, f.applications(t, id))
}

func TestUnlinkProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.newProject(t, "A")
	f.submit(t, id)

	err := NewUnlinkProjectHandler(f.deps).Handle(ctx, UnlinkProjectCommand{Actor: f.otherProf, ProjectID: id})
	assert.Equal(t, "Only its professor or related supervisors can delete this project!", shared.UserMessage(err, ""))

	require.NoError(t, NewUnlinkProjectHandler(f.deps).Handle(ctx, UnlinkProjectCommand{Actor: f.supA, ProjectID: id}))
	assert.Empty(t, f.availabilities(t, id))

	_, err = NewSubmitProjectHandler(f.deps).Handle(ctx, SubmitProjectCommand{Actor: f.prof, ProjectID: id})
	assert.True(t, shared.IsNotFound(err))
}

func TestCommandValidation(t *testing.T) {
	_, err := NewSubmitProjectHandler(Deps{}).Handle(context.Background(), SubmitProjectCommand{ProjectID: "p1"})
	assert.ErrorIs(t, err, ErrNoActor)

	err = DecideAvailabilityCommand{Actor: newFixture(t).supA, AvailabilityID: "a1", Decision: "maybe"}.Validate()
	assert.Error(t, err)
}
