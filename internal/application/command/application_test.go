package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/application"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/proposal"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/pkg/timeutil"
)

func TestCreateApplicationEligibility(t *testing.T) {
	f := newFixture(t)
	id := f.published(t)
	ctx := context.Background()
	create := NewCreateApplicationHandler(f.deps)

	tests := []struct {
		name    string
		actor   identity.User
		wantMsg string
	}{
		{"not a student", f.otherProf, "You are not registered as a student in the system, please contact your academic supervisor."},
		{"other program", f.s3, "This project is not applicable for your program, please use filters to find another one."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := create.Handle(ctx, CreateApplicationCommand{Actor: tt.actor, ProjectID: id, Message: "hello"})
			assert.True(t, shared.IsValidation(err))
			assert.Equal(t, tt.wantMsg, shared.UserMessage(err, ""))
		})
	}

	f.apply(t, f.s1, id)
	_, err := create.Handle(ctx, CreateApplicationCommand{Actor: f.s1, ProjectID: id, Message: "again"})
	assert.True(t, shared.IsAlreadyExists(err))
	assert.Equal(t, "You have already applied to this project.", shared.UserMessage(err, ""))
}

func TestSendApplicationMarksProjectApplied(t *testing.T) {
	f := newFixture(t)
	id := f.published(t)
	a := f.apply(t, f.s1, id)
	f.events.reset()

	res, err := NewApplicationHandler(f.deps).Send(context.Background(), ApplicationActionCommand{Actor: f.s1, ApplicationID: a.ID})
	require.NoError(t, err)

	assert.Equal(t, application.StateSent, res.Application.State)
	assert.Equal(t, timeutil.StartOfDay(testNow), res.Application.SentDate)
	assert.Equal(t, project.PublicationApplied, res.Project.PublicationState)
	assert.Equal(t, project.StateApplied, f.project(t, id).State)
	assert.Equal(t, []shared.EventType{shared.EventApplicationReceived}, f.events.types())

	assert.Len(t, f.store.Entries(activity.EntityApplication, a.ID), 1)

	_, err = NewApplicationHandler(f.deps).Send(context.Background(), ApplicationActionCommand{Actor: f.s1, ApplicationID: a.ID})
	assert.Equal(t, "The application is already sent!", shared.UserMessage(err, ""))
}

func TestSendSecondApplicationIsRefused(t *testing.T) {
	f := newFixture(t)
	first := f.published(t)
	second := f.published(t)
	handler := NewApplicationHandler(f.deps)

	a1 := f.apply(t, f.s2, first)
	a2 := f.apply(t, f.s2, second)
	_, err := handler.Send(context.Background(), ApplicationActionCommand{Actor: f.s2, ApplicationID: a1.ID})
	require.NoError(t, err)

	_, err = handler.Send(context.Background(), ApplicationActionCommand{Actor: f.s2, ApplicationID: a2.ID})
	assert.True(t, shared.IsInvalidState(err))
	assert.Equal(t, "You have already sent an application for a project. Please wait up to 3 days to receive a response or cancel the application.", shared.UserMessage(err, ""))

	_, err = handler.Cancel(context.Background(), ApplicationActionCommand{Actor: f.s2, ApplicationID: a1.ID})
	require.NoError(t, err)
	_, err = handler.Send(context.Background(), ApplicationActionCommand{Actor: f.s2, ApplicationID: a2.ID})
	require.NoError(t, err)
}

func TestAcceptApplicationAssignsAndRejectsSiblings(t *testing.T) {
	f := newFixture(t)
	id := f.published(t)
	handler := NewApplicationHandler(f.deps)
	ctx := context.Background()

	a1 := f.apply(t, f.s1, id)
	a2 := f.apply(t, f.s2, id)
	for _, c := range []ApplicationActionCommand{{Actor: f.s1, ApplicationID: a1.ID}, {Actor: f.s2, ApplicationID: a2.ID}} {
		_, err := handler.Send(ctx, c)
		require.NoError(t, err)
	}

	_, err := handler.Accept(ctx, ApplicationActionCommand{Actor: f.otherProf, ApplicationID: a1.ID})
	assert.Equal(t, "You can only respond to the applications sent to your projects.", shared.UserMessage(err, ""))

	f.events.reset()
	res, err := handler.Accept(ctx, ApplicationActionCommand{Actor: f.prof, ApplicationID: a1.ID})
	require.NoError(t, err)

	assert.Equal(t, application.StateAccepted, res.Application.State)
	assert.Equal(t, project.StateAssigned, res.Project.State)
	assert.Equal(t, "u-s1", res.Project.ElectedStudentUserID)
	require.Len(t, res.AutoRejected, 1)
	assert.Equal(t, a2.ID, res.AutoRejected[0].ID)

	assert.Equal(t, []string{"u-s1"}, f.store.Members(identity.GroupElectedStudent))
	s1, _ := f.store.Student("s1")
	assert.Equal(t, id, s1.CurrentProjectID)

	assert.Equal(t, []shared.EventType{
		shared.EventApplicationAccepted,
		shared.EventProjectAssigned,
		shared.EventApplicationRejected,
	}, f.events.types())
	auto := res.Events[2].(shared.ApplicationEvent)
	assert.True(t, auto.Automatic)
	assert.Equal(t, "u-s2", auto.ApplicantUserID)

	for _, a := range f.applications(t, id) {
		if a.ID == a2.ID {
			assert.Equal(t, application.StateRejected, a.State)
		}
	}

	_, err = handler.Reject(ctx, ApplicationActionCommand{Actor: f.prof, ApplicationID: a2.ID, Feedback: longReason})
	assert.Equal(t, "The application is already processed or still a draft!", shared.UserMessage(err, ""))
}

func TestRejectApplicationNeedsFeedback(t *testing.T) {
	f := newFixture(t)
	id := f.published(t)
	handler := NewApplicationHandler(f.deps)
	ctx := context.Background()

	a := f.apply(t, f.s1, id)
	_, err := handler.Send(ctx, ApplicationActionCommand{Actor: f.s1, ApplicationID: a.ID})
	require.NoError(t, err)

	_, err = handler.Reject(ctx, ApplicationActionCommand{Actor: f.prof, ApplicationID: a.ID})
	assert.Equal(t, "You have to provide a reason for rejection.", shared.UserMessage(err, ""))

	res, err := handler.Reject(ctx, ApplicationActionCommand{Actor: f.prof, ApplicationID: a.ID, Feedback: longReason})
	require.NoError(t, err)
	assert.Equal(t, application.StateRejected, res.Application.State)
	assert.Equal(t, longReason, res.Application.Feedback)
}

func TestProposalToAssignedProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	handler := NewProposalHandler(f.deps)

	p, err := NewCreateProposalHandler(f.deps).Handle(ctx, CreateProposalCommand{
		Actor:       f.s1,
		ProfessorID: "prof-1",
		Fields: proposal.Proposal{
			Name:        "Drone swarm routing",
			Description: "Routing for small drone swarms.",
			Type:        project.WorkCourse,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "u-prof", p.ProfessorUserID)

	_, err = handler.Accept(ctx, ProposalActionCommand{Actor: f.prof, ProposalID: p.ID})
	assert.Equal(t, "The proposal is already processed or still a draft!", shared.UserMessage(err, ""))

	_, err = handler.Send(ctx, ProposalActionCommand{Actor: f.s2, ProposalID: p.ID})
	assert.True(t, shared.IsPermissionDenied(err))

	_, err = handler.Send(ctx, ProposalActionCommand{Actor: f.s1, ProposalID: p.ID})
	require.NoError(t, err)

	_, err = handler.Accept(ctx, ProposalActionCommand{Actor: f.otherProf, ProposalID: p.ID})
	assert.Equal(t, "You can only respond to the proposals sent to you.", shared.UserMessage(err, ""))

	accepted, err := handler.Accept(ctx, ProposalActionCommand{Actor: f.prof, ProposalID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, proposal.StateAccepted, accepted.State)
	require.NotEmpty(t, accepted.ProjectID)

	prj := f.project(t, accepted.ProjectID)
	assert.True(t, prj.IsFromProposal())
	assert.Equal(t, "u-s1", prj.ElectedStudentUserID)
	assert.Equal(t, project.RequirementsNotApplicable, prj.Requirements)
	assert.Equal(t, project.EvaluationDraft, prj.EvaluationState)

	avails := f.availabilities(t, prj.ID)
	require.Len(t, avails, 1)
	assert.Equal(t, "A", avails[0].ProgramID)
	assert.Equal(t, shared.NewIDSet("d1"), avails[0].DegreeIDs)
	assert.Equal(t, project.WorkCourse, avails[0].Type)
	assert.Equal(t, project.AvailabilityWaiting, avails[0].State)

	f.submit(t, prj.ID)
	f.events.reset()
	res, err := f.decide(f.supA, avails[0].ID, DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, project.EvaluationApproved, res.Project.EvaluationState)
	assert.Equal(t, project.PublicationAssigned, res.Project.PublicationState)
	assert.Equal(t, project.StateAssigned, res.Project.State)
	assert.Equal(t, []string{"u-s1"}, f.store.Members(identity.GroupElectedStudent))

	assert.Equal(t, []shared.EventType{shared.EventProjectApproved, shared.EventProjectAssigned}, f.events.types())
	assigned := res.Events[1].(shared.ProjectAssignedEvent)
	assert.True(t, assigned.ViaProposal)
}

func TestRejectProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	handler := NewProposalHandler(f.deps)

	p, err := NewCreateProposalHandler(f.deps).Handle(ctx, CreateProposalCommand{
		Actor:       f.s1,
		ProfessorID: "prof-1",
		Fields:      proposal.Proposal{Name: "Idea", Description: "An idea.", Type: project.WorkFinal},
	})
	require.NoError(t, err)
	_, err = handler.Send(ctx, ProposalActionCommand{Actor: f.s1, ProposalID: p.ID})
	require.NoError(t, err)

	_, err = handler.Reject(ctx, ProposalActionCommand{Actor: f.prof, ProposalID: p.ID, Feedback: "no"})
	assert.Equal(t, "Please provide a more detailed feedback (at least 20 characters).", shared.UserMessage(err, ""))

	f.events.reset()
	rejected, err := handler.Reject(ctx, ProposalActionCommand{Actor: f.prof, ProposalID: p.ID, Feedback: longReason})
	require.NoError(t, err)
	assert.Equal(t, proposal.StateRejected, rejected.State)

	ev := f.events.events[0].(shared.ProposalEvent)
	assert.Equal(t, shared.EventProposalRejected, ev.EventType())
	assert.Equal(t, "Aigerim", ev.ProponentName)
	assert.Equal(t, "Ada Lovelace", ev.ProfessorName)

	err = handler.Delete(ctx, ProposalActionCommand{Actor: f.prof, ProposalID: p.ID})
	assert.Equal(t, "Only the proposing student can delete the proposal!", shared.UserMessage(err, ""))
	require.NoError(t, handler.Delete(ctx, ProposalActionCommand{Actor: f.s1, ProposalID: p.ID}))
}
