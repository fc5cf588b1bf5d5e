package project

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/palms-core/internal/domain/academic"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

const longReason = "needs more detail, please expand scope"

func supervisorOf(program string) identity.User {
	return identity.User{ID: "sup-" + program, Roles: []identity.Role{identity.RoleSupervisor}}
}

// newSubmittable builds a draft project with one waiting availability per program.
func newSubmittable(t *testing.T, programs ...string) (*Project, []*Availability) {
	t.Helper()
	p, err := New("p1", Details{Name: "Graph search", Type: WorkCourse}, "prof-1", "u-prof", testNow)
	require.NoError(t, err)

	avails := make([]*Availability, 0, len(programs))
	for _, prog := range programs {
		a, err := NewAvailability("a-"+prog, p, prog, "sup-"+prog, WorkCourse, []string{"deg-1"}, testNow)
		require.NoError(t, err)
		avails = append(avails, a)
	}
	return p, avails
}

func submitted(t *testing.T, programs ...string) (*Project, []*Availability) {
	t.Helper()
	p, avails := newSubmittable(t, programs...)
	require.NoError(t, p.Submit(avails, testNow))
	return p, avails
}

func TestCheckDecisions(t *testing.T) {
	tests := []struct {
		name   string
		counts DecisionCounts
		want   EvaluationState
	}{
		{"pending wins", DecisionCounts{Total: 3, Pending: 1, Approved: 2}, EvaluationProgress},
		{"all approved", DecisionCounts{Total: 2, Approved: 2}, EvaluationApproved},
		{"all returned", DecisionCounts{Total: 2, Returned: 2}, EvaluationDraft},
		{"none approved", DecisionCounts{Total: 2, Returned: 1}, EvaluationRejected},
		{"all rejected", DecisionCounts{Total: 2}, EvaluationRejected},
		{"partial approval is mixed", DecisionCounts{Total: 3, Approved: 1, Returned: 1}, EvaluationMixed},
		{"approved and rejected", DecisionCounts{Total: 2, Approved: 1}, EvaluationMixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckDecisions(tt.counts))
		})
	}
}

func TestSubmit(t *testing.T) {
	t.Run("no programs", func(t *testing.T) {
		p, _ := newSubmittable(t)
		err := p.Submit(nil, testNow)
		assert.True(t, shared.IsValidation(err))
		assert.Equal(t, "You need to choose programs to submit first!", shared.UserMessage(err, ""))
		assert.Equal(t, EvaluationDraft, p.EvaluationState)
	})

	t.Run("moves availabilities to pending", func(t *testing.T) {
		p, avails := submitted(t, "A", "B")
		assert.Equal(t, EvaluationProgress, p.EvaluationState)
		assert.Equal(t, StatePending, p.State)
		assert.Equal(t, shared.NewIDSet("A", "B"), p.TargetPrograms)
		assert.Equal(t, p.TargetPrograms, p.PendingPrograms)
		for _, a := range avails {
			assert.Equal(t, AvailabilityPending, a.State)
		}
	})

	t.Run("twice", func(t *testing.T) {
		p, avails := submitted(t, "A")
		err := p.Submit(avails, testNow)
		assert.True(t, shared.IsInvalidState(err))
		assert.Equal(t, "Projects in this state cannot be submitted!", shared.UserMessage(err, ""))
	})
}

func TestSubmitThenCancelRestoresDraft(t *testing.T) {
	p, avails := submitted(t, "A", "B")

	require.NoError(t, p.CancelSubmission(avails, testNow))

	assert.Equal(t, EvaluationDraft, p.EvaluationState)
	assert.Equal(t, StateDraft, p.State)
	assert.Len(t, avails, 2)
	for _, a := range avails {
		assert.Equal(t, AvailabilityWaiting, a.State)
	}
}

func TestCancelSubmissionAfterDecision(t *testing.T) {
	p, avails := submitted(t, "A", "B")
	require.NoError(t, avails[0].Approve(supervisorOf("A"), testNow))
	_, err := p.Approve("A", testNow)
	require.NoError(t, err)

	err = p.CancelSubmission(avails, testNow)
	assert.True(t, shared.IsInvalidState(err))
	assert.Equal(t, "It is not possible cancel processed projects! Contact system administrator for changes.", shared.UserMessage(err, ""))
	assert.Equal(t, EvaluationProgress, p.EvaluationState)
}

func TestAutoCancelRequiresAllReturned(t *testing.T) {
	p, avails := submitted(t, "A", "B")
	require.NoError(t, avails[0].Return(supervisorOf("A"), longReason, testNow))

	err := p.AutoCancel(avails, testNow)
	assert.True(t, shared.IsConsistency(err))
	assert.Equal(t, EvaluationProgress, p.EvaluationState)
}

func TestTwoProgramApproval(t *testing.T) {
	p, avails := submitted(t, "A", "B")

	require.NoError(t, avails[0].Approve(supervisorOf("A"), testNow))
	res, err := p.Approve("A", testNow)
	require.NoError(t, err)
	assert.True(t, res.FirstPublication)
	assert.False(t, res.Assigned)
	// Still waiting for B, but students can already see the project.
	assert.Equal(t, EvaluationProgress, p.EvaluationState)
	assert.Equal(t, PublicationPublished, p.PublicationState)
	assert.Equal(t, StatePublished, p.State)

	require.NoError(t, avails[1].Approve(supervisorOf("B"), testNow))
	res, err = p.Approve("B", testNow)
	require.NoError(t, err)
	assert.False(t, res.FirstPublication)
	assert.Equal(t, EvaluationApproved, p.EvaluationState)
	assert.True(t, p.ApprovedPrograms.Equal(p.TargetPrograms))
}

func TestApproveTwiceIsRejected(t *testing.T) {
	p, avails := submitted(t, "A", "B")
	require.NoError(t, avails[0].Approve(supervisorOf("A"), testNow))
	_, err := p.Approve("A", testNow)
	require.NoError(t, err)

	err = avails[0].Approve(supervisorOf("A"), testNow)
	assert.True(t, shared.IsInvalidState(err))

	_, err = p.Approve("A", testNow)
	assert.True(t, shared.IsInvalidState(err))
	assert.Equal(t, 1, p.ApprovedPrograms.Len())
}

func TestApproveOutsideProgress(t *testing.T) {
	p, _ := newSubmittable(t, "A")
	_, err := p.Approve("A", testNow)
	assert.True(t, shared.IsInvalidState(err))
	assert.Equal(t, "You can only approve project submissions in 'Pending' status.", shared.UserMessage(err, ""))
}

func TestApproveDoesNotRegressApplied(t *testing.T) {
	p, avails := submitted(t, "A", "B")
	require.NoError(t, avails[0].Approve(supervisorOf("A"), testNow))
	_, err := p.Approve("A", testNow)
	require.NoError(t, err)
	require.True(t, p.OnApplicationReceived(testNow))

	require.NoError(t, avails[1].Approve(supervisorOf("B"), testNow))
	_, err = p.Approve("B", testNow)
	require.NoError(t, err)
	assert.Equal(t, PublicationApplied, p.PublicationState)
	assert.Equal(t, StateApplied, p.State)
}

func TestReject(t *testing.T) {
	t.Run("still pending elsewhere", func(t *testing.T) {
		p, avails := submitted(t, "A", "B")
		require.NoError(t, avails[0].Reject(supervisorOf("A"), longReason, testNow))
		require.NoError(t, p.Reject("A", testNow))
		assert.Equal(t, EvaluationProgress, p.EvaluationState)
		assert.Equal(t, StatePending, p.State)
		assert.True(t, p.RejectedPrograms.Has("A"))
		assert.False(t, p.PendingPrograms.Has("A"))
	})

	t.Run("all rejected", func(t *testing.T) {
		p, avails := submitted(t, "A")
		require.NoError(t, avails[0].Reject(supervisorOf("A"), longReason, testNow))
		require.NoError(t, p.Reject("A", testNow))
		assert.Equal(t, EvaluationRejected, p.EvaluationState)
		assert.Equal(t, StateRejected, p.State)
	})

	t.Run("approved and rejected is mixed", func(t *testing.T) {
		p, avails := submitted(t, "A", "B")
		require.NoError(t, avails[0].Approve(supervisorOf("A"), testNow))
		_, err := p.Approve("A", testNow)
		require.NoError(t, err)
		require.NoError(t, avails[1].Reject(supervisorOf("B"), longReason, testNow))
		require.NoError(t, p.Reject("B", testNow))
		assert.Equal(t, EvaluationMixed, p.EvaluationState)
		// already published, stays visible to students
		assert.Equal(t, StatePublished, p.State)
		assert.Equal(t, PublicationPublished, p.PublicationState)
	})

	t.Run("keeps the state of an assigned project", func(t *testing.T) {
		p, avails := submitted(t, "A", "B", "C")
		require.NoError(t, avails[0].Approve(supervisorOf("A"), testNow))
		_, err := p.Approve("A", testNow)
		require.NoError(t, err)
		require.NoError(t, p.Assign("stud-1", "u-stud", testNow))

		require.NoError(t, avails[1].Reject(supervisorOf("B"), longReason, testNow))
		require.NoError(t, p.Reject("B", testNow))
		assert.Equal(t, EvaluationProgress, p.EvaluationState)
		assert.Equal(t, StateAssigned, p.State)

		require.NoError(t, avails[2].Reject(supervisorOf("C"), longReason, testNow))
		require.NoError(t, p.Reject("C", testNow))
		assert.Equal(t, EvaluationMixed, p.EvaluationState)
		assert.Equal(t, StateAssigned, p.State)
		assert.Equal(t, PublicationAssigned, p.PublicationState)
	})

	t.Run("outside progress", func(t *testing.T) {
		p, _ := newSubmittable(t, "A")
		err := p.Reject("A", testNow)
		assert.Equal(t, "This project cannot be processed. Please contact the administrator.", shared.UserMessage(err, ""))
	})
}

func TestReturnFromOnlyProgramAutoCancels(t *testing.T) {
	p, avails := submitted(t, "A")

	require.NoError(t, avails[0].Return(supervisorOf("A"), longReason, testNow))
	autoCanceled, err := p.Return("A", avails, testNow)
	require.NoError(t, err)

	assert.True(t, autoCanceled)
	assert.Equal(t, EvaluationDraft, p.EvaluationState)
	assert.Equal(t, StateDraft, p.State)
	assert.Equal(t, AvailabilityWaiting, avails[0].State)
	assert.Equal(t, 0, p.ReturnedPrograms.Len())
}

func TestReturnWithOthersPending(t *testing.T) {
	p, avails := submitted(t, "A", "B")

	require.NoError(t, avails[0].Return(supervisorOf("A"), longReason, testNow))
	autoCanceled, err := p.Return("A", avails, testNow)
	require.NoError(t, err)

	assert.False(t, autoCanceled)
	assert.Equal(t, EvaluationProgress, p.EvaluationState)
	assert.Equal(t, PublicationIneligible, p.PublicationState)
	assert.Equal(t, AvailabilityReturned, avails[0].State)
}

func TestProgramSetsPartitionTargets(t *testing.T) {
	p, avails := submitted(t, "A", "B", "C", "D")
	require.NoError(t, avails[0].Approve(supervisorOf("A"), testNow))
	_, err := p.Approve("A", testNow)
	require.NoError(t, err)
	require.NoError(t, avails[1].Reject(supervisorOf("B"), longReason, testNow))
	require.NoError(t, p.Reject("B", testNow))
	require.NoError(t, avails[2].Return(supervisorOf("C"), longReason, testNow))
	_, err = p.Return("C", avails, testNow)
	require.NoError(t, err)

	union := shared.NewIDSet()
	for _, set := range []shared.IDSet{p.PendingPrograms, p.ApprovedPrograms, p.ReturnedPrograms, p.RejectedPrograms} {
		for _, id := range set {
			assert.False(t, union.Has(id), "program %s in two sets", id)
			union = union.Add(id)
		}
	}
	assert.True(t, union.Equal(p.TargetPrograms))
	assert.Equal(t, EvaluationProgress, p.EvaluationState)
}

func TestProposalPathApproval(t *testing.T) {
	p, err := NewFromProposal("p2", "prop-1", Details{Name: "Own idea", Type: WorkFinal}, "prof-1", "u-prof", "stud-1", "u-stud", testNow)
	require.NoError(t, err)
	assert.Equal(t, RequirementsNotApplicable, p.Requirements)

	a, err := NewAvailability("a-A", p, "A", "sup-A", WorkFinal, []string{"deg-1"}, testNow)
	require.NoError(t, err)
	require.NoError(t, p.Submit([]*Availability{a}, testNow))
	require.NoError(t, a.Approve(supervisorOf("A"), testNow))

	res, err := p.Approve("A", testNow)
	require.NoError(t, err)
	assert.True(t, res.Assigned)
	assert.Equal(t, EvaluationApproved, p.EvaluationState)
	assert.Equal(t, PublicationAssigned, p.PublicationState)
	assert.Equal(t, StateAssigned, p.State)
	assert.Equal(t, "stud-1", p.ElectedStudentID)
}

func TestApplicationReceivedAndAssign(t *testing.T) {
	p, avails := submitted(t, "A")
	require.NoError(t, avails[0].Approve(supervisorOf("A"), testNow))
	_, err := p.Approve("A", testNow)
	require.NoError(t, err)

	assert.True(t, p.OnApplicationReceived(testNow))
	assert.False(t, p.OnApplicationReceived(testNow))
	assert.Equal(t, StateApplied, p.State)

	require.NoError(t, p.Assign("stud-1", "u-stud", testNow))
	assert.Equal(t, PublicationAssigned, p.PublicationState)

	err = p.Assign("stud-2", "u-stud2", testNow)
	assert.True(t, shared.IsInvalidState(err))
	assert.Equal(t, "stud-1", p.ElectedStudentID)
}

func TestCompleteAndGrade(t *testing.T) {
	p, _ := newSubmittable(t, "A")

	err := p.Complete(testNow)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "Project report, plagiarism check and professor's review file are required to complete the project.", shared.UserMessage(err, ""))

	assert.True(t, shared.IsInvalidState(p.SetGrade("5", testNow)))

	p.AttachOutcome("report.pdf", "check.pdf", "", testNow)
	assert.Error(t, p.Complete(testNow))
	p.AttachOutcome("", "", "review.pdf", testNow)
	require.NoError(t, p.Complete(testNow))
	assert.Equal(t, StateCompleted, p.State)

	require.NoError(t, p.SetGrade("excellent", testNow))
	assert.Equal(t, StateGraded, p.State)
	require.NoError(t, p.SetGrade("  ", testNow))
	assert.Equal(t, StateCompleted, p.State)
}

func TestReset(t *testing.T) {
	p, avails := submitted(t, "A")
	require.NoError(t, avails[0].Approve(supervisorOf("A"), testNow))
	_, err := p.Approve("A", testNow)
	require.NoError(t, err)
	require.NoError(t, p.Assign("stud-1", "u-stud", testNow))
	p.Reason = "something"

	p.Reset(testNow)

	assert.Equal(t, EvaluationDraft, p.EvaluationState)
	assert.Equal(t, PublicationIneligible, p.PublicationState)
	assert.Equal(t, StateDraft, p.State)
	assert.Empty(t, p.ElectedStudentID)
	assert.Empty(t, p.Reason)
	assert.Equal(t, 0, p.TargetPrograms.Len())
}

func TestBranch(t *testing.T) {
	p, avails := submitted(t, "A")
	clone := p.Branch("p9", "Software Engineering", testNow)
	copyAvail := avails[0].BranchCopy("a9", clone, testNow)

	assert.Equal(t, "Graph search ⎇ Software Engineering", clone.Name)
	assert.Equal(t, EvaluationDraft, clone.EvaluationState)
	assert.Equal(t, PublicationIneligible, clone.PublicationState)
	assert.Equal(t, "prof-1", clone.ProfessorID)
	assert.Equal(t, AvailabilityWaiting, copyAvail.State)
	assert.Equal(t, "p9", copyAvail.ProjectID)
	// The source is untouched.
	assert.Equal(t, EvaluationProgress, p.EvaluationState)
}

func TestCheckApplyEligibility(t *testing.T) {
	p, avails := submitted(t, "A", "B")
	require.NoError(t, avails[0].Approve(supervisorOf("A"), testNow))
	_, err := p.Approve("A", testNow)
	require.NoError(t, err)

	err = p.CheckApplyEligibility(nil, avails)
	assert.Equal(t, "You are not registered as a student in the system, please contact your academic supervisor.", shared.UserMessage(err, ""))

	err = p.CheckApplyEligibility(&academic.Student{ProgramID: "B", DegreeID: "deg-1"}, avails)
	assert.Equal(t, "This project is not applicable for your program, please use filters to find another one.", shared.UserMessage(err, ""))

	err = p.CheckApplyEligibility(&academic.Student{ProgramID: "A", DegreeID: "deg-2"}, avails)
	assert.Equal(t, "This project is not applicable for your level of education, please use filters to find another one.", shared.UserMessage(err, ""))

	assert.NoError(t, p.CheckApplyEligibility(&academic.Student{ProgramID: "A", DegreeID: "deg-1"}, avails))
}

func TestAccessRules(t *testing.T) {
	p, _ := newSubmittable(t, "A")
	owner := identity.User{ID: "u-prof", Roles: []identity.Role{identity.RoleProfessor}}
	other := identity.User{ID: "u-other", Roles: []identity.Role{identity.RoleProfessor}}
	admin := identity.User{ID: "u-admin", Roles: []identity.Role{identity.RoleAdministrator}}

	assert.NoError(t, p.CheckProfessorIdentity(owner))
	assert.NoError(t, p.CheckProfessorIdentity(supervisorOf("X")))
	assert.True(t, shared.IsPermissionDenied(p.CheckProfessorIdentity(other)))

	assert.NoError(t, p.CheckUnlink(owner, nil))
	assert.NoError(t, p.CheckUnlink(supervisorOf("A"), []string{"sup-A"}))
	err := p.CheckUnlink(other, []string{"sup-A"})
	assert.Equal(t, "Only its professor or related supervisors can delete this project!", shared.UserMessage(err, ""))

	p.PublicationState = PublicationAssigned
	err = p.CheckUnlink(owner, nil)
	assert.Equal(t, "Only administrators can delete assigned projects!", shared.UserMessage(err, ""))
	assert.NoError(t, p.CheckUnlink(admin, nil))
}
