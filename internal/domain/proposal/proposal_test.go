package proposal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

var now = time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

var (
	student   = identity.User{ID: "u-stud", Roles: []identity.Role{identity.RoleStudent}}
	professor = identity.User{ID: "u-prof", Roles: []identity.Role{identity.RoleProfessor}}
	stranger  = identity.User{ID: "u-other", Roles: []identity.Role{identity.RoleProfessor}}
)

func newProposal(t *testing.T) *Proposal {
	t.Helper()
	p, err := New("prop-1", Proposal{
		Name:            "Compiler for a toy language",
		ProponentID:     "stud-1",
		ProponentUserID: "u-stud",
		ProfessorID:     "prof-1",
		ProfessorUserID: "u-prof",
		Type:            project.WorkCourse,
		Format:          project.FormatResearch,
		Description:     "Lexer, parser and a code generator",
	}, now)
	require.NoError(t, err)
	return p
}

func TestNewRejectsBothType(t *testing.T) {
	_, err := New("x", Proposal{
		Name: "n", Description: "d", ProponentID: "s", ProponentUserID: "u", ProfessorID: "p",
		Type: project.WorkBoth,
	}, now)
	assert.True(t, shared.IsValidation(err))
}

func TestSend(t *testing.T) {
	p := newProposal(t)

	err := p.Send(stranger, now)
	assert.True(t, shared.IsPermissionDenied(err))

	require.NoError(t, p.Send(student, now))
	assert.Equal(t, StateSent, p.State)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), p.SentDate)

	err = p.Send(student, now)
	assert.Equal(t, "The proposal is already sent!", shared.UserMessage(err, ""))
}

func TestCancel(t *testing.T) {
	p := newProposal(t)
	err := p.Cancel(student, now)
	assert.Equal(t, "The proposal is already processed!", shared.UserMessage(err, ""))

	require.NoError(t, p.Send(student, now))
	require.NoError(t, p.Cancel(student, now))
	assert.Equal(t, StateDraft, p.State)
}

func TestAcceptByOtherProfessorIsDenied(t *testing.T) {
	p := newProposal(t)
	require.NoError(t, p.Send(student, now))

	err := p.Accept(stranger, "proj-1", now)
	assert.True(t, shared.IsPermissionDenied(err))
	assert.Equal(t, "You can only respond to the proposals sent to you.", shared.UserMessage(err, ""))
	assert.Equal(t, StateSent, p.State)
}

func TestAccept(t *testing.T) {
	p := newProposal(t)
	err := p.Accept(professor, "proj-1", now)
	assert.Equal(t, "The proposal is already processed or still a draft!", shared.UserMessage(err, ""))

	require.NoError(t, p.Send(student, now))
	require.NoError(t, p.Accept(professor, "proj-1", now))
	assert.Equal(t, StateAccepted, p.State)
	assert.Equal(t, "proj-1", p.ProjectID)

	d := p.ProjectDetails()
	assert.Equal(t, project.RequirementsNotApplicable, d.Requirements)
	assert.Equal(t, p.Name, d.Name)
	assert.Equal(t, project.LanguageEnglish, d.Language)
}

func TestReject(t *testing.T) {
	p := newProposal(t)
	require.NoError(t, p.Send(student, now))

	err := p.Reject(professor, "", now)
	assert.Equal(t, "You have to provide a reason for rejection.", shared.UserMessage(err, ""))

	err = p.Reject(professor, "too vague", now)
	assert.Equal(t, "Please provide a more detailed feedback (at least 20 characters).", shared.UserMessage(err, ""))

	feedback := strings.Repeat("a", 20)
	require.NoError(t, p.Reject(professor, feedback, now))
	assert.Equal(t, StateRejected, p.State)
	assert.Equal(t, feedback, p.Feedback)
}

func TestSupervisorMayActForBothSides(t *testing.T) {
	supervisor := identity.User{ID: "u-sup", Roles: []identity.Role{identity.RoleSupervisor}}
	p := newProposal(t)
	require.NoError(t, p.Send(supervisor, now))
	require.NoError(t, p.Accept(supervisor, "proj-1", now))
}
