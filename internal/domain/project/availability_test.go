package project

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

func TestAvailabilityReasonLength(t *testing.T) {
	tests := []struct {
		name    string
		reason  string
		wantErr string
	}{
		{"empty", "", "You need to provide a reason for rejection/return."},
		{"blank", "   ", "You need to provide a reason for rejection/return."},
		{"19 chars", strings.Repeat("x", 19), "Please provide a more detailed reason (at least 20 characters)."},
		{"20 chars", strings.Repeat("x", 20), ""},
		{"20 cyrillic chars", strings.Repeat("ж", 20), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, avails := submitted(t, "A")
			err := avails[0].Reject(supervisorOf("A"), tt.reason, testNow)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, AvailabilityRejected, avails[0].State)
				return
			}
			assert.True(t, shared.IsValidation(err))
			assert.Equal(t, tt.wantErr, shared.UserMessage(err, ""))
			assert.Equal(t, AvailabilityPending, avails[0].State)
		})
	}
}

func TestAvailabilityOnlySupervisorDecides(t *testing.T) {
	_, avails := submitted(t, "A")

	err := avails[0].Approve(supervisorOf("B"), testNow)
	assert.True(t, shared.IsPermissionDenied(err))
	assert.Equal(t, "You can only react to projects sent to the program that you are supervising.", shared.UserMessage(err, ""))

	err = avails[0].Return(identity.User{ID: "u-prof", Roles: []identity.Role{identity.RoleProfessor}}, longReason, testNow)
	assert.True(t, shared.IsPermissionDenied(err))

	admin := identity.User{ID: "root", Roles: []identity.Role{identity.RoleAdministrator}}
	require.NoError(t, avails[0].Approve(admin, testNow))
}

func TestAvailabilityDecideRequiresPending(t *testing.T) {
	_, avails := newSubmittable(t, "A")

	err := avails[0].Approve(supervisorOf("A"), testNow)
	assert.True(t, shared.IsInvalidState(err))
	assert.Equal(t, "You can only approve project submissions in 'Pending' status.", shared.UserMessage(err, ""))

	err = avails[0].Return(supervisorOf("A"), longReason, testNow)
	assert.True(t, shared.IsInvalidState(err))
}

func TestAvailabilityUpdateTargets(t *testing.T) {
	owner := identity.User{ID: "u-prof", Roles: []identity.Role{identity.RoleProfessor}}
	other := identity.User{ID: "u-other", Roles: []identity.Role{identity.RoleProfessor}}

	_, avails := newSubmittable(t, "A")
	a := avails[0]

	err := a.UpdateTargets(other, "u-prof", WorkFinal, []string{"deg-2"}, testNow)
	assert.Equal(t, "You cannot modify the details of projects of other professors!", shared.UserMessage(err, ""))

	require.NoError(t, a.UpdateTargets(owner, "u-prof", WorkFinal, []string{"deg-2", "deg-1"}, testNow))
	assert.Equal(t, WorkFinal, a.Type)
	assert.Equal(t, shared.NewIDSet("deg-1", "deg-2"), a.DegreeIDs)

	err = a.UpdateTargets(supervisorOf("B"), "u-prof", WorkFinal, []string{"deg-2"}, testNow)
	assert.Equal(t, "This project is not sent to a program you are supervising.", shared.UserMessage(err, ""))

	a.markPending(testNow)
	err = a.UpdateTargets(owner, "u-prof", WorkFinal, []string{"deg-2"}, testNow)
	assert.Equal(t, "This project is already submitted, cancel the submission to modify this section.", shared.UserMessage(err, ""))

	require.NoError(t, a.UpdateTargets(supervisorOf("A"), "u-prof", WorkBoth, []string{"deg-3"}, testNow))
}

func TestNewApprovalsOnePerDegree(t *testing.T) {
	p, _ := newSubmittable(t)
	a, err := NewAvailability("a1", p, "A", "sup-A", WorkBoth, []string{"d2", "d1"}, testNow)
	require.NoError(t, err)

	n := 0
	approvals := NewApprovals(a, "Data Science", map[string]string{
		"d1": "Bachelor's - 1st Year",
		"d2": "Bachelor's - 2nd Year",
	}, func() string { n++; return strings.Repeat("i", n) }, testNow)

	require.Len(t, approvals, 2)
	assert.Equal(t, "КР/ВКР • Data Science • Bachelor's - 1st Year", approvals[0].Name)
	assert.Equal(t, "КР/ВКР • Data Science • Bachelor's - 2nd Year", approvals[1].Name)
	assert.Equal(t, "p1", approvals[1].ProjectID)
}

func TestSnapshotRefresh(t *testing.T) {
	p, avails := newSubmittable(t, "A")
	require.NoError(t, p.UpdateDetails(Details{Name: "Graph search v2", Tags: []string{"graphs"}}, testNow))

	avails[0].Refresh(p.Snapshot(), testNow)
	assert.Equal(t, "Graph search v2", avails[0].Snapshot.Name)
	assert.Equal(t, []string{"graphs"}, avails[0].Snapshot.Tags)
	assert.Equal(t, "prof-1", avails[0].Snapshot.ProfessorID)
}
