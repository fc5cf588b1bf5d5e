package project

import (
	"strings"
	"time"
)

// Approval records that a program accepted a project for one degree.
type Approval struct {
	ID        string
	ProjectID string
	Type      WorkType
	ProgramID string
	DegreeID  string
	Name      string
	CreatedAt time.Time
}

// ApprovalName builds the display name "<type> • <program> • <degree>".
func ApprovalName(t WorkType, programName, degreeName string) string {
	return strings.Join([]string{t.ShortLabel(), programName, degreeName}, " • ")
}

// NewApprovals creates one Approval per degree of an approved submission.
// degreeNames maps degree ids to display names; newID supplies identifiers.
func NewApprovals(a *Availability, programName string, degreeNames map[string]string, newID func() string, now time.Time) []*Approval {
	out := make([]*Approval, 0, a.DegreeIDs.Len())
	for _, degreeID := range a.DegreeIDs {
		out = append(out, &Approval{
			ID:        newID(),
			ProjectID: a.ProjectID,
			Type:      a.Type,
			ProgramID: a.ProgramID,
			DegreeID:  degreeID,
			Name:      ApprovalName(a.Type, programName, degreeNames[degreeID]),
			CreatedAt: now,
		})
	}
	return out
}
