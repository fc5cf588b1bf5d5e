// Package academic holds the reference data the project workflow depends on:
// programs and their supervisors, degrees, students and professors.
package academic

import (
	"context"
	"fmt"
)

// DegreeLevel is the level of education.
type DegreeLevel string

const (
	LevelBachelor DegreeLevel = "ba"
	LevelMaster   DegreeLevel = "ms"
	LevelPhD      DegreeLevel = "phd"
)

var levelLabels = map[DegreeLevel]string{
	LevelBachelor: "Bachelor's",
	LevelMaster:   "Master's",
	LevelPhD:      "PhD",
}

// DegreeYear is the academic year within a level.
type DegreeYear string

var yearLabels = map[DegreeYear]string{
	"prep": "Preparatory Year",
	"1":    "1st Year",
	"2":    "2nd Year",
	"3":    "3rd Year",
	"4":    "4th Year",
	"5":    "5th Year",
	"6":    "6th Year",
}

// Degree is a (level, year) pair such as "Bachelor's - 2nd Year".
type Degree struct {
	ID    string
	Level DegreeLevel
	Year  DegreeYear
}

// Name formats the human-readable degree description.
func (d Degree) Name() string {
	level, ok := levelLabels[d.Level]
	if !ok {
		level = string(d.Level)
	}
	year, ok := yearLabels[d.Year]
	if !ok {
		year = string(d.Year)
	}
	return fmt.Sprintf("%s - %s", level, year)
}

// Program is an academic program that projects are submitted to.
type Program struct {
	ID               string
	Name             string
	SupervisorUserID string
	SupervisorEmail  string
	ManagerUserID    string
	DegreeIDs        []string
}

// Student is a student record linked to a user account.
type Student struct {
	ID               string
	UserID           string
	Name             string
	ProgramID        string
	DegreeID         string
	CurrentProjectID string
}

// Professor is a professor record linked to a user account.
type Professor struct {
	ID     string
	UserID string
	Name   string
}

// Repository provides read access to reference data plus the two
// back-references the workflow maintains.
type Repository interface {
	GetProgram(ctx context.Context, id string) (*Program, error)
	GetPrograms(ctx context.Context, ids []string) ([]*Program, error)
	GetDegree(ctx context.Context, id string) (*Degree, error)

	GetStudent(ctx context.Context, id string) (*Student, error)
	// GetStudentByUser returns ErrNotFound when the user has no student record.
	GetStudentByUser(ctx context.Context, userID string) (*Student, error)
	GetProfessor(ctx context.Context, id string) (*Professor, error)
	// GetProfessorByUser returns ErrNotFound when the user has no professor record.
	GetProfessorByUser(ctx context.Context, userID string) (*Professor, error)

	// LinkProjectToProgram records that a program approved a project.
	LinkProjectToProgram(ctx context.Context, programID, projectID string) error
	// SetCurrentProject sets (or clears, with an empty id) a student's project.
	SetCurrentProject(ctx context.Context, studentID, projectID string) error
}
