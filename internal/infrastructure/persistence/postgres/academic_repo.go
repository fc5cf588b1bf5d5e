package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/palms-core/internal/domain/academic"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACADEMIC REPOSITORY
// Справочники программ, степеней, студентов и преподавателей.
// ══════════════════════════════════════════════════════════════════════════════

// AcademicRepository implements academic.Repository for PostgreSQL.
type AcademicRepository struct {
	q Querier
}

var _ academic.Repository = (*AcademicRepository)(nil)

const programColumns = `id, name, supervisor_user_id, supervisor_email, manager_user_id, degree_ids`

func (r *AcademicRepository) GetProgram(ctx context.Context, id string) (*academic.Program, error) {
	p, err := scanProgram(r.q.QueryRow(ctx, `SELECT `+programColumns+` FROM programs WHERE id = $1`, id))
	return p, mapError("program", "GetProgram", id, err)
}

// GetPrograms returns programs in the order of ids. A missing id is an error.
func (r *AcademicRepository) GetPrograms(ctx context.Context, ids []string) ([]*academic.Program, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.q.Query(ctx, `SELECT `+programColumns+` FROM programs WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, mapError("program", "GetPrograms", "", err)
	}
	defer rows.Close()

	byID := make(map[string]*academic.Program, len(ids))
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, mapError("program", "GetPrograms", "", err)
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("program", "GetPrograms", "", err)
	}

	out := make([]*academic.Program, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, shared.NotFound("program", "GetPrograms", id)
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *AcademicRepository) GetDegree(ctx context.Context, id string) (*academic.Degree, error) {
	var (
		d           academic.Degree
		level, year string
	)
	err := r.q.QueryRow(ctx, `SELECT id, level, year FROM degrees WHERE id = $1`, id).Scan(&d.ID, &level, &year)
	if err != nil {
		return nil, mapError("degree", "GetDegree", id, err)
	}
	d.Level = academic.DegreeLevel(level)
	d.Year = academic.DegreeYear(year)
	return &d, nil
}

const studentColumns = `id, user_id, name, program_id, degree_id, current_project_id`

func (r *AcademicRepository) GetStudent(ctx context.Context, id string) (*academic.Student, error) {
	s, err := scanStudent(r.q.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	return s, mapError("student", "GetStudent", id, err)
}

func (r *AcademicRepository) GetStudentByUser(ctx context.Context, userID string) (*academic.Student, error) {
	s, err := scanStudent(r.q.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE user_id = $1`, userID))
	return s, mapError("student", "GetStudentByUser", userID, err)
}

func (r *AcademicRepository) GetProfessor(ctx context.Context, id string) (*academic.Professor, error) {
	var p academic.Professor
	err := r.q.QueryRow(ctx, `SELECT id, user_id, name FROM professors WHERE id = $1`, id).Scan(&p.ID, &p.UserID, &p.Name)
	if err != nil {
		return nil, mapError("professor", "GetProfessor", id, err)
	}
	return &p, nil
}

func (r *AcademicRepository) GetProfessorByUser(ctx context.Context, userID string) (*academic.Professor, error) {
	var p academic.Professor
	err := r.q.QueryRow(ctx, `SELECT id, user_id, name FROM professors WHERE user_id = $1`, userID).Scan(&p.ID, &p.UserID, &p.Name)
	if err != nil {
		return nil, mapError("professor", "GetProfessorByUser", userID, err)
	}
	return &p, nil
}

// LinkProjectToProgram is idempotent.
func (r *AcademicRepository) LinkProjectToProgram(ctx context.Context, programID, projectID string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO program_projects (program_id, project_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, programID, projectID)
	return mapError("program", "LinkProjectToProgram", programID, err)
}

// SetCurrentProject stores the project a student works on; an empty id releases it.
func (r *AcademicRepository) SetCurrentProject(ctx context.Context, studentID, projectID string) error {
	tag, err := r.q.Exec(ctx, `UPDATE students SET current_project_id = $2 WHERE id = $1`, studentID, projectID)
	if err != nil {
		return mapError("student", "SetCurrentProject", studentID, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("student", "SetCurrentProject", studentID)
	}
	return nil
}

func scanProgram(row pgx.Row) (*academic.Program, error) {
	var p academic.Program
	if err := row.Scan(&p.ID, &p.Name, &p.SupervisorUserID, &p.SupervisorEmail, &p.ManagerUserID, &p.DegreeIDs); err != nil {
		return nil, err
	}
	p.DegreeIDs = orNil(p.DegreeIDs)
	return &p, nil
}

func scanStudent(row pgx.Row) (*academic.Student, error) {
	var s academic.Student
	if err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.ProgramID, &s.DegreeID, &s.CurrentProjectID); err != nil {
		return nil, err
	}
	return &s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUP REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// GroupRepository implements identity.GroupRepository for PostgreSQL.
type GroupRepository struct {
	q Querier
}

var _ identity.GroupRepository = (*GroupRepository)(nil)

func (r *GroupRepository) AddMember(ctx context.Context, group identity.Group, userID string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO user_groups (group_name, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, string(group), userID)
	return mapError("group", "AddMember", userID, err)
}

func (r *GroupRepository) RemoveMember(ctx context.Context, group identity.Group, userID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM user_groups WHERE group_name = $1 AND user_id = $2`, string(group), userID)
	return mapError("group", "RemoveMember", userID, err)
}

func (r *GroupRepository) IsMember(ctx context.Context, group identity.Group, userID string) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM user_groups WHERE group_name = $1 AND user_id = $2)`,
		string(group), userID).Scan(&ok)
	if err != nil {
		return false, mapError("group", "IsMember", userID, err)
	}
	return ok, nil
}
