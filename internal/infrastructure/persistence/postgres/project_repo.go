package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROJECT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProjectRepository implements project.Repository for PostgreSQL.
type ProjectRepository struct {
	q Querier
}

const projectColumns = `
	id, name, name_ru, format, type, language, description, requirements, results,
	is_group_project, tags, additional_files, professor_id, professor_user_id,
	proposal_id, elected_student_id, elected_student_user_id,
	evaluation_state, publication_state, state,
	target_programs, pending_programs, approved_programs, returned_programs, rejected_programs,
	reason, report_file, plagiarism_check_file, professor_review_file, grade,
	version, created_at, updated_at`

// Create inserts a new project with version 1.
func (r *ProjectRepository) Create(ctx context.Context, p *project.Project) error {
	query := `INSERT INTO projects (` + projectColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33)`

	p.Version = 1
	_, err := r.q.Exec(ctx, query, projectArgs(p)...)
	return mapError("project", "Create", p.ID, err)
}

func projectArgs(p *project.Project) []any {
	return []any{
		p.ID, p.Name, p.NameRu, string(p.Format), string(p.Type), string(p.Language),
		p.Description, p.Requirements, p.Results,
		p.IsGroupProject, textArray(p.Tags), textArray(p.AdditionalFiles),
		p.ProfessorID, p.ProfessorUserID,
		p.ProposalID, p.ElectedStudentID, p.ElectedStudentUserID,
		string(p.EvaluationState), string(p.PublicationState), string(p.State),
		textArray(p.TargetPrograms.Slice()), textArray(p.PendingPrograms.Slice()),
		textArray(p.ApprovedPrograms.Slice()), textArray(p.ReturnedPrograms.Slice()),
		textArray(p.RejectedPrograms.Slice()),
		p.Reason, p.ReportFile, p.PlagiarismCheckFile, p.ProfessorReviewFile, p.Grade,
		p.Version, p.CreatedAt, p.UpdatedAt,
	}
}

// GetByID returns a project without locking it.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*project.Project, error) {
	row := r.q.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	return p, mapError("project", "GetByID", id, err)
}

// GetForUpdate returns the project and holds its row lock until the
// transaction ends.
func (r *ProjectRepository) GetForUpdate(ctx context.Context, id string) (*project.Project, error) {
	row := r.q.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id)
	p, err := scanProject(row)
	return p, mapError("project", "GetForUpdate", id, err)
}

// Update writes p when the stored version still matches and bumps it.
func (r *ProjectRepository) Update(ctx context.Context, p *project.Project) error {
	query := `
		UPDATE projects SET
			name = $2, name_ru = $3, format = $4, type = $5, language = $6,
			description = $7, requirements = $8, results = $9,
			is_group_project = $10, tags = $11, additional_files = $12,
			professor_id = $13, professor_user_id = $14,
			proposal_id = $15, elected_student_id = $16, elected_student_user_id = $17,
			evaluation_state = $18, publication_state = $19, state = $20,
			target_programs = $21, pending_programs = $22, approved_programs = $23,
			returned_programs = $24, rejected_programs = $25,
			reason = $26, report_file = $27, plagiarism_check_file = $28,
			professor_review_file = $29, grade = $30,
			version = version + 1, updated_at = $32
		WHERE id = $1 AND version = $31`

	// Те же аргументы, что и при вставке, без created_at.
	args := projectArgs(p)
	args = append(args[:31:31], args[32])

	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return mapError("project", "Update", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return mapError("project", "Update", p.ID, err)
		}
		if !exists {
			return shared.NotFound("project", "Update", p.ID)
		}
		return shared.WrapError("project", "Update", shared.ErrConcurrentModification,
			"The project was changed by someone else. Reload and try again.", nil)
	}
	p.Version++
	return nil
}

// Delete removes the project.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return mapError("project", "Delete", id, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("project", "Delete", id)
	}
	return nil
}

// List returns projects matching filter in creation order.
func (r *ProjectRepository) List(ctx context.Context, f project.ListFilter) ([]*project.Project, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ProfessorID != "" {
		add("professor_id = $%d", f.ProfessorID)
	}
	if f.ProgramID != "" {
		add("$%d = ANY(target_programs)", f.ProgramID)
	}
	if f.State != "" {
		add("state = $%d", string(f.State))
	}
	if f.PublicationState != "" {
		add("publication_state = $%d", string(f.PublicationState))
	}

	query := `SELECT ` + projectColumns + ` FROM projects`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq` + pageClause(f.Pagination)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("project", "List", "", err)
	}
	defer rows.Close()

	var out []*project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, mapError("project", "List", "", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProject(row pgx.Row) (*project.Project, error) {
	var p project.Project
	var format, typ, lang, evaluation, publication, state string
	var tags, files, targets, pending, approved, returned, rej []string

	err := row.Scan(
		&p.ID, &p.Name, &p.NameRu, &format, &typ, &lang, &p.Description, &p.Requirements, &p.Results,
		&p.IsGroupProject, &tags, &files, &p.ProfessorID, &p.ProfessorUserID,
		&p.ProposalID, &p.ElectedStudentID, &p.ElectedStudentUserID,
		&evaluation, &publication, &state,
		&targets, &pending, &approved, &returned, &rej,
		&p.Reason, &p.ReportFile, &p.PlagiarismCheckFile, &p.ProfessorReviewFile, &p.Grade,
		&p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Format = project.Format(format)
	p.Type = project.WorkType(typ)
	p.Language = project.Language(lang)
	p.EvaluationState = project.EvaluationState(evaluation)
	p.PublicationState = project.PublicationState(publication)
	p.State = project.State(state)
	p.Tags = orNil(tags)
	p.AdditionalFiles = orNil(files)
	p.TargetPrograms = shared.NewIDSet(targets...)
	p.PendingPrograms = shared.NewIDSet(pending...)
	p.ApprovedPrograms = shared.NewIDSet(approved...)
	p.ReturnedPrograms = shared.NewIDSet(returned...)
	p.RejectedPrograms = shared.NewIDSet(rej...)
	return &p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AVAILABILITY REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// AvailabilityRepository implements project.AvailabilityRepository.
type AvailabilityRepository struct {
	q Querier
}

const availabilityColumns = `
	id, project_id, program_id, type, degree_ids, state, reason,
	supervisor_user_id, snapshot, created_at, updated_at`

// Create inserts a submission. A second one for the same program is
// rejected by uq_availability_project_program.
func (r *AvailabilityRepository) Create(ctx context.Context, a *project.Availability) error {
	snapshot, err := json.Marshal(a.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = r.q.Exec(ctx, `INSERT INTO availabilities (`+availabilityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.ProjectID, a.ProgramID, string(a.Type), textArray(a.DegreeIDs.Slice()),
		string(a.State), a.Reason, a.SupervisorUserID, snapshot, a.CreatedAt, a.UpdatedAt,
	)
	return mapError("availability", "Create", a.ID, err)
}

func (r *AvailabilityRepository) GetByID(ctx context.Context, id string) (*project.Availability, error) {
	row := r.q.QueryRow(ctx, `SELECT `+availabilityColumns+` FROM availabilities WHERE id = $1`, id)
	a, err := scanAvailability(row)
	return a, mapError("availability", "GetByID", id, err)
}

func (r *AvailabilityRepository) Update(ctx context.Context, a *project.Availability) error {
	snapshot, err := json.Marshal(a.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE availabilities SET
			type = $2, degree_ids = $3, state = $4, reason = $5,
			supervisor_user_id = $6, snapshot = $7, updated_at = $8
		WHERE id = $1`,
		a.ID, string(a.Type), textArray(a.DegreeIDs.Slice()), string(a.State), a.Reason,
		a.SupervisorUserID, snapshot, a.UpdatedAt,
	)
	if err != nil {
		return mapError("availability", "Update", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("availability", "Update", a.ID)
	}
	return nil
}

func (r *AvailabilityRepository) Delete(ctx context.Context, id string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM availabilities WHERE id = $1`, id)
	return mapError("availability", "Delete", id, err)
}

// ListByProject returns every submission of a project ordered by creation.
func (r *AvailabilityRepository) ListByProject(ctx context.Context, projectID string) ([]*project.Availability, error) {
	rows, err := r.q.Query(ctx, `SELECT `+availabilityColumns+` FROM availabilities
		WHERE project_id = $1 ORDER BY seq`, projectID)
	if err != nil {
		return nil, mapError("availability", "ListByProject", projectID, err)
	}
	defer rows.Close()

	var out []*project.Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, mapError("availability", "ListByProject", projectID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AvailabilityRepository) DeleteByProject(ctx context.Context, projectID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM availabilities WHERE project_id = $1`, projectID)
	return mapError("availability", "DeleteByProject", projectID, err)
}

func scanAvailability(row pgx.Row) (*project.Availability, error) {
	var (
		a          project.Availability
		typ, state string
		degrees    []string
		snapshot   []byte
	)
	err := row.Scan(&a.ID, &a.ProjectID, &a.ProgramID, &typ, &degrees, &state, &a.Reason,
		&a.SupervisorUserID, &snapshot, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &a.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
	}
	a.Type = project.WorkType(typ)
	a.State = project.AvailabilityState(state)
	a.DegreeIDs = shared.NewIDSet(degrees...)
	return &a, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// APPROVAL REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ApprovalRepository implements project.ApprovalRepository.
type ApprovalRepository struct {
	q Querier
}

func (r *ApprovalRepository) Create(ctx context.Context, a *project.Approval) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO approvals (id, project_id, type, program_id, degree_id, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.ProjectID, string(a.Type), a.ProgramID, a.DegreeID, a.Name, a.CreatedAt,
	)
	return mapError("approval", "Create", a.ID, err)
}

func (r *ApprovalRepository) ListByProject(ctx context.Context, projectID string) ([]*project.Approval, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, project_id, type, program_id, degree_id, name, created_at
		FROM approvals WHERE project_id = $1 ORDER BY seq`, projectID)
	if err != nil {
		return nil, mapError("approval", "ListByProject", projectID, err)
	}
	defer rows.Close()

	var out []*project.Approval
	for rows.Next() {
		var (
			a   project.Approval
			typ string
		)
		if err := rows.Scan(&a.ID, &a.ProjectID, &typ, &a.ProgramID, &a.DegreeID, &a.Name, &a.CreatedAt); err != nil {
			return nil, mapError("approval", "ListByProject", projectID, err)
		}
		a.Type = project.WorkType(typ)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *ApprovalRepository) DeleteByProject(ctx context.Context, projectID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM approvals WHERE project_id = $1`, projectID)
	return mapError("approval", "DeleteByProject", projectID, err)
}
