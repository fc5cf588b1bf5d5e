package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alem-hub/palms-core/internal/domain/application"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/proposal"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROPOSAL REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProposalRepository implements proposal.Repository for PostgreSQL.
type ProposalRepository struct {
	q Querier
}

const proposalColumns = `
	id, name, name_ru, proponent_id, proponent_user_id, professor_id, professor_user_id,
	type, format, language, is_group_project, description, results,
	additional_files, tags, additional_email, additional_phone, telegram,
	feedback, state, sent_date, project_id, created_at, updated_at`

func proposalArgs(p *proposal.Proposal) []any {
	return []any{
		p.ID, p.Name, p.NameRu, p.ProponentID, p.ProponentUserID, p.ProfessorID, p.ProfessorUserID,
		string(p.Type), string(p.Format), string(p.Language), p.IsGroupProject, p.Description, p.Results,
		textArray(p.AdditionalFiles), textArray(p.Tags), p.AdditionalEmail, p.AdditionalPhone, p.Telegram,
		p.Feedback, string(p.State), nullTime(p.SentDate), p.ProjectID, p.CreatedAt, p.UpdatedAt,
	}
}

func (r *ProposalRepository) Create(ctx context.Context, p *proposal.Proposal) error {
	_, err := r.q.Exec(ctx, `INSERT INTO proposals (`+proposalColumns+`) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		proposalArgs(p)...)
	return mapError("proposal", "Create", p.ID, err)
}

func (r *ProposalRepository) GetByID(ctx context.Context, id string) (*proposal.Proposal, error) {
	p, err := scanProposal(r.q.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id))
	return p, mapError("proposal", "GetByID", id, err)
}

// GetForUpdate locks the row until the transaction ends.
func (r *ProposalRepository) GetForUpdate(ctx context.Context, id string) (*proposal.Proposal, error) {
	p, err := scanProposal(r.q.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1 FOR UPDATE`, id))
	return p, mapError("proposal", "GetForUpdate", id, err)
}

func (r *ProposalRepository) Update(ctx context.Context, p *proposal.Proposal) error {
	args := proposalArgs(p)
	// created_at не меняется.
	args = append(args[:22:22], args[23])

	tag, err := r.q.Exec(ctx, `
		UPDATE proposals SET
			name = $2, name_ru = $3, proponent_id = $4, proponent_user_id = $5,
			professor_id = $6, professor_user_id = $7,
			type = $8, format = $9, language = $10, is_group_project = $11,
			description = $12, results = $13, additional_files = $14, tags = $15,
			additional_email = $16, additional_phone = $17, telegram = $18,
			feedback = $19, state = $20, sent_date = $21, project_id = $22, updated_at = $23
		WHERE id = $1`, args...)
	if err != nil {
		return mapError("proposal", "Update", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("proposal", "Update", p.ID)
	}
	return nil
}

func (r *ProposalRepository) Delete(ctx context.Context, id string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM proposals WHERE id = $1`, id)
	return mapError("proposal", "Delete", id, err)
}

func (r *ProposalRepository) ListByProfessor(ctx context.Context, professorID string, page shared.Pagination) ([]*proposal.Proposal, error) {
	rows, err := r.q.Query(ctx, `SELECT `+proposalColumns+` FROM proposals
		WHERE professor_id = $1 ORDER BY seq`+pageClause(page), professorID)
	if err != nil {
		return nil, mapError("proposal", "ListByProfessor", professorID, err)
	}
	defer rows.Close()

	var out []*proposal.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, mapError("proposal", "ListByProfessor", professorID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProposal(row pgx.Row) (*proposal.Proposal, error) {
	var (
		p                     proposal.Proposal
		typ, format, language string
		state                 string
		files, tags           []string
		sent                  *time.Time
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.NameRu, &p.ProponentID, &p.ProponentUserID, &p.ProfessorID, &p.ProfessorUserID,
		&typ, &format, &language, &p.IsGroupProject, &p.Description, &p.Results,
		&files, &tags, &p.AdditionalEmail, &p.AdditionalPhone, &p.Telegram,
		&p.Feedback, &state, &sent, &p.ProjectID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Type = project.WorkType(typ)
	p.Format = project.Format(format)
	p.Language = project.Language(language)
	p.State = proposal.State(state)
	p.AdditionalFiles = orNil(files)
	p.Tags = orNil(tags)
	p.SentDate = derefTime(sent)
	return &p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ApplicationRepository implements application.Repository for PostgreSQL.
type ApplicationRepository struct {
	q Querier
}

const applicationColumns = `
	id, project_id, applicant_id, applicant_user_id, professor_user_id,
	message, feedback, additional_files, additional_email, additional_phone, telegram,
	state, sent_date, created_at, updated_at`

// Create inserts a draft application. A second application of the same
// student to the same project violates uq_application_project_applicant.
func (r *ApplicationRepository) Create(ctx context.Context, a *application.Application) error {
	_, err := r.q.Exec(ctx, `INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.ProjectID, a.ApplicantID, a.ApplicantUserID, a.ProfessorUserID,
		a.Message, a.Feedback, textArray(a.AdditionalFiles), a.AdditionalEmail, a.AdditionalPhone, a.Telegram,
		string(a.State), nullTime(a.SentDate), a.CreatedAt, a.UpdatedAt,
	)
	return mapError("application", "Create", a.ID, err)
}

func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*application.Application, error) {
	a, err := scanApplication(r.q.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	return a, mapError("application", "GetByID", id, err)
}

func (r *ApplicationRepository) Update(ctx context.Context, a *application.Application) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE applications SET
			professor_user_id = $2, message = $3, feedback = $4, additional_files = $5,
			additional_email = $6, additional_phone = $7, telegram = $8,
			state = $9, sent_date = $10, updated_at = $11
		WHERE id = $1`,
		a.ID, a.ProfessorUserID, a.Message, a.Feedback, textArray(a.AdditionalFiles),
		a.AdditionalEmail, a.AdditionalPhone, a.Telegram,
		string(a.State), nullTime(a.SentDate), a.UpdatedAt,
	)
	if err != nil {
		return mapApplicationError("Update", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("application", "Update", a.ID)
	}
	return nil
}

func (r *ApplicationRepository) ListByProject(ctx context.Context, projectID string) ([]*application.Application, error) {
	return r.list(ctx, "ListByProject", `WHERE project_id = $1`, projectID)
}

// ListByApplicant returns applications of a student; an empty state matches all.
func (r *ApplicationRepository) ListByApplicant(ctx context.Context, applicantID string, state application.State) ([]*application.Application, error) {
	return r.list(ctx, "ListByApplicant", `WHERE applicant_id = $1 AND ($2::text = '' OR state = $2::text)`, applicantID, string(state))
}

func (r *ApplicationRepository) ListSentByProfessor(ctx context.Context, professorUserID string) ([]*application.Application, error) {
	return r.list(ctx, "ListSentByProfessor", `WHERE state = $1 AND professor_user_id = $2`,
		string(application.StateSent), professorUserID)
}

func (r *ApplicationRepository) ListSent(ctx context.Context) ([]*application.Application, error) {
	return r.list(ctx, "ListSent", `WHERE state = $1`, string(application.StateSent))
}

func (r *ApplicationRepository) DeleteByProject(ctx context.Context, projectID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM applications WHERE project_id = $1`, projectID)
	return mapError("application", "DeleteByProject", projectID, err)
}

func (r *ApplicationRepository) list(ctx context.Context, op, where string, args ...any) ([]*application.Application, error) {
	rows, err := r.q.Query(ctx, `SELECT `+applicationColumns+` FROM applications `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, mapError("application", op, "", err)
	}
	defer rows.Close()

	var out []*application.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, mapError("application", op, "", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanApplication(row pgx.Row) (*application.Application, error) {
	var (
		a     application.Application
		files []string
		state string
		sent  *time.Time
	)
	err := row.Scan(
		&a.ID, &a.ProjectID, &a.ApplicantID, &a.ApplicantUserID, &a.ProfessorUserID,
		&a.Message, &a.Feedback, &files, &a.AdditionalEmail, &a.AdditionalPhone, &a.Telegram,
		&state, &sent, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.AdditionalFiles = orNil(files)
	a.State = application.State(state)
	a.SentDate = derefTime(sent)
	return &a, nil
}

// mapApplicationError reports the one-sent-per-applicant index as the same
// transition error the domain check gives.
func mapApplicationError(op, id string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_applications_one_sent" {
		return application.ErrOtherSent()
	}
	return mapError("application", op, id, err)
}
