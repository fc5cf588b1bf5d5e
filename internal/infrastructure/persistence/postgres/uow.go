package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/academic"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/application"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/proposal"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// Каждая команда - одна транзакция READ COMMITTED; строка проекта
// блокируется через SELECT ... FOR UPDATE до конца транзакции.
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWork implements uow.UnitOfWork on a pgx pool.
type UnitOfWork struct {
	conn *Connection
	opts TxOptions
}

var _ uow.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork creates a read-write unit of work.
func NewUnitOfWork(conn *Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn, opts: DefaultTxOptions()}
}

// ReadOnly returns a unit of work that opens read-only transactions.
// Query handlers use it.
func (u *UnitOfWork) ReadOnly() *UnitOfWork {
	return &UnitOfWork{conn: u.conn, opts: ReadOnlyTxOptions()}
}

// Do runs fn in one transaction.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx uow.Tx) error) error {
	return u.conn.WithTx(ctx, u.opts, func(t pgx.Tx) error {
		return fn(ctx, &txRepos{q: t})
	})
}

// txRepos binds every repository to one transaction.
type txRepos struct{ q Querier }

func (t *txRepos) Projects() project.Repository                   { return &ProjectRepository{q: t.q} }
func (t *txRepos) Availabilities() project.AvailabilityRepository { return &AvailabilityRepository{q: t.q} }
func (t *txRepos) Approvals() project.ApprovalRepository          { return &ApprovalRepository{q: t.q} }
func (t *txRepos) Proposals() proposal.Repository                 { return &ProposalRepository{q: t.q} }
func (t *txRepos) Applications() application.Repository           { return &ApplicationRepository{q: t.q} }
func (t *txRepos) Academic() academic.Repository                  { return &AcademicRepository{q: t.q} }
func (t *txRepos) Groups() identity.GroupRepository               { return &GroupRepository{q: t.q} }
func (t *txRepos) Activity() activity.Log                         { return &ActivityRepository{q: t.q} }

// ══════════════════════════════════════════════════════════════════════════════
// SCAN HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

// textArray never returns nil so NOT NULL array columns accept it.
func textArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// orNil keeps domain slices nil when the stored array is empty.
func orNil(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

// pageClause renders LIMIT/OFFSET; a non-positive page size means no limit.
func pageClause(page shared.Pagination) string {
	if page.PageSize <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit(), page.Offset())
}
