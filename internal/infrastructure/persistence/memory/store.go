// Package memory implements the unit of work and every repository in
// process memory. It backs tests and the `memory` storage driver used for
// local runs without Postgres.
//
// Transactions are serialized: Do holds the store lock for the whole
// callback, which gives the same guarantees as the row lock taken by
// GetForUpdate in Postgres. A failed callback restores the state captured
// when it started.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/academic"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/application"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/proposal"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// row keeps insertion order next to the stored value. Stored values are
// never mutated; every write stores a fresh copy.
type row[T any] struct {
	seq int
	v   *T
}

type table[T any] map[string]row[T]

// ordered returns copies of the rows matching keep, oldest first.
func (t table[T]) ordered(copyFn func(*T) *T, keep func(*T) bool) []*T {
	rows := make([]row[T], 0, len(t))
	for _, r := range t {
		if keep == nil || keep(r.v) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]*T, 0, len(rows))
	for _, r := range rows {
		out = append(out, copyFn(r.v))
	}
	return out
}

type state struct {
	seq int

	projects       table[project.Project]
	availabilities table[project.Availability]
	approvals      table[project.Approval]
	proposals      table[proposal.Proposal]
	applications   table[application.Application]

	programs   map[string]academic.Program
	degrees    map[string]academic.Degree
	students   map[string]academic.Student
	professors map[string]academic.Professor

	programProjects map[string]shared.IDSet
	groups          map[identity.Group]shared.IDSet
	entries         []activity.Entry
}

func newState() *state {
	return &state{
		projects:        table[project.Project]{},
		availabilities:  table[project.Availability]{},
		approvals:       table[project.Approval]{},
		proposals:       table[proposal.Proposal]{},
		applications:    table[application.Application]{},
		programs:        map[string]academic.Program{},
		degrees:         map[string]academic.Degree{},
		students:        map[string]academic.Student{},
		professors:      map[string]academic.Professor{},
		programProjects: map[string]shared.IDSet{},
		groups:          map[identity.Group]shared.IDSet{},
	}
}

// snapshot is cheap: stored values are immutable, so copying the maps is enough.
func (s *state) snapshot() *state {
	return &state{
		seq:             s.seq,
		projects:        maps.Clone(s.projects),
		availabilities:  maps.Clone(s.availabilities),
		approvals:       maps.Clone(s.approvals),
		proposals:       maps.Clone(s.proposals),
		applications:    maps.Clone(s.applications),
		programs:        maps.Clone(s.programs),
		degrees:         maps.Clone(s.degrees),
		students:        maps.Clone(s.students),
		professors:      maps.Clone(s.professors),
		programProjects: maps.Clone(s.programProjects),
		groups:          maps.Clone(s.groups),
		entries:         slices.Clone(s.entries),
	}
}

func (s *state) next() int {
	s.seq++
	return s.seq
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store is an in-memory unit of work.
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{st: newState()}
}

// Do implements uow.UnitOfWork.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx uow.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	saved := s.st.snapshot()
	if err := fn(ctx, &tx{st: s.st}); err != nil {
		s.st = saved
		return err
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SEEDING
// Справочные данные, которые в продакшене приходят из других систем.
// ══════════════════════════════════════════════════════════════════════════════

// AddProgram stores a program.
func (s *Store) AddProgram(p academic.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.DegreeIDs = slices.Clone(p.DegreeIDs)
	s.st.programs[p.ID] = p
}

// AddDegree stores a degree.
func (s *Store) AddDegree(d academic.Degree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.degrees[d.ID] = d
}

// AddStudent stores a student.
func (s *Store) AddStudent(st academic.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.students[st.ID] = st
}

// AddProfessor stores a professor.
func (s *Store) AddProfessor(p academic.Professor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.professors[p.ID] = p
}

// Entries returns the activity log of one record.
func (s *Store) Entries(kind activity.EntityKind, entityID string) []activity.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []activity.Entry
	for _, e := range s.st.entries {
		if e.EntityKind == kind && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out
}

// Members returns the users in a group.
func (s *Store) Members(g identity.Group) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.groups[g].Slice()
}

// ProgramProjects returns the projects linked to a program.
func (s *Store) ProgramProjects(programID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.programProjects[programID].Slice()
}

// Student returns a copy of a student record.
func (s *Store) Student(id string) (academic.Student, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.st.students[id]
	return st, ok
}

// ══════════════════════════════════════════════════════════════════════════════
// TX
// ══════════════════════════════════════════════════════════════════════════════

type tx struct {
	st *state
}

var _ uow.Tx = (*tx)(nil)

func (t *tx) Projects() project.Repository                   { return projectRepo{t.st} }
func (t *tx) Availabilities() project.AvailabilityRepository { return availabilityRepo{t.st} }
func (t *tx) Approvals() project.ApprovalRepository          { return approvalRepo{t.st} }
func (t *tx) Proposals() proposal.Repository                 { return proposalRepo{t.st} }
func (t *tx) Applications() application.Repository           { return applicationRepo{t.st} }
func (t *tx) Academic() academic.Repository                  { return academicRepo{t.st} }
func (t *tx) Groups() identity.GroupRepository               { return groupRepo{t.st} }
func (t *tx) Activity() activity.Log                         { return activityLog{t.st} }

// ══════════════════════════════════════════════════════════════════════════════
// COPIES
// ══════════════════════════════════════════════════════════════════════════════

func copyProject(p *project.Project) *project.Project {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	c.AdditionalFiles = slices.Clone(p.AdditionalFiles)
	c.TargetPrograms = p.TargetPrograms.Clone()
	c.PendingPrograms = p.PendingPrograms.Clone()
	c.ApprovedPrograms = p.ApprovedPrograms.Clone()
	c.ReturnedPrograms = p.ReturnedPrograms.Clone()
	c.RejectedPrograms = p.RejectedPrograms.Clone()
	return &c
}

func copyAvailability(a *project.Availability) *project.Availability {
	c := *a
	c.DegreeIDs = a.DegreeIDs.Clone()
	c.Snapshot.Tags = slices.Clone(a.Snapshot.Tags)
	c.Snapshot.AdditionalFiles = slices.Clone(a.Snapshot.AdditionalFiles)
	return &c
}

func copyApproval(a *project.Approval) *project.Approval {
	c := *a
	return &c
}

func copyProposal(p *proposal.Proposal) *proposal.Proposal {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	c.AdditionalFiles = slices.Clone(p.AdditionalFiles)
	return &c
}

func copyApplication(a *application.Application) *application.Application {
	c := *a
	c.AdditionalFiles = slices.Clone(a.AdditionalFiles)
	return &c
}

// ══════════════════════════════════════════════════════════════════════════════
// PROJECTS
// ══════════════════════════════════════════════════════════════════════════════

type projectRepo struct{ st *state }

func (r projectRepo) Create(_ context.Context, p *project.Project) error {
	if _, ok := r.st.projects[p.ID]; ok {
		return shared.ErrAlreadyExists
	}
	p.Version = 1
	r.st.projects[p.ID] = row[project.Project]{seq: r.st.next(), v: copyProject(p)}
	return nil
}

func (r projectRepo) GetByID(_ context.Context, id string) (*project.Project, error) {
	rw, ok := r.st.projects[id]
	if !ok {
		return nil, shared.NotFound("project", "GetByID", id)
	}
	return copyProject(rw.v), nil
}

func (r projectRepo) GetForUpdate(ctx context.Context, id string) (*project.Project, error) {
	return r.GetByID(ctx, id)
}

func (r projectRepo) Update(_ context.Context, p *project.Project) error {
	rw, ok := r.st.projects[p.ID]
	if !ok {
		return shared.NotFound("project", "Update", p.ID)
	}
	if rw.v.Version != p.Version {
		return shared.WrapError("project", "Update", shared.ErrConcurrentModification,
			"The project was changed by someone else. Reload and try again.", nil)
	}
	p.Version++
	rw.v = copyProject(p)
	r.st.projects[p.ID] = rw
	return nil
}

func (r projectRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.st.projects[id]; !ok {
		return shared.NotFound("project", "Delete", id)
	}
	delete(r.st.projects, id)
	return nil
}

func (r projectRepo) List(_ context.Context, f project.ListFilter) ([]*project.Project, error) {
	all := r.st.projects.ordered(copyProject, func(p *project.Project) bool {
		switch {
		case f.ProfessorID != "" && p.ProfessorID != f.ProfessorID:
			return false
		case f.ProgramID != "" && !p.TargetPrograms.Has(f.ProgramID):
			return false
		case f.State != "" && p.State != f.State:
			return false
		case f.PublicationState != "" && p.PublicationState != f.PublicationState:
			return false
		}
		return true
	})
	return paginate(all, f.Pagination), nil
}

func paginate[T any](items []T, page shared.Pagination) []T {
	if page.PageSize <= 0 {
		return items
	}
	start := min(page.Offset(), len(items))
	end := min(start+page.Limit(), len(items))
	return items[start:end]
}

// ══════════════════════════════════════════════════════════════════════════════
// AVAILABILITIES / APPROVALS
// ══════════════════════════════════════════════════════════════════════════════

type availabilityRepo struct{ st *state }

func (r availabilityRepo) Create(_ context.Context, a *project.Availability) error {
	for _, rw := range r.st.availabilities {
		if rw.v.ProjectID == a.ProjectID && rw.v.ProgramID == a.ProgramID {
			return shared.ErrAlreadyExists
		}
	}
	r.st.availabilities[a.ID] = row[project.Availability]{seq: r.st.next(), v: copyAvailability(a)}
	return nil
}

func (r availabilityRepo) GetByID(_ context.Context, id string) (*project.Availability, error) {
	rw, ok := r.st.availabilities[id]
	if !ok {
		return nil, shared.NotFound("availability", "GetByID", id)
	}
	return copyAvailability(rw.v), nil
}

func (r availabilityRepo) Update(_ context.Context, a *project.Availability) error {
	rw, ok := r.st.availabilities[a.ID]
	if !ok {
		return shared.NotFound("availability", "Update", a.ID)
	}
	rw.v = copyAvailability(a)
	r.st.availabilities[a.ID] = rw
	return nil
}

func (r availabilityRepo) Delete(_ context.Context, id string) error {
	delete(r.st.availabilities, id)
	return nil
}

func (r availabilityRepo) ListByProject(_ context.Context, projectID string) ([]*project.Availability, error) {
	return r.st.availabilities.ordered(copyAvailability, func(a *project.Availability) bool {
		return a.ProjectID == projectID
	}), nil
}

func (r availabilityRepo) DeleteByProject(_ context.Context, projectID string) error {
	for id, rw := range r.st.availabilities {
		if rw.v.ProjectID == projectID {
			delete(r.st.availabilities, id)
		}
	}
	return nil
}

type approvalRepo struct{ st *state }

func (r approvalRepo) Create(_ context.Context, a *project.Approval) error {
	r.st.approvals[a.ID] = row[project.Approval]{seq: r.st.next(), v: copyApproval(a)}
	return nil
}

func (r approvalRepo) ListByProject(_ context.Context, projectID string) ([]*project.Approval, error) {
	return r.st.approvals.ordered(copyApproval, func(a *project.Approval) bool {
		return a.ProjectID == projectID
	}), nil
}

func (r approvalRepo) DeleteByProject(_ context.Context, projectID string) error {
	for id, rw := range r.st.approvals {
		if rw.v.ProjectID == projectID {
			delete(r.st.approvals, id)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROPOSALS / APPLICATIONS
// ══════════════════════════════════════════════════════════════════════════════

type proposalRepo struct{ st *state }

func (r proposalRepo) Create(_ context.Context, p *proposal.Proposal) error {
	r.st.proposals[p.ID] = row[proposal.Proposal]{seq: r.st.next(), v: copyProposal(p)}
	return nil
}

func (r proposalRepo) GetByID(_ context.Context, id string) (*proposal.Proposal, error) {
	rw, ok := r.st.proposals[id]
	if !ok {
		return nil, shared.NotFound("proposal", "GetByID", id)
	}
	return copyProposal(rw.v), nil
}

func (r proposalRepo) GetForUpdate(ctx context.Context, id string) (*proposal.Proposal, error) {
	return r.GetByID(ctx, id)
}

func (r proposalRepo) Update(_ context.Context, p *proposal.Proposal) error {
	rw, ok := r.st.proposals[p.ID]
	if !ok {
		return shared.NotFound("proposal", "Update", p.ID)
	}
	rw.v = copyProposal(p)
	r.st.proposals[p.ID] = rw
	return nil
}

func (r proposalRepo) Delete(_ context.Context, id string) error {
	delete(r.st.proposals, id)
	return nil
}

func (r proposalRepo) ListByProfessor(_ context.Context, professorID string, page shared.Pagination) ([]*proposal.Proposal, error) {
	all := r.st.proposals.ordered(copyProposal, func(p *proposal.Proposal) bool {
		return p.ProfessorID == professorID
	})
	return paginate(all, page), nil
}

type applicationRepo struct{ st *state }

func (r applicationRepo) Create(_ context.Context, a *application.Application) error {
	for _, rw := range r.st.applications {
		if rw.v.ProjectID == a.ProjectID && rw.v.ApplicantID == a.ApplicantID {
			return shared.ErrAlreadyExists
		}
	}
	r.st.applications[a.ID] = row[application.Application]{seq: r.st.next(), v: copyApplication(a)}
	return nil
}

func (r applicationRepo) GetByID(_ context.Context, id string) (*application.Application, error) {
	rw, ok := r.st.applications[id]
	if !ok {
		return nil, shared.NotFound("application", "GetByID", id)
	}
	return copyApplication(rw.v), nil
}

func (r applicationRepo) Update(_ context.Context, a *application.Application) error {
	rw, ok := r.st.applications[a.ID]
	if !ok {
		return shared.NotFound("application", "Update", a.ID)
	}
	// same rule as the uq_applications_one_sent index
	if a.State == application.StateSent {
		for id, other := range r.st.applications {
			if id != a.ID && other.v.ApplicantID == a.ApplicantID && other.v.State == application.StateSent {
				return application.ErrOtherSent()
			}
		}
	}
	rw.v = copyApplication(a)
	r.st.applications[a.ID] = rw
	return nil
}

func (r applicationRepo) ListByProject(_ context.Context, projectID string) ([]*application.Application, error) {
	return r.st.applications.ordered(copyApplication, func(a *application.Application) bool {
		return a.ProjectID == projectID
	}), nil
}

func (r applicationRepo) ListByApplicant(_ context.Context, applicantID string, state application.State) ([]*application.Application, error) {
	return r.st.applications.ordered(copyApplication, func(a *application.Application) bool {
		return a.ApplicantID == applicantID && (state == "" || a.State == state)
	}), nil
}

func (r applicationRepo) ListSentByProfessor(_ context.Context, professorUserID string) ([]*application.Application, error) {
	return r.st.applications.ordered(copyApplication, func(a *application.Application) bool {
		return a.State == application.StateSent && a.ProfessorUserID == professorUserID
	}), nil
}

func (r applicationRepo) ListSent(_ context.Context) ([]*application.Application, error) {
	return r.st.applications.ordered(copyApplication, func(a *application.Application) bool {
		return a.State == application.StateSent
	}), nil
}

func (r applicationRepo) DeleteByProject(_ context.Context, projectID string) error {
	for id, rw := range r.st.applications {
		if rw.v.ProjectID == projectID {
			delete(r.st.applications, id)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REFERENCE DATA, GROUPS, ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

type academicRepo struct{ st *state }

func (r academicRepo) GetProgram(_ context.Context, id string) (*academic.Program, error) {
	p, ok := r.st.programs[id]
	if !ok {
		return nil, shared.NotFound("program", "GetProgram", id)
	}
	p.DegreeIDs = slices.Clone(p.DegreeIDs)
	return &p, nil
}

func (r academicRepo) GetPrograms(ctx context.Context, ids []string) ([]*academic.Program, error) {
	out := make([]*academic.Program, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetProgram(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r academicRepo) GetDegree(_ context.Context, id string) (*academic.Degree, error) {
	d, ok := r.st.degrees[id]
	if !ok {
		return nil, shared.NotFound("degree", "GetDegree", id)
	}
	return &d, nil
}

func (r academicRepo) GetStudent(_ context.Context, id string) (*academic.Student, error) {
	s, ok := r.st.students[id]
	if !ok {
		return nil, shared.NotFound("student", "GetStudent", id)
	}
	return &s, nil
}

func (r academicRepo) GetStudentByUser(_ context.Context, userID string) (*academic.Student, error) {
	for _, s := range r.st.students {
		if s.UserID == userID {
			return &s, nil
		}
	}
	return nil, shared.NotFound("student", "GetStudentByUser", userID)
}

func (r academicRepo) GetProfessor(_ context.Context, id string) (*academic.Professor, error) {
	p, ok := r.st.professors[id]
	if !ok {
		return nil, shared.NotFound("professor", "GetProfessor", id)
	}
	return &p, nil
}

func (r academicRepo) GetProfessorByUser(_ context.Context, userID string) (*academic.Professor, error) {
	for _, p := range r.st.professors {
		if p.UserID == userID {
			return &p, nil
		}
	}
	return nil, shared.NotFound("professor", "GetProfessorByUser", userID)
}

func (r academicRepo) LinkProjectToProgram(_ context.Context, programID, projectID string) error {
	r.st.programProjects[programID] = r.st.programProjects[programID].Add(projectID)
	return nil
}

func (r academicRepo) SetCurrentProject(_ context.Context, studentID, projectID string) error {
	s, ok := r.st.students[studentID]
	if !ok {
		return shared.NotFound("student", "SetCurrentProject", studentID)
	}
	s.CurrentProjectID = projectID
	r.st.students[studentID] = s
	return nil
}

type groupRepo struct{ st *state }

func (r groupRepo) AddMember(_ context.Context, g identity.Group, userID string) error {
	r.st.groups[g] = r.st.groups[g].Add(userID)
	return nil
}

func (r groupRepo) RemoveMember(_ context.Context, g identity.Group, userID string) error {
	r.st.groups[g] = r.st.groups[g].Remove(userID)
	return nil
}

func (r groupRepo) IsMember(_ context.Context, g identity.Group, userID string) (bool, error) {
	return r.st.groups[g].Has(userID), nil
}

type activityLog struct{ st *state }

func (l activityLog) Post(_ context.Context, e *activity.Entry) error {
	if e.ID == "" {
		e.ID = strconv.Itoa(l.st.next())
	}
	l.st.entries = append(l.st.entries, *e)
	return nil
}

func (l activityLog) List(_ context.Context, kind activity.EntityKind, entityID string, page shared.Pagination) ([]*activity.Entry, error) {
	var out []*activity.Entry
	for _, e := range l.st.entries {
		if e.EntityKind == kind && e.EntityID == entityID {
			c := e
			out = append(out, &c)
		}
	}
	return paginate(out, page), nil
}
