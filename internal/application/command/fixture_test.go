package command

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/academic"
	"github.com/alem-hub/palms-core/internal/domain/application"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/internal/infrastructure/persistence/memory"
)

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

const longReason = "the scope is unclear, please describe milestones"

// recorder is an EventPublisher that keeps what it was given.
type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fixture struct {
	store  *memory.Store
	events *recorder
	deps   Deps

	prof, otherProf, supA, supB, admin identity.User
	s1, s2, s3                         identity.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	store.AddProgram(academic.Program{ID: "A", Name: "Data Science", SupervisorUserID: "sup-A", SupervisorEmail: "ds@uni.test", DegreeIDs: []string{"d1", "d2"}})
	store.AddProgram(academic.Program{ID: "B", Name: "Robotics", SupervisorUserID: "sup-B", SupervisorEmail: "rb@uni.test", DegreeIDs: []string{"d1"}})
	store.AddDegree(academic.Degree{ID: "d1", Level: academic.LevelBachelor, Year: "1"})
	store.AddDegree(academic.Degree{ID: "d2", Level: academic.LevelBachelor, Year: "2"})
	store.AddProfessor(academic.Professor{ID: "prof-1", UserID: "u-prof", Name: "Ada Lovelace"})
	store.AddProfessor(academic.Professor{ID: "prof-2", UserID: "u-prof2", Name: "Alan Turing"})
	store.AddStudent(academic.Student{ID: "s1", UserID: "u-s1", Name: "Aigerim", ProgramID: "A", DegreeID: "d1"})
	store.AddStudent(academic.Student{ID: "s2", UserID: "u-s2", Name: "Daniyar", ProgramID: "A", DegreeID: "d1"})
	store.AddStudent(academic.Student{ID: "s3", UserID: "u-s3", Name: "Madina", ProgramID: "B", DegreeID: "d1"})

	n := 0
	events := &recorder{}
	return &fixture{
		store:  store,
		events: events,
		deps: Deps{
			UoW:    store,
			Events: events,
			Clock:  func() time.Time { return testNow },
			NewID: func() string {
				n++
				return fmt.Sprintf("id-%d", n)
			},
		},
		prof:      identity.User{ID: "u-prof", Name: "Ada Lovelace", Roles: []identity.Role{identity.RoleProfessor}},
		otherProf: identity.User{ID: "u-prof2", Name: "Alan Turing", Roles: []identity.Role{identity.RoleProfessor}},
		supA:      identity.User{ID: "sup-A", Roles: []identity.Role{identity.RoleSupervisor}},
		supB:      identity.User{ID: "sup-B", Roles: []identity.Role{identity.RoleSupervisor}},
		admin:     identity.User{ID: "root", Roles: []identity.Role{identity.RoleAdministrator}},
		s1:        identity.User{ID: "u-s1", Name: "Aigerim", Roles: []identity.Role{identity.RoleStudent}},
		s2:        identity.User{ID: "u-s2", Name: "Daniyar", Roles: []identity.Role{identity.RoleStudent}},
		s3:        identity.User{ID: "u-s3", Name: "Madina", Roles: []identity.Role{identity.RoleStudent}},
	}
}

// newProject creates a draft project targeting programs (degree d1, course
// and final work) and returns its id and the availability id per program.
func (f *fixture) newProject(t *testing.T, programs ...string) (string, map[string]string) {
	t.Helper()
	ctx := context.Background()

	p, err := NewCreateProjectHandler(f.deps).Handle(ctx, CreateProjectCommand{
		Actor:   f.prof,
		Details: project.Details{Name: "Graph search", Type: project.WorkBoth},
	})
	require.NoError(t, err)

	ids := make(map[string]string, len(programs))
	for _, prog := range programs {
		a, err := NewAddTargetHandler(f.deps).Handle(ctx, AddTargetCommand{
			Actor:     f.prof,
			ProjectID: p.ID,
			ProgramID: prog,
			Type:      project.WorkBoth,
			DegreeIDs: []string{"d1"},
		})
		require.NoError(t, err)
		ids[prog] = a.ID
	}
	return p.ID, ids
}

func (f *fixture) submit(t *testing.T, projectID string) {
	t.Helper()
	_, err := NewSubmitProjectHandler(f.deps).Handle(context.Background(), SubmitProjectCommand{Actor: f.prof, ProjectID: projectID})
	require.NoError(t, err)
}

func (f *fixture) decide(actor identity.User, availabilityID string, d Decision, reason string) (*DecideAvailabilityResult, error) {
	return NewDecideAvailabilityHandler(f.deps).Handle(context.Background(), DecideAvailabilityCommand{
		Actor:          actor,
		AvailabilityID: availabilityID,
		Decision:       d,
		Reason:         reason,
	})
}

// published returns a project approved for program A.
func (f *fixture) published(t *testing.T) string {
	t.Helper()
	id, avails := f.newProject(t, "A")
	f.submit(t, id)
	_, err := f.decide(f.supA, avails["A"], DecisionApprove, "")
	require.NoError(t, err)
	return id
}

func (f *fixture) apply(t *testing.T, student identity.User, projectID string) *application.Application {
	t.Helper()
	a, err := NewCreateApplicationHandler(f.deps).Handle(context.Background(), CreateApplicationCommand{
		Actor:     student,
		ProjectID: projectID,
		Message:   "I would like to work on this.",
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) project(t *testing.T, id string) *project.Project {
	t.Helper()
	var p *project.Project
	require.NoError(t, f.store.Do(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		var err error
		p, err = tx.Projects().GetByID(ctx, id)
		return err
	}))
	return p
}

func (f *fixture) availabilities(t *testing.T, projectID string) []*project.Availability {
	t.Helper()
	var out []*project.Availability
	require.NoError(t, f.store.Do(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		var err error
		out, err = tx.Availabilities().ListByProject(ctx, projectID)
		return err
	}))
	return out
}

func (f *fixture) applications(t *testing.T, projectID string) []*application.Application {
	t.Helper()
	var out []*application.Application
	require.NoError(t, f.store.Do(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		var err error
		out, err = tx.Applications().ListByProject(ctx, projectID)
		return err
	}))
	return out
}
