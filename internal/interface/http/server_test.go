package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/palms-core/internal/application/command"
	"github.com/alem-hub/palms-core/internal/domain/academic"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/internal/infrastructure/messaging"
	"github.com/alem-hub/palms-core/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/palms-core/internal/interface/http/handlers"
	"github.com/alem-hub/palms-core/pkg/logger"
)

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

// tokenProvider maps opaque tokens to users.
type tokenProvider map[string]identity.User

func (p tokenProvider) Authenticate(_ context.Context, token string) (*identity.User, error) {
	u, ok := p[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &u, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store := memory.NewStore()
	store.AddProgram(academic.Program{ID: "A", Name: "Data Science", SupervisorUserID: "sup-A", DegreeIDs: []string{"d1"}})
	store.AddProgram(academic.Program{ID: "B", Name: "Robotics", SupervisorUserID: "sup-B", DegreeIDs: []string{"d1"}})
	store.AddDegree(academic.Degree{ID: "d1", Level: academic.LevelBachelor, Year: "1"})
	store.AddProfessor(academic.Professor{ID: "prof-1", UserID: "u-prof", Name: "Ada Lovelace"})
	store.AddStudent(academic.Student{ID: "s1", UserID: "u-s1", Name: "Aigerim", ProgramID: "A", DegreeID: "d1"})

	n := 0
	deps := command.Deps{
		UoW:    store,
		Events: messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Logger: logger.Nop()}),
		Logger: logger.Nop(),
		Clock:  func() time.Time { return testNow },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}

	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("store", func(context.Context) error { return nil })

	return NewServer(DefaultConfig(), Dependencies{
		Commands: NewCommands(deps, nil),
		Queries:  NewQueries(store, func() time.Time { return testNow }),
		Auth: tokenProvider{
			"prof":  {ID: "u-prof", Name: "Ada Lovelace", Roles: []identity.Role{identity.RoleProfessor}},
			"sup-a": {ID: "sup-A", Roles: []identity.Role{identity.RoleSupervisor}},
			"sup-b": {ID: "sup-B", Roles: []identity.Role{identity.RoleSupervisor}},
			"s1":    {ID: "u-s1", Name: "Aigerim", Roles: []identity.Role{identity.RoleStudent}},
			"man":   {ID: "u-man", Name: "Dana", Roles: []identity.Role{identity.RoleManager}},
		},
		HealthChecker: health,
		Logger:        logger.Nop(),
		Clock:         func() time.Time { return testNow },
	})
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func call(t *testing.T, s *Server, method, path, token string, body any) (int, apiResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out apiResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func dataField(t *testing.T, resp apiResponse, path ...string) string {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	for _, key := range path {
		m, ok := v.(map[string]any)
		require.True(t, ok, "not an object at %q", key)
		v = m[key]
	}
	s, _ := v.(string)
	return s
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	code, resp := call(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	code, _ = call(t, s, http.MethodGet, "/live", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)

	code, resp := call(t, s, http.MethodGet, "/api/v1/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing_token", resp.Error.Code)

	code, resp = call(t, s, http.MethodGet, "/api/v1/projects", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid_token", resp.Error.Code)
}

func TestProjectApprovalFlow(t *testing.T) {
	s := newTestServer(t)

	code, resp := call(t, s, http.MethodPost, "/api/v1/projects", "prof", map[string]any{"name": "Graph search", "type": "both"})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	projectID := dataField(t, resp, "id")

	code, resp = call(t, s, http.MethodPost, "/api/v1/projects/"+projectID+"/submit", "prof", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "validation_failure", resp.Error.Code)
	assert.Equal(t, "You need to choose programs to submit first!", resp.Error.Message)

	availability := map[string]string{}
	for _, prog := range []string{"A", "B"} {
		code, resp = call(t, s, http.MethodPost, "/api/v1/projects/"+projectID+"/targets", "prof",
			map[string]any{"program_id": prog, "type": "both", "degree_ids": []string{"d1"}})
		require.Equal(t, http.StatusCreated, code, resp.Error)
		availability[prog] = dataField(t, resp, "id")
	}

	code, resp = call(t, s, http.MethodPost, "/api/v1/projects/"+projectID+"/submit", "prof", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, "pending", dataField(t, resp, "state"))

	code, resp = call(t, s, http.MethodPost, "/api/v1/availabilities/"+availability["A"]+"/approve", "sup-b", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "permission_denied", resp.Error.Code)

	code, resp = call(t, s, http.MethodPost, "/api/v1/availabilities/"+availability["B"]+"/reject", "sup-b", map[string]string{"reason": "short"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, resp = call(t, s, http.MethodPost, "/api/v1/availabilities/"+availability["A"]+"/approve", "sup-a", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, "published", dataField(t, resp, "project", "state"))
	assert.Equal(t, "approved", dataField(t, resp, "availability", "state"))

	code, resp = call(t, s, http.MethodPost, "/api/v1/availabilities/"+availability["A"]+"/approve", "sup-a", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_state_transition", resp.Error.Code)

	code, resp = call(t, s, http.MethodGet, "/api/v1/projects/"+projectID, "s1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, projectID, dataField(t, resp, "project", "id"))

	code, resp = call(t, s, http.MethodGet, "/api/v1/projects/"+projectID+"/activity", "prof", nil)
	require.Equal(t, http.StatusOK, code)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &entries))
	assert.NotEmpty(t, entries)
}

func TestApplicationFlow(t *testing.T) {
	s := newTestServer(t)

	_, resp := call(t, s, http.MethodPost, "/api/v1/projects", "prof", map[string]any{"name": "Graph search", "type": "both"})
	projectID := dataField(t, resp, "id")
	_, resp = call(t, s, http.MethodPost, "/api/v1/projects/"+projectID+"/targets", "prof",
		map[string]any{"program_id": "A", "type": "both", "degree_ids": []string{"d1"}})
	availabilityID := dataField(t, resp, "id")
	call(t, s, http.MethodPost, "/api/v1/projects/"+projectID+"/submit", "prof", nil)
	code, _ := call(t, s, http.MethodPost, "/api/v1/availabilities/"+availabilityID+"/approve", "sup-a", nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = call(t, s, http.MethodPost, "/api/v1/applications", "s1",
		map[string]any{"project_id": projectID, "message": "I would like to work on this."})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	applicationID := dataField(t, resp, "id")

	code, resp = call(t, s, http.MethodPost, "/api/v1/applications/"+applicationID+"/send", "s1", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, "sent", dataField(t, resp, "application", "state"))

	code, resp = call(t, s, http.MethodPost, "/api/v1/applications/"+applicationID+"/accept", "s1", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = call(t, s, http.MethodPost, "/api/v1/applications/"+applicationID+"/accept", "prof", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, "accepted", dataField(t, resp, "application", "state"))
	assert.Equal(t, "s1", dataField(t, resp, "project", "elected_student_id"))

	code, resp = call(t, s, http.MethodGet, "/api/v1/projects/"+projectID+"/applications", "prof", nil)
	require.Equal(t, http.StatusOK, code)
	var apps []map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &apps))
	assert.Len(t, apps, 1)
}

func TestMilestoneAndCommissionRoutes(t *testing.T) {
	s := newTestServer(t)
	deadline := testNow.AddDate(0, 0, 14)

	code, resp := call(t, s, http.MethodPost, "/api/v1/milestones", "s1",
		map[string]any{"name": "Literature review", "deadline": deadline, "program_ids": []string{"A"}})
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = call(t, s, http.MethodPost, "/api/v1/milestones", "man",
		map[string]any{"name": "Literature review", "deadline": testNow.AddDate(0, 0, -1), "program_ids": []string{"A"}})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, resp = call(t, s, http.MethodPost, "/api/v1/milestones", "man",
		map[string]any{"name": "Literature review", "deadline": deadline, "program_ids": []string{"A"}})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	assert.NotEmpty(t, dataField(t, resp, "milestone_id"))

	_, resp = call(t, s, http.MethodPost, "/api/v1/projects", "prof", map[string]any{"name": "Graph search", "type": "both"})
	projectID := dataField(t, resp, "id")

	body := map[string]any{
		"name":                 "CS-1",
		"meeting_date":         deadline,
		"member_professor_ids": []string{"prof-1"},
		"project_ids":          []string{projectID},
	}
	code, resp = call(t, s, http.MethodPost, "/api/v1/commissions/c1/lock", "prof", body)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = call(t, s, http.MethodPost, "/api/v1/commissions/c1/lock", "man", body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_state_transition", resp.Error.Code)
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", bytes.NewBufferString("{broken"))
	req.Header.Set("Authorization", "Bearer prof")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	code, resp := call(t, s, http.MethodGet, "/api/v1/projects/missing", "prof", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", resp.Error.Code)

	code, _ = call(t, s, http.MethodGet, "/api/v1/applications", "prof", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.Denied("project", "Submit", "no"), http.StatusForbidden},
		{shared.BadTransition("project", "Submit", "no"), http.StatusConflict},
		{shared.Invalid("project", "Submit", "no"), http.StatusUnprocessableEntity},
		{shared.Inconsistent("project", "Submit", "no"), http.StatusInternalServerError},
		{shared.NotFound("project", "Get", "p1"), http.StatusNotFound},
		{fmt.Errorf("save: %w", shared.ErrConcurrentModification), http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := errorStatus(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestTraceID(t *testing.T) {
	assert.Empty(t, traceID(context.Background()))

	tid, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	sid, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid,
		SpanID:  sid,
		Remote:  true,
	}))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", traceID(ctx))
}
