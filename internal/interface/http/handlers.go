package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alem-hub/palms-core/internal/application/command"
	"github.com/alem-hub/palms-core/internal/application/query"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/project"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUESTS
// ══════════════════════════════════════════════════════════════════════════════

type projectRequest struct {
	Name            string   `json:"name"`
	NameRu          string   `json:"name_ru"`
	Format          string   `json:"format"`
	Type            string   `json:"type"`
	Language        string   `json:"language"`
	Description     string   `json:"description"`
	Requirements    string   `json:"requirements"`
	Results         string   `json:"results"`
	IsGroupProject  bool     `json:"is_group_project"`
	Tags            []string `json:"tags"`
	AdditionalFiles []string `json:"additional_files"`
}

func (req projectRequest) details() project.Details {
	return project.Details{
		Name:            req.Name,
		NameRu:          req.NameRu,
		Format:          project.Format(req.Format),
		Type:            project.WorkType(req.Type),
		Language:        project.Language(req.Language),
		Description:     req.Description,
		Requirements:    req.Requirements,
		Results:         req.Results,
		IsGroupProject:  req.IsGroupProject,
		Tags:            req.Tags,
		AdditionalFiles: req.AdditionalFiles,
	}
}

type targetRequest struct {
	ProgramID string   `json:"program_id"`
	Type      string   `json:"type"`
	DegreeIDs []string `json:"degree_ids"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type outcomeRequest struct {
	ReportFile          string `json:"project_report_file"`
	PlagiarismCheckFile string `json:"plagiarism_check_file"`
	ProfessorReviewFile string `json:"professor_review_file"`
}

type gradeRequest struct {
	Grade string `json:"grade"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PROJECTS
// ══════════════════════════════════════════════════════════════════════════════

// GET /api/v1/projects
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	q := query.ListProjectsQuery{
		ProfessorID:      r.URL.Query().Get("professor_id"),
		ProgramID:        r.URL.Query().Get("program_id"),
		State:            r.URL.Query().Get("state"),
		PublicationState: r.URL.Query().Get("publication_state"),
		Page:             queryInt(r, "page", 1),
		PageSize:         queryInt(r, "page_size", 20),
	}
	out, err := s.deps.Queries.ListProjects.Handle(r.Context(), q)
	if err != nil {
		s.writeError(w, r, "list_projects", err)
		return
	}
	writePage(w, r, out, q.Page, q.PageSize)
}

// GET /api/v1/projects/{id}
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Queries.GetProject.Handle(r.Context(), query.GetProjectQuery{ProjectID: chi.URLParam(r, "id")})
	if err != nil {
		s.writeError(w, r, "get_project", err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

// POST /api/v1/projects
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req projectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.deps.Commands.CreateProject.Handle(r.Context(), command.CreateProjectCommand{Actor: actor, Details: req.details()})
	if err != nil {
		s.writeError(w, r, "create_project", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.ProjectFromDomain(p))
}

// PATCH /api/v1/projects/{id}
func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req projectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.deps.Commands.UpdateProject.Handle(r.Context(), command.UpdateProjectCommand{
		Actor:     actor,
		ProjectID: chi.URLParam(r, "id"),
		Details:   req.details(),
	})
	if err != nil {
		s.writeError(w, r, "update_project", err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ProjectFromDomain(p))
}

// POST /api/v1/projects/{id}/submit
func (s *Server) handleSubmitProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Commands.SubmitProject.Handle(r.Context(), command.SubmitProjectCommand{Actor: actor, ProjectID: chi.URLParam(r, "id")})
	if err != nil {
		s.writeError(w, r, "submit_project", err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ProjectFromDomain(res.Project))
}

// POST /api/v1/projects/{id}/cancel
func (s *Server) handleCancelSubmission(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	p, err := s.deps.Commands.CancelSubmission.Handle(r.Context(), command.CancelSubmissionCommand{Actor: actor, ProjectID: chi.URLParam(r, "id")})
	if err != nil {
		s.writeError(w, r, "cancel_submission", err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ProjectFromDomain(p))
}

// POST /api/v1/projects/{id}/targets
func (s *Server) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.deps.Commands.AddTarget.Handle(r.Context(), command.AddTargetCommand{
		Actor:     actor,
		ProjectID: chi.URLParam(r, "id"),
		ProgramID: req.ProgramID,
		Type:      project.WorkType(req.Type),
		DegreeIDs: req.DegreeIDs,
	})
	if err != nil {
		s.writeError(w, r, "add_target", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.AvailabilityFromDomain(a))
}

// POST /api/v1/projects/{id}/outcome
func (s *Server) handleAttachOutcome(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req outcomeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.deps.Commands.AttachOutcome.Handle(r.Context(), command.AttachOutcomeCommand{
		Actor:               actor,
		ProjectID:           chi.URLParam(r, "id"),
		ReportFile:          req.ReportFile,
		PlagiarismCheckFile: req.PlagiarismCheckFile,
		ProfessorReviewFile: req.ProfessorReviewFile,
	})
	if err != nil {
		s.writeError(w, r, "attach_outcome", err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ProjectFromDomain(p))
}

// POST /api/v1/projects/{id}/complete
func (s *Server) handleCompleteProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	p, err := s.deps.Commands.CompleteProject.Handle(r.Context(), command.CompleteProjectCommand{Actor: actor, ProjectID: chi.URLParam(r, "id")})
	if err != nil {
		s.writeError(w, r, "complete_project", err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ProjectFromDomain(p))
}

// POST /api/v1/projects/{id}/grade
func (s *Server) handleGradeProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req gradeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.deps.Commands.GradeProject.Handle(r.Context(), command.GradeProjectCommand{
		Actor:     actor,
		ProjectID: chi.URLParam(r, "id"),
		Grade:     req.Grade,
	})
	if err != nil {
		s.writeError(w, r, "grade_project", err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ProjectFromDomain(p))
}

// POST /api/v1/projects/{id}/reset
func (s *Server) handleResetProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	p, err := s.deps.Commands.ResetProject.Handle(r.Context(), command.ResetProjectCommand{Actor: actor, ProjectID: chi.URLParam(r, "id")})
	if err != nil {
		s.writeError(w, r, "reset_project", err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ProjectFromDomain(p))
}

// POST /api/v1/projects/{id}/unlink
func (s *Server) handleUnlinkProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	err := s.deps.Commands.UnlinkProject.Handle(r.Context(), command.UnlinkProjectCommand{Actor: actor, ProjectID: chi.URLParam(r, "id")})
	if err != nil {
		s.writeError(w, r, "unlink_project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/projects/{id}/applications
func (s *Server) handleListProjectApplications(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Queries.ListApplications.Handle(r.Context(), query.ListApplicationsQuery{ProjectID: chi.URLParam(r, "id")})
	if err != nil {
		s.writeError(w, r, "list_applications", err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

// GET /api/v1/{kind}/{id}/activity
func (s *Server) handleActivity(kind activity.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := query.ListActivityQuery{
			Kind:     kind,
			EntityID: chi.URLParam(r, "id"),
			Page:     queryInt(r, "page", 1),
			PageSize: queryInt(r, "page_size", 50),
		}
		out, err := s.deps.Queries.ListActivity.Handle(r.Context(), q)
		if err != nil {
			s.writeError(w, r, "list_activity", err)
			return
		}
		writePage(w, r, out, q.Page, q.PageSize)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AVAILABILITIES
// ══════════════════════════════════════════════════════════════════════════════

// PATCH /api/v1/availabilities/{id}
func (s *Server) handleUpdateTargets(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.deps.Commands.UpdateTargets.Handle(r.Context(), command.UpdateTargetsCommand{
		Actor:          actor,
		AvailabilityID: chi.URLParam(r, "id"),
		Type:           project.WorkType(req.Type),
		DegreeIDs:      req.DegreeIDs,
	})
	if err != nil {
		s.writeError(w, r, "update_targets", err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.AvailabilityFromDomain(a))
}

// DELETE /api/v1/availabilities/{id}
func (s *Server) handleRemoveTarget(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	err := s.deps.Commands.RemoveTarget.Handle(r.Context(), command.RemoveTargetCommand{Actor: actor, AvailabilityID: chi.URLParam(r, "id")})
	if err != nil {
		s.writeError(w, r, "remove_target", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type decisionResponse struct {
	Project      query.ProjectDTO      `json:"project"`
	Availability query.AvailabilityDTO `json:"availability"`
	AutoCanceled bool                  `json:"auto_canceled"`
}

// POST /api/v1/availabilities/{id}/{approve|reject|return}
func (s *Server) handleDecide(decision command.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		var req reasonRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := s.deps.Commands.DecideAvailability.Handle(r.Context(), command.DecideAvailabilityCommand{
			Actor:          actor,
			AvailabilityID: chi.URLParam(r, "id"),
			Decision:       decision,
			Reason:         req.Reason,
		})
		if err != nil {
			s.writeError(w, r, "decide_availability", err)
			return
		}
		writeJSON(w, r, http.StatusOK, decisionResponse{
			Project:      query.ProjectFromDomain(res.Project),
			Availability: query.AvailabilityFromDomain(res.Availability),
			AutoCanceled: res.AutoCanceled,
		})
	}
}

// POST /api/v1/availabilities/{id}/branch
func (s *Server) handleBranchProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Commands.BranchProject.Handle(r.Context(), command.BranchProjectCommand{Actor: actor, AvailabilityID: chi.URLParam(r, "id")})
	if err != nil {
		s.writeError(w, r, "branch_project", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{
		"project":      query.ProjectFromDomain(res.Project),
		"availability": query.AvailabilityFromDomain(res.Availability),
	})
}
