package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alem-hub/palms-core/internal/application/command"
	"github.com/alem-hub/palms-core/internal/application/query"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/proposal"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROPOSALS
// ══════════════════════════════════════════════════════════════════════════════

type proposalRequest struct {
	ProfessorID     string   `json:"professor_id"`
	Name            string   `json:"name"`
	NameRu          string   `json:"name_ru"`
	Type            string   `json:"type"`
	Format          string   `json:"format"`
	Language        string   `json:"language"`
	IsGroupProject  bool     `json:"is_group_project"`
	Description     string   `json:"description"`
	Results         string   `json:"results"`
	AdditionalFiles []string `json:"additional_files"`
	Tags            []string `json:"tags"`
	AdditionalEmail string   `json:"additional_email"`
	AdditionalPhone string   `json:"additional_phone"`
	Telegram        string   `json:"telegram"`
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

// GET /api/v1/proposals?professor_id=
func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	q := query.ListProposalsQuery{
		ProfessorID: r.URL.Query().Get("professor_id"),
		Page:        queryInt(r, "page", 1),
		PageSize:    queryInt(r, "page_size", 20),
	}
	out, err := s.deps.Queries.ListProposals.Handle(r.Context(), q)
	if err != nil {
		s.writeError(w, r, "list_proposals", err)
		return
	}
	writePage(w, r, out, q.Page, q.PageSize)
}

// GET /api/v1/proposals/{id}
func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Queries.GetProposal.Handle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "get_proposal", err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

// POST /api/v1/proposals
func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req proposalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.deps.Commands.CreateProposal.Handle(r.Context(), command.CreateProposalCommand{
		Actor:       actor,
		ProfessorID: req.ProfessorID,
		Fields: proposal.Proposal{
			Name:            req.Name,
			NameRu:          req.NameRu,
			Type:            project.WorkType(req.Type),
			Format:          project.Format(req.Format),
			Language:        project.Language(req.Language),
			IsGroupProject:  req.IsGroupProject,
			Description:     req.Description,
			Results:         req.Results,
			AdditionalFiles: req.AdditionalFiles,
			Tags:            req.Tags,
			Contact: proposal.Contact{
				AdditionalEmail: req.AdditionalEmail,
				AdditionalPhone: req.AdditionalPhone,
				Telegram:        req.Telegram,
			},
		},
	})
	if err != nil {
		s.writeError(w, r, "create_proposal", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.ProposalFromDomain(p))
}

// DELETE /api/v1/proposals/{id}
func (s *Server) handleDeleteProposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	err := s.deps.Commands.Proposals.Delete(r.Context(), command.ProposalActionCommand{Actor: actor, ProposalID: chi.URLParam(r, "id")})
	if err != nil {
		s.writeError(w, r, "delete_proposal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type proposalAction func(context.Context, command.ProposalActionCommand) (*proposal.Proposal, error)

// POST /api/v1/proposals/{id}/{send|cancel|accept|reject}
func (s *Server) handleProposalAction(action proposalAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		var req feedbackRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p, err := action(r.Context(), command.ProposalActionCommand{
			Actor:      actor,
			ProposalID: chi.URLParam(r, "id"),
			Feedback:   req.Feedback,
		})
		if err != nil {
			s.writeError(w, r, "proposal_action", err)
			return
		}
		writeJSON(w, r, http.StatusOK, query.ProposalFromDomain(p))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATIONS
// ══════════════════════════════════════════════════════════════════════════════

type applicationRequest struct {
	ProjectID       string   `json:"project_id"`
	Message         string   `json:"message"`
	AdditionalFiles []string `json:"additional_files"`
	AdditionalEmail string   `json:"additional_email"`
	AdditionalPhone string   `json:"additional_phone"`
	Telegram        string   `json:"telegram"`
}

type applicationResponse struct {
	Application  query.ApplicationDTO   `json:"application"`
	Project      *query.ProjectDTO      `json:"project,omitempty"`
	AutoRejected []query.ApplicationDTO `json:"auto_rejected,omitempty"`
}

// GET /api/v1/applications?applicant_id=
func (s *Server) handleListApplicantApplications(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Queries.ListApplications.Handle(r.Context(), query.ListApplicationsQuery{ApplicantID: r.URL.Query().Get("applicant_id")})
	if err != nil {
		s.writeError(w, r, "list_applications", err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

// POST /api/v1/applications
func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req applicationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.deps.Commands.CreateApplication.Handle(r.Context(), command.CreateApplicationCommand{
		Actor:           actor,
		ProjectID:       req.ProjectID,
		Message:         req.Message,
		AdditionalFiles: req.AdditionalFiles,
		AdditionalEmail: req.AdditionalEmail,
		AdditionalPhone: req.AdditionalPhone,
		Telegram:        req.Telegram,
	})
	if err != nil {
		s.writeError(w, r, "create_application", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.ApplicationFromDomain(a, s.deps.Clock()))
}

type applicationAction func(context.Context, command.ApplicationActionCommand) (*command.ApplicationResult, error)

// POST /api/v1/applications/{id}/{send|cancel|accept|reject}
func (s *Server) handleApplicationAction(action applicationAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		var req feedbackRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := action(r.Context(), command.ApplicationActionCommand{
			Actor:         actor,
			ApplicationID: chi.URLParam(r, "id"),
			Feedback:      req.Feedback,
		})
		if err != nil {
			s.writeError(w, r, "application_action", err)
			return
		}

		now := s.deps.Clock()
		out := applicationResponse{Application: query.ApplicationFromDomain(res.Application, now)}
		if res.Project != nil {
			dto := query.ProjectFromDomain(res.Project)
			out.Project = &dto
		}
		for _, a := range res.AutoRejected {
			out.AutoRejected = append(out.AutoRejected, query.ApplicationFromDomain(a, now))
		}
		writeJSON(w, r, http.StatusOK, out)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MILESTONES AND COMMISSIONS
// ══════════════════════════════════════════════════════════════════════════════

type milestoneRequest struct {
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Deadline       time.Time `json:"deadline"`
	ProgramIDs     []string  `json:"program_ids"`
	AttachmentKeys []string  `json:"attachment_keys"`
}

type milestoneResponse struct {
	MilestoneID     string                 `json:"milestone_id"`
	Tasks           []shared.MilestoneTask `json:"tasks"`
	AttendeeUserIDs []string               `json:"attendee_user_ids"`
}

// POST /api/v1/milestones
func (s *Server) handleAnnounceMilestone(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req milestoneRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Commands.AnnounceMilestone.Handle(r.Context(), command.AnnounceMilestoneCommand{
		Actor:          actor,
		Name:           req.Name,
		Description:    req.Description,
		Deadline:       req.Deadline,
		ProgramIDs:     req.ProgramIDs,
		AttachmentKeys: req.AttachmentKeys,
	})
	if err != nil {
		s.writeError(w, r, "announce_milestone", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, milestoneResponse{
		MilestoneID:     res.MilestoneID,
		Tasks:           res.Tasks,
		AttendeeUserIDs: res.AttendeeUserIDs,
	})
}

type commissionRequest struct {
	Name               string    `json:"name"`
	MeetingDate        time.Time `json:"meeting_date"`
	MemberProfessorIDs []string  `json:"member_professor_ids"`
	ProjectIDs         []string  `json:"project_ids"`
}

type commissionAction func(context.Context, command.CommissionCommand) (*shared.CommissionEvent, error)

// POST /api/v1/commissions/{id}/{lock|unlock}
func (s *Server) handleCommission(action commissionAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		var req commissionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		ev, err := action(r.Context(), command.CommissionCommand{
			Actor:              actor,
			CommissionID:       chi.URLParam(r, "id"),
			Name:               req.Name,
			MeetingDate:        req.MeetingDate,
			MemberProfessorIDs: req.MemberProfessorIDs,
			ProjectIDs:         req.ProjectIDs,
		})
		if err != nil {
			s.writeError(w, r, "commission", err)
			return
		}
		writeJSON(w, r, http.StatusOK, ev)
	}
}
