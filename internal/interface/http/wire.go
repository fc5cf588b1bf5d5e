package http

import (
	"time"

	"github.com/alem-hub/palms-core/internal/application/command"
	"github.com/alem-hub/palms-core/internal/application/query"
	"github.com/alem-hub/palms-core/internal/domain/document"
)

// NewCommands builds every command handler over one set of dependencies.
func NewCommands(deps command.Deps, documents document.Store) Commands {
	return Commands{
		CreateProject:      command.NewCreateProjectHandler(deps),
		UpdateProject:      command.NewUpdateProjectHandler(deps),
		SubmitProject:      command.NewSubmitProjectHandler(deps),
		CancelSubmission:   command.NewCancelSubmissionHandler(deps),
		AddTarget:          command.NewAddTargetHandler(deps),
		RemoveTarget:       command.NewRemoveTargetHandler(deps),
		UpdateTargets:      command.NewUpdateTargetsHandler(deps),
		BranchProject:      command.NewBranchProjectHandler(deps),
		DecideAvailability: command.NewDecideAvailabilityHandler(deps),
		AttachOutcome:      command.NewAttachOutcomeHandler(deps, documents),
		CompleteProject:    command.NewCompleteProjectHandler(deps),
		GradeProject:       command.NewGradeProjectHandler(deps),
		ResetProject:       command.NewResetProjectHandler(deps),
		UnlinkProject:      command.NewUnlinkProjectHandler(deps),
		CreateProposal:     command.NewCreateProposalHandler(deps),
		Proposals:          command.NewProposalHandler(deps),
		CreateApplication:  command.NewCreateApplicationHandler(deps),
		Applications:       command.NewApplicationHandler(deps),
		AnnounceMilestone:  command.NewAnnounceMilestoneHandler(deps),
		Commissions:        command.NewCommissionHandler(deps),
	}
}

// NewQueries builds every query handler over a read unit of work.
func NewQueries(reader query.Reader, clock func() time.Time) Queries {
	return Queries{
		GetProject:       query.NewGetProjectHandler(reader),
		ListProjects:     query.NewListProjectsHandler(reader),
		ListApplications: query.NewListApplicationsHandler(reader, clock),
		ListProposals:    query.NewListProposalsHandler(reader),
		GetProposal:      query.NewGetProposalHandler(reader),
		ListActivity:     query.NewListActivityHandler(reader),
	}
}
