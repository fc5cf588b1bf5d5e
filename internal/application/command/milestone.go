package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANNOUNCE MILESTONE COMMAND
// Веха попадает на доску задач каждого назначенного проекта своих программ
// и в календарь всех участников.
// ══════════════════════════════════════════════════════════════════════════════

// AnnounceMilestoneCommand announces a milestone to programs.
type AnnounceMilestoneCommand struct {
	Actor          identity.User
	Name           string
	Description    string
	Deadline       time.Time
	ProgramIDs     []string
	AttachmentKeys []string
}

// Validate validates the command.
func (c AnnounceMilestoneCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	if c.Name == "" {
		return errors.New("announce_milestone: name is required")
	}
	if c.Deadline.IsZero() {
		return errors.New("announce_milestone: deadline is required")
	}
	if shared.NewIDSet(c.ProgramIDs...).Len() == 0 {
		return errors.New("announce_milestone: program_ids are required")
	}
	return nil
}

// MilestoneResult describes where a milestone landed.
type MilestoneResult struct {
	MilestoneID     string
	Tasks           []shared.MilestoneTask
	AttendeeUserIDs []string
	Events          []shared.Event
}

// AnnounceMilestoneHandler handles AnnounceMilestoneCommand.
type AnnounceMilestoneHandler struct {
	deps Deps
}

// NewAnnounceMilestoneHandler creates a new AnnounceMilestoneHandler.
func NewAnnounceMilestoneHandler(deps Deps) *AnnounceMilestoneHandler {
	return &AnnounceMilestoneHandler{deps: deps.withDefaults()}
}

// Handle executes the command. Only projects with an elected student have
// a task board, the others are skipped.
func (h *AnnounceMilestoneHandler) Handle(ctx context.Context, cmd AnnounceMilestoneCommand) (*MilestoneResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, invalidCommand("announce_milestone", err)
	}
	if !cmd.Actor.IsManager() && !cmd.Actor.IsStaffOverride() {
		return nil, shared.Denied("milestone", "Announce", "Only program managers and supervisors can announce milestones.")
	}
	now := h.deps.Clock()
	if cmd.Deadline.Before(now) {
		return nil, shared.Invalid("milestone", "Announce", "The milestone deadline is already in the past.")
	}

	result := &MilestoneResult{MilestoneID: h.deps.NewID()}
	events, err := h.deps.execute(ctx, "announce_milestone", cmd.Actor, func(ctx context.Context, tx uow.Tx) ([]shared.Event, error) {
		result.Tasks = result.Tasks[:0]
		var staff []string
		seen := map[string]bool{}

		for _, programID := range shared.NewIDSet(cmd.ProgramIDs...).Slice() {
			program, err := tx.Academic().GetProgram(ctx, programID)
			if err != nil {
				return nil, err
			}
			staff = append(staff, program.SupervisorUserID, program.ManagerUserID)

			projects, err := tx.Projects().List(ctx, project.ListFilter{ProgramID: programID})
			if err != nil {
				return nil, fmt.Errorf("announce_milestone: list projects: %w", err)
			}
			for _, p := range projects {
				if !p.HasElectedStudent() || seen[p.ID] {
					continue
				}
				seen[p.ID] = true
				result.Tasks = append(result.Tasks, shared.MilestoneTask{
					ProjectID:       p.ID,
					ProjectName:     p.Name,
					StudentUserID:   p.ElectedStudentUserID,
					ProfessorUserID: p.ProfessorUserID,
				})
				body := fmt.Sprintf("Milestone %q is due on %s.", cmd.Name, cmd.Deadline.Format(timeutil.FormatHumanDate))
				if err := logActivity(ctx, tx, activity.EntityProject, p.ID, actorOf(cmd.Actor), activity.SubtypeNote, body, now); err != nil {
					return nil, err
				}
			}
		}

		// Студенты, затем профессора и сотрудники программ.
		invited := map[string]bool{}
		var ordered []string
		add := func(id string) {
			if id != "" && !invited[id] {
				invited[id] = true
				ordered = append(ordered, id)
			}
		}
		for _, t := range result.Tasks {
			add(t.StudentUserID)
		}
		for _, t := range result.Tasks {
			add(t.ProfessorUserID)
		}
		for _, id := range staff {
			add(id)
		}
		result.AttendeeUserIDs = ordered

		events := []shared.Event{
			shared.NewMilestoneAnnouncedEvent(result.MilestoneID, cmd.Name, cmd.Description, cmd.Deadline,
				actorOf(cmd.Actor), cmd.AttachmentKeys, result.Tasks, result.AttendeeUserIDs),
		}
		if len(cmd.AttachmentKeys) > 0 {
			events = append(events, shared.NewAttachmentsSharedEvent(result.MilestoneID, cmd.AttachmentKeys))
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	result.Events = events
	return result, nil
}
