// Package eventhandler содержит обработчики доменных событий.
// Handlers run after the transaction has committed; their failures are
// logged and never undo the state change that raised the event.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/palms-core/internal/domain/application"
	"github.com/alem-hub/palms-core/internal/domain/notification"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/pkg/logger"
	"github.com/alem-hub/palms-core/pkg/timeutil"
)

// Subscriber is the part of the event bus handlers register on.
type Subscriber interface {
	Subscribe(eventType shared.EventType, handler shared.EventHandler) error
}

// ═══════════════════════════════════════════════════════════════════════════
// NOTIFIER
// Переводит доменные события в сообщения каналов, письма и всплывающие
// уведомления.
// ═══════════════════════════════════════════════════════════════════════════

// NotifierConfig содержит конфигурацию обработчика.
type NotifierConfig struct {
	// Timeout bounds the delivery of one event.
	Timeout time.Duration
	// SendMail enables templated e-mails next to chat messages.
	SendMail bool
}

// DefaultNotifierConfig возвращает конфигурацию по умолчанию.
func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{Timeout: 15 * time.Second, SendMail: true}
}

// Notifier delivers the notifications of the project workflow.
type Notifier struct {
	gateway notification.Gateway
	mailer  notification.Mailer
	log     *logger.Logger
	config  NotifierConfig
}

// NewNotifier creates a Notifier. mailer may be nil.
func NewNotifier(gateway notification.Gateway, mailer notification.Mailer, log *logger.Logger, config NotifierConfig) *Notifier {
	if log == nil {
		log = logger.Default()
	}
	return &Notifier{
		gateway: gateway,
		mailer:  mailer,
		log:     log.With(logger.Component("notifier")),
		config:  config,
	}
}

// EventTypes returns the events the notifier reacts to.
func (n *Notifier) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventProjectSubmitted,
		shared.EventProjectSubmissionCanceled,
		shared.EventProjectApproved,
		shared.EventProjectRejected,
		shared.EventProjectReturned,
		shared.EventProjectAssigned,
		shared.EventProjectCompleted,
		shared.EventProposalSent,
		shared.EventProposalAccepted,
		shared.EventProposalRejected,
		shared.EventApplicationReceived,
		shared.EventApplicationAccepted,
		shared.EventApplicationRejected,
		shared.EventMilestoneAnnounced,
		shared.EventCommissionLocked,
		shared.EventCommissionUnlocked,
	}
}

// Register subscribes the notifier to its events.
func (n *Notifier) Register(bus Subscriber) error {
	for _, t := range n.EventTypes() {
		if err := bus.Subscribe(t, n.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// outbox is what one event turns into.
type outbox struct {
	messages []*notification.Message
	mails    []notification.Mail
	toasts   []notification.Toast
}

// Handle реализует shared.EventHandler.
func (n *Notifier) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.config.Timeout)
	defer cancel()

	out, err := n.compose(event)
	if err != nil {
		n.log.Warn("cannot compose notification",
			logger.EventType(string(event.EventType())),
			logger.Err(err),
		)
		return nil
	}

	var errs []error
	for _, msg := range out.messages {
		if err := n.gateway.Send(ctx, msg); err != nil {
			errs = append(errs, err)
			n.log.Error("failed to post message",
				logger.EventType(string(event.EventType())),
				logger.String("entity_id", msg.EntityID),
				logger.Err(err),
			)
		}
	}
	if n.config.SendMail && n.mailer != nil {
		for _, mail := range out.mails {
			if !mail.HasRecipients() {
				continue
			}
			if err := n.mailer.SendMail(ctx, mail); err != nil {
				errs = append(errs, err)
				n.log.Error("failed to queue mail",
					logger.String("template", mail.Template),
					logger.Err(err),
				)
			}
		}
	}
	for _, toast := range out.toasts {
		// Toasts are fire-and-forget.
		if err := n.gateway.Notify(ctx, toast); err != nil {
			n.log.Debug("toast dropped", logger.UserID(toast.UserID), logger.Err(err))
		}
	}

	n.log.Debug("notifications delivered",
		logger.EventType(string(event.EventType())),
		logger.Int("messages", len(out.messages)),
		logger.Int("errors", len(errs)),
	)
	return errors.Join(errs...)
}

func (n *Notifier) compose(event shared.Event) (outbox, error) {
	switch e := event.(type) {
	case shared.ProjectSubmittedEvent:
		return n.projectSubmitted(e)
	case shared.ProjectSubmissionCanceledEvent:
		body := "The submission is canceled by the professor."
		if e.Automatic {
			body = "All programs returned the project. The submission is canceled automatically, please review the feedback and submit again."
		}
		return single(notification.ChannelProject, e.AggregateID(), e.ProjectName, "Submission canceled", body,
			[]string{e.ProfessorUserID}, shared.SystemActor)
	case shared.ProjectDecisionEvent:
		return n.projectDecision(e)
	case shared.ProjectAssignedEvent:
		body := "The project is assigned. A task board is being prepared for the student and the professor."
		return single(notification.ChannelProject, e.AggregateID(), e.ProjectName, "Project assigned", body,
			[]string{e.ProfessorUserID, e.StudentUserID}, shared.SystemActor)
	case shared.ProjectCompletedEvent:
		return single(notification.ChannelProject, e.AggregateID(), e.ProjectName, "Project completed",
			"All outcome documents are uploaded, the project is completed.",
			[]string{e.ProfessorUserID, e.StudentUserID}, shared.SystemActor)
	case shared.ProposalEvent:
		return n.proposal(e)
	case shared.ApplicationEvent:
		return n.application(e)
	case shared.MilestoneAnnouncedEvent:
		return n.milestone(e)
	case shared.CommissionEvent:
		return n.commission(e)
	default:
		return outbox{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, event.EventType())
	}
}

// ErrUnsupportedEvent is returned for events without a notification rule.
var ErrUnsupportedEvent = errors.New("event has no notification rule")

func single(kind notification.ChannelKind, id, name, title, body string, to []string, author shared.Actor) (outbox, error) {
	msg, err := notification.NewMessage(kind, id, name, title, body, to, author)
	if err != nil {
		return outbox{}, err
	}
	return outbox{messages: []*notification.Message{msg}}, nil
}

func (n *Notifier) projectSubmitted(e shared.ProjectSubmittedEvent) (outbox, error) {
	body := fmt.Sprintf("%s submitted the project for your evaluation.", nameOr(e.Professor, "The professor"))
	out, err := single(notification.ChannelProject, e.AggregateID(), e.ProjectName, "Project submitted", body,
		e.SupervisorUserIDs, e.Professor)
	if err != nil {
		return out, err
	}
	out.mails = append(out.mails, notification.Mail{
		Template: notification.TemplateProjectSubmission,
		ToEmails: e.SupervisorEmails,
		Data: map[string]string{
			"project_id":     e.AggregateID(),
			"project_name":   e.ProjectName,
			"professor_name": e.Professor.Name,
		},
	})
	return out, nil
}

func (n *Notifier) projectDecision(e shared.ProjectDecisionEvent) (outbox, error) {
	var title, body, template string
	switch e.EventType() {
	case shared.EventProjectApproved:
		title, template = "Project approved", notification.TemplateProjectApproval
		body = "The project is approved for one of the target programs."
	case shared.EventProjectRejected:
		title, template = "Project rejected", notification.TemplateProjectRejection
		body = "The project is rejected: " + e.Reason
	case shared.EventProjectReturned:
		title, template = "Project returned", notification.TemplateProjectReturn
		body = "The project is returned for changes: " + e.Reason
	default:
		return outbox{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, e.EventType())
	}

	out, err := single(notification.ChannelProject, e.AggregateID(), e.ProjectName, title, body,
		[]string{e.ProfessorUserID}, e.Decider)
	if err != nil {
		return out, err
	}
	out.mails = append(out.mails, notification.Mail{
		Template:  template,
		ToUserIDs: []string{e.ProfessorUserID},
		Data: map[string]string{
			"project_id":       e.AggregateID(),
			"project_name":     e.ProjectName,
			"program_id":       e.ProgramID,
			"reason":           e.Reason,
			"evaluation_state": e.EvaluationState,
		},
	})
	out.toasts = append(out.toasts, notification.Toast{UserID: e.ProfessorUserID, Title: title, Body: e.ProjectName})
	return out, nil
}

func (n *Notifier) proposal(e shared.ProposalEvent) (outbox, error) {
	var to, title, body, template string
	author := shared.Actor{UserID: e.ProfessorUserID, Name: e.ProfessorName}
	switch e.EventType() {
	case shared.EventProposalSent:
		to, title, template = e.ProfessorUserID, "New project proposal", notification.TemplateProposalSend
		author = shared.Actor{UserID: e.ProponentUserID, Name: e.ProponentName}
		body = fmt.Sprintf("%s proposed a project and asks you to supervise it.", nameOr(author, "A student"))
	case shared.EventProposalAccepted:
		to, title, template = e.ProponentUserID, "Proposal accepted", notification.TemplateProposalAccept
		body = "Your proposal is accepted, the project is created and sent to your program for approval."
	case shared.EventProposalRejected:
		to, title, template = e.ProponentUserID, "Proposal rejected", notification.TemplateProposalReject
		body = "Your proposal is rejected, see the feedback on the proposal."
	default:
		return outbox{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, e.EventType())
	}

	out, err := single(notification.ChannelProposal, e.AggregateID(), e.ProposalName, title, body, []string{to}, author)
	if err != nil {
		return out, err
	}
	out.mails = append(out.mails, notification.Mail{
		Template:  template,
		ToUserIDs: []string{to},
		Data: map[string]string{
			"proposal_id":   e.AggregateID(),
			"proposal_name": e.ProposalName,
			"project_id":    e.ProjectID,
		},
	})
	out.toasts = append(out.toasts, notification.Toast{UserID: to, Title: title, Body: e.ProposalName})
	return out, nil
}

func (n *Notifier) application(e shared.ApplicationEvent) (outbox, error) {
	var to, title, body, template string
	author := shared.Actor{UserID: e.ProfessorUserID}
	switch e.EventType() {
	case shared.EventApplicationReceived:
		to, title, template = e.ProfessorUserID, "New application", notification.TemplateApplicationSend
		author = shared.Actor{UserID: e.ApplicantUserID, Name: e.ApplicantName}
		body = fmt.Sprintf("%s applied to %s. Please respond within %d days.", nameOr(author, "A student"), e.ProjectName, application.ResponseDays)
	case shared.EventApplicationAccepted:
		to, title, template = e.ApplicantUserID, "Application accepted", notification.TemplateApplicationAccept
		body = fmt.Sprintf("Your application to %s is accepted.", e.ProjectName)
	case shared.EventApplicationRejected:
		to, title, template = e.ApplicantUserID, "Application rejected", notification.TemplateApplicationReject
		body = fmt.Sprintf("Your application to %s is rejected, see the feedback on the application.", e.ProjectName)
		if e.Automatic {
			author = shared.SystemActor
			body = fmt.Sprintf("%s is assigned to another student, your application is rejected automatically.", e.ProjectName)
		}
	default:
		return outbox{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, e.EventType())
	}

	out, err := single(notification.ChannelApplication, e.AggregateID(), e.ProjectName, title, body, []string{to}, author)
	if err != nil {
		return out, err
	}
	out.mails = append(out.mails, notification.Mail{
		Template:  template,
		ToUserIDs: []string{to},
		Data: map[string]string{
			"application_id": e.AggregateID(),
			"project_id":     e.ProjectID,
			"project_name":   e.ProjectName,
		},
	})
	out.toasts = append(out.toasts, notification.Toast{UserID: to, Title: title, Body: e.ProjectName})
	return out, nil
}

func (n *Notifier) milestone(e shared.MilestoneAnnouncedEvent) (outbox, error) {
	deadline := e.Deadline.Format(timeutil.FormatHumanDate)
	body := fmt.Sprintf("New milestone %s is due on %s. A task is added to every project board.", e.Name, deadline)
	out, err := single(notification.ChannelMilestone, e.AggregateID(), e.Name, "Milestone announced", body,
		e.AttendeeUserIDs, e.Author)
	if err != nil {
		return out, err
	}
	out.mails = append(out.mails, notification.Mail{
		Template:  notification.TemplateMilestone,
		ToUserIDs: e.AttendeeUserIDs,
		Data: map[string]string{
			"milestone_id":   e.AggregateID(),
			"milestone_name": e.Name,
			"deadline":       deadline,
		},
	})
	return out, nil
}

func (n *Notifier) commission(e shared.CommissionEvent) (outbox, error) {
	meeting := e.MeetingDate.Format(timeutil.FormatHumanDate)
	switch e.EventType() {
	case shared.EventCommissionLocked:
		body := fmt.Sprintf("The commission meets on %s.", meeting)
		out, err := single(notification.ChannelCalendarEvent, e.AggregateID(), e.Name, "Commission set", body,
			e.Attendees(), e.Manager)
		if err != nil {
			return out, err
		}
		out.mails = append(out.mails, notification.Mail{
			Template:  notification.TemplateCommissionSet,
			ToUserIDs: e.MemberUserIDs,
			Data: map[string]string{
				"commission_id":   e.AggregateID(),
				"commission_name": e.Name,
				"meeting_date":    meeting,
			},
		})
		return out, nil
	case shared.EventCommissionUnlocked:
		return single(notification.ChannelCalendarEvent, e.AggregateID(), e.Name, "Commission unset",
			"The commission meeting is canceled.", e.Attendees(), e.Manager)
	default:
		return outbox{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, e.EventType())
	}
}

func nameOr(a shared.Actor, fallback string) string {
	if a.Name != "" {
		return a.Name
	}
	return fallback
}
