package notification

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE
// ══════════════════════════════════════════════════════════════════════════════

// Status is the delivery state of a message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// IsFinal проверяет, является ли статус финальным.
func (s Status) IsFinal() bool {
	return s == StatusDelivered
}

var (
	// ErrInvalidMessage - невалидное сообщение.
	ErrInvalidMessage = errors.New("invalid notification message")

	// ErrDeliveryFailed - доставка не удалась.
	ErrDeliveryFailed = errors.New("notification delivery failed")
)

// Message is a chat message posted to the conversation of an entity.
type Message struct {
	Kind       ChannelKind
	EntityID   string
	EntityName string

	Title string
	Body  string

	// RecipientUserIDs join the conversation when it is created.
	RecipientUserIDs []string
	Author           shared.Actor

	Status    Status
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// NewMessage validates and builds a pending message.
func NewMessage(kind ChannelKind, entityID, entityName, title, body string, recipients []string, author shared.Actor) (*Message, error) {
	if !kind.IsValid() {
		return nil, ErrUnknownChannelKind
	}
	if entityID == "" || strings.TrimSpace(body) == "" {
		return nil, ErrInvalidMessage
	}
	return &Message{
		Kind:             kind,
		EntityID:         entityID,
		EntityName:       entityName,
		Title:            title,
		Body:             body,
		RecipientUserIDs: recipients,
		Author:           author,
		Status:           StatusPending,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// ChannelName returns the conversation the message goes to.
func (m *Message) ChannelName() (string, error) {
	return ChannelName(m.Kind, m.EntityID, m.EntityName)
}

// Members returns the author (unless system) followed by the recipients.
func (m *Message) Members() []string {
	out := make([]string, 0, len(m.RecipientUserIDs)+1)
	if !m.Author.IsSystem() {
		out = append(out, m.Author.UserID)
	}
	for _, id := range m.RecipientUserIDs {
		if id != "" && id != m.Author.UserID {
			out = append(out, id)
		}
	}
	return out
}

// MarkDelivered отмечает сообщение как доставленное.
func (m *Message) MarkDelivered() {
	m.Status = StatusDelivered
	m.LastError = ""
}

// MarkFailed отмечает неудачную попытку.
func (m *Message) MarkFailed(err error) {
	m.Attempts++
	m.Status = StatusFailed
	if err != nil {
		m.LastError = err.Error()
	}
}

// Toast is an ephemeral pop-up shown to one user.
type Toast struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Sticky bool   `json:"sticky"`
}

// Mail is a templated e-mail. Rendering and address lookup for ToUserIDs
// happen in the mail service.
type Mail struct {
	Template  string            `json:"template"`
	ToUserIDs []string          `json:"to_user_ids,omitempty"`
	ToEmails  []string          `json:"to_emails,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// HasRecipients reports whether the mail is addressed to anyone.
func (m Mail) HasRecipients() bool {
	return len(m.ToUserIDs) > 0 || len(m.ToEmails) > 0
}

// Mail templates.
const (
	TemplateProjectSubmission  = "project_submission"
	TemplateProjectApproval    = "project_approval"
	TemplateProjectRejection   = "project_rejection"
	TemplateProjectReturn      = "project_return"
	TemplateProposalSend       = "proposal_send"
	TemplateProposalAccept     = "proposal_accept"
	TemplateProposalReject     = "proposal_reject"
	TemplateApplicationSend    = "application_send"
	TemplateApplicationAccept  = "application_accept"
	TemplateApplicationReject  = "application_reject"
	TemplateApplicationOverdue = "application_overdue"
	TemplateMilestone          = "milestone_announcement"
	TemplateCommissionSet      = "commission_set"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Gateway delivers chat messages and toasts.
type Gateway interface {
	// Send resolves or creates the conversation of msg and appends it.
	Send(ctx context.Context, msg *Message) error
	// Notify shows a toast. Fire and forget.
	Notify(ctx context.Context, toast Toast) error
}

// Mailer queues e-mails.
type Mailer interface {
	SendMail(ctx context.Context, mail Mail) error
}

// ChannelStore persists conversations and their messages.
type ChannelStore interface {
	// FindByName returns shared.ErrNotFound when no conversation exists.
	FindByName(ctx context.Context, name string) (string, error)
	// Create makes a conversation; creating an existing name returns the
	// existing id.
	Create(ctx context.Context, name string, memberUserIDs []string) (string, error)
	Post(ctx context.Context, channelID string, msg *Message) error
}

// ChannelCache caches conversation ids by name.
type ChannelCache interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Set(ctx context.Context, name, channelID string) error
}
