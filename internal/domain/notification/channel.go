// Package notification содержит доменную модель уведомлений: именованные
// каналы обсуждений, сообщения в них, всплывающие уведомления и письма.
package notification

import (
	"errors"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHANNEL KIND
// ══════════════════════════════════════════════════════════════════════════════

// ChannelKind is the kind of entity a conversation belongs to.
type ChannelKind string

const (
	ChannelProject       ChannelKind = "project"
	ChannelApplication   ChannelKind = "application"
	ChannelProposal      ChannelKind = "proposal"
	ChannelTask          ChannelKind = "task"
	ChannelAnnouncement  ChannelKind = "announcement"
	ChannelMilestone     ChannelKind = "milestone"
	ChannelPoll          ChannelKind = "poll"
	ChannelReviewTable   ChannelKind = "review_table"
	ChannelReviewLine    ChannelKind = "review_line"
	ChannelCalendarEvent ChannelKind = "calendar_event"
)

// ErrUnknownChannelKind is returned for kinds without a naming rule.
var ErrUnknownChannelKind = errors.New("unknown channel kind")

// IsValid проверяет корректность типа канала.
func (k ChannelKind) IsValid() bool {
	_, err := ChannelName(k, "", "")
	return err == nil
}

// String возвращает строковое представление типа канала.
func (k ChannelKind) String() string {
	return string(k)
}

// ChannelName composes the conversation name for an entity. The name is the
// lookup key of the conversation, so it must stay stable.
func ChannelName(kind ChannelKind, id, name string) (string, error) {
	switch kind {
	case ChannelProject:
		return fmt.Sprintf("Project №%s (%s)", id, name), nil
	case ChannelApplication:
		return fmt.Sprintf("Application №%s for %s", id, name), nil
	case ChannelProposal:
		return fmt.Sprintf("Project Proposal №%s (%s)", id, name), nil
	case ChannelTask:
		return fmt.Sprintf("Task №%s (%s)", id, name), nil
	case ChannelAnnouncement:
		return fmt.Sprintf("Announcement №%s (%s)", id, name), nil
	case ChannelMilestone:
		return fmt.Sprintf("Milestone №%s (%s)", id, name), nil
	case ChannelPoll:
		return fmt.Sprintf("Poll №%s (%s)", id, name), nil
	case ChannelReviewTable:
		return fmt.Sprintf("Review Table №%s (%s)", id, name), nil
	case ChannelReviewLine:
		return "Project Review: " + name, nil
	case ChannelCalendarEvent:
		return fmt.Sprintf("Calendar Event №%s (%s)", id, name), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannelKind, kind)
	}
}
