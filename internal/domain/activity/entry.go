// Package activity is the message log every workflow record carries:
// who did what to a project, proposal or application, and when.
package activity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// Domain errors for activity package.
var (
	ErrEmptyBody         = errors.New("activity: body is empty")
	ErrInvalidEntityKind = errors.New("activity: invalid entity kind")
)

// EntityKind identifies the record type an entry is attached to.
type EntityKind string

const (
	EntityProject     EntityKind = "project"
	EntityProposal    EntityKind = "proposal"
	EntityApplication EntityKind = "application"
)

// IsValid checks if the entity kind is known.
func (k EntityKind) IsValid() bool {
	return k == EntityProject || k == EntityProposal || k == EntityApplication
}

// Subtype classifies entries for filtering in the UI.
type Subtype string

const (
	// SubtypeNote is a plain log line.
	SubtypeNote Subtype = "note"
	// SubtypeProfessorSupervisor is the exchange between a professor and program supervisors.
	SubtypeProfessorSupervisor Subtype = "professor_supervisor"
	// SubtypeEmail marks that an e-mail was queued.
	SubtypeEmail Subtype = "email"
)

// Entry is one log line.
type Entry struct {
	ID         string
	EntityKind EntityKind
	EntityID   string
	// Author is shared.SystemActor for automatic transitions.
	Author    shared.Actor
	Subtype   Subtype
	Body      string
	CreatedAt time.Time
}

// NewEntry validates and builds an entry.
func NewEntry(kind EntityKind, entityID string, author shared.Actor, subtype Subtype, body string, now time.Time) (*Entry, error) {
	if !kind.IsValid() {
		return nil, ErrInvalidEntityKind
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}
	if subtype == "" {
		subtype = SubtypeNote
	}
	return &Entry{
		EntityKind: kind,
		EntityID:   entityID,
		Author:     author,
		Subtype:    subtype,
		Body:       body,
		CreatedAt:  now,
	}, nil
}

// IsSystem reports whether the entry was written by the system.
func (e *Entry) IsSystem() bool {
	return e.Author.IsSystem()
}

// Log is the capability aggregates use to post to their history.
type Log interface {
	// Post appends an entry inside the current transaction.
	Post(ctx context.Context, e *Entry) error
	// List returns the entries of one record, oldest first.
	List(ctx context.Context, kind EntityKind, entityID string, page shared.Pagination) ([]*Entry, error)
}
