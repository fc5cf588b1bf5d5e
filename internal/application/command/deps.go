// Package command contains write operations (CQRS - Commands).
//
// Every handler runs its work inside one unit of work: the parent project
// row is locked first, children are read after the lock, and domain events
// collected on the way are published only once the transaction committed.
package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/pkg/logger"
)

var tracer = otel.Tracer("github.com/alem-hub/palms-core/internal/application/command")

// ErrNoActor is returned by Validate when a command carries no user.
var ErrNoActor = errors.New("command: actor is required")

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Deps are shared by every command handler.
type Deps struct {
	UoW    uow.UnitOfWork
	Events shared.EventPublisher
	Logger *logger.Logger

	// Clock and NewID are replaceable in tests.
	Clock func() time.Time
	NewID func() string
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Logger == nil {
		d.Logger = logger.Default()
	}
	return d
}

// work is the body of a command transaction. It returns the events to
// publish after commit.
type work func(ctx context.Context, tx uow.Tx) ([]shared.Event, error)

// execute runs fn in a unit of work under a span named op and publishes the
// collected events once the transaction committed.
func (d Deps) execute(ctx context.Context, op string, actor identity.User, fn work) ([]shared.Event, error) {
	ctx, span := tracer.Start(ctx, "command."+op)
	defer span.End()
	span.SetAttributes(attribute.String("actor.id", actor.ID))

	var events []shared.Event
	err := d.UoW.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		events, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	d.publish(op, events)
	span.SetAttributes(attribute.Int("events", len(events)))
	return events, nil
}

// publish hands events to the bus. Delivery failures never undo a
// committed command.
func (d Deps) publish(op string, events []shared.Event) {
	for _, event := range events {
		if err := d.Events.Publish(event); err != nil {
			d.Logger.Warn("event publish failed",
				logger.Operation(op),
				logger.String("event_type", string(event.EventType())),
				logger.String("aggregate_id", event.AggregateID()),
				logger.Err(err),
			)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func actorOf(u identity.User) shared.Actor {
	return shared.Actor{UserID: u.ID, Name: u.Name}
}

// logActivity appends an entry to the activity log of an entity.
func logActivity(ctx context.Context, tx uow.Tx, kind activity.EntityKind, entityID string, author shared.Actor, subtype activity.Subtype, body string, now time.Time) error {
	entry, err := activity.NewEntry(kind, entityID, author, subtype, body, now)
	if err != nil {
		return err
	}
	return tx.Activity().Post(ctx, entry)
}

// invalidCommand reports a malformed command as a validation failure.
func invalidCommand(op string, err error) error {
	return shared.WrapError("command", op, shared.ErrValidation, err.Error(), err)
}

func validateActor(u identity.User) error {
	if u.ID == "" {
		return ErrNoActor
	}
	return nil
}
