// Package uow defines the transaction boundary every mutating command runs in.
package uow

import (
	"context"

	"github.com/alem-hub/palms-core/internal/domain/academic"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/application"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/proposal"
)

// Tx exposes repositories bound to one transaction.
type Tx interface {
	Projects() project.Repository
	Availabilities() project.AvailabilityRepository
	Approvals() project.ApprovalRepository
	Proposals() proposal.Repository
	Applications() application.Repository
	Academic() academic.Repository
	Groups() identity.GroupRepository
	Activity() activity.Log
}

// UnitOfWork runs fn in a transaction. fn returning an error rolls back
// every write made through tx; nil commits.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
