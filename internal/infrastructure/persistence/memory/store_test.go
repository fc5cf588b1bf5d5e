package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/application"
	"github.com/alem-hub/palms-core/internal/domain/project"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

func TestProjectUpdateChecksVersion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		return tx.Projects().Create(ctx, &project.Project{ID: "p1", Details: project.Details{Name: "Graph search"}})
	}))

	err := s.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		first, err := tx.Projects().GetForUpdate(ctx, "p1")
		require.NoError(t, err)
		second, err := tx.Projects().GetForUpdate(ctx, "p1")
		require.NoError(t, err)

		first.Name = "Graph search II"
		require.NoError(t, tx.Projects().Update(ctx, first))
		assert.Equal(t, 2, first.Version)

		return tx.Projects().Update(ctx, second)
	})
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)

	// failed transaction leaves the row as it was
	require.NoError(t, s.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		p, err := tx.Projects().GetByID(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "Graph search", p.Name)
		assert.Equal(t, 1, p.Version)
		return nil
	}))
}

func TestOneSentApplicationPerApplicant(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		apps := tx.Applications()
		a1 := &application.Application{ID: "a1", ProjectID: "p1", ApplicantID: "s1", State: application.StateDraft}
		a2 := &application.Application{ID: "a2", ProjectID: "p2", ApplicantID: "s1", State: application.StateDraft}
		a3 := &application.Application{ID: "a3", ProjectID: "p2", ApplicantID: "s2", State: application.StateDraft}
		for _, a := range []*application.Application{a1, a2, a3} {
			require.NoError(t, apps.Create(ctx, a))
		}

		a1.State = application.StateSent
		require.NoError(t, apps.Update(ctx, a1))
		// resaving the sent one is fine
		require.NoError(t, apps.Update(ctx, a1))

		a3.State = application.StateSent
		require.NoError(t, apps.Update(ctx, a3))

		a2.State = application.StateSent
		err := apps.Update(ctx, a2)
		assert.True(t, shared.IsInvalidState(err))

		a1.State = application.StateDraft
		require.NoError(t, apps.Update(ctx, a1))
		return apps.Update(ctx, a2)
	})
	require.NoError(t, err)
}
