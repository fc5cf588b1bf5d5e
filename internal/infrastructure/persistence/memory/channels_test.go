package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/palms-core/internal/domain/notification"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

func TestChannelStore(t *testing.T) {
	ctx := context.Background()
	s := NewChannelStore()

	_, err := s.FindByName(ctx, "Project №p1 Thesis")
	assert.True(t, shared.IsNotFound(err))

	id, err := s.Create(ctx, "Project №p1 Thesis", []string{"u1", "u2"})
	require.NoError(t, err)

	again, err := s.Create(ctx, "Project №p1 Thesis", []string{"u3"})
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, []string{"u1", "u2"}, s.Members(id))

	found, err := s.FindByName(ctx, "Project №p1 Thesis")
	require.NoError(t, err)
	assert.Equal(t, id, found)

	msg := &notification.Message{Title: "Submitted", Body: "Please review", Author: shared.Actor{UserID: "u1"}}
	require.NoError(t, s.Post(ctx, id, msg))
	assert.True(t, shared.IsNotFound(s.Post(ctx, "ch-404", msg)))

	posted := s.Messages()
	require.Len(t, posted, 1)
	assert.Equal(t, PostedMessage{ChannelID: id, Title: "Submitted", Body: "Please review", AuthorID: "u1"}, posted[0])
}
