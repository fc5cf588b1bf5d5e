package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/alem-hub/palms-core/internal/domain/notification"
)

// ChannelStore keeps chat conversations in PostgreSQL.
// It runs outside the command transactions: chat delivery never rolls back
// a state change.
type ChannelStore struct {
	q Querier
}

var _ notification.ChannelStore = (*ChannelStore)(nil)

// NewChannelStore creates a store on the pool.
func NewChannelStore(conn *Connection) *ChannelStore {
	return &ChannelStore{q: conn.Pool()}
}

func (s *ChannelStore) FindByName(ctx context.Context, name string) (string, error) {
	var id string
	err := s.q.QueryRow(ctx, `SELECT id FROM channels WHERE name = $1`, name).Scan(&id)
	return id, mapError("channel", "FindByName", name, err)
}

// Create inserts the conversation or returns the id of an existing one.
func (s *ChannelStore) Create(ctx context.Context, name string, memberUserIDs []string) (string, error) {
	var id string
	err := s.q.QueryRow(ctx, `
		INSERT INTO channels (id, name, member_user_ids) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, uuid.NewString(), name, textArray(memberUserIDs)).Scan(&id)
	return id, mapError("channel", "Create", name, err)
}

func (s *ChannelStore) Post(ctx context.Context, channelID string, msg *notification.Message) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO channel_messages (channel_id, author_user_id, author_name, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		channelID, msg.Author.UserID, msg.Author.Name, msg.Title, msg.Body, msg.CreatedAt,
	)
	return mapError("channel", "Post", channelID, err)
}
