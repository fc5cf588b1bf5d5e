package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/alem-hub/palms-core/internal/domain/notification"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// PostedMessage is a message delivered to an in-memory conversation.
type PostedMessage struct {
	ChannelID string
	Title     string
	Body      string
	AuthorID  string
}

// ChannelStore keeps chat conversations in memory.
type ChannelStore struct {
	mu       sync.Mutex
	byName   map[string]string
	members  map[string][]string
	messages []PostedMessage
}

var _ notification.ChannelStore = (*ChannelStore)(nil)

// NewChannelStore creates an empty conversation store.
func NewChannelStore() *ChannelStore {
	return &ChannelStore{
		byName:  make(map[string]string),
		members: make(map[string][]string),
	}
}

func (s *ChannelStore) FindByName(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byName[name]
	if !ok {
		return "", shared.NotFound("channel", "FindByName", name)
	}
	return id, nil
}

func (s *ChannelStore) Create(_ context.Context, name string, memberUserIDs []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byName[name]; ok {
		return id, nil
	}
	id := fmt.Sprintf("ch-%d", len(s.byName)+1)
	s.byName[name] = id
	s.members[id] = slices.Clone(memberUserIDs)
	return id, nil
}

func (s *ChannelStore) Post(_ context.Context, channelID string, msg *notification.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[channelID]; !ok {
		return shared.NotFound("channel", "Post", channelID)
	}
	s.messages = append(s.messages, PostedMessage{
		ChannelID: channelID,
		Title:     msg.Title,
		Body:      msg.Body,
		AuthorID:  msg.Author.UserID,
	})
	return nil
}

// Members returns the members a conversation was created with.
func (s *ChannelStore) Members(channelID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.members[channelID])
}

// Messages returns every posted message, oldest first.
func (s *ChannelStore) Messages() []PostedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}
