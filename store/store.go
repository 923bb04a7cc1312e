package store

import (
	"context"

	"github.com/wenjin/chatd/internal/profile"
)

// Store provides database access to conversations and messages, and fans
// out change notifications to watch subscribers.
type Store struct {
	profile *profile.Profile
	driver  Driver
	hub     *watchHub
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
		hub:     newWatchHub(),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.hub.close()
	return s.driver.Close()
}

func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	conversation, err := s.driver.CreateConversation(ctx, create)
	if err != nil {
		return nil, err
	}
	s.notifyConversations(ctx, conversation.UserID)
	return conversation, nil
}

// GetConversation returns the conversation with the given ID, or nil when
// it does not exist.
func (s *Store) GetConversation(ctx context.Context, id int32) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, &FindConversation{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	conversation, err := s.driver.UpdateConversation(ctx, update)
	if err != nil {
		return nil, err
	}
	s.notifyConversations(ctx, conversation.UserID)
	return conversation, nil
}

// DeleteConversation removes the conversation and all child messages
// atomically, then notifies subscribers of both feeds.
func (s *Store) DeleteConversation(ctx context.Context, delete *DeleteConversation) error {
	conversation, err := s.GetConversation(ctx, delete.ID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return nil
	}
	if err := s.driver.DeleteConversation(ctx, delete); err != nil {
		return err
	}
	s.notifyMessages(ctx, delete.ID)
	s.notifyConversations(ctx, conversation.UserID)
	return nil
}

// UpsertMessage inserts the message or, when a row with the same ID
// already exists, replaces its mutable fields.
func (s *Store) UpsertMessage(ctx context.Context, upsert *Message) (*Message, error) {
	message, err := s.driver.UpsertMessage(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.notifyMessages(ctx, message.ConversationID)
	return message, nil
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}
