package store

import "context"

// Driver is an interface for store database drivers.
type Driver interface {
	Migrate(ctx context.Context) error
	Close() error

	// GetSchemaVersion returns the recorded schema version, or "" when the
	// database is fresh.
	GetSchemaVersion(ctx context.Context) (string, error)
	UpsertSchemaVersion(ctx context.Context, version string) error

	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	// DeleteConversation removes the conversation and all of its messages in
	// a single transaction. Partial failure must leave the pre-delete state
	// fully intact.
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error

	UpsertMessage(ctx context.Context, upsert *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
}
