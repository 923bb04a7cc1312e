package store

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	MessageStatusSending MessageStatus = "sending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusError   MessageStatus = "error"
)

// Message is one entry in a conversation. The ID is client-generated and
// stable across updates; UpsertMessage replaces the stored row in place.
//
// Streaming is view state only and is never persisted: a message read back
// from the store always has Streaming=false. Only the assistant message
// currently receiving deltas carries Streaming=true, and only in memory.
type Message struct {
	ID             string
	ConversationID int32
	Role           Role
	Content        string
	Attachments    []string
	Status         MessageStatus
	Streaming      bool
	CreatedTs      int64
}

// Clone returns a deep copy. Emitted snapshots are clones so that later
// delta applications cannot race with a consumer holding an earlier one.
func (m *Message) Clone() *Message {
	clone := *m
	if m.Attachments != nil {
		clone.Attachments = append([]string(nil), m.Attachments...)
	}
	return &clone
}

type FindMessage struct {
	ID             *string
	ConversationID *int32
}
