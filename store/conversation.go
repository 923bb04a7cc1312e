package store

// PlaceholderTitle is the default title a conversation carries until the
// first user message rewrites it.
const PlaceholderTitle = "New chat"

type Conversation struct {
	UID          string
	UserID       string
	Title        string
	CreatedTs    int64
	UpdatedTs    int64
	ID           int32
	MessageCount int32
}

// HasPlaceholderTitle reports whether the conversation title has not yet
// been rewritten by a first user message.
func (c *Conversation) HasPlaceholderTitle() bool {
	return c.Title == PlaceholderTitle
}

type FindConversation struct {
	ID     *int32
	UID    *string
	UserID *string
}

type UpdateConversation struct {
	Title        *string
	MessageCount *int32
	UpdatedTs    *int64
	ID           int32
}

type DeleteConversation struct {
	ID int32
}
