package chat

import (
	"sync"

	"github.com/wenjin/chatd/store"
)

// User is the read-only identity record supplied by the external identity
// provider. Only ID is consulted by the orchestrator.
type User struct {
	ID          string
	Email       string
	DisplayName string
	AvatarURL   string
}

// Session is the explicit per-client session state passed to every
// orchestrator call. It owns nothing ambient: the active conversation and
// the id of the assistant message currently being streamed are its whole
// contents.
type Session struct {
	mu                 sync.Mutex
	user               User
	conversation       *store.Conversation
	streamingMessageID string
}

// NewSession creates session state for the given user. An empty user ID
// yields a session that fails every authenticated operation.
func NewSession(user User) *Session {
	return &Session{user: user}
}

func (s *Session) User() User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.ID
}

// Conversation returns the active conversation, or nil before the first
// create/load.
func (s *Session) Conversation() *store.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversation == nil {
		return nil
	}
	clone := *s.conversation
	return &clone
}

// ActiveConversationID returns the active conversation id, or zero.
func (s *Session) ActiveConversationID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversation == nil {
		return 0
	}
	return s.conversation.ID
}

// SetConversation switches the session to the given conversation (or to
// none). An in-flight turn for a previous conversation discards its result
// once it observes the switch.
func (s *Session) SetConversation(conversation *store.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversation == nil {
		s.conversation = nil
		return
	}
	clone := *conversation
	s.conversation = &clone
}

// StreamingMessageID returns the id of the assistant message currently
// receiving deltas, or "" when no turn is streaming.
func (s *Session) StreamingMessageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamingMessageID
}

func (s *Session) beginStreaming(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamingMessageID = messageID
}

func (s *Session) endStreaming(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamingMessageID == messageID {
		s.streamingMessageID = ""
	}
}

// rewriteTitle updates the in-memory title for the active conversation so
// the first-message rewrite happens at most once even while the persisted
// update is still in flight.
func (s *Session) rewriteTitle(conversationID int32, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversation != nil && s.conversation.ID == conversationID {
		s.conversation.Title = title
	}
}

// applyConversation refreshes the session copy of the conversation when a
// store write returned a newer state, unless the session has moved on.
func (s *Session) applyConversation(conversation *store.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversation == nil || conversation == nil || s.conversation.ID != conversation.ID {
		return
	}
	clone := *conversation
	// A store read taken before an in-flight title write lands must not
	// resurrect the placeholder over a locally rewritten title.
	if clone.HasPlaceholderTitle() && !s.conversation.HasPlaceholderTitle() {
		clone.Title = s.conversation.Title
	}
	s.conversation = &clone
}
