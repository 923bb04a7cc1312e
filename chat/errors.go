package chat

import "errors"

var (
	// ErrNotAuthenticated is returned when an operation requires a user
	// and the session has none.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrTurnInProgress is returned when a send is attempted while a turn
	// is already streaming for the same conversation.
	ErrTurnInProgress = errors.New("a turn is already in progress for this conversation")

	// ErrNoActiveConversation is returned when a send is attempted before
	// a conversation has been created or loaded into the session.
	ErrNoActiveConversation = errors.New("session has no active conversation")

	// ErrNotFound is returned when the referenced conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrPermissionDenied is returned when a user operates on a
	// conversation they do not own.
	ErrPermissionDenied = errors.New("permission denied")
)
