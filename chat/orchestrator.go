package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/wenjin/chatd/ai"
	"github.com/wenjin/chatd/store"
)

const defaultHistoryLimit = 20

// Store is the persistence surface the orchestrator depends on.
type Store interface {
	CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error)
	GetConversation(ctx context.Context, id int32) (*store.Conversation, error)
	ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error)
	UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error
	UpsertMessage(ctx context.Context, upsert *store.Message) (*store.Message, error)
	ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error)
	WatchMessages(ctx context.Context, conversationID int32) (<-chan []*store.Message, error)
	WatchConversations(ctx context.Context, userID string) (<-chan []*store.Conversation, error)
}

// Orchestrator drives one send-message -> stream-reply -> persist turn at a
// time per conversation, and exposes the live feeds it reconciles against.
type Orchestrator struct {
	store    Store
	provider ai.Provider

	turnMu sync.Mutex
	turns  map[int32]struct{}

	historyLimit int
}

// NewOrchestrator creates an orchestrator over the given store and
// generation provider.
func NewOrchestrator(st Store, provider ai.Provider) *Orchestrator {
	return &Orchestrator{
		store:        st,
		provider:     provider,
		turns:        make(map[int32]struct{}),
		historyLimit: defaultHistoryLimit,
	}
}

// CreateConversationIfAbsent returns the session's active conversation, or
// creates a fresh one when the session has none. seedTitle overrides the
// placeholder title; it does not count as the one-time first-message
// rewrite.
func (o *Orchestrator) CreateConversationIfAbsent(ctx context.Context, sess *Session, seedTitle string) (*store.Conversation, error) {
	if sess.UserID() == "" {
		return nil, ErrNotAuthenticated
	}
	if conversation := sess.Conversation(); conversation != nil {
		return conversation, nil
	}

	title := seedTitle
	if title == "" {
		title = store.PlaceholderTitle
	}
	now := time.Now().UnixMilli()
	conversation, err := o.store.CreateConversation(ctx, &store.Conversation{
		UID:       shortuuid.New(),
		UserID:    sess.UserID(),
		Title:     title,
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	sess.SetConversation(conversation)

	slog.Info("conversation created",
		"conversation_id", conversation.ID,
		"user_id", conversation.UserID,
	)
	return sess.Conversation(), nil
}

// SendMessage runs one turn for the session's active conversation. It
// returns a channel of message snapshots: the persisted user message, the
// assistant placeholder, one updated assistant snapshot per delta, and the
// final assistant message. The error channel carries at most one
// persistence failure; generation failures surface as an error-status
// assistant snapshot instead. Both channels close when the turn ends.
//
// At most one turn may be in flight per conversation; a concurrent call
// fails with ErrTurnInProgress.
func (o *Orchestrator) SendMessage(ctx context.Context, sess *Session, content string, attachments []string) (<-chan *store.Message, <-chan error, error) {
	if sess.UserID() == "" {
		return nil, nil, ErrNotAuthenticated
	}
	conversation := sess.Conversation()
	if conversation == nil {
		return nil, nil, ErrNoActiveConversation
	}
	if !o.beginTurn(conversation.ID) {
		return nil, nil, ErrTurnInProgress
	}

	snapshots := make(chan *store.Message, 16)
	errs := make(chan error, 1)
	go o.runTurn(ctx, sess, conversation, content, attachments, snapshots, errs)
	return snapshots, errs, nil
}

func (o *Orchestrator) beginTurn(conversationID int32) bool {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	if _, inFlight := o.turns[conversationID]; inFlight {
		return false
	}
	o.turns[conversationID] = struct{}{}
	return true
}

func (o *Orchestrator) endTurn(conversationID int32) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	delete(o.turns, conversationID)
}

func (o *Orchestrator) runTurn(ctx context.Context, sess *Session, conversation *store.Conversation, content string, attachments []string, snapshots chan<- *store.Message, errs chan<- error) {
	defer o.endTurn(conversation.ID)
	defer close(snapshots)
	defer close(errs)

	now := time.Now().UnixMilli()
	userMessage := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		Role:           store.RoleUser,
		Content:        content,
		Attachments:    attachments,
		Status:         store.MessageStatusSent,
		CreatedTs:      now,
	}
	if _, err := o.store.UpsertMessage(ctx, userMessage); err != nil {
		errs <- fmt.Errorf("persist user message: %w", err)
		return
	}
	snapshots <- userMessage.Clone()

	// One-time title rewrite on the first user message. The in-memory
	// title flips synchronously so a second send in the same session never
	// rewrites again. The persisted update runs alongside the stream so it
	// cannot delay the assistant placeholder, but the turn does not end
	// until it has landed: a follow-up request that loads the conversation
	// fresh must never see the placeholder and rewrite again.
	titleDone := make(chan struct{})
	if conversation.HasPlaceholderTitle() {
		title := DeriveTitle(content)
		sess.rewriteTitle(conversation.ID, title)
		go func() {
			defer close(titleDone)
			o.persistTitle(context.WithoutCancel(ctx), sess, conversation.ID, title)
		}()
	} else {
		close(titleDone)
	}
	defer func() { <-titleDone }()

	history := o.buildHistory(ctx, conversation.ID, userMessage.ID)

	// The placeholder goes out before any provider output so a pending
	// assistant bubble shows immediately.
	assistant := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		Role:           store.RoleAssistant,
		Content:        "",
		Status:         store.MessageStatusSending,
		Streaming:      true,
		CreatedTs:      now + 1, // orders after the user message on replay
	}
	sess.beginStreaming(assistant.ID)
	defer sess.endStreaming(assistant.ID)
	snapshots <- assistant.Clone()

	deltas, statsCh, errCh := o.provider.StreamResponse(ctx, content, history)
	deltaCount := 0
	for delta := range deltas {
		assistant.Content += delta
		deltaCount++
		snapshots <- assistant.Clone()
	}
	genErr := <-errCh
	if stats, ok := <-statsCh; ok {
		slog.Info("turn generation finished",
			"conversation_id", conversation.ID,
			"deltas", deltaCount,
			"total_tokens", stats.TotalTokens,
			"duration_ms", stats.TotalDurationMs,
		)
	}

	assistant.Streaming = false
	if genErr != nil {
		slog.Warn("turn generation failed",
			"conversation_id", conversation.ID,
			"deltas", deltaCount,
			"error", genErr,
		)
		assistant.Status = store.MessageStatusError
		if assistant.Content == "" {
			assistant.Content = ai.ErrorSummary(genErr)
		}
	} else {
		assistant.Status = store.MessageStatusSent
	}

	// The session may have switched conversations while the stream ran;
	// in that case the result is discarded rather than written into a
	// conversation the user has left.
	if sess.ActiveConversationID() != conversation.ID {
		slog.Info("discarding turn result after conversation switch",
			"conversation_id", conversation.ID,
			"active_conversation_id", sess.ActiveConversationID(),
		)
		return
	}

	// Final persistence is detached from the request context so an
	// end-of-stream disconnect cannot lose the completed message.
	persistCtx := context.WithoutCancel(ctx)
	if _, err := o.store.UpsertMessage(persistCtx, assistant); err != nil {
		errs <- fmt.Errorf("persist assistant message: %w", err)
		return
	}
	snapshots <- assistant.Clone()

	if genErr == nil {
		// The conversation row is written title-first: the counter update
		// reads back the full row, so it must not race the title persist.
		<-titleDone
		o.completeExchange(persistCtx, sess, conversation)
	}
}

// completeExchange bumps the conversation's updated_ts and message count
// by the one user + one assistant message of the finished turn.
func (o *Orchestrator) completeExchange(ctx context.Context, sess *Session, conversation *store.Conversation) {
	messageCount := conversation.MessageCount + 2
	updatedTs := time.Now().UnixMilli()
	updated, err := o.store.UpdateConversation(ctx, &store.UpdateConversation{
		ID:           conversation.ID,
		MessageCount: &messageCount,
		UpdatedTs:    &updatedTs,
	})
	if err != nil {
		slog.Warn("failed to update conversation after exchange",
			"conversation_id", conversation.ID,
			"error", err,
		)
		return
	}
	sess.applyConversation(updated)
}

func (o *Orchestrator) persistTitle(ctx context.Context, sess *Session, conversationID int32, title string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	updated, err := o.store.UpdateConversation(ctx, &store.UpdateConversation{
		ID:    conversationID,
		Title: &title,
	})
	if err != nil {
		slog.Warn("failed to persist conversation title",
			"conversation_id", conversationID,
			"error", err,
		)
		return
	}
	sess.applyConversation(updated)
}

// buildHistory loads the persisted conversation context for the prompt,
// excluding the just-persisted user message. A read failure is non-fatal:
// the turn proceeds without history.
func (o *Orchestrator) buildHistory(ctx context.Context, conversationID int32, currentMessageID string) []ai.Message {
	messages, err := o.store.ListMessages(ctx, &store.FindMessage{ConversationID: &conversationID})
	if err != nil {
		slog.Warn("failed to build history, proceeding without",
			"conversation_id", conversationID,
			"error", err,
		)
		return nil
	}

	history := make([]ai.Message, 0, len(messages))
	for _, m := range messages {
		if m.ID == currentMessageID || m.Status == store.MessageStatusError {
			continue
		}
		history = append(history, ai.Message{Role: string(m.Role), Content: m.Content})
	}
	if len(history) > o.historyLimit {
		history = history[len(history)-o.historyLimit:]
	}
	return history
}

// WatchMessages returns the live, creation-ordered persisted message feed
// for the conversation. Replay-once-then-live; infinite until ctx is
// cancelled. While a local turn streams, the feed snapshots must be merged
// through a Projection, whose guard keeps them from overwriting the
// in-memory streaming message.
func (o *Orchestrator) WatchMessages(ctx context.Context, sess *Session, conversationID int32) (<-chan []*store.Message, error) {
	if sess.UserID() == "" {
		return nil, ErrNotAuthenticated
	}
	conversation, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conversation == nil {
		return nil, ErrNotFound
	}
	if conversation.UserID != sess.UserID() {
		return nil, ErrPermissionDenied
	}
	return o.store.WatchMessages(ctx, conversationID)
}

// WatchConversations returns the live conversation list feed for the
// session's user, ordered by updated_ts descending.
func (o *Orchestrator) WatchConversations(ctx context.Context, sess *Session) (<-chan []*store.Conversation, error) {
	if sess.UserID() == "" {
		return nil, ErrNotAuthenticated
	}
	return o.store.WatchConversations(ctx, sess.UserID())
}

// LoadConversation switches the session to an existing conversation.
func (o *Orchestrator) LoadConversation(ctx context.Context, sess *Session, conversationID int32) (*store.Conversation, error) {
	if sess.UserID() == "" {
		return nil, ErrNotAuthenticated
	}
	conversation, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conversation == nil {
		return nil, ErrNotFound
	}
	if conversation.UserID != sess.UserID() {
		return nil, ErrPermissionDenied
	}
	sess.SetConversation(conversation)
	return sess.Conversation(), nil
}

// ListConversations returns the user's conversations ordered by
// updated_ts descending.
func (o *Orchestrator) ListConversations(ctx context.Context, sess *Session) ([]*store.Conversation, error) {
	if sess.UserID() == "" {
		return nil, ErrNotAuthenticated
	}
	userID := sess.UserID()
	return o.store.ListConversations(ctx, &store.FindConversation{UserID: &userID})
}

// ListMessages returns the persisted messages of a conversation in
// creation order.
func (o *Orchestrator) ListMessages(ctx context.Context, sess *Session, conversationID int32) ([]*store.Message, error) {
	if sess.UserID() == "" {
		return nil, ErrNotAuthenticated
	}
	conversation, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conversation == nil {
		return nil, ErrNotFound
	}
	if conversation.UserID != sess.UserID() {
		return nil, ErrPermissionDenied
	}
	return o.store.ListMessages(ctx, &store.FindMessage{ConversationID: &conversationID})
}

// DeleteConversation removes the conversation and all child messages
// atomically after an ownership check. The session drops the conversation
// if it was active.
func (o *Orchestrator) DeleteConversation(ctx context.Context, sess *Session, conversationID int32) error {
	if sess.UserID() == "" {
		return ErrNotAuthenticated
	}
	conversation, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if conversation == nil {
		return ErrNotFound
	}
	if conversation.UserID != sess.UserID() {
		return ErrPermissionDenied
	}
	if err := o.store.DeleteConversation(ctx, &store.DeleteConversation{ID: conversationID}); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if sess.ActiveConversationID() == conversationID {
		sess.SetConversation(nil)
	}
	slog.Info("conversation deleted",
		"conversation_id", conversationID,
		"user_id", sess.UserID(),
	)
	return nil
}
