package store

import (
	"context"
	"log/slog"
	"sync"
)

// watchHub tracks live subscriptions keyed by conversation (message feeds)
// and by user (conversation list feeds). Every relevant write re-reads the
// affected set and pushes a fresh full snapshot to each subscriber.
//
// Subscribers are never blocked on: each subscription channel is buffered
// with capacity one and a pending snapshot is replaced by a newer one, so a
// slow consumer only ever misses intermediate states, never the latest.
type watchHub struct {
	mu               sync.Mutex
	messageSubs      map[int32]map[*messageSub]struct{}
	conversationSubs map[string]map[*conversationSub]struct{}
	closed           bool
}

type messageSub struct {
	ch chan []*Message
}

type conversationSub struct {
	ch chan []*Conversation
}

func newWatchHub() *watchHub {
	return &watchHub{
		messageSubs:      make(map[int32]map[*messageSub]struct{}),
		conversationSubs: make(map[string]map[*conversationSub]struct{}),
	}
}

func (h *watchHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, subs := range h.messageSubs {
		for sub := range subs {
			close(sub.ch)
		}
	}
	for _, subs := range h.conversationSubs {
		for sub := range subs {
			close(sub.ch)
		}
	}
	h.messageSubs = make(map[int32]map[*messageSub]struct{})
	h.conversationSubs = make(map[string]map[*conversationSub]struct{})
}

// WatchMessages returns a live feed of the full, creation-ordered message
// list for the conversation. The current snapshot is replayed once
// immediately, then a new snapshot follows each write. Cancelling ctx
// stops emissions and closes the channel.
func (s *Store) WatchMessages(ctx context.Context, conversationID int32) (<-chan []*Message, error) {
	snapshot, err := s.driver.ListMessages(ctx, &FindMessage{ConversationID: &conversationID})
	if err != nil {
		return nil, err
	}

	sub := &messageSub{ch: make(chan []*Message, 1)}
	s.hub.mu.Lock()
	if s.hub.closed {
		s.hub.mu.Unlock()
		close(sub.ch)
		return sub.ch, nil
	}
	subs, ok := s.hub.messageSubs[conversationID]
	if !ok {
		subs = make(map[*messageSub]struct{})
		s.hub.messageSubs[conversationID] = subs
	}
	subs[sub] = struct{}{}
	sub.push(snapshot)
	s.hub.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if s.hub.closed {
			return
		}
		if subs, ok := s.hub.messageSubs[conversationID]; ok {
			if _, registered := subs[sub]; registered {
				delete(subs, sub)
				close(sub.ch)
				if len(subs) == 0 {
					delete(s.hub.messageSubs, conversationID)
				}
			}
		}
	}()

	return sub.ch, nil
}

// WatchConversations returns a live feed of the user's conversations
// ordered by updated_ts descending, with the same replay-once-then-live
// semantics as WatchMessages.
func (s *Store) WatchConversations(ctx context.Context, userID string) (<-chan []*Conversation, error) {
	snapshot, err := s.driver.ListConversations(ctx, &FindConversation{UserID: &userID})
	if err != nil {
		return nil, err
	}

	sub := &conversationSub{ch: make(chan []*Conversation, 1)}
	s.hub.mu.Lock()
	if s.hub.closed {
		s.hub.mu.Unlock()
		close(sub.ch)
		return sub.ch, nil
	}
	subs, ok := s.hub.conversationSubs[userID]
	if !ok {
		subs = make(map[*conversationSub]struct{})
		s.hub.conversationSubs[userID] = subs
	}
	subs[sub] = struct{}{}
	sub.push(snapshot)
	s.hub.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if s.hub.closed {
			return
		}
		if subs, ok := s.hub.conversationSubs[userID]; ok {
			if _, registered := subs[sub]; registered {
				delete(subs, sub)
				close(sub.ch)
				if len(subs) == 0 {
					delete(s.hub.conversationSubs, userID)
				}
			}
		}
	}()

	return sub.ch, nil
}

func (s *Store) notifyMessages(ctx context.Context, conversationID int32) {
	s.hub.mu.Lock()
	hasSubs := len(s.hub.messageSubs[conversationID]) > 0
	s.hub.mu.Unlock()
	if !hasSubs {
		return
	}

	snapshot, err := s.driver.ListMessages(ctx, &FindMessage{ConversationID: &conversationID})
	if err != nil {
		slog.Warn("watch: failed to read message snapshot",
			"conversation_id", conversationID,
			"error", err,
		)
		return
	}

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	for sub := range s.hub.messageSubs[conversationID] {
		sub.push(snapshot)
	}
}

func (s *Store) notifyConversations(ctx context.Context, userID string) {
	s.hub.mu.Lock()
	hasSubs := len(s.hub.conversationSubs[userID]) > 0
	s.hub.mu.Unlock()
	if !hasSubs {
		return
	}

	snapshot, err := s.driver.ListConversations(ctx, &FindConversation{UserID: &userID})
	if err != nil {
		slog.Warn("watch: failed to read conversation snapshot",
			"user_id", userID,
			"error", err,
		)
		return
	}

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	for sub := range s.hub.conversationSubs[userID] {
		sub.push(snapshot)
	}
}

// push delivers the snapshot without blocking: a pending unread snapshot
// is dropped in favor of the newer one.
func (s *messageSub) push(snapshot []*Message) {
	for {
		select {
		case s.ch <- snapshot:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

func (s *conversationSub) push(snapshot []*Conversation) {
	for {
		select {
		case s.ch <- snapshot:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}
