package chat

import (
	"sync"

	"github.com/wenjin/chatd/store"
)

// Projection folds orchestrator emissions and live-feed snapshots into a
// single display-ready state: a creation-ordered message list, a streaming
// flag, a dismissible error, and the active conversation.
//
// Two event sources feed it. Apply takes local turn snapshots; ApplyFeed
// takes persisted feed snapshots. While a turn streams, ApplyFeed is
// guarded so that the not-yet-persisted streaming message is never
// overwritten by its last-persisted (absent) form. Once streaming ends the
// persisted feed and the local state converge on their own.
type Projection struct {
	mu           sync.Mutex
	conversation *store.Conversation
	order        []string
	byID         map[string]*store.Message
	streamingID  string
	err          error
}

func NewProjection() *Projection {
	return &Projection{byID: make(map[string]*store.Message)}
}

// Reset replaces the whole state, used on screen entry and when switching
// conversations.
func (p *Projection) Reset(conversation *store.Conversation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conversation = nil
	if conversation != nil {
		clone := *conversation
		p.conversation = &clone
	}
	p.order = nil
	p.byID = make(map[string]*store.Message)
	p.streamingID = ""
	p.err = nil
}

// Apply patches one local message snapshot into the list: replaced in
// place when the identity is already present (keeping its first-seen
// position), appended otherwise. Applying the same snapshot twice is a
// no-op beyond the first. A fresh user message also clears the current
// error, marking the start of a new successful operation.
func (p *Projection) Apply(message *store.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patch(message)

	if message.Streaming {
		p.streamingID = message.ID
	} else if p.streamingID == message.ID {
		p.streamingID = ""
	}
	if message.Role == store.RoleUser {
		p.err = nil
	}
}

// ApplyFeed merges a persisted full snapshot through the same patch rule,
// skipping the message currently streaming locally.
func (p *Projection) ApplyFeed(messages []*store.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, message := range messages {
		if message.ID == p.streamingID {
			continue
		}
		p.patch(message)
	}
}

func (p *Projection) patch(message *store.Message) {
	clone := message.Clone()
	if _, ok := p.byID[clone.ID]; !ok {
		p.order = append(p.order, clone.ID)
	}
	p.byID[clone.ID] = clone
}

// Messages returns the projected list in first-seen order.
func (p *Projection) Messages() []*store.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := make([]*store.Message, 0, len(p.order))
	for _, id := range p.order {
		list = append(list, p.byID[id].Clone())
	}
	return list
}

// Streaming reports whether an assistant message is currently receiving
// deltas.
func (p *Projection) Streaming() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamingID != ""
}

func (p *Projection) Conversation() *store.Conversation {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conversation == nil {
		return nil
	}
	clone := *p.conversation
	return &clone
}

// Fail records an upstream error as the single current error value.
func (p *Projection) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Dismiss clears the current error, mirroring explicit user dismissal.
func (p *Projection) Dismiss() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = nil
}

func (p *Projection) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
