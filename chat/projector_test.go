package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenjin/chatd/store"
)

func TestProjectionPatchOrder(t *testing.T) {
	p := NewProjection()

	p.Apply(&store.Message{ID: "u1", Role: store.RoleUser, Content: "question"})
	p.Apply(&store.Message{ID: "a1", Role: store.RoleAssistant, Content: "", Streaming: true})
	p.Apply(&store.Message{ID: "a1", Role: store.RoleAssistant, Content: "partial", Streaming: true})
	p.Apply(&store.Message{ID: "a1", Role: store.RoleAssistant, Content: "partial answer", Streaming: true})

	messages := p.Messages()
	require.Len(t, messages, 2)
	// Growing snapshots replace in place, keeping the first-seen position.
	assert.Equal(t, "u1", messages[0].ID)
	assert.Equal(t, "a1", messages[1].ID)
	assert.Equal(t, "partial answer", messages[1].Content)
	assert.True(t, p.Streaming())
}

func TestProjectionApplyIdempotent(t *testing.T) {
	p := NewProjection()
	message := &store.Message{ID: "u1", Role: store.RoleUser, Content: "question"}

	p.Apply(message)
	before := p.Messages()
	p.Apply(message)
	after := p.Messages()

	assert.Equal(t, before, after)
}

func TestProjectionStreamingLifecycle(t *testing.T) {
	p := NewProjection()
	assert.False(t, p.Streaming())

	p.Apply(&store.Message{ID: "a1", Role: store.RoleAssistant, Streaming: true})
	assert.True(t, p.Streaming())

	p.Apply(&store.Message{ID: "a1", Role: store.RoleAssistant, Content: "done", Streaming: false})
	assert.False(t, p.Streaming())
}

func TestProjectionFeedSuppressesStreamingMessage(t *testing.T) {
	p := NewProjection()
	p.Apply(&store.Message{ID: "u1", Role: store.RoleUser, Content: "question"})
	p.Apply(&store.Message{ID: "a1", Role: store.RoleAssistant, Content: "partial", Streaming: true})

	// A persisted feed snapshot arrives while a1 is still streaming
	// locally; its stale copy of a1 must not clobber the live content.
	p.ApplyFeed([]*store.Message{
		{ID: "u1", Role: store.RoleUser, Content: "question"},
		{ID: "a1", Role: store.RoleAssistant, Content: "", Status: store.MessageStatusSending},
		{ID: "x1", Role: store.RoleUser, Content: "from another device"},
	})

	messages := p.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "partial", messages[1].Content)
	assert.True(t, messages[1].Streaming)
	assert.Equal(t, "from another device", messages[2].Content)
}

func TestProjectionFeedConvergesAfterStream(t *testing.T) {
	p := NewProjection()
	p.Apply(&store.Message{ID: "a1", Role: store.RoleAssistant, Content: "partial", Streaming: true})
	p.Apply(&store.Message{ID: "a1", Role: store.RoleAssistant, Content: "final", Status: store.MessageStatusSent})

	// With streaming over, feed snapshots patch the message again.
	p.ApplyFeed([]*store.Message{
		{ID: "a1", Role: store.RoleAssistant, Content: "final", Status: store.MessageStatusSent},
	})

	messages := p.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "final", messages[0].Content)
	assert.Equal(t, store.MessageStatusSent, messages[0].Status)
}

func TestProjectionErrorLifecycle(t *testing.T) {
	p := NewProjection()
	failure := errors.New("stream broke")

	p.Fail(failure)
	assert.Equal(t, failure, p.Err())

	// A new user message marks the start of a fresh attempt.
	p.Apply(&store.Message{ID: "u2", Role: store.RoleUser, Content: "retry"})
	assert.NoError(t, p.Err())

	p.Fail(failure)
	p.Dismiss()
	assert.NoError(t, p.Err())
}

func TestProjectionReset(t *testing.T) {
	p := NewProjection()
	p.Apply(&store.Message{ID: "a1", Role: store.RoleAssistant, Streaming: true})
	p.Fail(errors.New("old"))

	conversation := &store.Conversation{ID: 7, UID: "abc", Title: "Trip planning"}
	p.Reset(conversation)

	assert.Empty(t, p.Messages())
	assert.False(t, p.Streaming())
	assert.NoError(t, p.Err())
	got := p.Conversation()
	require.NotNil(t, got)
	assert.EqualValues(t, 7, got.ID)

	// The projection holds its own copy.
	conversation.Title = "changed"
	assert.Equal(t, "Trip planning", p.Conversation().Title)

	p.Reset(nil)
	assert.Nil(t, p.Conversation())
}

func TestProjectionMessagesAreClones(t *testing.T) {
	p := NewProjection()
	p.Apply(&store.Message{ID: "u1", Role: store.RoleUser, Content: "question"})

	messages := p.Messages()
	messages[0].Content = "mutated"

	assert.Equal(t, "question", p.Messages()[0].Content)
}
