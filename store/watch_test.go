package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver is an in-memory Driver for store-level tests.
type fakeDriver struct {
	mu            sync.Mutex
	nextID        int32
	conversations map[int32]*Conversation
	messages      map[int32][]*Message

	deleteErr     error
	schemaVersion string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		nextID:        1,
		conversations: make(map[int32]*Conversation),
		messages:      make(map[int32][]*Message),
	}
}

func (d *fakeDriver) Migrate(context.Context) error { return nil }
func (d *fakeDriver) Close() error                  { return nil }

func (d *fakeDriver) GetSchemaVersion(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.schemaVersion, nil
}

func (d *fakeDriver) UpsertSchemaVersion(_ context.Context, version string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schemaVersion = version
	return nil
}

func (d *fakeDriver) CreateConversation(_ context.Context, create *Conversation) (*Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *create
	clone.ID = d.nextID
	d.nextID++
	d.conversations[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (d *fakeDriver) ListConversations(_ context.Context, find *FindConversation) ([]*Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var list []*Conversation
	for _, conversation := range d.conversations {
		if find.ID != nil && conversation.ID != *find.ID {
			continue
		}
		if find.UserID != nil && conversation.UserID != *find.UserID {
			continue
		}
		clone := *conversation
		list = append(list, &clone)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedTs > list[j].UpdatedTs })
	return list, nil
}

func (d *fakeDriver) UpdateConversation(_ context.Context, update *UpdateConversation) (*Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conversation, ok := d.conversations[update.ID]
	if !ok {
		return nil, errors.New("conversation not found")
	}
	if update.Title != nil {
		conversation.Title = *update.Title
	}
	if update.MessageCount != nil {
		conversation.MessageCount = *update.MessageCount
	}
	if update.UpdatedTs != nil {
		conversation.UpdatedTs = *update.UpdatedTs
	}
	clone := *conversation
	return &clone, nil
}

func (d *fakeDriver) DeleteConversation(_ context.Context, del *DeleteConversation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deleteErr != nil {
		// A failed delete leaves everything in place.
		return d.deleteErr
	}
	delete(d.conversations, del.ID)
	delete(d.messages, del.ID)
	return nil
}

func (d *fakeDriver) UpsertMessage(_ context.Context, upsert *Message) (*Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := upsert.Clone()
	clone.Streaming = false
	list := d.messages[clone.ConversationID]
	for i, existing := range list {
		if existing.ID == clone.ID {
			list[i] = clone
			return clone.Clone(), nil
		}
	}
	d.messages[clone.ConversationID] = append(list, clone)
	return clone.Clone(), nil
}

func (d *fakeDriver) ListMessages(_ context.Context, find *FindMessage) ([]*Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var list []*Message
	for _, messages := range d.messages {
		for _, message := range messages {
			if find.ID != nil && message.ID != *find.ID {
				continue
			}
			if find.ConversationID != nil && message.ConversationID != *find.ConversationID {
				continue
			}
			list = append(list, message.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs < list[j].CreatedTs
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func newTestStore() (*Store, *fakeDriver) {
	driver := newFakeDriver()
	return New(driver, nil), driver
}

func recvSnapshot[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case snapshot, ok := <-ch:
		require.True(t, ok, "feed closed unexpectedly")
		return snapshot
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		panic("unreachable")
	}
}

func TestWatchMessagesReplaysThenFollows(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()

	conversation, err := st.CreateConversation(ctx, &Conversation{UID: "c1", UserID: "user-1"})
	require.NoError(t, err)
	_, err = st.UpsertMessage(ctx, &Message{ID: "m1", ConversationID: conversation.ID, Role: RoleUser, Content: "hello", Status: MessageStatusSent, CreatedTs: 1})
	require.NoError(t, err)

	feed, err := st.WatchMessages(ctx, conversation.ID)
	require.NoError(t, err)

	// The current state replays exactly once on subscribe.
	snapshot := recvSnapshot(t, feed)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "m1", snapshot[0].ID)

	// Each write pushes a fresh full snapshot.
	_, err = st.UpsertMessage(ctx, &Message{ID: "m2", ConversationID: conversation.ID, Role: RoleAssistant, Content: "hi", Status: MessageStatusSent, CreatedTs: 2})
	require.NoError(t, err)
	snapshot = recvSnapshot(t, feed)
	require.Len(t, snapshot, 2)
	assert.Equal(t, "m2", snapshot[1].ID)
}

func TestWatchMessagesCoalescesBursts(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()

	conversation, err := st.CreateConversation(ctx, &Conversation{UID: "c1", UserID: "user-1"})
	require.NoError(t, err)

	feed, err := st.WatchMessages(ctx, conversation.ID)
	require.NoError(t, err)

	// Burst of writes with no reader: intermediate snapshots are dropped
	// in favor of the latest.
	for i := int64(1); i <= 5; i++ {
		_, err := st.UpsertMessage(ctx, &Message{ID: string(rune('a' + i)), ConversationID: conversation.ID, Role: RoleUser, Status: MessageStatusSent, CreatedTs: i})
		require.NoError(t, err)
	}

	snapshot := recvSnapshot(t, feed)
	assert.Len(t, snapshot, 5)
}

func TestWatchMessagesCancelClosesFeed(t *testing.T) {
	st, _ := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())

	conversation, err := st.CreateConversation(ctx, &Conversation{UID: "c1", UserID: "user-1"})
	require.NoError(t, err)
	feed, err := st.WatchMessages(ctx, conversation.ID)
	require.NoError(t, err)
	recvSnapshot(t, feed)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-feed:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestWatchConversationsFollowsWrites(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()

	feed, err := st.WatchConversations(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, recvSnapshot(t, feed))

	first, err := st.CreateConversation(ctx, &Conversation{UID: "c1", UserID: "user-1", Title: PlaceholderTitle, UpdatedTs: 1})
	require.NoError(t, err)
	snapshot := recvSnapshot(t, feed)
	require.Len(t, snapshot, 1)

	// Another user's conversation does not reach this feed.
	_, err = st.CreateConversation(ctx, &Conversation{UID: "c2", UserID: "user-2", UpdatedTs: 2})
	require.NoError(t, err)

	title := "Trip planning"
	_, err = st.UpdateConversation(ctx, &UpdateConversation{ID: first.ID, Title: &title})
	require.NoError(t, err)
	snapshot = recvSnapshot(t, feed)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "Trip planning", snapshot[0].Title)

	require.NoError(t, st.DeleteConversation(ctx, &DeleteConversation{ID: first.ID}))
	assert.Empty(t, recvSnapshot(t, feed))
}

func TestDeleteConversationFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	st, driver := newTestStore()

	conversation, err := st.CreateConversation(ctx, &Conversation{UID: "c1", UserID: "user-1"})
	require.NoError(t, err)
	_, err = st.UpsertMessage(ctx, &Message{ID: "m1", ConversationID: conversation.ID, Role: RoleUser, Status: MessageStatusSent, CreatedTs: 1})
	require.NoError(t, err)

	driver.mu.Lock()
	driver.deleteErr = errors.New("constraint violation")
	driver.mu.Unlock()

	err = st.DeleteConversation(ctx, &DeleteConversation{ID: conversation.ID})
	require.Error(t, err)

	// Nothing was lost.
	kept, err := st.GetConversation(ctx, conversation.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	messages, err := st.ListMessages(ctx, &FindMessage{ConversationID: &conversation.ID})
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestDeleteConversationMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()
	assert.NoError(t, st.DeleteConversation(ctx, &DeleteConversation{ID: 404}))
}

func TestStoreCloseClosesFeeds(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()

	conversation, err := st.CreateConversation(ctx, &Conversation{UID: "c1", UserID: "user-1"})
	require.NoError(t, err)
	messageFeed, err := st.WatchMessages(ctx, conversation.ID)
	require.NoError(t, err)
	conversationFeed, err := st.WatchConversations(ctx, "user-1")
	require.NoError(t, err)
	recvSnapshot(t, messageFeed)
	recvSnapshot(t, conversationFeed)

	require.NoError(t, st.Close())

	_, ok := <-messageFeed
	assert.False(t, ok)
	_, ok = <-conversationFeed
	assert.False(t, ok)
}

func TestGetConversation(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()

	missing, err := st.GetConversation(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	created, err := st.CreateConversation(ctx, &Conversation{UID: "c1", UserID: "user-1", Title: PlaceholderTitle})
	require.NoError(t, err)
	found, err := st.GetConversation(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "c1", found.UID)
	assert.True(t, found.HasPlaceholderTitle())
}
