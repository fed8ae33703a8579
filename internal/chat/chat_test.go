package chat_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"graphsync/internal/chat"
	"graphsync/internal/core"
	"graphsync/internal/counter"
	"graphsync/internal/memstore"
	"graphsync/internal/relation"

	"github.com/stretchr/testify/require"
)

func newService(store core.DocumentStore) *chat.Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &chat.Service{
		Logger:   logger,
		Store:    store,
		Relation: &relation.Writer{Logger: logger, Store: store},
		Counter:  &counter.Maintainer{Logger: logger, Store: store},
	}
}

func readEntry(t *testing.T, store core.DocumentStore, owner, other string) core.ChatListEntry {
	t.Helper()

	raw, err := store.Read(context.Background(), core.ChatListPath(owner, other))
	require.NoError(t, err)
	entry, err := core.Decode[core.ChatListEntry](raw)
	require.NoError(t, err)
	return entry
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()
	svc := newService(store)

	pushID, err := svc.SendMessage(ctx, "alice", "bob", "hello", chat.MsgTypeText)
	require.NoError(t, err)
	require.NotEmpty(t, pushID)

	entryA := readEntry(t, store, "alice", "bob")
	entryB := readEntry(t, store, "bob", "alice")

	// Both copies agree on the room and carry the summary.
	require.Equal(t, entryA.RoomID, entryB.RoomID)
	require.Equal(t, "hello", entryA.LastMsg)
	require.Equal(t, "hello", entryB.LastMsg)

	// The sender's copy never counts its own message.
	require.Equal(t, 0, entryA.UnreadCount)
	require.Equal(t, 1, entryB.UnreadCount)

	raw, err := store.Read(ctx, core.MessagePath(entryA.RoomID, pushID))
	require.NoError(t, err)
	msg, err := core.Decode[core.Message](raw)
	require.NoError(t, err)
	require.Equal(t, "alice", msg.From)
	require.Equal(t, "bob", msg.To)
	require.Equal(t, "hello", msg.Message)
	require.Equal(t, chat.MsgTypeText, msg.MsgType)
	require.False(t, msg.SendTime.IsZero())
}

func TestSendMessageAccumulatesUnread(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()
	svc := newService(store)

	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.SendMessage(ctx, "alice", "bob", text, "")
		require.NoError(t, err)
	}

	entry := readEntry(t, store, "bob", "alice")
	require.Equal(t, 3, entry.UnreadCount)
	require.Equal(t, "three", entry.LastMsg)

	// Messages are immutable and all retained.
	snap, err := core.ReadTree(ctx, store, core.JoinPath("messages", entry.RoomID))
	require.NoError(t, err)
	require.Equal(t, 3, snap.Len())
}

func TestSendMessageActiveRecipient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()
	svc := newService(store)

	require.NoError(t, svc.Activate(ctx, "bob", "alice"))

	_, err := svc.SendMessage(ctx, "alice", "bob", "hi", "")
	require.NoError(t, err)

	// An active viewer reads the message as it lands, nothing to count.
	require.Equal(t, 0, readEntry(t, store, "bob", "alice").UnreadCount)
}

func TestActivateClearsUnread(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()
	svc := newService(store)

	_, err := svc.SendMessage(ctx, "alice", "bob", "hi", "")
	require.NoError(t, err)
	require.Equal(t, 1, readEntry(t, store, "bob", "alice").UnreadCount)

	require.NoError(t, svc.Activate(ctx, "bob", "alice"))

	entry := readEntry(t, store, "bob", "alice")
	require.Equal(t, 0, entry.UnreadCount)
	require.True(t, entry.UserActive)

	// After blur, counting resumes.
	require.NoError(t, svc.Deactivate(ctx, "bob", "alice"))
	_, err = svc.SendMessage(ctx, "alice", "bob", "again", "")
	require.NoError(t, err)
	require.Equal(t, 1, readEntry(t, store, "bob", "alice").UnreadCount)
}

func TestSendMessageDefaultsMsgType(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()
	svc := newService(store)

	pushID, err := svc.SendMessage(ctx, "alice", "bob", "hi", "")
	require.NoError(t, err)

	roomID := readEntry(t, store, "alice", "bob").RoomID
	raw, err := store.Read(ctx, core.MessagePath(roomID, pushID))
	require.NoError(t, err)
	msg, err := core.Decode[core.Message](raw)
	require.NoError(t, err)
	require.Equal(t, chat.MsgTypeText, msg.MsgType)
}

func TestSendMessageSelf(t *testing.T) {
	t.Parallel()

	svc := newService(memstore.New())

	_, err := svc.SendMessage(context.Background(), "alice", "alice", "hi", "")
	require.ErrorIs(t, err, relation.ErrSelfRelation)
}

func TestSendMessageFollowUpFailureKeepsMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()
	svc := newService(store)

	// The thread exists, then summary updates start failing.
	_, err := svc.SendMessage(ctx, "alice", "bob", "first", "")
	require.NoError(t, err)
	store.FailWrites("chatlist/alice/bob")

	pushID, err := svc.SendMessage(ctx, "alice", "bob", "second", "")
	require.Error(t, err)
	require.NotEmpty(t, pushID, "the message write already landed")

	roomID := readEntry(t, store, "bob", "alice").RoomID
	_, err = store.Read(ctx, core.MessagePath(roomID, pushID))
	require.NoError(t, err)
}
