// ABOUTME: Tests for the SQLite store
// ABOUTME: Exercises conversation lifecycle, transactional appends, receipts and repair

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestConversation(id, userID, supportID string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        id,
		UserID:    userID,
		SupportID: supportID,
		Status:    StatusOpen,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestMessage(id, convID, senderID, content string) *Message {
	now := time.Now().UTC()
	return &Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       senderID,
		Type:           MessageTypeText,
		Content:        content,
		DeliveredAt:    now,
		CreatedAt:      now,
	}
}

func TestCreateAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := newTestConversation("conv-1", "user-1", "support-1")
	require.NoError(t, s.CreateConversation(ctx, conv))

	got, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "support-1", got.SupportID)
	assert.Equal(t, StatusOpen, got.Status)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.LastMessageID)
	assert.Zero(t, got.UnreadUser)
	assert.Zero(t, got.UnreadSupport)
}

func TestGetConversationNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConversation(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateActivePairRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))

	err := s.CreateConversation(ctx, newTestConversation("conv-2", "user-1", "support-1"))
	assert.ErrorIs(t, err, ErrDuplicateConversation)

	// A different pair is fine
	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-3", "user-1", "support-2")))
}

func TestSoftDeleteFreesThePair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))
	require.NoError(t, s.SoftDeleteConversation(ctx, "conv-1"))

	// The partial index only covers active rows, so the pair can reopen
	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-2", "user-1", "support-1")))

	got, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// Deleting twice is not found
	assert.ErrorIs(t, s.SoftDeleteConversation(ctx, "conv-1"), ErrNotFound)
}

func TestGetActiveConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetActiveConversation(ctx, "user-1", "support-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))

	got, err := s.GetActiveConversation(ctx, "user-1", "support-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", got.ID)

	require.NoError(t, s.SoftDeleteConversation(ctx, "conv-1"))
	_, err = s.GetActiveConversation(ctx, "user-1", "support-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendMessageUpdatesCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))

	// User sends: support's counter climbs, status moves to waiting
	updated, err := s.AppendMessage(ctx, newTestMessage("msg-1", "conv-1", "user-1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, updated.UnreadSupport)
	assert.Equal(t, 0, updated.UnreadUser)
	assert.Equal(t, StatusWaiting, updated.Status)
	require.NotNil(t, updated.LastMessageID)
	assert.Equal(t, "msg-1", *updated.LastMessageID)

	// Support replies: user's counter climbs, status untouched
	updated, err = s.AppendMessage(ctx, newTestMessage("msg-2", "conv-1", "support-1", "hi there"))
	require.NoError(t, err)
	assert.Equal(t, 1, updated.UnreadSupport)
	assert.Equal(t, 1, updated.UnreadUser)
	assert.Equal(t, StatusWaiting, updated.Status)
	assert.Equal(t, "msg-2", *updated.LastMessageID)
}

func TestAppendMessageConcurrentSends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))

	// Both participants send at once; the relative increments must not
	// lose a single update.
	const perSender = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*perSender)
	for i := 0; i < perSender; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_, err := s.AppendMessage(ctx, newTestMessage(fmt.Sprintf("user-msg-%d", n), "conv-1", "user-1", "ping"))
			errs <- err
		}(i)
		go func(n int) {
			defer wg.Done()
			_, err := s.AppendMessage(ctx, newTestMessage(fmt.Sprintf("support-msg-%d", n), "conv-1", "support-1", "pong"))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, perSender, conv.UnreadSupport)
	assert.Equal(t, perSender, conv.UnreadUser)

	msgs, err := s.ListMessages(ctx, "conv-1", 1, 2*perSender)
	require.NoError(t, err)
	assert.Len(t, msgs, 2*perSender)
}

func TestAppendMessageStatusPreserved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))
	require.NoError(t, s.UpdateConversationStatus(ctx, "conv-1", StatusResolved))

	// A user message never reopens a resolved conversation on its own
	updated, err := s.AppendMessage(ctx, newTestMessage("msg-1", "conv-1", "user-1", "still broken"))
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, updated.Status)
	assert.Equal(t, 1, updated.UnreadSupport)
}

func TestAppendMessageInactiveConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))
	require.NoError(t, s.SoftDeleteConversation(ctx, "conv-1"))

	_, err := s.AppendMessage(ctx, newTestMessage("msg-1", "conv-1", "user-1", "hello"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListMessagesPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))
	ids := []string{"msg-1", "msg-2", "msg-3", "msg-4", "msg-5"}
	base := time.Now().UTC()
	for i, id := range ids {
		msg := newTestMessage(id, "conv-1", "user-1", "m")
		msg.CreatedAt = base.Add(time.Duration(i) * time.Second)
		msg.DeliveredAt = msg.CreatedAt
		_, err := s.AppendMessage(ctx, msg)
		require.NoError(t, err)
	}

	// Page 1 is the newest two, returned oldest-first for display
	page1, err := s.ListMessages(ctx, "conv-1", 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "msg-4", page1[0].ID)
	assert.Equal(t, "msg-5", page1[1].ID)

	page3, err := s.ListMessages(ctx, "conv-1", 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "msg-1", page3[0].ID)

	empty, err := s.ListMessages(ctx, "conv-1", 4, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeleteMessageRepairsLastMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))
	base := time.Now().UTC()
	for i, id := range []string{"msg-1", "msg-2"} {
		msg := newTestMessage(id, "conv-1", "user-1", "m")
		msg.CreatedAt = base.Add(time.Duration(i) * time.Second)
		msg.DeliveredAt = msg.CreatedAt
		_, err := s.AppendMessage(ctx, msg)
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteMessage(ctx, "msg-2"))

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessageID)
	assert.Equal(t, "msg-1", *conv.LastMessageID)

	require.NoError(t, s.DeleteMessage(ctx, "msg-1"))
	conv, err = s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Nil(t, conv.LastMessageID)

	assert.ErrorIs(t, s.DeleteMessage(ctx, "msg-1"), ErrNotFound)
}

func TestMarkMessageRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))
	_, err := s.AppendMessage(ctx, newTestMessage("msg-1", "conv-1", "user-1", "hello"))
	require.NoError(t, err)

	readAt := time.Now().UTC()
	changed, err := s.MarkMessageRead(ctx, "msg-1", false, readAt)
	require.NoError(t, err)
	assert.True(t, changed)

	msg, err := s.GetMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, msg.IsRead)
	require.NotNil(t, msg.ReadAt)

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadSupport)

	// Second read is a no-op and must not decrement below zero
	changed, err = s.MarkMessageRead(ctx, "msg-1", false, readAt)
	require.NoError(t, err)
	assert.False(t, changed)

	conv, err = s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadSupport)
}

func TestMarkConversationRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))
	for _, id := range []string{"msg-1", "msg-2", "msg-3"} {
		_, err := s.AppendMessage(ctx, newTestMessage(id, "conv-1", "user-1", "hello"))
		require.NoError(t, err)
	}
	_, err := s.AppendMessage(ctx, newTestMessage("msg-4", "conv-1", "support-1", "hi"))
	require.NoError(t, err)

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 3, conv.UnreadSupport)
	assert.Equal(t, 1, conv.UnreadUser)

	// Support catches up: all of the user's messages flip, counter resets
	require.NoError(t, s.MarkConversationRead(ctx, "conv-1", "support-1", false, time.Now().UTC()))

	conv, err = s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadSupport)
	assert.Equal(t, 1, conv.UnreadUser)

	msgs, err := s.ListMessages(ctx, "conv-1", 1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for _, m := range msgs {
		if m.SenderID == "user-1" {
			assert.True(t, m.IsRead, "message %s should be read", m.ID)
		} else {
			assert.False(t, m.IsRead, "support's own message must stay unread")
		}
	}
}

func TestListConversationsViews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))
	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-2", "user-2", "support-1")))
	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-3", "user-1", "support-2")))
	require.NoError(t, s.SoftDeleteConversation(ctx, "conv-3"))

	byUser, err := s.ListConversations(ctx, ListConversationsParams{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "conv-1", byUser[0].ID)

	bySupport, err := s.ListConversations(ctx, ListConversationsParams{SupportID: "support-1"})
	require.NoError(t, err)
	assert.Len(t, bySupport, 2)

	// Admin view includes the soft-deleted row
	all, err := s.ListConversations(ctx, ListConversationsParams{All: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListConversationsStatusFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))
	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-2", "user-2", "support-1")))
	require.NoError(t, s.UpdateConversationStatus(ctx, "conv-2", StatusResolved))

	open, err := s.ListConversations(ctx, ListConversationsParams{SupportID: "support-1", Status: StatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "conv-1", open[0].ID)
}

func TestCountsBySupport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-1", "user-1", "support-1")))
	require.NoError(t, s.CreateConversation(ctx, newTestConversation("conv-2", "user-2", "support-1")))
	require.NoError(t, s.UpdateConversationStatus(ctx, "conv-2", StatusResolved))

	total, err := s.CountConversationsBySupport(ctx, "support-1")
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	active, err := s.CountActiveConversationsBySupport(ctx, "support-1")
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	none, err := s.CountConversationsBySupport(ctx, "support-9")
	require.NoError(t, err)
	assert.Zero(t, none)
}
