// ABOUTME: Tests for the message pipeline: validation, sending, listing, deletion
// ABOUTME: Covers the tagged-union payload rules and the counter side effects of sends

package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PirateKingAkshit/agritech-support-gateway/internal/media"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/store"
)

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name     string
		msgType  store.MessageType
		content  string
		mediaRef string
		wantErr  bool
	}{
		{"text with content", store.MessageTypeText, "hello", "", false},
		{"text without content", store.MessageTypeText, "", "", true},
		{"text with media ref", store.MessageTypeText, "hello", "ref-1", true},
		{"image with ref", store.MessageTypeImage, "", "ref-1", false},
		{"image without ref", store.MessageTypeImage, "", "", true},
		{"image with content", store.MessageTypeImage, "hello", "ref-1", true},
		{"audio with ref", store.MessageTypeAudio, "", "ref-1", false},
		{"video with ref", store.MessageTypeVideo, "", "ref-1", false},
		{"unknown type", store.MessageType("sticker"), "", "ref-1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePayload(tt.msgType, tt.content, tt.mediaRef)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSendMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.CreateOrGetConversation(ctx, farmer)
	require.NoError(t, err)

	res, err := svc.SendMessage(ctx, farmer, SendMessageInput{
		ConversationID: conv.ID,
		Type:           store.MessageTypeText,
		Content:        "my crop has spots",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", res.Message.SenderID)
	assert.Equal(t, "support-1", res.RecipientID)
	assert.Nil(t, res.Media)
	assert.Equal(t, 1, res.Conversation.UnreadSupport)
	assert.Equal(t, store.StatusWaiting, res.Conversation.Status)
	require.NotNil(t, res.Conversation.LastMessageID)
	assert.Equal(t, res.Message.ID, *res.Conversation.LastMessageID)
}

func TestSendMessageWithMedia(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.CreateOrGetConversation(ctx, farmer)
	require.NoError(t, err)

	res, err := svc.SendMessage(ctx, farmer, SendMessageInput{
		ConversationID: conv.ID,
		Type:           store.MessageTypeImage,
		MediaRef:       "leaf-photo-1",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Media)
	assert.Equal(t, "https://media.test/leaf-photo-1", res.Media.URL)
}

func TestSendMessageUnresolvableMedia(t *testing.T) {
	st := store.NewMockStore()
	strategy, err := NewStrategy(PolicySingle, []string{"support-1"}, st, nil)
	require.NoError(t, err)
	svc := NewService(st, strategy, &fakeResolver{err: media.ErrMediaNotFound}, nil)
	ctx := context.Background()

	conv, _, err := svc.CreateOrGetConversation(ctx, farmer)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, farmer, SendMessageInput{
		ConversationID: conv.ID,
		Type:           store.MessageTypeImage,
		MediaRef:       "gone",
	})
	assert.ErrorIs(t, err, media.ErrMediaNotFound)

	// Nothing was persisted
	msgs, err := svc.ListMessages(ctx, farmer, conv.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	got, err := svc.GetConversation(ctx, farmer, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, got.UnreadSupport)
	assert.Nil(t, got.LastMessageID)
}

func TestSendMessageNonParticipant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.CreateOrGetConversation(ctx, farmer)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, stranger, SendMessageInput{
		ConversationID: conv.ID,
		Type:           store.MessageTypeText,
		Content:        "hi",
	})
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestSendMessageClosedConversation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.CreateOrGetConversation(ctx, farmer)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, agent, conv.ID, store.StatusClosed)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, farmer, SendMessageInput{
		ConversationID: conv.ID,
		Type:           store.MessageTypeText,
		Content:        "anyone there?",
	})
	assert.ErrorIs(t, err, ErrConversationClosed)
}

func TestSendMessageResolvedConversation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.CreateOrGetConversation(ctx, farmer)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, agent, conv.ID, store.StatusResolved)
	require.NoError(t, err)

	// Resolved conversations still accept messages and stay resolved
	res, err := svc.SendMessage(ctx, farmer, SendMessageInput{
		ConversationID: conv.ID,
		Type:           store.MessageTypeText,
		Content:        "one more thing",
	})
	require.NoError(t, err)
	assert.Equal(t, store.StatusResolved, res.Conversation.Status)
}

func TestListMessagesAuthz(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.CreateOrGetConversation(ctx, farmer)
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, farmer, SendMessageInput{
		ConversationID: conv.ID,
		Type:           store.MessageTypeText,
		Content:        "hello",
	})
	require.NoError(t, err)

	msgs, err := svc.ListMessages(ctx, admin, conv.ID, 1, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, err = svc.ListMessages(ctx, stranger, conv.ID, 1, 10)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestDeleteMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.CreateOrGetConversation(ctx, farmer)
	require.NoError(t, err)
	res, err := svc.SendMessage(ctx, farmer, SendMessageInput{
		ConversationID: conv.ID,
		Type:           store.MessageTypeText,
		Content:        "oops",
	})
	require.NoError(t, err)

	// Only the sender or an admin may delete
	_, err = svc.DeleteMessage(ctx, agent, res.Message.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	deleted, err := svc.DeleteMessage(ctx, farmer, res.Message.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Message.ID, deleted.ID)

	_, err = svc.DeleteMessage(ctx, farmer, res.Message.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := svc.GetConversation(ctx, farmer, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastMessageID)
}
