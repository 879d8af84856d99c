// ABOUTME: Message pipeline: validated append, paginated listing, hard delete with repair
// ABOUTME: Payload shape is checked exhaustively before anything touches storage

package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PirateKingAkshit/agritech-support-gateway/internal/auth"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/media"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/store"
)

// SendMessageInput carries a message submission from either transport.
type SendMessageInput struct {
	ConversationID string
	Type           store.MessageType
	Content        string // required iff Type == text
	MediaRef       string // required iff Type != text
}

// SendResult is everything the transports need after a successful send:
// the persisted message, the updated conversation (new counters, status,
// last message), the recipient to notify and resolved media metadata.
type SendResult struct {
	Message      *store.Message
	Conversation *store.Conversation
	RecipientID  string
	Media        *media.Info
}

// validatePayload checks the tagged-union invariant: exactly one of
// content/mediaRef is populated, determined by the type.
func validatePayload(t store.MessageType, content, mediaRef string) error {
	if !store.ValidMessageType(t) {
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidPayload, t)
	}
	if t == store.MessageTypeText {
		if content == "" {
			return fmt.Errorf("%w: text message requires content", ErrInvalidPayload)
		}
		if mediaRef != "" {
			return fmt.Errorf("%w: text message cannot carry a media reference", ErrInvalidPayload)
		}
		return nil
	}
	if mediaRef == "" {
		return fmt.Errorf("%w: %s message requires a media reference", ErrInvalidPayload, t)
	}
	if content != "" {
		return fmt.Errorf("%w: %s message cannot carry text content", ErrInvalidPayload, t)
	}
	return nil
}

// SendMessage validates, resolves media, persists and returns the result.
// Nothing is broadcast by callers until the append has fully committed, so
// room members always observe messages in append order.
func (s *Service) SendMessage(ctx context.Context, actor auth.Identity, in SendMessageInput) (*SendResult, error) {
	if err := validatePayload(in.Type, in.Content, in.MediaRef); err != nil {
		return nil, err
	}

	conv, err := s.store.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive {
		return nil, store.ErrNotFound
	}
	if !conv.Participant(actor.ID) {
		return nil, ErrNotParticipant
	}
	if conv.Status == store.StatusClosed {
		return nil, ErrConversationClosed
	}

	var info *media.Info
	if in.Type != store.MessageTypeText {
		info, err = s.media.Resolve(ctx, in.MediaRef)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       actor.ID,
		Type:           in.Type,
		Content:        in.Content,
		MediaRef:       in.MediaRef,
		DeliveredAt:    now,
		CreatedAt:      now,
	}

	updated, err := s.store.AppendMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	s.logger.Debug("message appended",
		"conversation_id", conv.ID,
		"message_id", msg.ID,
		"sender", actor.ID,
		"type", msg.Type)

	return &SendResult{
		Message:      msg,
		Conversation: updated,
		RecipientID:  updated.Other(actor.ID),
		Media:        info,
	}, nil
}

// ListMessages returns one page of a conversation's messages in display
// order (oldest first), visible to participants and admins.
func (s *Service) ListMessages(ctx context.Context, actor auth.Identity, conversationID string, page, pageSize int) ([]*store.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Participant(actor.ID) && !actor.IsAdmin() {
		return nil, ErrNotParticipant
	}
	return s.store.ListMessages(ctx, conversationID, page, pageSize)
}

// DeleteMessage permanently removes a message. Only the sender or an admin
// may delete; the conversation's last-message pointer is repaired in the
// same storage transaction.
func (s *Service) DeleteMessage(ctx context.Context, actor auth.Identity, messageID string) (*store.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only the sender or an admin may delete a message", ErrForbidden)
	}

	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("deleting message: %w", err)
	}

	s.logger.Info("message deleted",
		"message_id", messageID,
		"conversation_id", msg.ConversationID,
		"actor", actor.ID)
	return msg, nil
}
