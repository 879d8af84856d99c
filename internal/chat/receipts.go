// ABOUTME: Read-receipt tracking: single-message and whole-conversation reads
// ABOUTME: Counter mutations ride in the same storage transaction as the flag flips

package chat

import (
	"context"
	"time"

	"github.com/PirateKingAkshit/agritech-support-gateway/internal/auth"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/store"
)

// ReadReceipt reports the outcome of a single-message read.
type ReadReceipt struct {
	MessageID      string
	ConversationID string
	ReaderID       string
	ReadAt         time.Time
	Changed        bool // false when the message was already read
}

// MarkMessageRead marks one message as read by the recipient and decrements
// the reader's unread counter, floored at zero. A sender cannot mark their
// own message read; that attempt is a validation error and the flag stays
// unchanged.
func (s *Service) MarkMessageRead(ctx context.Context, actor auth.Identity, messageID, conversationID string) (*ReadReceipt, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ConversationID != conversationID {
		return nil, store.ErrNotFound
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive {
		return nil, store.ErrNotFound
	}
	if !conv.Participant(actor.ID) {
		return nil, ErrNotParticipant
	}
	if msg.SenderID == actor.ID {
		return nil, ErrSelfRead
	}

	now := time.Now().UTC()
	changed, err := s.store.MarkMessageRead(ctx, messageID, actor.ID == conv.UserID, now)
	if err != nil {
		return nil, err
	}

	return &ReadReceipt{
		MessageID:      messageID,
		ConversationID: conversationID,
		ReaderID:       actor.ID,
		ReadAt:         now,
		Changed:        changed,
	}, nil
}

// MarkConversationRead marks every unread message not sent by the caller as
// read with a single timestamp and resets the caller's unread counter to
// exactly zero in one operation. The reset (rather than a per-message
// decrement loop) keeps the counter from drifting under concurrent sends.
func (s *Service) MarkConversationRead(ctx context.Context, actor auth.Identity, conversationID string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive {
		return nil, store.ErrNotFound
	}
	if !conv.Participant(actor.ID) {
		return nil, ErrNotParticipant
	}

	now := time.Now().UTC()
	if err := s.store.MarkConversationRead(ctx, conversationID, actor.ID, actor.ID == conv.UserID, now); err != nil {
		return nil, err
	}

	s.logger.Debug("conversation marked read",
		"conversation_id", conversationID,
		"reader", actor.ID)
	return s.store.GetConversation(ctx, conversationID)
}
