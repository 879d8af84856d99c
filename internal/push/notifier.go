// ABOUTME: Push notification emission toward the external delivery collaborator
// ABOUTME: Notifier interface with a no-op default for unconfigured deployments

package push

import (
	"context"
)

// NewMessage is the payload handed to the push collaborator when a
// recipient without a live connection should be notified.
type NewMessage struct {
	RecipientID    string `json:"recipient_id"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	SenderID       string `json:"sender_id"`
	Preview        string `json:"preview,omitempty"`
}

// Notifier emits push events. Delivery transport (APNs/FCM) is owned by
// the external push worker; this side only enqueues.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, n NewMessage) error
}

// NopNotifier drops all notifications. Used when push is not configured.
type NopNotifier struct{}

var _ Notifier = NopNotifier{}

func (NopNotifier) NotifyNewMessage(ctx context.Context, n NewMessage) error { return nil }
