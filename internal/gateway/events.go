// ABOUTME: Realtime protocol event names and JSON payload shapes
// ABOUTME: Every frame on the wire is an Envelope{event, data}

package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/PirateKingAkshit/agritech-support-gateway/internal/media"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/store"
)

// Client-to-server events
const (
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventMessageSend       = "message:send"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
	EventMessageRead       = "message:read"
	EventMarkAllRead       = "conversation:mark-all-read"
)

// Server-to-client events
const (
	EventConversationJoined  = "conversation:joined"
	EventMessageNew          = "message:new"
	EventMessageSent         = "message:sent"
	EventNotificationMessage = "notification:new-message"
	EventMessageReadReceipt  = "message:read-receipt"
	EventConversationAllRead = "conversation:all-read"
	EventPresenceOnline      = "presence:online"
	EventPresenceOffline     = "presence:offline"
	EventError               = "error"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeEvent marshals a payload into a complete wire frame.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Inbound payloads

type joinPayload struct {
	ConversationID string `json:"conversationId"`
}

type sendPayload struct {
	ConversationID string `json:"conversationId"`
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	MediaID        string `json:"mediaId,omitempty"`
}

type readPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type typingPayload struct {
	ConversationID string `json:"conversationId"`
}

// Outbound payloads

// MediaDTO carries resolved media metadata so clients render without a
// second round trip to the media store.
type MediaDTO struct {
	Ref    string `json:"ref"`
	URL    string `json:"url"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
}

// MessageDTO is the client-facing message representation.
type MessageDTO struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Type           string     `json:"type"`
	Content        string     `json:"content,omitempty"`
	Media          *MediaDTO  `json:"media,omitempty"`
	IsRead         bool       `json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	DeliveredAt    time.Time  `json:"deliveredAt"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// NewMessageDTO converts a stored message plus optional resolved media.
func NewMessageDTO(m *store.Message, info *media.Info) MessageDTO {
	dto := MessageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Type:           string(m.Type),
		Content:        m.Content,
		IsRead:         m.IsRead,
		ReadAt:         m.ReadAt,
		DeliveredAt:    m.DeliveredAt,
		CreatedAt:      m.CreatedAt,
	}
	if info != nil {
		dto.Media = &MediaDTO{
			Ref:    m.MediaRef,
			URL:    info.URL,
			Format: info.Format,
			Size:   info.Size,
		}
	}
	return dto
}

type joinedPayload struct {
	ConversationID string `json:"conversationId"`
}

type messageNewPayload struct {
	ConversationID string     `json:"conversationId"`
	Message        MessageDTO `json:"message"`
}

type messageSentPayload struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

type notificationPayload struct {
	ConversationID string     `json:"conversationId"`
	Message        MessageDTO `json:"message"`
	Sender         string     `json:"sender"`
}

type presencePayload struct {
	Identity  string    `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
}

type readReceiptPayload struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	ReaderID       string    `json:"readerId"`
	ReadAt         time.Time `json:"readAt"`
}

type allReadPayload struct {
	ConversationID string    `json:"conversationId"`
	ReaderID       string    `json:"readerId"`
	ReadAt         time.Time `json:"readAt"`
}

type typingBroadcastPayload struct {
	ConversationID string `json:"conversationId"`
	Identity       string `json:"identity"`
}

type errorPayload struct {
	Message string `json:"message"`
}
