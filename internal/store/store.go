// ABOUTME: Store interface and data types for support-gateway persistence
// ABOUTME: Defines Conversation, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when an active conversation already
// exists for the same (user, support) pair
var ErrDuplicateConversation = errors.New("conversation already exists")

// ConversationStatus is the lifecycle state of a conversation
type ConversationStatus string

const (
	StatusOpen     ConversationStatus = "open"
	StatusWaiting  ConversationStatus = "waiting"
	StatusResolved ConversationStatus = "resolved"
	StatusClosed   ConversationStatus = "closed"
)

// ValidStatus reports whether s is one of the four known statuses.
func ValidStatus(s ConversationStatus) bool {
	switch s {
	case StatusOpen, StatusWaiting, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Conversation is the two-party container for a support exchange.
// UserID and SupportID are fixed at creation; unread counters are one
// column per participant so there is no counter key to drift.
type Conversation struct {
	ID            string
	UserID        string
	SupportID     string
	Status        ConversationStatus
	LastMessageID *string
	UnreadUser    int
	UnreadSupport int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Participant reports whether id is one of the two conversation participants.
func (c *Conversation) Participant(id string) bool {
	return id == c.UserID || id == c.SupportID
}

// Other returns the participant opposite to id. Callers must have verified
// participancy first.
func (c *Conversation) Other(id string) string {
	if id == c.UserID {
		return c.SupportID
	}
	return c.UserID
}

// MessageType discriminates the message payload variant
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeAudio MessageType = "audio"
	MessageTypeVideo MessageType = "video"
)

// ValidMessageType reports whether t is a known message type.
func ValidMessageType(t MessageType) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAudio, MessageTypeVideo:
		return true
	}
	return false
}

// Message is a single message within a conversation. Exactly one of
// Content/MediaRef is populated, determined by Type.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Type           MessageType
	Content        string // populated iff Type == text
	MediaRef       string // populated iff Type != text
	IsRead         bool
	ReadAt         *time.Time
	DeliveredAt    time.Time
	CreatedAt      time.Time
}

// ListConversationsParams filters and pages a conversation listing.
// Exactly one of UserID/SupportID/All selects the view.
type ListConversationsParams struct {
	UserID    string
	SupportID string
	All       bool
	Status    ConversationStatus // empty means any
	Page      int                // 1-based
	PageSize  int
}

// Store defines the interface for conversation and message persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetActiveConversation(ctx context.Context, userID, supportID string) (*Conversation, error)
	ListConversations(ctx context.Context, p ListConversationsParams) ([]*Conversation, error)
	UpdateConversationStatus(ctx context.Context, id string, status ConversationStatus) error
	SoftDeleteConversation(ctx context.Context, id string) error

	// Messages. AppendMessage inserts the message, bumps the recipient's
	// unread counter and repoints last_message in one transaction, returning
	// the updated conversation.
	AppendMessage(ctx context.Context, msg *Message) (*Conversation, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, conversationID string, page, pageSize int) ([]*Message, error)
	DeleteMessage(ctx context.Context, id string) error

	// Read receipts
	MarkMessageRead(ctx context.Context, messageID string, readerIsUser bool, at time.Time) (bool, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID string, readerIsUser bool, at time.Time) error

	// Assignment policy inputs
	CountConversationsBySupport(ctx context.Context, supportID string) (int, error)
	CountActiveConversationsBySupport(ctx context.Context, supportID string) (int, error)

	Close() error
}
