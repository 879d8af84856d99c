// ABOUTME: Conversation directory: create-or-get with support assignment, status changes, soft delete
// ABOUTME: All conversation state changes flow through here - persistence is the source of truth

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PirateKingAkshit/agritech-support-gateway/internal/auth"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/media"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/store"
)

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	GetActiveConversation(ctx context.Context, userID, supportID string) (*store.Conversation, error)
	ListConversations(ctx context.Context, p store.ListConversationsParams) ([]*store.Conversation, error)
	UpdateConversationStatus(ctx context.Context, id string, status store.ConversationStatus) error
	SoftDeleteConversation(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, msg *store.Message) (*store.Conversation, error)
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	ListMessages(ctx context.Context, conversationID string, page, pageSize int) ([]*store.Message, error)
	DeleteMessage(ctx context.Context, id string) error

	MarkMessageRead(ctx context.Context, messageID string, readerIsUser bool, at time.Time) (bool, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID string, readerIsUser bool, at time.Time) error
}

// Service is the central layer for conversation and message state. The
// realtime gateway and the REST facade both delegate here, so the two
// transports cannot diverge on semantics.
type Service struct {
	store  ConversationStore
	assign AssignmentStrategy
	media  media.Resolver
	logger *slog.Logger
}

// NewService creates a new conversation service. Pass nil logger for default.
func NewService(st ConversationStore, assign AssignmentStrategy, resolver media.Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		assign: assign,
		media:  resolver,
		logger: logger.With("component", "chat"),
	}
}

// CreateOrGetConversation returns the caller's active conversation with the
// agent chosen by the assignment policy, creating it if none exists.
// Calling it twice without an intervening close returns the same
// conversation. Only users open conversations; staff are assigned to them.
func (s *Service) CreateOrGetConversation(ctx context.Context, actor auth.Identity) (*store.Conversation, bool, error) {
	if actor.Role != auth.RoleUser {
		return nil, false, fmt.Errorf("%w: only users open support conversations", ErrForbidden)
	}

	supportID, err := s.assign.Assign(ctx, actor.ID)
	if err != nil {
		return nil, false, err
	}

	conv, err := s.store.GetActiveConversation(ctx, actor.ID, supportID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("looking up conversation: %w", err)
	}

	now := time.Now().UTC()
	conv = &store.Conversation{
		ID:        uuid.New().String(),
		UserID:    actor.ID,
		SupportID: supportID,
		Status:    store.StatusOpen,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		// Another connection may have created the pair between our lookup
		// and insert; the partial unique index surfaces that as a duplicate.
		if errors.Is(err, store.ErrDuplicateConversation) {
			existing, lookupErr := s.store.GetActiveConversation(ctx, actor.ID, supportID)
			if lookupErr == nil {
				s.logger.Debug("found existing conversation after race", "conversation_id", existing.ID)
				return existing, false, nil
			}
			s.logger.Error("retry lookup failed after duplicate error", "lookup_error", lookupErr)
		}
		return nil, false, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"user_id", conv.UserID,
		"support_id", conv.SupportID)
	return conv, true, nil
}

// GetConversation returns a conversation visible to the caller.
func (s *Service) GetConversation(ctx context.Context, actor auth.Identity, id string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive && !actor.IsAdmin() {
		return nil, store.ErrNotFound
	}
	if !conv.Participant(actor.ID) && !actor.IsAdmin() {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// ListConversations returns the caller's view of the directory: users see
// conversations they opened, support agents see those assigned to them,
// admins see everything including soft-deleted rows.
func (s *Service) ListConversations(ctx context.Context, actor auth.Identity, status store.ConversationStatus, page, pageSize int) ([]*store.Conversation, error) {
	if status != "" && !store.ValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	p := store.ListConversationsParams{Status: status, Page: page, PageSize: pageSize}
	switch actor.Role {
	case auth.RoleUser:
		p.UserID = actor.ID
	case auth.RoleSupport:
		p.SupportID = actor.ID
	case auth.RoleAdmin:
		p.All = true
	default:
		return nil, ErrForbidden
	}
	return s.store.ListConversations(ctx, p)
}

// UpdateStatus applies an explicit status change. Only the assigned support
// agent or an admin may change status; users never do. No other transition
// happens implicitly: reopening a resolved or closed conversation is always
// a deliberate staff action through this path.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Identity, id string, status store.ConversationStatus) (*store.Conversation, error) {
	if !store.ValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive {
		return nil, store.ErrNotFound
	}

	switch {
	case actor.IsAdmin():
	case actor.IsSupport() && conv.SupportID == actor.ID:
	default:
		return nil, fmt.Errorf("%w: status changes are a staff action", ErrForbidden)
	}

	if err := s.store.UpdateConversationStatus(ctx, id, status); err != nil {
		return nil, err
	}

	s.logger.Info("conversation status changed",
		"conversation_id", id,
		"status", status,
		"actor", actor.ID)
	conv.Status = status
	return conv, nil
}

// SoftDelete marks a conversation inactive. The owning user or an admin may
// delete; support agents may not. Rows are never removed.
func (s *Service) SoftDelete(ctx context.Context, actor auth.Identity, id string) error {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if !conv.IsActive {
		return store.ErrNotFound
	}

	switch {
	case actor.IsAdmin():
	case actor.Role == auth.RoleUser && conv.UserID == actor.ID:
	default:
		return fmt.Errorf("%w: only the owning user or an admin may delete", ErrForbidden)
	}

	if err := s.store.SoftDeleteConversation(ctx, id); err != nil {
		return err
	}
	s.logger.Info("conversation soft-deleted", "conversation_id", id, "actor", actor.ID)
	return nil
}
