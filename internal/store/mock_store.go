// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation // keyed by conversation ID
	messages      map[string][]*Message    // keyed by conversation ID, append order
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
	}
}

var _ Store = (*MockStore)(nil)

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.conversations {
		if c.IsActive && conv.IsActive && c.UserID == conv.UserID && c.SupportID == conv.SupportID {
			return ErrDuplicateConversation
		}
	}

	c := *conv
	m.conversations[c.ID] = &c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// GetActiveConversation retrieves the active conversation for a pair.
func (m *MockStore) GetActiveConversation(ctx context.Context, userID, supportID string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.conversations {
		if c.IsActive && c.UserID == userID && c.SupportID == supportID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListConversations returns matching conversations, most recently updated first.
func (m *MockStore) ListConversations(ctx context.Context, p ListConversationsParams) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Conversation
	for _, c := range m.conversations {
		switch {
		case p.All:
		case p.UserID != "":
			if c.UserID != p.UserID || !c.IsActive {
				continue
			}
		case p.SupportID != "":
			if c.SupportID != p.SupportID || !c.IsActive {
				continue
			}
		}
		if p.Status != "" && c.Status != p.Status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	page, pageSize := normalizePage(p.Page, p.PageSize)
	start := (page - 1) * pageSize
	if start >= len(out) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

// UpdateConversationStatus sets the status of an active conversation.
func (m *MockStore) UpdateConversationStatus(ctx context.Context, id string, status ConversationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok || !c.IsActive {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// SoftDeleteConversation marks a conversation inactive.
func (m *MockStore) SoftDeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok || !c.IsActive {
		return ErrNotFound
	}
	c.IsActive = false
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendMessage inserts a message and applies the counter/last-message updates.
func (m *MockStore) AppendMessage(ctx context.Context, msg *Message) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[msg.ConversationID]
	if !ok || !c.IsActive {
		return nil, ErrNotFound
	}

	mp := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &mp)

	if msg.SenderID == c.UserID {
		c.UnreadSupport++
		if c.Status == StatusOpen || c.Status == StatusWaiting {
			c.Status = StatusWaiting
		}
	} else {
		c.UnreadUser++
	}
	id := msg.ID
	c.LastMessageID = &id
	c.UpdatedAt = time.Now().UTC()

	cp := *c
	return &cp, nil
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg := m.findMessageLocked(id)
	if msg == nil {
		return nil, ErrNotFound
	}
	mp := *msg
	return &mp, nil
}

// ListMessages returns one page of messages in oldest-to-newest order.
func (m *MockStore) ListMessages(ctx context.Context, conversationID string, page, pageSize int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[conversationID]
	page, pageSize = normalizePage(page, pageSize)

	// Page backward from the newest message, then restore display order.
	end := len(all) - (page-1)*pageSize
	if end <= 0 {
		return nil, nil
	}
	start := end - pageSize
	if start < 0 {
		start = 0
	}

	out := make([]*Message, 0, end-start)
	for _, msg := range all[start:end] {
		mp := *msg
		out = append(out, &mp)
	}
	return out, nil
}

// DeleteMessage removes a message and repairs the last-message pointer.
func (m *MockStore) DeleteMessage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for convID, msgs := range m.messages {
		for i, msg := range msgs {
			if msg.ID != id {
				continue
			}
			m.messages[convID] = append(msgs[:i], msgs[i+1:]...)
			c := m.conversations[convID]
			if c != nil && c.LastMessageID != nil && *c.LastMessageID == id {
				remaining := m.messages[convID]
				if len(remaining) == 0 {
					c.LastMessageID = nil
				} else {
					last := remaining[len(remaining)-1].ID
					c.LastMessageID = &last
				}
				c.UpdatedAt = time.Now().UTC()
			}
			return nil
		}
	}
	return ErrNotFound
}

// MarkMessageRead flips an unread message and decrements the reader's counter.
func (m *MockStore) MarkMessageRead(ctx context.Context, messageID string, readerIsUser bool, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := m.findMessageLocked(messageID)
	if msg == nil {
		return false, ErrNotFound
	}
	if msg.IsRead {
		return false, nil
	}
	msg.IsRead = true
	readAt := at
	msg.ReadAt = &readAt

	if c := m.conversations[msg.ConversationID]; c != nil {
		if readerIsUser {
			if c.UnreadUser > 0 {
				c.UnreadUser--
			}
		} else if c.UnreadSupport > 0 {
			c.UnreadSupport--
		}
		c.UpdatedAt = at
	}
	return true, nil
}

// MarkConversationRead bulk-marks messages and resets the reader's counter.
func (m *MockStore) MarkConversationRead(ctx context.Context, conversationID, readerID string, readerIsUser bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	for _, msg := range m.messages[conversationID] {
		if msg.SenderID == readerID || msg.IsRead {
			continue
		}
		msg.IsRead = true
		readAt := at
		msg.ReadAt = &readAt
	}
	if readerIsUser {
		c.UnreadUser = 0
	} else {
		c.UnreadSupport = 0
	}
	c.UpdatedAt = at
	return nil
}

// CountConversationsBySupport returns the total conversation count for an agent.
func (m *MockStore) CountConversationsBySupport(ctx context.Context, supportID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, c := range m.conversations {
		if c.SupportID == supportID {
			n++
		}
	}
	return n, nil
}

// CountActiveConversationsBySupport returns the active, unresolved count for an agent.
func (m *MockStore) CountActiveConversationsBySupport(ctx context.Context, supportID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, c := range m.conversations {
		if c.SupportID == supportID && c.IsActive &&
			(c.Status == StatusOpen || c.Status == StatusWaiting) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error { return nil }

func (m *MockStore) findMessageLocked(id string) *Message {
	for _, msgs := range m.messages {
		for _, msg := range msgs {
			if msg.ID == id {
				return msg
			}
		}
	}
	return nil
}
