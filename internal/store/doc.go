// Package store provides persistent storage for the support gateway using SQLite.
//
// # Data Models
//
//   - Conversation: two-party support exchange between a user and an assigned
//     support agent, with status, per-participant unread counters, a weak
//     last-message pointer and a soft-delete flag
//   - Message: a single message with a tagged text/media payload and read state
//
// # Invariants enforced here
//
// The operations that touch both tables run in one transaction:
//
//   - AppendMessage: insert + recipient counter increment + last_message
//     repoint + open->waiting transition on user-authored messages
//   - DeleteMessage: delete + last_message repair
//   - MarkMessageRead: read flag flip + counter decrement (floored at zero)
//   - MarkConversationRead: bulk flag flip + counter reset to exactly zero
//
// Unread counters live in two fixed columns (unread_user, unread_support),
// never in a keyed map, and all counter math is relative SQL so concurrent
// sends from both participants cannot lose updates.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// A partial unique index on (user_id, support_id) WHERE is_active = 1 backs
// the one-active-conversation-per-pair rule; racing creators get
// ErrDuplicateConversation and retry the lookup.
//
// # Testing
//
// Use NewMockStore() for unit tests without SQLite, or point NewSQLiteStore
// at a t.TempDir() path for integration tests.
package store
