// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Pragmas are passed in the DSN so they apply to every pooled connection,
	// not just the one a bare Exec happens to run on.
	// _txlock=immediate makes write transactions take the lock at BEGIN so
	// concurrent writers queue on busy_timeout instead of deadlocking on a
	// deferred read-to-write lock upgrade.
	dsn := path + "?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Concurrent writers wait for the lock instead of failing with SQLITE_BUSY
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			support_id      TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'open',
			last_message_id TEXT,
			unread_user     INTEGER NOT NULL DEFAULT 0,
			unread_support  INTEGER NOT NULL DEFAULT 0,
			is_active       INTEGER NOT NULL DEFAULT 1,
			created_at      DATETIME NOT NULL,
			updated_at      DATETIME NOT NULL,

			CHECK (status IN ('open', 'waiting', 'resolved', 'closed')),
			CHECK (unread_user >= 0),
			CHECK (unread_support >= 0)
		);

		-- One active conversation per (user, support) pair
		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_active_pair
			ON conversations(user_id, support_id) WHERE is_active = 1;

		CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_support ON conversations(support_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id       TEXT NOT NULL,
			type            TEXT NOT NULL,
			content         TEXT NOT NULL DEFAULT '',
			media_ref       TEXT NOT NULL DEFAULT '',
			is_read         INTEGER NOT NULL DEFAULT 0,
			read_at         DATETIME,
			delivered_at    DATETIME NOT NULL,
			created_at      DATETIME NOT NULL,

			FOREIGN KEY (conversation_id) REFERENCES conversations(id),
			CHECK (type IN ('text', 'image', 'audio', 'video'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_unread
			ON messages(conversation_id, is_read);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const conversationColumns = `id, user_id, support_id, status, last_message_id,
	unread_user, unread_support, is_active, created_at, updated_at`

// scanConversation scans a conversation row from either *sql.Row or *sql.Rows
func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var c Conversation
	var lastMessageID sql.NullString
	var isActive int
	err := row.Scan(&c.ID, &c.UserID, &c.SupportID, &c.Status, &lastMessageID,
		&c.UnreadUser, &c.UnreadSupport, &isActive, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	if lastMessageID.Valid {
		c.LastMessageID = &lastMessageID.String
	}
	c.IsActive = isActive != 0
	return &c, nil
}

// CreateConversation inserts a new conversation
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, support_id, status, last_message_id,
			unread_user, unread_support, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.SupportID, conv.Status,
		conv.UnreadUser, conv.UnreadSupport, boolToInt(conv.IsActive),
		conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// GetActiveConversation retrieves the active conversation for a (user, support) pair
func (s *SQLiteStore) GetActiveConversation(ctx context.Context, userID, supportID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE user_id = ? AND support_id = ? AND is_active = 1`, userID, supportID)
	return scanConversation(row)
}

// ListConversations returns conversations for one participant view,
// most recently updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context, p ListConversationsParams) ([]*Conversation, error) {
	where := []string{}
	args := []any{}

	switch {
	case p.All:
		// admin view, no participant filter and soft-deleted rows included
	case p.UserID != "":
		where = append(where, "user_id = ?", "is_active = 1")
		args = append(args, p.UserID)
	case p.SupportID != "":
		where = append(where, "support_id = ?", "is_active = 1")
		args = append(args, p.SupportID)
	default:
		return nil, fmt.Errorf("listing conversations: no participant filter")
	}

	if p.Status != "" {
		where = append(where, "status = ?")
		args = append(args, p.Status)
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	page, pageSize := normalizePage(p.Page, p.PageSize)
	query += " LIMIT ? OFFSET ?"
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// UpdateConversationStatus sets the status of a conversation
func (s *SQLiteStore) UpdateConversationStatus(ctx context.Context, id string, status ConversationStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ? AND is_active = 1`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating conversation status: %w", err)
	}
	return requireAffected(res)
}

// SoftDeleteConversation marks a conversation inactive without removing rows
func (s *SQLiteStore) SoftDeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET is_active = 0, updated_at = ? WHERE id = ? AND is_active = 1`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("soft-deleting conversation: %w", err)
	}
	return requireAffected(res)
}

// AppendMessage inserts the message and, in the same transaction, increments
// the recipient's unread counter, repoints last_message_id and moves an
// open conversation to waiting on a user-authored message. The counter
// update uses a relative increment so concurrent sends cannot lose updates.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) (*Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ? AND is_active = 1`,
		msg.ConversationID)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, type, content, media_ref,
			is_read, read_at, delivered_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Type, msg.Content, msg.MediaRef,
		msg.DeliveredAt, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	now := time.Now().UTC()
	if msg.SenderID == conv.UserID {
		_, err = tx.ExecContext(ctx, `
			UPDATE conversations SET
				unread_support = unread_support + 1,
				status = CASE WHEN status IN ('open', 'waiting') THEN 'waiting' ELSE status END,
				last_message_id = ?, updated_at = ?
			WHERE id = ?`,
			msg.ID, now, msg.ConversationID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE conversations SET
				unread_user = unread_user + 1,
				last_message_id = ?, updated_at = ?
			WHERE id = ?`,
			msg.ID, now, msg.ConversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("updating conversation counters: %w", err)
	}

	row = tx.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, msg.ConversationID)
	conv, err = scanConversation(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing message append: %w", err)
	}
	return conv, nil
}

const messageColumns = `id, conversation_id, sender_id, type, content, media_ref,
	is_read, read_at, delivered_at, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	var isRead int
	var readAt sql.NullTime
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Type, &m.Content,
		&m.MediaRef, &isRead, &readAt, &m.DeliveredAt, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	m.IsRead = isRead != 0
	if readAt.Valid {
		m.ReadAt = &readAt.Time
	}
	return &m, nil
}

// GetMessage retrieves a message by ID
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

// ListMessages returns one page of messages in oldest-to-newest order.
// Pagination walks backward from the most recent message; the page is
// reversed before returning so clients render in display order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, page, pageSize int) ([]*Message, error) {
	page, pageSize = normalizePage(page, pageSize)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		conversationID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse newest-first page into display order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// DeleteMessage permanently removes a message. If it was the conversation's
// last message, last_message_id is repointed to the newest remaining message
// in the same transaction.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var conversationID string
	err = tx.QueryRowContext(ctx,
		`SELECT conversation_id FROM messages WHERE id = ?`, id).Scan(&conversationID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}

	var lastMessageID sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT last_message_id FROM conversations WHERE id = ?`, conversationID).Scan(&lastMessageID)
	if err != nil {
		return fmt.Errorf("looking up conversation: %w", err)
	}

	if lastMessageID.Valid && lastMessageID.String == id {
		var newLast sql.NullString
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM messages WHERE conversation_id = ?
			 ORDER BY created_at DESC, id DESC LIMIT 1`, conversationID).Scan(&newLast)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("finding replacement last message: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET last_message_id = ?, updated_at = ? WHERE id = ?`,
			newLast, time.Now().UTC(), conversationID); err != nil {
			return fmt.Errorf("repointing last message: %w", err)
		}
	}

	return tx.Commit()
}

// MarkMessageRead flips an unread message to read and decrements the
// reader's unread counter (floored at zero) in one transaction. Returns
// false without error when the message was already read.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, messageID string, readerIsUser bool, at time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var conversationID string
	err = tx.QueryRowContext(ctx,
		`SELECT conversation_id FROM messages WHERE id = ?`, messageID).Scan(&conversationID)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("looking up message: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE messages SET is_read = 1, read_at = ? WHERE id = ? AND is_read = 0`,
		at, messageID)
	if err != nil {
		return false, fmt.Errorf("marking message read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		// Already read; nothing to decrement
		return false, tx.Commit()
	}

	counter := "unread_support"
	if readerIsUser {
		counter = "unread_user"
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET `+counter+` = MAX(`+counter+` - 1, 0), updated_at = ?
		 WHERE id = ?`, at, conversationID)
	if err != nil {
		return false, fmt.Errorf("decrementing unread counter: %w", err)
	}

	return true, tx.Commit()
}

// MarkConversationRead marks every unread message not sent by readerID as
// read with one timestamp and resets the reader's unread counter to zero.
// The counter is reset, not decremented per message, so concurrent sends
// cannot drift it negative.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, conversationID, readerID string, readerIsUser bool, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE messages SET is_read = 1, read_at = ?
		 WHERE conversation_id = ? AND sender_id != ? AND is_read = 0`,
		at, conversationID, readerID)
	if err != nil {
		return fmt.Errorf("marking messages read: %w", err)
	}

	counter := "unread_support"
	if readerIsUser {
		counter = "unread_user"
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET `+counter+` = 0, updated_at = ? WHERE id = ?`,
		at, conversationID)
	if err != nil {
		return fmt.Errorf("resetting unread counter: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	return tx.Commit()
}

// CountConversationsBySupport returns the total conversation count for an agent
func (s *SQLiteStore) CountConversationsBySupport(ctx context.Context, supportID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE support_id = ?`, supportID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting conversations: %w", err)
	}
	return n, nil
}

// CountActiveConversationsBySupport returns the count of active, unresolved
// conversations handled by an agent
func (s *SQLiteStore) CountActiveConversationsBySupport(ctx context.Context, supportID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations
		 WHERE support_id = ? AND is_active = 1 AND status IN ('open', 'waiting')`,
		supportID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting active conversations: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return page, pageSize
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
