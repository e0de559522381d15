package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"meridian-hq/meridian/pkg/providers"
)

// SQLite is the durable Store backend.
type SQLite struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL DEFAULT '',
	is_temporary  INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id    TEXT NOT NULL,
	role       TEXT NOT NULL CHECK(role IN ('system','user','assistant')),
	content    TEXT NOT NULL,
	tokens     INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at);
CREATE INDEX IF NOT EXISTS idx_chats_updated ON chats(updated_at DESC);
`

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. WAL mode keeps readers unblocked during writes.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply store schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) CreateChat(ctx context.Context, chat NewChat) (*Chat, error) {
	now := time.Now().UTC()
	c := &Chat{
		ID:           uuid.NewString(),
		Title:        chat.Title,
		Model:        chat.Model,
		Provider:     chat.Provider,
		SystemPrompt: chat.SystemPrompt,
		Temporary:    chat.Temporary,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, title, model, provider, system_prompt, is_temporary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Model, c.Provider, c.SystemPrompt, c.Temporary, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return c, nil
}

func (s *SQLite) GetChat(ctx context.Context, id string) (*Chat, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, model, provider, system_prompt, is_temporary, created_at, updated_at
		FROM chats WHERE id = ?`, id)

	var c Chat
	err := row.Scan(&c.ID, &c.Title, &c.Model, &c.Provider, &c.SystemPrompt, &c.Temporary, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chat: %w", err)
	}
	return &c, nil
}

func (s *SQLite) ListChats(ctx context.Context, includeTemporary bool, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.model, c.provider, c.system_prompt, c.is_temporary, c.created_at, c.updated_at,
		       COALESCE((SELECT content FROM messages WHERE chat_id = c.id ORDER BY id DESC LIMIT 1), ''),
		       (SELECT COUNT(*) FROM messages WHERE chat_id = c.id)
		FROM chats c
		WHERE (? OR c.is_temporary = 0)
		ORDER BY c.updated_at DESC
		LIMIT ?`, includeTemporary, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var out []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.Model, &c.Provider, &c.SystemPrompt, &c.Temporary,
			&c.CreatedAt, &c.UpdatedAt, &c.LastMessage, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) AddMessage(ctx context.Context, chatID, role, content string, tokens int) (int64, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (chat_id, role, content, tokens, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		chatID, role, content, tokens, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add message: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, now, chatID); err != nil {
		return 0, fmt.Errorf("failed to bump chat: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read message id: %w", err)
	}
	return id, nil
}

func (s *SQLite) GetMessages(ctx context.Context, chatID string, limit int) ([]StoredMessage, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, content, tokens, created_at
		FROM messages WHERE chat_id = ?
		ORDER BY id ASC
		LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.Tokens, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) ContextMessages(ctx context.Context, chatID string, maxTokens int) ([]providers.Message, error) {
	msgs, err := s.GetMessages(ctx, chatID, 0)
	if err != nil {
		return nil, err
	}
	return budgetMessages(msgs, maxTokens), nil
}

func (s *SQLite) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), chatID)
	if err != nil {
		return fmt.Errorf("failed to rename chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (s *SQLite) DeleteChat(ctx context.Context, chatID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (s *SQLite) CleanupTemporary(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM chats WHERE is_temporary = 1 AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean temporary chats: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chats),
			(SELECT COUNT(*) FROM chats WHERE is_temporary = 0),
			(SELECT COUNT(*) FROM chats WHERE is_temporary = 1),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM messages WHERE role = 'user'),
			(SELECT COUNT(*) FROM messages WHERE role = 'assistant')`)
	err := row.Scan(&st.TotalChats, &st.PermanentChats, &st.TemporaryChats,
		&st.TotalMessages, &st.UserMessages, &st.AssistantMessages)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read store stats: %w", err)
	}
	return st, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
