// Package store persists chat transcripts for the gateway's serving
// layer. Two backends implement the same Store interface: an in-memory
// map for stateless deployments and tests, and a SQLite database for
// durable history.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/providers"
)

// ErrChatNotFound is returned for operations against an unknown chat ID.
var ErrChatNotFound = errors.New("chat not found")

// Chat is one conversation record.
type Chat struct {
	// ID is an opaque identifier assigned at creation.
	ID string `json:"id"`

	Title        string `json:"title"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Temporary chats are swept by CleanupTemporary and hidden from
	// listings by default.
	Temporary bool `json:"temporary"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// LastMessage and MessageCount are filled by ListChats only.
	LastMessage  string `json:"last_message,omitempty"`
	MessageCount int    `json:"message_count,omitempty"`
}

// NewChat carries the caller-supplied fields for chat creation.
type NewChat struct {
	Title        string
	Model        string
	Provider     string
	SystemPrompt string
	Temporary    bool
}

// StoredMessage is one persisted transcript message.
type StoredMessage struct {
	ID      int64  `json:"id"`
	ChatID  string `json:"chat_id"`
	Role    string `json:"role"`
	Content string `json:"content"`

	// Tokens is the caller-reported token count, 0 when unknown.
	Tokens int `json:"tokens"`

	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes the store contents.
type Stats struct {
	TotalChats        int `json:"total_chats"`
	PermanentChats    int `json:"permanent_chats"`
	TemporaryChats    int `json:"temporary_chats"`
	TotalMessages     int `json:"total_messages"`
	UserMessages      int `json:"user_messages"`
	AssistantMessages int `json:"assistant_messages"`
}

// Store is the transcript persistence contract.
type Store interface {
	// CreateChat creates a chat and returns it with its assigned ID.
	CreateChat(ctx context.Context, chat NewChat) (*Chat, error)

	// GetChat fetches one chat, ErrChatNotFound when absent.
	GetChat(ctx context.Context, id string) (*Chat, error)

	// ListChats returns chats newest-updated first, with last message and
	// message count filled in. Temporary chats are excluded unless asked
	// for. A non-positive limit uses a backend default.
	ListChats(ctx context.Context, includeTemporary bool, limit int) ([]Chat, error)

	// AddMessage appends a message and bumps the chat's updated time.
	AddMessage(ctx context.Context, chatID, role, content string, tokens int) (int64, error)

	// GetMessages returns a chat's messages oldest first.
	GetMessages(ctx context.Context, chatID string, limit int) ([]StoredMessage, error)

	// ContextMessages returns the newest messages that fit the token
	// budget, oldest first, shaped for a completion call.
	ContextMessages(ctx context.Context, chatID string, maxTokens int) ([]providers.Message, error)

	// UpdateChatTitle renames a chat.
	UpdateChatTitle(ctx context.Context, chatID, title string) error

	// DeleteChat removes a chat and its messages.
	DeleteChat(ctx context.Context, chatID string) error

	// CleanupTemporary deletes temporary chats older than maxAge and
	// reports how many were removed.
	CleanupTemporary(ctx context.Context, maxAge time.Duration) (int, error)

	// Stats summarizes the store contents.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// defaultListLimit bounds ListChats when the caller passes no limit.
const defaultListLimit = 50

// Open constructs the backend selected by configuration.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// estimateTokens falls back to a rough length heuristic when the caller
// did not report a count.
func estimateTokens(tokens int, content string) int {
	if tokens > 0 {
		return tokens
	}
	return len(content) / 4
}
