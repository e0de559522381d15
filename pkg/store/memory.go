package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"meridian-hq/meridian/pkg/providers"
)

// Memory is the in-memory Store backend. Safe for concurrent use; all
// contents are lost on shutdown.
type Memory struct {
	mu       sync.Mutex
	chats    map[string]*Chat
	messages map[string][]StoredMessage
	nextID   int64

	// now is injected for cleanup tests.
	now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		chats:    make(map[string]*Chat),
		messages: make(map[string][]StoredMessage),
		now:      time.Now,
	}
}

// SetClock replaces the store's time source. Intended for tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) CreateChat(_ context.Context, chat NewChat) (*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
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
	m.chats[c.ID] = c

	out := *c
	return &out, nil
}

func (m *Memory) GetChat(_ context.Context, id string) (*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chats[id]
	if !ok {
		return nil, ErrChatNotFound
	}
	out := *c
	return &out, nil
}

func (m *Memory) ListChats(_ context.Context, includeTemporary bool, limit int) ([]Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = defaultListLimit
	}

	out := make([]Chat, 0, len(m.chats))
	for _, c := range m.chats {
		if c.Temporary && !includeTemporary {
			continue
		}
		entry := *c
		msgs := m.messages[c.ID]
		entry.MessageCount = len(msgs)
		if len(msgs) > 0 {
			entry.LastMessage = msgs[len(msgs)-1].Content
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) AddMessage(_ context.Context, chatID, role, content string, tokens int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chats[chatID]
	if !ok {
		return 0, ErrChatNotFound
	}

	m.nextID++
	now := m.now()
	m.messages[chatID] = append(m.messages[chatID], StoredMessage{
		ID:        m.nextID,
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Tokens:    tokens,
		CreatedAt: now,
	})
	c.UpdatedAt = now
	return m.nextID, nil
}

func (m *Memory) GetMessages(_ context.Context, chatID string, limit int) ([]StoredMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chats[chatID]; !ok {
		return nil, ErrChatNotFound
	}

	msgs := m.messages[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]StoredMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *Memory) ContextMessages(ctx context.Context, chatID string, maxTokens int) ([]providers.Message, error) {
	msgs, err := m.GetMessages(ctx, chatID, 0)
	if err != nil {
		return nil, err
	}
	return budgetMessages(msgs, maxTokens), nil
}

func (m *Memory) UpdateChatTitle(_ context.Context, chatID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chats[chatID]
	if !ok {
		return ErrChatNotFound
	}
	c.Title = title
	c.UpdatedAt = m.now()
	return nil
}

func (m *Memory) DeleteChat(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chats[chatID]; !ok {
		return ErrChatNotFound
	}
	delete(m.chats, chatID)
	delete(m.messages, chatID)
	return nil
}

func (m *Memory) CleanupTemporary(_ context.Context, maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for id, c := range m.chats {
		if c.Temporary && c.CreatedAt.Before(cutoff) {
			delete(m.chats, id)
			delete(m.messages, id)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var st Stats
	st.TotalChats = len(m.chats)
	for _, c := range m.chats {
		if c.Temporary {
			st.TemporaryChats++
		} else {
			st.PermanentChats++
		}
	}
	for _, msgs := range m.messages {
		st.TotalMessages += len(msgs)
		for _, msg := range msgs {
			switch msg.Role {
			case providers.RoleUser:
				st.UserMessages++
			case providers.RoleAssistant:
				st.AssistantMessages++
			}
		}
	}
	return st, nil
}

func (m *Memory) Close() error {
	return nil
}

// budgetMessages selects the newest messages whose combined token
// estimate fits the budget, preserving chronological order.
func budgetMessages(msgs []StoredMessage, maxTokens int) []providers.Message {
	if maxTokens <= 0 {
		maxTokens = 4000
	}

	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := estimateTokens(msgs[i].Tokens, msgs[i].Content)
		if total+cost > maxTokens {
			break
		}
		total += cost
		start = i
	}

	out := make([]providers.Message, 0, len(msgs)-start)
	for _, msg := range msgs[start:] {
		out = append(out, providers.Message{Role: msg.Role, Content: msg.Content})
	}
	return out
}
