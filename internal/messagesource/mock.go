package messagesource

import (
	"context"
	"sync"
	"time"

	"summarybot-ng/internal/domain"
)

// MockSource is an in-memory MessageSource for tests and local
// development without a live Discord bot token, the same role the
// teacher's table-driven fixtures play for article fetches.
type MockSource struct {
	mu           sync.RWMutex
	messages     map[string][]domain.RawMessage // channelID -> messages
	readableChan map[string]bool
	roles        map[string][]string // guildID+":"+userID -> roles
}

func NewMockSource() *MockSource {
	return &MockSource{
		messages:     make(map[string][]domain.RawMessage),
		readableChan: make(map[string]bool),
		roles:        make(map[string][]string),
	}
}

func (m *MockSource) Seed(channelID string, msgs []domain.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[channelID] = msgs
	m.readableChan[channelID] = true
}

func (m *MockSource) SetReadable(channelID string, readable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readableChan[channelID] = readable
}

func (m *MockSource) SetRoles(guildID, userID string, roles []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[guildID+":"+userID] = roles
}

func (m *MockSource) FetchRange(ctx context.Context, channelID string, start, end time.Time) ([]domain.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.RawMessage
	for _, msg := range m.messages[channelID] {
		if !msg.Timestamp.Before(start) && msg.Timestamp.Before(end) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *MockSource) HasReadAccess(ctx context.Context, channelID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readableChan[channelID], nil
}

func (m *MockSource) ResolveUserRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roles[guildID+":"+userID], nil
}
