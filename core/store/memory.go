package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-relay/core/conversations"
)

type memorySession struct {
	userID  string
	log     conversations.Log
	summary string
}

// Memory keeps sessions and users in process memory. It is meant for tests
// and local runs without a database.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	users    map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		sessions: map[string]*memorySession{},
		users:    map[string]string{},
	}
}

var (
	_ SessionStore  = (*Memory)(nil)
	_ UserDirectory = (*Memory)(nil)
)

func (m *Memory) Load(_ context.Context, callID string) (conversations.Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return session.log.Clone(), nil
}

func (m *Memory) Save(_ context.Context, callID string, log conversations.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	session.log = log.Clone()
	return nil
}

func (m *Memory) CreateIfAbsent(_ context.Context, userID, callID string) (conversations.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[callID]
	if !ok {
		session = &memorySession{userID: userID, log: conversations.Log{}}
		m.sessions[callID] = session
	}
	return session.log.Clone(), nil
}

func (m *Memory) SaveSummary(_ context.Context, callID string, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	session.summary = summary
	return nil
}

// Summary returns the recorded summary of the call.
func (m *Memory) Summary(callID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[callID]
	if !ok || session.summary == "" {
		return "", false
	}
	return session.summary, true
}

func (m *Memory) GetOrCreateUser(_ context.Context, phoneNumber string) (string, error) {
	if phoneNumber == "" {
		phoneNumber = DefaultPhoneNumber
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.users[phoneNumber]
	if !ok {
		userID = uuid.NewString()
		m.users[phoneNumber] = userID
	}
	return userID, nil
}
