package native

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the persisted identity for one write key: who actions are attributed to and
// which global properties ride along with them.
type Session struct {
	WriteKey         string
	ActorID          string
	Identified       bool
	GlobalProperties map[string]string
	UpdatedAt        time.Time
}

// newAnonymousSession starts a blank session with a random actor id.
func newAnonymousSession(writeKey string) *Session {
	return &Session{
		WriteKey:         writeKey,
		ActorID:          uuid.NewString(),
		GlobalProperties: map[string]string{},
	}
}

// clone returns a deep copy so stores never share maps with callers.
func (s *Session) clone() *Session {
	c := *s
	c.GlobalProperties = make(map[string]string, len(s.GlobalProperties))
	for k, v := range s.GlobalProperties {
		c.GlobalProperties[k] = v
	}
	return &c
}

// SessionStore persists sessions by write key.
type SessionStore interface {
	Load(ctx context.Context, writeKey string) (*Session, error)
	Save(ctx context.Context, session *Session) error
}

// MemoryStore keeps sessions for the life of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Load(_ context.Context, writeKey string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[writeKey]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.WriteKey] = session.clone()
	return nil
}
