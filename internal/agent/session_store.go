package agent

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/idpforge/internal/domain"
	"github.com/soyeahso/idpforge/internal/llm"
)

// SessionStore manages conversation sessions.
type SessionStore interface {
	// GetOrCreate finds an existing session by key or creates a new one.
	GetOrCreate(key domain.SessionKey) *domain.Session

	// Get returns a session by ID, or nil if not found.
	Get(id string) *domain.Session

	// Append adds a message to a session.
	Append(sessionID string, msg domain.Message)

	// History returns the messages authored by one agent as LLM messages.
	// An empty author returns the whole session.
	History(sessionID, author string) []llm.Message

	// SetState stores a value in the session state.
	SetState(sessionID, key string, value any)

	// Reset drops the messages and state of a session, keeping its ID.
	Reset(sessionID string)

	// List returns all session IDs.
	List() []string
}

// MemorySessionStore is an in-memory SessionStore implementation.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session // id → session
	byKey    map[string]string          // key string → session id
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*domain.Session),
		byKey:    make(map[string]string),
	}
}

func (s *MemorySessionStore) GetOrCreate(key domain.SessionKey) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyStr := key.String()
	if id, ok := s.byKey[keyStr]; ok {
		if sess, ok := s.sessions[id]; ok {
			return cloneSession(sess)
		}
	}

	now := time.Now()
	sess := &domain.Session{
		ID:        uuid.New().String(),
		Key:       key,
		State:     map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sess.ID] = sess
	s.byKey[keyStr] = sess.ID
	return cloneSession(sess)
}

// Get returns a snapshot of the session.
func (s *MemorySessionStore) Get(id string) *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return cloneSession(sess)
}

func (s *MemorySessionStore) Append(sessionID string, msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		sess.Messages = append(sess.Messages, msg)
		sess.UpdatedAt = time.Now()
	}
}

func (s *MemorySessionStore) History(sessionID, author string) []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}

	msgs := make([]llm.Message, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		if author != "" && m.Author != author {
			continue
		}
		msgs = append(msgs, llm.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return msgs
}

func (s *MemorySessionStore) SetState(sessionID, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		if sess.State == nil {
			sess.State = map[string]any{}
		}
		sess.State[key] = value
		sess.UpdatedAt = time.Now()
	}
}

func (s *MemorySessionStore) Reset(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.Messages = nil
		sess.State = map[string]any{}
		sess.UpdatedAt = time.Now()
	}
}

func (s *MemorySessionStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func cloneSession(in *domain.Session) *domain.Session {
	out := *in
	out.Messages = append([]domain.Message(nil), in.Messages...)
	out.State = make(map[string]any, len(in.State))
	for k, v := range in.State {
		out.State[k] = v
	}
	return &out
}
