package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/idpforge/internal/domain"
	"github.com/soyeahso/idpforge/internal/llm"
)

// SQLiteSessionStore implements agent.SessionStore backed by SQLite.
type SQLiteSessionStore struct {
	db *DB
}

// NewSQLiteSessionStore creates a session store using the given database.
func NewSQLiteSessionStore(db *DB) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db}
}

const sessionColumns = `id, app_name, user_id, session_key, state, created_at, updated_at`

func scanSession(row *sql.Row) (*domain.Session, error) {
	var sess domain.Session
	var state, createdAt, updatedAt string
	if err := row.Scan(
		&sess.ID, &sess.Key.AppName, &sess.Key.UserID, &sess.Key.SessionID,
		&state, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	sess.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	sess.State = map[string]any{}
	_ = json.Unmarshal([]byte(state), &sess.State)
	return &sess, nil
}

// GetOrCreate finds an existing session by key or creates a new one.
func (s *SQLiteSessionStore) GetOrCreate(key domain.SessionKey) *domain.Session {
	keyStr := key.String()

	sess, err := scanSession(s.db.sql.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE key_str = ?`, keyStr,
	))
	if err == nil {
		sess.Messages = s.loadMessages(sess.ID)
		return sess
	}

	now := time.Now()
	sess = &domain.Session{
		ID:        uuid.New().String(),
		Key:       key,
		State:     map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.sql.Exec(
		`INSERT INTO sessions (id, key_str, app_name, user_id, session_key, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, '{}', ?, ?)`,
		sess.ID, keyStr, key.AppName, key.UserID, key.SessionID,
		now.Format(time.DateTime), now.Format(time.DateTime),
	)
	if err != nil {
		s.db.log.Error().Err(err).Str("key", keyStr).Msg("failed to create session")
	}

	return sess
}

// Get returns a session by ID, or nil if not found.
func (s *SQLiteSessionStore) Get(id string) *domain.Session {
	sess, err := scanSession(s.db.sql.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id,
	))
	if err != nil {
		return nil
	}
	sess.Messages = s.loadMessages(id)
	return sess
}

// Append adds a message to a session.
func (s *SQLiteSessionStore) Append(sessionID string, msg domain.Message) {
	var toolCallsJSON sql.NullString
	if len(msg.ToolCalls) > 0 {
		if data, err := json.Marshal(msg.ToolCalls); err == nil {
			toolCallsJSON = sql.NullString{String: string(data), Valid: true}
		}
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.sql.Exec(
		`INSERT INTO messages (session_id, role, author, content, timestamp, tool_calls)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, msg.Role, msg.Author, msg.Content, ts.Format(time.DateTime), toolCallsJSON,
	)
	if err != nil {
		s.db.log.Error().Err(err).Str("session", sessionID).Msg("failed to append message")
		return
	}

	s.touch(sessionID)
}

// History returns the messages authored by one agent as LLM messages. An
// empty author returns every message.
func (s *SQLiteSessionStore) History(sessionID, author string) []llm.Message {
	rows, err := s.db.sql.Query(
		`SELECT role, content FROM messages
		 WHERE session_id = ? AND (? = '' OR author = ?)
		 ORDER BY id`, sessionID, author, author,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var msgs []llm.Message
	for rows.Next() {
		var m llm.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// SetState stores value under key in the session's JSON state.
func (s *SQLiteSessionStore) SetState(sessionID, key string, value any) {
	var raw string
	if err := s.db.sql.QueryRow(`SELECT state FROM sessions WHERE id = ?`, sessionID).Scan(&raw); err != nil {
		s.db.log.Error().Err(err).Str("session", sessionID).Msg("failed to load session state")
		return
	}

	state := map[string]any{}
	_ = json.Unmarshal([]byte(raw), &state)
	state[key] = value

	data, err := json.Marshal(state)
	if err != nil {
		s.db.log.Error().Err(err).Str("key", key).Msg("failed to encode session state")
		return
	}
	if _, err := s.db.sql.Exec(
		`UPDATE sessions SET state = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().Format(time.DateTime), sessionID,
	); err != nil {
		s.db.log.Error().Err(err).Str("session", sessionID).Msg("failed to save session state")
	}
}

// Reset drops the messages and state of a session.
func (s *SQLiteSessionStore) Reset(sessionID string) {
	if _, err := s.db.sql.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		s.db.log.Error().Err(err).Str("session", sessionID).Msg("failed to clear messages")
		return
	}
	if _, err := s.db.sql.Exec(
		`UPDATE sessions SET state = '{}', updated_at = ? WHERE id = ?`,
		time.Now().Format(time.DateTime), sessionID,
	); err != nil {
		s.db.log.Error().Err(err).Str("session", sessionID).Msg("failed to clear state")
	}
}

// List returns all session IDs, most recently updated first.
func (s *SQLiteSessionStore) List() []string {
	rows, err := s.db.sql.Query(`SELECT id FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (s *SQLiteSessionStore) touch(sessionID string) {
	_, _ = s.db.sql.Exec(
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().Format(time.DateTime), sessionID,
	)
}

// loadMessages loads all messages for a session.
func (s *SQLiteSessionStore) loadMessages(sessionID string) []domain.Message {
	rows, err := s.db.sql.Query(
		`SELECT role, author, content, timestamp, tool_calls
		 FROM messages WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var ts string
		var toolCallsJSON sql.NullString

		if err := rows.Scan(&msg.Role, &msg.Author, &msg.Content, &ts, &toolCallsJSON); err != nil {
			continue
		}
		msg.Timestamp, _ = time.Parse(time.DateTime, ts)

		if toolCallsJSON.Valid && toolCallsJSON.String != "" {
			_ = json.Unmarshal([]byte(toolCallsJSON.String), &msg.ToolCalls)
		}

		msgs = append(msgs, msg)
	}
	return msgs
}
