package domain

import "time"

// SessionKey uniquely identifies a pipeline session.
type SessionKey struct {
	AppName   string `json:"appName"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// Default identifiers used when a run does not name its own session.
const (
	DefaultAppName   = "idp_orchestrator_app"
	DefaultUserID    = "idp_user"
	DefaultSessionID = "idp_session_001"
)

// DefaultSessionKey returns the key used by a plain `idpforge run`.
func DefaultSessionKey() SessionKey {
	return SessionKey{AppName: DefaultAppName, UserID: DefaultUserID, SessionID: DefaultSessionID}
}

// String returns a canonical string form of the session key.
func (k SessionKey) String() string {
	return k.AppName + ":" + k.UserID + ":" + k.SessionID
}

// Session is the shared conversation of one pipeline run. Every agent appends
// to the same session; State carries each agent's final output under its
// output key.
type Session struct {
	ID        string         `json:"id"`
	Key       SessionKey     `json:"key"`
	State     map[string]any `json:"state,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Messages  []Message      `json:"messages,omitempty"`
}

// Message is a single turn in a session. Author names the agent whose
// conversation the turn belongs to.
type Message struct {
	Role      string     `json:"role"` // "user", "assistant"
	Author    string     `json:"author,omitempty"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// ToolCall records one tool invocation and its outcome.
type ToolCall struct {
	Name   string `json:"name"`
	Input  string `json:"input"`  // JSON string
	Output string `json:"output"` // JSON string
	Error  string `json:"error,omitempty"`
}
