// Package hooks provides an event-driven hook system for pipeline lifecycle
// events. A nil *Manager is valid and drops every event.
package hooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/idpforge/internal/logging"
)

// Event names for the hook system.
const (
	EventPipelineStart    = "pipeline.start"
	EventPipelineComplete = "pipeline.complete"
	EventPipelineError    = "pipeline.error"
	EventAgentStart       = "agent.start"
	EventAgentComplete    = "agent.complete"
	EventAgentError       = "agent.error"
	EventToolCall         = "tool.call"
	EventToolResult       = "tool.result"
	EventArtifactWritten  = "artifact.written"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventPipelineStart,
	EventPipelineComplete,
	EventPipelineError,
	EventAgentStart,
	EventAgentComplete,
	EventAgentError,
	EventToolCall,
	EventToolResult,
	EventArtifactWritten,
}

// Known reports whether event is one of AllEvents.
func Known(event string) bool {
	for _, e := range AllEvents {
		if e == event {
			return true
		}
	}
	return false
}

// Payload is what handlers receive; shell hooks get it as JSON on stdin.
type Payload struct {
	Event string         `json:"event"`
	Time  time.Time      `json:"time"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to an event. An error is logged and never stops the pipeline.
type Handler func(ctx context.Context, p Payload) error

// Manager holds the handlers per event.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	inflight sync.WaitGroup
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler under name for event.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes every handler called name from event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.handlers[event][:0:0]
	for _, h := range m.handlers[event] {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	m.handlers[event] = kept
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]namedHandler(nil), m.handlers[event]...)
}

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("event", p.Event).Str("handler", h.name).Interface("panic", r).Msg("hook handler panicked")
		}
	}()
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().Err(err).Str("event", p.Event).Str("handler", h.name).Msg("hook handler failed")
	}
}

// Emit runs the handlers for event one after another, in registration order.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	p := Payload{Event: event, Time: time.Now().UTC(), Data: data}
	for _, h := range m.snapshot(event) {
		m.call(ctx, h, p)
	}
}

// EmitAsync starts every handler for event in its own goroutine and returns.
// Wait blocks until they are done.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	p := Payload{Event: event, Time: time.Now().UTC(), Data: data}
	for _, h := range m.snapshot(event) {
		m.inflight.Add(1)
		go func() {
			defer m.inflight.Done()
			m.call(ctx, h, p)
		}()
	}
}

// Wait blocks until handlers started by EmitAsync have returned.
func (m *Manager) Wait() {
	if m == nil {
		return
	}
	m.inflight.Wait()
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events lists, sorted, the events that have at least one handler.
func (m *Manager) Events() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	sort.Strings(events)
	return events
}
