package hooks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/idpforge/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var called bool
	m.On(EventPipelineStart, "test", func(_ context.Context, p Payload) error {
		called = true
		assert.Equal(t, EventPipelineStart, p.Event)
		return nil
	})

	m.Emit(context.Background(), EventPipelineStart, nil)
	assert.True(t, called)
}

func TestManager_Emit_MultipleHandlers(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventAgentStart, "first", func(_ context.Context, _ Payload) error {
		order = append(order, "first")
		return nil
	})
	m.On(EventAgentStart, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventAgentStart, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_Emit_WithData(t *testing.T) {
	m := testManager()

	var gotData map[string]any
	m.On(EventAgentStart, "test", func(_ context.Context, p Payload) error {
		gotData = p.Data
		return nil
	})

	m.Emit(context.Background(), EventAgentStart, map[string]any{
		"agent": "security",
		"stage": 3,
	})

	assert.Equal(t, "security", gotData["agent"])
	assert.Equal(t, 3, gotData["stage"])
}

func TestManager_Emit_HandlerError(t *testing.T) {
	m := testManager()

	var secondCalled bool
	m.On(EventPipelineStart, "failing", func(_ context.Context, _ Payload) error {
		return errors.New("handler broke")
	})
	m.On(EventPipelineStart, "second", func(_ context.Context, _ Payload) error {
		secondCalled = true
		return nil
	})

	// Should not panic; second handler should still run
	m.Emit(context.Background(), EventPipelineStart, nil)
	assert.True(t, secondCalled)
}

func TestManager_Emit_NoHandlers(t *testing.T) {
	m := testManager()
	// Should not panic
	m.Emit(context.Background(), EventPipelineComplete, nil)
}

func TestManager_Off(t *testing.T) {
	m := testManager()

	var callCount int
	m.On(EventPipelineStart, "removable", func(_ context.Context, _ Payload) error {
		callCount++
		return nil
	})

	m.Emit(context.Background(), EventPipelineStart, nil)
	assert.Equal(t, 1, callCount)

	m.Off(EventPipelineStart, "removable")
	m.Emit(context.Background(), EventPipelineStart, nil)
	assert.Equal(t, 1, callCount) // should not have been called again
}

func TestManager_Off_KeepsOthers(t *testing.T) {
	m := testManager()

	var keepCalled int
	m.On(EventPipelineStart, "remove-me", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventPipelineStart, "keep-me", func(_ context.Context, _ Payload) error {
		keepCalled++
		return nil
	})

	m.Off(EventPipelineStart, "remove-me")
	m.Emit(context.Background(), EventPipelineStart, nil)
	assert.Equal(t, 1, keepCalled)
}

func TestManager_EmitAsync(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	release := make(chan struct{})
	for _, name := range []string{"async1", "async2"} {
		m.On(EventArtifactWritten, name, func(_ context.Context, p Payload) error {
			<-release
			count.Add(1)
			return nil
		})
	}

	m.EmitAsync(context.Background(), EventArtifactWritten, map[string]any{"path": "platform_config.json"})
	assert.Equal(t, int32(0), count.Load(), "EmitAsync must not wait for handlers")
	close(release)

	done := make(chan struct{})
	go func() { m.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handlers did not complete in time")
	}
	assert.Equal(t, int32(2), count.Load())
}

func TestManager_HandlerPanicIsContained(t *testing.T) {
	m := testManager()
	after := false
	m.On(EventAgentError, "boom", func(context.Context, Payload) error { panic("boom") })
	m.On(EventAgentError, "after", func(context.Context, Payload) error { after = true; return nil })

	assert.NotPanics(t, func() { m.Emit(context.Background(), EventAgentError, nil) })
	assert.True(t, after)
}

func TestPayload_Stamped(t *testing.T) {
	m := testManager()
	var got Payload
	m.On(EventPipelineStart, "capture", func(_ context.Context, p Payload) error { got = p; return nil })

	before := time.Now().UTC()
	m.Emit(context.Background(), EventPipelineStart, nil)
	assert.Equal(t, EventPipelineStart, got.Event)
	assert.False(t, got.Time.Before(before.Add(-time.Second)))
}

func TestManager_Count(t *testing.T) {
	m := testManager()

	assert.Equal(t, 0, m.Count(EventPipelineStart))

	m.On(EventPipelineStart, "h1", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 1, m.Count(EventPipelineStart))

	m.On(EventPipelineStart, "h2", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 2, m.Count(EventPipelineStart))
}

func TestManager_Events(t *testing.T) {
	m := testManager()

	m.On(EventPipelineStart, "h1", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventAgentStart, "h2", func(_ context.Context, _ Payload) error { return nil })

	assert.Equal(t, []string{EventAgentStart, EventPipelineStart}, m.Events())
}

func TestAllEvents_NotEmpty(t *testing.T) {
	require.NotEmpty(t, AllEvents)
	assert.Contains(t, AllEvents, EventPipelineStart)
	assert.Contains(t, AllEvents, EventAgentStart)
	assert.True(t, Known(EventToolCall))
	assert.False(t, Known("message_received"))
}

func TestManager_NilIsNoop(t *testing.T) {
	var m *Manager
	m.Emit(context.Background(), EventPipelineStart, nil)
	m.EmitAsync(context.Background(), EventPipelineStart, nil)
	assert.Equal(t, 0, m.Count(EventPipelineStart))
}
