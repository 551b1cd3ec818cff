package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/soyeahso/idpforge/internal/agent"
)

// Tool result statuses.
const (
	StatusSuccess        = "success"
	StatusError          = "error"
	StatusFound          = "found"
	StatusNotFound       = "not_found"
	StatusNotImplemented = "not_implemented"
	StatusNotConfigured  = "not_configured"
)

// GenerateDefault is the argument that asks a generator tool for its
// built-in content.
const GenerateDefault = "generate_default"

// ErrNotImplemented marks capabilities the agents only stub out.
var ErrNotImplemented = errors.New("not implemented")

// Envelope is the JSON object a tool returns to the model.
type Envelope map[string]any

// Failure is an expected, model-facing failure. Tools return it
// instead of a Go error so the model sees a structured answer it can
// reason about.
type Failure struct {
	Status  string
	Message string
	Fields  Envelope
}

func (e *Failure) Error() string {
	return e.Status + ": " + e.Message
}

// Is matches ErrNotImplemented for not_implemented results.
func (e *Failure) Is(target error) bool {
	return target == ErrNotImplemented && e.Status == StatusNotImplemented
}

// Envelope renders the error as a tool result.
func (e *Failure) Envelope() Envelope {
	out := Envelope{}
	for k, v := range e.Fields {
		out[k] = v
	}
	out["status"] = e.Status
	out["message"] = e.Message
	return out
}

// Failf returns an error-status result.
func Failf(format string, args ...any) *Failure {
	return &Failure{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// With adds fields to the result.
func (e *Failure) With(key string, value any) *Failure {
	if e.Fields == nil {
		e.Fields = Envelope{}
	}
	e.Fields[key] = value
	return e
}

// NotFound returns a not_found result.
func NotFound(message string) *Failure {
	return &Failure{Status: StatusNotFound, Message: message}
}

// NotConfigured returns a not_configured result.
func NotConfigured(message string) *Failure {
	return &Failure{Status: StatusNotConfigured, Message: message}
}

// NotImplemented returns a not_implemented result naming the technology and
// an alternative the model can try.
func NotImplemented(technology, message, suggestion string) *Failure {
	return &Failure{
		Status:  StatusNotImplemented,
		Message: message,
		Fields:  Envelope{"technology": technology, "suggestion": suggestion},
	}
}

// NewTool wraps fn as an agent tool answering with a JSON envelope. A
// *Failure becomes its envelope; any other error is reported to the
// runner as a tool failure. A nil envelope with a nil error is a bare
// success.
func NewTool[In any](name, description string, fn func(ctx context.Context, in In) (Envelope, error)) agent.Tool {
	return agent.NewFuncTool(name, description, func(ctx context.Context, in In) (string, error) {
		env, err := fn(ctx, in)
		var f *Failure
		switch {
		case errors.As(err, &f):
			env = f.Envelope()
		case err != nil:
			return "", err
		case env == nil:
			env = Envelope{}
		}
		if _, ok := env["status"]; !ok {
			env["status"] = StatusSuccess
		}
		return Encode(env)
	})
}

// Stub is a tool that always answers not_implemented.
func Stub(name, description, technology, suggestion string) agent.Tool {
	return NewTool(name, description, func(ctx context.Context, _ StubInput) (Envelope, error) {
		return nil, NotImplemented(technology,
			fmt.Sprintf("%s is not implemented yet.", technology), suggestion)
	})
}

// StubInput accepts the free-form argument stub tools advertise.
type StubInput struct {
	Config string `json:"config,omitempty" jsonschema:"description=Configuration or generate_default"`
}

// Encode marshals an envelope as indented JSON.
func Encode(env Envelope) (string, error) {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding tool result: %w", err)
	}
	return string(data), nil
}

// Decode parses a tool result back into an envelope.
func Decode(out string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(out), &env); err != nil {
		return nil, err
	}
	return env, nil
}

// StatusOf returns the status field of a tool result, or "".
func StatusOf(out string) string {
	env, err := Decode(out)
	if err != nil {
		return ""
	}
	s, _ := env["status"].(string)
	return s
}
