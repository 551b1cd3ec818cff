package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
)

// Tool is a capability the agent can invoke during a conversation.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string

	// Description returns a human-readable description for the LLM.
	Description() string

	// InputSchema returns the JSON Schema for the tool's input.
	InputSchema() json.RawMessage

	// Execute runs the tool with the given JSON input and returns JSON output.
	Execute(ctx context.Context, input string) (string, error)
}

// FuncTool adapts a typed function into a Tool. The input schema is
// reflected from In; an empty or "null" input decodes to the zero value.
type FuncTool[In any] struct {
	name        string
	description string
	schema      json.RawMessage
	fn          func(ctx context.Context, in In) (string, error)
}

// NewFuncTool builds a FuncTool. In should be a struct with json tags.
func NewFuncTool[In any](name, description string, fn func(ctx context.Context, in In) (string, error)) *FuncTool[In] {
	return &FuncTool[In]{
		name:        name,
		description: description,
		schema:      reflectSchema[In](),
		fn:          fn,
	}
}

func (t *FuncTool[In]) Name() string                 { return t.name }
func (t *FuncTool[In]) Description() string          { return t.description }
func (t *FuncTool[In]) InputSchema() json.RawMessage { return t.schema }

func (t *FuncTool[In]) Execute(ctx context.Context, input string) (string, error) {
	var in In
	trimmed := strings.TrimSpace(input)
	if trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal([]byte(trimmed), &in); err != nil {
			return "", fmt.Errorf("invalid input for %s: %w", t.name, err)
		}
	}
	return t.fn(ctx, in)
}

// NoInput is the input type for tools that take no arguments.
type NoInput struct{}

var objectSchema = json.RawMessage(`{"type":"object"}`)

// reflectSchema derives the input schema from In. Anonymous structs cannot be
// expanded by name, and anything the reflector chokes on degrades to a plain
// object schema rather than failing tool construction.
func reflectSchema[In any]() (schema json.RawMessage) {
	defer func() {
		if recover() != nil {
			schema = objectSchema
		}
	}()

	t := reflect.TypeOf((*In)(nil)).Elem()
	if t.Kind() == reflect.Struct && t.Name() == "" && t.NumField() == 0 {
		return objectSchema
	}
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            t.Name() != "",
		DoNotReference:            true,
	}
	s := r.ReflectFromType(t)
	if s == nil {
		return objectSchema
	}
	s.Version = ""
	data, err := json.Marshal(s)
	if err != nil {
		return objectSchema
	}
	return data
}

// ToolRegistry holds available tools.
type ToolRegistry struct {
	tools map[string]Tool
}

// NewToolRegistry creates a registry holding the given tools.
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool.
func (r *ToolRegistry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions returns LLM-ready tool definitions for all registered tools,
// ordered by name.
func (r *ToolRegistry) Definitions() []ToolDef {
	defs := make([]ToolDef, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		defs = append(defs, ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// ToolDef is a serializable tool definition for passing to the LLM.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}
