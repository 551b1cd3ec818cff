package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Step is one scripted turn of an autopilot plan. Either Input or InputFrom
// supplies the tool arguments; InputFrom sees the conversation so far and may
// adapt to earlier tool results.
type Step struct {
	Tool      string
	Input     map[string]any
	InputFrom func(history []Message) map[string]any
	Say       string
}

// Plan is the ordered list of tool calls an agent makes when no model is
// available.
type Plan []Step

// AutopilotClient is a deterministic offline provider. For each agent it
// replays that agent's plan one tool call per turn, then returns a summary.
// It lets the whole pipeline run end-to-end without network access.
type AutopilotClient struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewAutopilotClient creates an autopilot with no plans loaded.
func NewAutopilotClient() *AutopilotClient {
	return &AutopilotClient{plans: make(map[string]Plan)}
}

// SetPlan installs the plan for an agent.
func (a *AutopilotClient) SetPlan(agent string, p Plan) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.plans[agent] = p
}

// Complete returns the next scripted tool call for req.Agent. The turn index
// is the number of assistant messages already in the conversation.
func (a *AutopilotClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	plan, ok := a.plans[req.Agent]
	a.mu.RUnlock()
	if !ok {
		return nil, &ProviderError{Provider: "autopilot", Message: fmt.Sprintf("no plan for agent %q", req.Agent), Code: 404}
	}

	turn := 0
	for _, m := range req.Messages {
		if m.Role == RoleAssistant {
			turn++
		}
	}

	if turn >= len(plan) {
		return &CompletionResponse{
			Content:    autopilotSummary(req.Agent, plan, req.Messages),
			StopReason: "end_turn",
			Model:      "autopilot",
		}, nil
	}

	step := plan[turn]
	input := step.Input
	if step.InputFrom != nil {
		input = step.InputFrom(req.Messages)
	}
	if input == nil {
		input = map[string]any{}
	}
	payload, err := json.Marshal(map[string]any{"tool": step.Tool, "input": input})
	if err != nil {
		return nil, fmt.Errorf("autopilot: encoding %s input: %w", step.Tool, err)
	}

	var b strings.Builder
	if step.Say != "" {
		b.WriteString(step.Say)
		b.WriteString("\n\n")
	}
	b.WriteString("```tool_call\n")
	b.Write(payload)
	b.WriteString("\n```")

	return &CompletionResponse{Content: b.String(), StopReason: "tool_use", Model: "autopilot"}, nil
}

// Name returns the provider name.
func (a *AutopilotClient) Name() string { return "autopilot" }

func autopilotSummary(agent string, plan Plan, history []Message) string {
	tools := make([]string, 0, len(plan))
	for _, s := range plan {
		tools = append(tools, s.Tool)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s completed its hand-off.", agent)
	if len(tools) > 0 {
		fmt.Fprintf(&b, " Tools used: %s.", strings.Join(tools, ", "))
	}
	if last := LastToolResults(history); last != "" {
		b.WriteString("\n\nLast tool result:\n")
		b.WriteString(last)
	}
	return b.String()
}

// LastToolResults returns the content of the most recent user turn carrying
// tool results, or "".
func LastToolResults(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role == RoleUser && strings.HasPrefix(m.Content, ToolResultsHeader) {
			return strings.TrimSpace(strings.TrimPrefix(m.Content, ToolResultsHeader))
		}
	}
	return ""
}

// ToolResultsHeader prefixes the user turn that reports tool results.
const ToolResultsHeader = "Tool execution results:\n\n"

// ToolOutput finds the most recent output of the named tool in the history.
// Results are rendered as "### <tool>\n<output>" sections.
func ToolOutput(history []Message, tool string) string {
	marker := "### " + tool + "\n"
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role != RoleUser || !strings.HasPrefix(m.Content, ToolResultsHeader) {
			continue
		}
		idx := strings.Index(m.Content, marker)
		if idx < 0 {
			continue
		}
		rest := m.Content[idx+len(marker):]
		if end := strings.Index(rest, "\n### "); end >= 0 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}
	return ""
}
