package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/soyeahso/idpforge/internal/domain"
	"github.com/soyeahso/idpforge/internal/hooks"
	"github.com/soyeahso/idpforge/internal/llm"
	"github.com/soyeahso/idpforge/internal/logging"
	"github.com/soyeahso/idpforge/internal/metrics"
)

// DefaultMaxToolIterations limits how many tool call rounds the agent can perform.
const DefaultMaxToolIterations = 8

// RunnerConfig configures the agent runner.
type RunnerConfig struct {
	AgentID           string
	AgentName         string
	Instruction       string
	Provider          string
	Fallbacks         []string
	Model             string
	MaxTokens         int
	Temperature       *float64
	MaxToolIterations int
	OutputDir         string
	ExtraPrompt       string
}

// RunResult is the outcome of one agent turn.
type RunResult struct {
	Response   string            `json:"response"`
	SessionID  string            `json:"sessionId"`
	Model      string            `json:"model,omitempty"`
	Usage      llm.Usage         `json:"usage"`
	ToolCalls  []domain.ToolCall `json:"toolCalls,omitempty"`
	Iterations int               `json:"iterations"`
	Duration   time.Duration     `json:"duration"`
}

// Runner is the agent tool loop. It sends the agent's conversation to the
// model, executes requested tools and feeds their results back until the
// model answers without tool calls.
type Runner struct {
	cfg      RunnerConfig
	client   llm.Client
	sessions SessionStore
	tools    *ToolRegistry
	hooks    *hooks.Manager
	log      *logging.Logger
}

// NewRunner creates an agent runner that resolves its model client through
// the registry with failover.
func NewRunner(
	cfg RunnerConfig,
	registry *llm.Registry,
	sessions SessionStore,
	tools *ToolRegistry,
	log *logging.Logger,
) *Runner {
	fc := NewFailoverClient(registry, cfg.Provider, cfg.Fallbacks, log)
	return newRunner(cfg, fc, sessions, tools, log)
}

func newRunner(cfg RunnerConfig, client llm.Client, sessions SessionStore, tools *ToolRegistry, log *logging.Logger) *Runner {
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = DefaultMaxToolIterations
	}
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Runner{
		cfg:      cfg,
		client:   client,
		sessions: sessions,
		tools:    tools,
		log:      log.Sub("agent." + cfg.AgentID),
	}
}

// SetHooks attaches a hook manager for tool.call and tool.result events.
func (r *Runner) SetHooks(h *hooks.Manager) {
	r.hooks = h
}

// Tools returns the runner's tool registry.
func (r *Runner) Tools() *ToolRegistry { return r.tools }

// SystemPrompt renders the system prompt sent on every completion.
func (r *Runner) SystemPrompt() string {
	return BuildSystemPrompt(PromptConfig{
		AgentName:   r.cfg.AgentName,
		AgentID:     r.cfg.AgentID,
		Instruction: r.cfg.Instruction,
		Tools:       r.tools.Definitions(),
		OutputDir:   r.cfg.OutputDir,
		ExtraPrompt: r.cfg.ExtraPrompt,
	})
}

// Run appends input to the agent's conversation in the session and drives
// the tool loop to a final answer.
func (r *Runner) Run(ctx context.Context, sessionID, input string) (*RunResult, error) {
	start := time.Now()

	session := r.sessions.Get(sessionID)
	if session == nil {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}

	r.log.Info().
		Str("sessionId", session.ID).
		Int("historyLen", len(session.Messages)).
		Msg("starting agent turn")

	r.sessions.Append(session.ID, domain.Message{
		Role:      llm.RoleUser,
		Author:    r.cfg.AgentID,
		Content:   input,
		Timestamp: time.Now(),
	})

	system := r.SystemPrompt()

	var (
		finalResp *llm.CompletionResponse
		usage     llm.Usage
		records   []domain.ToolCall
		iter      int
	)
	for iter = 0; ; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req := llm.CompletionRequest{
			Model:       r.cfg.Model,
			Agent:       r.cfg.AgentID,
			System:      system,
			Messages:    r.sessions.History(session.ID, r.cfg.AgentID),
			MaxTokens:   r.cfg.MaxTokens,
			Temperature: r.cfg.Temperature,
		}

		resp, err := r.client.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("LLM completion: %w", err)
		}
		finalResp = resp
		usage.Add(resp.Usage)

		calls := parseToolCalls(resp.Content)
		if len(calls) == 0 {
			break
		}
		if iter >= r.cfg.MaxToolIterations {
			r.log.Warn().Int("limit", r.cfg.MaxToolIterations).Msg("tool iteration limit reached")
			break
		}

		r.log.Info().Int("toolCalls", len(calls)).Msg("executing tool calls")

		results := r.executeToolCalls(ctx, session.ID, calls)
		calledNow := make([]domain.ToolCall, 0, len(results))
		for _, res := range results {
			tc := domain.ToolCall{Name: res.Tool, Input: res.Input, Output: res.Output}
			if res.Err != nil {
				tc.Error = res.Err.Error()
			}
			calledNow = append(calledNow, tc)
		}
		records = append(records, calledNow...)

		r.sessions.Append(session.ID, domain.Message{
			Role:      llm.RoleAssistant,
			Author:    r.cfg.AgentID,
			Content:   resp.Content,
			Timestamp: time.Now(),
			ToolCalls: calledNow,
		})
		r.sessions.Append(session.ID, domain.Message{
			Role:      llm.RoleUser,
			Author:    r.cfg.AgentID,
			Content:   formatToolResults(results),
			Timestamp: time.Now(),
		})
	}

	if finalResp == nil {
		return nil, fmt.Errorf("no response from LLM")
	}

	cleanResponse := stripToolCalls(finalResp.Content, r.log)

	r.sessions.Append(session.ID, domain.Message{
		Role:      llm.RoleAssistant,
		Author:    r.cfg.AgentID,
		Content:   cleanResponse,
		Timestamp: time.Now(),
	})

	r.log.Info().
		Str("sessionId", session.ID).
		Str("model", finalResp.Model).
		Int("toolCalls", len(records)).
		Int("inputTokens", usage.InputTokens).
		Int("outputTokens", usage.OutputTokens).
		Dur("duration", time.Since(start)).
		Msg("agent turn complete")

	return &RunResult{
		Response:   cleanResponse,
		SessionID:  session.ID,
		Model:      finalResp.Model,
		Usage:      usage,
		ToolCalls:  records,
		Iterations: iter + 1,
		Duration:   time.Since(start),
	}, nil
}

// toolCall is a parsed tool invocation from the LLM response.
type toolCall struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// toolResult holds the output from executing a tool.
type toolResult struct {
	Tool   string
	Input  string
	Output string
	Err    error
}

// toolCallRe matches ```tool_call\n{...}\n``` blocks in LLM output.
var toolCallRe = regexp.MustCompile("(?s)```tool_call\\s*\n(\\{.*?\\})\n\\s*```")

// xmlFuncCallRe matches <function_calls>...</function_calls> XML blocks in LLM output.
var xmlFuncCallRe = regexp.MustCompile(`(?s)<function_calls>.*?</function_calls>`)

// xmlBlockLevelRe matches self-contained XML blocks that LLMs emit for tool use
// (block-level, replaced with paragraph break).
var xmlBlockLevelRe = regexp.MustCompile(`(?s)(?:` +
	`<invoke\b[^>]*>.*?</invoke>` +
	`|<tool_call\b[^>]*>.*?</tool_call>` +
	`|<tool_use\b[^>]*>.*?</tool_use>` +
	`)`)

// xmlInlineTagRe matches parameter tags that can appear inline within text.
var xmlInlineTagRe = regexp.MustCompile(`(?s)<parameter\b[^>]*>.*?</parameter>`)

// codeFenceRe matches fenced code block opening/closing markers on their own line.
// Only the markers are stripped; content between fences is preserved.
var codeFenceRe = regexp.MustCompile(`(?m)^\s*` + "```" + `\w*\s*$`)

// whitespaceLineRe matches lines containing only horizontal whitespace.
var whitespaceLineRe = regexp.MustCompile(`(?m)^[ \t]+$`)

// blankLineCollapseRe collapses 3+ consecutive newlines to a single blank line.
var blankLineCollapseRe = regexp.MustCompile(`\n{3,}`)

// parseToolCalls extracts tool_call blocks from LLM response text.
func parseToolCalls(text string) []toolCall {
	matches := toolCallRe.FindAllStringSubmatch(text, -1)
	var calls []toolCall
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		var tc toolCall
		if err := json.Unmarshal([]byte(match[1]), &tc); err != nil {
			continue
		}
		if tc.Tool != "" {
			calls = append(calls, tc)
		}
	}
	return calls
}

// executeToolCalls runs each tool in order and returns results.
func (r *Runner) executeToolCalls(ctx context.Context, sessionID string, calls []toolCall) []toolResult {
	results := make([]toolResult, 0, len(calls))
	for _, tc := range calls {
		input := string(tc.Input)
		if input == "" {
			input = "{}"
		}
		r.hooks.Emit(ctx, hooks.EventToolCall, map[string]any{
			"agent":     r.cfg.AgentID,
			"sessionId": sessionID,
			"tool":      tc.Tool,
			"input":     input,
		})

		res := toolResult{Tool: tc.Tool, Input: input}
		tool, ok := r.tools.Get(tc.Tool)
		if !ok {
			res.Err = fmt.Errorf("unknown tool: %s", tc.Tool)
		} else {
			r.log.Debug().Str("tool", tc.Tool).Msg("executing tool")
			res.Output, res.Err = safeExecute(ctx, tool, input)
		}
		if res.Err != nil {
			r.log.Warn().Str("tool", tc.Tool).Err(res.Err).Msg("tool failed")
		}
		metrics.RecordToolCall(r.cfg.AgentID, tc.Tool, res.Err == nil)

		data := map[string]any{
			"agent":     r.cfg.AgentID,
			"sessionId": sessionID,
			"tool":      tc.Tool,
			"output":    res.Output,
		}
		if res.Err != nil {
			data["error"] = res.Err.Error()
		}
		r.hooks.Emit(ctx, hooks.EventToolResult, data)

		results = append(results, res)
	}
	return results
}

// safeExecute runs a tool and converts a panic into an error result.
func safeExecute(ctx context.Context, t Tool, input string) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %s panicked: %v", t.Name(), p)
		}
	}()
	return t.Execute(ctx, input)
}

// formatToolResults renders tool execution results for the LLM.
func formatToolResults(results []toolResult) string {
	var b strings.Builder
	b.WriteString(llm.ToolResultsHeader)
	for _, r := range results {
		fmt.Fprintf(&b, "### %s\n", r.Tool)
		if r.Err != nil {
			fmt.Fprintf(&b, "Error: %s\n", r.Err)
		} else {
			b.WriteString(r.Output)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// stripToolCalls removes tool_call code blocks and XML function_calls blocks
// from the response, leaving surrounding text. Stripped XML blocks are logged
// to the console so they remain visible for debugging.
func stripToolCalls(text string, log *logging.Logger) string {
	// Block-level elements are replaced with a paragraph break so
	// surrounding text stays visually separated (e.g. a list item
	// followed by a closing sentence). Inline tags use a space.

	// Strip ```tool_call``` code blocks (block-level)
	cleaned := toolCallRe.ReplaceAllString(text, "\n\n")

	// Strip <function_calls>...</function_calls> XML blocks (block-level)
	xmlMatches := xmlFuncCallRe.FindAllString(cleaned, -1)
	if len(xmlMatches) > 0 && log != nil {
		for _, m := range xmlMatches {
			log.Info().Str("xml", m).Msg("stripped XML function_calls from LLM response")
		}
	}
	cleaned = xmlFuncCallRe.ReplaceAllString(cleaned, "\n\n")

	// Strip known block-level XML tags
	cleaned = xmlBlockLevelRe.ReplaceAllString(cleaned, "\n\n")

	// Strip inline parameter tags
	cleaned = xmlInlineTagRe.ReplaceAllString(cleaned, " ")

	// Strip code fence markers (``` and ```language) but keep content between them.
	// The final text is handed to the next agent and the IRC summary, neither of
	// which renders markdown.
	cleaned = codeFenceRe.ReplaceAllString(cleaned, "")

	// Clean up whitespace artifacts left by replacements:
	// Lines that are now only spaces/tabs become empty lines.
	cleaned = whitespaceLineRe.ReplaceAllString(cleaned, "")
	// Collapse 3+ consecutive newlines into one blank line.
	cleaned = blankLineCollapseRe.ReplaceAllString(cleaned, "\n\n")

	return strings.TrimSpace(cleaned)
}
