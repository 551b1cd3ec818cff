package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutopilotReplaysPlan(t *testing.T) {
	a := NewAutopilotClient()
	a.SetPlan("devex", Plan{
		{Tool: "get_platform_config", Say: "Reading the platform config."},
		{Tool: "save_cli_tool", Input: map[string]any{"cli_summary": "generate_default"}},
	})
	ctx := context.Background()

	history := []Message{{Role: RoleUser, Content: "go"}}
	resp, err := a.Complete(ctx, CompletionRequest{Agent: "devex", Messages: history})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "Reading the platform config.")
	assert.Contains(t, resp.Content, "```tool_call\n{\"input\":{},\"tool\":\"get_platform_config\"}\n```")

	history = append(history,
		Message{Role: RoleAssistant, Content: resp.Content},
		Message{Role: RoleUser, Content: ToolResultsHeader + "### get_platform_config\n{\"status\":\"found\"}\n\n"},
	)
	resp, err = a.Complete(ctx, CompletionRequest{Agent: "devex", Messages: history})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, `"cli_summary":"generate_default"`)

	history = append(history,
		Message{Role: RoleAssistant, Content: resp.Content},
		Message{Role: RoleUser, Content: ToolResultsHeader + "### save_cli_tool\n{\"status\":\"success\"}\n\n"},
	)
	resp, err = a.Complete(ctx, CompletionRequest{Agent: "devex", Messages: history})
	require.NoError(t, err)
	assert.NotContains(t, resp.Content, "tool_call")
	assert.Contains(t, resp.Content, "Tools used: get_platform_config, save_cli_tool.")
	assert.Contains(t, resp.Content, `{"status":"success"}`)
}

func TestAutopilotInputFrom(t *testing.T) {
	a := NewAutopilotClient()
	a.SetPlan("architect", Plan{
		{Tool: "get_user_preferences"},
		{Tool: "save_platform_config", InputFrom: func(h []Message) map[string]any {
			return map[string]any{"prefs": ToolOutput(h, "get_user_preferences")}
		}},
	})

	history := []Message{
		{Role: RoleUser, Content: "task"},
		{Role: RoleAssistant, Content: "call"},
		{Role: RoleUser, Content: ToolResultsHeader + "### get_user_preferences\n{\"ci_cd\":\"GitLab CI\"}\n\n### other\nx\n"},
	}
	resp, err := a.Complete(context.Background(), CompletionRequest{Agent: "architect", Messages: history})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, `GitLab CI`)
	assert.NotContains(t, resp.Content, "### other")
}

func TestAutopilotUnknownAgent(t *testing.T) {
	_, err := NewAutopilotClient().Complete(context.Background(), CompletionRequest{Agent: "nobody"})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 404, pe.Code)
	assert.False(t, IsRetryable(err))
}

func TestToolOutputMissing(t *testing.T) {
	assert.Empty(t, ToolOutput(nil, "x"))
	assert.Empty(t, LastToolResults([]Message{{Role: RoleUser, Content: "plain"}}))
}
