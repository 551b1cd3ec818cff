package agent

import (
	"fmt"
	"strings"
	"time"
)

// PromptConfig controls system prompt generation.
type PromptConfig struct {
	AgentName   string
	AgentID     string
	Instruction string
	Tools       []ToolDef
	OutputDir   string
	Now         time.Time
	ExtraPrompt string
}

// BuildSystemPrompt constructs the system prompt for the LLM.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder

	if cfg.AgentName != "" {
		fmt.Fprintf(&b, "You are the %s agent (%s) of an Internal Developer Platform pipeline.\n", cfg.AgentName, cfg.AgentID)
	}

	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}
	fmt.Fprintf(&b, "Current date: %s\n", now.Format("2006-01-02"))
	if cfg.OutputDir != "" {
		fmt.Fprintf(&b, "Output directory: %s\n", cfg.OutputDir)
	}
	b.WriteString("\n")

	if cfg.Instruction != "" {
		b.WriteString(strings.TrimSpace(cfg.Instruction))
		b.WriteString("\n\n")
	}

	b.WriteString("Guidelines:\n")
	b.WriteString("- When using tools, explain what you're doing.\n")
	b.WriteString("- Tool results are JSON objects with a \"status\" field. Treat \"not_implemented\" as a signal to use the suggested alternative.\n")
	b.WriteString("- Finish with a short summary of what you produced for the next agent.\n")

	if len(cfg.Tools) > 0 {
		b.WriteString("\n## Available Tools\n\n")
		b.WriteString("You can call tools by outputting a fenced code block with the language tag `tool_call`:\n\n")
		b.WriteString("```tool_call\n{\"tool\": \"tool_name\", \"input\": {\"param\": \"value\"}}\n```\n\n")
		b.WriteString("After a tool is executed, the result will be provided. You may call multiple tools before giving your final response.\n\n")
		for _, t := range cfg.Tools {
			fmt.Fprintf(&b, "### %s\n%s\n", t.Name, t.Description)
			if len(t.InputSchema) > 0 {
				fmt.Fprintf(&b, "Input schema: %s\n", t.InputSchema)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## Agent-to-Agent Protocol\n\n")
	b.WriteString("Agents run one after another and share a working directory. Earlier agents leave decision files there; ")
	b.WriteString("read them with your tools instead of guessing. Your final message is handed to the next agent as context.\n")

	if cfg.ExtraPrompt != "" {
		b.WriteString("\n")
		b.WriteString(cfg.ExtraPrompt)
		b.WriteString("\n")
	}

	return b.String()
}
