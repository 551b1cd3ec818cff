package pipeline

import (
	"fmt"
	"strings"

	"github.com/soyeahso/idpforge/internal/agents"
)

// EnhancedTask wraps the user's task with the collaboration rules every
// agent of the chain receives.
func EnhancedTask(task string, stages []*agents.Definition) string {
	var b strings.Builder
	b.WriteString(task)
	b.WriteString("\n\n🤖 **A2A PROTOCOL (Agent-to-Agent) - Collaborative mode**\n\n")
	fmt.Fprintf(&b, "You are part of a sequential chain of %d specialized agents.\n", len(stages))
	b.WriteString("Each agent sees the decisions and outputs of the agents before it.\n\n")

	fmt.Fprintf(&b, "**The %d agents (ALL of them must run):**\n", len(stages))
	for i, d := range stages {
		fmt.Fprintf(&b, "%d. %s → %s", i+1, d.DisplayName, d.Description)
		if i == len(stages)-1 && i > 0 {
			b.WriteString(" (LAST agent)")
		}
		b.WriteString("\n")
	}

	b.WriteString(`
**How A2A works:**
1. Each agent READS the context of the previous agents
2. REASONS about what to do based on that context
3. EXPLAINS its reasoning briefly (1-2 sentences)
4. RUNS the tools it needs

**Rules:**
- You may reason and explain your thinking
- Do NOT ask the user anything (autonomous mode)
- Run your tools after reasoning
- Be brief: 1-2 sentences of reasoning, then act

**CRITICAL for the Platform Architect:**
Call save_platform_config() with the complete stack_summary:

save_platform_config(stack_summary="Runtime: X | Framework: Y | Database: Z | Cache: W | Monitoring: M | Security: S | CI/CD: C | Deployment: D | Environment: E")

The tool reads the user task file on its own to detect self-service capabilities.
`)
	return b.String()
}

// StageInput is the message a stage starts from: the enhanced task plus
// what the previous stages reported.
func StageInput(enhanced string, handoff []string) string {
	if len(handoff) == 0 {
		return enhanced
	}
	var b strings.Builder
	b.WriteString(enhanced)
	b.WriteString("\n**Context from previous agents:**\n")
	for _, h := range handoff {
		b.WriteString("- ")
		b.WriteString(h)
		b.WriteString("\n")
	}
	b.WriteString("\nIt is your turn now.")
	return b.String()
}
