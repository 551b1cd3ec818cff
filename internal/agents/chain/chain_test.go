package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/idpforge/internal/agents/agentstest"
	"github.com/soyeahso/idpforge/internal/llm"
)

func TestBuild_Order(t *testing.T) {
	defs := Build(agentstest.Deps(t))
	require.Len(t, defs, 7)
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
		assert.NotEmpty(t, d.Plan, d.Name)
		assert.NotEmpty(t, d.Instruction, d.Name)
		assert.NotEmpty(t, d.OutputKey, d.Name)
	}
	assert.Equal(t, []string{
		"platform_architect", "infrastructure", "security", "cicd",
		"observability", "devex", "web_portal",
	}, names)
}

func TestPlansOnlyUseOwnTools(t *testing.T) {
	for _, def := range Build(agentstest.Deps(t)) {
		tools := map[string]bool{}
		for _, tl := range def.Tools {
			assert.False(t, tools[tl.Name()], "%s: duplicate tool %s", def.Name, tl.Name())
			tools[tl.Name()] = true
		}
		for _, step := range def.Plan {
			assert.True(t, tools[step.Tool], "%s plans unknown tool %s", def.Name, step.Tool)
		}
	}
}

func TestGet(t *testing.T) {
	d := agentstest.Deps(t)
	def, ok := Get(d, "cicd")
	require.True(t, ok)
	assert.Equal(t, "CI/CD", def.DisplayName)

	_, ok = Get(d, "nope")
	assert.False(t, ok)
}

func TestAutopilot(t *testing.T) {
	defs := Build(agentstest.Deps(t))
	auto := Autopilot(defs)
	resp, err := auto.Complete(context.Background(), llm.CompletionRequest{Agent: "devex"})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "get_platform_config")
}
