// Package agentstest runs agent definitions against the autopilot provider
// in tests.
package agentstest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soyeahso/idpforge/internal/agent"
	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/catalog"
	"github.com/soyeahso/idpforge/internal/domain"
	"github.com/soyeahso/idpforge/internal/llm"
	"github.com/soyeahso/idpforge/internal/logging"
	"github.com/soyeahso/idpforge/internal/scanner"
	"github.com/soyeahso/idpforge/internal/workspace"
)

// Clock is the fixed time test deps report.
var Clock = time.Date(2026, 1, 18, 9, 30, 0, 0, time.UTC)

// Deps returns agent deps over a fresh temporary workspace. The scanner
// runs on exec, so tests that scan replace it.
func Deps(t testing.TB) agents.Deps {
	t.Helper()
	dir := t.TempDir()
	return agents.Deps{
		Workspace:       workspace.New(filepath.Join(dir, "outputs")),
		Catalog:         catalog.Default(),
		Scanner:         scanner.New(&scanner.FakeExecutor{}, time.Second, logging.Nop()),
		PreferencesFile: filepath.Join(dir, "user-preferences.yaml"),
		Model:           "autopilot",
		Clock:           func() time.Time { return Clock },
		Logger:          logging.Nop(),
	}
}

// Run replays def.Plan through a runner and returns the result.
func Run(t testing.TB, def *agents.Definition, input string) *agent.RunResult {
	t.Helper()
	auto := llm.NewAutopilotClient()
	auto.SetPlan(def.Name, def.Plan)

	reg := llm.NewRegistry(logging.Nop())
	reg.Register("autopilot", auto)

	sessions := agent.NewMemorySessionStore()
	sess := sessions.GetOrCreate(domain.DefaultSessionKey())

	r := agent.NewRunner(agent.RunnerConfig{
		AgentID:     def.Name,
		AgentName:   def.DisplayName,
		Instruction: def.Instruction,
		Provider:    "autopilot",
	}, reg, sessions, agent.NewToolRegistry(def.Tools...), logging.Nop())

	res, err := r.Run(context.Background(), sess.ID, input)
	require.NoError(t, err)
	return res
}

// Call executes one tool of def directly and decodes its envelope.
func Call(t testing.TB, def *agents.Definition, tool, input string) agents.Envelope {
	t.Helper()
	for _, tl := range def.Tools {
		if tl.Name() != tool {
			continue
		}
		out, err := tl.Execute(context.Background(), input)
		require.NoError(t, err)
		env, err := agents.Decode(out)
		require.NoError(t, err)
		return env
	}
	t.Fatalf("agent %s has no tool %s", def.Name, tool)
	return nil
}

// SeedPlatformConfig writes a platform-config.yaml for a Python, PostgreSQL,
// Redis, Trivy and Jenkins stack after applying mutate.
func SeedPlatformConfig(t testing.TB, d agents.Deps, mutate func(*workspace.PlatformConfig)) *workspace.PlatformConfig {
	t.Helper()
	cfg := &workspace.PlatformConfig{
		Platform: workspace.PlatformInfo{Name: "IDP Auto-Provisioned by AI Agents", Version: "1.0.0"},
		Stack:    workspace.Stack{Runtime: "Python 3.11", Framework: "FastAPI", Database: "PostgreSQL", Cache: "Redis"},
		Infrastructure: workspace.DeploymentTarget{
			DeploymentTarget:      "Docker Compose",
			DeploymentEnvironment: "Local",
		},
		Components: workspace.Components{
			Monitoring: workspace.Monitoring{Metrics: "Prometheus", Visualization: "Grafana"},
			Security:   workspace.SecurityChoice{Scanner: "Trivy", Policies: "CIS Benchmarks"},
			CICD:       workspace.CICDChoice{Provider: "Jenkins"},
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, d.Workspace.WriteYAML(workspace.PlatformConfigFile, cfg))
	return cfg
}

// ToolErrors returns the tool calls of res that failed.
func ToolErrors(res *agent.RunResult) []domain.ToolCall {
	var out []domain.ToolCall
	for _, tc := range res.ToolCalls {
		if tc.Error != "" {
			out = append(out, tc)
		}
	}
	return out
}
