package devex

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/agents/agentstest"
	"github.com/soyeahso/idpforge/internal/workspace"
)

func TestSaveCLITool_Default(t *testing.T) {
	d := agentstest.Deps(t)
	agentstest.SeedPlatformConfig(t, d, nil)
	require.NoError(t, d.Workspace.WriteJSON(workspace.InfrastructureDecisionsFile, workspace.InfrastructureDecisions{
		SecurityScanner: workspace.ScannerDecision{ScannerChosen: "Trivy", ScannerService: "security-scanner", Available: true},
		FilesGenerated:  workspace.FilesGenerated{DockerCompose: "docker-compose/custom.yml"},
	}))

	env := agentstest.Call(t, New(d), "save_cli_tool", `{"cli_summary":"generate_default"}`)
	require.Equal(t, agents.StatusSuccess, env["status"], env["message"])
	assert.Equal(t, "init,build,test,deploy,status,logs,up,down,scan,help", env["commands"])

	info, err := os.Stat(d.Workspace.MustAbs(CLIFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	script, err := d.Workspace.ReadFile(CLIFile)
	require.NoError(t, err)
	s := string(script)
	assert.True(t, strings.HasPrefix(s, "#!/bin/bash\n"))
	for _, c := range Commands {
		assert.Contains(t, s, "  "+c.Name+")\n", c.Name)
	}
	assert.Contains(t, s, `COMPOSE_FILE="docker-compose/custom.yml"`)
	assert.Contains(t, s, "bash cicd/build.sh")
	assert.Contains(t, s, "run --rm security-scanner filesystem")
	assert.Contains(t, s, "Unknown command: $1")
	assert.Contains(t, s, `echo "  logs    - Show logs (optional: service name)"`)

	readme, err := d.Workspace.ReadFile(ReadmeFile)
	require.NoError(t, err)
	for _, section := range []string{"## Installation", "## Commands", "## Examples", "## Troubleshooting"} {
		assert.Contains(t, string(readme), section)
	}
	assert.Contains(t, string(readme), "- `idp logs [service]`")

	var dec workspace.DevExDecisions
	require.NoError(t, d.Workspace.ReadJSON(workspace.DevExDecisionsFile, &dec))
	assert.Equal(t, "idp", dec.DevEx.CLITool)
	assert.Equal(t, env["commands"], dec.Commands.Description)
}

func TestSaveCLITool_ShortSummaryIsDefault(t *testing.T) {
	d := agentstest.Deps(t)
	env := agentstest.Call(t, New(d), "save_cli_tool", `{"cli_summary":"SCRIPT: echo hi"}`)
	require.Equal(t, agents.StatusSuccess, env["status"])

	script, err := d.Workspace.ReadFile(CLIFile)
	require.NoError(t, err)
	assert.Contains(t, string(script), `COMPOSE_FILE="docker-compose/app-stack.yml"`)
	assert.Contains(t, string(script), "trivy fs --severity CRITICAL,HIGH,MEDIUM .")
}

func TestSaveCLITool_Custom(t *testing.T) {
	d := agentstest.Deps(t)
	summary := "SCRIPT: #!/bin/bash\necho custom idp | README: # Custom CLI\n\nUse it wisely, it only prints a line. | COMMANDS: up,down"
	require.GreaterOrEqual(t, len(summary), minCustomLen)

	in, err := json.Marshal(map[string]string{"cli_summary": summary})
	require.NoError(t, err)
	env := agentstest.Call(t, New(d), "save_cli_tool", string(in))
	require.Equal(t, agents.StatusSuccess, env["status"])
	assert.Equal(t, "up,down", env["commands"])

	script, err := d.Workspace.ReadFile(CLIFile)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/bash\necho custom idp", string(script))

	readme, err := d.Workspace.ReadFile(ReadmeFile)
	require.NoError(t, err)
	assert.Equal(t, "# Custom CLI\n\nUse it wisely, it only prints a line.", string(readme))
}

func TestParseSummary(t *testing.T) {
	parts := ParseSummary("script: a | README: b: c | junk | COMMANDS: x,y")
	assert.Equal(t, map[string]string{"SCRIPT": "a", "README": "b: c", "COMMANDS": "x,y"}, parts)
}

func TestPlan(t *testing.T) {
	d := agentstest.Deps(t)
	agentstest.SeedPlatformConfig(t, d, nil)

	res := agentstest.Run(t, New(d), "Build the developer CLI")
	require.Len(t, res.ToolCalls, 2)
	assert.Empty(t, agentstest.ToolErrors(res))
	assert.True(t, d.Workspace.Exists(CLIFile))
}
