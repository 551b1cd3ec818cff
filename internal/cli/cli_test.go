package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/config"
	"github.com/soyeahso/idpforge/internal/workspace"
)

// execute runs the root command with an isolated IDPFORGE_HOME.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("IDPFORGE_HOME", home)
	t.Setenv("IDPFORGE_CONFIG", "")
	for _, env := range []string{"GEMINI_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "IDPFORGE_PROVIDER", "IDPFORGE_OUTPUT_DIR", "ADK_OUTPUT_DIR", "DIGITALOCEAN_TOKEN"} {
		t.Setenv(env, "")
	}
	cfgFile, logLevel = "", ""
	return home
}

func TestReadTask(t *testing.T) {
	task, err := readTask([]string{" Build", "a", "Go platform "}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Build a Go platform", task)

	task, err = readTask(nil, "-", strings.NewReader("from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", task)

	path := filepath.Join(t.TempDir(), "task.txt")
	require.NoError(t, os.WriteFile(path, []byte("  from file \n"), 0o644))
	task, err = readTask(nil, path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from file", task)

	_, err = readTask([]string{"x"}, path, nil)
	assert.Error(t, err)
	_, err = readTask(nil, filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func TestSelectStages(t *testing.T) {
	defs := []*agents.Definition{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	got, err := selectStages(defs, nil)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = selectStages(defs, []string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, "c", got[0].Name)
	assert.Equal(t, "a", got[1].Name)

	_, err = selectStages(defs, []string{"a", "a"})
	assert.ErrorContains(t, err, "listed twice")
	_, err = selectStages(defs, []string{"zzz"})
	assert.ErrorContains(t, err, "unknown agent")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("TRUE"))
	assert.Equal(t, false, parseValue("false"))
	assert.Equal(t, 8000, parseValue("8000"))
	assert.Equal(t, 0.5, parseValue("0.5"))
	assert.Equal(t, "gemini", parseValue("gemini"))
	assert.Equal(t, "http://gpu:11434", parseValue("http://gpu:11434"))
	assert.Equal(t, []any{"platform_architect", "security"}, parseValue("[platform_architect, security]"))
	assert.Equal(t, "a: b", parseValue("a: b"))
}

func TestConfigCommands(t *testing.T) {
	home := isolate(t)
	cfgPath := filepath.Join(home, "config.yaml")

	out, err := execute(t, "--config", cfgPath, "config", "set", "portal.port", "9100")
	require.NoError(t, err)
	assert.Contains(t, out, "Set portal.port = 9100")

	out, err = execute(t, "--config", cfgPath, "config", "get", "portal.port")
	require.NoError(t, err)
	assert.Equal(t, "9100\n", out)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Portal.Port)

	_, err = execute(t, "--config", cfgPath, "config", "set", "portal.port", "abc")
	assert.ErrorContains(t, err, "refusing to write")
	_, err = execute(t, "--config", cfgPath, "config", "set", "portals.port", "1")
	assert.ErrorContains(t, err, "unknown section")

	_, err = execute(t, "--config", cfgPath, "config", "unset", "portal.port")
	require.NoError(t, err)
	_, err = execute(t, "--config", cfgPath, "config", "get", "portal.port")
	assert.ErrorContains(t, err, "not found")

	out, err = execute(t, "--config", cfgPath, "config", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"pipeline"`)

	_, err = execute(t, "--config", cfgPath, "config", "set", "llm.provider", "nope")
	require.NoError(t, err)
	out, err = execute(t, "--config", cfgPath, "config", "validate")
	assert.Error(t, err)
	assert.Contains(t, out, "llm.provider")
}

func TestVersionJSON(t *testing.T) {
	isolate(t)
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)
	var fields map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &fields))
	assert.Contains(t, fields, "version")
}

func TestAgentList(t *testing.T) {
	isolate(t)
	out, err := execute(t, "agent", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "platform_architect")
	assert.Contains(t, out, "web_portal")

	out, err = execute(t, "agent", "info", "security", "--json")
	require.NoError(t, err)
	var info agents.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "security", info.Name)
	assert.NotEmpty(t, info.Tools)

	_, err = execute(t, "agent", "info", "nobody")
	assert.ErrorContains(t, err, "agent not found")
}

func TestRunOffline_RecordsHistory(t *testing.T) {
	home := isolate(t)
	output := filepath.Join(home, "out")

	out, err := execute(t, "run", "--offline", "--output", output,
		"--agents", "platform_architect", "--run-id", "cli-run", "Build a platform")
	require.NoError(t, err, out)
	assert.Contains(t, out, "succeeded")
	assert.FileExists(t, filepath.Join(output, workspace.PlatformConfigFile))
	assert.FileExists(t, filepath.Join(output, workspace.UserTaskFile))

	out, err = execute(t, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "cli-run")

	out, err = execute(t, "runs", "show", "cli-run", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, workspace.PlatformConfigFile)

	out, err = execute(t, "status", "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ platform_architect")

	_, err = execute(t, "runs", "delete", "cli-run")
	require.NoError(t, err)
	out, err = execute(t, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}

func TestRun_MissingAPIKeyFailsValidation(t *testing.T) {
	home := isolate(t)
	_, err := execute(t, "run", "--provider", "gemini", "--output", filepath.Join(home, "out"))
	assert.ErrorContains(t, err, "config validation failed")
}
