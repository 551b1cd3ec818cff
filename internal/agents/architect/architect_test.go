package architect

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/agents/agentstest"
	"github.com/soyeahso/idpforge/internal/workspace"
)

const fullSummary = `{"stack_summary":"Runtime: Go 1.21 | Framework: Gin | Database: MySQL | Cache: Redis | Monitoring: Prometheus+Grafana | Security: Snyk | CI/CD: GitHub Actions | Deployment: Docker Compose | Environment: Local"}`

func TestSavePlatformConfig(t *testing.T) {
	d := agentstest.Deps(t)
	def := New(d)

	env := agentstest.Call(t, def, "save_platform_config", fullSummary)
	assert.Equal(t, agents.StatusSuccess, env["status"])
	assert.Equal(t, "Go 1.21", env["runtime"])
	assert.EqualValues(t, 0, env["self_service_capabilities_detected"])

	cfg, err := d.Workspace.PlatformConfig()
	require.NoError(t, err)
	assert.Equal(t, "Gin", cfg.Stack.Framework)
	assert.Equal(t, "MySQL", cfg.Stack.Database)
	assert.Equal(t, "Snyk", cfg.Components.Security.Scanner)
	assert.Equal(t, "GitHub Actions", cfg.Components.CICD.Provider)
	assert.Equal(t, "Prometheus", cfg.Components.Monitoring.Metrics)
	assert.Equal(t, "Grafana", cfg.Components.Monitoring.Visualization)
	assert.Equal(t, "Decision based on proposed stack: Go 1.21", cfg.DecisionsJustification.Runtime)
	assert.Equal(t, "Decision based on deployment: Docker Compose in Local", cfg.DecisionsJustification.Deployment)
	assert.Equal(t, "autopilot", cfg.Metadata.AIModel)
	assert.Nil(t, cfg.Features)

	assert.True(t, d.Workspace.Exists(workspace.PlatformDecisionsFile))
}

func TestSavePlatformConfig_Justifications(t *testing.T) {
	d := agentstest.Deps(t)
	def := New(d)

	agentstest.Call(t, def, "save_platform_config",
		`{"stack_summary":"Runtime: Python 3.12 | Framework: FastAPI | Database: PostgreSQL | Cache: Redis | Monitoring: Prometheus | Security: Trivy | Deployment: Docker Compose | Environment: Local",
		  "justifications":{"database":"Relational data and strong tooling."}}`)

	cfg, err := d.Workspace.PlatformConfig()
	require.NoError(t, err)
	assert.Equal(t, "Relational data and strong tooling.", cfg.DecisionsJustification.Database)
	assert.Equal(t, "Jenkins", cfg.Components.CICD.Provider)
	assert.Equal(t, "Grafana", cfg.Components.Monitoring.Visualization)
}

func TestSavePlatformConfig_MonitoringAndCICDForms(t *testing.T) {
	const base = "Runtime: Go 1.22 | Framework: Echo | Database: PostgreSQL | Cache: Redis | Security: Trivy | Deployment: Docker Compose | Environment: Local"
	tests := []struct {
		extra               string
		metrics, vis, cicdP string
	}{
		{" | Monitoring: Prometheus+Grafana+Loki | CI/CD: GitLab CI", "Prometheus", "Grafana", "GitLab CI"},
		{" | Monitoring: Prometheus + Grafana | CI/CD:", "Prometheus", "Grafana", ""},
		{" | Monitoring: Prometheus+ | CICD: CircleCI", "Prometheus", "", "CircleCI"},
		{" | Monitoring: VictoriaMetrics", "VictoriaMetrics", "Grafana", "Jenkins"},
	}
	for _, tt := range tests {
		d := agentstest.Deps(t)
		summary, err := json.Marshal(SaveInput{StackSummary: base + tt.extra})
		require.NoError(t, err)
		env := agentstest.Call(t, New(d), "save_platform_config", string(summary))
		require.Equal(t, agents.StatusSuccess, env["status"], tt.extra)

		cfg, err := d.Workspace.PlatformConfig()
		require.NoError(t, err)
		assert.Equal(t, tt.metrics, cfg.Components.Monitoring.Metrics, tt.extra)
		assert.Equal(t, tt.vis, cfg.Components.Monitoring.Visualization, tt.extra)
		assert.Equal(t, tt.cicdP, cfg.Components.CICD.Provider, tt.extra)
	}
}

func TestSavePlatformConfig_MissingFields(t *testing.T) {
	d := agentstest.Deps(t)
	def := New(d)

	env := agentstest.Call(t, def, "save_platform_config", `{"stack_summary":"Runtime: Go | Framework: Gin"}`)
	assert.Equal(t, agents.StatusError, env["status"])
	assert.Contains(t, env["message"], "database, cache, monitoring, security, deployment, environment")
	assert.Equal(t, StackExample, env["example"])
	assert.False(t, d.Workspace.Exists(workspace.PlatformConfigFile))
}

func TestSavePlatformConfig_SelfService(t *testing.T) {
	d := agentstest.Deps(t)
	require.NoError(t, d.Workspace.WriteFile(workspace.UserTaskFile,
		[]byte("Create a self-service IDP where developers can add docker services and create pipelines."), 0o644))
	def := New(d)

	env := agentstest.Call(t, def, "save_platform_config", fullSummary)
	assert.EqualValues(t, 2, env["self_service_capabilities_detected"])

	cfg, err := d.Workspace.PlatformConfig()
	require.NoError(t, err)
	caps := cfg.SelfServiceCapabilities()
	require.Len(t, caps, 2)
	assert.Equal(t, "add_docker_service", caps[0].Type)
	assert.Equal(t, "create_pipeline", caps[1].Type)
}

func TestDetectSelfService(t *testing.T) {
	assert.Empty(t, DetectSelfService("Build a platform with Terraform"))

	caps := DetectSelfService("Provision a database and generate Terraform for infrastructure as code")
	types := make([]string, 0, len(caps))
	for _, c := range caps {
		types = append(types, c.Type)
	}
	assert.Equal(t, []string{"generate_terraform", "provision_database"}, types)
}

func TestExplainDecision(t *testing.T) {
	d := agentstest.Deps(t)
	def := New(d)

	env := agentstest.Call(t, def, "explain_decision", `{"decision_type":"runtime"}`)
	assert.Equal(t, agents.StatusError, env["status"])

	agentstest.Call(t, def, "save_platform_config", fullSummary)

	env = agentstest.Call(t, def, "explain_decision", `{"decision_type":"Monitoring"}`)
	assert.Equal(t, agents.StatusSuccess, env["status"])
	assert.Equal(t, "monitoring", env["decision_type"])
	assert.Equal(t, "Prometheus+Grafana", env["chosen_value"])

	env = agentstest.Call(t, def, "explain_decision", `{"decision_type":"cache"}`)
	assert.Equal(t, agents.StatusError, env["status"])
	assert.Contains(t, env["message"], "runtime, framework, database, monitoring, security")
}

func TestGetCurrentConfig(t *testing.T) {
	d := agentstest.Deps(t)
	def := New(d)

	env := agentstest.Call(t, def, "get_current_config", `{}`)
	assert.Equal(t, agents.StatusNotFound, env["status"])

	agentstest.Call(t, def, "save_platform_config", fullSummary)
	env = agentstest.Call(t, def, "get_current_config", `{}`)
	assert.Equal(t, agents.StatusFound, env["status"])
	assert.NotNil(t, env["config"])
}

func TestGetUserPreferences(t *testing.T) {
	d := agentstest.Deps(t)
	def := New(d)

	env := agentstest.Call(t, def, "get_user_preferences", `{}`)
	assert.Equal(t, agents.StatusNotFound, env["status"])
	defaults, ok := env["defaults"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Jenkins", defaults["cicd_tool"])
	assert.Equal(t, "Trivy", defaults["security_scanner"])

	require.NoError(t, os.WriteFile(d.PreferencesFile, []byte(`preferences:
  cicd_tool: GitLab CI
  database: MongoDB
`), 0o644))
	env = agentstest.Call(t, def, "get_user_preferences", `{}`)
	assert.Equal(t, agents.StatusFound, env["status"])
	assert.Equal(t, d.PreferencesFile, env["file_path"])
	prefs := env["preferences"].(map[string]any)
	assert.Equal(t, "GitLab CI", prefs["cicd_tool"])
	assert.Equal(t, "MongoDB", prefs["database"])
	assert.NotContains(t, prefs, "runtime")
}

func TestGetUserPreferences_Invalid(t *testing.T) {
	d := agentstest.Deps(t)
	require.NoError(t, os.WriteFile(d.PreferencesFile, []byte("preferences: [unclosed"), 0o644))

	env := agentstest.Call(t, New(d), "get_user_preferences", `{}`)
	assert.Equal(t, agents.StatusError, env["status"])
}

func TestSummaryFor(t *testing.T) {
	s := SummaryFor(Preferences{CICDTool: "GitLab CI", Database: "MongoDB"})
	fields := ParseStackSummary(s)
	assert.Equal(t, "GitLab CI", fields["ci/cd"])
	assert.Equal(t, "MongoDB", fields["database"])
	assert.Equal(t, "Python 3.11", fields["runtime"])
	assert.Equal(t, "Prometheus+Grafana", fields["monitoring"])
}

func TestPlan_HonoursPreferences(t *testing.T) {
	d := agentstest.Deps(t)
	require.NoError(t, os.WriteFile(d.PreferencesFile, []byte(`preferences:
  security_scanner: Grype
  cicd_tool: GitLab CI
`), 0o644))
	def := New(d)

	res := agentstest.Run(t, def, "Build an IDP for a Python API")
	require.Len(t, res.ToolCalls, 2)
	assert.Empty(t, agentstest.ToolErrors(res))
	assert.Contains(t, res.Response, "platform_architect completed its hand-off")

	cfg, err := d.Workspace.PlatformConfig()
	require.NoError(t, err)
	assert.Equal(t, "Grype", cfg.Components.Security.Scanner)
	assert.Equal(t, "GitLab CI", cfg.Components.CICD.Provider)
	assert.Equal(t, "PostgreSQL", cfg.Stack.Database)
}
