package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/agents/agentstest"
	"github.com/soyeahso/idpforge/internal/compose"
	"github.com/soyeahso/idpforge/internal/workspace"
)

func TestGetPlatformConfig(t *testing.T) {
	d := agentstest.Deps(t)
	def := New(d)

	env := agentstest.Call(t, def, "get_platform_config", `{}`)
	assert.Equal(t, agents.StatusError, env["status"])

	agentstest.SeedPlatformConfig(t, d, func(c *workspace.PlatformConfig) {
		c.Components.Monitoring.Visualization = ""
	})
	env = agentstest.Call(t, def, "get_platform_config", `{}`)
	assert.Equal(t, agents.StatusSuccess, env["status"])
	assert.Equal(t, "Prometheus+Grafana", env["monitoring_stack"])
	assert.Equal(t, "Prometheus", env["monitoring_metrics"])
	assert.Equal(t, "Grafana", env["monitoring_visualization"])
}

func TestSetupPrometheusGrafana(t *testing.T) {
	d := agentstest.Deps(t)
	require.NoError(t, d.Workspace.WriteFile(workspace.ComposeFile, []byte(`services:
  app:
    image: python:3.11-slim
    ports: ["8888:8888"]
  database:
    image: mysql:8
    ports: ["3306:3306"]
  worker:
    image: ghcr.io/acme/worker:1
    ports:
      - target: 9100
        published: "19100"
  migrate:
    image: ghcr.io/acme/migrate:1
`), 0o644))

	env := agentstest.Call(t, New(d), "setup_prometheus_grafana", `{"dashboards":"generate_default"}`)
	require.Equal(t, agents.StatusSuccess, env["status"], env["message"])
	assert.Equal(t, "Prometheus+Grafana", env["monitoring_stack"])

	var app DashboardFile
	require.NoError(t, d.Workspace.ReadJSON(AppDashboard, &app))
	assert.Equal(t, "IDP Application Metrics", app.Dashboard.Title)
	require.Len(t, app.Dashboard.Panels, 3)
	assert.Equal(t, "Request Latency p95", app.Dashboard.Panels[1].Title)

	var sys DashboardFile
	require.NoError(t, d.Workspace.ReadJSON(SystemDashboard, &sys))
	assert.Equal(t, "process_resident_memory_bytes", sys.Dashboard.Panels[1].Targets[0].Expr)

	prom := readPrometheus(t, d)
	assert.Equal(t, "15s", prom.Global.ScrapeInterval)
	assert.Equal(t, "15s", prom.Global.EvaluationInterval)
	assert.Equal(t, map[string]string{
		"app":      "app:8888",
		"database": "database:3306",
		"worker":   "worker:9100",
		PortalJob:  "host.docker.internal:8000",
	}, scrapeTargetsOf(prom))
	last := prom.ScrapeConfigs[len(prom.ScrapeConfigs)-1]
	assert.Equal(t, PortalJob, last.JobName)
	assert.Equal(t, "/metrics", last.MetricsPath)

	var dec workspace.ObservabilityDecisions
	require.NoError(t, d.Workspace.ReadJSON(workspace.ObservabilityDecisionsFile, &dec))
	assert.Equal(t, []string{"app-metrics.json", "system-metrics.json"}, dec.Observability.DashboardsCreated)
	assert.Equal(t, []string{"prometheus.yml"}, dec.Observability.ConfigsCreated)
	assert.Equal(t, "2026-01-18T09:30:00.000000", dec.Observability.CreatedAt)
}

func readPrometheus(t *testing.T, d agents.Deps) PrometheusConfig {
	t.Helper()
	var prom PrometheusConfig
	require.NoError(t, d.Workspace.ReadYAML(workspace.PrometheusFile, &prom))
	return prom
}

func scrapeTargetsOf(prom PrometheusConfig) map[string]string {
	targets := map[string]string{}
	for _, sc := range prom.ScrapeConfigs {
		targets[sc.JobName] = sc.StaticConfigs[0].Targets[0]
	}
	return targets
}

func TestSetupPrometheusGrafana_GeneratedStack(t *testing.T) {
	d := agentstest.Deps(t)
	d.PortalPort = 9300
	agentstest.SeedPlatformConfig(t, d, nil)
	f := compose.DefaultStack(compose.StackOptions{})
	f.AddPortal()
	data, err := f.Marshal()
	require.NoError(t, err)
	require.NoError(t, d.Workspace.WriteFile(workspace.ComposeFile, data, 0o644))

	agentstest.Call(t, New(d), "setup_prometheus_grafana", `{}`)

	targets := scrapeTargetsOf(readPrometheus(t, d))
	assert.Equal(t, "web-portal:8001", targets[compose.PortalService])
	assert.Equal(t, "prometheus:9090", targets["prometheus"])
	assert.Equal(t, "host.docker.internal:9300", targets[PortalJob])
	assert.Len(t, targets, len(f.Services)+1)
}

func TestSetupPrometheusGrafana_NoCompose(t *testing.T) {
	d := agentstest.Deps(t)
	agentstest.Call(t, New(d), "setup_prometheus_grafana", `{}`)

	prom := readPrometheus(t, d)
	require.Len(t, prom.ScrapeConfigs, 4)
	assert.Equal(t, []string{"app:8000"}, prom.ScrapeConfigs[0].StaticConfigs[0].Targets)
	assert.Equal(t, PortalJob, prom.ScrapeConfigs[3].JobName)
}

func TestStubs(t *testing.T) {
	def := New(agentstest.Deps(t))
	for tool, stack := range map[string]string{
		"setup_datadog":    "Datadog",
		"setup_cloudwatch": "AWS CloudWatch",
		"setup_new_relic":  "New Relic",
	} {
		env := agentstest.Call(t, def, tool, `{}`)
		assert.Equal(t, agents.StatusNotImplemented, env["status"], tool)
		assert.Equal(t, stack, env["monitoring_stack"], tool)
		assert.Equal(t, stack+" monitoring setup is not implemented yet.", env["message"], tool)
		assert.Equal(t, "Try setup_prometheus_grafana() as alternative", env["suggestion"], tool)
	}
}

func TestPlan(t *testing.T) {
	d := agentstest.Deps(t)
	agentstest.SeedPlatformConfig(t, d, nil)

	res := agentstest.Run(t, New(d), "Configure monitoring")
	require.Len(t, res.ToolCalls, 2)
	assert.Empty(t, agentstest.ToolErrors(res))
	assert.True(t, d.Workspace.Exists(workspace.ObservabilityDecisionsFile))
	assert.Contains(t, res.Response, "observability")
}
