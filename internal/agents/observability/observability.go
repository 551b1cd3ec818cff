// Package observability is the fifth pipeline stage. It configures the
// monitoring stack the architect picked: Grafana dashboards and a
// Prometheus scrape config for the generated compose stack.
package observability

import (
	"context"
	"path"
	"strconv"

	"github.com/fatih/color"

	"github.com/soyeahso/idpforge/internal/agent"
	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/compose"
	"github.com/soyeahso/idpforge/internal/config"
	"github.com/soyeahso/idpforge/internal/llm"
	"github.com/soyeahso/idpforge/internal/version"
	"github.com/soyeahso/idpforge/internal/workspace"
)

// Name identifies the agent.
const Name = "observability"

// Dashboard files, relative to the output directory.
var (
	AppDashboard    = path.Join(workspace.DashboardsDir, "app-metrics.json")
	SystemDashboard = path.Join(workspace.DashboardsDir, "system-metrics.json")
)

const alternative = "Try setup_prometheus_grafana() as alternative"

const instruction = `You are an observability engineer. The platform architect already chose the
monitoring stack.

1. get_platform_config to read the monitoring stack.
2. Call the setup tool for that stack. setup_prometheus_grafana is the only one that
   generates files; the others answer not_implemented, in which case fall back to
   Prometheus + Grafana and say so.

Finish with one sentence naming the dashboards and configs written.`

type deps struct {
	agents.Deps
	ws *workspace.Workspace
}

// New builds the observability agent definition.
func New(d agents.Deps) *agents.Definition {
	a := &deps{Deps: d, ws: d.Workspace.ForAgent(Name)}
	return &agents.Definition{
		Name:        Name,
		DisplayName: "Observability",
		Emoji:       "📊",
		Color:       color.FgGreen,
		Description: "Observability engineer. Generates dashboards and scrape configs.",
		Instruction: instruction,
		OutputKey:   "observability_decisions",
		Tools: []agent.Tool{
			agents.NewTool("get_platform_config",
				"Reads the monitoring stack chosen by the platform architect.",
				a.getPlatformConfig),
			agents.NewTool("setup_prometheus_grafana",
				"Writes Grafana dashboards and docker-compose/prometheus.yml.",
				a.setupPrometheusGrafana),
			stub("setup_datadog", "Datadog"),
			stub("setup_cloudwatch", "AWS CloudWatch"),
			stub("setup_new_relic", "New Relic"),
		},
		Plan: Plan(),
	}
}

// Plan is the offline tool sequence.
func Plan() llm.Plan {
	return llm.Plan{
		{Tool: "get_platform_config", Say: "Reading the monitoring stack."},
		{
			Tool:  "setup_prometheus_grafana",
			Input: map[string]any{"dashboards": agents.GenerateDefault},
			Say:   "Generating Prometheus and Grafana configuration.",
		},
	}
}

func stub(name, stack string) agent.Tool {
	return agents.NewTool(name, "Configures "+stack+" monitoring (not implemented yet).",
		func(ctx context.Context, _ agents.StubInput) (agents.Envelope, error) {
			return nil, agents.NotImplemented(stack,
				stack+" monitoring setup is not implemented yet.", alternative).
				With("monitoring_stack", stack)
		})
}

func (a *deps) getPlatformConfig(ctx context.Context, _ agent.NoInput) (agents.Envelope, error) {
	cfg, err := a.ws.PlatformConfig()
	if workspace.IsNotExist(err) {
		return nil, agents.Failf("Platform config not found. The platform architect must run first.")
	}
	if err != nil {
		return nil, err
	}
	m := cfg.Components.Monitoring
	metrics, vis := m.Tools()
	return agents.Envelope{
		"config":                   cfg,
		"monitoring_stack":         m.Stack(),
		"monitoring_metrics":       metrics,
		"monitoring_visualization": vis,
	}, nil
}

// SetupInput is the setup_prometheus_grafana argument.
type SetupInput struct {
	Dashboards string `json:"dashboards,omitempty" jsonschema:"description=Dashboard configuration or generate_default"`
}

func (a *deps) setupPrometheusGrafana(ctx context.Context, in SetupInput) (agents.Envelope, error) {
	for rel, d := range map[string]Dashboard{
		AppDashboard:    AppMetrics(),
		SystemDashboard: SystemMetrics(),
	} {
		if err := a.ws.WriteJSON(rel, DashboardFile{Dashboard: d}); err != nil {
			return nil, err
		}
	}
	if err := a.ws.WriteYAML(workspace.PrometheusFile, a.prometheusConfig()); err != nil {
		return nil, err
	}

	stack := "Prometheus+Grafana"
	dec := workspace.ObservabilityDecisions{
		Observability: workspace.ObservabilityInfo{
			MonitoringStack:   stack,
			DashboardsCreated: []string{path.Base(AppDashboard), path.Base(SystemDashboard)},
			ConfigsCreated:    []string{path.Base(workspace.PrometheusFile)},
			CreatedAt:         a.Timestamp(),
			GeneratedBy:       "Observability Agent (" + version.GeneratedBy() + ")",
		},
		Metadata: a.Metadata(""),
	}
	if err := a.ws.WriteJSON(workspace.ObservabilityDecisionsFile, dec); err != nil {
		return nil, err
	}
	a.Log(Name).Info().Strs("dashboards", dec.Observability.DashboardsCreated).Msg("monitoring configured")

	return agents.Envelope{
		"monitoring_stack":  stack,
		"dashboards_dir":    a.ws.MustAbs(workspace.DashboardsDir),
		"prometheus_config": a.ws.MustAbs(workspace.PrometheusFile),
		"metadata_path":     a.ws.MustAbs(workspace.ObservabilityDecisionsFile),
	}, nil
}

// PortalJob scrapes the idpforge portal, which runs on the host rather than
// in the compose stack.
const PortalJob = "idpforge-portal"

// scrapeDefaults stand in for the compose stack until one has been written.
var scrapeDefaults = []scrapeTarget{
	{compose.AppService, "8000"},
	{compose.DatabaseService, "5432"},
	{compose.CacheService, "6379"},
}

type scrapeTarget struct{ service, port string }

// prometheusConfig has one job per compose service on its container port,
// plus the idpforge portal's /metrics.
func (a *deps) prometheusConfig() PrometheusConfig {
	cfg := PrometheusConfig{Global: Global{ScrapeInterval: "15s", EvaluationInterval: "15s"}}
	for _, t := range a.scrapeTargets() {
		cfg.ScrapeConfigs = append(cfg.ScrapeConfigs, ScrapeConfig{
			JobName:       t.service,
			StaticConfigs: []StaticConfig{{Targets: []string{t.service + ":" + t.port}}},
		})
	}
	port := a.PortalPort
	if port == 0 {
		port = config.DefaultPortalPort
	}
	cfg.ScrapeConfigs = append(cfg.ScrapeConfigs, ScrapeConfig{
		JobName:       PortalJob,
		MetricsPath:   "/metrics",
		StaticConfigs: []StaticConfig{{Targets: []string{"host.docker.internal:" + strconv.Itoa(port)}}},
	})
	return cfg
}

// scrapeTargets lists the compose services that publish a port. Services
// without ports have nothing to scrape and are left out.
func (a *deps) scrapeTargets() []scrapeTarget {
	data, err := a.ws.ReadFile(workspace.ComposeFile)
	if err != nil {
		return scrapeDefaults
	}
	stack, err := compose.Parse(data)
	if err != nil {
		a.Log(Name).Warn().Err(err).Msg("compose file unreadable, scraping default services")
		return scrapeDefaults
	}
	var out []scrapeTarget
	for _, name := range stack.ServiceNames() {
		if ports := stack.Services[name].Ports; len(ports) > 0 {
			out = append(out, scrapeTarget{name, compose.ContainerPort(ports[0])})
		}
	}
	return out
}
