// Package architect is the first pipeline stage. It reads the user's
// preferences, decides the platform stack and records it in
// platform-config.yaml for every later agent.
package architect

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/soyeahso/idpforge/internal/agent"
	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/llm"
	"github.com/soyeahso/idpforge/internal/version"
	"github.com/soyeahso/idpforge/internal/workspace"
)

// Name identifies the agent.
const Name = "platform_architect"

// StackExample is the stack_summary format shown to the model.
const StackExample = "Runtime: Go 1.21 | Framework: Gin | Database: PostgreSQL | Cache: Redis | Monitoring: Prometheus+Grafana | Security: Trivy | CI/CD: Jenkins | Deployment: Docker Compose | Environment: Local"

var requiredFields = []string{"runtime", "framework", "database", "cache", "monitoring", "security", "deployment", "environment"}

const instruction = `You are a platform architect specialised in Internal Developer Platforms.
Analyse the user's task and decide the technology stack.

Decisions you make:
- Runtime (Python, Go, Node.js, Rust) and framework (FastAPI, Flask, Gin, Express, ...)
- Database (PostgreSQL, MySQL, MongoDB) and cache (Redis, Memcached, in-memory)
- Monitoring (Prometheus + Grafana, Datadog, CloudWatch)
- Security scanner (Trivy, Snyk, Grype, AWS Inspector)
- CI/CD (Jenkins, GitHub Actions, GitLab CI). Prefer Jenkins for local deployments: it has a web UI on localhost:8080.
- Deployment target (Docker Compose, Kubernetes, Terraform, Helm) and environment (Local, AWS, GCP, Azure)

How to work:
1. ALWAYS call get_user_preferences first.
2. Treat every preference that is set as a hard requirement. Do not "improve" it.
   Deviate only when a preference is technically incompatible with another decision.
3. A tool may be pinned to an image with "Name (Image: repo:tag)".
4. Save your decisions with save_platform_config using the pipe-separated format:
   ` + StackExample + `
   Optionally pass justifications keyed by decision (runtime, framework, database,
   monitoring, security, deployment).
5. Use get_current_config and explain_decision to answer questions about the result.

Keep your reasoning to one or two sentences, then act.`

type deps struct {
	agents.Deps
	ws *workspace.Workspace
}

// New builds the platform architect definition.
func New(d agents.Deps) *agents.Definition {
	a := &deps{Deps: d, ws: d.Workspace.ForAgent(Name)}
	return &agents.Definition{
		Name:        Name,
		DisplayName: "Platform Architect",
		Emoji:       "🏗️",
		Color:       color.FgCyan,
		Description: "Platform architect for Internal Developer Platforms. Analyses the task and decides the technology stack.",
		Instruction: instruction,
		OutputKey:   "platform_decisions",
		Tools: []agent.Tool{
			agents.NewTool("get_user_preferences",
				"Reads user-preferences.yaml. Call this first; set preferences are mandatory.",
				a.getUserPreferences),
			agents.NewTool("save_platform_config",
				"Saves the stack decision to platform-config.yaml and platform-decisions.json.",
				a.savePlatformConfig),
			agents.NewTool("get_current_config",
				"Returns the saved platform configuration, if any.",
				a.getCurrentConfig),
			agents.NewTool("explain_decision",
				"Returns the justification and chosen value for one decision.",
				a.explainDecision),
		},
		Plan: Plan(),
	}
}

// Plan is the offline tool sequence: read preferences, then save a stack
// that honours them.
func Plan() llm.Plan {
	return llm.Plan{
		{Tool: "get_user_preferences", Say: "Reading the user's preferences before deciding the stack."},
		{
			Tool: "save_platform_config",
			Say:  "Preferences are mandatory; filling the gaps with a small, local-first stack.",
			InputFrom: func(history []llm.Message) map[string]any {
				prefs := preferencesFromOutput(llm.ToolOutput(history, "get_user_preferences"))
				return map[string]any{"stack_summary": SummaryFor(prefs)}
			},
		},
	}
}

// SaveInput is the save_platform_config argument.
type SaveInput struct {
	StackSummary   string            `json:"stack_summary" jsonschema:"description=Pipe-separated 'Key: value' pairs"`
	Justifications map[string]string `json:"justifications,omitempty" jsonschema:"description=Optional reasoning keyed by decision"`
}

// ParseStackSummary splits "Key: value | Key: value" into lower_snake keys.
func ParseStackSummary(summary string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(summary, "|") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		key = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
		out[key] = strings.TrimSpace(value)
	}
	return out
}

func (a *deps) savePlatformConfig(ctx context.Context, in SaveInput) (agents.Envelope, error) {
	fields := ParseStackSummary(in.StackSummary)

	var missing []string
	for _, f := range requiredFields {
		if fields[f] == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, agents.Failf("Missing required fields: %s", strings.Join(missing, ", ")).
			With("example", StackExample)
	}

	// "Prometheus+Grafana"; a bare metrics tool implies Grafana
	monitoring := strings.Split(fields["monitoring"], "+")
	metrics, visualization := strings.TrimSpace(monitoring[0]), "Grafana"
	if len(monitoring) > 1 {
		visualization = strings.TrimSpace(monitoring[1])
	}
	// an explicit empty CI/CD entry stays empty; the CI/CD stage falls back to Jenkins
	cicd := lookup(fields, "Jenkins", "ci/cd", "cicd", "ci_cd")

	justify := func(key, fallback string) string {
		if j := strings.TrimSpace(in.Justifications[key]); j != "" {
			return j
		}
		return fallback
	}
	proposed := func(key, value string) string {
		return justify(key, "Decision based on proposed stack: "+value)
	}

	now := a.Timestamp()
	cfg := workspace.PlatformConfig{
		Platform: workspace.PlatformInfo{
			Name:        "IDP Auto-Provisioned by AI Agents",
			Version:     "1.0.0",
			CreatedAt:   now,
			GeneratedBy: "Platform Architect Agent (" + version.GeneratedBy() + ")",
		},
		Stack: workspace.Stack{
			Runtime:   fields["runtime"],
			Framework: fields["framework"],
			Database:  fields["database"],
			Cache:     fields["cache"],
		},
		Infrastructure: workspace.DeploymentTarget{
			DeploymentTarget:      fields["deployment"],
			DeploymentEnvironment: fields["environment"],
		},
		Components: workspace.Components{
			Monitoring: workspace.Monitoring{Metrics: metrics, Visualization: visualization},
			Security:   workspace.SecurityChoice{Scanner: fields["security"], Policies: "CIS Benchmarks"},
			CICD:       workspace.CICDChoice{Provider: cicd},
		},
		DecisionsJustification: workspace.Justifications{
			Runtime:    proposed("runtime", fields["runtime"]),
			Framework:  proposed("framework", fields["framework"]),
			Database:   proposed("database", fields["database"]),
			Monitoring: proposed("monitoring", metrics+" + "+visualization),
			Security:   proposed("security", fields["security"]),
			Deployment: justify("deployment", "Decision based on deployment: "+fields["deployment"]+" in "+fields["environment"]),
		},
		Metadata: a.Metadata("sequential pipeline"),
	}

	task, _ := a.ws.ReadFile(workspace.UserTaskFile)
	caps := DetectSelfService(string(task))
	if len(caps) > 0 {
		cfg.Features = &workspace.Features{SelfService: workspace.SelfService{Enabled: true, Capabilities: caps}}
	}

	if err := a.ws.WriteYAML(workspace.PlatformConfigFile, cfg); err != nil {
		return nil, err
	}
	if err := a.ws.WriteJSON(workspace.PlatformDecisionsFile, cfg); err != nil {
		return nil, err
	}
	a.Log(Name).Info().Str("runtime", cfg.Stack.Runtime).Int("capabilities", len(caps)).Msg("platform config saved")

	types := make([]string, 0, len(caps))
	for _, c := range caps {
		types = append(types, c.Type)
	}
	return agents.Envelope{
		"yaml_path":                          a.ws.MustAbs(workspace.PlatformConfigFile),
		"json_path":                          a.ws.MustAbs(workspace.PlatformDecisionsFile),
		"runtime":                            cfg.Stack.Runtime,
		"framework":                          cfg.Stack.Framework,
		"database":                           cfg.Stack.Database,
		"self_service_capabilities_detected": len(caps),
		"capabilities":                       types,
	}, nil
}

func (a *deps) getCurrentConfig(ctx context.Context, _ agent.NoInput) (agents.Envelope, error) {
	cfg, err := a.ws.PlatformConfig()
	if workspace.IsNotExist(err) {
		return nil, agents.NotFound("No configuration has been generated yet. Use save_platform_config first.")
	}
	if err != nil {
		return nil, err
	}
	return agents.Envelope{"status": agents.StatusFound, "config": cfg}, nil
}

// ExplainInput is the explain_decision argument.
type ExplainInput struct {
	DecisionType string `json:"decision_type" jsonschema:"enum=runtime,enum=framework,enum=database,enum=monitoring,enum=security,enum=deployment"`
}

func (a *deps) explainDecision(ctx context.Context, in ExplainInput) (agents.Envelope, error) {
	cfg, err := a.ws.PlatformConfig()
	if workspace.IsNotExist(err) {
		return nil, agents.Failf("No configuration has been generated yet.")
	}
	if err != nil {
		return nil, err
	}
	why, chosen, ok := cfg.Explain(in.DecisionType)
	if !ok {
		return nil, agents.Failf("Decision type %q not found. Options: %s",
			in.DecisionType, strings.Join(workspace.ExplainableDecisions, ", "))
	}
	return agents.Envelope{
		"decision_type": strings.ToLower(in.DecisionType),
		"justification": why,
		"chosen_value":  chosen,
	}, nil
}

// selfServiceTriggers gate capability detection; without one of them the
// task is not asking for self-service at all.
var selfServiceTriggers = []string{"self-service", "self service", "add", "create", "generate", "provision"}

// DetectSelfService finds the self-service capabilities a task asks for.
func DetectSelfService(task string) []workspace.Capability {
	t := strings.ToLower(task)
	if !containsAny(t, selfServiceTriggers...) {
		return nil
	}
	var caps []workspace.Capability
	add := func(typ, title string) {
		caps = append(caps, workspace.Capability{
			Type:        typ,
			Description: "Self-service capability: " + title,
			Enabled:     true,
		})
	}
	if strings.Contains(t, "add") && strings.Contains(t, "docker") {
		add("add_docker_service", "Add Docker Service")
	}
	if containsAny(t, "terraform", "infrastructure as code") {
		add("generate_terraform", "Generate Terraform")
	}
	if containsAny(t, "pipeline", "ci/cd") {
		add("create_pipeline", "Create Pipeline")
	}
	if strings.Contains(t, "database") && strings.Contains(t, "provision") {
		add("provision_database", "Provision Database")
	}
	return caps
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// lookup returns the value of the first key present in fields, even when
// empty, or def.
func lookup(fields map[string]string, def string, keys ...string) string {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			return v
		}
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// SummaryFor renders a stack_summary honouring prefs and filling the rest
// with defaults.
func SummaryFor(p Preferences) string {
	d := DefaultPreferences()
	pick := func(v, def string) string { return firstNonEmpty(v, def) }
	monitoring := pick(p.MonitoringMetrics, d.MonitoringMetrics) + "+" + pick(p.MonitoringVisualization, d.MonitoringVisualization)
	pairs := [][2]string{
		{"Runtime", pick(p.Runtime, d.Runtime)},
		{"Framework", pick(p.Framework, d.Framework)},
		{"Database", pick(p.Database, d.Database)},
		{"Cache", pick(p.Cache, d.Cache)},
		{"Monitoring", monitoring},
		{"Security", pick(p.SecurityScanner, d.SecurityScanner)},
		{"CI/CD", pick(p.CICDTool, d.CICDTool)},
		{"Deployment", pick(p.DeploymentTarget, d.DeploymentTarget)},
		{"Environment", pick(p.DeploymentEnvironment, d.DeploymentEnvironment)},
	}
	parts := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		parts = append(parts, fmt.Sprintf("%s: %s", kv[0], kv[1]))
	}
	return strings.Join(parts, " | ")
}
