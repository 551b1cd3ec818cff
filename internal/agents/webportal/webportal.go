// Package webportal is the last pipeline stage. It generates a FastAPI
// dashboard over the services and decisions the earlier agents produced.
package webportal

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"text/template"

	"github.com/fatih/color"

	"github.com/soyeahso/idpforge/internal/agent"
	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/compose"
	"github.com/soyeahso/idpforge/internal/health"
	"github.com/soyeahso/idpforge/internal/llm"
	"github.com/soyeahso/idpforge/internal/version"
	"github.com/soyeahso/idpforge/internal/workspace"
)

// Name identifies the agent.
const Name = "web_portal"

// Port is where the generated portal listens.
const Port = "8001"

// Framework is recorded in the decisions file.
const Framework = "FastAPI + Jinja2"

// The templates render Jinja2 and shell, so they use [[ ]] delimiters.
//
//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("portal").Delims("[[", "]]").ParseFS(templateFS, "templates/*.tmpl"))

type portalFile struct {
	template string
	rel      string
	mode     os.FileMode
}

// portalFiles are written relative to the portal directory.
var portalFiles = []portalFile{
	{"main.py.tmpl", "main.py", 0o644},
	{"index.html.tmpl", "templates/index.html", 0o644},
	{"requirements.txt.tmpl", "requirements.txt", 0o644},
	{"Dockerfile.tmpl", "Dockerfile", 0o644},
	{"run-portal.sh.tmpl", "run-portal.sh", 0o755},
}

// links are the sidebar shortcuts for well-known tool services.
var links = []struct{ service, label string }{
	{"grafana", "📊 Grafana"},
	{"prometheus", "📈 Prometheus"},
	{compose.CIRunnerService, "🔄 CI Runner"},
}

const instruction = `You are a web developer building the dashboard of an internal developer
platform. You are the last agent: every other agent already wrote its files.

1. read_idp_configuration to see the services, ports, stack and agent decisions.
2. generate_portal("generate_default") to write the portal under portal/.

Do not write code by hand and do not call other tools. Confirm in one or two sentences.`

type deps struct {
	agents.Deps
	ws *workspace.Workspace
}

// New builds the web portal agent definition.
func New(d agents.Deps) *agents.Definition {
	a := &deps{Deps: d, ws: d.Workspace.ForAgent(Name)}
	return &agents.Definition{
		Name:        Name,
		DisplayName: "Web Portal",
		Emoji:       "🌐",
		Color:       color.FgCyan,
		Description: "Web developer. Generates the platform dashboard.",
		Instruction: instruction,
		OutputKey:   "web_portal_decisions",
		Tools: []agent.Tool{
			agents.NewTool("read_idp_configuration",
				"Reads the platform config, compose services and every agent's decisions.",
				a.readIDPConfiguration),
			agents.NewTool("generate_portal",
				"Writes the FastAPI portal to portal/.",
				a.generatePortal),
		},
		Plan: Plan(),
	}
}

// Plan is the offline tool sequence.
func Plan() llm.Plan {
	return llm.Plan{
		{Tool: "read_idp_configuration", Say: "Reading everything the other agents produced."},
		{
			Tool:  "generate_portal",
			Input: map[string]any{"action": agents.GenerateDefault},
			Say:   "Generating the portal.",
		},
	}
}

// IDPConfiguration is everything the portal is built from.
type IDPConfiguration struct {
	Config       *workspace.PlatformConfig
	Endpoints    []compose.Endpoint
	Decisions    map[string]json.RawMessage
	Capabilities []workspace.Capability
}

// Load reads the platform config, the compose stack and the decision
// files. A missing or unparsable compose file yields no endpoints.
func Load(ws *workspace.Workspace) (*IDPConfiguration, error) {
	cfg, err := ws.PlatformConfig()
	if err != nil {
		return nil, err
	}
	out := &IDPConfiguration{Config: cfg, Capabilities: cfg.SelfServiceCapabilities()}
	if data, err := ws.ReadFile(workspace.ComposeFile); err == nil {
		if f, err := compose.Parse(data); err == nil {
			out.Endpoints = f.Endpoints()
		}
	}
	if out.Decisions, err = ws.Decisions(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *deps) readIDPConfiguration(ctx context.Context, _ agent.NoInput) (agents.Envelope, error) {
	idp, err := Load(a.ws)
	if workspace.IsNotExist(err) {
		return nil, agents.Failf("Platform config not found. The platform architect must run first.")
	}
	if err != nil {
		return nil, err
	}
	services := make(map[string]compose.Endpoint, len(idp.Endpoints))
	for _, ep := range idp.Endpoints {
		services[ep.Service] = ep
	}
	caps := idp.Capabilities
	if caps == nil {
		caps = []workspace.Capability{}
	}
	return agents.Envelope{
		"platform":                  idp.Config.Platform,
		"stack":                     idp.Config.Stack,
		"components":                idp.Config.Components,
		"platform_config":           idp.Config,
		"services":                  services,
		"decisions":                 idp.Decisions,
		"self_service_capabilities": caps,
		"total_services":            len(services),
		"output_dir":                a.ws.Root(),
	}, nil
}

// GenerateInput is the generate_portal argument.
type GenerateInput struct {
	Action string `json:"action,omitempty" jsonschema:"description=generate_default"`
}

type link struct {
	Label string
	URL   string
}

// templateData feeds every portal template.
type templateData struct {
	GeneratedBy  string
	PlatformName string
	Port         string
	Network      string
	Stack        workspace.Stack
	Services     []health.Target
	Links        []link
	Capabilities []workspace.Capability
	TCPRules     []health.Rule
	HTTPRules    []health.Rule
}

func (a *deps) generatePortal(ctx context.Context, _ GenerateInput) (agents.Envelope, error) {
	idp, err := Load(a.ws)
	if workspace.IsNotExist(err) {
		return nil, agents.Failf("Platform config not found. The platform architect must run first.")
	}
	if err != nil {
		return nil, err
	}

	data := templateData{
		GeneratedBy:  "Web Portal Agent (" + version.GeneratedBy() + ")",
		PlatformName: valueOr(idp.Config.Platform.Name, "IDP Portal"),
		Port:         Port,
		Network:      compose.DefaultNetwork,
		Stack:        stackOrNA(idp.Config.Stack),
		Services:     Targets(idp.Endpoints),
		Links:        sidebar(idp.Endpoints),
		Capabilities: idp.Capabilities,
	}
	for _, r := range health.Rules() {
		if r.Probe.TCP {
			data.TCPRules = append(data.TCPRules, r)
		} else {
			data.HTTPRules = append(data.HTTPRules, r)
		}
	}

	created := make([]string, 0, len(portalFiles))
	for _, f := range portalFiles {
		var buf bytes.Buffer
		if err := templates.ExecuteTemplate(&buf, f.template, data); err != nil {
			return nil, fmt.Errorf("rendering %s: %w", f.template, err)
		}
		if err := a.ws.WriteFile(path.Join(workspace.PortalDir, f.rel), buf.Bytes(), f.mode); err != nil {
			return nil, err
		}
		created = append(created, f.rel)
	}

	registered, err := a.registerService()
	if err != nil {
		return nil, err
	}

	dec := workspace.PortalDecisions{WebPortal: workspace.PortalInfo{
		Framework:     Framework,
		FilesCreated:  created,
		ServicesCount: len(idp.Endpoints),
		CreatedAt:     a.Timestamp(),
		GeneratedBy:   data.GeneratedBy,
	}}
	if err := a.ws.WriteJSON(workspace.PortalDecisionsFile, dec); err != nil {
		return nil, err
	}
	a.Log(Name).Info().Int("services", len(idp.Endpoints)).Bool("compose_updated", registered).Msg("portal generated")

	return agents.Envelope{
		"portal_dir":      a.ws.MustAbs(workspace.PortalDir),
		"files_created":   created,
		"services_count":  len(idp.Endpoints),
		"compose_updated": registered,
		"message":         fmt.Sprintf("Portal generated with %d services", len(idp.Endpoints)),
	}, nil
}

// registerService adds the portal to the compose stack when the stack
// exists and does not have it yet.
func (a *deps) registerService() (bool, error) {
	data, err := a.ws.ReadFile(workspace.ComposeFile)
	if workspace.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	f, err := compose.Parse(data)
	if err != nil {
		a.Log(Name).Warn().Err(err).Msg("compose stack unreadable, portal not registered")
		return false, nil
	}
	if _, ok := f.Services[compose.PortalService]; ok {
		return false, nil
	}
	f.AddPortal()
	out, err := f.Marshal()
	if err != nil {
		return false, err
	}
	return true, a.ws.WriteFile(workspace.ComposeFile, out, 0o644)
}

// Targets turns compose endpoints into probe targets addressed by
// container name. The app is always reached through its fixed container
// name. An empty stack yields the app alone.
func Targets(eps []compose.Endpoint) []health.Target {
	if len(eps) == 0 {
		return []health.Target{{
			Name: compose.AppService,
			Host: compose.AppContainerName,
			Port: "8888",
			URL:  "http://localhost:8888",
		}}
	}
	out := make([]health.Target, 0, len(eps))
	for _, ep := range eps {
		host := ep.Host()
		if ep.Service == compose.AppService {
			host = compose.AppContainerName
		}
		out = append(out, health.Target{Name: ep.Service, Host: host, Port: ep.Port, URL: ep.URL})
	}
	return out
}

func sidebar(eps []compose.Endpoint) []link {
	urls := make(map[string]string, len(eps))
	for _, ep := range eps {
		urls[ep.Service] = ep.URL
	}
	var out []link
	for _, l := range links {
		if u := urls[l.service]; u != "" {
			out = append(out, link{Label: l.label, URL: u})
		}
	}
	return out
}

func stackOrNA(s workspace.Stack) workspace.Stack {
	return workspace.Stack{
		Runtime:   valueOr(s.Runtime, "N/A"),
		Framework: valueOr(s.Framework, "N/A"),
		Database:  valueOr(s.Database, "N/A"),
		Cache:     valueOr(s.Cache, "N/A"),
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
