// Package devex is the sixth pipeline stage. It writes the idp command
// line wrapper around the generated stack and pipeline scripts.
package devex

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"path"
	"strings"
	"text/template"

	"github.com/fatih/color"

	"github.com/soyeahso/idpforge/internal/agent"
	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/llm"
	"github.com/soyeahso/idpforge/internal/version"
	"github.com/soyeahso/idpforge/internal/workspace"
)

// Name identifies the agent.
const Name = "devex"

// Generated files, relative to the output directory.
var (
	CLIFile    = path.Join(workspace.CLIToolDir, "idp")
	ReadmeFile = path.Join(workspace.CLIToolDir, "README.md")
)

// minCustomLen is the shortest cli_summary treated as custom content.
const minCustomLen = 100

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Command is one idp subcommand.
type Command struct {
	Name  string
	Usage string
	Help  string
}

// Commands are the subcommands of the default CLI.
var Commands = []Command{
	{"init", "init", "Initialize new IDP project"},
	{"build", "build", "Build Docker images"},
	{"test", "test", "Run tests"},
	{"deploy", "deploy", "Deploy services"},
	{"status", "status", "Show service status"},
	{"logs", "logs [service]", "Show logs (optional: service name)"},
	{"up", "up", "Start all services"},
	{"down", "down", "Stop all services"},
	{"scan", "scan", "Run security scan"},
	{"help", "help", "Show this help"},
}

const instruction = `You are a developer experience engineer. Every earlier agent has finished:
the stack, scan, pipeline and monitoring files exist.

1. get_platform_config to learn the stack.
2. save_cli_tool("generate_default") to write cli-tool/idp with the commands
   init, build, test, deploy, status, logs, up, down, scan and help.

Do not invent other tools. Confirm what was generated in one or two sentences.`

type deps struct {
	agents.Deps
	ws *workspace.Workspace
}

// New builds the DevEx agent definition.
func New(d agents.Deps) *agents.Definition {
	a := &deps{Deps: d, ws: d.Workspace.ForAgent(Name)}
	return &agents.Definition{
		Name:        Name,
		DisplayName: "DevEx",
		Emoji:       "🛠️",
		Color:       color.FgMagenta,
		Description: "Developer experience engineer. Generates the idp CLI.",
		Instruction: instruction,
		OutputKey:   "devex_decisions",
		Tools: []agent.Tool{
			agents.NewTool("get_platform_config",
				"Reads the platform configuration.",
				a.getPlatformConfig),
			agents.NewTool("save_cli_tool",
				`Writes cli-tool/idp and its README. Pass "generate_default" or "SCRIPT: ... | README: ... | COMMANDS: ...".`,
				a.saveCLITool),
		},
		Plan: Plan(),
	}
}

// Plan is the offline tool sequence.
func Plan() llm.Plan {
	return llm.Plan{
		{Tool: "get_platform_config", Say: "Reading the platform stack."},
		{
			Tool:  "save_cli_tool",
			Input: map[string]any{"cli_summary": agents.GenerateDefault},
			Say:   "Generating the idp CLI.",
		},
	}
}

func (a *deps) getPlatformConfig(ctx context.Context, _ agent.NoInput) (agents.Envelope, error) {
	cfg, err := a.ws.PlatformConfig()
	if workspace.IsNotExist(err) {
		return nil, agents.Failf("Platform config not found.")
	}
	if err != nil {
		return nil, err
	}
	return agents.Envelope{"config": cfg, "framework": cfg.Stack.Framework}, nil
}

// CLIInput is the save_cli_tool argument.
type CLIInput struct {
	Summary string `json:"cli_summary,omitempty" jsonschema:"description=generate_default or SCRIPT: ... | README: ... | COMMANDS: ..."`
}

// templateData feeds the CLI and README templates.
type templateData struct {
	GeneratedBy string
	ComposeFile string
	CICDDir     string
	ScanCommand string
	Scanner     string
	Runtime     string
	Framework   string
	Commands    []Command
}

func (a *deps) saveCLITool(ctx context.Context, in CLIInput) (agents.Envelope, error) {
	var script, readme, commands string
	if isDefault(in.Summary) {
		data := a.templateData()
		var err error
		if script, err = render("idp.tmpl", data); err != nil {
			return nil, err
		}
		if readme, err = render("README.md.tmpl", data); err != nil {
			return nil, err
		}
		names := make([]string, len(Commands))
		for i, c := range Commands {
			names[i] = c.Name
		}
		commands = strings.Join(names, ",")
	} else {
		parts := ParseSummary(in.Summary)
		script = valueOr(parts["SCRIPT"], "#!/bin/bash\necho \"IDP CLI\"\n")
		readme = valueOr(parts["README"], "# IDP CLI Tool\n")
		commands = valueOr(parts["COMMANDS"], "init,build,test,deploy,help")
	}

	if err := a.ws.WriteFile(CLIFile, []byte(script), 0o755); err != nil {
		return nil, err
	}
	if err := a.ws.WriteFile(ReadmeFile, []byte(readme), 0o644); err != nil {
		return nil, err
	}
	dec := workspace.DevExDecisions{
		DevEx: workspace.DevExInfo{
			CLITool:     "idp",
			CreatedAt:   a.Timestamp(),
			GeneratedBy: "DevEx Agent (" + version.GeneratedBy() + ")",
		},
		Commands: workspace.CommandsInfo{Description: commands},
		Metadata: a.Metadata(""),
	}
	if err := a.ws.WriteJSON(workspace.DevExDecisionsFile, dec); err != nil {
		return nil, err
	}
	a.Log(Name).Info().Str("commands", commands).Msg("cli tool written")

	return agents.Envelope{
		"cli_path":    a.ws.MustAbs(CLIFile),
		"readme_path": a.ws.MustAbs(ReadmeFile),
		"commands":    commands,
	}, nil
}

func isDefault(summary string) bool {
	s := strings.TrimSpace(summary)
	return s == "" || s == agents.GenerateDefault || len(s) < minCustomLen
}

// ParseSummary splits "KEY: value | KEY: value" into upper-cased keys.
// Sections without a colon are ignored.
func ParseSummary(summary string) map[string]string {
	parts := make(map[string]string)
	for _, section := range strings.Split(summary, "| ") {
		key, value, ok := strings.Cut(section, ":")
		if !ok {
			continue
		}
		parts[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return parts
}

func (a *deps) templateData() templateData {
	data := templateData{
		GeneratedBy: "DevEx Agent (" + version.GeneratedBy() + ")",
		ComposeFile: workspace.ComposeFile,
		CICDDir:     workspace.CICDDir,
		Scanner:     "Trivy",
		ScanCommand: "trivy fs --severity CRITICAL,HIGH,MEDIUM .",
		Runtime:     "Python 3.11",
		Framework:   "FastAPI",
		Commands:    Commands,
	}
	if cfg, err := a.ws.PlatformConfig(); err == nil {
		data.Runtime = valueOr(cfg.Stack.Runtime, data.Runtime)
		data.Framework = valueOr(cfg.Stack.Framework, data.Framework)
	}
	if dec, err := a.ws.InfrastructureDecisions(); err == nil {
		data.ComposeFile = valueOr(dec.FilesGenerated.DockerCompose, data.ComposeFile)
		if s := dec.SecurityScanner; s.Available && s.ScannerService != "" {
			data.Scanner = valueOr(s.ScannerChosen, data.Scanner)
			data.ScanCommand = fmt.Sprintf(`docker compose -f "$COMPOSE_FILE" run --rm %s filesystem --severity CRITICAL,HIGH,MEDIUM /scan`,
				s.ScannerService)
		}
	}
	return data
}

func render(name string, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
