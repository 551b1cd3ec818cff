// Package cicd is the fourth pipeline stage. It writes build, test and
// deploy scripts plus the pipeline definition for the chosen CI provider,
// with a security stage running the scanner picked upstream.
package cicd

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"os"
	"path"
	"strings"
	"text/template"

	"github.com/fatih/color"

	"github.com/soyeahso/idpforge/internal/agent"
	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/catalog"
	"github.com/soyeahso/idpforge/internal/compose"
	"github.com/soyeahso/idpforge/internal/llm"
	"github.com/soyeahso/idpforge/internal/version"
	"github.com/soyeahso/idpforge/internal/workspace"
)

// Name identifies the agent.
const Name = "cicd"

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Scripts are the provider-independent stage scripts, relative to the
// output directory.
var Scripts = []string{"cicd/build.sh", "cicd/test.sh", "cicd/deploy.sh"}

// JenkinsJobConfig is where the Jenkins runner's mounted jobs directory
// picks up the pipeline job.
const JenkinsJobConfig = "jenkins_home/jobs/" + compose.JenkinsJob + "/config.xml"

type providerFile struct {
	template string
	path     string
}

var providerFiles = map[string][]providerFile{
	"Jenkins": {
		{"Jenkinsfile.tmpl", "cicd/Jenkinsfile"},
		{"jenkins-job.xml.tmpl", "cicd/jenkins-job.xml"},
	},
	"GitHub Actions": {{"github-ci.yml.tmpl", "cicd/.github/workflows/ci.yml"}},
	"GitLab CI":      {{"gitlab-ci.yml.tmpl", "cicd/.gitlab-ci.yml"}},
	"CircleCI":       {{"circleci-config.yml.tmpl", "cicd/.circleci/config.yml"}},
}

const instruction = `You are a CI/CD engineer. The platform architect, infrastructure and security
agents already ran.

1. get_platform_config to read the chosen CI/CD provider and stack.
2. get_security_report to see what the security agent found.
3. generate_pipeline_scripts to write build.sh, test.sh, deploy.sh and the provider's
   pipeline definition. Leave provider empty to use the architect's choice.

The security stage always runs the scanner the architect chose. Finish with one sentence
naming the provider and the files written.`

type deps struct {
	agents.Deps
	ws *workspace.Workspace
}

// New builds the CI/CD agent definition.
func New(d agents.Deps) *agents.Definition {
	a := &deps{Deps: d, ws: d.Workspace.ForAgent(Name)}
	if a.Catalog == nil {
		a.Catalog = catalog.Default()
	}
	return &agents.Definition{
		Name:        Name,
		DisplayName: "CI/CD",
		Emoji:       "🔄",
		Color:       color.FgYellow,
		Description: "CI/CD engineer. Generates pipeline scripts for the chosen provider.",
		Instruction: instruction,
		OutputKey:   "cicd_decisions",
		Tools: []agent.Tool{
			agents.NewTool("get_platform_config",
				"Reads the CI/CD provider and stack chosen by the platform architect.",
				a.getPlatformConfig),
			agents.NewTool("get_security_report",
				"Reads security-report.json written by the security agent.",
				a.getSecurityReport),
			agents.NewTool("generate_pipeline_scripts",
				"Writes cicd/build.sh, test.sh, deploy.sh and the provider pipeline definition.",
				a.generatePipelineScripts),
		},
		Plan: Plan(),
	}
}

// Plan is the offline tool sequence.
func Plan() llm.Plan {
	return llm.Plan{
		{Tool: "get_platform_config", Say: "Reading the CI/CD provider decision."},
		{Tool: "get_security_report", Say: "Checking the security findings before wiring the scan stage."},
		{Tool: "generate_pipeline_scripts", Say: "Generating the pipeline for the chosen provider."},
	}
}

func (a *deps) getPlatformConfig(ctx context.Context, _ agent.NoInput) (agents.Envelope, error) {
	cfg, err := a.ws.PlatformConfig()
	if workspace.IsNotExist(err) {
		return nil, agents.Failf("Platform config not found. The platform architect must run first.")
	}
	if err != nil {
		return nil, err
	}
	return agents.Envelope{
		"cicd_provider":    cfg.Components.CICD.Provider,
		"security_scanner": cfg.Components.Security.Scanner,
		"runtime":          cfg.Stack.Runtime,
		"framework":        cfg.Stack.Framework,
		"environment":      cfg.Infrastructure.DeploymentEnvironment,
	}, nil
}

func (a *deps) getSecurityReport(ctx context.Context, _ agent.NoInput) (agents.Envelope, error) {
	rep, err := a.ws.SecurityReport()
	if workspace.IsNotExist(err) {
		return nil, agents.NotFound("No security report yet. The pipeline will still include a scan stage.")
	}
	if err != nil {
		return nil, err
	}
	env := agents.Envelope{
		"status":                agents.StatusFound,
		"vulnerabilities_found": rep.Findings.VulnerabilitiesFound,
		"risk_level":            rep.Findings.RiskLevel,
	}
	if rep.SecurityScan != nil {
		env["tool"] = rep.SecurityScan.Tool
	}
	if rep.AIAnalysis != nil {
		env["recommendations"] = rep.AIAnalysis.Recommendations
	}
	return env, nil
}

// GenerateInput is the generate_pipeline_scripts argument.
type GenerateInput struct {
	Provider string `json:"provider,omitempty" jsonschema:"description=Jenkins, GitHub Actions, GitLab CI or CircleCI; empty uses the platform config"`
}

// templateData feeds every pipeline template.
type templateData struct {
	GeneratedBy     string
	Provider        string
	Runtime         string
	Framework       string
	Environment     string
	ComposeFile     string
	AppService      string
	AppPort         string
	Scanner         string
	ScanCommand     string
	RiskLevel       string
	Vulnerabilities int
	Jenkinsfile     string
}

func (a *deps) generatePipelineScripts(ctx context.Context, in GenerateInput) (agents.Envelope, error) {
	cfg, err := a.ws.PlatformConfig()
	if err != nil && !workspace.IsNotExist(err) {
		return nil, err
	}
	if cfg == nil {
		cfg = &workspace.PlatformConfig{}
	}

	requested := firstNonEmpty(in.Provider, cfg.Components.CICD.Provider, "Jenkins")
	entry, ok := a.Catalog.CIRunner(requested)
	name, _ := catalog.ParseProvider(entry.Name)
	files, known := providerFiles[name]
	if !ok || !known {
		return nil, agents.Failf("Unsupported CI/CD provider %q. Options: %s",
			requested, strings.Join(a.Catalog.CIRunners(), ", "))
	}

	data := templateData{
		GeneratedBy: "CI/CD Agent (" + version.GeneratedBy() + ")",
		Provider:    name,
		Runtime:     firstNonEmpty(cfg.Stack.Runtime, "app"),
		Framework:   firstNonEmpty(cfg.Stack.Framework, "default"),
		Environment: firstNonEmpty(cfg.Infrastructure.DeploymentEnvironment, "Local"),
		ComposeFile: a.composeFile(),
		AppService:  compose.AppService,
		AppPort:     a.appPort(),
	}
	data.Scanner, data.ScanCommand = a.scanStage(cfg.Components.Security.Scanner, data.ComposeFile)
	if rep, err := a.ws.SecurityReport(); err == nil {
		data.RiskLevel = rep.Findings.RiskLevel
		data.Vulnerabilities = rep.Findings.VulnerabilitiesFound
	}

	for _, script := range Scripts {
		if err := a.render(path.Base(script)+".tmpl", script, 0o755, &data); err != nil {
			return nil, err
		}
	}
	written := make([]string, 0, len(files)+1)
	for _, f := range files {
		if err := a.render(f.template, f.path, 0o644, &data); err != nil {
			return nil, err
		}
		written = append(written, f.path)
	}
	if name == "Jenkins" {
		job, err := a.ws.ReadFile("cicd/jenkins-job.xml")
		if err != nil {
			return nil, err
		}
		if err := a.ws.WriteFile(JenkinsJobConfig, job, 0o644); err != nil {
			return nil, err
		}
		written = append(written, JenkinsJobConfig)
	}

	decisions := workspace.CICDDecisions{
		CICD: workspace.CICDInfo{
			Provider:    name,
			CreatedAt:   a.Timestamp(),
			GeneratedBy: data.GeneratedBy,
		},
		Scripts:       Scripts,
		ProviderFiles: written,
		SecurityStage: workspace.SecurityStage{Scanner: data.Scanner, Command: data.ScanCommand},
		Metadata:      a.Metadata(""),
	}
	if err := a.ws.WriteJSON(workspace.CICDDecisionsFile, decisions); err != nil {
		return nil, err
	}
	a.Log(Name).Info().Str("provider", name).Strs("files", written).Msg("pipeline generated")

	return agents.Envelope{
		"provider":       name,
		"scripts":        Scripts,
		"provider_files": written,
		"security_stage": decisions.SecurityStage,
		"metadata_path":  a.ws.MustAbs(workspace.CICDDecisionsFile),
	}, nil
}

// render executes a template into rel. The Jenkinsfile is kept on data so
// the job XML can embed it.
func (a *deps) render(name, rel string, mode os.FileMode, data *templateData) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("rendering %s: %w", name, err)
	}
	if name == "Jenkinsfile.tmpl" {
		data.Jenkinsfile = buf.String()
	}
	return a.ws.WriteFile(rel, buf.Bytes(), mode)
}

// composeFile is the stack path recorded by the infrastructure agent.
func (a *deps) composeFile() string {
	if dec, err := a.ws.InfrastructureDecisions(); err == nil && dec.FilesGenerated.DockerCompose != "" {
		return dec.FilesGenerated.DockerCompose
	}
	return workspace.ComposeFile
}

func (a *deps) appPort() string {
	data, err := a.ws.ReadFile(a.composeFile())
	if err != nil {
		return "8888"
	}
	f, err := compose.Parse(data)
	if err != nil {
		return "8888"
	}
	if p := f.ServicePorts()[compose.AppService]; p != "" {
		return p
	}
	return "8888"
}

// scanStage picks the security stage command for the configured scanner.
// Trivy runs through the compose service when infrastructure generated it.
func (a *deps) scanStage(configured, composeFile string) (scanner, command string) {
	name, _ := catalog.ParseProvider(configured)
	if name == "" {
		name = "Trivy"
	}
	switch strings.ToLower(name) {
	case "trivy":
		if dec, err := a.ws.InfrastructureDecisions(); err == nil && dec.SecurityScanner.Available {
			return name, fmt.Sprintf("docker compose -f %s run --rm %s filesystem --exit-code 0 --severity HIGH,CRITICAL /scan",
				composeFile, dec.SecurityScanner.ScannerService)
		}
		return name, "trivy fs --exit-code 0 --severity HIGH,CRITICAL ."
	case "snyk":
		return name, "snyk test --severity-threshold=high"
	case "grype":
		return name, "grype dir:. --fail-on critical"
	}
	return name, fmt.Sprintf("echo \"No automated scan for %s\"", name)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
