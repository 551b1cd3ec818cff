// Package infrastructure is the second pipeline stage. It turns the
// platform decision into a docker-compose stack, adds the scanner and CI
// runner services the later agents rely on, and records what it generated.
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"

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
const Name = "infrastructure"

// SetupJenkinsFile is the Jenkins bootstrap script written next to the stack.
const SetupJenkinsFile = "setup-jenkins.sh"

const instruction = `You are an Infrastructure as Code expert and the second agent in the sequence.

Run these steps immediately:
1. get_platform_config to read what the platform architect decided.
2. save_docker_compose with "generate_default". The template already adds the
   database, cache, monitoring, the security scanner and the CI/CD runner.

Only pass your own YAML when the user explicitly asks for a custom stack. Scanner and
runner services are merged into it either way.

When the deployment environment is DigitalOcean, also call plan_digitalocean_deployment
to validate the region and droplet size.

Afterwards answer with one sentence:
"Infrastructure generated: docker-compose with [database], [cache], [scanner], [cicd]."`

type deps struct {
	agents.Deps
	ws *workspace.Workspace
}

// New builds the infrastructure agent definition.
func New(d agents.Deps) *agents.Definition {
	a := &deps{Deps: d, ws: d.Workspace.ForAgent(Name)}
	if a.Catalog == nil {
		a.Catalog = catalog.Default()
	}
	return &agents.Definition{
		Name:        Name,
		DisplayName: "Infrastructure",
		Emoji:       "🐳",
		Color:       color.FgBlue,
		Description: "Infrastructure as Code expert. Generates the docker-compose stack.",
		Instruction: instruction,
		OutputKey:   "infrastructure_decisions",
		Tools: []agent.Tool{
			agents.NewTool("get_platform_config",
				"Reads the platform configuration saved by the platform architect.",
				a.getPlatformConfig),
			agents.NewTool("save_docker_compose",
				"Writes docker-compose/app-stack.yml with scanner and CI runner services.",
				a.saveDockerCompose),
			agents.NewTool("plan_digitalocean_deployment",
				"Validates a DigitalOcean region and droplet size and writes digitalocean-plan.json.",
				a.planDigitalOcean),
			agents.Stub("save_kubernetes_manifests",
				"Generates Kubernetes manifests.",
				"Kubernetes", "Try save_docker_compose() as alternative"),
			agents.Stub("save_terraform_config",
				"Generates Terraform configuration.",
				"Terraform", "Try save_docker_compose() as alternative"),
			agents.Stub("save_helm_charts",
				"Generates Helm charts.",
				"Helm", "Try save_kubernetes_manifests() or save_docker_compose() as alternative"),
			agents.Stub("save_cloudformation_template",
				"Generates an AWS CloudFormation template.",
				"AWS CloudFormation", "Try save_terraform_config() or save_docker_compose() as alternative"),
		},
		Plan: Plan(),
	}
}

// Plan is the offline tool sequence.
func Plan() llm.Plan {
	return llm.Plan{
		{Tool: "get_platform_config", Say: "Reading the platform decision."},
		{
			Tool:  "save_docker_compose",
			Say:   "Generating the default stack with scanner and runner services.",
			Input: map[string]any{"yaml_content": agents.GenerateDefault},
		},
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
		"config":                 cfg,
		"deployment_target":      orUnknown(cfg.Infrastructure.DeploymentTarget),
		"deployment_environment": orUnknown(cfg.Infrastructure.DeploymentEnvironment),
		"runtime":                cfg.Stack.Runtime,
		"framework":              cfg.Stack.Framework,
		"database":               cfg.Stack.Database,
		"cache":                  cfg.Stack.Cache,
	}, nil
}

// ComposeInput is the save_docker_compose argument.
type ComposeInput struct {
	YAMLContent string `json:"yaml_content,omitempty" jsonschema:"description=Complete compose YAML or generate_default"`
}

func (in ComposeInput) wantsDefault() bool {
	c := strings.TrimSpace(in.YAMLContent)
	return c == "" || c == agents.GenerateDefault || len(c) < 50
}

func (a *deps) saveDockerCompose(ctx context.Context, in ComposeInput) (agents.Envelope, error) {
	cfg, err := a.ws.PlatformConfig()
	if err != nil && !workspace.IsNotExist(err) {
		return nil, err
	}
	if cfg == nil {
		cfg = &workspace.PlatformConfig{}
	}

	scannerName, _ := catalog.ParseProvider(orUnknown(cfg.Components.Security.Scanner))
	runnerName, _ := catalog.ParseProvider(orUnknown(cfg.Components.CICD.Provider))
	scanner, _ := a.Catalog.Scanner(cfg.Components.Security.Scanner)
	runner, _ := a.Catalog.CIRunner(cfg.Components.CICD.Provider)

	var file *compose.File
	if in.wantsDefault() {
		db, _ := a.Catalog.Database(cfg.Stack.Database)
		cache, _ := a.Catalog.Cache(cfg.Stack.Cache)
		file = compose.DefaultStack(compose.StackOptions{Runtime: cfg.Stack.Runtime, Database: db, Cache: cache})
	} else {
		file, err = compose.Parse([]byte(in.YAMLContent))
		if err != nil {
			return nil, agents.Failf("Invalid docker-compose YAML: %v", err).
				With("suggestion", "Pass generate_default to use the built-in stack")
		}
	}

	scanner.Name = scannerName
	runner.Name = runnerName
	scannerDecision := workspace.ScannerDecision{ScannerChosen: scannerName, ScannerImage: scanner.Image}
	if scanner.Image != "" {
		scannerDecision.ScannerService = file.AddScanner(scanner)
		scannerDecision.Available = true
	}
	runnerDecision := workspace.RunnerDecision{Provider: runnerName, RunnerImage: runner.Image}
	if runner.Image != "" {
		info := file.AddCIRunner(runner)
		runnerDecision.RunnerService = info.Service
		runnerDecision.Available = true
		runnerDecision.HasWebUI = info.HasWebUI
		runnerDecision.UIURL = info.UIURL
	}
	if a.ws.Exists("portal/main.py") {
		file.AddPortal()
	}

	data, err := file.Marshal()
	if err != nil {
		return nil, err
	}
	if err := a.ws.WriteFile(workspace.ComposeFile, data, 0o644); err != nil {
		return nil, err
	}

	files := workspace.FilesGenerated{
		DockerCompose:         workspace.ComposeFile,
		DockerComposeAbsolute: a.ws.MustAbs(workspace.ComposeFile),
	}
	if runnerDecision.HasWebUI {
		if err := a.ws.WriteFile(SetupJenkinsFile, []byte(setupJenkinsScript), 0o755); err != nil {
			return nil, err
		}
		files.SetupJenkinsScript = SetupJenkinsFile
	}

	now := a.Timestamp()
	decisions := workspace.InfrastructureDecisions{
		Infrastructure: workspace.InfrastructureInfo{
			Type:        "docker-compose",
			CreatedAt:   now,
			GeneratedBy: "Infrastructure Agent (" + version.GeneratedBy() + ")",
		},
		SecurityScanner: scannerDecision,
		CICDRunner:      runnerDecision,
		FilesGenerated:  files,
		Metadata:        a.Metadata(""),
	}
	if err := a.ws.WriteJSON(workspace.InfrastructureDecisionsFile, decisions); err != nil {
		return nil, err
	}

	a.Log(Name).Info().
		Strs("services", file.ServiceNames()).
		Str("scanner", scannerDecision.ScannerService).
		Str("runner", runnerDecision.RunnerService).
		Msg("compose stack saved")

	return agents.Envelope{
		"type":            "docker-compose",
		"file_path":       files.DockerComposeAbsolute,
		"metadata_path":   a.ws.MustAbs(workspace.InfrastructureDecisionsFile),
		"scanner_service": nullable(scannerDecision.ScannerService),
		"runner_service":  nullable(runnerDecision.RunnerService),
		"services":        file.ServiceNames(),
	}, nil
}

// DeployInput is the plan_digitalocean_deployment argument.
type DeployInput struct {
	Region string `json:"region,omitempty" jsonschema:"description=Region slug such as nyc3"`
	Size   string `json:"size,omitempty" jsonschema:"description=Droplet size slug such as s-2vcpu-4gb"`
}

// DropletPlan is digitalocean-plan.json.
type DropletPlan struct {
	DigitalOcean agents.DropletTarget `json:"digitalocean"`
	ComposeFile  string               `json:"compose_file"`
	Steps        []string             `json:"steps"`
	Metadata     workspace.Metadata   `json:"metadata"`
}

func (a *deps) planDigitalOcean(ctx context.Context, in DeployInput) (agents.Envelope, error) {
	if a.DigitalOcean == nil {
		return nil, agents.NotConfigured("DigitalOcean is not configured. Set digitalocean.token in the config.").
			With("suggestion", "Use the local docker-compose stack")
	}
	target, err := a.DigitalOcean.ValidateTarget(ctx, in.Region, in.Size)
	switch {
	case errors.Is(err, ErrUnknownRegion), errors.Is(err, ErrUnknownSize), errors.Is(err, ErrSizeUnavailable):
		return nil, agents.Failf("%v", err)
	case err != nil:
		return nil, agents.Failf("DigitalOcean API error: %v", err)
	}

	plan := DropletPlan{
		DigitalOcean: *target,
		ComposeFile:  workspace.ComposeFile,
		Steps: []string{
			fmt.Sprintf("doctl compute droplet create idp-platform --region %s --size %s --image docker-20-04", target.Region, target.Size),
			"scp -r . root@<droplet-ip>:/opt/idp",
			"ssh root@<droplet-ip> docker compose -f /opt/idp/" + workspace.ComposeFile + " up -d",
		},
		Metadata: a.Metadata(""),
	}
	if err := a.ws.WriteJSON(workspace.DigitalOceanPlanFile, plan); err != nil {
		return nil, err
	}
	return agents.Envelope{
		"region":        target.Region,
		"size":          target.Size,
		"price_monthly": target.PriceMonth,
		"plan_path":     a.ws.MustAbs(workspace.DigitalOceanPlanFile),
	}, nil
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const setupJenkinsScript = `#!/bin/bash
set -e

echo "🔧 Setting up Jenkins automatically..."

echo "⏳ Waiting for Jenkins to start..."
timeout 60 bash -c 'until docker exec jenkins curl -sf http://localhost:8080/login >/dev/null 2>&1; do sleep 2; done' || echo "Jenkins may not be fully ready yet"
sleep 10

echo "📦 Installing docker-compose in Jenkins..."
docker exec -u root jenkins sh -c "curl -sL https://github.com/docker/compose/releases/download/v2.32.3/docker-compose-linux-\$(uname -m) -o /usr/local/bin/docker-compose && chmod +x /usr/local/bin/docker-compose"
echo "✅ docker-compose installed: $(docker exec jenkins docker-compose --version)"

echo "📦 Installing Jenkins workflow plugins..."
docker exec jenkins jenkins-plugin-cli --plugins workflow-aggregator:latest
echo "✅ Plugins installed"

if [ -f "cicd/jenkins-job.xml" ]; then
    echo "📋 Creating IDP-Pipeline job..."
    docker cp cicd/jenkins-job.xml jenkins:/tmp/config.xml
    docker exec jenkins sh -c "mkdir -p /var/jenkins_home/jobs/IDP-Pipeline && cp /tmp/config.xml /var/jenkins_home/jobs/IDP-Pipeline/config.xml && chown -R jenkins:jenkins /var/jenkins_home/jobs/IDP-Pipeline"
    echo "✅ Job created"
fi

echo "🔄 Restarting Jenkins..."
docker restart jenkins
sleep 30

echo ""
echo "✅ Jenkins setup completed!"
echo "🌐 Access Jenkins at: http://localhost:8080"
echo "📋 Job IDP-Pipeline ready at: http://localhost:8080/job/IDP-Pipeline/"
`
