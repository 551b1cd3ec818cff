package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/digitalocean/godo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/agents/agentstest"
	"github.com/soyeahso/idpforge/internal/compose"
	"github.com/soyeahso/idpforge/internal/workspace"
)

func loadStack(t *testing.T, ws *workspace.Workspace) *compose.File {
	t.Helper()
	data, err := ws.ReadFile(workspace.ComposeFile)
	require.NoError(t, err)
	f, err := compose.Parse(data)
	require.NoError(t, err)
	return f
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestSaveDockerCompose_DefaultWithJenkins(t *testing.T) {
	d := agentstest.Deps(t)
	agentstest.SeedPlatformConfig(t, d, nil)
	def := New(d)

	env := agentstest.Call(t, def, "save_docker_compose", `{"yaml_content":"generate_default"}`)
	assert.Equal(t, agents.StatusSuccess, env["status"])
	assert.Equal(t, compose.ScannerService, env["scanner_service"])
	assert.Equal(t, compose.CIRunnerService, env["runner_service"])

	f := loadStack(t, d.Workspace)
	assert.Equal(t, "aquasec/trivy:latest", f.Services[compose.ScannerService].Image)
	assert.Equal(t, "trivy-scanner", f.Services[compose.ScannerService].ContainerName)
	assert.Equal(t, "jenkins/jenkins:lts", f.Services[compose.CIRunnerService].Image)
	assert.Contains(t, f.Volumes, "jenkins_data")
	assert.NotContains(t, f.Services, compose.PortalService)

	assert.Contains(t, f.Services[compose.CIRunnerService].Volumes, "../:/var/jenkins_home/workspace/IDP-Pipeline:rw")

	info, err := os.Stat(d.Workspace.MustAbs(SetupJenkinsFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	script, err := d.Workspace.ReadFile(SetupJenkinsFile)
	require.NoError(t, err)
	assert.Contains(t, string(script), "/var/jenkins_home/jobs/"+compose.JenkinsJob+"/config.xml")

	dec, err := d.Workspace.InfrastructureDecisions()
	require.NoError(t, err)
	assert.Equal(t, "Trivy", dec.SecurityScanner.ScannerChosen)
	assert.True(t, dec.SecurityScanner.Available)
	assert.Equal(t, "Jenkins", dec.CICDRunner.Provider)
	assert.True(t, dec.CICDRunner.HasWebUI)
	assert.Equal(t, "http://localhost:8080", dec.CICDRunner.UIURL)
	assert.Equal(t, workspace.ComposeFile, dec.FilesGenerated.DockerCompose)
	assert.Equal(t, d.Workspace.MustAbs(workspace.ComposeFile), dec.FilesGenerated.DockerComposeAbsolute)
	assert.Equal(t, SetupJenkinsFile, dec.FilesGenerated.SetupJenkinsScript)
}

func TestSaveDockerCompose_CatalogImages(t *testing.T) {
	d := agentstest.Deps(t)
	agentstest.SeedPlatformConfig(t, d, func(c *workspace.PlatformConfig) {
		c.Stack.Database = "MySQL"
		c.Stack.Cache = "Memcached"
		c.Components.Security.Scanner = "AWS Inspector"
		c.Components.CICD.Provider = "GitLab CI (Image: gitlab/gitlab-runner:v17.0.0)"
	})
	def := New(d)

	env := agentstest.Call(t, def, "save_docker_compose", `{}`)
	assert.Nil(t, env["scanner_service"])

	f := loadStack(t, d.Workspace)
	assert.Equal(t, "mysql:8-debian", f.Services[compose.DatabaseService].Image)
	assert.Equal(t, "memcached:1.6-alpine", f.Services[compose.CacheService].Image)
	assert.NotContains(t, f.Services, compose.ScannerService)
	assert.Equal(t, "gitlab/gitlab-runner:v17.0.0", f.Services[compose.CIRunnerService].Image)
	assert.Equal(t, "gitlab-runner", f.Services[compose.CIRunnerService].ContainerName)
	assert.False(t, d.Workspace.Exists(SetupJenkinsFile))

	dec, err := d.Workspace.InfrastructureDecisions()
	require.NoError(t, err)
	assert.Equal(t, "AWS Inspector", dec.SecurityScanner.ScannerChosen)
	assert.False(t, dec.SecurityScanner.Available)
	assert.Equal(t, "GitLab CI", dec.CICDRunner.Provider)
	assert.False(t, dec.CICDRunner.HasWebUI)
}

const customStack = `version: "3.8"
services:
  api:
    image: golang:1.22
    ports: ["9000:9000"]
    networks: [backend]
networks:
  backend: {}
`

func TestSaveDockerCompose_CustomYAML(t *testing.T) {
	d := agentstest.Deps(t)
	agentstest.SeedPlatformConfig(t, d, nil)
	require.NoError(t, d.Workspace.WriteFile("portal/main.py", []byte("app = None\n"), 0o644))
	def := New(d)

	out, err := def.Tools[1].Execute(context.Background(), mustJSON(t, ComposeInput{YAMLContent: customStack}))
	require.NoError(t, err)
	assert.Equal(t, agents.StatusSuccess, agents.StatusOf(out))

	f := loadStack(t, d.Workspace)
	assert.Equal(t, []string{"api", compose.CIRunnerService, compose.ScannerService, compose.PortalService}, f.ServiceNames())
	assert.Equal(t, compose.Names{"backend"}, f.Services[compose.ScannerService].Networks)
	assert.Equal(t, compose.Names{"backend"}, f.Services[compose.PortalService].Networks)
	assert.Empty(t, f.Services[compose.PortalService].DependsOn)
}

func TestSaveDockerCompose_InvalidCustomYAML(t *testing.T) {
	d := agentstest.Deps(t)
	def := New(d)

	out, err := def.Tools[1].Execute(context.Background(), mustJSON(t, ComposeInput{YAMLContent: "services: [this is not a mapping of services at all]"}))
	require.NoError(t, err)
	assert.Equal(t, agents.StatusError, agents.StatusOf(out))
	assert.False(t, d.Workspace.Exists(workspace.ComposeFile))
}

func TestSaveDockerCompose_NoPlatformConfig(t *testing.T) {
	d := agentstest.Deps(t)
	env := agentstest.Call(t, New(d), "save_docker_compose", `{}`)
	assert.Equal(t, agents.StatusSuccess, env["status"])

	dec, err := d.Workspace.InfrastructureDecisions()
	require.NoError(t, err)
	assert.Equal(t, "Unknown", dec.SecurityScanner.ScannerChosen)
	assert.Equal(t, "Unknown", dec.CICDRunner.Provider)
	assert.False(t, dec.CICDRunner.Available)
}

func TestGetPlatformConfig(t *testing.T) {
	d := agentstest.Deps(t)
	def := New(d)

	env := agentstest.Call(t, def, "get_platform_config", `{}`)
	assert.Equal(t, agents.StatusError, env["status"])

	agentstest.SeedPlatformConfig(t, d, nil)
	env = agentstest.Call(t, def, "get_platform_config", `{}`)
	assert.Equal(t, "Docker Compose", env["deployment_target"])
	assert.Equal(t, "PostgreSQL", env["database"])
}

func TestStubs(t *testing.T) {
	def := New(agentstest.Deps(t))
	for tool, tech := range map[string]string{
		"save_kubernetes_manifests":    "Kubernetes",
		"save_terraform_config":        "Terraform",
		"save_helm_charts":             "Helm",
		"save_cloudformation_template": "AWS CloudFormation",
	} {
		env := agentstest.Call(t, def, tool, `{"config":"generate_default"}`)
		assert.Equal(t, agents.StatusNotImplemented, env["status"], tool)
		assert.Equal(t, tech, env["technology"], tool)
		assert.Contains(t, env["suggestion"], "save_docker_compose()", tool)
	}
}

func TestPlan(t *testing.T) {
	d := agentstest.Deps(t)
	agentstest.SeedPlatformConfig(t, d, nil)

	res := agentstest.Run(t, New(d), "Generate the infrastructure")
	require.Len(t, res.ToolCalls, 2)
	assert.Empty(t, agentstest.ToolErrors(res))
	assert.True(t, d.Workspace.Exists(workspace.InfrastructureDecisionsFile))
}

func fakeDigitalOcean(t *testing.T) *DigitalOcean {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v2/regions":
			_, _ = w.Write([]byte(`{"regions":[
				{"slug":"nyc3","name":"New York 3","sizes":["s-2vcpu-4gb"],"available":true,"features":["backups","ipv6"]},
				{"slug":"ams2","name":"Amsterdam 2","sizes":[],"available":false,"features":[]}
			],"links":{},"meta":{"total":2}}`))
		case "/v2/sizes":
			_, _ = w.Write([]byte(`{"sizes":[
				{"slug":"s-2vcpu-4gb","memory":4096,"vcpus":2,"disk":80,"price_monthly":24,"price_hourly":0.03571,"regions":["nyc3"],"available":true},
				{"slug":"s-8vcpu-16gb","memory":16384,"vcpus":8,"disk":320,"price_monthly":96,"price_hourly":0.14286,"regions":["sfo3"],"available":true}
			],"links":{},"meta":{"total":2}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	do, err := NewDigitalOcean("test-token", "", "", godo.SetBaseURL(srv.URL+"/"))
	require.NoError(t, err)
	return do
}

func TestDigitalOcean_ValidateTarget(t *testing.T) {
	do := fakeDigitalOcean(t)
	ctx := context.Background()

	target, err := do.ValidateTarget(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "nyc3", target.Region)
	assert.Equal(t, "New York 3", target.RegionName)
	assert.Equal(t, 2, target.VCPUs)
	assert.Equal(t, 4096, target.MemoryMB)
	assert.InDelta(t, 24.0, target.PriceMonth, 0.001)

	_, err = do.ValidateTarget(ctx, "ams2", "s-2vcpu-4gb")
	assert.ErrorIs(t, err, ErrUnknownRegion)
	_, err = do.ValidateTarget(ctx, "nyc3", "s-64vcpu")
	assert.ErrorIs(t, err, ErrUnknownSize)
	_, err = do.ValidateTarget(ctx, "nyc3", "s-8vcpu-16gb")
	assert.ErrorIs(t, err, ErrSizeUnavailable)
}

func TestNewDigitalOcean_RequiresToken(t *testing.T) {
	_, err := NewDigitalOcean("", "", "")
	assert.Error(t, err)
}

func TestPlanDigitalOceanDeployment(t *testing.T) {
	d := agentstest.Deps(t)
	env := agentstest.Call(t, New(d), "plan_digitalocean_deployment", `{}`)
	assert.Equal(t, agents.StatusNotConfigured, env["status"])

	d.DigitalOcean = fakeDigitalOcean(t)
	def := New(d)
	env = agentstest.Call(t, def, "plan_digitalocean_deployment", `{"region":"nyc3","size":"s-2vcpu-4gb"}`)
	assert.Equal(t, agents.StatusSuccess, env["status"])
	assert.Equal(t, "nyc3", env["region"])

	var plan DropletPlan
	require.NoError(t, d.Workspace.ReadJSON(workspace.DigitalOceanPlanFile, &plan))
	assert.Equal(t, workspace.ComposeFile, plan.ComposeFile)
	assert.Contains(t, plan.Steps[0], "--region nyc3 --size s-2vcpu-4gb")

	env = agentstest.Call(t, def, "plan_digitalocean_deployment", `{"region":"ams2"}`)
	assert.Equal(t, agents.StatusError, env["status"])
	assert.Contains(t, env["message"], "unknown region")
}

type failingPlanner struct{}

func (failingPlanner) ValidateTarget(context.Context, string, string) (*agents.DropletTarget, error) {
	return nil, errors.New("401 Unable to authenticate you")
}

func TestPlanDigitalOceanDeployment_APIError(t *testing.T) {
	d := agentstest.Deps(t)
	d.DigitalOcean = failingPlanner{}
	env := agentstest.Call(t, New(d), "plan_digitalocean_deployment", `{}`)
	assert.Equal(t, agents.StatusError, env["status"])
	assert.Contains(t, env["message"], "DigitalOcean API error")
}
