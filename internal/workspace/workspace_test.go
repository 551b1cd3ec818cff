package workspace

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/idpforge/internal/domain"
)

func TestWriteFile_CreatesParentsAndMode(t *testing.T) {
	ws := New(t.TempDir())

	require.NoError(t, ws.WriteFile("cli-tool/idp", []byte("#!/bin/bash\n"), 0o755))

	info, err := os.Stat(filepath.Join(ws.Root(), "cli-tool", "idp"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100, "owner execute bit")
	assert.True(t, ws.Exists("cli-tool/idp"))
	assert.False(t, ws.Exists("cli-tool/missing"))
}

func TestWriteFile_Overwrites(t *testing.T) {
	ws := New(t.TempDir())
	require.NoError(t, ws.WriteFile("a.txt", []byte("one"), 0o644))
	require.NoError(t, ws.WriteFile("a.txt", []byte("two"), 0o644))

	data, err := ws.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestAbs_RejectsEscapes(t *testing.T) {
	ws := New(t.TempDir())

	for _, rel := range []string{"../x", "/etc/passwd", "a/../../b"} {
		_, err := ws.Abs(rel)
		assert.ErrorIs(t, err, ErrOutsideRoot, rel)
		assert.ErrorIs(t, ws.WriteFile(rel, nil, 0o644), ErrOutsideRoot, rel)
	}

	p, err := ws.Abs("docker-compose/app-stack.yml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Root(), "docker-compose", "app-stack.yml"), p)
}

func TestObserver_AttributesAgent(t *testing.T) {
	ws := New(t.TempDir())

	var mu sync.Mutex
	var got []domain.Artifact
	ws.SetObserver(func(a domain.Artifact, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		a.WrittenAt = a.WrittenAt.Round(0)
		got = append(got, a)
	})

	infra := ws.ForAgent("infrastructure")
	require.NoError(t, infra.WriteFile(ComposeFile, []byte("services: {}\n"), 0o644))
	require.NoError(t, ws.WriteFile(UserTaskFile, []byte("task"), 0o644))

	require.Len(t, got, 2)
	assert.Equal(t, "docker-compose/app-stack.yml", got[0].Path)
	assert.Equal(t, domain.ArtifactCompose, got[0].Kind)
	assert.Equal(t, "infrastructure", got[0].Agent)
	assert.EqualValues(t, 13, got[0].Size)
	assert.Equal(t, "", got[1].Agent)
	assert.False(t, got[0].WrittenAt.IsZero())

	ws.SetObserver(nil)
	require.NoError(t, infra.WriteFile("x.txt", nil, 0o644))
	assert.Len(t, got, 2)
}

func TestJSONAndYAMLRoundTrip(t *testing.T) {
	ws := New(t.TempDir())

	cfg := PlatformConfig{
		Platform: PlatformInfo{Name: "IDP", Version: "1.0.0"},
		Stack:    Stack{Runtime: "Go 1.22", Framework: "Gin", Database: "PostgreSQL", Cache: "Redis"},
		Components: Components{
			Monitoring: Monitoring{Metrics: "Prometheus", Visualization: "Grafana"},
			Security:   SecurityChoice{Scanner: "Trivy", Policies: "CIS Benchmarks"},
			CICD:       CICDChoice{Provider: "Jenkins"},
		},
	}
	require.NoError(t, ws.WriteYAML(PlatformConfigFile, cfg))

	loaded, err := ws.PlatformConfig()
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, *loaded); diff != "" {
		t.Errorf("platform config mismatch (-want +got):\n%s", diff)
	}

	data, err := ws.ReadFile(PlatformConfigFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "decisions_justification:")
	assert.Contains(t, string(data), "  runtime: Go 1.22")
}

func TestPlatformConfig_Missing(t *testing.T) {
	ws := New(t.TempDir())
	_, err := ws.PlatformConfig()
	require.Error(t, err)
	assert.True(t, IsNotExist(err))
}

func TestExplain(t *testing.T) {
	cfg := &PlatformConfig{
		Stack:                  Stack{Database: "PostgreSQL"},
		Components:             Components{Monitoring: Monitoring{Metrics: "Prometheus"}},
		DecisionsJustification: Justifications{Database: "relational", Monitoring: "pull based"},
	}

	why, chosen, ok := cfg.Explain("Database")
	require.True(t, ok)
	assert.Equal(t, "relational", why)
	assert.Equal(t, "PostgreSQL", chosen)

	_, chosen, ok = cfg.Explain("monitoring")
	require.True(t, ok)
	assert.Equal(t, "Prometheus+Grafana", chosen)

	_, _, ok = cfg.Explain("vibes")
	assert.False(t, ok)
}

func TestDecisions(t *testing.T) {
	ws := New(t.TempDir())
	require.NoError(t, ws.WriteJSON(DevExDecisionsFile, DevExDecisions{DevEx: DevExInfo{CLITool: "idp"}}))
	require.NoError(t, ws.WriteJSON(SecurityReportFile, SecurityReport{Findings: Findings{VulnerabilitiesFound: 3}}))

	got, err := ws.Decisions()
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, string(got["devex-decisions"]), `"cli_tool": "idp"`)
	assert.Contains(t, string(got["security-report"]), `"vulnerabilities_found": 3`)

	require.NoError(t, ws.WriteFile(CICDDecisionsFile, []byte("{broken"), 0o644))
	_, err = ws.Decisions()
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	ws := New(filepath.Join(t.TempDir(), "not-yet"))
	files, err := ws.List()
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, ws.WriteFile("portal/templates/index.html", []byte("<html>"), 0o644))
	require.NoError(t, ws.WriteFile(PlatformConfigFile, []byte("a: 1\n"), 0o644))

	files, err = ws.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"platform-config.yaml", "portal/templates/index.html"}, files)
}

func TestKindOf(t *testing.T) {
	tests := map[string]domain.ArtifactKind{
		PlatformConfigFile:                   domain.ArtifactConfig,
		PlatformDecisionsFile:                domain.ArtifactDecision,
		SecurityReportFile:                   domain.ArtifactReport,
		DigitalOceanPlanFile:                 domain.ArtifactDecision,
		ComposeFile:                          domain.ArtifactCompose,
		PrometheusFile:                       domain.ArtifactConfig,
		"grafana-dashboards/app-metrics.json": domain.ArtifactDashboard,
		"cicd/build.sh":                      domain.ArtifactScript,
		"cli-tool/README.md":                 domain.ArtifactScript,
		"setup-jenkins.sh":                   domain.ArtifactScript,
		"portal/main.py":                     domain.ArtifactPortal,
		UserTaskFile:                         domain.ArtifactOther,
	}
	for path, want := range tests {
		assert.Equal(t, want, KindOf(path), path)
	}
}
