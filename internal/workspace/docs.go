package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Metadata is stamped into every decision document.
type Metadata struct {
	AIModel           string `yaml:"ai_model" json:"ai_model"`
	Mode              string `yaml:"mode,omitempty" json:"mode,omitempty"`
	DecisionTimestamp string `yaml:"decision_timestamp" json:"decision_timestamp"`
}

// PlatformConfig is platform-config.yaml, the architect's decision record
// that every later stage reads.
type PlatformConfig struct {
	Platform               PlatformInfo     `yaml:"platform" json:"platform"`
	Stack                  Stack            `yaml:"stack" json:"stack"`
	Infrastructure         DeploymentTarget `yaml:"infrastructure" json:"infrastructure"`
	Components             Components       `yaml:"components" json:"components"`
	DecisionsJustification Justifications   `yaml:"decisions_justification" json:"decisions_justification"`
	Metadata               Metadata         `yaml:"metadata" json:"metadata"`
	Features               *Features        `yaml:"features,omitempty" json:"features,omitempty"`
}

type PlatformInfo struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	CreatedAt   string `yaml:"created_at" json:"created_at"`
	GeneratedBy string `yaml:"generated_by" json:"generated_by"`
}

type Stack struct {
	Runtime   string `yaml:"runtime" json:"runtime"`
	Framework string `yaml:"framework" json:"framework"`
	Database  string `yaml:"database" json:"database"`
	Cache     string `yaml:"cache" json:"cache"`
}

type DeploymentTarget struct {
	DeploymentTarget      string `yaml:"deployment_target" json:"deployment_target"`
	DeploymentEnvironment string `yaml:"deployment_environment" json:"deployment_environment"`
}

type Components struct {
	Monitoring Monitoring     `yaml:"monitoring" json:"monitoring"`
	Security   SecurityChoice `yaml:"security" json:"security"`
	CICD       CICDChoice     `yaml:"ci_cd" json:"ci_cd"`
}

type Monitoring struct {
	Metrics       string `yaml:"metrics" json:"metrics"`
	Visualization string `yaml:"visualization" json:"visualization"`
}

// Stack renders the monitoring choice as "metrics+visualization".
func (m Monitoring) Stack() string {
	metrics, vis := m.Tools()
	return metrics + "+" + vis
}

// Tools returns the metrics and visualization tools, defaulting to
// Prometheus and Grafana.
func (m Monitoring) Tools() (metrics, visualization string) {
	metrics, visualization = m.Metrics, m.Visualization
	if metrics == "" {
		metrics = "Prometheus"
	}
	if visualization == "" {
		visualization = "Grafana"
	}
	return metrics, visualization
}

type SecurityChoice struct {
	Scanner  string `yaml:"scanner" json:"scanner"`
	Policies string `yaml:"policies" json:"policies"`
}

type CICDChoice struct {
	Provider string `yaml:"provider" json:"provider"`
}

type Justifications struct {
	Runtime    string `yaml:"runtime" json:"runtime"`
	Framework  string `yaml:"framework" json:"framework"`
	Database   string `yaml:"database" json:"database"`
	Monitoring string `yaml:"monitoring" json:"monitoring"`
	Security   string `yaml:"security" json:"security"`
	Deployment string `yaml:"deployment" json:"deployment"`
}

// Features holds optional capabilities detected from the user task.
type Features struct {
	SelfService SelfService `yaml:"self_service" json:"self_service"`
}

type SelfService struct {
	Enabled      bool         `yaml:"enabled" json:"enabled"`
	Capabilities []Capability `yaml:"capabilities" json:"capabilities"`
}

type Capability struct {
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description"`
	Enabled     bool   `yaml:"enabled" json:"enabled"`
}

// ExplainableDecisions are the keys accepted by PlatformConfig.Explain.
var ExplainableDecisions = []string{"runtime", "framework", "database", "monitoring", "security"}

// Explain returns the justification and chosen value for a decision type.
func (c *PlatformConfig) Explain(decision string) (justification, chosen string, ok bool) {
	switch strings.ToLower(strings.TrimSpace(decision)) {
	case "runtime":
		return c.DecisionsJustification.Runtime, c.Stack.Runtime, true
	case "framework":
		return c.DecisionsJustification.Framework, c.Stack.Framework, true
	case "database":
		return c.DecisionsJustification.Database, c.Stack.Database, true
	case "monitoring":
		return c.DecisionsJustification.Monitoring, c.Components.Monitoring.Stack(), true
	case "security":
		return c.DecisionsJustification.Security, c.Components.Security.Scanner, true
	case "deployment":
		return c.DecisionsJustification.Deployment, c.Infrastructure.DeploymentTarget, true
	}
	return "", "", false
}

// SelfServiceCapabilities returns the enabled capabilities, or nil.
func (c *PlatformConfig) SelfServiceCapabilities() []Capability {
	if c.Features == nil || !c.Features.SelfService.Enabled {
		return nil
	}
	return c.Features.SelfService.Capabilities
}

// InfrastructureDecisions is infrastructure-decisions.json.
type InfrastructureDecisions struct {
	Infrastructure  InfrastructureInfo `json:"infrastructure"`
	SecurityScanner ScannerDecision    `json:"security_scanner"`
	CICDRunner      RunnerDecision     `json:"ci_cd_runner"`
	FilesGenerated  FilesGenerated     `json:"files_generated"`
	Metadata        Metadata           `json:"metadata"`
}

type InfrastructureInfo struct {
	Type        string `json:"type"`
	CreatedAt   string `json:"created_at"`
	GeneratedBy string `json:"generated_by"`
}

type ScannerDecision struct {
	ScannerChosen  string `json:"scanner_chosen"`
	ScannerImage   string `json:"scanner_image,omitempty"`
	ScannerService string `json:"scanner_service,omitempty"`
	Available      bool   `json:"available"`
}

type RunnerDecision struct {
	Provider      string `json:"provider"`
	RunnerImage   string `json:"runner_image,omitempty"`
	RunnerService string `json:"runner_service,omitempty"`
	Available     bool   `json:"available"`
	HasWebUI      bool   `json:"has_web_ui"`
	UIURL         string `json:"ui_url,omitempty"`
}

type FilesGenerated struct {
	DockerCompose         string `json:"docker_compose"`
	DockerComposeAbsolute string `json:"docker_compose_absolute"`
	SetupJenkinsScript    string `json:"setup_jenkins_script,omitempty"`
}

// SecurityReport is security-report.json. A scan fills SecurityScan; a
// model-authored report fills AIAnalysis.
type SecurityReport struct {
	SecurityScan *ScanInfo   `json:"security_scan,omitempty"`
	Findings     Findings    `json:"findings"`
	AIAnalysis   *AIAnalysis `json:"ai_analysis,omitempty"`
	Metadata     Metadata    `json:"metadata"`
}

type ScanInfo struct {
	Tool            string `json:"tool,omitempty"`
	ExecutionMethod string `json:"execution_method,omitempty"`
	ScanDate        string `json:"scan_date"`
	AnalyzedBy      string `json:"analyzed_by"`
	ExitCode        int    `json:"exit_code"`
}

type Findings struct {
	VulnerabilitiesFound int             `json:"vulnerabilities_found"`
	RiskLevel            string          `json:"risk_level,omitempty"`
	ScanData             json.RawMessage `json:"scan_data,omitempty"`
	ParseError           string          `json:"parse_error,omitempty"`
}

type AIAnalysis struct {
	Recommendations string `json:"recommendations"`
}

// CICDDecisions is cicd-decisions.json.
type CICDDecisions struct {
	CICD          CICDInfo      `json:"cicd"`
	Scripts       []string      `json:"scripts"`
	ProviderFiles []string      `json:"provider_files"`
	SecurityStage SecurityStage `json:"security_stage"`
	Metadata      Metadata      `json:"metadata"`
}

type CICDInfo struct {
	Provider    string `json:"provider"`
	CreatedAt   string `json:"created_at"`
	GeneratedBy string `json:"generated_by"`
}

type SecurityStage struct {
	Scanner string `json:"scanner"`
	Command string `json:"command"`
}

// ObservabilityDecisions is observability-decisions.json.
type ObservabilityDecisions struct {
	Observability ObservabilityInfo `json:"observability"`
	Metadata      Metadata          `json:"metadata"`
}

type ObservabilityInfo struct {
	MonitoringStack   string   `json:"monitoring_stack"`
	DashboardsCreated []string `json:"dashboards_created"`
	ConfigsCreated    []string `json:"configs_created"`
	CreatedAt         string   `json:"created_at"`
	GeneratedBy       string   `json:"generated_by"`
}

// DevExDecisions is devex-decisions.json.
type DevExDecisions struct {
	DevEx    DevExInfo    `json:"devex"`
	Commands CommandsInfo `json:"commands"`
	Metadata Metadata     `json:"metadata"`
}

type DevExInfo struct {
	CLITool     string `json:"cli_tool"`
	CreatedAt   string `json:"created_at"`
	GeneratedBy string `json:"generated_by"`
}

type CommandsInfo struct {
	Description string `json:"description"`
}

// PortalDecisions is web-portal-decisions.json.
type PortalDecisions struct {
	WebPortal PortalInfo `json:"web_portal"`
}

type PortalInfo struct {
	Framework     string   `json:"framework"`
	FilesCreated  []string `json:"files_created"`
	ServicesCount int      `json:"services_count"`
	CreatedAt     string   `json:"created_at"`
	GeneratedBy   string   `json:"generated_by"`
}

// PlatformConfig loads platform-config.yaml. The error wraps
// fs.ErrNotExist when the architect has not run yet.
func (w *Workspace) PlatformConfig() (*PlatformConfig, error) {
	var cfg PlatformConfig
	if err := w.ReadYAML(PlatformConfigFile, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// InfrastructureDecisions loads infrastructure-decisions.json.
func (w *Workspace) InfrastructureDecisions() (*InfrastructureDecisions, error) {
	var d InfrastructureDecisions
	if err := w.ReadJSON(InfrastructureDecisionsFile, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SecurityReport loads security-report.json.
func (w *Workspace) SecurityReport() (*SecurityReport, error) {
	var r SecurityReport
	if err := w.ReadJSON(SecurityReportFile, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Decisions loads every decision document that exists, keyed by file name
// without the .json suffix. Unparseable files are reported, not skipped.
func (w *Workspace) Decisions() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	for _, name := range DecisionFiles {
		data, err := w.ReadFile(name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("parsing %s: invalid JSON", name)
		}
		out[strings.TrimSuffix(name, ".json")] = json.RawMessage(data)
	}
	return out, nil
}

// IsNotExist reports whether err means the document has not been written.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
