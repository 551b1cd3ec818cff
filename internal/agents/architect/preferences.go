package architect

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/soyeahso/idpforge/internal/agent"
	"github.com/soyeahso/idpforge/internal/agents"
)

// Preferences are the user's standing choices from user-preferences.yaml.
// Empty fields leave the decision to the architect.
type Preferences struct {
	CICDTool                string `yaml:"cicd_tool" json:"cicd_tool,omitempty"`
	SecurityScanner         string `yaml:"security_scanner" json:"security_scanner,omitempty"`
	DeploymentTarget        string `yaml:"deployment_target" json:"deployment_target,omitempty"`
	DeploymentEnvironment   string `yaml:"deployment_environment" json:"deployment_environment,omitempty"`
	MonitoringMetrics       string `yaml:"monitoring_metrics" json:"monitoring_metrics,omitempty"`
	MonitoringVisualization string `yaml:"monitoring_visualization" json:"monitoring_visualization,omitempty"`
	Cache                   string `yaml:"cache" json:"cache,omitempty"`
	Database                string `yaml:"database" json:"database,omitempty"`
	Runtime                 string `yaml:"runtime" json:"runtime,omitempty"`
	Framework               string `yaml:"framework" json:"framework,omitempty"`
}

// DefaultPreferences fills decisions nobody made.
func DefaultPreferences() Preferences {
	return Preferences{
		CICDTool:                "Jenkins",
		SecurityScanner:         "Trivy",
		DeploymentTarget:        "Docker Compose",
		DeploymentEnvironment:   "Local",
		MonitoringMetrics:       "Prometheus",
		MonitoringVisualization: "Grafana",
		Cache:                   "Redis",
		Database:                "PostgreSQL",
		Runtime:                 "Python 3.11",
		Framework:               "FastAPI",
	}
}

// PreferencePaths is the search order when no file is configured.
var PreferencePaths = []string{"./user-preferences.yaml", "../user-preferences.yaml"}

// LoadPreferences reads the first preferences file that exists. It returns
// the path it read, or "" when none was found.
func LoadPreferences(configured string) (Preferences, string, error) {
	paths := PreferencePaths
	if configured != "" {
		paths = append([]string{configured}, paths...)
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Preferences{}, p, err
		}
		var doc struct {
			Preferences Preferences `yaml:"preferences"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Preferences{}, p, err
		}
		return doc.Preferences, p, nil
	}
	return Preferences{}, "", nil
}

func (a *deps) getUserPreferences(ctx context.Context, _ agent.NoInput) (agents.Envelope, error) {
	prefs, path, err := LoadPreferences(a.PreferencesFile)
	if err != nil {
		return nil, agents.Failf("Error reading %s: %v", path, err)
	}
	if path == "" {
		d := DefaultPreferences()
		return agents.Envelope{
			"status":  agents.StatusNotFound,
			"message": "user-preferences.yaml not found. Using the agent defaults.",
			"defaults": Preferences{
				CICDTool:              d.CICDTool,
				SecurityScanner:       d.SecurityScanner,
				DeploymentTarget:      d.DeploymentTarget,
				DeploymentEnvironment: d.DeploymentEnvironment,
			},
		}, nil
	}
	return agents.Envelope{
		"status":      agents.StatusFound,
		"file_path":   path,
		"preferences": prefs,
	}, nil
}

// preferencesFromOutput recovers preferences from a get_user_preferences
// result, accepting both the found and the defaults shapes.
func preferencesFromOutput(out string) Preferences {
	var env struct {
		Preferences *Preferences `json:"preferences"`
		Defaults    *Preferences `json:"defaults"`
	}
	if err := json.Unmarshal([]byte(out), &env); err != nil {
		return Preferences{}
	}
	if env.Preferences != nil {
		return *env.Preferences
	}
	if env.Defaults != nil {
		return *env.Defaults
	}
	return Preferences{}
}
