// Package agents holds what every pipeline agent shares: its definition,
// the dependencies its tools use and the JSON envelopes tools answer with.
package agents

import (
	"context"
	"time"

	"github.com/fatih/color"

	"github.com/soyeahso/idpforge/internal/agent"
	"github.com/soyeahso/idpforge/internal/catalog"
	"github.com/soyeahso/idpforge/internal/llm"
	"github.com/soyeahso/idpforge/internal/logging"
	"github.com/soyeahso/idpforge/internal/scanner"
	"github.com/soyeahso/idpforge/internal/workspace"
)

// Definition describes one pipeline agent.
type Definition struct {
	Name        string // identifier, e.g. "platform_architect"
	DisplayName string
	Emoji       string
	Color       color.Attribute
	Description string
	Instruction string
	OutputKey   string // session state key holding the stage's final answer
	Tools       []agent.Tool
	Plan        llm.Plan // offline tool plan replayed by the autopilot provider
}

// Info summarizes the definition for listings.
func (d *Definition) Info() Info {
	names := make([]string, 0, len(d.Tools))
	for _, t := range d.Tools {
		names = append(names, t.Name())
	}
	return Info{
		Name:        d.Name,
		DisplayName: d.DisplayName,
		Emoji:       d.Emoji,
		Description: d.Description,
		OutputKey:   d.OutputKey,
		Tools:       names,
	}
}

// Info is the serializable view of a Definition.
type Info struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Emoji       string   `json:"emoji"`
	Description string   `json:"description"`
	OutputKey   string   `json:"outputKey"`
	Tools       []string `json:"tools"`
}

// DropletPlanner checks a deployment target against a cloud account.
// It is satisfied by the DigitalOcean client in the infrastructure agent.
type DropletPlanner interface {
	ValidateTarget(ctx context.Context, region, size string) (*DropletTarget, error)
}

// DropletTarget is a validated region and size.
type DropletTarget struct {
	Region      string   `json:"region"`
	RegionName  string   `json:"region_name"`
	Size        string   `json:"size"`
	VCPUs       int      `json:"vcpus"`
	MemoryMB    int      `json:"memory_mb"`
	DiskGB      int      `json:"disk_gb"`
	PriceHourly float64  `json:"price_hourly"`
	PriceMonth  float64  `json:"price_monthly"`
	Features    []string `json:"features,omitempty"`
}

// Deps are the collaborators agent tools use.
type Deps struct {
	Workspace       *workspace.Workspace
	Catalog         *catalog.Catalog
	Scanner         *scanner.Scanner
	PreferencesFile string // empty searches the default locations
	DigitalOcean    DropletPlanner
	PortalPort      int    // host port of the idpforge portal, scraped by the generated Prometheus
	Model           string // recorded as ai_model in decision metadata
	Clock           func() time.Time
	Logger          *logging.Logger
}

// Now returns the current time from Clock, in UTC.
func (d Deps) Now() time.Time {
	if d.Clock == nil {
		return time.Now().UTC()
	}
	return d.Clock().UTC()
}

// Timestamp formats Now the way decision documents record time.
func (d Deps) Timestamp() string {
	return d.Now().Format("2006-01-02T15:04:05.000000")
}

// Metadata builds the metadata block stamped into decision documents.
func (d Deps) Metadata(mode string) workspace.Metadata {
	model := d.Model
	if model == "" {
		model = "unknown"
	}
	return workspace.Metadata{AIModel: model, Mode: mode, DecisionTimestamp: d.Timestamp()}
}

// Log returns the logger for the named agent.
func (d Deps) Log(agentName string) *logging.Logger {
	if d.Logger == nil {
		return logging.Nop()
	}
	return d.Logger.Sub("agents." + agentName)
}
