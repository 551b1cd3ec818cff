// Package chain assembles the pipeline agents in hand-off order.
package chain

import (
	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/agents/architect"
	"github.com/soyeahso/idpforge/internal/agents/cicd"
	"github.com/soyeahso/idpforge/internal/agents/devex"
	"github.com/soyeahso/idpforge/internal/agents/infrastructure"
	"github.com/soyeahso/idpforge/internal/agents/observability"
	"github.com/soyeahso/idpforge/internal/agents/security"
	"github.com/soyeahso/idpforge/internal/agents/webportal"
	"github.com/soyeahso/idpforge/internal/llm"
)

// Order is the fixed stage order. Each agent reads what the ones before
// it wrote.
var Order = []string{
	architect.Name,
	infrastructure.Name,
	security.Name,
	cicd.Name,
	observability.Name,
	devex.Name,
	webportal.Name,
}

var constructors = map[string]func(agents.Deps) *agents.Definition{
	architect.Name:      architect.New,
	infrastructure.Name: infrastructure.New,
	security.Name:       security.New,
	cicd.Name:           cicd.New,
	observability.Name:  observability.New,
	devex.Name:          devex.New,
	webportal.Name:      webportal.New,
}

// Build returns every agent definition in Order.
func Build(d agents.Deps) []*agents.Definition {
	out := make([]*agents.Definition, 0, len(Order))
	for _, name := range Order {
		out = append(out, constructors[name](d))
	}
	return out
}

// Get builds the single agent called name.
func Get(d agents.Deps, name string) (*agents.Definition, bool) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, false
	}
	return ctor(d), true
}

// Autopilot returns an offline client loaded with the plan of every def.
func Autopilot(defs []*agents.Definition) *llm.AutopilotClient {
	auto := llm.NewAutopilotClient()
	for _, d := range defs {
		auto.SetPlan(d.Name, d.Plan)
	}
	return auto
}
