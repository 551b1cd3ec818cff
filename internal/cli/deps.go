package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/agents/chain"
	"github.com/soyeahso/idpforge/internal/agents/infrastructure"
	"github.com/soyeahso/idpforge/internal/catalog"
	"github.com/soyeahso/idpforge/internal/config"
	"github.com/soyeahso/idpforge/internal/hooks"
	"github.com/soyeahso/idpforge/internal/llm"
	"github.com/soyeahso/idpforge/internal/notify"
	"github.com/soyeahso/idpforge/internal/pipeline"
	"github.com/soyeahso/idpforge/internal/scanner"
	"github.com/soyeahso/idpforge/internal/store"
	"github.com/soyeahso/idpforge/internal/transcript"
	"github.com/soyeahso/idpforge/internal/workspace"
)

// agentDeps builds what the agent tools need from cfg. The DigitalOcean
// planner is only attached when a token is configured.
func agentDeps(cfg config.Config, ws *workspace.Workspace, provider string) agents.Deps {
	d := agents.Deps{
		Workspace:       ws,
		Catalog:         catalog.Default(),
		Scanner:         scanner.New(scanner.ExecExecutor{}, time.Duration(cfg.Scanner.TimeoutSeconds)*time.Second, log),
		PreferencesFile: cfg.Preferences.File,
		PortalPort:      cfg.Portal.Port,
		Model:           cfg.LLM.ProviderModel(provider),
		Clock:           time.Now,
		Logger:          log,
	}
	if cfg.DigitalOcean.Token != "" {
		do, err := infrastructure.NewDigitalOcean(cfg.DigitalOcean.Token, cfg.DigitalOcean.Region, cfg.DigitalOcean.Size)
		if err != nil {
			log.Warn().Err(err).Msg("digitalocean planner disabled")
		} else {
			d.DigitalOcean = do
		}
	}
	return d
}

// selectStages narrows defs to names, in the order given. No names keeps
// the full chain.
func selectStages(defs []*agents.Definition, names []string) ([]*agents.Definition, error) {
	if len(names) == 0 {
		return defs, nil
	}
	byName := make(map[string]*agents.Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	seen := make(map[string]bool, len(names))
	out := make([]*agents.Definition, 0, len(names))
	for _, n := range names {
		d, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown agent %q (known: %v)", n, chain.Order)
		}
		if seen[n] {
			return nil, fmt.Errorf("agent %q listed twice", n)
		}
		seen[n] = true
		out = append(out, d)
	}
	return out, nil
}

// newRegistry registers every configured provider plus the offline
// autopilot loaded with the plans of defs.
func newRegistry(cfg config.Config, defs []*agents.Definition, provider string) (*llm.Registry, error) {
	reg := llm.NewRegistryFromConfig(cfg.LLM, chain.Autopilot(defs), log)
	if _, err := reg.Resolve(provider); err != nil {
		return nil, fmt.Errorf("provider %q is not available (configured: %v): %w", provider, reg.List(), err)
	}
	return reg, nil
}

// openStore opens the run history database.
func openStore(cfg config.Config) (*store.DB, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating state directories: %w", err)
	}
	db, err := store.Open(paths.DBPath(&cfg), log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// newHooks installs the configured shell hooks.
func newHooks(cfg config.Config) *hooks.Manager {
	m := hooks.NewManager(log)
	if n := hooks.RegisterConfigured(m, cfg.Hooks); n > 0 {
		log.Info().Int("hooks", n).Msg("shell hooks registered")
	}
	return m
}

// newNotifier returns the IRC notifier when one is configured.
func newNotifier(cfg config.Config) notify.Notifier {
	if cfg.Notify.IRC == nil {
		return notify.Nop{}
	}
	n, err := notify.NewIRC(*cfg.Notify.IRC, log)
	if err != nil {
		log.Warn().Err(err).Msg("irc notifier disabled")
		return notify.Nop{}
	}
	return n
}

// newTranscript opens the demo logs under the output directory, echoing
// to console. Disabled transcripts return nil.
func newTranscript(enabled bool, ws *workspace.Workspace, console io.Writer, defs []*agents.Definition) *transcript.Transcript {
	if !enabled {
		return nil
	}
	t, err := pipeline.NewTranscript(ws.MustAbs(workspace.LogsDir), console, defs)
	if err != nil {
		log.Warn().Err(err).Msg("transcript disabled")
		return nil
	}
	return t
}
