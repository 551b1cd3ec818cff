package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/soyeahso/idpforge/internal/agents/chain"
	"github.com/soyeahso/idpforge/internal/compose"
	"github.com/soyeahso/idpforge/internal/config"
	"github.com/soyeahso/idpforge/internal/llm"
	"github.com/soyeahso/idpforge/internal/version"
	"github.com/soyeahso/idpforge/internal/workspace"
	"github.com/spf13/cobra"
)

// stageFiles are the documents each stage leaves behind, in chain order.
var stageFiles = []string{
	workspace.PlatformConfigFile,
	workspace.InfrastructureDecisionsFile,
	workspace.SecurityReportFile,
	workspace.CICDDecisionsFile,
	workspace.ObservabilityDecisionsFile,
	workspace.DevExDecisionsFile,
	workspace.PortalDecisionsFile,
}

func newStatusCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and what the output directory holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "idpforge %s (commit %s)\n\n", version.Version, version.Revision())

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}
			if output != "" {
				cfg.Output.Dir = output
			}

			registry := llm.NewRegistryFromConfig(cfg.LLM, nil, log)
			fmt.Fprintf(out, "LLM:     provider=%s model=%s\n", cfg.LLM.Provider, cfg.LLM.ProviderModel(cfg.LLM.Provider))
			fmt.Fprintf(out, "         available: %s (autopilot with --offline)\n", strings.Join(registry.List(), ", "))
			agentsList := cfg.Pipeline.Agents
			if len(agentsList) == 0 {
				agentsList = chain.Order
			}
			fmt.Fprintf(out, "Agents:  %s\n", strings.Join(agentsList, " → "))
			fmt.Fprintf(out, "Store:   %s\n", paths.DBPath(&cfg))
			fmt.Fprintf(out, "Portal:  http://%s:%d\n", cfg.Portal.Bind, cfg.Portal.Port)
			if cfg.Notify.IRC != nil {
				irc := cfg.Notify.IRC
				fmt.Fprintf(out, "IRC:     server=%s nick=%s channel=%s tls=%v\n", irc.Server, irc.Nick, irc.Channel, irc.UseTLS)
			} else {
				fmt.Fprintln(out, "IRC:     (not configured)")
			}
			if cfg.DigitalOcean.Token != "" {
				fmt.Fprintln(out, "DO:      deployment planner enabled")
			}
			fmt.Fprintln(out)

			ws := workspace.New(cfg.Output.Dir)
			fmt.Fprintf(out, "Output:  %s\n", ws.Root())
			for i, f := range stageFiles {
				mark := "·"
				if ws.Exists(f) {
					mark = "✓"
				}
				fmt.Fprintf(out, "  %s %-22s %s\n", mark, chain.Order[i], f)
			}
			if data, err := ws.ReadFile(workspace.ComposeFile); err == nil {
				if f, err := compose.Parse(data); err == nil {
					eps := f.Endpoints()
					names := make([]string, 0, len(eps))
					for _, ep := range eps {
						names = append(names, ep.Service)
					}
					fmt.Fprintf(out, "  services: %s\n", strings.Join(names, ", "))
				} else {
					fmt.Fprintf(out, "  compose stack unreadable: %v\n", err)
				}
			} else if !errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(out, "  compose stack: %v\n", err)
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory to inspect")
	return cmd
}
