package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/soyeahso/idpforge/internal/agent"
	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/agents/chain"
	"github.com/soyeahso/idpforge/internal/config"
	"github.com/soyeahso/idpforge/internal/domain"
	"github.com/soyeahso/idpforge/internal/workspace"
	"github.com/spf13/cobra"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Inspect and invoke the pipeline agents",
	}

	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentInfoCmd())
	cmd.AddCommand(newAgentInvokeCmd())
	return cmd
}

// definitions builds the chain against the configured output directory.
func definitions() []*agents.Definition {
	cfg, err := loadConfig()
	if err != nil {
		log.Warn().Err(err).Msg("using default config")
		cfg = config.Defaults()
	}
	ws := workspace.New(cfg.Output.Dir)
	return chain.Build(agentDeps(cfg, ws, cfg.LLM.Provider))
}

func newAgentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the agents in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs := definitions()
			out := cmd.OutOrStdout()
			for i, d := range defs {
				name := color.New(d.Color).Sprintf("%-20s", d.Name)
				fmt.Fprintf(out, "  %d. %s %s %-32s tools=%d\n", i+1, d.Emoji, name, d.DisplayName, len(d.Tools))
			}
			return nil
		},
	}
}

func newAgentInfoCmd() *cobra.Command {
	var (
		asJSON      bool
		instruction bool
	)

	cmd := &cobra.Command{
		Use:   "info <agent>",
		Short: "Show details about an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs := definitions()
			def, err := findDefinition(defs, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(def.Info())
			}

			info := def.Info()
			fmt.Fprintf(out, "Agent: %s %s (%s)\n", info.Emoji, info.DisplayName, info.Name)
			fmt.Fprintf(out, "  Output key: %s\n", info.OutputKey)
			fmt.Fprintf(out, "  Role:       %s\n", info.Description)
			fmt.Fprintf(out, "  Tools:      %s\n", strings.Join(info.Tools, ", "))
			fmt.Fprintf(out, "  Offline:    %d planned tool calls\n", len(def.Plan))
			if instruction {
				fmt.Fprintf(out, "\n%s\n", def.Instruction)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	cmd.Flags().BoolVar(&instruction, "instruction", false, "also print the system instruction")
	return cmd
}

func newAgentInvokeCmd() *cobra.Command {
	var (
		provider string
		offline  bool
		output   string
	)

	cmd := &cobra.Command{
		Use:   "invoke <agent> [input...]",
		Short: "Run a single agent against the output directory",
		Long: "Runs one agent in a fresh session. The agent sees whatever the output\n" +
			"directory already holds, so earlier stages must have run.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if output != "" {
				cfg.Output.Dir = output
			}
			if provider != "" {
				cfg.LLM.Provider = strings.ToLower(provider)
			}
			if offline {
				cfg.LLM.Provider = "autopilot"
			}

			ws := workspace.New(cfg.Output.Dir)
			defs := chain.Build(agentDeps(cfg, ws, cfg.LLM.Provider))
			def, err := findDefinition(defs, args[0])
			if err != nil {
				return err
			}
			reg, err := newRegistry(cfg, defs, cfg.LLM.Provider)
			if err != nil {
				return err
			}

			input := strings.TrimSpace(strings.Join(args[1:], " "))
			if input == "" {
				input = "It is your turn now."
			}

			sessions := agent.NewMemorySessionStore()
			sess := sessions.GetOrCreate(domain.DefaultSessionKey())

			runner := agent.NewRunner(agent.RunnerConfig{
				AgentID:           def.Name,
				AgentName:         def.DisplayName,
				Instruction:       def.Instruction,
				Provider:          cfg.LLM.Provider,
				Fallbacks:         cfg.LLM.Fallbacks,
				Model:             cfg.LLM.ProviderModel(cfg.LLM.Provider),
				MaxTokens:         cfg.LLM.MaxTokens,
				Temperature:       cfg.LLM.Temperature,
				MaxToolIterations: cfg.Pipeline.MaxToolIterations,
				OutputDir:         ws.Root(),
			}, reg, sessions, agent.NewToolRegistry(def.Tools...), log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if cfg.Pipeline.StageTimeoutSeconds > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Pipeline.StageTimeoutSeconds)*time.Second)
				defer cancel()
			}

			res, err := runner.Run(ctx, sess.ID, input)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, tc := range res.ToolCalls {
				mark := "✅"
				if tc.Error != "" || agents.StatusOf(tc.Output) == agents.StatusError {
					mark = "❌"
				}
				fmt.Fprintf(out, "%s %s\n", mark, tc.Name)
			}
			fmt.Fprintln(out, res.Response)
			if res.Model != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[model=%s tokens=%d+%d iterations=%d]\n",
					res.Model, res.Usage.InputTokens, res.Usage.OutputTokens, res.Iterations)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider")
	cmd.Flags().BoolVar(&offline, "offline", false, "replay the built-in tool plan")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory")
	return cmd
}

// findDefinition looks an agent up by name.
func findDefinition(defs []*agents.Definition, name string) (*agents.Definition, error) {
	for _, d := range defs {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("agent not found: %s (known: %s)", name, strings.Join(chain.Order, ", "))
}
