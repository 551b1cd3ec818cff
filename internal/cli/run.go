package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soyeahso/idpforge/internal/agents/chain"
	"github.com/soyeahso/idpforge/internal/config"
	"github.com/soyeahso/idpforge/internal/domain"
	"github.com/soyeahso/idpforge/internal/notify"
	"github.com/soyeahso/idpforge/internal/pipeline"
	"github.com/soyeahso/idpforge/internal/store"
	"github.com/soyeahso/idpforge/internal/workspace"
	"github.com/spf13/cobra"
)

type runFlags struct {
	taskFile        string
	provider        string
	model           string
	output          string
	agents          []string
	offline         bool
	transcript      bool
	continueOnError bool
	runID           string
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Run the agent chain and generate the platform",
		Long: "Runs every agent in order over the output directory. The task defaults to\n" +
			"\"" + pipeline.DefaultTask + "\".",
		Example: "  idpforge run\n" +
			"  idpforge run --offline --output ./idp-demo\n" +
			"  idpforge run --agents platform_architect,infrastructure \"Build a Go platform\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			task, err := readTask(args, f.taskFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			applyRunFlags(cmd, &cfg, f)

			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			run, err := runPipeline(ctx, cmd.OutOrStdout(), cfg, task, f.runID)
			if run != nil {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out)
				for _, line := range notify.Summary(run) {
					fmt.Fprintln(out, line)
				}
				if err == nil {
					fmt.Fprintf(out, "\nServe the dashboard with: idpforge portal serve --output %s\n", run.OutputDir)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&f.taskFile, "task-file", "", "read the task from a file (- for stdin)")
	cmd.Flags().StringVar(&f.provider, "provider", "", "LLM provider (gemini, anthropic, openai, ollama, autopilot)")
	cmd.Flags().StringVar(&f.model, "model", "", "model name for the provider")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output directory (default ./test-outputs)")
	cmd.Flags().StringSliceVar(&f.agents, "agents", nil, "run only these agents, in this order")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "replay the built-in tool plans instead of calling a model")
	cmd.Flags().BoolVar(&f.transcript, "transcript", false, "write demo logs under <output>/logs and echo them")
	cmd.Flags().BoolVar(&f.continueOnError, "continue-on-error", false, "run the remaining agents after a failure")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run and session id (default: generated)")

	return cmd
}

// applyRunFlags layers explicit flags over the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, f runFlags) {
	if f.output != "" {
		cfg.Output.Dir = f.output
	}
	if f.provider != "" {
		cfg.LLM.Provider = strings.ToLower(f.provider)
	}
	if f.offline {
		cfg.LLM.Provider = "autopilot"
	}
	if f.model != "" {
		cfg.LLM.Model = f.model
	}
	if cmd.Flags().Changed("transcript") {
		cfg.Output.Transcript = f.transcript
	}
	if len(f.agents) > 0 {
		cfg.Pipeline.Agents = f.agents
	}
	if f.continueOnError {
		stop := false
		cfg.Pipeline.StopOnError = &stop
	}
}

// readTask joins the positional words, or reads taskFile. Giving both is
// an error.
func readTask(args []string, taskFile string, stdin io.Reader) (string, error) {
	if taskFile == "" {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	if len(args) > 0 {
		return "", errors.New("give the task as arguments or --task-file, not both")
	}
	var (
		data []byte
		err  error
	)
	if taskFile == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(taskFile)
	}
	if err != nil {
		return "", fmt.Errorf("reading task: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// runPipeline wires the chain for cfg and runs it once.
func runPipeline(ctx context.Context, console io.Writer, cfg config.Config, task, runID string) (*domain.Run, error) {
	ws := workspace.New(cfg.Output.Dir)
	if err := ws.EnsureDir(); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	provider := cfg.LLM.Provider
	defs, err := selectStages(chain.Build(agentDeps(cfg, ws, provider)), cfg.Pipeline.Agents)
	if err != nil {
		return nil, err
	}
	reg, err := newRegistry(cfg, defs, provider)
	if err != nil {
		return nil, err
	}

	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	p := pipeline.New(pipeline.Config{
		Stages:     defs,
		Registry:   reg,
		Sessions:   store.NewSQLiteSessionStore(db),
		Workspace:  ws,
		Hooks:      newHooks(cfg),
		Store:      db,
		Notifier:   newNotifier(cfg),
		Transcript: newTranscript(cfg.Output.Transcript, ws, console, defs),
		Options: pipeline.Options{
			Provider:          provider,
			Fallbacks:         cfg.LLM.Fallbacks,
			Model:             cfg.LLM.ProviderModel(provider),
			MaxTokens:         cfg.LLM.MaxTokens,
			Temperature:       cfg.LLM.Temperature,
			MaxToolIterations: cfg.Pipeline.MaxToolIterations,
			StageTimeout:      time.Duration(cfg.Pipeline.StageTimeoutSeconds) * time.Second,
			ContinueOnError:   !cfg.Pipeline.StopOnErrorEnabled(),
			RunID:             runID,
		},
	}, log)

	log.Info().
		Str("provider", provider).
		Str("output", ws.Root()).
		Strs("agents", p.Stages()).
		Msg("starting pipeline")
	return p.Run(ctx, task)
}
