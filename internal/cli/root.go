package cli

import (
	"github.com/soyeahso/idpforge/internal/config"
	"github.com/soyeahso/idpforge/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idpforge",
		Short: "idpforge: generate an Internal Developer Platform with a chain of AI agents",
		Long: "idpforge runs seven agents one after another (architect, infrastructure, security,\n" +
			"CI/CD, observability, developer experience, web portal). Each one reads what the\n" +
			"previous agents wrote to the output directory and adds its own artifacts.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			log = logging.New(nil, resolveLogLevel())
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.idpforge/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newAgentCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newPortalCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// resolveLogLevel picks the flag, then IDPFORGE_LOG_LEVEL via the config
// loader, then info.
func resolveLogLevel() string {
	if logLevel != "" {
		return logLevel
	}
	if cfg, err := config.Load(paths.Config); err == nil && cfg.Logging.Level != "" {
		return cfg.Logging.Level
	}
	return "info"
}

// loadConfig reads the config file and re-creates the root logger with
// the configured format. A broken file is an error; a missing one is not.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	log = logging.NewWithOptions(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
