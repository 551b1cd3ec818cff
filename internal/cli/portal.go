package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soyeahso/idpforge/internal/config"
	"github.com/soyeahso/idpforge/internal/portal"
	"github.com/soyeahso/idpforge/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/tillberg/autorestart"
)

func newPortalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portal",
		Short: "Serve the platform dashboard",
	}

	cmd.AddCommand(newPortalServeCmd())
	return cmd
}

func newPortalServeCmd() *cobra.Command {
	var (
		port    int
		bind    string
		output  string
		watch   bool
		restart bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard over the output directory",
		Long: "Serves the services, their health and the agents' decisions from the output\n" +
			"directory. With --watch, file changes are pushed to browsers over /ws.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Portal.Port = port
			}
			if bind != "" {
				cfg.Portal.Bind = bind
			}
			if output != "" {
				cfg.Output.Dir = output
			}

			var portalIssues []config.ValidationIssue
			for _, issue := range config.Validate(&cfg) {
				if strings.HasPrefix(issue.Path, "portal.") {
					portalIssues = append(portalIssues, issue)
				}
			}
			if len(portalIssues) > 0 {
				for _, issue := range portalIssues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(portalIssues))
			}

			if restart {
				go autorestart.RestartOnChange()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := portal.New(cfg.Portal, workspace.New(cfg.Output.Dir), log)
			fmt.Fprintf(cmd.OutOrStdout(), "Portal: http://%s\n", srv.ListenAddr())
			return srv.Start(ctx, watch)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override portal port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind address")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory to serve")
	cmd.Flags().BoolVar(&watch, "watch", true, "push output directory changes to connected browsers")
	cmd.Flags().BoolVar(&restart, "restart-on-change", false, "re-exec when the idpforge binary is rebuilt")

	return cmd
}
