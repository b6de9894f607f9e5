package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgard/launcher/internal/config"
	"github.com/edgard/launcher/internal/logger"
)

// cli holds the state shared by the commands of one invocation.
type cli struct {
	cfgFile  string
	logLevel string

	// cfg and log are populated by PersistentPreRunE.
	cfg *config.Config
	log *slog.Logger

	// exitCode is what the process exits with when the command succeeds.
	exitCode int
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "launcher",
		Short: "Container process launcher",
		Long: `launcher starts the configured auxiliary processes, then runs the web
server in the foreground and exits with its exit code.

Auxiliaries are restarted according to their restart policy. Health, status,
history, and metrics are served on the health address.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&c.cfgFile, "config", os.Getenv("LAUNCHER_CONFIG"), "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(c.cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = c.logLevel
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("--log-level %q: %w", c.logLevel, err)
			}
		}
		c.cfg = cfg

		// Only run logs to stdout next to the children; the other commands
		// keep stdout for their own output.
		if cmd.Name() == runCmdName || cmd == cmd.Root() {
			c.log = logger.NewLogger(cfg.Log.Level, cfg.Log.Format)
			return nil
		}
		c.log = logger.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(c.log)
		return nil
	}

	run := newRunCmd(c)
	rootCmd.RunE = run.RunE
	rootCmd.AddCommand(run, newCheckCmd(c), newHistoryCmd(c))

	return rootCmd, c
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	cmd, c := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return c.exitCode
}
