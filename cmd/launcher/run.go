package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edgard/launcher/internal/app"
)

const runCmdName = "run"

func newRunCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   runCmdName,
		Short: "Start the auxiliaries and the server (default)",
		Long: `Start every enabled auxiliary process, then the server in the foreground.

The launcher exits with the server's exit code. SIGINT or SIGTERM stop all
processes with the configured grace period.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.run(ctx)
		},
	}
}

func (c *cli) run(ctx context.Context) error {
	a, err := app.New(c.cfg, c.log)
	if err != nil {
		return err
	}
	defer a.Close()

	code, err := a.Run(ctx)
	c.exitCode = code
	if err != nil && code == 0 && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
