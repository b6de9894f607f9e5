package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgard/launcher/internal/supervisor"
)

// checkOutput is the resolved configuration printed by check.
type checkOutput struct {
	Plan          *supervisor.Plan `json:"plan"`
	HealthAddr    string           `json:"health_addr,omitempty"`
	Database      string           `json:"database,omitempty"`
	Notifications bool             `json:"notifications"`
}

func newCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print the launch plan as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan, err := supervisor.BuildPlan(c.cfg)
			if err != nil {
				return err
			}

			out := checkOutput{
				Plan:          plan,
				Database:      c.cfg.Database.Path,
				Notifications: c.cfg.TelegramEnabled(),
			}
			if c.cfg.Health.Enabled {
				out.HealthAddr = c.cfg.Health.Addr
			}

			raw, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("encode plan: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return err
		},
	}
}
