package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgard/launcher/internal/database"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		processName string
		limit       int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent process lifecycle events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Database.Path == "" {
				return errors.New("event history is disabled (database.path is empty)")
			}
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			db, err := database.NewDB(c.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.CloseDB(db)

			events, err := database.NewStore(db, c.log).RecentEvents(cmd.Context(), processName, limit)
			if err != nil {
				return err
			}

			if asJSON {
				if events == nil {
					events = []database.Event{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tPROCESS\tEVENT\tPID\tEXIT\tDETAIL")
			for _, ev := range events {
				pid, exit := "-", "-"
				if ev.PID > 0 {
					pid = strconv.Itoa(ev.PID)
				}
				if ev.ExitCode != nil {
					exit = strconv.Itoa(*ev.ExitCode)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					ev.CreatedAt.Local().Format(time.DateTime), ev.Process, ev.Kind, pid, exit, ev.Detail)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&processName, "process", "p", "", "only show events of this process")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print events as JSON")
	return cmd
}
