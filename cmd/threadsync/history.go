package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"threadsync/internal/api"
	"threadsync/internal/reconcile"
	"threadsync/pkg/interfaces"
)

func newHistoryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "history <thread-id>",
		Short: "Print a thread's persisted discussion without joining it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := c.setup()
			if err != nil {
				return err
			}
			defer closeLog()

			client, err := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout)
			if err != nil {
				return err
			}

			threadID := args[0]
			fb, err := client.Feedback(cmd.Context(), threadID)
			if errors.Is(err, interfaces.ErrNotFound) {
				fmt.Fprintf(c.stdout, "%s has no history yet\n", threadID)
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", threadID, err)
			}

			status := "open"
			if fb.Resolved {
				status = "resolved"
			}
			fmt.Fprintf(c.stdout, "%s [%s, %s] %s\n", threadID, fb.Severity, status, fb.Issue)

			timeline := reconcile.Reconcile(fb.Discussions, nil)
			now := time.Now()
			for _, m := range timeline {
				fmt.Fprintln(c.stdout, formatMessage(m, now))
			}
			fmt.Fprintf(c.stdout, "-- %s\n", summary(len(timeline)))
			return nil
		},
	}
}
