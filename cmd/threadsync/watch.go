package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"threadsync/internal/app"
	"threadsync/internal/log"
)

const shutdownTimeout = 10 * time.Second

func newWatchCmd(c *cli) *cobra.Command {
	var followLogs bool

	cmd := &cobra.Command{
		Use:   "watch <thread-id>",
		Short: "Join a thread, print its timeline live and send stdin lines as messages",
		Long: `watch loads the thread history, joins the live channel and prints new messages,
typing indicators and connection changes as they happen. Every line read from stdin
is sent as a message; "/quit" leaves.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.watch(cmd.Context(), args[0], followLogs)
		},
	}
	cmd.Flags().BoolVar(&followLogs, "follow-logs", false, "mirror log lines to stderr when logging to a file")
	return cmd
}

func (c *cli) watch(ctx context.Context, threadID string, followLogs bool) error {
	// STEP 1: Configuration and logging
	cfg, closeLog, err := c.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	// STEP 2: Signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// STEP 3: Build and start the application
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Stop(shutdownCtx); err != nil {
			log.ErrorErr(log.CatApp, "shutdown", err)
		}
	}()

	if followLogs && cfg.Logging.Path != "" {
		if entries := log.Subscribe(ctx); entries != nil {
			go func() {
				for ev := range entries {
					_, _ = io.WriteString(c.stderr, ev.Payload)
				}
			}()
		}
	}

	// STEP 4: Subscribe before switching so the history load is not missed
	controller := application.Controller()
	changes := controller.Subscribe(ctx)
	if err := controller.SwitchThread(ctx, threadID); err != nil {
		return err
	}

	view := newTimelineView(c.stdout)
	lines := readLines(ctx, c.stdin)

	// STEP 5: Render changes and forward input until interrupted
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-changes:
			if !ok {
				return nil
			}
			view.handle(ev, controller)
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if line == "/quit" {
				return nil
			}
			if !controller.ConnectionState().Connected() {
				fmt.Fprintf(c.stderr, "not connected (%s), message dropped\n", controller.ConnectionState())
				continue
			}
			controller.UpdateDraft(line)
			if err := controller.Send(line); err != nil {
				fmt.Fprintf(c.stderr, "send failed: %v\n", err)
			}
		}
	}
}

// readLines streams trimmed, non-empty lines from r until EOF or ctx ends.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn(log.CatApp, "reading input", "error", err)
		}
	}()
	return out
}
