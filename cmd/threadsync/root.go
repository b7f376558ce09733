package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"threadsync/internal/config"
	"threadsync/internal/log"
)

// flagKeys maps persistent flags onto configuration keys. Flags win over the
// environment, the config file and the defaults.
var flagKeys = map[string]string{
	"role":          "role",
	"api-url":       "api.base_url",
	"transport":     "transport.kind",
	"transport-url": "transport.url",
	"nats-url":      "transport.nats_url",
	"log-level":     "logging.level",
	"log-file":      "logging.path",
	"metrics-addr":  "metrics.addr",
}

// cli carries the streams and configuration shared by every subcommand.
type cli struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	loader     *config.Loader
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		loader: config.NewLoader(),
	}

	root := &cobra.Command{
		Use:           "threadsync",
		Short:         "Follow and reply to feedback discussions in real time",
		Long:          `threadsync loads a feedback thread's history, joins its live channel and keeps a deduplicated, time-ordered timeline.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "",
		"config file (default: ./threadsync.yaml, then ~/.config/threadsync/threadsync.yaml)")
	flags.String("role", "", "participant role: designer, developer, product_manager or reviewer")
	flags.String("api-url", "", "feedback REST base URL")
	flags.String("transport", "", `live transport: "websocket" or "nats"`)
	flags.String("transport-url", "", "websocket event server URL")
	flags.String("nats-url", "", "NATS server URL")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-file", "", "append logs to this file instead of stderr")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	for name, key := range flagKeys {
		_ = c.loader.Viper().BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(newWatchCmd(c), newHistoryCmd(c), newConfigCmd(c))
	return root
}

// setup resolves the configuration and routes logging according to it.
// The returned cleanup closes the log destination.
func (c *cli) setup() (*config.Config, func(), error) {
	cfg, err := c.loader.Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}

	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Logging.Path != "" {
		cleanup, err := log.InitFile(cfg.Logging.Path, level)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
		}
		return cfg, cleanup, nil
	}
	return cfg, log.Init(c.stderr, level), nil
}
