package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/perclft/qcircuit/config"
	"github.com/perclft/qcircuit/logging"
)

// rootOptions holds the flags shared by every command. Flags override the
// config file and the environment.
type rootOptions struct {
	ConfigPath string
	Addr       string
	Workers    int
	LogLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "qcircuitd",
		Short: "Quantum circuit transpilation and execution service",
		Long: `qcircuitd analyzes quantum circuits for a target backend and runs them
asynchronously on a simulator, storing outcome histograms for polling.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "", "HTTP listen address (overrides http.addr)")
	cmd.PersistentFlags().IntVar(&opts.Workers, "workers", 0, "worker concurrency (overrides worker.concurrency)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (overrides log.level)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newWorkerCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	return cmd
}

// load resolves the configuration and builds the logger.
func (o *rootOptions) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.Addr != "" {
		cfg.HTTP.Addr = o.Addr
	}
	if o.Workers > 0 {
		cfg.Worker.Concurrency = o.Workers
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
