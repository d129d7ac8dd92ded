package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"nemsql/backend/libs/logging"
	"nemsql/backend/services/converter/internal/app"
	"nemsql/backend/services/converter/internal/config"
)

type flags struct {
	configPath string
	input      string
	outDir     string
	workers    int
	queueSize  int
	timeout    time.Duration
	load       bool
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "nem12-converter",
		Short:         "Convert NEM12 interval data into meter_readings INSERT statements",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, f)
		},
	}

	bindFlags(cmd, &f)

	return cmd
}

func bindFlags(cmd *cobra.Command, f *flags) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "YAML config file (defaults to $CONFIG_FILE)")
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "NEM12 input file")
	cmd.Flags().StringVarP(&f.outDir, "out", "o", "", "directory for the per-worker SQL files")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "number of workers (default: available CPUs)")
	cmd.Flags().IntVar(&f.queueSize, "queue-size", 0, "capacity of the block queue")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "how long to wait for the workers")
	cmd.Flags().BoolVar(&f.load, "load", false, "apply the generated SQL to PostgreSQL")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig layers flags over the file and environment and validates the result.
func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg, f)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, f flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logger.Sync()

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf)); err != nil {
		logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to init application", zap.Error(err))
		return err
	}
	defer application.Close()

	started := time.Now()
	if _, err := application.Run(ctx); err != nil {
		logger.Error("conversion failed", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		return err
	}
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, f flags) {
	changed := cmd.Flags().Changed
	if changed("input") {
		cfg.Input.Path = f.input
	}
	if changed("out") {
		cfg.Output.Dir = f.outDir
	}
	if changed("workers") {
		cfg.Pipeline.Workers = f.workers
	}
	if changed("queue-size") {
		cfg.Pipeline.QueueCapacity = f.queueSize
	}
	if changed("timeout") {
		cfg.Pipeline.Timeout = f.timeout
	}
	if changed("load") {
		cfg.Database.Load = f.load
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
}
