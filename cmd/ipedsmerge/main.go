// Command ipedsmerge merges IPEDS extracts into a single college dataset.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/David-Botos/ipeds-ingress/pkg/config"
	"github.com/David-Botos/ipeds-ingress/pkg/merger"
	"github.com/David-Botos/ipeds-ingress/pkg/pipeline"
)

type options struct {
	output     string
	envFile    string
	vintage    string
	schemaFile string
	publish    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "ipedsmerge",
		Short:         "Merge IPEDS extracts into one normalized college dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := run(cmd, opts)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "ipedsmerge: %v\n", err)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "output JSON path (overrides OUTPUT_PATH)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "file of environment variables to load first")
	flags.StringVar(&opts.vintage, "vintage", "", "IPEDS release year (overrides IPEDS_VINTAGE)")
	flags.StringVar(&opts.schemaFile, "schema-file", "", "YAML field registry overrides (overrides SCHEMA_FILE)")
	flags.BoolVar(&opts.publish, "publish", false, "replace the college collection in PostgreSQL (overrides PUBLISH_ENABLED)")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	if err := config.LoadEnvFile(opts.envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	// Flags take precedence over the environment
	overrides := map[string]string{
		"output":      "OUTPUT_PATH",
		"vintage":     "IPEDS_VINTAGE",
		"schema-file": "SCHEMA_FILE",
		"publish":     "PUBLISH_ENABLED",
	}
	for flag, env := range overrides {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := os.Setenv(env, f.Value.String()); err != nil {
				return fmt.Errorf("failed to apply --%s: %w", flag, err)
			}
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := buildLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(cfg, logger)
	if err != nil {
		return err
	}

	result, err := p.WithReportWriter(cmd.OutOrStdout()).Run(ctx)
	if err != nil {
		if errors.Is(err, merger.ErrBaseTableMissing) {
			logger.Error("Base directory table could not be used", zap.String("base", cfg.BaseSource))
		}
		return err
	}

	logger.Info("Wrote colleges",
		zap.String("run_id", result.RunID),
		zap.String("path", result.OutputPath),
		zap.Int("records", len(result.Records)),
		zap.Int("diagnostics", len(result.Diagnostics)),
		zap.Duration("duration", result.Duration))
	return nil
}

// buildLogger creates the process logger from LOG_LEVEL and LOG_FORMAT
func buildLogger(level, format string) (*zap.Logger, error) {
	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	var zcfg zap.Config
	switch format {
	case "json":
		zcfg = zap.NewProductionConfig()
	case "console", "":
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: want json or console", format)
	}
	zcfg.Level = atomic
	zcfg.OutputPaths = []string{"stderr"}

	return zcfg.Build()
}
