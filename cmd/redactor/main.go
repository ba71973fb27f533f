package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/cache"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/etl"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/privacy"
	"github.com/raaihank/pii-sentinel/internal/store"
)

const usage = "Usage: redactor <input.csv>"

var errUsage = errors.New(usage)

type options struct {
	configPath string
	workers    int
	batchSize  int
	format     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(stdout, usage)
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "redactor <input.csv>",
		Short: "Redact PII from a dataset of JSON records",
		Long: `Redactor reads records with record_id and data_json columns from a CSV,
Parquet or JSON lines file, masks the personal data in each payload and
writes redacted_output.csv (or .parquet / .jsonl) to the working directory.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errUsage
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return redact(cmd.Context(), opts, args[0], stdout)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "configuration file (default: ./config.yaml if present)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "number of redaction workers (default from config)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "records per batch (default from config)")
	cmd.Flags().StringVar(&opts.format, "format", "csv", "output format: csv, parquet or jsonl")

	return cmd
}

func parseFormat(name string) (etl.FileFormat, error) {
	switch name {
	case "csv":
		return etl.FormatCSV, nil
	case "parquet":
		return etl.FormatParquet, nil
	case "jsonl", "json":
		return etl.FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", name)
	}
}

func redact(ctx context.Context, opts *options, inputPath string, stdout io.Writer) error {
	format, err := parseFormat(opts.format)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.workers > 0 {
		cfg.Pipeline.WorkerCount = opts.workers
	}
	if opts.batchSize > 0 {
		cfg.Pipeline.BatchSize = opts.batchSize
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: true,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	registry, err := privacy.NewRegistry(cfg.Privacy.Detectors)
	if err != nil {
		return err
	}

	sinks, cleanup := openSinks(cfg, log)
	defer cleanup()

	pipeline := etl.NewPipeline(
		privacy.NewClassifier(registry, log.WithComponent("privacy")),
		&cfg.Pipeline,
		log.WithComponent("etl").Logger,
		etl.WithSinks(sinks...),
	)

	outputPath := etl.OutputFileName(format)
	result, err := pipeline.ProcessFile(ctx, inputPath, outputPath)
	if err != nil {
		return err
	}

	log.Info("Redaction completed",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("pii_records", result.PIIRecords),
		zap.Int64("parse_failures", result.ParseFailures),
		zap.Int64("sink_failures", result.SinkFailures),
		zap.Duration("duration", result.Duration),
	)

	fmt.Fprintf(stdout, "Redacted output written to %s\n", outputPath)
	return nil
}

// openSinks connects the optional store and cache. A sink that cannot be
// reached is skipped with a warning; the output file is still written.
func openSinks(cfg *config.Config, log *logger.Logger) ([]etl.Sink, func()) {
	var (
		sinks   []etl.Sink
		closers []func() error
	)

	if cfg.Store.Enabled {
		s, err := store.NewStore(&cfg.Store.Config, log.WithComponent("store").Logger)
		if err != nil {
			log.Warn("Result store unavailable, continuing without it", zap.Error(err))
		} else {
			sinks = append(sinks, s)
			closers = append(closers, s.Close)
		}
	}

	if cfg.Cache.Enabled {
		c, err := cache.NewResultCache(&cfg.Cache.Config, log.WithComponent("cache").Logger)
		if err != nil {
			log.Warn("Result cache unavailable, continuing without it", zap.Error(err))
		} else {
			sinks = append(sinks, c)
			closers = append(closers, c.Close)
		}
	}

	return sinks, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("Failed to close sink", zap.Error(err))
			}
		}
	}
}
