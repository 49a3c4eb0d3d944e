package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gcbaptista/medlex-spotter/config"
	"github.com/gcbaptista/medlex-spotter/internal/batch"
	"github.com/gcbaptista/medlex-spotter/internal/engine"
	"github.com/gcbaptista/medlex-spotter/internal/notes"
)

type scanOptions struct {
	in      string
	targets string
	out     string
	sep     string
	workers int
}

func newScanCmd() *cobra.Command {
	opts := scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a CSV/TSV table of notes and write one flagged row per note",
		Long: `Scan reads a table with note_id and text columns, runs every note through
the matching engine and writes note_id, one has_<canonical> column per target
and a JSON spans column.

Examples:
  # Write results to stdout
  medlex scan --in notes.csv --targets targets.yaml

  # Tab-separated input, results to a file, 8 workers
  medlex scan --in notes.tsv --sep tsv --targets targets.yaml --out flags.csv --workers 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), opts, logger)
		},
	}

	cmd.Flags().StringVar(&opts.in, "in", "", "input table of notes (required)")
	cmd.Flags().StringVar(&opts.targets, "targets", "", "targets YAML file (required)")
	cmd.Flags().StringVar(&opts.out, "out", "-", "output CSV path, - for stdout")
	cmd.Flags().StringVar(&opts.sep, "sep", string(notes.SeparatorAuto), "input separator: auto, csv or tsv")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "notes scanned in parallel (0 = number of CPUs)")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("targets")

	return cmd
}

// runScan loads the configuration and the notes before scanning anything, so
// configuration and input errors abort the run without partial output.
func runScan(ctx context.Context, opts scanOptions, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	sep, err := notes.ParseSeparator(opts.sep)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.targets)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}

	input, err := notes.ReadFile(opts.in, sep)
	if err != nil {
		return err
	}
	logger.Info("scanning notes",
		zap.String("input", opts.in),
		zap.Int("notes", len(input)),
		zap.Int("targets", len(eng.Canonicals())),
	)

	start := time.Now()
	runner := batch.New(eng, batch.WithWorkers(opts.workers), batch.WithLogger(logger))
	rows, err := runner.Run(ctx, input, nil)
	if err != nil {
		return err
	}

	if err := notes.WriteFile(opts.out, rows, eng.FlagKeys()); err != nil {
		return err
	}

	logger.Info("scan finished",
		zap.Int("rows", len(rows)),
		zap.String("output", opts.out),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
