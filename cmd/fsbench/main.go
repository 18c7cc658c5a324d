package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/runningwild/fsbench/pkg/bench"
	"github.com/runningwild/fsbench/pkg/config"
	"github.com/runningwild/fsbench/pkg/logging"
	"github.com/runningwild/fsbench/pkg/metrics"
	"github.com/runningwild/fsbench/pkg/store"
	"github.com/runningwild/fsbench/pkg/trace"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fsbench: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "fsbench",
		Short:         "Benchmark mounted filesystems with micro ops, throughput probes and trace replay",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBenchmark(v)
		},
	}
	config.RegisterFlags(cmd.Flags())
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		panic(err)
	}
	cmd.AddCommand(newTraceCmd(), newRunsCmd())
	return cmd
}

func runBenchmark(v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var opts []bench.Option
	if cfg.ResultsDB != "" {
		db, err := store.Open(cfg.ResultsDB, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, bench.WithStore(db))
	}
	if cfg.Metrics {
		opts = append(opts, bench.WithMetrics(metrics.New()))
	}

	logger.Info("starting",
		zap.Stringer("benchmark", cfg.Benchmark),
		zap.Strings("mounts", cfg.Mounts),
		zap.String("log_path", cfg.LogPath))
	return bench.New(cfg, logger, opts...).Run()
}

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect trace workloads",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Load a trace workload and print what it contains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := trace.Load(args[0])
			if err != nil {
				return err
			}
			s := tr.Summary()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-12s %d\n", "processes:", s.Processes)
			fmt.Fprintf(w, "%-12s %d\n", "operations:", s.Operations)
			fmt.Fprintf(w, "%-12s %d\n", "shared:", s.Shared)
			fmt.Fprintf(w, "%-12s %d\n", "handles:", s.Handles)
			fmt.Fprintf(w, "%-12s %d files, %d dirs\n", "pre-image:", s.Files, s.Dirs)
			return nil
		},
	})
	return cmd
}

func newRunsCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the runs archived in a results database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := store.Open(path, nil)
			if err != nil {
				return err
			}
			defer db.Close()
			runs, err := db.Runs()
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintln(cmd.OutOrStdout(), r.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "results-db", "fsbench.db", "SQLite results database")
	return cmd
}
