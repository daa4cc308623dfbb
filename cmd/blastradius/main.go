package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"blastradius/internal/connector/awsiam"
	"blastradius/internal/criticality"
	"blastradius/internal/engine"
	"blastradius/internal/logging"
	"blastradius/internal/outputter"
	"blastradius/internal/snapshot"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		debug         bool
		snapshotPath  string
		identity      string
		actions       []string
		reqContext    []string
		maxTrustHops  int
		topN          int
		format        string
		outputPath    string
		workers       int
		timeout       time.Duration
		scoringConfig string
	)

	rootCmd := &cobra.Command{
		Use:   "blastradius",
		Short: "Blast Radius - identity exposure ranking",
		Long:  "Computes the blast radius of a compromised identity: the resources it can reach through direct and transitive grants, ranked by criticality and permission strength",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlastRadius(ctx, runConfig{
				debug:         debug,
				snapshotPath:  snapshotPath,
				identity:      identity,
				actions:       actions,
				reqContext:    reqContext,
				maxTrustHops:  maxTrustHops,
				topN:          topN,
				format:        format,
				outputPath:    outputPath,
				workers:       workers,
				timeout:       timeout,
				scoringConfig: scoringConfig,
			})
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging (verbose output)")
	rootCmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Path to the permission graph snapshot (JSON)")
	rootCmd.Flags().StringVar(&identity, "identity", engine.TargetAll, "Identity to assess, or 'all'")
	rootCmd.Flags().StringSliceVar(&actions, "actions", nil, "Actions of interest (default: all)")
	rootCmd.Flags().StringSliceVar(&reqContext, "context", nil, "Request context entries as key=value")
	rootCmd.Flags().IntVar(&maxTrustHops, "max-trust-hops", 3, "Maximum cross-boundary trust hops")
	rootCmd.Flags().IntVar(&topN, "top", 0, "Limit findings per identity (0 = unlimited)")
	rootCmd.Flags().StringVar(&format, "format", "text", "Output format: text, json, or csv")
	rootCmd.Flags().StringVar(&outputPath, "output", "", "Write the report to a file instead of stdout")
	rootCmd.Flags().IntVar(&workers, "workers", engine.DefaultWorkers, "Concurrent identity workers")
	rootCmd.Flags().DurationVar(&timeout, "timeout", engine.DefaultIdentityTimeout, "Per-identity resolution timeout")
	rootCmd.Flags().StringVar(&scoringConfig, "scoring-config", "", "Path to a criticality scoring weights file (YAML)")
	_ = rootCmd.MarkFlagRequired("snapshot")

	rootCmd.AddCommand(newExportAWSCommand(ctx, &debug))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type runConfig struct {
	debug         bool
	snapshotPath  string
	identity      string
	actions       []string
	reqContext    []string
	maxTrustHops  int
	topN          int
	format        string
	outputPath    string
	workers       int
	timeout       time.Duration
	scoringConfig string
}

func runBlastRadius(ctx context.Context, cfg runConfig) error {
	setup(cfg.debug)

	store, err := snapshot.LoadFile(cfg.snapshotPath)
	if err != nil {
		return fmt.Errorf("error loading snapshot: %w", err)
	}

	var weights *criticality.WeightConfig
	if cfg.scoringConfig != "" {
		weights, err = criticality.LoadConfig(cfg.scoringConfig)
		if err != nil {
			return fmt.Errorf("error loading scoring config: %w", err)
		}
	}

	report, err := engine.Run(ctx, store, engine.Options{
		TargetIdentity:  cfg.identity,
		Actions:         cfg.actions,
		Context:         parseContext(cfg.reqContext),
		MaxTrustHops:    cfg.maxTrustHops,
		TopN:            cfg.topN,
		Workers:         cfg.workers,
		IdentityTimeout: cfg.timeout,
		ScoringConfig:   weights,
	})
	if err != nil {
		return fmt.Errorf("error computing blast radius: %w", err)
	}

	return outputter.WriteFile(cfg.outputPath, report, outputter.Format(cfg.format))
}

func newExportAWSCommand(ctx context.Context, debug *bool) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export-aws",
		Short: "Export an AWS account's IAM configuration as a graph snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			setup(*debug)

			exporter, err := awsiam.NewExporter(ctx)
			if err != nil {
				return fmt.Errorf("error initializing AWS exporter: %w", err)
			}
			doc, err := exporter.Export(ctx)
			if err != nil {
				return fmt.Errorf("error exporting IAM graph: %w", err)
			}

			out := os.Stdout
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("error creating output file: %w", err)
				}
				defer f.Close()
				out = f
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&outputPath, "output", "", "Write the snapshot to a file instead of stdout")
	return cmd
}

// setup loads the optional .env file and configures logging. Production
// should use real env vars; the .env file is a development convenience.
func setup(debug bool) {
	_ = godotenv.Load()

	logging.SetLogLevel(logging.LogLevelWarn)
	if debug {
		logging.SetLogLevel(logging.LogLevelDebug)
		fmt.Println("\n🔍 Debug logging: ENABLED")
	}
}

func parseContext(entries []string) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	reqCtx := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, found := strings.Cut(entry, "=")
		if found {
			reqCtx[key] = value
		}
	}
	return reqCtx
}
