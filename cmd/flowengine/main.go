package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zen-systems/flowengine/pkg/config"
	"github.com/zen-systems/flowengine/pkg/evidence"
	"github.com/zen-systems/flowengine/pkg/logging"
	"github.com/zen-systems/flowengine/pkg/metrics"
	"github.com/zen-systems/flowengine/pkg/orchestrator"
	"github.com/zen-systems/flowengine/pkg/pipeline"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	traceFlag  bool
	metricsOut string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowengine",
		Short: "Multi-provider code generation with quality gates",
		Long: `Flowengine asks several LLM providers for the same workflow block in
parallel, picks a winner, and evaluates it with a fixed sequence of
quality gates: contract validation, unit coverage, mutation testing,
security scan and an LLM review.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ~/.flowengine/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json or console")
	rootCmd.PersistentFlags().BoolVar(&traceFlag, "trace", false, "print trace spans to stderr")
	rootCmd.PersistentFlags().StringVar(&metricsOut, "metrics-out", "", "write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(providersCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// env bundles what every command needs.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	shutdown func(context.Context) error
}

func setup() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	shutdown, err := setupTracing(traceFlag, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	reg := prometheus.NewRegistry()
	return &env{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.New(reg),
		shutdown: shutdown,
	}, nil
}

func (e *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.shutdown(ctx); err != nil {
		e.logger.Warn("trace shutdown failed", zap.Error(err))
	}
	if metricsOut != "" {
		if err := prometheus.WriteToTextfile(metricsOut, e.registry); err != nil {
			e.logger.Warn("metrics export failed", zap.String("path", metricsOut), zap.Error(err))
		}
	}
	_ = e.logger.Sync()
}

func (e *env) runner() *pipeline.Runner {
	return pipeline.DefaultRunner(e.cfg,
		pipeline.WithLogger(e.logger.Named("pipeline")),
		pipeline.WithMetrics(e.metrics),
	)
}

func generateCmd() *cobra.Command {
	var req orchestrator.Request
	var outDir string
	var mock bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a workflow block and run the quality gates on it",
		Long: `Sends one generation prompt to every configured provider at once,
selects the winning candidate (the primary provider when it succeeds),
runs all quality gates on it and writes an evidence bundle.

Use --mock to run offline with deterministic providers; the review gate
then falls back to heuristic scoring.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := req.Validate(); err != nil {
				return err
			}

			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			if !orchestrator.KnownFamily(req.Family) {
				e.logger.Warn("unknown workflow family", zap.String("family", req.Family))
			}
			if mock {
				e.cfg.AnthropicAPIKey = ""
			}

			providers, err := e.cfg.NewProviders(mock)
			if err != nil {
				return fmt.Errorf("failed to create providers: %w", err)
			}

			orch := orchestrator.New(providers,
				orchestrator.WithPrimary(e.cfg.Primary),
				orchestrator.WithProviderTimeout(e.cfg.ProviderTimeout),
				orchestrator.WithLogger(e.logger.Named("orchestrator")),
				orchestrator.WithMetrics(e.metrics),
			)

			if !jsonOut {
				fmt.Fprintf(os.Stderr, "Querying %s\n", strings.Join(orch.Providers(), ", "))
			}
			ctx := cmd.Context()
			gen := orch.GenerateParallel(ctx, req)

			writer, err := newEvidenceWriter(outDir, gen.ID)
			if err != nil {
				return err
			}
			promptRef, _, err := writer.WriteBlob("prompt", []byte(orchestrator.BuildPrompt(req.Family, req.BlockType, req.Repo)))
			if err != nil {
				return err
			}
			if err := writer.WriteGeneration(gen); err != nil {
				return err
			}

			run := evidence.RunRecord{
				ID:           gen.ID,
				Timestamp:    time.Now().UTC(),
				Command:      "generate",
				Family:       req.Family,
				BlockType:    req.BlockType,
				Repo:         req.Repo,
				PromptRef:    promptRef,
				ToolVersions: map[string]string{"go": runtime.Version()},
			}

			if !gen.Success {
				run.Status = "failed"
				run.Message = fmt.Sprintf("Flow failed - %s", gen.Error)
				if err := writer.WriteRun(run); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Evidence: %s\n", writer.RunDir())
				return gen.Err()
			}

			genCtx := map[string]any{
				"family":     req.Family,
				"block_type": req.BlockType,
				"repo":       req.Repo,
				"winner":     gen.Winner,
			}
			gates := e.runner().RunAll(ctx, gen.Code, genCtx)

			run.Status = flowStatus(gates)
			run.Message = fmt.Sprintf("Flow %s - %s", run.Status, gates.Summary())
			run.Winner = gen.Winner
			run.CodeHash = evidence.HashString(gen.Code)

			if err := writer.WriteCode(gen.Code); err != nil {
				return err
			}
			if err := writer.WritePipeline(gates); err != nil {
				return err
			}
			if err := writer.WriteRun(run); err != nil {
				return err
			}

			if jsonOut {
				return printJSON(os.Stdout, map[string]any{
					"run":        run,
					"generation": gen,
					"pipeline":   gates,
				})
			}

			fmt.Fprintf(os.Stderr, "Winner: %s/%s (%d succeeded, %d failed, $%.4f)\n",
				gen.Winner, gen.WinnerModel, len(gen.Succeeded), len(gen.Failed), gen.TotalCost)
			printGates(os.Stdout, gates)
			fmt.Println(run.Message)
			fmt.Fprintf(os.Stderr, "Evidence: %s\n", writer.RunDir())
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Family, "family", "", "workflow family, e.g. security or compliance (required)")
	cmd.Flags().StringVar(&req.BlockType, "block-type", "", "block type to generate (required)")
	cmd.Flags().StringVar(&req.Repo, "repo", "", "target repository (required)")
	cmd.Flags().StringVar(&outDir, "out", "", "evidence output base directory (default .flowengine/runs)")
	cmd.Flags().BoolVar(&mock, "mock", false, "use deterministic mock providers")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the full reports as JSON")

	return cmd
}

func evaluateCmd() *cobra.Command {
	var outDir string
	var jsonOut bool
	var offline bool

	cmd := &cobra.Command{
		Use:   "evaluate [file]",
		Short: "Run the quality gates on existing code",
		Long:  "Evaluates code from a file, or from stdin when no file or \"-\" is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readCode(args)
			if err != nil {
				return err
			}

			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			if offline {
				e.cfg.AnthropicAPIKey = ""
			}

			gates := e.runner().RunAll(cmd.Context(), code, map[string]any{})
			status := flowStatus(gates)
			message := fmt.Sprintf("Flow %s - %s", status, gates.Summary())

			if outDir != "" {
				writer, err := newEvidenceWriter(outDir, gates.ID)
				if err != nil {
					return err
				}
				if err := writer.WriteCode(code); err != nil {
					return err
				}
				if err := writer.WritePipeline(gates); err != nil {
					return err
				}
				if err := writer.WriteRun(evidence.RunRecord{
					ID:           gates.ID,
					Timestamp:    time.Now().UTC(),
					Command:      "evaluate",
					Status:       status,
					Message:      message,
					CodeHash:     evidence.HashString(code),
					ToolVersions: map[string]string{"go": runtime.Version()},
				}); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Evidence: %s\n", writer.RunDir())
			}

			if jsonOut {
				return printJSON(os.Stdout, gates)
			}
			printGates(os.Stdout, gates)
			fmt.Println(message)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "write an evidence bundle under this directory")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the remote reviewer and use heuristic scoring")

	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show configured providers and credential status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODEL\tINPUT $/M\tOUTPUT $/M\tAPI KEY\tENV")

			ready := true
			for _, info := range cfg.Describe() {
				status := "configured"
				if !info.Configured {
					status = "missing"
					ready = false
				}
				name := info.Name
				if name == cfg.Primary {
					name += " (primary)"
				}
				keyEnv := config.APIKeyEnv(info.Name)
				if keyEnv == "" {
					keyEnv = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%s\t%s\n",
					name, info.Model, info.Pricing.InputPerMillion, info.Pricing.OutputPerMillion, status, keyEnv)
			}

			reviewStatus := "remote"
			if !cfg.HasProvider("anthropic") {
				reviewStatus = "heuristic fallback"
			}
			fmt.Fprintln(w)
			fmt.Fprintf(w, "REVIEW\t%s\t\t\t%s\t\n", cfg.ResolveModel(cfg.ReviewModel), reviewStatus)
			if err := w.Flush(); err != nil {
				return err
			}

			if ready {
				fmt.Println("ready")
			} else {
				fmt.Println("not ready: some providers have no API key")
			}
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func newEvidenceWriter(baseDir, runID string) (*evidence.Writer, error) {
	if baseDir == "" {
		baseDir = filepath.Join(".flowengine", "runs")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create evidence dir: %w", err)
	}
	return evidence.NewWriter(baseDir, runID)
}

func readCode(args []string) (string, error) {
	var data []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("failed to read code: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("no code to evaluate")
	}
	return string(data), nil
}

func flowStatus(r *pipeline.Report) string {
	if r.AllPassed {
		return "success"
	}
	return "failed"
}

func printGates(out io.Writer, r *pipeline.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GATE\tRESULT\tSCORE\tTHRESHOLD\tCOST\tDURATION")
	for _, g := range r.Gates {
		result := "FAIL"
		if g.Passed {
			result = "PASS"
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t$%.4f\t%s\n",
			g.Name, result, g.Score, g.Threshold, g.Cost, g.Duration.Round(time.Millisecond))
	}
	_ = w.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
