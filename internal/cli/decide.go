package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/pipeline"
	"github.com/ppiankov/autoclaim/internal/render"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	outJSON     string
	outMD       string
	runDetails  bool
	maxBytes    int64
	concurrentQ bool
	runTimeout  time.Duration
)

// decideCmd represents the decide command
var decideCmd = &cobra.Command{
	Use:   "decide <claim.json | url | ->",
	Short: "Decide a single claim",
	Long: `Decide runs one claim through the decision pipeline:
- Generate policy queries from the claim
- Retrieve matching policy passages and the declarations page
- Generate a coverage recommendation
- Finalize the decision (covered, deductible, recommended payout)

The claim may be a file, an http(s) URL, or - for stdin.

Example:
  autoclaim decide claim.json
  autoclaim decide claim.json --json decision.json --md decision.md
  cat claim.json | autoclaim decide - --llm-provider anthropic`,
	Args: cobra.ExactArgs(1),
	RunE: runDecide,
}

func init() {
	rootCmd.AddCommand(decideCmd)

	// Output flags
	decideCmd.Flags().StringVar(&outJSON, "json", "decision.json", "output JSON path (empty to skip)")
	decideCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	decideCmd.Flags().BoolVar(&runDetails, "details", false, "include queries, documents, and warnings in Markdown output")

	// Input and run flags
	decideCmd.Flags().Int64Var(&maxBytes, "max-bytes", 1<<20, "max claim document size")
	decideCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "whole-run timeout (default from config, 3m)")
	decideCmd.Flags().BoolVar(&concurrentQ, "concurrent", false, "retrieve policy passages for all queries in parallel")
}

func runDecide(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	applyRunFlags(cfg)

	logger := logrus.StandardLogger()
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	source := pipeline.NewClaimSource(cfg.HTTP, maxBytes)
	claim, err := source.Load(ctx, args[0])
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"claim_number": claim.ClaimNumber,
		"policy":       claim.PolicyNumber,
		"llm":          a.provider.Name(),
		"retrieval":    cfg.Retrieval.Provider,
	}).Debug("deciding claim")

	res, err := a.pipeline.Run(ctx, *claim)
	if err != nil {
		return describeFailure(err)
	}

	return writeOutputs(os.Stdout, render.NewRenderer(runDetails), res, outJSON, outMD)
}

func applyRunFlags(cfg *model.Config) {
	if concurrentQ {
		cfg.Pipeline.ConcurrentRetrieval = true
	}
	if runTimeout > 0 {
		cfg.Pipeline.Timeout = runTimeout
	}
}

// writeOutputs writes the requested files and prints the terminal summary
func writeOutputs(w io.Writer, r *render.Renderer, res *pipeline.Result, jsonPath, mdPath string) error {
	if jsonPath != "" {
		if err := r.RenderJSON(res.Decision, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := r.RenderMarkdown(res, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	r.RenderSummary(w, res)
	return nil
}

// describeFailure prefixes the failed stage and a retry hint
func describeFailure(err error) error {
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		return fmt.Errorf("decide failed: %w", err)
	}
	hint := ""
	if model.IsRetryable(err) {
		hint = " (retryable)"
	}
	return fmt.Errorf("decide failed at %s%s: %w", stageErr.Stage, hint, stageErr.Err)
}
