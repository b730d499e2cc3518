package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/render"
	"github.com/ppiankov/autoclaim/internal/worker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchMD      bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <claim.json | dir>...",
	Short: "Decide multiple claims in parallel",
	Long: `Batch decides many independent claims concurrently:
- Accepts claim files and directories of *.json claims
- Each claim gets its own pipeline run, state, and timeout
- Writes one decision JSON per claim plus summary.json

Example:
  autoclaim batch claims/
  autoclaim batch claims/ --concurrency 8 --output-dir ./decisions
  autoclaim batch c1.json c2.json --md --timeout 30m`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Concurrency flags
	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./autoclaim-decisions", "output directory for decisions")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&batchMD, "md", false, "also write a Markdown decision per claim")

	// Per-claim run flags shared with decide
	batchCmd.Flags().DurationVar(&runTimeout, "claim-timeout", 0, "timeout for each claim (default from config, 3m)")
	batchCmd.Flags().BoolVar(&concurrentQ, "concurrent", false, "retrieve policy passages for all queries in parallel")
}

// batchEntry is one line of summary.json
type batchEntry struct {
	Path     string               `json:"path"`
	Output   string               `json:"output,omitempty"`
	Decision *model.ClaimDecision `json:"decision,omitempty"`
	Error    string               `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	applyRunFlags(cfg)

	paths, err := worker.ExpandClaimPaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no claim files found")
	}

	a, err := newApp(cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Autoclaim Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Claims:       %d\n", len(paths))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v (per claim %v)\n", batchTimeout, cfg.Pipeline.Timeout)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", a.provider.Name(), cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	processor := worker.NewBatchProcessor(a.pipeline, concurrency)
	results := processor.ProcessFiles(ctx, paths)

	entries, failures := writeBatchResults(render.NewRenderer(false), results, outputDir, batchMD)

	summaryPath := filepath.Join(outputDir, "summary.json")
	if err := writeJSONFile(summaryPath, entries); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d claims\n", len(results))
	fmt.Fprintf(os.Stderr, "  Decided:   %d\n", len(results)-failures)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failures)
	fmt.Fprintf(os.Stderr, "  Summary:   %s\n", summaryPath)
	fmt.Fprintf(os.Stderr, "\n")

	if failures > 0 {
		return fmt.Errorf("%d of %d claims failed", failures, len(results))
	}
	return nil
}

// writeBatchResults writes one decision file per successful claim and
// returns the summary entries in input order with the failure count.
func writeBatchResults(r *render.Renderer, results []*worker.ClaimResult, dir string, withMarkdown bool) ([]batchEntry, int) {
	entries := make([]batchEntry, 0, len(results))
	failures := 0
	used := make(map[string]int)

	for _, result := range results {
		entry := batchEntry{Path: result.Path}

		if result.Error != nil {
			failures++
			entry.Error = result.Error.Error()
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Path, result.Error)
			entries = append(entries, entry)
			continue
		}

		// Claim numbers are not guaranteed unique across files
		slug := sanitizeFilename(result.Decision.ClaimNumber)
		if slug == "" {
			slug = strings.TrimSuffix(filepath.Base(result.Path), filepath.Ext(result.Path))
		}
		used[slug]++
		if n := used[slug]; n > 1 {
			slug = fmt.Sprintf("%s-%d", slug, n)
		}

		jsonPath := filepath.Join(dir, slug+".json")
		if err := r.RenderJSON(*result.Decision, jsonPath); err != nil {
			failures++
			entry.Error = fmt.Sprintf("write JSON: %v", err)
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", result.Path, err)
			entries = append(entries, entry)
			continue
		}
		if withMarkdown {
			mdPath := filepath.Join(dir, slug+".md")
			if err := os.WriteFile(mdPath, []byte(render.DecisionMarkdown(*result.Decision)), 0644); err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", result.Path, err)
			}
		}

		entry.Output = jsonPath
		entry.Decision = result.Decision
		entries = append(entries, entry)

		fmt.Fprintf(os.Stderr, "✓ %s: %s (payout %s)\n",
			result.Decision.ClaimNumber, result.Decision.Verdict(), model.FormatCurrency(result.Decision.RecommendedPayout))
	}

	return entries, failures
}

func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.NewRenderer(false).WriteJSON(f, v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "-",
)

// sanitizeFilename sanitizes a string for use as a filename
func sanitizeFilename(s string) string {
	s = strings.TrimSpace(s)
	s = filenameReplacer.Replace(s)
	s = strings.Trim(s, ".")

	// Limit length
	if len(s) > 100 {
		s = s[:100]
	}

	return s
}
