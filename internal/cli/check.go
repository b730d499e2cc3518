package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/autoclaim/internal/retrieval"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the LLM and retrieval backends are reachable",
	Long: `Check validates the configuration and probes each backend:
- the LLM provider
- the policy index
- the declarations index`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// probe is one named availability check
type probe struct {
	name  string
	check func(ctx context.Context) bool
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}

	policy, declarations := a.retrieval.Indexes()
	probes := []probe{
		{fmt.Sprintf("llm (%s/%s)", a.provider.Name(), cfg.LLM.Model), a.provider.IsAvailable},
		indexProbe("policy index", policy),
		indexProbe("declarations index", declarations),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if failed := runProbes(ctx, probes); failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(probes))
	}
	return nil
}

func indexProbe(label string, idx retrieval.Index) probe {
	return probe{fmt.Sprintf("%s (%s)", label, idx.Name()), idx.IsAvailable}
}

// runProbes prints one line per probe and returns the number that failed
func runProbes(ctx context.Context, probes []probe) int {
	failed := 0
	for _, p := range probes {
		if p.check(ctx) {
			fmt.Fprintf(os.Stderr, "✓ %s\n", p.name)
			continue
		}
		failed++
		fmt.Fprintf(os.Stderr, "✗ %s\n", p.name)
	}
	return failed
}
