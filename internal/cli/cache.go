package cli

import (
	"fmt"
	"os"

	"github.com/ppiankov/autoclaim/internal/cache"
	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the embedding and index-id cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached embeddings and index ids",
	Long: `Clear deletes the on-disk cache directory (cache.dir).

Run it after re-creating a LlamaCloud index or switching embedding backends
behind the same model name.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if cfg.Cache.Dir == "" {
			fmt.Fprintln(os.Stderr, "No cache directory configured; nothing to clear")
			return nil
		}
		if err := clearCache(cfg.Cache); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Cleared %s\n", cfg.Cache.Dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// clearCache empties the configured cache, even when caching is currently disabled
func clearCache(cfg model.CacheConfig) error {
	cfg.Enabled = true
	return cache.FromConfig(cfg).Clear()
}
