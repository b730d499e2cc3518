package cli

import (
	"context"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/autoclaim/internal/cache"
	"github.com/ppiankov/autoclaim/internal/corpus"
	"github.com/ppiankov/autoclaim/internal/embeddings"
	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/retrieval"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	policyDir       string
	declarationsDir string
	indexTimeout    time.Duration
	queryPolicy     string
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the local policy and declarations indexes",
	Long: `Manage the on-disk indexes used when retrieval.provider is "local".

Each corpus directory holds .txt, .md, and .html documents. An optional
corpus.yaml attaches metadata to documents; declarations pages need a
policy_number entry so they can be looked up by policy.`,
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build local indexes from corpus directories",
	Long: `Build chunks and embeds the policy and declarations corpora and writes
them to retrieval.local.data_dir.

Example:
  autoclaim index build --policy-dir ./corpus/policies --declarations-dir ./corpus/declarations`,
	Args: cobra.NoArgs,
	RunE: runIndexBuild,
}

var indexQueryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Show the passages retrieved for a query",
	Long: `Query runs one retrieval against the configured backend, the same way the
pipeline does, and prints the matching documents.

Example:
  autoclaim index query "collision coverage"
  autoclaim index query --policy P55`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndexQuery,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexQueryCmd)

	indexBuildCmd.Flags().StringVar(&policyDir, "policy-dir", "", "policy corpus directory")
	indexBuildCmd.Flags().StringVar(&declarationsDir, "declarations-dir", "", "declarations corpus directory")
	indexBuildCmd.Flags().DurationVar(&indexTimeout, "timeout", 30*time.Minute, "total timeout for embedding")

	indexQueryCmd.Flags().StringVar(&queryPolicy, "policy", "", "look up the declarations page for this policy number instead")
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	if policyDir == "" && declarationsDir == "" {
		return fmt.Errorf("nothing to build: set --policy-dir and/or --declarations-dir")
	}

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	inner, err := embeddings.New(cfg.Embeddings, cfg.HTTP)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	embedder := embeddings.NewCachedEmbedder(inner, cache.FromConfig(cfg.Cache), cfg.Cache.DiskTTL)

	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()

	builds := []struct {
		dir  string
		name string
	}{
		{policyDir, cfg.Retrieval.PolicyIndex},
		{declarationsDir, cfg.Retrieval.DeclarationIndex},
	}
	for _, b := range builds {
		if b.dir == "" {
			continue
		}
		if b.name == "" {
			return fmt.Errorf("index name not configured for %s", b.dir)
		}
		if err := buildIndex(ctx, cfg, embedder, b.dir, b.name); err != nil {
			return err
		}
	}
	return nil
}

// buildIndex loads, chunks, embeds, and exports one corpus
func buildIndex(ctx context.Context, cfg *model.Config, embedder embeddings.Embedder, dir, name string) error {
	log := logrus.WithFields(logrus.Fields{"index": name, "dir": dir})

	docs, err := corpus.Load(dir)
	if err != nil {
		return fmt.Errorf("load corpus %s: %w", dir, err)
	}
	chunks := corpus.ChunkDocuments(docs, cfg.Retrieval.Local.ChunkSize)
	log.WithFields(logrus.Fields{"documents": len(docs), "chunks": len(chunks)}).Info("corpus loaded")

	idx, err := retrieval.NewChromemIndex(name, embedder, cfg.Retrieval.DenseTopK)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := idx.AddChunks(ctx, chunks, cfg.Retrieval.Local.EmbedWorkers); err != nil {
		return fmt.Errorf("embed %s: %w", name, err)
	}
	if err := idx.Export(cfg.Retrieval.Local.DataDir); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "✓ Built index %s: %d chunks from %d documents in %s (%s)\n",
		name, idx.Count(), len(docs), time.Since(start).Round(time.Millisecond),
		retrieval.IndexPath(cfg.Retrieval.Local.DataDir, name))
	return nil
}

func runIndexQuery(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && queryPolicy == "" {
		return fmt.Errorf("provide a query or --policy")
	}

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	c := cache.FromConfig(cfg.Cache)
	var embedder embeddings.Embedder
	if cfg.Retrieval.Provider == "local" {
		inner, err := embeddings.New(cfg.Embeddings, cfg.HTTP)
		if err != nil {
			return fmt.Errorf("create embedder: %w", err)
		}
		embedder = embeddings.NewCachedEmbedder(inner, c, cfg.Cache.DiskTTL)
	}

	limiter := newLimiter(cfg.RateLimit)
	svc, err := retrieval.NewServiceFromConfig(cfg, embedder, limiter, c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var docs []retrieval.Document
	if queryPolicy != "" {
		docs, err = svc.RetrieveDeclaration(ctx, queryPolicy)
	} else {
		docs, err = svc.RetrievePolicyPassages(ctx, args[0])
	}
	if err != nil {
		return err
	}

	printDocuments(docs)
	return nil
}

func printDocuments(docs []retrieval.Document) {
	if len(docs) == 0 {
		fmt.Println("No documents matched.")
		return
	}
	for i, d := range docs {
		fmt.Printf("%d. %s (score %.3f)\n", i+1, d.ID, d.Score)
		fmt.Printf("   %s\n\n", preview(d.Text, 300))
	}
}

// preview shortens text to at most n runes
func preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}
