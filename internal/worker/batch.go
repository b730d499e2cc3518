package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/autoclaim/internal/model"
)

// Decider produces a decision for one claim
type Decider interface {
	Decide(ctx context.Context, claim *model.ClaimInfo) (*model.ClaimDecision, error)
}

// ClaimJob runs one claim file through a Decider
type ClaimJob struct {
	Index   int
	Path    string
	Decider Decider
}

// Execute reads, validates, and decides the claim
func (j *ClaimJob) Execute(ctx context.Context) Result {
	result := &ClaimResult{Index: j.Index, Path: j.Path}

	data, err := os.ReadFile(j.Path)
	if err != nil {
		result.Error = fmt.Errorf("read claim: %w", err)
		return result
	}

	claim, err := model.ParseClaimInfo(data)
	if err != nil {
		result.Error = err
		return result
	}
	result.Claim = claim

	decision, err := j.Decider.Decide(ctx, claim)
	if err != nil {
		result.Error = err
		return result
	}
	result.Decision = decision
	return result
}

// ClaimResult is the outcome of one claim in a batch
type ClaimResult struct {
	Index    int
	Path     string
	Claim    *model.ClaimInfo
	Decision *model.ClaimDecision
	Error    error
}

// GetError returns the error from the claim result
func (r *ClaimResult) GetError() error {
	return r.Error
}

// BatchProcessor decides multiple independent claims concurrently
type BatchProcessor struct {
	decider     Decider
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(decider Decider, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		decider:     decider,
		concurrency: concurrency,
	}
}

// ProcessFiles decides every claim file and returns results in input order
func (b *BatchProcessor) ProcessFiles(ctx context.Context, paths []string) []*ClaimResult {
	if len(paths) == 0 {
		return []*ClaimResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for i, path := range paths {
		if !pool.Submit(&ClaimJob{Index: i, Path: path, Decider: b.decider}) {
			break
		}
	}

	results := pool.Wait()

	claimResults := make([]*ClaimResult, 0, len(paths))
	seen := make(map[int]bool, len(results))
	for _, r := range results {
		cr := r.(*ClaimResult)
		seen[cr.Index] = true
		claimResults = append(claimResults, cr)
	}

	// Jobs abandoned by cancellation still get a result
	for i, path := range paths {
		if !seen[i] {
			err := ctx.Err()
			if err == nil {
				err = errors.New("claim not processed")
			}
			claimResults = append(claimResults, &ClaimResult{Index: i, Path: path, Error: err})
		}
	}

	sort.Slice(claimResults, func(i, j int) bool {
		return claimResults[i].Index < claimResults[j].Index
	})
	return claimResults
}

// ExpandClaimPaths resolves files and directories into a deduplicated list of
// claim files. Directories contribute their *.json entries (non-recursive).
func ExpandClaimPaths(args []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)

	add := func(p string) {
		clean := filepath.Clean(p)
		if !seen[clean] {
			seen[clean] = true
			paths = append(paths, clean)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}

		if !info.IsDir() {
			add(arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", arg, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
				continue
			}
			add(filepath.Join(arg, e.Name()))
		}
	}

	return paths, nil
}
