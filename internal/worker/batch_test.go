package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/autoclaim/internal/model"
)

// mockDecider implements Decider
type mockDecider struct {
	shouldError bool
	delay       time.Duration
}

func (m *mockDecider) Decide(ctx context.Context, claim *model.ClaimInfo) (*model.ClaimDecision, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.shouldError {
		return nil, errors.New("decide error")
	}
	return &model.ClaimDecision{ClaimNumber: claim.ClaimNumber, Covered: true}, nil
}

func writeClaim(t *testing.T, dir, name, number string) string {
	t.Helper()
	doc := `{"claim_number":"` + number + `","policy_number":"P1","claimant_name":"A","date_of_loss":"2024-01-01","loss_description":"dent","estimated_repair_cost":100}`
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchProcessor_ProcessFiles(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeClaim(t, dir, "a.json", "C1"),
		writeClaim(t, dir, "b.json", "C2"),
		writeClaim(t, dir, "c.json", "C3"),
	}

	processor := NewBatchProcessor(&mockDecider{delay: 5 * time.Millisecond}, 2)
	results := processor.ProcessFiles(context.Background(), paths)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Error != nil {
			t.Errorf("unexpected error for %s: %v", res.Path, res.Error)
			continue
		}
		if res.Path != paths[i] {
			t.Errorf("expected results in input order, got %s at %d", res.Path, i)
		}
		if res.Decision == nil || res.Decision.ClaimNumber != res.Claim.ClaimNumber {
			t.Errorf("decision does not match claim for %s", res.Path)
		}
	}
}

func TestBatchProcessor_ProcessFiles_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"claim_number":"C9"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	good := writeClaim(t, dir, "good.json", "C1")

	processor := NewBatchProcessor(&mockDecider{shouldError: true}, 2)
	results := processor.ProcessFiles(context.Background(), []string{bad, good, filepath.Join(dir, "missing.json")})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !errors.Is(results[0].Error, model.ErrValidation) {
		t.Errorf("expected validation error for bad claim, got %v", results[0].Error)
	}
	if results[1].Error == nil || results[1].Decision != nil {
		t.Errorf("expected decider error for good claim, got %+v", results[1])
	}
	if results[2].Error == nil {
		t.Error("expected read error for missing file")
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockDecider{}, 2)
	if results := processor.ProcessFiles(context.Background(), nil); len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_Cancelled(t *testing.T) {
	dir := t.TempDir()
	paths := []string{writeClaim(t, dir, "a.json", "C1"), writeClaim(t, dir, "b.json", "C2")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processor := NewBatchProcessor(&mockDecider{}, 1)
	results := processor.ProcessFiles(ctx, paths)

	if len(results) != 2 {
		t.Fatalf("expected a result per claim, got %d", len(results))
	}
	for i, res := range results {
		if res.Path != paths[i] {
			t.Errorf("expected results in input order, got %s at %d", res.Path, i)
		}
		if !errors.Is(res.Error, context.Canceled) || res.Decision != nil {
			t.Errorf("expected cancelled claim %s to be skipped, got %+v", res.Path, res)
		}
	}
}

func TestExpandClaimPaths(t *testing.T) {
	dir := t.TempDir()
	a := writeClaim(t, dir, "a.json", "C1")
	writeClaim(t, dir, "b.JSON", "C2")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}

	paths, err := ExpandClaimPaths([]string{dir, a})
	if err != nil {
		t.Fatalf("ExpandClaimPaths failed: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("expected 2 deduplicated claim files, got %v", paths)
	}

	if _, err := ExpandClaimPaths([]string{filepath.Join(dir, "nope")}); err == nil {
		t.Error("expected error for missing path")
	}
}
