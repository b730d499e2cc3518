package corpus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHTMLText(t *testing.T) {
	doc := `<html><head><title>Policy</title><style>p{}</style></head><body>
<h1>Part D</h1>
<p>Collision   coverage applies.<br>Deductible: $500</p>
<script>alert(1)</script>
<ul><li>Towing</li><li>Rental</li></ul>
</body></html>`

	text, err := HTMLText(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("HTMLText failed: %v", err)
	}

	for _, unwanted := range []string{"alert", "p{}", "Policy"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("Expected %q to be skipped, got %q", unwanted, text)
		}
	}
	if !strings.Contains(text, "Collision coverage applies.") {
		t.Errorf("Expected collapsed whitespace, got %q", text)
	}
	if !strings.HasPrefix(text, "Part D\n\n") {
		t.Errorf("Expected heading to end a paragraph, got %q", text)
	}
	if !strings.Contains(text, "Towing\n\nRental") {
		t.Errorf("Expected list items as paragraphs, got %q", text)
	}
}

func TestSplitText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		maxSize int
		want    []string
	}{
		{"empty", "  \n\n ", 100, nil},
		{"packs paragraphs", "aaa\n\nbbb\n\nccc", 8, []string{"aaa\n\nbbb", "ccc"}},
		{"splits sentences", "One two. Three four. Five.", 12, []string{"One two.", "Three four.", "Five."}},
		{"splits words", "alpha beta gamma", 11, []string{"alpha beta", "gamma"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitText(tt.text, tt.maxSize)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitText() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("piece %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitText_DefaultSize(t *testing.T) {
	text := strings.Repeat("word ", 1000)
	for _, piece := range SplitText(text, 0) {
		if len(piece) > DefaultChunkSize {
			t.Errorf("piece exceeds default size: %d", len(piece))
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "corpus.yaml", `
defaults:
  kind: declarations
documents:
  - path: ./pages/p55.md
    metadata:
      policy_number: P55
`)
	writeFile(t, dir, "pages/p55.md", "Declarations page for P55.\n\nCollision deductible $500.")
	writeFile(t, dir, "pages/p77.html", "<p>Declarations page for P77.</p>")
	writeFile(t, dir, "notes.pdf", "binary")
	writeFile(t, dir, ".git/ignored.txt", "ignored")
	writeFile(t, dir, "empty.txt", "   ")

	docs, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents, got %d: %+v", len(docs), docs)
	}
	if docs[0].Path != "pages/p55.md" || docs[1].Path != "pages/p77.html" {
		t.Errorf("Unexpected order: %s, %s", docs[0].Path, docs[1].Path)
	}
	if docs[0].Metadata["policy_number"] != "P55" || docs[0].Metadata["kind"] != "declarations" {
		t.Errorf("Unexpected metadata: %v", docs[0].Metadata)
	}
	if _, ok := docs[1].Metadata["policy_number"]; ok {
		t.Errorf("Expected no policy number for p77, got %v", docs[1].Metadata)
	}
	if docs[1].Text != "Declarations page for P77." {
		t.Errorf("Unexpected html text %q", docs[1].Text)
	}
}

func TestLoad_BadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "corpus.yaml", "documents:\n  - metadata: {a: b}\n")

	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "has no path") {
		t.Fatalf("Expected manifest error, got %v", err)
	}
}

func TestLoad_NotDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "file.txt", "x")
	if _, err := Load(filepath.Join(dir, "file.txt")); err == nil {
		t.Fatal("Expected error for a file path")
	}
}

func TestChunkDocuments(t *testing.T) {
	docs := []Document{{Path: "a.md", Text: "first\n\nsecond", Metadata: map[string]string{"policy_number": "P1"}}}

	chunks := ChunkDocuments(docs, 6)
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].ID != "a.md#1" || chunks[1].Text != "second" {
		t.Errorf("Unexpected chunk %+v", chunks[1])
	}
	if chunks[1].Metadata["policy_number"] != "P1" || chunks[1].Metadata["source"] != "a.md" || chunks[1].Metadata["chunk"] != "1" {
		t.Errorf("Unexpected metadata %v", chunks[1].Metadata)
	}

	chunks[0].Metadata["policy_number"] = "changed"
	if docs[0].Metadata["policy_number"] != "P1" {
		t.Error("chunk metadata must not alias document metadata")
	}
}
