package corpus

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Document is one source file of a corpus
type Document struct {
	Path     string // slash-separated, relative to the corpus root
	Text     string
	Metadata map[string]string
}

// Load reads every .txt, .md and .html file under dir, applying metadata
// from corpus.yaml. Documents are returned sorted by path.
func Load(dir string) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open corpus: %s is not a directory", dir)
	}

	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}

	var docs []Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		kind := fileKind(path)
		if kind == "" {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		text, err := readText(path, kind)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		if text == "" {
			return nil
		}

		docs = append(docs, Document{
			Path:     rel,
			Text:     text,
			Metadata: manifest.MetadataFor(rel),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func fileKind(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return "text"
	case ".html", ".htm":
		return "html"
	}
	return ""
}

func readText(path, kind string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if kind == "html" {
		return HTMLText(bytes.NewReader(data))
	}
	return normalizeText(string(data)), nil
}
