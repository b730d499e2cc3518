package corpus

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the optional per-corpus metadata file
const ManifestFile = "corpus.yaml"

// Manifest attaches metadata to corpus files. Defaults apply to every
// document; per-document entries override them.
//
//	defaults:
//	  kind: declarations
//	documents:
//	  - path: p55.md
//	    metadata:
//	      policy_number: P55
type Manifest struct {
	Defaults  map[string]string `yaml:"defaults"`
	Documents []ManifestEntry   `yaml:"documents"`
}

// ManifestEntry is the metadata for one file, keyed by its slash path relative to the corpus root
type ManifestEntry struct {
	Path     string            `yaml:"path"`
	Metadata map[string]string `yaml:"metadata"`
}

// LoadManifest reads corpus.yaml from dir. A missing file yields an empty manifest.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}

	for i, entry := range m.Documents {
		if entry.Path == "" {
			return nil, fmt.Errorf("parse %s: document %d has no path", ManifestFile, i)
		}
		m.Documents[i].Path = filepath.ToSlash(filepath.Clean(entry.Path))
	}
	return &m, nil
}

// MetadataFor merges the defaults with the entry for path
func (m *Manifest) MetadataFor(path string) map[string]string {
	md := make(map[string]string, len(m.Defaults))
	for k, v := range m.Defaults {
		md[k] = v
	}
	for _, entry := range m.Documents {
		if entry.Path == path {
			for k, v := range entry.Metadata {
				md[k] = v
			}
		}
	}
	return md
}
