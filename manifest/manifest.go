// Package manifest handles annotations.toml job configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents an annotations.toml job configuration.
type Manifest struct {
	Job    Job    `toml:"job"`
	Scenes Scenes `toml:"scenes"`
	Output Output `toml:"output"`
	Report Report `toml:"report"`

	// Dir is the directory containing the annotations.toml file (set at load time).
	Dir string `toml:"-"`
}

// Job names the work unit and lists its class file inputs.
type Job struct {
	Name      string   `toml:"name"`
	Classes   []string `toml:"classes"` // .class files or directories, scanned recursively
	Overwrite bool     `toml:"overwrite"`
}

// Scenes configures the annotation sources.
type Scenes struct {
	Files []string `toml:"files"` // .yaml or .cbor scene files, applied in order
	Cache bool     `toml:"cache"` // keep .cbor caches next to .yaml sources
}

// Output configures where rewritten class files go.
type Output struct {
	Dir string `toml:"dir"`
}

// Report configures the merge report database.
type Report struct {
	Database string `toml:"database"`
}

// Load parses an annotations.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "annotations.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Output.Dir == "" {
		m.Output.Dir = "annotated"
	}
	if m.Report.Database == "" {
		m.Report.Database = filepath.Join(".annotations", "report.db")
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find an annotations.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "annotations.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// ScenePaths returns absolute paths for the configured scene files.
func (m *Manifest) ScenePaths() []string {
	return m.abs(m.Scenes.Files)
}

// ClassPaths returns absolute paths for the configured class inputs.
func (m *Manifest) ClassPaths() []string {
	return m.abs(m.Job.Classes)
}

// OutputDir returns the absolute output directory.
func (m *Manifest) OutputDir() string {
	return m.join(m.Output.Dir)
}

// ReportPath returns the absolute report database path.
func (m *Manifest) ReportPath() string {
	return m.join(m.Report.Database)
}

func (m *Manifest) abs(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = m.join(p)
	}
	return out
}

func (m *Manifest) join(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
