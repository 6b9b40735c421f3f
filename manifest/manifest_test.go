package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with an annotations.toml
	dir := t.TempDir()
	tomlContent := `
[job]
name = "nullness"
classes = ["build/classes", "extra/Widget.class"]
overwrite = true

[scenes]
files = ["scenes/nullness.yaml", "scenes/index.yaml"]
cache = true

[output]
dir = "out"

[report]
database = "report.db"
`
	if err := os.WriteFile(filepath.Join(dir, "annotations.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Job.Name != "nullness" {
		t.Errorf("job name = %q, want nullness", m.Job.Name)
	}
	if !m.Job.Overwrite {
		t.Error("overwrite flag not set")
	}
	if len(m.Job.Classes) != 2 {
		t.Errorf("class inputs count = %d, want 2", len(m.Job.Classes))
	}
	if len(m.Scenes.Files) != 2 {
		t.Errorf("scene files count = %d, want 2", len(m.Scenes.Files))
	}
	if !m.Scenes.Cache {
		t.Error("scene cache flag not set")
	}
	if m.Dir == "" || !filepath.IsAbs(m.Dir) {
		t.Errorf("manifest dir = %q, want absolute", m.Dir)
	}

	wantOut := filepath.Join(m.Dir, "out")
	if got := m.OutputDir(); got != wantOut {
		t.Errorf("output dir = %q, want %q", got, wantOut)
	}
	wantDB := filepath.Join(m.Dir, "report.db")
	if got := m.ReportPath(); got != wantDB {
		t.Errorf("report path = %q, want %q", got, wantDB)
	}
	wantScene := filepath.Join(m.Dir, "scenes", "nullness.yaml")
	if got := m.ScenePaths()[0]; got != wantScene {
		t.Errorf("scene path = %q, want %q", got, wantScene)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[job]
name = "minimal"
classes = ["app.class"]
`
	if err := os.WriteFile(filepath.Join(dir, "annotations.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Output.Dir != "annotated" {
		t.Errorf("default output dir = %q, want annotated", m.Output.Dir)
	}
	if m.Report.Database != filepath.Join(".annotations", "report.db") {
		t.Errorf("default report database = %q", m.Report.Database)
	}
	if m.Job.Overwrite {
		t.Error("overwrite defaulted to true")
	}
}

func TestLoadManifestMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing annotations.toml")
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	tomlContent := `
[job]
name = "walk"
classes = ["app.class"]
`
	if err := os.WriteFile(filepath.Join(root, "annotations.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("manifest not found from nested directory")
	}
	if m.Job.Name != "walk" {
		t.Errorf("job name = %q, want walk", m.Job.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Errorf("unexpected manifest: %+v", m)
	}
}
