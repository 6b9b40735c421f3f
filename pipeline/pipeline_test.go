package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/markro49/annotation-tools/classfile"
	"github.com/markro49/annotation-tools/manifest"
	"github.com/markro49/annotation-tools/report"
	"github.com/markro49/annotation-tools/scene"
)

const sceneYAML = `
classes:
  demo.Widget:
    annotations:
      - name: demo.Entity
        visible: true
    fields:
      count:
        annotations:
          - name: demo.Counted
            visible: true
`

func writeWidgetClass(t *testing.T, path string) {
	t.Helper()
	b := classfile.NewBuilder("demo/Widget")
	b.AddField(0x0002, "count", "I")
	m := b.AddMethod(0x0001, "run", "()V")
	m.Insn(classfile.OpReturn)
	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func writeJob(t *testing.T, dir, extra string) *manifest.Manifest {
	t.Helper()
	job := `
[job]
name = "test"
classes = ["classes"]
` + extra + `
[scenes]
files = ["widget.yaml"]

[output]
dir = "out"

[report]
database = "report.db"
`
	if err := os.WriteFile(filepath.Join(dir, "annotations.toml"), []byte(job), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "widget.yaml"), []byte(sceneYAML), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := manifest.Load(dir)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	return m
}

func TestRunMergesAndReports(t *testing.T) {
	dir := t.TempDir()
	writeWidgetClass(t, filepath.Join(dir, "classes", "demo", "Widget.class"))
	man := writeJob(t, dir, "")

	r, err := New(man, nil)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	sum, err := r.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Classes != 1 {
		t.Errorf("classes = %d, want 1", sum.Classes)
	}
	if sum.Stats.Added != 2 {
		t.Errorf("added = %d, want 2", sum.Stats.Added)
	}

	outPath := filepath.Join(dir, "out", "demo", "Widget.class")
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("output class: %v", err)
	}
	cr, err := classfile.NewReader(data)
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	listing, err := classfile.Dump(cr, false)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	for _, want := range []string{"@Ldemo/Entity;", "@Ldemo/Counted;"} {
		if !strings.Contains(listing, want) {
			t.Errorf("output missing %s\n%s", want, listing)
		}
	}

	store, err := report.Open(man.ReportPath())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	defer store.Close()
	rows, err := store.Classes(sum.RunID)
	if err != nil {
		t.Fatalf("report rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("report rows = %d, want 1", len(rows))
	}
	if rows[0].Class != filepath.Join("demo", "Widget") || rows[0].Added != 2 {
		t.Errorf("row = %+v", rows[0])
	}
}

func TestRunFailsOnMissingInputs(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "classes"), 0755); err != nil {
		t.Fatal(err)
	}
	man := writeJob(t, dir, "")

	r, err := New(man, nil)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	if _, err := r.Run(); err == nil {
		t.Error("expected error for empty class inputs")
	}
}

func TestSceneLoaderCacheAside(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "widget.yaml")
	if err := os.WriteFile(yamlPath, []byte(sceneYAML), 0644); err != nil {
		t.Fatal(err)
	}

	l, err := NewSceneLoader(true, nil)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	sc, err := l.Load(yamlPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Class("demo.Widget") == nil {
		t.Fatal("scene missing demo.Widget")
	}

	twin := filepath.Join(dir, "widget.cbor")
	if _, err := os.Stat(twin); err != nil {
		t.Fatalf("cache twin not written: %v", err)
	}
	fromTwin, err := scene.LoadWireFile(twin)
	if err != nil {
		t.Fatalf("cache twin unreadable: %v", err)
	}
	if fromTwin.Class("demo.Widget") == nil {
		t.Error("cache twin missing demo.Widget")
	}

	// a second loader must be served from the twin even if the YAML breaks
	if err := os.WriteFile(yamlPath, []byte("classes: ["), 0644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	future := info.ModTime().Add(time.Second)
	if err := os.Chtimes(twin, future, future); err != nil {
		t.Fatal(err)
	}
	l2, err := NewSceneLoader(true, nil)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	sc2, err := l2.Load(yamlPath)
	if err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if sc2.Class("demo.Widget") == nil {
		t.Error("cached scene missing demo.Widget")
	}
}

func TestLoadCombinedLeavesCachedScenesUntouched(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	one := `
classes:
  demo.X:
    annotations:
      - name: demo.One
        visible: true
`
	two := `
classes:
  demo.X:
    annotations:
      - name: demo.Two
        visible: true
`
	if err := os.WriteFile(a, []byte(one), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte(two), 0644); err != nil {
		t.Fatal(err)
	}

	l, err := NewSceneLoader(false, nil)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	for i := 0; i < 2; i++ {
		combined, err := l.loadCombined([]string{a, b})
		if err != nil {
			t.Fatalf("combined load %d: %v", i, err)
		}
		if n := len(combined.Class("demo.X").Annotations); n != 2 {
			t.Errorf("combined load %d has %d annotations, want 2", i, n)
		}
	}
	cached, err := l.Load(a)
	if err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if n := len(cached.Class("demo.X").Annotations); n != 1 {
		t.Errorf("cached scene has %d annotations, want 1", n)
	}
}

func TestOverlayScenePrefersEarlierMembers(t *testing.T) {
	dst := &scene.Scene{Classes: map[string]*scene.ClassSite{
		"demo.A": {
			Annotations: []scene.Annotation{{Name: "demo.One", Visible: true}},
			Fields: map[string]*scene.MemberSite{
				"x": {Annotations: []scene.Annotation{{Name: "demo.First", Visible: true}}},
			},
		},
	}}
	src := &scene.Scene{Classes: map[string]*scene.ClassSite{
		"demo.A": {
			Annotations: []scene.Annotation{{Name: "demo.Two", Visible: true}},
			Fields: map[string]*scene.MemberSite{
				"x": {Annotations: []scene.Annotation{{Name: "demo.Second", Visible: true}}},
				"y": {Annotations: []scene.Annotation{{Name: "demo.Extra", Visible: true}}},
			},
		},
		"demo.B": {},
	}}

	overlayScene(dst, src)

	a := dst.Class("demo.A")
	if len(a.Annotations) != 2 {
		t.Errorf("class annotations = %d, want 2", len(a.Annotations))
	}
	if got := a.Field("x").Annotations[0].Name; got != "demo.First" {
		t.Errorf("field x kept %q, want demo.First", got)
	}
	if a.Field("y") == nil {
		t.Error("field y not adopted")
	}
	if dst.Class("demo.B") == nil {
		t.Error("class demo.B not adopted")
	}
}
