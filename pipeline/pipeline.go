// Package pipeline runs annotation merge jobs end to end: scene loading,
// per-class merging, output writing and report recording.
package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/markro49/annotation-tools/manifest"
	"github.com/markro49/annotation-tools/merge"
	"github.com/markro49/annotation-tools/report"
)

// Summary is the outcome of one Run.
type Summary struct {
	RunID   int64
	Classes int
	Stats   merge.Stats
}

// Runner executes the job described by a manifest.
type Runner struct {
	man    *manifest.Manifest
	loader *SceneLoader
	log    commonlog.Logger
}

// New builds a runner for the manifest.
func New(man *manifest.Manifest, log commonlog.Logger) (*Runner, error) {
	if log == nil {
		log = commonlog.GetLogger("pipeline")
	}
	loader, err := NewSceneLoader(man.Scenes.Cache, log)
	if err != nil {
		return nil, err
	}
	return &Runner{man: man, loader: loader, log: log}, nil
}

// classInput is one class file to rewrite. rel is its path under the
// output directory.
type classInput struct {
	path string
	rel  string
}

// Run merges every configured class file and records the report.
// A malformed class file aborts the run.
func (r *Runner) Run() (*Summary, error) {
	sc, err := r.loader.loadCombined(r.man.ScenePaths())
	if err != nil {
		return nil, err
	}
	inputs, err := collectClasses(r.man.ClassPaths())
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no class files under %v", r.man.Job.Classes)
	}

	store, err := report.Open(r.man.ReportPath())
	if err != nil {
		return nil, err
	}
	defer store.Close()

	runID, err := store.BeginRun(filepath.Join(r.man.Dir, "annotations.toml"), r.man.Job.Overwrite)
	if err != nil {
		return nil, err
	}

	sum := &Summary{RunID: runID}
	opts := merge.Options{Overwrite: r.man.Job.Overwrite, Log: r.log}
	for _, in := range inputs {
		data, err := os.ReadFile(in.path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", in.path, err)
		}
		out, stats, err := merge.Merge(data, sc, opts)
		if err != nil {
			return nil, fmt.Errorf("merging %s: %w", in.path, err)
		}

		outPath := filepath.Join(r.man.OutputDir(), in.rel)
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", filepath.Dir(outPath), err)
		}
		if err := os.WriteFile(outPath, out, 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", outPath, err)
		}

		if err := store.RecordClass(runID, report.ClassRow{
			Class:   strings.TrimSuffix(in.rel, ".class"),
			Added:   stats.Added,
			Skipped: stats.Skipped,
			Dropped: stats.Dropped,
			Output:  outPath,
		}); err != nil {
			return nil, err
		}

		r.log.Infof("%s: +%d annotations (%d skipped, %d dropped)",
			in.rel, stats.Added, stats.Skipped, stats.Dropped)
		sum.Classes++
		sum.Stats.Added += stats.Added
		sum.Stats.Skipped += stats.Skipped
		sum.Stats.Dropped += stats.Dropped
	}
	return sum, nil
}

// collectClasses expands the configured inputs: files are taken as-is
// under their base name, directories are walked for .class files and
// keep their relative layout.
func collectClasses(paths []string) ([]classInput, error) {
	var inputs []classInput
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("class input %s: %w", p, err)
		}
		if !info.IsDir() {
			inputs = append(inputs, classInput{path: p, rel: filepath.Base(p)})
			continue
		}
		root := p
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".class") {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			inputs = append(inputs, classInput{path: path, rel: rel})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", root, err)
		}
	}
	return inputs, nil
}
