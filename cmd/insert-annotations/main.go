// insert-annotations rewrites compiled class files with the annotations of
// a scene, as configured by an annotations.toml manifest.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/tliron/commonlog"

	"github.com/markro49/annotation-tools/manifest"
	"github.com/markro49/annotation-tools/pipeline"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	manifestDir := flag.String("manifest", "", "Directory containing annotations.toml (default: walk up from the working directory)")
	overwrite := flag.Bool("overwrite", false, "Let scene annotations replace existing annotations of the same type")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: insert-annotations [options]\n\n")
		fmt.Fprintf(os.Stderr, "Merges scene annotations into the class files named by annotations.toml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  insert-annotations                      # Job from the nearest annotations.toml\n")
		fmt.Fprintf(os.Stderr, "  insert-annotations -manifest ./jobs/nn  # Job from a specific directory\n")
		fmt.Fprintf(os.Stderr, "  insert-annotations -overwrite -v        # Scene wins conflicts, verbose\n")
	}
	flag.Parse()

	_ = godotenv.Load()
	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)
	log := commonlog.GetLogger("insert-annotations")

	dir := *manifestDir
	if dir == "" {
		dir = os.Getenv("ANNOTATIONS_MANIFEST")
	}

	var man *manifest.Manifest
	var err error
	if dir != "" {
		man, err = manifest.Load(dir)
	} else {
		man, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	if man == nil {
		fmt.Fprintln(os.Stderr, "No annotations.toml found; run inside a job directory or pass -manifest")
		os.Exit(1)
	}
	if *overwrite {
		man.Job.Overwrite = true
	}

	r, err := pipeline.New(man, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	sum, err := r.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("run %d: %d classes, %d annotations added (%d skipped, %d dropped)\n",
		sum.RunID, sum.Classes, sum.Stats.Added, sum.Stats.Skipped, sum.Stats.Dropped)
	fmt.Printf("report: %s\n", man.ReportPath())
}
