// dump-annotations prints a listing of class files: structure, every
// annotation with its anchor, and optionally the disassembled code.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/tliron/commonlog"

	"github.com/markro49/annotation-tools/classfile"
	"github.com/markro49/annotation-tools/scene"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	withCode := flag.Bool("code", false, "Disassemble method bodies")
	asScene := flag.Bool("scene", false, "Treat inputs as scene files (.yaml or .cbor) and print them as YAML")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dump-annotations [options] file...\n\n")
		fmt.Fprintf(os.Stderr, "Prints class files with their annotations, or scene files as YAML.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  dump-annotations Widget.class            # Structure and annotations\n")
		fmt.Fprintf(os.Stderr, "  dump-annotations -code Widget.class      # Plus disassembly\n")
		fmt.Fprintf(os.Stderr, "  dump-annotations -scene nullness.cbor    # Wire scene as YAML\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	commonlog.Configure(0, nil)

	for _, path := range flag.Args() {
		if err := dump(path, *withCode, *asScene); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			os.Exit(1)
		}
	}
}

func dump(path string, withCode, asScene bool) error {
	if asScene {
		return dumpScene(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	r, err := classfile.NewReader(data)
	if err != nil {
		return err
	}
	listing, err := classfile.Dump(r, withCode)
	if err != nil {
		return err
	}
	fmt.Print(listing)
	return nil
}

func dumpScene(path string) error {
	sc, err := scene.LoadWireFile(path)
	if err != nil {
		// fall back to the text format
		sc, err = scene.LoadFile(path)
		if err != nil {
			return err
		}
	}
	text, err := sc.Marshal()
	if err != nil {
		return err
	}
	os.Stdout.Write(text)
	return nil
}
