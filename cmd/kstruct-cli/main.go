// Command kstruct-cli parses a binary file against a Kaitai Struct (.ksy)
// schema from the command line and prints the result as JSON, or
// evaluates a single expression against an already-parsed file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-kaitai/kstruct/pkg/kaitai"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "parse":
		runParse(os.Args[2:])
	case "eval":
		runEval(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  kstruct-cli parse -schema FILE.ksy -data FILE.bin [-root TYPE] [-strict]")
	fmt.Fprintln(os.Stderr, "  kstruct-cli eval -schema FILE.ksy -data FILE.bin -expr EXPR [-root TYPE]")
}

func runParse(args []string) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	schemaPath := fs.String("schema", "", ".ksy schema file (required)")
	dataPath := fs.String("data", "", "binary file to parse (required)")
	root := fs.String("root", "", "root type to parse from (defaults to the schema's own root)")
	strict := fs.Bool("strict", false, "reject unresolved type/enum references at compile time")
	fs.Parse(args)

	schemaSrc, data := mustReadInputs(*schemaPath, *dataPath)

	var opts []kaitai.Option
	if *strict {
		opts = append(opts, kaitai.WithStrict())
	}
	if *root != "" {
		opts = append(opts, kaitai.WithRootType(*root))
	}

	obj, err := kaitai.Parse(schemaSrc, data, opts...)
	if err != nil {
		log.Fatalf("parse: %v", err)
	}

	out, err := json.MarshalIndent(obj.ToMap(), "", "  ")
	if err != nil {
		log.Fatalf("marshaling result: %v", err)
	}
	fmt.Println(string(out))
}

func runEval(args []string) {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	schemaPath := fs.String("schema", "", ".ksy schema file (required)")
	dataPath := fs.String("data", "", "binary file to parse (required)")
	expr := fs.String("expr", "", "expression to evaluate against the parsed tree (required)")
	root := fs.String("root", "", "root type to parse from (defaults to the schema's own root)")
	fs.Parse(args)

	if *expr == "" {
		log.Fatal("eval: -expr is required")
	}

	schemaSrc, data := mustReadInputs(*schemaPath, *dataPath)

	var opts []kaitai.Option
	if *root != "" {
		opts = append(opts, kaitai.WithRootType(*root))
	}

	obj, err := kaitai.Parse(schemaSrc, data, opts...)
	if err != nil {
		log.Fatalf("parse: %v", err)
	}

	result, err := kaitai.EvaluateAgainst(obj, *expr)
	if err != nil {
		log.Fatalf("eval: %v", err)
	}
	fmt.Printf("%v\n", result.Raw)
}

func mustReadInputs(schemaPath, dataPath string) ([]byte, []byte) {
	if schemaPath == "" || dataPath == "" {
		log.Fatal("-schema and -data are both required")
	}
	schemaSrc, err := os.ReadFile(schemaPath)
	if err != nil {
		log.Fatalf("reading schema: %v", err)
	}
	data, err := os.ReadFile(dataPath)
	if err != nil {
		log.Fatalf("reading data: %v", err)
	}
	return schemaSrc, data
}
