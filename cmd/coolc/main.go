// cmd/coolc/main.go
package main

import (
	"fmt"
	"log"
	"os"

	pkgerrors "github.com/pkg/errors"

	"coolc/internal/cfg"
	"coolc/internal/dataflow"
	"coolc/internal/lexer"
	"coolc/internal/parser"
	"coolc/internal/semant"
	"coolc/internal/ssa"
	"coolc/internal/tac"
)

const VERSION = "1.0.0"

// Command aliases mapping
var commandAliases = map[string]string{
	"c": "check",
	"t": "tac",
	"s": "ssa",
	"o": "opt",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	switch cmd {
	case "check":
		requireFile(args)
		runCheck(args[1])
	case "tac":
		requireFile(args)
		runTAC(args[1], false)
	case "ssa":
		requireFile(args)
		runTAC(args[1], true)
	case "opt":
		requireFile(args)
		runOpt(args[1])
	case "version":
		fmt.Printf("coolc %s\n", VERSION)
	case "help":
		showUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", cmd)
		showUsage()
		os.Exit(1)
	}
}

func requireFile(args []string) {
	if len(args) < 2 {
		log.Fatal("expected a COOL source file argument")
	}
}

func showUsage() {
	fmt.Println(`coolc - COOL compiler core

Usage:
  coolc <command> [file.cl]

Commands:
  check (c)    Lex, parse and analyze; report diagnostics
  tac   (t)    Print the three-address code for each method
  ssa   (s)    Print each method in SSA form
  opt   (o)    Run constant propagation and DCE; print statistics
  version      Print version
  help         Show this help`)
}

// compile runs the front end through translation and reports every
// diagnostic collected along the way.
func compile(path string) (*tac.Program, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "cannot read %s", path)
	}

	tokens, lexErrs := lexer.Lex(string(source))
	report(path, lexErrs)

	p := parser.NewParserWithSource(tokens, string(source))
	prog := p.Parse()
	report(path, p.Errors)
	if len(lexErrs) > 0 || len(p.Errors) > 0 {
		return nil, fmt.Errorf("%d errors before analysis", len(lexErrs)+len(p.Errors))
	}

	analyzer := semant.NewAnalyzer()
	analyzed, err := analyzer.Analyze(prog)
	report(path, analyzer.Errors)
	if err != nil {
		return nil, err
	}

	return tac.Translate(analyzed, analyzer.Table())
}

func report(path string, errs []error) {
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, e)
	}
}

func runCheck(path string) {
	if _, err := compile(path); err != nil {
		log.Fatalf("check failed: %v", err)
	}
	fmt.Println("ok")
}

func runTAC(path string, toSSA bool) {
	prog, err := compile(path)
	if err != nil {
		log.Fatalf("compilation failed: %v", err)
	}
	for _, m := range prog.Methods {
		if toSSA {
			m = ssa.Convert(m)
		}
		fmt.Println(m)
	}
}

func runOpt(path string) {
	prog, err := compile(path)
	if err != nil {
		log.Fatalf("compilation failed: %v", err)
	}
	for _, m := range prog.Methods {
		g := cfg.Build(m)
		_, folded := dataflow.RunConstantPropagation(g, true)
		removed := dataflow.RunDeadCodeElimination(g)
		fmt.Printf("%s: %d folded, %d removed\n", m.Name(), folded, removed)
	}
}
