// cmd/sentra/main.go wires the specified core (lexer -> parser -> IR ->
// codegen -> VM) into a minimal run/check command. Spec.md §1 puts "the
// command-line driver" out of scope, so this stays a thin smoke-test
// harness rather than the teacher's full project-management CLI
// (mod/pkg/lsp/build/watch/...), which this repo does not implement.
package main

import (
	"fmt"
	"os"

	"sentra/internal/ast"
	"sentra/internal/codegen"
	"sentra/internal/diag"
	"sentra/internal/ir"
	"sentra/internal/lexer"
	"sentra/internal/parser"
	"sentra/internal/strpool"
	"sentra/internal/value"
	"sentra/internal/vm"
)

func main() {
	args := os.Args[1:]
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}

	switch args[0] {
	case "run":
		run(args[1])
	case "check":
		check(args[1])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "sentra - reference core for the spec's lexer/parser/IR/VM")
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  sentra run <file>    compile and execute a script")
	fmt.Fprintln(os.Stderr, "  sentra check <file>  parse only, report diagnostics")
}

func compile(filename string) (*ast.Arena, *diag.Sink, lexer.SyntaxMode, error) {
	source, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, lexer.PHP, fmt.Errorf("reading %s: %w", filename, err)
	}

	pool := strpool.New()
	scan := lexer.New(source, 0, lexer.PHP, pool)
	arena := ast.NewArena(pool)
	sink := diag.NewSink()

	p := parser.New(scan, arena, sink, scan.Syntax())
	p.Parse()
	return arena, sink, scan.Syntax(), nil
}

func diagMode(s lexer.SyntaxMode) diag.SyntaxMode {
	if s == lexer.GoStyle {
		return diag.GoStyle
	}
	return diag.PHP
}

func reportDiagnostics(sink *diag.Sink, syntax lexer.SyntaxMode) {
	for _, d := range sink.Diagnostics() {
		fmt.Fprintln(os.Stderr, diag.Format(d, diagMode(syntax)))
	}
}

func check(filename string) {
	_, sink, syntax, err := compile(filename)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	reportDiagnostics(sink, syntax)
	if sink.HasErrors() || sink.AbortParse() {
		os.Exit(1)
	}
	fmt.Printf("%s: syntax is valid\n", filename)
}

func run(filename string) {
	arena, sink, syntax, err := compile(filename)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	reportDiagnostics(sink, syntax)
	if sink.AbortParse() {
		os.Exit(1)
	}

	builder := ir.NewBuilder(arena, arena.Pool, sink)
	mod := builder.BuildModule()

	funcs := codegen.Lower(mod)
	machine := vm.New()
	for name, fn := range funcs {
		machine.Functions[name] = fn
	}

	mainFn, ok := machine.Functions["__main__"]
	if !ok {
		fmt.Fprintln(os.Stderr, "internal error: no top-level function emitted")
		os.Exit(1)
	}

	result, err := machine.Execute(mainFn, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runtime error: %v\n", err)
		os.Exit(1)
	}
	if !result.IsNull() {
		fmt.Println(value.ToDisplayString(result))
	}
}
