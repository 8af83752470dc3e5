package parser

import (
	"testing"

	"sentra/internal/ast"
	"sentra/internal/diag"
	"sentra/internal/lexer"
	"sentra/internal/strpool"
)

func parseSource(t *testing.T, src string, mode lexer.SyntaxMode) (*ast.Arena, *diag.Sink) {
	t.Helper()
	pool := strpool.New()
	scan := lexer.New([]byte(src), 0, mode, pool)
	arena := ast.NewArena(pool)
	sink := diag.NewSink()
	p := New(scan, arena, sink, mode)
	p.Parse()
	return arena, sink
}

func TestSimpleAddition(t *testing.T) {
	arena, sink := parseSource(t, "<?php 1 + 2", lexer.PHP)
	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %v", sink.Diagnostics())
	}
	root := arena.Get(arena.Root())
	if len(root.Children) != 1 {
		t.Fatalf("expected 1 top-level statement, got %d", len(root.Children))
	}
	stmt := arena.Get(root.Children[0])
	if stmt.Tag != ast.TagExprStmt {
		t.Fatalf("expected TagExprStmt, got %v", stmt.Tag)
	}
	bin := arena.Get(stmt.A)
	if bin.Tag != ast.TagBinary || bin.Operator != "+" {
		t.Fatalf("expected binary '+', got %+v", bin)
	}
}

func TestConcatOperatorPHP(t *testing.T) {
	arena, sink := parseSource(t, `<?php "hello" . " world"`, lexer.PHP)
	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %v", sink.Diagnostics())
	}
	root := arena.Get(arena.Root())
	stmt := arena.Get(root.Children[0])
	bin := arena.Get(stmt.A)
	if bin.Tag != ast.TagBinary || bin.Operator != "." {
		t.Fatalf("expected concat '.', got %+v", bin)
	}
}

func TestGoStylePlusOnStringsRewritesToConcat(t *testing.T) {
	arena, _ := parseSource(t, `<?php "a" + "b"`, lexer.GoStyle)
	root := arena.Get(arena.Root())
	stmt := arena.Get(root.Children[0])
	bin := arena.Get(stmt.A)
	if bin.Operator != "." {
		t.Fatalf("expected go-style '+' over strings to rewrite to concat, got %q", bin.Operator)
	}
}

func TestGoStylePlusOnNumbersStaysArithmetic(t *testing.T) {
	arena, _ := parseSource(t, `<?php x = 5; y = 3; x + y`, lexer.GoStyle)
	root := arena.Get(arena.Root())
	last := arena.Get(root.Children[len(root.Children)-1])
	bin := arena.Get(last.A)
	if bin.Operator != "+" {
		t.Fatalf("expected '+' to stay arithmetic when operand types are not syntactically known, got %q", bin.Operator)
	}
}

func TestModeEquivalenceStructural(t *testing.T) {
	phpArena, phpSink := parseSource(t, `<?php $x = 5; $y = 3; $x + $y`, lexer.PHP)
	goArena, goSink := parseSource(t, `<?php x = 5; y = 3; x + y`, lexer.GoStyle)
	if phpSink.HasErrors() || goSink.HasErrors() {
		t.Fatalf("unexpected errors: php=%v go=%v", phpSink.Diagnostics(), goSink.Diagnostics())
	}
	phpRoot := phpArena.Get(phpArena.Root())
	goRoot := goArena.Get(goArena.Root())
	if len(phpRoot.Children) != len(goRoot.Children) {
		t.Fatalf("statement count differs: php=%d go=%d", len(phpRoot.Children), len(goRoot.Children))
	}
	for i := range phpRoot.Children {
		pn := phpArena.Get(phpRoot.Children[i])
		gn := goArena.Get(goRoot.Children[i])
		if pn.Tag != gn.Tag {
			t.Fatalf("statement %d tag differs: php=%v go=%v", i, pn.Tag, gn.Tag)
		}
	}
}

func TestMemberAccessPHPUsesArrow(t *testing.T) {
	arena, _ := parseSource(t, `<?php $obj->name`, lexer.PHP)
	root := arena.Get(arena.Root())
	stmt := arena.Get(root.Children[0])
	access := arena.Get(stmt.A)
	if access.Tag != ast.TagPropertyAccess {
		t.Fatalf("expected TagPropertyAccess, got %v", access.Tag)
	}
}

func TestMemberAccessGoStyleUsesDot(t *testing.T) {
	arena, _ := parseSource(t, `<?php obj.name`, lexer.GoStyle)
	root := arena.Get(arena.Root())
	stmt := arena.Get(root.Children[0])
	access := arena.Get(stmt.A)
	if access.Tag != ast.TagPropertyAccess {
		t.Fatalf("expected TagPropertyAccess via '.', got %v", access.Tag)
	}
}

func TestComparisonsDoNotChain(t *testing.T) {
	// "1 < 2 < 3" should parse as (1 < 2) followed by a parse error /
	// recovery point at the second '<', not a chained comparison.
	arena, _ := parseSource(t, `<?php 1 < 2 < 3`, lexer.PHP)
	root := arena.Get(arena.Root())
	stmt := arena.Get(root.Children[0])
	bin := arena.Get(stmt.A)
	if bin.Tag != ast.TagBinary || bin.Operator != "<" || arena.Get(bin.A).Tag != ast.TagIntLit {
		t.Fatalf("expected a single '<' comparison, got %+v", bin)
	}
}

func TestIfElseIfElse(t *testing.T) {
	arena, sink := parseSource(t, `<?php if ($a) { 1; } elseif ($b) { 2; } else { 3; }`, lexer.PHP)
	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %v", sink.Diagnostics())
	}
	root := arena.Get(arena.Root())
	ifNode := arena.Get(root.Children[0])
	if ifNode.Tag != ast.TagIfStmt {
		t.Fatalf("expected TagIfStmt, got %v", ifNode.Tag)
	}
	if ifNode.C == ast.NoNode {
		t.Fatalf("expected an else branch")
	}
}

func TestFunctionDeclAndReturn(t *testing.T) {
	src := `<?php function fib($n){ if ($n <= 1) return $n; return fib($n-1) + fib($n-2); }`
	arena, sink := parseSource(t, src, lexer.PHP)
	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %v", sink.Diagnostics())
	}
	root := arena.Get(arena.Root())
	fn := arena.Get(root.Children[0])
	if fn.Tag != ast.TagFunctionDecl {
		t.Fatalf("expected TagFunctionDecl, got %v", fn.Tag)
	}
}

func TestErrorRecoveryProducesParseErrorAndContinues(t *testing.T) {
	src := `<?php 1 + ; function f(){ return 1; }`
	arena, sink := parseSource(t, src, lexer.PHP)
	if !sink.HasErrors() {
		t.Fatalf("expected a diagnostic for the malformed expression")
	}
	root := arena.Get(arena.Root())
	var sawFn bool
	for _, c := range root.Children {
		if arena.Get(c).Tag == ast.TagFunctionDecl {
			sawFn = true
		}
	}
	if !sawFn {
		t.Fatalf("expected parser to recover and still parse the function declaration")
	}
}

func TestArrayLiteralAndAppend(t *testing.T) {
	src := `<?php $a = [1,2,3]; $a[] = 4;`
	arena, sink := parseSource(t, src, lexer.PHP)
	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %v", sink.Diagnostics())
	}
	root := arena.Get(arena.Root())
	assign := arena.Get(arena.Get(root.Children[0]).A)
	arr := arena.Get(assign.B)
	if arr.Tag != ast.TagArrayLit || len(arr.Children) != 3 {
		t.Fatalf("expected 3-element array literal, got %+v", arr)
	}
}

func TestTryCatch(t *testing.T) {
	src := `<?php try { throw new Exception("e"); } catch (Exception $ex) { echo $ex; }`
	arena, sink := parseSource(t, src, lexer.PHP)
	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %v", sink.Diagnostics())
	}
	root := arena.Get(arena.Root())
	tryNode := arena.Get(root.Children[0])
	if tryNode.Tag != ast.TagTryStmt {
		t.Fatalf("expected TagTryStmt, got %v", tryNode.Tag)
	}
	if len(tryNode.Children) != 1 {
		t.Fatalf("expected exactly one catch clause, got %d", len(tryNode.Children))
	}
}
