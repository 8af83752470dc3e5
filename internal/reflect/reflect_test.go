package reflect

import (
	"testing"

	"sentra/internal/ast"
	"sentra/internal/diag"
	"sentra/internal/lexer"
	"sentra/internal/parser"
	"sentra/internal/strpool"
)

func build(t *testing.T, src string) (*Index, *ast.Arena, *strpool.Pool) {
	t.Helper()
	pool := strpool.New()
	scan := lexer.New([]byte(src), 0, lexer.PHP, pool)
	arena := ast.NewArena(pool)
	sink := diag.NewSink()
	p := parser.New(scan, arena, sink, lexer.PHP)
	p.Parse()
	if sink.HasErrors() {
		t.Fatalf("parse errors: %v", sink.Diagnostics())
	}
	idx := Build(arena, pool, sink)
	return idx, arena, pool
}

func TestBuildsClassWithMethodsAndProperties(t *testing.T) {
	src := `<?php class Foo { public $x = 1; function bar() { return 1; } }`
	idx, _, _ := build(t, src)
	info, ok := idx.Class("Foo")
	if !ok {
		t.Fatalf("expected class Foo to be indexed")
	}
	if !idx.ClassHasMethod("Foo", "bar") {
		t.Fatalf("expected method bar")
	}
	if _, ok := info.Properties["$x"]; !ok {
		t.Fatalf("expected property $x")
	}
}

func TestTraitMixinCopiesUnshadowedMethods(t *testing.T) {
	src := `<?php trait Greets { function hello() { return 1; } } class Foo { use Greets; }`
	idx, _, _ := build(t, src)
	if !idx.ClassHasMethod("Foo", "hello") {
		t.Fatalf("expected trait method hello to be mixed into Foo")
	}
}

func TestTraitMethodShadowedByClassIsNotOverwritten(t *testing.T) {
	src := `<?php trait Greets { function hello() { return 1; } } class Foo { use Greets; function hello() { return 2; } }`
	idx, arena, pool := build(t, src)
	info, _ := idx.Class("Foo")
	methodID := info.Methods["hello"]
	methodNode := arena.Get(methodID)
	_ = pool
	ret := arena.Get(arena.Get(methodNode.B).Children[0])
	if arena.Get(ret.A).IntValue != 2 {
		t.Fatalf("expected Foo's own hello method to remain")
	}
}

func TestDanglingParentReference(t *testing.T) {
	src := `<?php class Foo extends Bar {}`
	pool := strpool.New()
	scan := lexer.New([]byte(src), 0, lexer.PHP, pool)
	arena := ast.NewArena(pool)
	sink := diag.NewSink()
	p := parser.New(scan, arena, sink, lexer.PHP)
	p.Parse()
	Build(arena, pool, sink)
	found := false
	for _, d := range sink.Diagnostics() {
		if d.Kind == diag.KindUndefinedClass {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a dangling-reference diagnostic for extends Bar")
	}
}

func TestAncestorChain(t *testing.T) {
	src := `<?php class A {} class B extends A {} class C extends B {}`
	idx, _, _ := build(t, src)
	chain := idx.AncestorChain("C")
	want := []string{"C", "B", "A"}
	if len(chain) != len(want) {
		t.Fatalf("got %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("got %v, want %v", chain, want)
		}
	}
}
