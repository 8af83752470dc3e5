package ast

import (
	"testing"

	"sentra/internal/strpool"
)

func TestNewArenaRootIsZero(t *testing.T) {
	a := NewArena(strpool.New())
	if a.Root() != 0 {
		t.Fatalf("Root() = %d, want 0", a.Root())
	}
	if a.Get(a.Root()).Tag != TagRoot {
		t.Fatalf("root node tag = %v, want TagRoot", a.Get(a.Root()).Tag)
	}
}

func TestNewAppendsAndReturnsId(t *testing.T) {
	a := NewArena(strpool.New())
	id := a.New(Node{Tag: TagIntLit, IntValue: 42, A: NoNode, B: NoNode, C: NoNode, D: NoNode})
	if !a.Valid(id) {
		t.Fatalf("expected valid id")
	}
	if a.Get(id).IntValue != 42 {
		t.Fatalf("IntValue = %d, want 42", a.Get(id).IntValue)
	}
}

func TestAddChildAppendsToChildrenSlice(t *testing.T) {
	a := NewArena(strpool.New())
	lit1 := a.New(Node{Tag: TagIntLit, IntValue: 1, A: NoNode, B: NoNode, C: NoNode, D: NoNode})
	lit2 := a.New(Node{Tag: TagIntLit, IntValue: 2, A: NoNode, B: NoNode, C: NoNode, D: NoNode})
	block := a.New(Node{Tag: TagBlockStmt, A: NoNode, B: NoNode, C: NoNode, D: NoNode})
	a.AddChild(block, lit1)
	a.AddChild(block, lit2)
	children := a.Get(block).Children
	if len(children) != 2 || children[0] != lit1 || children[1] != lit2 {
		t.Fatalf("unexpected children %v", children)
	}
}

func TestNoNodeIsInvalid(t *testing.T) {
	a := NewArena(strpool.New())
	if a.Valid(NoNode) {
		t.Fatalf("NoNode should never be valid")
	}
}

func TestInternedNamesShareId(t *testing.T) {
	pool := strpool.New()
	a := NewArena(pool)
	id := a.Pool.Intern("$x")
	n := a.New(Node{Tag: TagVariable, NameID: id, A: NoNode, B: NoNode, C: NoNode, D: NoNode})
	if a.Get(n).NameID != pool.Intern("$x") {
		t.Fatalf("expected interned name id to round-trip")
	}
}
