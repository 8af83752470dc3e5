// Package ast implements the syntax-independent abstract syntax tree
// (spec §3 "AST", §9 "AST nodes as a flat vector").
//
// Node *kinds* follow the teacher's internal/parser/ast.go visitor
// vocabulary (Binary, Literal, Variable, Assign, Call, If, Block, Array,
// Map, Index, ...) but the storage shape does not: spec §9 is explicit
// that nodes must live in a flat, 32-bit-indexed, append-only vector
// rather than a pointer tree, so that the optimizer and code generator
// get cache-friendly traversal and bulk-free semantics. This is the one
// place this repo departs from the teacher's literal data layout.
package ast

import (
	"sentra/internal/diag"
	"sentra/internal/strpool"
)

// NodeId indexes into an Arena's node vector. NoNode marks an absent
// child slot.
type NodeId int32

const NoNode NodeId = -1

// Tag discriminates a Node's payload. The set is closed: statement
// kinds, expression kinds, declaration kinds, and type kinds.
type Tag int

const (
	TagRoot Tag = iota

	// Statements
	TagExprStmt
	TagBlockStmt
	TagIfStmt
	TagWhileStmt
	TagForStmt
	TagForeachStmt
	TagReturnStmt
	TagBreakStmt
	TagContinueStmt
	TagEchoStmt
	TagGlobalStmt
	TagTryStmt
	TagThrowStmt
	TagGoStmt
	TagParseError

	// Expressions
	TagIntLit
	TagFloatLit
	TagStringLit
	TagInterpString
	TagBoolLit
	TagNullLit
	TagArrayLit
	TagVariable
	TagBinary
	TagUnary
	TagAssign
	TagCall
	TagIndex
	TagPropertyAccess
	TagMethodCall
	TagNewObject
	TagClone
	TagInstanceof
	TagMatchExpr
	TagMatchArm
	TagPipe

	// Declarations
	TagFunctionDecl
	TagParam
	TagClassDecl
	TagInterfaceDecl
	TagTraitDecl
	TagEnumDecl
	TagPropertyDecl
	TagMethodDecl
	TagUseTrait
	TagAttribute
	TagPropertyHookGet
	TagPropertyHookSet
	TagNamespaceDecl
	TagUseDecl

	// Types
	TagTypeName
)

// Node is a tag-discriminated, fixed-shape payload. Children lists are
// slices into the owning Arena (spec §3 "Ownership: the AST arena owns
// every child slice and every interned string").
type Node struct {
	Tag   Tag
	Token TokenInfo
	Span  diag.Span

	// Commonly reused single-child slots; meaning depends on Tag.
	A, B, C, D NodeId

	// Generic child list (statement sequences, call arguments, array
	// elements, attribute argument lists, ...).
	Children []NodeId

	// Attributes attached to a declaration (spec §4.2 "Attributes").
	Attributes []NodeId

	NameID     strpool.StringId
	IntValue   int64
	FloatValue float64
	BoolValue  bool
	Operator   string
}

// TokenInfo is the minimal token record an AST node needs for
// diagnostics, decoupled from the lexer package to avoid an import
// cycle (lexer has no dependency on ast).
type TokenInfo struct {
	Text string
	Span diag.Span
}

// Arena owns every Node produced while parsing one compilation unit. A
// NodeId is valid only within the Arena that produced it; the arena is
// bulk-freed (dropped) at the end of compilation (spec §3 "Lifecycles").
type Arena struct {
	Nodes []Node
	Pool  *strpool.Pool
}

// NewArena creates an arena backed by the given string pool.
func NewArena(pool *strpool.Pool) *Arena {
	a := &Arena{Pool: pool}
	root := a.New(Node{Tag: TagRoot, A: NoNode, B: NoNode, C: NoNode, D: NoNode})
	_ = root // root is always NodeId(0)
	return a
}

// New appends a node and returns its id. Unset single-child slots must be
// explicitly passed as NoNode; New does not default them, so that a
// caller forgetting to fill A/B/C/D is visible in review rather than
// silently defaulting to node 0.
func (a *Arena) New(n Node) NodeId {
	a.Nodes = append(a.Nodes, n)
	return NodeId(len(a.Nodes) - 1)
}

// Root returns the arena's root node id, always 0.
func (a *Arena) Root() NodeId { return 0 }

// Get returns a pointer to the node for id, for in-place mutation during
// parsing (e.g. appending to Children as child productions complete).
func (a *Arena) Get(id NodeId) *Node {
	return &a.Nodes[id]
}

// AddChild appends childID to the root-level children of parentID. Used
// by the parser to build statement/argument/element lists incrementally.
func (a *Arena) AddChild(parentID, childID NodeId) {
	n := a.Get(parentID)
	n.Children = append(n.Children, childID)
}

// Valid reports whether id indexes a live node in this arena.
func (a *Arena) Valid(id NodeId) bool {
	return id >= 0 && int(id) < len(a.Nodes)
}
