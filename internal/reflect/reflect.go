// Package reflect builds the post-parse reflection index: a side table
// mapping class/method/property/attribute names to their declaring AST
// nodes (spec §4.3).
//
// No direct teacher analogue exists (the teacher has no class reflection
// table); this is built in the shape of a generalized name→definition
// map, the same pattern the teacher uses for its module registries.
package reflect

import (
	"fmt"

	"golang.org/x/sync/singleflight"

	"sentra/internal/ast"
	"sentra/internal/diag"
	"sentra/internal/strpool"
)

// ClassInfo is the reflection record for one class/interface/trait.
type ClassInfo struct {
	Node       ast.NodeId
	Name       string
	ParentName string
	Attributes []ast.NodeId
	Methods    map[string]ast.NodeId
	Properties map[string]ast.NodeId
	Traits     []string
	IsResolved bool // true once trait mixing has been applied
}

// Index is the read-only (after Build) reflection index for one
// compilation unit.
type Index struct {
	arena   *ast.Arena
	pool    *strpool.Pool
	classes map[string]*ClassInfo
	group   singleflight.Group
}

// Build performs a single pass over the AST, populating a ClassInfo for
// every class/interface/trait declaration, then resolves trait mixing
// and validates extends references (spec §4.3). Implements lists are not
// recorded by the parser and are not checked.
func Build(arena *ast.Arena, pool *strpool.Pool, sink *diag.Sink) *Index {
	idx := &Index{arena: arena, pool: pool, classes: make(map[string]*ClassInfo)}
	root := arena.Get(arena.Root())
	for _, childID := range root.Children {
		idx.collectDecl(childID)
	}
	for name := range idx.classes {
		idx.resolveTraits(name)
	}
	idx.validateAncestry(sink)
	return idx
}

func (idx *Index) collectDecl(id ast.NodeId) {
	n := idx.arena.Get(id)
	switch n.Tag {
	case ast.TagClassDecl, ast.TagInterfaceDecl, ast.TagTraitDecl:
		idx.buildClassInfo(id)
	}
}

func (idx *Index) buildClassInfo(id ast.NodeId) {
	n := idx.arena.Get(id)
	name := idx.pool.Lookup(n.NameID)
	info := &ClassInfo{
		Node:       id,
		Name:       name,
		Attributes: n.Attributes,
		Methods:    make(map[string]ast.NodeId),
		Properties: make(map[string]ast.NodeId),
	}
	if n.A != ast.NoNode {
		parent := idx.arena.Get(n.A)
		info.ParentName = idx.pool.Lookup(parent.NameID)
	}
	for _, memberID := range n.Children {
		member := idx.arena.Get(memberID)
		switch member.Tag {
		case ast.TagMethodDecl:
			info.Methods[idx.pool.Lookup(member.NameID)] = memberID
		case ast.TagPropertyDecl:
			info.Properties[idx.pool.Lookup(member.NameID)] = memberID
		case ast.TagUseTrait:
			info.Traits = append(info.Traits, idx.pool.Lookup(member.NameID))
		}
	}
	idx.classes[name] = info
}

// resolveTraits copies method/property entries from used traits into the
// class unless already shadowed (spec §4.3 "second pass"). Memoized
// behind a singleflight.Group so that two lookups of the same class's
// flattened table within one reflection pass collapse into one walk.
func (idx *Index) resolveTraits(name string) (*ClassInfo, error) {
	v, err, _ := idx.group.Do(name, func() (interface{}, error) {
		info, ok := idx.classes[name]
		if !ok {
			return nil, fmt.Errorf("unknown class %q", name)
		}
		if info.IsResolved {
			return info, nil
		}
		info.IsResolved = true // mark before recursing to tolerate trait cycles
		for _, traitName := range info.Traits {
			traitInfo, ok := idx.classes[traitName]
			if !ok {
				continue
			}
			// A trait already marked resolved (including one whose
			// resolution is still in progress up a trait cycle) is not
			// entered again, so the singleflight call is never re-entered
			// for the same key.
			if !traitInfo.IsResolved {
				idx.resolveTraits(traitName)
			}
			for methodName, methodNode := range traitInfo.Methods {
				if _, shadowed := info.Methods[methodName]; !shadowed {
					info.Methods[methodName] = methodNode
				}
			}
			for propName, propNode := range traitInfo.Properties {
				if _, shadowed := info.Properties[propName]; !shadowed {
					info.Properties[propName] = propNode
				}
			}
		}
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ClassInfo), nil
}

// validateAncestry reports a dangling-reference diagnostic for any
// extends target that does not resolve within the index (spec §4.3
// invariant). Implements targets are not checked.
func (idx *Index) validateAncestry(sink *diag.Sink) {
	for name, info := range idx.classes {
		if info.ParentName == "" {
			continue
		}
		if _, ok := idx.classes[info.ParentName]; !ok {
			sink.Report(diag.Diagnostic{
				Severity: diag.Warning,
				Kind:     diag.KindUndefinedClass,
				Message:  fmt.Sprintf("class %q extends undefined class %q", name, info.ParentName),
			})
		}
	}
}

// Class looks up a class by name.
func (idx *Index) Class(name string) (*ClassInfo, bool) {
	c, ok := idx.classes[name]
	return c, ok
}

// ClassHasMethod reports whether class has a (possibly trait-mixed)
// method of the given name.
func (idx *Index) ClassHasMethod(class, method string) bool {
	info, ok := idx.classes[class]
	if !ok {
		return false
	}
	_, ok = info.Methods[method]
	return ok
}

// MethodAttributes returns the attribute nodes of a method declaration.
func (idx *Index) MethodAttributes(class, method string) []ast.NodeId {
	info, ok := idx.classes[class]
	if !ok {
		return nil
	}
	methodID, ok := info.Methods[method]
	if !ok {
		return nil
	}
	return idx.arena.Get(methodID).Attributes
}

// PropertyAttributes returns the attribute nodes of a property declaration.
func (idx *Index) PropertyAttributes(class, prop string) []ast.NodeId {
	info, ok := idx.classes[class]
	if !ok {
		return nil
	}
	propID, ok := info.Properties[prop]
	if !ok {
		return nil
	}
	return idx.arena.Get(propID).Attributes
}

// AncestorChain walks the class's parent chain, stopping at the first
// cycle it would otherwise re-enter (spec §3 invariant: "class
// inheritance chain is acyclic" — defensive here, since the index is
// also responsible for not looping forever over malformed input).
func (idx *Index) AncestorChain(class string) []string {
	var chain []string
	seen := make(map[string]bool)
	cur := class
	for cur != "" && !seen[cur] {
		seen[cur] = true
		chain = append(chain, cur)
		info, ok := idx.classes[cur]
		if !ok {
			break
		}
		cur = info.ParentName
	}
	return chain
}
