package ir

import (
	"errors"

	"sentra/internal/ast"
	"sentra/internal/diag"
	"sentra/internal/strpool"
)

var errUnhandledNode = errors.New("ir: unsupported node")

// Builder lowers a parsed AST into an IR Module (spec §4.4 "IR &
// builder"). Grounded on the teacher's single-pass compiler.go walk
// (one recursive descent over the AST emitting instructions directly,
// no separate "checking" pass) adapted to emit SSA-register IR instead
// of bytecode.
type Builder struct {
	arena *ast.Arena
	pool  *strpool.Pool
	sink  *diag.Sink

	mod *Module
	fn  *Function
	cur *Block

	locals map[string]Reg // name -> last-assigned register (not true SSA phi insertion)

	loopBreak    []BlockID
	loopContinue []BlockID
}

func NewBuilder(arena *ast.Arena, pool *strpool.Pool, sink *diag.Sink) *Builder {
	return &Builder{arena: arena, pool: pool, sink: sink, mod: NewModule()}
}

// setTerm installs blk's terminator and records the resulting control
// flow edge(s) on every successor block's Preds list, so later passes
// (phi resolution, the optimizer's CFG-aware passes, codegen's jump
// fixup) never have to recompute predecessors from scratch.
func (b *Builder) setTerm(blk *Block, t Terminator) {
	blk.SetTerm(t)
	if !blk.HasTerm() || blk.Term.Kind != t.Kind {
		return // a terminator was already installed; no new edge to record
	}
	switch t.Kind {
	case TermBr:
		b.addPred(t.Target, blk.ID)
	case TermCondBr:
		b.addPred(t.TrueBlock, blk.ID)
		b.addPred(t.FalseBlock, blk.ID)
	case TermSwitch:
		for _, c := range t.Cases {
			b.addPred(c.Block, blk.ID)
		}
		b.addPred(t.Default, blk.ID)
	}
}

func (b *Builder) addPred(target BlockID, from BlockID) {
	if target == NoBlock {
		return
	}
	blk := b.fn.Block(target)
	for _, p := range blk.Preds {
		if p == from {
			return
		}
	}
	blk.Preds = append(blk.Preds, from)
}

// BuildModule lowers every top-level declaration plus a synthetic
// "__main__" function gathering top-level statements.
func (b *Builder) BuildModule() *Module {
	root := b.arena.Get(b.arena.Root())
	main := b.mod.NewFunction("__main__", TValue)
	b.fn = main
	b.locals = make(map[string]Reg)
	b.cur = main.NewBlock("entry")

	for _, childID := range root.Children {
		n := b.arena.Get(childID)
		if n.Tag == ast.TagFunctionDecl {
			b.buildFunction(childID)
			continue
		}
		b.buildStmt(childID)
	}
	if !b.cur.HasTerm() {
		b.setTerm(b.cur, Terminator{Kind: TermRet, RetValue: NoReg})
	}
	return b.mod
}

func (b *Builder) buildFunction(id ast.NodeId) {
	n := b.arena.Get(id)
	name := b.pool.Lookup(n.NameID)
	fn := b.mod.NewFunction(name, TValue)

	savedFn, savedBlock, savedLocals := b.fn, b.cur, b.locals
	b.fn = fn
	b.locals = make(map[string]Reg)
	b.cur = fn.NewBlock("entry")

	if n.A != ast.NoNode {
		params := b.arena.Get(n.A)
		for _, paramID := range params.Children {
			pn := b.arena.Get(paramID)
			pname := b.pool.Lookup(pn.NameID)
			r := b.fn.AllocReg()
			fn.Params = append(fn.Params, Param{Name: pname, Reg: r, Type: TValue})
			b.locals[pname] = r
		}
	}
	if n.B != ast.NoNode {
		b.buildStmt(n.B)
	}
	if !b.cur.HasTerm() {
		b.setTerm(b.cur, Terminator{Kind: TermRet, RetValue: NoReg})
	}

	b.fn, b.cur, b.locals = savedFn, savedBlock, savedLocals
}

func (b *Builder) buildStmt(id ast.NodeId) {
	if id == ast.NoNode || b.cur.HasTerm() {
		return
	}
	n := b.arena.Get(id)
	switch n.Tag {
	case ast.TagBlockStmt:
		for _, c := range n.Children {
			if b.cur.HasTerm() {
				break
			}
			b.buildStmt(c)
		}
	case ast.TagExprStmt:
		b.buildExpr(n.A)
	case ast.TagEchoStmt:
		for _, c := range n.Children {
			v := b.buildExpr(c)
			b.cur.Emit(Instr{Op: OpDebugPrint, Result: NoReg, Args: []Reg{v}})
		}
	case ast.TagReturnStmt:
		var v Reg = NoReg
		if n.A != ast.NoNode {
			v = b.buildExpr(n.A)
		}
		b.setTerm(b.cur, Terminator{Kind: TermRet, RetValue: v})
	case ast.TagIfStmt:
		b.buildIf(n)
	case ast.TagWhileStmt:
		b.buildWhile(n)
	case ast.TagForStmt:
		b.buildFor(n)
	case ast.TagForeachStmt:
		b.buildForeach(n)
	case ast.TagBreakStmt:
		if len(b.loopBreak) > 0 {
			b.setTerm(b.cur, Terminator{Kind: TermBr, Target: b.loopBreak[len(b.loopBreak)-1]})
		}
	case ast.TagContinueStmt:
		if len(b.loopContinue) > 0 {
			b.setTerm(b.cur, Terminator{Kind: TermBr, Target: b.loopContinue[len(b.loopContinue)-1]})
		}
	case ast.TagThrowStmt:
		v := b.buildExpr(n.A)
		b.setTerm(b.cur, Terminator{Kind: TermThrow, ThrowValue: v})
	case ast.TagTryStmt:
		b.buildTry(n)
	case ast.TagGlobalStmt:
		// Global declarations only affect name resolution at this lowering
		// level; no instruction is emitted.
	case ast.TagGoStmt:
		if n.A != ast.NoNode {
			b.buildExpr(n.A)
		}
	case ast.TagParseError:
		// Already diagnosed by the parser; skip.
	default:
		b.sink.Errorf(diag.KindInvalidIR, n.Span, errUnhandledNode, "ir: unhandled statement tag %v", n.Tag)
	}
}

func (b *Builder) buildIf(n *ast.Node) {
	cond := b.buildExpr(n.A)
	thenB := b.fn.NewBlock("if.then")
	var elseB *Block
	if n.C != ast.NoNode {
		elseB = b.fn.NewBlock("if.else")
	}
	mergeB := b.fn.NewBlock("if.end")

	falseTarget := mergeB.ID
	if elseB != nil {
		falseTarget = elseB.ID
	}
	b.setTerm(b.cur, Terminator{Kind: TermCondBr, Cond: cond, TrueBlock: thenB.ID, FalseBlock: falseTarget})

	b.cur = thenB
	b.buildStmt(n.B)
	if !b.cur.HasTerm() {
		b.setTerm(b.cur, Terminator{Kind: TermBr, Target: mergeB.ID})
	}

	if elseB != nil {
		b.cur = elseB
		b.buildStmt(n.C)
		if !b.cur.HasTerm() {
			b.setTerm(b.cur, Terminator{Kind: TermBr, Target: mergeB.ID})
		}
	}

	b.cur = mergeB
}

func (b *Builder) buildWhile(n *ast.Node) {
	headB := b.fn.NewBlock("while.head")
	bodyB := b.fn.NewBlock("while.body")
	exitB := b.fn.NewBlock("while.end")

	b.setTerm(b.cur, Terminator{Kind: TermBr, Target: headB.ID})
	b.cur = headB
	cond := b.buildExpr(n.A)
	b.setTerm(b.cur, Terminator{Kind: TermCondBr, Cond: cond, TrueBlock: bodyB.ID, FalseBlock: exitB.ID})

	b.loopBreak = append(b.loopBreak, exitB.ID)
	b.loopContinue = append(b.loopContinue, headB.ID)
	b.cur = bodyB
	b.buildStmt(n.B)
	if !b.cur.HasTerm() {
		b.setTerm(b.cur, Terminator{Kind: TermBr, Target: headB.ID})
	}
	b.loopBreak = b.loopBreak[:len(b.loopBreak)-1]
	b.loopContinue = b.loopContinue[:len(b.loopContinue)-1]

	b.cur = exitB
}

func (b *Builder) buildFor(n *ast.Node) {
	if n.A != ast.NoNode {
		b.buildExpr(n.A)
	}
	headB := b.fn.NewBlock("for.head")
	bodyB := b.fn.NewBlock("for.body")
	postB := b.fn.NewBlock("for.post")
	exitB := b.fn.NewBlock("for.end")

	b.setTerm(b.cur, Terminator{Kind: TermBr, Target: headB.ID})
	b.cur = headB
	if n.B != ast.NoNode {
		cond := b.buildExpr(n.B)
		b.setTerm(b.cur, Terminator{Kind: TermCondBr, Cond: cond, TrueBlock: bodyB.ID, FalseBlock: exitB.ID})
	} else {
		b.setTerm(b.cur, Terminator{Kind: TermBr, Target: bodyB.ID})
	}

	b.loopBreak = append(b.loopBreak, exitB.ID)
	b.loopContinue = append(b.loopContinue, postB.ID)
	b.cur = bodyB
	b.buildStmt(n.D)
	if !b.cur.HasTerm() {
		b.setTerm(b.cur, Terminator{Kind: TermBr, Target: postB.ID})
	}
	b.loopBreak = b.loopBreak[:len(b.loopBreak)-1]
	b.loopContinue = b.loopContinue[:len(b.loopContinue)-1]

	b.cur = postB
	if n.C != ast.NoNode {
		b.buildExpr(n.C)
	}
	if !b.cur.HasTerm() {
		b.setTerm(b.cur, Terminator{Kind: TermBr, Target: headB.ID})
	}

	b.cur = exitB
}

// buildForeach lowers a foreach over an array as repeated ArrayGet calls
// driven by an integer cursor, which the end of the body advances by
// writing cursor+1 back into the cursor register (the same
// register-convergence pattern buildShortCircuit/buildMatch use). The
// collection is always treated as an array; no iterator methods are
// called on objects.
func (b *Builder) buildForeach(n *ast.Node) {
	coll := b.buildExpr(n.A)
	idxReg := b.fn.AllocReg()
	b.cur.Emit(Instr{Op: OpConstInt, Result: idxReg, Type: TI64, IntImm: 0})

	headB := b.fn.NewBlock("foreach.head")
	bodyB := b.fn.NewBlock("foreach.body")
	exitB := b.fn.NewBlock("foreach.end")

	b.setTerm(b.cur, Terminator{Kind: TermBr, Target: headB.ID})
	b.cur = headB
	countReg := b.fn.AllocReg()
	b.cur.Emit(Instr{Op: OpArrayCount, Result: countReg, Type: TI64, Args: []Reg{coll}})
	condReg := b.fn.AllocReg()
	b.cur.Emit(Instr{Op: OpLt, Result: condReg, Type: TBool, Args: []Reg{idxReg, countReg}})
	b.setTerm(b.cur, Terminator{Kind: TermCondBr, Cond: condReg, TrueBlock: bodyB.ID, FalseBlock: exitB.ID})

	b.loopBreak = append(b.loopBreak, exitB.ID)
	b.loopContinue = append(b.loopContinue, headB.ID)
	b.cur = bodyB
	valReg := b.fn.AllocReg()
	b.cur.Emit(Instr{Op: OpArrayGet, Result: valReg, Type: TValue, Args: []Reg{coll, idxReg}})
	if n.B != ast.NoNode {
		valName := b.pool.Lookup(b.arena.Get(n.B).NameID)
		b.locals[valName] = valReg
	}
	b.buildStmt(n.C)
	if !b.cur.HasTerm() {
		nextIdx := b.fn.AllocReg()
		one := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpConstInt, Result: one, Type: TI64, IntImm: 1})
		b.cur.Emit(Instr{Op: OpAdd, Result: nextIdx, Type: TI64, Args: []Reg{idxReg, one}})
		b.cur.Emit(Instr{Op: OpSelect, Result: idxReg, Type: TI64, Args: []Reg{nextIdx}})
		b.setTerm(b.cur, Terminator{Kind: TermBr, Target: headB.ID})
	}
	b.loopBreak = b.loopBreak[:len(b.loopBreak)-1]
	b.loopContinue = b.loopContinue[:len(b.loopContinue)-1]

	b.cur = exitB
}

// buildTry lowers try/catch/finally using OpTryBegin/OpTryEnd markers;
// the bytecode codegen stage (spec §4.6) turns the marker pair plus the
// catch block's span into an exception-table row rather than branches,
// so only block boundaries matter here.
func (b *Builder) buildTry(n *ast.Node) {
	b.cur.Emit(Instr{Op: OpTryBegin})
	b.buildStmt(n.A)
	b.cur.Emit(Instr{Op: OpTryEnd})

	for _, catchID := range n.Children {
		catch := b.arena.Get(catchID)
		excReg := b.fn.AllocReg()
		caughtType := ""
		if catch.A != ast.NoNode {
			caughtType = b.pool.Lookup(b.arena.Get(catch.A).NameID)
		}
		b.cur.Emit(Instr{Op: OpGetException, Result: excReg, Type: TObjectHandle, StringImm: caughtType})
		if catch.B != ast.NoNode {
			varName := b.pool.Lookup(b.arena.Get(catch.B).NameID)
			b.locals[varName] = excReg
		}
		b.buildStmt(catch.C)
		b.cur.Emit(Instr{Op: OpClearException})
	}

	// Finally (spec §4.4 "try_end after finally"): n.B holds the
	// finally block when present, run unconditionally after the
	// try/catch region whether or not an exception was thrown.
	if n.B != ast.NoNode {
		b.buildStmt(n.B)
	}
}

func (b *Builder) buildExpr(id ast.NodeId) Reg {
	if id == ast.NoNode {
		return NoReg
	}
	n := b.arena.Get(id)
	switch n.Tag {
	case ast.TagIntLit:
		r := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpConstInt, Result: r, Type: TI64, IntImm: n.IntValue})
		return r
	case ast.TagFloatLit:
		r := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpConstFloat, Result: r, Type: TF64, FloatImm: n.FloatValue})
		return r
	case ast.TagBoolLit:
		r := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpConstBool, Result: r, Type: TBool, BoolImm: n.BoolValue})
		return r
	case ast.TagNullLit:
		r := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpConstNull, Result: r, Type: TValue})
		return r
	case ast.TagStringLit, ast.TagInterpString:
		r := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpConstString, Result: r, Type: TStringHandle, StringImm: b.pool.Lookup(n.NameID)})
		return r
	case ast.TagVariable:
		name := b.pool.Lookup(n.NameID)
		if r, ok := b.locals[name]; ok {
			return r
		}
		r := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpConstNull, Result: r, Type: TValue})
		b.locals[name] = r
		return r
	case ast.TagAssign:
		v := b.buildExpr(n.B)
		b.assignTo(n.A, v)
		return v
	case ast.TagBinary:
		return b.buildBinary(n)
	case ast.TagUnary:
		return b.buildUnary(n)
	case ast.TagCall:
		return b.buildCall(n)
	case ast.TagMethodCall:
		return b.buildMethodCall(n)
	case ast.TagIndex:
		coll := b.buildExpr(n.A)
		if n.B == ast.NoNode {
			// append form `$a[] = ...`; only meaningful as an assignment
			// target, handled in assignTo. As a bare expression it is a
			// no-op read of the collection itself.
			return coll
		}
		idx := b.buildExpr(n.B)
		r := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpArrayGet, Result: r, Type: TValue, Args: []Reg{coll, idx}})
		return r
	case ast.TagPropertyAccess:
		obj := b.buildExpr(n.A)
		r := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpPropertyGet, Result: r, Type: TValue, Args: []Reg{obj}, StringImm: b.pool.Lookup(n.NameID)})
		return r
	case ast.TagArrayLit:
		r := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpArrayNew, Result: r, Type: TArrayHandle})
		for _, elID := range n.Children {
			v := b.buildExpr(elID)
			b.cur.Emit(Instr{Op: OpArrayPush, Args: []Reg{r, v}})
		}
		return r
	case ast.TagNewObject:
		r := b.fn.AllocReg()
		args := make([]Reg, 0, len(n.Children))
		for _, argID := range n.Children {
			args = append(args, b.buildExpr(argID))
		}
		instr := Instr{Op: OpObjectNew, Result: r, Type: TObjectHandle, Args: args, CalleeFunc: b.pool.Lookup(n.NameID)}
		b.cur.Emit(instr)
		return r
	case ast.TagInstanceof:
		obj := b.buildExpr(n.A)
		r := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpInstanceof, Result: r, Type: TBool, Args: []Reg{obj}, StringImm: b.pool.Lookup(n.NameID)})
		return r
	case ast.TagClone:
		obj := b.buildExpr(n.A)
		r := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpCall, Result: r, Type: TObjectHandle, Args: []Reg{obj}, CalleeFunc: "__clone"})
		return r
	case ast.TagMatchExpr:
		return b.buildMatch(n)
	case ast.TagPipe:
		return b.buildPipe(n)
	case ast.TagParseError:
		r := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpConstNull, Result: r, Type: TValue})
		return r
	default:
		b.sink.Errorf(diag.KindInvalidIR, n.Span, errUnhandledNode, "ir: unhandled expression tag %v", n.Tag)
		r := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpConstNull, Result: r, Type: TValue})
		return r
	}
}

func (b *Builder) assignTo(target ast.NodeId, value Reg) {
	n := b.arena.Get(target)
	switch n.Tag {
	case ast.TagVariable:
		name := b.pool.Lookup(n.NameID)
		b.locals[name] = value
	case ast.TagIndex:
		coll := b.buildExpr(n.A)
		if n.B == ast.NoNode {
			b.cur.Emit(Instr{Op: OpArrayPush, Args: []Reg{coll, value}})
			return
		}
		idx := b.buildExpr(n.B)
		b.cur.Emit(Instr{Op: OpArraySet, Args: []Reg{coll, idx, value}})
	case ast.TagPropertyAccess:
		obj := b.buildExpr(n.A)
		b.cur.Emit(Instr{Op: OpPropertySet, Args: []Reg{obj, value}, StringImm: b.pool.Lookup(n.NameID)})
	default:
		b.sink.Errorf(diag.KindInvalidIR, n.Span, errUnhandledNode, "ir: invalid assignment target tag %v", n.Tag)
	}
}

var binOps = map[string]Op{
	"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "%": OpMod,
	".": OpConcat,
	"&": OpBitAnd, "|": OpBitOr, "^": OpBitXor, "<<": OpShl, ">>": OpShr,
	"==": OpEq, "!=": OpNe, "===": OpEq, "!==": OpNe,
	"<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe, "<=>": OpSpaceship,
	"&&": OpLAnd, "||": OpLOr,
}

func (b *Builder) buildBinary(n *ast.Node) Reg {
	op, ok := binOps[n.Operator]
	if !ok {
		op = OpAdd
	}
	// Logical && / || short-circuit: lowered with branches rather than
	// an eagerly evaluated right-hand side.
	if op == OpLAnd || op == OpLOr {
		return b.buildShortCircuit(n, op)
	}
	lhs := b.buildExpr(n.A)
	rhs := b.buildExpr(n.B)
	r := b.fn.AllocReg()
	resultType := TValue
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		resultType = TBool
	}
	b.cur.Emit(Instr{Op: op, Result: r, Type: resultType, Args: []Reg{lhs, rhs}})
	return r
}

func (b *Builder) buildShortCircuit(n *ast.Node, op Op) Reg {
	lhs := b.buildExpr(n.A)
	rhsB := b.fn.NewBlock("sc.rhs")
	mergeB := b.fn.NewBlock("sc.end")
	resultReg := b.fn.AllocReg()

	if op == OpLAnd {
		b.setTerm(b.cur, Terminator{Kind: TermCondBr, Cond: lhs, TrueBlock: rhsB.ID, FalseBlock: mergeB.ID})
	} else {
		b.setTerm(b.cur, Terminator{Kind: TermCondBr, Cond: lhs, TrueBlock: mergeB.ID, FalseBlock: rhsB.ID})
	}
	shortResult := lhs

	b.cur = rhsB
	rhs := b.buildExpr(n.B)
	b.cur.Emit(Instr{Op: OpSelect, Result: resultReg, Type: TBool, Args: []Reg{rhs}})
	b.setTerm(b.cur, Terminator{Kind: TermBr, Target: mergeB.ID})

	b.cur = mergeB
	b.cur.Emit(Instr{Op: OpSelect, Result: resultReg, Type: TBool, Args: []Reg{shortResult}})
	return resultReg
}

var unaryOps = map[string]Op{"-": OpNeg, "!": OpLNot, "~": OpBitNot}

func (b *Builder) buildUnary(n *ast.Node) Reg {
	operand := b.buildExpr(n.A)
	op, ok := unaryOps[n.Operator]
	if !ok {
		op = OpNeg
	}
	r := b.fn.AllocReg()
	rt := TValue
	if op == OpLNot {
		rt = TBool
	}
	b.cur.Emit(Instr{Op: op, Result: r, Type: rt, Args: []Reg{operand}})
	return r
}

func (b *Builder) buildCall(n *ast.Node) Reg {
	calleeNode := b.arena.Get(n.A)
	calleeName := ""
	if calleeNode.Tag == ast.TagVariable {
		calleeName = b.pool.Lookup(calleeNode.NameID)
	}
	args := make([]Reg, 0, len(n.Children))
	for _, argID := range n.Children {
		args = append(args, b.buildExpr(argID))
	}
	r := b.fn.AllocReg()
	b.cur.Emit(Instr{Op: OpCall, Result: r, Type: TValue, Args: args, CalleeFunc: calleeName})
	return r
}

func (b *Builder) buildMethodCall(n *ast.Node) Reg {
	recv := b.buildExpr(n.A)
	args := make([]Reg, 0, len(n.Children)+1)
	args = append(args, recv)
	for _, argID := range n.Children {
		args = append(args, b.buildExpr(argID))
	}
	r := b.fn.AllocReg()
	b.cur.Emit(Instr{Op: OpMethodCall, Result: r, Type: TValue, Args: args, CalleeFunc: b.pool.Lookup(n.NameID)})
	return r
}

// buildMatch lowers a match expression into a cascading if/else of
// equality tests against the subject, converging on a shared result
// register (spec's supplemented match-expression feature).
func (b *Builder) buildMatch(n *ast.Node) Reg {
	subject := b.buildExpr(n.A)
	resultReg := b.fn.AllocReg()
	mergeB := b.fn.NewBlock("match.end")

	for _, armID := range n.Children {
		arm := b.arena.Get(armID)
		testB := b.fn.NewBlock("match.test")
		b.setTerm(b.cur, Terminator{Kind: TermBr, Target: testB.ID})
		b.cur = testB

		condVal := b.buildExpr(arm.A)
		cmp := b.fn.AllocReg()
		b.cur.Emit(Instr{Op: OpEq, Result: cmp, Type: TBool, Args: []Reg{subject, condVal}})

		armB := b.fn.NewBlock("match.arm")
		nextB := b.fn.NewBlock("match.next")
		b.setTerm(b.cur, Terminator{Kind: TermCondBr, Cond: cmp, TrueBlock: armB.ID, FalseBlock: nextB.ID})

		b.cur = armB
		v := b.buildExpr(arm.B)
		b.cur.Emit(Instr{Op: OpSelect, Result: resultReg, Type: TValue, Args: []Reg{v}})
		b.setTerm(b.cur, Terminator{Kind: TermBr, Target: mergeB.ID})

		b.cur = nextB
	}
	b.setTerm(b.cur, Terminator{Kind: TermBr, Target: mergeB.ID})
	b.cur = mergeB
	return resultReg
}

// buildPipe lowers `lhs |> rhs(...)` by threading lhs in as rhs's first
// argument (spec's supplemented pipe operator).
func (b *Builder) buildPipe(n *ast.Node) Reg {
	lhs := b.buildExpr(n.A)
	rhsNode := b.arena.Get(n.B)
	if rhsNode.Tag != ast.TagCall {
		return lhs
	}
	calleeNode := b.arena.Get(rhsNode.A)
	calleeName := ""
	if calleeNode.Tag == ast.TagVariable {
		calleeName = b.pool.Lookup(calleeNode.NameID)
	}
	args := []Reg{lhs}
	for _, argID := range rhsNode.Children {
		args = append(args, b.buildExpr(argID))
	}
	r := b.fn.AllocReg()
	b.cur.Emit(Instr{Op: OpCall, Result: r, Type: TValue, Args: args, CalleeFunc: calleeName})
	return r
}

