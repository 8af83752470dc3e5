// Package codegen lowers a (possibly optimized) IR module into bytecode
// (spec §4.7 "Code generator"). Each IR register becomes a local slot;
// IR instructions become short stack-machine sequences (load the
// operand locals, apply the opcode, store the result local), matching
// the spec's stack-plus-locals bytecode shape (§4.6's "Stack" and
// "Locals" opcode groups together form one evaluation model) the way
// the teacher's internal/compiler/compiler.go walks its own AST
// straight onto a `Chunk` of stack opcodes — reproduced here one level
// down, over IR instead of AST, so that codegen also serves as the
// back end for the optimizer's output (spec §2 "either bytecode (VM)
// or IR (optimizer) → bytecode").
//
// Control flow (if/while/for/foreach diamonds and loops, short-circuit
// &&/||, foreach-as-iterator) arrives already expressed as IR basic
// blocks and terminators; this package only has to linearize blocks
// and back-patch jump targets, exactly as the teacher's
// compiler.go:VisitIfExpr patches a placeholder jump offset once the
// else-branch's start pc is known — generalized here to an arbitrary
// block graph instead of two fixed branches.
package codegen

import (
	"sentra/internal/bytecode"
	"sentra/internal/ir"
)

// jumpFixup records a bytecode pc holding a placeholder jump that must
// be patched once the IR target block's start pc is known.
type jumpFixup struct {
	pc     int
	op     bytecode.OpCode
	target ir.BlockID
}

type funcGen struct {
	fn     *ir.Function
	cf     *bytecode.CompiledFunction
	fixups []jumpFixup
	blockPC map[ir.BlockID]int

	// icSlots counts inline-cache slots allocated so far for
	// property_get/property_set/method_call call sites (spec §4.7
	// "a fresh inline-cache slot index per site").
	icSlots int

	// tryStack tracks open OpTryBegin markers (start pc) so each
	// OpGetException can close a protected range once its catch
	// handler pc is known; OpClearException pops the marker.
	tryStack []int

	// constDefs maps a register to the single constant-producing
	// instruction that defines it, wherever one exists — this IR is
	// SSA-ish (spec §3 "every register defined once"), so the lookup
	// is unambiguous. Used to recognize array literals built entirely
	// from constants so they can be emitted as a single
	// bytecode.ConstArrayTemplate pool entry (spec §4.6) instead of an
	// OpArrayNew/OpArrayPush/OpArraySet sequence.
	constDefs map[ir.Reg]ir.Instr
}

// Lower compiles every function in mod into a name-indexed set of
// CompiledFunctions (spec §3 "Compiled function").
func Lower(mod *ir.Module) map[string]*bytecode.CompiledFunction {
	out := make(map[string]*bytecode.CompiledFunction, len(mod.Functions))
	for _, fn := range mod.Functions {
		out[fn.Name] = LowerFunction(fn)
	}
	return out
}

// LowerFunction compiles a single IR function into bytecode.
func LowerFunction(fn *ir.Function) *bytecode.CompiledFunction {
	cf := bytecode.NewCompiledFunction(fn.Name)
	cf.ArgCount = len(fn.Params)
	g := &funcGen{fn: fn, cf: cf, blockPC: make(map[ir.BlockID]int), constDefs: make(map[ir.Reg]ir.Instr)}

	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if isConstDefOp(instr.Op) {
				g.constDefs[instr.Result] = instr
			}
		}
	}

	for _, b := range fn.Blocks {
		g.blockPC[b.ID] = len(cf.Code)
		instrs := b.Instrs
		for i := 0; i < len(instrs); i++ {
			if instrs[i].Op == ir.OpArrayNew {
				if consumed, ok := g.tryEmitArrayTemplate(instrs, i); ok {
					i += consumed - 1
					continue
				}
			}
			g.emitInstr(instrs[i])
		}
		g.emitTerm(b.Term)
	}

	for _, fx := range g.fixups {
		target, ok := g.blockPC[fx.target]
		if !ok {
			continue
		}
		offset := int32(target - (fx.pc + 1))
		cf.Patch(fx.pc, bytecode.EncodeJump(fx.op, offset))
	}

	cf.LocalCount = localCount(fn)
	cf.MaxStack = estimateMaxStack(fn)
	return cf
}

// localCount reports how many distinct registers (and so local slots)
// the function ever allocated. ir.Function does not expose its
// register counter directly, so this scans every instruction/param for
// the highest register id seen.
func localCount(fn *ir.Function) int {
	max := -1
	bump := func(r ir.Reg) {
		if int(r) > max {
			max = int(r)
		}
	}
	for _, p := range fn.Params {
		bump(p.Reg)
	}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if instr.Result != ir.NoReg {
				bump(instr.Result)
			}
			for _, a := range instr.Args {
				bump(a)
			}
		}
		if b.Term.Cond != ir.NoReg {
			bump(b.Term.Cond)
		}
	}
	return max + 1
}

// estimateMaxStack is a conservative upper bound: every instruction
// pushes at most len(Args) operands plus one result before draining
// back to locals, so 2 is always sufficient for this codegen's
// load-load-op-store shape; method calls may push more arguments.
func estimateMaxStack(fn *ir.Function) int {
	max := 2
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if n := len(instr.Args) + 1; n > max {
				max = n
			}
		}
	}
	return max
}

func (g *funcGen) emit(op bytecode.OpCode, operand1 uint8, operand2 uint16) int {
	return g.cf.Emit(bytecode.Encode(op, operand1, operand2), 0)
}

func (g *funcGen) loadReg(r ir.Reg) {
	g.emit(bytecode.OpLoadLocal, uint8(r), 0)
}

func (g *funcGen) storeReg(r ir.Reg) {
	if r == ir.NoReg {
		g.emit(bytecode.OpPop, 0, 0)
		return
	}
	g.emit(bytecode.OpStoreLocal, uint8(r), 0)
}

func (g *funcGen) constIndex(c bytecode.Const) int {
	return g.cf.AddConstant(c)
}

// isConstDefOp reports whether op always produces a value knowable at
// compile time from the instruction alone, independent of any runtime
// state — the instruction set tryEmitArrayTemplate is allowed to fold
// into a bytecode.ConstArrayTemplate entry.
func isConstDefOp(op ir.Op) bool {
	switch op {
	case ir.OpConstInt, ir.OpConstFloat, ir.OpConstBool, ir.OpConstNull, ir.OpConstString:
		return true
	default:
		return false
	}
}

func (g *funcGen) constFromDef(instr ir.Instr) (bytecode.Const, bool) {
	switch instr.Op {
	case ir.OpConstInt:
		return bytecode.Const{Kind: bytecode.ConstInt, Int: instr.IntImm}, true
	case ir.OpConstFloat:
		return bytecode.Const{Kind: bytecode.ConstFloat, Float: instr.FloatImm}, true
	case ir.OpConstBool:
		return bytecode.Const{Kind: bytecode.ConstBool, Bool: instr.BoolImm}, true
	case ir.OpConstNull:
		return bytecode.Const{Kind: bytecode.ConstNull}, true
	case ir.OpConstString:
		return bytecode.Const{Kind: bytecode.ConstString, String: instr.StringImm}, true
	default:
		return bytecode.Const{}, false
	}
}

// tryEmitArrayTemplate recognizes an OpArrayNew at instrs[start]
// immediately followed by a run of OpArrayPush/OpArraySet instructions
// (interleaved with the constant definitions that feed them, the shape
// ir.Builder emits for an array literal) that operate only on the new
// array and whose keys/values are all known constants (spec §4.6
// "pre-hashed array literals (keys + values)"). On success it emits a
// single bytecode.ConstArrayTemplate constant-pool load in place of the
// pushes/sets, still emits the interleaved constant definitions after
// it, and reports how many IR instructions it consumed; on any
// non-constant or
// out-of-sequence element it emits nothing and reports ok=false so the
// caller falls back to the general OpArrayNew/OpArrayPush/OpArraySet
// lowering.
func (g *funcGen) tryEmitArrayTemplate(instrs []ir.Instr, start int) (consumed int, ok bool) {
	r := instrs[start].Result
	var keys []int
	var elems []bytecode.Const
	end := start + 1
	j := start + 1
loop:
	for ; j < len(instrs); j++ {
		instr := instrs[j]
		switch instr.Op {
		case ir.OpArrayPush:
			if instr.Args[0] != r {
				break loop
			}
			valDef, has := g.constDefs[instr.Args[1]]
			if !has {
				break loop
			}
			c, okc := g.constFromDef(valDef)
			if !okc {
				break loop
			}
			keys = append(keys, -1)
			elems = append(elems, c)
		case ir.OpArraySet:
			if instr.Args[0] != r {
				break loop
			}
			keyDef, hasKey := g.constDefs[instr.Args[1]]
			if !hasKey || keyDef.Op != ir.OpConstInt {
				break loop
			}
			valDef, hasVal := g.constDefs[instr.Args[2]]
			if !hasVal {
				break loop
			}
			c, okc := g.constFromDef(valDef)
			if !okc {
				break loop
			}
			keys = append(keys, int(keyDef.IntImm))
			elems = append(elems, c)
		default:
			if isConstDefOp(instr.Op) {
				continue
			}
			break loop
		}
		end = j + 1
	}
	if len(elems) == 0 {
		return 0, false
	}
	values := make([]int, len(elems))
	for i, c := range elems {
		values[i] = g.constIndex(c)
	}
	idx := g.constIndex(bytecode.Const{Kind: bytecode.ConstArrayTemplate, Array: bytecode.ArrayTemplate{Keys: keys, Values: values}})
	g.emit(bytecode.OpPushConst, 0, uint16(idx))
	g.storeReg(r)
	for _, instr := range instrs[start+1 : end] {
		if isConstDefOp(instr.Op) {
			g.emitInstr(instr)
		}
	}
	return end - start, true
}

// binOpcodes maps an IR binary op to its generic bytecode opcode.
var binOpcodes = map[ir.Op]bytecode.OpCode{
	ir.OpAdd: bytecode.OpAdd, ir.OpSub: bytecode.OpSub, ir.OpMul: bytecode.OpMul,
	ir.OpDiv: bytecode.OpDiv, ir.OpMod: bytecode.OpMod,
	ir.OpBitAnd: bytecode.OpBitAnd, ir.OpBitOr: bytecode.OpBitOr, ir.OpBitXor: bytecode.OpBitXor,
	ir.OpShl: bytecode.OpShl, ir.OpShr: bytecode.OpShr,
	ir.OpEq: bytecode.OpEq, ir.OpNe: bytecode.OpNe, ir.OpLt: bytecode.OpLt, ir.OpLe: bytecode.OpLe,
	ir.OpGt: bytecode.OpGt, ir.OpGe: bytecode.OpGe, ir.OpSpaceship: bytecode.OpSpaceship,
	ir.OpLAnd: bytecode.OpLogicAnd, ir.OpLOr: bytecode.OpLogicOr,
	ir.OpConcat: bytecode.OpConcat,
	ir.OpArrayGet: bytecode.OpArrayGet,
	ir.OpArrayKeyExists: bytecode.OpArrayHas,
}

var unaryOpcodes = map[ir.Op]bytecode.OpCode{
	ir.OpNeg: bytecode.OpNegInt, ir.OpLNot: bytecode.OpLogicNot, ir.OpBitNot: bytecode.OpBitNot,
	ir.OpStrlen: bytecode.OpStrlen, ir.OpArrayCount: bytecode.OpArrayCount,
}

func (g *funcGen) emitInstr(instr ir.Instr) {
	switch instr.Op {
	case ir.OpConstInt:
		idx := g.constIndex(bytecode.Const{Kind: bytecode.ConstInt, Int: instr.IntImm})
		if instr.IntImm == 0 {
			g.emit(bytecode.OpPushInt0, 0, 0)
		} else if instr.IntImm == 1 {
			g.emit(bytecode.OpPushInt1, 0, 0)
		} else {
			g.emit(bytecode.OpPushConst, 0, uint16(idx))
		}
		g.storeReg(instr.Result)
	case ir.OpConstFloat:
		idx := g.constIndex(bytecode.Const{Kind: bytecode.ConstFloat, Float: instr.FloatImm})
		g.emit(bytecode.OpPushConst, 0, uint16(idx))
		g.storeReg(instr.Result)
	case ir.OpConstBool:
		if instr.BoolImm {
			g.emit(bytecode.OpPushTrue, 0, 0)
		} else {
			g.emit(bytecode.OpPushFalse, 0, 0)
		}
		g.storeReg(instr.Result)
	case ir.OpConstNull:
		g.emit(bytecode.OpPushNull, 0, 0)
		g.storeReg(instr.Result)
	case ir.OpConstString:
		idx := g.constIndex(bytecode.Const{Kind: bytecode.ConstString, String: instr.StringImm})
		g.emit(bytecode.OpPushConst, 0, uint16(idx))
		g.storeReg(instr.Result)

	case ir.OpAlloca:
		g.emit(bytecode.OpPushNull, 0, 0)
		g.storeReg(instr.Result)
	case ir.OpLoad:
		g.loadReg(instr.Args[0])
		g.storeReg(instr.Result)
	case ir.OpStore:
		g.loadReg(instr.Args[len(instr.Args)-1])
		g.storeReg(instr.Args[0])

	case ir.OpCall:
		for _, a := range instr.Args {
			g.loadReg(a)
		}
		nameIdx := g.constIndex(bytecode.Const{Kind: bytecode.ConstFuncRef, String: instr.CalleeFunc})
		g.emit(bytecode.OpPushConst, 0, uint16(nameIdx))
		g.emit(bytecode.OpCall, uint8(len(instr.Args)), 0)
		g.storeReg(instr.Result)
	case ir.OpCallIndirect:
		for _, a := range instr.Args {
			g.loadReg(a)
		}
		g.emit(bytecode.OpCallIndirect, uint8(len(instr.Args)), 0)
		g.storeReg(instr.Result)

	case ir.OpCast, ir.OpTypeCheck, ir.OpGetType, ir.OpBox, ir.OpUnbox:
		g.loadReg(instr.Args[0])
		g.emit(castOpcode(instr.Op, instr.Type), 0, 0)
		g.storeReg(instr.Result)
	case ir.OpInstanceof:
		g.loadReg(instr.Args[0])
		idx := g.constIndex(bytecode.Const{Kind: bytecode.ConstClassRef, String: instr.StringImm})
		g.emit(bytecode.OpPushConst, 0, uint16(idx))
		g.emit(bytecode.OpInstanceof, 0, 0)
		g.storeReg(instr.Result)

	case ir.OpArrayNew:
		g.emit(bytecode.OpArrayNew, 0, 0)
		g.storeReg(instr.Result)
	case ir.OpArraySet:
		g.loadReg(instr.Args[0])
		g.loadReg(instr.Args[1])
		g.loadReg(instr.Args[2])
		g.emit(bytecode.OpArraySet, 0, 0)
	case ir.OpArrayPush:
		g.loadReg(instr.Args[0])
		g.loadReg(instr.Args[1])
		g.emit(bytecode.OpArrayPush, 0, 0)
	case ir.OpArrayUnset:
		g.loadReg(instr.Args[0])
		g.loadReg(instr.Args[1])
		g.emit(bytecode.OpArrayUnset, 0, 0)

	case ir.OpObjectNew:
		for _, a := range instr.Args {
			g.loadReg(a)
		}
		idx := g.constIndex(bytecode.Const{Kind: bytecode.ConstClassRef, String: instr.CalleeFunc})
		g.emit(bytecode.OpPushConst, 0, uint16(idx))
		g.emit(bytecode.OpNewObject, uint8(len(instr.Args)), 0)
		g.storeReg(instr.Result)
	case ir.OpPropertyGet:
		g.loadReg(instr.Args[0])
		slot := g.nextICSlot()
		idx := g.constIndex(bytecode.Const{Kind: bytecode.ConstString, String: instr.StringImm})
		g.emit(bytecode.OpPushConst, 0, uint16(idx))
		g.emit(bytecode.OpPropertyGet, 0, slot)
		g.storeReg(instr.Result)
	case ir.OpPropertySet:
		g.loadReg(instr.Args[0])
		idx := g.constIndex(bytecode.Const{Kind: bytecode.ConstString, String: instr.StringImm})
		g.emit(bytecode.OpPushConst, 0, uint16(idx))
		g.loadReg(instr.Args[1])
		slot := g.nextICSlot()
		g.emit(bytecode.OpPropertySet, 0, slot)
	case ir.OpMethodCall:
		for _, a := range instr.Args {
			g.loadReg(a)
		}
		idx := g.constIndex(bytecode.Const{Kind: bytecode.ConstString, String: instr.CalleeFunc})
		g.emit(bytecode.OpPushConst, 0, uint16(idx))
		slot := g.nextICSlot()
		g.emit(bytecode.OpMethodCall, uint8(len(instr.Args)), slot)
		g.storeReg(instr.Result)

	case ir.OpSelect:
		g.loadReg(instr.Args[0])
		g.storeReg(instr.Result)
	case ir.OpPhi:
		// Phi values are resolved by the predecessor blocks writing
		// directly into the phi's result slot (see ir.Builder's
		// buildShortCircuit/buildMatch convergence pattern); nothing
		// to emit here.

	case ir.OpTryBegin:
		g.tryStack = append(g.tryStack, len(g.cf.Code))
	case ir.OpTryEnd:
		// Closed once the following catch handlers' pcs are known;
		// recorded lazily via OpGetException below.
	case ir.OpGetException:
		if n := len(g.tryStack); n > 0 {
			start := g.tryStack[n-1]
			g.cf.ExceptionTable = append(g.cf.ExceptionTable, bytecode.ExceptionEntry{
				StartPC: start, EndPC: len(g.cf.Code), HandlerPC: len(g.cf.Code), CaughtType: instr.StringImm,
			})
		}
		g.emit(bytecode.OpLoadException, 0, 0)
		g.storeReg(instr.Result)
	case ir.OpClearException:
		g.emit(bytecode.OpClearException, 0, 0)
		if n := len(g.tryStack); n > 0 {
			g.tryStack = g.tryStack[:n-1]
		}

	case ir.OpMutexLock, ir.OpMutexUnlock:
		// Recorded, not scheduled (spec §5); no bytecode emitted.
	case ir.OpDebugPrint:
		g.loadReg(instr.Args[0])
		nameIdx := g.constIndex(bytecode.Const{Kind: bytecode.ConstFuncRef, String: "echo"})
		g.emit(bytecode.OpPushConst, 0, uint16(nameIdx))
		g.emit(bytecode.OpCall, 1, 0)
		g.emit(bytecode.OpPop, 0, 0) // debug_print has no IR result; discard echo's null return

	default:
		if op, ok := binOpcodes[instr.Op]; ok {
			g.loadReg(instr.Args[0])
			g.loadReg(instr.Args[1])
			g.emit(op, 0, 0)
			g.storeReg(instr.Result)
			return
		}
		if op, ok := unaryOpcodes[instr.Op]; ok {
			g.loadReg(instr.Args[0])
			g.emit(op, 0, 0)
			g.storeReg(instr.Result)
			return
		}
	}
}

func castOpcode(op ir.Op, t ir.Type) bytecode.OpCode {
	switch op {
	case ir.OpCast:
		switch t {
		case ir.TI64:
			return bytecode.OpToInt
		case ir.TF64:
			return bytecode.OpToFloat
		case ir.TBool:
			return bytecode.OpToBool
		case ir.TStringHandle:
			return bytecode.OpToString
		default:
			return bytecode.OpToString
		}
	case ir.OpTypeCheck:
		return bytecode.OpGetType
	case ir.OpGetType:
		return bytecode.OpGetType
	default:
		return bytecode.OpToString
	}
}

func (g *funcGen) nextICSlot() uint16 {
	slot := g.icSlots
	g.icSlots++
	return uint16(slot)
}

func (g *funcGen) emitTerm(t ir.Terminator) {
	switch t.Kind {
	case ir.TermRet:
		if t.RetValue == ir.NoReg {
			g.emit(bytecode.OpRetNull, 0, 0)
			return
		}
		g.loadReg(t.RetValue)
		g.emit(bytecode.OpRet, 0, 0)
	case ir.TermBr:
		pc := g.emit(bytecode.OpJmp, 0, 0)
		g.fixups = append(g.fixups, jumpFixup{pc: pc, op: bytecode.OpJmp, target: t.Target})
	case ir.TermCondBr:
		g.loadReg(t.Cond)
		pcTrue := g.emit(bytecode.OpJnz, 0, 0)
		g.fixups = append(g.fixups, jumpFixup{pc: pcTrue, op: bytecode.OpJnz, target: t.TrueBlock})
		pcFalse := g.emit(bytecode.OpJmp, 0, 0)
		g.fixups = append(g.fixups, jumpFixup{pc: pcFalse, op: bytecode.OpJmp, target: t.FalseBlock})
	case ir.TermSwitch:
		for _, c := range t.Cases {
			g.loadReg(t.SwitchValue)
			g.loadReg(c.Value)
			g.emit(bytecode.OpEq, 0, 0)
			pc := g.emit(bytecode.OpJnz, 0, 0)
			g.fixups = append(g.fixups, jumpFixup{pc: pc, op: bytecode.OpJnz, target: c.Block})
		}
		pc := g.emit(bytecode.OpJmp, 0, 0)
		g.fixups = append(g.fixups, jumpFixup{pc: pc, op: bytecode.OpJmp, target: t.Default})
	case ir.TermThrow:
		g.loadReg(t.ThrowValue)
		g.emit(bytecode.OpThrow, 0, 0)
	case ir.TermUnreachable:
		g.emit(bytecode.OpRetNull, 0, 0)
	}
}
