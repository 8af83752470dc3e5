package iropt

import "sentra/internal/ir"

// Stats tallies what each pass actually did (spec §4.5 "Statistics").
// A single Stats accumulates across every function in one Optimize
// call; the driver adds each pass's per-run counts into it.
type Stats struct {
	DeadInstructionsRemoved int
	DeadBlocksRemoved       int
	ConstantsPropagated     int
	FunctionsInlined        int
	TypeSpecializations     int
	StrengthReductions      int
	CSEEliminations         int
	PassesRun               int
}

// --- constant folding / propagation ---

type constFoldPass struct{ stats *Stats }

func (constFoldPass) Name() string { return "const-fold" }

// Run folds arithmetic/comparison ops whose operands are both produced,
// earlier in the same block, by a const instruction — a local
// (block-scoped, not dominance-based) constant table, which is
// sufficient since this IR's blocks are straight-line.
func (p constFoldPass) Run(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		consts := map[ir.Reg]ir.Instr{}
		for i := range b.Instrs {
			instr := &b.Instrs[i]
			if folded, ok := foldConst(*instr, consts); ok {
				*instr = folded
				if p.stats != nil {
					p.stats.ConstantsPropagated++
				}
				changed = true
			}
			if isConstOp(instr.Op) {
				consts[instr.Result] = *instr
			}
		}
	}
	return changed
}

func isConstOp(op ir.Op) bool {
	switch op {
	case ir.OpConstInt, ir.OpConstFloat, ir.OpConstBool, ir.OpConstNull, ir.OpConstString:
		return true
	default:
		return false
	}
}

// foldConst tries to replace a pure arithmetic/comparison instruction
// whose two operands are both known-constant registers with a single
// const instruction carrying the computed literal. Division/modulo by
// a constant zero is deliberately left unfolded (spec §4.5 "a division
// by a literal zero is never folded, so it still raises at runtime").
func foldConst(instr ir.Instr, consts map[ir.Reg]ir.Instr) (ir.Instr, bool) {
	if len(instr.Args) != 2 {
		return instr, false
	}
	a, aok := consts[instr.Args[0]]
	b, bok := consts[instr.Args[1]]
	if !aok || !bok || a.Op != ir.OpConstInt || b.Op != ir.OpConstInt {
		return instr, false
	}
	av, bv := a.IntImm, b.IntImm
	switch instr.Op {
	case ir.OpAdd:
		return constInt(instr, av+bv), true
	case ir.OpSub:
		return constInt(instr, av-bv), true
	case ir.OpMul:
		return constInt(instr, av*bv), true
	case ir.OpDiv, ir.OpMod:
		if bv == 0 {
			return instr, false
		}
		if instr.Op == ir.OpDiv {
			// Division always yields a float at runtime, so the folded
			// literal is a float as well.
			return ir.Instr{Op: ir.OpConstFloat, Result: instr.Result, Type: ir.TF64, FloatImm: float64(av) / float64(bv)}, true
		}
		return constInt(instr, av%bv), true
	case ir.OpBitAnd:
		return constInt(instr, av&bv), true
	case ir.OpBitOr:
		return constInt(instr, av|bv), true
	case ir.OpBitXor:
		return constInt(instr, av^bv), true
	case ir.OpEq:
		return constBool(instr, av == bv), true
	case ir.OpNe:
		return constBool(instr, av != bv), true
	case ir.OpLt:
		return constBool(instr, av < bv), true
	case ir.OpLe:
		return constBool(instr, av <= bv), true
	case ir.OpGt:
		return constBool(instr, av > bv), true
	case ir.OpGe:
		return constBool(instr, av >= bv), true
	default:
		return instr, false
	}
}

func constInt(orig ir.Instr, v int64) ir.Instr {
	return ir.Instr{Op: ir.OpConstInt, Result: orig.Result, Type: ir.TI64, IntImm: v}
}

func constBool(orig ir.Instr, v bool) ir.Instr {
	return ir.Instr{Op: ir.OpConstBool, Result: orig.Result, Type: ir.TBool, BoolImm: v}
}

// --- dead code elimination ---

type deadCodePass struct{ stats *Stats }

func (deadCodePass) Name() string { return "dead-code" }

// Run removes pure instructions whose result is never read by a later
// instruction or terminator in the function, iterating to a local fixed
// point so that dropping one dead instruction can expose another whose
// only use was the one just removed (spec §4.5 "DCE: remove any
// instruction whose op is pure ... and whose result register is never
// read").
func (p deadCodePass) Run(fn *ir.Function) bool {
	changedAny := false
	for {
		used := usedRegs(fn)
		changed := false
		for _, b := range fn.Blocks {
			kept := b.Instrs[:0]
			for _, instr := range b.Instrs {
				if instr.Op.IsPure() && instr.Result != ir.NoReg && !used[instr.Result] {
					changed = true
					if p.stats != nil {
						p.stats.DeadInstructionsRemoved++
					}
					continue
				}
				kept = append(kept, instr)
			}
			b.Instrs = kept
		}
		if !changed {
			break
		}
		changedAny = true
	}
	if removeUnreachableBlocks(fn, p.stats) {
		changedAny = true
	}
	return changedAny
}

func usedRegs(fn *ir.Function) map[ir.Reg]bool {
	used := map[ir.Reg]bool{}
	mark := func(r ir.Reg) {
		if r != ir.NoReg {
			used[r] = true
		}
	}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			for _, a := range instr.Args {
				mark(a)
			}
		}
		t := b.Term
		mark(t.RetValue)
		mark(t.Cond)
		mark(t.SwitchValue)
		mark(t.ThrowValue)
		for _, c := range t.Cases {
			mark(c.Value)
		}
	}
	return used
}

// removeUnreachableBlocks drops blocks no terminator or entry point
// reaches, renumbering Preds and terminator targets accordingly is not
// required since BlockID is only ever used as a slice-relative index
// within this same function's Blocks slice and codegen looks targets up
// via a map built right before lowering — dropping an entry just makes
// its BlockID absent from that map, which codegen's fixup loop already
// tolerates.
func removeUnreachableBlocks(fn *ir.Function, stats *Stats) bool {
	if len(fn.Blocks) == 0 {
		return false
	}
	reachable := map[ir.BlockID]bool{fn.Blocks[0].ID: true}
	work := []ir.BlockID{fn.Blocks[0].ID}
	byID := map[ir.BlockID]*ir.Block{}
	for _, b := range fn.Blocks {
		byID[b.ID] = b
	}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		b := byID[id]
		if b == nil {
			continue
		}
		for _, target := range termTargets(b.Term) {
			if !reachable[target] {
				reachable[target] = true
				work = append(work, target)
			}
		}
	}
	kept := fn.Blocks[:0]
	removed := false
	for _, b := range fn.Blocks {
		if reachable[b.ID] {
			kept = append(kept, b)
		} else {
			removed = true
			if stats != nil {
				stats.DeadBlocksRemoved++
			}
		}
	}
	fn.Blocks = kept
	return removed
}

func termTargets(t ir.Terminator) []ir.BlockID {
	switch t.Kind {
	case ir.TermBr:
		return []ir.BlockID{t.Target}
	case ir.TermCondBr:
		return []ir.BlockID{t.TrueBlock, t.FalseBlock}
	case ir.TermSwitch:
		ids := make([]ir.BlockID, 0, len(t.Cases)+1)
		for _, c := range t.Cases {
			ids = append(ids, c.Block)
		}
		return append(ids, t.Default)
	default:
		return nil
	}
}

// --- common subexpression elimination ---

type csePass struct{ stats *Stats }

func (csePass) Name() string { return "cse" }

type cseKey struct {
	op      ir.Op
	a, b    ir.Reg
	intImm  int64
	strImm  string
	callee  string
}

// Run redirects a repeated pure computation in the same block to the
// register of its first occurrence (spec §4.5 "CSE: hash pure
// instructions by (op, operand registers); a later identical
// instruction is replaced by a reference to the earlier result").
func (p csePass) Run(fn *ir.Function) bool {
	changed := false
	replaceAll := map[ir.Reg]ir.Reg{}
	for _, b := range fn.Blocks {
		seen := map[cseKey]ir.Reg{}
		replace := map[ir.Reg]ir.Reg{}
		kept := b.Instrs[:0]
		for _, instr := range b.Instrs {
			for i, a := range instr.Args {
				if r, ok := replace[a]; ok {
					instr.Args[i] = r
				}
			}
			if instr.Op.IsPure() && instr.Result != ir.NoReg {
				key := cseKeyOf(instr)
				if prior, ok := seen[key]; ok {
					replace[instr.Result] = prior
					replaceAll[instr.Result] = prior
					if p.stats != nil {
						p.stats.CSEEliminations++
					}
					changed = true
					continue
				}
				seen[key] = instr.Result
			}
			kept = append(kept, instr)
		}
		b.Instrs = kept
	}
	if changed {
		// A register defined in one block can be a CSE candidate's
		// argument in a successor block; a second pass over every
		// block's instructions and terminator keeps those consistent too.
		remap := func(r *ir.Reg) {
			if nr, ok := replaceAll[*r]; ok {
				*r = nr
			}
		}
		for _, b := range fn.Blocks {
			for i := range b.Instrs {
				for j := range b.Instrs[i].Args {
					remap(&b.Instrs[i].Args[j])
				}
			}
			remap(&b.Term.RetValue)
			remap(&b.Term.Cond)
			remap(&b.Term.SwitchValue)
			remap(&b.Term.ThrowValue)
			for i := range b.Term.Cases {
				remap(&b.Term.Cases[i].Value)
			}
		}
	}
	return changed
}

func cseKeyOf(instr ir.Instr) cseKey {
	k := cseKey{op: instr.Op, intImm: instr.IntImm, strImm: instr.StringImm, callee: instr.CalleeFunc}
	if len(instr.Args) > 0 {
		k.a = instr.Args[0]
	} else {
		k.a = ir.NoReg
	}
	if len(instr.Args) > 1 {
		k.b = instr.Args[1]
	} else {
		k.b = ir.NoReg
	}
	return k
}

// --- copy propagation ---

type copyPropPass struct{ stats *Stats }

func (copyPropPass) Name() string { return "copy-prop" }

// Run eliminates OpSelect instructions that just forward one register
// (the two-way select's arms already equal, a shape the builder emits
// for ternaries whose branches both reduce to the same value after
// constant folding).
func (p copyPropPass) Run(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		replace := map[ir.Reg]ir.Reg{}
		kept := b.Instrs[:0]
		for _, instr := range b.Instrs {
			for i, a := range instr.Args {
				if r, ok := replace[a]; ok {
					instr.Args[i] = r
				}
			}
			if instr.Op == ir.OpSelect && len(instr.Args) == 1 {
				replace[instr.Result] = instr.Args[0]
				changed = true
				continue
			}
			kept = append(kept, instr)
		}
		b.Instrs = kept
	}
	return changed
}

// --- strength reduction ---

// --- type specialization ---

type typeSpecializePass struct{ stats *Stats }

func (typeSpecializePass) Name() string { return "type-specialize" }

// arithOps narrow to i64 when every operand is known i64, or to f64 when
// any operand is known f64; OpDiv always narrows to f64 regardless of
// operand types (spec §4.5 "type specialization": "division always
// narrows to f64").
var arithOps = map[ir.Op]bool{
	ir.OpAdd: true, ir.OpSub: true, ir.OpMul: true, ir.OpMod: true,
}

var comparisonLogicalOps = map[ir.Op]bool{
	ir.OpEq: true, ir.OpNe: true, ir.OpLt: true, ir.OpLe: true,
	ir.OpGt: true, ir.OpGe: true, ir.OpSpaceship: true,
	ir.OpLAnd: true, ir.OpLOr: true, ir.OpLNot: true,
}

var boolPredicateOps = map[ir.Op]bool{
	ir.OpTypeCheck: true, ir.OpInstanceof: true, ir.OpArrayKeyExists: true,
}

var i64PredicateOps = map[ir.Op]bool{
	ir.OpStrlen: true, ir.OpArrayCount: true,
}

// Run seeds a register -> IR type map from every instruction whose
// result type is unambiguous from its op alone (constants, array/object
// allocation), then narrows every arithmetic/comparison/logical/
// strlen/array_count/type_check/instanceof/array_key_exists instruction
// whose operand types are known, replacing the opaque TValue type spec
// §4.4 assigns by default (spec §4.5 "type specialization").
func (p typeSpecializePass) Run(fn *ir.Function) bool {
	changed := false
	known := map[ir.Reg]ir.Type{}
	for _, param := range fn.Params {
		if param.Type != ir.TValue && param.Type != ir.TVoid {
			known[param.Reg] = param.Type
		}
	}
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			instr := &b.Instrs[i]
			switch instr.Op {
			case ir.OpConstInt:
				known[instr.Result] = ir.TI64
			case ir.OpConstFloat:
				known[instr.Result] = ir.TF64
			case ir.OpConstBool:
				known[instr.Result] = ir.TBool
			case ir.OpConstString:
				known[instr.Result] = ir.TStringHandle
			case ir.OpArrayNew:
				known[instr.Result] = ir.TArrayHandle
			case ir.OpObjectNew:
				known[instr.Result] = ir.TObjectHandle
			}

			var want ir.Type
			switch {
			case instr.Op == ir.OpDiv:
				want = ir.TF64
			case arithOps[instr.Op]:
				want = narrowArith(known, instr.Args)
			case comparisonLogicalOps[instr.Op]:
				want = ir.TBool
			case boolPredicateOps[instr.Op]:
				want = ir.TBool
			case i64PredicateOps[instr.Op]:
				want = ir.TI64
			default:
				continue
			}
			if want == ir.TVoid {
				continue // operand types not yet known; leave generic
			}
			if instr.Result != ir.NoReg {
				known[instr.Result] = want
			}
			if instr.Type != want {
				instr.Type = want
				if p.stats != nil {
					p.stats.TypeSpecializations++
				}
				changed = true
			}
		}
	}
	return changed
}

// narrowArith returns TI64 when every arg is known i64, TF64 when any
// arg is known f64, or TVoid when an operand's type is not yet known.
func narrowArith(known map[ir.Reg]ir.Type, args []ir.Reg) ir.Type {
	sawFloat := false
	for _, a := range args {
		t, ok := known[a]
		if !ok {
			return ir.TVoid
		}
		switch t {
		case ir.TF64:
			sawFloat = true
		case ir.TI64:
			// stays integral unless another operand is float
		default:
			return ir.TVoid
		}
	}
	if sawFloat {
		return ir.TF64
	}
	return ir.TI64
}

type strengthReducePass struct{ stats *Stats }

func (strengthReducePass) Name() string { return "strength-reduce" }

// Run rewrites multiply/divide/modulo by a power-of-two constant into
// shift/mask instructions (spec §4.5 "strength reduction").
func (p strengthReducePass) Run(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		consts := map[ir.Reg]int64{}
		for i := 0; i < len(b.Instrs); i++ {
			if b.Instrs[i].Op == ir.OpConstInt {
				consts[b.Instrs[i].Result] = b.Instrs[i].IntImm
			}
			if len(b.Instrs[i].Args) != 2 {
				continue
			}
			c, ok := consts[b.Instrs[i].Args[1]]
			if !ok {
				continue
			}
			shift, isPow2 := log2(c)
			if !isPow2 {
				continue
			}
			var newOp ir.Op
			var newImm int64
			switch b.Instrs[i].Op {
			case ir.OpMul:
				newOp, newImm = ir.OpShl, shift
			case ir.OpDiv:
				newOp, newImm = ir.OpShr, shift
			case ir.OpMod:
				newOp, newImm = ir.OpBitAnd, c-1
			default:
				continue
			}
			r := fn.AllocReg()
			b.Instrs = insertAt(b.Instrs, i, ir.Instr{Op: ir.OpConstInt, Result: r, Type: ir.TI64, IntImm: newImm})
			i++ // original instruction is now at i, the freshly-inserted const is at i-1
			b.Instrs[i].Op = newOp
			b.Instrs[i].Args[1] = r
			if p.stats != nil {
				p.stats.StrengthReductions++
			}
			changed = true
		}
	}
	return changed
}

func insertAt(instrs []ir.Instr, i int, instr ir.Instr) []ir.Instr {
	instrs = append(instrs, ir.Instr{})
	copy(instrs[i+1:], instrs[i:])
	instrs[i] = instr
	return instrs
}

func log2(v int64) (int64, bool) {
	if v <= 0 || v&(v-1) != 0 {
		return 0, false
	}
	shift := int64(0)
	for v > 1 {
		v >>= 1
		shift++
	}
	return shift, true
}

// --- inlining ---

type inlinePass struct {
	maxCalleeInstrs int
	module          *ir.Module
	stats           *Stats
}

func (inlinePass) Name() string { return "inline" }

// Run inlines call sites targeting a small, non-recursive, single-block
// callee reached from at most a handful of call sites module-wide (spec
// §4.5 "Inlining: instruction-count/call-site/self-recursion/block-count
// bounds"). Only single-block callees are inlined: splicing control
// flow across blocks would require renumbering BlockIDs project-wide,
// which this pass's block-local Run(fn) signature can't safely do
// without the whole module in scope.
func (p inlinePass) Run(fn *ir.Function) bool {
	if p.module == nil {
		return false
	}
	changed := false
	for _, b := range fn.Blocks {
		for i := 0; i < len(b.Instrs); i++ {
			instr := b.Instrs[i]
			if instr.Op != ir.OpCall || instr.CalleeFunc == "" {
				continue
			}
			callee := p.findFunc(instr.CalleeFunc)
			if callee == nil || callee.Name == fn.Name || !p.inlinable(callee) {
				continue
			}
			body := spliceCall(fn, instr, callee)
			b.Instrs = append(b.Instrs[:i], append(body, b.Instrs[i+1:]...)...)
			i += len(body) - 1
			changed = true
			if p.stats != nil {
				p.stats.FunctionsInlined++
			}
		}
	}
	return changed
}

func (p inlinePass) findFunc(name string) *ir.Function {
	for _, f := range p.module.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (p inlinePass) inlinable(callee *ir.Function) bool {
	if len(callee.Blocks) != 1 {
		return false
	}
	if len(callee.Blocks[0].Instrs) > p.maxCalleeInstrs {
		return false
	}
	return callSiteCount(p.module, callee.Name) <= 3
}

func callSiteCount(mod *ir.Module, name string) int {
	n := 0
	for _, f := range mod.Functions {
		for _, b := range f.Blocks {
			for _, instr := range b.Instrs {
				if instr.Op == ir.OpCall && instr.CalleeFunc == name {
					n++
				}
			}
		}
	}
	return n
}

// spliceCall remaps the callee's single block body into fresh registers
// in the caller's function and returns it as a standalone instruction
// slice — the call site in Run splices this in place of the original
// call instruction. The last instruction copies the callee's return
// value (its terminator's RetValue, remapped into the caller's
// registers) into the call's original result register.
func spliceCall(fn *ir.Function, call ir.Instr, callee *ir.Function) []ir.Instr {
	remap := map[ir.Reg]ir.Reg{}
	for i, p := range callee.Params {
		if i < len(call.Args) {
			remap[p.Reg] = call.Args[i]
		}
	}
	remapReg := func(r ir.Reg) ir.Reg {
		if r == ir.NoReg {
			return ir.NoReg
		}
		if nr, ok := remap[r]; ok {
			return nr
		}
		nr := fn.AllocReg()
		remap[r] = nr
		return nr
	}

	body := make([]ir.Instr, 0, len(callee.Blocks[0].Instrs)+1)
	for _, instr := range callee.Blocks[0].Instrs {
		ni := instr
		ni.Result = remapReg(instr.Result)
		ni.Args = make([]ir.Reg, len(instr.Args))
		for i, a := range instr.Args {
			ni.Args[i] = remapReg(a)
		}
		body = append(body, ni)
	}

	ret := callee.Blocks[0].Term.RetValue
	if ret == ir.NoReg {
		return append(body, ir.Instr{Op: ir.OpConstNull, Result: call.Result, Type: ir.TVoid})
	}
	return append(body, ir.Instr{Op: ir.OpSelect, Result: call.Result, Type: call.Type, Args: []ir.Reg{remapReg(ret)}})
}
