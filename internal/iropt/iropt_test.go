package iropt

import (
	"testing"

	"github.com/kr/pretty"

	"sentra/internal/ir"
)

func buildAddFn() *ir.Module {
	mod := ir.NewModule()
	fn := mod.NewFunction("addConsts", ir.TI64)
	b := fn.NewBlock("entry")
	r1 := fn.AllocReg()
	r2 := fn.AllocReg()
	r3 := fn.AllocReg()
	b.Emit(ir.Instr{Op: ir.OpConstInt, Result: r1, Type: ir.TI64, IntImm: 2})
	b.Emit(ir.Instr{Op: ir.OpConstInt, Result: r2, Type: ir.TI64, IntImm: 3})
	b.Emit(ir.Instr{Op: ir.OpAdd, Result: r3, Type: ir.TI64, Args: []ir.Reg{r1, r2}})
	b.SetTerm(ir.Terminator{Kind: ir.TermRet, RetValue: r3})
	return mod
}

func TestConstFoldFoldsLiteralArithmetic(t *testing.T) {
	mod := buildAddFn()
	stats := Optimize(mod, LevelBasic)
	if stats.ConstantsPropagated == 0 {
		t.Fatal("expected at least one constant fold")
	}
	fn := mod.Functions[0]
	last := fn.Blocks[0].Instrs[len(fn.Blocks[0].Instrs)-1]
	if last.Op != ir.OpConstInt || last.IntImm != 5 {
		t.Fatalf("expected folded add to produce const 5, got %+v", last)
	}
}

func TestDeadCodeRemovesUnusedPureInstruction(t *testing.T) {
	mod := ir.NewModule()
	fn := mod.NewFunction("unused", ir.TVoid)
	b := fn.NewBlock("entry")
	dead := fn.AllocReg()
	b.Emit(ir.Instr{Op: ir.OpConstInt, Result: dead, Type: ir.TI64, IntImm: 7})
	b.SetTerm(ir.Terminator{Kind: ir.TermRet, RetValue: ir.NoReg})

	stats := Optimize(mod, LevelBasic)
	if stats.DeadInstructionsRemoved == 0 {
		t.Fatal("expected the unused constant to be removed")
	}
	if len(fn.Blocks[0].Instrs) != 0 {
		t.Fatalf("expected an empty block after DCE, got %v", fn.Blocks[0].Instrs)
	}
}

func TestStrengthReductionRewritesPowerOfTwoMultiply(t *testing.T) {
	mod := ir.NewModule()
	fn := mod.NewFunction("timesEight", ir.TI64)
	b := fn.NewBlock("entry")
	x := fn.AllocReg()
	eight := fn.AllocReg()
	r := fn.AllocReg()
	b.Emit(ir.Instr{Op: ir.OpConstInt, Result: eight, Type: ir.TI64, IntImm: 8})
	b.Emit(ir.Instr{Op: ir.OpMul, Result: r, Type: ir.TI64, Args: []ir.Reg{x, eight}})
	b.SetTerm(ir.Terminator{Kind: ir.TermRet, RetValue: r})

	stats := Optimize(mod, LevelAggressive)
	if stats.StrengthReductions == 0 {
		t.Fatal("expected the power-of-two multiply to be strength-reduced")
	}
	found := false
	for _, instr := range fn.Blocks[0].Instrs {
		if instr.Op == ir.OpShl {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a shl instruction after strength reduction")
	}
}

func TestTypeSpecializeNarrowsIntegerArithmeticAndDivide(t *testing.T) {
	mod := ir.NewModule()
	fn := mod.NewFunction("mix", ir.TValue)
	x := fn.AllocReg()
	y := fn.AllocReg()
	fn.Params = []ir.Param{{Name: "x", Reg: x, Type: ir.TI64}, {Name: "y", Reg: y, Type: ir.TI64}}
	b := fn.NewBlock("entry")
	sum := fn.AllocReg()
	quot := fn.AllocReg()
	b.Emit(ir.Instr{Op: ir.OpAdd, Result: sum, Type: ir.TValue, Args: []ir.Reg{x, y}})
	b.Emit(ir.Instr{Op: ir.OpDiv, Result: quot, Type: ir.TValue, Args: []ir.Reg{sum, y}})
	b.SetTerm(ir.Terminator{Kind: ir.TermRet, RetValue: quot})

	stats := Optimize(mod, LevelAggressive)
	if stats.TypeSpecializations == 0 {
		t.Fatal("expected at least one type specialization")
	}
	var addInstr, divInstr *ir.Instr
	for i := range fn.Blocks[0].Instrs {
		instr := &fn.Blocks[0].Instrs[i]
		switch instr.Op {
		case ir.OpAdd:
			addInstr = instr
		case ir.OpDiv:
			divInstr = instr
		}
	}
	if addInstr == nil || addInstr.Type != ir.TI64 {
		t.Fatalf("expected add of two known-i64 operands to narrow to i64, got %+v", addInstr)
	}
	if divInstr == nil || divInstr.Type != ir.TF64 {
		t.Fatalf("expected divide to always narrow to f64, got %+v", divInstr)
	}
}

func TestInlineSplicesSingleBlockCallee(t *testing.T) {
	mod := ir.NewModule()
	callee := mod.NewFunction("double", ir.TI64)
	cb := callee.NewBlock("entry")
	p := callee.AllocReg()
	callee.Params = []ir.Param{{Name: "x", Reg: p, Type: ir.TI64}}
	two := callee.AllocReg()
	res := callee.AllocReg()
	cb.Emit(ir.Instr{Op: ir.OpConstInt, Result: two, Type: ir.TI64, IntImm: 2})
	cb.Emit(ir.Instr{Op: ir.OpMul, Result: res, Type: ir.TI64, Args: []ir.Reg{p, two}})
	cb.SetTerm(ir.Terminator{Kind: ir.TermRet, RetValue: res})

	caller := mod.NewFunction("main", ir.TI64)
	mb := caller.NewBlock("entry")
	arg := caller.AllocReg()
	callResult := caller.AllocReg()
	mb.Emit(ir.Instr{Op: ir.OpConstInt, Result: arg, Type: ir.TI64, IntImm: 21})
	mb.Emit(ir.Instr{Op: ir.OpCall, Result: callResult, Type: ir.TI64, Args: []ir.Reg{arg}, CalleeFunc: "double"})
	mb.SetTerm(ir.Terminator{Kind: ir.TermRet, RetValue: callResult})

	stats := Optimize(mod, LevelAggressive)
	if stats.FunctionsInlined == 0 {
		t.Fatal("expected the single-block callee to be inlined")
	}
	for _, instr := range caller.Blocks[0].Instrs {
		if instr.Op == ir.OpCall {
			t.Fatal("expected the call instruction to be replaced after inlining")
		}
	}
}

func TestCSEEliminatesDuplicateExpression(t *testing.T) {
	mod := ir.NewModule()
	fn := mod.NewFunction("dupAdd", ir.TI64)
	b := fn.NewBlock("entry")
	x := fn.AllocReg()
	y := fn.AllocReg()
	r1 := fn.AllocReg()
	r2 := fn.AllocReg()
	b.Emit(ir.Instr{Op: ir.OpAdd, Result: r1, Type: ir.TI64, Args: []ir.Reg{x, y}})
	b.Emit(ir.Instr{Op: ir.OpAdd, Result: r2, Type: ir.TI64, Args: []ir.Reg{x, y}})
	b.SetTerm(ir.Terminator{Kind: ir.TermRet, RetValue: r2})

	before := len(fn.Blocks[0].Instrs)
	stats := Optimize(mod, LevelAggressive)
	if stats.CSEEliminations == 0 {
		t.Fatalf("expected a CSE elimination, diff of before/after instr list:\n%s",
			pretty.Sprint(fn.Blocks[0].Instrs))
	}
	after := len(fn.Blocks[0].Instrs)
	if after >= before {
		t.Fatalf("expected fewer instructions after CSE: before=%d after=%d\n%s",
			before, after, pretty.Diff(before, after))
	}
}
