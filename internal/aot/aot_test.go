package aot

import (
	"testing"

	"github.com/llir/llvm/ir/types"

	"sentra/internal/ir"
)

func TestTypeOfMapsScalarsNatively(t *testing.T) {
	if TypeOf(ir.TI64) != types.I64 {
		t.Fatalf("expected i64 to map to I64")
	}
	if TypeOf(ir.TF64) != types.Double {
		t.Fatalf("expected f64 to map to Double")
	}
	if TypeOf(ir.TBool) != types.I1 {
		t.Fatalf("expected bool to map to I1")
	}
	if TypeOf(ir.TVoid) != types.Void {
		t.Fatalf("expected void to map to Void")
	}
}

func TestTypeOfMapsHandlesToOpaquePointer(t *testing.T) {
	for _, ht := range []ir.Type{ir.TStringHandle, ir.TArrayHandle, ir.TObjectHandle, ir.TValue, ir.TPtr} {
		got := TypeOf(ht)
		ptr, ok := got.(*types.PointerType)
		if !ok {
			t.Fatalf("expected %v to map to a pointer type, got %T", ht, got)
		}
		if ptr.ElemType != types.I8 {
			t.Fatalf("expected %v to map to an i8 pointer, got elem %v", ht, ptr.ElemType)
		}
	}
}

// TestLowerStraightLineArithmetic exercises the supported path: a
// function built only from constants, arithmetic, a comparison and a
// return lowers without error.
func TestLowerStraightLineArithmetic(t *testing.T) {
	mod := ir.NewModule()
	fn := mod.NewFunction("add", ir.TI64)
	x := fn.AllocReg()
	y := fn.AllocReg()
	fn.Params = []ir.Param{{Name: "x", Reg: x, Type: ir.TI64}, {Name: "y", Reg: y, Type: ir.TI64}}
	b := fn.NewBlock("entry")
	sum := fn.AllocReg()
	b.Emit(ir.Instr{Op: ir.OpAdd, Result: sum, Type: ir.TI64, Args: []ir.Reg{x, y}})
	b.SetTerm(ir.Terminator{Kind: ir.TermRet, RetValue: sum})

	out, err := Lower(mod)
	if err != nil {
		t.Fatalf("unexpected lowering error: %v", err)
	}
	if len(out.Funcs) != 1 || out.Funcs[0].Name() != "add" {
		t.Fatalf("expected one lowered function named add, got %+v", out.Funcs)
	}
}

// TestLowerBranchingFunction exercises TermCondBr across two blocks.
func TestLowerBranchingFunction(t *testing.T) {
	mod := ir.NewModule()
	fn := mod.NewFunction("abs", ir.TI64)
	x := fn.AllocReg()
	fn.Params = []ir.Param{{Name: "x", Reg: x, Type: ir.TI64}}

	entry := fn.NewBlock("entry")
	neg := fn.NewBlock("neg")
	pos := fn.NewBlock("pos")

	zero := fn.AllocReg()
	cond := fn.AllocReg()
	entry.Emit(ir.Instr{Op: ir.OpConstInt, Result: zero, Type: ir.TI64, IntImm: 0})
	entry.Emit(ir.Instr{Op: ir.OpLt, Result: cond, Type: ir.TBool, Args: []ir.Reg{x, zero}})
	entry.SetTerm(ir.Terminator{Kind: ir.TermCondBr, Cond: cond, TrueBlock: neg.ID, FalseBlock: pos.ID})

	negated := fn.AllocReg()
	neg.Emit(ir.Instr{Op: ir.OpNeg, Result: negated, Type: ir.TI64, Args: []ir.Reg{x}})
	neg.SetTerm(ir.Terminator{Kind: ir.TermRet, RetValue: negated})

	pos.SetTerm(ir.Terminator{Kind: ir.TermRet, RetValue: x})

	if _, err := Lower(mod); err != nil {
		t.Fatalf("unexpected lowering error: %v", err)
	}
}

// TestLowerRejectsUnsupportedTerminator confirms exception/switch
// constructs surface as an error rather than silently miscompiling,
// since the spec defines no native encoding for them at the AOT
// boundary.
func TestLowerRejectsUnsupportedTerminator(t *testing.T) {
	mod := ir.NewModule()
	fn := mod.NewFunction("throws", ir.TVoid)
	b := fn.NewBlock("entry")
	v := fn.AllocReg()
	b.Emit(ir.Instr{Op: ir.OpConstInt, Result: v, Type: ir.TI64, IntImm: 1})
	b.SetTerm(ir.Terminator{Kind: ir.TermThrow, ThrowValue: v})

	if _, err := Lower(mod); err == nil {
		t.Fatal("expected an error lowering a throw terminator")
	}
}
