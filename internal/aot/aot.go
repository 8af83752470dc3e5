// Package aot exposes the ahead-of-time lowering interface from this
// repo's closed-sum IR (internal/ir) to LLVM IR. Spec.md §1 is explicit
// that AOT compilation is "acknowledged but only its IR interface is
// specified" — native object emission, optimization pipelines, and
// target-machine selection are out of scope. This package implements the
// boundary (the Lower entry point and the type-mapping table) and a
// best-effort straight-line lowering for the instruction shapes that map
// directly onto LLVM IR; anything else surfaces as an error rather than
// guessing at codegen the spec does not define.
//
// Grounded on the teacher's go.mod carrying github.com/llir/llvm and
// github.com/llir/ll with nothing in the teacher's own tree importing
// them (see DESIGN.md) — this package gives that otherwise-unwired
// dependency a real, spec-sanctioned home.
package aot

import (
	"fmt"

	llvmir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	llvmvalue "github.com/llir/llvm/ir/value"

	"sentra/internal/ir"
)

// TypeOf maps an IR type to its LLVM counterpart (spec §3 "IR types").
// value-typed registers (TValue, TStringHandle, TArrayHandle,
// TObjectHandle) have no native LLVM representation in this core — they
// lower to an opaque pointer, matching how the VM treats all heap
// handles as counted pointers (spec §9 "tagged-union value").
func TypeOf(t ir.Type) types.Type {
	switch t {
	case ir.TVoid:
		return types.Void
	case ir.TBool:
		return types.I1
	case ir.TI64:
		return types.I64
	case ir.TF64:
		return types.Double
	case ir.TPtr, ir.TStringHandle, ir.TArrayHandle, ir.TObjectHandle, ir.TValue:
		return types.NewPointer(types.I8)
	default:
		return types.NewPointer(types.I8)
	}
}

// Lower translates an IR module into an LLVM module. Only functions whose
// every block lowers to a supported straight-line shape (arithmetic,
// comparisons, unconditional/conditional branch, return) succeed; any
// other instruction or terminator returns an error naming the offending
// op, since the spec does not define a native encoding for exception
// unwinding, object allocation, or inline caches at the AOT boundary.
func Lower(m *ir.Module) (*llvmir.Module, error) {
	out := llvmir.NewModule()
	funcs := make(map[string]*llvmir.Func, len(m.Functions))

	for _, fn := range m.Functions {
		params := make([]*llvmir.Param, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = llvmir.NewParam(p.Name, TypeOf(p.Type))
		}
		lf := out.NewFunc(fn.Name, TypeOf(fn.RetType), params...)
		funcs[fn.Name] = lf
	}

	for _, fn := range m.Functions {
		lf := funcs[fn.Name]
		if err := lowerFunction(fn, lf, funcs); err != nil {
			return nil, fmt.Errorf("aot: lowering %q: %w", fn.Name, err)
		}
	}
	return out, nil
}

func lowerFunction(fn *ir.Function, lf *llvmir.Func, funcs map[string]*llvmir.Func) error {
	blocks := make(map[ir.BlockID]*llvmir.Block, len(fn.Blocks))
	for _, b := range fn.Blocks {
		blocks[b.ID] = lf.NewBlock(blockName(b))
	}

	regs := make(map[ir.Reg]llvmvalue.Value)
	for i, p := range fn.Params {
		regs[p.Reg] = lf.Params[i]
	}

	for _, b := range fn.Blocks {
		lb := blocks[b.ID]
		for _, instr := range b.Instrs {
			v, err := lowerInstr(lb, instr, regs)
			if err != nil {
				return err
			}
			if instr.Result != ir.NoReg {
				regs[instr.Result] = v
			}
		}
		if err := lowerTerm(lb, b.Term, blocks, regs); err != nil {
			return err
		}
	}
	return nil
}

func blockName(b *ir.Block) string {
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("bb%d", b.ID)
}

func lowerInstr(lb *llvmir.Block, instr ir.Instr, regs map[ir.Reg]llvmvalue.Value) (llvmvalue.Value, error) {
	operand := func(i int) (llvmvalue.Value, error) {
		if i >= len(instr.Args) {
			return nil, fmt.Errorf("op %v: missing operand %d", instr.Op, i)
		}
		v, ok := regs[instr.Args[i]]
		if !ok {
			return nil, fmt.Errorf("op %v: operand %d (r%d) not yet defined", instr.Op, i, instr.Args[i])
		}
		return v, nil
	}

	switch instr.Op {
	case ir.OpConstInt:
		return constant.NewInt(types.I64, instr.IntImm), nil
	case ir.OpConstFloat:
		return constant.NewFloat(types.Double, instr.FloatImm), nil
	case ir.OpConstBool:
		return constant.NewBool(instr.BoolImm), nil
	}

	if len(instr.Args) < 2 {
		if len(instr.Args) == 1 && instr.Op == ir.OpNeg {
			x, err := operand(0)
			if err != nil {
				return nil, err
			}
			if instr.Type == ir.TF64 {
				return lb.NewFNeg(x), nil
			}
			return lb.NewSub(constant.NewInt(types.I64, 0), x), nil
		}
		return nil, fmt.Errorf("op %v: unsupported for aot lowering", instr.Op)
	}

	x, err := operand(0)
	if err != nil {
		return nil, err
	}
	y, err := operand(1)
	if err != nil {
		return nil, err
	}

	isFloat := instr.Type == ir.TF64
	switch instr.Op {
	case ir.OpAdd:
		if isFloat {
			return lb.NewFAdd(x, y), nil
		}
		return lb.NewAdd(x, y), nil
	case ir.OpSub:
		if isFloat {
			return lb.NewFSub(x, y), nil
		}
		return lb.NewSub(x, y), nil
	case ir.OpMul:
		if isFloat {
			return lb.NewFMul(x, y), nil
		}
		return lb.NewMul(x, y), nil
	case ir.OpDiv:
		return lb.NewFDiv(x, y), nil
	case ir.OpMod:
		if isFloat {
			return lb.NewFRem(x, y), nil
		}
		return lb.NewSRem(x, y), nil
	case ir.OpBitAnd:
		return lb.NewAnd(x, y), nil
	case ir.OpBitOr:
		return lb.NewOr(x, y), nil
	case ir.OpBitXor:
		return lb.NewXor(x, y), nil
	case ir.OpShl:
		return lb.NewShl(x, y), nil
	case ir.OpShr:
		return lb.NewAShr(x, y), nil
	case ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe, ir.OpEq, ir.OpNe:
		return lowerCompare(lb, instr.Op, x, y, isFloat)
	default:
		return nil, fmt.Errorf("op %v: unsupported for aot lowering", instr.Op)
	}
}

func lowerCompare(lb *llvmir.Block, op ir.Op, x, y llvmvalue.Value, isFloat bool) (llvmvalue.Value, error) {
	if isFloat {
		var pred enum.FPred
		switch op {
		case ir.OpLt:
			pred = enum.FPredOLT
		case ir.OpLe:
			pred = enum.FPredOLE
		case ir.OpGt:
			pred = enum.FPredOGT
		case ir.OpGe:
			pred = enum.FPredOGE
		case ir.OpEq:
			pred = enum.FPredOEQ
		case ir.OpNe:
			pred = enum.FPredONE
		}
		return lb.NewFCmp(pred, x, y), nil
	}
	var pred enum.IPred
	switch op {
	case ir.OpLt:
		pred = enum.IPredSLT
	case ir.OpLe:
		pred = enum.IPredSLE
	case ir.OpGt:
		pred = enum.IPredSGT
	case ir.OpGe:
		pred = enum.IPredSGE
	case ir.OpEq:
		pred = enum.IPredEQ
	case ir.OpNe:
		pred = enum.IPredNE
	}
	return lb.NewICmp(pred, x, y), nil
}

func lowerTerm(lb *llvmir.Block, t ir.Terminator, blocks map[ir.BlockID]*llvmir.Block, regs map[ir.Reg]llvmvalue.Value) error {
	switch t.Kind {
	case ir.TermRet:
		if t.RetValue == ir.NoReg {
			lb.NewRet(nil)
			return nil
		}
		v, ok := regs[t.RetValue]
		if !ok {
			return fmt.Errorf("ret: r%d not defined", t.RetValue)
		}
		lb.NewRet(v)
		return nil
	case ir.TermBr:
		target, ok := blocks[t.Target]
		if !ok {
			return fmt.Errorf("br: unknown target block %d", t.Target)
		}
		lb.NewBr(target)
		return nil
	case ir.TermCondBr:
		cond, ok := regs[t.Cond]
		if !ok {
			return fmt.Errorf("cond_br: r%d not defined", t.Cond)
		}
		tb, ok := blocks[t.TrueBlock]
		if !ok {
			return fmt.Errorf("cond_br: unknown true block %d", t.TrueBlock)
		}
		fb, ok := blocks[t.FalseBlock]
		if !ok {
			return fmt.Errorf("cond_br: unknown false block %d", t.FalseBlock)
		}
		lb.NewCondBr(cond, tb, fb)
		return nil
	default:
		return fmt.Errorf("terminator %v: unsupported for aot lowering (exceptions/switch/unreachable have no native encoding in this core)", t.Kind)
	}
}
