package vm

import (
	"testing"

	"sentra/internal/bytecode"
	"sentra/internal/value"
)

// Each CompiledFunction below is hand-assembled the way the teacher's
// vm_test.go builds a raw bytecode.Chunk: exercising the dispatch loop
// directly, without going through lexer/parser/codegen, so the test
// isolates the VM's own behavior (spec §8's end-to-end scenarios).

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       bytecode.OpCode
		a, b     int64
		expected int64
	}{
		{"addition", bytecode.OpAdd, 1, 2, 3},
		{"subtraction", bytecode.OpSub, 50, 20, 30},
		{"multiplication", bytecode.OpMul, 5, 6, 30},
		{"modulo", bytecode.OpMod, 17, 5, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := bytecode.NewCompiledFunction("main")
			ia := fn.AddConstant(bytecode.Const{Kind: bytecode.ConstInt, Int: tt.a})
			ib := fn.AddConstant(bytecode.Const{Kind: bytecode.ConstInt, Int: tt.b})
			fn.Emit(bytecode.Encode(bytecode.OpPushConst, 0, uint16(ia)), 1)
			fn.Emit(bytecode.Encode(bytecode.OpPushConst, 0, uint16(ib)), 1)
			fn.Emit(bytecode.Encode(tt.op, 0, 0), 1)
			fn.Emit(bytecode.Encode(bytecode.OpRet, 0, 0), 1)
			fn.LocalCount = 0

			machine := New()
			result, err := machine.Execute(fn, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Tag != value.TagInt || result.AsInt() != tt.expected {
				t.Fatalf("expected %d, got %+v", tt.expected, result)
			}
		})
	}
}

func TestDivideAlwaysProducesFloat(t *testing.T) {
	fn := bytecode.NewCompiledFunction("main")
	ia := fn.AddConstant(bytecode.Const{Kind: bytecode.ConstInt, Int: 7})
	ib := fn.AddConstant(bytecode.Const{Kind: bytecode.ConstInt, Int: 2})
	fn.Emit(bytecode.Encode(bytecode.OpPushConst, 0, uint16(ia)), 1)
	fn.Emit(bytecode.Encode(bytecode.OpPushConst, 0, uint16(ib)), 1)
	fn.Emit(bytecode.Encode(bytecode.OpDiv, 0, 0), 1)
	fn.Emit(bytecode.Encode(bytecode.OpRet, 0, 0), 1)

	result, err := New().Execute(fn, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Tag != value.TagFloat || result.AsFloat() != 3.5 {
		t.Fatalf("expected float 3.5, got %+v", result)
	}
}

// TestFibonacciRecursion is spec §8's `fib(10)` scenario: a recursive
// user function resolved by name through execCall/callNamedSync.
func TestFibonacciRecursion(t *testing.T) {
	fn := bytecode.NewCompiledFunction("fib")
	fn.ArgCount = 1
	fn.LocalCount = 1

	one := fn.AddConstant(bytecode.Const{Kind: bytecode.ConstInt, Int: 1})
	two := fn.AddConstant(bytecode.Const{Kind: bytecode.ConstInt, Int: 2})
	fibRef := fn.AddConstant(bytecode.Const{Kind: bytecode.ConstFuncRef, String: "fib"})

	// pc 0-2: if n <= 1
	fn.Emit(bytecode.Encode(bytecode.OpLoadLocal, 0, 0), 1)
	fn.Emit(bytecode.Encode(bytecode.OpPushConst, 0, uint16(one)), 1)
	fn.Emit(bytecode.Encode(bytecode.OpLe, 0, 0), 1)
	// pc 3: jz else (else starts at pc 6; offset relative to pc+1=4)
	jz := fn.Emit(bytecode.EncodeJump(bytecode.OpJz, 0), 1)
	// pc 4-5: return n
	fn.Emit(bytecode.Encode(bytecode.OpLoadLocal, 0, 0), 1)
	fn.Emit(bytecode.Encode(bytecode.OpRet, 0, 0), 1)
	elseStart := len(fn.Code)
	fn.Patch(jz, bytecode.EncodeJump(bytecode.OpJz, int32(elseStart-(jz+1))))
	// pc 6-10: fib(n-1)
	fn.Emit(bytecode.Encode(bytecode.OpLoadLocal, 0, 0), 1)
	fn.Emit(bytecode.Encode(bytecode.OpPushConst, 0, uint16(one)), 1)
	fn.Emit(bytecode.Encode(bytecode.OpSub, 0, 0), 1)
	fn.Emit(bytecode.Encode(bytecode.OpPushConst, 0, uint16(fibRef)), 1)
	fn.Emit(bytecode.Encode(bytecode.OpCall, 1, 0), 1)
	// pc 11-15: fib(n-2)
	fn.Emit(bytecode.Encode(bytecode.OpLoadLocal, 0, 0), 1)
	fn.Emit(bytecode.Encode(bytecode.OpPushConst, 0, uint16(two)), 1)
	fn.Emit(bytecode.Encode(bytecode.OpSub, 0, 0), 1)
	fn.Emit(bytecode.Encode(bytecode.OpPushConst, 0, uint16(fibRef)), 1)
	fn.Emit(bytecode.Encode(bytecode.OpCall, 1, 0), 1)
	// pc 16-17: add + return
	fn.Emit(bytecode.Encode(bytecode.OpAdd, 0, 0), 1)
	fn.Emit(bytecode.Encode(bytecode.OpRet, 0, 0), 1)

	machine := New()
	machine.Functions["fib"] = fn
	result, err := machine.Execute(fn, []value.Value{value.Int(10)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Tag != value.TagInt || result.AsInt() != 55 {
		t.Fatalf("expected fib(10) == 55, got %+v", result)
	}
}

// TestArrayLiteralTemplateDecodesNestedConstants exercises the fix to
// constToValue's ConstArrayTemplate case: c.Array.Values holds indices
// into the owning function's own constant pool, not literal ints, so a
// template built from non-trivial constant-pool positions must still
// decode each element by re-entering the pool.
func TestArrayLiteralTemplateDecodesNestedConstants(t *testing.T) {
	fn := bytecode.NewCompiledFunction("main")
	one := fn.AddConstant(bytecode.Const{Kind: bytecode.ConstInt, Int: 1})
	two := fn.AddConstant(bytecode.Const{Kind: bytecode.ConstInt, Int: 2})
	three := fn.AddConstant(bytecode.Const{Kind: bytecode.ConstInt, Int: 3})
	tmpl := fn.AddConstant(bytecode.Const{
		Kind: bytecode.ConstArrayTemplate,
		Array: bytecode.ArrayTemplate{
			Keys:   []int{-1, -1, -1},
			Values: []int{one, two, three},
		},
	})
	four := fn.AddConstant(bytecode.Const{Kind: bytecode.ConstInt, Int: 4})
	countRef := fn.AddConstant(bytecode.Const{Kind: bytecode.ConstFuncRef, String: "count"})
	fn.LocalCount = 1

	fn.Emit(bytecode.Encode(bytecode.OpPushConst, 0, uint16(tmpl)), 1)
	fn.Emit(bytecode.Encode(bytecode.OpStoreLocal, 0, 0), 1)
	fn.Emit(bytecode.Encode(bytecode.OpLoadLocal, 0, 0), 1)
	fn.Emit(bytecode.Encode(bytecode.OpPushConst, 0, uint16(four)), 1)
	fn.Emit(bytecode.Encode(bytecode.OpArrayPush, 0, 0), 1)
	fn.Emit(bytecode.Encode(bytecode.OpLoadLocal, 0, 0), 1)
	fn.Emit(bytecode.Encode(bytecode.OpPushConst, 0, uint16(countRef)), 1)
	fn.Emit(bytecode.Encode(bytecode.OpCall, 1, 0), 1)
	fn.Emit(bytecode.Encode(bytecode.OpRet, 0, 0), 1)

	result, err := New().Execute(fn, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Tag != value.TagInt || result.AsInt() != 4 {
		t.Fatalf("expected count == 4, got %+v", result)
	}
}

// TestTryCatchHandlesThrownException is spec §8's try/catch scenario:
// a thrown value unwinds into exactly one exception-table entry and
// the handler observes it through load_exception.
func TestTryCatchHandlesThrownException(t *testing.T) {
	fn := bytecode.NewCompiledFunction("main")
	msg := fn.AddConstant(bytecode.Const{Kind: bytecode.ConstString, String: "boom"})
	fn.LocalCount = 1

	fn.Emit(bytecode.Encode(bytecode.OpPushConst, 0, uint16(msg)), 1) // pc 0
	fn.Emit(bytecode.Encode(bytecode.OpThrow, 0, 0), 1)               // pc 1
	handlerPC := len(fn.Code)
	fn.Emit(bytecode.Encode(bytecode.OpLoadException, 0, 0), 1) // pc 2
	fn.Emit(bytecode.Encode(bytecode.OpStoreLocal, 0, 0), 1)    // pc 3
	fn.Emit(bytecode.Encode(bytecode.OpClearException, 0, 0), 1) // pc 4
	fn.Emit(bytecode.Encode(bytecode.OpLoadLocal, 0, 0), 1)     // pc 5
	fn.Emit(bytecode.Encode(bytecode.OpRet, 0, 0), 1)           // pc 6

	fn.ExceptionTable = append(fn.ExceptionTable, bytecode.ExceptionEntry{
		StartPC: 0, EndPC: 2, HandlerPC: handlerPC, CaughtType: "Exception",
	})
	if len(fn.ExceptionTable) != 1 {
		t.Fatalf("expected exactly one exception-table entry, got %d", len(fn.ExceptionTable))
	}

	result, err := New().Execute(fn, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.ToDisplayString(result) != "boom" {
		t.Fatalf("expected caught message %q, got %q", "boom", value.ToDisplayString(result))
	}
}
