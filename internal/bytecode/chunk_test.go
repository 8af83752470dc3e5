package bytecode

import "testing"

func TestEncodeDecodeRoundTrips(t *testing.T) {
	instr := Encode(OpLoadLocal, 7, 1234)
	if instr.Op() != OpLoadLocal {
		t.Fatalf("expected op %v, got %v", OpLoadLocal, instr.Op())
	}
	if instr.Operand1() != 7 {
		t.Fatalf("expected operand1 7, got %d", instr.Operand1())
	}
	if instr.Operand2() != 1234 {
		t.Fatalf("expected operand2 1234, got %d", instr.Operand2())
	}
}

func TestJumpOffsetSignExtendsNegativeOffsets(t *testing.T) {
	instr := EncodeJump(OpJmp, -5)
	if instr.Op() != OpJmp {
		t.Fatalf("expected op %v, got %v", OpJmp, instr.Op())
	}
	if got := instr.JumpOffset(); got != -5 {
		t.Fatalf("expected offset -5, got %d", got)
	}
}

func TestJumpOffsetRoundTripsPositive(t *testing.T) {
	instr := EncodeJump(OpJnz, 100)
	if got := instr.JumpOffset(); got != 100 {
		t.Fatalf("expected offset 100, got %d", got)
	}
}

func TestAddConstantDoesNotDeduplicate(t *testing.T) {
	f := NewCompiledFunction("main")
	i0 := f.AddConstant(Const{Kind: ConstInt, Int: 1})
	i1 := f.AddConstant(Const{Kind: ConstInt, Int: 1})
	if i0 == i1 {
		t.Fatal("expected AddConstant to add a new entry even for an equal literal")
	}
	if len(f.Constants) != 2 {
		t.Fatalf("expected 2 constant-pool entries, got %d", len(f.Constants))
	}
}

func TestEmitKeepsLineTableSortedAndCollapsesRepeats(t *testing.T) {
	f := NewCompiledFunction("main")
	f.Emit(Encode(OpPushInt0, 0, 0), 1)
	f.Emit(Encode(OpPushInt1, 0, 0), 1)
	f.Emit(Encode(OpAdd, 0, 0), 2)

	if len(f.LineTable) != 2 {
		t.Fatalf("expected one line-table entry per distinct line, got %d: %+v", len(f.LineTable), f.LineTable)
	}
	if f.LineForPC(0) != 1 || f.LineForPC(1) != 1 || f.LineForPC(2) != 2 {
		t.Fatalf("unexpected line mapping: pc0=%d pc1=%d pc2=%d", f.LineForPC(0), f.LineForPC(1), f.LineForPC(2))
	}
}

func TestHandlerForFiltersByPCRangeAndCaughtType(t *testing.T) {
	f := NewCompiledFunction("main")
	f.ExceptionTable = []ExceptionEntry{
		{StartPC: 0, EndPC: 5, HandlerPC: 10, CaughtType: "ValueError"},
		{StartPC: 0, EndPC: 5, HandlerPC: 20, CaughtType: "TypeError"},
	}

	entry, ok := f.HandlerFor(2, func(caught string) bool { return caught == "TypeError" })
	if !ok || entry.HandlerPC != 20 {
		t.Fatalf("expected the TypeError handler at pc 20, got %+v (ok=%v)", entry, ok)
	}

	_, ok = f.HandlerFor(9, func(caught string) bool { return true })
	if ok {
		t.Fatal("expected no handler outside the covered pc range")
	}
}
