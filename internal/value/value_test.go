package value

import "testing"

func TestLooseEqualsFalsyFamily(t *testing.T) {
	falsy := []Value{Null(), Bool(false), Int(0), Float(0), strVal(""), arrVal()}
	for i := range falsy {
		for j := range falsy {
			if !LooseEquals(falsy[i], falsy[j]) {
				t.Fatalf("expected %v == %v under loose equality (spec §4.9)", falsy[i], falsy[j])
			}
		}
	}
}

func TestStrictEqualsRequiresSameTag(t *testing.T) {
	if StrictEquals(Int(0), Bool(false)) {
		t.Fatal("=== must require equal tags even when both are falsy")
	}
	if !StrictEquals(Int(5), Int(5)) {
		t.Fatal("=== must hold for equal same-tag values")
	}
}

func TestNumericStringLooseEquality(t *testing.T) {
	if !LooseEquals(strVal("10"), Int(10)) {
		t.Fatal("numeric strings must compare numerically under ==")
	}
	if LooseEquals(strVal("abc"), Int(0)) {
		t.Fatal("non-numeric string must not loosely equal 0")
	}
}

func TestArrayPushAutoIncrementsKey(t *testing.T) {
	a := NewArray()
	a.Push(Int(1))
	a.Push(Int(2))
	k := a.Push(Int(3))
	if !k.IsInt || k.Int != 2 {
		t.Fatalf("expected third push to land at int key 2, got %v", k)
	}
	if a.Len() != 3 {
		t.Fatalf("expected length 3, got %d", a.Len())
	}
}

func TestArrayComparisonBySizeThenKeyOrder(t *testing.T) {
	a := arrValWith(Int(1), Int(2))
	b := arrValWith(Int(1), Int(2))
	c := arrValWith(Int(1), Int(3))
	if !LooseEquals(a, b) {
		t.Fatal("equal-size, equal-per-key arrays must compare equal")
	}
	if LooseEquals(a, c) {
		t.Fatal("arrays differing by a value must not compare equal")
	}
}

func TestClassMethodResolutionWalksAncestry(t *testing.T) {
	base := NewClass("Base")
	base.Methods["greet"] = Method{Signature: "greet()"}
	derived := NewClass("Derived")
	derived.Parent = base

	m, owner, ok := derived.ResolveMethod("greet")
	if !ok || owner.Name != "Base" {
		t.Fatalf("expected greet resolved from Base, got owner=%v ok=%v", owner, ok)
	}
	_ = m
}

func TestNormalizeKeyTreatsIntegerStringsAsIntKeys(t *testing.T) {
	k := StrKey("42")
	if !k.IsInt || k.Int != 42 {
		t.Fatalf("expected \"42\" to normalize to an int key, got %v", k)
	}
	k2 := StrKey("042")
	if k2.IsInt {
		t.Fatal("\"042\" must stay a string key (round-trip mismatch)")
	}
}

func strVal(s string) Value { return Value{Tag: TagHeapString, Str: s} }

func arrVal() Value {
	a := NewArray()
	return Value{Tag: TagArray, Heap: a}
}

func arrValWith(vals ...Value) Value {
	a := NewArray()
	for _, v := range vals {
		a.Push(v)
	}
	return Value{Tag: TagArray, Heap: a}
}
