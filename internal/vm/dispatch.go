package vm

import (
	"fmt"
	"math"

	"sentra/internal/bytecode"
	"sentra/internal/value"
)

func (vm *VM) popN(n int) []value.Value {
	out := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = vm.pop()
	}
	return out
}

// dispatch executes exactly one decoded instruction against frame f.
func (vm *VM) dispatch(f *Frame, instr bytecode.Instruction, op bytecode.OpCode) error {
	switch op {
	case bytecode.OpPushNull:
		vm.push(value.Null())
	case bytecode.OpPushTrue:
		vm.push(value.Bool(true))
	case bytecode.OpPushFalse:
		vm.push(value.Bool(false))
	case bytecode.OpPushInt0:
		vm.push(value.Int(0))
	case bytecode.OpPushInt1:
		vm.push(value.Int(1))
	case bytecode.OpPushConst:
		vm.push(vm.constToValue(f.Fn.Constants, f.Fn.Constants[instr.Operand2()]))
	case bytecode.OpPop:
		vm.pop()
	case bytecode.OpDup:
		vm.push(vm.peek())
	case bytecode.OpSwap:
		n := len(vm.stack)
		vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]

	case bytecode.OpLoadLocal:
		vm.push(f.Locals[instr.Operand1()])
	case bytecode.OpStoreLocal:
		f.Locals[instr.Operand1()] = vm.pop()
	case bytecode.OpLoadGlobal:
		name := f.Fn.Constants[instr.Operand2()].String
		vm.push(vm.Globals[name])
	case bytecode.OpStoreGlobal:
		name := f.Fn.Constants[instr.Operand2()].String
		vm.Globals[name] = vm.pop()
	case bytecode.OpDefineGlobal:
		name := f.Fn.Constants[instr.Operand2()].String
		if _, exists := vm.Globals[name]; !exists {
			vm.Globals[name] = value.Null()
		}

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
		return vm.arith(op)
	case bytecode.OpAddInt, bytecode.OpSubInt, bytecode.OpMulInt, bytecode.OpDivInt, bytecode.OpModInt:
		return vm.arithInt(op)
	case bytecode.OpNegInt:
		a := vm.pop()
		vm.push(value.Int(-a.AsInt()))
	case bytecode.OpAddFloat, bytecode.OpSubFloat, bytecode.OpMulFloat, bytecode.OpDivFloat:
		return vm.arithFloat(op)
	case bytecode.OpNegFloat:
		a := vm.pop()
		vm.push(value.Float(-a.AsFloat()))

	case bytecode.OpEq:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Bool(value.LooseEquals(a, b)))
	case bytecode.OpNe:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Bool(!value.LooseEquals(a, b)))
	case bytecode.OpIdentical:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Bool(value.StrictEquals(a, b)))
	case bytecode.OpNotIdentical:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Bool(!value.StrictEquals(a, b)))
	case bytecode.OpLt, bytecode.OpLtInt:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Bool(value.Compare(a, b) < 0))
	case bytecode.OpLe, bytecode.OpLeInt:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Bool(value.Compare(a, b) <= 0))
	case bytecode.OpGt, bytecode.OpGtInt:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Bool(value.Compare(a, b) > 0))
	case bytecode.OpGe, bytecode.OpGeInt:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Bool(value.Compare(a, b) >= 0))
	case bytecode.OpSpaceship:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Int(int64(value.Compare(a, b))))

	case bytecode.OpLogicAnd:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Bool(value.ToBool(a) && value.ToBool(b)))
	case bytecode.OpLogicOr:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Bool(value.ToBool(a) || value.ToBool(b)))
	case bytecode.OpLogicNot:
		a := vm.pop()
		vm.push(value.Bool(!value.ToBool(a)))
	case bytecode.OpBitAnd:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Int(a.AsInt() & b.AsInt()))
	case bytecode.OpBitOr:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Int(a.AsInt() | b.AsInt()))
	case bytecode.OpBitXor:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Int(a.AsInt() ^ b.AsInt()))
	case bytecode.OpBitNot:
		a := vm.pop()
		vm.push(value.Int(^a.AsInt()))
	case bytecode.OpShl:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Int(a.AsInt() << uint(b.AsInt())))
	case bytecode.OpShr:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Int(a.AsInt() >> uint(b.AsInt())))

	case bytecode.OpToInt:
		a := vm.pop()
		vm.push(value.Int(int64(value.ToNumber(a))))
	case bytecode.OpToFloat:
		a := vm.pop()
		vm.push(value.Float(value.ToNumber(a)))
	case bytecode.OpToBool:
		a := vm.pop()
		vm.push(value.Bool(value.ToBool(a)))
	case bytecode.OpToString:
		a := vm.pop()
		vm.push(vm.newString(value.ToDisplayString(a)))
	case bytecode.OpIsNull:
		vm.push(value.Bool(vm.pop().IsNull()))
	case bytecode.OpIsInt:
		vm.push(value.Bool(vm.pop().Tag == value.TagInt))
	case bytecode.OpIsFloat:
		vm.push(value.Bool(vm.pop().Tag == value.TagFloat))
	case bytecode.OpIsString:
		a := vm.pop()
		vm.push(value.Bool(a.Tag == value.TagHeapString))
	case bytecode.OpIsArray:
		a := vm.pop()
		vm.push(value.Bool(a.Tag == value.TagArray))
	case bytecode.OpIsObject:
		a := vm.pop()
		vm.push(value.Bool(a.Tag == value.TagObject))
	case bytecode.OpInstanceof:
		classRef, obj := vm.pop(), vm.pop()
		vm.push(value.Bool(vm.isInstanceOf(obj, classRef.Str)))
	case bytecode.OpGetType:
		a := vm.pop()
		vm.push(vm.newString(typeNameOf(a)))

	case bytecode.OpConcat:
		b, a := vm.pop(), vm.pop()
		vm.push(vm.newString(value.ToDisplayString(a) + value.ToDisplayString(b)))
	case bytecode.OpStrlen:
		a := vm.pop()
		vm.push(value.Int(int64(len(value.ToDisplayString(a)))))

	case bytecode.OpArrayNew:
		arr := value.NewArray()
		vm.GC.Alloc(arr, 64, "array_new")
		vm.push(value.Value{Tag: value.TagArray, Heap: arr})
	case bytecode.OpArrayGet:
		key, coll := vm.pop(), vm.pop()
		arr, ok := coll.Heap.(*value.Array)
		if !ok {
			return vm.raise("TypeError", "array_get on non-array value")
		}
		v, _ := arr.Get(keyOf(key))
		vm.push(v)
	case bytecode.OpArraySet:
		val, key, coll := vm.pop(), vm.pop(), vm.pop()
		arr, ok := coll.Heap.(*value.Array)
		if !ok {
			return vm.raise("TypeError", "array_set on non-array value")
		}
		arr.Set(keyOf(key), val)
	case bytecode.OpArrayPush:
		val, coll := vm.pop(), vm.pop()
		arr, ok := coll.Heap.(*value.Array)
		if !ok {
			return vm.raise("TypeError", "array_push on non-array value")
		}
		arr.Push(val)
	case bytecode.OpArrayHas:
		key, coll := vm.pop(), vm.pop()
		arr, ok := coll.Heap.(*value.Array)
		vm.push(value.Bool(ok && arr.Has(keyOf(key))))
	case bytecode.OpArrayUnset:
		key, coll := vm.pop(), vm.pop()
		if arr, ok := coll.Heap.(*value.Array); ok {
			arr.Unset(keyOf(key))
		}
	case bytecode.OpArrayCount:
		a := vm.pop()
		if arr, ok := a.Heap.(*value.Array); ok {
			vm.push(value.Int(int64(arr.Len())))
		} else {
			vm.push(value.Int(0))
		}

	case bytecode.OpNewObject:
		return vm.execNewObject(f, instr)
	case bytecode.OpPropertyGet:
		return vm.execPropertyGet(f, instr)
	case bytecode.OpPropertySet:
		return vm.execPropertySet(f, instr)
	case bytecode.OpMethodCall:
		return vm.execMethodCall(f, instr)

	case bytecode.OpJmp:
		f.PC += int(instr.JumpOffset())
	case bytecode.OpJz:
		cond := vm.pop()
		if !value.ToBool(cond) {
			f.PC += int(instr.JumpOffset())
		}
	case bytecode.OpJnz:
		cond := vm.pop()
		if value.ToBool(cond) {
			f.PC += int(instr.JumpOffset())
		}

	case bytecode.OpCall:
		return vm.execCall(f, instr)
	case bytecode.OpCallIndirect:
		return vm.execCallIndirect(f, instr)
	case bytecode.OpRet:
		vm.returnValue = vm.pop()
		vm.returned = true
	case bytecode.OpRetNull:
		vm.returnValue = value.Null()
		vm.returned = true

	case bytecode.OpThrow:
		v := vm.pop()
		return &RuntimeError{Kind: "thrown", Value: v}
	case bytecode.OpBeginTry, bytecode.OpEndTry:
		// No runtime action: the exception table drives unwinding.
	case bytecode.OpLoadException:
		vm.push(vm.currentException)
	case bytecode.OpClearException:
		vm.currentException = value.Null()
		vm.hasException = false

	default:
		return fmt.Errorf("vm: unimplemented opcode %v", op)
	}
	return nil
}

func (vm *VM) arith(op bytecode.OpCode) error {
	b, a := vm.pop(), vm.pop()
	an, bn := value.ToNumber(a), value.ToNumber(b)
	useFloat := a.Tag == value.TagFloat || b.Tag == value.TagFloat || an != math.Trunc(an) || bn != math.Trunc(bn)
	switch op {
	case bytecode.OpAdd:
		if useFloat {
			vm.push(value.Float(an + bn))
		} else {
			vm.push(value.Int(int64(an) + int64(bn)))
		}
	case bytecode.OpSub:
		if useFloat {
			vm.push(value.Float(an - bn))
		} else {
			vm.push(value.Int(int64(an) - int64(bn)))
		}
	case bytecode.OpMul:
		if useFloat {
			vm.push(value.Float(an * bn))
		} else {
			vm.push(value.Int(int64(an) * int64(bn)))
		}
	case bytecode.OpDiv:
		if bn == 0 {
			return vm.raise("DivisionByZeroError", "division by zero")
		}
		vm.push(value.Float(an / bn))
	case bytecode.OpMod:
		if int64(bn) == 0 {
			return vm.raise("DivisionByZeroError", "modulo by zero")
		}
		vm.push(value.Int(int64(an) % int64(bn)))
	}
	return nil
}

func (vm *VM) arithInt(op bytecode.OpCode) error {
	b, a := vm.pop(), vm.pop()
	ai, bi := a.AsInt(), b.AsInt()
	switch op {
	case bytecode.OpAddInt:
		vm.push(value.Int(ai + bi))
	case bytecode.OpSubInt:
		vm.push(value.Int(ai - bi))
	case bytecode.OpMulInt:
		vm.push(value.Int(ai * bi))
	case bytecode.OpDivInt:
		if bi == 0 {
			return vm.raise("DivisionByZeroError", "division by zero")
		}
		vm.push(value.Int(ai / bi))
	case bytecode.OpModInt:
		if bi == 0 {
			return vm.raise("DivisionByZeroError", "modulo by zero")
		}
		vm.push(value.Int(ai % bi))
	}
	return nil
}

func (vm *VM) arithFloat(op bytecode.OpCode) error {
	b, a := vm.pop(), vm.pop()
	af, bf := a.AsFloat(), b.AsFloat()
	switch op {
	case bytecode.OpAddFloat:
		vm.push(value.Float(af + bf))
	case bytecode.OpSubFloat:
		vm.push(value.Float(af - bf))
	case bytecode.OpMulFloat:
		vm.push(value.Float(af * bf))
	case bytecode.OpDivFloat:
		vm.push(value.Float(af / bf))
	}
	return nil
}

func (vm *VM) constToValue(consts []bytecode.Const, c bytecode.Const) value.Value {
	switch c.Kind {
	case bytecode.ConstInt:
		return value.Int(c.Int)
	case bytecode.ConstFloat:
		return value.Float(c.Float)
	case bytecode.ConstBool:
		return value.Bool(c.Bool)
	case bytecode.ConstNull:
		return value.Null()
	case bytecode.ConstString, bytecode.ConstClassRef, bytecode.ConstFuncRef:
		return vm.newString(c.String)
	case bytecode.ConstArrayTemplate:
		// c.Array.Values holds constant-pool indices, not literal ints
		// (bytecode.ArrayTemplate's own doc) — each element must be
		// decoded by recursing into the owning function's pool, not by
		// re-wrapping the raw index as a synthetic int constant.
		arr := value.NewArray()
		for i, vi := range c.Array.Values {
			key := c.Array.Keys[i]
			val := vm.constToValue(consts, consts[vi])
			if key == -1 {
				arr.Push(val)
			} else {
				arr.Set(value.IntKey(int64(key)), val)
			}
		}
		return value.Value{Tag: value.TagArray, Heap: arr}
	}
	return value.Null()
}

func (vm *VM) newString(s string) value.Value {
	hs := value.NewHeapString(s)
	vm.GC.Alloc(hs, uintptr(len(s)), "string_literal")
	return value.Value{Tag: value.TagHeapString, Str: s, Heap: hs}
}

func keyOf(v value.Value) value.ArrayKey {
	if v.Tag == value.TagHeapString {
		return value.StrKey(v.Str)
	}
	return value.IntKey(v.AsInt())
}

func typeNameOf(v value.Value) string {
	switch v.Tag {
	case value.TagNull:
		return "null"
	case value.TagBool:
		return "bool"
	case value.TagInt:
		return "int"
	case value.TagFloat:
		return "float"
	case value.TagHeapString:
		return "string"
	case value.TagArray:
		return "array"
	case value.TagObject:
		return "object"
	default:
		return "unknown"
	}
}

func (vm *VM) isInstanceOf(v value.Value, className string) bool {
	obj, ok := v.Heap.(*value.Object)
	if !ok {
		return false
	}
	c := obj.Class
	for c != nil {
		if c.Name == className {
			return true
		}
		c = c.Parent
	}
	return false
}

func (vm *VM) raise(kind, msg string) error {
	return NewRuntimeError(kind, msg)
}
