package vm

import (
	"sentra/internal/bytecode"
	"sentra/internal/value"
)

// callSync runs fn to completion against an isolated frame stack and
// returns its value synchronously, so that call/method_call/new_object
// each behave as one atomic bytecode operation (spec §4.6 groups them
// as single opcodes) even though the VM's frame stack is otherwise a
// flat, shared array. The caller's own frames are swapped back in once
// fn's call tree has fully unwound.
func (vm *VM) callSync(fn *bytecode.CompiledFunction, args []value.Value) (value.Value, error) {
	savedFrames, savedStack := vm.frames, vm.stack
	vm.frames, vm.stack = nil, nil
	defer func() { vm.frames, vm.stack = savedFrames, savedStack }()

	if vm.pushFrame(fn, args) == nil {
		return value.Null(), StackOverflow{}
	}
	return vm.run()
}

// callNamedSync resolves name against natives first, then compiled
// functions, and runs it synchronously.
func (vm *VM) callNamedSync(name string, args []value.Value) (value.Value, error) {
	if native, ok := vm.Natives[name]; ok {
		return native(vm, args)
	}
	fn, ok := vm.Functions[name]
	if !ok {
		return value.Null(), vm.raise("UndefinedFunctionError", "call to undefined function "+name)
	}
	return vm.callSync(fn, args)
}

// execCall implements `call` (spec §4.6/§4.8 calling convention): the
// callee's name constant sits on top of the stack, with `operand1`
// caller-supplied arguments beneath it, pushed left-to-right.
func (vm *VM) execCall(f *Frame, instr bytecode.Instruction) error {
	nameVal := vm.pop()
	argc := int(instr.Operand1())
	args := vm.popN(argc)
	ret, err := vm.callNamedSync(nameVal.Str, args)
	if err != nil {
		return err
	}
	vm.push(ret)
	return nil
}

// execCallIndirect calls a Callable value (spec §3 "Callable: either a
// compiled-function reference plus optional bound receiver, or a
// native function identifier").
func (vm *VM) execCallIndirect(f *Frame, instr bytecode.Instruction) error {
	argc := int(instr.Operand1())
	args := vm.popN(argc)
	callee := vm.pop()
	c, ok := callee.Heap.(*value.Callable)
	if !ok {
		return vm.raise("TypeError", "call_indirect on non-callable value")
	}
	if c.Receiver != nil {
		args = append([]value.Value{{Tag: value.TagObject, Heap: c.Receiver}}, args...)
	}
	name := c.FuncName
	if c.IsNative() {
		name = c.Native
	}
	ret, err := vm.callNamedSync(name, args)
	if err != nil {
		return err
	}
	vm.push(ret)
	return nil
}

// execNewObject implements `new_object`: constructor args pushed
// left-to-right, the class-name constant on top, operand1 = arg count.
func (vm *VM) execNewObject(f *Frame, instr bytecode.Instruction) error {
	classRef := vm.pop()
	argc := int(instr.Operand1())
	args := vm.popN(argc)

	class, ok := vm.Classes[classRef.Str]
	if !ok {
		return vm.raise("UndefinedClassError", "class not found: "+classRef.Str)
	}
	obj := value.NewObject(class)
	vm.GC.Alloc(obj, 128, "new_object:"+class.Name)

	if _, owner, found := class.ResolveMethod("__construct"); found {
		ctorArgs := append([]value.Value{{Tag: value.TagObject, Heap: obj}}, args...)
		if _, err := vm.callNamedSync(owner.Name+"::__construct", ctorArgs); err != nil {
			return err
		}
	}
	vm.push(value.Value{Tag: value.TagObject, Heap: obj})
	return nil
}

// execPropertyGet implements `property_get`: receiver then name
// constant on the stack; operand2 is this call site's inline-cache
// slot (spec §4.8 "Inline caches").
func (vm *VM) execPropertyGet(f *Frame, instr bytecode.Instruction) error {
	nameVal := vm.pop()
	recv := vm.pop()
	obj, ok := recv.Heap.(*value.Object)
	if !ok {
		return vm.raise("TypeError", "property_get on non-object value")
	}
	ic := vm.icSlots(f.Fn, int(instr.Operand2()))
	if ic.ClassSeen == obj.Class {
		ic.HitCount++
	} else {
		ic.ClassSeen = obj.Class
		ic.MissCount++
	}
	v, ok := obj.Props[nameVal.Str]
	if !ok {
		return vm.raise("UndefinedPropertyError", "undefined property "+nameVal.Str)
	}
	vm.push(v)
	return nil
}

// execPropertySet implements `property_set`: receiver, name constant,
// then value, in push order (receiver pushed first so it sits deepest).
func (vm *VM) execPropertySet(f *Frame, instr bytecode.Instruction) error {
	val := vm.pop()
	nameVal := vm.pop()
	recv := vm.pop()
	obj, ok := recv.Heap.(*value.Object)
	if !ok {
		return vm.raise("TypeError", "property_set on non-object value")
	}
	ic := vm.icSlots(f.Fn, int(instr.Operand2()))
	if ic.ClassSeen == obj.Class {
		ic.HitCount++
	} else {
		ic.ClassSeen = obj.Class
		ic.MissCount++
	}
	obj.Props[nameVal.Str] = val
	return nil
}

// execMethodCall implements `method_call`: receiver then call args
// pushed left-to-right, then the method-name constant, operand1 = the
// count of (receiver + args) pushed, operand2 = inline-cache slot.
func (vm *VM) execMethodCall(f *Frame, instr bytecode.Instruction) error {
	nameVal := vm.pop()
	total := int(instr.Operand1())
	vals := vm.popN(total)
	recv, callArgs := vals[0], vals[1:]

	obj, ok := recv.Heap.(*value.Object)
	if !ok {
		return vm.raise("TypeError", "method_call on non-object value")
	}

	ic := vm.icSlots(f.Fn, int(instr.Operand2()))
	var owner *value.Class
	if ic.ClassSeen == obj.Class && ic.HasMethod {
		ic.HitCount++
		owner = ic.ClassSeen
	} else {
		_, resolved, found := obj.Class.ResolveMethod(nameVal.Str)
		if !found {
			return vm.raise("UndefinedMethodError", "undefined method "+nameVal.Str)
		}
		owner = resolved
		ic.ClassSeen = obj.Class
		// The hit path uses the cached class as the method's owner, so
		// only a method defined on the receiver's own class is cached.
		ic.HasMethod = resolved == obj.Class
		ic.MissCount++
	}

	qualified := owner.Name + "::" + nameVal.Str
	args := append([]value.Value{recv}, callArgs...)
	ret, err := vm.callNamedSync(qualified, args)
	if err != nil {
		return err
	}
	vm.push(ret)
	return nil
}
