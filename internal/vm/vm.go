// Package vm implements the register-... no: stack-and-locals bytecode
// VM of spec §4.8: frame stack, dispatch loop, inline caches, type
// feedback, calling convention, and exception unwinding.
//
// Grounded on the teacher's internal/vmregister/vm.go (`RegisterVM`,
// `CallFrame`, the `frames`/`frameTop` array-of-frames convention) and
// internal/vmregister/bytecode.go's `InlineCache`/`PolymorphicIC`/
// `IsMonomorphic` — the closest correspondence in the whole pack,
// adapted from the teacher's register file model onto this repo's
// stack-plus-locals bytecode (internal/bytecode) and discriminated
// Value (internal/value) instead of NaN-boxing.
package vm

import (
	"fmt"

	"sentra/internal/bytecode"
	"sentra/internal/gc"
	"sentra/internal/value"
)

// InlineCache memoizes one property_get/property_set/method_call call
// site (spec §4.8 "Inline caches"): the class last seen, whether a
// method_call resolved on that class, and hit/miss counters driving
// monomorphic detection.
type InlineCache struct {
	ClassSeen *value.Class
	Method    value.Method
	HasMethod bool
	HitCount  uint32
	MissCount uint32
}

func (ic *InlineCache) IsMonomorphic() bool {
	total := ic.HitCount + ic.MissCount
	return total >= 10 && (ic.HitCount*100)/total > 95
}

// Invalidate clears a cache slot (spec §4.8 "A slot is invalidated when
// a class gains or loses the named member").
func (ic *InlineCache) Invalidate() { *ic = InlineCache{} }

// TypeFeedback counts int and float operand samples for one numeric
// instruction site (spec §4.8 "Type feedback"). The dispatch loop does
// not record samples into it, and internal/iropt does not read it.
type TypeFeedback struct {
	IntSamples   uint32
	FloatSamples uint32
}

func (tf *TypeFeedback) Record(v value.Value) {
	switch v.Tag {
	case value.TagInt:
		tf.IntSamples++
	case value.TagFloat:
		tf.FloatSamples++
	}
}

// NativeFunc is a builtin callable registered in the VM's name table
// (spec §4.8 "Initialization ... register builtin callables").
type NativeFunc func(vm *VM, args []value.Value) (value.Value, error)

// Frame is one call-stack frame (spec §4.8 "Frame layout").
type Frame struct {
	Fn       *bytecode.CompiledFunction
	PC       int
	Locals   []value.Value
	CallerStackBase int
	Scope    *value.Class // enclosing class, for visibility checks
}

// RuntimeError is a thrown value.Value wrapped as a Go error so it can
// propagate through native-function boundaries (spec §7 "the VM treats
// runtime errors as throwable exceptions").
type RuntimeError struct {
	Kind  string
	Value value.Value
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, value.ToDisplayString(e.Value))
}

func NewRuntimeError(kind, msg string) *RuntimeError {
	return &RuntimeError{Kind: kind, Value: value.Value{Tag: value.TagHeapString, Str: msg}}
}

// StackOverflow is raised by the call path and, per spec §7, bypasses
// try/catch entirely.
type StackOverflow struct{}

func (StackOverflow) Error() string { return "stack-overflow" }

const maxCallDepth = 2048

// VM executes CompiledFunctions to completion (spec §4.8).
type VM struct {
	Functions map[string]*bytecode.CompiledFunction
	Natives   map[string]NativeFunc
	Classes   map[string]*value.Class
	Globals   map[string]value.Value

	GC *gc.Collector

	stack  []value.Value
	frames []*Frame

	// inlineCaches is keyed by (function, slot index); spec §4.8 "The
	// VM owns it" — one array per compiled function, indexed by the
	// bytecode operand2 slot index.
	inlineCaches map[*bytecode.CompiledFunction][]InlineCache
	typeFeedback map[*bytecode.CompiledFunction][]TypeFeedback

	currentException value.Value
	hasException     bool

	abortCheck func() bool // embedder-injected periodic abort flag (spec §5 "Cancellation")

	opStepCounter int
	gcRoots       []gc.Object

	// returned/returnValue are set by the ret/ret_null handlers in
	// dispatch.go and consumed by run() right after, which is the only
	// place that knows how to pop a frame and splice the value into the
	// caller's stack.
	returned    bool
	returnValue value.Value
}

func New() *VM {
	vm := &VM{
		Functions:    make(map[string]*bytecode.CompiledFunction),
		Natives:      make(map[string]NativeFunc),
		Classes:      make(map[string]*value.Class),
		Globals:      make(map[string]value.Value),
		GC:           gc.NewCollector(),
		inlineCaches: make(map[*bytecode.CompiledFunction][]InlineCache),
		typeFeedback: make(map[*bytecode.CompiledFunction][]TypeFeedback),
	}
	registerBuiltins(vm)
	return vm
}

func (vm *VM) SetAbortCheck(f func() bool) { vm.abortCheck = f }

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() value.Value {
	n := len(vm.stack)
	v := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return v
}

func (vm *VM) peek() value.Value { return vm.stack[len(vm.stack)-1] }

func (vm *VM) icSlots(fn *bytecode.CompiledFunction, slot int) *InlineCache {
	caches := vm.inlineCaches[fn]
	if len(caches) <= slot {
		grown := make([]InlineCache, slot+1)
		copy(grown, caches)
		caches = grown
		vm.inlineCaches[fn] = caches
	}
	return &vm.inlineCaches[fn][slot]
}

func (vm *VM) feedback(fn *bytecode.CompiledFunction, pc int) *TypeFeedback {
	tf := vm.typeFeedback[fn]
	if len(tf) <= pc {
		grown := make([]TypeFeedback, pc+1)
		copy(grown, tf)
		tf = grown
		vm.typeFeedback[fn] = tf
	}
	return &vm.typeFeedback[fn][pc]
}

// Execute runs fn to completion with the given arguments (spec §4.8
// "Execute a compiled function to completion, returning a Value or
// propagating a thrown exception").
func (vm *VM) Execute(fn *bytecode.CompiledFunction, args []value.Value) (value.Value, error) {
	frame := vm.pushFrame(fn, args)
	if frame == nil {
		return value.Null(), StackOverflow{}
	}
	return vm.run()
}

func (vm *VM) pushFrame(fn *bytecode.CompiledFunction, args []value.Value) *Frame {
	if len(vm.frames) >= maxCallDepth {
		return nil
	}
	locals := make([]value.Value, fn.LocalCount)
	for i := range locals {
		locals[i] = value.Null()
	}
	n := len(args)
	if n > fn.ArgCount && fn.Flags&bytecode.FlagVariadic == 0 {
		n = fn.ArgCount
	}
	copy(locals, args[:min(n, len(locals))])
	f := &Frame{Fn: fn, CallerStackBase: len(vm.stack)}
	f.Locals = locals
	vm.frames = append(vm.frames, f)
	return f
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (vm *VM) curFrame() *Frame { return vm.frames[len(vm.frames)-1] }

// run is the tight dispatch loop (spec §4.8 "Dispatch"). Each handler
// reads operands, pops/peeks/pushes on the evaluation stack, updates
// pc, and optionally updates feedback counters.
func (vm *VM) run() (value.Value, error) {
	for len(vm.frames) > 0 {
		f := vm.curFrame()
		if f.PC >= len(f.Fn.Code) {
			vm.frames = vm.frames[:len(vm.frames)-1]
			return value.Null(), nil
		}

		vm.opStepCounter++
		if vm.abortCheck != nil && vm.abortCheck() {
			return value.Null(), NewRuntimeError("aborted", "execution aborted by embedder")
		}
		// A major-cycle GC step may fire between opcodes, never
		// mid-opcode (spec §5 "Opcodes are the unit of interleaving").
		if vm.opStepCounter%256 == 0 && vm.GC.Eligible() {
			vm.GC.Step(64, vm.roots())
		}

		instr := f.Fn.Code[f.PC]
		op := instr.Op()
		f.PC++

		if err := vm.dispatch(f, instr, op); err != nil {
			if !vm.unwind(err) {
				return value.Null(), err
			}
			continue
		}
		if vm.returned {
			v := vm.returnValue
			vm.returned = false
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				return v, nil
			}
			vm.push(v)
		}
	}
	return value.Null(), nil
}

// returned/returnValue thread a pending return out of dispatch without
// needing dispatch itself to know about the frame stack's shape.
var _ = 0

func (vm *VM) roots() []gc.Object {
	var roots []gc.Object
	for _, v := range vm.stack {
		if v.IsHeap() && v.Heap != nil {
			roots = append(roots, v.Heap)
		}
	}
	for _, f := range vm.frames {
		for _, v := range f.Locals {
			if v.IsHeap() && v.Heap != nil {
				roots = append(roots, v.Heap)
			}
		}
	}
	for _, v := range vm.Globals {
		if v.IsHeap() && v.Heap != nil {
			roots = append(roots, v.Heap)
		}
	}
	return roots
}
