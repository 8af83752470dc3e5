package vm

import "sentra/internal/value"

// catchAllNames are the base "Throwable" names a bare `catch
// (Exception $e)`/`catch (Throwable $e)` is conventionally expected to
// match regardless of the concrete runtime error kind.
var catchAllNames = map[string]bool{"Exception": true, "Error": true, "Throwable": true}

// unwind looks for a handler for err in the current frame's exception
// table (spec §4.8 "Exception unwind"). It never walks across frames:
// every call (call/method_call/new_object's constructor) executes via
// callSync's isolated frame stack, so an exception uncaught in the
// callee simply returns as a Go error from callSync, and the caller's
// own dispatch loop runs unwind again against ITS frame — the call
// stack itself (Go's, not the VM's) does the cross-frame walk.
func (vm *VM) unwind(err error) bool {
	if _, overflow := err.(StackOverflow); overflow {
		return false
	}
	f := vm.curFrame()
	thrown, kind := exceptionValueFromErr(err)

	entry, ok := f.Fn.HandlerFor(f.PC-1, func(caught string) bool {
		if caught == "" || catchAllNames[caught] {
			return true
		}
		return classMatches(thrown, kind, caught)
	})
	if !ok {
		return false
	}
	f.PC = entry.HandlerPC
	vm.currentException = thrown
	vm.hasException = true
	// Drop any partially-built expression operands left on the stack by
	// the aborted instruction; the handler starts from a clean stack.
	vm.stack = vm.stack[:0]
	return true
}

func exceptionValueFromErr(err error) (value.Value, string) {
	if re, ok := err.(*RuntimeError); ok {
		return re.Value, re.Kind
	}
	return value.Value{Tag: value.TagHeapString, Str: err.Error()}, "Error"
}

func classMatches(thrown value.Value, kind, caught string) bool {
	if thrown.Tag == value.TagObject {
		if obj, ok := thrown.Heap.(*value.Object); ok {
			for c := obj.Class; c != nil; c = c.Parent {
				if c.Name == caught {
					return true
				}
			}
			return false
		}
	}
	return kind == caught
}
