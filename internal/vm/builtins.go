package vm

import (
	"fmt"
	"os"

	"sentra/internal/value"
)

// registerBuiltins wires the handful of builtin callables spec §4.8's
// "Initialization" step requires the VM to own directly (echo/print and
// the small reflective is_*/count/isset family); richer standard
// library behavior is explicitly out of scope (spec Non-goals).
func registerBuiltins(vm *VM) {
	vm.Natives["echo"] = func(vm *VM, args []value.Value) (value.Value, error) {
		for _, a := range args {
			fmt.Fprint(os.Stdout, value.ToDisplayString(a))
		}
		return value.Null(), nil
	}
	vm.Natives["print"] = func(vm *VM, args []value.Value) (value.Value, error) {
		for _, a := range args {
			fmt.Fprint(os.Stdout, value.ToDisplayString(a))
		}
		return value.Int(1), nil
	}
	vm.Natives["strlen"] = func(vm *VM, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Null(), vm.raise("ArgumentCountError", "strlen expects 1 argument")
		}
		return value.Int(int64(len(value.ToDisplayString(args[0])))), nil
	}
	vm.Natives["count"] = func(vm *VM, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Null(), vm.raise("ArgumentCountError", "count expects 1 argument")
		}
		arr, ok := args[0].Heap.(*value.Array)
		if !ok {
			return value.Null(), vm.raise("TypeError", "count expects an array")
		}
		return value.Int(int64(arr.Len())), nil
	}
	vm.Natives["isset"] = func(vm *VM, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Bool(false), nil
		}
		return value.Bool(!args[0].IsNull()), nil
	}
	vm.Natives["is_null"] = func(vm *VM, args []value.Value) (value.Value, error) {
		return value.Bool(len(args) == 1 && args[0].IsNull()), nil
	}
	vm.Natives["is_int"] = func(vm *VM, args []value.Value) (value.Value, error) {
		return value.Bool(len(args) == 1 && args[0].Tag == value.TagInt), nil
	}
	vm.Natives["is_float"] = func(vm *VM, args []value.Value) (value.Value, error) {
		return value.Bool(len(args) == 1 && args[0].Tag == value.TagFloat), nil
	}
	vm.Natives["is_string"] = func(vm *VM, args []value.Value) (value.Value, error) {
		return value.Bool(len(args) == 1 && args[0].Tag == value.TagHeapString), nil
	}
	vm.Natives["is_array"] = func(vm *VM, args []value.Value) (value.Value, error) {
		return value.Bool(len(args) == 1 && args[0].Tag == value.TagArray), nil
	}
	vm.Natives["is_bool"] = func(vm *VM, args []value.Value) (value.Value, error) {
		return value.Bool(len(args) == 1 && args[0].Tag == value.TagBool), nil
	}
	vm.Natives["gettype"] = func(vm *VM, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Null(), vm.raise("ArgumentCountError", "gettype expects 1 argument")
		}
		return vm.newString(typeNameOf(args[0])), nil
	}
}
