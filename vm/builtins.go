package vm

import (
	"fmt"
	"os"
)

// builtinFn is a builtin implemented in Go rather than compiled bytecode.
// It receives already-evaluated arguments and returns a single Value (the
// adapted shape of the teacher's hardware-device registry: a name-keyed
// table of handlers, but invoked synchronously in-process instead of over
// a channel to a goroutine, since this VM is single-threaded by design).
type builtinFn func(vm *VM, args []Value) (Value, error)

// registerBuiltins builds the name->handler table and publishes each
// handler as a global TagBuiltin value, so ordinary call bytecode (CALL,
// CALLG) reaches it exactly like any compiled lambda.
func (vm *VM) registerBuiltins() {
	vm.builtins = map[string]builtinFn{
		"pr":        builtinPr,
		"prn":       builtinPrn,
		"dasm":      builtinDasm,
		"load":      builtinLoad,
		"vec-slice": builtinVecSlice,
		"vec->list": builtinVecToList,
		"get-prop":  builtinGetProp,
		"set-prop":  builtinSetProp,
	}
	names := make([]string, 0, len(vm.builtins))
	for name := range vm.builtins {
		names = append(names, name)
	}
	// Stable order (alphabetical) so builtin indices are deterministic
	// across runs, which matters for reproducible disassembly output.
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}
	vm.builtinList = names
	for idx, name := range names {
		sym := vm.interner.Intern(name)
		vm.globals.setGlobal(sym, Handle(TagBuiltin, int64(idx)))
	}
}

func builtinPr(vm *VM, args []Value) (Value, error) {
	for _, a := range args {
		fmt.Fprint(os.Stdout, vm.stringOf(a))
	}
	if len(args) == 0 {
		return Nil, nil
	}
	return args[len(args)-1], nil
}

func builtinPrn(vm *VM, args []Value) (Value, error) {
	v, err := builtinPr(vm, args)
	fmt.Fprintln(os.Stdout)
	return v, err
}

func builtinDasm(vm *VM, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, errArity
	}
	chunk, _, err := resolveCallable(vm, args[0])
	if err != nil {
		return Value{}, err
	}
	h := vm.heap.allocString(vm.disassemble(chunk))
	return Handle(TagString, h), nil
}

func builtinLoad(vm *VM, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, errArity
	}
	path := vm.stringOf(args[0])
	return vm.LoadFile(path)
}

func builtinVecSlice(vm *VM, args []Value) (Value, error) {
	if len(args) != 3 {
		return Value{}, errArity
	}
	if args[0].Tag != TagVector {
		return Value{}, errWrongType
	}
	vec := vm.heap.getVector(args[0].I)
	start, end := int(args[1].AsInt()), int(args[2].AsInt())
	if start < 0 || end > len(vec.Items) || start > end {
		return Value{}, errWrongType
	}
	items := append([]Value(nil), vec.Items[start:end]...)
	return Handle(TagVector, vm.heap.allocVector(items)), nil
}

func builtinVecToList(vm *VM, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Tag != TagVector {
		return Value{}, errArity
	}
	vec := vm.heap.getVector(args[0].I)
	result := Nil
	for i := len(vec.Items) - 1; i >= 0; i-- {
		h := vm.heap.allocPair(vec.Items[i], result)
		result = Handle(TagPair, h)
	}
	return result, nil
}

func builtinGetProp(vm *VM, args []Value) (Value, error) {
	if len(args) != 2 || args[1].Tag != TagKeyword {
		return Value{}, errArity
	}
	v, ok := vm.heap.getProperty(args[0].Tag, args[0].I, int32(args[1].I))
	if !ok {
		return Nil, nil
	}
	return v, nil
}

func builtinSetProp(vm *VM, args []Value) (Value, error) {
	if len(args) != 3 || args[1].Tag != TagKeyword {
		return Value{}, errArity
	}
	vm.heap.setProperty(args[0].Tag, args[0].I, int32(args[1].I), args[2])
	return args[0], nil
}
