package vm

import "os"

// LoadFile reads path, compiles and runs each top-level form in sequence,
// and returns the last result. A failed expression stops loading and
// surfaces the error (§7: "a failed expression during load stops loading").
func (vm *VM) LoadFile(path string) (Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Value{}, err
	}
	exprs, err := ReadAll(vm, path, string(data))
	if err != nil {
		return Value{}, err
	}
	result := Nil
	for _, exp := range exprs {
		chunk, err := Compile(vm, path, 0, exp)
		if err != nil {
			return Value{}, err
		}
		result, err = withGCPausedValue(func() (Value, error) { return vm.Run(chunk) })
		if err != nil {
			return Value{}, err
		}
	}
	return result, nil
}

// withGCPausedValue adapts withGCPaused's error-only signature to a
// fn that also produces a Value, the shape every load/REPL call site needs.
func withGCPausedValue(fn func() (Value, error)) (Value, error) {
	var result Value
	err := withGCPaused(func() error {
		v, err := fn()
		result = v
		return err
	})
	return result, err
}
