package vm

import (
	"fmt"
	"testing"
)

// assert fails the test with a formatted message when cond is false. It's
// the same small local helper the teacher's own test file used in place of
// a third-party assertion library.
func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

// mustCompileRun reads src as a sequence of top-level forms, compiles and
// runs each in turn against vm, and returns the last result. It mirrors
// VM.LoadFile's behavior but works from an in-memory string.
func mustCompileRun(t *testing.T, machine *VM, src string) Value {
	t.Helper()
	exprs, err := ReadAll(machine, "<test>", src)
	if err != nil {
		t.Fatalf("read %q: %v", src, err)
	}
	result := Nil
	for _, exp := range exprs {
		chunk, err := Compile(machine, "<test>", 1, exp)
		if err != nil {
			t.Fatalf("compile %q: %v", src, err)
		}
		result, err = machine.Run(chunk)
		if err != nil {
			t.Fatalf("run %q: %v", src, err)
		}
	}
	return result
}

func listElements(t *testing.T, machine *VM, v Value) []Value {
	t.Helper()
	var out []Value
	for v.Tag == TagPair {
		p := machine.heap.getPair(v.I)
		out = append(out, p.Car)
		v = p.Cdr
	}
	if v.Tag != TagNil {
		t.Fatalf("expected a proper list, found improper tail %v", v)
	}
	return out
}

func fmtValue(machine *VM, v Value) string {
	return fmt.Sprintf("%s(%d)", v.Tag.typeName(), v.I)
}
