package vm

import "testing"

func TestLastErrorFrameCapturedOnRuntimeError(t *testing.T) {
	machine := NewVM()
	exprs, err := ReadAll(machine, "<test>", "(car 5)")
	assert(t, err == nil, "unexpected read error: %v", err)
	chunk, err := Compile(machine, "<test>", 1, exprs[0])
	assert(t, err == nil, "unexpected compile error: %v", err)

	assert(t, machine.LastErrorFrame() == nil, "expected no error-frame before any run")

	_, err = machine.Run(chunk)
	assert(t, err != nil, "expected (car 5) to fail at runtime")

	frame := machine.LastErrorFrame()
	assert(t, frame != nil, "expected a captured error-frame after a runtime failure")
	assert(t, frame.Chunk == chunk, "expected the error-frame to reference the failing chunk")
	assert(t, len(frame.Regs) > 0, "expected the error-frame to carry a register snapshot")
	assert(t, frame.String() != "", "expected a non-empty rendered error-frame")
}

func TestLastErrorFrameClearedOnSuccessfulRun(t *testing.T) {
	machine := NewVM()
	exprs, err := ReadAll(machine, "<test>", "(car 5)")
	assert(t, err == nil, "unexpected read error: %v", err)
	chunk, err := Compile(machine, "<test>", 1, exprs[0])
	assert(t, err == nil, "unexpected compile error: %v", err)
	_, err = machine.Run(chunk)
	assert(t, err != nil, "expected a failing run first")
	assert(t, machine.LastErrorFrame() != nil, "expected an error-frame after the failing run")

	okExprs, err := ReadAll(machine, "<test>", "(+ 1 1)")
	assert(t, err == nil, "unexpected read error: %v", err)
	okChunk, err := Compile(machine, "<test>", 1, okExprs[0])
	assert(t, err == nil, "unexpected compile error: %v", err)
	_, err = machine.Run(okChunk)
	assert(t, err == nil, "unexpected error on a successful run: %v", err)
	assert(t, machine.LastErrorFrame() == nil, "expected the error-frame to clear after a successful run")
}
