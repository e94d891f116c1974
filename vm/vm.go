package vm

import "fmt"

// VM owns every piece of shared, single-threaded state the compiler's
// contract in §6 assumes: the interner, the global table, the heap, and
// the specials snapshot every CompileState is built from.
type VM struct {
	interner *Interner
	globals  *globalTable
	heap     *heap
	specials *Specials

	builtins    map[string]builtinFn
	builtinList []string

	lastErrorFrame *ErrorFrame
}

func NewVM() *VM {
	vm := &VM{
		interner: NewInterner(),
		globals:  newGlobalTable(),
		heap:     newHeap(),
	}
	vm.specials = NewSpecials(vm.interner)
	vm.registerBuiltins()
	return vm
}

// frame is one register window, the unit the call/return opcodes push and
// pop. Tail calls to a different chunk replace the top frame in place;
// TCALLM (recur/this-fn in tail position) doesn't even allocate a new
// frame, it just rewinds pc to 0.
type frame struct {
	chunk      *Chunk
	regs       []Value
	pc         int
	resultSlot int
	captures   []Value
}

func newFrameFor(chunk *Chunk, args []Value, captures []Value, resultSlot int) *frame {
	size := chunk.InputRegs + chunk.ExtraRegs
	if size < 1 {
		size = 1
	}
	regs := make([]Value, size)
	copy(regs[1:], args)
	if len(captures) > 0 {
		base := 1 + chunk.Args + chunk.OptArgs
		if chunk.Rest {
			base++
		}
		copy(regs[base:], captures)
	}
	return &frame{chunk: chunk, regs: regs, resultSlot: resultSlot, captures: captures}
}

func resolveCallable(vm *VM, v Value) (*Chunk, []Value, error) {
	switch v.Tag {
	case TagLambda:
		return vm.heap.getLambda(v.I).Chunk, nil, nil
	case TagClosure:
		c := vm.heap.getClosure(v.I)
		return c.Lambda.Chunk, c.Capture, nil
	case TagBuiltin:
		return nil, nil, errNotCallable // builtins are invoked directly by compileCall's fallback, never through resolveCallable
	default:
		return nil, nil, errNotCallable
	}
}

// Run executes chunk (a freshly-compiled top-level expression's code,
// which always ends in RET) to completion and returns its value.
func (vm *VM) Run(chunk *Chunk) (Value, error) {
	f := newFrameFor(chunk, nil, nil, 0)
	return vm.execute([]*frame{f})
}

// doCall runs chunk synchronously on args in a fresh call stack and returns
// its value. Nothing in the package calls it; macro expansion re-enters the
// VM through the compiler's expandMacro. This is plain call-stack
// re-entry — no coroutine state is kept.
func (vm *VM) doCall(chunk *Chunk, args []Value) (Value, error) {
	f := newFrameFor(chunk, args, nil, 0)
	return vm.execute([]*frame{f})
}

// expandMacro invokes a macro value with unevaluated argument expressions
// and returns the expansion produced by the macro body.
func (vm *VM) expandMacro(macroVal Value, argExprs []Value) (Value, error) {
	chunk, captures, err := resolveCallable(vm, macroVal)
	if err != nil {
		return Value{}, err
	}
	f := newFrameFor(chunk, argExprs, captures, 0)
	return vm.execute([]*frame{f})
}

func isMacroValue(vm *VM, v Value) bool {
	switch v.Tag {
	case TagLambda:
		return vm.heap.getLambda(v.I).Chunk.IsMacro
	case TagClosure:
		return vm.heap.getClosure(v.I).Lambda.Chunk.IsMacro
	}
	return false
}

// formatInstructionStr mirrors the teacher's debug-output helper: renders
// the opcode at pc plus a caller-supplied suffix, used by error reporting
// and by the disassembler builtin.
func formatInstructionStr(chunk *Chunk, pc int, suffix string) string {
	if pc < 0 || pc >= len(chunk.Code) {
		return suffix
	}
	d := decodeAt(chunk.Code, pc)
	return fmt.Sprintf("%s %s", d.Op.String(), suffix)
}
