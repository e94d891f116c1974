package vm

import (
	"fmt"
)

// execute runs the call stack to completion. A CALL/CALLG/CALLM pushes a
// new frame; TCALL/TCALLG replace the top frame in place (this is the tail
// call optimization — no stack growth); TCALLM just rewinds pc to 0 since
// its argument shuffle already happened in-register. RET ends the whole
// run; SRET pops one frame and, if the stack isn't empty, hands the value
// to the caller's result slot.
//
// On any runtime error, vm.lastErrorFrame is left pointing at the frame and
// instruction that failed, for the driver to retrieve via LastErrorFrame
// (spec §4.6's "request an error-frame from the VM").
func (vm *VM) execute(stack []*frame) (result Value, err error) {
	var curFrame *frame
	var curPC int
	defer func() {
		if r := recover(); r != nil {
			result = Value{}
			err = fmt.Errorf("%w: %v", errWrongType, r)
		}
		if err != nil && curFrame != nil {
			vm.lastErrorFrame = &ErrorFrame{
				Chunk: curFrame.chunk,
				PC:    curPC,
				Line:  curFrame.chunk.FirstLine,
				Regs:  append([]Value(nil), curFrame.regs...),
			}
		} else if err == nil {
			vm.lastErrorFrame = nil
		}
	}()

	for {
		f := stack[len(stack)-1]
		curFrame = f
		curPC = f.pc
		if f.pc >= len(f.chunk.Code) {
			return Value{}, errProgramFinished
		}
		d := decodeAt(f.chunk.Code, f.pc)
		f.pc += d.Len

		switch d.Op {
		case OpRet:
			return f.regs[0], nil

		case OpSret:
			val := f.regs[d.A]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return val, nil
			}
			caller := stack[len(stack)-1]
			caller.regs[f.resultSlot] = val

		case OpCall:
			callee := f.regs[d.A]
			argc, resultSlot := int(d.B), int(d.C)
			args := append([]Value(nil), f.regs[resultSlot+1:resultSlot+1+argc]...)
			v, builtinErr, handled, err := vm.tryCallBuiltin(callee, args)
			if err != nil {
				return Value{}, err
			}
			if handled {
				if builtinErr != nil {
					return Value{}, builtinErr
				}
				f.regs[resultSlot] = v
				continue
			}
			chunk, captures, err := resolveCallable(vm, callee)
			if err != nil {
				return Value{}, err
			}
			stack = append(stack, newFrameFor(chunk, args, captures, resultSlot))

		case OpCallg:
			callee := vm.globals.getGlobal(int(d.A))
			argc, resultSlot := int(d.B), int(d.C)
			args := append([]Value(nil), f.regs[resultSlot+1:resultSlot+1+argc]...)
			v, builtinErr, handled, err := vm.tryCallBuiltin(callee, args)
			if err != nil {
				return Value{}, err
			}
			if handled {
				if builtinErr != nil {
					return Value{}, builtinErr
				}
				f.regs[resultSlot] = v
				continue
			}
			chunk, captures, err := resolveCallable(vm, callee)
			if err != nil {
				return Value{}, err
			}
			stack = append(stack, newFrameFor(chunk, args, captures, resultSlot))

		case OpCallm:
			argc, resultSlot := int(d.A), int(d.B)
			args := append([]Value(nil), f.regs[resultSlot+1:resultSlot+1+argc]...)
			stack = append(stack, newFrameFor(f.chunk, args, f.captures, resultSlot))

		case OpTcall:
			callee := f.regs[d.A]
			argc := int(d.B)
			args := append([]Value(nil), f.regs[1:1+argc]...)
			chunk, captures, err := resolveCallable(vm, callee)
			if err != nil {
				return Value{}, err
			}
			stack[len(stack)-1] = newFrameFor(chunk, args, captures, f.resultSlot)

		case OpTcallg:
			callee := vm.globals.getGlobal(int(d.A))
			argc := int(d.B)
			args := append([]Value(nil), f.regs[1:1+argc]...)
			chunk, captures, err := resolveCallable(vm, callee)
			if err != nil {
				return Value{}, err
			}
			stack[len(stack)-1] = newFrameFor(chunk, args, captures, f.resultSlot)

		case OpTcallm:
			f.pc = 0

		case OpClose:
			lambdaVal := f.regs[d.A]
			lambda := vm.heap.getLambda(lambdaVal.I)
			capVals := make([]Value, len(lambda.Chunk.Captures))
			for i, outerSlot := range lambda.Chunk.Captures {
				capVals[i] = f.regs[outerSlot+1]
			}
			ch := vm.heap.allocClosure(&Closure{Lambda: lambda, Capture: capVals})
			f.regs[d.B] = Handle(TagClosure, ch)

		default:
			if err := vm.execSimple(f, d); err != nil {
				return Value{}, err
			}
		}
	}
}

// tryCallBuiltin dispatches callee if it's a TagBuiltin value; handled is
// false for anything else so the caller falls through to the ordinary
// chunk-based call path.
func (vm *VM) tryCallBuiltin(callee Value, args []Value) (v Value, builtinErr error, handled bool, err error) {
	if callee.Tag != TagBuiltin {
		return Value{}, nil, false, nil
	}
	if callee.I < 0 || int(callee.I) >= len(vm.builtinList) {
		return Value{}, nil, true, errNotCallable
	}
	fn := vm.builtins[vm.builtinList[callee.I]]
	v, builtinErr = fn(vm, args)
	return v, builtinErr, true, nil
}

// execSimple handles every opcode that never touches the call stack:
// moves, immediates, arithmetic, comparisons, pairs, vectors, globals.
func (vm *VM) execSimple(f *frame, d DecodedInstr) error {
	switch d.Op {
	case OpNop:
	case OpMov:
		f.regs[d.A] = f.regs[d.B]
	case OpSet:
		f.regs[d.A] = f.regs[d.B]
	case OpDef:
		ref := f.regs[d.A]
		vm.globals.setGlobalAtSlot(int(ref.I), f.regs[d.B])
		f.regs[d.A] = f.regs[d.B]
	case OpRefi:
		f.regs[d.A] = vm.globals.getGlobal(int(d.B))
	case OpGref:
		f.regs[d.A] = Value{Tag: TagGlobal, I: int64(d.B)}
	case OpConst:
		f.regs[d.A] = f.chunk.Constants[d.B]

	case OpMregt:
		f.regs[d.A] = True
	case OpMregf:
		f.regs[d.A] = False
	case OpMregn:
		f.regs[d.A] = Nil
	case OpMregc:
		f.regs[d.A] = f.chunk.Constants[d.B]
	case OpMregb:
		f.regs[d.A] = Byte(byte(d.B))
	case OpMregi:
		f.regs[d.A] = Int(int64(int16(d.B)))
	case OpMregu:
		f.regs[d.A] = Uint(uint64(d.B))

	case OpAddm:
		return arithOp(f, d, func(a, b Value) Value { return numAdd(a, b) })
	case OpSubm:
		return arithOp(f, d, func(a, b Value) Value { return numSub(a, b) })
	case OpMulm:
		return arithOp(f, d, func(a, b Value) Value { return numMul(a, b) })
	case OpDivm:
		return arithOpErr(f, d, numDiv)
	case OpInc:
		f.regs[d.A] = numAdd(f.regs[d.A], Int(int64(int16(d.B))))
	case OpDec:
		f.regs[d.A] = numSub(f.regs[d.A], Int(int64(int16(d.B))))

	case OpNumeq:
		f.regs[d.A] = Bool(numCompareRange(f, d, func(c int) bool { return c == 0 }))
	case OpNumneq:
		f.regs[d.A] = Bool(numCompareRange(f, d, func(c int) bool { return c != 0 }))
	case OpNumlt:
		f.regs[d.A] = Bool(numCompareRange(f, d, func(c int) bool { return c < 0 }))
	case OpNumlte:
		f.regs[d.A] = Bool(numCompareRange(f, d, func(c int) bool { return c <= 0 }))
	case OpNumgt:
		f.regs[d.A] = Bool(numCompareRange(f, d, func(c int) bool { return c > 0 }))
	case OpNumgte:
		f.regs[d.A] = Bool(numCompareRange(f, d, func(c int) bool { return c >= 0 }))
	case OpEq:
		f.regs[d.A] = Bool(ValuesEqual(f.regs[d.B], f.regs[d.C]))
	case OpEqual:
		f.regs[d.A] = Bool(valuesEqualDeep(vm, f.regs[d.B], f.regs[d.C]))

	case OpType:
		f.regs[d.A] = StringConst(vm.interner.Intern(f.regs[d.B].Tag.typeName()))
	case OpNot:
		f.regs[d.A] = Bool(!f.regs[d.B].IsTruthy())
	case OpErr:
		f.regs[d.A] = f.regs[d.C] // the value itself; kw carried in regs[d.B] for callers that print it
		return &runtimeErrValue{kw: f.regs[d.B], msg: f.regs[d.C]}

	case OpStr:
		f.regs[d.A] = vm.rangeToStr(f, d)
	case OpList:
		f.regs[d.A] = vm.rangeToList(f, d)
	case OpApnd:
		f.regs[d.A] = vm.listAppend(f.regs[d.B], f.regs[d.C])
	case OpCons:
		h := vm.heap.allocPair(f.regs[d.B], f.regs[d.C])
		f.regs[d.A] = Handle(TagPair, h)
	case OpCar:
		f.regs[d.A] = vm.heap.getPair(f.regs[d.B].I).Car
	case OpCdr:
		f.regs[d.A] = vm.heap.getPair(f.regs[d.B].I).Cdr
	case OpXar:
		vm.heap.getPair(f.regs[d.A].I).Car = f.regs[d.B]
	case OpXdr:
		vm.heap.getPair(f.regs[d.A].I).Cdr = f.regs[d.B]

	case OpVec:
		f.regs[d.A] = vm.rangeToVec(f, d)
	case OpVecmk:
		n := f.regs[d.B].AsInt()
		f.regs[d.A] = Handle(TagVector, vm.heap.allocVector(make([]Value, n)))
	case OpVecmkd:
		n := f.regs[d.B].AsInt()
		items := make([]Value, n)
		fill := f.regs[d.C]
		for i := range items {
			items[i] = fill
		}
		f.regs[d.A] = Handle(TagVector, vm.heap.allocVector(items))
	case OpVecpsh:
		vec := vm.heap.getVector(f.regs[d.A].I)
		vec.Items = append(vec.Items, f.regs[d.B])
	case OpVecpop:
		vec := vm.heap.getVector(f.regs[d.B].I)
		if len(vec.Items) == 0 {
			f.regs[d.A] = Nil
		} else {
			f.regs[d.A] = vec.Items[len(vec.Items)-1]
			vec.Items = vec.Items[:len(vec.Items)-1]
		}
	case OpVecnth:
		vec := vm.heap.getVector(f.regs[d.B].I)
		idx := f.regs[d.C].AsInt()
		if idx < 0 || int(idx) >= len(vec.Items) {
			return errWrongType
		}
		f.regs[d.A] = vec.Items[idx]
	case OpVecsth:
		vec := vm.heap.getVector(f.regs[d.A].I)
		idx := f.regs[d.B].AsInt()
		if idx < 0 || int(idx) >= len(vec.Items) {
			return errWrongType
		}
		vec.Items[idx] = f.regs[d.C]
	case OpVeclen:
		vec := vm.heap.getVector(f.regs[d.B].I)
		f.regs[d.A] = Int(int64(len(vec.Items)))
	case OpVecclr:
		vec := vm.heap.getVector(f.regs[d.A].I)
		vec.Items = vec.Items[:0]

	case OpJmpf:
		f.pc += int(d.A)
	case OpJmpff:
		if !f.regs[d.A].IsTruthy() {
			f.pc += int(d.B)
		}
	case OpJmpft:
		if f.regs[d.A].IsTruthy() {
			f.pc += int(d.B)
		}
	case OpJmpfnu:
		if f.regs[d.A].Tag != TagUndefined {
			f.pc += int(d.B)
		}

	default:
		return errUnknownOpcode
	}
	return nil
}

// runtimeErrValue is what (err ...) raises; it satisfies error so it
// unwinds execute's loop like any other runtime failure, but driver code
// can type-assert it to recover the structured keyword+message pair.
type runtimeErrValue struct {
	kw  Value
	msg Value
}

func (e *runtimeErrValue) Error() string {
	return fmt.Sprintf("error: %v", e.msg)
}
