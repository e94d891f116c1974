package vm

import (
	"strconv"
	"strings"
)

// displayValue renders v the way the reader could read back (mostly):
// strings quoted, symbols/keywords bare, lists and vectors parenthesized.
func (vm *VM) displayValue(v Value) string {
	var sb strings.Builder
	vm.writeValue(&sb, v)
	return sb.String()
}

// Display is displayValue's exported form, for the REPL and driver.
func (vm *VM) Display(v Value) string { return vm.displayValue(v) }

// Disassemble is disassemble's exported form, for the REPL's -debug flag.
func (vm *VM) Disassemble(chunk *Chunk) string { return vm.disassemble(chunk) }

func (vm *VM) writeValue(sb *strings.Builder, v Value) {
	switch v.Tag {
	case TagBool:
		if v.I != 0 {
			sb.WriteString("#t")
		} else {
			sb.WriteString("#f")
		}
	case TagNil:
		sb.WriteString("nil")
	case TagUndefined:
		sb.WriteString("#<undefined>")
	case TagInt:
		sb.WriteString(strconv.FormatInt(v.I, 10))
	case TagUint:
		sb.WriteString(strconv.FormatUint(uint64(v.I), 10))
	case TagByte:
		sb.WriteString("0x")
		sb.WriteString(strconv.FormatInt(v.I, 16))
	case TagFloat:
		sb.WriteString(strconv.FormatFloat(v.F, 'g', -1, 64))
	case TagCodepoint:
		sb.WriteRune(rune(v.I))
	case TagCharCluster:
		sb.WriteString(v.Inline)
	case TagCharClusterLong:
		sb.WriteString(vm.heap.getString(v.I))
	case TagSymbol:
		sb.WriteString(vm.interner.GetInterned(int32(v.I)))
	case TagKeyword:
		sb.WriteByte(':')
		sb.WriteString(vm.interner.GetInterned(int32(v.I)))
	case TagStringConst:
		sb.WriteByte('"')
		sb.WriteString(vm.interner.GetInterned(int32(v.I)))
		sb.WriteByte('"')
	case TagString:
		sb.WriteByte('"')
		sb.WriteString(vm.heap.getString(v.I))
		sb.WriteByte('"')
	case TagPair:
		vm.writePair(sb, v)
	case TagVector:
		sb.WriteString("#(")
		vec := vm.heap.getVector(v.I)
		for i, item := range vec.Items {
			if i > 0 {
				sb.WriteByte(' ')
			}
			vm.writeValue(sb, item)
		}
		sb.WriteByte(')')
	case TagLambda:
		sb.WriteString("#<lambda>")
	case TagClosure:
		sb.WriteString("#<closure>")
	case TagContinuation:
		sb.WriteString("#<continuation>")
	case TagCallFrame:
		sb.WriteString("#<call-frame>")
	case TagBuiltin:
		sb.WriteString("#<builtin>")
	case TagGlobal:
		sb.WriteString("#<global>")
	default:
		sb.WriteString("#<?>")
	}
}

func (vm *VM) writePair(sb *strings.Builder, v Value) {
	sb.WriteByte('(')
	first := true
	for v.Tag == TagPair {
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		p := vm.heap.getPair(v.I)
		vm.writeValue(sb, p.Car)
		v = p.Cdr
	}
	if v.Tag != TagNil {
		sb.WriteString(" . ")
		vm.writeValue(sb, v)
	}
	sb.WriteByte(')')
}

// disassemble renders a chunk's code as one opcode-plus-operands line per
// instruction, the dasm builtin's payload.
func (vm *VM) disassemble(chunk *Chunk) string {
	var sb strings.Builder
	pc := 0
	for pc < len(chunk.Code) {
		d := decodeAt(chunk.Code, pc)
		sb.WriteString(strconv.Itoa(pc))
		sb.WriteByte('\t')
		sb.WriteString(d.Op.String())
		n := arity(d.Op)
		if n >= 1 {
			sb.WriteByte(' ')
			sb.WriteString(strconv.Itoa(int(d.A)))
		}
		if n >= 2 {
			sb.WriteByte(' ')
			sb.WriteString(strconv.Itoa(int(d.B)))
		}
		if n >= 3 {
			sb.WriteByte(' ')
			sb.WriteString(strconv.Itoa(int(d.C)))
		}
		sb.WriteByte('\n')
		pc += d.Len
	}
	return sb.String()
}
