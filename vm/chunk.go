package vm

import "encoding/binary"

// Chunk is the immutable artifact of compilation: bytecode plus constants
// plus register metadata. Append-only while a CompileState is building it;
// frozen once handed to the VM.
type Chunk struct {
	FileName string
	FirstLine int

	Code      []byte
	Constants []Value

	Args     int // required positional arguments
	OptArgs  int // optional positional arguments
	Rest     bool
	InputRegs int // symbols.len() + 1
	ExtraRegs int // max_regs - input_regs

	// Present only when this chunk came from a function/macro with a
	// named parameter list (debug aid, not required for execution).
	ArgNames []string

	// Present only if this chunk is destined to become a closure: ordered
	// outer-slot indices the VM reads at CLOSE time.
	Captures []int

	IsMacro bool
}

func NewChunk(fileName string, firstLine int) *Chunk {
	return &Chunk{FileName: fileName, FirstLine: firstLine}
}

func put16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func get16(b []byte) uint16    { return binary.LittleEndian.Uint16(b) }

// encode0 emits a bare opcode with no operands (RET, NOP, SRET-without-arg
// never occurs but kept for symmetry with the VM contract's encode0).
func (c *Chunk) encode0(op OpCode) int {
	pos := len(c.Code)
	c.Code = append(c.Code, byte(op))
	return pos
}

// encode1 emits opcode + one register/immediate operand.
func (c *Chunk) encode1(op OpCode, a uint16) int {
	pos := len(c.Code)
	buf := [3]byte{byte(op)}
	put16(buf[1:], a)
	c.Code = append(c.Code, buf[:]...)
	return pos
}

// encode2 emits opcode + two operands.
func (c *Chunk) encode2(op OpCode, a, b uint16) int {
	pos := len(c.Code)
	buf := [5]byte{byte(op)}
	put16(buf[1:3], a)
	put16(buf[3:5], b)
	c.Code = append(c.Code, buf[:]...)
	return pos
}

// encode3 emits opcode + three operands (range ops, CALL reg/argc/result).
func (c *Chunk) encode3(op OpCode, a, b, cc uint16) int {
	pos := len(c.Code)
	buf := [7]byte{byte(op)}
	put16(buf[1:3], a)
	put16(buf[3:5], b)
	put16(buf[5:7], cc)
	c.Code = append(c.Code, buf[:]...)
	return pos
}

// encodeRefi has the same shape as encode2 but is named distinctly because
// the second operand is a global slot index, not a register.
func (c *Chunk) encodeRefi(reg uint16, globalSlot uint16) int {
	return c.encode2(OpRefi, reg, globalSlot)
}

// encodeGref emits a reference to a global slot (for DEF/SET! targets)
// rather than its current value — distinct from encodeRefi, which loads
// the value itself.
func (c *Chunk) encodeGref(reg uint16, globalSlot uint16) int {
	return c.encode2(OpGref, reg, globalSlot)
}

func (c *Chunk) encodeCallg(globalSlot, argc, result uint16) int {
	return c.encode3(OpCallg, globalSlot, argc, result)
}

func (c *Chunk) encodeTcallg(globalSlot, argc uint16) int {
	return c.encode2(OpTcallg, globalSlot, argc)
}

// patchJump overwrites a previously-emitted forced-wide displacement
// operand at pos (the position returned by the encode call for a jump
// opcode — the displacement always occupies the last operand slot) with
// the distance from just after that instruction to len(c.Code).
func (c *Chunk) patchJump(pos int) {
	op := OpCode(c.Code[pos])
	n := arity(op)
	operandStart := pos + 1 + (n-1)*2
	instrEnd := pos + 1 + n*2
	target := len(c.Code) - instrEnd
	put16(c.Code[operandStart:operandStart+2], uint16(target))
}

// addConstant appends v and returns its index without deduplication; used
// internally by CompileState.constant, which owns the dedup map.
func (c *Chunk) addConstant(v Value) int {
	idx := len(c.Constants)
	c.Constants = append(c.Constants, v)
	return idx
}

// Decode reads the instruction at pc and returns it plus the byte length
// consumed, for the exec loop and the disassembler.
type DecodedInstr struct {
	Op      OpCode
	A, B, C uint16
	Len     int
}

func arity(op OpCode) int {
	switch op {
	case OpNop, OpRet:
		return 0
	case OpSret, OpJmpf, OpTcallm, OpVecclr, OpMregt, OpMregf, OpMregn:
		return 1
	case OpMov, OpSet, OpDef, OpRefi, OpGref, OpConst, OpMregc, OpMregb, OpMregi, OpMregu,
		OpInc, OpDec, OpType, OpNot, OpClose, OpJmpff, OpJmpft, OpJmpfnu, OpTcallg, OpTcall,
		OpCallm, OpCar, OpCdr, OpXar, OpXdr, OpVecpsh, OpVecpop, OpVeclen, OpVecmk:
		return 2
	case OpAddm, OpSubm, OpMulm, OpDivm, OpNumeq, OpNumneq, OpNumlt, OpNumlte, OpNumgt, OpNumgte,
		OpEq, OpEqual, OpCons, OpList, OpApnd, OpStr, OpVec, OpVecmkd, OpVecnth, OpVecsth,
		OpCall, OpCallg, OpErr:
		return 3
	default:
		return 0
	}
}

func decodeAt(code []byte, pc int) DecodedInstr {
	op := OpCode(code[pc])
	n := arity(op)
	d := DecodedInstr{Op: op, Len: 1 + n*2}
	switch n {
	case 1:
		d.A = get16(code[pc+1:])
	case 2:
		d.A = get16(code[pc+1:])
		d.B = get16(code[pc+3:])
	case 3:
		d.A = get16(code[pc+1:])
		d.B = get16(code[pc+3:])
		d.C = get16(code[pc+5:])
	}
	return d
}
