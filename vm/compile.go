package vm

import (
	"fmt"
	"os"
)

// CompileState is per-chunk scratch: the scope it's building registers
// against, the constant-dedup map, the chunk under construction, and a few
// bookkeeping fields threaded through both passes.
type CompileState struct {
	vm       *VM
	specials *Specials
	scope    *Scope
	chunk    *Chunk
	consts   map[Value]int

	maxReg     int
	tail       bool
	paramCount int // recur's target arity: named parameters only, captures excluded

	parent *CompileState

	fileName string
	line     int
}

func newCompileState(vm *VM, parent *CompileState, fileName string, line int, outer *Scope) *CompileState {
	return &CompileState{
		vm:       vm,
		specials: vm.specials,
		scope:    NewScope(outer),
		chunk:    NewChunk(fileName, line),
		consts:   make(map[Value]int, 8),
		parent:   parent,
		fileName: fileName,
		line:     line,
	}
}

func (cs *CompileState) errAt(reason error, detail string) error {
	return &CompileError{File: cs.fileName, Line: cs.line, Reason: reason, Detail: detail}
}

// scratch allocates the next free register above every named local and
// every register handed out so far.
func (cs *CompileState) scratch() int {
	cs.maxReg++
	return cs.maxReg
}

func (cs *CompileState) touch(reg int) {
	if reg > cs.maxReg {
		cs.maxReg = reg
	}
}

// constant deduplicates v against this chunk's constant table via the
// Value's natural comparability.
func (cs *CompileState) constant(v Value) int {
	if idx, ok := cs.consts[v]; ok {
		return idx
	}
	idx := cs.chunk.addConstant(v)
	cs.consts[v] = idx
	return idx
}

// listToSlice flattens a proper list's elements into a Go slice. A
// dotted/improper tail is silently dropped by callers — special forms
// never accept improper argument lists.
func listToSlice(vm *VM, v Value) []Value {
	var out []Value
	for v.Tag == TagPair {
		p := vm.heap.getPair(v.I)
		out = append(out, p.Car)
		v = p.Cdr
	}
	return out
}

// Compile runs both passes over a single top-level expression and returns
// a chunk ending in RET, suitable for VM.Run.
func Compile(vm *VM, fileName string, line int, exp Value) (*Chunk, error) {
	cs := newCompileState(vm, nil, fileName, line, nil)
	if err := pass1(cs, exp); err != nil {
		return nil, err
	}
	cs.tail = false
	if err := cs.compile(exp, 0); err != nil {
		return nil, err
	}
	cs.chunk.encode0(OpRet)
	cs.chunk.InputRegs = cs.scope.Len() + 1
	cs.chunk.ExtraRegs = cs.maxReg + 1 - cs.chunk.InputRegs
	if cs.chunk.ExtraRegs < 0 {
		cs.chunk.ExtraRegs = 0
	}
	return cs.chunk, nil
}

// pass1 walks exp recording every free-variable reference as a capture
// chain from this scope out to wherever it's actually bound. fn/macro
// bodies compile (and thus pass1) their own bodies independently, so their
// raw parameter/body forms are not descended into here; quoted data is
// opaque for the same reason — it is never evaluated, so its symbols are
// not variable references.
func pass1(cs *CompileState, exp Value) error {
	switch exp.Tag {
	case TagSymbol:
		sym := int32(exp.I)
		if !cs.scope.Contains(sym) && cs.scope.CanCapture(sym) {
			cs.scope.InsertCapture(sym)
		}
		return nil
	case TagVector:
		vec := cs.vm.heap.getVector(exp.I)
		for _, e := range vec.Items {
			if err := pass1(cs, e); err != nil {
				return err
			}
		}
		return nil
	case TagPair:
		p := cs.vm.heap.getPair(exp.I)
		if p.Car.Tag == TagSymbol {
			sym := int32(p.Car.I)
			sp := cs.specials
			if Int32Sym(sym) == sp.Fn || Int32Sym(sym) == sp.Macro || Int32Sym(sym) == sp.Quote || Int32Sym(sym) == sp.BackQuote {
				return nil
			}
		}
		cur := exp
		for cur.Tag == TagPair {
			pp := cs.vm.heap.getPair(cur.I)
			if err := pass1(cs, pp.Car); err != nil {
				return err
			}
			cur = pp.Cdr
		}
		if cur.Tag != TagNil {
			return pass1(cs, cur)
		}
		return nil
	default:
		return nil
	}
}

// ---- pass 2 ---------------------------------------------------------

func (cs *CompileState) compile(exp Value, result int) error {
	cs.touch(result)
	switch exp.Tag {
	case TagSymbol:
		return cs.compileSymbolRef(int32(exp.I), result)
	case TagPair:
		return cs.compilePair(exp, result)
	default:
		cs.compileLiteral(exp, result)
		return nil
	}
}

func (cs *CompileState) compileSymbolRef(sym int32, result int) error {
	if slot, ok := cs.scope.Get(sym); ok {
		src := slot + 1
		if src != result {
			cs.chunk.encode2(OpMov, uint16(result), uint16(src))
		}
		return nil
	}
	slot := cs.vm.globals.reserveIndex(sym)
	if !cs.vm.globals.isDefined(slot) {
		fmt.Fprintf(os.Stderr, "warning: %s is not defined\n", cs.vm.interner.GetInterned(sym))
	}
	cs.chunk.encodeRefi(uint16(result), uint16(slot))
	return nil
}

func (cs *CompileState) compileLiteral(v Value, result int) {
	switch v.Tag {
	case TagBool:
		if v.I != 0 {
			cs.chunk.encode1(OpMregt, uint16(result))
		} else {
			cs.chunk.encode1(OpMregf, uint16(result))
		}
	case TagNil:
		cs.chunk.encode1(OpMregn, uint16(result))
	case TagByte:
		cs.chunk.encode2(OpMregb, uint16(result), uint16(v.I))
	case TagInt:
		if v.I >= -32768 && v.I <= 32767 {
			cs.chunk.encode2(OpMregi, uint16(result), uint16(int16(v.I)))
			return
		}
		idx := cs.constant(v)
		cs.chunk.encode2(OpConst, uint16(result), uint16(idx))
	case TagUint:
		if v.I >= 0 && v.I <= 65535 {
			cs.chunk.encode2(OpMregu, uint16(result), uint16(v.I))
			return
		}
		idx := cs.constant(v)
		cs.chunk.encode2(OpConst, uint16(result), uint16(idx))
	default:
		idx := cs.constant(v)
		cs.chunk.encode2(OpConst, uint16(result), uint16(idx))
	}
}

// compileQuotedLiteral is compileLiteral's counterpart for data that must
// not be evaluated: symbols, pairs and vectors go through the constant
// table as data rather than being treated as variable references or calls.
func (cs *CompileState) compileQuotedLiteral(v Value, result int) {
	switch v.Tag {
	case TagBool, TagNil, TagByte, TagInt, TagUint:
		cs.compileLiteral(v, result)
	default:
		idx := cs.constant(v)
		cs.chunk.encode2(OpConst, uint16(result), uint16(idx))
	}
}

func (cs *CompileState) compilePair(exp Value, result int) error {
	p := cs.vm.heap.getPair(exp.I)
	if p.HasMeta {
		cs.line = p.Line
	}
	if p.Car.Tag == TagSymbol {
		sym := int32(p.Car.I)
		if name, ok := cs.specials.rejectedFormName(sym); ok {
			return cs.errAt(errNotImplemented, name)
		}
		handled, err := cs.compileSpecial(sym, p.Cdr, result)
		if handled {
			return err
		}
		expanded, isMacro, err := cs.expandIfMacro(sym, p.Cdr)
		if err != nil {
			return err
		}
		if isMacro {
			if err := pass1(cs, expanded); err != nil {
				return err
			}
			return cs.compile(expanded, result)
		}
	}
	return cs.compileGeneralCall(p.Car, listToSlice(cs.vm, p.Cdr), result)
}

// expandIfMacro checks whether sym currently names a global macro value
// and, if so, synchronously invokes it on the unevaluated argument forms.
func (cs *CompileState) expandIfMacro(sym int32, cdr Value) (Value, bool, error) {
	slot, ok := cs.vm.globals.getSlot(sym)
	if !ok || !cs.vm.globals.isDefined(slot) {
		return Value{}, false, nil
	}
	gv := cs.vm.globals.getGlobal(slot)
	if !isMacroValue(cs.vm, gv) {
		return Value{}, false, nil
	}
	argExprs := listToSlice(cs.vm, cdr)
	expanded, err := cs.vm.expandMacro(gv, argExprs)
	if err != nil {
		return Value{}, false, err
	}
	return expanded, true, nil
}

// compileSpecial dispatches the symbols with dedicated bytecode shapes.
// handled is false (with a nil error) when sym isn't a recognized special
// form, signalling the caller to check for a macro and otherwise fall
// through to a general call.
func (cs *CompileState) compileSpecial(sym int32, cdr Value, result int) (handled bool, err error) {
	sp := cs.specials
	s := Int32Sym(sym)
	switch s {
	case sp.Def:
		return true, cs.compileDef(cdr, result)
	case sp.SetBang:
		return true, cs.compileSet(cdr, result)
	case sp.Do:
		return true, cs.compileDo(cdr, result)
	case sp.If:
		return true, cs.compileIf(cdr, result)
	case sp.And:
		return true, cs.compileAnd(cdr, result)
	case sp.Or:
		return true, cs.compileOr(cdr, result)
	case sp.Fn:
		return true, cs.compileFn(cdr, result, false)
	case sp.Macro:
		return true, cs.compileFn(cdr, result, true)
	case sp.Quote:
		return true, cs.compileQuote(cdr, result)
	case sp.BackQuote:
		return true, cs.compileBackQuote(cdr, result)
	case sp.Recur:
		return true, cs.compileRecur(cdr, result, false)
	case sp.ThisFn:
		return true, cs.compileRecur(cdr, result, true)
	case sp.Plus, sp.Minus, sp.Star, sp.Slash:
		return true, cs.compileArith(sym, cdr, result)
	case sp.NumEq, sp.NumNeq, sp.NumLt, sp.NumLte, sp.NumGt, sp.NumGte:
		return true, cs.compileCompare(sym, cdr, result)
	case sp.EqP:
		return true, cs.compileRange(OpEq, cdr, result)
	case sp.EqualP:
		return true, cs.compileRange(OpEqual, cdr, result)
	case sp.TypeOf:
		return true, cs.compileUnary(OpType, cdr, result)
	case sp.Not:
		return true, cs.compileUnary(OpNot, cdr, result)
	case sp.Err:
		return true, cs.compileErr(cdr, result)
	case sp.Str:
		return true, cs.compileVariadicCtor(OpStr, StringConst(cs.vm.interner.Intern("")), cdr, result)
	case sp.List:
		return true, cs.compileVariadicCtor(OpList, Nil, cdr, result)
	case sp.Vec:
		return true, cs.compileVariadicCtor(OpVec, cs.emptyVector(), cdr, result)
	case sp.ListAppend:
		return true, cs.compileBinaryOp(OpApnd, cdr, result)
	case sp.Cons:
		return true, cs.compileBinaryOp(OpCons, cdr, result)
	case sp.Car:
		return true, cs.compileUnary(OpCar, cdr, result)
	case sp.Cdr:
		return true, cs.compileUnary(OpCdr, cdr, result)
	case sp.XarBang:
		return true, cs.compileDestructive(OpXar, cdr, result)
	case sp.XdrBang:
		return true, cs.compileDestructive(OpXdr, cdr, result)
	case sp.MakeVec:
		return true, cs.compileMakeVec(cdr, result)
	case sp.VecPush:
		return true, cs.compileVecPush(cdr, result)
	case sp.VecPop:
		return true, cs.compileUnary(OpVecpop, cdr, result)
	case sp.VecNth:
		return true, cs.compileBinaryOp(OpVecnth, cdr, result)
	case sp.VecSet:
		return true, cs.compileVecSet(cdr, result)
	case sp.VecLen:
		return true, cs.compileUnary(OpVeclen, cdr, result)
	case sp.VecClear:
		return true, cs.compileVecClear(cdr, result)
	case sp.IncBang, sp.DecBang:
		return true, cs.compileIncDec(sym, cdr, result)
	}
	return false, nil
}

func (cs *CompileState) emptyVector() Value {
	h := cs.vm.heap.allocVector(nil)
	return Handle(TagVector, h)
}

// ---- def / set! -------------------------------------------------------

func (cs *CompileState) compileDef(cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) != 2 && len(args) != 3 {
		return cs.errAt(errArity, "def")
	}
	if args[0].Tag != TagSymbol {
		return cs.errAt(errBadSpecialForm, "def name must be a symbol")
	}
	sym := int32(args[0].I)
	valExpr := args[len(args)-1]
	cs.tail = false
	if err := cs.compile(valExpr, result+1); err != nil {
		return err
	}
	slot := cs.vm.globals.reserveIndex(sym)
	cs.chunk.encodeGref(uint16(result), uint16(slot))
	cs.chunk.encode2(OpDef, uint16(result), uint16(result+1))
	return nil
}

func (cs *CompileState) compileSet(cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) != 2 {
		return cs.errAt(errArity, "set!")
	}
	if args[0].Tag != TagSymbol {
		return cs.errAt(errBadSpecialForm, "set! target must be a symbol")
	}
	sym := int32(args[0].I)
	if slot, ok := cs.scope.Get(sym); ok {
		cs.tail = false
		if err := cs.compile(args[1], result); err != nil {
			return err
		}
		cs.chunk.encode2(OpSet, uint16(slot+1), uint16(result))
		return nil
	}
	return cs.compileDef(cdr, result)
}

// ---- do / if / and / or ------------------------------------------------

func (cs *CompileState) compileDo(cdr Value, result int) error {
	elems := listToSlice(cs.vm, cdr)
	if len(elems) == 0 {
		cs.compileLiteral(Nil, result)
		return nil
	}
	enclosingTail := cs.tail
	for i, e := range elems {
		if i == len(elems)-1 {
			cs.tail = enclosingTail
		} else {
			cs.tail = false
		}
		if err := cs.compile(e, result); err != nil {
			return err
		}
	}
	return nil
}

func (cs *CompileState) compileIf(cdr Value, result int) error {
	return cs.compileIfChain(listToSlice(cs.vm, cdr), result)
}

func (cs *CompileState) compileIfChain(elems []Value, result int) error {
	if len(elems) == 0 {
		cs.compileLiteral(Nil, result)
		return nil
	}
	if len(elems) == 1 {
		return cs.compile(elems[0], result)
	}
	test, then := elems[0], elems[1]
	rest := elems[2:]
	enclosingTail := cs.tail

	cs.tail = false
	if err := cs.compile(test, result); err != nil {
		return err
	}
	jmpff := cs.chunk.encode2(OpJmpff, uint16(result), 0)

	cs.tail = enclosingTail
	if err := cs.compile(then, result); err != nil {
		return err
	}
	jmpf := cs.chunk.encode1(OpJmpf, 0)

	cs.chunk.patchJump(jmpff)
	cs.tail = enclosingTail
	if err := cs.compileIfChain(rest, result); err != nil {
		return err
	}
	cs.chunk.patchJump(jmpf)
	return nil
}

func (cs *CompileState) compileAnd(cdr Value, result int) error {
	elems := listToSlice(cs.vm, cdr)
	if len(elems) == 0 {
		cs.compileLiteral(True, result)
		return nil
	}
	enclosingTail := cs.tail
	var patches []int
	for i, e := range elems {
		isLast := i == len(elems)-1
		cs.tail = false
		if isLast {
			cs.tail = enclosingTail
		}
		if err := cs.compile(e, result); err != nil {
			return err
		}
		if !isLast {
			patches = append(patches, cs.chunk.encode2(OpJmpff, uint16(result), 0))
		}
	}
	for _, pos := range patches {
		cs.chunk.patchJump(pos)
	}
	return nil
}

func (cs *CompileState) compileOr(cdr Value, result int) error {
	elems := listToSlice(cs.vm, cdr)
	if len(elems) == 0 {
		cs.compileLiteral(False, result)
		return nil
	}
	enclosingTail := cs.tail
	var patches []int
	for i, e := range elems {
		isLast := i == len(elems)-1
		cs.tail = false
		if isLast {
			cs.tail = enclosingTail
		}
		if err := cs.compile(e, result); err != nil {
			return err
		}
		if !isLast {
			patches = append(patches, cs.chunk.encode2(OpJmpft, uint16(result), 0))
		}
	}
	for _, pos := range patches {
		cs.chunk.patchJump(pos)
	}
	return nil
}

// ---- fn / macro ---------------------------------------------------------

type optionalParam struct {
	slot int
	expr Value
}

func (cs *CompileState) compileFn(cdr Value, result int, isMacro bool) error {
	elems := listToSlice(cs.vm, cdr)
	if len(elems) == 0 {
		return cs.errAt(errBadSpecialForm, "fn requires a parameter list")
	}
	paramsList, body := elems[0], elems[1:]

	child := newCompileState(cs.vm, cs, cs.fileName, cs.line, cs.scope)
	var argNames []string
	var optionals []optionalParam
	argc, optArgs, hasRest := 0, 0, false

	ps := listToSlice(cs.vm, paramsList)
	for i := 0; i < len(ps); i++ {
		pe := ps[i]
		switch {
		case pe.Tag == TagSymbol && Int32Sym(pe.I) == cs.specials.Rest:
			i++
			if i >= len(ps) || ps[i].Tag != TagSymbol {
				return cs.errAt(errBadSpecialForm, "&rest must be followed by a symbol")
			}
			sym := int32(ps[i].I)
			child.scope.Insert(sym)
			argNames = append(argNames, cs.vm.interner.GetInterned(sym))
			hasRest = true
		case pe.Tag == TagPair:
			pair := listToSlice(cs.vm, pe)
			if len(pair) != 2 || pair[0].Tag != TagSymbol {
				return cs.errAt(errBadSpecialForm, "optional parameter must be (name default)")
			}
			sym := int32(pair[0].I)
			slot := child.scope.Insert(sym)
			argNames = append(argNames, cs.vm.interner.GetInterned(sym))
			optionals = append(optionals, optionalParam{slot: slot, expr: pair[1]})
			optArgs++
		case pe.Tag == TagSymbol:
			sym := int32(pe.I)
			child.scope.Insert(sym)
			argNames = append(argNames, cs.vm.interner.GetInterned(sym))
			argc++
		default:
			return cs.errAt(errBadSpecialForm, "malformed parameter list")
		}
	}
	child.chunk.Args = argc
	child.chunk.OptArgs = optArgs
	child.chunk.Rest = hasRest
	child.chunk.ArgNames = argNames
	child.chunk.IsMacro = isMacro
	child.paramCount = argc + optArgs
	if hasRest {
		child.paramCount++
	}
	for _, b := range body {
		if err := pass1(child, b); err != nil {
			return err
		}
	}
	child.maxReg = child.scope.Len()

	for _, od := range optionals {
		target := od.slot + 1
		pos := child.chunk.encode2(OpJmpfnu, uint16(target), 0)
		child.tail = false
		if err := child.compile(od.expr, target); err != nil {
			return err
		}
		child.chunk.patchJump(pos)
	}

	if len(body) == 0 {
		child.compileLiteral(Nil, 0)
	} else {
		for i, b := range body {
			child.tail = i == len(body)-1
			if err := child.compile(b, 0); err != nil {
				return err
			}
		}
	}
	child.chunk.encode1(OpSret, 0)
	child.chunk.InputRegs = child.scope.Len() + 1
	child.chunk.ExtraRegs = child.maxReg + 1 - child.chunk.InputRegs
	if child.chunk.ExtraRegs < 0 {
		child.chunk.ExtraRegs = 0
	}

	lambda := &Lambda{Chunk: child.chunk}
	lh := cs.vm.heap.allocLambda(lambda)
	lambdaVal := Handle(TagLambda, lh)

	captureSlots := child.scope.CaptureSourceSlots()
	idx := cs.constant(lambdaVal)
	cs.chunk.encode2(OpConst, uint16(result), uint16(idx))
	if len(captureSlots) > 0 {
		child.chunk.Captures = captureSlots
		// CLOSE reads the outer-slot list off the chunk just loaded into
		// result and copies those register values from this frame.
		cs.chunk.encode2(OpClose, uint16(result), uint16(result))
	}
	return nil
}

// ---- quote / back-quote -------------------------------------------------

func (cs *CompileState) compileQuote(cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) != 1 {
		return cs.errAt(errArity, "quote")
	}
	cs.compileQuotedLiteral(args[0], result)
	return nil
}

func (cs *CompileState) compileBackQuote(cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) != 1 {
		return cs.errAt(errArity, "back-quote")
	}
	expanded, err := backQuoteExpand(cs.vm, args[0])
	if err != nil {
		return err
	}
	if err := pass1(cs, expanded); err != nil {
		return err
	}
	return cs.compile(expanded, result)
}

// ---- recur / this-fn -----------------------------------------------------

func (cs *CompileState) compileRecur(cdr Value, result int, allowNonTail bool) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) != cs.paramCount {
		return cs.errAt(errArity, "recur/this-fn argument count must match the enclosing parameter list")
	}
	if !allowNonTail && !cs.tail {
		return cs.errAt(errRecurOutsideTail, "recur")
	}
	if cs.tail {
		if err := cs.compileCallArgsTail(args); err != nil {
			return err
		}
		cs.chunk.encode1(OpTcallm, uint16(len(args)))
		return nil
	}
	base := cs.scratch()
	for i, a := range args {
		cs.tail = false
		if err := cs.compile(a, base+1+i); err != nil {
			return err
		}
	}
	cs.chunk.encode2(OpCallm, uint16(len(args)), uint16(base))
	cs.chunk.encode2(OpMov, uint16(result), uint16(base))
	return nil
}

// compileCallArgsTail lays args into registers 1..len(args) for any tail
// call (self-recur or general), where that register range aliases the
// current frame's own named-local slots 1..N. Every argument that is not
// a local already resident in its target register is first evaluated
// into a fresh scratch register (a bare local by a MOV, any other
// expression by compiling it there), and only then copied into its final
// target; doing all of that before any target is written keeps
// overlapping or cyclic argument/local register reuse (e.g. swapping two
// parameters, or (recur (- n 1) (* n acc))) correct, where writing
// straight into the targets left-to-right would clobber a later
// argument's source.
func (cs *CompileState) compileCallArgsTail(args []Value) error {
	temps := make([]int, len(args))
	for i, a := range args {
		temps[i] = -1
		target := i + 1
		if a.Tag != TagSymbol || !cs.scope.Contains(int32(a.I)) {
			saved := cs.tail
			cs.tail = false
			temps[i] = cs.scratch()
			if err := cs.compile(a, temps[i]); err != nil {
				return err
			}
			cs.tail = saved
			continue
		}
		if a.Tag != TagSymbol {
			continue
		}
		slot, ok := cs.scope.Get(int32(a.I))
		if !ok {
			continue
		}
		src := slot + 1
		if src != target {
			temp := cs.scratch()
			cs.chunk.encode2(OpMov, uint16(temp), uint16(src))
			temps[i] = temp
		}
	}
	for i, a := range args {
		target := i + 1
		if temps[i] >= 0 {
			cs.chunk.encode2(OpMov, uint16(target), uint16(temps[i]))
			continue
		}
		if a.Tag == TagSymbol {
			if _, ok := cs.scope.Get(int32(a.I)); ok {
				continue // already resident: source register equals target
			}
		}
		saved := cs.tail
		cs.tail = false
		if err := cs.compile(a, target); err != nil {
			return err
		}
		cs.tail = saved
	}
	return nil
}

// ---- arithmetic / comparison --------------------------------------------

func (cs *CompileState) compileArith(sym int32, cdr Value, result int) error {
	sp := cs.specials
	var op OpCode
	switch Int32Sym(sym) {
	case sp.Plus:
		op = OpAddm
	case sp.Minus:
		op = OpSubm
	case sp.Star:
		op = OpMulm
	case sp.Slash:
		op = OpDivm
	}
	args := listToSlice(cs.vm, cdr)
	switch len(args) {
	case 0:
		if Int32Sym(sym) == sp.Plus {
			cs.compileLiteral(Int(0), result)
			return nil
		}
		if Int32Sym(sym) == sp.Star {
			cs.compileLiteral(Int(1), result)
			return nil
		}
		return cs.errAt(errArity, "arithmetic operator requires at least one argument")
	case 1:
		saved := cs.tail
		cs.tail = false
		if err := cs.compile(args[0], result); err != nil {
			return err
		}
		cs.tail = saved
		if Int32Sym(sym) == sp.Minus {
			zero := cs.scratch()
			cs.compileLiteral(Int(0), zero)
			cs.chunk.encode3(op, uint16(result), uint16(zero), uint16(result))
		}
		return nil
	default:
		saved := cs.tail
		cs.tail = false
		if err := cs.compile(args[0], result); err != nil {
			return err
		}
		for _, a := range args[1:] {
			r := cs.scratch()
			if err := cs.compile(a, r); err != nil {
				return err
			}
			cs.chunk.encode3(op, uint16(result), uint16(result), uint16(r))
		}
		cs.tail = saved
		return nil
	}
}

func (cs *CompileState) compileCompare(sym int32, cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) < 2 {
		return cs.errAt(errArity, "comparison operator requires at least two arguments")
	}
	sp := cs.specials
	var op OpCode
	switch Int32Sym(sym) {
	case sp.NumEq:
		op = OpNumeq
	case sp.NumNeq:
		op = OpNumneq
	case sp.NumLt:
		op = OpNumlt
	case sp.NumLte:
		op = OpNumlte
	case sp.NumGt:
		op = OpNumgt
	case sp.NumGte:
		op = OpNumgte
	}
	return cs.compileContiguousRange(op, args, result)
}

func (cs *CompileState) compileRange(op OpCode, cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) < 2 {
		return cs.errAt(errArity, "operator requires at least two arguments")
	}
	return cs.compileContiguousRange(op, args, result)
}

// compileContiguousRange evaluates args into a block of newly-allocated
// contiguous registers and emits a single ternary range opcode spanning
// the first and last.
func (cs *CompileState) compileContiguousRange(op OpCode, args []Value, result int) error {
	saved := cs.tail
	cs.tail = false
	regs := make([]int, len(args))
	for i := range args {
		regs[i] = cs.scratch()
	}
	for i, a := range args {
		if err := cs.compile(a, regs[i]); err != nil {
			return err
		}
	}
	cs.tail = saved
	cs.chunk.encode3(op, uint16(result), uint16(regs[0]), uint16(regs[len(regs)-1]))
	return nil
}

// compileVariadicCtor handles (list ...)/(str ...)/(vec ...), which accept
// zero or more arguments; zero arguments short-circuits to the empty value
// rather than emitting a degenerate zero-width range.
func (cs *CompileState) compileVariadicCtor(op OpCode, empty Value, cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) == 0 {
		cs.compileQuotedLiteral(empty, result)
		return nil
	}
	return cs.compileContiguousRange(op, args, result)
}

func (cs *CompileState) compileBinaryOp(op OpCode, cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) != 2 {
		return cs.errAt(errArity, "operator requires exactly two arguments")
	}
	saved := cs.tail
	cs.tail = false
	a := cs.scratch()
	b := cs.scratch()
	if err := cs.compile(args[0], a); err != nil {
		return err
	}
	if err := cs.compile(args[1], b); err != nil {
		return err
	}
	cs.tail = saved
	cs.chunk.encode3(op, uint16(result), uint16(a), uint16(b))
	return nil
}

func (cs *CompileState) compileUnary(op OpCode, cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) != 1 {
		return cs.errAt(errArity, "operator requires exactly one argument")
	}
	saved := cs.tail
	cs.tail = false
	src := cs.scratch()
	if err := cs.compile(args[0], src); err != nil {
		return err
	}
	cs.tail = saved
	cs.chunk.encode2(op, uint16(result), uint16(src))
	return nil
}

func (cs *CompileState) compileDestructive(op OpCode, cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) != 2 {
		return cs.errAt(errArity, "operator requires exactly two arguments")
	}
	saved := cs.tail
	cs.tail = false
	pairReg := cs.scratch()
	valReg := cs.scratch()
	if err := cs.compile(args[0], pairReg); err != nil {
		return err
	}
	if err := cs.compile(args[1], valReg); err != nil {
		return err
	}
	cs.tail = saved
	cs.chunk.encode2(op, uint16(pairReg), uint16(valReg))
	if result != pairReg {
		cs.chunk.encode2(OpMov, uint16(result), uint16(pairReg))
	}
	return nil
}

func (cs *CompileState) compileErr(cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	saved := cs.tail
	cs.tail = false
	var kwReg, msgReg int
	switch len(args) {
	case 1:
		kwReg = cs.scratch()
		cs.compileQuotedLiteral(Keyword(cs.vm.interner.Intern("error")), kwReg)
		msgReg = cs.scratch()
		if err := cs.compile(args[0], msgReg); err != nil {
			return err
		}
	case 2:
		kwReg = cs.scratch()
		if err := cs.compile(args[0], kwReg); err != nil {
			return err
		}
		msgReg = cs.scratch()
		if err := cs.compile(args[1], msgReg); err != nil {
			return err
		}
	default:
		return cs.errAt(errArity, "err takes a message or a keyword and a message")
	}
	cs.tail = saved
	cs.chunk.encode3(OpErr, uint16(result), uint16(kwReg), uint16(msgReg))
	return nil
}

// ---- vectors --------------------------------------------------------------

func (cs *CompileState) compileMakeVec(cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	saved := cs.tail
	cs.tail = false
	switch len(args) {
	case 0:
		zero := cs.scratch()
		cs.compileLiteral(Int(0), zero)
		cs.chunk.encode2(OpVecmk, uint16(result), uint16(zero))
	case 1:
		lenReg := cs.scratch()
		if err := cs.compile(args[0], lenReg); err != nil {
			return err
		}
		cs.chunk.encode2(OpVecmk, uint16(result), uint16(lenReg))
	case 2:
		lenReg := cs.scratch()
		fillReg := cs.scratch()
		if err := cs.compile(args[0], lenReg); err != nil {
			return err
		}
		if err := cs.compile(args[1], fillReg); err != nil {
			return err
		}
		cs.chunk.encode3(OpVecmkd, uint16(result), uint16(lenReg), uint16(fillReg))
	default:
		return cs.errAt(errArity, "make-vec takes zero, one or two arguments")
	}
	cs.tail = saved
	return nil
}

func (cs *CompileState) compileVecPush(cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) != 2 {
		return cs.errAt(errArity, "vec-push!")
	}
	saved := cs.tail
	cs.tail = false
	vecReg := cs.scratch()
	valReg := cs.scratch()
	if err := cs.compile(args[0], vecReg); err != nil {
		return err
	}
	if err := cs.compile(args[1], valReg); err != nil {
		return err
	}
	cs.tail = saved
	cs.chunk.encode2(OpVecpsh, uint16(vecReg), uint16(valReg))
	if result != vecReg {
		cs.chunk.encode2(OpMov, uint16(result), uint16(vecReg))
	}
	return nil
}

func (cs *CompileState) compileVecSet(cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) != 3 {
		return cs.errAt(errArity, "vec-set!")
	}
	saved := cs.tail
	cs.tail = false
	vecReg := cs.scratch()
	idxReg := cs.scratch()
	valReg := cs.scratch()
	if err := cs.compile(args[0], vecReg); err != nil {
		return err
	}
	if err := cs.compile(args[1], idxReg); err != nil {
		return err
	}
	if err := cs.compile(args[2], valReg); err != nil {
		return err
	}
	cs.tail = saved
	cs.chunk.encode3(OpVecsth, uint16(vecReg), uint16(idxReg), uint16(valReg))
	if result != vecReg {
		cs.chunk.encode2(OpMov, uint16(result), uint16(vecReg))
	}
	return nil
}

func (cs *CompileState) compileVecClear(cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) != 1 {
		return cs.errAt(errArity, "vec-clear!")
	}
	saved := cs.tail
	cs.tail = false
	vecReg := cs.scratch()
	if err := cs.compile(args[0], vecReg); err != nil {
		return err
	}
	cs.tail = saved
	cs.chunk.encode1(OpVecclr, uint16(vecReg))
	if result != vecReg {
		cs.chunk.encode2(OpMov, uint16(result), uint16(vecReg))
	}
	return nil
}

func (cs *CompileState) compileIncDec(sym int32, cdr Value, result int) error {
	args := listToSlice(cs.vm, cdr)
	if len(args) < 1 || len(args) > 2 {
		return cs.errAt(errArity, "inc!/dec!")
	}
	if args[0].Tag != TagSymbol {
		return cs.errAt(errBadSpecialForm, "inc!/dec! target must be a symbol")
	}
	amount := int64(1)
	if len(args) == 2 {
		if !args[1].IsNumber() {
			return cs.errAt(errBadSpecialForm, "inc!/dec! amount must be numeric")
		}
		amount = args[1].AsInt()
	}
	var op OpCode
	if Int32Sym(sym) == cs.specials.IncBang {
		op = OpInc
	} else {
		op = OpDec
	}
	name := int32(args[0].I)
	if slot, ok := cs.scope.Get(name); ok {
		reg := slot + 1
		cs.chunk.encode2(op, uint16(reg), uint16(amount))
		if result != reg {
			cs.chunk.encode2(OpMov, uint16(result), uint16(reg))
		}
		return nil
	}
	gslot := cs.vm.globals.reserveIndex(name)
	val := cs.scratch()
	cs.chunk.encodeRefi(uint16(val), uint16(gslot))
	cs.chunk.encode2(op, uint16(val), uint16(amount))
	ref := cs.scratch()
	cs.chunk.encodeGref(uint16(ref), uint16(gslot))
	cs.chunk.encode2(OpDef, uint16(ref), uint16(val))
	if result != val {
		cs.chunk.encode2(OpMov, uint16(result), uint16(val))
	}
	return nil
}

// ---- calls ----------------------------------------------------------------

// compileGeneralCall compiles a call whose head may be a local symbol, a
// global symbol, or an arbitrary computed expression. The call works in
// its own register callReg: in tail position that is result (the frame's
// slot 0, distinct from every named local); otherwise it is a fresh
// scratch register, so the argument block callReg+1.. never overlaps a
// named local that is still live after the call, and the value is moved
// into result afterwards. A computed head is evaluated into callReg
// before the arguments are laid out. In tail position, argument registers
// 1..argc alias the current frame's named locals 1..N, so they're laid
// out via compileCallArgsTail's dependency-safe shuffle rather than
// compiled straight across.
func (cs *CompileState) compileGeneralCall(head Value, args []Value, result int) error {
	tail := cs.tail
	callReg := result
	if !tail {
		callReg = cs.scratch()
	}

	const (
		headLocal = iota
		headGlobal
		headComputed
	)
	var kind int
	var headSlot, headGlobalSlot int
	switch {
	case head.Tag == TagSymbol:
		sym := int32(head.I)
		if slot, ok := cs.scope.Get(sym); ok {
			kind, headSlot = headLocal, slot
		} else {
			kind = headGlobal
			headGlobalSlot = cs.vm.globals.reserveIndex(sym)
			if !cs.vm.globals.isDefined(headGlobalSlot) {
				fmt.Fprintf(os.Stderr, "warning: %s is not defined\n", cs.vm.interner.GetInterned(sym))
			}
		}
	default:
		kind = headComputed
		saved := cs.tail
		cs.tail = false
		if err := cs.compile(head, callReg); err != nil {
			return err
		}
		cs.tail = saved
	}

	cs.tail = false
	if tail {
		if err := cs.compileCallArgsTail(args); err != nil {
			return err
		}
	} else {
		argStart := callReg + 1
		for i, a := range args {
			if err := cs.compile(a, argStart+i); err != nil {
				return err
			}
		}
	}
	argc := len(args)
	cs.tail = tail

	switch kind {
	case headLocal:
		headReg := headSlot + 1
		if tail {
			cs.chunk.encode2(OpTcall, uint16(headReg), uint16(argc))
		} else {
			cs.chunk.encode3(OpCall, uint16(headReg), uint16(argc), uint16(callReg))
		}
	case headGlobal:
		if tail {
			cs.chunk.encodeTcallg(uint16(headGlobalSlot), uint16(argc))
		} else {
			cs.chunk.encodeCallg(uint16(headGlobalSlot), uint16(argc), uint16(callReg))
		}
	case headComputed:
		if tail {
			cs.chunk.encode2(OpTcall, uint16(callReg), uint16(argc))
		} else {
			cs.chunk.encode3(OpCall, uint16(callReg), uint16(argc), uint16(callReg))
		}
	}
	if callReg != result {
		cs.chunk.encode2(OpMov, uint16(result), uint16(callReg))
	}
	return nil
}
