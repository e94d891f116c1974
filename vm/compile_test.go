package vm

import "testing"

func TestArithmeticAddsThreeArguments(t *testing.T) {
	machine := NewVM()
	v := mustCompileRun(t, machine, "(+ 1 2 3)")
	assert(t, v.Tag == TagInt, "expected an int, got %s", fmtValue(machine, v))
	assert(t, v.I == 6, "expected 6, got %d", v.I)
}

func TestRecurFactorial(t *testing.T) {
	machine := NewVM()
	src := `
(def fact (fn (n acc)
  (if (= n 0)
      acc
      (recur (- n 1) (* n acc)))))
(fact 5 1)
`
	v := mustCompileRun(t, machine, src)
	assert(t, v.Tag == TagInt, "expected an int, got %s", fmtValue(machine, v))
	assert(t, v.I == 120, "expected factorial(5) == 120, got %d", v.I)
}

func TestRecurLoopSum(t *testing.T) {
	machine := NewVM()
	src := `
(def loop-sum (fn (n acc)
  (if (= n 0)
      acc
      (recur (- n 1) (+ acc n)))))
(loop-sum 100 0)
`
	v := mustCompileRun(t, machine, src)
	assert(t, v.Tag == TagInt, "expected an int, got %s", fmtValue(machine, v))
	assert(t, v.I == 5050, "expected sum 1..100 == 5050, got %d", v.I)
}

func TestNonTailFactorialViaPlainGlobalRecursion(t *testing.T) {
	machine := NewVM()
	// Unlike TestRecurFactorial, the recursive call here is a plain global
	// call nested inside *, so it compiles in non-tail position rather
	// than through recur/OpTcallm.
	src := `
(def fact2 (fn (n)
  (if (= n 0)
      1
      (* n (fact2 (- n 1))))))
(fact2 5)
`
	v := mustCompileRun(t, machine, src)
	assert(t, v.Tag == TagInt, "expected an int, got %s", fmtValue(machine, v))
	assert(t, v.I == 120, "expected factorial(5) == 120, got %d", v.I)
}

func TestTailCallArgumentSwapDoesNotCorruptRegisters(t *testing.T) {
	machine := NewVM()
	// (g y x) in tail position argues over the same two registers x and y
	// are bound to: laying arguments out left-to-right would read x's
	// register only after y's move has already clobbered it (or vice
	// versa). The call must still observe each parameter's original value.
	src := `
(def g (fn (a b) (list a b)))
(def f (fn (x y) (g y x)))
(f 1 2)
`
	v := mustCompileRun(t, machine, src)
	elems := listElements(t, machine, v)
	assert(t, len(elems) == 2, "expected a 2-element list, got %d", len(elems))
	assert(t, elems[0].Tag == TagInt && elems[0].I == 2, "expected first element 2 (y), got %v", elems[0])
	assert(t, elems[1].Tag == TagInt && elems[1].I == 1, "expected second element 1 (x), got %v", elems[1])
}

func TestTripleNestedClosureCapture(t *testing.T) {
	machine := NewVM()
	src := "((((fn (a) (fn (b) (fn (c) (+ a b c)))) 1) 2) 3)"
	v := mustCompileRun(t, machine, src)
	assert(t, v.Tag == TagInt, "expected an int, got %s", fmtValue(machine, v))
	assert(t, v.I == 6, "expected 1+2+3 == 6, got %d", v.I)
}

func TestQuasiquoteBuildsListWithUnquoteAndSplice(t *testing.T) {
	machine := NewVM()
	src := "`(1 ,(+ 1 1) ,@(list 3 4))"
	v := mustCompileRun(t, machine, src)
	assert(t, v.Tag == TagPair, "expected a list, got %s", fmtValue(machine, v))
	elems := listElements(t, machine, v)
	want := []int64{1, 2, 3, 4}
	assert(t, len(elems) == len(want), "expected %d elements, got %d", len(want), len(elems))
	for i, e := range elems {
		assert(t, e.Tag == TagInt, "element %d: expected an int, got %s", i, fmtValue(machine, e))
		assert(t, e.I == want[i], "element %d: expected %d, got %d", i, want[i], e.I)
	}
}

func TestMacroExpansionWhen(t *testing.T) {
	machine := NewVM()
	src := `
(def my-when (macro (test body) (list (quote if) test body (quote nil))))
(my-when (= 1 1) 42)
`
	v := mustCompileRun(t, machine, src)
	assert(t, v.Tag == TagInt, "expected an int, got %s", fmtValue(machine, v))
	assert(t, v.I == 42, "expected 42, got %d", v.I)
}

func TestNoSelfMovesEmitted(t *testing.T) {
	machine := NewVM()
	exprs, err := ReadAll(machine, "<test>", "(fn (a) a)")
	assert(t, err == nil, "unexpected error: %v", err)
	chunk, err := Compile(machine, "<test>", 1, exprs[0])
	assert(t, err == nil, "unexpected compile error: %v", err)
	assert(t, !chunkHasSelfMove(chunk), "compiled chunk must not contain a MOV r,r self-move")
}

func chunkHasSelfMove(chunk *Chunk) bool {
	pc := 0
	for pc < len(chunk.Code) {
		d := decodeAt(chunk.Code, pc)
		if d.Op == OpMov && d.A == d.B {
			return true
		}
		pc += d.Len
	}
	return false
}

func TestConstantTableHasNoDuplicates(t *testing.T) {
	machine := NewVM()
	exprs, err := ReadAll(machine, "<test>", `(list 100000 100000 "hi" "hi")`)
	assert(t, err == nil, "unexpected error: %v", err)
	chunk, err := Compile(machine, "<test>", 1, exprs[0])
	assert(t, err == nil, "unexpected compile error: %v", err)
	seen := make(map[Value]bool, len(chunk.Constants))
	for _, c := range chunk.Constants {
		assert(t, !seen[c], "duplicate constant in table: %v", c)
		seen[c] = true
	}
}

func TestInputRegsExtraRegsRelationship(t *testing.T) {
	machine := NewVM()
	exprs, err := ReadAll(machine, "<test>", "(fn (a b) (+ a b 1 2 3))")
	assert(t, err == nil, "unexpected error: %v", err)
	chunk, err := Compile(machine, "<test>", 1, exprs[0])
	assert(t, err == nil, "unexpected compile error: %v", err)
	// The top-level chunk just loads a lambda constant; inspect the lambda's
	// own chunk, which is what carries the register-frame metadata.
	lambdaVal := chunk.Constants[len(chunk.Constants)-1]
	assert(t, lambdaVal.Tag == TagLambda, "expected the last constant to be the compiled lambda")
	inner := machine.heap.getLambda(lambdaVal.I).Chunk
	assert(t, inner.InputRegs == 3, "expected InputRegs == params(2)+result(1) == 3, got %d", inner.InputRegs)
	assert(t, inner.ExtraRegs >= 0, "ExtraRegs must never be negative, got %d", inner.ExtraRegs)
}

func TestRecurOutsideTailPositionIsRejected(t *testing.T) {
	machine := NewVM()
	exprs, err := ReadAll(machine, "<test>", "(fn (n) (+ (recur n) 1))")
	assert(t, err == nil, "unexpected error: %v", err)
	_, err = Compile(machine, "<test>", 1, exprs[0])
	assert(t, err != nil, "expected an error compiling recur outside tail position")
}

func TestRejectedSpecialFormsReportNotImplemented(t *testing.T) {
	machine := NewVM()
	for _, src := range []string{"(let ((x 1)) x)", "(let* ((x 1)) x)", "(call/cc (fn (k) k))"} {
		exprs, err := ReadAll(machine, "<test>", src)
		assert(t, err == nil, "unexpected read error for %q: %v", src, err)
		_, err = Compile(machine, "<test>", 1, exprs[0])
		assert(t, err != nil, "expected %q to be rejected as not implemented", src)
	}
}
