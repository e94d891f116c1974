package vm

import "testing"

func TestNestedBackQuoteLeavesInnerUnquoteUnevaluated(t *testing.T) {
	machine := NewVM()
	// The inner ,(+ 1 2) is shielded by the extra back-quote nesting level:
	// depth goes 0 -> 1 across the inner back-quote, so the matching
	// unquote only cancels one level and the whole thing reads back as
	// data containing the literal (unquote (+ 1 2)) form, not 3.
	src := "`(a `(b ,(+ 1 2)))"
	v := mustCompileRun(t, machine, src)
	assert(t, v.Tag == TagPair, "expected a list, got %s", fmtValue(machine, v))
	outer := listElements(t, machine, v)
	assert(t, len(outer) == 2, "expected 2 elements, got %d", len(outer))
	assert(t, outer[0].Tag == TagSymbol, "expected first element to be the symbol a")
	assert(t, machine.interner.GetInterned(int32(outer[0].I)) == "a", "expected symbol a")

	inner := outer[1]
	assert(t, inner.Tag == TagPair, "expected second element to be the nested back-quote list")
	innerElems := listElements(t, machine, inner)
	assert(t, len(innerElems) == 2, "expected inner list (back-quote (b (unquote ...))), got %d elems", len(innerElems))
	head, ok := headSymbolName(machine, inner)
	assert(t, ok, "expected a symbol head on the nested form")
	assert(t, head == "back-quote", "expected the nested back-quote to survive unevaluated, got %q", head)
}

func TestUnquoteSpliceBangSplicesInPlace(t *testing.T) {
	machine := NewVM()
	src := "`(1 ,.(list 2 3) 4)"
	v := mustCompileRun(t, machine, src)
	elems := listElements(t, machine, v)
	want := []int64{1, 2, 3, 4}
	assert(t, len(elems) == len(want), "expected %d elements, got %d", len(want), len(elems))
	for i, e := range elems {
		assert(t, e.I == want[i], "element %d: want %d, got %d", i, want[i], e.I)
	}
}

func TestUnquoteSpliceAtAtomPositionIsAnError(t *testing.T) {
	machine := NewVM()
	// The whole back-quote body is the splice form itself, not a list
	// element containing it, so it lands in atom position at depth 0 and
	// must be rejected even though the reader accepts it (it's a valid
	// unquote-splice one level inside the back-quote).
	exprs, err := ReadAll(machine, "<test>", "`,@x")
	assert(t, err == nil, "unexpected read error: %v", err)
	_, err = Compile(machine, "<test>", 1, exprs[0])
	assert(t, err != nil, "expected an error splicing at atom position")
}

func TestQuasiquoteOverVectorRewritesEachElement(t *testing.T) {
	machine := NewVM()
	src := "`#(1 ,(+ 1 1) 3)"
	v := mustCompileRun(t, machine, src)
	assert(t, v.Tag == TagVector, "expected a vector, got %s", fmtValue(machine, v))
	vec := machine.heap.getVector(v.I)
	assert(t, len(vec.Items) == 3, "expected 3 elements, got %d", len(vec.Items))
	want := []int64{1, 2, 3}
	for i, e := range vec.Items {
		assert(t, e.Tag == TagInt, "element %d: expected an int, got %s", i, fmtValue(machine, e))
		assert(t, e.I == want[i], "element %d: want %d, got %d", i, want[i], e.I)
	}
}

func TestQuasiquoteWithNoUnquoteReturnsEquivalentLiteralData(t *testing.T) {
	machine := NewVM()
	v := mustCompileRun(t, machine, "`(a b c)")
	elems := listElements(t, machine, v)
	assert(t, len(elems) == 3, "expected 3 elements, got %d", len(elems))
	names := []string{"a", "b", "c"}
	for i, e := range elems {
		assert(t, e.Tag == TagSymbol, "element %d: expected a symbol", i)
		assert(t, machine.interner.GetInterned(int32(e.I)) == names[i], "element %d: want %s", i, names[i])
	}
}
