package vm

import "testing"

func TestScopeInsertAssignsSlotsInInsertionOrder(t *testing.T) {
	in := NewInterner()
	s := NewScope(nil)
	names := []string{"a", "b", "c", "d"}
	for i, n := range names {
		slot := s.Insert(in.Intern(n))
		assert(t, slot == i, "expected %s to land at slot %d, got %d", n, i, slot)
	}
	assert(t, s.Len() == len(names), "expected Len() == %d, got %d", len(names), s.Len())

	// Re-inserting an already-bound name returns its existing slot rather
	// than allocating a new one.
	again := s.Insert(in.Intern("b"))
	assert(t, again == 1, "re-insert of an existing name should return its original slot")
	assert(t, s.Len() == len(names), "re-insert must not grow the scope")
}

func TestCanCaptureIsTrueOnlyForOuterLocals(t *testing.T) {
	in := NewInterner()
	outer := NewScope(nil)
	outer.Insert(in.Intern("x"))
	inner := NewScope(outer)

	assert(t, inner.CanCapture(in.Intern("x")), "x is local to outer, should be capturable from inner")
	assert(t, !inner.CanCapture(in.Intern("y")), "y is bound nowhere, should not be capturable")
	assert(t, !outer.CanCapture(in.Intern("x")), "x is local to outer itself, not an outer ancestor of outer")
}

func TestInsertCaptureThreadsThroughEveryIntermediateScope(t *testing.T) {
	in := NewInterner()
	top := NewScope(nil)
	top.Insert(in.Intern("x"))
	middle := NewScope(top)
	inner := NewScope(middle)

	sym := in.Intern("x")
	slot, ok := inner.InsertCapture(sym)
	assert(t, ok, "expected InsertCapture to succeed")
	assert(t, inner.Contains(sym), "inner scope should now bind x as a captured local")
	assert(t, middle.Contains(sym), "middle scope (the intermediate ancestor) must also bind x")
	assert(t, slot == inner.slots[sym], "returned slot should match the scope's own mapping")

	// Both inner and middle recorded a capture entry.
	assert(t, len(inner.captures) == 1, "inner should have recorded one capture")
	assert(t, len(middle.captures) == 1, "middle should have recorded one capture")
	assert(t, middle.captures[0].OuterSlot == top.slots[sym], "middle's capture should point at top's slot for x")
}

func TestInsertCaptureFailsWhenNowhereBound(t *testing.T) {
	in := NewInterner()
	top := NewScope(nil)
	inner := NewScope(top)
	_, ok := inner.InsertCapture(in.Intern("nowhere"))
	assert(t, !ok, "InsertCapture should fail for a name bound in no ancestor scope")
}
