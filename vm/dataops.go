package vm

// valuesEqualDeep implements equal?: structural comparison through pairs
// and vectors, falling back to ValuesEqual (eq?'s identity/numeric rule)
// for everything else.
func valuesEqualDeep(vm *VM, a, b Value) bool {
	if a.Tag == TagPair && b.Tag == TagPair {
		pa, pb := vm.heap.getPair(a.I), vm.heap.getPair(b.I)
		return valuesEqualDeep(vm, pa.Car, pb.Car) && valuesEqualDeep(vm, pa.Cdr, pb.Cdr)
	}
	if a.Tag == TagVector && b.Tag == TagVector {
		va, vb := vm.heap.getVector(a.I), vm.heap.getVector(b.I)
		if len(va.Items) != len(vb.Items) {
			return false
		}
		for i := range va.Items {
			if !valuesEqualDeep(vm, va.Items[i], vb.Items[i]) {
				return false
			}
		}
		return true
	}
	if (a.Tag == TagString || a.Tag == TagStringConst) && (b.Tag == TagString || b.Tag == TagStringConst) {
		return vm.stringOf(a) == vm.stringOf(b)
	}
	return ValuesEqual(a, b)
}

// stringOf resolves any string-shaped Value to its Go string, for equal?,
// str and the printer.
func (vm *VM) stringOf(v Value) string {
	switch v.Tag {
	case TagString:
		return vm.heap.getString(v.I)
	case TagStringConst:
		return vm.interner.GetInterned(int32(v.I))
	case TagCharCluster:
		return v.Inline
	case TagCharClusterLong:
		return vm.heap.getString(v.I)
	case TagSymbol:
		return vm.interner.GetInterned(int32(v.I))
	case TagKeyword:
		return ":" + vm.interner.GetInterned(int32(v.I))
	default:
		return vm.displayValue(v)
	}
}

func (vm *VM) rangeToStr(f *frame, d DecodedInstr) Value {
	var sb []byte
	for i := int(d.B); i <= int(d.C); i++ {
		sb = append(sb, vm.stringOf(f.regs[i])...)
	}
	h := vm.heap.allocString(string(sb))
	return Handle(TagString, h)
}

func (vm *VM) rangeToList(f *frame, d DecodedInstr) Value {
	result := Nil
	for i := int(d.C); i >= int(d.B); i-- {
		h := vm.heap.allocPair(f.regs[i], result)
		result = Handle(TagPair, h)
	}
	return result
}

func (vm *VM) rangeToVec(f *frame, d DecodedInstr) Value {
	items := make([]Value, 0, int(d.C)-int(d.B)+1)
	for i := int(d.B); i <= int(d.C); i++ {
		items = append(items, f.regs[i])
	}
	return Handle(TagVector, vm.heap.allocVector(items))
}

// listAppend concatenates two lists, copying a's spine so b (the shared
// tail) isn't mutated by future destructive operations on the result.
func (vm *VM) listAppend(a, b Value) Value {
	elems := listToSlice(vm, a)
	result := b
	for i := len(elems) - 1; i >= 0; i-- {
		h := vm.heap.allocPair(elems[i], result)
		result = Handle(TagPair, h)
	}
	return result
}
