package vm

// arithOp and arithOpErr apply a register-to-register binary numeric op;
// addm/subm/mulm never fail, divm can (divide by zero).
func arithOp(f *frame, d DecodedInstr, fn func(a, b Value) Value) error {
	f.regs[d.A] = fn(f.regs[d.B], f.regs[d.C])
	return nil
}

func arithOpErr(f *frame, d DecodedInstr, fn func(a, b Value) (Value, error)) error {
	v, err := fn(f.regs[d.B], f.regs[d.C])
	if err != nil {
		return err
	}
	f.regs[d.A] = v
	return nil
}

func bothUint(a, b Value) bool { return a.Tag == TagUint && b.Tag == TagUint }
func eitherFloat(a, b Value) bool { return a.Tag == TagFloat || b.Tag == TagFloat }

func numAdd(a, b Value) Value {
	switch {
	case eitherFloat(a, b):
		return Float(a.AsFloat() + b.AsFloat())
	case bothUint(a, b):
		return Uint(uint64(a.I) + uint64(b.I))
	default:
		return Int(a.AsInt() + b.AsInt())
	}
}

func numSub(a, b Value) Value {
	switch {
	case eitherFloat(a, b):
		return Float(a.AsFloat() - b.AsFloat())
	case bothUint(a, b):
		return Uint(uint64(a.I) - uint64(b.I))
	default:
		return Int(a.AsInt() - b.AsInt())
	}
}

func numMul(a, b Value) Value {
	switch {
	case eitherFloat(a, b):
		return Float(a.AsFloat() * b.AsFloat())
	case bothUint(a, b):
		return Uint(uint64(a.I) * uint64(b.I))
	default:
		return Int(a.AsInt() * b.AsInt())
	}
}

func numDiv(a, b Value) (Value, error) {
	if eitherFloat(a, b) {
		bf := b.AsFloat()
		if bf == 0 {
			return Value{}, errDivideByZero
		}
		return Float(a.AsFloat() / bf), nil
	}
	bi := b.AsInt()
	if bi == 0 {
		return Value{}, errDivideByZero
	}
	if bothUint(a, b) {
		return Uint(uint64(a.I) / uint64(bi)), nil
	}
	return Int(a.AsInt() / bi), nil
}

func compareValues(a, b Value) int {
	if eitherFloat(a, b) {
		af, bf := a.AsFloat(), b.AsFloat()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	ai, bi := a.AsInt(), b.AsInt()
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	default:
		return 0
	}
}

// numCompareRange applies pred to every adjacent pair in regs[first..last]
// (inclusive) and ANDs the results, matching a chained comparison like
// (< a b c).
func numCompareRange(f *frame, d DecodedInstr, pred func(cmp int) bool) bool {
	first, last := int(d.B), int(d.C)
	for i := first; i < last; i++ {
		if !pred(compareValues(f.regs[i], f.regs[i+1])) {
			return false
		}
	}
	return true
}
