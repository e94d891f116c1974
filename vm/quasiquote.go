package vm

// Bawden's depth-tracked quasi-quote rewrite. Input is a value already
// tagged with back-quote (the reader's desugaring of `x`); depth starts at
// 0 for the outermost back-quote body. The output is a new value graph of
// calls to list/list-append/vec/quote, which the ordinary compiler path
// then handles like any other call.
func backQuoteExpand(vm *VM, body Value) (Value, error) {
	return qqExpand(vm, body, 0)
}

// callForm builds a (head arg...) list value, interning head if needed.
func (vm *VM) callForm(head string, args ...Value) Value {
	sym := Symbol(vm.interner.Intern(head))
	result := Nil
	for i := len(args) - 1; i >= 0; i-- {
		h := vm.heap.allocPair(args[i], result)
		result = Handle(TagPair, h)
	}
	h := vm.heap.allocPair(sym, result)
	return Handle(TagPair, h)
}

func secondOf(vm *VM, pairVal Value) Value {
	p := vm.heap.getPair(pairVal.I)
	if p.Cdr.Tag != TagPair {
		return Nil
	}
	return vm.heap.getPair(p.Cdr.I).Car
}

func headSymbolName(vm *VM, x Value) (string, bool) {
	if x.Tag != TagPair {
		return "", false
	}
	p := vm.heap.getPair(x.I)
	if p.Car.Tag != TagSymbol {
		return "", false
	}
	return vm.interner.GetInterned(int32(p.Car.I)), true
}

// qqExpand rewrites x in atom position at the given depth.
func qqExpand(vm *VM, x Value, depth int) (Value, error) {
	switch x.Tag {
	case TagVector:
		vec := vm.heap.getVector(x.I)
		elems := make([]Value, 0, len(vec.Items))
		for _, e := range vec.Items {
			ex, err := qqExpand(vm, e, depth)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, ex)
		}
		return vm.callForm("vec", elems...), nil
	case TagPair:
		if name, ok := headSymbolName(vm, x); ok {
			switch name {
			case "unquote":
				arg := secondOf(vm, x)
				if depth == 0 {
					return arg, nil
				}
				inner, err := qqExpand(vm, arg, depth-1)
				if err != nil {
					return Value{}, err
				}
				return rewrap(vm, "unquote", inner), nil
			case "back-quote":
				arg := secondOf(vm, x)
				inner, err := qqExpand(vm, arg, depth+1)
				if err != nil {
					return Value{}, err
				}
				return rewrap(vm, "back-quote", inner), nil
			case "unquote-splice":
				if depth == 0 {
					return Value{}, errSpliceAtom
				}
				inner, err := qqExpand(vm, secondOf(vm, x), depth-1)
				if err != nil {
					return Value{}, err
				}
				return rewrap(vm, "unquote-splice", inner), nil
			case "unquote-splice!":
				if depth == 0 {
					return Value{}, errSpliceBangAtom
				}
				inner, err := qqExpand(vm, secondOf(vm, x), depth-1)
				if err != nil {
					return Value{}, err
				}
				return rewrap(vm, "unquote-splice!", inner), nil
			}
		}
		p := vm.heap.getPair(x.I)
		a, err := qqExpandList(vm, p.Car, depth)
		if err != nil {
			return Value{}, err
		}
		if p.Cdr.Tag == TagNil {
			return a, nil
		}
		b, err := qqExpand(vm, p.Cdr, depth)
		if err != nil {
			return Value{}, err
		}
		return vm.callForm("list-append", a, b), nil
	default:
		return vm.callForm("quote", x), nil
	}
}

// qqExpandList rewrites x in list-element position: a non-splicing element
// contributes a one-element list so list-append can concatenate it with
// its neighbors; a splicing element at depth 0 contributes its value
// directly.
func qqExpandList(vm *VM, x Value, depth int) (Value, error) {
	if depth == 0 {
		if name, ok := headSymbolName(vm, x); ok && (name == "unquote-splice" || name == "unquote-splice!") {
			return secondOf(vm, x), nil
		}
	}
	inner, err := qqExpand(vm, x, depth)
	if err != nil {
		return Value{}, err
	}
	return vm.callForm("list", inner), nil
}

// rewrap reconstructs a (tag inner) form as data: (list (quote tag) inner).
func rewrap(vm *VM, tag string, inner Value) Value {
	tagSym := vm.callForm("quote", Symbol(vm.interner.Intern(tag)))
	return vm.callForm("list", tagSym, inner)
}
