package vm

import "testing"

func TestReadAllCountsTopLevelForms(t *testing.T) {
	machine := NewVM()
	forms, err := ReadAll(machine, "<test>", "1 2 (+ 1 2) \"hi\" sym")
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, len(forms) == 5, "expected 5 top-level forms, got %d", len(forms))
}

func TestReadAllRejectsStrayCloseParen(t *testing.T) {
	machine := NewVM()
	_, err := ReadAll(machine, "<test>", "(+ 1 2))")
	assert(t, err != nil, "expected a stray-close-paren error")
}

func TestReadDottedPair(t *testing.T) {
	machine := NewVM()
	forms, err := ReadAll(machine, "<test>", "(a . b)")
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, len(forms) == 1, "expected one form")
	v := forms[0]
	assert(t, v.Tag == TagPair, "expected a pair, got %s", v.Tag.typeName())
	p := machine.heap.getPair(v.I)
	assert(t, p.Car.Tag == TagSymbol, "expected car to be a symbol")
	assert(t, p.Cdr.Tag == TagSymbol, "expected cdr to be the bare symbol b, not nil")
	assert(t, machine.interner.GetInterned(int32(p.Cdr.I)) == "b", "expected cdr symbol to be b")
}

func TestQuoteDesugaring(t *testing.T) {
	machine := NewVM()
	cases := map[string]string{
		"'x":  "quote",
		"`x":  "back-quote",
		",x":  "unquote",
		",@x": "unquote-splice",
		",.x": "unquote-splice!",
	}
	for src, wantHead := range cases {
		text := src
		if src[0] == ',' {
			// Bare unquote outside back-quote is rejected, so wrap it.
			text = "`(" + src + ")"
		}
		forms, err := ReadAll(machine, "<test>", text)
		assert(t, err == nil, "unexpected error reading %q: %v", text, err)
		v := forms[0]
		if src[0] == ',' {
			// v is (back-quote (<head> x)); descend to the inner form.
			bq := machine.heap.getPair(v.I)
			inner := machine.heap.getPair(bq.Cdr.I).Car
			innerList := machine.heap.getPair(inner.I).Car
			got := machine.heap.getPair(innerList.I)
			headSym := got.Car
			assert(t, headSym.Tag == TagSymbol, "expected a symbol head")
			name := machine.interner.GetInterned(int32(headSym.I))
			assert(t, name == wantHead, "src %q: want head %q, got %q", src, wantHead, name)
			continue
		}
		assert(t, v.Tag == TagPair, "src %q: expected a pair", src)
		p := machine.heap.getPair(v.I)
		assert(t, p.Car.Tag == TagSymbol, "src %q: expected car to be a symbol", src)
		name := machine.interner.GetInterned(int32(p.Car.I))
		assert(t, name == wantHead, "src %q: want head %q, got %q", src, wantHead, name)
	}
}

func TestCharLiteralOverMultiCodepointGraphemeCluster(t *testing.T) {
	machine := NewVM()
	// e + combining acute accent (U+0065 U+0301) is two codepoints but one
	// grapheme cluster; a codepoint-at-a-time reader would stop after the
	// bare "e" and leave the combining mark as a separate, dangling token.
	forms, err := ReadAll(machine, "<test>", "#\\é")
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, len(forms) == 1, "expected the whole cluster to read as one character literal, got %d forms", len(forms))
	v := forms[0]
	assert(t, v.Tag == TagCharCluster || v.Tag == TagCharClusterLong, "expected a char-cluster tag, got %s", v.Tag.typeName())
}

func TestReadAllTreatsCRLFAsOneLineBreakForLineComments(t *testing.T) {
	machine := NewVM()
	forms, err := ReadAll(machine, "<test>", "; a comment\r\n42")
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, len(forms) == 1, "expected one form after the comment, got %d", len(forms))
	assert(t, forms[0].Tag == TagInt && forms[0].I == 42, "expected 42, got %v", forms[0])
}

func TestNumericLiterals(t *testing.T) {
	machine := NewVM()
	intCases := map[string]int64{
		"#xff":   255,
		"#b11111111": 255,
		"#o17":   15,
		"2_300":  2300,
	}
	for src, want := range intCases {
		forms, err := ReadAll(machine, "<test>", src)
		assert(t, err == nil, "unexpected error reading %q: %v", src, err)
		v := forms[0]
		assert(t, v.Tag == TagInt, "src %q: expected an int, got %s", src, v.Tag.typeName())
		assert(t, v.I == want, "src %q: want %d, got %d", src, want, v.I)
	}

	forms, err := ReadAll(machine, "<test>", "23e-4")
	assert(t, err == nil, "unexpected error: %v", err)
	v := forms[0]
	assert(t, v.Tag == TagFloat, "expected a float, got %s", v.Tag.typeName())
	assert(t, v.F == 0.0023, "want 0.0023, got %v", v.F)

	forms, err = ReadAll(machine, "<test>", "23e-+5")
	assert(t, err == nil, "unexpected error: %v", err)
	v = forms[0]
	assert(t, v.Tag == TagSymbol, "malformed exponent should fall back to a symbol, got %s", v.Tag.typeName())
}
