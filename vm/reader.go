package vm

import (
	"strconv"
	"strings"

	"github.com/rivo/uniseg"
)

// Reader is a grapheme-aware, context-tracking tokenizer/parser. It
// consumes a grapheme-cluster stream (segmented up front by uniseg, so a
// combining accent or a ZWJ emoji sequence counts as one unit rather than
// several codepoints) and emits a Value graph, tracking (line, column)
// for error messages and for tagging pair metadata.
type Reader struct {
	vm       *VM
	src      []string
	pos      int
	line     int
	col      int
	fileName string
}

func newReader(vm *VM, fileName, text string) *Reader {
	gr := uniseg.NewGraphemes(text)
	clusters := make([]string, 0, len(text))
	for gr.Next() {
		clusters = append(clusters, gr.Str())
	}
	return &Reader{vm: vm, src: clusters, line: 1, col: 0, fileName: fileName}
}

func (r *Reader) eof() bool { return r.pos >= len(r.src) }

// peek returns the cluster at the current position, or "" at EOF. "" is
// never itself a valid cluster produced by uniseg, so it's a safe
// sentinel.
func (r *Reader) peek() string {
	if r.eof() {
		return ""
	}
	return r.src[r.pos]
}

func (r *Reader) peekAt(off int) string {
	if r.pos+off >= len(r.src) {
		return ""
	}
	return r.src[r.pos+off]
}

// isNewline reports whether a cluster represents a line break. uniseg
// joins a CR immediately followed by LF into one cluster, so both forms
// are checked.
func isNewline(c string) bool { return c == "\n" || c == "\r" || c == "\r\n" }

func (r *Reader) advance() string {
	c := r.src[r.pos]
	r.pos++
	if isNewline(c) {
		r.line++
		r.col = 0
	} else {
		r.col++
	}
	return c
}

func (r *Reader) errHere(reason error, detail string) error {
	return &CompileError{File: r.fileName, Line: r.line, Col: r.col, Reason: reason, Detail: detail}
}

// ReadAll returns a vector of every top-level form in text.
func ReadAll(vm *VM, fileName, text string) ([]Value, error) {
	r := newReader(vm, fileName, text)
	r.consumeShebang()
	var out []Value
	for {
		r.skipAtmosphere()
		if r.eof() {
			break
		}
		if r.peek() == ")" {
			return nil, r.errHere(errStrayCloseParen, "")
		}
		v, err := r.readForm(0)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Read wraps a multi-form input into a vector value when listOnly is true,
// so a typed line can be treated as one sequence of forms (the REPL in
// main.go calls ReadAll instead).
func Read(vm *VM, fileName, text string, listOnly bool) (Value, error) {
	forms, err := ReadAll(vm, fileName, text)
	if err != nil {
		return Value{}, err
	}
	if !listOnly && len(forms) == 1 {
		return forms[0], nil
	}
	h := vm.heap.allocVector(forms)
	return Handle(TagVector, h), nil
}

func (r *Reader) consumeShebang() {
	if r.peek() == "#" && r.peekAt(1) == "!" {
		for !r.eof() && !isNewline(r.peek()) {
			r.advance()
		}
	}
}

func isWS(c string) bool {
	return c == " " || c == "\t" || isNewline(c)
}

func isDelimiter(c string) bool {
	switch c {
	case "(", ")", "'", "`", ",", "\"", ";", "":
		return true
	}
	return isWS(c)
}

// skipAtmosphere consumes whitespace, line comments, nestable block
// comments, and datum comments (#;expr, which discards the next form).
func (r *Reader) skipAtmosphere() error {
	for {
		for !r.eof() && isWS(r.peek()) {
			r.advance()
		}
		if r.eof() {
			return nil
		}
		if r.peek() == ";" {
			for !r.eof() && !isNewline(r.peek()) {
				r.advance()
			}
			continue
		}
		if r.peek() == "#" && r.peekAt(1) == "|" {
			r.advance()
			r.advance()
			depth := 1
			for depth > 0 {
				if r.eof() {
					return r.errHere(errUnclosedBlockComment, "")
				}
				if r.peek() == "#" && r.peekAt(1) == "|" {
					r.advance()
					r.advance()
					depth++
				} else if r.peek() == "|" && r.peekAt(1) == "#" {
					r.advance()
					r.advance()
					depth--
				} else {
					r.advance()
				}
			}
			continue
		}
		if r.peek() == "#" && r.peekAt(1) == ";" {
			r.advance()
			r.advance()
			r.skipAtmosphere()
			if _, err := r.readForm(0); err != nil {
				return err
			}
			continue
		}
		return nil
	}
}

// readForm dispatches on the next non-atmosphere character. quasi is the
// current back-quote nesting depth (0 outside any back-quote), used only
// to validate bare unquote/splice placement; the actual Bawden rewrite
// happens later, in the compiler, on the (back-quote ...) form this
// produces.
func (r *Reader) readForm(quasi int) (Value, error) {
	if err := r.skipAtmosphere(); err != nil {
		return Value{}, err
	}
	if r.eof() {
		return Value{}, r.errHere(errPrematureEnd, "")
	}

	c := r.peek()
	switch {
	case c == "(":
		r.advance()
		return r.readList(quasi)
	case c == ")":
		return Value{}, r.errHere(errStrayCloseParen, "")
	case c == "'":
		r.advance()
		inner, err := r.readForm(quasi)
		if err != nil {
			return Value{}, err
		}
		return r.wrap("quote", inner), nil
	case c == "`":
		r.advance()
		inner, err := r.readForm(quasi + 1)
		if err != nil {
			return Value{}, err
		}
		return r.wrap("back-quote", inner), nil
	case c == ",":
		r.advance()
		splice := false
		spliceBang := false
		if r.peek() == "@" {
			r.advance()
			splice = true
		} else if r.peek() == "." {
			r.advance()
			spliceBang = true
		}
		if quasi == 0 {
			return Value{}, r.errHere(errUnquoteOutsideQQ, "")
		}
		inner, err := r.readForm(quasi - 1)
		if err != nil {
			return Value{}, err
		}
		switch {
		case spliceBang:
			return r.wrap("unquote-splice!", inner), nil
		case splice:
			return r.wrap("unquote-splice", inner), nil
		default:
			return r.wrap("unquote", inner), nil
		}
	case c == "\"":
		r.advance()
		return r.readString()
	case c == "#":
		return r.readDispatch(quasi)
	default:
		return r.readAtom()
	}
}

func (r *Reader) wrap(head string, inner Value) Value {
	sym := Symbol(r.vm.interner.Intern(head))
	cdr := r.vm.heap.allocPair(inner, Nil)
	h := r.vm.heap.allocPairMeta(sym, Handle(TagPair, cdr), r.line, r.col)
	return Handle(TagPair, h)
}

// readList parses the body of a list after the opening '(' has been
// consumed, including dotted-pair syntax and the back-quote interaction
// where a dotted tail of `,x` rewrites to (unquote x) in place.
func (r *Reader) readList(quasi int) (Value, error) {
	startLine, startCol := r.line, r.col
	var items []Value
	tail := Nil
	for {
		if err := r.skipAtmosphere(); err != nil {
			return Value{}, err
		}
		if r.eof() {
			return Value{}, r.errHere(errUnclosedList, "")
		}
		if r.peek() == ")" {
			r.advance()
			break
		}
		if r.peek() == "." && isDelimiter(r.peekAt(1)) {
			if len(items) == 0 {
				return Value{}, r.errHere(errBadDot, "nothing before the dot")
			}
			r.advance()
			dotted, err := r.readForm(quasi)
			if err != nil {
				return Value{}, err
			}
			if isUnquoteSpliceForm(r.vm, dotted) {
				return Value{}, r.errHere(errDotSpliceTail, "")
			}
			tail = dotted
			if err := r.skipAtmosphere(); err != nil {
				return Value{}, err
			}
			if r.eof() || r.peek() != ")" {
				return Value{}, r.errHere(errBadDot, "more than one form after the dot")
			}
			r.advance()
			break
		}
		v, err := r.readForm(quasi)
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
	}
	return r.buildList(items, tail, startLine, startCol), nil
}

func isUnquoteSpliceForm(vm *VM, v Value) bool {
	if v.Tag != TagPair {
		return false
	}
	p := vm.heap.getPair(v.I)
	if p.Car.Tag != TagSymbol {
		return false
	}
	name := vm.interner.GetInterned(int32(p.Car.I))
	return name == "unquote-splice" || name == "unquote-splice!"
}

func (r *Reader) buildList(items []Value, tail Value, line, col int) Value {
	result := tail
	for i := len(items) - 1; i >= 0; i-- {
		h := r.vm.heap.allocPairMeta(items[i], result, line, col)
		result = Handle(TagPair, h)
	}
	return result
}

func (r *Reader) readVectorBody(quasi int) (Value, error) {
	var items []Value
	for {
		if err := r.skipAtmosphere(); err != nil {
			return Value{}, err
		}
		if r.eof() {
			return Value{}, r.errHere(errUnclosedVector, "")
		}
		if r.peek() == ")" {
			r.advance()
			break
		}
		v, err := r.readForm(quasi)
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
	}
	h := r.vm.heap.allocVector(items)
	return Handle(TagVector, h), nil
}

func (r *Reader) readDispatch(quasi int) (Value, error) {
	r.advance() // consume '#'
	if r.eof() {
		return Value{}, r.errHere(errBadDispatch, "")
	}
	switch r.peek() {
	case "(":
		r.advance()
		return r.readVectorBody(quasi)
	case "\\":
		r.advance()
		return r.readChar()
	case "t":
		r.advance()
		r.consumeWordTail()
		return True, nil
	case "f":
		r.advance()
		r.consumeWordTail()
		return False, nil
	case "x", "o", "b":
		radixChar := r.peek()
		r.advance()
		return r.readRadixNumber(radixChar)
	case "\"":
		r.advance()
		return r.readLiteralString()
	default:
		return Value{}, r.errHere(errBadDispatch, r.peek())
	}
}

func (r *Reader) consumeWordTail() {
	for !r.eof() && !isDelimiter(r.peek()) {
		r.advance()
	}
}

func (r *Reader) readRadixNumber(radixChar string) (Value, error) {
	base := 16
	switch radixChar {
	case "o":
		base = 8
	case "b":
		base = 2
	}
	var sb strings.Builder
	for !r.eof() && !isDelimiter(r.peek()) {
		c := r.advance()
		if c == "_" {
			continue
		}
		sb.WriteString(c)
	}
	n, err := strconv.ParseInt(sb.String(), base, 64)
	if err != nil {
		return Value{}, r.errHere(errBadDispatch, "invalid radix literal")
	}
	return Int(n), nil
}

// readChar parses a #\ character literal: #\A, #\space, #\tab, #\newline,
// #\linefeed, #\return, #\backspace, #\xNN hex escape, #\uNNNN /
// #\u{NNNN} unicode scalar, or a literal grapheme cluster.
func (r *Reader) readChar() (Value, error) {
	if r.eof() {
		return Value{}, r.errHere(errBadEscape, "truncated character literal")
	}
	// Gather the raw token up to the next delimiter to check named forms.
	start := r.pos
	for !r.eof() && !isDelimiter(r.peek()) {
		r.advance()
	}
	if r.pos == start {
		// Delimiter char itself used as the literal, e.g. #\( or #\space-adjacent punctuation.
		c := []rune(r.advance())
		return Codepoint(c[0]), nil
	}
	tok := strings.Join(r.src[start:r.pos], "")
	switch tok {
	case "space":
		return Codepoint(' '), nil
	case "tab":
		return Codepoint('\t'), nil
	case "newline", "linefeed":
		return Codepoint('\n'), nil
	case "return":
		return Codepoint('\r'), nil
	case "backspace":
		return Codepoint('\b'), nil
	}
	if strings.HasPrefix(tok, "x") {
		n, err := strconv.ParseInt(tok[1:], 16, 32)
		if err != nil {
			return Value{}, r.errHere(errBadEscape, tok)
		}
		return Codepoint(rune(n)), nil
	}
	if strings.HasPrefix(tok, "u") {
		rest := tok[1:]
		rest = strings.TrimPrefix(rest, "{")
		rest = strings.TrimSuffix(rest, "}")
		n, err := strconv.ParseInt(rest, 16, 32)
		if err != nil {
			return Value{}, r.errHere(errBadUnicodeEscape, tok)
		}
		return Codepoint(rune(n)), nil
	}
	runes := []rune(tok)
	if len(runes) == 1 {
		return Codepoint(runes[0]), nil
	}
	if len(tok) <= 14 {
		return charCluster(tok), nil
	}
	h := r.vm.heap.allocString(tok)
	return Handle(TagCharClusterLong, h), nil
}

func (r *Reader) readString() (Value, error) {
	var sb strings.Builder
	for {
		if r.eof() {
			return Value{}, r.errHere(errUnclosedString, "")
		}
		c := r.advance()
		if c == "\"" {
			break
		}
		if c == "\\" {
			if r.eof() {
				return Value{}, r.errHere(errBadEscape, "")
			}
			esc := r.advance()
			switch esc {
			case "n":
				sb.WriteByte('\n')
			case "r":
				sb.WriteByte('\r')
			case "t":
				sb.WriteByte('\t')
			case "\"":
				sb.WriteByte('"')
			case "\\":
				sb.WriteByte('\\')
			case "x":
				var hex strings.Builder
				for i := 0; i < 2 && !r.eof(); i++ {
					hex.WriteString(r.advance())
				}
				n, err := strconv.ParseInt(hex.String(), 16, 32)
				if err != nil {
					return Value{}, r.errHere(errBadEscape, hex.String())
				}
				sb.WriteByte(byte(n))
			case "u":
				if r.eof() || r.peek() != "{" {
					return Value{}, r.errHere(errBadUnicodeEscape, "")
				}
				r.advance()
				var hex strings.Builder
				for !r.eof() && r.peek() != "}" {
					hex.WriteString(r.advance())
				}
				if r.eof() {
					return Value{}, r.errHere(errBadUnicodeEscape, "")
				}
				r.advance() // consume '}'
				n, err := strconv.ParseInt(hex.String(), 16, 32)
				if err != nil {
					return Value{}, r.errHere(errBadUnicodeEscape, hex.String())
				}
				sb.WriteRune(rune(n))
			default:
				return Value{}, r.errHere(errBadEscape, esc)
			}
			continue
		}
		sb.WriteString(c)
	}
	h := r.vm.heap.allocString(sb.String())
	return Handle(TagString, h), nil
}

// readLiteralString implements #"DELIM ... DELIM" where the first
// character after #" is the terminator, which must itself be followed by
// a closing quote.
func (r *Reader) readLiteralString() (Value, error) {
	if r.eof() {
		return Value{}, r.errHere(errUnclosedString, "")
	}
	delim := r.advance()
	var sb strings.Builder
	for {
		if r.eof() {
			return Value{}, r.errHere(errUnclosedString, "")
		}
		c := r.advance()
		if c == delim && r.peek() == "\"" {
			r.advance()
			break
		}
		sb.WriteString(c)
	}
	h := r.vm.heap.allocString(sb.String())
	return Handle(TagString, h), nil
}

// readAtom reads a bare token and classifies it as nil, a keyword (leading
// ':'), a number, or a symbol.
func (r *Reader) readAtom() (Value, error) {
	start := r.pos
	for !r.eof() && !isDelimiter(r.peek()) {
		r.advance()
	}
	tok := strings.Join(r.src[start:r.pos], "")
	if tok == "" {
		return Value{}, r.errHere(errBadDispatch, "empty token")
	}
	if tok == "nil" {
		return Nil, nil
	}
	if strings.HasPrefix(tok, ":") && len(tok) > 1 {
		return Keyword(r.vm.interner.Intern(tok[1:])), nil
	}
	if v, ok := tryParseNumber(tok); ok {
		return v, nil
	}
	return Symbol(r.vm.interner.Intern(tok)), nil
}

func isASCIIDigit(c byte) bool { return c >= '0' && c <= '9' }

// tryParseNumber classifies a bare token as decimal int or float, honoring
// `_` digit separators and rejecting malformed exponents (e.g. "23e-+5"),
// which fall back to being read as a plain symbol.
func tryParseNumber(tok string) (Value, bool) {
	if tok == "" {
		return Value{}, false
	}
	i := 0
	if tok[0] == '+' || tok[0] == '-' {
		i = 1
	}
	if i >= len(tok) || !isASCIIDigit(tok[i]) {
		return Value{}, false
	}
	hasDot, hasExp := false, false
	cleaned := make([]byte, 0, len(tok))
	for idx := 0; idx < len(tok); idx++ {
		c := tok[idx]
		switch {
		case c == '_':
			if idx == 0 || idx == len(tok)-1 || !isASCIIDigit(tok[idx-1]) || !isASCIIDigit(tok[idx+1]) {
				return Value{}, false
			}
			continue
		case c == '.':
			if hasDot || hasExp {
				return Value{}, false
			}
			hasDot = true
		case c == 'e' || c == 'E':
			if hasExp {
				return Value{}, false
			}
			hasExp = true
			if idx+1 < len(tok) && (tok[idx+1] == '+' || tok[idx+1] == '-') {
				if idx+2 < len(tok) && (tok[idx+2] == '+' || tok[idx+2] == '-') {
					return Value{}, false
				}
			}
		case c == '+' || c == '-':
			if idx != 0 {
				prev := tok[idx-1]
				if prev != 'e' && prev != 'E' {
					return Value{}, false
				}
			}
		case isASCIIDigit(c):
		default:
			return Value{}, false
		}
		cleaned = append(cleaned, c)
	}
	str := string(cleaned)
	if hasDot || hasExp {
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return Value{}, false
		}
		return Float(f), true
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return Value{}, false
	}
	return Int(n), true
}
