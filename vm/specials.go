package vm

// Specials is a snapshot of every special-form and built-in-operator symbol
// the compiler dispatches on, interned once per VM and handed to every
// CompileState so pass 1/pass 2 compare interned handles instead of
// strings.
type Specials struct {
	Def, SetBang, Do, If, And, Or, Fn, Macro                Int32Sym
	Quote, BackQuote, Unquote, UnquoteSplice, UnquoteSpliceB Int32Sym
	Recur, ThisFn, Rest                                      Int32Sym

	Plus, Minus, Star, Slash                                      Int32Sym
	NumEq, NumNeq, NumLt, NumLte, NumGt, NumGte, EqP, EqualP       Int32Sym
	TypeOf, Not, Err, Str                                          Int32Sym
	List, ListAppend, Cons, Car, Cdr, XarBang, XdrBang              Int32Sym
	Vec, MakeVec, VecPush, VecPop, VecNth, VecSet, VecLen, VecClear Int32Sym
	IncBang, DecBang                                               Int32Sym

	notImplementedSet map[int32]string
}

// Int32Sym is an interned-symbol handle stored unboxed in Specials fields
// (avoids repeated Value{Tag:TagSymbol,...} construction on every compare).
type Int32Sym int32

func NewSpecials(in *Interner) *Specials {
	s := &Specials{}
	intern := func(name string) Int32Sym { return Int32Sym(in.Intern(name)) }

	s.Def = intern("def")
	s.SetBang = intern("set!")
	s.Do = intern("do")
	s.If = intern("if")
	s.And = intern("and")
	s.Or = intern("or")
	s.Fn = intern("fn")
	s.Macro = intern("macro")
	s.Quote = intern("quote")
	s.BackQuote = intern("back-quote")
	s.Unquote = intern("unquote")
	s.UnquoteSplice = intern("unquote-splice")
	s.UnquoteSpliceB = intern("unquote-splice!")
	s.Recur = intern("recur")
	s.ThisFn = intern("this-fn")
	s.Rest = intern("&rest")

	s.Plus = intern("+")
	s.Minus = intern("-")
	s.Star = intern("*")
	s.Slash = intern("/")
	s.NumEq = intern("=")
	s.NumNeq = intern("!=")
	s.NumLt = intern("<")
	s.NumLte = intern("<=")
	s.NumGt = intern(">")
	s.NumGte = intern(">=")
	s.EqP = intern("eq?")
	s.EqualP = intern("equal?")
	s.TypeOf = intern("type")
	s.Not = intern("not")
	s.Err = intern("err")
	s.Str = intern("str")
	s.List = intern("list")
	s.ListAppend = intern("list-append")
	s.Cons = intern("cons")
	s.Car = intern("car")
	s.Cdr = intern("cdr")
	s.XarBang = intern("xar!")
	s.XdrBang = intern("xdr!")
	s.Vec = intern("vec")
	s.MakeVec = intern("make-vec")
	s.VecPush = intern("vec-push!")
	s.VecPop = intern("vec-pop!")
	s.VecNth = intern("vec-nth")
	s.VecSet = intern("vec-set!")
	s.VecLen = intern("vec-len")
	s.VecClear = intern("vec-clear!")
	s.IncBang = intern("inc!")
	s.DecBang = intern("dec!")

	s.notImplementedSet = map[int32]string{
		int32(intern("let")):     "let",
		int32(intern("let*")):    "let*",
		int32(intern("call/cc")): "call/cc",
		int32(intern("defer")):   "defer",
		int32(intern("on-error")): "on-error",
	}
	return s
}

func (s *Specials) rejectedFormName(sym int32) (string, bool) {
	name, ok := s.notImplementedSet[sym]
	return name, ok
}
