package vm

// heap is the minimal VM-owned object store the compiler's contract
// assumes: flat arenas addressed by handle (position), matching the
// teacher's array-of-handles style rather than pointer-chasing allocation.
// None of the compiler's invariants reach into this file's internals —
// only the §6 contract methods on VM do.
type heap struct {
	pairs    []Pair
	vectors  []Vector
	strings  []string
	lambdas  []*Lambda
	closures []*Closure

	// sticky holds a refcount per handle-kind+index while the compiler
	// (or a macro re-entry) needs it pinned against collection.
	stickyPairs   map[int64]int
	stickyVectors map[int64]int

	// heap-level properties (used for the reader's :dbg-line/:dbg-col
	// markers and for get-prop/set-prop builtins).
	properties map[int64]map[int32]Value
}

func newHeap() *heap {
	return &heap{
		stickyPairs:   make(map[int64]int),
		stickyVectors: make(map[int64]int),
		properties:    make(map[int64]map[int32]Value),
	}
}

// Lambda is a compiled function: its chunk plus nothing else (no captured
// values — those live in a Closure).
type Lambda struct {
	Chunk *Chunk
	Name  string
}

// Closure pairs a lambda with the resolved values for each of its chunk's
// captures, materialized at CLOSE time.
type Closure struct {
	Lambda  *Lambda
	Capture []Value
}

func (h *heap) allocPair(car, cdr Value) int64 {
	idx := int64(len(h.pairs))
	h.pairs = append(h.pairs, Pair{Car: car, Cdr: cdr})
	return idx
}

func (h *heap) allocPairMeta(car, cdr Value, line, col int) int64 {
	idx := int64(len(h.pairs))
	h.pairs = append(h.pairs, Pair{Car: car, Cdr: cdr, HasMeta: true, Line: line, Col: col})
	return idx
}

func (h *heap) getPair(handle int64) *Pair {
	return &h.pairs[handle]
}

func (h *heap) allocVector(items []Value) int64 {
	idx := int64(len(h.vectors))
	h.vectors = append(h.vectors, Vector{Items: items})
	return idx
}

func (h *heap) getVector(handle int64) *Vector {
	return &h.vectors[handle]
}

func (h *heap) allocString(s string) int64 {
	idx := int64(len(h.strings))
	h.strings = append(h.strings, s)
	return idx
}

func (h *heap) getString(handle int64) string {
	return h.strings[handle]
}

func (h *heap) allocLambda(l *Lambda) int64 {
	idx := int64(len(h.lambdas))
	h.lambdas = append(h.lambdas, l)
	return idx
}

func (h *heap) getLambda(handle int64) *Lambda {
	return h.lambdas[handle]
}

func (h *heap) allocClosure(c *Closure) int64 {
	idx := int64(len(h.closures))
	h.closures = append(h.closures, c)
	return idx
}

func (h *heap) getClosure(handle int64) *Closure {
	return h.closures[handle]
}

func (h *heap) heapStickyPair(handle int64) {
	h.stickyPairs[handle]++
}

func (h *heap) heapUnstickyPair(handle int64) {
	if h.stickyPairs[handle] > 0 {
		h.stickyPairs[handle]--
	}
}

func propKey(tag Tag, handle int64) int64 {
	// Distinguish kinds sharing the same numeric handle space by folding
	// the tag into the high byte; handles never approach 2^55 in practice.
	return int64(tag)<<56 | handle
}

func (h *heap) getProperty(tag Tag, handle int64, key int32) (Value, bool) {
	m, ok := h.properties[propKey(tag, handle)]
	if !ok {
		return Value{}, false
	}
	v, ok := m[key]
	return v, ok
}

func (h *heap) setProperty(tag Tag, handle int64, key int32, v Value) {
	pk := propKey(tag, handle)
	m, ok := h.properties[pk]
	if !ok {
		m = make(map[int32]Value, 2)
		h.properties[pk] = m
	}
	m[key] = v
}
