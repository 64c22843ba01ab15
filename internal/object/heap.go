package object

// sizeOf approximates the footprint of a heap object for the allocator's
// bytes_allocated bookkeeping (spec §4.6). Go's real allocator and GC do
// the actual memory management; this number only drives when our
// simulated collector decides to run, so a rough constant-per-kind
// estimate is enough — precision here buys nothing.
func sizeOf(o Obj) int {
	switch o.(type) {
	case *ObjString:
		return 40
	case *ObjFunction:
		return 64
	case *ObjNative:
		return 32
	case *ObjClosure:
		return 32
	case *ObjUpvalue:
		return 24
	case *ObjClass:
		return 40
	case *ObjInstance:
		return 40
	case *ObjBoundMethod:
		return 24
	default:
		return 16
	}
}

const defaultNextGC = 1 << 20 // 1 MiB, per spec §4.6

// RootFunc is supplied by a root source (the VM, or a live compiler) and
// is invoked during the mark phase to mark everything that source can
// reach. mark marks a heap object; markValue marks a Value that might be
// wrapping one.
type RootFunc func(mark func(Obj), markValue func(Value))

// Heap owns every heap object reachable from the running program: the
// allocation-order linked list, the precise mark-sweep collector, the
// string intern table, and the globals table. Compiler and VM both
// allocate through it and both register root-marking callbacks with it.
type Heap struct {
	head           Obj
	bytesAllocated int
	nextGC         int

	Strings *Table // string intern table
	Globals *Table // global variable bindings

	InitString *ObjString

	roots []RootFunc
	gray  []Obj

	// Log, if non-nil, receives a one-line summary after every
	// collection (wired to humanize byte counts by VM.EnableGCLog, which
	// the CLI's -gc-log flag turns on).
	Log func(collected, bytesAllocated, nextGC int)
}

// BytesAllocated reports the collector's current bookkeeping total,
// surfaced by the REPL's :stats command.
func (h *Heap) BytesAllocated() int { return h.bytesAllocated }

// NextGC reports the allocation threshold the next collection will fire
// at, surfaced by the REPL's :stats command.
func (h *Heap) NextGC() int { return h.nextGC }

func NewHeap() *Heap {
	h := &Heap{
		Strings: NewTable(),
		Globals: NewTable(),
		nextGC:  defaultNextGC,
	}
	h.InitString = h.InternString("init")
	return h
}

// AddRoot registers a root-marking callback that stays active until
// RemoveRoot unregisters it. The compiler's top-level Compile call and the VM's constructor
// each register exactly one; returns an index usable with RemoveRoot.
func (h *Heap) AddRoot(fn RootFunc) int {
	h.roots = append(h.roots, fn)
	return len(h.roots) - 1
}

// RemoveRoot unregisters a root callback (the compiler does this once
// top-level compilation finishes — a finished compile no longer has any
// in-progress function chain to protect).
func (h *Heap) RemoveRoot(index int) {
	if index >= 0 && index < len(h.roots) {
		h.roots[index] = nil
	}
}

func (h *Heap) link(o Obj) {
	hdr := o.Hdr()
	hdr.Next = h.head
	h.head = o
	h.bytesAllocated += sizeOf(o)
}

// MaybeCollect triggers a collection if bytes_allocated has crossed
// nextGC. The VM calls it once after every instruction; allocating an
// object never triggers a collection by itself.
func (h *Heap) MaybeCollect() {
	if h.bytesAllocated > h.nextGC {
		h.Collect()
	}
}

// NewString allocates a fresh, un-interned ObjString. Most callers want
// InternString instead; this exists for Heap's own bootstrap use and for
// callers that have already done the intern lookup themselves.
func (h *Heap) NewString(chars string) *ObjString {
	s := &ObjString{Chars: chars, Hash: FNV1a32(chars)}
	s.Kind = ObjKindString
	h.link(s)
	return s
}

// InternString returns the unique ObjString for chars, allocating and
// installing one if this content has never been seen before. Two calls
// with equal content always return the identical pointer (spec §4.4
// copyString).
func (h *Heap) InternString(chars string) *ObjString {
	hash := FNV1a32(chars)
	if existing := h.Strings.FindString(chars, hash); existing != nil {
		return existing
	}
	s := h.NewString(chars)
	h.Strings.Set(s, Nil())
	return s
}

func (h *Heap) NewFunction() *ObjFunction {
	f := &ObjFunction{Chunk: NewChunk()}
	f.Kind = ObjKindFunction
	h.link(f)
	return f
}

func (h *Heap) NewNative(name string, fn NativeFn) *ObjNative {
	n := &ObjNative{Name: name, Fn: fn}
	n.Kind = ObjKindNative
	h.link(n)
	return n
}

func (h *Heap) NewClosure(fn *ObjFunction) *ObjClosure {
	c := &ObjClosure{Function: fn, Upvalues: make([]*ObjUpvalue, fn.UpvalueCount)}
	c.Kind = ObjKindClosure
	h.link(c)
	return c
}

func (h *Heap) NewUpvalue(location *Value) *ObjUpvalue {
	u := &ObjUpvalue{Location: location}
	u.Kind = ObjKindUpvalue
	h.link(u)
	return u
}

func (h *Heap) NewClass(name *ObjString) *ObjClass {
	c := &ObjClass{Name: name, Methods: NewTable()}
	c.Kind = ObjKindClass
	h.link(c)
	return c
}

func (h *Heap) NewInstance(class *ObjClass) *ObjInstance {
	i := &ObjInstance{Class: class, Fields: NewTable()}
	i.Kind = ObjKindInstance
	h.link(i)
	return i
}

func (h *Heap) NewBoundMethod(receiver Value, method *ObjClosure) *ObjBoundMethod {
	b := &ObjBoundMethod{Receiver: receiver, Method: method}
	b.Kind = ObjKindBoundMethod
	h.link(b)
	return b
}
