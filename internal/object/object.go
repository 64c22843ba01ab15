package object

// ObjKind tags the concrete heap object kind, stored in the common header
// every heap object shares (spec §3: "all share a common header
// { type_tag, is_marked, next_in_heap_list }").
type ObjKind uint8

const (
	ObjKindString ObjKind = iota
	ObjKindFunction
	ObjKindNative
	ObjKindClosure
	ObjKindUpvalue
	ObjKindClass
	ObjKindInstance
	ObjKindBoundMethod
)

// Header is embedded in every heap object. Next threads the intrusive
// allocation-order heap list the collector sweeps; Marked is cleared
// between collections.
type Header struct {
	Kind   ObjKind
	Marked bool
	Next   Obj
}

// Hdr satisfies Obj. Embedding Header in a concrete type promotes this
// method, so every heap kind gets it for free.
func (h *Header) Hdr() *Header { return h }

// Obj is implemented by every heap object kind.
type Obj interface {
	Hdr() *Header
}

// ObjString is an immutable, interned byte sequence. At most one
// ObjString per distinct content exists (enforced by Heap.InternString).
type ObjString struct {
	Header
	Chars string
	Hash  uint32
}

// ObjFunction is a compiled function: arity, upvalue count, its chunk,
// and an optional name (nil only for the top-level script function, which
// the VM displays as "script" in stack traces).
type ObjFunction struct {
	Header
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Name         *ObjString
}

// NativeFn is a host function exposed to the language. It receives the
// call's arguments and returns either a result value or a runtime error.
type NativeFn func(args []Value) (Value, error)

type ObjNative struct {
	Header
	Name string
	Fn   NativeFn
}

// ObjUpvalue is either open (Location points into the VM's value stack)
// or closed (it owns Closed once the owning slot has popped). NextOpen
// threads the VM's separate open-upvalue list — distinct from Header.Next,
// which threads the heap's allocation-order list.
type ObjUpvalue struct {
	Header
	Location *Value
	Closed   Value
	NextOpen *ObjUpvalue
}

func (u *ObjUpvalue) IsOpen() bool { return u.Location != nil }

// ObjClosure pairs a Function with the upvalues it captured at creation.
type ObjClosure struct {
	Header
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

// ObjClass holds a method table (string -> closure) and single-inheritance
// is implemented by copying the superclass's methods down at INHERIT time
// (spec §4.5 OP_INHERIT), not by a superclass pointer walked at lookup
// time.
type ObjClass struct {
	Header
	Name    *ObjString
	Methods *Table
}

// ObjInstance is a class instance with its own fields table.
type ObjInstance struct {
	Header
	Class  *ObjClass
	Fields *Table
}

// ObjBoundMethod pairs a receiver with the closure to invoke on it,
// produced whenever a method is read as a value rather than called
// directly (GET_PROPERTY / GET_SUPER falling through to a method lookup).
type ObjBoundMethod struct {
	Header
	Receiver Value
	Method   *ObjClosure
}
