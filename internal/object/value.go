// Package object implements the language's value representation, its
// heap object kinds, the chunk/constant-pool format bytecode lives in,
// the open-addressing hash table used for globals/interning/methods/
// fields, and the mark-sweep collector that reaches through all of them.
// These four concerns (spec §4.3, §4.4, §4.6) are kept in one package
// because the collector must switch on every concrete object kind to
// blacken it, and a Chunk's constant pool is itself a slice of Values —
// splitting them across packages would just relocate the coupling behind
// an import cycle.
package object

// Kind tags which variant of the tagged union a Value currently holds.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObj
)

// Value is the VM's tagged union: nil, bool, IEEE-754 double, or a heap
// object reference. Exactly one of Bool/Num/Obj is meaningful, selected
// by Kind.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Obj  Obj
}

func Nil() Value                 { return Value{Kind: KindNil} }
func Bool_(b bool) Value         { return Value{Kind: KindBool, Bool: b} }
func Number(n float64) Value     { return Value{Kind: KindNumber, Num: n} }
func ObjValue(o Obj) Value       { return Value{Kind: KindObj, Obj: o} }

func (v Value) IsNil() bool    { return v.Kind == KindNil }
func (v Value) IsBool() bool   { return v.Kind == KindBool }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsObj() bool    { return v.Kind == KindObj }

func (v Value) AsBool() bool     { return v.Bool }
func (v Value) AsNumber() float64 { return v.Num }
func (v Value) AsObj() Obj        { return v.Obj }

// IsFalsey reports the language's truthiness rule: nil and false are
// falsy, everything else (including 0 and "") is truthy.
func (v Value) IsFalsey() bool {
	return v.IsNil() || (v.IsBool() && !v.AsBool())
}

// Equal implements OP_EQUAL: numeric equality for numbers, reference
// identity for objects. Interning guarantees two equal-content strings
// are the same object, so object identity already implements string
// value equality correctly.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return v.Bool == other.Bool
	case KindNumber:
		return v.Num == other.Num
	case KindObj:
		return v.Obj == other.Obj
	default:
		return false
	}
}

// AsString unwraps an object Value known (by a prior IsString check) to
// hold a string. Like every As* accessor in this package, calling it
// without having checked the tag first is a contract violation the
// caller is responsible for.
func (v Value) AsString() *ObjString { return v.Obj.(*ObjString) }

func (v Value) IsString() bool {
	_, ok := v.tryObj().(*ObjString)
	return ok
}

func (v Value) tryObj() Obj {
	if v.Kind != KindObj {
		return nil
	}
	return v.Obj
}

func (v Value) IsFunction() bool {
	_, ok := v.tryObj().(*ObjFunction)
	return ok
}

func (v Value) IsClosure() bool {
	_, ok := v.tryObj().(*ObjClosure)
	return ok
}

func (v Value) IsNative() bool {
	_, ok := v.tryObj().(*ObjNative)
	return ok
}

func (v Value) IsClass() bool {
	_, ok := v.tryObj().(*ObjClass)
	return ok
}

func (v Value) IsInstance() bool {
	_, ok := v.tryObj().(*ObjInstance)
	return ok
}

func (v Value) IsBoundMethod() bool {
	_, ok := v.tryObj().(*ObjBoundMethod)
	return ok
}
