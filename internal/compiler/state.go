package compiler

import (
	"sentra/internal/object"
)

// FunctionKind distinguishes the four contexts a nested compiler can be
// building for, mirroring spec §3 "function kind in {script, function,
// method, initializer}".
type FunctionKind int

const (
	KindScript FunctionKind = iota
	KindFunction
	KindMethod
	KindInitializer
)

const maxLocals = 256
const maxUpvalues = 256

// Local tracks one declared local variable slot. Depth == -1 means
// "declared but not yet initialized", used to forbid `var a = a;`.
type Local struct {
	Name       string
	Depth      int
	IsCaptured bool
}

// upvalueDesc is one entry of a function's upvalue descriptor array.
type upvalueDesc struct {
	Index   byte
	IsLocal bool
}

// funcState is one compiler in the nested stack, one per function
// currently being compiled (spec §3 "Compiler state"). It is never
// shared or mutated from outside the parser that owns it.
type funcState struct {
	enclosing  *funcState
	function   *object.ObjFunction
	kind       FunctionKind
	locals     [maxLocals]Local
	localCount int
	upvalues   [maxUpvalues]upvalueDesc
	scopeDepth int
}

// classState tracks whether `this`/`super` are legal at the current
// point in the grammar, one per class currently being compiled.
type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// Precedence levels, low to high, used by the Pratt parser to decide how
// far an infix operator chain should be allowed to extend.
type Precedence int

const (
	PrecNone       Precedence = iota
	PrecAssignment            // =
	PrecOr                    // or
	PrecAnd                   // and
	PrecEquality              // == !=
	PrecComparison            // < > <= >=
	PrecTerm                  // + -
	PrecFactor                // * /
	PrecUnary                 // ! -
	PrecCall                  // . ()
	PrecPrimary
)

type parseFn func(p *Parser, canAssign bool)

type ParseRule struct {
	Prefix     parseFn
	Infix      parseFn
	Precedence Precedence
}
