package compiler

import (
	"strconv"
	"strings"
	"testing"

	"sentra/internal/bytecode"
	"sentra/internal/object"
)

func compileOK(t *testing.T, source string) *object.ObjFunction {
	t.Helper()
	fn, err := Compile(source, object.NewHeap())
	if err != nil {
		t.Fatalf("Compile(%q) returned error: %v", source, err)
	}
	return fn
}

func TestCompile_ValidPrograms(t *testing.T) {
	cases := []string{
		`print 1 + 2;`,
		`var a = 1; a = a + 1; print a;`,
		`if (true) { print 1; } else { print 2; }`,
		`for (var i = 0; i < 3; i = i + 1) { print i; }`,
		`while (false) { print 1; }`,
		`fun f(a, b) { return a + b; } print f(1, 2);`,
		`class A { init(x) { this.x = x; } getX() { return this.x; } }`,
		`class A {} class B < A {} print B;`,
		`fun outer() { var x = 1; fun inner() { return x; } return inner; }`,
	}
	for _, src := range cases {
		compileOK(t, src)
	}
}

func TestCompile_EndsWithReturn(t *testing.T) {
	fn := compileOK(t, `print 1;`)
	code := fn.Chunk.Code
	if len(code) < 2 {
		t.Fatalf("chunk too short: %v", code)
	}
	if bytecode.OpCode(code[len(code)-1]) != bytecode.OpReturn {
		t.Errorf("last opcode = %v, want OP_RETURN", bytecode.OpCode(code[len(code)-1]))
	}
}

func TestCompile_SyntaxErrors(t *testing.T) {
	cases := []string{
		`print 1`,          // missing semicolon
		`var ;`,             // missing name
		`fun () {}`,          // missing name
		`class A { 1; }`,     // not a method
		`return 1;`,          // return at top level
		`1 = 2;`,             // invalid assignment target
		`a + b = 1;`,         // invalid assignment target (infix result)
	}
	for _, src := range cases {
		if _, err := Compile(src, object.NewHeap()); err != ErrCompileFailed {
			t.Errorf("Compile(%q) err = %v, want ErrCompileFailed", src, err)
		}
	}
}

func TestCompile_InitializerCannotReturnValue(t *testing.T) {
	src := `class A { init() { return 1; } }`
	if _, err := Compile(src, object.NewHeap()); err != ErrCompileFailed {
		t.Errorf("expected compile error for returning a value from init()")
	}
}

func TestCompile_ThisOutsideClassIsError(t *testing.T) {
	if _, err := Compile(`print this;`, object.NewHeap()); err != ErrCompileFailed {
		t.Error("expected compile error for 'this' outside a class")
	}
}

func TestCompile_SuperWithoutSuperclassIsError(t *testing.T) {
	if _, err := Compile(`class A { f() { super.f(); } }`, object.NewHeap()); err != ErrCompileFailed {
		t.Error("expected compile error for 'super' in a class with no superclass")
	}
}

func TestCompile_VariableSelfInitializerIsError(t *testing.T) {
	if _, err := Compile(`{ var a = a; }`, object.NewHeap()); err != ErrCompileFailed {
		t.Error("expected compile error for reading a local in its own initializer")
	}
}

func TestCompile_DuplicateLocalInSameScopeIsError(t *testing.T) {
	if _, err := Compile(`{ var a = 1; var a = 2; }`, object.NewHeap()); err != ErrCompileFailed {
		t.Error("expected compile error for redeclaring a local in the same scope")
	}
}

func TestCompile_ClassCannotInheritFromItself(t *testing.T) {
	if _, err := Compile(`class A < A {}`, object.NewHeap()); err != ErrCompileFailed {
		t.Error("expected compile error for a class inheriting from itself")
	}
}

func TestCompile_TooManyArguments(t *testing.T) {
	var b strings.Builder
	b.WriteString("fun f() {} f(")
	for i := 0; i < 256; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("nil")
	}
	b.WriteString(");")

	if _, err := Compile(b.String(), object.NewHeap()); err != ErrCompileFailed {
		t.Error("expected compile error for more than 255 arguments")
	}
}

func TestCompile_TooManyLocals(t *testing.T) {
	var b strings.Builder
	b.WriteString("{")
	for i := 0; i < 257; i++ {
		b.WriteString("var a")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(" = 0;")
	}
	b.WriteString("}")

	if _, err := Compile(b.String(), object.NewHeap()); err != ErrCompileFailed {
		t.Error("expected compile error for more than 256 locals in one scope")
	}
}
