package vm

import (
	"strings"
	"testing"
)

// runAndCapture interprets source on a fresh VM and returns everything
// printed plus the InterpretResult, the shape every end-to-end scenario
// in this file needs.
func runAndCapture(t *testing.T, source string) (string, InterpretResult) {
	t.Helper()
	machine := New()
	var out strings.Builder
	machine.SetOutput(&out)
	result := machine.Interpret(source)
	return out.String(), result
}

func TestInterpret_Arithmetic(t *testing.T) {
	out, result := runAndCapture(t, `print (1 + 2) * 3 - 4 / 2;`)
	if result != InterpretOK {
		t.Fatalf("result = %v, want OK", result)
	}
	if strings.TrimSpace(out) != "7" {
		t.Errorf("output = %q, want 7", out)
	}
}

func TestInterpret_StringConcatenation(t *testing.T) {
	out, result := runAndCapture(t, `print "foo" + "bar";`)
	if result != InterpretOK {
		t.Fatalf("result = %v", result)
	}
	if strings.TrimSpace(out) != "foobar" {
		t.Errorf("output = %q, want foobar", out)
	}
}

func TestInterpret_GlobalsAndLocals(t *testing.T) {
	out, _ := runAndCapture(t, `
		var x = 10;
		{
			var y = 20;
			x = x + y;
		}
		print x;
	`)
	if strings.TrimSpace(out) != "30" {
		t.Errorf("output = %q, want 30", out)
	}
}

func TestInterpret_Closures(t *testing.T) {
	out, _ := runAndCapture(t, `
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var counter = makeCounter();
		print counter();
		print counter();
		print counter();
	`)
	if strings.TrimSpace(out) != "1\n2\n3" {
		t.Errorf("output = %q, want \"1\\n2\\n3\"", out)
	}
}

func TestInterpret_ClassesAndMethods(t *testing.T) {
	out, _ := runAndCapture(t, `
		class Counter {
			init(start) {
				this.value = start;
			}
			increment() {
				this.value = this.value + 1;
				return this.value;
			}
		}
		var c = Counter(10);
		print c.increment();
		print c.increment();
	`)
	if strings.TrimSpace(out) != "11\n12" {
		t.Errorf("output = %q, want \"11\\n12\"", out)
	}
}

func TestInterpret_Inheritance(t *testing.T) {
	out, _ := runAndCapture(t, `
		class Animal {
			speak() {
				return "...";
			}
			describe() {
				return "I say " + this.speak();
			}
		}
		class Dog < Animal {
			speak() {
				return "Woof";
			}
		}
		print Dog().describe();
	`)
	if strings.TrimSpace(out) != "I say Woof" {
		t.Errorf("output = %q, want \"I say Woof\"", out)
	}
}

func TestInterpret_SuperCallsSuperclassMethod(t *testing.T) {
	out, _ := runAndCapture(t, `
		class A {
			greet() {
				return "A";
			}
		}
		class B < A {
			greet() {
				return super.greet() + "B";
			}
		}
		print B().greet();
	`)
	if strings.TrimSpace(out) != "AB" {
		t.Errorf("output = %q, want AB", out)
	}
}

func TestInterpret_ControlFlow(t *testing.T) {
	out, _ := runAndCapture(t, `
		var total = 0;
		for (var i = 0; i < 5; i = i + 1) {
			if (i == 2) { print "two"; }
			total = total + i;
		}
		print total;
	`)
	if !strings.Contains(out, "two") || !strings.Contains(out, "10") {
		t.Errorf("output = %q, want both \"two\" and total 10 present", out)
	}
}

func TestInterpret_NativeClock(t *testing.T) {
	out, result := runAndCapture(t, `print clock() >= 0;`)
	if result != InterpretOK {
		t.Fatalf("result = %v", result)
	}
	if strings.TrimSpace(out) != "true" {
		t.Errorf("output = %q, want true", out)
	}
}

func TestInterpret_RuntimeError_UndefinedVariable(t *testing.T) {
	_, result := runAndCapture(t, `print undefinedThing;`)
	if result != InterpretRuntimeError {
		t.Errorf("result = %v, want RuntimeError", result)
	}
}

func TestInterpret_RuntimeError_TypeMismatch(t *testing.T) {
	_, result := runAndCapture(t, `print 1 + "a";`)
	if result != InterpretRuntimeError {
		t.Errorf("result = %v, want RuntimeError", result)
	}
}

func TestInterpret_RuntimeError_CallingNonFunction(t *testing.T) {
	_, result := runAndCapture(t, `var x = 1; x();`)
	if result != InterpretRuntimeError {
		t.Errorf("result = %v, want RuntimeError", result)
	}
}

func TestInterpret_RuntimeError_WrongArity(t *testing.T) {
	_, result := runAndCapture(t, `fun f(a, b) { return a + b; } f(1);`)
	if result != InterpretRuntimeError {
		t.Errorf("result = %v, want RuntimeError", result)
	}
}

func TestInterpret_CompileErrorDoesNotPanic(t *testing.T) {
	_, result := runAndCapture(t, `print 1 +;`)
	if result != InterpretCompileError {
		t.Errorf("result = %v, want CompileError", result)
	}
}

func TestInterpret_VMPersistsGlobalsAcrossCalls(t *testing.T) {
	machine := New()
	var out strings.Builder
	machine.SetOutput(&out)

	machine.Interpret(`var counter = 0;`)
	machine.Interpret(`counter = counter + 1;`)
	machine.Interpret(`print counter;`)

	if strings.TrimSpace(out.String()) != "1" {
		t.Errorf("output = %q, want 1 (globals should persist across Interpret calls)", out.String())
	}
}

func TestInterpret_RecursionAndStackOverflow(t *testing.T) {
	_, result := runAndCapture(t, `
		fun recurse(n) {
			return recurse(n + 1);
		}
		recurse(0);
	`)
	if result != InterpretRuntimeError {
		t.Errorf("result = %v, want RuntimeError (stack overflow)", result)
	}
}

func TestStats_ReflectsAllocationsAndSessionIdentity(t *testing.T) {
	machine := New()
	var out strings.Builder
	machine.SetOutput(&out)

	before := machine.Stats()
	machine.Interpret(`var s = "hello" + " world"; print s;`)
	after := machine.Stats()

	if after.SessionID != before.SessionID {
		t.Error("SessionID should stay constant across Interpret calls on one VM")
	}
	if after.SessionID != machine.SessionID() {
		t.Error("Stats().SessionID should match VM.SessionID()")
	}
	if after.BytesAllocated <= before.BytesAllocated {
		t.Errorf("BytesAllocated = %d, want it to grow past %d after allocating strings", after.BytesAllocated, before.BytesAllocated)
	}
	if after.FrameCount != 0 {
		t.Errorf("FrameCount = %d, want 0 once Interpret has returned", after.FrameCount)
	}
}

func TestInterpret_SurvivesRealGCAtTopLevel(t *testing.T) {
	// Allocates enough instances to cross the default 1 MiB GC threshold
	// while the running frame is still the top-level script (whose
	// ObjFunction has no Name) - this used to panic inside blackenObject.
	out, result := runAndCapture(t, `
		class A {}
		var i = 0;
		while (i < 30000) {
			var a = A();
			i = i + 1;
		}
		print i;
	`)
	if result != InterpretOK {
		t.Fatalf("result = %v, want OK", result)
	}
	if strings.TrimSpace(out) != "30000" {
		t.Errorf("output = %q, want 30000", out)
	}
}

func TestInterpret_BoundMethodCapturesReceiver(t *testing.T) {
	out, _ := runAndCapture(t, `
		class Greeter {
			init(name) { this.name = name; }
			greet() { return "hi " + this.name; }
		}
		var g = Greeter("Ada");
		var fn = g.greet;
		print fn();
	`)
	if strings.TrimSpace(out) != "hi Ada" {
		t.Errorf("output = %q, want \"hi Ada\"", out)
	}
}
