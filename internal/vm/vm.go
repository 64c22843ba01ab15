// Package vm implements the stack-based bytecode interpreter: a fixed
// value stack, up to 64 nested call frames, the open-upvalue list, and
// the dispatch loop that executes one compiled chunk of bytecode at a
// time (spec §4.5).
package vm

import (
	"fmt"
	"io"
	"os"
	"time"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"sentra/internal/bytecode"
	"sentra/internal/compiler"
	serrors "sentra/internal/errors"
	"sentra/internal/object"
)

// InterpretResult is the outcome of one top-level Interpret call.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

const (
	maxFrames = 64
	stackMax  = maxFrames * 256
)

// CallFrame is one activation record: the closure being executed, its
// instruction pointer into that closure's chunk, and the index into the
// VM's value stack where its locals begin.
type CallFrame struct {
	closure  *object.ObjClosure
	ip       int
	slotBase int
}

// VM owns the heap (and through it, the string intern table and global
// variable table), the value stack, the call frame stack, and the open
// upvalue list. One VM can run many top-level Interpret calls in
// sequence (the REPL does this), carrying globals forward between them.
type VM struct {
	heap *object.Heap

	stack    [stackMax]object.Value
	stackTop int

	frames     [maxFrames]CallFrame
	frameCount int

	openUpvalues *object.ObjUpvalue

	sessionID uuid.UUID
	started   time.Time

	out   io.Writer
	GCLog bool
}

// SetOutput redirects OP_PRINT output, mainly so tests can capture it
// instead of writing to stdout.
func (vm *VM) SetOutput(w io.Writer) { vm.out = w }

// New creates a VM with a fresh heap, registers its root-marking
// callback, defines the native function surface, and stamps a session
// ID used to correlate crash traces and `:stats` REPL output.
func New() *VM {
	vm := &VM{
		heap:      object.NewHeap(),
		sessionID: uuid.New(),
		started:   time.Now(),
		out:       os.Stdout,
	}
	vm.heap.AddRoot(vm.markRoots)
	vm.defineNative("clock", nativeClock(vm))
	return vm
}

// SessionID identifies this VM instance, surfaced in the REPL's `:stats`
// command so a pasted crash report can be correlated with a session.
func (vm *VM) SessionID() uuid.UUID { return vm.sessionID }

// Stats reports the figures the REPL's `:stats` command prints: how long
// this VM has been running, its current heap bookkeeping, and frame/stack
// depth at the moment of the call.
type Stats struct {
	SessionID      uuid.UUID
	Uptime         time.Duration
	BytesAllocated int
	NextGC         int
	FrameCount     int
	StackDepth     int
}

func (vm *VM) Stats() Stats {
	return Stats{
		SessionID:      vm.sessionID,
		Uptime:         time.Since(vm.started),
		BytesAllocated: vm.heap.BytesAllocated(),
		NextGC:         vm.heap.NextGC(),
		FrameCount:     vm.frameCount,
		StackDepth:     vm.stackTop,
	}
}

// EnableGCLog turns on a one-line humanized summary after every
// collection, written to stderr.
func (vm *VM) EnableGCLog() {
	vm.GCLog = true
	vm.heap.Log = func(collected, bytesAllocated, nextGC int) {
		fmt.Fprintf(os.Stderr, "gc: collected %d objects, heap %s, next at %s\n",
			collected, humanize.Bytes(uint64(bytesAllocated)), humanize.Bytes(uint64(nextGC)))
	}
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) push(v object.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() object.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) object.Value {
	return vm.stack[vm.stackTop-1-distance]
}

// Interpret compiles source against this VM's heap (so the new chunk
// sees every global and interned string from prior Interpret calls) and
// runs it to completion. A REPL reuses one VM across many calls; a
// one-shot file run calls this exactly once.
func (vm *VM) Interpret(source string) InterpretResult {
	fn, err := compiler.Compile(source, vm.heap)
	if err != nil {
		return InterpretCompileError
	}

	vm.resetStack()
	closure := vm.heap.NewClosure(fn)
	vm.push(object.ObjValue(closure))
	vm.call(closure, 0)

	return vm.run()
}

func (vm *VM) currentFrame() *CallFrame {
	return &vm.frames[vm.frameCount-1]
}

func (vm *VM) readByte(frame *CallFrame) byte {
	b := frame.closure.Function.Chunk.Code[frame.ip]
	frame.ip++
	return b
}

func (vm *VM) readShort(frame *CallFrame) int {
	hi := int(frame.closure.Function.Chunk.Code[frame.ip])
	lo := int(frame.closure.Function.Chunk.Code[frame.ip+1])
	frame.ip += 2
	return hi<<8 | lo
}

func (vm *VM) readConstant(frame *CallFrame) object.Value {
	return frame.closure.Function.Chunk.Constants[vm.readByte(frame)]
}

func (vm *VM) readString(frame *CallFrame) *object.ObjString {
	return vm.readConstant(frame).AsString()
}

// run executes instructions from the current top frame until it returns
// from the outermost call, or a runtime error unwinds the whole stack.
func (vm *VM) run() InterpretResult {
	frame := vm.currentFrame()

	for {
		op := bytecode.OpCode(vm.readByte(frame))

		switch op {
		case bytecode.OpConstant:
			vm.push(vm.readConstant(frame))

		case bytecode.OpNil:
			vm.push(object.Nil())
		case bytecode.OpTrue:
			vm.push(object.Bool_(true))
		case bytecode.OpFalse:
			vm.push(object.Bool_(false))
		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpGetLocal:
			slot := int(vm.readByte(frame))
			vm.push(vm.stack[frame.slotBase+slot])
		case bytecode.OpSetLocal:
			slot := int(vm.readByte(frame))
			vm.stack[frame.slotBase+slot] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := vm.readString(frame)
			v, ok := vm.heap.Globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case bytecode.OpDefineGlobal:
			name := vm.readString(frame)
			vm.heap.Globals.Set(name, vm.pop())
		case bytecode.OpSetGlobal:
			name := vm.readString(frame)
			if vm.heap.Globals.Set(name, vm.peek(0)) {
				vm.heap.Globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case bytecode.OpGetUpvalue:
			slot := int(vm.readByte(frame))
			vm.push(*frame.closure.Upvalues[slot].Location)
		case bytecode.OpSetUpvalue:
			slot := int(vm.readByte(frame))
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		case bytecode.OpGetProperty:
			if !vm.peek(0).IsInstance() {
				return vm.runtimeError("Only instances have properties.")
			}
			instance := vm.peek(0).AsObj().(*object.ObjInstance)
			name := vm.readString(frame)
			if v, ok := instance.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			if res, ok := vm.bindMethod(instance.Class, name); !ok {
				return res
			}

		case bytecode.OpSetProperty:
			if !vm.peek(1).IsInstance() {
				return vm.runtimeError("Only instances have fields.")
			}
			instance := vm.peek(1).AsObj().(*object.ObjInstance)
			name := vm.readString(frame)
			instance.Fields.Set(name, vm.peek(0))
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(object.Bool_(a.Equal(b)))

		case bytecode.OpGreater, bytecode.OpLess:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			if op == bytecode.OpGreater {
				vm.push(object.Bool_(a > b))
			} else {
				vm.push(object.Bool_(a < b))
			}

		case bytecode.OpAdd:
			switch {
			case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
				b := vm.pop().AsNumber()
				a := vm.pop().AsNumber()
				vm.push(object.Number(a + b))
			case vm.peek(0).IsString() && vm.peek(1).IsString():
				b := vm.peek(0).AsString()
				a := vm.peek(1).AsString()
				result := vm.heap.InternString(a.Chars + b.Chars)
				vm.pop()
				vm.pop()
				vm.push(object.ObjValue(result))
			default:
				return vm.runtimeError("Operands must be two numbers or two strings.")
			}

		case bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			switch op {
			case bytecode.OpSubtract:
				vm.push(object.Number(a - b))
			case bytecode.OpMultiply:
				vm.push(object.Number(a * b))
			case bytecode.OpDivide:
				vm.push(object.Number(a / b))
			}

		case bytecode.OpNot:
			vm.push(object.Bool_(vm.pop().IsFalsey()))

		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(object.Number(-vm.pop().AsNumber()))

		case bytecode.OpPrint:
			fmt.Fprintln(vm.out, vm.stringify(vm.pop()))

		case bytecode.OpJump:
			offset := vm.readShort(frame)
			frame.ip += offset
		case bytecode.OpJumpIfFalse:
			offset := vm.readShort(frame)
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}
		case bytecode.OpLoop:
			offset := vm.readShort(frame)
			frame.ip -= offset

		case bytecode.OpCall:
			argCount := int(vm.readByte(frame))
			if res, ok := vm.callValue(vm.peek(argCount), argCount); !ok {
				return res
			}
			frame = vm.currentFrame()

		case bytecode.OpInvoke:
			method := vm.readString(frame)
			argCount := int(vm.readByte(frame))
			if res, ok := vm.invoke(method, argCount); !ok {
				return res
			}
			frame = vm.currentFrame()

		case bytecode.OpSuperInvoke:
			method := vm.readString(frame)
			argCount := int(vm.readByte(frame))
			superclass := vm.pop().AsObj().(*object.ObjClass)
			if res, ok := vm.invokeFromClass(superclass, method, argCount); !ok {
				return res
			}
			frame = vm.currentFrame()

		case bytecode.OpClosure:
			fn := vm.readConstant(frame).AsObj().(*object.ObjFunction)
			closure := vm.heap.NewClosure(fn)
			vm.push(object.ObjValue(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte(frame)
				index := vm.readByte(frame)
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(&vm.stack[frame.slotBase+int(index)])
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(&vm.stack[vm.stackTop-1])
			vm.pop()

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(&vm.stack[frame.slotBase])
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return InterpretOK
			}
			vm.stackTop = frame.slotBase
			vm.push(result)
			frame = vm.currentFrame()

		case bytecode.OpClass:
			name := vm.readString(frame)
			vm.push(object.ObjValue(vm.heap.NewClass(name)))

		case bytecode.OpInherit:
			superVal := vm.peek(1)
			if !superVal.IsClass() {
				return vm.runtimeError("Superclass must be a class.")
			}
			superclass := superVal.AsObj().(*object.ObjClass)
			subclass := vm.peek(0).AsObj().(*object.ObjClass)
			subclass.Methods.AddAll(superclass.Methods)
			vm.pop() // subclass

		case bytecode.OpMethod:
			name := vm.readString(frame)
			method := vm.pop()
			class := vm.peek(0).AsObj().(*object.ObjClass)
			class.Methods.Set(name, method)

		case bytecode.OpGetSuper:
			name := vm.readString(frame)
			superclass := vm.pop().AsObj().(*object.ObjClass)
			if res, ok := vm.bindMethodOn(vm.peek(0), superclass, name); !ok {
				return res
			}

		default:
			return vm.runtimeError("Unknown opcode %s.", op.Name())
		}

		vm.heap.MaybeCollect()
	}
}

// call pushes a new frame for closure with argCount already-pushed
// arguments on top of the stack, just above the callee slot that becomes
// the new frame's base, erroring
// on arity mismatch or call-stack overflow.
func (vm *VM) call(closure *object.ObjClosure, argCount int) bool {
	if argCount != closure.Function.Arity {
		vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
		return false
	}
	if vm.frameCount == maxFrames {
		vm.runtimeError("Stack overflow.")
		return false
	}
	vm.frames[vm.frameCount] = CallFrame{
		closure:  closure,
		ip:       0,
		slotBase: vm.stackTop - argCount - 1,
	}
	vm.frameCount++
	return true
}

// callValue dispatches a call instruction's callee: a closure call, a
// native call, a class call (construction, routed through `init` if
// defined), or a bound method call.
func (vm *VM) callValue(callee object.Value, argCount int) (InterpretResult, bool) {
	if callee.IsObj() {
		switch obj := callee.AsObj().(type) {
		case *object.ObjClosure:
			if !vm.call(obj, argCount) {
				return InterpretRuntimeError, false
			}
			return InterpretOK, true
		case *object.ObjNative:
			args := vm.stack[vm.stackTop-argCount : vm.stackTop]
			result, err := obj.Fn(args)
			if err != nil {
				return vm.runtimeError("%s", err.Error()), false
			}
			vm.stackTop -= argCount + 1
			vm.push(result)
			return InterpretOK, true
		case *object.ObjClass:
			instance := vm.heap.NewInstance(obj)
			vm.stack[vm.stackTop-argCount-1] = object.ObjValue(instance)
			if initializer, ok := obj.Methods.Get(vm.heap.InitString); ok {
				if !vm.call(initializer.AsObj().(*object.ObjClosure), argCount) {
					return InterpretRuntimeError, false
				}
				return InterpretOK, true
			} else if argCount != 0 {
				return vm.runtimeError("Expected 0 arguments but got %d.", argCount), false
			}
			return InterpretOK, true
		case *object.ObjBoundMethod:
			vm.stack[vm.stackTop-argCount-1] = obj.Receiver
			if !vm.call(obj.Method, argCount) {
				return InterpretRuntimeError, false
			}
			return InterpretOK, true
		}
	}
	return vm.runtimeError("Can only call functions and classes."), false
}

// invoke compiles a `receiver.method(args)` call without first
// allocating a bound method object, falling back to a plain property
// lookup (for a field that happens to hold a callable) before treating
// it as a method dispatch.
func (vm *VM) invoke(name *object.ObjString, argCount int) (InterpretResult, bool) {
	receiver := vm.peek(argCount)
	if !receiver.IsInstance() {
		return vm.runtimeError("Only instances have methods."), false
	}
	instance := receiver.AsObj().(*object.ObjInstance)

	if field, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argCount-1] = field
		return vm.callValue(field, argCount)
	}
	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *object.ObjClass, name *object.ObjString, argCount int) (InterpretResult, bool) {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars), false
	}
	if !vm.call(method.AsObj().(*object.ObjClosure), argCount) {
		return InterpretRuntimeError, false
	}
	return InterpretOK, true
}

// bindMethod looks up name on class, replacing the instance on top of
// the stack with a freshly allocated bound method.
func (vm *VM) bindMethod(class *object.ObjClass, name *object.ObjString) (InterpretResult, bool) {
	return vm.bindMethodOn(vm.peek(0), class, name)
}

func (vm *VM) bindMethodOn(receiver object.Value, class *object.ObjClass, name *object.ObjString) (InterpretResult, bool) {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars), false
	}
	bound := vm.heap.NewBoundMethod(receiver, method.AsObj().(*object.ObjClosure))
	vm.pop()
	vm.push(object.ObjValue(bound))
	return InterpretOK, true
}

// slotOf recovers the stack index a stack-interior pointer refers to.
// Go forbids ordered comparison of pointers, but the open-upvalue list
// must stay sorted by stack depth (per spec §4.3), so this converts
// back to a comparable int — safe here because Location always points
// within vm.stack, never past its end.
func (vm *VM) slotOf(loc *object.Value) int {
	return int(uintptr(unsafe.Pointer(loc))-uintptr(unsafe.Pointer(&vm.stack[0]))) / int(unsafe.Sizeof(object.Value{}))
}

// captureUpvalue returns the existing open upvalue for location if one
// is already in the list (sorted by descending stack slot), otherwise
// allocates and inserts a new one in sorted position.
func (vm *VM) captureUpvalue(location *object.Value) *object.ObjUpvalue {
	targetSlot := vm.slotOf(location)

	var prev *object.ObjUpvalue
	cur := vm.openUpvalues
	for cur != nil && vm.slotOf(cur.Location) > targetSlot {
		prev = cur
		cur = cur.NextOpen
	}
	if cur != nil && cur.Location == location {
		return cur
	}
	created := vm.heap.NewUpvalue(location)
	created.NextOpen = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues closes every open upvalue pointing at or above last,
// copying the stack value into the upvalue's own storage so it survives
// the frame that owned that slot returning.
func (vm *VM) closeUpvalues(last *object.Value) {
	lastSlot := vm.slotOf(last)
	for vm.openUpvalues != nil && vm.slotOf(vm.openUpvalues.Location) >= lastSlot {
		uv := vm.openUpvalues
		uv.Closed = *uv.Location
		uv.Location = &uv.Closed
		vm.openUpvalues = uv.NextOpen
	}
}

// runtimeError reports a formatted message plus a full call-stack
// trace to stderr (spec §4.7: "[line N] in <name>" per frame, innermost
// first) and resets the stack so the VM is ready for its next
// Interpret call.
func (vm *VM) runtimeError(format string, args ...interface{}) InterpretResult {
	message := fmt.Sprintf(format, args...)

	var frames []serrors.StackFrame
	topLine := 0
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		line := fn.Chunk.Lines[frame.ip-1]
		if i == vm.frameCount-1 {
			topLine = line
		}
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		frames = append(frames, serrors.StackFrame{Function: name, Line: line})
	}

	err := serrors.NewRuntimeError(message, topLine).WithStack(frames)
	fmt.Fprintf(os.Stderr, "%s\n", err.Error())

	vm.resetStack()
	return InterpretRuntimeError
}

// stringify renders a Value in the printed form OP_PRINT writes.
func (vm *VM) stringify(v object.Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsNumber():
		return trimFloat(v.AsNumber())
	case v.IsString():
		return v.AsString().Chars
	case v.IsFunction():
		fn := v.AsObj().(*object.ObjFunction)
		if fn.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", fn.Name.Chars)
	case v.IsClosure():
		return vm.stringify(object.ObjValue(v.AsObj().(*object.ObjClosure).Function))
	case v.IsNative():
		return fmt.Sprintf("<native fn %s>", v.AsObj().(*object.ObjNative).Name)
	case v.IsClass():
		return v.AsObj().(*object.ObjClass).Name.Chars
	case v.IsInstance():
		return fmt.Sprintf("%s instance", v.AsObj().(*object.ObjInstance).Class.Name.Chars)
	case v.IsBoundMethod():
		return vm.stringify(object.ObjValue(v.AsObj().(*object.ObjBoundMethod).Method.Function))
	default:
		return "<unknown>"
	}
}

func trimFloat(n float64) string {
	s := fmt.Sprintf("%g", n)
	return s
}

func (vm *VM) defineNative(name string, fn object.NativeFn) {
	native := vm.heap.NewNative(name, fn)
	vm.heap.Globals.Set(vm.heap.InternString(name), object.ObjValue(native))
}

func nativeClock(vm *VM) object.NativeFn {
	return func(args []object.Value) (object.Value, error) {
		return object.Number(time.Since(vm.started).Seconds()), nil
	}
}

// markRoots marks everything the VM's own state can reach: every value
// on the stack, every closure (and its upvalues) in every active frame,
// every still-open upvalue, and the globals table.
func (vm *VM) markRoots(mark func(object.Obj), markValue func(object.Value)) {
	for i := 0; i < vm.stackTop; i++ {
		markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		mark(vm.frames[i].closure)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.NextOpen {
		mark(uv)
	}
	markTableRoot(vm.heap, mark, markValue)
}

func markTableRoot(h *object.Heap, mark func(object.Obj), markValue func(object.Value)) {
	h.Globals.Each(func(key *object.ObjString, value object.Value) {
		mark(key)
		markValue(value)
	})
}
