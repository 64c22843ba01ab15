// Package compiler implements the single-pass Pratt compiler: it parses
// tokens straight into bytecode with no intermediate AST, resolving
// locals and upvalues as it goes (spec §4.1).
package compiler

import (
	"errors"
	"fmt"
	"os"

	"sentra/internal/bytecode"
	"sentra/internal/lexer"
	"sentra/internal/object"
	"sentra/internal/token"
)

// ErrCompileFailed is returned by Compile when one or more syntax errors
// were reported; the partially built function is discarded by the
// caller in that case.
var ErrCompileFailed = errors.New("compile error")

// Parser holds everything global to one top-level Compile invocation:
// the token stream, the current/previous token, error state, and the
// stack of nested function and class compilers.
type Parser struct {
	heap    *object.Heap
	scanner *lexer.Scanner

	current  token.Token
	previous token.Token

	hadError  bool
	panicMode bool

	cur   *funcState
	class *classState
}

// Compile parses source into a fully linked top-level Function whose
// chunk ends in a synthetic return, per spec §4.1's contract:
// compile(source) -> Function | error.
func Compile(source string, heap *object.Heap) (*object.ObjFunction, error) {
	p := &Parser{heap: heap, scanner: lexer.NewScanner(source)}
	p.cur = newFuncState(nil, KindScript, heap.NewFunction())

	rootIdx := heap.AddRoot(p.markCompilerRoots)
	defer heap.RemoveRoot(rootIdx)

	p.advance()
	for !p.match(token.EOF) {
		p.declaration()
	}
	fn := p.endCompiler()

	if p.hadError {
		return nil, ErrCompileFailed
	}
	return fn, nil
}

// newFuncState reserves local slot 0 the way §4.1's `function` grammar
// rule describes: named "this" for methods/initializers (the VM places
// the receiver there), unnamed otherwise (the VM places the called
// closure there, never read by name).
func newFuncState(enclosing *funcState, kind FunctionKind, fn *object.ObjFunction) *funcState {
	fs := &funcState{enclosing: enclosing, function: fn, kind: kind}
	slot0Name := ""
	if kind == KindMethod || kind == KindInitializer {
		slot0Name = "this"
	}
	fs.locals[0] = Local{Name: slot0Name, Depth: 0}
	fs.localCount = 1
	return fs
}

// markCompilerRoots marks the function under construction by every
// compiler currently on the stack, keeping in-progress functions alive
// across any collection that runs while Compile is in progress.
func (p *Parser) markCompilerRoots(mark func(object.Obj), markValue func(object.Value)) {
	for c := p.cur; c != nil; c = c.enclosing {
		mark(c.function)
	}
}

// ---- token stream -----------------------------------------------------

func (p *Parser) advance() {
	p.previous = p.current
	for {
		p.current = p.scanner.ScanToken()
		if p.current.Kind != token.Error {
			break
		}
		p.errorAtCurrent(p.current.Lexeme())
	}
}

func (p *Parser) check(kind token.Kind) bool {
	return p.current.Kind == kind
}

func (p *Parser) match(kind token.Kind) bool {
	if !p.check(kind) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(kind token.Kind, message string) {
	if p.current.Kind == kind {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

// ---- error reporting ---------------------------------------------------

func (p *Parser) errorAtCurrent(message string) { p.errorAt(p.current, message) }
func (p *Parser) error(message string)          { p.errorAt(p.previous, message) }

func (p *Parser) errorAt(tok token.Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	fmt.Fprintf(os.Stderr, "[line %d] Error", tok.Line)
	switch tok.Kind {
	case token.EOF:
		fmt.Fprint(os.Stderr, " at end")
	case token.Error:
		// lexeme already IS the message; nothing to name.
	default:
		fmt.Fprintf(os.Stderr, " at '%s'", tok.Lexeme())
	}
	fmt.Fprintf(os.Stderr, ": %s\n", message)
	p.hadError = true
}

func (p *Parser) synchronize() {
	p.panicMode = false
	for p.current.Kind != token.EOF {
		if p.previous.Kind == token.Semicolon {
			return
		}
		switch p.current.Kind {
		case token.Class, token.Fun, token.Var, token.For,
			token.If, token.While, token.Print, token.Return:
			return
		}
		p.advance()
	}
}

// ---- emission -----------------------------------------------------------

func (p *Parser) currentChunk() *object.Chunk {
	return p.cur.function.Chunk
}

func (p *Parser) emitByte(b byte) {
	p.currentChunk().WriteByte(b, p.previous.Line)
}

func (p *Parser) emitOp(op bytecode.OpCode) {
	p.emitByte(byte(op))
}

func (p *Parser) emitBytes(op bytecode.OpCode, operand byte) {
	p.emitOp(op)
	p.emitByte(operand)
}

// emitJump writes op followed by a two-byte placeholder and returns the
// offset of the first placeholder byte, to be patched later.
func (p *Parser) emitJump(op bytecode.OpCode) int {
	p.emitOp(op)
	p.emitByte(0xff)
	p.emitByte(0xff)
	return len(p.currentChunk().Code) - 2
}

func (p *Parser) patchJump(offset int) {
	jump := len(p.currentChunk().Code) - offset - 2
	if jump > 65535 {
		p.error("Too much code to jump over.")
	}
	p.currentChunk().Code[offset] = byte((jump >> 8) & 0xff)
	p.currentChunk().Code[offset+1] = byte(jump & 0xff)
}

func (p *Parser) emitLoop(loopStart int) {
	p.emitOp(bytecode.OpLoop)
	offset := len(p.currentChunk().Code) - loopStart + 2
	if offset > 65535 {
		p.error("Too much code to jump over.")
	}
	p.emitByte(byte((offset >> 8) & 0xff))
	p.emitByte(byte(offset & 0xff))
}

func (p *Parser) emitReturn() {
	if p.cur.kind == KindInitializer {
		p.emitBytes(bytecode.OpGetLocal, 0)
	} else {
		p.emitOp(bytecode.OpNil)
	}
	p.emitOp(bytecode.OpReturn)
}

func (p *Parser) makeConstant(v object.Value) byte {
	idx := p.currentChunk().AddConstant(v)
	if idx > 255 {
		p.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (p *Parser) emitConstant(v object.Value) {
	p.emitBytes(bytecode.OpConstant, p.makeConstant(v))
}

func (p *Parser) identifierConstant(name string) byte {
	return p.makeConstant(object.ObjValue(p.heap.InternString(name)))
}

func (p *Parser) endCompiler() *object.ObjFunction {
	p.emitReturn()
	fn := p.cur.function
	p.cur = p.cur.enclosing
	return fn
}

// ---- scopes, locals, upvalues -------------------------------------------

func (p *Parser) beginScope() { p.cur.scopeDepth++ }

// endScope pops every local declared at or above the scope being closed.
// Uses the strict loop bound localCount > 0, not localCount >= 0.
func (p *Parser) endScope() {
	p.cur.scopeDepth--
	for p.cur.localCount > 0 && p.cur.locals[p.cur.localCount-1].Depth > p.cur.scopeDepth {
		if p.cur.locals[p.cur.localCount-1].IsCaptured {
			p.emitOp(bytecode.OpCloseUpvalue)
		} else {
			p.emitOp(bytecode.OpPop)
		}
		p.cur.localCount--
	}
}

func (p *Parser) addLocal(name string) {
	if p.cur.localCount == maxLocals {
		p.error("Too many local variables in function.")
		return
	}
	p.cur.locals[p.cur.localCount] = Local{Name: name, Depth: -1}
	p.cur.localCount++
}

// declareVariable is a no-op at global scope (globals are late-bound);
// otherwise it appends a new, not-yet-initialized local after checking
// for a same-scope name collision.
func (p *Parser) declareVariable(name string) {
	if p.cur.scopeDepth == 0 {
		return
	}
	for i := p.cur.localCount - 1; i >= 0; i-- {
		local := p.cur.locals[i]
		if local.Depth != -1 && local.Depth < p.cur.scopeDepth {
			break
		}
		if name == local.Name {
			p.error("Already a variable with this name in this scope.")
		}
	}
	p.addLocal(name)
}

func (p *Parser) markInitialized() {
	if p.cur.scopeDepth == 0 {
		return
	}
	p.cur.locals[p.cur.localCount-1].Depth = p.cur.scopeDepth
}

// parseVariable consumes an identifier, declares it as a local (if
// scoped), and returns the constant-pool index of its name (used only
// when the variable turns out to be global).
func (p *Parser) parseVariable(errMsg string) byte {
	p.consume(token.Identifier, errMsg)
	name := p.previous.Lexeme()
	p.declareVariable(name)
	if p.cur.scopeDepth > 0 {
		return 0
	}
	return p.identifierConstant(name)
}

func (p *Parser) defineVariable(global byte) {
	if p.cur.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitBytes(bytecode.OpDefineGlobal, global)
}

// resolveLocal scans c's locals top-down for name, erroring if the match
// is mid-initialization (`var a = a;`).
func (p *Parser) resolveLocal(c *funcState, name string) int {
	for i := c.localCount - 1; i >= 0; i-- {
		if c.locals[i].Name == name {
			if c.locals[i].Depth == -1 {
				p.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (p *Parser) addUpvalue(c *funcState, index byte, isLocal bool) int {
	count := c.function.UpvalueCount
	for i := 0; i < count; i++ {
		uv := c.upvalues[i]
		if int(uv.Index) == int(index) && uv.IsLocal == isLocal {
			return i
		}
	}
	if count == maxUpvalues {
		p.error("Too many closure variables in function.")
		return 0
	}
	c.upvalues[count] = upvalueDesc{Index: index, IsLocal: isLocal}
	c.function.UpvalueCount++
	return count
}

// resolveUpvalue recursively searches enclosing compilers: a local found
// in the immediately enclosing function is captured (marked IsCaptured)
// and added as a local upvalue; one found further out is chained as a
// non-local upvalue.
func (p *Parser) resolveUpvalue(c *funcState, name string) int {
	if c.enclosing == nil {
		return -1
	}
	if local := p.resolveLocal(c.enclosing, name); local != -1 {
		c.enclosing.locals[local].IsCaptured = true
		return p.addUpvalue(c, byte(local), true)
	}
	if upvalue := p.resolveUpvalue(c.enclosing, name); upvalue != -1 {
		return p.addUpvalue(c, byte(upvalue), false)
	}
	return -1
}

// namedVariable resolves name to a local, an upvalue, or (failing both)
// a global, in that order, then emits the matching GET or SET opcode —
// SET if canAssign and an '=' follows, GET otherwise.
func (p *Parser) namedVariable(name string, canAssign bool) {
	var getOp, setOp bytecode.OpCode
	var arg int

	if local := p.resolveLocal(p.cur, name); local != -1 {
		arg, getOp, setOp = local, bytecode.OpGetLocal, bytecode.OpSetLocal
	} else if up := p.resolveUpvalue(p.cur, name); up != -1 {
		arg, getOp, setOp = up, bytecode.OpGetUpvalue, bytecode.OpSetUpvalue
	} else {
		arg, getOp, setOp = int(p.identifierConstant(name)), bytecode.OpGetGlobal, bytecode.OpSetGlobal
	}

	if canAssign && p.match(token.Equal) {
		p.expression()
		p.emitBytes(setOp, byte(arg))
	} else {
		p.emitBytes(getOp, byte(arg))
	}
}
