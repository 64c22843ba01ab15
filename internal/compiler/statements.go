package compiler

import (
	"sentra/internal/bytecode"
	"sentra/internal/object"
	"sentra/internal/token"
)

// declaration is the top of the statement grammar: a class/fun/var
// declaration, or any other statement. On a syntax error it
// synchronizes to the next statement boundary so one mistake doesn't
// cascade into a wall of spurious diagnostics.
func (p *Parser) declaration() {
	switch {
	case p.match(token.Class):
		p.classDeclaration()
	case p.match(token.Fun):
		p.funDeclaration()
	case p.match(token.Var):
		p.varDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (p *Parser) statement() {
	switch {
	case p.match(token.Print):
		p.printStatement()
	case p.match(token.If):
		p.ifStatement()
	case p.match(token.Return):
		p.returnStatement()
	case p.match(token.While):
		p.whileStatement()
	case p.match(token.For):
		p.forStatement()
	case p.match(token.LeftBrace):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *Parser) block() {
	for !p.check(token.RightBrace) && !p.check(token.EOF) {
		p.declaration()
	}
	p.consume(token.RightBrace, "Expect '}' after block.")
}

func (p *Parser) varDeclaration() {
	global := p.parseVariable("Expect variable name.")
	if p.match(token.Equal) {
		p.expression()
	} else {
		p.emitOp(bytecode.OpNil)
	}
	p.consume(token.Semicolon, "Expect ';' after variable declaration.")
	p.defineVariable(global)
}

func (p *Parser) expressionStatement() {
	p.expression()
	p.consume(token.Semicolon, "Expect ';' after expression.")
	p.emitOp(bytecode.OpPop)
}

func (p *Parser) printStatement() {
	p.expression()
	p.consume(token.Semicolon, "Expect ';' after value.")
	p.emitOp(bytecode.OpPrint)
}

func (p *Parser) ifStatement() {
	p.consume(token.LeftParen, "Expect '(' after 'if'.")
	p.expression()
	p.consume(token.RightParen, "Expect ')' after condition.")

	thenJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.statement()

	elseJump := p.emitJump(bytecode.OpJump)
	p.patchJump(thenJump)
	p.emitOp(bytecode.OpPop)

	if p.match(token.Else) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *Parser) whileStatement() {
	loopStart := len(p.currentChunk().Code)
	p.consume(token.LeftParen, "Expect '(' after 'while'.")
	p.expression()
	p.consume(token.RightParen, "Expect ')' after condition.")

	exitJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitOp(bytecode.OpPop)
}

// forStatement desugars the C-style for loop into the equivalent while
// loop entirely at compile time: no new opcodes, no runtime loop-carried
// state beyond what while already provides.
func (p *Parser) forStatement() {
	p.beginScope()
	p.consume(token.LeftParen, "Expect '(' after 'for'.")

	switch {
	case p.match(token.Semicolon):
		// no initializer
	case p.match(token.Var):
		p.varDeclaration()
	default:
		p.expressionStatement()
	}

	loopStart := len(p.currentChunk().Code)
	exitJump := -1
	if !p.match(token.Semicolon) {
		p.expression()
		p.consume(token.Semicolon, "Expect ';' after loop condition.")
		exitJump = p.emitJump(bytecode.OpJumpIfFalse)
		p.emitOp(bytecode.OpPop)
	}

	if !p.match(token.RightParen) {
		bodyJump := p.emitJump(bytecode.OpJump)
		incrementStart := len(p.currentChunk().Code)
		p.expression()
		p.emitOp(bytecode.OpPop)
		p.consume(token.RightParen, "Expect ')' after for clauses.")

		p.emitLoop(loopStart)
		loopStart = incrementStart
		p.patchJump(bodyJump)
	}

	p.statement()
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitOp(bytecode.OpPop)
	}
	p.endScope()
}

func (p *Parser) returnStatement() {
	if p.cur.kind == KindScript {
		p.error("Can't return from top-level code.")
	}
	if p.match(token.Semicolon) {
		p.emitReturn()
		return
	}
	if p.cur.kind == KindInitializer {
		p.error("Can't return a value from an initializer.")
	}
	p.expression()
	p.consume(token.Semicolon, "Expect ';' after return value.")
	p.emitOp(bytecode.OpReturn)
}

func (p *Parser) funDeclaration() {
	global := p.parseVariable("Expect function name.")
	p.markInitialized()
	p.function(KindFunction)
	p.defineVariable(global)
}

// function compiles one function body into its own nested funcState,
// closing it into an OP_CLOSURE instruction in the enclosing chunk (per
// spec §4.1, every function value at runtime is a Closure — even one
// that captures nothing).
func (p *Parser) function(kind FunctionKind) {
	enclosing := p.cur
	fn := p.heap.NewFunction()
	fn.Name = p.heap.InternString(p.previous.Lexeme())
	p.cur = newFuncState(enclosing, kind, fn)

	p.beginScope()
	p.consume(token.LeftParen, "Expect '(' after function name.")
	if !p.check(token.RightParen) {
		for {
			p.cur.function.Arity++
			if p.cur.function.Arity > 255 {
				p.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := p.parseVariable("Expect parameter name.")
			p.defineVariable(constant)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.consume(token.RightParen, "Expect ')' after parameters.")
	p.consume(token.LeftBrace, "Expect '{' before function body.")
	p.block()

	compiled := p.cur
	function := p.endCompiler()
	p.cur = enclosing

	p.emitBytes(bytecode.OpClosure, p.makeConstant(object.ObjValue(function)))
	for i := 0; i < function.UpvalueCount; i++ {
		if compiled.upvalues[i].IsLocal {
			p.emitByte(1)
		} else {
			p.emitByte(0)
		}
		p.emitByte(compiled.upvalues[i].Index)
	}
}

func (p *Parser) method() {
	p.consume(token.Identifier, "Expect method name.")
	name := p.previous.Lexeme()
	constant := p.identifierConstant(name)

	kind := KindMethod
	if name == "init" {
		kind = KindInitializer
	}
	p.function(kind)
	p.emitBytes(bytecode.OpMethod, constant)
}

// classDeclaration compiles a class body, wiring up `super` as a
// synthetic local scope around the methods when there is a superclass
// so `this`/`super` lookups inside methods resolve exactly like any
// other captured variable (spec §4.1).
func (p *Parser) classDeclaration() {
	p.consume(token.Identifier, "Expect class name.")
	nameTok := p.previous
	nameConstant := p.identifierConstant(nameTok.Lexeme())
	p.declareVariable(nameTok.Lexeme())

	p.emitBytes(bytecode.OpClass, nameConstant)
	p.defineVariable(nameConstant)

	cs := &classState{enclosing: p.class}
	p.class = cs

	if p.match(token.Less) {
		p.consume(token.Identifier, "Expect superclass name.")
		variable(p, false)
		if p.previous.Lexeme() == nameTok.Lexeme() {
			p.error("A class can't inherit from itself.")
		}

		p.beginScope()
		p.addLocal("super")
		p.defineVariable(0)

		p.namedVariable(nameTok.Lexeme(), false)
		p.emitOp(bytecode.OpInherit)
		cs.hasSuperclass = true
	}

	p.namedVariable(nameTok.Lexeme(), false)
	p.consume(token.LeftBrace, "Expect '{' before class body.")
	for !p.check(token.RightBrace) && !p.check(token.EOF) {
		p.method()
	}
	p.consume(token.RightBrace, "Expect '}' after class body.")
	p.emitOp(bytecode.OpPop)

	if cs.hasSuperclass {
		p.endScope()
	}
	p.class = cs.enclosing
}
