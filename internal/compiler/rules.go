package compiler

import (
	"strconv"

	"sentra/internal/bytecode"
	"sentra/internal/object"
	"sentra/internal/token"
)

// rules is the Pratt parse table: for every token kind, the prefix
// handler (if it can start an expression), the infix handler (if it can
// continue one), and the precedence of that infix use.
var rules [token.EOF + 1]ParseRule

func rule(kind token.Kind, prefix, infix parseFn, prec Precedence) {
	rules[kind] = ParseRule{Prefix: prefix, Infix: infix, Precedence: prec}
}

func init() {
	rule(token.LeftParen, grouping, call, PrecCall)
	rule(token.Dot, nil, dot, PrecCall)
	rule(token.Minus, unary, binary, PrecTerm)
	rule(token.Plus, nil, binary, PrecTerm)
	rule(token.Slash, nil, binary, PrecFactor)
	rule(token.Star, nil, binary, PrecFactor)
	rule(token.Bang, unary, nil, PrecNone)
	rule(token.BangEqual, nil, binary, PrecEquality)
	rule(token.EqualEqual, nil, binary, PrecEquality)
	rule(token.Greater, nil, binary, PrecComparison)
	rule(token.GreaterEqual, nil, binary, PrecComparison)
	rule(token.Less, nil, binary, PrecComparison)
	rule(token.LessEqual, nil, binary, PrecComparison)
	rule(token.Identifier, variable, nil, PrecNone)
	rule(token.String, stringLit, nil, PrecNone)
	rule(token.Number, number, nil, PrecNone)
	rule(token.And, nil, and_, PrecAnd)
	rule(token.Or, nil, or_, PrecOr)
	rule(token.False, literal, nil, PrecNone)
	rule(token.Nil, literal, nil, PrecNone)
	rule(token.True, literal, nil, PrecNone)
	rule(token.This, this_, nil, PrecNone)
	rule(token.Super, super_, nil, PrecNone)
}

func getRule(kind token.Kind) ParseRule {
	return rules[kind]
}

// expression parses at the lowest precedence above "none", i.e. a full
// assignment-or-lower expression.
func (p *Parser) expression() {
	p.parsePrecedence(PrecAssignment)
}

func (p *Parser) parsePrecedence(prec Precedence) {
	p.advance()
	prefix := getRule(p.previous.Kind).Prefix
	if prefix == nil {
		p.error("Expect expression.")
		return
	}
	canAssign := prec <= PrecAssignment
	prefix(p, canAssign)

	for prec <= getRule(p.current.Kind).Precedence {
		p.advance()
		infix := getRule(p.previous.Kind).Infix
		infix(p, canAssign)
	}

	if canAssign && p.match(token.Equal) {
		p.error("Invalid assignment target.")
	}
}

func grouping(p *Parser, canAssign bool) {
	p.expression()
	p.consume(token.RightParen, "Expect ')' after expression.")
}

func unary(p *Parser, canAssign bool) {
	opKind := p.previous.Kind
	p.parsePrecedence(PrecUnary)
	switch opKind {
	case token.Minus:
		p.emitOp(bytecode.OpNegate)
	case token.Bang:
		p.emitOp(bytecode.OpNot)
	}
}

func binary(p *Parser, canAssign bool) {
	opKind := p.previous.Kind
	rule := getRule(opKind)
	p.parsePrecedence(rule.Precedence + 1)
	switch opKind {
	case token.Plus:
		p.emitOp(bytecode.OpAdd)
	case token.Minus:
		p.emitOp(bytecode.OpSubtract)
	case token.Star:
		p.emitOp(bytecode.OpMultiply)
	case token.Slash:
		p.emitOp(bytecode.OpDivide)
	case token.EqualEqual:
		p.emitOp(bytecode.OpEqual)
	case token.BangEqual:
		p.emitOp(bytecode.OpEqual)
		p.emitOp(bytecode.OpNot)
	case token.Greater:
		p.emitOp(bytecode.OpGreater)
	case token.GreaterEqual:
		p.emitOp(bytecode.OpLess)
		p.emitOp(bytecode.OpNot)
	case token.Less:
		p.emitOp(bytecode.OpLess)
	case token.LessEqual:
		p.emitOp(bytecode.OpGreater)
		p.emitOp(bytecode.OpNot)
	}
}

func number(p *Parser, canAssign bool) {
	n, _ := strconv.ParseFloat(p.previous.Lexeme(), 64)
	p.emitConstant(object.Number(n))
}

func stringLit(p *Parser, canAssign bool) {
	lex := p.previous.Lexeme()
	chars := lex[1 : len(lex)-1] // strip surrounding quotes
	p.emitConstant(object.ObjValue(p.heap.InternString(chars)))
}

func literal(p *Parser, canAssign bool) {
	switch p.previous.Kind {
	case token.False:
		p.emitOp(bytecode.OpFalse)
	case token.True:
		p.emitOp(bytecode.OpTrue)
	case token.Nil:
		p.emitOp(bytecode.OpNil)
	}
}

func variable(p *Parser, canAssign bool) {
	p.namedVariable(p.previous.Lexeme(), canAssign)
}

func this_(p *Parser, canAssign bool) {
	if p.class == nil {
		p.error("Can't use 'this' outside of a class.")
		return
	}
	variable(p, false)
}

// super_ compiles `super.name` or `super.name(args)`. The original
// source emitted both GET_SUPER and CALL/SUPER_INVOKE in sequence for
// the call form — almost certainly a bug, since that leaves a dangling
// bound method on the stack underneath the call result. Here exactly
// one opcode is emitted for either form.
func super_(p *Parser, canAssign bool) {
	if p.class == nil {
		p.error("Can't use 'super' outside of a class.")
	} else if !p.class.hasSuperclass {
		p.error("Can't use 'super' in a class with no superclass.")
	}

	p.consume(token.Dot, "Expect '.' after 'super'.")
	p.consume(token.Identifier, "Expect superclass method name.")
	name := p.identifierConstant(p.previous.Lexeme())

	p.namedVariable("this", false)
	if p.match(token.LeftParen) {
		argCount := p.argumentList()
		p.namedVariable("super", false)
		p.emitBytes(bytecode.OpSuperInvoke, name)
		p.emitByte(argCount)
	} else {
		p.namedVariable("super", false)
		p.emitBytes(bytecode.OpGetSuper, name)
	}
}

func and_(p *Parser, canAssign bool) {
	endJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.parsePrecedence(PrecAnd)
	p.patchJump(endJump)
}

func or_(p *Parser, canAssign bool) {
	elseJump := p.emitJump(bytecode.OpJumpIfFalse)
	endJump := p.emitJump(bytecode.OpJump)
	p.patchJump(elseJump)
	p.emitOp(bytecode.OpPop)
	p.parsePrecedence(PrecOr)
	p.patchJump(endJump)
}

func call(p *Parser, canAssign bool) {
	argCount := p.argumentList()
	p.emitBytes(bytecode.OpCall, argCount)
}

func dot(p *Parser, canAssign bool) {
	p.consume(token.Identifier, "Expect property name after '.'.")
	name := p.identifierConstant(p.previous.Lexeme())

	if canAssign && p.match(token.Equal) {
		p.expression()
		p.emitBytes(bytecode.OpSetProperty, name)
	} else if p.match(token.LeftParen) {
		argCount := p.argumentList()
		p.emitBytes(bytecode.OpInvoke, name)
		p.emitByte(argCount)
	} else {
		p.emitBytes(bytecode.OpGetProperty, name)
	}
}

// argumentList parses a parenthesized, comma-separated argument list
// (the opening '(' already consumed by the caller) and returns the
// count, erroring past the 255-argument ceiling.
func (p *Parser) argumentList() byte {
	count := 0
	if !p.check(token.RightParen) {
		for {
			p.expression()
			if count == 255 {
				p.error("Can't have more than 255 arguments.")
			}
			count++
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.consume(token.RightParen, "Expect ')' after arguments.")
	return byte(count)
}
