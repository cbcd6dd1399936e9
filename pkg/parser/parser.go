// Package parser implements a recursive-descent parser for the entity
// language (§4.8 surface syntax), turning a lexer.Token stream into an
// unresolved pkg/ast.Program for pkg/resolver to walk.
//
// Grammar:
//
//	Program    := Entity*
//	Entity     := "entity" IDENT "{" ("data" IDENT ("," IDENT)*)? Function* "}"
//	Function   := "fn" IDENT "(" Params? ")" "{" Statement* "}"
//	Params     := IDENT ("," IDENT)*
//	Statement  := Let | Assign | Return | ExprStmt
//	Let        := "let" IDENT "=" Expr ";"
//	Assign     := IDENT "=" Expr ";"
//	Return     := "return" ( ForeignCall | Expr ) ";"
//	ExprStmt   := Expr ";"
//	Expr       := Term (("+" | "-") Term)*
//	Term       := Unary (("*" | "/") Unary)*
//	Unary      := "await" Unary | Primary
//	Primary    := INT | MessageSend | ForeignCall | IDENT | "(" Expr ")"
//	MessageSend:= IDENT "." IDENT "(" Args? ")"
//	ForeignCall:= "foreign" "(" INT ")"
//	Args       := Expr ("," Expr)*
//
// A bare "return foreign(id)" is special-cased into a single
// ast.ForeignCallStatement rather than a ReturnStatement wrapping an
// expression — see ast.ForeignCallStatement's doc comment for why.
package parser

import (
	"fmt"
	"strconv"

	"github.com/kristofer/actorvm/pkg/ast"
	"github.com/kristofer/actorvm/pkg/lexer"
	"github.com/kristofer/actorvm/pkg/value"
)

// Parser is stateful and single-use: construct one per source unit.
type Parser struct {
	l       *lexer.Lexer
	curTok  lexer.Token
	peekTok lexer.Token
	errors  []string

	// entityIndex maps a declared entity name to its position in
	// declaration order, which is also its compiled entity id (§4.3:
	// entities compile in declaration order). Built by a pre-scan of the
	// whole input, so a message send naming any entity of the same
	// program, declared before or after it, resolves to a concrete
	// Destination at parse time.
	entityIndex map[string]uint32
}

// New creates a Parser over input and pre-scans entity declarations.
func New(input string) *Parser {
	p := &Parser{l: lexer.New(input)}
	p.nextToken()
	p.nextToken()
	p.entityIndex = scanEntityNames(input)
	return p
}

func scanEntityNames(input string) map[string]uint32 {
	idx := make(map[string]uint32)
	l := lexer.New(input)
	var id uint32
	prev := lexer.Token{}
	for {
		tok := l.NextToken()
		if tok.Type == lexer.TokenEOF {
			break
		}
		if prev.Type == lexer.TokenEntity && tok.Type == lexer.TokenIdentifier {
			idx[tok.Literal] = id
			id++
		}
		prev = tok
	}
	return idx
}

func (p *Parser) nextToken() {
	p.curTok = p.peekTok
	p.peekTok = p.l.NextToken()
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = append(p.errors, fmt.Sprintf("line %d: %s", p.curTok.Line, fmt.Sprintf(format, args...)))
}

func (p *Parser) expect(tt lexer.TokenType) bool {
	if p.curTok.Type != tt {
		p.errorf("expected %s, got %s (%q)", tt, p.curTok.Type, p.curTok.Literal)
		return false
	}
	p.nextToken()
	return true
}

// Parse consumes the whole input and returns the resulting program, or
// the accumulated syntax errors joined into one error.
func (p *Parser) Parse() (*ast.Program, error) {
	prog := &ast.Program{}
	for p.curTok.Type != lexer.TokenEOF {
		ent := p.parseEntity()
		if ent != nil {
			prog.Entities = append(prog.Entities, ent)
		}
	}
	if len(p.errors) > 0 {
		return nil, fmt.Errorf("parser: %d error(s), first: %s", len(p.errors), p.errors[0])
	}
	return prog, nil
}

func (p *Parser) parseEntity() *ast.EntityDef {
	if !p.expect(lexer.TokenEntity) {
		p.nextToken()
		return nil
	}
	name := p.curTok.Literal
	if !p.expect(lexer.TokenIdentifier) {
		return nil
	}
	if !p.expect(lexer.TokenLBrace) {
		return nil
	}

	ent := &ast.EntityDef{Name: name}
	if p.curTok.Type == lexer.TokenData {
		p.nextToken()
		ent.DataFields = append(ent.DataFields, p.curTok.Literal)
		p.expect(lexer.TokenIdentifier)
		for p.curTok.Type == lexer.TokenComma {
			p.nextToken()
			ent.DataFields = append(ent.DataFields, p.curTok.Literal)
			p.expect(lexer.TokenIdentifier)
		}
	}

	for p.curTok.Type == lexer.TokenFn {
		fn := p.parseFunction()
		if fn != nil {
			ent.Functions = append(ent.Functions, fn)
		}
	}

	p.expect(lexer.TokenRBrace)
	return ent
}

func (p *Parser) parseFunction() *ast.FunctionDef {
	if !p.expect(lexer.TokenFn) {
		return nil
	}
	name := p.curTok.Literal
	if !p.expect(lexer.TokenIdentifier) {
		return nil
	}
	if !p.expect(lexer.TokenLParen) {
		return nil
	}

	fn := &ast.FunctionDef{Name: name}
	if p.curTok.Type == lexer.TokenIdentifier {
		fn.Parameters = append(fn.Parameters, p.curTok.Literal)
		p.nextToken()
		for p.curTok.Type == lexer.TokenComma {
			p.nextToken()
			fn.Parameters = append(fn.Parameters, p.curTok.Literal)
			p.expect(lexer.TokenIdentifier)
		}
	}
	if !p.expect(lexer.TokenRParen) {
		return nil
	}
	if !p.expect(lexer.TokenLBrace) {
		return nil
	}

	for p.curTok.Type != lexer.TokenRBrace && p.curTok.Type != lexer.TokenEOF {
		stmt := p.parseStatement()
		if stmt != nil {
			fn.Body = append(fn.Body, stmt)
		}
	}
	p.expect(lexer.TokenRBrace)
	return fn
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.curTok.Type {
	case lexer.TokenLet:
		return p.parseLet()
	case lexer.TokenReturn:
		return p.parseReturn()
	case lexer.TokenIdentifier:
		if p.peekTok.Type == lexer.TokenAssign {
			return p.parseAssign()
		}
		return p.parseExprStatement()
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseLet() ast.Statement {
	p.nextToken() // 'let'
	name := p.curTok.Literal
	if !p.expect(lexer.TokenIdentifier) {
		return nil
	}
	if !p.expect(lexer.TokenAssign) {
		return nil
	}
	val := p.parseExpr()
	p.expect(lexer.TokenSemi)
	return &ast.LetStatement{Name: name, Value: val}
}

func (p *Parser) parseAssign() ast.Statement {
	target := &ast.Identifier{Name: p.curTok.Literal}
	p.nextToken() // IDENT
	p.expect(lexer.TokenAssign)
	val := p.parseExpr()
	p.expect(lexer.TokenSemi)
	return &ast.AssignStatement{Target: target, Value: val}
}

// parseReturn special-cases "return foreign(id);" into a
// ForeignCallStatement (see package doc comment).
func (p *Parser) parseReturn() ast.Statement {
	p.nextToken() // 'return'
	if p.curTok.Type == lexer.TokenForeign {
		fc := p.parseForeignCall()
		p.expect(lexer.TokenSemi)
		return fc
	}
	val := p.parseExpr()
	p.expect(lexer.TokenSemi)
	return &ast.ReturnStatement{Value: val}
}

func (p *Parser) parseExprStatement() ast.Statement {
	val := p.parseExpr()
	p.expect(lexer.TokenSemi)
	return &ast.ExpressionStatement{Value: val}
}

func (p *Parser) parseExpr() ast.Expression {
	left := p.parseTerm()
	for p.curTok.Type == lexer.TokenPlus || p.curTok.Type == lexer.TokenMinus {
		op := ast.OpAdd
		if p.curTok.Type == lexer.TokenMinus {
			op = ast.OpSub
		}
		p.nextToken()
		right := p.parseTerm()
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseTerm() ast.Expression {
	left := p.parseUnary()
	for p.curTok.Type == lexer.TokenStar || p.curTok.Type == lexer.TokenSlash {
		op := ast.OpMul
		if p.curTok.Type == lexer.TokenSlash {
			op = ast.OpDiv
		}
		p.nextToken()
		right := p.parseUnary()
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expression {
	if p.curTok.Type == lexer.TokenAwait {
		p.nextToken()
		return &ast.AwaitExpr{Value: p.parseUnary()}
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() ast.Expression {
	switch p.curTok.Type {
	case lexer.TokenInteger:
		return p.parseIntegerLiteral()

	case lexer.TokenForeign:
		fc := p.parseForeignCall()
		// A foreign call used as a plain expression (outside a bare
		// "return foreign(id)") has no consumer in this grammar; treat
		// its id as an opaque marker value so parsing still succeeds.
		return &ast.Literal{Value: value.U8Value(byte(fc.FuncID))}

	case lexer.TokenLParen:
		p.nextToken()
		inner := p.parseExpr()
		p.expect(lexer.TokenRParen)
		return inner

	case lexer.TokenIdentifier:
		name := p.curTok.Literal
		if p.peekTok.Type == lexer.TokenDot {
			return p.parseMessageSend(name)
		}
		p.nextToken()
		return &ast.Identifier{Name: name}

	default:
		p.errorf("unexpected token %s (%q) in expression", p.curTok.Type, p.curTok.Literal)
		p.nextToken()
		return &ast.Literal{Value: value.None}
	}
}

func (p *Parser) parseIntegerLiteral() ast.Expression {
	lit := p.curTok.Literal
	p.nextToken()
	n, err := strconv.ParseUint(lit, 10, 8)
	if err != nil {
		p.errorf("invalid U8 literal %q: %v", lit, err)
		return &ast.Literal{Value: value.None}
	}
	return &ast.Literal{Value: value.U8Value(uint8(n))}
}

// parseMessageSend handles "Entity.function(args)". entityName must
// have been seen by the pre-scan in New; an unknown name is a parse
// error rather than a later resolver error, since destinations are
// never resolver-checked (§9 redesign: Message carries a concrete
// destination, but nothing re-validates it against DataFields/Target).
func (p *Parser) parseMessageSend(entityName string) ast.Expression {
	p.nextToken() // entity name
	p.nextToken() // '.'
	funcName := p.curTok.Literal
	p.expect(lexer.TokenIdentifier)
	if !p.expect(lexer.TokenLParen) {
		return &ast.Literal{Value: value.None}
	}

	var args []ast.Expression
	if p.curTok.Type != lexer.TokenRParen {
		args = append(args, p.parseExpr())
		for p.curTok.Type == lexer.TokenComma {
			p.nextToken()
			args = append(args, p.parseExpr())
		}
	}
	p.expect(lexer.TokenRParen)

	entID, ok := p.entityIndex[entityName]
	if !ok {
		p.errorf("message send to undeclared entity %q", entityName)
		entID = 0
	}

	return &ast.MessageSend{
		Dest:         &ast.Destination{VatID: 0, EntityID: entID},
		FunctionName: funcName,
		Args:         args,
	}
}

func (p *Parser) parseForeignCall() *ast.ForeignCallStatement {
	p.nextToken() // 'foreign'
	p.expect(lexer.TokenLParen)
	lit := p.curTok.Literal
	p.expect(lexer.TokenInteger)
	p.expect(lexer.TokenRParen)

	id, err := strconv.ParseUint(lit, 10, 32)
	if err != nil {
		p.errorf("invalid foreign function id %q: %v", lit, err)
		return &ast.ForeignCallStatement{}
	}
	return &ast.ForeignCallStatement{FuncID: uint32(id)}
}
