package compiler

import (
	"fmt"
	"strconv"

	"github.com/wayuto/alum/pkg/ast"
	"github.com/wayuto/alum/pkg/value"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for Alum source
// ---------------------------------------------------------------------------

// SyntaxError is a lexing or parsing failure at a source position.
type SyntaxError struct {
	Pos ast.Position
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("SyntaxError: %s (line: %d, column: %d)", e.Msg, e.Pos.Line, e.Pos.Column)
}

var comparisonOps = map[TokenType]bool{
	TokenEq: true, TokenNe: true, TokenGt: true, TokenGe: true, TokenLt: true, TokenLe: true,
}

var additiveOps = map[TokenType]bool{TokenPlus: true, TokenMinus: true}

var multiplicativeOps = map[TokenType]bool{TokenStar: true, TokenSlash: true}

var prefixOps = map[TokenType]bool{
	TokenBang: true, TokenMinus: true, TokenPlus: true, TokenInc: true, TokenDec: true,
}

// Parser parses Alum source code into a program tree. Parsing stops at the
// first error.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	prevType  TokenType // type of the last consumed token
	depth     int       // open parentheses; line breaks inside them do not end expressions
	errors    []*SyntaxError
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a whole source text.
func Parse(input string) (*ast.Program, error) {
	return NewParser(input).ParseProgram()
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.prevType = p.curToken.Type
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// breaks reports whether a line break before tok ends the expression.
func (p *Parser) breaks(tok Token) bool {
	return tok.Newline && p.depth == 0
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected '%s', got %s", t, p.curToken.describe())
	return false
}

// expectIdent consumes an identifier and returns its name.
func (p *Parser) expectIdent() (string, bool) {
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected identifier, got %s", p.curToken.describe())
		return "", false
	}
	name := p.curToken.Literal
	p.nextToken()
	return name, true
}

// errorf records a parse error at the current token. Only the first error
// is kept.
func (p *Parser) errorf(format string, args ...interface{}) {
	if len(p.errors) > 0 {
		return
	}
	pos := p.curToken.Pos
	msg := fmt.Sprintf(format, args...)
	if p.curTokenIs(TokenError) {
		msg = p.curToken.Literal
	}
	p.errors = append(p.errors, &SyntaxError{Pos: pos, Msg: msg})
}

func (p *Parser) failed() bool {
	return len(p.errors) > 0
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []*SyntaxError {
	return p.errors
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ParseProgram parses statements until end of input.
func (p *Parser) ParseProgram() (*ast.Program, error) {
	body := p.parseStatements(TokenEOF)
	if !p.failed() && !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s", p.curToken.describe())
	}
	if p.failed() {
		return nil, p.errors[0]
	}
	return &ast.Program{Body: body}, nil
}

// parseStatements parses a statement list up to (not including) end.
func (p *Parser) parseStatements(end TokenType) []ast.Expr {
	body := []ast.Expr{}
	for {
		for p.curTokenIs(TokenSemicolon) {
			p.nextToken()
		}
		if p.curTokenIs(end) || p.curTokenIs(TokenEOF) {
			return body
		}

		stmt := p.parseStatement()
		if p.failed() {
			return nil
		}
		body = append(body, stmt)

		if !p.atStatementEnd() {
			p.errorf("expected ';' or newline before %s", p.curToken.describe())
			return nil
		}
	}
}

// atStatementEnd reports whether the current token may follow a statement.
func (p *Parser) atStatementEnd() bool {
	switch {
	case p.curTokenIs(TokenSemicolon), p.curTokenIs(TokenRBrace), p.curTokenIs(TokenEOF):
		return true
	case p.curToken.Newline:
		return true
	default:
		return p.prevType == TokenRBrace
	}
}

// startsValue reports whether an optional operand follows on the same line.
func (p *Parser) startsValue() bool {
	if p.curToken.Newline {
		return false
	}
	switch p.curToken.Type {
	case TokenSemicolon, TokenRBrace, TokenEOF, TokenElse:
		return false
	}
	return true
}

func (p *Parser) parseStatement() ast.Expr {
	pos := p.curToken.Pos

	switch p.curToken.Type {
	case TokenLet:
		p.nextToken()
		name, ok := p.expectIdent()
		if !ok || !p.expect(TokenAssign) {
			return nil
		}
		v := p.parseExpression()
		if v == nil {
			return nil
		}
		return &ast.VarDecl{Pos: pos, Name: name, Value: v}

	case TokenFun:
		return p.parseFuncDecl()

	case TokenReturn:
		p.nextToken()
		n := &ast.Return{Pos: pos}
		if p.startsValue() {
			if n.Value = p.parseExpression(); n.Value == nil {
				return nil
			}
		}
		return n

	case TokenOut:
		p.nextToken()
		v := p.parseExpression()
		if v == nil {
			return nil
		}
		return &ast.Out{Pos: pos, Value: v}

	case TokenIn:
		p.nextToken()
		name, ok := p.expectIdent()
		if !ok {
			return nil
		}
		return &ast.In{Pos: pos, Name: name}

	case TokenIf:
		return p.parseIf()

	case TokenWhile:
		p.nextToken()
		cond := p.parseCondition()
		if cond == nil {
			return nil
		}
		body := p.parseStatement()
		if body == nil {
			return nil
		}
		return &ast.While{Pos: pos, Condition: cond, Body: body}

	case TokenGoto:
		p.nextToken()
		name, ok := p.expectIdent()
		if !ok {
			return nil
		}
		return &ast.Goto{Pos: pos, Label: name}

	case TokenExit:
		p.nextToken()
		n := &ast.Exit{Pos: pos}
		if p.startsValue() {
			if n.Code = p.parseExpression(); n.Code == nil {
				return nil
			}
		}
		return n

	case TokenLBrace:
		if b := p.parseBlock(); b != nil {
			return b
		}
		return nil

	case TokenIdentifier:
		if p.peekTokenIs(TokenColon) && !p.peekToken.Newline {
			name := p.curToken.Literal
			p.nextToken()
			p.nextToken()
			return &ast.Label{Pos: pos, Name: name}
		}
	}

	return p.parseExpression()
}

// parseBlock parses { statements }.
func (p *Parser) parseBlock() *ast.Stmt {
	pos := p.curToken.Pos
	if !p.expect(TokenLBrace) {
		return nil
	}

	depth := p.depth
	p.depth = 0
	body := p.parseStatements(TokenRBrace)
	p.depth = depth

	if p.failed() || !p.expect(TokenRBrace) {
		return nil
	}
	return &ast.Stmt{Pos: pos, Body: body}
}

// parseCondition parses ( expr ).
func (p *Parser) parseCondition() ast.Expr {
	if !p.expect(TokenLParen) {
		return nil
	}
	p.depth++
	cond := p.parseExpression()
	p.depth--
	if cond == nil || !p.expect(TokenRParen) {
		return nil
	}
	return cond
}

func (p *Parser) parseIf() ast.Expr {
	pos := p.curToken.Pos
	p.nextToken()

	cond := p.parseCondition()
	if cond == nil {
		return nil
	}
	then := p.parseStatement()
	if then == nil {
		return nil
	}
	n := &ast.If{Pos: pos, Condition: cond, Then: then}

	if p.curTokenIs(TokenElse) {
		p.nextToken()
		els := p.parseStatement()
		if els == nil {
			return nil
		}
		n.Else = els
	}
	return n
}

// parseFuncDecl parses fun name(a, b) { body }.
func (p *Parser) parseFuncDecl() ast.Expr {
	pos := p.curToken.Pos
	p.nextToken()

	name, ok := p.expectIdent()
	if !ok || !p.expect(TokenLParen) {
		return nil
	}

	params := []string{}
	for !p.curTokenIs(TokenRParen) {
		if len(params) > 0 && !p.expect(TokenComma) {
			return nil
		}
		param, ok := p.expectIdent()
		if !ok {
			return nil
		}
		params = append(params, param)
	}
	p.nextToken()

	body := p.parseBlock()
	if body == nil {
		return nil
	}
	return &ast.FuncDecl{Pos: pos, Name: name, Params: params, Body: body}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// parseExpression parses an assignment or anything of higher precedence.
func (p *Parser) parseExpression() ast.Expr {
	if p.curTokenIs(TokenIdentifier) && p.peekTokenIs(TokenAssign) && !p.breaks(p.peekToken) {
		pos := p.curToken.Pos
		name := p.curToken.Literal
		p.nextToken()
		p.nextToken()
		v := p.parseExpression()
		if v == nil {
			return nil
		}
		return &ast.VarMod{Pos: pos, Name: name, Value: v}
	}
	return p.parseBinary(comparisonOps, func() ast.Expr {
		return p.parseBinary(additiveOps, func() ast.Expr {
			return p.parseBinary(multiplicativeOps, p.parseUnary)
		})
	})
}

// parseBinary parses a left-associative chain of the given operators.
func (p *Parser) parseBinary(ops map[TokenType]bool, operand func() ast.Expr) ast.Expr {
	left := operand()
	for left != nil && ops[p.curToken.Type] && !p.breaks(p.curToken) {
		op := p.curToken
		p.nextToken()
		right := operand()
		if right == nil {
			return nil
		}
		left = &ast.BinOp{Pos: op.Pos, Left: left, Right: right, Operator: op.Literal}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	if prefixOps[p.curToken.Type] {
		op := p.curToken
		p.nextToken()
		arg := p.parseUnary()
		if arg == nil {
			return nil
		}
		return &ast.UnaryOp{Pos: op.Pos, Argument: arg, Operator: op.Literal}
	}
	return p.parsePostfix()
}

// parsePostfix handles x++ and x--, which update x and yield the new value.
func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	if v, ok := expr.(*ast.Var); ok && (p.curTokenIs(TokenInc) || p.curTokenIs(TokenDec)) && !p.breaks(p.curToken) {
		op := p.curToken
		p.nextToken()
		return &ast.UnaryOp{Pos: v.Pos, Argument: v, Operator: op.Literal}
	}
	return expr
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.curToken

	switch tok.Type {
	case TokenNumber:
		n, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorf("invalid number %s", tok.Literal)
			return nil
		}
		p.nextToken()
		return &ast.Val{Pos: tok.Pos, Value: value.Number(n)}

	case TokenString:
		p.nextToken()
		return &ast.Val{Pos: tok.Pos, Value: value.Str(tok.Literal)}

	case TokenTrue, TokenFalse:
		p.nextToken()
		return &ast.Val{Pos: tok.Pos, Value: value.Bool(tok.Type == TokenTrue)}

	case TokenNull:
		p.nextToken()
		return &ast.Val{Pos: tok.Pos, Value: value.Void}

	case TokenIdentifier:
		p.nextToken()
		if p.curTokenIs(TokenLParen) && !p.curToken.Newline {
			return p.parseCall(tok)
		}
		return &ast.Var{Pos: tok.Pos, Name: tok.Literal}

	case TokenLParen:
		p.nextToken()
		p.depth++
		expr := p.parseExpression()
		p.depth--
		if expr == nil || !p.expect(TokenRParen) {
			return nil
		}
		return expr

	default:
		p.errorf("unexpected %s", tok.describe())
		return nil
	}
}

// parseCall parses the argument list after a routine name.
func (p *Parser) parseCall(name Token) ast.Expr {
	p.nextToken() // (
	p.depth++
	defer func() { p.depth-- }()

	args := []ast.Expr{}
	for !p.curTokenIs(TokenRParen) {
		if len(args) > 0 && !p.expect(TokenComma) {
			return nil
		}
		arg := p.parseExpression()
		if arg == nil {
			return nil
		}
		args = append(args, arg)
	}
	p.nextToken()

	return &ast.FuncCall{Pos: name.Pos, Name: name.Literal, Args: args}
}
