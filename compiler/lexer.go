package compiler

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/wayuto/alum/pkg/ast"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Alum source
// ---------------------------------------------------------------------------

var twoCharTokens = map[[2]rune]TokenType{
	{'+', '+'}: TokenInc,
	{'-', '-'}: TokenDec,
	{'=', '='}: TokenEq,
	{'!', '='}: TokenNe,
	{'>', '='}: TokenGe,
	{'<', '='}: TokenLe,
}

var oneCharTokens = map[rune]TokenType{
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenStar,
	'/': TokenSlash,
	'>': TokenGt,
	'<': TokenLt,
	'!': TokenBang,
	'=': TokenAssign,
	'(': TokenLParen,
	')': TokenRParen,
	'{': TokenLBrace,
	'}': TokenRBrace,
	',': TokenComma,
	':': TokenColon,
	';': TokenSemicolon,
}

// Lexer tokenizes Alum source code.
type Lexer struct {
	input   string
	pos     int  // offset of ch
	readPos int  // offset after ch
	ch      rune // current character, 0 at end of input
	line    int  // line of ch (1-based)
	col     int  // column of ch (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	l.col++
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = len(l.input)
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() ast.Position {
	return ast.Position{Line: l.line, Column: l.col}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	newline := l.skipWhitespaceAndComments()
	tok := l.scan()
	tok.Newline = newline
	return tok
}

func (l *Lexer) scan() Token {
	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}

	case isDigit(l.ch):
		return l.readNumber(pos)

	case isIdentStart(l.ch):
		return l.readIdentifier(pos)

	case l.ch == '"':
		return l.readString(pos)
	}

	// Operators and delimiters, longest match first
	if typ, ok := twoCharTokens[[2]rune{l.ch, l.peekChar()}]; ok {
		lit := string([]rune{l.ch, l.peekChar()})
		l.readChar()
		l.readChar()
		return Token{Type: typ, Literal: lit, Pos: pos}
	}

	if typ, ok := oneCharTokens[l.ch]; ok {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: typ, Literal: lit, Pos: pos}
	}

	ch := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: "unexpected character " + strconv.QuoteRune(ch), Pos: pos}
}

// skipWhitespaceAndComments skips blanks and // comments and reports whether
// a line break was crossed.
func (l *Lexer) skipWhitespaceAndComments() bool {
	newline := false
	for {
		switch {
		case l.ch == '\n':
			newline = true
			l.readChar()
		case unicode.IsSpace(l.ch):
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return newline
		}
	}
}

// readNumber reads digits with an optional fractional part.
func (l *Lexer) readNumber(pos ast.Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' {
		l.readChar()
		if !isDigit(l.ch) {
			return Token{Type: TokenError, Literal: "invalid number: expected digit after '.'", Pos: pos}
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier(pos ast.Position) Token {
	start := l.pos
	for isIdentStart(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if typ, ok := Keywords[lit]; ok {
		return Token{Type: typ, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

// readString reads a double-quoted string, decoding escapes.
func (l *Lexer) readString(pos ast.Position) Token {
	l.readChar() // opening quote
	var sb strings.Builder
	for {
		switch l.ch {
		case 0, '\n':
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		case '"':
			l.readChar()
			return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				return Token{Type: TokenError, Literal: "unknown escape sequence \\" + string(l.ch), Pos: pos}
			}
			l.readChar()
		default:
			sb.WriteRune(l.ch)
			l.readChar()
		}
	}
}

// Tokenize returns every token of input up to and including EOF, stopping
// early at the first error token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return toks
		}
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}
