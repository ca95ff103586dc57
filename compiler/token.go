package compiler

import (
	"fmt"

	"github.com/wayuto/alum/pkg/ast"
)

// ---------------------------------------------------------------------------
// Token types for the Alum lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber     // 12, 3.5
	TokenString     // "hello\n"
	TokenIdentifier // foo, _bar2

	// Keywords
	TokenLet
	TokenFun
	TokenReturn
	TokenOut
	TokenIn
	TokenIf
	TokenElse
	TokenWhile
	TokenGoto
	TokenExit
	TokenTrue
	TokenFalse
	TokenNull

	// Operators
	TokenPlus   // +
	TokenMinus  // -
	TokenStar   // *
	TokenSlash  // /
	TokenEq     // ==
	TokenNe     // !=
	TokenGt     // >
	TokenGe     // >=
	TokenLt     // <
	TokenLe     // <=
	TokenBang   // !
	TokenInc    // ++
	TokenDec    // --
	TokenAssign // =

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenComma     // ,
	TokenColon     // :
	TokenSemicolon // ;
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNumber:     "NUMBER",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenLet:        "let",
	TokenFun:        "fun",
	TokenReturn:     "return",
	TokenOut:        "out",
	TokenIn:         "in",
	TokenIf:         "if",
	TokenElse:       "else",
	TokenWhile:      "while",
	TokenGoto:       "goto",
	TokenExit:       "exit",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenNull:       "null",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenEq:         "==",
	TokenNe:         "!=",
	TokenGt:         ">",
	TokenGe:         ">=",
	TokenLt:         "<",
	TokenLe:         "<=",
	TokenBang:       "!",
	TokenInc:        "++",
	TokenDec:        "--",
	TokenAssign:     "=",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenComma:      ",",
	TokenColon:      ":",
	TokenSemicolon:  ";",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string       // raw text; decoded contents for strings, message for errors
	Pos     ast.Position // start position
	Newline bool         // a line break separates this token from the previous one
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// describe renders a token for error messages.
func (t Token) describe() string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenIdentifier:
		return fmt.Sprintf("identifier '%s'", t.Literal)
	case TokenNumber:
		return fmt.Sprintf("number %s", t.Literal)
	case TokenString:
		return fmt.Sprintf("string %q", t.Literal)
	default:
		return fmt.Sprintf("'%s'", t.Type)
	}
}

// Keywords mapped to their token types.
var Keywords = map[string]TokenType{
	"let":    TokenLet,
	"fun":    TokenFun,
	"return": TokenReturn,
	"out":    TokenOut,
	"in":     TokenIn,
	"if":     TokenIf,
	"else":   TokenElse,
	"while":  TokenWhile,
	"goto":   TokenGoto,
	"exit":   TokenExit,
	"true":   TokenTrue,
	"false":  TokenFalse,
	"null":   TokenNull,
}
