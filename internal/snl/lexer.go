package snl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError
	TokenWord   // bare identifier, key or pattern
	TokenJSON   // a JSON string, array or object
	TokenLParen // (
	TokenRParen // )
	TokenDot    // .
)

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

// String returns a string representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("Token{%s, %q, %d}", t.Type, t.Literal, t.Pos)
}

// String returns the string representation of a TokenType.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return "ERROR"
	case TokenWord:
		return "WORD"
	case TokenJSON:
		return "JSON"
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenDot:
		return "."
	default:
		return fmt.Sprintf("TokenType(%d)", int(t))
	}
}

// Lexer tokenizes SNL command text.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]

	switch ch {
	case '(':
		l.pos++
		return Token{Type: TokenLParen, Literal: "(", Pos: start}
	case ')':
		l.pos++
		return Token{Type: TokenRParen, Literal: ")", Pos: start}
	case '.':
		l.pos++
		return Token{Type: TokenDot, Literal: ".", Pos: start}
	case '"', '[', '{':
		return l.readJSON()
	}

	if isWordChar(ch) {
		for l.pos < len(l.input) && isWordChar(l.input[l.pos]) {
			l.pos++
		}
		return Token{Type: TokenWord, Literal: l.input[start:l.pos], Pos: start}
	}

	l.pos++
	return Token{Type: TokenError, Literal: string(ch), Pos: start}
}

// readJSON consumes exactly one JSON value starting at the current position.
func (l *Lexer) readJSON() Token {
	start := l.pos
	dec := json.NewDecoder(bytes.NewReader([]byte(l.input[start:])))
	dec.UseNumber()
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		l.pos = len(l.input)
		return Token{Type: TokenError, Literal: err.Error(), Pos: start}
	}
	l.pos = start + int(dec.InputOffset())
	return Token{Type: TokenJSON, Literal: l.input[start:l.pos], Pos: start}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

// Tokenize returns all tokens up to and including EOF or the first error.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return tokens
		}
	}
}
