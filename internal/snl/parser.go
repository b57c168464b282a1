package snl

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseError represents a parsing error with location information.
type ParseError struct {
	Message  string
	Position int
	Token    Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("snl: parse error at position %d: %s (got %s)", e.Position, e.Message, e.Token.Literal)
}

// Parser turns command text back into a Command.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a single command.
func Parse(input string) (*Command, error) {
	return NewParser(input).ParseCommand()
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return &ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: p.curToken.Pos,
		Token:    p.curToken,
	}
}

// expect checks the current token type and advances past it.
func (p *Parser) expect(t TokenType) (Token, error) {
	if p.curToken.Type != t {
		return Token{}, p.errorf("expected %s", t)
	}
	tok := p.curToken
	p.nextToken()
	return tok, nil
}

// expectWord checks for a specific bare word and advances past it.
func (p *Parser) expectWord(word string) error {
	if p.curToken.Type != TokenWord || p.curToken.Literal != word {
		return p.errorf("expected %q", word)
	}
	p.nextToken()
	return nil
}

// ParseCommand parses: op(kind) [values(...)] on(path).
func (p *Parser) ParseCommand() (*Command, error) {
	opTok, err := p.expect(TokenWord)
	if err != nil {
		return nil, err
	}
	op := Operation(opTok.Literal)
	if !op.Valid() {
		return nil, &ParseError{Message: "unknown operation", Position: opTok.Pos, Token: opTok}
	}

	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	kindTok, err := p.expect(TokenWord)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	cmd := &Command{Op: op, Kind: Kind(kindTok.Literal)}

	if p.curToken.Type == TokenWord && p.curToken.Literal == "values" {
		p.nextToken()
		if _, err := p.expect(TokenLParen); err != nil {
			return nil, err
		}
		values, err := p.parseValues()
		if err != nil {
			return nil, err
		}
		cmd.Values = values
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
	}

	if err := p.expectWord("on"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	cmd.Path = path
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	if p.curToken.Type != TokenEOF {
		return nil, p.errorf("unexpected trailing input")
	}
	return cmd, nil
}

func (p *Parser) parseValues() (Values, error) {
	tok := p.curToken
	switch tok.Type {
	case TokenWord:
		p.nextToken()
		return Key(tok.Literal), nil
	case TokenJSON:
		p.nextToken()
		return decodeJSONValues(tok)
	default:
		return nil, p.errorf("expected key, pattern or [key, payload]")
	}
}

func decodeJSONValues(tok Token) (Values, error) {
	raw := []byte(tok.Literal)
	switch raw[0] {
	case '"':
		var k string
		if err := json.Unmarshal(raw, &k); err != nil {
			return nil, &ParseError{Message: err.Error(), Position: tok.Pos, Token: tok}
		}
		if k == "" {
			return nil, &ParseError{Message: "empty key", Position: tok.Pos, Token: tok}
		}
		return Key(k), nil
	case '[':
		var tuple []json.RawMessage
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&tuple); err != nil {
			return nil, &ParseError{Message: err.Error(), Position: tok.Pos, Token: tok}
		}
		if len(tuple) != 2 {
			return nil, &ParseError{Message: "values tuple must be [key, payload]", Position: tok.Pos, Token: tok}
		}
		var k string
		if err := json.Unmarshal(tuple[0], &k); err != nil || k == "" {
			return nil, &ParseError{Message: "tuple key must be a non-empty string", Position: tok.Pos, Token: tok}
		}
		return Pair{Key: k, Payload: tuple[1]}, nil
	default:
		return nil, &ParseError{Message: "values must be a key or a [key, payload] tuple", Position: tok.Pos, Token: tok}
	}
}

func (p *Parser) parsePath() (Path, error) {
	var segs []string
	for {
		tok, err := p.expect(TokenWord)
		if err != nil {
			return Path{}, err
		}
		segs = append(segs, tok.Literal)
		if p.curToken.Type != TokenDot {
			break
		}
		p.nextToken()
	}
	if len(segs) > 4 {
		return Path{}, p.errorf("path has more than four segments")
	}
	var path Path
	fields := []*string{&path.Database, &path.Namespace, &path.Entity, &path.Key}
	for i, s := range segs {
		*fields[i] = s
	}
	return path, nil
}
