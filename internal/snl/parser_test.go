package snl

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestLexer(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenType
	}{
		{
			"view(structure)\non(db.ns.entries)",
			[]TokenType{TokenWord, TokenLParen, TokenWord, TokenRParen, TokenWord, TokenLParen,
				TokenWord, TokenDot, TokenWord, TokenDot, TokenWord, TokenRParen, TokenEOF},
		},
		{
			`values(["k", {"a": [1, ")"]}])`,
			[]TokenType{TokenWord, TokenLParen, TokenJSON, TokenRParen, TokenEOF},
		},
		{
			"values(2024_03_*)",
			[]TokenType{TokenWord, TokenLParen, TokenWord, TokenRParen, TokenEOF},
		},
		{
			"on(db;ns)",
			[]TokenType{TokenWord, TokenLParen, TokenWord, TokenError},
		},
	}

	for _, tt := range tests {
		tokens := Tokenize(tt.input)
		if len(tokens) != len(tt.expected) {
			t.Errorf("input %q: expected %d tokens, got %d: %v", tt.input, len(tt.expected), len(tokens), tokens)
			continue
		}
		for i, tok := range tokens {
			if tok.Type != tt.expected[i] {
				t.Errorf("input %q: token %d: expected %s, got %s", tt.input, i, tt.expected[i], tok.Type)
			}
		}
	}
}

func TestLexer_JSONLiteralIsExact(t *testing.T) {
	tokens := Tokenize(`values(["k", {"x": "a)b"}])`)
	if tokens[2].Type != TokenJSON {
		t.Fatalf("expected JSON token, got %s", tokens[2].Type)
	}
	if tokens[2].Literal != `["k", {"x": "a)b"}]` {
		t.Errorf("unexpected literal %q", tokens[2].Literal)
	}
}

func TestParse_View(t *testing.T) {
	cmd, err := Parse("view(structure)\nvalues(*_01HX)\non(db.ns.entries)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Op != OpView || cmd.Kind != KindStructure {
		t.Errorf("unexpected header %s(%s)", cmd.Op, cmd.Kind)
	}
	if cmd.Values != Key("*_01HX") {
		t.Errorf("unexpected values %#v", cmd.Values)
	}
	if cmd.Path != (Path{Database: "db", Namespace: "ns", Entity: "entries"}) {
		t.Errorf("unexpected path %+v", cmd.Path)
	}
}

func TestParse_Pair(t *testing.T) {
	cmd, err := Parse(`set(structure)
values(["2024_03_15_id", {"action": "login", "tags": ["a"]}])
on(db.ns.entries)`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pair, ok := cmd.Values.(Pair)
	if !ok {
		t.Fatalf("expected Pair, got %T", cmd.Values)
	}
	if pair.Key != "2024_03_15_id" {
		t.Errorf("unexpected key %q", pair.Key)
	}
	raw, ok := pair.Payload.(json.RawMessage)
	if !ok {
		t.Fatalf("expected raw payload, got %T", pair.Payload)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload["action"] != "login" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestParse_NoValues(t *testing.T) {
	cmd, err := Parse("list(structure)\non(db.ns)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Values != nil {
		t.Errorf("expected no values, got %#v", cmd.Values)
	}
	if cmd.Path.Entity != "" {
		t.Errorf("expected no entity, got %q", cmd.Path.Entity)
	}
}

func TestParse_Errors(t *testing.T) {
	inputs := []string{
		"",
		"drop(structure)\non(db)",
		"view structure\non(db)",
		"view(structure)\non()",
		"view(structure)\non(db.ns.entries.key.extra)",
		"view(structure)\nvalues([\"k\"])\non(db)",
		"view(structure)\nvalues([1, 2])\non(db)",
		"view(structure)\nvalues({\"a\": 1})\non(db)",
		"view(structure)\nvalues(\"\")\non(db)",
		"view(structure)\non(db) trailing",
		"view(structure)\nvalues([\"k\", {\"a\": )\non(db)",
	}
	for _, input := range inputs {
		_, err := Parse(input)
		if err == nil {
			t.Errorf("input %q: expected error", input)
			continue
		}
		if _, ok := err.(*ParseError); !ok {
			t.Errorf("input %q: expected *ParseError, got %T", input, err)
		}
	}
}

// Feature: snl-command-roundtrip
// Parsing a built command and rebuilding it yields the same text.
func TestProperty_BuildParseRoundtrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	segment := gen.RegexMatch(`[a-z0-9_]{1,12}`)
	ops := gen.OneConstOf(OpSet, OpView, OpList, OpSearch, OpRemove, OpTag, OpUntag)

	properties.Property("Build(Parse(Build(x))) == Build(x) for keys", prop.ForAll(
		func(op Operation, db, ns, entity, key string) bool {
			path := Path{Database: db, Namespace: ns, Entity: entity}
			built, err := Build(op, KindStructure, Key(key), path)
			if err != nil {
				return false
			}
			cmd, err := Parse(built)
			if err != nil {
				return false
			}
			if cmd.Op != op || cmd.Path != path || cmd.Values != Key(key) {
				return false
			}
			return cmd.String() == built
		},
		ops, segment, segment, segment, gen.AnyString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.Property("pair payloads survive a roundtrip", prop.ForAll(
		func(key, text string, n int) bool {
			path := Path{Database: "db", Namespace: "ns", Entity: "entries"}
			payload := map[string]interface{}{"text": text, "n": n, "list": []string{text}}
			built, err := Build(OpSet, KindStructure, Pair{Key: key, Payload: payload}, path)
			if err != nil {
				return false
			}
			cmd, err := Parse(built)
			if err != nil {
				return false
			}
			return cmd.String() == built
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.AnyString(),
		gen.Int(),
	))

	properties.TestingRun(t)
}
