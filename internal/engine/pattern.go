package engine

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/arkilian/timeline/internal/snl"
)

// Pattern matches keys against an SNL wildcard pattern, where '*' is the
// only metacharacter and matches any run of characters.
type Pattern struct {
	raw    string
	prefix string
	g      glob.Glob
}

// MatchAll is the pattern used when a command carries no values.
var MatchAll = &Pattern{}

// CompilePattern compiles raw. An empty pattern matches every key.
func CompilePattern(raw string) (*Pattern, error) {
	if raw == "" {
		return MatchAll, nil
	}
	parts := strings.Split(raw, snl.Wildcard)
	for i, p := range parts {
		parts[i] = glob.QuoteMeta(p)
	}
	g, err := glob.Compile(strings.Join(parts, snl.Wildcard))
	if err != nil {
		return nil, err
	}
	return &Pattern{raw: raw, prefix: literalPrefix(raw), g: g}, nil
}

func literalPrefix(raw string) string {
	if i := strings.Index(raw, snl.Wildcard); i >= 0 {
		return raw[:i]
	}
	return raw
}

// Exact returns a pattern matching only key, even if key contains '*'.
func Exact(key string) *Pattern {
	g := glob.MustCompile(glob.QuoteMeta(key))
	return &Pattern{raw: key, prefix: key, g: g}
}

// Match reports whether key matches.
func (p *Pattern) Match(key string) bool {
	if p.g == nil {
		return true
	}
	return p.g.Match(key)
}

// Prefix returns the literal text every matching key starts with.
func (p *Pattern) Prefix() string { return p.prefix }

func (p *Pattern) String() string { return p.raw }
