package cache

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

type patternKind int

const (
	patternExact patternKind = iota
	patternPrefix
	patternGlob
)

// wildcard is the only pattern metacharacter. Every other byte, including
// the '?' that separates path from query in a key, is literal.
const wildcard = "*"

// Pattern selects cache keys for invalidation.
//
//   - "/players?limit=5@public" deletes exactly that key
//   - "/matches*" deletes every key starting with "/matches"
//   - "/leagues/*/standings*" and other inner wildcards are matched as globs
type Pattern struct {
	raw    string
	kind   patternKind
	prefix string
	g      glob.Glob
}

// CompilePattern parses an invalidation pattern.
func CompilePattern(raw string) (Pattern, error) {
	if raw == "" {
		return Pattern{}, fmt.Errorf("empty invalidation pattern")
	}

	if !strings.Contains(raw, wildcard) {
		return Pattern{raw: raw, kind: patternExact}, nil
	}

	head := strings.TrimSuffix(raw, wildcard)
	if !strings.Contains(head, wildcard) {
		return Pattern{raw: raw, kind: patternPrefix, prefix: head}, nil
	}

	// No separators: '*' spans path segments and the identity suffix.
	parts := strings.Split(raw, wildcard)
	for i, part := range parts {
		parts[i] = glob.QuoteMeta(part)
	}
	g, err := glob.Compile(strings.Join(parts, wildcard))
	if err != nil {
		return Pattern{}, fmt.Errorf("compile pattern %q: %w", raw, err)
	}
	return Pattern{raw: raw, kind: patternGlob, g: g}, nil
}

// MustCompilePattern is like CompilePattern but panics on error.
func MustCompilePattern(raw string) Pattern {
	p, err := CompilePattern(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether key is selected by the pattern.
func (p Pattern) Match(key string) bool {
	switch p.kind {
	case patternExact:
		return key == p.raw
	case patternPrefix:
		return strings.HasPrefix(key, p.prefix)
	case patternGlob:
		return p.g.Match(key)
	default:
		return false
	}
}

// IsExact reports whether the pattern names a single key.
func (p Pattern) IsExact() bool {
	return p.kind == patternExact
}

func (p Pattern) String() string {
	return p.raw
}
