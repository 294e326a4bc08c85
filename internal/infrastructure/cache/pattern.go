package cache

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultPatternCacheSize bounds the number of compiled invalidation patterns kept around
const defaultPatternCacheSize = 256

// patternMatcher compiles glob patterns (*, ?, [...]) and memoises them.
// Wildcards cross ':' boundaries and braces are literal, matching Redis MATCH semantics.
type patternMatcher struct {
	compiled *lru.Cache[string, glob.Glob]
}

func newPatternMatcher(size int) (*patternMatcher, error) {
	if size <= 0 {
		size = defaultPatternCacheSize
	}
	compiled, err := lru.New[string, glob.Glob](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern cache: %w", err)
	}
	return &patternMatcher{compiled: compiled}, nil
}

// compile returns the compiled glob for pattern
func (m *patternMatcher) compile(pattern string) (glob.Glob, error) {
	if g, ok := m.compiled.Get(pattern); ok {
		return g, nil
	}
	g, err := glob.Compile(literalBraces(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid cache key pattern %q: %w", pattern, err)
	}
	m.compiled.Add(pattern, g)
	return g, nil
}

// literalBraces escapes '{' and '}' outside character classes so gobwas/glob
// does not read them as alternation, which Redis MATCH has no notion of.
func literalBraces(pattern string) string {
	if !strings.ContainsAny(pattern, "{}") {
		return pattern
	}
	var b strings.Builder
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			b.WriteByte(c)
			i++
			b.WriteByte(pattern[i])
			continue
		case c == '[' && !inClass:
			inClass = true
		case c == ']' && inClass:
			inClass = false
		case (c == '{' || c == '}') && !inClass:
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}
