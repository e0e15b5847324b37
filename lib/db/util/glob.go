package util

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

// --------------------------------------------------------------------------
// Glob Patterns
// --------------------------------------------------------------------------

// patternCacheSize bounds the number of compiled patterns kept around.
// Key scans tend to reuse a small set of patterns ("user:*", "session:*"),
// so a small cache absorbs almost all compilations.
const patternCacheSize = 256

var patternCache *lru.Cache

func init() {
	// lru.New only fails for a non-positive size
	patternCache, _ = lru.New(patternCacheSize)
}

// CompilePattern translates a glob pattern into an anchored regular
// expression and compiles it. The only glob meta character is '*', which
// matches any substring (including the empty one); all other characters
// match literally. The pattern is matched against the whole key.
//
// Compiled patterns are cached in a process-wide LRU since translation and
// compilation dominate the cost of small scans.
//
// Thread-safe: This function is safe for concurrent use
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Get(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	var sb strings.Builder
	sb.WriteString("^")
	for i, literal := range strings.Split(pattern, "*") {
		if i > 0 {
			sb.WriteString(".*")
		}
		sb.WriteString(regexp.QuoteMeta(literal))
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, err
	}

	patternCache.Add(pattern, re)
	return re, nil
}

// MatchesAll reports whether the pattern matches every possible key.
// Scans use this to skip regexp matching for the common "*" case.
func MatchesAll(pattern string) bool {
	return pattern == "*"
}
