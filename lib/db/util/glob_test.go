package util

import (
	"testing"
)

// TestCompilePattern tests glob to regexp translation and matching
func TestCompilePattern(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"*", "anything", true},
		{"*", "", true},
		{"user:*", "user:1", true},
		{"user:*", "user:", true},
		{"user:*", "users:1", false},
		{"user:*", "session:user:1", false},
		{"*:1", "user:1", true},
		{"*:1", "user:12", false},
		{"user:*:profile", "user:42:profile", true},
		{"user:*:profile", "user:42:settings", false},
		{"exact", "exact", true},
		{"exact", "exact2", false},
		{"a.b", "a.b", true},
		{"a.b", "axb", false}, // '.' must match literally
		{"a+b*", "a+bc", true},
		{"", "", true},
		{"", "x", false},
	}

	for _, tt := range tests {
		re, err := CompilePattern(tt.pattern)
		if err != nil {
			t.Fatalf("CompilePattern(%q) returned error: %v", tt.pattern, err)
		}
		if got := re.MatchString(tt.key); got != tt.want {
			t.Errorf("pattern %q against key %q: expected %v, got %v", tt.pattern, tt.key, got, tt.want)
		}
	}
}

// TestCompilePatternCache tests that repeated compilations hit the cache
func TestCompilePatternCache(t *testing.T) {
	first, err := CompilePattern("cached:*")
	if err != nil {
		t.Fatalf("CompilePattern returned error: %v", err)
	}

	second, err := CompilePattern("cached:*")
	if err != nil {
		t.Fatalf("CompilePattern returned error: %v", err)
	}

	if first != second {
		t.Error("expected cached *regexp.Regexp instance on second compilation")
	}
}

// TestMatchesAll tests the fast path check for match-everything patterns
func TestMatchesAll(t *testing.T) {
	if !MatchesAll("*") {
		t.Error("MatchesAll(\"*\") should be true")
	}
	if MatchesAll("") {
		t.Error("MatchesAll(\"\") should be false, an empty pattern only matches the empty key")
	}
	if MatchesAll("user:*") {
		t.Error("MatchesAll(\"user:*\") should be false")
	}
}
