package policy

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// compiled patterns are cached for the life of the process; the same small
// set of grant patterns is matched against up to 10^6 resource ids per run
var patternCache sync.Map // string -> *regexp.Regexp

// Match reports whether value matches pattern. Patterns support * (any
// sequence of characters, including empty) and ? (exactly one character);
// all other characters match literally. An empty pattern is malformed.
func Match(pattern, value string) (bool, error) {
	if pattern == "" {
		return false, fmt.Errorf("empty pattern")
	}
	if pattern == "*" {
		return true, nil
	}
	if !strings.ContainsAny(pattern, "*?") {
		return pattern == value, nil
	}

	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp).MatchString(value), nil
	}

	re, err := regexp.Compile(patternToRegex(pattern))
	if err != nil {
		return false, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	patternCache.Store(pattern, re)
	return re.MatchString(value), nil
}

// patternToRegex converts a pattern with * and ? wildcards into an anchored
// regex (^...$). All other characters are escaped so they match literally.
func patternToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, ch := range pattern {
		switch ch {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	b.WriteString("$")
	return b.String()
}

// MatchAny reports whether value matches any of the patterns
func MatchAny(patterns []string, value string) (bool, error) {
	for _, pattern := range patterns {
		ok, err := Match(pattern, value)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
