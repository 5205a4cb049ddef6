// Package pattern implements the unified include/exclude URL filter language
// used when reviewing discovered links.
//
// A filter is authored as one comma-separated string. Tokens prefixed with
// "!" exclude; all other tokens include. Matching is fnmatch-style: "*" and
// "**" are equivalent and both match any run of characters including path
// separators, and "?" matches exactly one character. Patterns are evaluated
// against the full URL string (scheme, host, and path), never a decomposed
// path.
package pattern

import (
	"strings"

	"github.com/gobwas/glob"
)

// Set holds the parsed include and exclude patterns of one unified filter
// string. Build a Set through Parse or New; the zero value accepts every URL.
type Set struct {
	Include []string
	Exclude []string

	include []glob.Glob
	exclude []glob.Glob
}

// Parse splits a unified pattern string into a Set. Tokens are comma
// separated and trimmed; empty tokens are dropped. A token starting with "!"
// becomes an exclude entry with the prefix stripped and re-trimmed. Order is
// irrelevant and duplicates are harmless. Empty or whitespace-only input
// yields an empty Set.
func Parse(s string) Set {
	var include, exclude []string
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(token, "!"); ok {
			rest = strings.TrimSpace(rest)
			if rest != "" {
				exclude = append(exclude, rest)
			}
			continue
		}
		include = append(include, token)
	}
	return New(include, exclude)
}

// New builds a Set from pre-split pattern arrays, the form used on the wire.
// Tokens that do not compile as globs are kept in the raw slices but never
// match any URL.
func New(include, exclude []string) Set {
	return Set{
		Include: include,
		Exclude: exclude,
		include: compile(include),
		exclude: compile(exclude),
	}
}

func compile(tokens []string) []glob.Glob {
	if len(tokens) == 0 {
		return nil
	}
	globs := make([]glob.Glob, 0, len(tokens))
	for _, token := range tokens {
		// No separator runes: "*" and "**" both cross "/".
		g, err := glob.Compile(token)
		if err != nil {
			continue
		}
		globs = append(globs, g)
	}
	return globs
}

// IsEmpty reports whether the Set carries no patterns at all.
func (s Set) IsEmpty() bool {
	return len(s.Include) == 0 && len(s.Exclude) == 0
}

// Matches evaluates url against the Set. Exclude patterns always win: a URL
// matching any exclude pattern is rejected regardless of includes. With a
// non-empty include list the URL must match at least one include; an empty
// include list accepts everything not excluded.
func (s Set) Matches(url string) bool {
	for _, g := range s.exclude {
		if g.Match(url) {
			return false
		}
	}
	if len(s.Include) == 0 {
		return true
	}
	for _, g := range s.include {
		if g.Match(url) {
			return true
		}
	}
	return false
}
