// Package title provides the normalized-title helpers shared by the
// blacklist, the RSS matcher, and the completed-downloads scanner.
package title

import "strings"

// Normalize lowercases a title, replaces dot/underscore/hyphen separators
// with spaces, and collapses whitespace. Normalize is idempotent.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ".", " ")
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Strict reduces a title to its [a-z0-9] characters. Used for the fuzzy
// folder-name comparison where separators and punctuation carry no signal.
func Strict(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
