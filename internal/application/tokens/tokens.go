// Package tokens finds and substitutes $name and ${name} variable references
// inside template text.
package tokens

import (
	"regexp"
	"strings"
)

var referencePattern = regexp.MustCompile(`\$\{([A-Za-z0-9_.\-]+)\}|\$([A-Za-z0-9_]+)`)

// Lookup returns the substitution text for a referenced name. The second
// result is false when the reference cannot be substituted yet.
type Lookup func(name string) (string, bool)

// References returns the distinct names referenced in text, in order of
// first appearance.
func References(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range referencePattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Single reports whether text, ignoring surrounding space, is exactly one
// reference, and returns the referenced name.
func Single(text string) (string, bool) {
	text = strings.TrimSpace(text)
	loc := referencePattern.FindStringSubmatchIndex(text)
	if loc == nil || loc[0] != 0 || loc[1] != len(text) {
		return "", false
	}
	if loc[2] >= 0 {
		return text[loc[2]:loc[3]], true
	}
	return text[loc[4]:loc[5]], true
}

// Substitute replaces every reference to a name in known with the text
// returned by lookup. References to names outside known are left intact.
// Known references that lookup cannot resolve are left intact and returned
// as unresolved.
func Substitute(text string, known map[string]bool, lookup Lookup) (string, []string) {
	var unresolved []string
	out := referencePattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")
		if !known[name] {
			return match
		}
		sub, ok := lookup(name)
		if !ok {
			unresolved = append(unresolved, name)
			return match
		}
		return sub
	})
	return out, unresolved
}

// Quote renders s as a single-quoted literal, doubling embedded quotes.
func Quote(s string) string {
	return "'" + Escape(s) + "'"
}

// Escape doubles single quotes in s.
func Escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// QuoteList renders items as a comma-separated list of quoted literals.
func QuoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = Quote(item)
	}
	return strings.Join(quoted, ",")
}
