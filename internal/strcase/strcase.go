// Package strcase splits identifiers into their constituent words.
package strcase

import (
	"strings"
	"unicode"
)

// Split an identifier into words. Case transitions start a new word, runs of
// upper-case letters are kept together as acronyms, and non-alphanumeric
// separators are returned as their own tokens.
func Split(s string) []string {
	var parts []string
	var current []rune
	runes := []rune(s)
	flush := func() {
		if len(current) > 0 {
			parts = append(parts, string(current))
			current = nil
		}
	}
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			prevUpper := i > 0 && unicode.IsUpper(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if !prevUpper || nextLower {
				flush()
			}
			current = append(current, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current = append(current, r)
		default:
			flush()
			parts = append(parts, string(r))
		}
	}
	flush()
	return parts
}

// LowerCamelCase converts an identifier to lowerCamelCase, dropping
// separators. Leading acronyms are lowered wholesale, so "DBPool" becomes
// "dbPool".
func LowerCamelCase(s string) string {
	var out strings.Builder
	first := true
	for _, part := range Split(s) {
		r := []rune(part)
		if !unicode.IsLetter(r[0]) && !unicode.IsDigit(r[0]) {
			continue
		}
		if first {
			out.WriteString(strings.ToLower(part))
			first = false
			continue
		}
		out.WriteString(part)
	}
	return out.String()
}
