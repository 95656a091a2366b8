package model

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeTagTitle strips commas and surrounding whitespace, then upper-cases the
// first letter and lower-cases the rest. It returns "" when nothing is left.
func NormalizeTagTitle(term string) string {
	s := strings.TrimSpace(strings.ReplaceAll(term, ",", ""))
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
