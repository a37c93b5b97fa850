package run

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultWorkspace is used when a caller leaves the workspace empty.
const DefaultWorkspace = "default"

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize trims, lowercases and collapses internal whitespace to single spaces.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// NormalizeWorkspace normalizes a workspace name, defaulting empty input to "default".
func NormalizeWorkspace(s string) string {
	if n := Normalize(s); n != "" {
		return n
	}
	return DefaultWorkspace
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}
