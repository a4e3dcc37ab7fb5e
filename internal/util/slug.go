package util

import (
	"strings"
	"unicode"
)

// Slug converts a string to kebab-case: lowercased, spaces and underscores
// become hyphens, other punctuation is dropped, runs of hyphens collapse,
// and leading or trailing hyphens are trimmed. Slot names pass through this
// so they stay safe to use as file and directory names.
func Slug(s string) string {
	var result strings.Builder

	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(unicode.ToLower(r))
		} else if r == ' ' || r == '_' || r == '-' {
			result.WriteRune('-')
		}
	}

	str := result.String()
	for strings.Contains(str, "--") {
		str = strings.ReplaceAll(str, "--", "-")
	}

	return strings.Trim(str, "-")
}
