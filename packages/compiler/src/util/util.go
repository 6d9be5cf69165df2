package util

import (
	"go/token"
	"strings"
	"unicode"
)

// SplitAtPeriod splits a string at the last period character
func SplitAtPeriod(input string) (qualifier, name string) {
	index := strings.LastIndexByte(input, '.')
	if index == -1 {
		return "", input
	}
	return input[:index], input[index+1:]
}

// PascalCase converts a file stem such as "user_card" or "user-card.v2"
// into an exported Go identifier ("UserCardV2").
func PascalCase(input string) string {
	var b strings.Builder
	upper := true
	for _, r := range input {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" || unicode.IsDigit(rune(out[0])) {
		out = "T" + out
	}
	return out
}

// SanitizePackageName turns a directory name into a valid package name.
func SanitizePackageName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || unicode.IsDigit(rune(out[0])) || token.IsKeyword(out) {
		out = "views" + out
	}
	return out
}

// IsIdentifier reports whether name is a valid, non-keyword Go identifier.
func IsIdentifier(name string) bool {
	return token.IsIdentifier(name)
}
