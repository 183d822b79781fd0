package stage

import (
	"strings"
	"unicode"
)

// NormalizeSerial canonicalizes a device serial: trim surrounding
// whitespace, uppercase, then strip any trailing run of whitespace and
// . , ; : characters. Internal characters are left untouched.
//
// The order matters: trailing punctuation is stripped after case folding
// so that the result is stable under repeated normalization.
func NormalizeSerial(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ToUpper(s)
	return strings.TrimRightFunc(s, isTrailingJunk)
}

func isTrailingJunk(r rune) bool {
	switch r {
	case '.', ',', ';', ':':
		return true
	}
	return unicode.IsSpace(r)
}

// LooksLikeURL reports whether s contains http://, https:// or www.,
// case-insensitively.
func LooksLikeURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "http://") ||
		strings.Contains(lower, "https://") ||
		strings.Contains(lower, "www.")
}
