// Package sanitize cleans text produced by models and agents before it is
// returned to clients.
package sanitize

import (
	"strings"
	"unicode"
)

// Text removes control characters other than newlines and tabs, trims
// surrounding whitespace and limits the result to maxRunes runes. A
// non-positive maxRunes disables the limit.
func Text(s string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		if maxRunes > 0 && n >= maxRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}
