package coding

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeCodeText is the comparison key for code texts: NFC, Unicode case folding,
// and runs of whitespace collapsed to a single space with the ends trimmed.
// Two texts with the same key are the same code.
func NormalizeCodeText(s string) string {
	s = norm.NFC.String(s)
	s = folder.String(s)
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = b.Len() > 0
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CleanCodeText trims a submitted code text while keeping its casing.
func CleanCodeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
