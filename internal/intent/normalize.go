package intent

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize prepares text for phrase matching. It composes the text to NFC,
// lowercases it with Unicode case rules, drops every rune that is not a
// letter (L), number (N) or whitespace, collapses whitespace runs to a single
// space and trims both ends. Composing first keeps a decomposed accent with
// its letter instead of stripping the combining mark.
//
// Punctuation is removed without leaving a gap, so "re-boot" becomes
// "reboot" while "re boot" stays two words.
func Normalize(s string) string {
	// A Caser carries state and must not be shared between goroutines.
	s = cases.Lower(language.Und).String(norm.NFC.String(s))

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}
