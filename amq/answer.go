package amq

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacritic matches the Latin combining marks. Other nonspacing marks, like
// kana voicing marks, change meaning and are kept.
var diacritic = runes.Predicate(func(r rune) bool { return 0x300 <= r && r <= 0x36f })

// Normalize folds case and diacritics of an answer for comparison.
// Runs of punctuation become single spaces.
func Normalize(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(diacritic), norm.NFC)
	r, _, err := transform.String(t, s)
	if err != nil {
		r = s
	}
	var b strings.Builder
	space := false
	for _, c := range strings.ToLower(r) {
		switch {
		case unicode.IsLetter(c) || unicode.IsDigit(c):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(c)
		default:
			space = true
		}
	}
	return b.String()
}

// Match reports whether an answer matches any of the accepted names.
func Match(answer string, names ...string) bool {
	a := Normalize(answer)
	if a == "" {
		return false
	}
	for _, n := range names {
		if Normalize(n) == a {
			return true
		}
	}
	return false
}
