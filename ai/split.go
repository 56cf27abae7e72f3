package ai

import (
	"strings"
	"unicode/utf8"
)

// Split breaks text into chunks of at most max runes, preferring to break at
// line boundaries.
func Split(text string, max int) []string {
	var r []string
	var cur strings.Builder
	n := 0
	flush := func() {
		if cur.Len() > 0 {
			r = append(r, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		ln := utf8.RuneCountInString(line)
		if n+ln <= max {
			cur.WriteString(line)
			n += ln
			continue
		}
		flush()
		for ln > max {
			i := runeOffset(line, max)
			r = append(r, line[:i])
			line = line[i:]
			ln -= max
		}
		cur.WriteString(line)
		n = ln
	}
	flush()
	out := r[:0]
	for _, s := range r {
		if s = strings.TrimRight(s, "\n"); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// runeOffset returns the byte offset of the n-th rune in s.
func runeOffset(s string, n int) int {
	k := 0
	for i := range s {
		if k == n {
			return i
		}
		k++
	}
	return len(s)
}
