package anilist

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	mdTags = strings.NewReplacer(
		"<br>", "\n", "<br/>", "\n", "<br />", "\n",
		"<i>", "*", "</i>", "*", "<em>", "*", "</em>", "*",
		"<b>", "**", "</b>", "**", "<strong>", "**", "</strong>", "**",
		"<u>", "__", "</u>", "__",
		"<s>", "~~", "</s>", "~~", "<del>", "~~", "</del>", "~~",
		"~!", "||", "!~", "||",
	)
	mdLink     = regexp.MustCompile(`<a\s+href="([^"]*)"[^>]*>(.*?)</a>`)
	mdAnyTag   = regexp.MustCompile(`<[^>]*>`)
	mdNewlines = regexp.MustCompile(`\n{3,}`)
)

// Markdown reduces AniList description HTML to Discord markdown and
// truncates it to at most max runes.
func Markdown(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = mdLink.ReplaceAllString(s, "[$2]($1)")
	s = mdTags.Replace(s)
	s = mdAnyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = mdNewlines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	return Truncate(s, max)
}

// Truncate cuts s to at most max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == max-1 {
			return s[:i] + "…"
		}
		n++
	}
	return s
}
