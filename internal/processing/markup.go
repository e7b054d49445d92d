// Package processing cleans text returned by the search API.
package processing

import (
	"html"
	"regexp"
	"strings"
)

var (
	tagPattern = regexp.MustCompile(`</?[A-Za-z!][^<>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// StripMarkup removes HTML tags, decodes entities and squeezes whitespace.
// Tags are removed before decoding, so text the source escaped on purpose
// ("&lt;Parasite&gt;") survives as "<Parasite>".
func StripMarkup(input string) string {
	if input == "" {
		return ""
	}
	out := input
	// nested fragments like "<<b>b>" reassemble into a tag once the inner one goes
	for {
		next := tagPattern.ReplaceAllString(out, "")
		if next == out {
			break
		}
		out = next
	}
	out = html.UnescapeString(out)
	out = whitespace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
