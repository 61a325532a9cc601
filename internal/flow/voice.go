package flow

import (
	"regexp"
	"strings"
)

// Language model output is written for reading; these rewrites make it sound
// right when spoken aloud over a phone line.

var (
	markdownEmphasis = regexp.MustCompile("[*_`#]+")
	urlPattern       = regexp.MustCompile(`https?://\S+`)
	bulletPrefix     = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)
	whitespaceRuns   = regexp.MustCompile(`\s+`)
)

// spokenReplacements expands symbols a TTS voice would stumble over.
var spokenReplacements = strings.NewReplacer(
	"&", " and ",
	"%", " percent",
	"@", " at ",
	"/", " or ",
	"~", " about ",
	"e.g.", "for example",
	"i.e.", "that is",
	"etc.", "and so on",
)

// OptimizeForVoice rewrites model output into text suitable for speech
// synthesis: markdown stripped, URLs dropped, symbols spelled out, bullets
// flattened into sentences, and whitespace collapsed.
func OptimizeForVoice(text string) string {
	out := urlPattern.ReplaceAllString(text, "")
	out = bulletPrefix.ReplaceAllString(out, "")
	out = markdownEmphasis.ReplaceAllString(out, "")
	out = spokenReplacements.Replace(out)
	out = whitespaceRuns.ReplaceAllString(out, " ")
	out = strings.TrimSpace(out)
	if out == "" {
		return out
	}
	switch out[len(out)-1] {
	case '.', '!', '?':
	default:
		out += "."
	}
	return out
}
