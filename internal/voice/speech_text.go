package voice

import (
	"regexp"
	"strings"
	"unicode"
)

// markupRules run in order; links must be rewritten before bare URLs go.
var markupRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile("(?s)```.*?```"), " "},
	{regexp.MustCompile("`[^`]*`"), " "},
	{regexp.MustCompile(`\[(.*?)\]\((.*?)\)`), "$1"},
	{regexp.MustCompile(`https?://\S+`), " "},
	{regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+`), ""},
}

var spaceBeforePunct = regexp.MustCompile(`\s+([.,!?:;])`)

// SpeakableText strips markup and symbol noise from an assistant reply so the
// synthesized audio reads naturally. The displayed reply keeps its markup.
func SpeakableText(raw string) string {
	for _, rule := range markupRules {
		raw = rule.re.ReplaceAllString(raw, rule.repl)
	}
	raw = strings.Map(speakableRune, raw)
	raw = strings.Join(strings.Fields(raw), " ")
	return spaceBeforePunct.ReplaceAllString(raw, "$1")
}

// speakableRune keeps letters, digits and the punctuation a voice can carry.
// Other symbols become spaces and zero-width joiners vanish.
func speakableRune(r rune) rune {
	switch {
	case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
		return -1
	case unicode.IsSpace(r):
		return ' '
	case unicode.IsControl(r):
		return -1
	case strings.ContainsRune(".,!?:;'\"-()’", r):
		return r
	case unicode.IsPunct(r), unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
		return ' '
	default:
		return r
	}
}
