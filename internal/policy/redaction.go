// Package policy masks personal data in call transcripts before they are
// stored or summarized.
package policy

import "regexp"

// Rule replaces every match of Pattern with a fixed marker.
type Rule struct {
	Kind    string
	Pattern *regexp.Regexp
}

func (r Rule) marker() string { return "[REDACTED_" + r.Kind + "]" }

// Cards run before phones so a long digit run is masked as a card.
var defaultRules = []Rule{
	{Kind: "EMAIL", Pattern: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{Kind: "CARD", Pattern: regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)},
	{Kind: "PHONE", Pattern: regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)},
}

// Redaction is the masked text and how many spans of each kind were hidden.
type Redaction struct {
	Text   string
	Counts map[string]int
}

func (r Redaction) Changed() bool { return len(r.Counts) > 0 }

type Redactor struct {
	rules []Rule
}

// NewRedactor applies rules in order. With no rules it uses the built-in
// email, card and phone patterns.
func NewRedactor(rules ...Rule) *Redactor {
	if len(rules) == 0 {
		rules = defaultRules
	}
	return &Redactor{rules: rules}
}

func (r *Redactor) Redact(input string) Redaction {
	out := Redaction{Text: input}
	for _, rule := range r.rules {
		n := len(rule.Pattern.FindAllStringIndex(out.Text, -1))
		if n == 0 {
			continue
		}
		out.Text = rule.Pattern.ReplaceAllString(out.Text, rule.marker())
		if out.Counts == nil {
			out.Counts = make(map[string]int)
		}
		out.Counts[rule.Kind] += n
	}
	return out
}
