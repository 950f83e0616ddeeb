package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeakableText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"drops emoji and emphasis", "Sure \U0001F60A **let's** do this / now.", "Sure let's do this now."},
		{"keeps link label and removes url", "Read [the agenda](https://example.com/agenda) first.", "Read the agenda first."},
		{"removes code", "```bash\nnpm run dev\n```\nThen run `make test` ✅", "Then run"},
		{"flattens lists and headings", "## Next steps\n- Send the deck.\n2. Book a follow-up.", "Next steps Send the deck. Book a follow-up."},
		{"tidies space before punctuation", "Done **!** See you _soon_ .", "Done! See you soon."},
		{"keeps curly apostrophe", "We don’t need more.", "We don’t need more."},
		{"blank", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SpeakableText(tc.in))
		})
	}
}
