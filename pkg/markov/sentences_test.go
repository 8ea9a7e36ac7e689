package markov

import (
	"slices"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple",
			input: "Hello world. How are you? I am fine!",
			want:  []string{"Hello world.", "How are you?", "I am fine!"},
		},
		{
			name:  "title abbreviation",
			input: "Mr. Smith went to Washington. He liked it.",
			want:  []string{"Mr. Smith went to Washington.", "He liked it."},
		},
		{
			name:  "dotted exception",
			input: "The U.S. Army arrived. Yes.",
			want:  []string{"The U.S. Army arrived.", "Yes."},
		},
		{
			name:  "lowercase continuation",
			input: "I saw it. then I left.",
			want:  []string{"I saw it. then I left."},
		},
		{
			name:  "closing quote stays with sentence",
			input: `He said "Stop!" Then he left.`,
			want:  []string{`He said "Stop!"`, "Then he left."},
		},
		{
			name:  "single initial",
			input: "John F. Kennedy spoke. People listened.",
			want:  []string{"John F. Kennedy spoke.", "People listened."},
		},
		{
			name:  "no terminal punctuation",
			input: "  just a fragment  ",
			want:  []string{"just a fragment"},
		},
		{
			name:  "empty",
			input: "   ",
			want:  []string{},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitSentences(tc.input)
			if !slices.Equal(got, tc.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
