package postag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"

	"github.com/CTAG07/Understudy/pkg/markov"
)

func tags(tokens []markov.Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Tag
	}
	return out
}

func TestFastTagger(t *testing.T) {
	tagger := NewFastTagger(nil)

	testCases := []struct {
		sentence string
		want     []string
	}{
		{sentence: "The cat sat.", want: []string{Determiner, Noun, Verb}},
		{sentence: "we ran 42 miles !", want: []string{Pronoun, Verb, Numeral, Noun, Punctuation}},
		{sentence: "Zorblax slowly opened the door", want: []string{Noun, Adverb, Verb, Determiner, Noun}},
		{sentence: "blindness quietly", want: []string{Noun, Adverb}},
	}
	for _, tc := range testCases {
		t.Run(tc.sentence, func(t *testing.T) {
			tokens, err := tagger.Tag(tc.sentence)
			require.NoError(t, err)
			assert.Equal(t, tc.want, tags(tokens))
		})
	}
}

func TestAccurateTagger(t *testing.T) {
	tagger := NewAccurateTagger(nil)

	testCases := []struct {
		sentence string
		want     []string
	}{
		{sentence: "the dog ran", want: []string{Determiner, Noun, Verb}},
		{sentence: "the zorblax ran", want: []string{Determiner, Noun, Verb}},
		{sentence: "she quickly walked away", want: []string{Pronoun, Adverb, Verb, Adverb}},
		{sentence: "word", want: nil},
	}
	for _, tc := range testCases {
		t.Run(tc.sentence, func(t *testing.T) {
			tokens, err := tagger.Tag(tc.sentence)
			require.NoError(t, err)
			if tc.want == nil {
				require.Len(t, tokens, 1)
				assert.Contains(t, tagger.tags, tokens[0].Tag)
				return
			}
			assert.Equal(t, tc.want, tags(tokens))
		})
	}
}

func TestTaggersRoundTrip(t *testing.T) {
	inputs := []string{
		"The cat sat on the mat.",
		"  two   spaces\tand a tab ",
		"café noir",
		"",
		"Is this 3rd one okay?",
	}
	for _, strategy := range []string{StrategyNone, StrategyFast, StrategyAccurate} {
		tagger, err := New(strategy, nil)
		require.NoError(t, err)
		assert.Equal(t, strategy, tagger.Name())

		for _, in := range inputs {
			tokens, err := tagger.Tag(in)
			require.NoError(t, err, "%s: %q", strategy, in)
			want := strings.Join(strings.Fields(norm.NFC.String(in)), " ")
			assert.Equal(t, want, markov.Join(tokens), "%s: %q", strategy, in)
			if strategy != StrategyNone {
				for _, tok := range tokens {
					assert.True(t, tok.HasTag(), "%s: %q left %q untagged", strategy, in, tok.Text)
				}
			}
		}
	}
}

func TestTaggersRejectLikeSplitter(t *testing.T) {
	for _, strategy := range []string{StrategyFast, StrategyAccurate} {
		tagger, err := New(strategy, nil)
		require.NoError(t, err)
		_, err = tagger.Tag(`he said "no"`)
		assert.ErrorIs(t, err, markov.ErrTokenization)

		lenient, err := New(strategy, nil, markov.WithoutRejection())
		require.NoError(t, err)
		tokens, err := lenient.Tag(`he said "no"`)
		require.NoError(t, err)
		assert.Len(t, tokens, 3)
	}
}

func TestNewUnknownStrategy(t *testing.T) {
	_, err := New("psychic", nil)
	assert.Error(t, err)
}

func TestTaggersTrainModels(t *testing.T) {
	tagger := NewFastTagger(nil)
	trainer := markov.NewTrainer(tagger, 1)
	m, err := trainer.Train(t.Context(), []string{"the cat sat", "the dog ran"})
	require.NoError(t, err)
	assert.Equal(t, StrategyFast, m.Tagger())

	trs, ok := m.Transitions([]markov.Token{{Text: "the", Tag: Determiner}})
	require.True(t, ok)
	assert.Len(t, trs, 2)
}
