package postag

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Understudy/pkg/markov"
)

func TestTrain(t *testing.T) {
	sentences, err := LoadTagged(strings.NewReader("the/DET cat/NOUN sat/VERB\n\nthe/DET dog/NOUN ran/VERB .../PUNCT\n"))
	require.NoError(t, err)
	require.Len(t, sentences, 2)

	m, err := Train(sentences)
	require.NoError(t, err)

	assert.Equal(t, []string{"DET", "NOUN", "PUNCT", "VERB"}, m.Tags)
	assert.Equal(t, map[string]int{"DET": 2}, m.Words["the"])
	assert.Equal(t, map[string]int{"DET": 2}, m.Transitions[startTag])
	assert.Equal(t, map[string]int{"VERB": 2}, m.Transitions["NOUN"])
	assert.Equal(t, map[string]int{"PUNCT": 1}, m.Transitions["VERB"])
	assert.Equal(t, map[string]int{"NOUN": 1, "VERB": 1}, m.Suffixes["at"])
	assert.Equal(t, map[string]int{"NOUN": 1}, m.Suffixes["g"])
	assert.NotContains(t, m.Words, "...", "punctuation is not part of the lexicon")
	assert.NotContains(t, m.Suffixes, "cat", "a whole word is not its own suffix")
	assert.Equal(t, "DET", m.Default, "ties resolve alphabetically")
}

func TestTrainErrors(t *testing.T) {
	_, err := Train(nil)
	assert.ErrorIs(t, err, ErrModel)

	_, err = Train([][]markov.Token{{{Text: "untagged"}}})
	assert.ErrorIs(t, err, ErrModel)
}

func TestLoadTaggedErrors(t *testing.T) {
	for _, input := range []string{"word", "word/", "/TAG", "ok/DET bad"} {
		_, err := LoadTagged(strings.NewReader(input))
		assert.ErrorIs(t, err, ErrModel, "input %q", input)
	}
}

func TestSaveLoad(t *testing.T) {
	m := Default()

	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))
	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
}

func TestLoadErrors(t *testing.T) {
	testCases := map[string]string{
		"malformed":       `{"tags": [`,
		"no tags":         `{"tags": [], "default": "NOUN"}`,
		"unknown default": `{"tags": ["NOUN"], "default": "VERB"}`,
	}
	for name, doc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			assert.True(t, errors.Is(err, ErrModel), "got %v", err)
		})
	}
}

func TestDefault(t *testing.T) {
	m := Default()
	require.NotNil(t, m)
	assert.Same(t, m, Default(), "the embedded model is built once")
	assert.Contains(t, m.Tags, Noun)
	assert.Contains(t, m.Tags, Verb)
	assert.Equal(t, Verb, m.Default)
}
