package markov

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultRejectPattern matches sentences whose quoting or bracketing is likely
// to produce broken output once recombined: stray apostrophes at word edges,
// double quotes, parentheses and square brackets.
const DefaultRejectPattern = `(^')|('$)|\s'|'\s|["()\[\]]`

// Splitter breaks a sentence into words. It is the shared front half of every
// Tagger in this module: words are separated on Unicode whitespace, so joining
// them back with single spaces reproduces the sentence up to spacing.
// Its behavior can be customized with functional options.
type Splitter struct {
	rejectRegex *regexp.Regexp
	normalize   bool
}

// Option Is a function that configures a Splitter.
type Option func(*Splitter)

// WithRejectRegex sets the regex used to refuse whole sentences.
// Default: DefaultRejectPattern
func WithRejectRegex(rejectRegex string) Option {
	return func(s *Splitter) {
		s.rejectRegex = regexp.MustCompile(rejectRegex)
	}
}

// WithoutRejection accepts every sentence, whatever its quoting.
func WithoutRejection() Option {
	return func(s *Splitter) {
		s.rejectRegex = nil
	}
}

// WithoutNormalization disables Unicode NFC normalization of the input.
func WithoutNormalization() Option {
	return func(s *Splitter) {
		s.normalize = false
	}
}

// NewSplitter creates a new splitter with default settings, which can be
// overridden by providing one or more Option functions.
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		rejectRegex: regexp.MustCompile(DefaultRejectPattern),
		normalize:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split returns the words of sentence. Empty or blank input yields a nil slice.
// Sentences matching the reject pattern, or spelling out a reserved sentinel,
// fail with ErrTokenization.
func (s *Splitter) Split(sentence string) ([]string, error) {
	if s.normalize {
		sentence = norm.NFC.String(sentence)
	}
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return nil, nil
	}
	if s.rejectRegex != nil && s.rejectRegex.MatchString(sentence) {
		return nil, fmt.Errorf("%w: %q matches reject pattern", ErrTokenization, sentence)
	}
	words := strings.Fields(sentence)
	for _, w := range words {
		if w == BeginText || w == EndText {
			return nil, fmt.Errorf("%w: %q uses a reserved sentinel", ErrTokenization, w)
		}
	}
	return words, nil
}

// NoOpTagger is the fastest Tagger: it splits sentences into words and leaves
// every tag absent.
type NoOpTagger struct {
	splitter *Splitter
}

// NewNoOpTagger creates a tagger whose splitter is configured by opts.
func NewNoOpTagger(opts ...Option) *NoOpTagger {
	return &NoOpTagger{splitter: NewSplitter(opts...)}
}

// Tag implements Tagger.
func (t *NoOpTagger) Tag(sentence string) ([]Token, error) {
	words, err := t.splitter.Split(sentence)
	if err != nil || len(words) == 0 {
		return nil, err
	}
	tokens := make([]Token, len(words))
	for i, w := range words {
		tokens[i] = Token{Text: w}
	}
	return tokens, nil
}

// Name implements Tagger.
func (t *NoOpTagger) Name() string {
	return "none"
}
