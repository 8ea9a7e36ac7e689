package postag

import (
	"fmt"
	"math"

	"github.com/CTAG07/Understudy/pkg/markov"
)

// Names of the tagging strategies accepted by New.
const (
	StrategyNone     = "none"
	StrategyFast     = "fast"
	StrategyAccurate = "accurate"
)

// smoothing is the additive pseudo-count used when turning counts into log
// probabilities.
const smoothing = 0.1

// New returns the Tagger for a strategy name. A nil model selects Default().
// opts configure the sentence splitter shared by all strategies.
func New(strategy string, m *Model, opts ...markov.Option) (markov.Tagger, error) {
	switch strategy {
	case StrategyNone:
		return markov.NewNoOpTagger(opts...), nil
	case StrategyFast:
		return NewFastTagger(m, opts...), nil
	case StrategyAccurate:
		return NewAccurateTagger(m, opts...), nil
	}
	return nil, fmt.Errorf("postag: unknown tagging strategy %q", strategy)
}

// FastTagger labels each word independently: known words take their most
// frequent tag, unknown words are judged by shape and then by suffix.
type FastTagger struct {
	model    *Model
	tags     []string
	splitter *markov.Splitter
}

// NewFastTagger creates a FastTagger. A nil model selects Default().
func NewFastTagger(m *Model, opts ...markov.Option) *FastTagger {
	if m == nil {
		m = Default()
	}
	return &FastTagger{model: m, tags: m.tagset(), splitter: markov.NewSplitter(opts...)}
}

// Tag implements markov.Tagger.
func (t *FastTagger) Tag(sentence string) ([]markov.Token, error) {
	words, err := t.splitter.Split(sentence)
	if err != nil || len(words) == 0 {
		return nil, err
	}
	tokens := make([]markov.Token, len(words))
	for i, w := range words {
		tokens[i] = markov.Token{Text: w, Tag: t.tagWord(w)}
	}
	return tokens, nil
}

func (t *FastTagger) tagWord(word string) string {
	if tag := argmax(t.model.evidence(word), t.tags); tag != "" {
		return tag
	}
	return t.model.Default
}

// Name implements markov.Tagger.
func (t *FastTagger) Name() string {
	return StrategyFast
}

// AccurateTagger picks the most likely tag sequence for a whole sentence by
// combining per-word evidence with tag bigram probabilities.
type AccurateTagger struct {
	tags     []string
	model    *Model
	start    []float64   // log P(tag | sentence start)
	trans    [][]float64 // log P(tag | previous tag)
	prior    []float64   // log P(tag), for words without evidence
	splitter *markov.Splitter
}

// NewAccurateTagger creates an AccurateTagger. A nil model selects Default().
func NewAccurateTagger(m *Model, opts ...markov.Option) *AccurateTagger {
	if m == nil {
		m = Default()
	}
	tags := m.tagset()
	t := &AccurateTagger{
		tags:     tags,
		model:    m,
		start:    logDistribution(m.Transitions[startTag], tags),
		trans:    make([][]float64, len(tags)),
		prior:    logDistribution(m.tagTotals(), tags),
		splitter: markov.NewSplitter(opts...),
	}
	for i, tag := range tags {
		t.trans[i] = logDistribution(m.Transitions[tag], tags)
	}
	return t
}

// logDistribution turns counts into smoothed log probabilities over tags.
func logDistribution(counts map[string]int, tags []string) []float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	denominator := float64(total) + smoothing*float64(len(tags))
	row := make([]float64, len(tags))
	for i, tag := range tags {
		row[i] = math.Log((float64(counts[tag]) + smoothing) / denominator)
	}
	return row
}

// Tag implements markov.Tagger.
func (t *AccurateTagger) Tag(sentence string) ([]markov.Token, error) {
	words, err := t.splitter.Split(sentence)
	if err != nil || len(words) == 0 {
		return nil, err
	}
	path := t.viterbi(t.stateScores(words))
	tokens := make([]markov.Token, len(words))
	for i, w := range words {
		tokens[i] = markov.Token{Text: w, Tag: t.tags[path[i]]}
	}
	return tokens, nil
}

// stateScores returns the [word][tag] matrix of log P(tag | word).
func (t *AccurateTagger) stateScores(words []string) [][]float64 {
	scores := make([][]float64, len(words))
	for i, w := range words {
		if ev := t.model.evidence(w); ev != nil {
			scores[i] = logDistribution(ev, t.tags)
		} else {
			scores[i] = t.prior
		}
	}
	return scores
}

// viterbi returns the index of the best tag for each position. Ties resolve to
// the lower tag index.
func (t *AccurateTagger) viterbi(scores [][]float64) []int {
	n, labels := len(scores), len(t.tags)
	best := make([][]float64, n)
	back := make([][]int, n)
	for i := range n {
		best[i] = make([]float64, labels)
		back[i] = make([]int, labels)
	}
	for y := range labels {
		best[0][y] = t.start[y] + scores[0][y]
	}
	for i := 1; i < n; i++ {
		for y := range labels {
			from, score := 0, math.Inf(-1)
			for p := range labels {
				if s := best[i-1][p] + t.trans[p][y]; s > score {
					from, score = p, s
				}
			}
			best[i][y] = score + scores[i][y]
			back[i][y] = from
		}
	}

	path := make([]int, n)
	for y := 1; y < labels; y++ {
		if best[n-1][y] > best[n-1][path[n-1]] {
			path[n-1] = y
		}
	}
	for i := n - 1; i > 0; i-- {
		path[i-1] = back[i][path[i]]
	}
	return path
}

// Name implements markov.Tagger.
func (t *AccurateTagger) Name() string {
	return StrategyAccurate
}
