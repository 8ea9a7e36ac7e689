package markov

import (
	"cmp"
	"errors"
	"math"
	"slices"
	"strings"
)

// Transition is one possible next token after a window, with the number of
// times it was observed there.
type Transition struct {
	Token Token
	Count int
}

// state is a single chain entry. next is sorted so that walks driven by a
// seeded random source are reproducible.
type state struct {
	key   []Token
	next  []Transition
	total int
}

// Model is an immutable, trained Markov chain together with the corpus it was
// trained on. It is safe for concurrent use by any number of goroutines; every
// operation that would change it returns a new Model instead.
type Model struct {
	stateSize int
	tagger    string
	chain     map[string]*state
	// windows indexes chain entries by the texts of their key, ignoring tags,
	// so generation can start from plain words.
	windows map[string][]*state
	corpus  [][]Token
	guard   *OverlapGuard
}

// StateSize returns the order of the chain: how many preceding tokens
// condition the next one.
func (m *Model) StateSize() int {
	return m.stateSize
}

// Tagger returns the name of the tagging strategy the model was trained with,
// or "" if unknown.
func (m *Model) Tagger() string {
	return m.tagger
}

// Len returns the number of distinct windows in the chain.
func (m *Model) Len() int {
	return len(m.chain)
}

// Transitions returns a copy of the transitions observed after key, and false
// if the window was never observed.
func (m *Model) Transitions(key []Token) ([]Transition, bool) {
	st, ok := m.chain[keyOf(key)]
	if !ok {
		return nil, false
	}
	return slices.Clone(st.next), true
}

// Keys returns every window of the chain in a stable order.
func (m *Model) Keys() [][]Token {
	keys := make([][]Token, 0, len(m.chain))
	for _, st := range m.sortedStates() {
		keys = append(keys, slices.Clone(st.key))
	}
	return keys
}

// Corpus returns a copy of the training sentences retained for overlap checks.
func (m *Model) Corpus() [][]Token {
	out := make([][]Token, len(m.corpus))
	for i, s := range m.corpus {
		out[i] = slices.Clone(s)
	}
	return out
}

// Accepts reports whether candidate is novel enough with respect to the
// model's corpus. See OverlapGuard.Accepts.
func (m *Model) Accepts(candidate []Token, limit int) bool {
	return m.guard.Accepts(candidate, limit)
}

func (m *Model) sortedStates() []*state {
	states := make([]*state, 0, len(m.chain))
	for _, st := range m.chain {
		states = append(states, st)
	}
	slices.SortFunc(states, func(a, b *state) int {
		return compareTokens(a.key, b.key)
	})
	return states
}

// errCountOverflow is returned by chainCounts when the counts of one window
// would no longer fit in an int. Callers wrap it in their own sentinel.
var errCountOverflow = errors.New("transition counts overflow")

// chainCounts accumulates raw transition counts before they are frozen into a
// Model. totals tracks the sum of every window so that a sampled total can
// never wrap.
type chainCounts struct {
	stateSize int
	keys      map[string][]Token
	counts    map[string]map[Token]int
	totals    map[string]int
}

func newChainCounts(stateSize int) *chainCounts {
	return &chainCounts{
		stateSize: stateSize,
		keys:      make(map[string][]Token),
		counts:    make(map[string]map[Token]int),
		totals:    make(map[string]int),
	}
}

func (c *chainCounts) add(window []Token, next Token, n int) error {
	k := keyOf(window)
	if n > math.MaxInt-c.totals[k] {
		return errCountOverflow
	}
	nexts, ok := c.counts[k]
	if !ok {
		nexts = make(map[Token]int)
		c.counts[k] = nexts
		c.keys[k] = slices.Clone(window)
	}
	nexts[next] += n
	c.totals[k] += n
	return nil
}

func (c *chainCounts) addModel(m *Model) error {
	for k, st := range m.chain {
		if st.total > math.MaxInt-c.totals[k] {
			return errCountOverflow
		}
		nexts, ok := c.counts[k]
		if !ok {
			nexts = make(map[Token]int, len(st.next))
			c.counts[k] = nexts
			c.keys[k] = st.key
		}
		for _, tr := range st.next {
			nexts[tr.Token] += tr.Count
		}
		c.totals[k] += st.total
	}
	return nil
}

// freeze turns the counts into an immutable Model. The corpus slice is owned by
// the new model from here on.
func (c *chainCounts) freeze(corpus [][]Token, tagger string) *Model {
	m := &Model{
		stateSize: c.stateSize,
		tagger:    tagger,
		chain:     make(map[string]*state, len(c.counts)),
		windows:   make(map[string][]*state),
		corpus:    corpus,
	}
	for k, nexts := range c.counts {
		st := &state{key: c.keys[k], next: make([]Transition, 0, len(nexts))}
		for tok, n := range nexts {
			if n <= 0 {
				continue
			}
			st.next = append(st.next, Transition{Token: tok, Count: n})
			st.total += n
		}
		if len(st.next) == 0 {
			continue
		}
		slices.SortFunc(st.next, func(a, b Transition) int {
			return compareToken(a.Token, b.Token)
		})
		m.chain[k] = st
		tk := textKeyOf(Texts(st.key))
		m.windows[tk] = append(m.windows[tk], st)
	}
	for _, states := range m.windows {
		slices.SortFunc(states, func(a, b *state) int {
			return compareTokens(a.key, b.key)
		})
	}
	m.guard = NewOverlapGuard(corpus)
	return m
}

// keyOf encodes a window as a map key. Unit and record separators cannot occur
// in whitespace-split words.
func keyOf(window []Token) string {
	var b strings.Builder
	for i, tok := range window {
		if i > 0 {
			b.WriteByte('\x1e')
		}
		b.WriteString(tok.Text)
		b.WriteByte('\x1f')
		b.WriteString(tok.Tag)
	}
	return b.String()
}

func textKeyOf(texts []string) string {
	return strings.Join(texts, "\x1e")
}

func compareToken(a, b Token) int {
	if c := cmp.Compare(a.Text, b.Text); c != 0 {
		return c
	}
	return cmp.Compare(a.Tag, b.Tag)
}

func compareTokens(a, b []Token) int {
	return slices.CompareFunc(a, b, compareToken)
}
