package markov

import (
	"math"
	"math/rand/v2"
	"slices"
)

const (
	// DefaultTries is the number of attempts used when a caller has no
	// preference.
	DefaultTries = 100
	// DefaultMaxLength is the word limit of a generated sentence.
	DefaultMaxLength = 100
)

// generateOptions Is used by the generate functions to configure default options.
type generateOptions struct {
	maxLength    int
	minLength    int
	maxChars     int
	overlapLimit int
	overlapSet   bool
	overlapRatio float64
	start        []string
	temperature  float64
	topK         int
	rng          *rand.Rand
}

// GenerateOption is a function that configures generation parameters. It's used
// as a variadic argument in Generate, GenerateTokens and Registry.GenerateFor.
type GenerateOption func(*generateOptions)

// WithMaxLength sets the maximum number of words in a sentence. Attempts that
// run longer without reaching the end of a sentence are discarded. Values below
// one select DefaultMaxLength.
func WithMaxLength(n int) GenerateOption {
	return func(o *generateOptions) { o.maxLength = n }
}

// WithMinLength discards sentences with fewer than n words.
func WithMinLength(n int) GenerateOption {
	return func(o *generateOptions) { o.minLength = n }
}

// WithMaxChars discards sentences whose text is longer than n bytes. Zero means
// no limit.
func WithMaxChars(n int) GenerateOption {
	return func(o *generateOptions) { o.maxChars = n }
}

// WithOverlapLimit sets the longest run of words a sentence may share with a
// single training sentence. Zero or less disables the overlap check.
// Default: the model's state size
func WithOverlapLimit(n int) GenerateOption {
	return func(o *generateOptions) {
		o.overlapLimit = n
		o.overlapSet = true
	}
}

// WithOverlapRatio additionally caps the shared run at ratio times the length of
// the candidate, rounded, and never below one word. It has no effect while the
// overlap check is disabled.
func WithOverlapRatio(ratio float64) GenerateOption {
	return func(o *generateOptions) { o.overlapRatio = ratio }
}

// WithStart makes every sentence begin with words. At most state size words
// may be given and they must open a training sentence; tags are ignored when
// matching them.
func WithStart(words ...string) GenerateOption {
	return func(o *generateOptions) { o.start = words }
}

// WithTemperature adjusts the randomness of the token selection.
// A value of 1.0 is standard weighted random selection.
// Values > 1.0 increase randomness (making less frequent tokens more likely).
// Values < 1.0 decrease randomness (making more frequent tokens even more likely).
// A value of 0 or less results in deterministic selection (always choosing the most frequent token).
func WithTemperature(t float64) GenerateOption {
	return func(o *generateOptions) { o.temperature = t }
}

// WithTopK restricts the token selection pool to the top `k` most frequent tokens
// at each step. A value of 0 disables Top-K sampling.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

// WithSeed makes generation reproducible: the same model, options and seed
// always yield the same result.
func WithSeed(seed uint64) GenerateOption {
	return func(o *generateOptions) { o.rng = rand.New(rand.NewPCG(seed, seed)) }
}

// WithRand draws all randomness from r. r is not safe for concurrent use, so it
// must not be shared between simultaneous calls.
func WithRand(r *rand.Rand) GenerateOption {
	return func(o *generateOptions) { o.rng = r }
}

// Generate runs up to tries random walks over m and returns the first sentence
// that passes every filter, and false if none did. Running out of attempts is
// an expected outcome, not an error. tries of zero or less returns at once.
func Generate(m *Model, tries int, opts ...GenerateOption) (string, bool) {
	tokens, ok := GenerateTokens(m, tries, opts...)
	if !ok {
		return "", false
	}
	return Join(tokens), true
}

// GenerateTokens is like Generate but returns the tagged tokens of the sentence.
func GenerateTokens(m *Model, tries int, opts ...GenerateOption) ([]Token, bool) {
	if m == nil || tries <= 0 {
		return nil, false
	}
	o := &generateOptions{
		maxLength:   DefaultMaxLength,
		temperature: 1.0,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxLength < 1 {
		o.maxLength = DefaultMaxLength
	}
	if !o.overlapSet {
		o.overlapLimit = m.stateSize
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	s := &sampler{model: m, opts: o}
	starts, ok := s.startStates()
	if !ok {
		return nil, false
	}
	for range tries {
		out, ok := s.walk(starts)
		if ok && s.qualifies(out) {
			return out, true
		}
	}
	return nil, false
}

// sampler holds the per-call state of a generation. It is never shared.
type sampler struct {
	model *Model
	opts  *generateOptions
}

// startStates resolves the windows a walk may begin from. A nil result means the
// all-Begin window.
func (s *sampler) startStates() ([]*state, bool) {
	words := s.opts.start
	if len(words) == 0 {
		return nil, true
	}
	size := s.model.stateSize
	if len(words) > size {
		return nil, false
	}
	texts := make([]string, 0, size)
	for range size - len(words) {
		texts = append(texts, BeginText)
	}
	texts = append(texts, words...)
	states := s.model.windows[textKeyOf(texts)]
	return states, len(states) > 0
}

// walk performs one attempt. It returns false on a dead end or when the
// sentence outgrows the length limit.
func (s *sampler) walk(starts []*state) ([]Token, bool) {
	size := s.model.stateSize
	window := make([]Token, size)
	var out []Token
	if len(starts) == 0 {
		for i := range window {
			window[i] = BeginToken
		}
	} else {
		st := starts[s.opts.rng.IntN(len(starts))]
		copy(window, st.key)
		for _, tok := range st.key {
			if tok != BeginToken {
				out = append(out, tok)
			}
		}
	}

	for {
		st, ok := s.model.chain[keyOf(window)]
		if !ok {
			return nil, false
		}
		next := s.choose(st)
		if next == EndToken {
			return out, len(out) <= s.opts.maxLength
		}
		out = append(out, next)
		if len(out) > s.opts.maxLength {
			return nil, false
		}
		copy(window, window[1:])
		window[size-1] = next
	}
}

// qualifies applies the length and overlap filters to a finished sentence.
func (s *sampler) qualifies(out []Token) bool {
	if len(out) == 0 || len(out) < s.opts.minLength {
		return false
	}
	if s.opts.maxChars > 0 && len(Join(out)) > s.opts.maxChars {
		return false
	}
	limit := s.opts.overlapLimit
	if limit > 0 && s.opts.overlapRatio > 0 {
		limit = min(limit, max(1, int(math.Round(s.opts.overlapRatio*float64(len(out))))))
	}
	return s.model.guard.Accepts(out, limit)
}

// choose picks the next token from a state. Transitions are kept sorted, so the
// outcome depends only on the random source.
func (s *sampler) choose(st *state) Token {
	choices, total := st.next, st.total

	if k := s.opts.topK; k > 0 && k < len(choices) {
		choices = slices.Clone(choices)
		slices.SortStableFunc(choices, func(a, b Transition) int {
			return b.Count - a.Count
		})
		choices = choices[:k]
		total = 0
		for _, c := range choices {
			total += c.Count
		}
	}

	rng := s.opts.rng
	switch t := s.opts.temperature; {
	case t <= 0: // Deterministic
		best := choices[0]
		for _, c := range choices[1:] {
			if c.Count > best.Count {
				best = c
			}
		}
		return best.Token
	case t == 1.0: // Standard weighted random
		r := rng.IntN(total)
		for _, c := range choices {
			r -= c.Count
			if r < 0 {
				return c.Token
			}
		}
	default: // Temperature-based sampling
		logProbabilities := make([]float64, len(choices))
		peak := math.Inf(-1)
		for i, c := range choices {
			lp := math.Log(float64(c.Count)) / t
			logProbabilities[i] = lp
			peak = max(peak, lp)
		}
		weights := make([]float64, len(choices))
		var totalWeight float64
		for i, lp := range logProbabilities {
			weights[i] = math.Exp(lp - peak)
			totalWeight += weights[i]
		}
		r := rng.Float64() * totalWeight
		for i, c := range choices {
			r -= weights[i]
			if r < 0 {
				return c.Token
			}
		}
	}
	return choices[len(choices)-1].Token
}
