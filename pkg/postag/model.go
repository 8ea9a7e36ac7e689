package postag

import (
	"bufio"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/CTAG07/Understudy/pkg/markov"
)

// Universal part-of-speech tags.
const (
	Adjective   = "ADJ"
	Adposition  = "ADP"
	Adverb      = "ADV"
	Conjunction = "CONJ"
	Determiner  = "DET"
	Noun        = "NOUN"
	Numeral     = "NUM"
	Pronoun     = "PRON"
	Particle    = "PRT"
	Verb        = "VERB"
	Punctuation = "PUNCT"
	Other       = "X"
)

const (
	// startTag is the pseudo tag preceding the first word of a sentence.
	startTag = "<s>"
	// maxSuffix is the longest word ending, in runes, used as evidence.
	maxSuffix = 3
)

// ErrModel is returned for tagger models that cannot be used.
var ErrModel = errors.New("postag: invalid model")

//go:embed english.tagged
var englishCorpus string

// Model holds the counts both taggers draw on. It is read-only once built and
// safe for concurrent use.
type Model struct {
	Tags        []string                  `json:"tags"`
	Words       map[string]map[string]int `json:"words"`       // word -> tag -> count
	Suffixes    map[string]map[string]int `json:"suffixes"`    // word ending -> tag -> count
	Transitions map[string]map[string]int `json:"transitions"` // previous tag -> tag -> count
	Default     string                    `json:"default"`     // tag for words without any evidence
}

// Train counts words, suffixes and tag bigrams over tagged sentences. Every
// token must carry a tag.
func Train(sentences [][]markov.Token) (*Model, error) {
	m := &Model{
		Words:       make(map[string]map[string]int),
		Suffixes:    make(map[string]map[string]int),
		Transitions: make(map[string]map[string]int),
	}
	tagTotals := make(map[string]int)
	for i, sentence := range sentences {
		prev := startTag
		for j, tok := range sentence {
			if !tok.HasTag() {
				return nil, fmt.Errorf("%w: token %d of sentence %d has no tag", ErrModel, j, i)
			}
			tagTotals[tok.Tag]++
			increment(m.Transitions, prev, tok.Tag)
			prev = tok.Tag

			core := normalize(tok.Text)
			if core == "" {
				continue
			}
			increment(m.Words, core, tok.Tag)
			runes := []rune(core)
			for n := 1; n <= maxSuffix && n < len(runes); n++ {
				increment(m.Suffixes, string(runes[len(runes)-n:]), tok.Tag)
			}
		}
	}
	if len(tagTotals) == 0 {
		return nil, fmt.Errorf("%w: no tagged tokens", ErrModel)
	}

	for tag := range tagTotals {
		m.Tags = append(m.Tags, tag)
	}
	slices.Sort(m.Tags)
	m.Default = argmax(tagTotals, m.Tags)
	return m, nil
}

func increment(table map[string]map[string]int, key, tag string) {
	counts, ok := table[key]
	if !ok {
		counts = make(map[string]int)
		table[key] = counts
	}
	counts[tag]++
}

// argmax returns the tag with the highest count. Ties go to the tag listed
// first in order.
func argmax(counts map[string]int, order []string) string {
	best, bestCount := "", 0
	for _, tag := range order {
		if c := counts[tag]; c > bestCount {
			best, bestCount = tag, c
		}
	}
	return best
}

// LoadTagged reads sentences in word/TAG notation, one sentence per line with
// tokens separated by whitespace. Blank lines are ignored.
func LoadTagged(r io.Reader) ([][]markov.Token, error) {
	var sentences [][]markov.Token
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		sentence := make([]markov.Token, 0, len(fields))
		for _, field := range fields {
			i := strings.LastIndexByte(field, '/')
			if i <= 0 || i == len(field)-1 {
				return nil, fmt.Errorf("%w: line %d: %q is not in word/TAG form", ErrModel, line, field)
			}
			sentence = append(sentence, markov.Token{Text: field[:i], Tag: field[i+1:]})
		}
		sentences = append(sentences, sentence)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("could not read tagged corpus: %w", err)
	}
	return sentences, nil
}

// Load reads a JSON model written by Save and checks that it is usable.
func Load(r io.Reader) (*Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}
	if len(m.Tags) == 0 {
		return nil, fmt.Errorf("%w: no tags", ErrModel)
	}
	if !slices.Contains(m.Tags, m.Default) {
		return nil, fmt.Errorf("%w: default tag %q is not a known tag", ErrModel, m.Default)
	}
	slices.Sort(m.Tags)
	return &m, nil
}

// Save writes the model as JSON.
func (m *Model) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

var defaultModel = sync.OnceValue(func() *Model {
	sentences, err := LoadTagged(strings.NewReader(englishCorpus))
	if err != nil {
		panic(fmt.Sprintf("postag: embedded corpus: %v", err))
	}
	m, err := Train(sentences)
	if err != nil {
		panic(fmt.Sprintf("postag: embedded corpus: %v", err))
	}
	return m
})

// Default returns the embedded English model.
func Default() *Model {
	return defaultModel()
}

// evidence returns tag counts for a word, trying the lexicon, the word's shape
// and its suffixes in that order. It returns nil when nothing is known.
func (m *Model) evidence(word string) map[string]int {
	core := normalize(word)
	if core == "" {
		return map[string]int{Punctuation: 1}
	}
	if counts, ok := m.Words[core]; ok {
		return counts
	}
	if tag := shape(word, core); tag != "" {
		return map[string]int{tag: 1}
	}
	runes := []rune(core)
	for n := min(maxSuffix, len(runes)-1); n >= 1; n-- {
		if counts, ok := m.Suffixes[string(runes[len(runes)-n:])]; ok {
			return counts
		}
	}
	return nil
}

// shape guesses a tag from how an unknown word is written.
func shape(word, core string) string {
	digits := 0
	for _, r := range core {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	switch {
	case digits > 0 && digits*2 >= len([]rune(core)):
		return Numeral
	case unicode.IsUpper([]rune(strings.TrimLeftFunc(word, isPunct))[0]):
		return Noun
	}
	return ""
}

// normalize lowercases a word and strips the punctuation around it.
func normalize(word string) string {
	return strings.ToLower(strings.TrimFunc(word, isPunct))
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// tagTotals sums the transition counts into each tag.
func (m *Model) tagTotals() map[string]int {
	totals := make(map[string]int, len(m.Tags))
	for _, next := range m.Transitions {
		for tag, c := range next {
			totals[tag] += c
		}
	}
	return totals
}

// tagset returns the model's tags plus Punctuation, which is assigned by shape
// even when the training data had none.
func (m *Model) tagset() []string {
	tags := slices.Clone(m.Tags)
	if !slices.Contains(tags, Punctuation) {
		tags = append(tags, Punctuation)
		slices.Sort(tags)
	}
	return tags
}
