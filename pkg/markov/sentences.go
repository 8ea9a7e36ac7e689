package markov

import (
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
)

// sentenceEndRegex finds a word ending in terminal punctuation, any closing
// quotes or brackets after it, and the whitespace that follows, provided the
// next word does not start in lowercase or with a dash. The lookahead is why
// this uses regexp2 instead of the standard library.
var sentenceEndRegex = regexp2.MustCompile(
	`([\w\.'’&\]\)]+[\.\?!])([‘’“”'"\)\]]*)(\s+(?![a-z\-–—]))`,
	regexp2.None,
)

// Abbreviations that end in a period without ending the sentence. Capitalized
// forms are compared lowercased; lowercase forms only match as written.
var (
	cappedAbbreviations = wordSet(
		"ala ariz ark calif colo conn del fla ga ill ind kan ky la md mass mich minn miss mo mont neb nev okla ore pa tenn vt va wash wis wyo",
		"u.s",
		"mr ms mrs msr dr gov pres sen sens rep reps prof gen messrs col sr jf sgt mgr fr rev jr snr atty supt",
		"ave blvd st rd hwy",
		"jan feb mar apr jun jul aug sep sept oct nov dec",
		"a b c d e f g h i j k l m n o p q r s t u v w x y z",
	)
	lowerAbbreviations = wordSet("etc v vs viz al pct")
	dottedExceptions   = wordSet("U.S. U.N. E.U. F.B.I. C.I.A.")
)

func wordSet(groups ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, g := range groups {
		for _, w := range strings.Fields(g) {
			set[w] = struct{}{}
		}
	}
	return set
}

// SplitSentences breaks a block of running text into sentences. A sentence
// ends at '.', '?' or '!' followed by whitespace and a word that does not
// start in lowercase, unless the dotted word is a known abbreviation or a
// single initial. Returned sentences are trimmed; blank ones are dropped.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var ends []int

	m, err := sentenceEndRegex.FindStringMatch(text)
	for err == nil && m != nil {
		word := m.GroupByNumber(1)
		closers := m.GroupByNumber(2)
		if endsSentence(word.String()) {
			// regexp2 reports offsets in runes.
			ends = append(ends, word.Index+word.Length+closers.Length)
		}
		m, err = sentenceEndRegex.FindNextMatch(m)
	}

	sentences := make([]string, 0, len(ends)+1)
	start := 0
	for _, end := range append(ends, len(runes)) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}
	return sentences
}

func endsSentence(word string) bool {
	if _, ok := dottedExceptions[word]; ok {
		return false
	}
	last := word[len(word)-1]
	if last == '?' || last == '!' {
		return true
	}
	upper := 0
	for _, r := range word {
		if r >= 'A' && r <= 'Z' {
			upper++
		}
	}
	if upper > 1 {
		return true
	}
	return !isAbbreviation(word)
}

func isAbbreviation(dotted string) bool {
	clipped := strings.TrimSuffix(dotted, ".")
	if clipped == "" {
		return false
	}
	first := []rune(clipped)[0]
	if unicode.IsUpper(first) {
		_, ok := cappedAbbreviations[strings.ToLower(clipped)]
		return ok
	}
	_, ok := lowerAbbreviations[clipped]
	return ok
}
