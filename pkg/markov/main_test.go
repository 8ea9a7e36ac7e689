package markov

import (
	"go/build"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
)

// words splits each sentence on whitespace into untagged tokens.
func words(sentences ...string) [][]Token {
	out := make([][]Token, len(sentences))
	for i, s := range sentences {
		for _, w := range strings.Fields(s) {
			out[i] = append(out[i], Token{Text: w})
		}
	}
	return out
}

func key(texts ...string) []Token {
	out := make([]Token, len(texts))
	for i, s := range texts {
		out[i] = Token{Text: s}
	}
	return out
}

// mustBuild builds a model and fails the test on error.
func mustBuild(t testing.TB, sentences [][]Token, stateSize int) *Model {
	t.Helper()
	m, err := Build(sentences, stateSize)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return m
}

// catCorpus is the two sentence corpus used throughout the tests.
func catCorpus(t testing.TB) *Model {
	return mustBuild(t, words("the cat sat", "the cat ran"), 2)
}

// flatten flattens the chain of m for comparisons.
func flatten(m *Model) map[string]map[Token]int {
	out := make(map[string]map[Token]int)
	for _, k := range m.Keys() {
		trs, _ := m.Transitions(k)
		nexts := make(map[Token]int)
		for _, tr := range trs {
			nexts[tr.Token] = tr.Count
		}
		out[keyOf(k)] = nexts
	}
	return out
}

func sameTransitions(t *testing.T, got []Transition, want map[string]int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d transitions %v, want %v", len(got), got, want)
	}
	for _, tr := range got {
		if want[tr.Token.Text] != tr.Count {
			t.Errorf("transition to %q has count %d, want %d", tr.Token.Text, tr.Count, want[tr.Token.Text])
		}
	}
	if !slices.IsSortedFunc(got, func(a, b Transition) int { return compareToken(a.Token, b.Token) }) {
		t.Errorf("transitions %v are not sorted", got)
	}
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "This is a fallback corpus for benchmarking. It is not very long but will prevent a crash."
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
