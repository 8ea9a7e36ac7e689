package markov

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestBuild(t *testing.T) {
	m := catCorpus(t)

	if m.StateSize() != 2 {
		t.Errorf("StateSize() = %d, want 2", m.StateSize())
	}
	if m.Len() != 5 {
		t.Errorf("Len() = %d, want 5", m.Len())
	}

	testCases := []struct {
		key  []Token
		want map[string]int
	}{
		{key: key("the", "cat"), want: map[string]int{"sat": 1, "ran": 1}},
		{key: key(BeginText, BeginText), want: map[string]int{"the": 2}},
		{key: key(BeginText, "the"), want: map[string]int{"cat": 2}},
		{key: key("cat", "sat"), want: map[string]int{EndText: 1}},
		{key: key("cat", "ran"), want: map[string]int{EndText: 1}},
	}
	for _, tc := range testCases {
		got, ok := m.Transitions(tc.key)
		if !ok {
			t.Errorf("Transitions(%v) not found", tc.key)
			continue
		}
		sameTransitions(t, got, tc.want)
	}

	if _, ok := m.Transitions(key("sat", EndText)); ok {
		t.Error("a window ending in the end sentinel was recorded")
	}
	if got := m.Corpus(); !reflect.DeepEqual(got, words("the cat sat", "the cat ran")) {
		t.Errorf("Corpus() = %v", got)
	}
}

func TestBuildShortSentence(t *testing.T) {
	m := mustBuild(t, words("hi"), 3)

	got, ok := m.Transitions(key(BeginText, BeginText, BeginText))
	if !ok {
		t.Fatal("begin window missing")
	}
	sameTransitions(t, got, map[string]int{"hi": 1})

	got, ok = m.Transitions(key(BeginText, BeginText, "hi"))
	if !ok {
		t.Fatal("end transition missing")
	}
	sameTransitions(t, got, map[string]int{EndText: 1})
}

// TestBuildCountsMatchObservations checks that the counts of every window add
// up to the number of times that window occurs in the padded sentences.
func TestBuildCountsMatchObservations(t *testing.T) {
	sentences := words(
		"one fish two fish",
		"red fish blue fish",
		"one fish two fish",
		"fish",
		"blue fish red fish one fish",
	)
	for stateSize := 1; stateSize <= 3; stateSize++ {
		m := mustBuild(t, sentences, stateSize)

		observed := make(map[string]int)
		for _, s := range sentences {
			padded := append(key(strings.Fields(strings.Repeat(BeginText+" ", stateSize))...), s...)
			padded = append(padded, EndToken)
			for i := 0; i+stateSize < len(padded); i++ {
				observed[keyOf(padded[i:i+stateSize])]++
			}
		}

		if m.Len() != len(observed) {
			t.Errorf("state %d: Len() = %d, want %d", stateSize, m.Len(), len(observed))
		}
		for _, k := range m.Keys() {
			trs, _ := m.Transitions(k)
			sum := 0
			for _, tr := range trs {
				if tr.Count < 1 {
					t.Errorf("state %d: %v has non-positive count %d", stateSize, k, tr.Count)
				}
				if tr.Token == BeginToken {
					t.Errorf("state %d: %v transitions to the begin sentinel", stateSize, k)
				}
				sum += tr.Count
			}
			if sum != observed[keyOf(k)] {
				t.Errorf("state %d: counts of %v sum to %d, want %d", stateSize, k, sum, observed[keyOf(k)])
			}
		}
	}
}

func TestBuildErrors(t *testing.T) {
	testCases := []struct {
		name      string
		sentences [][]Token
		stateSize int
	}{
		{name: "no sentences", sentences: nil, stateSize: 2},
		{name: "only empty sentences", sentences: [][]Token{{}, nil}, stateSize: 2},
		{name: "zero state size", sentences: words("a b"), stateSize: 0},
		{name: "sentinel inside sentence", sentences: [][]Token{{{Text: "a"}, EndToken}}, stateSize: 1},
		{name: "empty word", sentences: [][]Token{{{Text: ""}}}, stateSize: 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Build(tc.sentences, tc.stateSize); !errors.Is(err, ErrBuild) {
				t.Errorf("Build() error = %v, want ErrBuild", err)
			}
		})
	}
}

func TestBuildSkipsEmptySentences(t *testing.T) {
	m := mustBuild(t, [][]Token{nil, words("a b")[0], {}}, 1)
	if got := len(m.Corpus()); got != 1 {
		t.Errorf("corpus has %d sentences, want 1", got)
	}
}

func TestMergeMatchesBuild(t *testing.T) {
	a := words("the cat sat", "the dog sat", "a cat ran")
	b := words("the cat ran", "a dog sat down")

	merged, err := Merge(mustBuild(t, a, 2), mustBuild(t, b, 2))
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	whole := mustBuild(t, append(append([][]Token{}, a...), b...), 2)

	if !reflect.DeepEqual(Encode(merged), Encode(whole)) {
		t.Errorf("Merge(Build(A), Build(B)) differs from Build(A ++ B)")
	}

	reversed, err := Merge(mustBuild(t, b, 2), mustBuild(t, a, 2))
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if !reflect.DeepEqual(flatten(reversed), flatten(merged)) {
		t.Errorf("Merge is not commutative over chain counts")
	}

	c := words("one more sentence")
	left, _ := Merge(merged, mustBuild(t, c, 2))
	inner, _ := Merge(mustBuild(t, b, 2), mustBuild(t, c, 2))
	right, _ := Merge(mustBuild(t, a, 2), inner)
	if !reflect.DeepEqual(Encode(left), Encode(right)) {
		t.Errorf("Merge is not associative")
	}
}

func TestMergeErrors(t *testing.T) {
	if _, err := Merge(catCorpus(t), mustBuild(t, words("a b"), 1)); !errors.Is(err, ErrBuild) {
		t.Errorf("Merge() with different state sizes error = %v, want ErrBuild", err)
	}
	if _, err := Merge(catCorpus(t), nil); !errors.Is(err, ErrBuild) {
		t.Errorf("Merge() with nil error = %v, want ErrBuild", err)
	}
	if _, err := MergeAll(); !errors.Is(err, ErrBuild) {
		t.Errorf("MergeAll() error = %v, want ErrBuild", err)
	}
}

func TestMergeCountOverflow(t *testing.T) {
	heavy, err := Decode(&Document{
		FormatVersion: FormatVersion,
		StateSize:     1,
		Chain: []ChainEntry{
			{Key: []Token{BeginToken}, Transitions: []TransitionEntry{{Token: Token{Text: "a"}, Count: math.MaxInt / 2}}},
			{Key: []Token{{Text: "a"}}, Transitions: []TransitionEntry{{Token: EndToken, Count: 1}}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Merge(heavy, heavy); err != nil {
		t.Fatalf("Merge() below the limit error = %v", err)
	}
	if _, err := MergeAll(heavy, heavy, heavy); !errors.Is(err, ErrBuild) {
		t.Errorf("MergeAll() past the limit error = %v, want ErrBuild", err)
	}
}

func TestMergeTaggerName(t *testing.T) {
	a, _ := Build(words("a b"), 1, WithTaggerName("fast"))
	b, _ := Build(words("c d"), 1, WithTaggerName("fast"))
	c, _ := Build(words("e f"), 1, WithTaggerName("none"))

	same, _ := Merge(a, b)
	if same.Tagger() != "fast" {
		t.Errorf("Tagger() = %q, want fast", same.Tagger())
	}
	mixed, _ := MergeAll(a, c, b)
	if mixed.Tagger() != "" {
		t.Errorf("Tagger() = %q, want empty for mixed inputs", mixed.Tagger())
	}
}

func TestBuildSharded(t *testing.T) {
	sentences := words(
		"the cat sat", "the dog sat", "a cat ran", "", "the cat ran",
		"a dog sat down", "one fish two fish", "red fish blue fish",
	)
	want := Encode(mustBuild(t, sentences, 2))

	for _, shards := range []int{0, 1, 3, 7, 50} {
		got, err := BuildSharded(context.Background(), sentences, 2, shards)
		if err != nil {
			t.Fatalf("BuildSharded(%d) error = %v", shards, err)
		}
		if !reflect.DeepEqual(Encode(got), want) {
			t.Errorf("BuildSharded(%d) differs from Build", shards)
		}
	}

	if _, err := BuildSharded(context.Background(), nil, 2, 4); !errors.Is(err, ErrBuild) {
		t.Errorf("BuildSharded() on empty input error = %v, want ErrBuild", err)
	}
	if _, err := BuildSharded(context.Background(), sentences, 0, 4); !errors.Is(err, ErrBuild) {
		t.Errorf("BuildSharded() with state size 0 error = %v, want ErrBuild", err)
	}
}

type failingTagger struct{}

func (failingTagger) Tag(string) ([]Token, error) { return nil, errors.New("tagger crashed") }
func (failingTagger) Name() string                { return "failing" }

func TestTrainerTrain(t *testing.T) {
	trainer := NewTrainer(nil, 2)
	m, err := trainer.Train(context.Background(), []string{
		"the cat sat",
		`he said "hi"`,
		"",
		"the cat ran",
	})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if m.Tagger() != "none" {
		t.Errorf("Tagger() = %q, want none", m.Tagger())
	}
	if !reflect.DeepEqual(flatten(m), flatten(catCorpus(t))) {
		t.Errorf("Train() chain differs from the expected cat corpus chain")
	}
}

func TestTrainerErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewTrainer(failingTagger{}, 2).Train(ctx, []string{"a b"})
	if err == nil || errors.Is(err, ErrBuild) {
		t.Errorf("Train() with failing tagger error = %v, want tagger error", err)
	}

	_, err = NewTrainer(nil, 2).Train(ctx, []string{`"quoted"`, "(bracketed)"})
	if !errors.Is(err, ErrBuild) {
		t.Errorf("Train() with only rejected sentences error = %v, want ErrBuild", err)
	}

	_, err = NewTrainer(nil, 2, WithMaxSentenceLength(2)).Train(ctx, []string{"the cat sat"})
	if !errors.Is(err, ErrBuild) {
		t.Errorf("Train() with only overlong sentences error = %v, want ErrBuild", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewTrainer(nil, 2).Train(canceled, []string{"the cat sat"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Train() with canceled context error = %v, want context.Canceled", err)
	}
}

func TestTrainerTrainReader(t *testing.T) {
	text := "The cat sat. The cat ran.\nA dog barked!\n\n"
	m, err := NewTrainer(nil, 1, WithShards(2)).TrainReader(context.Background(), strings.NewReader(text))
	if err != nil {
		t.Fatalf("TrainReader() error = %v", err)
	}
	want := words("The cat sat.", "The cat ran.", "A dog barked!")
	if got := m.Corpus(); !reflect.DeepEqual(got, want) {
		t.Errorf("Corpus() = %v, want %v", got, want)
	}
}

func TestTrainEntities(t *testing.T) {
	trainer := NewTrainer(nil, 2)
	models, err := TrainEntities(context.Background(), trainer, map[string][]string{
		"alice": {"the cat sat", "the cat ran"},
		"bob":   {"a dog barked"},
	})
	if err != nil {
		t.Fatalf("TrainEntities() error = %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("got %d models, want 2", len(models))
	}
	if !reflect.DeepEqual(flatten(models["alice"]), flatten(catCorpus(t))) {
		t.Error("alice's model differs from the cat corpus model")
	}
	if got := len(models["bob"].Corpus()); got != 1 {
		t.Errorf("bob's corpus has %d sentences, want 1", got)
	}

	_, err = TrainEntities(context.Background(), trainer, map[string][]string{
		"alice": {"the cat sat"},
		"carol": {`"only quotes"`},
	})
	if !errors.Is(err, ErrBuild) || !strings.Contains(err.Error(), "carol") {
		t.Errorf("TrainEntities() error = %v, want ErrBuild naming carol", err)
	}
}

func BenchmarkBuild(b *testing.B) {
	trainer := NewTrainer(NewNoOpTagger(WithoutRejection()), 2)
	sentences := SplitSentences(createBenchmarkCorpus())
	tagged, err := trainer.Tag(context.Background(), sentences)
	if err != nil {
		b.Fatal(err)
	}
	for b.Loop() {
		if _, err := Build(tagged, 2); err != nil {
			b.Fatal(err)
		}
	}
}
