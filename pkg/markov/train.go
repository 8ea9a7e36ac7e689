package markov

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/sourcegraph/conc/pool"
)

// buildOptions configures Build and its sharded and merging variants.
type buildOptions struct {
	tagger string
}

// BuildOption is a function that configures model construction.
type BuildOption func(*buildOptions)

// WithTaggerName records the name of the tagging strategy that produced the
// training tokens. It is carried into exported documents.
func WithTaggerName(name string) BuildOption {
	return func(o *buildOptions) { o.tagger = name }
}

// Build trains a chain of order stateSize over sentences. Each sentence is
// padded with stateSize Begin sentinels and one End sentinel, and every window
// of the padded sequence counts one transition to the token after it.
//
// Empty sentences are skipped. Build fails with ErrBuild when stateSize is less
// than one, when no sentence is left, or when a sentence contains a sentinel or
// an empty word. The sentences are copied, the caller keeps ownership.
func Build(sentences [][]Token, stateSize int, opts ...BuildOption) (*Model, error) {
	if stateSize < 1 {
		return nil, fmt.Errorf("%w: state size %d is less than 1", ErrBuild, stateSize)
	}
	o := &buildOptions{}
	for _, opt := range opts {
		opt(o)
	}

	counts := newChainCounts(stateSize)
	corpus := make([][]Token, 0, len(sentences))
	for i, sentence := range sentences {
		if len(sentence) == 0 {
			continue
		}
		if err := checkSentence(sentence); err != nil {
			return nil, fmt.Errorf("%w: sentence %d: %v", ErrBuild, i, err)
		}
		if err := counts.addSentence(sentence); err != nil {
			return nil, fmt.Errorf("%w: sentence %d: %v", ErrBuild, i, err)
		}
		corpus = append(corpus, slices.Clone(sentence))
	}
	if len(corpus) == 0 {
		return nil, fmt.Errorf("%w: no usable sentences", ErrBuild)
	}
	return counts.freeze(corpus, o.tagger), nil
}

func (c *chainCounts) addSentence(sentence []Token) error {
	padded := make([]Token, 0, c.stateSize+len(sentence)+1)
	for range c.stateSize {
		padded = append(padded, BeginToken)
	}
	padded = append(padded, sentence...)
	padded = append(padded, EndToken)

	for i := 0; i+c.stateSize < len(padded); i++ {
		if err := c.add(padded[i:i+c.stateSize], padded[i+c.stateSize], 1); err != nil {
			return err
		}
	}
	return nil
}

func checkSentence(sentence []Token) error {
	for j, tok := range sentence {
		if tok.Text == "" {
			return fmt.Errorf("token %d is empty", j)
		}
		if tok.Text == BeginText || tok.Text == EndText {
			return fmt.Errorf("token %d is a reserved sentinel", j)
		}
	}
	return nil
}

// Merge combines two models of the same order. The result has the summed
// counts of both chains and the corpus of a followed by the corpus of b, which
// is exactly what Build would produce from the concatenated sentences.
func Merge(a, b *Model) (*Model, error) {
	return MergeAll(a, b)
}

// MergeAll folds any number of models into one. See Merge.
func MergeAll(models ...*Model) (*Model, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: nothing to merge", ErrBuild)
	}
	total := 0
	for i, m := range models {
		if m == nil {
			return nil, fmt.Errorf("%w: model %d is nil", ErrBuild, i)
		}
		if m.stateSize != models[0].stateSize {
			return nil, fmt.Errorf("%w: state size %d does not match %d", ErrBuild, m.stateSize, models[0].stateSize)
		}
		total += len(m.corpus)
	}

	tagger := models[0].tagger
	counts := newChainCounts(models[0].stateSize)
	corpus := make([][]Token, 0, total)
	for i, m := range models {
		if m.tagger != tagger {
			tagger = ""
		}
		if err := counts.addModel(m); err != nil {
			return nil, fmt.Errorf("%w: model %d: %v", ErrBuild, i, err)
		}
		// Sentences are never mutated, so the inner slices can be shared.
		corpus = append(corpus, m.corpus...)
	}
	return counts.freeze(corpus, tagger), nil
}

type shard struct {
	index int
	model *Model
}

// BuildSharded splits sentences into up to shards contiguous parts, builds them
// concurrently and merges the results in their original order. The model is
// identical to the one Build returns for the same input.
func BuildSharded(ctx context.Context, sentences [][]Token, stateSize int, shards int, opts ...BuildOption) (*Model, error) {
	usable := make([][]Token, 0, len(sentences))
	for _, s := range sentences {
		if len(s) > 0 {
			usable = append(usable, s)
		}
	}
	shards = min(max(shards, 1), max(len(usable), 1))
	if shards == 1 {
		return Build(usable, stateSize, opts...)
	}

	size := (len(usable) + shards - 1) / shards
	p := pool.NewWithResults[shard]().WithContext(ctx).WithCancelOnError()
	for i, lo := 0, 0; lo < len(usable); i, lo = i+1, lo+size {
		part := usable[lo:min(lo+size, len(usable))]
		p.Go(func(ctx context.Context) (shard, error) {
			if err := ctx.Err(); err != nil {
				return shard{}, err
			}
			m, err := Build(part, stateSize, opts...)
			return shard{index: i, model: m}, err
		})
	}
	parts, err := p.Wait()
	if err != nil {
		return nil, err
	}

	slices.SortFunc(parts, func(a, b shard) int { return a.index - b.index })
	models := make([]*Model, len(parts))
	for i, part := range parts {
		models[i] = part.model
	}
	return MergeAll(models...)
}

// DefaultMaxSentenceLength bounds how many words a training sentence may have.
const DefaultMaxSentenceLength = 4096

// Trainer turns raw sentences into models with a fixed Tagger and chain order.
// The Tagger must be safe for concurrent use when a Trainer is shared, or when
// TrainEntities is used.
type Trainer struct {
	tagger            Tagger
	stateSize         int
	shards            int
	maxSentenceLength int
	logger            *slog.Logger
}

// TrainerOption is a function that configures a Trainer.
type TrainerOption func(*Trainer)

// WithShards sets how many parts the tagged corpus is split into for
// concurrent building.
// Default: 1
func WithShards(n int) TrainerOption {
	return func(t *Trainer) { t.shards = n }
}

// WithMaxSentenceLength drops training sentences with more than n words.
// Default: DefaultMaxSentenceLength
func WithMaxSentenceLength(n int) TrainerOption {
	return func(t *Trainer) { t.maxSentenceLength = n }
}

// WithLogger sets the logger used for training progress.
func WithLogger(logger *slog.Logger) TrainerOption {
	return func(t *Trainer) { t.SetLogger(logger) }
}

// NewTrainer creates a trainer. A nil tagger falls back to a NoOpTagger.
func NewTrainer(tagger Tagger, stateSize int, opts ...TrainerOption) *Trainer {
	if tagger == nil {
		tagger = NewNoOpTagger()
	}
	t := &Trainer{
		tagger:            tagger,
		stateSize:         stateSize,
		shards:            1,
		maxSentenceLength: DefaultMaxSentenceLength,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetLogger allows the user to set a custom slog.Logger.
func (t *Trainer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// Tagger returns the tagging strategy used by the trainer.
func (t *Trainer) Tagger() Tagger {
	return t.tagger
}

// Tag runs every sentence through the tagger. Sentences the tagger rejects with
// ErrTokenization, and overlong ones, are logged and skipped. Any other tagger
// error aborts.
func (t *Trainer) Tag(ctx context.Context, sentences []string) ([][]Token, error) {
	tagged := make([][]Token, 0, len(sentences))
	skipped := 0
	for i, sentence := range sentences {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tokens, err := t.tagger.Tag(sentence)
		if errors.Is(err, ErrTokenization) {
			skipped++
			t.logger.DebugContext(ctx, "Skipping sentence",
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("could not tag sentence %d: %w", i, err)
		}
		if len(tokens) > t.maxSentenceLength {
			skipped++
			t.logger.DebugContext(ctx, "Skipping overlong sentence",
				slog.Int("index", i),
				slog.Int("length", len(tokens)),
			)
			continue
		}
		if len(tokens) > 0 {
			tagged = append(tagged, tokens)
		}
	}
	if skipped > 0 {
		t.logger.InfoContext(ctx, "Sentences skipped during tagging",
			slog.String("tagger", t.tagger.Name()),
			slog.Int("skipped", skipped),
			slog.Int("kept", len(tagged)),
		)
	}
	return tagged, nil
}

// Train tags sentences and builds a model from the ones that survive.
func (t *Trainer) Train(ctx context.Context, sentences []string) (*Model, error) {
	tagged, err := t.Tag(ctx, sentences)
	if err != nil {
		return nil, err
	}
	m, err := BuildSharded(ctx, tagged, t.stateSize, t.shards, WithTaggerName(t.tagger.Name()))
	if err != nil {
		return nil, err
	}
	t.logger.InfoContext(ctx, "Training completed",
		slog.String("tagger", t.tagger.Name()),
		slog.Int("state_size", m.StateSize()),
		slog.Int("sentences", len(m.corpus)),
		slog.Int("windows", m.Len()),
	)
	return m, nil
}

// TrainReader reads running text line by line, splits each line into sentences
// with SplitSentences and trains on the result.
func (t *Trainer) TrainReader(ctx context.Context, r io.Reader) (*Model, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var sentences []string
	for sc.Scan() {
		sentences = append(sentences, SplitSentences(sc.Text())...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("could not read training text: %w", err)
	}
	return t.Train(ctx, sentences)
}

type entityModel struct {
	name  string
	model *Model
}

// TrainEntities trains one independent model per entity, concurrently. The
// first failure cancels the remaining work and is returned wrapped with the
// entity name.
func TrainEntities(ctx context.Context, t *Trainer, entities map[string][]string) (map[string]*Model, error) {
	p := pool.NewWithResults[entityModel]().WithContext(ctx).WithCancelOnError()
	for name, sentences := range entities {
		p.Go(func(ctx context.Context) (entityModel, error) {
			m, err := t.Train(ctx, sentences)
			if err != nil {
				return entityModel{}, fmt.Errorf("could not train %q: %w", name, err)
			}
			return entityModel{name: name, model: m}, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	models := make(map[string]*Model, len(results))
	for _, r := range results {
		models[r.name] = r.model
	}
	return models, nil
}
