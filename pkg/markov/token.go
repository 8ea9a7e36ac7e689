package markov

import (
	"errors"
	"strings"
)

const (
	// BeginText is the reserved text of the Begin sentinel token.
	BeginText = "___BEGIN__"
	// EndText is the reserved text of the End sentinel token.
	EndText = "___END__"
)

var (
	// BeginToken pads the start of every training sentence. It is never the
	// target of a transition.
	BeginToken = Token{Text: BeginText}
	// EndToken terminates every training sentence. It never appears inside a
	// window.
	EndToken = Token{Text: EndText}
)

var (
	// ErrTokenization is returned by a Tagger for input it refuses to tag.
	// Training skips such sentences and carries on.
	ErrTokenization = errors.New("markov: sentence rejected by tagger")
	// ErrBuild is returned when a model cannot be built or merged.
	ErrBuild = errors.New("markov: cannot build model")
	// ErrCodec is returned when a model document cannot be decoded.
	ErrCodec = errors.New("markov: invalid model document")
	// ErrNotFound is returned by a Registry for an unknown name.
	ErrNotFound = errors.New("markov: model not found")
)

// Token represents a single tagged unit of text. An empty Tag means the token
// was produced without a tagging strategy.
type Token struct {
	Text string `json:"text"`
	Tag  string `json:"tag,omitempty"`
}

// HasTag reports whether the token carries a part-of-speech tag.
func (t Token) HasTag() bool {
	return t.Tag != ""
}

// IsSentinel reports whether the token is the Begin or End sentinel.
func (t Token) IsSentinel() bool {
	return t == BeginToken || t == EndToken
}

// String renders the token the way it is shown in logs, "text::TAG".
func (t Token) String() string {
	if t.Tag == "" {
		return t.Text
	}
	return t.Text + "::" + t.Tag
}

// Tagger is the contract for turning one sentence into an ordered sequence of
// tokens. Implementations must satisfy Join(Tag(s)) == the whitespace-collapsed
// form of s, and must return an empty slice (not an error) for empty input.
type Tagger interface {
	// Tag splits and tags a single sentence.
	Tag(sentence string) ([]Token, error)
	// Name identifies the tagging strategy, e.g. "none" or "fast". It is
	// recorded in exported model documents.
	Name() string
}

// Join rebuilds the text of a token sequence, dropping tags and sentinels and
// separating words with single spaces.
func Join(tokens []Token) string {
	var b strings.Builder
	first := true
	for _, tok := range tokens {
		if tok.IsSentinel() {
			continue
		}
		if !first {
			b.WriteByte(' ')
		}
		b.WriteString(tok.Text)
		first = false
	}
	return b.String()
}

// Texts returns the text of each token, without tags.
func Texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Text
	}
	return out
}
