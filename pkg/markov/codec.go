package markov

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// FormatVersion is the version of the model document written by Encode.
// Documents carrying any other version are refused.
const FormatVersion = 1

// Document is the portable, JSON-serializable form of a Model.
type Document struct {
	FormatVersion int          `json:"format_version"`
	StateSize     int          `json:"state_size"`
	Tagger        string       `json:"tagger,omitempty"`
	Chain         []ChainEntry `json:"chain"`
	Corpus        [][]Token    `json:"corpus"`
}

// ChainEntry is one window of the chain with its transitions. It is written as
// a two element array, [key, transitions].
type ChainEntry struct {
	Key         []Token
	Transitions []TransitionEntry
}

// TransitionEntry is written as a two element array, [token, count].
type TransitionEntry struct {
	Token Token
	Count int
}

func (e ChainEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Key, e.Transitions})
}

func (e *ChainEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("chain entry has %d elements, want 2", len(pair))
	}
	if err := decodeStrict(pair[0], &e.Key); err != nil {
		return fmt.Errorf("chain key: %w", err)
	}
	return decodeStrict(pair[1], &e.Transitions)
}

func (e TransitionEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Token, e.Count})
}

func (e *TransitionEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("transition has %d elements, want 2", len(pair))
	}
	if err := decodeStrict(pair[0], &e.Token); err != nil {
		return fmt.Errorf("transition token: %w", err)
	}
	return decodeStrict(pair[1], &e.Count)
}

// decodeStrict is json.Unmarshal with unknown fields refused. The decoder
// settings of Import do not reach into custom unmarshalers.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Encode converts a model to its portable document. Windows and transitions
// are listed in a stable order, so equal models encode to equal documents.
func Encode(m *Model) *Document {
	doc := &Document{
		FormatVersion: FormatVersion,
		StateSize:     m.stateSize,
		Tagger:        m.tagger,
		Chain:         make([]ChainEntry, 0, len(m.chain)),
		Corpus:        m.Corpus(),
	}
	for _, st := range m.sortedStates() {
		entry := ChainEntry{
			Key:         append([]Token(nil), st.key...),
			Transitions: make([]TransitionEntry, len(st.next)),
		}
		for i, tr := range st.next {
			entry.Transitions[i] = TransitionEntry{Token: tr.Token, Count: tr.Count}
		}
		doc.Chain = append(doc.Chain, entry)
	}
	return doc
}

// Decode validates a document and rebuilds the model it describes. Any
// structural problem fails with ErrCodec; nothing is repaired or dropped.
func Decode(doc *Document) (*Model, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", ErrCodec)
	}
	if doc.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d is not supported (want %d)", ErrCodec, doc.FormatVersion, FormatVersion)
	}
	if doc.StateSize < 1 {
		return nil, fmt.Errorf("%w: state size %d is less than 1", ErrCodec, doc.StateSize)
	}
	if len(doc.Chain) == 0 {
		return nil, fmt.Errorf("%w: chain is empty", ErrCodec)
	}

	counts := newChainCounts(doc.StateSize)
	for i, entry := range doc.Chain {
		if err := checkKey(entry.Key, doc.StateSize); err != nil {
			return nil, fmt.Errorf("%w: chain entry %d: %v", ErrCodec, i, err)
		}
		if _, dup := counts.counts[keyOf(entry.Key)]; dup {
			return nil, fmt.Errorf("%w: chain entry %d: duplicate key %v", ErrCodec, i, entry.Key)
		}
		if len(entry.Transitions) == 0 {
			return nil, fmt.Errorf("%w: chain entry %d has no transitions", ErrCodec, i)
		}
		seen := make(map[Token]struct{}, len(entry.Transitions))
		for j, tr := range entry.Transitions {
			switch {
			case tr.Count <= 0:
				return nil, fmt.Errorf("%w: chain entry %d: transition %d has count %d", ErrCodec, i, j, tr.Count)
			case tr.Token.Text == "":
				return nil, fmt.Errorf("%w: chain entry %d: transition %d has an empty token", ErrCodec, i, j)
			case tr.Token.Text == BeginText:
				return nil, fmt.Errorf("%w: chain entry %d: transition %d targets the begin sentinel", ErrCodec, i, j)
			}
			if _, dup := seen[tr.Token]; dup {
				return nil, fmt.Errorf("%w: chain entry %d: duplicate transition to %v", ErrCodec, i, tr.Token)
			}
			seen[tr.Token] = struct{}{}
			if err := counts.add(entry.Key, tr.Token, tr.Count); err != nil {
				return nil, fmt.Errorf("%w: chain entry %d: %v", ErrCodec, i, err)
			}
		}
	}

	corpus := make([][]Token, len(doc.Corpus))
	for i, sentence := range doc.Corpus {
		if len(sentence) == 0 {
			return nil, fmt.Errorf("%w: corpus sentence %d is empty", ErrCodec, i)
		}
		if err := checkSentence(sentence); err != nil {
			return nil, fmt.Errorf("%w: corpus sentence %d: %v", ErrCodec, i, err)
		}
		corpus[i] = append([]Token(nil), sentence...)
	}
	return counts.freeze(corpus, doc.Tagger), nil
}

func checkKey(key []Token, stateSize int) error {
	if len(key) != stateSize {
		return fmt.Errorf("key has %d tokens, want %d", len(key), stateSize)
	}
	word := false
	for j, tok := range key {
		switch tok.Text {
		case "":
			return fmt.Errorf("key token %d is empty", j)
		case EndText:
			return fmt.Errorf("key token %d is the end sentinel", j)
		case BeginText:
			// Begin sentinels only ever pad the front of a window.
			if word {
				return fmt.Errorf("key token %d is a begin sentinel after a word", j)
			}
		default:
			word = true
		}
	}
	return nil
}

// Export writes the JSON document of a model to w.
func Export(w io.Writer, m *Model) error {
	if err := json.NewEncoder(w).Encode(Encode(m)); err != nil {
		return fmt.Errorf("failed to encode json model: %w", err)
	}
	return nil
}

// Import reads a JSON model document from r. Malformed JSON, unknown fields and
// invalid content all fail with ErrCodec.
func Import(r io.Reader) (*Model, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode json model: %v", ErrCodec, err)
	}
	return Decode(&doc)
}
