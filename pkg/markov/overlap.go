package markov

import (
	"encoding/binary"
	"index/suffixarray"
)

// tokenWidth is the number of bytes each word id occupies in the index.
const tokenWidth = 4

// OverlapGuard rejects generated sentences that copy too long a run of words
// from any single training sentence. Words are compared by text only, tags are
// ignored.
//
// The corpus is indexed once as a suffix array over fixed-width word ids, with
// a zero id between sentences so that no match can span two of them. A check
// costs one lookup per n-gram of the candidate.
type OverlapGuard struct {
	ids   map[string]uint32
	index *suffixarray.Index
}

// NewOverlapGuard indexes corpus. An empty corpus accepts every candidate.
func NewOverlapGuard(corpus [][]Token) *OverlapGuard {
	g := &OverlapGuard{ids: make(map[string]uint32)}
	var data []byte
	for _, sentence := range corpus {
		for _, tok := range sentence {
			id, ok := g.ids[tok.Text]
			if !ok {
				id = uint32(len(g.ids) + 1)
				g.ids[tok.Text] = id
			}
			data = binary.BigEndian.AppendUint32(data, id)
		}
		data = binary.BigEndian.AppendUint32(data, 0)
	}
	g.index = suffixarray.New(data)
	return g
}

// Accepts reports whether candidate contains no run of more than limit words
// that also appears, in order, inside one training sentence. A limit of zero or
// less disables the check.
func (g *OverlapGuard) Accepts(candidate []Token, limit int) bool {
	if limit <= 0 || len(candidate) <= limit {
		return true
	}
	n := limit + 1
	pattern := make([]byte, 0, n*tokenWidth)
	for i := 0; i+n <= len(candidate); i++ {
		pattern = pattern[:0]
		known := true
		for _, tok := range candidate[i : i+n] {
			id, ok := g.ids[tok.Text]
			if !ok {
				known = false
				break
			}
			pattern = binary.BigEndian.AppendUint32(pattern, id)
		}
		if known && g.contains(pattern) {
			return false
		}
	}
	return true
}

// contains reports whether pattern occurs aligned to a word boundary. Byte
// matches that start in the middle of an id are coincidences.
func (g *OverlapGuard) contains(pattern []byte) bool {
	for _, off := range g.index.Lookup(pattern, -1) {
		if off%tokenWidth == 0 {
			return true
		}
	}
	return false
}
