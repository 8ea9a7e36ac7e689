package markov

// ModelStats holds aggregated statistics for a single Markov model.
type ModelStats struct {
	StateSize      int    `json:"state_size"`
	Tagger         string `json:"tagger,omitempty"`
	Windows        int    `json:"windows"`         // The number of distinct windows in the chain.
	TotalChains    int    `json:"total_chains"`    // The number of unique window->next_token links.
	TotalFrequency int    `json:"total_frequency"` // The sum of all link counts; the total number of trained transitions.
	StartingTokens int    `json:"starting_tokens"` // The number of unique tokens that can start a sentence.
	VocabSize      int    `json:"vocab_size"`      // The number of unique tokens, tags included, the chain can emit.
	Sentences      int    `json:"sentences"`       // The number of sentences retained for overlap checks.
}

// Stats returns a snapshot of statistics for the model.
func (m *Model) Stats() ModelStats {
	stats := ModelStats{
		StateSize: m.stateSize,
		Tagger:    m.tagger,
		Windows:   len(m.chain),
		Sentences: len(m.corpus),
	}
	vocab := make(map[Token]struct{})
	for _, st := range m.chain {
		stats.TotalChains += len(st.next)
		stats.TotalFrequency += st.total
		for _, tr := range st.next {
			if tr.Token != EndToken {
				vocab[tr.Token] = struct{}{}
			}
		}
	}
	stats.VocabSize = len(vocab)

	begin := make([]Token, m.stateSize)
	for i := range begin {
		begin[i] = BeginToken
	}
	if st, ok := m.chain[keyOf(begin)]; ok {
		stats.StartingTokens = len(st.next)
	}
	return stats
}
