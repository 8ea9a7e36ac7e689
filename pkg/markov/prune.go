package markov

import "fmt"

// Prune returns a copy of the model without the transitions observed minFreq
// times or fewer. This is useful for reducing the size of a model by removing
// rare, and often noisy, transitions. Windows left without transitions become
// dead ends. The corpus is kept whole so overlap checks are unaffected.
//
// Pruning everything fails with ErrBuild.
func (m *Model) Prune(minFreq int) (*Model, error) {
	counts := newChainCounts(m.stateSize)
	for _, st := range m.chain {
		for _, tr := range st.next {
			if tr.Count > minFreq {
				if err := counts.add(st.key, tr.Token, tr.Count); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrBuild, err)
				}
			}
		}
	}
	if len(counts.counts) == 0 {
		return nil, fmt.Errorf("%w: pruning at %d removes every transition", ErrBuild, minFreq)
	}
	return counts.freeze(m.corpus, m.tagger), nil
}
