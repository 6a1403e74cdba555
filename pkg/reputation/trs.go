package reputation

import "github.com/witmesh/witnode/pkg/types"

// TotalReputationSet tracks each identity's decaying reputation score:
// issuance on truthful participation, demurrage applied every epoch so
// reputation that isn't refreshed by activity decays toward zero.
type TotalReputationSet struct {
	scores map[types.PublicKeyHash]uint64
}

// NewTotalReputationSet constructs an empty reputation ledger.
func NewTotalReputationSet() *TotalReputationSet {
	return &TotalReputationSet{scores: make(map[types.PublicKeyHash]uint64)}
}

// Issue credits reputation to id, typically called once per truthful
// tally participation.
func (t *TotalReputationSet) Issue(id types.PublicKeyHash, amount uint64) {
	t.scores[id] += amount
}

// Score returns id's current reputation.
func (t *TotalReputationSet) Score(id types.PublicKeyHash) uint64 {
	return t.scores[id]
}

// ApplyDemurrage decays every identity's score by alphaDiff/denominator
// per call, matching reputation_expire_alpha_diff's role of bounding
// how long idle reputation stays influential.
func (t *TotalReputationSet) ApplyDemurrage(alphaDiff, denominator uint64) {
	if denominator == 0 {
		return
	}
	for id, score := range t.scores {
		decayed := score - (score*alphaDiff)/denominator
		if decayed == 0 {
			delete(t.scores, id)
			continue
		}
		t.scores[id] = decayed
	}
}

// Total returns the sum of every tracked identity's score, used to
// compute an identity's voting/mining power share.
func (t *TotalReputationSet) Total() uint64 {
	var total uint64
	for _, s := range t.scores {
		total += s
	}
	return total
}

// Share returns id's fraction of total reputation, used to weight
// superblock votes and mining eligibility.
func (t *TotalReputationSet) Share(id types.PublicKeyHash) float64 {
	total := t.Total()
	if total == 0 {
		return 0
	}
	return float64(t.scores[id]) / float64(total)
}
