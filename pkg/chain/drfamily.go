package chain

import (
	"github.com/witmesh/witnode/pkg/crypto"
	"github.com/witmesh/witnode/pkg/types"
)

// checkDataRequestFamily is pipeline step 6: commit, reveal, and tally
// transactions must consistently extend the data-request pool state
// rather than being accepted at face value.
func (m *Manager) checkDataRequestFamily(block types.Block, currentEpoch uint32) error {
	for _, txn := range block.Txns {
		switch txn.Kind {
		case types.TxCommit:
			dr, ok := m.pool.Get(txn.Commit.DataRequestID)
			if !ok || dr.Stage != types.DRStagePending {
				return validationErr(StepDataRequestFamily, "commit references non-pending data request %s", txn.Commit.DataRequestID)
			}
			if currentEpoch > m.pool.CommitDeadline(dr) {
				return validationErr(StepDataRequestFamily, "commit for %s arrived after its commit deadline", txn.Commit.DataRequestID)
			}
		case types.TxReveal:
			dr, ok := m.pool.Get(txn.Reveal.DataRequestID)
			if !ok || dr.Stage != types.DRStagePending {
				return validationErr(StepDataRequestFamily, "reveal references non-pending data request %s", txn.Reveal.DataRequestID)
			}
			if _, hasCommit := dr.Commits[pkhOf(txn.Reveal.PublicKey)]; !hasCommit {
				return validationErr(StepDataRequestFamily, "reveal for %s has no matching commit", txn.Reveal.DataRequestID)
			}
			if currentEpoch <= m.pool.CommitDeadline(dr) || currentEpoch > m.pool.RevealDeadline(dr) {
				return validationErr(StepDataRequestFamily, "reveal for %s arrived outside its reveal window", txn.Reveal.DataRequestID)
			}
		case types.TxTally:
			dr, ok := m.pool.Get(txn.Tally.DataRequestID)
			if !ok || dr.Stage != types.DRStagePending {
				return validationErr(StepDataRequestFamily, "tally references non-pending data request %s", txn.Tally.DataRequestID)
			}
			if len(txn.Tally.LiarFlags) != 0 && len(txn.Tally.LiarFlags) != len(dr.Reveals) {
				return validationErr(StepDataRequestFamily, "tally for %s does not aggregate exactly the gathered reveals", txn.Tally.DataRequestID)
			}
		}
	}
	return nil
}

// pkhOf derives a PublicKeyHash from a reveal/commit transaction's
// embedded public key for matching against the pool's Commits map,
// tolerating a malformed key by returning the zero hash (which will
// simply never match a real commit).
func pkhOf(pubKey []byte) types.PublicKeyHash {
	pkh, err := crypto.PKH(pubKey)
	if err != nil {
		return types.PublicKeyHash{}
	}
	return pkh
}
