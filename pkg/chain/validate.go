package chain

import (
	"fmt"

	"github.com/witmesh/witnode/pkg/crypto"
	"github.com/witmesh/witnode/pkg/types"
)

// ValidationStep names which of the six pipeline steps rejected a
// block or transaction, letting callers branch on *why* without
// string-matching an error message.
type ValidationStep string

const (
	StepEligibility     ValidationStep = "eligibility"
	StepMerkleRoot       ValidationStep = "merkle_root"
	StepFutureBlock      ValidationStep = "future_block"
	StepNotExtendingTip  ValidationStep = "not_extending_tip"
	StepTransaction      ValidationStep = "transaction"
	StepDataRequestFamily ValidationStep = "data_request_family"
)

// ValidationError reports the step and reason a block or transaction
// was rejected; the chain manager short-circuits the pipeline on the
// first one encountered.
type ValidationError struct {
	Step   ValidationStep
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("chain: block rejected at %s: %s", e.Step, e.Reason)
}

func validationErr(step ValidationStep, format string, args ...any) *ValidationError {
	return &ValidationError{Step: step, Reason: fmt.Sprintf(format, args...)}
}

// checkEligibility is pipeline step 1: the block's proof must verify
// against the claimed public key and fold into a score under the
// producer's reputation-weighted eligibility target.
func (m *Manager) checkEligibility(block types.Block) error {
	proof := crypto.EligibilityProof{Signature: block.Header.BlockSignature, PublicKey: block.Header.BlockPublicKey}
	score, ok := crypto.VerifyEligibility(proof, block.Header.Beacon.Epoch, block.Header.Beacon.HashPrevBlock)
	if !ok {
		return validationErr(StepEligibility, "signature does not verify")
	}

	pkh, err := crypto.PKH(block.Header.BlockPublicKey)
	if err != nil {
		return validationErr(StepEligibility, "malformed public key: %v", err)
	}
	if !m.ars.Contains(pkh) {
		return validationErr(StepEligibility, "producer %s is not an active reputation set member", pkh)
	}

	if score >= m.eligibilityThreshold(pkh) {
		return validationErr(StepEligibility, "proof score %.6f exceeds eligibility threshold", score)
	}
	return nil
}

// eligibilityThreshold scales a producer's share of total reputation
// by the configured eligibility factor; a producer with no recorded
// reputation yet (e.g. the very first miners on a fresh chain) falls
// back to an even split across the active reputation set.
func (m *Manager) eligibilityThreshold(pkh types.PublicKeyHash) float64 {
	share := m.trs.Share(pkh)
	if share <= 0 {
		share = 1.0 / float64(max(len(m.ars.ActiveIdentities()), 1))
	}
	return m.cfg.EligibilityFactor * share
}

// checkMerkleRoot is pipeline step 2.
func checkMerkleRoot(block types.Block) error {
	root := MerkleRoot(block.Txns)
	if root != block.Header.MerkleRoot {
		return validationErr(StepMerkleRoot, "computed %s, header claims %s", root, block.Header.MerkleRoot)
	}
	return nil
}

// checkNotFuture is pipeline step 3.
func checkNotFuture(block types.Block, currentEpoch uint32) error {
	if block.Header.Beacon.Epoch > currentEpoch {
		return validationErr(StepFutureBlock, "beacon epoch %d exceeds current epoch %d", block.Header.Beacon.Epoch, currentEpoch)
	}
	return nil
}

// checkExtendsTip is pipeline step 4. A failure here does not discard
// the block outright: the caller tracks it as a side-chain candidate
// instead, per the fork-unfriendly-path note in the block validation
// pipeline.
func checkExtendsTip(block types.Block, tip types.CheckpointBeacon) error {
	if block.Header.Beacon.HashPrevBlock != tip.HashPrevBlock {
		return validationErr(StepNotExtendingTip, "parent %s is not the current tip %s", block.Header.Beacon.HashPrevBlock, tip.HashPrevBlock)
	}
	return nil
}

// checkTransactions is pipeline step 5: every transaction's inputs
// must exist, be unspent in the given snapshot, and the input value
// must cover the output value; every signature must verify.
func checkTransactions(block types.Block, snapshot *types.UTXOSet) error {
	spent := make(map[types.OutputPointer]bool)
	for _, txn := range block.Txns {
		switch txn.Kind {
		case types.TxValueTransfer, types.TxDataRequest:
			var inputTotal, outputTotal uint64
			digest := HashTransaction(txn)
			for _, in := range txn.Inputs {
				if spent[in.OutputPointer] {
					return validationErr(StepTransaction, "input %s double-spent within block", in.OutputPointer)
				}
				utxo, ok := snapshot.Get(in.OutputPointer)
				if !ok {
					return validationErr(StepTransaction, "input %s not present in parent UTXO snapshot", in.OutputPointer)
				}
				if !crypto.Verify(in.PublicKey, digest[:], in.Signature) {
					return validationErr(StepTransaction, "invalid signature on input %s", in.OutputPointer)
				}
				spent[in.OutputPointer] = true
				inputTotal += utxo.Value
			}
			for _, out := range txn.Outputs {
				outputTotal += out.Value
			}
			if len(txn.Inputs) > 0 && inputTotal < outputTotal {
				return validationErr(StepTransaction, "outputs (%d) exceed inputs (%d)", outputTotal, inputTotal)
			}
		case types.TxCommit:
			if !crypto.Verify(txn.Commit.PublicKey, txn.Commit.DataRequestID[:], txn.Commit.Signature) {
				return validationErr(StepTransaction, "invalid commit signature for %s", txn.Commit.DataRequestID)
			}
		case types.TxReveal:
			if !crypto.Verify(txn.Reveal.PublicKey, txn.Reveal.DataRequestID[:], txn.Reveal.Signature) {
				return validationErr(StepTransaction, "invalid reveal signature for %s", txn.Reveal.DataRequestID)
			}
		}
	}
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
