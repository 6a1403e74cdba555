package chain

import (
	"errors"

	"github.com/witmesh/witnode/pkg/crypto"
	"github.com/witmesh/witnode/pkg/types"
)

// ErrNotEligibleToMine is returned by BuildCandidate when the node's
// eligibility proof does not clear this epoch's reputation-weighted
// target.
var ErrNotEligibleToMine = errors.New("chain: not eligible to mine this epoch")

// BuildCandidate constructs a candidate block for epoch from the
// current mempool, respecting max_block_weight, and attaches an
// eligibility proof over (epoch, tip). It does not apply or broadcast
// the block; the caller does that once it decides to mine.
func (m *Manager) BuildCandidate(kp *crypto.KeyPair, epoch uint32) (types.Block, error) {
	m.mu.RLock()
	tip := m.tip
	mempool := m.mempool
	m.mu.RUnlock()

	pkh, err := crypto.PKH(kp.Public.SerializeCompressed())
	if err != nil {
		return types.Block{}, err
	}
	if !m.ars.Contains(pkh) {
		return types.Block{}, ErrNotEligibleToMine
	}

	proof := kp.Prove(epoch, tip.HashPrevBlock)
	score, ok := crypto.VerifyEligibility(proof, epoch, tip.HashPrevBlock)
	if !ok || score >= m.eligibilityThreshold(pkh) {
		return types.Block{}, ErrNotEligibleToMine
	}

	selected := SelectForBlock(mempool, m.cfg.MaxBlockWeight)
	var totalFees uint64
	txns := make([]types.Transaction, 0, len(selected)+1)
	for _, e := range selected {
		txns = append(txns, e.Txn)
		totalFees += e.Fee
	}

	mint := types.Transaction{
		Kind: types.TxMint,
		Mint: &types.MintTransactionBody{
			Epoch:   epoch,
			Outputs: []types.ValueTransferOutput{{PKH: pkh, Value: totalFees}},
		},
	}
	txns = append([]types.Transaction{mint}, txns...)

	header := types.BlockHeader{
		Beacon:         types.CheckpointBeacon{Epoch: epoch, HashPrevBlock: tip.HashPrevBlock},
		MerkleRoot:     MerkleRoot(txns),
		BlockSignature: proof.Signature,
		BlockPublicKey: proof.PublicKey,
	}
	return types.Block{Header: header, Txns: txns}, nil
}
