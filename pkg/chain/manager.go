// Package chain implements the chain manager: the UTXO set, mempool,
// block validation pipeline, tip selection, superblock finality
// gadget, and mining-candidate construction that together keep a
// node's view of the ledger in sync with its peers.
package chain

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/witmesh/witnode/pkg/crypto"
	"github.com/witmesh/witnode/pkg/drpool"
	"github.com/witmesh/witnode/pkg/events"
	"github.com/witmesh/witnode/pkg/logging"
	"github.com/witmesh/witnode/pkg/metrics"
	"github.com/witmesh/witnode/pkg/reputation"
	"github.com/witmesh/witnode/pkg/storage"
	"github.com/witmesh/witnode/pkg/types"
)

// Config holds the chain manager's tunables, taken verbatim from node
// configuration.
type Config struct {
	MaxBlockWeight    uint32
	SuperblockPeriod  uint32
	EligibilityFactor float64 // scales a producer's reputation share into an eligibility target
}

// Manager owns the UTXO set, mempool, data-request pool, and
// reputation engines exclusively; every other component reaches chain
// state only through its exported methods.
type Manager struct {
	mu sync.RWMutex

	store   storage.Store
	utxo    *types.UTXOSet
	mempool *types.Mempool
	pool    *drpool.Pool
	ars     *reputation.ActiveSet
	trs     *reputation.TotalReputationSet

	tip        types.CheckpointBeacon
	candidates map[types.Hash]types.Block

	cfg    Config
	broker *events.Broker
	log    zerolog.Logger
}

// New constructs a chain Manager over an already-opened store.
func New(store storage.Store, pool *drpool.Pool, ars *reputation.ActiveSet, trs *reputation.TotalReputationSet, broker *events.Broker, cfg Config) *Manager {
	return &Manager{
		store:      store,
		utxo:       types.NewUTXOSet(),
		mempool:    types.NewMempool(5000),
		pool:       pool,
		ars:        ars,
		trs:        trs,
		candidates: make(map[types.Hash]types.Block),
		cfg:        cfg,
		broker:     broker,
		log:        logging.WithComponent("chain"),
	}
}

// Tip returns the current chain tip.
func (m *Manager) Tip() types.CheckpointBeacon {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tip
}

// SetTip forcibly sets the chain tip, used once at startup to restore
// a persisted tip before any blocks are processed.
func (m *Manager) SetTip(tip types.CheckpointBeacon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tip = tip
	metrics.ChainTipHeight.Set(float64(tip.Epoch))
}

// AddCandidate tracks a block that does not extend the current tip —
// a side-chain fork candidate considered at the next epoch boundary's
// tip selection, per the fork-unfriendly validation path.
func (m *Manager) AddCandidate(block types.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := HashTransaction(mintOf(block))
	m.candidates[id] = block
}

// mintOf returns a block's mint transaction, used as a stand-in block
// identity when no dedicated block-hash field is threaded through a
// candidate entry.
func mintOf(block types.Block) types.Transaction {
	for _, t := range block.Txns {
		if t.Kind == types.TxMint {
			return t
		}
	}
	return types.Transaction{Kind: types.TxMint, Mint: &types.MintTransactionBody{Epoch: block.Header.Beacon.Epoch}}
}

// ApplyBlock runs the six-step validation pipeline against block and,
// on success, applies it as a single atomic storage batch: UTXO
// updates, mempool eviction, data-request pool advancement, and the
// chain tip all move together or not at all.
func (m *Manager) ApplyBlock(block types.Block, currentEpoch uint32) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.BlockValidationDuration)

	if err := m.checkEligibility(block); err != nil {
		metrics.BlocksRejectedTotal.WithLabelValues(string(StepEligibility)).Inc()
		return err
	}
	if err := checkMerkleRoot(block); err != nil {
		metrics.BlocksRejectedTotal.WithLabelValues(string(StepMerkleRoot)).Inc()
		return err
	}
	if err := checkNotFuture(block, currentEpoch); err != nil {
		metrics.BlocksRejectedTotal.WithLabelValues(string(StepFutureBlock)).Inc()
		return err
	}

	m.mu.RLock()
	tip := m.tip
	m.mu.RUnlock()

	if err := checkExtendsTip(block, tip); err != nil {
		metrics.BlocksRejectedTotal.WithLabelValues(string(StepNotExtendingTip)).Inc()
		m.AddCandidate(block)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkTransactions(block, m.utxo); err != nil {
		metrics.BlocksRejectedTotal.WithLabelValues(string(StepTransaction)).Inc()
		return err
	}
	if err := m.checkDataRequestFamily(block, currentEpoch); err != nil {
		metrics.BlocksRejectedTotal.WithLabelValues(string(StepDataRequestFamily)).Inc()
		return err
	}

	if err := m.applyLocked(block); err != nil {
		return fmt.Errorf("apply block: %w", err)
	}

	m.log.Info().Uint32("epoch", block.Header.Beacon.Epoch).Int("txns", len(block.Txns)).Msg("block applied")
	m.broker.Publish(&events.Event{Type: events.EventBlockNotify, Block: &block})
	return nil
}

// applyLocked performs the atomic apply; callers must hold m.mu.
func (m *Manager) applyLocked(block types.Block) error {
	blockHash := HashTransaction(mintOf(block))

	err := m.store.WriteBatch(func(b storage.Batch) error {
		encodedBlock, err := json.Marshal(block)
		if err != nil {
			return &storage.EncodingError{Keyspace: storage.KeyspaceBlocks, Key: blockHash.String(), Err: err}
		}
		if err := b.Put(storage.KeyspaceBlocks, blockHash.String(), encodedBlock); err != nil {
			return err
		}

		for _, txn := range block.Txns {
			hash := HashTransaction(txn)
			for _, in := range txn.Inputs {
				m.utxo.Remove(in.OutputPointer)
				if err := b.Delete(storage.KeyspaceUTXO, in.OutputPointer.String()); err != nil {
					return err
				}
			}
			for i, out := range txn.Outputs {
				pointer := types.OutputPointer{TxHash: hash, OutputIndex: uint32(i)}
				m.utxo.Insert(pointer, out)
				encoded, err := json.Marshal(out)
				if err != nil {
					return &storage.EncodingError{Keyspace: storage.KeyspaceUTXO, Key: pointer.String(), Err: err}
				}
				if err := b.Put(storage.KeyspaceUTXO, pointer.String(), encoded); err != nil {
					return err
				}
			}
			m.mempool.Remove(hash)

			switch txn.Kind {
			case types.TxDataRequest:
				m.pool.AddNew(hash, *txn.DataRequest)
				if err := m.pool.Consolidate(hash, block.Header.Beacon.Epoch); err != nil {
					m.log.Warn().Err(err).Msg("consolidating data request in pool")
				}
			case types.TxTally:
				if err := m.pool.ApplyTally(txn.Tally.DataRequestID, *txn.Tally); err != nil {
					m.log.Warn().Err(err).Msg("applying tally to data-request pool")
				}
			}
		}
		if err := b.Put(storage.KeyspaceChainInfo, fmt.Sprintf("epoch-%d", block.Header.Beacon.Epoch), blockHash[:]); err != nil {
			return err
		}
		return b.Put(storage.KeyspaceChainInfo, "tip", blockHash[:])
	})
	if err != nil {
		return err
	}

	m.tip = types.CheckpointBeacon{Epoch: block.Header.Beacon.Epoch, HashPrevBlock: blockHash}
	delete(m.candidates, blockHash)
	metrics.ChainTipHeight.Set(float64(m.tip.Epoch))
	metrics.UTXOSetSize.Set(float64(m.utxo.Len()))
	metrics.MempoolSize.Set(float64(m.mempool.Len()))
	metrics.MempoolWeight.Set(float64(m.mempool.TotalWeight()))
	return nil
}

// SelectTip chooses among this epoch's candidates the block with the
// largest reputation-weighted proof value, ties broken by
// lexicographically smaller block hash, then applies it.
func (m *Manager) SelectTip(epoch uint32, currentEpoch uint32) (types.Hash, bool) {
	m.mu.RLock()
	var matching []types.Block
	for _, b := range m.candidates {
		if b.Header.Beacon.Epoch == epoch {
			matching = append(matching, b)
		}
	}
	m.mu.RUnlock()

	if len(matching) == 0 {
		return types.Hash{}, false
	}

	var best types.Block
	var bestScore float64 = -1
	var bestHash types.Hash
	for _, b := range matching {
		proof := crypto.EligibilityProof{Signature: b.Header.BlockSignature, PublicKey: b.Header.BlockPublicKey}
		pkh, err := crypto.PKH(b.Header.BlockPublicKey)
		if err != nil {
			continue
		}
		score, ok := crypto.VerifyEligibility(proof, b.Header.Beacon.Epoch, b.Header.Beacon.HashPrevBlock)
		if !ok {
			continue
		}
		weighted := score * m.trs.Share(pkh)
		hash := HashTransaction(mintOf(b))
		if weighted > bestScore || (weighted == bestScore && lexicographicallyLess(hash, bestHash)) {
			best, bestScore, bestHash = b, weighted, hash
		}
	}
	if bestScore < 0 {
		return types.Hash{}, false
	}
	if err := m.ApplyBlock(best, currentEpoch); err != nil {
		m.log.Warn().Err(err).Msg("selected tip candidate failed late validation")
		return types.Hash{}, false
	}
	return bestHash, true
}

func lexicographicallyLess(a, b types.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// GetBlock looks up a consolidated block by hash, for the RPC
// surface's getBlock method. Candidates not yet chosen as tip are not
// visible here.
func (m *Manager) GetBlock(hash types.Hash) (types.Block, bool, error) {
	raw, err := m.store.Get(storage.KeyspaceBlocks, hash.String())
	if err != nil {
		return types.Block{}, false, err
	}
	if raw == nil {
		return types.Block{}, false, nil
	}
	var block types.Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return types.Block{}, false, &storage.EncodingError{Keyspace: storage.KeyspaceBlocks, Key: hash.String(), Err: err}
	}
	return block, true, nil
}

// EpochBlockHash looks up the consolidated block hash for epoch, for
// the RPC surface's getBlockChain method.
func (m *Manager) EpochBlockHash(epoch uint32) (types.Hash, bool, error) {
	raw, err := m.store.Get(storage.KeyspaceChainInfo, fmt.Sprintf("epoch-%d", epoch))
	if err != nil {
		return types.Hash{}, false, err
	}
	if len(raw) != 32 {
		return types.Hash{}, false, nil
	}
	var h types.Hash
	copy(h[:], raw)
	return h, true, nil
}

// EpochHash pairs an epoch with its consolidated block hash, returned
// by GetBlockChain.
type EpochHash struct {
	Epoch uint32
	Hash  types.Hash
}

// GetBlockChain lists the consolidated block hash for every epoch in
// [from, to], skipping epochs with no consolidated block, for the RPC
// surface's getBlockChain method.
func (m *Manager) GetBlockChain(from, to uint32) ([]EpochHash, error) {
	if to < from {
		return nil, fmt.Errorf("get block chain: to (%d) precedes from (%d)", to, from)
	}
	var out []EpochHash
	for e := from; e <= to; e++ {
		hash, ok, err := m.EpochBlockHash(e)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, EpochHash{Epoch: e, Hash: hash})
		}
	}
	return out, nil
}

// GetOutput looks up a single UTXO by pointer, for the RPC surface's
// getOutput method.
func (m *Manager) GetOutput(pointer types.OutputPointer) (types.ValueTransferOutput, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.utxo.Get(pointer)
}

// MempoolEntries returns a snapshot of every pending transaction, for
// the RPC surface's inventory method.
func (m *Manager) MempoolEntries() []types.MempoolEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mempool.All()
}

// UTXOSetSize reports the number of tracked unspent outputs.
func (m *Manager) UTXOSetSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.utxo.Len()
}

// SubmitTransaction validates a transaction against the current UTXO
// snapshot and, on success, admits it to the mempool — the entry
// point the RPC surface's sendRequest method uses to post a new data
// request (or any other transaction kind) to the node.
func (m *Manager) SubmitTransaction(txn types.Transaction, weight uint32) (types.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkTransactions(types.Block{Txns: []types.Transaction{txn}}, m.utxo); err != nil {
		return types.Hash{}, fmt.Errorf("submit transaction: %w", err)
	}

	hash := HashTransaction(txn)
	var fee uint64
	var inputTotal uint64
	for _, in := range txn.Inputs {
		if out, ok := m.utxo.Get(in.OutputPointer); ok {
			inputTotal += out.Value
		}
	}
	var outputTotal uint64
	for _, out := range txn.Outputs {
		outputTotal += out.Value
	}
	if inputTotal > outputTotal {
		fee = inputTotal - outputTotal
	}

	priority := 0.0
	if weight > 0 {
		priority = float64(fee) / float64(weight)
	}
	m.mempool.Insert(hash, types.MempoolEntry{Txn: txn, Weight: weight, Fee: fee, Priority: priority})
	metrics.MempoolSize.Set(float64(m.mempool.Len()))
	metrics.MempoolWeight.Set(float64(m.mempool.TotalWeight()))
	return hash, nil
}
