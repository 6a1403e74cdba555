package chain

import (
	"sort"

	"github.com/witmesh/witnode/pkg/metrics"
	"github.com/witmesh/witnode/pkg/types"
)

// TransactionWeight approximates a transaction's block-space cost as
// its encoded byte length — simple and monotonic in the quantities
// that actually matter (input/output count, script size), which is
// all the weight-bounded mempool priority index needs.
func TransactionWeight(t types.Transaction) uint32 {
	return uint32(len(EncodeTransaction(t)))
}

// SubmitToMempool computes a transaction's weight/fee/priority and
// inserts it, rejecting anything that would blow the mempool's
// configured size budget.
func (m *Manager) SubmitToMempool(t types.Transaction, fee uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mempool.Len() >= m.mempool.MaxSize {
		return validationErr(StepTransaction, "mempool is full")
	}
	weight := TransactionWeight(t)
	hash := HashTransaction(t)
	priority := float64(fee) / float64(weight)
	m.mempool.Insert(hash, types.MempoolEntry{Txn: t, Weight: weight, Fee: fee, Priority: priority})
	metrics.MempoolSize.Set(float64(m.mempool.Len()))
	metrics.MempoolWeight.Set(float64(m.mempool.TotalWeight()))
	return nil
}

// SelectForBlock greedily fills a block up to maxWeight with the
// highest-priority mempool entries, respecting max_block_weight.
func SelectForBlock(mempool *types.Mempool, maxWeight uint32) []types.MempoolEntry {
	entries := mempool.All()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Priority > entries[j].Priority })

	var selected []types.MempoolEntry
	var used uint32
	for _, e := range entries {
		if used+e.Weight > maxWeight {
			continue
		}
		selected = append(selected, e)
		used += e.Weight
	}
	return selected
}
