package drpool

import "github.com/witmesh/witnode/pkg/types"

// distributeRewards splits a tallied request's collateral and reward
// budget among its witnesses: truthers (whose reveal matched the
// consensus value) are refunded their collateral plus an equal share
// of the reward and of every liar's forfeited collateral; liars
// receive nothing.
//
// pkhs and liarFlags are positionally aligned, the same ordering
// RunTally's report uses.
func distributeRewards(output types.DataRequestOutput, pkhs []types.PublicKeyHash, liarFlags []bool) []types.ValueTransferOutput {
	var truthers []types.PublicKeyHash
	var liars int
	for i, pkh := range pkhs {
		if i < len(liarFlags) && liarFlags[i] {
			liars++
			continue
		}
		truthers = append(truthers, pkh)
	}

	if len(truthers) == 0 {
		// Every witness lied: collateral is forfeit with nowhere to
		// go, so no outputs are produced. The chain manager treats an
		// all-liar tally the same as NoReveals for reward purposes.
		return nil
	}

	forfeited := output.Collateral * uint64(liars)
	bonus := forfeited / uint64(len(truthers))

	outputs := make([]types.ValueTransferOutput, 0, len(truthers))
	for _, pkh := range truthers {
		outputs = append(outputs, types.ValueTransferOutput{
			PKH:   pkh,
			Value: output.Collateral + output.Fee.WitnessReward + bonus,
		})
	}
	return outputs
}
