package drpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/witmesh/witnode/pkg/crypto"
	"github.com/witmesh/witnode/pkg/radon"
	"github.com/witmesh/witnode/pkg/reputation"
	"github.com/witmesh/witnode/pkg/storage"
	"github.com/witmesh/witnode/pkg/types"
)

func testOutput(t *testing.T) types.DataRequestOutput {
	t.Helper()
	rad := RADRequest{
		TallyFilter:      "mode",
		TallyReducer:     "mode",
		AggregateReducer: "mode",
	}
	enc, err := EncodeRADRequest(rad)
	require.NoError(t, err)
	return types.DataRequestOutput{
		DataRequest:     enc,
		Witnesses:       2,
		MinConsensusPct: 51,
		Collateral:      100,
		Fee:             types.Fee{WitnessReward: 10, CommitAndRevealFee: 1},
	}
}

func sealedReveal(t *testing.T, drID types.Hash, value radon.Value) (types.CommitTransactionBody, types.RevealTransactionBody) {
	t.Helper()
	nonce := []byte("nonce")
	encoded, err := radon.Marshal(value)
	require.NoError(t, err)
	commitment := crypto.HashSHA256(append(append([]byte(nil), encoded...), nonce...))

	return types.CommitTransactionBody{DataRequestID: drID, Commitment: commitment},
		types.RevealTransactionBody{DataRequestID: drID, Reveal: value, Nonce: nonce}
}

func TestPoolLifecycleNewToPending(t *testing.T) {
	p := New(Config{CommitsPeriod: 2, RevealsPeriod: 2}, reputation.NewActiveSet(4))
	id := types.Hash{1}
	p.AddNew(id, testOutput(t))

	dr, ok := p.Get(id)
	require.True(t, ok)
	assert.Equal(t, types.DRStageNew, dr.Stage)

	require.NoError(t, p.Consolidate(id, 10))
	dr, _ = p.Get(id)
	assert.Equal(t, types.DRStagePending, dr.Stage)
	assert.Equal(t, uint32(10), dr.Epoch)
}

func TestPoolRejectsCommitFromIneligibleWitness(t *testing.T) {
	ars := reputation.NewActiveSet(4)
	p := New(Config{CommitsPeriod: 2, RevealsPeriod: 2}, ars)
	id := types.Hash{1}
	p.AddNew(id, testOutput(t))
	require.NoError(t, p.Consolidate(id, 10))

	pkh := types.PublicKeyHash{7}
	commit, _ := sealedReveal(t, id, radon.Integer(42))
	err := p.AddCommit(id, pkh, commit, 11)
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestPoolCommitRevealTallyFlow(t *testing.T) {
	ars := reputation.NewActiveSet(4)
	witnessA := types.PublicKeyHash{1}
	witnessB := types.PublicKeyHash{2}
	ars.PushActivity([]types.PublicKeyHash{witnessA, witnessB})

	p := New(Config{CommitsPeriod: 2, RevealsPeriod: 2}, ars)
	id := types.Hash{9}
	p.AddNew(id, testOutput(t))
	require.NoError(t, p.Consolidate(id, 10)) // commit window: [10,12], reveal window: (12,14]

	commitA, revealA := sealedReveal(t, id, radon.Integer(100))
	commitB, revealB := sealedReveal(t, id, radon.Integer(100))

	require.NoError(t, p.AddCommit(id, witnessA, commitA, 11))
	require.NoError(t, p.AddCommit(id, witnessB, commitB, 12))

	// Too early: still inside the commit window.
	assert.ErrorIs(t, p.AddReveal(id, witnessA, revealA, 12), ErrWindowClosed)

	require.NoError(t, p.AddReveal(id, witnessA, revealA, 13))
	require.NoError(t, p.AddReveal(id, witnessB, revealB, 14))

	ready, err := p.ReadyForResolution(id, 15)
	require.NoError(t, err)
	assert.True(t, ready)

	tally, err := p.ComputeTally(id)
	require.NoError(t, err)
	assert.Equal(t, types.RadonInteger, tally.ConsensusValue.Kind)
	assert.Equal(t, int64(100), tally.ConsensusValue.Integer)
	assert.Len(t, tally.Outputs, 2)

	require.NoError(t, p.ApplyTally(id, tally))
	dr, _ := p.Get(id)
	assert.Equal(t, types.DRStageFinished, dr.Stage)
	assert.Equal(t, types.DRFinishTallied, dr.FinishReason)
}

func TestPoolRejectsMismatchedReveal(t *testing.T) {
	ars := reputation.NewActiveSet(4)
	witness := types.PublicKeyHash{3}
	ars.PushActivity([]types.PublicKeyHash{witness})

	p := New(Config{CommitsPeriod: 2, RevealsPeriod: 2}, ars)
	id := types.Hash{5}
	p.AddNew(id, testOutput(t))
	require.NoError(t, p.Consolidate(id, 0))

	commit, _ := sealedReveal(t, id, radon.Integer(1))
	require.NoError(t, p.AddCommit(id, witness, commit, 1))

	_, tamperedReveal := sealedReveal(t, id, radon.Integer(2))
	err := p.AddReveal(id, witness, tamperedReveal, 3)
	assert.ErrorIs(t, err, ErrCommitMismatch)
}

func TestPoolResolvesNoRevealsWithZeroCommits(t *testing.T) {
	p := New(Config{CommitsPeriod: 1, RevealsPeriod: 1}, reputation.NewActiveSet(4))
	id := types.Hash{2}
	p.AddNew(id, testOutput(t))
	require.NoError(t, p.Consolidate(id, 0))

	ready, err := p.ReadyForResolution(id, 2)
	require.NoError(t, err)
	assert.True(t, ready)

	tally, err := p.ResolveNoReveals(id)
	require.NoError(t, err)
	assert.Empty(t, tally.Outputs)

	dr, _ := p.Get(id)
	assert.Equal(t, types.DRStageFinished, dr.Stage)
	assert.Equal(t, types.DRFinishNoReveals, dr.FinishReason)
}

func TestPoolFlushAndLoadRoundTrip(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	p := New(Config{CommitsPeriod: 2, RevealsPeriod: 2}, reputation.NewActiveSet(4))
	id := types.Hash{4}
	p.AddNew(id, testOutput(t))
	require.NoError(t, p.Consolidate(id, 7))
	require.NoError(t, p.Flush(store))

	reloaded := New(Config{CommitsPeriod: 2, RevealsPeriod: 2}, reputation.NewActiveSet(4))
	require.NoError(t, reloaded.Load(store))

	dr, ok := reloaded.Get(id)
	require.True(t, ok)
	assert.Equal(t, types.DRStagePending, dr.Stage)
	assert.Equal(t, uint32(7), dr.Epoch)
}
