package drpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/witmesh/witnode/pkg/crypto"
	"github.com/witmesh/witnode/pkg/logging"
	"github.com/witmesh/witnode/pkg/metrics"
	"github.com/witmesh/witnode/pkg/radon"
	"github.com/witmesh/witnode/pkg/reputation"
	"github.com/witmesh/witnode/pkg/types"
)

var (
	ErrUnknownRequest   = errors.New("drpool: unknown data request")
	ErrNotPending       = errors.New("drpool: data request is not pending")
	ErrWindowClosed     = errors.New("drpool: outside the current commit/reveal window")
	ErrDuplicateCommit  = errors.New("drpool: witness already committed")
	ErrNoMatchingCommit = errors.New("drpool: no commit on file for this witness")
	ErrDuplicateReveal  = errors.New("drpool: witness already revealed")
	ErrCommitMismatch   = errors.New("drpool: reveal does not match the sealed commitment")
	ErrNotEligible      = errors.New("drpool: witness is not a member of the active reputation set")
)

// Config holds the pool's epoch-denominated window lengths, taken
// verbatim from node configuration.
type Config struct {
	CommitsPeriod uint32 // epochs
	RevealsPeriod uint32 // epochs
}

// Pool tracks every data request known to the node through its
// commit/reveal/tally lifecycle. It does not itself write transactions
// to the chain; the chain manager consults it to validate incoming
// commit/reveal/tally transactions and to decide when a request is
// ready for a synthetic NoReveals finish.
type Pool struct {
	mu  sync.RWMutex
	cfg Config
	ars *reputation.ActiveSet

	requests map[types.Hash]*types.DataRequestState

	log zerolog.Logger
}

// New constructs an empty Pool. ars is consulted to enforce the
// invariant that only active reputation set members may commit or
// reveal.
func New(cfg Config, ars *reputation.ActiveSet) *Pool {
	return &Pool{
		cfg:      cfg,
		ars:      ars,
		requests: make(map[types.Hash]*types.DataRequestState),
		log:      logging.WithComponent("drpool"),
	}
}

// AddNew registers a data request the node has seen (locally authored
// or discovered in a candidate block) but that has not yet been
// included in a consolidated block.
func (p *Pool) AddNew(id types.Hash, output types.DataRequestOutput) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.requests[id]; exists {
		return
	}
	p.requests[id] = &types.DataRequestState{
		ID:      id,
		Output:  output,
		Stage:   types.DRStageNew,
		Commits: make(map[types.PublicKeyHash]types.CommitTransactionBody),
		Reveals: make(map[types.PublicKeyHash]types.RevealTransactionBody),
	}
	p.updateMetrics()
}

// Consolidate transitions a request from New to Pending once the
// Chain Manager reports that the block carrying it has become the
// chain tip. inclusionEpoch anchors the commit/reveal deadlines.
func (p *Pool) Consolidate(id types.Hash, inclusionEpoch uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	dr, ok := p.requests[id]
	if !ok {
		return ErrUnknownRequest
	}
	if dr.Stage != types.DRStageNew {
		// A DR never regresses; re-consolidating a Pending or Finished
		// request is a no-op rather than an error, since block reorgs
		// can replay the notification.
		return nil
	}
	dr.Stage = types.DRStagePending
	dr.Epoch = inclusionEpoch
	p.log.Debug().Str("id", id.String()).Uint32("epoch", inclusionEpoch).Msg("data request consolidated, accepting commits")
	p.updateMetrics()
	return nil
}

// commitDeadline returns the last epoch (inclusive) during which
// commits are accepted for dr.
func (p *Pool) commitDeadline(dr *types.DataRequestState) uint32 {
	return dr.Epoch + p.cfg.CommitsPeriod
}

// revealDeadline returns the last epoch (inclusive) during which
// reveals are accepted for dr.
func (p *Pool) revealDeadline(dr *types.DataRequestState) uint32 {
	return p.commitDeadline(dr) + p.cfg.RevealsPeriod
}

// CommitDeadline returns the last epoch (inclusive) during which
// commits are accepted for a request that entered Pending at dr.Epoch.
func (p *Pool) CommitDeadline(dr types.DataRequestState) uint32 {
	return p.commitDeadline(&dr)
}

// RevealDeadline returns the last epoch (inclusive) during which
// reveals are accepted for a request that entered Pending at dr.Epoch.
func (p *Pool) RevealDeadline(dr types.DataRequestState) uint32 {
	return p.revealDeadline(&dr)
}

// Get returns the current state of a tracked data request.
func (p *Pool) Get(id types.Hash) (types.DataRequestState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	dr, ok := p.requests[id]
	if !ok {
		return types.DataRequestState{}, false
	}
	return *dr, true
}

// PendingIDs lists every request currently in the Pending stage, for
// the node runtime's epoch-tick loop to check for commit/reveal
// deadlines without the caller tracking request ids itself.
func (p *Pool) PendingIDs() []types.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var ids []types.Hash
	for id, dr := range p.requests {
		if dr.Stage == types.DRStagePending {
			ids = append(ids, id)
		}
	}
	return ids
}

// AddCommit records a witness's sealed commitment against a Pending
// data request, enforcing the commit window and ARS-membership
// invariant.
func (p *Pool) AddCommit(id types.Hash, pkh types.PublicKeyHash, body types.CommitTransactionBody, currentEpoch uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	dr, ok := p.requests[id]
	if !ok {
		return ErrUnknownRequest
	}
	if dr.Stage != types.DRStagePending {
		return ErrNotPending
	}
	if currentEpoch > p.commitDeadline(dr) {
		return ErrWindowClosed
	}
	if !p.ars.Contains(pkh) {
		return ErrNotEligible
	}
	if _, exists := dr.Commits[pkh]; exists {
		return ErrDuplicateCommit
	}

	dr.Commits[pkh] = body
	metrics.DataRequestCommitsTotal.Inc()
	return nil
}

// AddReveal records a witness's disclosed value against a prior
// commitment, verifying it hashes to the sealed commitment before
// accepting it.
func (p *Pool) AddReveal(id types.Hash, pkh types.PublicKeyHash, body types.RevealTransactionBody, currentEpoch uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	dr, ok := p.requests[id]
	if !ok {
		return ErrUnknownRequest
	}
	if dr.Stage != types.DRStagePending {
		return ErrNotPending
	}
	if currentEpoch <= p.commitDeadline(dr) || currentEpoch > p.revealDeadline(dr) {
		return ErrWindowClosed
	}
	if !p.ars.Contains(pkh) {
		return ErrNotEligible
	}
	commit, ok := dr.Commits[pkh]
	if !ok {
		return ErrNoMatchingCommit
	}
	if _, exists := dr.Reveals[pkh]; exists {
		return ErrDuplicateReveal
	}
	if !matchesCommitment(commit.Commitment, body) {
		return ErrCommitMismatch
	}

	dr.Reveals[pkh] = body
	metrics.DataRequestRevealsTotal.Inc()
	return nil
}

// matchesCommitment verifies that hash(reveal_cbor || nonce) equals
// the sealed commitment, the binding that makes a commit-then-reveal
// scheme resistant to copying another witness's answer.
func matchesCommitment(commitment types.Hash, body types.RevealTransactionBody) bool {
	encoded, err := radon.Marshal(radon.Value(body.Reveal))
	if err != nil {
		return false
	}
	preimage := append(append([]byte(nil), encoded...), body.Nonce...)
	return crypto.HashSHA256(preimage) == commitment
}

// ReadyForResolution reports whether dr's reveal window has closed, so
// either a NoReveals finish or a tally computation can proceed.
func (p *Pool) ReadyForResolution(id types.Hash, currentEpoch uint32) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dr, ok := p.requests[id]
	if !ok {
		return false, ErrUnknownRequest
	}
	if dr.Stage != types.DRStagePending {
		return false, nil
	}
	if len(dr.Commits) == 0 {
		return currentEpoch > p.commitDeadline(dr), nil
	}
	return currentEpoch > p.revealDeadline(dr), nil
}

// ResolveNoReveals finishes a Pending request with zero commits as a
// synthetic NoReveals tally: no collateral changes hands because none
// was ever locked.
func (p *Pool) ResolveNoReveals(id types.Hash) (types.TallyTransactionBody, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dr, ok := p.requests[id]
	if !ok {
		return types.TallyTransactionBody{}, ErrUnknownRequest
	}
	if dr.Stage != types.DRStagePending {
		return types.TallyTransactionBody{}, ErrNotPending
	}
	if len(dr.Commits) != 0 {
		return types.TallyTransactionBody{}, fmt.Errorf("drpool: %s has commits, not eligible for NoReveals", id)
	}

	tally := types.TallyTransactionBody{
		DataRequestID:  id,
		ConsensusValue: types.RadonValue{Kind: types.RadonError, Error: &types.RadonErrorValue{Kind: types.RadonErrNoReveals}},
	}
	p.finishLocked(dr, types.DRFinishNoReveals, &tally)
	return tally, nil
}

// ComputeTally runs the RADON tally over every gathered reveal and
// builds the reward/collateral distribution a miner would attach to
// the resulting Tally transaction. It does not itself transition the
// request to Finished: that happens only once the Tally transaction
// is actually included in a block, via ApplyTally.
func (p *Pool) ComputeTally(id types.Hash) (types.TallyTransactionBody, error) {
	p.mu.RLock()
	dr, ok := p.requests[id]
	if !ok {
		p.mu.RUnlock()
		return types.TallyTransactionBody{}, ErrUnknownRequest
	}
	if dr.Stage != types.DRStagePending {
		p.mu.RUnlock()
		return types.TallyTransactionBody{}, ErrNotPending
	}
	rad, err := DecodeRADRequest(dr.Output.DataRequest)
	if err != nil {
		p.mu.RUnlock()
		return types.TallyTransactionBody{}, fmt.Errorf("decode rad request: %w", err)
	}

	pkhs := make([]types.PublicKeyHash, 0, len(dr.Reveals))
	values := make([]radon.Value, 0, len(dr.Reveals))
	for pkh, reveal := range dr.Reveals {
		pkhs = append(pkhs, pkh)
		values = append(values, radon.Value(reveal.Reveal))
	}
	output := dr.Output
	p.mu.RUnlock()

	report := radon.RunTally(values, rad.TallyFilter, rad.TallyReducer)
	outcome := "value"
	if radon.IsError(radon.Value(report.Result)) {
		outcome = "error"
	}
	metrics.RadonExecutionsTotal.WithLabelValues(string(types.RadonStageTally), outcome).Inc()

	tally := types.TallyTransactionBody{
		DataRequestID:  id,
		ConsensusValue: types.RadonValue(report.Result),
		LiarFlags:      report.LiarFlags,
		Outputs:        distributeRewards(output, pkhs, report.LiarFlags),
	}
	return tally, nil
}

// ApplyTally is called by the Chain Manager once a block carrying the
// Tally transaction for id has been consolidated, finishing the
// request.
func (p *Pool) ApplyTally(id types.Hash, tally types.TallyTransactionBody) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	dr, ok := p.requests[id]
	if !ok {
		return ErrUnknownRequest
	}
	if dr.Stage != types.DRStagePending {
		return ErrNotPending
	}
	p.finishLocked(dr, types.DRFinishTallied, &tally)
	return nil
}

func (p *Pool) finishLocked(dr *types.DataRequestState, reason types.DataRequestFinishReason, tally *types.TallyTransactionBody) {
	dr.Stage = types.DRStageFinished
	dr.FinishReason = reason
	dr.Tally = tally
	p.log.Debug().Str("id", dr.ID.String()).Str("reason", string(reason)).Msg("data request finished")
	metrics.DataRequestsFinishedTotal.WithLabelValues(string(reason)).Inc()
	p.updateMetrics()
}

func (p *Pool) updateMetrics() {
	counts := map[types.DataRequestStage]int{}
	for _, dr := range p.requests {
		counts[dr.Stage]++
	}
	metrics.DataRequestsTotal.WithLabelValues(string(types.DRStageNew)).Set(float64(counts[types.DRStageNew]))
	metrics.DataRequestsTotal.WithLabelValues(string(types.DRStagePending)).Set(float64(counts[types.DRStagePending]))
	metrics.DataRequestsTotal.WithLabelValues(string(types.DRStageFinished)).Set(float64(counts[types.DRStageFinished]))
}
