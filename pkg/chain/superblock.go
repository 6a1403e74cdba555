package chain

import (
	"sync"

	"github.com/witmesh/witnode/pkg/events"
	"github.com/witmesh/witnode/pkg/metrics"
	"github.com/witmesh/witnode/pkg/reputation"
	"github.com/witmesh/witnode/pkg/types"
)

// SuperBlockVote is a committee member's signed endorsement of the
// superblock beacon committing to the block history produced over one
// superblock_period.
type SuperBlockVote struct {
	SuperblockHash types.Hash
	Voter          types.PublicKeyHash
	Epoch          uint32
}

// SuperblockPool accumulates votes for candidate superblock hashes
// until a 2/3 reputation-weighted supermajority is reached, at which
// point the superblock is consolidated and the blocks it commits to
// can never be reorganized — the finality gadget sitting alongside
// fork-choice tip selection.
type SuperblockPool struct {
	mu sync.Mutex

	trs *reputation.TotalReputationSet

	votes       map[types.Hash]map[types.PublicKeyHash]bool
	consolidated map[types.Hash]bool
	lastFinal   types.Hash
}

// NewSuperblockPool constructs an empty SuperblockPool.
func NewSuperblockPool(trs *reputation.TotalReputationSet) *SuperblockPool {
	return &SuperblockPool{
		trs:          trs,
		votes:        make(map[types.Hash]map[types.PublicKeyHash]bool),
		consolidated: make(map[types.Hash]bool),
	}
}

// AddVote records vote and reports whether it just pushed the
// superblock over the 2/3 supermajority threshold.
func (s *SuperblockPool) AddVote(vote SuperBlockVote) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consolidated[vote.SuperblockHash] {
		return false
	}

	voters, ok := s.votes[vote.SuperblockHash]
	if !ok {
		voters = make(map[types.PublicKeyHash]bool)
		s.votes[vote.SuperblockHash] = voters
	}
	voters[vote.Voter] = true

	var weight float64
	for voter := range voters {
		weight += s.trs.Share(voter)
	}

	if weight >= 2.0/3.0 {
		s.consolidated[vote.SuperblockHash] = true
		s.lastFinal = vote.SuperblockHash
		metrics.SuperblockVotesTotal.WithLabelValues("consensus").Inc()
		return true
	}
	metrics.SuperblockVotesTotal.WithLabelValues("no_consensus").Inc()
	return false
}

// Consolidated reports whether hash has reached supermajority.
func (s *SuperblockPool) Consolidated(hash types.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consolidated[hash]
}

// LastFinal returns the most recently consolidated superblock hash.
func (s *SuperblockPool) LastFinal() types.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFinal
}

// PublishSuperblockNotify fires a SuperBlockNotify event once hash
// consolidates, carrying the finalized beacon to RPC subscribers.
func (m *Manager) PublishSuperblockNotify(beacon types.CheckpointBeacon) {
	m.broker.Publish(&events.Event{Type: events.EventSuperBlockNotify, Beacon: &beacon})
}
