package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/witmesh/witnode/pkg/types"
)

func TestActiveSetMembershipExpires(t *testing.T) {
	as := NewActiveSet(2)
	a := types.PublicKeyHash{1}
	b := types.PublicKeyHash{2}
	c := types.PublicKeyHash{3}

	as.PushActivity([]types.PublicKeyHash{a})
	assert.True(t, as.Contains(a))

	as.PushActivity([]types.PublicKeyHash{b})
	as.PushActivity([]types.PublicKeyHash{c}) // evicts a's window

	assert.False(t, as.Contains(a))
	assert.True(t, as.Contains(b))
	assert.True(t, as.Contains(c))
}

func TestActiveSetReactivationPreventsEviction(t *testing.T) {
	as := NewActiveSet(2)
	a := types.PublicKeyHash{1}

	as.PushActivity([]types.PublicKeyHash{a})
	as.PushActivity([]types.PublicKeyHash{a}) // a active in both windows
	as.PushActivity([]types.PublicKeyHash{})  // evicts the oldest window, a still in the newer one

	assert.True(t, as.Contains(a))
}

func TestTotalReputationSetIssueAndDemurrage(t *testing.T) {
	trs := NewTotalReputationSet()
	id := types.PublicKeyHash{9}

	trs.Issue(id, 1000)
	assert.Equal(t, uint64(1000), trs.Score(id))

	trs.ApplyDemurrage(1, 10) // decay 10%
	assert.Equal(t, uint64(900), trs.Score(id))
}

func TestTotalReputationSetShare(t *testing.T) {
	trs := NewTotalReputationSet()
	a := types.PublicKeyHash{1}
	b := types.PublicKeyHash{2}

	trs.Issue(a, 300)
	trs.Issue(b, 700)

	assert.InDelta(t, 0.3, trs.Share(a), 0.0001)
	assert.InDelta(t, 0.7, trs.Share(b), 0.0001)
}
