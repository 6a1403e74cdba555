package peer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddToNewThenEligible(t *testing.T) {
	b := NewBook(12345, "127.0.0.1:21337")
	b.AddToNew([]string{"10.0.0.1:21337", "10.0.0.2:21337"}, "10.0.0.254:21337")

	entries := b.GetAllFromNew()
	require.Len(t, entries, 2)

	assert.True(t, b.Eligible("10.0.0.1:21337"))
	assert.False(t, b.Eligible("127.0.0.1:21337")) // local address excluded
}

func TestBucketIndexIsDeterministic(t *testing.T) {
	b1 := NewBook(999, "")
	b2 := NewBook(999, "")

	idx1 := b1.newBucketIndex("10.1.2.3:21337", "10.9.9.9:21337")
	idx2 := b2.newBucketIndex("10.1.2.3:21337", "10.9.9.9:21337")
	assert.Equal(t, idx1, idx2)

	idx3 := b1.triedBucketIndex("10.1.2.3:21337")
	idx4 := b2.triedBucketIndex("10.1.2.3:21337")
	assert.Equal(t, idx3, idx4)
}

func TestPromoteToTriedRemovesFromNew(t *testing.T) {
	b := NewBook(1, "")
	b.AddToNew([]string{"10.0.0.5:21337"}, "10.0.0.5:21337")
	b.AddToTried("10.0.0.5:21337")

	assert.Empty(t, b.GetAllFromNew())
	assert.Len(t, b.GetAllFromTried(), 1)
}

func TestRemoveFromTriedWithIceMakesIneligible(t *testing.T) {
	b := NewBook(1, "")
	b.AddToTried("10.0.0.6:21337")
	b.RemoveFromTried("10.0.0.6:21337", true)

	assert.False(t, b.Eligible("10.0.0.6:21337"))
	assert.Empty(t, b.GetAllFromTried())
}

func TestGetRandomPeersSamplesUnion(t *testing.T) {
	b := NewBook(1, "")
	b.AddToNew([]string{"10.0.0.1:21337", "10.0.0.2:21337"}, "10.0.0.1:21337")
	b.AddToTried("10.0.0.3:21337")

	peers := b.GetRandomPeers(2)
	assert.Len(t, peers, 2)
}

func TestOutboundActiveMakesIneligible(t *testing.T) {
	b := NewBook(1, "")
	b.AddToNew([]string{"10.0.0.7:21337"}, "10.0.0.7:21337")
	b.MarkOutboundActive("10.0.0.7:21337")

	assert.False(t, b.Eligible("10.0.0.7:21337"))

	b.MarkOutboundInactive("10.0.0.7:21337")
	assert.True(t, b.Eligible("10.0.0.7:21337"))
}
