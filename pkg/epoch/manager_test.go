package epoch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCurrentEpochComputesFromZero(t *testing.T) {
	zero := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(Config{CheckpointZeroTimestamp: zero.Unix(), CheckpointsPeriod: 45}, fixedClock(zero.Add(200*time.Second)))

	e, err := m.CurrentEpoch()
	require.NoError(t, err)
	assert.Equal(t, Epoch(4), e) // 200/45 = 4
}

func TestCurrentEpochZeroInFuture(t *testing.T) {
	zero := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(Config{CheckpointZeroTimestamp: zero.Unix(), CheckpointsPeriod: 45}, fixedClock(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))

	_, err := m.CurrentEpoch()
	assert.ErrorIs(t, err, ErrCheckpointZeroInTheFuture)
}

func TestEpochTimestampRoundTrip(t *testing.T) {
	zero := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(Config{CheckpointZeroTimestamp: zero.Unix(), CheckpointsPeriod: 45}, fixedClock(zero))

	ts, err := m.EpochTimestamp(10)
	require.NoError(t, err)
	assert.Equal(t, zero.Add(450*time.Second), ts)

	e, err := m.EpochAt(ts)
	require.NoError(t, err)
	assert.Equal(t, Epoch(10), e)
}

func TestSetPeriodRealignsLastCheckedEpoch(t *testing.T) {
	zero := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(Config{CheckpointZeroTimestamp: zero.Unix(), CheckpointsPeriod: 90}, fixedClock(zero.Add(450*time.Second)))

	m.tick() // delivers epoch 5 (450/90), lastCheckedEpoch becomes 6

	require.Equal(t, Epoch(6), m.lastCheckedEpoch)

	err := m.SetPeriod(45)
	require.NoError(t, err)

	// old implied timestamp for epoch 6 under period=90 is zero+540s;
	// realigned under period=45 that is epoch 12.
	assert.Equal(t, Epoch(12), m.lastCheckedEpoch)
}

func TestSubscribeEpochOneShotFiresOnce(t *testing.T) {
	zero := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(Config{CheckpointZeroTimestamp: zero.Unix(), CheckpointsPeriod: 1}, fixedClock(zero))

	ch := make(chan Notification, 10)
	m.SubscribeEpoch(0, ch)

	m.tick()
	m.tick()

	require.Len(t, ch, 1)
}

func TestSubscribeAllFiresEveryEpoch(t *testing.T) {
	zero := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	clockTime := zero
	m := NewManager(Config{CheckpointZeroTimestamp: zero.Unix(), CheckpointsPeriod: 1}, func() time.Time { return clockTime })

	ch := make(chan Notification, 10)
	m.SubscribeAll(ch)

	m.tick()
	clockTime = clockTime.Add(1 * time.Second)
	m.tick()
	clockTime = clockTime.Add(1 * time.Second)
	m.tick()

	assert.Len(t, ch, 3)
}
