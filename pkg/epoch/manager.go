// Package epoch implements the deterministic wall-clock-to-epoch
// mapping every other mailbox component schedules against: mining
// eligibility windows, data-request deadlines, and superblock voting
// rounds are all driven by epoch-tick notifications from this manager.
package epoch

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/witmesh/witnode/pkg/logging"
	"github.com/witmesh/witnode/pkg/metrics"
)

// Epoch is an ordered checkpoint number.
type Epoch uint32

// Notification is delivered to a subscriber when its epoch fires.
type Notification struct {
	Epoch     Epoch
	Timestamp time.Time
}

type subscription struct {
	epoch    Epoch // only meaningful for one-shot subscriptions
	oneShot  bool
	receiver chan<- Notification
}

// Manager maps wall-clock time to epoch numbers and delivers
// notifications to subscribers as epoch boundaries pass.
type Manager struct {
	mu sync.Mutex

	zeroTimestamp int64 // checkpoint_zero_timestamp, UNIX seconds
	period        int64 // checkpoints_period, seconds

	lastCheckedEpoch Epoch
	started          bool
	firstTickDone    bool

	oneShot   map[Epoch][]chan<- Notification
	persistent []chan<- Notification

	stopCh chan struct{}
	now    func() time.Time

	log zerolog.Logger
}

// Config seeds a Manager's two constants.
type Config struct {
	CheckpointZeroTimestamp int64
	CheckpointsPeriod       int64
}

// NewManager constructs a Manager. now defaults to time.Now; tests
// inject a controllable clock.
func NewManager(cfg Config, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		zeroTimestamp: cfg.CheckpointZeroTimestamp,
		period:        cfg.CheckpointsPeriod,
		oneShot:       make(map[Epoch][]chan<- Notification),
		stopCh:        make(chan struct{}),
		now:           now,
		log:           logging.WithComponent("epoch"),
	}
}

// ErrCheckpointZeroInTheFuture is returned when the chain has not
// started yet (common on a freshly configured testnet).
var ErrCheckpointZeroInTheFuture = fmt.Errorf("checkpoint zero timestamp is in the future")

// CurrentEpoch computes the epoch containing the current wall-clock time.
func (m *Manager) CurrentEpoch() (Epoch, error) {
	return m.EpochAt(m.now())
}

// EpochAt computes the epoch containing an explicit timestamp.
func (m *Manager) EpochAt(ts time.Time) (Epoch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epochAtLocked(ts)
}

func (m *Manager) epochAtLocked(ts time.Time) (Epoch, error) {
	if m.period <= 0 {
		return 0, fmt.Errorf("unknown constants: checkpoints_period not set")
	}
	unix := ts.Unix()
	if unix < m.zeroTimestamp {
		return 0, ErrCheckpointZeroInTheFuture
	}
	return Epoch((unix - m.zeroTimestamp) / m.period), nil
}

// EpochTimestamp returns the wall-clock instant an epoch begins.
func (m *Manager) EpochTimestamp(e Epoch) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	product := int64(e) * m.period
	if m.period != 0 && product/m.period != int64(e) {
		return time.Time{}, fmt.Errorf("overflow computing epoch timestamp")
	}
	sum := product + m.zeroTimestamp
	if (product > 0 && sum < product) || (product < 0 && sum > product) {
		return time.Time{}, fmt.Errorf("overflow computing epoch timestamp")
	}
	return time.Unix(sum, 0), nil
}

// SubscribeEpoch requests a one-shot notification at the start of
// epoch e. The channel must be buffered or actively drained; delivery
// never blocks the manager's tick loop.
func (m *Manager) SubscribeEpoch(e Epoch, receiver chan<- Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oneShot[e] = append(m.oneShot[e], receiver)
	metrics.EpochSubscribersTotal.Inc()
}

// SubscribeAll requests a notification at every epoch boundary.
func (m *Manager) SubscribeAll(receiver chan<- Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistent = append(m.persistent, receiver)
	metrics.EpochSubscribersTotal.Inc()
}

// SetPeriod updates checkpoints_period at runtime. last_checked_epoch
// is realigned against the new period applied to the timestamp the
// old period implied for that epoch, so neither a skipped nor a
// doubly-delivered epoch can straddle the change.
func (m *Manager) SetPeriod(newPeriod int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newPeriod <= 0 {
		return fmt.Errorf("checkpoints_period must be positive")
	}
	if !m.firstTickDone {
		m.period = newPeriod
		return nil
	}

	oldImpliedTimestamp := int64(m.lastCheckedEpoch)*m.period + m.zeroTimestamp
	m.period = newPeriod
	realigned, err := m.epochAtLocked(time.Unix(oldImpliedTimestamp, 0))
	if err != nil {
		return err
	}
	m.lastCheckedEpoch = realigned
	m.log.Debug().
		Int64("new_period", newPeriod).
		Uint32("realigned_last_checked_epoch", uint32(realigned)).
		Msg("checkpoints period updated")
	return nil
}

// Run drives the tick loop until the returned stop function is called.
// Each tick compares the current epoch against last_checked_epoch and
// delivers exactly one notification per epoch that has elapsed since
// the last check — covering both the common one-epoch-per-tick case
// and catch-up after a pause.
func (m *Manager) Run() (stop func()) {
	m.mu.Lock()
	m.started = true
	period := m.period
	m.mu.Unlock()

	interval := time.Second
	if period > 0 && period < 60 {
		interval = time.Duration(period) * time.Second / 4
		if interval < 100*time.Millisecond {
			interval = 100 * time.Millisecond
		}
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.tick()
			case <-m.stopCh:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(m.stopCh) })
	}
}

func (m *Manager) tick() {
	current, err := m.CurrentEpoch()
	if err != nil {
		m.log.Debug().Err(err).Msg("epoch manager idle")
		return
	}
	metrics.CurrentEpoch.Set(float64(current))

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.firstTickDone {
		m.firstTickDone = true
		m.deliver(current)
		m.lastCheckedEpoch = current + 1
		return
	}

	for e := m.lastCheckedEpoch; e <= current; e++ {
		m.deliver(e)
	}
	if current >= m.lastCheckedEpoch {
		m.lastCheckedEpoch = current + 1
	}
}

func (m *Manager) deliver(e Epoch) {
	notif := Notification{Epoch: e, Timestamp: m.now()}

	if receivers, ok := m.oneShot[e]; ok {
		for _, r := range receivers {
			select {
			case r <- notif:
			default:
			}
		}
		delete(m.oneShot, e)
		metrics.EpochSubscribersTotal.Sub(float64(len(receivers)))
	}

	for _, r := range m.persistent {
		select {
		case r <- notif:
		default:
		}
	}
}
