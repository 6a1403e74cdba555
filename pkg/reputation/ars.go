// Package reputation implements the Active Reputation Set (ARS) the
// chain manager and data-request pool consult to decide which public
// key hashes are currently eligible to mine, commit, or reveal: a
// circular activity window of recent participants plus a decaying
// reputation score per identity.
package reputation

import (
	"sync"

	"github.com/witmesh/witnode/pkg/types"
)

// ActiveSet tracks identities seen active within the last
// bufferCapacity windows (typically epochs), in a circular FIFO, so
// membership automatically expires participants who go quiet.
type ActiveSet struct {
	mu sync.RWMutex

	capacity int
	windows  []map[types.PublicKeyHash]struct{}
	cursor   int
	filled   int

	activity map[types.PublicKeyHash]uint16
}

// NewActiveSet constructs an ActiveSet with the given activity-window
// buffer capacity.
func NewActiveSet(capacity int) *ActiveSet {
	return &ActiveSet{
		capacity: capacity,
		windows:  make([]map[types.PublicKeyHash]struct{}, capacity),
		activity: make(map[types.PublicKeyHash]uint16),
	}
}

// PushActivity records a new window of active identities, evicting the
// oldest window's contribution once the buffer is full (the circular
// FIFO behavior).
func (a *ActiveSet) PushActivity(identities []types.PublicKeyHash) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.filled == a.capacity {
		evicted := a.windows[a.cursor]
		for id := range evicted {
			a.decrement(id)
		}
	} else {
		a.filled++
	}

	window := make(map[types.PublicKeyHash]struct{}, len(identities))
	for _, id := range identities {
		window[id] = struct{}{}
		a.increment(id)
	}
	a.windows[a.cursor] = window
	a.cursor = (a.cursor + 1) % a.capacity
}

func (a *ActiveSet) increment(id types.PublicKeyHash) {
	a.activity[id]++
}

func (a *ActiveSet) decrement(id types.PublicKeyHash) {
	a.activity[id]--
	if a.activity[id] == 0 {
		delete(a.activity, id)
	}
}

// Contains reports whether id is currently an active member.
func (a *ActiveSet) Contains(id types.PublicKeyHash) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.activity[id]
	return ok
}

// ActiveIdentities returns every currently active identity.
func (a *ActiveSet) ActiveIdentities() []types.PublicKeyHash {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]types.PublicKeyHash, 0, len(a.activity))
	for id := range a.activity {
		out = append(out, id)
	}
	return out
}

// BufferSize returns the number of windows currently held.
func (a *ActiveSet) BufferSize() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.filled
}

// BufferCapacity returns the configured window capacity.
func (a *ActiveSet) BufferCapacity() int {
	return a.capacity
}
