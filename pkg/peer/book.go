// Package peer implements the Bitcoin-style tried/new address book: two
// deterministically-bucketed arrays of candidate peers, an ice-list
// quarantine, and the eligibility check the session manager's bootstrap
// loop uses to pick outbound connection targets.
package peer

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/witmesh/witnode/pkg/logging"
	"github.com/witmesh/witnode/pkg/metrics"
	"github.com/witmesh/witnode/pkg/types"
)

const (
	NewBuckets      = 1024
	TriedBuckets    = 256
	SlotsPerBucket  = 64
	DefaultIcePeriod = 24 * time.Hour
)

// entry is an address-book slot occupant.
type entry struct {
	peer       types.PeerEntry
	icedAt     time.Time
	isIced     bool
}

// Book is the address book: new bucket array, tried bucket array, and
// an ice list of recently-failed addresses under quarantine.
type Book struct {
	mu sync.Mutex

	secretKey uint64
	icePeriod time.Duration

	newSlots   [NewBuckets][SlotsPerBucket]*entry
	triedSlots [TriedBuckets][SlotsPerBucket]*entry
	iced       map[string]*entry

	activeOutbound map[string]bool
	localAddr      string

	rng *rand.Rand
	log zerolog.Logger
}

// NewBook constructs a Book keyed by a persisted secret so bucket
// placement is deterministic and restart-safe.
func NewBook(secretKey uint64, localAddr string) *Book {
	return &Book{
		secretKey:      secretKey,
		icePeriod:      DefaultIcePeriod,
		iced:           make(map[string]*entry),
		activeOutbound: make(map[string]bool),
		localAddr:      localAddr,
		rng:            rand.New(rand.NewSource(int64(secretKey))),
		log:            logging.WithComponent("peer"),
	}
}

func hashToUint64(parts ...[]byte) uint64 {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

func u64bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// group returns the /16-equivalent grouping of an address, used so two
// addresses sharing a network neighborhood land in nearby buckets.
func group(addr string) string {
	host := addr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		host = addr[:idx]
	}
	parts := strings.Split(host, ".")
	if len(parts) == 4 {
		return parts[0] + "." + parts[1]
	}
	return host
}

// newBucketIndex computes the new-bucket index per spec: hash(sk ||
// src_group || addr_group || host_id) mod 1024.
func (b *Book) newBucketIndex(addr, src string) int {
	h := hashToUint64(u64bytes(b.secretKey), []byte(group(src)), []byte(group(addr)), []byte(addr))
	return int(h % NewBuckets)
}

// triedBucketIndex computes the tried-bucket index: hash(sk || ip ||
// group || host_id) mod 256.
func (b *Book) triedBucketIndex(addr string) int {
	h := hashToUint64(u64bytes(b.secretKey), []byte(addr), []byte(group(addr)), []byte(addr))
	return int(h % TriedBuckets)
}

func (b *Book) slotIndex(bucket int, addr string) int {
	h := hashToUint64(u64bytes(b.secretKey), u64bytes(uint64(bucket)), []byte(addr))
	return int(h % SlotsPerBucket)
}

// AddToNew inserts addrs heard of via src into the new bucket array.
// An occupied slot is evicted using the older entry's LastSeen, a
// deterministic (restart-safe) eviction rule.
func (b *Book) AddToNew(addrs []string, src string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for _, addr := range addrs {
		if addr == b.localAddr {
			continue
		}
		if _, iced := b.iced[addr]; iced {
			continue
		}
		bucket := b.newBucketIndex(addr, src)
		slot := b.slotIndex(bucket, addr)

		existing := b.newSlots[bucket][slot]
		if existing != nil && existing.peer.Address != addr && existing.peer.LastSeen.After(now.Add(-time.Hour)) {
			continue // recently-seen occupant wins
		}

		b.newSlots[bucket][slot] = &entry{peer: types.PeerEntry{
			Address:    addr,
			LastSeen:   now,
			Bucket:     bucket,
			BucketSlot: slot,
		}}
	}
	b.updateMetrics()
}

// AddToTried promotes an address to the tried bucket array, typically
// called on successful handshake consolidation.
func (b *Book) AddToTried(addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket := b.triedBucketIndex(addr)
	slot := b.slotIndex(bucket, addr)

	b.triedSlots[bucket][slot] = &entry{peer: types.PeerEntry{
		Address:    addr,
		LastSeen:   time.Now(),
		LastTried:  time.Now(),
		Tried:      true,
		Bucket:     bucket,
		BucketSlot: slot,
	}}
	delete(b.iced, addr)
	b.removeFromNewLocked(addr)
	b.updateMetrics()
}

func (b *Book) removeFromNewLocked(addr string) {
	for i := range b.newSlots {
		for j := range b.newSlots[i] {
			if b.newSlots[i][j] != nil && b.newSlots[i][j].peer.Address == addr {
				b.newSlots[i][j] = nil
			}
		}
	}
}

// RemoveFromTried removes addr from the tried array; if ice is true it
// is quarantined in the ice list instead of being forgotten outright.
func (b *Book) RemoveFromTried(addr string, ice bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket := b.triedBucketIndex(addr)
	slot := b.slotIndex(bucket, addr)
	if b.triedSlots[bucket][slot] != nil && b.triedSlots[bucket][slot].peer.Address == addr {
		b.triedSlots[bucket][slot] = nil
	}

	if ice {
		b.iced[addr] = &entry{
			peer:   types.PeerEntry{Address: addr, LastSeen: time.Now()},
			icedAt: time.Now(),
			isIced: true,
		}
	}
	b.updateMetrics()
}

// expireIceLocked drops ice-listed addresses whose quarantine has elapsed.
func (b *Book) expireIceLocked() {
	now := time.Now()
	for addr, e := range b.iced {
		if now.Sub(e.icedAt) > b.icePeriod {
			delete(b.iced, addr)
		}
	}
}

// GetNewRandom samples one random entry from the new array.
func (b *Book) GetNewRandom() (types.PeerEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.randomFromLocked(&b.newSlots)
}

func (b *Book) randomFromLocked(slots *[NewBuckets][SlotsPerBucket]*entry) (types.PeerEntry, bool) {
	var all []types.PeerEntry
	for i := range slots {
		for j := range slots[i] {
			if slots[i][j] != nil {
				all = append(all, slots[i][j].peer)
			}
		}
	}
	if len(all) == 0 {
		return types.PeerEntry{}, false
	}
	return all[b.rng.Intn(len(all))], true
}

// GetAllFromNew returns every entry in the new array, for debug/inspection.
func (b *Book) GetAllFromNew() []types.PeerEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []types.PeerEntry
	for i := range b.newSlots {
		for j := range b.newSlots[i] {
			if b.newSlots[i][j] != nil {
				out = append(out, b.newSlots[i][j].peer)
			}
		}
	}
	return out
}

// GetAllFromTried returns every entry in the tried array, for debug/inspection.
func (b *Book) GetAllFromTried() []types.PeerEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []types.PeerEntry
	for i := range b.triedSlots {
		for j := range b.triedSlots[i] {
			if b.triedSlots[i][j] != nil {
				out = append(out, b.triedSlots[i][j].peer)
			}
		}
	}
	return out
}

// GetRandomPeers samples up to n distinct addresses from the union of
// new and tried.
func (b *Book) GetRandomPeers(n int) []types.PeerEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	union := append(b.collectLocked(&b.newSlots), b.collectLocked2(&b.triedSlots)...)
	b.rng.Shuffle(len(union), func(i, j int) { union[i], union[j] = union[j], union[i] })
	if n > len(union) {
		n = len(union)
	}
	return union[:n]
}

func (b *Book) collectLocked(slots *[NewBuckets][SlotsPerBucket]*entry) []types.PeerEntry {
	var out []types.PeerEntry
	for i := range slots {
		for j := range slots[i] {
			if slots[i][j] != nil {
				out = append(out, slots[i][j].peer)
			}
		}
	}
	return out
}

func (b *Book) collectLocked2(slots *[TriedBuckets][SlotsPerBucket]*entry) []types.PeerEntry {
	var out []types.PeerEntry
	for i := range slots {
		for j := range slots[i] {
			if slots[i][j] != nil {
				out = append(out, slots[i][j].peer)
			}
		}
	}
	return out
}

// MarkOutboundActive/MarkOutboundInactive track which addresses have a
// live outbound session, for the Eligible check.
func (b *Book) MarkOutboundActive(addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activeOutbound[addr] = true
}

func (b *Book) MarkOutboundInactive(addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.activeOutbound, addr)
}

// Eligible reports whether addr is a valid outbound candidate: not the
// local address, not already an active outbound session, and not iced.
func (b *Book) Eligible(addr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireIceLocked()

	if addr == b.localAddr {
		return false
	}
	if b.activeOutbound[addr] {
		return false
	}
	if _, iced := b.iced[addr]; iced {
		return false
	}
	return true
}

func (b *Book) updateMetrics() {
	newCount := len(b.collectLocked(&b.newSlots))
	triedCount := len(b.collectLocked2(&b.triedSlots))
	metrics.PeersTotal.WithLabelValues("new").Set(float64(newCount))
	metrics.PeersTotal.WithLabelValues("tried").Set(float64(triedCount))
	metrics.PeersTotal.WithLabelValues("ice").Set(float64(len(b.iced)))
}
