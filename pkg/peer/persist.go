package peer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/witmesh/witnode/pkg/storage"
	"github.com/witmesh/witnode/pkg/types"
)

// persistedEntry is the on-disk shape of one address-book record.
type persistedEntry struct {
	Peer   types.PeerEntry
	Tried  bool
	IsIced bool
}

// networkKey namespaces persisted address-book keys by network magic
// so testnet and mainnet books never collide in the same store.
func networkKey(magic uint32) string {
	return fmt.Sprintf("book-%d", magic)
}

// Flush serializes the entire book to storage under a network-magic
// derived key.
func (b *Book) Flush(store storage.Store, magic uint32) error {
	b.mu.Lock()
	var records []persistedEntry
	for _, e := range b.collectEntriesLocked(&b.newSlots) {
		records = append(records, persistedEntry{Peer: e.peer})
	}
	for _, e := range b.collectEntriesLocked2(&b.triedSlots) {
		records = append(records, persistedEntry{Peer: e.peer, Tried: true})
	}
	for _, e := range b.iced {
		records = append(records, persistedEntry{Peer: e.peer, IsIced: true})
	}
	b.mu.Unlock()

	data, err := json.Marshal(records)
	if err != nil {
		return &storage.EncodingError{Keyspace: storage.KeyspacePeers, Key: networkKey(magic), Err: err}
	}
	return store.Put(storage.KeyspacePeers, networkKey(magic), data)
}

// Load restores a book from storage. Bucket indices are recomputed
// from the Book's secret key rather than trusting persisted bucket
// fields — addresses are reinserted exactly as AddToNew/AddToTried
// would place them today. Reload-time collisions in the tried array
// keep the more-recently-seen entry and ice the loser, resolving the
// open question of what to do when two restored addresses land on the
// same slot after a secret-key or bucket-count change. New-array
// records are re-added through AddToNew and follow its slot rule; a
// loser there is dropped, not iced.
func (b *Book) Load(store storage.Store, magic uint32) error {
	data, err := store.Get(storage.KeyspacePeers, networkKey(magic))
	if err != nil {
		return &storage.IOError{Op: "load peer book", Err: err}
	}
	if data == nil {
		return nil
	}

	var records []persistedEntry
	if err := json.Unmarshal(data, &records); err != nil {
		return &storage.EncodingError{Keyspace: storage.KeyspacePeers, Key: networkKey(magic), Err: err}
	}

	for _, rec := range records {
		switch {
		case rec.IsIced:
			b.mu.Lock()
			b.iced[rec.Peer.Address] = &entry{peer: rec.Peer, icedAt: rec.Peer.LastSeen, isIced: true}
			b.mu.Unlock()
		case rec.Tried:
			b.reinsertTried(rec.Peer)
		default:
			b.AddToNew([]string{rec.Peer.Address}, rec.Peer.Address)
		}
	}
	return nil
}

func (b *Book) reinsertTried(p types.PeerEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket := b.triedBucketIndex(p.Address)
	slot := b.slotIndex(bucket, p.Address)

	existing := b.triedSlots[bucket][slot]
	if existing != nil && existing.peer.Address != p.Address {
		if existing.peer.LastSeen.After(p.LastSeen) {
			// existing occupant is more recent: ice the reloaded loser
			b.iced[p.Address] = &entry{peer: p, icedAt: time.Now(), isIced: true}
			return
		}
		// reloaded entry is more recent: ice the previous occupant
		b.iced[existing.peer.Address] = &entry{peer: existing.peer, icedAt: time.Now(), isIced: true}
	}

	b.triedSlots[bucket][slot] = &entry{peer: p, isIced: false}
}

func (b *Book) collectEntriesLocked(slots *[NewBuckets][SlotsPerBucket]*entry) []*entry {
	var out []*entry
	for i := range slots {
		for j := range slots[i] {
			if slots[i][j] != nil {
				out = append(out, slots[i][j])
			}
		}
	}
	return out
}

func (b *Book) collectEntriesLocked2(slots *[TriedBuckets][SlotsPerBucket]*entry) []*entry {
	var out []*entry
	for i := range slots {
		for j := range slots[i] {
			if slots[i][j] != nil {
				out = append(out, slots[i][j])
			}
		}
	}
	return out
}
