package drpool

import (
	"encoding/json"
	"fmt"

	"github.com/witmesh/witnode/pkg/storage"
	"github.com/witmesh/witnode/pkg/types"
)

// Flush persists every tracked data request under its own key, so a
// restarted node resumes exactly where it left off in each request's
// commit/reveal/tally lifecycle.
func (p *Pool) Flush(store storage.Store) error {
	p.mu.RLock()
	snapshot := make([]types.DataRequestState, 0, len(p.requests))
	for _, dr := range p.requests {
		snapshot = append(snapshot, *dr)
	}
	p.mu.RUnlock()

	return store.WriteBatch(func(b storage.Batch) error {
		for _, dr := range snapshot {
			data, err := json.Marshal(dr)
			if err != nil {
				return &storage.EncodingError{Keyspace: storage.KeyspaceDRPool, Key: dr.ID.String(), Err: err}
			}
			if err := b.Put(storage.KeyspaceDRPool, dr.ID.String(), data); err != nil {
				return fmt.Errorf("persist data request %s: %w", dr.ID, err)
			}
		}
		return nil
	})
}

// Load restores every persisted data request from store, replacing
// the pool's current in-memory set.
func (p *Pool) Load(store storage.Store) error {
	it, err := store.PrefixIterator(storage.KeyspaceDRPool, "", false)
	if err != nil {
		return fmt.Errorf("open data request iterator: %w", err)
	}
	defer it.Close()

	loaded := make(map[types.Hash]*types.DataRequestState)
	for it.Next() {
		var dr types.DataRequestState
		if err := json.Unmarshal(it.Value(), &dr); err != nil {
			return &storage.EncodingError{Keyspace: storage.KeyspaceDRPool, Key: it.Key(), Err: err}
		}
		if dr.Commits == nil {
			dr.Commits = make(map[types.PublicKeyHash]types.CommitTransactionBody)
		}
		if dr.Reveals == nil {
			dr.Reveals = make(map[types.PublicKeyHash]types.RevealTransactionBody)
		}
		record := dr
		loaded[dr.ID] = &record
	}

	p.mu.Lock()
	p.requests = loaded
	p.updateMetrics()
	p.mu.Unlock()
	return nil
}
