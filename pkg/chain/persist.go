package chain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/witmesh/witnode/pkg/storage"
	"github.com/witmesh/witnode/pkg/types"
)

// Load restores the UTXO set and chain tip from store, used once at
// startup before any new blocks are processed.
func (m *Manager) Load(store storage.Store) error {
	it, err := store.PrefixIterator(storage.KeyspaceUTXO, "", false)
	if err != nil {
		return fmt.Errorf("open utxo iterator: %w", err)
	}
	defer it.Close()

	utxo := types.NewUTXOSet()
	for it.Next() {
		pointer, err := parseOutputPointer(it.Key())
		if err != nil {
			return fmt.Errorf("parse utxo key %s: %w", it.Key(), err)
		}
		var out types.ValueTransferOutput
		if err := json.Unmarshal(it.Value(), &out); err != nil {
			return &storage.EncodingError{Keyspace: storage.KeyspaceUTXO, Key: it.Key(), Err: err}
		}
		utxo.Insert(pointer, out)
	}

	tipBytes, err := store.Get(storage.KeyspaceChainInfo, "tip")
	if err != nil {
		return fmt.Errorf("read chain tip: %w", err)
	}

	m.mu.Lock()
	m.utxo = utxo
	if len(tipBytes) == 32 {
		var h types.Hash
		copy(h[:], tipBytes)
		m.tip = types.CheckpointBeacon{HashPrevBlock: h}
	}
	m.mu.Unlock()
	return nil
}

// parseOutputPointer reverses OutputPointer.String()'s "<hash>:<index>" form.
func parseOutputPointer(key string) (types.OutputPointer, error) {
	sep := strings.LastIndex(key, ":")
	if sep < 0 {
		return types.OutputPointer{}, fmt.Errorf("malformed output pointer key %q", key)
	}
	hexHash, indexStr := key[:sep], key[sep+1:]

	index, err := strconv.ParseUint(indexStr, 10, 32)
	if err != nil {
		return types.OutputPointer{}, fmt.Errorf("malformed output index %q: %w", indexStr, err)
	}

	var h types.Hash
	if n, err := hex.Decode(h[:], []byte(hexHash)); err != nil || n != len(h) {
		return types.OutputPointer{}, fmt.Errorf("malformed output pointer hash %q", hexHash)
	}
	return types.OutputPointer{TxHash: h, OutputIndex: uint32(index)}, nil
}
