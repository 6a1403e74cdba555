package chain

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/witmesh/witnode/pkg/crypto"
	"github.com/witmesh/witnode/pkg/types"
)

// EncodeTransaction produces the canonical byte representation a
// transaction's hash and signatures are computed over. gob is used
// rather than a bespoke wire format since the wire codec itself is an
// opaque, pluggable boundary (pkg/session.FrameCodec already carries
// the same choice for session frames).
func EncodeTransaction(t types.Transaction) []byte {
	var buf bytes.Buffer
	// gob never fails encoding a plain struct literal of exported
	// fields; an error here would indicate a type this package doesn't
	// actually use, so it is not worth threading through every caller.
	if err := gob.NewEncoder(&buf).Encode(t); err != nil {
		panic(fmt.Sprintf("chain: encode transaction: %v", err))
	}
	return buf.Bytes()
}

// HashTransaction computes a transaction's identifying hash.
func HashTransaction(t types.Transaction) types.Hash {
	return t.HashWith(crypto.HashSHA256, EncodeTransaction)
}

// MerkleRoot computes the Bitcoin-style binary merkle root over a
// block's transaction hashes: leaves are transaction hashes, each
// level pairs adjacent hashes (duplicating the last one when the
// level has an odd count) until a single root remains.
func MerkleRoot(txns []types.Transaction) types.Hash {
	if len(txns) == 0 {
		return types.Hash{}
	}

	level := make([]types.Hash, len(txns))
	for i, t := range txns {
		level[i] = HashTransaction(t)
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			pair := append(append([]byte(nil), level[2*i][:]...), level[2*i+1][:]...)
			next[i] = crypto.HashSHA256(pair)
		}
		level = next
	}
	return level[0]
}
