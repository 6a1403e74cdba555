// Package storage provides the sorted key-value abstraction every other
// mailbox component persists through: block and UTXO records, the peer
// address book, and data-request state all share one BoltDB-backed
// Store rather than each owning a bespoke schema.
package storage

// Store is a sorted key-value store with prefix iteration and an
// optional per-keyspace merge hook, used instead of a collection of
// domain-specific CRUD interfaces so every component speaks the same
// persistence contract.
type Store interface {
	Get(keyspace, key string) ([]byte, error)
	Put(keyspace, key string, value []byte) error
	Delete(keyspace, key string) error

	// WriteBatch applies fn's operations atomically; used by the chain
	// manager to apply a block (UTXO updates, mempool eviction, chain
	// tip advance) as a single all-or-nothing transaction.
	WriteBatch(fn func(b Batch) error) error

	// PrefixIterator walks all keys in keyspace starting with prefix,
	// in forward or reverse key order.
	PrefixIterator(keyspace, prefix string, reverse bool) (Iterator, error)

	// RegisterMerge installs a merge function for a keyspace: instead
	// of Put overwriting a key outright, WriteBatch.Merge combines the
	// new value with whatever is already stored, so appenders to a
	// list-valued key avoid a read-modify-write race. No component in
	// the node registers one; the wallet-ids keyspace is created empty.
	RegisterMerge(keyspace string, fn MergeFunc)

	Close() error
}

// MergeFunc combines an existing stored value (nil if absent) with an
// incoming value, returning what should be stored.
type MergeFunc func(existing, incoming []byte) []byte

// Batch is the set of operations available inside a WriteBatch callback.
type Batch interface {
	Get(keyspace, key string) ([]byte, error)
	Put(keyspace, key string, value []byte) error
	Delete(keyspace, key string) error
	Merge(keyspace, key string, value []byte) error
}

// Iterator walks a keyspace in key order.
type Iterator interface {
	Next() bool
	Key() string
	Value() []byte
	Close() error
}

// IOError wraps a storage-layer I/O failure (disk, permissions, corrupt
// page) per the transient-I/O error category.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return "storage io: " + e.Op + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// EncodingError wraps a marshal/unmarshal failure for a stored record.
type EncodingError struct {
	Keyspace string
	Key      string
	Err      error
}

func (e *EncodingError) Error() string {
	return "storage encoding: " + e.Keyspace + "/" + e.Key + ": " + e.Err.Error()
}
func (e *EncodingError) Unwrap() error { return e.Err }

// Well-known keyspaces shared across components.
const (
	KeyspaceChainInfo = "chain-info"
	KeyspaceBlocks    = "blocks"
	KeyspaceUTXO      = "utxo"
	KeyspaceMempool   = "mempool"
	KeyspacePeers     = "peers"
	KeyspaceDRPool    = "drpool"
	KeyspaceWalletIDs = "wallet-ids"
)
