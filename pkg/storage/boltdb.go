package storage

import (
	"fmt"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// BoltStore implements Store using a single BoltDB file, one bucket per
// keyspace.
type BoltStore struct {
	db *bolt.DB

	mu     sync.RWMutex
	merges map[string]MergeFunc
}

// NewBoltStore opens (creating if necessary) the witnode database under
// dataDir, with a bucket pre-created for every well-known keyspace.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "witnode.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, &IOError{Op: "open", Err: err}
	}

	keyspaces := []string{
		KeyspaceChainInfo,
		KeyspaceBlocks,
		KeyspaceUTXO,
		KeyspaceMempool,
		KeyspacePeers,
		KeyspaceDRPool,
		KeyspaceWalletIDs,
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, ks := range keyspaces {
			if _, err := tx.CreateBucketIfNotExists([]byte(ks)); err != nil {
				return fmt.Errorf("create bucket %s: %w", ks, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, &IOError{Op: "init buckets", Err: err}
	}

	return &BoltStore{db: db, merges: make(map[string]MergeFunc)}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) RegisterMerge(keyspace string, fn MergeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merges[keyspace] = fn
}

func (s *BoltStore) mergeFor(keyspace string) MergeFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.merges[keyspace]
}

func (s *BoltStore) bucket(tx *bolt.Tx, keyspace string) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(keyspace))
	if b == nil {
		var err error
		b, err = tx.CreateBucket([]byte(keyspace))
		if err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", keyspace, err)
		}
	}
	return b, nil
}

func (s *BoltStore) Get(keyspace, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(keyspace))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, &IOError{Op: "get", Err: err}
	}
	return value, nil
}

func (s *BoltStore) Put(keyspace, key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, keyspace)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
	if err != nil {
		return &IOError{Op: "put", Err: err}
	}
	return nil
}

func (s *BoltStore) Delete(keyspace, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(keyspace))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return &IOError{Op: "delete", Err: err}
	}
	return nil
}

func (s *BoltStore) WriteBatch(fn func(b Batch) error) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltBatch{store: s, tx: tx})
	})
	if err != nil {
		return &IOError{Op: "write batch", Err: err}
	}
	return nil
}

func (s *BoltStore) PrefixIterator(keyspace, prefix string, reverse bool) (Iterator, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, &IOError{Op: "begin iterator", Err: err}
	}
	b := tx.Bucket([]byte(keyspace))
	if b == nil {
		tx.Rollback()
		return &emptyIterator{}, nil
	}
	return &boltIterator{
		tx:      tx,
		cursor:  b.Cursor(),
		prefix:  []byte(prefix),
		reverse: reverse,
		started: false,
	}, nil
}

// boltBatch implements Batch inside an active bolt read-write transaction.
type boltBatch struct {
	store *BoltStore
	tx    *bolt.Tx
}

func (b *boltBatch) Get(keyspace, key string) ([]byte, error) {
	bucket := b.tx.Bucket([]byte(keyspace))
	if bucket == nil {
		return nil, nil
	}
	if v := bucket.Get([]byte(key)); v != nil {
		return append([]byte(nil), v...), nil
	}
	return nil, nil
}

func (b *boltBatch) Put(keyspace, key string, value []byte) error {
	bucket, err := b.store.bucket(b.tx, keyspace)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(key), value)
}

func (b *boltBatch) Delete(keyspace, key string) error {
	bucket := b.tx.Bucket([]byte(keyspace))
	if bucket == nil {
		return nil
	}
	return bucket.Delete([]byte(key))
}

func (b *boltBatch) Merge(keyspace, key string, value []byte) error {
	bucket, err := b.store.bucket(b.tx, keyspace)
	if err != nil {
		return err
	}
	mergeFn := b.store.mergeFor(keyspace)
	if mergeFn == nil {
		return bucket.Put([]byte(key), value)
	}
	existing := bucket.Get([]byte(key))
	merged := mergeFn(existing, value)
	return bucket.Put([]byte(key), merged)
}

// boltIterator walks a bucket's keys sharing a prefix, forward or reverse.
type boltIterator struct {
	tx      *bolt.Tx
	cursor  *bolt.Cursor
	prefix  []byte
	reverse bool
	started bool
	key     []byte
	value   []byte
	done    bool
}

func (it *boltIterator) Next() bool {
	if it.done {
		return false
	}

	var k, v []byte
	if !it.started {
		it.started = true
		if it.reverse {
			k, v = it.seekLastWithPrefix()
		} else {
			k, v = it.cursor.Seek(it.prefix)
		}
	} else if it.reverse {
		k, v = it.cursor.Prev()
	} else {
		k, v = it.cursor.Next()
	}

	if k == nil || !hasPrefix(k, it.prefix) {
		it.done = true
		return false
	}

	it.key = append([]byte(nil), k...)
	it.value = append([]byte(nil), v...)
	return true
}

func (it *boltIterator) seekLastWithPrefix() ([]byte, []byte) {
	// Seek to the first key past the prefix range, then step back one.
	upper := append(append([]byte(nil), it.prefix...), 0xff)
	k, _ := it.cursor.Seek(upper)
	if k == nil {
		return it.cursor.Last()
	}
	return it.cursor.Prev()
}

func hasPrefix(k, prefix []byte) bool {
	if len(prefix) == 0 {
		return true
	}
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (it *boltIterator) Key() string   { return string(it.key) }
func (it *boltIterator) Value() []byte { return it.value }
func (it *boltIterator) Close() error  { return it.tx.Rollback() }

type emptyIterator struct{}

func (e *emptyIterator) Next() bool    { return false }
func (e *emptyIterator) Key() string   { return "" }
func (e *emptyIterator) Value() []byte { return nil }
func (e *emptyIterator) Close() error  { return nil }
