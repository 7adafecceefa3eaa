package localtable

import (
	"time"

	bbolt "go.etcd.io/bbolt"
)

var bucketNames = []byte("names")

// SnapshotStore persists the precompiled table's name -> IPv4 mappings
// across restarts, so a freshly started process doesn't need every local
// domain re-registered via the boot-time API before it can serve them.
// It stores only the (name, ipv4) pairs — the fixed-TTL response blob
// itself is always rebuilt via the codec at load time, never persisted,
// so a codec change can't leave stale bytes on disk.
type SnapshotStore struct {
	db *bbolt.DB
}

// OpenSnapshotStore opens (or creates) a bbolt database at path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketNames)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SnapshotStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SnapshotStore) Close() error { return s.db.Close() }

// Put records name -> ipv4, overwriting any prior mapping.
func (s *SnapshotStore) Put(name, ipv4 string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketNames)
		return b.Put([]byte(name), []byte(ipv4))
	})
}

// LoadAll applies every persisted name -> IPv4 mapping to t, rebuilding
// its response blobs via the live codec.
func (s *SnapshotStore) LoadAll(t Table) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketNames)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			return t.Add(string(k), string(v))
		})
	})
}
