package engine

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// Snapshot is a consistent point-in-time view across all column families.
type Snapshot struct {
	snap *pebble.Snapshot
}

// NewSnapshot acquires a snapshot of the current state.
func (d *DB) NewSnapshot() *Snapshot {
	return &Snapshot{snap: d.pdb.NewSnapshot()}
}

// Get returns a copy of the value stored under (cf, key) as of the
// snapshot, or ErrNotFound.
func (s *Snapshot) Get(cf ColumnFamily, key []byte) ([]byte, error) {
	v, closer, err := s.snap.Get(physKey(cf, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	if cerr := closer.Close(); cerr != nil {
		return nil, cerr
	}
	return out, nil
}

// NewIterator returns an iterator over cf as of the snapshot.
func (s *Snapshot) NewIterator(cf ColumnFamily) (*Iterator, error) {
	lower, upper := cfBounds(cf)
	it, err := s.snap.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	return newIterator(it, cf), nil
}

// Release frees the snapshot. It must be called exactly once.
func (s *Snapshot) Release() error {
	return s.snap.Close()
}
