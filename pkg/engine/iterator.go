package engine

import "github.com/cockroachdb/pebble"

// Iterator walks a single column family. Key and Value return slices that
// are only valid until the next positioning call.
type Iterator struct {
	it *pebble.Iterator
	cf ColumnFamily
	// buf holds the tag-prefixed seek key to avoid an allocation per seek.
	buf []byte
}

func newIterator(it *pebble.Iterator, cf ColumnFamily) *Iterator {
	return &Iterator{it: it, cf: cf}
}

func (i *Iterator) seekKey(key []byte) []byte {
	i.buf = i.buf[:0]
	i.buf = append(i.buf, byte(i.cf))
	i.buf = append(i.buf, key...)
	return i.buf
}

// Seek positions the iterator at the first entry >= key.
func (i *Iterator) Seek(key []byte) bool {
	return i.it.SeekGE(i.seekKey(key))
}

// SeekForPrev positions the iterator at the last entry <= key.
func (i *Iterator) SeekForPrev(key []byte) bool {
	// The last entry <= key is the last entry < key+"\x00": appending a zero
	// byte yields the immediate successor under both bytewise order and the
	// score-key order (it extends the member field).
	k := i.seekKey(key)
	k = append(k, 0x00)
	return i.it.SeekLT(k)
}

// SeekToFirst positions the iterator at the family's first entry.
func (i *Iterator) SeekToFirst() bool {
	return i.it.First()
}

// SeekToLast positions the iterator at the family's last entry.
func (i *Iterator) SeekToLast() bool {
	return i.it.Last()
}

// Next advances to the following entry.
func (i *Iterator) Next() bool {
	return i.it.Next()
}

// Prev moves back to the preceding entry.
func (i *Iterator) Prev() bool {
	return i.it.Prev()
}

// Valid reports whether the iterator is positioned at an entry.
func (i *Iterator) Valid() bool {
	return i.it.Valid()
}

// Key returns the entry key with the family tag stripped.
func (i *Iterator) Key() []byte {
	return i.it.Key()[1:]
}

// Value returns the entry value.
func (i *Iterator) Value() []byte {
	return i.it.Value()
}

// Error returns the first error the iterator encountered, if any.
func (i *Iterator) Error() error {
	return i.it.Error()
}

// Close releases the iterator.
func (i *Iterator) Close() error {
	return i.it.Close()
}

// NewIterator returns an iterator over the latest visible state of cf.
func (d *DB) NewIterator(cf ColumnFamily) (*Iterator, error) {
	lower, upper := cfBounds(cf)
	it, err := d.pdb.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	return newIterator(it, cf), nil
}
