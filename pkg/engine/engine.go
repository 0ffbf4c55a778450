// Package engine exposes an ordered key-value store with column families,
// atomic multi-family batches, snapshots, per-family comparators and
// per-family compaction filters, backed by a single Pebble database.
//
// Pebble has no native column families. The engine multiplexes the three
// families onto one keyspace with a one-byte family tag, which keeps batch
// commits atomic across families and lets one snapshot cover all of them.
package engine

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"

	"zsetdb/pkg/logger"
)

// ErrNotFound is returned by Get when no entry exists for the key.
var ErrNotFound = errors.New("engine: not found")

// ColumnFamily identifies one of the fixed keyspaces.
type ColumnFamily uint8

const (
	MetaCF  ColumnFamily = iota // "default"
	DataCF                      // "data_cf"
	ScoreCF                     // "score_cf"

	numCFs = 3
)

// Name returns the on-disk family name.
func (cf ColumnFamily) Name() string {
	switch cf {
	case MetaCF:
		return "default"
	case DataCF:
		return "data_cf"
	case ScoreCF:
		return "score_cf"
	}
	return fmt.Sprintf("cf-%d", uint8(cf))
}

// Comparator defines a total order over the keys of one column family.
// Families without a registered Comparator order bytewise.
type Comparator interface {
	Name() string
	Compare(a, b []byte) int
}

// CompactionFilter inspects one entry during a compaction sweep and reports
// whether it should be dropped. A filter instance is only ever used from a
// single sweep goroutine, so implementations may keep per-sweep state.
type CompactionFilter interface {
	Name() string
	Filter(key, value []byte) (remove bool)
}

// CompactionFilterFactory produces a fresh filter for each sweep.
type CompactionFilterFactory func() CompactionFilter

// Options configures an engine DB.
type Options struct {
	// BloomBitsPerKey configures the per-level bloom filter policy.
	// Zero means the default of 10 bits per key.
	BloomBitsPerKey int

	// Comparators maps a family to its key comparator. Missing entries
	// order bytewise.
	Comparators map[ColumnFamily]Comparator

	// CompactionFilters maps a family to its compaction-filter factory.
	CompactionFilters map[ColumnFamily]CompactionFilterFactory
}

// DB is an open engine instance.
type DB struct {
	pdb     *pebble.DB
	path    string
	cmps    [numCFs]Comparator
	filters [numCFs]CompactionFilterFactory
}

// Open opens (or creates) the engine at path.
func Open(path string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &Options{}
	}
	d := &DB{path: path}
	for cf, cmp := range opts.Comparators {
		if int(cf) >= numCFs {
			return nil, fmt.Errorf("engine: unknown column family %d", cf)
		}
		d.cmps[cf] = cmp
	}
	for cf, f := range opts.CompactionFilters {
		if int(cf) >= numCFs {
			return nil, fmt.Errorf("engine: unknown column family %d", cf)
		}
		d.filters[cf] = f
	}

	bits := opts.BloomBitsPerKey
	if bits <= 0 {
		bits = 10
	}
	popts := &pebble.Options{
		Comparer: newComparer(d.cmps),
		Levels: []pebble.LevelOptions{
			{FilterPolicy: bloom.FilterPolicy(bits)},
		},
	}
	popts.Logger = pebbleLogger{}

	pdb, err := pebble.Open(path, popts)
	if err != nil {
		logger.Error("engine_open_failed", "path", path, "error", err)
		return nil, err
	}
	d.pdb = pdb
	logger.Info("engine_opened", "path", path, "bloom_bits_per_key", bits)
	return d, nil
}

// Close closes the underlying store.
func (d *DB) Close() error {
	if d.pdb == nil {
		return nil
	}
	err := d.pdb.Close()
	d.pdb = nil
	logger.Info("engine_closed", "path", d.path)
	return err
}

// physKey prepends the family tag to key.
func physKey(cf ColumnFamily, key []byte) []byte {
	p := make([]byte, 0, 1+len(key))
	p = append(p, byte(cf))
	return append(p, key...)
}

// Get returns a copy of the value stored under (cf, key), or ErrNotFound.
func (d *DB) Get(cf ColumnFamily, key []byte) ([]byte, error) {
	v, closer, err := d.pdb.Get(physKey(cf, key))
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

// Set writes (cf, key) = value.
func (d *DB) Set(cf ColumnFamily, key, value []byte) error {
	return d.pdb.Set(physKey(cf, key), value, pebble.Sync)
}

// Delete removes (cf, key) if present.
func (d *DB) Delete(cf ColumnFamily, key []byte) error {
	return d.pdb.Delete(physKey(cf, key), pebble.Sync)
}

// Batch accumulates Put/Delete mutations across families for one atomic
// commit via Write.
type Batch struct {
	b *pebble.Batch
}

// NewBatch returns an empty batch.
func (d *DB) NewBatch() *Batch {
	return &Batch{b: d.pdb.NewBatch()}
}

// Put records (cf, key) = value in the batch.
func (b *Batch) Put(cf ColumnFamily, key, value []byte) {
	_ = b.b.Set(physKey(cf, key), value, nil)
}

// Delete records removal of (cf, key) in the batch.
func (b *Batch) Delete(cf ColumnFamily, key []byte) {
	_ = b.b.Delete(physKey(cf, key), nil)
}

// Count returns the number of mutations recorded so far.
func (b *Batch) Count() int {
	return int(b.b.Count())
}

// Write atomically commits all mutations in the batch. The batch must not
// be reused afterwards.
func (d *DB) Write(b *Batch) error {
	defer b.b.Close()
	return d.pdb.Apply(b.b, pebble.Sync)
}

// Metrics returns the underlying store's metrics in its text form.
func (d *DB) Metrics() string {
	return d.pdb.Metrics().String()
}

// pebbleLogger routes pebble's own logging through the process logger.
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	logger.Debug("pebble", "msg", fmt.Sprintf(format, args...))
}

func (pebbleLogger) Errorf(format string, args ...interface{}) {
	logger.Error("pebble", "msg", fmt.Sprintf(format, args...))
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	logger.Error("pebble_fatal", "msg", fmt.Sprintf(format, args...))
}

// cfBounds returns the iterator bounds covering exactly one family.
func cfBounds(cf ColumnFamily) (lower, upper []byte) {
	return []byte{byte(cf)}, []byte{byte(cf) + 1}
}
