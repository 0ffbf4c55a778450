package engine

import (
	"bytes"

	"zsetdb/pkg/logger"
)

// sweepBatchSize bounds the number of pending deletes per applied batch
// during a filter sweep.
const sweepBatchSize = 1024

// CompactStats reports the outcome of a CompactRange call.
type CompactStats struct {
	Examined map[ColumnFamily]int64
	Dropped  map[ColumnFamily]int64
}

// CompactRange runs the registered compaction filters over every family and
// then compacts the physical range. begin and end, when non-nil, bound the
// sweep with raw family-local keys (begin inclusive, end exclusive); nil
// means the whole family.
//
// Pebble offers no user compaction-filter hook, so the engine applies the
// filters itself: each family is swept on a live view, entries the filter
// rejects are deleted in bounded batches, and the physical range is then
// handed to pebble for compaction. Filters consult current state (not a
// snapshot), so a sweep racing a writer only ever drops entries whose
// version the writer has already superseded.
func (d *DB) CompactRange(begin, end []byte) (CompactStats, error) {
	stats := CompactStats{
		Examined: make(map[ColumnFamily]int64),
		Dropped:  make(map[ColumnFamily]int64),
	}
	for cf := MetaCF; cf < numCFs; cf++ {
		factory := d.filters[cf]
		if factory == nil {
			continue
		}
		examined, dropped, err := d.sweep(cf, factory(), begin, end)
		stats.Examined[cf] = examined
		stats.Dropped[cf] = dropped
		if err != nil {
			return stats, err
		}
	}
	for cf := MetaCF; cf < numCFs; cf++ {
		lower, upper := cfBounds(cf)
		if begin != nil {
			lower = physKey(cf, begin)
		}
		if end != nil {
			upper = physKey(cf, end)
		}
		if err := d.pdb.Compact(lower, upper, true); err != nil {
			return stats, err
		}
	}
	logger.Info("engine_compact_range_done",
		"meta_dropped", stats.Dropped[MetaCF],
		"data_dropped", stats.Dropped[DataCF],
		"score_dropped", stats.Dropped[ScoreCF])
	return stats, nil
}

func (d *DB) sweep(cf ColumnFamily, filter CompactionFilter, begin, end []byte) (examined, dropped int64, err error) {
	it, err := d.NewIterator(cf)
	if err != nil {
		return 0, 0, err
	}
	defer it.Close()

	batch := d.NewBatch()
	flush := func() error {
		if batch.Count() == 0 {
			return nil
		}
		if werr := d.Write(batch); werr != nil {
			return werr
		}
		batch = d.NewBatch()
		return nil
	}

	var ok bool
	if begin == nil {
		ok = it.SeekToFirst()
	} else {
		ok = it.Seek(begin)
	}
	for ; ok && it.Valid(); ok = it.Next() {
		key := it.Key()
		if end != nil && d.compareCF(cf, key, end) >= 0 {
			break
		}
		examined++
		if filter.Filter(key, it.Value()) {
			batch.Delete(cf, key)
			dropped++
			if batch.Count() >= sweepBatchSize {
				if err := flush(); err != nil {
					return examined, dropped, err
				}
			}
		}
	}
	if err := it.Error(); err != nil {
		return examined, dropped, err
	}
	if err := flush(); err != nil {
		return examined, dropped, err
	}
	return examined, dropped, nil
}

// compareCF compares two family-local keys under the family's order.
func (d *DB) compareCF(cf ColumnFamily, a, b []byte) int {
	if cmp := d.cmps[cf]; cmp != nil {
		return cmp.Compare(a, b)
	}
	return bytes.Compare(a, b)
}
