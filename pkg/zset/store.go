// Package zset implements a Redis-compatible sorted-set storage engine on
// top of the ordered KV engine. Every sorted set is spread over three
// column families: a meta row (count, version, expiry), a member index
// (member → score) and a score index (score-ordered, empty values).
// Deletion and expiry only rewrite the meta row; superseded member and
// score entries are reclaimed by compaction-filter sweeps.
package zset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gobwas/glob"

	"zsetdb/pkg/engine"
	"zsetdb/pkg/logger"
	"zsetdb/pkg/metrics"
)

// ScoreMember is one (score, member) pair of a sorted set.
type ScoreMember struct {
	Score  float64
	Member string
}

// Aggregate selects how ZUnionstore/ZInterstore combine scores.
type Aggregate int

const (
	Sum Aggregate = iota
	Min
	Max
)

// Options configures Open.
type Options struct {
	// Path is the engine directory.
	Path string
	// BloomBitsPerKey tunes the engine bloom filters; 0 means 10.
	BloomBitsPerKey int
	// ZScanCacheSize bounds the ZScan cursor cache; 0 means 1024.
	ZScanCacheSize int
}

// Store is an open sorted-set store. It is safe for concurrent use;
// writers to the same user key serialize on a per-key record lock.
type Store struct {
	db      *engine.DB
	locks   recordLockMgr
	cursors *zscanCursorCache
	now     func() int64
}

// Open opens (or creates) the store at opts.Path.
func Open(opts Options) (*Store, error) {
	s := &Store{now: func() int64 { return time.Now().Unix() }}

	cursors, err := newZScanCursorCache(opts.ZScanCacheSize)
	if err != nil {
		return nil, err
	}
	s.cursors = cursors

	db, err := engine.Open(opts.Path, &engine.Options{
		BloomBitsPerKey: opts.BloomBitsPerKey,
		Comparators: map[engine.ColumnFamily]engine.Comparator{
			engine.ScoreCF: scoreKeyComparator{},
		},
		CompactionFilters: map[engine.ColumnFamily]engine.CompactionFilterFactory{
			engine.MetaCF:  func() engine.CompactionFilter { return &metaFilter{now: s.now} },
			engine.DataCF:  func() engine.CompactionFilter { return newDataFilter(s.db, s.now) },
			engine.ScoreCF: func() engine.CompactionFilter { return newScoreFilter(s.db, s.now) },
		},
	})
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// getter is the read surface shared by the live DB and snapshots.
type getter interface {
	Get(engine.ColumnFamily, []byte) ([]byte, error)
}

// readMeta fetches and parses the meta row. A missing row maps to
// ErrNotFound; staleness is left to the caller.
func (s *Store) readMeta(g getter, key []byte) (*metaValue, error) {
	mv, err := g.Get(engine.MetaCF, key)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return parseMetaValue(mv)
}

// liveMeta is the common read-path branch: missing → ErrNotFound, expired
// → ErrStale, empty → ErrNotFound.
func (s *Store) liveMeta(g getter, key []byte) (*metaValue, error) {
	m, err := s.readMeta(g, key)
	if err != nil {
		return nil, err
	}
	if m.IsStale(s.now()) {
		return nil, ErrStale
	}
	if m.count == 0 {
		return nil, ErrNotFound
	}
	return m, nil
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCorruption):
		return "corruption"
	default:
		return "error"
	}
}

// observe times an operation; use as `defer s.observe("zadd")(&err)`.
func (s *Store) observe(op string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		metrics.ObserveOp(op, time.Since(start), statusLabel(err))
	}
}

func compileMatcher(pattern string) (glob.Glob, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid pattern %q", ErrCorruption, pattern)
	}
	return g, nil
}

// Expire sets the key's expiry to now+ttl seconds. A ttl <= 0 collapses
// the set immediately, exactly like Del.
func (s *Store) Expire(key []byte, ttl int64) (err error) {
	defer s.observe("expire")(&err)
	defer s.locks.lock(key)()

	m, err := s.readMeta(s.db, key)
	if err != nil {
		return err
	}
	if m.IsStale(s.now()) {
		return ErrNotFound
	}
	if ttl > 0 {
		m.SetRelativeTimestamp(s.now(), ttl)
	} else {
		m.InitialMetaValue(s.now())
	}
	return s.db.Set(engine.MetaCF, key, m.Encode())
}

// Expireat sets the key's absolute expiry timestamp (unix seconds).
func (s *Store) Expireat(key []byte, timestamp int64) (err error) {
	defer s.observe("expireat")(&err)
	defer s.locks.lock(key)()

	m, err := s.readMeta(s.db, key)
	if err != nil {
		return err
	}
	if m.IsStale(s.now()) {
		return ErrStale
	}
	m.SetTimestamp(int32(timestamp))
	return s.db.Set(engine.MetaCF, key, m.Encode())
}

// Persist clears the key's expiry. ErrNoTimeout when none is set.
func (s *Store) Persist(key []byte) (err error) {
	defer s.observe("persist")(&err)
	defer s.locks.lock(key)()

	m, err := s.readMeta(s.db, key)
	if err != nil {
		return err
	}
	if m.IsStale(s.now()) {
		return ErrStale
	}
	if m.timestamp == 0 {
		return ErrNoTimeout
	}
	m.SetTimestamp(0)
	return s.db.Set(engine.MetaCF, key, m.Encode())
}

// TTL returns the remaining lifetime in seconds: -2 with an error when the
// key is absent or expired, -1 when it has no expiry.
func (s *Store) TTL(key []byte) (ttl int64, err error) {
	defer s.observe("ttl")(&err)

	m, err := s.readMeta(s.db, key)
	if err != nil {
		return -2, err
	}
	if m.IsStale(s.now()) {
		return -2, ErrStale
	}
	if m.timestamp == 0 {
		return -1, nil
	}
	rem := int64(m.timestamp) - s.now()
	if rem <= 0 {
		return -1, nil
	}
	return rem, nil
}

// Del logically drops the set: the meta row is reset under a fresh
// version and the data entries become compaction garbage.
func (s *Store) Del(key []byte) (err error) {
	defer s.observe("del")(&err)
	defer s.locks.lock(key)()

	m, err := s.readMeta(s.db, key)
	if err != nil {
		return err
	}
	if m.IsStale(s.now()) {
		return ErrStale
	}
	if m.count == 0 {
		return ErrNotFound
	}
	m.InitialMetaValue(s.now())
	return s.db.Set(engine.MetaCF, key, m.Encode())
}

// Scan iterates the meta family from startKey, skipping expired keys, and
// collects keys matching pattern. limit bounds the number of live keys
// examined. nextKey is the resume position; finished reports exhaustion.
func (s *Store) Scan(startKey []byte, pattern string, limit int64) (keys []string, nextKey string, finished bool, err error) {
	defer s.observe("scan")(&err)

	matcher, err := compileMatcher(pattern)
	if err != nil {
		return nil, "", true, err
	}

	snap := s.db.NewSnapshot()
	defer snap.Release()

	it, err := snap.NewIterator(engine.MetaCF)
	if err != nil {
		return nil, "", true, err
	}
	defer it.Close()

	now := s.now()
	for ok := it.Seek(startKey); ok && limit > 0; ok = it.Next() {
		m, perr := parseMetaValue(it.Value())
		if perr != nil || m.IsStale(now) {
			continue
		}
		k := string(it.Key())
		if matcher.Match(k) {
			keys = append(keys, k)
		}
		limit--
	}
	if err := it.Error(); err != nil {
		return nil, "", true, err
	}
	if it.Valid() {
		return keys, string(it.Key()), false, nil
	}
	return keys, "", true, nil
}

// ScanKeyNum counts the non-expired, non-empty sorted sets.
func (s *Store) ScanKeyNum() (num int64, err error) {
	defer s.observe("scan_key_num")(&err)

	snap := s.db.NewSnapshot()
	defer snap.Release()

	it, err := snap.NewIterator(engine.MetaCF)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	now := s.now()
	for ok := it.SeekToFirst(); ok; ok = it.Next() {
		m, perr := parseMetaValue(it.Value())
		if perr == nil && !m.IsStale(now) && m.count != 0 {
			num++
		}
	}
	return num, it.Error()
}

// ScanKeys lists the non-expired, non-empty keys matching pattern.
func (s *Store) ScanKeys(pattern string) (keys []string, err error) {
	defer s.observe("scan_keys")(&err)

	matcher, err := compileMatcher(pattern)
	if err != nil {
		return nil, err
	}

	snap := s.db.NewSnapshot()
	defer snap.Release()

	it, err := snap.NewIterator(engine.MetaCF)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	now := s.now()
	for ok := it.SeekToFirst(); ok; ok = it.Next() {
		m, perr := parseMetaValue(it.Value())
		if perr != nil || m.IsStale(now) || m.count == 0 {
			continue
		}
		k := string(it.Key())
		if matcher.Match(k) {
			keys = append(keys, k)
		}
	}
	return keys, it.Error()
}

// CompactRange runs the compaction filters over all three families and
// compacts the physical range, reclaiming entries of superseded versions.
func (s *Store) CompactRange(begin, end []byte) (err error) {
	defer s.observe("compact_range")(&err)

	stats, err := s.db.CompactRange(begin, end)
	for cf, n := range stats.Dropped {
		metrics.AddGCDropped(cf.Name(), n)
	}
	if err != nil {
		logger.Error("compact_range_failed", "error", err)
		return err
	}
	logger.Info("compact_range_done",
		"meta_dropped", stats.Dropped[engine.MetaCF],
		"data_dropped", stats.Dropped[engine.DataCF],
		"score_dropped", stats.Dropped[engine.ScoreCF])
	return nil
}

// GetProperty returns the engine's metrics report. The underlying store
// exposes one aggregate report rather than named properties, so every name
// yields the full text.
func (s *Store) GetProperty(string) string {
	return s.db.Metrics()
}

// ScanDatabase dumps every row of the three families to w, for offline
// inspection of on-disk state.
func (s *Store) ScanDatabase(w io.Writer) error {
	snap := s.db.NewSnapshot()
	defer snap.Release()
	now := s.now()

	fmt.Fprintf(w, "\n*************** ZSets Meta Data ***************\n")
	mit, err := snap.NewIterator(engine.MetaCF)
	if err != nil {
		return err
	}
	for ok := mit.SeekToFirst(); ok; ok = mit.Next() {
		m, perr := parseMetaValue(mit.Value())
		if perr != nil {
			fmt.Fprintf(w, "[key : %-30s] <unparsable meta: %v>\n", mit.Key(), perr)
			continue
		}
		survival := int64(0)
		if m.timestamp != 0 {
			survival = int64(m.timestamp) - now
			if survival <= 0 {
				survival = -1
			}
		}
		fmt.Fprintf(w, "[key : %-30s] [count : %-10d] [timestamp : %-10d] [version : %d] [survival : %d]\n",
			mit.Key(), m.count, m.timestamp, m.version, survival)
	}
	if err := mit.Close(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n*************** ZSets Member To Score Data ***************\n")
	dit, err := snap.NewIterator(engine.DataCF)
	if err != nil {
		return err
	}
	for ok := dit.SeekToFirst(); ok; ok = dit.Next() {
		p, perr := parseMemberKey(dit.Key())
		if perr != nil {
			continue
		}
		score, _ := decodeScoreValue(dit.Value())
		fmt.Fprintf(w, "[key : %-30s] [member : %-20s] [score : %-20f] [version : %d]\n",
			p.UserKey(), p.Member(), score, p.Version())
	}
	if err := dit.Close(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n*************** ZSets Score To Member Data ***************\n")
	sit, err := snap.NewIterator(engine.ScoreCF)
	if err != nil {
		return err
	}
	for ok := sit.SeekToFirst(); ok; ok = sit.Next() {
		p, perr := parseScoreKey(sit.Key())
		if perr != nil {
			continue
		}
		fmt.Fprintf(w, "[key : %-30s] [score : %-20f] [member : %-20s] [version : %d]\n",
			p.UserKey(), p.Score(), p.Member(), p.Version())
	}
	return sit.Close()
}

// hasRunPrefix reports whether a family-local key belongs to the
// (key, version) run identified by prefix.
func hasRunPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}
