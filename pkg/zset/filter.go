package zset

import (
	"bytes"
	"errors"

	"zsetdb/pkg/engine"
)

// The three compaction filters are the only mechanism that reclaims
// logically deleted or superseded entries. They run on a live view of the
// meta family (never a snapshot): dropping an entry whose version differs
// from the current meta is safe against concurrent writers because versions
// only move forward and writers publish all three families atomically.

// metaFilter drops a meta row once it is both expired and empty. A row that
// is merely empty (after Del) keeps its fresh version so in-flight readers
// and the data filters can still resolve it.
type metaFilter struct {
	now func() int64
}

func (f *metaFilter) Name() string { return "zsetdb.meta-filter" }

func (f *metaFilter) Filter(key, value []byte) bool {
	m, err := parseMetaValue(value)
	if err != nil {
		return false
	}
	return m.IsStale(f.now()) && m.count == 0
}

// versionedKeyFilter drops member/score entries whose meta is absent,
// expired, or carries a different version. It caches the most recently
// fetched meta: compaction feeds it same-user-key entries in runs, so one
// meta lookup usually covers many entries.
type versionedKeyFilter struct {
	db    *engine.DB
	now   func() int64
	parse func(b []byte) (userKey []byte, version int32, ok bool)
	name  string

	loaded     bool
	curKey     []byte
	curVersion int32
	curAlive   bool
}

func (f *versionedKeyFilter) Name() string { return f.name }

func (f *versionedKeyFilter) Filter(key, value []byte) bool {
	userKey, version, ok := f.parse(key)
	if !ok {
		return false
	}
	if !f.loaded || !bytes.Equal(userKey, f.curKey) {
		if !f.refresh(userKey) {
			return false
		}
	}
	if !f.curAlive {
		return true
	}
	return version != f.curVersion
}

// refresh loads the meta for userKey into the cache. It returns false when
// the lookup failed in a way that must keep the entry (engine error or an
// unparsable meta).
func (f *versionedKeyFilter) refresh(userKey []byte) bool {
	f.loaded = false
	mv, err := f.db.Get(engine.MetaCF, userKey)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		f.curAlive = false
	case err != nil:
		return false
	default:
		m, perr := parseMetaValue(mv)
		if perr != nil {
			return false
		}
		f.curAlive = !m.IsStale(f.now())
		f.curVersion = m.version
	}
	f.curKey = append(f.curKey[:0], userKey...)
	f.loaded = true
	return true
}

func newDataFilter(db *engine.DB, now func() int64) engine.CompactionFilter {
	return &versionedKeyFilter{
		db:   db,
		now:  now,
		name: "zsetdb.data-filter",
		parse: func(b []byte) ([]byte, int32, bool) {
			p, err := parseMemberKey(b)
			if err != nil {
				return nil, 0, false
			}
			return p.UserKey(), p.Version(), true
		},
	}
}

func newScoreFilter(db *engine.DB, now func() int64) engine.CompactionFilter {
	return &versionedKeyFilter{
		db:   db,
		now:  now,
		name: "zsetdb.score-filter",
		parse: func(b []byte) ([]byte, int32, bool) {
			p, err := parseScoreKey(b)
			if err != nil {
				return nil, 0, false
			}
			return p.UserKey(), p.Version(), true
		},
	}
}
