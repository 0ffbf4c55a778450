package engine

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func newTestDB(t *testing.T, opts *Options) *DB {
	t.Helper()
	d, err := Open(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return d
}

func TestFamiliesAreDisjoint(t *testing.T) {
	d := newTestDB(t, nil)

	key := []byte("same-key")
	if err := d.Set(MetaCF, key, []byte("meta")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := d.Set(DataCF, key, []byte("data")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, err := d.Get(MetaCF, key)
	if err != nil || string(v) != "meta" {
		t.Fatalf("Get meta = %q, %v", v, err)
	}
	v, err = d.Get(DataCF, key)
	if err != nil || string(v) != "data" {
		t.Fatalf("Get data = %q, %v", v, err)
	}
	if _, err := d.Get(ScoreCF, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get score err = %v, want ErrNotFound", err)
	}
}

func TestIteratorStaysInFamily(t *testing.T) {
	d := newTestDB(t, nil)
	for i := 0; i < 5; i++ {
		k := []byte(fmt.Sprintf("k%d", i))
		if err := d.Set(DataCF, k, []byte("v")); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := d.Set(ScoreCF, k, []byte("other")); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	it, err := d.NewIterator(DataCF)
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	defer it.Close()

	var keys []string
	for ok := it.SeekToFirst(); ok; ok = it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if len(keys) != 5 {
		t.Fatalf("keys = %v", keys)
	}
	for i, k := range keys {
		if k != fmt.Sprintf("k%d", i) {
			t.Fatalf("keys out of order: %v", keys)
		}
	}
}

func TestIteratorSeekForPrev(t *testing.T) {
	d := newTestDB(t, nil)
	for _, k := range []string{"a", "c", "e"} {
		if err := d.Set(DataCF, []byte(k), []byte("v")); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	it, err := d.NewIterator(DataCF)
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	defer it.Close()

	cases := []struct{ seek, want string }{
		{"e", "e"}, // exact hit
		{"d", "c"}, // between entries
		{"z", "e"}, // past the end
	}
	for _, tc := range cases {
		if !it.SeekForPrev([]byte(tc.seek)) || string(it.Key()) != tc.want {
			t.Fatalf("SeekForPrev(%q) at %q, want %q", tc.seek, it.Key(), tc.want)
		}
	}
	if it.SeekForPrev([]byte("A")) { // before the first entry
		t.Fatalf("SeekForPrev before first entry should be invalid, at %q", it.Key())
	}
}

func TestBatchCommitsAtomicallyAcrossFamilies(t *testing.T) {
	d := newTestDB(t, nil)
	if err := d.Set(ScoreCF, []byte("stale"), nil); err != nil {
		t.Fatalf("Set: %v", err)
	}

	b := d.NewBatch()
	b.Put(MetaCF, []byte("k"), []byte("m"))
	b.Put(DataCF, []byte("k"), []byte("d"))
	b.Delete(ScoreCF, []byte("stale"))
	if err := d.Write(b); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if v, err := d.Get(MetaCF, []byte("k")); err != nil || string(v) != "m" {
		t.Fatalf("meta = %q, %v", v, err)
	}
	if v, err := d.Get(DataCF, []byte("k")); err != nil || string(v) != "d" {
		t.Fatalf("data = %q, %v", v, err)
	}
	if _, err := d.Get(ScoreCF, []byte("stale")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale err = %v, want ErrNotFound", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	d := newTestDB(t, nil)
	if err := d.Set(MetaCF, []byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	snap := d.NewSnapshot()
	defer snap.Release()

	if err := d.Set(MetaCF, []byte("k"), []byte("v2")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := d.Set(MetaCF, []byte("new"), []byte("x")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, err := snap.Get(MetaCF, []byte("k"))
	if err != nil || string(v) != "v1" {
		t.Fatalf("snapshot Get = %q, %v", v, err)
	}
	if _, err := snap.Get(MetaCF, []byte("new")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("snapshot sees later write, err = %v", err)
	}
	if v, _ := d.Get(MetaCF, []byte("k")); string(v) != "v2" {
		t.Fatalf("live Get = %q", v)
	}
}

// prefixDropFilter drops every entry whose value equals "drop".
type prefixDropFilter struct{}

func (prefixDropFilter) Name() string { return "test.value-drop-filter" }

func (prefixDropFilter) Filter(key, value []byte) bool {
	return bytes.Equal(value, []byte("drop"))
}

func TestCompactRangeAppliesFilters(t *testing.T) {
	d := newTestDB(t, &Options{
		CompactionFilters: map[ColumnFamily]CompactionFilterFactory{
			DataCF: func() CompactionFilter { return prefixDropFilter{} },
		},
	})

	if err := d.Set(DataCF, []byte("keep1"), []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := d.Set(DataCF, []byte("gone"), []byte("drop")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// unfiltered family is untouched even with matching values
	if err := d.Set(MetaCF, []byte("meta-gone"), []byte("drop")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	stats, err := d.CompactRange(nil, nil)
	if err != nil {
		t.Fatalf("CompactRange: %v", err)
	}
	if stats.Dropped[DataCF] != 1 || stats.Examined[DataCF] != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	if _, err := d.Get(DataCF, []byte("gone")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("filtered entry survived, err = %v", err)
	}
	if _, err := d.Get(DataCF, []byte("keep1")); err != nil {
		t.Fatalf("kept entry lost: %v", err)
	}
	if _, err := d.Get(MetaCF, []byte("meta-gone")); err != nil {
		t.Fatalf("unfiltered family touched: %v", err)
	}
}

func TestCompactRangeHonorsBounds(t *testing.T) {
	d := newTestDB(t, &Options{
		CompactionFilters: map[ColumnFamily]CompactionFilterFactory{
			DataCF: func() CompactionFilter { return prefixDropFilter{} },
		},
	})
	for _, k := range []string{"a", "b", "c", "d"} {
		if err := d.Set(DataCF, []byte(k), []byte("drop")); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	if _, err := d.CompactRange([]byte("b"), []byte("d")); err != nil {
		t.Fatalf("CompactRange: %v", err)
	}
	for k, want := range map[string]bool{"a": true, "b": false, "c": false, "d": true} {
		_, err := d.Get(DataCF, []byte(k))
		if want && err != nil {
			t.Fatalf("%q should survive: %v", k, err)
		}
		if !want && !errors.Is(err, ErrNotFound) {
			t.Fatalf("%q should be dropped, err = %v", k, err)
		}
	}
}
