package zset

import (
	"testing"
)

func TestMetaValueRoundTrip(t *testing.T) {
	m := newMetaValue(3)
	m.version = 1700000000
	m.SetTimestamp(1800000000)

	parsed, err := parseMetaValue(m.Encode())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.count != 3 || parsed.version != 1700000000 || parsed.timestamp != 1800000000 {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}

	if _, err := parseMetaValue([]byte("short")); err == nil {
		t.Fatal("expected error for truncated meta value")
	}
}

func TestMetaValueStaleness(t *testing.T) {
	m := newMetaValue(1)
	if m.IsStale(1700000000) {
		t.Fatal("zero timestamp must never be stale")
	}
	m.SetTimestamp(1700000000)
	if m.IsStale(1699999999) {
		t.Fatal("not yet stale")
	}
	if !m.IsStale(1700000000) {
		t.Fatal("stale at the expiry second")
	}
}

func TestUpdateVersionMonotonic(t *testing.T) {
	m := newMetaValue(0)
	v1 := m.UpdateVersion(1700000000)
	v2 := m.UpdateVersion(1700000000) // same second: must still advance
	v3 := m.UpdateVersion(1700000500)
	if !(v1 < v2 && v2 < v3) {
		t.Fatalf("versions not monotonic: %d %d %d", v1, v2, v3)
	}
}

func TestInitialMetaValueResets(t *testing.T) {
	m := newMetaValue(9)
	m.SetTimestamp(1700000123)
	old := m.version

	v := m.InitialMetaValue(1700000200)
	if m.count != 0 || m.timestamp != 0 {
		t.Fatalf("not reset: %+v", m)
	}
	if v <= old {
		t.Fatalf("version did not advance: %d -> %d", old, v)
	}
}

func TestModifyCount(t *testing.T) {
	m := newMetaValue(5)
	m.ModifyCount(3)
	m.ModifyCount(-6)
	if m.count != 2 {
		t.Fatalf("count = %d, want 2", m.count)
	}
}

func TestSetRelativeTimestamp(t *testing.T) {
	m := newMetaValue(1)
	m.SetRelativeTimestamp(1700000000, 60)
	if m.timestamp != 1700000060 {
		t.Fatalf("timestamp = %d", m.timestamp)
	}
}
