package zset

import (
	"encoding/binary"
	"fmt"
)

// metaValue is the per-key record in the meta family:
//
//	count u32 | version i32 | timestamp i32
//
// count is the number of live members, version the per-key epoch that ties
// member/score entries to this incarnation of the key, and timestamp the
// absolute unix-seconds expiry (0 = never).
type metaValue struct {
	count     uint32
	version   int32
	timestamp int32
}

const metaValueSize = 12

func newMetaValue(count uint32) *metaValue {
	return &metaValue{count: count}
}

func parseMetaValue(b []byte) (*metaValue, error) {
	if len(b) != metaValueSize {
		return nil, fmt.Errorf("%w: meta value is %d bytes, want %d", ErrCorruption, len(b), metaValueSize)
	}
	return &metaValue{
		count:     binary.BigEndian.Uint32(b[0:4]),
		version:   int32(binary.BigEndian.Uint32(b[4:8])),
		timestamp: int32(binary.BigEndian.Uint32(b[8:12])),
	}, nil
}

func (m *metaValue) Encode() []byte {
	b := make([]byte, metaValueSize)
	binary.BigEndian.PutUint32(b[0:4], m.count)
	binary.BigEndian.PutUint32(b[4:8], uint32(m.version))
	binary.BigEndian.PutUint32(b[8:12], uint32(m.timestamp))
	return b
}

// IsStale reports whether the key's expiry has passed at time now.
func (m *metaValue) IsStale(now int64) bool {
	return m.timestamp != 0 && int64(m.timestamp) <= now
}

// UpdateVersion assigns a fresh version, monotonic per key even when called
// more than once within the same second, and returns it.
func (m *metaValue) UpdateVersion(now int64) int32 {
	if int64(m.version) < now {
		m.version = int32(now)
	} else {
		m.version++
	}
	return m.version
}

// InitialMetaValue resets the record to an empty, never-expiring set under
// a fresh version and returns that version. Deletion, expiry collapse and
// reincarnation of a stale key all go through here.
func (m *metaValue) InitialMetaValue(now int64) int32 {
	m.count = 0
	m.timestamp = 0
	return m.UpdateVersion(now)
}

// ModifyCount adjusts the member count by delta.
func (m *metaValue) ModifyCount(delta int32) {
	m.count = uint32(int32(m.count) + delta)
}

func (m *metaValue) SetCount(count uint32) {
	m.count = count
}

func (m *metaValue) SetTimestamp(t int32) {
	m.timestamp = t
}

// SetRelativeTimestamp sets the expiry to now + ttl seconds.
func (m *metaValue) SetRelativeTimestamp(now, ttl int64) {
	m.timestamp = int32(now + ttl)
}
