package zset

import (
	"hash/fnv"
	"sync"
)

// recordLockMgr serializes writers per user key with a striped mutex table.
// Stripes trade a little false sharing for a fixed footprint; the guarantee
// callers rely on is exclusive acquisition per key.
type recordLockMgr struct {
	shards [recordLockShards]sync.Mutex
}

const recordLockShards = 512

// lock acquires the stripe covering key and returns the release func.
// Callers defer the release so the lock drops on every exit path.
func (m *recordLockMgr) lock(key []byte) func() {
	h := fnv.New32a()
	_, _ = h.Write(key)
	mu := &m.shards[h.Sum32()%recordLockShards]
	mu.Lock()
	return mu.Unlock
}
