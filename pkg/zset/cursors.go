package zset

import (
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// zscanCursorCache maps (key, pattern, cursor) to the member a ZScan should
// resume from. Eviction is harmless: a lost cursor restarts the scan from
// the first member.
type zscanCursorCache struct {
	c *lru.Cache[string, string]
}

const defaultZScanCacheSize = 1024

func newZScanCursorCache(size int) (*zscanCursorCache, error) {
	if size <= 0 {
		size = defaultZScanCacheSize
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &zscanCursorCache{c: c}, nil
}

func cursorIndexKey(key []byte, pattern string, cursor int64) string {
	return string(key) + "_" + pattern + "_" + strconv.FormatInt(cursor, 10)
}

func (z *zscanCursorCache) store(key []byte, pattern string, cursor int64, member string) {
	z.c.Add(cursorIndexKey(key, pattern, cursor), member)
}

func (z *zscanCursorCache) load(key []byte, pattern string, cursor int64) (string, bool) {
	return z.c.Get(cursorIndexKey(key, pattern, cursor))
}
