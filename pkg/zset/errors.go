package zset

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key is absent or logically empty.
var ErrNotFound = errors.New("zset: not found")

// ErrStale is returned when a key exists but its expiry has passed. It
// unwraps to ErrNotFound so callers that only care about presence can use a
// single errors.Is check.
var ErrStale = fmt.Errorf("%w (stale)", ErrNotFound)

// ErrNoTimeout is returned by Persist when the key carries no expiry. It
// unwraps to ErrNotFound, mirroring the store's status taxonomy.
var ErrNoTimeout = fmt.Errorf("%w (no associated timeout)", ErrNotFound)

// ErrCorruption is returned for invalid arguments, such as ZInterstore with
// no source keys or an unparsable glob pattern.
var ErrCorruption = errors.New("zset: corruption")
