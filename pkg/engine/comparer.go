package engine

import (
	"bytes"

	"github.com/cockroachdb/pebble"
)

// newComparer builds the composite pebble comparer. Physical keys carry a
// one-byte family tag; the comparer orders first by tag and then delegates
// to the family's registered Comparator, falling back to bytewise order.
//
// Separator and Successor return the key unchanged. That is always a valid
// (if unhelpful) answer, and it stays correct for family comparators whose
// order is not bytewise.
func newComparer(cmps [numCFs]Comparator) *pebble.Comparer {
	compare := func(a, b []byte) int {
		if len(a) == 0 || len(b) == 0 {
			return bytes.Compare(a, b)
		}
		if a[0] != b[0] {
			if a[0] < b[0] {
				return -1
			}
			return 1
		}
		if int(a[0]) < numCFs {
			if cmp := cmps[a[0]]; cmp != nil {
				return cmp.Compare(a[1:], b[1:])
			}
		}
		return bytes.Compare(a[1:], b[1:])
	}

	c := *pebble.DefaultComparer
	c.Name = "zsetdb.cf-composite"
	c.Compare = compare
	c.Equal = func(a, b []byte) bool { return compare(a, b) == 0 }
	c.AbbreviatedKey = func(key []byte) uint64 {
		// Abbreviation must never contradict Compare. The family tag is the
		// only byte whose bytewise order is guaranteed under every
		// registered comparator.
		if len(key) == 0 {
			return 0
		}
		return uint64(key[0]) << 56
	}
	c.Separator = func(dst, a, b []byte) []byte { return append(dst, a...) }
	c.Successor = func(dst, a []byte) []byte { return append(dst, a...) }
	return &c
}
