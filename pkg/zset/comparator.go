package zset

import "bytes"

// scoreKeyComparator orders score-family keys by the (keylen | user key |
// version) prefix bytewise, then by score numerically, then by member
// bytewise. Seek bounds that stop short of the score field participate in
// the same order, so the order stays total over every key pebble compares.
//
// Because encodeScore is order-preserving and normalizes negative zero,
// this order coincides with plain bytewise order; the comparator is still
// the authoritative definition and is installed on the score family.
// NaN scores are excluded from valid inputs.
type scoreKeyComparator struct{}

func (scoreKeyComparator) Name() string {
	return "zsetdb.ScoreKeyComparator"
}

func (scoreKeyComparator) Compare(a, b []byte) int {
	pa, erra := parseScoreKey(a)
	pb, errb := parseScoreKey(b)
	if erra != nil || errb != nil {
		return bytes.Compare(a, b)
	}
	if c := bytes.Compare(a[:keyLenSize+pa.keyLen+versionSize], b[:keyLenSize+pb.keyLen+versionSize]); c != 0 {
		return c
	}
	sa, sb := pa.Score(), pb.Score()
	if sa != sb {
		if sa < sb {
			return -1
		}
		return 1
	}
	return bytes.Compare(pa.Member(), pb.Member())
}

// memberKeyUpperBound returns the smallest member-family or score-family
// key sorting after every entry of (key, version): the prefix of the next
// version. Versions are assigned from unix seconds, so version+1 of a live
// key never collides with existing data.
func memberKeyUpperBound(key []byte, version int32) []byte {
	return keyPrefix(key, version+1)
}
