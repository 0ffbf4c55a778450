package zset

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Key layouts. All fixed-width integers inside keys are big-endian so that
// bytewise iteration of the member family yields member-lexicographic order
// within a (key, version) run.
//
//	member key: keylen u32 | key | version u32 | member
//	score key:  keylen u32 | key | version u32 | score 8B | member
//
// The 8 score bytes use the order-preserving transform of encodeScore, so a
// bytewise scan of the score family walks a (key, version) run in
// (score ascending, member ascending) order.

const (
	keyLenSize  = 4
	versionSize = 4
	scoreSize   = 8
)

// encodeScore writes the order-preserving 8-byte form of s into b.
// Positive values get their sign bit flipped; negative values have all bits
// inverted. Negative zero is normalized to positive zero so the two forms
// cannot produce distinct keys that the comparator must treat as equal.
func encodeScore(b []byte, s float64) {
	if s == 0 {
		s = 0 // collapses -0.0
	}
	bits := math.Float64bits(s)
	if bits&(1<<63) == 0 {
		bits |= 1 << 63
	} else {
		bits = ^bits
	}
	binary.BigEndian.PutUint64(b, bits)
}

// decodeScore reverses encodeScore.
func decodeScore(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

// encodeScoreValue is the member-family value: the raw IEEE-754 bit pattern
// of the score, fixed-width little-endian.
func encodeScoreValue(s float64) []byte {
	v := make([]byte, scoreSize)
	binary.LittleEndian.PutUint64(v, math.Float64bits(s))
	return v
}

// decodeScoreValue reverses encodeScoreValue.
func decodeScoreValue(b []byte) (float64, error) {
	if len(b) != scoreSize {
		return 0, fmt.Errorf("%w: score value is %d bytes, want %d", ErrCorruption, len(b), scoreSize)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// keyPrefix encodes the (key, version) run prefix common to both the member
// and score families.
func keyPrefix(key []byte, version int32) []byte {
	p := make([]byte, 0, keyLenSize+len(key)+versionSize)
	return appendKeyPrefix(p, key, version)
}

func appendKeyPrefix(p, key []byte, version int32) []byte {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(key)))
	p = append(p, n[:]...)
	p = append(p, key...)
	binary.BigEndian.PutUint32(n[:], uint32(version))
	return append(p, n[:]...)
}

// encodeMemberKey builds the member-family key for (key, version, member).
func encodeMemberKey(key []byte, version int32, member []byte) []byte {
	p := make([]byte, 0, keyLenSize+len(key)+versionSize+len(member))
	p = appendKeyPrefix(p, key, version)
	return append(p, member...)
}

// encodeScoreKey builds the score-family key for (key, version, score, member).
func encodeScoreKey(key []byte, version int32, score float64, member []byte) []byte {
	p := make([]byte, 0, keyLenSize+len(key)+versionSize+scoreSize+len(member))
	p = appendKeyPrefix(p, key, version)
	var sb [scoreSize]byte
	encodeScore(sb[:], score)
	p = append(p, sb[:]...)
	return append(p, member...)
}

// parsedMemberKey is a zero-copy view over an encoded member-family key.
type parsedMemberKey struct {
	raw    []byte
	keyLen int
}

func parseMemberKey(b []byte) (parsedMemberKey, error) {
	if len(b) < keyLenSize+versionSize {
		return parsedMemberKey{}, fmt.Errorf("%w: member key too short (%d bytes)", ErrCorruption, len(b))
	}
	kl := int(binary.BigEndian.Uint32(b))
	if len(b) < keyLenSize+kl+versionSize {
		return parsedMemberKey{}, fmt.Errorf("%w: member key truncated", ErrCorruption)
	}
	return parsedMemberKey{raw: b, keyLen: kl}, nil
}

func (p parsedMemberKey) UserKey() []byte {
	return p.raw[keyLenSize : keyLenSize+p.keyLen]
}

func (p parsedMemberKey) Version() int32 {
	return int32(binary.BigEndian.Uint32(p.raw[keyLenSize+p.keyLen:]))
}

func (p parsedMemberKey) Member() []byte {
	return p.raw[keyLenSize+p.keyLen+versionSize:]
}

// parsedScoreKey is a zero-copy view over an encoded score-family key.
type parsedScoreKey struct {
	raw    []byte
	keyLen int
}

func parseScoreKey(b []byte) (parsedScoreKey, error) {
	if len(b) < keyLenSize+versionSize+scoreSize {
		return parsedScoreKey{}, fmt.Errorf("%w: score key too short (%d bytes)", ErrCorruption, len(b))
	}
	kl := int(binary.BigEndian.Uint32(b))
	if len(b) < keyLenSize+kl+versionSize+scoreSize {
		return parsedScoreKey{}, fmt.Errorf("%w: score key truncated", ErrCorruption)
	}
	return parsedScoreKey{raw: b, keyLen: kl}, nil
}

func (p parsedScoreKey) UserKey() []byte {
	return p.raw[keyLenSize : keyLenSize+p.keyLen]
}

func (p parsedScoreKey) Version() int32 {
	return int32(binary.BigEndian.Uint32(p.raw[keyLenSize+p.keyLen:]))
}

func (p parsedScoreKey) Score() float64 {
	off := keyLenSize + p.keyLen + versionSize
	return decodeScore(p.raw[off : off+scoreSize])
}

func (p parsedScoreKey) Member() []byte {
	return p.raw[keyLenSize+p.keyLen+versionSize+scoreSize:]
}
