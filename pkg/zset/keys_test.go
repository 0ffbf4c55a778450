package zset

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreEncodingOrderPreserving(t *testing.T) {
	scores := []float64{
		math.Inf(-1),
		-math.MaxFloat64,
		-12345.678,
		-1,
		-math.SmallestNonzeroFloat64,
		0,
		math.SmallestNonzeroFloat64,
		0.5,
		1,
		12345.678,
		math.MaxFloat64,
		math.Inf(1),
	}

	encoded := make([][]byte, len(scores))
	for i, s := range scores {
		b := make([]byte, scoreSize)
		encodeScore(b, s)
		encoded[i] = b
	}
	sorted := append([][]byte(nil), encoded...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })

	for i := range encoded {
		require.Equal(t, encoded[i], sorted[i], "bytewise order diverges from numeric order at %v", scores[i])
		require.Equal(t, scores[i], decodeScore(encoded[i]))
	}
}

func TestScoreEncodingNormalizesNegativeZero(t *testing.T) {
	pos := make([]byte, scoreSize)
	neg := make([]byte, scoreSize)
	encodeScore(pos, 0.0)
	encodeScore(neg, math.Copysign(0, -1))
	require.Equal(t, pos, neg)
	require.False(t, math.Signbit(decodeScore(neg)))
}

func TestScoreValueRoundTrip(t *testing.T) {
	for _, s := range []float64{0, -0.0, 1.5, -273.15, math.MaxFloat64} {
		got, err := decodeScoreValue(encodeScoreValue(s))
		require.NoError(t, err)
		require.Equal(t, math.Float64bits(s), math.Float64bits(got))
	}
	_, err := decodeScoreValue([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrCorruption)
}

func TestMemberKeyRoundTrip(t *testing.T) {
	key := []byte("leader:board")
	member := []byte("alice")
	mk := encodeMemberKey(key, 42, member)

	p, err := parseMemberKey(mk)
	require.NoError(t, err)
	require.Equal(t, key, p.UserKey())
	require.Equal(t, int32(42), p.Version())
	require.Equal(t, member, p.Member())

	// accessors reference the encoded buffer without copying
	require.Equal(t, &mk[keyLenSize], &p.UserKey()[0])
}

func TestScoreKeyRoundTrip(t *testing.T) {
	key := []byte("z")
	member := []byte("bob")
	sk := encodeScoreKey(key, 7, -3.25, member)

	p, err := parseScoreKey(sk)
	require.NoError(t, err)
	require.Equal(t, key, p.UserKey())
	require.Equal(t, int32(7), p.Version())
	require.Equal(t, -3.25, p.Score())
	require.Equal(t, member, p.Member())
}

func TestParseRejectsTruncatedKeys(t *testing.T) {
	_, err := parseMemberKey([]byte{0, 0})
	require.ErrorIs(t, err, ErrCorruption)

	mk := encodeMemberKey([]byte("abcdef"), 1, nil)
	_, err = parseScoreKey(mk) // too short for the score field
	require.ErrorIs(t, err, ErrCorruption)
}

func TestScoreKeysSortByScoreThenMember(t *testing.T) {
	key := []byte("z")
	keys := [][]byte{
		encodeScoreKey(key, 1, 5, []byte("x")),
		encodeScoreKey(key, 1, 5, []byte("y")),
		encodeScoreKey(key, 1, -1, []byte("z")),
		encodeScoreKey(key, 1, 0, []byte("a")),
		encodeScoreKey(key, 1, math.Copysign(0, -1), []byte("b")),
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	var got []string
	for _, k := range keys {
		p, err := parseScoreKey(k)
		require.NoError(t, err)
		got = append(got, string(p.Member()))
	}
	require.Equal(t, []string{"z", "a", "b", "x", "y"}, got)
}
