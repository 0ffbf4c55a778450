package zset

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"

	"zsetdb/pkg/engine"
)

// dedupMembers keeps the first occurrence of each member.
func dedupMembers(members []ScoreMember) []ScoreMember {
	seen := make(map[string]struct{}, len(members))
	out := members[:0:0]
	for _, sm := range members {
		if _, ok := seen[sm.Member]; ok {
			continue
		}
		seen[sm.Member] = struct{}{}
		out = append(out, sm)
	}
	return out
}

// ZAdd inserts or updates the given members and returns how many were
// newly inserted. Input duplicates keep their first occurrence. An expired
// meta is reincarnated under a fresh version before the adds.
func (s *Store) ZAdd(key []byte, members []ScoreMember) (added int32, err error) {
	defer s.observe("zadd")(&err)
	filtered := dedupMembers(members)

	defer s.locks.lock(key)()
	batch := s.db.NewBatch()

	m, err := s.readMeta(s.db, key)
	switch {
	case err == nil:
		isStale := m.IsStale(s.now())
		var version int32
		if isStale {
			version = m.InitialMetaValue(s.now())
		} else {
			version = m.version
		}
		var cnt int32
		for _, sm := range filtered {
			notFound := true
			memberKey := encodeMemberKey(key, version, []byte(sm.Member))
			if !isStale {
				dv, gerr := s.db.Get(engine.DataCF, memberKey)
				if gerr == nil {
					notFound = false
					oldScore, derr := decodeScoreValue(dv)
					if derr != nil {
						return 0, derr
					}
					if oldScore == sm.Score {
						continue
					}
					batch.Delete(engine.ScoreCF, encodeScoreKey(key, version, oldScore, []byte(sm.Member)))
				} else if !errors.Is(gerr, engine.ErrNotFound) {
					return 0, gerr
				}
			}
			batch.Put(engine.DataCF, memberKey, encodeScoreValue(sm.Score))
			batch.Put(engine.ScoreCF, encodeScoreKey(key, version, sm.Score, []byte(sm.Member)), nil)
			if notFound {
				cnt++
			}
		}
		m.ModifyCount(cnt)
		batch.Put(engine.MetaCF, key, m.Encode())
		added = cnt
	case errors.Is(err, ErrNotFound):
		m := newMetaValue(uint32(len(filtered)))
		version := m.UpdateVersion(s.now())
		batch.Put(engine.MetaCF, key, m.Encode())
		for _, sm := range filtered {
			batch.Put(engine.DataCF, encodeMemberKey(key, version, []byte(sm.Member)), encodeScoreValue(sm.Score))
			batch.Put(engine.ScoreCF, encodeScoreKey(key, version, sm.Score, []byte(sm.Member)), nil)
		}
		added = int32(len(filtered))
	default:
		return 0, err
	}
	return added, s.db.Write(batch)
}

// ZCard returns the number of members.
func (s *Store) ZCard(key []byte) (card int32, err error) {
	defer s.observe("zcard")(&err)

	m, err := s.liveMeta(s.db, key)
	if err != nil {
		return 0, err
	}
	return int32(m.count), nil
}

// ZScore returns the member's score.
func (s *Store) ZScore(key, member []byte) (score float64, err error) {
	defer s.observe("zscore")(&err)

	snap := s.db.NewSnapshot()
	defer snap.Release()

	m, err := s.liveMeta(snap, key)
	if err != nil {
		return 0, err
	}
	dv, err := snap.Get(engine.DataCF, encodeMemberKey(key, m.version, member))
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return decodeScoreValue(dv)
}

// ZIncrby adds increment to the member's score, creating the member (and
// the set, when absent or expired) as needed, and returns the new score.
func (s *Store) ZIncrby(key, member []byte, increment float64) (score float64, err error) {
	defer s.observe("zincrby")(&err)
	defer s.locks.lock(key)()

	batch := s.db.NewBatch()
	var version int32

	m, err := s.readMeta(s.db, key)
	switch {
	case err == nil:
		if m.IsStale(s.now()) {
			version = m.InitialMetaValue(s.now())
		} else {
			version = m.version
		}
		dv, gerr := s.db.Get(engine.DataCF, encodeMemberKey(key, version, member))
		switch {
		case gerr == nil:
			oldScore, derr := decodeScoreValue(dv)
			if derr != nil {
				return 0, derr
			}
			score = oldScore + increment
			batch.Delete(engine.ScoreCF, encodeScoreKey(key, version, oldScore, member))
		case errors.Is(gerr, engine.ErrNotFound):
			score = increment
			m.ModifyCount(1)
			batch.Put(engine.MetaCF, key, m.Encode())
		default:
			return 0, gerr
		}
	case errors.Is(err, ErrNotFound):
		m := newMetaValue(1)
		version = m.UpdateVersion(s.now())
		batch.Put(engine.MetaCF, key, m.Encode())
		score = increment
	default:
		return 0, err
	}

	batch.Put(engine.DataCF, encodeMemberKey(key, version, member), encodeScoreValue(score))
	batch.Put(engine.ScoreCF, encodeScoreKey(key, version, score, member), nil)
	return score, s.db.Write(batch)
}

// scorePass evaluates the half-open/closed interval predicate of the
// score-range operations.
func scorePass(score, min, max float64, leftClose, rightClose bool) (leftPass, rightPass bool) {
	if (leftClose && min <= score) || (!leftClose && min < score) {
		leftPass = true
	}
	if (rightClose && score <= max) || (!rightClose && score < max) {
		rightPass = true
	}
	return leftPass, rightPass
}

// ZCount returns the number of members with scores inside the interval.
func (s *Store) ZCount(key []byte, min, max float64, leftClose, rightClose bool) (cnt int32, err error) {
	defer s.observe("zcount")(&err)

	snap := s.db.NewSnapshot()
	defer snap.Release()

	m, err := s.liveMeta(snap, key)
	if err != nil {
		return 0, err
	}
	it, err := snap.NewIterator(engine.ScoreCF)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	prefix := keyPrefix(key, m.version)
	for ok := it.Seek(encodeScoreKey(key, m.version, math.Inf(-1), nil)); ok && hasRunPrefix(it.Key(), prefix); ok = it.Next() {
		p, perr := parseScoreKey(it.Key())
		if perr != nil {
			return 0, perr
		}
		leftPass, rightPass := scorePass(p.Score(), min, max, leftClose, rightClose)
		if leftPass && rightPass {
			cnt++
		}
		if !rightPass {
			break
		}
	}
	return cnt, it.Error()
}

// rangeIndexes normalizes Redis rank bounds against count: negative ranks
// count from the end and the result is clamped to [0, count-1].
func rangeIndexes(start, stop, count int32) (startIndex, stopIndex int32) {
	startIndex, stopIndex = start, stop
	if startIndex < 0 {
		startIndex += count
	}
	if stopIndex < 0 {
		stopIndex += count
	}
	if startIndex < 0 {
		startIndex = 0
	}
	if stopIndex >= count {
		stopIndex = count - 1
	}
	return startIndex, stopIndex
}

// ZRange returns the members with rank in [start, stop], score-ascending.
func (s *Store) ZRange(key []byte, start, stop int32) (members []ScoreMember, err error) {
	defer s.observe("zrange")(&err)
	return s.zrange(key, start, stop, false)
}

// ZRevrange returns the members with rank in [start, stop] (the slice
// ZRange returns for the same bounds), score-descending.
func (s *Store) ZRevrange(key []byte, start, stop int32) (members []ScoreMember, err error) {
	defer s.observe("zrevrange")(&err)
	return s.zrange(key, start, stop, true)
}

func (s *Store) zrange(key []byte, start, stop int32, reverse bool) ([]ScoreMember, error) {
	snap := s.db.NewSnapshot()
	defer snap.Release()

	m, err := s.liveMeta(snap, key)
	if err != nil {
		return nil, err
	}
	count := int32(m.count)
	// The reverse form reads the same normalized slice forward and flips it,
	// so ZRevrange(start, stop) is pointwise reverse(ZRange(start, stop)).
	startIndex, stopIndex := rangeIndexes(start, stop, count)
	if startIndex > stopIndex || startIndex >= count || stopIndex < 0 {
		return nil, nil
	}

	it, err := snap.NewIterator(engine.ScoreCF)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var members []ScoreMember
	prefix := keyPrefix(key, m.version)
	curIndex := int32(0)
	for ok := it.Seek(encodeScoreKey(key, m.version, math.Inf(-1), nil)); ok && curIndex <= stopIndex && hasRunPrefix(it.Key(), prefix); ok = it.Next() {
		if curIndex >= startIndex {
			p, perr := parseScoreKey(it.Key())
			if perr != nil {
				return nil, perr
			}
			members = append(members, ScoreMember{Score: p.Score(), Member: string(p.Member())})
		}
		curIndex++
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	if reverse {
		for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
			members[i], members[j] = members[j], members[i]
		}
	}
	return members, nil
}

// ZRangebyscore returns the members with scores inside the interval,
// score-ascending.
func (s *Store) ZRangebyscore(key []byte, min, max float64, leftClose, rightClose bool) (members []ScoreMember, err error) {
	defer s.observe("zrangebyscore")(&err)

	snap := s.db.NewSnapshot()
	defer snap.Release()

	m, err := s.liveMeta(snap, key)
	if err != nil {
		return nil, err
	}
	it, err := snap.NewIterator(engine.ScoreCF)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	prefix := keyPrefix(key, m.version)
	for ok := it.Seek(encodeScoreKey(key, m.version, math.Inf(-1), nil)); ok && hasRunPrefix(it.Key(), prefix); ok = it.Next() {
		p, perr := parseScoreKey(it.Key())
		if perr != nil {
			return nil, perr
		}
		leftPass, rightPass := scorePass(p.Score(), min, max, leftClose, rightClose)
		if leftPass && rightPass {
			members = append(members, ScoreMember{Score: p.Score(), Member: string(p.Member())})
		}
		if !rightPass {
			break
		}
	}
	return members, it.Error()
}

// ZRevrangebyscore returns the members with scores inside the interval,
// score-descending.
func (s *Store) ZRevrangebyscore(key []byte, min, max float64, leftClose, rightClose bool) (members []ScoreMember, err error) {
	defer s.observe("zrevrangebyscore")(&err)

	snap := s.db.NewSnapshot()
	defer snap.Release()

	m, err := s.liveMeta(snap, key)
	if err != nil {
		return nil, err
	}
	it, err := snap.NewIterator(engine.ScoreCF)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	prefix := keyPrefix(key, m.version)
	for ok := it.SeekForPrev(memberKeyUpperBound(key, m.version)); ok && hasRunPrefix(it.Key(), prefix); ok = it.Prev() {
		p, perr := parseScoreKey(it.Key())
		if perr != nil {
			return nil, perr
		}
		leftPass, rightPass := scorePass(p.Score(), min, max, leftClose, rightClose)
		if leftPass && rightPass {
			members = append(members, ScoreMember{Score: p.Score(), Member: string(p.Member())})
		}
		if !leftPass {
			break
		}
	}
	return members, it.Error()
}

// ZRank returns the member's 0-based rank in score-ascending order.
func (s *Store) ZRank(key, member []byte) (rank int32, err error) {
	defer s.observe("zrank")(&err)

	snap := s.db.NewSnapshot()
	defer snap.Release()

	m, err := s.liveMeta(snap, key)
	if err != nil {
		return -1, err
	}
	it, err := snap.NewIterator(engine.ScoreCF)
	if err != nil {
		return -1, err
	}
	defer it.Close()

	prefix := keyPrefix(key, m.version)
	index := int32(0)
	for ok := it.Seek(encodeScoreKey(key, m.version, math.Inf(-1), nil)); ok && hasRunPrefix(it.Key(), prefix); ok = it.Next() {
		p, perr := parseScoreKey(it.Key())
		if perr != nil {
			return -1, perr
		}
		if bytes.Equal(p.Member(), member) {
			return index, nil
		}
		index++
	}
	if err := it.Error(); err != nil {
		return -1, err
	}
	return -1, ErrNotFound
}

// ZRevrank returns the member's 0-based rank in score-descending order.
func (s *Store) ZRevrank(key, member []byte) (rank int32, err error) {
	defer s.observe("zrevrank")(&err)

	snap := s.db.NewSnapshot()
	defer snap.Release()

	m, err := s.liveMeta(snap, key)
	if err != nil {
		return -1, err
	}
	it, err := snap.NewIterator(engine.ScoreCF)
	if err != nil {
		return -1, err
	}
	defer it.Close()

	prefix := keyPrefix(key, m.version)
	revIndex := int32(0)
	for ok := it.SeekForPrev(memberKeyUpperBound(key, m.version)); ok && hasRunPrefix(it.Key(), prefix); ok = it.Prev() {
		p, perr := parseScoreKey(it.Key())
		if perr != nil {
			return -1, perr
		}
		if bytes.Equal(p.Member(), member) {
			return revIndex, nil
		}
		revIndex++
	}
	if err := it.Error(); err != nil {
		return -1, err
	}
	return -1, ErrNotFound
}

// ZRem removes the given members and returns how many were present.
// Input duplicates are ignored.
func (s *Store) ZRem(key []byte, members [][]byte) (removed int32, err error) {
	defer s.observe("zrem")(&err)

	seen := make(map[string]struct{}, len(members))
	filtered := members[:0:0]
	for _, member := range members {
		if _, ok := seen[string(member)]; ok {
			continue
		}
		seen[string(member)] = struct{}{}
		filtered = append(filtered, member)
	}

	defer s.locks.lock(key)()

	m, err := s.readMeta(s.db, key)
	if err != nil {
		return 0, err
	}
	if m.IsStale(s.now()) {
		return 0, ErrStale
	}
	if m.count == 0 {
		return 0, ErrNotFound
	}

	batch := s.db.NewBatch()
	var delCnt int32
	for _, member := range filtered {
		memberKey := encodeMemberKey(key, m.version, member)
		dv, gerr := s.db.Get(engine.DataCF, memberKey)
		switch {
		case gerr == nil:
			score, derr := decodeScoreValue(dv)
			if derr != nil {
				return 0, derr
			}
			batch.Delete(engine.DataCF, memberKey)
			batch.Delete(engine.ScoreCF, encodeScoreKey(key, m.version, score, member))
			delCnt++
		case errors.Is(gerr, engine.ErrNotFound):
		default:
			return 0, gerr
		}
	}
	m.ModifyCount(-delCnt)
	batch.Put(engine.MetaCF, key, m.Encode())
	return delCnt, s.db.Write(batch)
}

// ZRemrangebyrank removes the members with rank in [start, stop] and
// returns how many were removed.
func (s *Store) ZRemrangebyrank(key []byte, start, stop int32) (removed int32, err error) {
	defer s.observe("zremrangebyrank")(&err)
	defer s.locks.lock(key)()

	m, err := s.readMeta(s.db, key)
	if err != nil {
		return 0, err
	}
	if m.IsStale(s.now()) {
		return 0, ErrStale
	}
	if m.count == 0 {
		return 0, ErrNotFound
	}

	it, err := s.db.NewIterator(engine.ScoreCF)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	batch := s.db.NewBatch()
	startIndex, stopIndex := rangeIndexes(start, stop, int32(m.count))
	prefix := keyPrefix(key, m.version)
	var delCnt int32
	curIndex := int32(0)
	for ok := it.Seek(encodeScoreKey(key, m.version, math.Inf(-1), nil)); ok && curIndex <= stopIndex && hasRunPrefix(it.Key(), prefix); ok = it.Next() {
		if curIndex >= startIndex {
			p, perr := parseScoreKey(it.Key())
			if perr != nil {
				return 0, perr
			}
			batch.Delete(engine.DataCF, encodeMemberKey(key, m.version, p.Member()))
			batch.Delete(engine.ScoreCF, it.Key())
			delCnt++
		}
		curIndex++
	}
	if err := it.Error(); err != nil {
		return 0, err
	}
	m.ModifyCount(-delCnt)
	batch.Put(engine.MetaCF, key, m.Encode())
	return delCnt, s.db.Write(batch)
}

// ZRemrangebyscore removes the members with scores inside the interval and
// returns how many were removed.
func (s *Store) ZRemrangebyscore(key []byte, min, max float64, leftClose, rightClose bool) (removed int32, err error) {
	defer s.observe("zremrangebyscore")(&err)
	defer s.locks.lock(key)()

	m, err := s.readMeta(s.db, key)
	if err != nil {
		return 0, err
	}
	if m.IsStale(s.now()) {
		return 0, ErrStale
	}
	if m.count == 0 {
		return 0, ErrNotFound
	}

	it, err := s.db.NewIterator(engine.ScoreCF)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	batch := s.db.NewBatch()
	prefix := keyPrefix(key, m.version)
	var delCnt int32
	for ok := it.Seek(encodeScoreKey(key, m.version, math.Inf(-1), nil)); ok && hasRunPrefix(it.Key(), prefix); ok = it.Next() {
		p, perr := parseScoreKey(it.Key())
		if perr != nil {
			return 0, perr
		}
		leftPass, rightPass := scorePass(p.Score(), min, max, leftClose, rightClose)
		if leftPass && rightPass {
			batch.Delete(engine.DataCF, encodeMemberKey(key, m.version, p.Member()))
			batch.Delete(engine.ScoreCF, it.Key())
			delCnt++
		}
		if !rightPass {
			break
		}
	}
	if err := it.Error(); err != nil {
		return 0, err
	}
	m.ModifyCount(-delCnt)
	batch.Put(engine.MetaCF, key, m.Encode())
	return delCnt, s.db.Write(batch)
}

// Lex interval sentinels: "-" is below every member, "+" above.
const (
	lexNegInf = "-"
	lexPosInf = "+"
)

// lexPass evaluates the lexicographic interval predicate.
func lexPass(member, min, max []byte, leftClose, rightClose bool) (leftPass, rightPass bool) {
	if string(min) == lexNegInf {
		leftPass = true
	} else if c := bytes.Compare(min, member); (leftClose && c <= 0) || (!leftClose && c < 0) {
		leftPass = true
	}
	if string(max) == lexPosInf {
		rightPass = true
	} else if c := bytes.Compare(max, member); (rightClose && c >= 0) || (!rightClose && c > 0) {
		rightPass = true
	}
	return leftPass, rightPass
}

// ZRangebylex returns the members inside the lexicographic interval, in
// member order. The member family already orders a run lexicographically.
func (s *Store) ZRangebylex(key, min, max []byte, leftClose, rightClose bool) (members []string, err error) {
	defer s.observe("zrangebylex")(&err)

	snap := s.db.NewSnapshot()
	defer snap.Release()
	return s.zrangebylex(snap, key, min, max, leftClose, rightClose)
}

func (s *Store) zrangebylex(snap *engine.Snapshot, key, min, max []byte, leftClose, rightClose bool) ([]string, error) {
	m, err := s.readMeta(snap, key)
	if err != nil {
		return nil, err
	}
	if m.IsStale(s.now()) || m.count == 0 {
		return nil, ErrNotFound
	}

	it, err := snap.NewIterator(engine.DataCF)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var members []string
	prefix := keyPrefix(key, m.version)
	for ok := it.Seek(encodeMemberKey(key, m.version, nil)); ok && hasRunPrefix(it.Key(), prefix); ok = it.Next() {
		p, perr := parseMemberKey(it.Key())
		if perr != nil {
			return nil, perr
		}
		leftPass, rightPass := lexPass(p.Member(), min, max, leftClose, rightClose)
		if leftPass && rightPass {
			members = append(members, string(p.Member()))
		}
		if !rightPass {
			break
		}
	}
	return members, it.Error()
}

// ZLexcount returns the cardinality of the lexicographic interval.
func (s *Store) ZLexcount(key, min, max []byte, leftClose, rightClose bool) (cnt int32, err error) {
	defer s.observe("zlexcount")(&err)

	snap := s.db.NewSnapshot()
	defer snap.Release()

	members, err := s.zrangebylex(snap, key, min, max, leftClose, rightClose)
	if err != nil {
		return 0, err
	}
	return int32(len(members)), nil
}

// ZRemrangebylex removes the members inside the lexicographic interval and
// returns how many were removed.
func (s *Store) ZRemrangebylex(key, min, max []byte, leftClose, rightClose bool) (removed int32, err error) {
	defer s.observe("zremrangebylex")(&err)
	defer s.locks.lock(key)()

	m, err := s.readMeta(s.db, key)
	if err != nil {
		return 0, err
	}
	if m.IsStale(s.now()) || m.count == 0 {
		return 0, ErrNotFound
	}

	it, err := s.db.NewIterator(engine.DataCF)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	batch := s.db.NewBatch()
	prefix := keyPrefix(key, m.version)
	var delCnt int32
	for ok := it.Seek(encodeMemberKey(key, m.version, nil)); ok && hasRunPrefix(it.Key(), prefix); ok = it.Next() {
		p, perr := parseMemberKey(it.Key())
		if perr != nil {
			return 0, perr
		}
		leftPass, rightPass := lexPass(p.Member(), min, max, leftClose, rightClose)
		if leftPass && rightPass {
			score, derr := decodeScoreValue(it.Value())
			if derr != nil {
				return 0, derr
			}
			batch.Delete(engine.DataCF, it.Key())
			batch.Delete(engine.ScoreCF, encodeScoreKey(key, m.version, score, p.Member()))
			delCnt++
		}
		if !rightPass {
			break
		}
	}
	if err := it.Error(); err != nil {
		return 0, err
	}
	if delCnt > 0 {
		m.ModifyCount(-delCnt)
		batch.Put(engine.MetaCF, key, m.Encode())
		removed = delCnt
	}
	return removed, s.db.Write(batch)
}

// apply folds next into acc per the aggregate mode.
func (agg Aggregate) apply(acc, next float64) float64 {
	switch agg {
	case Min:
		return math.Min(acc, next)
	case Max:
		return math.Max(acc, next)
	default:
		return acc + next
	}
}

// normalizeZero collapses -0.0 so set-algebra results never expose it.
func normalizeZero(score float64) float64 {
	if score == 0 {
		return 0
	}
	return score
}

// weightAt returns weights[idx], defaulting to 1 beyond the slice.
func weightAt(weights []float64, idx int) float64 {
	if idx < len(weights) {
		return weights[idx]
	}
	return 1
}

// writeDestination replaces destination with the given pairs under a fresh
// version and commits the batch.
func (s *Store) writeDestination(snap *engine.Snapshot, batch *engine.Batch, destination []byte, pairs map[string]float64) error {
	var version int32
	m, err := s.readMeta(snap, destination)
	switch {
	case err == nil:
		version = m.InitialMetaValue(s.now())
		m.SetCount(uint32(len(pairs)))
		batch.Put(engine.MetaCF, destination, m.Encode())
	case errors.Is(err, ErrNotFound):
		m := newMetaValue(uint32(len(pairs)))
		version = m.UpdateVersion(s.now())
		batch.Put(engine.MetaCF, destination, m.Encode())
	default:
		return err
	}

	members := make([]string, 0, len(pairs))
	for member := range pairs {
		members = append(members, member)
	}
	sort.Strings(members)
	for _, member := range members {
		score := pairs[member]
		batch.Put(engine.DataCF, encodeMemberKey(destination, version, []byte(member)), encodeScoreValue(score))
		batch.Put(engine.ScoreCF, encodeScoreKey(destination, version, score, []byte(member)), nil)
	}
	return s.db.Write(batch)
}

// ZUnionstore stores in destination the weighted union of the source sets
// and returns the resulting cardinality. Missing sources contribute
// nothing.
func (s *Store) ZUnionstore(destination []byte, keys [][]byte, weights []float64, agg Aggregate) (cardinality int32, err error) {
	defer s.observe("zunionstore")(&err)

	snap := s.db.NewSnapshot()
	defer snap.Release()
	defer s.locks.lock(destination)()

	pairs := make(map[string]float64)
	for idx, srcKey := range keys {
		m, merr := s.readMeta(snap, srcKey)
		if errors.Is(merr, ErrNotFound) {
			continue
		}
		if merr != nil {
			return 0, merr
		}
		if m.IsStale(s.now()) || m.count == 0 {
			continue
		}
		weight := weightAt(weights, idx)

		it, ierr := snap.NewIterator(engine.ScoreCF)
		if ierr != nil {
			return 0, ierr
		}
		prefix := keyPrefix(srcKey, m.version)
		for ok := it.Seek(encodeScoreKey(srcKey, m.version, math.Inf(-1), nil)); ok && hasRunPrefix(it.Key(), prefix); ok = it.Next() {
			p, perr := parseScoreKey(it.Key())
			if perr != nil {
				it.Close()
				return 0, perr
			}
			member := string(p.Member())
			if acc, ok := pairs[member]; ok {
				pairs[member] = normalizeZero(agg.apply(acc, weight*p.Score()))
			} else {
				pairs[member] = normalizeZero(weight * p.Score())
			}
		}
		if err := it.Error(); err != nil {
			it.Close()
			return 0, err
		}
		if err := it.Close(); err != nil {
			return 0, err
		}
	}

	batch := s.db.NewBatch()
	if err := s.writeDestination(snap, batch, destination, pairs); err != nil {
		return 0, err
	}
	return int32(len(pairs)), nil
}

// ZInterstore stores in destination the weighted intersection of the
// source sets and returns the resulting cardinality. A missing, expired or
// empty source makes the result empty; zero sources is an error.
func (s *Store) ZInterstore(destination []byte, keys [][]byte, weights []float64, agg Aggregate) (cardinality int32, err error) {
	defer s.observe("zinterstore")(&err)

	if len(keys) == 0 {
		return 0, fmt.Errorf("%w: zinterstore requires at least one source key", ErrCorruption)
	}

	snap := s.db.NewSnapshot()
	defer snap.Release()
	defer s.locks.lock(destination)()

	type keyVersion struct {
		key     []byte
		version int32
	}
	var (
		haveInvalid bool
		sources     []keyVersion
	)
	for _, srcKey := range keys {
		m, merr := s.readMeta(snap, srcKey)
		switch {
		case errors.Is(merr, ErrNotFound):
			haveInvalid = true
		case merr != nil:
			return 0, merr
		case m.IsStale(s.now()) || m.count == 0:
			haveInvalid = true
		default:
			sources = append(sources, keyVersion{key: srcKey, version: m.version})
		}
	}

	pairs := make(map[string]float64)
	if !haveInvalid {
		first := sources[0]
		it, ierr := snap.NewIterator(engine.ScoreCF)
		if ierr != nil {
			return 0, ierr
		}
		var candidates []ScoreMember
		prefix := keyPrefix(first.key, first.version)
		for ok := it.Seek(encodeScoreKey(first.key, first.version, math.Inf(-1), nil)); ok && hasRunPrefix(it.Key(), prefix); ok = it.Next() {
			p, perr := parseScoreKey(it.Key())
			if perr != nil {
				it.Close()
				return 0, perr
			}
			candidates = append(candidates, ScoreMember{Score: p.Score(), Member: string(p.Member())})
		}
		if err := it.Error(); err != nil {
			it.Close()
			return 0, err
		}
		if err := it.Close(); err != nil {
			return 0, err
		}

		for _, sm := range candidates {
			score := weightAt(weights, 0) * sm.Score
			reliable := true
			for idx := 1; idx < len(sources); idx++ {
				dv, gerr := snap.Get(engine.DataCF, encodeMemberKey(sources[idx].key, sources[idx].version, []byte(sm.Member)))
				switch {
				case gerr == nil:
					other, derr := decodeScoreValue(dv)
					if derr != nil {
						return 0, derr
					}
					score = agg.apply(score, weightAt(weights, idx)*other)
				case errors.Is(gerr, engine.ErrNotFound):
					reliable = false
				default:
					return 0, gerr
				}
				if !reliable {
					break
				}
			}
			if reliable {
				pairs[sm.Member] = normalizeZero(score)
			}
		}
	}

	batch := s.db.NewBatch()
	if err := s.writeDestination(snap, batch, destination, pairs); err != nil {
		return 0, err
	}
	return int32(len(pairs)), nil
}

// ZScan resumes iteration over the member family at the cached cursor
// position, returns up to count entries matching pattern, and hands back
// the next cursor (0 when the scan is complete). An unknown cursor
// restarts from the first member.
func (s *Store) ZScan(key []byte, cursor int64, pattern string, count int64) (members []ScoreMember, nextCursor int64, err error) {
	defer s.observe("zscan")(&err)

	if cursor < 0 {
		return nil, 0, nil
	}
	matcher, err := compileMatcher(pattern)
	if err != nil {
		return nil, 0, err
	}

	snap := s.db.NewSnapshot()
	defer snap.Release()

	m, err := s.readMeta(snap, key)
	if err != nil {
		return nil, 0, err
	}
	if m.IsStale(s.now()) || m.count == 0 {
		return nil, 0, ErrNotFound
	}

	var startMember string
	if cursor != 0 {
		resume, ok := s.cursors.load(key, pattern, cursor)
		if !ok {
			cursor = 0
		} else {
			startMember = resume
		}
	}

	it, err := snap.NewIterator(engine.DataCF)
	if err != nil {
		return nil, 0, err
	}
	defer it.Close()

	prefix := keyPrefix(key, m.version)
	rest := count
	for ok := it.Seek(encodeMemberKey(key, m.version, []byte(startMember))); ok && rest > 0 && hasRunPrefix(it.Key(), prefix); ok = it.Next() {
		p, perr := parseMemberKey(it.Key())
		if perr != nil {
			return nil, 0, perr
		}
		if matcher.Match(string(p.Member())) {
			score, derr := decodeScoreValue(it.Value())
			if derr != nil {
				return nil, 0, derr
			}
			members = append(members, ScoreMember{Score: score, Member: string(p.Member())})
		}
		rest--
	}
	if err := it.Error(); err != nil {
		return nil, 0, err
	}

	if it.Valid() && hasRunPrefix(it.Key(), prefix) {
		p, perr := parseMemberKey(it.Key())
		if perr != nil {
			return nil, 0, perr
		}
		nextCursor = cursor + count
		s.cursors.store(key, pattern, nextCursor, string(p.Member()))
		return members, nextCursor, nil
	}
	return members, 0, nil
}
