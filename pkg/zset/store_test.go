package zset

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestExpireAndTTL(t *testing.T) {
	s, clock := newTestStore(t)
	mustZAdd(t, s, "z", 2, sm(1, "a"), sm(2, "b"))

	// no expiry yet
	ttl, err := s.TTL([]byte("z"))
	if err != nil || ttl != -1 {
		t.Fatalf("TTL = %d, %v", ttl, err)
	}

	if err := s.Expire([]byte("z"), 100); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	ttl, err = s.TTL([]byte("z"))
	if err != nil || ttl != 100 {
		t.Fatalf("TTL = %d, %v", ttl, err)
	}

	// clock passes the deadline: reads now report stale
	atomic.AddInt64(clock, 101)
	if _, err := s.ZCard([]byte("z")); !errors.Is(err, ErrStale) {
		t.Fatalf("ZCard err = %v, want ErrStale", err)
	}
	if _, err := s.ZRange([]byte("z"), 0, -1); !errors.Is(err, ErrStale) {
		t.Fatalf("ZRange err = %v, want ErrStale", err)
	}
	ttl, err = s.TTL([]byte("z"))
	if ttl != -2 || !errors.Is(err, ErrStale) {
		t.Fatalf("TTL = %d, %v", ttl, err)
	}
}

func TestTTLMissingKey(t *testing.T) {
	s, _ := newTestStore(t)
	ttl, err := s.TTL([]byte("nope"))
	if ttl != -2 || !errors.Is(err, ErrNotFound) {
		t.Fatalf("TTL = %d, %v", ttl, err)
	}
}

func TestExpireZeroCollapses(t *testing.T) {
	s, _ := newTestStore(t)
	mustZAdd(t, s, "z", 1, sm(1, "a"))

	if err := s.Expire([]byte("z"), 0); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if _, err := s.ZCard([]byte("z")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ZCard err = %v, want ErrNotFound", err)
	}
}

func TestExpireat(t *testing.T) {
	s, clock := newTestStore(t)
	mustZAdd(t, s, "z", 1, sm(1, "a"))

	deadline := atomic.LoadInt64(clock) + 50
	if err := s.Expireat([]byte("z"), deadline); err != nil {
		t.Fatalf("Expireat: %v", err)
	}
	ttl, err := s.TTL([]byte("z"))
	if err != nil || ttl != 50 {
		t.Fatalf("TTL = %d, %v", ttl, err)
	}
}

func TestPersist(t *testing.T) {
	s, _ := newTestStore(t)
	mustZAdd(t, s, "z", 1, sm(1, "a"))

	// nothing to clear yet
	if err := s.Persist([]byte("z")); !errors.Is(err, ErrNoTimeout) {
		t.Fatalf("Persist err = %v, want ErrNoTimeout", err)
	}

	if err := s.Expire([]byte("z"), 100); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if err := s.Persist([]byte("z")); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	ttl, err := s.TTL([]byte("z"))
	if err != nil || ttl != -1 {
		t.Fatalf("TTL = %d, %v", ttl, err)
	}
}

func TestDel(t *testing.T) {
	s, _ := newTestStore(t)
	mustZAdd(t, s, "z", 2, sm(1, "a"), sm(2, "b"))

	if err := s.Del([]byte("z")); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := s.ZCard([]byte("z")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ZCard err = %v, want ErrNotFound", err)
	}
	if err := s.Del([]byte("z")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Del err = %v, want ErrNotFound", err)
	}
	if err := s.Del([]byte("never")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Del(absent) err = %v, want ErrNotFound", err)
	}
}

func TestStaleKeyReincarnation(t *testing.T) {
	s, clock := newTestStore(t)
	mustZAdd(t, s, "z", 2, sm(1, "old1"), sm(2, "old2"))

	if err := s.Expire([]byte("z"), 10); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	atomic.AddInt64(clock, 11)

	// ZAdd on a stale meta starts a brand-new set under a fresh version
	mustZAdd(t, s, "z", 1, sm(7, "fresh"))
	got, err := s.ZRange([]byte("z"), 0, -1)
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	checkRange(t, got, sm(7, "fresh"))

	ttl, err := s.TTL([]byte("z"))
	if err != nil || ttl != -1 {
		t.Fatalf("TTL after reincarnation = %d, %v", ttl, err)
	}
}

func TestScan(t *testing.T) {
	s, clock := newTestStore(t)
	mustZAdd(t, s, "user:1", 1, sm(1, "a"))
	mustZAdd(t, s, "user:2", 1, sm(1, "a"))
	mustZAdd(t, s, "user:3", 1, sm(1, "a"))
	mustZAdd(t, s, "other", 1, sm(1, "a"))

	keys, next, finished, err := s.Scan(nil, "user:*", 100)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !finished || next != "" {
		t.Fatalf("finished=%v next=%q", finished, next)
	}
	if len(keys) != 3 {
		t.Fatalf("keys = %v", keys)
	}

	// paging: limit counts live keys examined, next resumes after them
	keys, next, finished, err = s.Scan(nil, "*", 2)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if finished || next == "" || len(keys) != 2 {
		t.Fatalf("keys=%v next=%q finished=%v", keys, next, finished)
	}
	rest, _, finished, err := s.Scan([]byte(next), "*", 100)
	if err != nil || !finished {
		t.Fatalf("Scan: %v finished=%v", err, finished)
	}
	if len(keys)+len(rest) != 4 {
		t.Fatalf("pagination lost keys: %v + %v", keys, rest)
	}

	// expired keys are skipped
	if err := s.Expire([]byte("user:2"), 5); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	atomic.AddInt64(clock, 6)
	keys, _, _, err = s.Scan(nil, "user:*", 100)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys = %v, want user:1 and user:3", keys)
	}
}

func TestScanKeysAndScanKeyNum(t *testing.T) {
	s, _ := newTestStore(t)
	mustZAdd(t, s, "a1", 1, sm(1, "m"))
	mustZAdd(t, s, "a2", 1, sm(1, "m"))
	mustZAdd(t, s, "b1", 1, sm(1, "m"))
	if err := s.Del([]byte("b1")); err != nil {
		t.Fatalf("Del: %v", err)
	}

	num, err := s.ScanKeyNum()
	if err != nil || num != 2 {
		t.Fatalf("ScanKeyNum = %d, %v", num, err)
	}

	keys, err := s.ScanKeys("a*")
	if err != nil {
		t.Fatalf("ScanKeys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a1" || keys[1] != "a2" {
		t.Fatalf("ScanKeys = %v", keys)
	}
}

func TestInvalidPattern(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.ScanKeys("[unterminated"); !errors.Is(err, ErrCorruption) {
		t.Fatalf("err = %v, want ErrCorruption", err)
	}
}

func TestWriteLastsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Path: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.ZAdd([]byte("z"), []ScoreMember{sm(1, "a")}); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(Options{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	score, err := s.ZScore([]byte("z"), []byte("a"))
	if err != nil || score != 1 {
		t.Fatalf("ZScore after reopen = %v, %v", score, err)
	}
}
